package parse

import (
	"context"
	"fmt"

	"github.com/oakhaven-brewing/invoicer/internal/catalog"
	"github.com/oakhaven-brewing/invoicer/internal/pricing"
)

// UnknownItemError means a description produced no candidates.
type UnknownItemError struct {
	Description string
}

func (e *UnknownItemError) Error() string {
	return fmt.Sprintf("parse: %q is not a valid invoice line", e.Description)
}

// AmbiguousItemError means an exact parse produced more than one candidate.
type AmbiguousItemError struct {
	Description string
	Count       int
}

func (e *AmbiguousItemError) Error() string {
	return fmt.Sprintf("parse: invoice line %q is ambiguous (%d candidates)", e.Description, e.Count)
}

// ResolveExact parses a description in exact mode and requires a single
// candidate, the contract for final submission.
func (p *Parser) ResolveExact(ctx context.Context, description string, bill bool, contact *catalog.Contact) (pricing.SaleItem, error) {
	candidates, err := p.ParseItem(ctx, description, true, bill, contact)
	if err != nil {
		return pricing.SaleItem{}, err
	}
	switch len(candidates) {
	case 0:
		return pricing.SaleItem{}, &UnknownItemError{Description: description}
	case 1:
		return candidates[0], nil
	default:
		return pricing.SaleItem{}, &AmbiguousItemError{Description: description, Count: len(candidates)}
	}
}
