// Package billing assembles invoices: it resolves free-text lines into sale
// items, prices them through the rule engine, makes sure product metadata is
// upstream, and submits the result to the accounting service.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oakhaven-brewing/invoicer/internal/books"
	"github.com/oakhaven-brewing/invoicer/internal/catalog"
	"github.com/oakhaven-brewing/invoicer/internal/parse"
	"github.com/oakhaven-brewing/invoicer/internal/platform/httpx"
	"github.com/oakhaven-brewing/invoicer/internal/pricing"
)

// contactCacheTTL is how long the cached contact display name is trusted
// before it is refreshed from upstream.
const contactCacheTTL = 5 * time.Minute

// CatalogStore is the catalog access the billing service needs.
type CatalogStore interface {
	ListPriceRules(ctx context.Context, filters catalog.RuleFilters) ([]catalog.PriceRule, error)
	ListProgramRules(ctx context.Context) ([]catalog.ProgramRule, error)
	GetPriceBand(ctx context.Context, id int64) (catalog.PriceBand, error)
	GetContactByExternalID(ctx context.Context, externalID string) (catalog.Contact, error)
	UpsertContact(ctx context.Context, contact catalog.Contact) (catalog.Contact, error)
	MarkProductsSent(ctx context.Context, ids []int64) error
}

// BooksClient is the accounting-service access the billing service needs.
type BooksClient interface {
	GetContact(ctx context.Context, contactID string) (*books.ContactDetail, error)
	UpdateProducts(ctx context.Context, products []catalog.Product) error
	SendInvoice(ctx context.Context, inv books.Invoice) (string, []string, error)
}

// Config carries the tax multiplier and fallback account codes used when no
// rule determined an account.
type Config struct {
	VATMultiplier  decimal.Decimal
	DefaultAccount string
	SwapAccount    string
	BillAccount    string
}

// Service assembles and submits invoices.
type Service struct {
	catalog   CatalogStore
	parser    *parse.Parser
	evaluator *pricing.Evaluator
	books     BooksClient
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

// NewService wires the billing service.
func NewService(store CatalogStore, parser *parse.Parser, evaluator *pricing.Evaluator, client BooksClient, cfg Config, logger *slog.Logger) *Service {
	if cfg.VATMultiplier.IsZero() {
		cfg.VATMultiplier = pricing.DefaultVATMultiplier
	}
	return &Service{
		catalog:   store,
		parser:    parser,
		evaluator: evaluator,
		books:     client,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Line is one free-text invoice line plus an optional note (eg. a gyle
// number) appended to the upstream description.
type Line struct {
	Description string `json:"description" validate:"required"`
	Note        string `json:"note"`
}

// PricedLine is a resolved, priced invoice line.
type PricedLine struct {
	Item           pricing.SaleItem
	Description    string
	Barrels        decimal.Decimal
	PricePerBarrel decimal.Decimal
	Account        string
	Total          decimal.Decimal
	TotalIncVAT    decimal.Decimal
	// Determined is false when no price rule matched; the zero price is
	// then a warning, not a real price.
	Determined bool
	Trace      []pricing.Step
}

// loadRules fetches and resolves the rule set for a band once per request.
func (s *Service) loadRules(ctx context.Context, bandID int64) ([]pricing.Rule, error) {
	records, err := s.catalog.ListPriceRules(ctx, catalog.RuleFilters{BandID: &bandID})
	if err != nil {
		return nil, err
	}
	programRecords, err := s.catalog.ListProgramRules(ctx)
	if err != nil {
		return nil, err
	}
	programs := make(map[int64]catalog.ProgramRule, len(programRecords))
	for _, p := range programRecords {
		programs[p.ID] = p
	}
	return pricing.RulesFromRecords(records, programs), nil
}

// priceItem evaluates one sale item against a resolved rule set.
func (s *Service) priceItem(rules []pricing.Rule, bandID int64, item pricing.SaleItem, note string) (PricedLine, error) {
	result, err := s.evaluator.ApplyRulesFor(rules, bandID, item)
	if err != nil {
		return PricedLine{}, err
	}
	description := fmt.Sprintf("%s (%s%% ABV)", parse.Describe(item), item.Product.ABV.StringFixed(1))
	if note != "" {
		description += fmt.Sprintf(" (gyle %s)", note)
	}
	barrels := item.Barrels()
	total := result.Price.Mul(barrels).Round(2)
	return PricedLine{
		Item:           item,
		Description:    description,
		Barrels:        barrels,
		PricePerBarrel: result.Price,
		Account:        s.resolveAccount(result.Account, item),
		Total:          total,
		TotalIncVAT:    total.Mul(s.cfg.VATMultiplier).Round(2),
		Determined:     result.Matched,
		Trace:          result.Trace,
	}, nil
}

// resolveAccount picks the account code for a line. A rule-determined
// account wins; otherwise the contact's override, then the bill/swap/default
// fallbacks.
func (s *Service) resolveAccount(ruleAccount string, item pricing.SaleItem) string {
	if ruleAccount != pricing.UndefinedAccount && ruleAccount != "" {
		return ruleAccount
	}
	if item.Contact != nil && item.Contact.Account != "" && !item.Bill {
		return item.Contact.Account
	}
	if item.Bill {
		return s.cfg.BillAccount
	}
	if item.Product.Swap {
		return s.cfg.SwapAccount
	}
	return s.cfg.DefaultAccount
}

// Contact returns the local contact record for an upstream id, refreshing
// the cached display name and payment terms when stale or absent. A brand
// new contact defaults to the given band.
func (s *Service) Contact(ctx context.Context, externalID string, defaultBandID int64) (catalog.Contact, error) {
	contact, err := s.catalog.GetContactByExternalID(ctx, externalID)
	if err != nil && !errors.Is(err, httpx.ErrNotFound) {
		return catalog.Contact{}, err
	}
	fresh := err == nil && s.now().Sub(contact.Updated) < contactCacheTTL
	if fresh {
		return contact, nil
	}

	detail, lookupErr := s.books.GetContact(ctx, externalID)
	if lookupErr != nil {
		// A stale cache beats a hard failure when upstream is down.
		if err == nil {
			s.logger.Warn("contact refresh failed, using cached copy",
				slog.String("contact", externalID), slog.Any("error", lookupErr))
			return contact, nil
		}
		return catalog.Contact{}, wrapUpstream(lookupErr)
	}

	if errors.Is(err, httpx.ErrNotFound) {
		contact = catalog.Contact{ExternalID: externalID, PriceBandID: defaultBandID}
	}
	contact.Name = detail.Name
	contact.Updated = s.now()
	contact.BillTerms = detail.BillTerms
	contact.InvoiceTerms = detail.InvoiceTerms
	return s.catalog.UpsertContact(ctx, contact)
}

// Preview resolves and prices every line without touching the accounting
// service. Lines that fail to resolve are returned as errors in the
// preview rather than failing the whole request.
type Preview struct {
	Lines    []PricedLine
	Problems []string
	Total    decimal.Decimal
}

func (s *Service) Preview(ctx context.Context, bandID int64, bill bool, contact *catalog.Contact, lines []Line) (Preview, error) {
	rules, err := s.loadRules(ctx, bandID)
	if err != nil {
		return Preview{}, err
	}
	var preview Preview
	preview.Total = decimal.Zero
	for _, line := range lines {
		item, err := s.parser.ResolveExact(ctx, line.Description, bill, contact)
		if err != nil {
			var unknown *parse.UnknownItemError
			var ambiguous *parse.AmbiguousItemError
			if errors.As(err, &unknown) || errors.As(err, &ambiguous) {
				preview.Problems = append(preview.Problems, err.Error())
				continue
			}
			return Preview{}, err
		}
		priced, err := s.priceItem(rules, bandID, item, line.Note)
		if err != nil {
			return Preview{}, err
		}
		if !priced.Determined {
			preview.Problems = append(preview.Problems,
				fmt.Sprintf("no price rule matched %q; price shown as 0.00", line.Description))
		}
		preview.Lines = append(preview.Lines, priced)
		preview.Total = preview.Total.Add(priced.Total)
	}
	return preview, nil
}

// SendRequest is an invoice or bill ready for submission.
type SendRequest struct {
	ContactExternalID string
	BandID            int64
	Bill              bool
	Date              time.Time
	Reference         string
	Lines             []Line
}

// SendResult reports a successful submission.
type SendResult struct {
	InvoiceID string   `json:"invoice_id"`
	Warnings  []string `json:"warnings,omitempty"`
}

// Send assembles and submits an invoice. Every line must resolve to exactly
// one sale item; a line no price rule matched still goes out, at 0.00 and
// with a warning, so a gap in the rule set never blocks the invoice run.
// Products not yet known upstream are pushed first and marked sent only
// after the push succeeds. Submission is attempted exactly once, with an
// idempotency key so the upstream can reject an accidental duplicate; retry
// policy belongs to the caller.
func (s *Service) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	if len(req.Lines) == 0 {
		return SendResult{}, fmt.Errorf("%w: there is nothing to send", httpx.ErrValidation)
	}

	contact, err := s.Contact(ctx, req.ContactExternalID, req.BandID)
	if err != nil {
		return SendResult{}, err
	}

	rules, err := s.loadRules(ctx, req.BandID)
	if err != nil {
		return SendResult{}, err
	}

	var (
		priced      []PricedLine
		unsent      []catalog.Product
		unsentSeen  = map[int64]bool{}
		unsentIDs   []int64
		ruleMissing []string
	)
	for _, line := range req.Lines {
		item, err := s.parser.ResolveExact(ctx, line.Description, req.Bill, &contact)
		if err != nil {
			return SendResult{}, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
		}
		p, err := s.priceItem(rules, req.BandID, item, line.Note)
		if err != nil {
			return SendResult{}, err
		}
		if !p.Determined {
			ruleMissing = append(ruleMissing, line.Description)
		}
		if !item.Product.Sent && !unsentSeen[item.Product.ID] {
			unsentSeen[item.Product.ID] = true
			unsent = append(unsent, item.Product)
			unsentIDs = append(unsentIDs, item.Product.ID)
		}
		priced = append(priced, p)
	}
	var warnings []string
	for _, description := range ruleMissing {
		s.logger.Warn("no price rule matched, sending at 0.00",
			slog.String("line", description),
			slog.String("contact", req.ContactExternalID))
		warnings = append(warnings, fmt.Sprintf("no price rule matched %q; sent at 0.00", description))
	}

	if len(unsent) > 0 {
		if err := s.books.UpdateProducts(ctx, unsent); err != nil {
			return SendResult{}, wrapUpstream(err)
		}
		if err := s.catalog.MarkProductsSent(ctx, unsentIDs); err != nil {
			return SendResult{}, err
		}
	}

	date := req.Date
	if date.IsZero() {
		date = s.now()
	}

	inv := books.Invoice{
		ContactID:      req.ContactExternalID,
		Bill:           req.Bill,
		Date:           date,
		Reference:      req.Reference,
		IdempotencyKey: uuid.NewString(),
	}
	if terms := contactTerms(contact, req.Bill); terms != nil {
		if due, ok := CalcDue(date, terms.Day, terms.Policy); ok {
			inv.DueDate = &due
		}
	}
	for _, p := range priced {
		inv.Lines = append(inv.Lines, books.InvoiceLine{
			Description: p.Description,
			ItemCode:    p.Item.Product.Code,
			Quantity:    p.Barrels,
			AccountCode: p.Account,
			UnitAmount:  p.PricePerBarrel,
		})
	}

	invoiceID, upstreamWarnings, err := s.books.SendInvoice(ctx, inv)
	if err != nil {
		return SendResult{}, wrapUpstream(err)
	}
	s.logger.Info("invoice sent",
		slog.String("invoice_id", invoiceID),
		slog.String("contact", req.ContactExternalID),
		slog.Bool("bill", req.Bill),
		slog.Int("lines", len(inv.Lines)))
	return SendResult{InvoiceID: invoiceID, Warnings: append(warnings, upstreamWarnings...)}, nil
}

// Completions parses a partial description loosely and returns suggestion
// strings for autocomplete.
func (s *Service) Completions(ctx context.Context, q string, bill bool) ([]string, error) {
	candidates, err := s.parser.ParseItem(ctx, q, false, bill, nil)
	if err != nil {
		return nil, err
	}
	suggestions := make([]string, 0, len(candidates))
	for _, c := range candidates {
		suggestions = append(suggestions, parse.Describe(c))
	}
	return suggestions, nil
}

// ItemDetails prices a single fully-specified line for live display.
func (s *Service) ItemDetails(ctx context.Context, bandID int64, q string, bill bool) (PricedLine, error) {
	if _, err := s.catalog.GetPriceBand(ctx, bandID); err != nil {
		return PricedLine{}, err
	}
	item, err := s.parser.ResolveExact(ctx, q, bill, nil)
	if err != nil {
		return PricedLine{}, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	rules, err := s.loadRules(ctx, bandID)
	if err != nil {
		return PricedLine{}, err
	}
	return s.priceItem(rules, bandID, item, "")
}

func contactTerms(contact catalog.Contact, bill bool) *catalog.PaymentTerms {
	if bill {
		return contact.BillTerms
	}
	return contact.InvoiceTerms
}

func wrapUpstream(err error) error {
	var upstreamErr *books.Error
	if errors.As(err, &upstreamErr) {
		return fmt.Errorf("%w: %w", httpx.ErrUpstream, err)
	}
	return err
}
