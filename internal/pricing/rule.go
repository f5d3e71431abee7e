// Package pricing implements the declarative price rule engine: a set of
// criteria-matched, priority-ordered rules folded over a sale item to
// produce a per-barrel price and an accounting code.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/oakhaven-brewing/invoicer/internal/catalog"
)

// Criterion is either a wildcard or an equality constraint on a single
// attribute. The zero value is the wildcard.
type Criterion[T comparable] struct {
	set   bool
	value T
}

// Any returns the wildcard criterion.
func Any[T comparable]() Criterion[T] {
	return Criterion[T]{}
}

// Equals returns a criterion constraining the attribute to v.
func Equals[T comparable](v T) Criterion[T] {
	return Criterion[T]{set: true, value: v}
}

// Matches reports whether v satisfies the criterion.
func (c Criterion[T]) Matches(v T) bool {
	return !c.set || c.value == v
}

// IsAny reports whether the criterion is a wildcard.
func (c Criterion[T]) IsAny() bool {
	return !c.set
}

// Value returns the constrained value and whether one is set.
func (c Criterion[T]) Value() (T, bool) {
	return c.value, c.set
}

// DecimalCriterion is a Criterion over decimal values, which cannot be
// compared with ==.
type DecimalCriterion struct {
	set   bool
	value decimal.Decimal
}

// AnyDecimal returns the wildcard decimal criterion.
func AnyDecimal() DecimalCriterion {
	return DecimalCriterion{}
}

// EqualsDecimal returns a criterion constraining the attribute to v.
func EqualsDecimal(v decimal.Decimal) DecimalCriterion {
	return DecimalCriterion{set: true, value: v}
}

// Matches reports whether v satisfies the criterion.
func (c DecimalCriterion) Matches(v decimal.Decimal) bool {
	return !c.set || c.value.Equal(v)
}

// IsAny reports whether the criterion is a wildcard.
func (c DecimalCriterion) IsAny() bool {
	return !c.set
}

// SaleItem is a resolved (quantity, unit, product) triple being priced.
type SaleItem struct {
	Quantity int
	Unit     catalog.Unit
	Product  catalog.Product
	Bill     bool
	Contact  *catalog.Contact
}

// Barrels returns the total canonical volume of the item.
func (s SaleItem) Barrels() decimal.Decimal {
	return s.Unit.Size.Mul(decimal.NewFromInt(int64(s.Quantity)))
}

// Rule is a pricing rule ready for evaluation: criteria made explicit and
// the program code resolved. A rule with no criteria matches everything.
type Rule struct {
	ID       int64
	Priority int

	Band    Criterion[int64]
	Type    Criterion[int64]
	ABV     DecimalCriterion
	Swap    Criterion[bool]
	Bill    Criterion[bool]
	Product Criterion[int64]
	Unit    Criterion[int64]
	Contact Criterion[int64]

	// Actions, applied in this order.
	Delta    decimal.Decimal
	Absolute decimal.NullDecimal
	Program  Program
	Account  string
	Comment  string
}

// matches reports whether every criterion is either a wildcard or equal to
// the corresponding attribute of the item.
func (r Rule) matches(bandID int64, item SaleItem) bool {
	if !r.Band.Matches(bandID) {
		return false
	}
	if !r.Type.Matches(item.Product.TypeID) {
		return false
	}
	if !r.ABV.Matches(item.Product.ABV) {
		return false
	}
	if !r.Swap.Matches(item.Product.Swap) {
		return false
	}
	if !r.Bill.Matches(item.Bill) {
		return false
	}
	if !r.Product.Matches(item.Product.ID) {
		return false
	}
	if !r.Unit.Matches(item.Unit.ID) {
		return false
	}
	if !r.Contact.IsAny() {
		if item.Contact == nil {
			return false
		}
		if !r.Contact.Matches(item.Contact.ID) {
			return false
		}
	}
	return true
}

// RuleFromRecord converts a stored price rule into its evaluation form,
// resolving the program code once so the hot path never parses strings.
// programs maps program rule IDs to their stored records.
func RuleFromRecord(rec catalog.PriceRule, programs map[int64]catalog.ProgramRule) Rule {
	r := Rule{
		ID:       rec.ID,
		Priority: rec.Priority,
		Delta:    rec.Delta,
		Absolute: rec.AbsolutePrice,
		Account:  rec.Account,
		Comment:  rec.Comment,
	}
	if rec.BandID != nil {
		r.Band = Equals(*rec.BandID)
	}
	if rec.TypeID != nil {
		r.Type = Equals(*rec.TypeID)
	}
	if rec.ABV != nil {
		r.ABV = EqualsDecimal(*rec.ABV)
	}
	if rec.Swap != nil {
		r.Swap = Equals(*rec.Swap)
	}
	if rec.Bill != nil {
		r.Bill = Equals(*rec.Bill)
	}
	if rec.ProductID != nil {
		r.Product = Equals(*rec.ProductID)
	}
	if rec.UnitID != nil {
		r.Unit = Equals(*rec.UnitID)
	}
	if rec.ContactID != nil {
		r.Contact = Equals(*rec.ContactID)
	}
	if rec.ProgramRuleID != nil {
		if pr, ok := programs[*rec.ProgramRuleID]; ok {
			r.Program = ResolveProgram(pr.Code)
		} else {
			// Dangling program reference behaves like an unknown code.
			r.Program = Program{Kind: ProgramUnrecognized}
		}
	}
	return r
}

// RulesFromRecords converts a batch of stored rules.
func RulesFromRecords(recs []catalog.PriceRule, programs map[int64]catalog.ProgramRule) []Rule {
	rules := make([]Rule, 0, len(recs))
	for _, rec := range recs {
		rules = append(rules, RuleFromRecord(rec, programs))
	}
	return rules
}
