package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/oakhaven-brewing/invoicer/internal/catalog"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func firkinOfBitter() SaleItem {
	return SaleItem{
		Quantity: 2,
		Unit:     catalog.Unit{ID: 3, Name: "firkin", Size: dec("0.25"), TypeID: 1},
		Product:  catalog.Product{ID: 7, Code: "BB", Name: "Best Bitter", ABV: dec("4.2"), TypeID: 1},
	}
}

func TestApplyRulesForNoMatches(t *testing.T) {
	ev := NewEvaluator(Config{})
	result, err := ev.ApplyRulesFor(nil, 1, firkinOfBitter())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Matched {
		t.Fatalf("expected Matched false for empty rule set")
	}
	if !result.Price.IsZero() {
		t.Fatalf("expected price 0.00 got %s", result.Price)
	}
	if result.Account != UndefinedAccount {
		t.Fatalf("expected account %q got %q", UndefinedAccount, result.Account)
	}
}

func TestApplyRulesForWildcardMatchesEverything(t *testing.T) {
	ev := NewEvaluator(Config{})
	rules := []Rule{{ID: 1, Absolute: decimal.NewNullDecimal(dec("90.00")), Account: "200"}}
	result, err := ev.ApplyRulesFor(rules, 42, firkinOfBitter())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Matched {
		t.Fatalf("expected all-wildcard rule to match any item")
	}
	if !result.Price.Equal(dec("90.00")) {
		t.Fatalf("expected price 90.00 got %s", result.Price)
	}
	if result.Account != "200" {
		t.Fatalf("expected account 200 got %q", result.Account)
	}
}

func TestApplyRulesForPriorityOrder(t *testing.T) {
	ev := NewEvaluator(Config{})
	// Listed out of order; the fold must sort by priority, with the later
	// rule winning the account.
	rules := []Rule{
		{ID: 2, Priority: 10, Delta: dec("-5.00"), Account: "210"},
		{ID: 1, Priority: 0, Absolute: decimal.NewNullDecimal(dec("100.00")), Account: "200"},
	}
	result, err := ev.ApplyRulesFor(rules, 1, firkinOfBitter())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Price.Equal(dec("95.00")) {
		t.Fatalf("expected price 95.00 got %s", result.Price)
	}
	if result.Account != "210" {
		t.Fatalf("expected account 210 got %q", result.Account)
	}
	if len(result.Trace) != 2 {
		t.Fatalf("expected two trace steps got %d", len(result.Trace))
	}
	if result.Trace[0].Rule.ID != 1 || result.Trace[1].Rule.ID != 2 {
		t.Fatalf("trace out of priority order: %d then %d",
			result.Trace[0].Rule.ID, result.Trace[1].Rule.ID)
	}
}

func TestApplyRulesForEqualPriorityBreaksTiesByID(t *testing.T) {
	ev := NewEvaluator(Config{})
	rules := []Rule{
		{ID: 9, Priority: 5, Absolute: decimal.NewNullDecimal(dec("80.00"))},
		{ID: 4, Priority: 5, Absolute: decimal.NewNullDecimal(dec("70.00"))},
	}
	result, err := ev.ApplyRulesFor(rules, 1, firkinOfBitter())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Price.Equal(dec("80.00")) {
		t.Fatalf("expected the higher-ID rule to apply last, got price %s", result.Price)
	}
}

func TestApplyRulesForCriteriaFilter(t *testing.T) {
	ev := NewEvaluator(Config{})
	item := firkinOfBitter()
	rules := []Rule{
		{ID: 1, Band: Equals[int64](1), Absolute: decimal.NewNullDecimal(dec("100.00"))},
		{ID: 2, Band: Equals[int64](2), Delta: dec("50.00")},
		{ID: 3, Type: Equals[int64](99), Delta: dec("50.00")},
		{ID: 4, ABV: EqualsDecimal(dec("5.0")), Delta: dec("50.00")},
		{ID: 5, Product: Equals[int64](item.Product.ID), Delta: dec("2.50")},
	}
	result, err := ev.ApplyRulesFor(rules, 1, item)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Price.Equal(dec("102.50")) {
		t.Fatalf("expected price 102.50 got %s", result.Price)
	}
}

func TestApplyRulesForContactCriterionNeedsContact(t *testing.T) {
	ev := NewEvaluator(Config{})
	rules := []Rule{{ID: 1, Contact: Equals[int64](12), Absolute: decimal.NewNullDecimal(dec("1.00"))}}

	item := firkinOfBitter()
	result, err := ev.ApplyRulesFor(rules, 1, item)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Matched {
		t.Fatalf("contact-constrained rule must not match an item with no contact")
	}

	item.Contact = &catalog.Contact{ID: 12}
	result, err = ev.ApplyRulesFor(rules, 1, item)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Matched {
		t.Fatalf("expected rule to match once the contact is attached")
	}
}

func TestApplyRuleActionOrder(t *testing.T) {
	ev := NewEvaluator(Config{})
	// Delta applies before the absolute override, so it is swallowed; the
	// program then runs on the overridden price; the account lands last.
	rules := []Rule{{
		ID:       1,
		Delta:    dec("999.00"),
		Absolute: decimal.NewNullDecimal(dec("10.00")),
		Program:  ResolveProgram("multiply-by-1.2"),
		Account:  "201",
	}}
	result, err := ev.ApplyRulesFor(rules, 1, firkinOfBitter())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Price.Equal(dec("12.00")) {
		t.Fatalf("expected price 12.00 got %s", result.Price)
	}
	if result.Account != "201" {
		t.Fatalf("expected account 201 got %q", result.Account)
	}
}

func TestApplyRulesForAbsoluteZeroIsAnOverride(t *testing.T) {
	ev := NewEvaluator(Config{})
	rules := []Rule{
		{ID: 1, Absolute: decimal.NewNullDecimal(dec("50.00"))},
		{ID: 2, Priority: 1, Absolute: decimal.NewNullDecimal(decimal.Zero)},
	}
	result, err := ev.ApplyRulesFor(rules, 1, firkinOfBitter())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Price.IsZero() {
		t.Fatalf("expected an explicit zero override to stick, got %s", result.Price)
	}
}

func TestApplyRulesForUnrecognizedProgram(t *testing.T) {
	rules := []Rule{{
		ID:       8,
		Absolute: decimal.NewNullDecimal(dec("10.00")),
		Program:  ResolveProgram("multiply-by-lots"),
		Account:  "200",
	}}

	lax := NewEvaluator(Config{})
	result, err := lax.ApplyRulesFor(rules, 1, firkinOfBitter())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Price.Equal(dec("10.00")) || result.Account != "200" {
		t.Fatalf("unrecognized program must be a no-op, got %s / %q", result.Price, result.Account)
	}

	strict := NewEvaluator(Config{Strict: true})
	_, err = strict.ApplyRulesFor(rules, 1, firkinOfBitter())
	var progErr *UnrecognizedProgramError
	if !errors.As(err, &progErr) {
		t.Fatalf("expected UnrecognizedProgramError in strict mode, got %v", err)
	}
	if progErr.RuleID != 8 || progErr.Code != "multiply-by-lots" {
		t.Fatalf("unexpected error detail: %+v", progErr)
	}
}

func TestRuleFromRecordDanglingProgramReference(t *testing.T) {
	missing := int64(404)
	rule := RuleFromRecord(catalog.PriceRule{ID: 1, ProgramRuleID: &missing}, nil)
	if rule.Program.Kind != ProgramUnrecognized {
		t.Fatalf("expected dangling program reference to resolve as unrecognized, got %v", rule.Program.Kind)
	}
}

func TestRuleFromRecordCriteria(t *testing.T) {
	bandID := int64(2)
	abv := dec("4.2")
	swap := true
	rule := RuleFromRecord(catalog.PriceRule{
		ID:     3,
		BandID: &bandID,
		ABV:    &abv,
		Swap:   &swap,
	}, nil)

	if rule.Band.IsAny() || !rule.Band.Matches(2) {
		t.Fatalf("band criterion not carried over")
	}
	if !rule.Band.Matches(2) || rule.Band.Matches(3) {
		t.Fatalf("band criterion matches wrong values")
	}
	if rule.ABV.IsAny() || !rule.ABV.Matches(dec("4.20")) {
		t.Fatalf("abv criterion must compare by value, not representation")
	}
	if !rule.Type.IsAny() || !rule.Contact.IsAny() {
		t.Fatalf("unset criteria must stay wildcards")
	}
	if !rule.Swap.Matches(true) || rule.Swap.Matches(false) {
		t.Fatalf("swap criterion not carried over")
	}
}
