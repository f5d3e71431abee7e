package pricing

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// UndefinedAccount is the account reported when no rule set one. A result
// carrying it together with a zero price means "price not determined", and
// callers are expected to warn: a zero price alone is indistinguishable from
// a legitimately comped item.
const UndefinedAccount = "undefined"

// DefaultVATMultiplier is the UK standard rate multiplier.
var DefaultVATMultiplier = decimal.RequireFromString("1.2")

// Config carries the tax and account settings the evaluator needs. It is
// passed in at construction rather than read from globals so differing
// regimes can coexist.
type Config struct {
	VATMultiplier decimal.Decimal
	// Strict makes unrecognized program codes an error instead of the
	// default silent no-op.
	Strict bool
}

// UnrecognizedProgramError is returned in strict mode when a matched rule
// carries a program code that did not resolve.
type UnrecognizedProgramError struct {
	RuleID int64
	Code   string
}

func (e *UnrecognizedProgramError) Error() string {
	return fmt.Sprintf("pricing: rule %d has unrecognized program code %q", e.RuleID, e.Code)
}

// Step records one rule application: the rule and the price/account state
// after it ran. The sequence of steps is the audit trace.
type Step struct {
	Rule    Rule
	Price   decimal.Decimal
	Account string
}

// Result is the outcome of evaluating a sale item against a rule set.
type Result struct {
	Price   decimal.Decimal
	Account string
	Matched bool
	Trace   []Step
}

// Evaluator folds matching price rules over sale items.
type Evaluator struct {
	cfg Config
}

// NewEvaluator constructs an evaluator. A zero VAT multiplier falls back to
// DefaultVATMultiplier.
func NewEvaluator(cfg Config) *Evaluator {
	if cfg.VATMultiplier.IsZero() {
		cfg.VATMultiplier = DefaultVATMultiplier
	}
	return &Evaluator{cfg: cfg}
}

// ApplyRulesFor selects every rule matching the band and item, orders them by
// priority ascending (rule ID breaks ties, so evaluation is deterministic),
// and folds their actions from a starting state of price 0.00 and account
// "undefined". No matching rules is not an error: the starting state is
// returned with Matched false.
func (e *Evaluator) ApplyRulesFor(rules []Rule, bandID int64, item SaleItem) (Result, error) {
	matched := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.matches(bandID, item) {
			matched = append(matched, r)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority < matched[j].Priority
		}
		return matched[i].ID < matched[j].ID
	})

	price := decimal.Zero
	account := UndefinedAccount
	trace := make([]Step, 0, len(matched))
	for _, r := range matched {
		var err error
		price, account, err = e.applyRule(r, item, price, account)
		if err != nil {
			return Result{}, err
		}
		trace = append(trace, Step{Rule: r, Price: price, Account: account})
	}

	return Result{
		Price:   price,
		Account: account,
		Matched: len(matched) > 0,
		Trace:   trace,
	}, nil
}

// applyRule runs one rule's actions. The order is a load-bearing contract:
// additive delta, then absolute override, then program rule, then account
// override.
func (e *Evaluator) applyRule(r Rule, item SaleItem, price decimal.Decimal, account string) (decimal.Decimal, string, error) {
	if !r.Delta.IsZero() {
		price = price.Add(r.Delta)
	}
	if r.Absolute.Valid {
		price = r.Absolute.Decimal
	}
	switch r.Program.Kind {
	case ProgramNone:
	case ProgramUnrecognized:
		if e.cfg.Strict {
			return price, account, &UnrecognizedProgramError{RuleID: r.ID, Code: r.Program.Code}
		}
	default:
		price, account = r.Program.Apply(e.cfg, item, price, account)
	}
	if r.Account != "" {
		account = r.Account
	}
	return price, account, nil
}
