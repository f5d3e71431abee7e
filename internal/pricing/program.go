package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ProgramKind enumerates the built-in price adjustment functions. The set is
// closed: codes are resolved once at rule load time, and anything that does
// not resolve becomes ProgramUnrecognized, which deliberately passes price
// and account through unchanged so a mistyped code cannot break existing
// invoices. Evaluators running in strict mode reject unrecognized programs
// instead.
type ProgramKind int

const (
	// ProgramNone means no program is attached to the rule.
	ProgramNone ProgramKind = iota
	// ProgramUnrecognized is the documented silent no-op for unknown codes.
	ProgramUnrecognized
	// ProgramVATRoundUpPound rounds the VAT-inclusive whole-item price up
	// to the next whole pound, expressed as an ex-VAT per-barrel adjustment.
	ProgramVATRoundUpPound
	// ProgramVATRoundUp50p is ProgramVATRoundUpPound with a 50p step.
	ProgramVATRoundUp50p
	// ProgramBarrelRoundUpPound rounds the per-barrel price itself up to
	// the next whole pound. No VAT involved.
	ProgramBarrelRoundUpPound
	// ProgramItemRoundUpPound rounds the ex-VAT whole-item price up to the
	// next whole pound, converted back to a per-barrel price.
	ProgramItemRoundUpPound
	// ProgramItemRoundUp50p is ProgramItemRoundUpPound with a 50p step.
	ProgramItemRoundUp50p
	// ProgramMultiplyByABV multiplies the price by the product's ABV.
	ProgramMultiplyByABV
	// ProgramMultiplyBy multiplies the price by a fixed factor taken from
	// the code suffix, eg. "multiply-by-1.2".
	ProgramMultiplyBy
)

const multiplyByPrefix = "multiply-by-"

var (
	one      = decimal.NewFromInt(1)
	fiftyPee = decimal.RequireFromString("0.50")
	twoDP    = int32(2)
)

// Program is a resolved program rule. The zero value is ProgramNone.
type Program struct {
	Kind   ProgramKind
	Factor decimal.Decimal
	Code   string
}

// ResolveProgram maps a stored program code to its Program. Unknown codes,
// and multiply-by codes whose factor does not parse as a decimal, resolve to
// ProgramUnrecognized.
func ResolveProgram(code string) Program {
	p := Program{Code: code}
	switch code {
	case "":
		p.Kind = ProgramNone
	case "vat-roundup-pound":
		p.Kind = ProgramVATRoundUpPound
	case "vat-roundup-50p":
		p.Kind = ProgramVATRoundUp50p
	case "barrel-roundup-pound":
		p.Kind = ProgramBarrelRoundUpPound
	case "item-roundup-pound":
		p.Kind = ProgramItemRoundUpPound
	case "item-roundup-50p":
		p.Kind = ProgramItemRoundUp50p
	case "multiply-by-abv":
		p.Kind = ProgramMultiplyByABV
	default:
		if strings.HasPrefix(code, multiplyByPrefix) {
			factor, err := decimal.NewFromString(strings.TrimPrefix(code, multiplyByPrefix))
			if err == nil {
				p.Kind = ProgramMultiplyBy
				p.Factor = factor
				return p
			}
		}
		p.Kind = ProgramUnrecognized
	}
	return p
}

// Apply runs the program over the current fold state and returns the new
// price and account.
func (p Program) Apply(cfg Config, item SaleItem, price decimal.Decimal, account string) (decimal.Decimal, string) {
	switch p.Kind {
	case ProgramVATRoundUpPound:
		return vatRoundUp(cfg, item, price, one), account
	case ProgramVATRoundUp50p:
		return vatRoundUp(cfg, item, price, fiftyPee), account
	case ProgramBarrelRoundUpPound:
		return roundUpToMultiple(price, one), account
	case ProgramItemRoundUpPound:
		return itemRoundUp(item, price, one), account
	case ProgramItemRoundUp50p:
		return itemRoundUp(item, price, fiftyPee), account
	case ProgramMultiplyByABV:
		return price.Mul(item.Product.ABV).Round(twoDP), account
	case ProgramMultiplyBy:
		return price.Mul(p.Factor).Round(twoDP), account
	default:
		return price, account
	}
}

// roundUpToMultiple rounds amount up to the next multiple of multiple.
// The result is always >= amount and less than one multiple above it.
func roundUpToMultiple(amount, multiple decimal.Decimal) decimal.Decimal {
	remainder := amount.Mod(multiple)
	if remainder.IsZero() {
		return amount
	}
	// Mod keeps the dividend's sign, so a negative amount leaves a negative
	// remainder; normalise it or the result overshoots by a whole step.
	if remainder.Sign() < 0 {
		remainder = remainder.Add(multiple)
	}
	return amount.Add(multiple.Sub(remainder))
}

// vatRoundUp adjusts the per-barrel price so the VAT-inclusive price of one
// sold unit lands on a whole step, returning the new per-barrel price. The
// adjustment is computed inc-VAT, converted back to ex-VAT per barrel, and
// rounded to pence.
func vatRoundUp(cfg Config, item SaleItem, price, step decimal.Decimal) decimal.Decimal {
	volume := item.Unit.Size
	incVAT := volume.Mul(price).Mul(cfg.VATMultiplier)
	desired := roundUpToMultiple(incVAT, step)
	differenceIncVAT := desired.Sub(incVAT)
	differenceExVAT := differenceIncVAT.Div(cfg.VATMultiplier)
	adjustment := differenceExVAT.Div(volume).Round(twoDP)
	return price.Add(adjustment)
}

// itemRoundUp rounds the ex-VAT price of one sold unit up to the next step
// and converts back to a per-barrel price.
func itemRoundUp(item SaleItem, price, step decimal.Decimal) decimal.Decimal {
	volume := item.Unit.Size
	whole := price.Mul(volume)
	desired := roundUpToMultiple(whole, step)
	return desired.Div(volume).Round(twoDP)
}
