package catalog

import "github.com/shopspring/decimal"

// ProductForm is the create/update body for products.
type ProductForm struct {
	Code   string          `json:"code" validate:"required,max=30"`
	Name   string          `json:"name" validate:"required,max=80"`
	ABV    decimal.Decimal `json:"abv"`
	TypeID int64           `json:"type_id" validate:"required,gt=0"`
	Swap   bool            `json:"swap"`
}

func (f ProductForm) model() Product {
	return Product{
		Code:   f.Code,
		Name:   f.Name,
		ABV:    f.ABV.Round(1),
		TypeID: f.TypeID,
		Swap:   f.Swap,
	}
}

// UnitForm is the create body for units.
type UnitForm struct {
	Name   string          `json:"name" validate:"required,max=40"`
	Size   decimal.Decimal `json:"size" validate:"required"`
	TypeID int64           `json:"type_id" validate:"required,gt=0"`
}

// NameForm covers the entities that are just a unique name.
type NameForm struct {
	Name string `json:"name" validate:"required,max=80"`
}

// ProgramRuleForm is the create body for program rules.
type ProgramRuleForm struct {
	Name string `json:"name" validate:"required,max=80"`
	Code string `json:"code" validate:"required,max=40"`
}

// PriceRuleForm is the create/update body for price rules. Absent criteria
// fields are wildcards.
type PriceRuleForm struct {
	Priority      int                 `json:"priority"`
	BandID        *int64              `json:"band_id"`
	TypeID        *int64              `json:"type_id"`
	ABV           *decimal.Decimal    `json:"abv"`
	Swap          *bool               `json:"swap"`
	Bill          *bool               `json:"bill"`
	ProductID     *int64              `json:"product_id"`
	UnitID        *int64              `json:"unit_id"`
	ContactID     *int64              `json:"contact_id"`
	Delta         decimal.Decimal     `json:"delta"`
	AbsolutePrice decimal.NullDecimal `json:"absolute_price"`
	ProgramRuleID *int64              `json:"program_rule_id"`
	Account       string              `json:"account" validate:"max=10"`
	Comment       string              `json:"comment" validate:"max=200"`
}

func (f PriceRuleForm) model() PriceRule {
	return PriceRule{
		Priority:      f.Priority,
		BandID:        f.BandID,
		TypeID:        f.TypeID,
		ABV:           f.ABV,
		Swap:          f.Swap,
		Bill:          f.Bill,
		ProductID:     f.ProductID,
		UnitID:        f.UnitID,
		ContactID:     f.ContactID,
		Delta:         f.Delta,
		AbsolutePrice: f.AbsolutePrice,
		ProgramRuleID: f.ProgramRuleID,
		Account:       f.Account,
		Comment:       f.Comment,
	}
}
