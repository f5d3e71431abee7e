package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductType identifies a class of goods, eg. cask ale or craft keg.
type ProductType struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Unit defines how many canonical barrels one sold item represents.
// Size must be greater than zero.
type Unit struct {
	ID     int64           `json:"id"`
	Name   string          `json:"name"`
	Size   decimal.Decimal `json:"size"`
	TypeID int64           `json:"type_id"`
}

// Product is a sellable item known to the accounting system by its code.
// Sent records whether the current code/name/abv have been pushed upstream;
// it flips back to false whenever any of them change.
type Product struct {
	ID     int64           `json:"id"`
	Code   string          `json:"code"`
	Name   string          `json:"name"`
	ABV    decimal.Decimal `json:"abv"`
	TypeID int64           `json:"type_id"`
	Swap   bool            `json:"swap"`
	Sent   bool            `json:"sent"`
}

// PriceBand is a named pricing context, eg. "Trade" or "Private sale".
type PriceBand struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// DueDatePolicy mirrors the payment term types used by the accounting system.
type DueDatePolicy string

const (
	PolicyDaysAfterBillDate  DueDatePolicy = "DAYSAFTERBILLDATE"
	PolicyDaysAfterBillMonth DueDatePolicy = "DAYSAFTERBILLMONTH"
	PolicyOfCurrentMonth     DueDatePolicy = "OFCURRENTMONTH"
	PolicyOfFollowingMonth   DueDatePolicy = "OFFOLLOWINGMONTH"
)

// PaymentTerms is an optional day-of-month/offset rule attached to a contact.
type PaymentTerms struct {
	Day    int           `json:"day"`
	Policy DueDatePolicy `json:"policy"`
}

// Contact carries the local extras for an upstream accounting contact.
// Name is only a cache of the upstream display name; Updated is when the
// cache was last refreshed.
type Contact struct {
	ID           int64         `json:"id"`
	ExternalID   string        `json:"external_id"`
	PriceBandID  int64         `json:"price_band_id"`
	Account      string        `json:"account"`
	Name         string        `json:"name"`
	Updated      time.Time     `json:"updated"`
	BillTerms    *PaymentTerms `json:"bill_terms,omitempty"`
	InvoiceTerms *PaymentTerms `json:"invoice_terms,omitempty"`
}

// ProgramRule names a built-in price adjustment function by its code,
// eg. "vat-roundup-pound" or "multiply-by-1.2".
type ProgramRule struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// PriceRule is the stored form of a pricing rule. Criteria columns are
// nullable in the database; nil means the criterion is a wildcard. The
// pricing package converts rows into its explicit Any/Equals form.
type PriceRule struct {
	ID            int64               `json:"id"`
	Priority      int                 `json:"priority"`
	BandID        *int64              `json:"band_id,omitempty"`
	TypeID        *int64              `json:"type_id,omitempty"`
	ABV           *decimal.Decimal    `json:"abv,omitempty"`
	Swap          *bool               `json:"swap,omitempty"`
	Bill          *bool               `json:"bill,omitempty"`
	ProductID     *int64              `json:"product_id,omitempty"`
	UnitID        *int64              `json:"unit_id,omitempty"`
	ContactID     *int64              `json:"contact_id,omitempty"`
	Delta         decimal.Decimal     `json:"delta"`
	AbsolutePrice decimal.NullDecimal `json:"absolute_price"`
	ProgramRuleID *int64              `json:"program_rule_id,omitempty"`
	Account       string              `json:"account"`
	Comment       string              `json:"comment"`
}
