package billing

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Display amounts are formatted for the UI with en-GB digit grouping; the
// raw decimals travel alongside for anything that computes.
var displayPrinter = message.NewPrinter(language.BritishEnglish)

func formatAmount(d decimal.Decimal) string {
	f, _ := d.Round(2).Float64()
	return displayPrinter.Sprintf("%.2f", f)
}

// PreviewForm is the request body for invoice previews and submissions.
type PreviewForm struct {
	ContactID string `json:"contact_id" validate:"required"`
	BandID    int64  `json:"band_id" validate:"required,gt=0"`
	Bill      bool   `json:"bill"`
	Lines     []Line `json:"lines" validate:"min=1,dive"`
}

// SendForm extends PreviewForm with submission-only fields. Date is
// ISO-8601 (YYYY-MM-DD) and defaults to today.
type SendForm struct {
	PreviewForm
	Date      string `json:"date"`
	Reference string `json:"reference"`
}

// TraceEntryDTO is one audit step of the price fold.
type TraceEntryDTO struct {
	RuleID  int64  `json:"rule_id"`
	Comment string `json:"comment,omitempty"`
	Price   string `json:"price"`
	Account string `json:"account"`
}

// PricedLineDTO is the wire form of a priced line.
type PricedLineDTO struct {
	Description    string          `json:"description"`
	ProductCode    string          `json:"product_code"`
	ABV            string          `json:"abv"`
	Barrels        string          `json:"barrels"`
	PricePerBarrel string          `json:"price_per_barrel"`
	Account        string          `json:"account"`
	Total          string          `json:"total"`
	TotalIncVAT    string          `json:"total_inc_vat"`
	Determined     bool            `json:"determined"`
	Trace          []TraceEntryDTO `json:"trace"`
}

// PreviewDTO is the wire form of a preview.
type PreviewDTO struct {
	Lines    []PricedLineDTO `json:"lines"`
	Problems []string        `json:"problems,omitempty"`
	Total    string          `json:"total"`
}

func pricedLineDTO(p PricedLine) PricedLineDTO {
	dto := PricedLineDTO{
		Description:    p.Description,
		ProductCode:    p.Item.Product.Code,
		ABV:            p.Item.Product.ABV.StringFixed(1) + "%",
		Barrels:        p.Barrels.String(),
		PricePerBarrel: formatAmount(p.PricePerBarrel),
		Account:        p.Account,
		Total:          formatAmount(p.Total),
		TotalIncVAT:    formatAmount(p.TotalIncVAT),
		Determined:     p.Determined,
	}
	for _, step := range p.Trace {
		dto.Trace = append(dto.Trace, TraceEntryDTO{
			RuleID:  step.Rule.ID,
			Comment: step.Rule.Comment,
			Price:   formatAmount(step.Price),
			Account: step.Account,
		})
	}
	return dto
}

func previewDTO(p Preview) PreviewDTO {
	dto := PreviewDTO{
		Problems: p.Problems,
		Total:    formatAmount(p.Total),
	}
	for _, line := range p.Lines {
		dto.Lines = append(dto.Lines, pricedLineDTO(line))
	}
	return dto
}
