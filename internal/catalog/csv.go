package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"github.com/oakhaven-brewing/invoicer/internal/platform/httpx"
)

// GridCommentPrefix marks price rules created by a grid import, so a
// re-import can replace them without touching hand-written rules.
const GridCommentPrefix = "grid:"

// GridPriority is the priority assigned to imported base-price rules. It
// sits below hand-written adjustments, which conventionally start at 100.
const GridPriority = 0

// ImportReport summarises a grid import.
type ImportReport struct {
	RulesCreated int      `json:"rules_created"`
	Warnings     []string `json:"warnings,omitempty"`
}

// ImportPriceGrid replaces a band's imported base prices from a CSV grid.
// The header row is an ignored corner cell followed by product type names; a
// blank header cell ends the type columns. Each body row is an ABV followed
// by absolute per-barrel prices per type; empty cells create no rule, and
// rows whose first cell is not an ABV are skipped with a warning.
func (s *Service) ImportPriceGrid(ctx context.Context, bandID int64, r io.Reader) (ImportReport, error) {
	var report ImportReport

	band, err := s.repo.GetPriceBand(ctx, bandID)
	if err != nil {
		return report, err
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return report, fmt.Errorf("%w: cannot read header row", httpx.ErrValidation)
	}

	var types []ProductType
	for _, name := range header[1:] {
		if name == "" {
			break
		}
		ptype, err := s.findProductType(ctx, name)
		if err != nil {
			return report, fmt.Errorf("%w: product type %q does not exist", httpx.ErrValidation, name)
		}
		types = append(types, ptype)
	}
	if len(types) == 0 {
		return report, fmt.Errorf("%w: no product type columns in file", httpx.ErrValidation)
	}

	var rules []PriceRule
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return report, fmt.Errorf("%w: line %d: %v", httpx.ErrValidation, line, err)
		}
		if len(row) == 0 || row[0] == "" {
			continue
		}
		abv, err := decimal.NewFromString(row[0])
		if err != nil {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("line %d: %q is not an ABV, row skipped", line, row[0]))
			continue
		}
		abv = abv.Round(1)
		for i, ptype := range types {
			if i+1 >= len(row) || row[i+1] == "" {
				continue
			}
			price, err := decimal.NewFromString(row[i+1])
			if err != nil {
				report.Warnings = append(report.Warnings,
					fmt.Sprintf("line %d: bad price %q for %s, cell skipped", line, row[i+1], ptype.Name))
				continue
			}
			bandID := band.ID
			typeID := ptype.ID
			ruleABV := abv
			rules = append(rules, PriceRule{
				Priority:      GridPriority,
				BandID:        &bandID,
				TypeID:        &typeID,
				ABV:           &ruleABV,
				AbsolutePrice: decimal.NewNullDecimal(price),
				Comment:       fmt.Sprintf("%s %s base price", GridCommentPrefix, ptype.Name),
			})
		}
	}

	if err := s.repo.ReplaceBandGridRules(ctx, band.ID, rules); err != nil {
		return report, err
	}
	report.RulesCreated = len(rules)
	return report, nil
}

func (s *Service) findProductType(ctx context.Context, name string) (ProductType, error) {
	types, err := s.repo.ListProductTypes(ctx)
	if err != nil {
		return ProductType{}, err
	}
	for _, t := range types {
		if t.Name == name {
			return t, nil
		}
	}
	return ProductType{}, httpx.ErrNotFound
}
