// Package parse turns free-text invoice lines such as "4 pins Stormy
// Weather" into ranked sale item candidates against the unit and product
// catalog.
package parse

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/oakhaven-brewing/invoicer/internal/catalog"
	"github.com/oakhaven-brewing/invoicer/internal/pricing"
)

// Two grammars: the full form requires a unit word; the short form is only
// accepted for non-exact (autocomplete) parsing, where ambiguity is cheap.
// The optional " keg" lets two-word units like "craft keg" match before the
// plural 's' is stripped.
var (
	itemPattern  = regexp.MustCompile(`^(?P<qty>\d+)\s*(?P<unit>[\w]+?( keg)?)s?\s+(?P<product>[\w\s&!'/-]+)$`)
	shortPattern = regexp.MustCompile(`^(?P<qty>\d+)\s*(?P<product>[\w\s&!'/-]+)$`)
)

// Catalog is the read access the parser needs.
type Catalog interface {
	Units(ctx context.Context) ([]catalog.Unit, error)
	ProductsByType(ctx context.Context, typeID int64) ([]catalog.Product, error)
}

// Parser resolves item descriptions against the catalog.
type Parser struct {
	catalog Catalog
}

// NewParser constructs a parser over the given catalog.
func NewParser(c Catalog) *Parser {
	return &Parser{catalog: c}
}

// ParseItem converts an item description into an ordered list of sale item
// candidates. With exact set, the unit word is mandatory and the product
// fragment must equal a product name (case-sensitive); otherwise the
// fragment is matched case-insensitively as a substring of the product name
// or code. The bill flag and contact are carried onto every candidate.
//
// Candidates are ordered by a composite key: exact code matches first, then
// non-swap products before swaps.
func (p *Parser) ParseItem(ctx context.Context, description string, exact, bill bool, contact *catalog.Contact) ([]pricing.SaleItem, error) {
	quantity, unitWord, fragment := splitDescription(description, exact)
	if quantity < 1 || len(fragment) < 2 {
		return nil, nil
	}

	units, err := p.catalog.Units(ctx)
	if err != nil {
		return nil, err
	}

	var candidates []pricing.SaleItem
	for _, unit := range units {
		if !strings.HasPrefix(unit.Name, unitWord) {
			continue
		}
		products, err := p.catalog.ProductsByType(ctx, unit.TypeID)
		if err != nil {
			return nil, err
		}
		for _, product := range products {
			if !productMatches(product, fragment, exact) {
				continue
			}
			candidates = append(candidates, pricing.SaleItem{
				Quantity: quantity,
				Unit:     unit,
				Product:  product,
				Bill:     bill,
				Contact:  contact,
			})
		}
	}

	rankCandidates(candidates, fragment)
	return candidates, nil
}

// splitDescription applies the grammars. The short grammar (no unit word) is
// only tried when exact is false.
func splitDescription(description string, exact bool) (quantity int, unitWord, fragment string) {
	if m := itemPattern.FindStringSubmatch(description); m != nil {
		quantity, _ = strconv.Atoi(m[itemPattern.SubexpIndex("qty")])
		unitWord = m[itemPattern.SubexpIndex("unit")]
		fragment = m[itemPattern.SubexpIndex("product")]
		return quantity, unitWord, fragment
	}
	if m := shortPattern.FindStringSubmatch(description); m != nil && !exact {
		quantity, _ = strconv.Atoi(m[shortPattern.SubexpIndex("qty")])
		fragment = m[shortPattern.SubexpIndex("product")]
		return quantity, "", fragment
	}
	return 0, "", ""
}

func productMatches(product catalog.Product, fragment string, exact bool) bool {
	if exact {
		return product.Name == fragment
	}
	lower := strings.ToLower(fragment)
	return strings.Contains(strings.ToLower(product.Name), lower) ||
		strings.Contains(strings.ToLower(product.Code), lower)
}

// rankCandidates sorts by (code mismatch, swap), both ascending: a product
// whose code equals the typed fragment (case-insensitive) ranks first, and
// among equals ordinary sales rank before swaps.
func rankCandidates(candidates []pricing.SaleItem, fragment string) {
	mismatch := func(item pricing.SaleItem) bool {
		return !strings.EqualFold(item.Product.Code, fragment)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		mi, mj := mismatch(candidates[i]), mismatch(candidates[j])
		if mi != mj {
			return !mi
		}
		if candidates[i].Product.Swap != candidates[j].Product.Swap {
			return !candidates[i].Product.Swap
		}
		return false
	})
}

// Describe renders a sale item the way a user would type it, for
// autocomplete suggestions.
func Describe(item pricing.SaleItem) string {
	plural := ""
	if item.Quantity > 1 {
		plural = "s"
	}
	return fmt.Sprintf("%d %s%s %s", item.Quantity, item.Unit.Name, plural, item.Product.Name)
}
