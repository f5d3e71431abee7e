package catalog

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/oakhaven-brewing/invoicer/internal/platform/httpx"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// memRepo is an in-memory Repository for service tests.
type memRepo struct {
	nextID   int64
	types    []ProductType
	units    []Unit
	products []Product
	bands    []PriceBand
	contacts []Contact
	programs []ProgramRule
	rules    []PriceRule
}

func (m *memRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memRepo) ListProductTypes(ctx context.Context) ([]ProductType, error) {
	return m.types, nil
}

func (m *memRepo) GetProductType(ctx context.Context, id int64) (ProductType, error) {
	for _, t := range m.types {
		if t.ID == id {
			return t, nil
		}
	}
	return ProductType{}, httpx.ErrNotFound
}

func (m *memRepo) CreateProductType(ctx context.Context, name string) (ProductType, error) {
	t := ProductType{ID: m.id(), Name: name}
	m.types = append(m.types, t)
	return t, nil
}

func (m *memRepo) DeleteProductType(ctx context.Context, id int64) error {
	for i, t := range m.types {
		if t.ID == id {
			m.types = append(m.types[:i], m.types[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memRepo) Units(ctx context.Context) ([]Unit, error) {
	return m.units, nil
}

func (m *memRepo) GetUnit(ctx context.Context, id int64) (Unit, error) {
	for _, u := range m.units {
		if u.ID == id {
			return u, nil
		}
	}
	return Unit{}, httpx.ErrNotFound
}

func (m *memRepo) CreateUnit(ctx context.Context, unit Unit) (Unit, error) {
	unit.ID = m.id()
	m.units = append(m.units, unit)
	return unit, nil
}

func (m *memRepo) DeleteUnit(ctx context.Context, id int64) error {
	return nil
}

func (m *memRepo) ListProducts(ctx context.Context, filters ProductFilters) ([]Product, error) {
	return m.products, nil
}

func (m *memRepo) ProductsByType(ctx context.Context, typeID int64) ([]Product, error) {
	var out []Product
	for _, p := range m.products {
		if p.TypeID == typeID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memRepo) GetProduct(ctx context.Context, id int64) (Product, error) {
	for _, p := range m.products {
		if p.ID == id {
			return p, nil
		}
	}
	return Product{}, httpx.ErrNotFound
}

func (m *memRepo) GetProductByCode(ctx context.Context, code string) (Product, error) {
	for _, p := range m.products {
		if strings.EqualFold(p.Code, code) {
			return p, nil
		}
	}
	return Product{}, httpx.ErrNotFound
}

func (m *memRepo) CreateProduct(ctx context.Context, product Product) (Product, error) {
	product.ID = m.id()
	m.products = append(m.products, product)
	return product, nil
}

func (m *memRepo) UpdateProduct(ctx context.Context, id int64, product Product) error {
	for i, p := range m.products {
		if p.ID == id {
			product.ID = id
			m.products[i] = product
			return nil
		}
	}
	return httpx.ErrNotFound
}

func (m *memRepo) DeleteProduct(ctx context.Context, id int64) error {
	return nil
}

func (m *memRepo) MarkProductsSent(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		for i := range m.products {
			if m.products[i].ID == id {
				m.products[i].Sent = true
			}
		}
	}
	return nil
}

func (m *memRepo) ListPriceBands(ctx context.Context) ([]PriceBand, error) {
	return m.bands, nil
}

func (m *memRepo) GetPriceBand(ctx context.Context, id int64) (PriceBand, error) {
	for _, b := range m.bands {
		if b.ID == id {
			return b, nil
		}
	}
	return PriceBand{}, httpx.ErrNotFound
}

func (m *memRepo) CreatePriceBand(ctx context.Context, name string) (PriceBand, error) {
	b := PriceBand{ID: m.id(), Name: name}
	m.bands = append(m.bands, b)
	return b, nil
}

func (m *memRepo) DeletePriceBand(ctx context.Context, id int64) error {
	return nil
}

func (m *memRepo) GetContactByExternalID(ctx context.Context, externalID string) (Contact, error) {
	for _, c := range m.contacts {
		if c.ExternalID == externalID {
			return c, nil
		}
	}
	return Contact{}, httpx.ErrNotFound
}

func (m *memRepo) UpsertContact(ctx context.Context, contact Contact) (Contact, error) {
	for i, c := range m.contacts {
		if c.ExternalID == contact.ExternalID {
			contact.ID = c.ID
			m.contacts[i] = contact
			return contact, nil
		}
	}
	contact.ID = m.id()
	m.contacts = append(m.contacts, contact)
	return contact, nil
}

func (m *memRepo) ListContactsUpdatedBefore(ctx context.Context, cutoff time.Time) ([]Contact, error) {
	var out []Contact
	for _, c := range m.contacts {
		if c.Updated.Before(cutoff) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memRepo) ListProgramRules(ctx context.Context) ([]ProgramRule, error) {
	return m.programs, nil
}

func (m *memRepo) CreateProgramRule(ctx context.Context, rule ProgramRule) (ProgramRule, error) {
	rule.ID = m.id()
	m.programs = append(m.programs, rule)
	return rule, nil
}

func (m *memRepo) DeleteProgramRule(ctx context.Context, id int64) error {
	return nil
}

func (m *memRepo) ListPriceRules(ctx context.Context, filters RuleFilters) ([]PriceRule, error) {
	return m.rules, nil
}

func (m *memRepo) CreatePriceRule(ctx context.Context, rule PriceRule) (PriceRule, error) {
	rule.ID = m.id()
	m.rules = append(m.rules, rule)
	return rule, nil
}

func (m *memRepo) UpdatePriceRule(ctx context.Context, id int64, rule PriceRule) error {
	return nil
}

func (m *memRepo) DeletePriceRule(ctx context.Context, id int64) error {
	return nil
}

func (m *memRepo) ReplaceBandGridRules(ctx context.Context, bandID int64, rules []PriceRule) error {
	kept := m.rules[:0]
	for _, r := range m.rules {
		if r.BandID != nil && *r.BandID == bandID && strings.HasPrefix(r.Comment, GridCommentPrefix) {
			continue
		}
		kept = append(kept, r)
	}
	m.rules = kept
	for _, r := range rules {
		r.ID = m.id()
		m.rules = append(m.rules, r)
	}
	return nil
}

func TestCreateProductClearsSentFlag(t *testing.T) {
	repo := &memRepo{}
	svc := NewService(repo, nil)

	product, err := svc.CreateProduct(context.Background(), Product{
		Code: "SW", Name: "Stormy Weather", ABV: dec("4.2"), TypeID: 1, Sent: true,
	})
	require.NoError(t, err)
	require.False(t, product.Sent, "a new product has never been pushed upstream")
}

func TestUpdateProductSentLifecycle(t *testing.T) {
	repo := &memRepo{}
	svc := NewService(repo, nil)

	product, err := svc.CreateProduct(context.Background(), Product{
		Code: "SW", Name: "Stormy Weather", ABV: dec("4.2"), TypeID: 1,
	})
	require.NoError(t, err)
	require.NoError(t, repo.MarkProductsSent(context.Background(), []int64{product.ID}))

	// Changing the swap flag does not touch upstream metadata.
	resent, err := svc.UpdateProduct(context.Background(), product.ID, Product{
		Code: "SW", Name: "Stormy Weather", ABV: dec("4.2"), TypeID: 1, Swap: true,
	})
	require.NoError(t, err)
	require.False(t, resent)
	got, err := repo.GetProduct(context.Background(), product.ID)
	require.NoError(t, err)
	require.True(t, got.Sent)

	// Renaming does.
	resent, err = svc.UpdateProduct(context.Background(), product.ID, Product{
		Code: "SW", Name: "Stormier Weather", ABV: dec("4.2"), TypeID: 1, Swap: true,
	})
	require.NoError(t, err)
	require.True(t, resent)
	got, err = repo.GetProduct(context.Background(), product.ID)
	require.NoError(t, err)
	require.False(t, got.Sent)
}

func TestUpdateProductCannotForgeSentFlag(t *testing.T) {
	repo := &memRepo{}
	svc := NewService(repo, nil)

	product, err := svc.CreateProduct(context.Background(), Product{
		Code: "SW", Name: "Stormy Weather", ABV: dec("4.2"), TypeID: 1,
	})
	require.NoError(t, err)

	_, err = svc.UpdateProduct(context.Background(), product.ID, Product{
		Code: "SW", Name: "Stormy Weather", ABV: dec("4.2"), TypeID: 1, Sent: true,
	})
	require.NoError(t, err)
	got, err := repo.GetProduct(context.Background(), product.ID)
	require.NoError(t, err)
	require.False(t, got.Sent, "sent is owned by the push workflow, not the form")
}

// fakeUpstream is an UpstreamCatalog serving descriptions from a map.
type fakeUpstream struct {
	descriptions map[string]string
	err          error
	queries      []string
}

func (f *fakeUpstream) GetProduct(ctx context.Context, code string) (string, error) {
	f.queries = append(f.queries, code)
	if f.err != nil {
		return "", f.err
	}
	return f.descriptions[code], nil
}

func TestCheckProductCode(t *testing.T) {
	repo := &memRepo{}
	svc := NewService(repo, nil)

	product, err := svc.CreateProduct(context.Background(), Product{
		Code: "SW", Name: "Stormy Weather", ABV: dec("4.2"), TypeID: 1,
	})
	require.NoError(t, err)

	check, err := svc.CheckProductCode(context.Background(), "FW", 0)
	require.NoError(t, err)
	require.True(t, check.Available)

	check, err = svc.CheckProductCode(context.Background(), "sw", 0)
	require.NoError(t, err)
	require.False(t, check.Available, "codes are unique case-insensitively")
	require.Equal(t, "in use", check.Reason)

	check, err = svc.CheckProductCode(context.Background(), "SW", product.ID)
	require.NoError(t, err)
	require.True(t, check.Available, "a product may keep its own code")
}

func TestCheckProductCodeConsultsUpstream(t *testing.T) {
	repo := &memRepo{}
	upstream := &fakeUpstream{descriptions: map[string]string{"LGR": "Someone Else's Lager"}}
	svc := NewService(repo, upstream)

	product, err := svc.CreateProduct(context.Background(), Product{
		Code: "SW", Name: "Stormy Weather", ABV: dec("4.2"), TypeID: 1,
	})
	require.NoError(t, err)

	// Free locally but already registered with the accounting service.
	check, err := svc.CheckProductCode(context.Background(), "LGR", 0)
	require.NoError(t, err)
	require.False(t, check.Available)
	require.Equal(t, "in use on the accounting service", check.Reason)

	// Unknown everywhere.
	check, err = svc.CheckProductCode(context.Background(), "FW", 0)
	require.NoError(t, err)
	require.True(t, check.Available)

	// Taken locally: answered without an upstream round trip. A product
	// keeping its own code skips the round trip too.
	before := len(upstream.queries)
	check, err = svc.CheckProductCode(context.Background(), "sw", 0)
	require.NoError(t, err)
	require.False(t, check.Available)
	check, err = svc.CheckProductCode(context.Background(), "SW", product.ID)
	require.NoError(t, err)
	require.True(t, check.Available)
	require.Len(t, upstream.queries, before)
}

func TestCreateUnitValidation(t *testing.T) {
	repo := &memRepo{}
	svc := NewService(repo, nil)
	ptype, err := svc.CreateProductType(context.Background(), "cask")
	require.NoError(t, err)

	_, err = svc.CreateUnit(context.Background(), Unit{Name: "pin", Size: dec("0"), TypeID: ptype.ID})
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.CreateUnit(context.Background(), Unit{Name: "pin", Size: dec("0.125"), TypeID: 999})
	require.ErrorIs(t, err, httpx.ErrValidation)

	unit, err := svc.CreateUnit(context.Background(), Unit{Name: "pin", Size: dec("0.125"), TypeID: ptype.ID})
	require.NoError(t, err)
	require.NotZero(t, unit.ID)
}

func TestImportPriceGrid(t *testing.T) {
	repo := &memRepo{}
	svc := NewService(repo, nil)
	cask, err := svc.CreateProductType(context.Background(), "cask")
	require.NoError(t, err)
	keg, err := svc.CreateProductType(context.Background(), "keg")
	require.NoError(t, err)
	band, err := svc.CreatePriceBand(context.Background(), "Trade")
	require.NoError(t, err)

	grid := strings.NewReader(
		"ABV,cask,keg\n" +
			"3.8,95.00,110.00\n" +
			"4.2,100.00,\n" +
			"notes,ignore,me\n")

	report, err := svc.ImportPriceGrid(context.Background(), band.ID, grid)
	require.NoError(t, err)
	require.Equal(t, 3, report.RulesCreated)
	require.Len(t, report.Warnings, 1)
	require.Contains(t, report.Warnings[0], "notes")

	rules, err := repo.ListPriceRules(context.Background(), RuleFilters{})
	require.NoError(t, err)
	require.Len(t, rules, 3)
	for _, rule := range rules {
		require.NotNil(t, rule.BandID)
		require.Equal(t, band.ID, *rule.BandID)
		require.True(t, rule.AbsolutePrice.Valid)
		require.True(t, strings.HasPrefix(rule.Comment, GridCommentPrefix))
	}
	first := rules[0]
	require.Equal(t, cask.ID, *first.TypeID)
	require.True(t, first.ABV.Equal(dec("3.8")))
	require.True(t, first.AbsolutePrice.Decimal.Equal(dec("95.00")))
	require.Equal(t, keg.ID, *rules[1].TypeID)
	last := rules[2]
	require.Equal(t, cask.ID, *last.TypeID, "empty cells create no rule")
	require.True(t, last.ABV.Equal(dec("4.2")))
}

func TestImportPriceGridReplacesPreviousImport(t *testing.T) {
	repo := &memRepo{}
	svc := NewService(repo, nil)
	_, err := svc.CreateProductType(context.Background(), "cask")
	require.NoError(t, err)
	band, err := svc.CreatePriceBand(context.Background(), "Trade")
	require.NoError(t, err)

	// A hand-written rule for the same band must survive re-imports.
	bandID := band.ID
	_, err = svc.CreatePriceRule(context.Background(), PriceRule{
		Priority: 100, BandID: &bandID, Delta: dec("-5.00"), Comment: "loyalty discount",
	})
	require.NoError(t, err)

	_, err = svc.ImportPriceGrid(context.Background(), band.ID, strings.NewReader("ABV,cask\n3.8,95.00\n"))
	require.NoError(t, err)
	_, err = svc.ImportPriceGrid(context.Background(), band.ID, strings.NewReader("ABV,cask\n3.8,97.00\n"))
	require.NoError(t, err)

	rules, err := repo.ListPriceRules(context.Background(), RuleFilters{})
	require.NoError(t, err)
	require.Len(t, rules, 2)

	var imported, handwritten int
	for _, rule := range rules {
		if strings.HasPrefix(rule.Comment, GridCommentPrefix) {
			imported++
			require.True(t, rule.AbsolutePrice.Decimal.Equal(dec("97.00")))
		} else {
			handwritten++
		}
	}
	require.Equal(t, 1, imported)
	require.Equal(t, 1, handwritten)
}

func TestImportPriceGridUnknownType(t *testing.T) {
	repo := &memRepo{}
	svc := NewService(repo, nil)
	band, err := svc.CreatePriceBand(context.Background(), "Trade")
	require.NoError(t, err)

	_, err = svc.ImportPriceGrid(context.Background(), band.ID, strings.NewReader("ABV,mead\n3.8,95.00\n"))
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestImportPriceGridUnknownBand(t *testing.T) {
	svc := NewService(&memRepo{}, nil)
	_, err := svc.ImportPriceGrid(context.Background(), 42, strings.NewReader("ABV,cask\n"))
	require.ErrorIs(t, err, httpx.ErrNotFound)
}
