package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oakhaven-brewing/invoicer/internal/platform/httpx"
)

// UpstreamCatalog reports item codes already registered with the accounting
// service. books.Client satisfies it; nil disables the upstream check.
type UpstreamCatalog interface {
	GetProduct(ctx context.Context, code string) (string, error)
}

// Service wraps the catalog store with the invariants the data model
// demands.
type Service struct {
	repo     Repository
	upstream UpstreamCatalog
}

// NewService constructs the catalog service.
func NewService(repo Repository, upstream UpstreamCatalog) *Service {
	return &Service{repo: repo, upstream: upstream}
}

func (s *Service) ListProductTypes(ctx context.Context) ([]ProductType, error) {
	return s.repo.ListProductTypes(ctx)
}

func (s *Service) CreateProductType(ctx context.Context, name string) (ProductType, error) {
	if strings.TrimSpace(name) == "" {
		return ProductType{}, fmt.Errorf("%w: product type name is required", httpx.ErrValidation)
	}
	return s.repo.CreateProductType(ctx, name)
}

func (s *Service) DeleteProductType(ctx context.Context, id int64) error {
	return s.repo.DeleteProductType(ctx, id)
}

func (s *Service) Units(ctx context.Context) ([]Unit, error) {
	return s.repo.Units(ctx)
}

func (s *Service) CreateUnit(ctx context.Context, unit Unit) (Unit, error) {
	if strings.TrimSpace(unit.Name) == "" {
		return Unit{}, fmt.Errorf("%w: unit name is required", httpx.ErrValidation)
	}
	if !unit.Size.IsPositive() {
		return Unit{}, fmt.Errorf("%w: unit size must be greater than zero", httpx.ErrValidation)
	}
	if _, err := s.repo.GetProductType(ctx, unit.TypeID); err != nil {
		return Unit{}, fmt.Errorf("%w: unknown product type", httpx.ErrValidation)
	}
	return s.repo.CreateUnit(ctx, unit)
}

func (s *Service) DeleteUnit(ctx context.Context, id int64) error {
	return s.repo.DeleteUnit(ctx, id)
}

func (s *Service) ListProducts(ctx context.Context, filters ProductFilters) ([]Product, error) {
	return s.repo.ListProducts(ctx, filters)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) validateProduct(p Product) error {
	if strings.TrimSpace(p.Code) == "" {
		return fmt.Errorf("%w: product code is required", httpx.ErrValidation)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: product name is required", httpx.ErrValidation)
	}
	if p.ABV.IsNegative() {
		return fmt.Errorf("%w: abv cannot be negative", httpx.ErrValidation)
	}
	return nil
}

func (s *Service) CreateProduct(ctx context.Context, product Product) (Product, error) {
	if err := s.validateProduct(product); err != nil {
		return Product{}, err
	}
	product.Sent = false
	return s.repo.CreateProduct(ctx, product)
}

// UpdateProduct applies the sent-flag lifecycle: a change to code, name or
// abv means the upstream copy is stale, so sent flips to false and the
// product is re-sent before its next invoice use. The return reports
// whether that happened, so callers can tell the user.
func (s *Service) UpdateProduct(ctx context.Context, id int64, product Product) (resent bool, err error) {
	if err := s.validateProduct(product); err != nil {
		return false, err
	}
	current, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return false, err
	}
	product.Sent = current.Sent
	if current.Code != product.Code || current.Name != product.Name || !current.ABV.Equal(product.ABV) {
		if current.Sent {
			resent = true
		}
		product.Sent = false
	}
	return resent, s.repo.UpdateProduct(ctx, id, product)
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	return s.repo.DeleteProduct(ctx, id)
}

// CodeCheck is the answer to a product-code availability query.
type CodeCheck struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// CheckProductCode reports whether a code is free to use. Case folds:
// product codes are unique case-insensitively. A code that is free locally
// is also checked against the accounting service, which may already know it
// from another organisation's catalog; invoicing under such a code would
// attach lines to the wrong upstream item.
func (s *Service) CheckProductCode(ctx context.Context, code string, excludeID int64) (CodeCheck, error) {
	existing, err := s.repo.GetProductByCode(ctx, code)
	switch {
	case errors.Is(err, httpx.ErrNotFound):
		// Free locally; fall through to the upstream check.
	case err != nil:
		return CodeCheck{}, err
	case existing.ID == excludeID:
		// A product keeps its own code; upstream knowing it is expected.
		return CodeCheck{Available: true}, nil
	default:
		return CodeCheck{Reason: "in use"}, nil
	}

	if s.upstream != nil {
		description, err := s.upstream.GetProduct(ctx, code)
		if err != nil {
			return CodeCheck{}, err
		}
		if description != "" {
			return CodeCheck{Reason: "in use on the accounting service"}, nil
		}
	}
	return CodeCheck{Available: true}, nil
}

func (s *Service) ListPriceBands(ctx context.Context) ([]PriceBand, error) {
	return s.repo.ListPriceBands(ctx)
}

func (s *Service) GetPriceBand(ctx context.Context, id int64) (PriceBand, error) {
	return s.repo.GetPriceBand(ctx, id)
}

func (s *Service) CreatePriceBand(ctx context.Context, name string) (PriceBand, error) {
	if strings.TrimSpace(name) == "" {
		return PriceBand{}, fmt.Errorf("%w: price band name is required", httpx.ErrValidation)
	}
	return s.repo.CreatePriceBand(ctx, name)
}

func (s *Service) DeletePriceBand(ctx context.Context, id int64) error {
	return s.repo.DeletePriceBand(ctx, id)
}

func (s *Service) ListProgramRules(ctx context.Context) ([]ProgramRule, error) {
	return s.repo.ListProgramRules(ctx)
}

func (s *Service) CreateProgramRule(ctx context.Context, rule ProgramRule) (ProgramRule, error) {
	if strings.TrimSpace(rule.Name) == "" || strings.TrimSpace(rule.Code) == "" {
		return ProgramRule{}, fmt.Errorf("%w: program rule name and code are required", httpx.ErrValidation)
	}
	return s.repo.CreateProgramRule(ctx, rule)
}

func (s *Service) DeleteProgramRule(ctx context.Context, id int64) error {
	return s.repo.DeleteProgramRule(ctx, id)
}

func (s *Service) ListPriceRules(ctx context.Context, filters RuleFilters) ([]PriceRule, error) {
	return s.repo.ListPriceRules(ctx, filters)
}

func (s *Service) CreatePriceRule(ctx context.Context, rule PriceRule) (PriceRule, error) {
	return s.repo.CreatePriceRule(ctx, rule)
}

func (s *Service) UpdatePriceRule(ctx context.Context, id int64, rule PriceRule) error {
	return s.repo.UpdatePriceRule(ctx, id, rule)
}

func (s *Service) DeletePriceRule(ctx context.Context, id int64) error {
	return s.repo.DeletePriceRule(ctx, id)
}

// RefreshContactCache updates the cached display name and terms for a
// contact. Last writer wins.
func (s *Service) RefreshContactCache(ctx context.Context, contact Contact) (Contact, error) {
	if contact.Updated.IsZero() {
		contact.Updated = time.Now().UTC()
	}
	return s.repo.UpsertContact(ctx, contact)
}

func (s *Service) GetContactByExternalID(ctx context.Context, externalID string) (Contact, error) {
	return s.repo.GetContactByExternalID(ctx, externalID)
}
