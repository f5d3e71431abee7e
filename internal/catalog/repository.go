package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oakhaven-brewing/invoicer/internal/platform/db"
	"github.com/oakhaven-brewing/invoicer/internal/platform/httpx"
)

// ProductFilters narrows ListProducts.
type ProductFilters struct {
	Search string
	TypeID *int64
	Sent   *bool
}

// RuleFilters narrows ListPriceRules. BandID selects rules for that band
// plus wildcard-band rules, matching how the evaluator consumes them.
type RuleFilters struct {
	BandID *int64
}

// Repository is the catalog store.
type Repository interface {
	ListProductTypes(ctx context.Context) ([]ProductType, error)
	GetProductType(ctx context.Context, id int64) (ProductType, error)
	CreateProductType(ctx context.Context, name string) (ProductType, error)
	DeleteProductType(ctx context.Context, id int64) error

	Units(ctx context.Context) ([]Unit, error)
	GetUnit(ctx context.Context, id int64) (Unit, error)
	CreateUnit(ctx context.Context, unit Unit) (Unit, error)
	DeleteUnit(ctx context.Context, id int64) error

	ListProducts(ctx context.Context, filters ProductFilters) ([]Product, error)
	ProductsByType(ctx context.Context, typeID int64) ([]Product, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	GetProductByCode(ctx context.Context, code string) (Product, error)
	CreateProduct(ctx context.Context, product Product) (Product, error)
	UpdateProduct(ctx context.Context, id int64, product Product) error
	DeleteProduct(ctx context.Context, id int64) error
	MarkProductsSent(ctx context.Context, ids []int64) error

	ListPriceBands(ctx context.Context) ([]PriceBand, error)
	GetPriceBand(ctx context.Context, id int64) (PriceBand, error)
	CreatePriceBand(ctx context.Context, name string) (PriceBand, error)
	DeletePriceBand(ctx context.Context, id int64) error

	GetContactByExternalID(ctx context.Context, externalID string) (Contact, error)
	UpsertContact(ctx context.Context, contact Contact) (Contact, error)
	ListContactsUpdatedBefore(ctx context.Context, cutoff time.Time) ([]Contact, error)

	ListProgramRules(ctx context.Context) ([]ProgramRule, error)
	CreateProgramRule(ctx context.Context, rule ProgramRule) (ProgramRule, error)
	DeleteProgramRule(ctx context.Context, id int64) error

	ListPriceRules(ctx context.Context, filters RuleFilters) ([]PriceRule, error)
	CreatePriceRule(ctx context.Context, rule PriceRule) (PriceRule, error)
	UpdatePriceRule(ctx context.Context, id int64, rule PriceRule) error
	DeletePriceRule(ctx context.Context, id int64) error
	ReplaceBandGridRules(ctx context.Context, bandID int64, rules []PriceRule) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed catalog store. Referential
// integrity, including the cascade delete of price rules when a referenced
// entity goes away, lives in the schema (scripts/schema.sql).
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return httpx.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", httpx.ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

func (r *repository) ListProductTypes(ctx context.Context) ([]ProductType, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name FROM product_types ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var types []ProductType
	for rows.Next() {
		var t ProductType
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

func (r *repository) GetProductType(ctx context.Context, id int64) (ProductType, error) {
	var t ProductType
	err := r.db.QueryRow(ctx, `SELECT id, name FROM product_types WHERE id = $1`, id).Scan(&t.ID, &t.Name)
	return t, mapError(err)
}

func (r *repository) CreateProductType(ctx context.Context, name string) (ProductType, error) {
	t := ProductType{Name: name}
	err := r.db.QueryRow(ctx, `INSERT INTO product_types (name) VALUES ($1) RETURNING id`, name).Scan(&t.ID)
	return t, mapError(err)
}

func (r *repository) DeleteProductType(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM product_types WHERE id = $1`, id)
	return mapError(err)
}

func (r *repository) Units(ctx context.Context) ([]Unit, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, size, type_id FROM units ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var units []Unit
	for rows.Next() {
		var u Unit
		if err := rows.Scan(&u.ID, &u.Name, &u.Size, &u.TypeID); err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

func (r *repository) GetUnit(ctx context.Context, id int64) (Unit, error) {
	var u Unit
	err := r.db.QueryRow(ctx, `SELECT id, name, size, type_id FROM units WHERE id = $1`, id).
		Scan(&u.ID, &u.Name, &u.Size, &u.TypeID)
	return u, mapError(err)
}

func (r *repository) CreateUnit(ctx context.Context, unit Unit) (Unit, error) {
	err := r.db.QueryRow(ctx,
		`INSERT INTO units (name, size, type_id) VALUES ($1, $2, $3) RETURNING id`,
		unit.Name, unit.Size, unit.TypeID).Scan(&unit.ID)
	return unit, mapError(err)
}

func (r *repository) DeleteUnit(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM units WHERE id = $1`, id)
	return mapError(err)
}

const productColumns = `id, code, name, abv, type_id, swap, sent`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.ABV, &p.TypeID, &p.Swap, &p.Sent)
	return p, err
}

func (r *repository) ListProducts(ctx context.Context, filters ProductFilters) ([]Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	if filters.Search != "" {
		argCount++
		query += ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR code ILIKE $` + strconv.Itoa(argCount) + `)`
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.TypeID != nil {
		argCount++
		query += ` AND type_id = $` + strconv.Itoa(argCount)
		args = append(args, *filters.TypeID)
	}
	if filters.Sent != nil {
		argCount++
		query += ` AND sent = $` + strconv.Itoa(argCount)
		args = append(args, *filters.Sent)
	}
	query += ` ORDER BY name`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *repository) ProductsByType(ctx context.Context, typeID int64) ([]Product, error) {
	return r.ListProducts(ctx, ProductFilters{TypeID: &typeID})
}

func (r *repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	return p, mapError(err)
}

func (r *repository) GetProductByCode(ctx context.Context, code string) (Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE lower(code) = lower($1)`, code))
	return p, mapError(err)
}

func (r *repository) CreateProduct(ctx context.Context, product Product) (Product, error) {
	err := r.db.QueryRow(ctx,
		`INSERT INTO products (code, name, abv, type_id, swap, sent) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		product.Code, product.Name, product.ABV, product.TypeID, product.Swap, product.Sent).Scan(&product.ID)
	return product, mapError(err)
}

func (r *repository) UpdateProduct(ctx context.Context, id int64, product Product) error {
	_, err := r.db.Exec(ctx,
		`UPDATE products SET code = $1, name = $2, abv = $3, type_id = $4, swap = $5, sent = $6 WHERE id = $7`,
		product.Code, product.Name, product.ABV, product.TypeID, product.Swap, product.Sent, id)
	return mapError(err)
}

func (r *repository) DeleteProduct(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	return mapError(err)
}

func (r *repository) MarkProductsSent(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `UPDATE products SET sent = true WHERE id = ANY($1)`, ids)
	return mapError(err)
}

func (r *repository) ListPriceBands(ctx context.Context) ([]PriceBand, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name FROM price_bands ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var bands []PriceBand
	for rows.Next() {
		var b PriceBand
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return nil, err
		}
		bands = append(bands, b)
	}
	return bands, rows.Err()
}

func (r *repository) GetPriceBand(ctx context.Context, id int64) (PriceBand, error) {
	var b PriceBand
	err := r.db.QueryRow(ctx, `SELECT id, name FROM price_bands WHERE id = $1`, id).Scan(&b.ID, &b.Name)
	return b, mapError(err)
}

func (r *repository) CreatePriceBand(ctx context.Context, name string) (PriceBand, error) {
	b := PriceBand{Name: name}
	err := r.db.QueryRow(ctx, `INSERT INTO price_bands (name) VALUES ($1) RETURNING id`, name).Scan(&b.ID)
	return b, mapError(err)
}

func (r *repository) DeletePriceBand(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM price_bands WHERE id = $1`, id)
	return mapError(err)
}

const contactColumns = `id, external_id, price_band_id, account, name, updated, bill_day, bill_policy, invoice_day, invoice_policy`

func scanContact(row pgx.Row) (Contact, error) {
	var c Contact
	var billDay, invoiceDay *int
	var billPolicy, invoicePolicy *string
	err := row.Scan(&c.ID, &c.ExternalID, &c.PriceBandID, &c.Account, &c.Name, &c.Updated,
		&billDay, &billPolicy, &invoiceDay, &invoicePolicy)
	if err != nil {
		return c, err
	}
	if billDay != nil && billPolicy != nil {
		c.BillTerms = &PaymentTerms{Day: *billDay, Policy: DueDatePolicy(*billPolicy)}
	}
	if invoiceDay != nil && invoicePolicy != nil {
		c.InvoiceTerms = &PaymentTerms{Day: *invoiceDay, Policy: DueDatePolicy(*invoicePolicy)}
	}
	return c, nil
}

func contactTermsColumns(c Contact) (billDay *int, billPolicy *string, invoiceDay *int, invoicePolicy *string) {
	if c.BillTerms != nil {
		billDay = &c.BillTerms.Day
		policy := string(c.BillTerms.Policy)
		billPolicy = &policy
	}
	if c.InvoiceTerms != nil {
		invoiceDay = &c.InvoiceTerms.Day
		policy := string(c.InvoiceTerms.Policy)
		invoicePolicy = &policy
	}
	return
}

func (r *repository) GetContactByExternalID(ctx context.Context, externalID string) (Contact, error) {
	c, err := scanContact(r.db.QueryRow(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE external_id = $1`, externalID))
	return c, mapError(err)
}

// UpsertContact is last-writer-wins on the external id.
func (r *repository) UpsertContact(ctx context.Context, contact Contact) (Contact, error) {
	billDay, billPolicy, invoiceDay, invoicePolicy := contactTermsColumns(contact)
	err := r.db.QueryRow(ctx, `
		INSERT INTO contacts (external_id, price_band_id, account, name, updated, bill_day, bill_policy, invoice_day, invoice_policy)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (external_id) DO UPDATE SET
			price_band_id = EXCLUDED.price_band_id,
			account = EXCLUDED.account,
			name = EXCLUDED.name,
			updated = EXCLUDED.updated,
			bill_day = EXCLUDED.bill_day,
			bill_policy = EXCLUDED.bill_policy,
			invoice_day = EXCLUDED.invoice_day,
			invoice_policy = EXCLUDED.invoice_policy
		RETURNING id`,
		contact.ExternalID, contact.PriceBandID, contact.Account, contact.Name, contact.Updated,
		billDay, billPolicy, invoiceDay, invoicePolicy).Scan(&contact.ID)
	return contact, mapError(err)
}

func (r *repository) ListContactsUpdatedBefore(ctx context.Context, cutoff time.Time) ([]Contact, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE updated < $1 ORDER BY updated`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var contacts []Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (r *repository) ListProgramRules(ctx context.Context) ([]ProgramRule, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, code FROM program_rules ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rules []ProgramRule
	for rows.Next() {
		var p ProgramRule
		if err := rows.Scan(&p.ID, &p.Name, &p.Code); err != nil {
			return nil, err
		}
		rules = append(rules, p)
	}
	return rules, rows.Err()
}

func (r *repository) CreateProgramRule(ctx context.Context, rule ProgramRule) (ProgramRule, error) {
	err := r.db.QueryRow(ctx,
		`INSERT INTO program_rules (name, code) VALUES ($1, $2) RETURNING id`,
		rule.Name, rule.Code).Scan(&rule.ID)
	return rule, mapError(err)
}

func (r *repository) DeleteProgramRule(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM program_rules WHERE id = $1`, id)
	return mapError(err)
}

const ruleColumns = `id, priority, band_id, type_id, abv, swap, bill, product_id, unit_id, contact_id,
	delta, absolute_price, program_rule_id, account, comment`

func scanPriceRule(row pgx.Row) (PriceRule, error) {
	var p PriceRule
	err := row.Scan(&p.ID, &p.Priority, &p.BandID, &p.TypeID, &p.ABV, &p.Swap, &p.Bill,
		&p.ProductID, &p.UnitID, &p.ContactID,
		&p.Delta, &p.AbsolutePrice, &p.ProgramRuleID, &p.Account, &p.Comment)
	return p, err
}

func (r *repository) ListPriceRules(ctx context.Context, filters RuleFilters) ([]PriceRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM price_rules`
	args := []interface{}{}
	if filters.BandID != nil {
		query += ` WHERE band_id = $1 OR band_id IS NULL`
		args = append(args, *filters.BandID)
	}
	query += ` ORDER BY priority, id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rules []PriceRule
	for rows.Next() {
		p, err := scanPriceRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, p)
	}
	return rules, rows.Err()
}

const insertRuleQuery = `
	INSERT INTO price_rules (priority, band_id, type_id, abv, swap, bill, product_id, unit_id, contact_id,
		delta, absolute_price, program_rule_id, account, comment)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	RETURNING id`

func (r *repository) CreatePriceRule(ctx context.Context, rule PriceRule) (PriceRule, error) {
	err := r.db.QueryRow(ctx, insertRuleQuery,
		rule.Priority, rule.BandID, rule.TypeID, rule.ABV, rule.Swap, rule.Bill,
		rule.ProductID, rule.UnitID, rule.ContactID,
		rule.Delta, rule.AbsolutePrice, rule.ProgramRuleID, rule.Account, rule.Comment).Scan(&rule.ID)
	return rule, mapError(err)
}

func (r *repository) UpdatePriceRule(ctx context.Context, id int64, rule PriceRule) error {
	_, err := r.db.Exec(ctx, `
		UPDATE price_rules SET priority = $1, band_id = $2, type_id = $3, abv = $4, swap = $5, bill = $6,
			product_id = $7, unit_id = $8, contact_id = $9, delta = $10, absolute_price = $11,
			program_rule_id = $12, account = $13, comment = $14
		WHERE id = $15`,
		rule.Priority, rule.BandID, rule.TypeID, rule.ABV, rule.Swap, rule.Bill,
		rule.ProductID, rule.UnitID, rule.ContactID,
		rule.Delta, rule.AbsolutePrice, rule.ProgramRuleID, rule.Account, rule.Comment, id)
	return mapError(err)
}

func (r *repository) DeletePriceRule(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM price_rules WHERE id = $1`, id)
	return mapError(err)
}

// ReplaceBandGridRules swaps out a band's imported grid rules (those marked
// with the grid comment prefix) for a fresh set, in one transaction.
func (r *repository) ReplaceBandGridRules(ctx context.Context, bandID int64, rules []PriceRule) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM price_rules WHERE band_id = $1 AND comment LIKE $2`,
			bandID, GridCommentPrefix+"%"); err != nil {
			return err
		}
		for _, rule := range rules {
			if _, err := tx.Exec(ctx, `
				INSERT INTO price_rules (priority, band_id, type_id, abv, swap, bill, product_id, unit_id, contact_id,
					delta, absolute_price, program_rule_id, account, comment)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
				rule.Priority, rule.BandID, rule.TypeID, rule.ABV, rule.Swap, rule.Bill,
				rule.ProductID, rule.UnitID, rule.ContactID,
				rule.Delta, rule.AbsolutePrice, rule.ProgramRuleID, rule.Account, rule.Comment); err != nil {
				return err
			}
		}
		return nil
	})
}
