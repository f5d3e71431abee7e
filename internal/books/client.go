// Package books is the client for the upstream accounting service. The wire
// format is the service's XML API; responses that are not 2xx, or that do
// not parse, surface as *Error. The client never retries: invoice submission
// is not idempotent on the server side, so retry policy belongs to callers.
package books

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oakhaven-brewing/invoicer/internal/catalog"
)

// Error carries the raw status and message of a failed upstream call.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("books: upstream returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("books: %s (status %d)", e.Message, e.StatusCode)
}

// ContactRef is a search result from the contact directory.
type ContactRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
}

// ContactDetail is the full contact record, including payment terms when the
// upstream has them.
type ContactDetail struct {
	ID           string
	Name         string
	FullName     string
	BillTerms    *catalog.PaymentTerms
	InvoiceTerms *catalog.PaymentTerms
}

// InvoiceLine is one line of an outgoing invoice payload.
type InvoiceLine struct {
	Description string
	ItemCode    string
	Quantity    decimal.Decimal
	AccountCode string
	UnitAmount  decimal.Decimal
}

// Invoice is the payload for SendInvoice. Bill selects accounts-payable
// (purchase) rather than accounts-receivable. A non-empty IdempotencyKey is
// forwarded so the upstream can reject duplicates.
type Invoice struct {
	ContactID      string
	Bill           bool
	Date           time.Time
	DueDate        *time.Time
	Reference      string
	IdempotencyKey string
	Lines          []InvoiceLine
}

// Config collects client settings. Timeout bounds each request in addition
// to whatever deadline the caller's context carries.
type Config struct {
	BaseURL  string
	Token    string
	TenantID string
	Timeout  time.Duration
}

// Client talks to the accounting service.
type Client struct {
	baseURL    string
	token      string
	tenantID   string
	httpClient *http.Client
}

// NewClient constructs a client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		tenantID:   cfg.TenantID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetContacts searches the contact directory by name. With useContains the
// match is a case-insensitive substring, otherwise case-insensitive
// equality. A failed search returns the typed error rather than a partial
// list.
func (c *Client) GetContacts(ctx context.Context, q string, useContains bool) ([]ContactRef, error) {
	var where string
	if useContains {
		where = fmt.Sprintf("Name.ToLower().Contains(%q)", strings.ToLower(q))
	} else {
		where = fmt.Sprintf("Name.ToLower()==%q", strings.ToLower(q))
	}
	params := url.Values{"where": {where}, "order": {"Name"}}

	body, err := c.get(ctx, "/Contacts/?"+params.Encode())
	if err != nil {
		return nil, err
	}
	resp, err := parseContactsResponse(body)
	if err != nil {
		return nil, err
	}
	refs := make([]ContactRef, 0, len(resp))
	for _, ct := range resp {
		refs = append(refs, ct.ref())
	}
	return refs, nil
}

// GetContact fetches one contact with its payment terms.
func (c *Client) GetContact(ctx context.Context, contactID string) (*ContactDetail, error) {
	body, err := c.get(ctx, "/Contacts/"+url.PathEscape(contactID))
	if err != nil {
		return nil, err
	}
	contacts, err := parseContactsResponse(body)
	if err != nil {
		return nil, err
	}
	if len(contacts) == 0 {
		return nil, &Error{StatusCode: http.StatusOK, Message: "response did not contain contact details"}
	}
	return contacts[0].detail(), nil
}

// GetProduct returns the upstream description for an item code, or "" when
// the code is unknown upstream.
func (c *Client) GetProduct(ctx context.Context, code string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/Items/"+url.PathEscape(code), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer drain(resp)
	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", readError(resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return parseItemDescription(body)
}

// UpdateProducts pushes product metadata so invoices can reference the
// codes. Callers mark the products sent only after a nil return.
func (c *Client) UpdateProducts(ctx context.Context, products []catalog.Product) error {
	payload, err := marshalItems(products)
	if err != nil {
		return err
	}
	_, err = c.submitXML(ctx, http.MethodPost, "/Items/", payload, "")
	return err
}

// SendInvoice submits an invoice or bill and returns the upstream invoice ID
// together with any warnings the service attached.
func (c *Client) SendInvoice(ctx context.Context, inv Invoice) (string, []string, error) {
	payload, err := marshalInvoice(inv)
	if err != nil {
		return "", nil, err
	}
	body, err := c.submitXML(ctx, http.MethodPut, "/Invoices/", payload, inv.IdempotencyKey)
	if err != nil {
		return "", nil, err
	}
	return parseInvoiceResponse(body)
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return nil, readError(resp)
	}
	return io.ReadAll(resp.Body)
}

// submitXML sends the payload the way the upstream expects it: a form field
// named "xml".
func (c *Client) submitXML(ctx context.Context, method, path string, payload []byte, idempotencyKey string) ([]byte, error) {
	form := url.Values{"xml": {string(payload)}}
	req, err := c.newRequest(ctx, method, path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer drain(resp)
	if resp.StatusCode == http.StatusBadRequest {
		body, _ := io.ReadAll(resp.Body)
		return nil, &Error{StatusCode: resp.StatusCode, Message: rejectionMessage(body)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, readError(resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.tenantID != "" {
		req.Header.Set("Xero-Tenant-Id", c.tenantID)
	}
	req.Header.Set("Accept", "application/xml")
	return req, nil
}

func readError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &Error{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
