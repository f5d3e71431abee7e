package jobs

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/oakhaven-brewing/invoicer/internal/books"
	"github.com/oakhaven-brewing/invoicer/internal/catalog"
)

type fakeProductStore struct {
	products []catalog.Product
	marked   []int64
}

func (f *fakeProductStore) ListProducts(ctx context.Context, filters catalog.ProductFilters) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, p := range f.products {
		if filters.Sent != nil && p.Sent != *filters.Sent {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeProductStore) MarkProductsSent(ctx context.Context, ids []int64) error {
	f.marked = append(f.marked, ids...)
	return nil
}

type fakePusher struct {
	pushed []catalog.Product
	err    error
}

func (f *fakePusher) UpdateProducts(ctx context.Context, products []catalog.Product) error {
	if f.err != nil {
		return f.err
	}
	f.pushed = append(f.pushed, products...)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProductSyncPushesUnsentProducts(t *testing.T) {
	store := &fakeProductStore{products: []catalog.Product{
		{ID: 1, Code: "SW", Name: "Stormy Weather", ABV: decimal.RequireFromString("4.2"), Sent: true},
		{ID: 2, Code: "FW", Name: "Fair Weather", ABV: decimal.RequireFromString("3.8")},
	}}
	pusher := &fakePusher{}

	err := NewProductSyncJob(store, pusher, discardLogger()).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, pusher.pushed, 1)
	require.Equal(t, "FW", pusher.pushed[0].Code)
	require.Equal(t, []int64{2}, store.marked)
}

func TestProductSyncLeavesSentFlagOnFailure(t *testing.T) {
	store := &fakeProductStore{products: []catalog.Product{
		{ID: 2, Code: "FW", Name: "Fair Weather"},
	}}
	pusher := &fakePusher{err: &books.Error{StatusCode: 503}}

	err := NewProductSyncJob(store, pusher, discardLogger()).Run(context.Background())
	require.Error(t, err)
	require.Empty(t, store.marked, "a failed push must stay unsent for the next pass")
}

func TestProductSyncNothingToDo(t *testing.T) {
	store := &fakeProductStore{products: []catalog.Product{{ID: 1, Sent: true}}}
	pusher := &fakePusher{}

	err := NewProductSyncJob(store, pusher, discardLogger()).Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, pusher.pushed)
}

type fakeContactStore struct {
	contacts []catalog.Contact
	upserted []catalog.Contact
}

func (f *fakeContactStore) ListContactsUpdatedBefore(ctx context.Context, cutoff time.Time) ([]catalog.Contact, error) {
	var out []catalog.Contact
	for _, c := range f.contacts {
		if c.Updated.Before(cutoff) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeContactStore) UpsertContact(ctx context.Context, contact catalog.Contact) (catalog.Contact, error) {
	f.upserted = append(f.upserted, contact)
	return contact, nil
}

type fakeContactSource struct {
	details map[string]*books.ContactDetail
}

func (f *fakeContactSource) GetContact(ctx context.Context, contactID string) (*books.ContactDetail, error) {
	detail, ok := f.details[contactID]
	if !ok {
		return nil, &books.Error{StatusCode: 404, Message: "no such contact"}
	}
	return detail, nil
}

func TestContactRefreshUpdatesStaleContacts(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeContactStore{contacts: []catalog.Contact{
		{ID: 1, ExternalID: "ext-1", Name: "Old Name", Updated: now.Add(-48 * time.Hour)},
		{ID: 2, ExternalID: "ext-2", Name: "Fresh", Updated: now},
	}}
	source := &fakeContactSource{details: map[string]*books.ContactDetail{
		"ext-1": {ID: "ext-1", Name: "New Name", InvoiceTerms: &catalog.PaymentTerms{
			Day: 30, Policy: catalog.PolicyDaysAfterBillDate,
		}},
	}}

	err := NewContactRefreshJob(store, source, discardLogger()).Run(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, store.upserted, 1, "fresh contacts are left alone")
	require.Equal(t, "New Name", store.upserted[0].Name)
	require.NotNil(t, store.upserted[0].InvoiceTerms)
}

func TestContactRefreshKeepsCachedCopyOnFailure(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeContactStore{contacts: []catalog.Contact{
		{ID: 1, ExternalID: "ext-gone", Name: "Cached", Updated: now.Add(-48 * time.Hour)},
		{ID: 2, ExternalID: "ext-1", Name: "Old", Updated: now.Add(-48 * time.Hour)},
	}}
	source := &fakeContactSource{details: map[string]*books.ContactDetail{
		"ext-1": {ID: "ext-1", Name: "New"},
	}}

	err := NewContactRefreshJob(store, source, discardLogger()).Run(context.Background(), 24*time.Hour)
	require.NoError(t, err, "one failed contact must not abort the pass")
	require.Len(t, store.upserted, 1)
	require.Equal(t, "ext-1", store.upserted[0].ExternalID)
}
