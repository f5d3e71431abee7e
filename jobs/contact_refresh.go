package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/oakhaven-brewing/invoicer/internal/books"
	"github.com/oakhaven-brewing/invoicer/internal/catalog"
)

// ContactStore is the catalog access the refresh job needs.
type ContactStore interface {
	ListContactsUpdatedBefore(ctx context.Context, cutoff time.Time) ([]catalog.Contact, error)
	UpsertContact(ctx context.Context, contact catalog.Contact) (catalog.Contact, error)
}

// ContactSource is the upstream side of the contact refresh.
type ContactSource interface {
	GetContact(ctx context.Context, contactID string) (*books.ContactDetail, error)
}

// ContactRefreshJob re-fetches cached contact names and payment terms that
// have gone stale, so the invoice form shows current names without a blocking
// upstream call. A contact that fails to refresh keeps its cached copy.
type ContactRefreshJob struct {
	store  ContactStore
	source ContactSource
	logger *slog.Logger
	now    func() time.Time
}

// NewContactRefreshJob wires the job.
func NewContactRefreshJob(store ContactStore, source ContactSource, logger *slog.Logger) *ContactRefreshJob {
	return &ContactRefreshJob{
		store:  store,
		source: source,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Handle processes TaskContactRefresh tasks.
func (j *ContactRefreshJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ContactRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	maxAge := payload.MaxAge
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return j.Run(ctx, maxAge)
}

// Run refreshes every contact older than maxAge.
func (j *ContactRefreshJob) Run(ctx context.Context, maxAge time.Duration) error {
	stale, err := j.store.ListContactsUpdatedBefore(ctx, j.now().Add(-maxAge))
	if err != nil {
		return err
	}
	var refreshed, failed int
	for _, contact := range stale {
		detail, err := j.source.GetContact(ctx, contact.ExternalID)
		if err != nil {
			failed++
			j.logger.Warn("contact refresh failed",
				slog.String("contact", contact.ExternalID), slog.Any("error", err))
			continue
		}
		contact.Name = detail.Name
		contact.BillTerms = detail.BillTerms
		contact.InvoiceTerms = detail.InvoiceTerms
		contact.Updated = j.now()
		if _, err := j.store.UpsertContact(ctx, contact); err != nil {
			failed++
			j.logger.Warn("contact refresh store failed",
				slog.String("contact", contact.ExternalID), slog.Any("error", err))
			continue
		}
		refreshed++
	}
	if refreshed > 0 || failed > 0 {
		j.logger.Info("contact refresh complete",
			slog.Int("refreshed", refreshed), slog.Int("failed", failed))
	}
	return nil
}
