package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/oakhaven-brewing/invoicer/internal/catalog"
)

// ProductStore is the catalog access the sync jobs need.
type ProductStore interface {
	ListProducts(ctx context.Context, filters catalog.ProductFilters) ([]catalog.Product, error)
	MarkProductsSent(ctx context.Context, ids []int64) error
}

// ProductPusher is the upstream side of the product push.
type ProductPusher interface {
	UpdateProducts(ctx context.Context, products []catalog.Product) error
}

// ProductSyncJob pushes every product whose metadata is not yet upstream.
// Invoice submission pushes products on demand; this job exists so edits made
// between invoices land upstream promptly instead of adding latency to the
// next send.
type ProductSyncJob struct {
	store  ProductStore
	pusher ProductPusher
	logger *slog.Logger
}

// NewProductSyncJob wires the job.
func NewProductSyncJob(store ProductStore, pusher ProductPusher, logger *slog.Logger) *ProductSyncJob {
	return &ProductSyncJob{store: store, pusher: pusher, logger: logger}
}

// Handle processes TaskProductSync tasks.
func (j *ProductSyncJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ProductSyncPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	return j.Run(ctx)
}

// Run performs one sync pass.
func (j *ProductSyncJob) Run(ctx context.Context) error {
	unsent := false
	products, err := j.store.ListProducts(ctx, catalog.ProductFilters{Sent: &unsent})
	if err != nil {
		return err
	}
	if len(products) == 0 {
		return nil
	}
	if err := j.pusher.UpdateProducts(ctx, products); err != nil {
		j.logger.Warn("product sync push failed", slog.Int("products", len(products)), slog.Any("error", err))
		return err
	}
	ids := make([]int64, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	if err := j.store.MarkProductsSent(ctx, ids); err != nil {
		return err
	}
	j.logger.Info("product sync complete", slog.Int("pushed", len(products)))
	return nil
}
