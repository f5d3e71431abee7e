// Package jobs runs the background synchronisation with the accounting
// service: pushing product metadata ahead of invoicing and refreshing the
// cached contact directory.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskProductSync pushes products whose metadata changed since the last
	// push to the accounting service.
	TaskProductSync = "books:product_sync"
	// TaskContactRefresh refreshes cached contact names and payment terms.
	TaskContactRefresh = "books:contact_refresh"
)

// ProductSyncPayload carries scheduling metadata.
type ProductSyncPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewProductSyncTask constructs an Asynq task for the product push.
func NewProductSyncTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ProductSyncPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskProductSync, body, asynq.Queue(QueueDefault)), nil
}

// ContactRefreshPayload bounds how stale a cached contact may be before the
// job refreshes it.
type ContactRefreshPayload struct {
	ScheduledFor time.Time     `json:"scheduled_for"`
	MaxAge       time.Duration `json:"max_age"`
}

// NewContactRefreshTask constructs an Asynq task for the contact refresh.
func NewContactRefreshTask(at time.Time, maxAge time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(ContactRefreshPayload{ScheduledFor: at, MaxAge: maxAge})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskContactRefresh, body, asynq.Queue(QueueDefault)), nil
}
