package catalog

import (
	"context"
	"io"
	"time"
)

// JobStore persists import job metadata in the durable store.
type JobStore interface {
	CreateJob(ctx context.Context, job ImportJob) error
	GetJob(ctx context.Context, jobID string) (ImportJob, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errDetail string) error
	SetFileKey(ctx context.Context, jobID, fileKey string) error
	SetTotalRows(ctx context.Context, jobID string, total int64) error
	SetProcessedRows(ctx context.Context, jobID string, processed int64) error
}

// ProductStore applies deduplicated batches against the catalog.
type ProductStore interface {
	// UpsertBatch performs a single conflict-aware bulk write keyed by
	// normalized SKU. Replaying an identical batch is a no-op.
	UpsertBatch(ctx context.Context, batch map[string]Product) error
	GetBySKUNorm(ctx context.Context, skuNorm string) (Product, error)
	GetByID(ctx context.Context, id string) (Product, error)
	UpdateProduct(ctx context.Context, p Product) error
	DeleteByID(ctx context.Context, id string) error
}

// SubscriptionStore manages webhook subscriptions and their last outcomes.
type SubscriptionStore interface {
	CreateSubscription(ctx context.Context, sub Subscription) error
	GetSubscription(ctx context.Context, id string) (Subscription, error)
	ListSubscriptions(ctx context.Context) ([]Subscription, error)
	ListEnabledByEvent(ctx context.Context, eventType EventType) ([]Subscription, error)
	UpdateSubscription(ctx context.Context, sub Subscription) error
	DeleteSubscription(ctx context.Context, id string) error
	RecordOutcome(ctx context.Context, id string, outcome DeliveryOutcome) error
}

// ProgressCache is the ephemeral progress tier. Readers must treat a present
// zero as authoritative; ErrNotFound signals fallback to the durable tier.
type ProgressCache interface {
	SetProgress(ctx context.Context, jobID string, processed int64) error
	GetProgress(ctx context.Context, jobID string) (int64, error)
	ExpireProgress(ctx context.Context, jobID string, ttl time.Duration) error
}

// ObjectStore hands out time-bounded signed URLs for a given object key.
type ObjectStore interface {
	SignedGetURL(ctx context.Context, key string, expires time.Duration) (string, error)
	SignedPutURL(ctx context.Context, key, contentType string, expires time.Duration) (string, error)
}

// SourceOpener streams uploaded source files by object key.
type SourceOpener interface {
	Open(ctx context.Context, fileKey string) (io.ReadCloser, error)
}

// Queue provides enqueue/dequeue semantics for units of work.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Dequeue(ctx context.Context) (Task, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job and subscription IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
