// Package queue provides task queue implementations for import and webhook
// units of work. The queue layer owns retry/backoff policy and the
// single-worker-per-job discipline; the pipeline only enqueues and executes.
package queue

import (
	"time"

	"github.com/skuline/product-import/internal/catalog"
)

// NewImportTask builds the unit of work that runs one import job.
func NewImportTask(jobID string, now time.Time) catalog.Task {
	return catalog.Task{
		Kind:      catalog.TaskRunImport,
		JobID:     jobID,
		Submitted: now.Unix(),
	}
}

// NewWebhookTask builds the unit of work that fans an event out to
// subscribers.
func NewWebhookTask(eventType catalog.EventType, payload map[string]any, now time.Time) catalog.Task {
	return catalog.Task{
		Kind:      catalog.TaskDispatchWebhooks,
		EventType: eventType,
		Payload:   payload,
		Submitted: now.Unix(),
	}
}
