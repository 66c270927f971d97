// Package catalog defines core types shared across subsystems.
package catalog

import (
	"time"
)

// JobStatus represents the lifecycle state of an import job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusQueued    JobStatus = "queued"
	JobStatusParsing   JobStatus = "parsing"
	JobStatusImporting JobStatus = "importing"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether no further automatic transition occurs.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransition reports whether a status change is legal. Transitions are
// monotonic except failed -> queued on an explicit restart request.
func CanTransition(from, to JobStatus) bool {
	switch from {
	case JobStatusPending:
		return to == JobStatusQueued
	case JobStatusQueued:
		return to == JobStatusParsing || to == JobStatusFailed
	case JobStatusParsing:
		return to == JobStatusImporting || to == JobStatusCompleted || to == JobStatusFailed
	case JobStatusImporting:
		return to == JobStatusCompleted || to == JobStatusFailed
	case JobStatusFailed:
		return to == JobStatusQueued
	default:
		return false
	}
}

// ImportJob is the metadata persisted for each upload/import request.
type ImportJob struct {
	ID            string    `json:"id"`
	FileKey       string    `json:"file_key"`
	Status        JobStatus `json:"status"`
	TotalRows     *int64    `json:"total_rows"`
	ProcessedRows int64     `json:"processed_rows"`
	ErrorDetail   string    `json:"error_detail,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ProgressPercent computes completion as a percentage rounded to two
// decimals. Unknown or zero totals report 0.0.
func (j ImportJob) ProgressPercent() float64 {
	if j.TotalRows == nil || *j.TotalRows == 0 {
		return 0.0
	}
	pct := float64(j.ProcessedRows) * 100.0 / float64(*j.TotalRows)
	return float64(int64(pct*100+0.5)) / 100
}

// Product is one catalog record keyed by its normalized SKU.
type Product struct {
	ID          string    `json:"id"`
	SKU         string    `json:"sku"`
	SKUNorm     string    `json:"sku_norm"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EventType enumerates the webhook events subscribers may register for.
type EventType string

// Supported webhook event types.
const (
	EventImportCompleted EventType = "import.completed"
	EventProductCreated  EventType = "product.created"
	EventProductUpdated  EventType = "product.updated"
)

// KnownEventType reports whether the event type belongs to the closed set.
func KnownEventType(t EventType) bool {
	switch t {
	case EventImportCompleted, EventProductCreated, EventProductUpdated:
		return true
	default:
		return false
	}
}

// Subscription is a registered webhook endpoint for one event type.
type Subscription struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	TargetURL       string     `json:"target_url"`
	EventType       EventType  `json:"event_type"`
	Enabled         bool       `json:"enabled"`
	LastStatusCode  *int       `json:"last_status_code"`
	LastResponseMs  *float64   `json:"last_response_ms"`
	LastError       string     `json:"last_error,omitempty"`
	LastTriggeredAt *time.Time `json:"last_triggered_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// DeliveryOutcome records the result of one webhook delivery attempt chain.
type DeliveryOutcome struct {
	StatusCode *int
	ElapsedMs  float64
	Error      string
	At         time.Time
}

// TaskKind distinguishes units of work on the task queue.
type TaskKind string

// Supported task kinds.
const (
	TaskRunImport        TaskKind = "run_import"
	TaskDispatchWebhooks TaskKind = "dispatch_webhooks"
)

// Task is one unit of work handed to the worker pool.
type Task struct {
	Kind      TaskKind       `json:"kind"`
	JobID     string         `json:"job_id,omitempty"`
	EventType EventType      `json:"event_type,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Attempt   int            `json:"attempt"`
	Submitted int64          `json:"submitted"`

	ack func()
}

// SetAck registers the transport acknowledgement callback. Transports that
// redeliver unsettled messages set it so a task only counts as delivered
// once a worker has finished executing it.
func (t *Task) SetAck(ack func()) {
	t.ack = ack
}

// Ack settles the task on its transport. Tasks from in-process queues carry
// no callback and Ack is a no-op.
func (t Task) Ack() {
	if t.ack != nil {
		t.ack()
	}
}
