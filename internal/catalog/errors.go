package catalog

import "errors"

// Sentinel errors shared across store implementations.
var (
	// ErrNotFound is returned when a job, product, subscription, or cache
	// entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when a status change violates the
	// job lifecycle.
	ErrInvalidTransition = errors.New("invalid status transition")
)
