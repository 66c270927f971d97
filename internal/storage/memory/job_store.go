// Package memory provides in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/skuline/product-import/internal/catalog"
)

// JobStore holds import jobs in a map guarded by a RWMutex.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]catalog.ImportJob
}

// NewJobStore constructs an empty JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]catalog.ImportJob)}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job catalog.ImportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	s.jobs[job.ID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (catalog.ImportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return catalog.ImportJob{}, catalog.ErrNotFound
	}
	return job, nil
}

// UpdateJobStatus applies a lifecycle transition, rejecting illegal ones.
func (s *JobStore) UpdateJobStatus(
	_ context.Context,
	jobID string,
	status catalog.JobStatus,
	errDetail string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return catalog.ErrNotFound
	}
	if job.Status != status && !catalog.CanTransition(job.Status, status) {
		return fmt.Errorf("%w: %s -> %s", catalog.ErrInvalidTransition, job.Status, status)
	}
	job.Status = status
	job.ErrorDetail = errDetail
	job.UpdatedAt = time.Now().UTC()
	s.jobs[jobID] = job
	return nil
}

// SetFileKey assigns the source object key for a job.
func (s *JobStore) SetFileKey(_ context.Context, jobID, fileKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return catalog.ErrNotFound
	}
	job.FileKey = fileKey
	job.UpdatedAt = time.Now().UTC()
	s.jobs[jobID] = job
	return nil
}

// SetTotalRows records the first-pass row count.
func (s *JobStore) SetTotalRows(_ context.Context, jobID string, total int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return catalog.ErrNotFound
	}
	job.TotalRows = &total
	job.UpdatedAt = time.Now().UTC()
	s.jobs[jobID] = job
	return nil
}

// SetProcessedRows records the running processed count in the durable tier.
func (s *JobStore) SetProcessedRows(_ context.Context, jobID string, processed int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return catalog.ErrNotFound
	}
	job.ProcessedRows = processed
	job.UpdatedAt = time.Now().UTC()
	s.jobs[jobID] = job
	return nil
}
