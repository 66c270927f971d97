package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skuline/product-import/internal/catalog"
)

// JobStore implements catalog.JobStore on Postgres.
type JobStore struct {
	pool db
}

// NewJobStore connects a pool for the import_jobs table.
func NewJobStore(ctx context.Context, dsn string) (*JobStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &JobStore{pool: pool}, nil
}

// NewJobStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewJobStoreWithPool(pool db) *JobStore {
	return &JobStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	s.pool.Close()
}

// CreateJob inserts a new import job.
func (s *JobStore) CreateJob(ctx context.Context, job catalog.ImportJob) error {
	query := `
		INSERT INTO import_jobs (id, file_key, status, processed_rows, error_detail, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now());
	`
	_, err := s.pool.Exec(ctx, query, job.ID, job.FileKey, job.Status, job.ProcessedRows, job.ErrorDetail)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (catalog.ImportJob, error) {
	query := `
		SELECT id, file_key, status, total_rows, processed_rows, error_detail, created_at, updated_at
		FROM import_jobs
		WHERE id = $1;
	`
	var job catalog.ImportJob
	err := s.pool.QueryRow(ctx, query, jobID).Scan(
		&job.ID,
		&job.FileKey,
		&job.Status,
		&job.TotalRows,
		&job.ProcessedRows,
		&job.ErrorDetail,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.ImportJob{}, catalog.ErrNotFound
		}
		return catalog.ImportJob{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// UpdateJobStatus applies a lifecycle transition. The legal source states
// are part of the WHERE clause so an illegal transition affects zero rows.
func (s *JobStore) UpdateJobStatus(
	ctx context.Context,
	jobID string,
	status catalog.JobStatus,
	errDetail string,
) error {
	from := allowedFrom(status)
	query := `
		UPDATE import_jobs
		SET status = $1, error_detail = $2, updated_at = now()
		WHERE id = $3 AND (status = $1 OR status = ANY($4));
	`
	tag, err := s.pool.Exec(ctx, query, status, errDetail, jobID, from)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.GetJob(ctx, jobID); getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: to %s", catalog.ErrInvalidTransition, status)
	}
	return nil
}

// SetFileKey assigns the source object key for a job.
func (s *JobStore) SetFileKey(ctx context.Context, jobID, fileKey string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE import_jobs SET file_key = $1, updated_at = now() WHERE id = $2;`,
		fileKey, jobID)
	if err != nil {
		return fmt.Errorf("set file key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// SetTotalRows records the first-pass row count.
func (s *JobStore) SetTotalRows(ctx context.Context, jobID string, total int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE import_jobs SET total_rows = $1, updated_at = now() WHERE id = $2;`,
		total, jobID)
	if err != nil {
		return fmt.Errorf("set total rows: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// SetProcessedRows records the running processed count in the durable tier.
func (s *JobStore) SetProcessedRows(ctx context.Context, jobID string, processed int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE import_jobs SET processed_rows = $1, updated_at = now() WHERE id = $2;`,
		processed, jobID)
	if err != nil {
		return fmt.Errorf("set processed rows: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// allowedFrom lists the states a job may legally transition from to reach
// the target status.
func allowedFrom(to catalog.JobStatus) []string {
	all := []catalog.JobStatus{
		catalog.JobStatusPending,
		catalog.JobStatusQueued,
		catalog.JobStatusParsing,
		catalog.JobStatusImporting,
		catalog.JobStatusCompleted,
		catalog.JobStatusFailed,
	}
	var from []string
	for _, s := range all {
		if catalog.CanTransition(s, to) {
			from = append(from, string(s))
		}
	}
	return from
}
