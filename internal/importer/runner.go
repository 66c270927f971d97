// Package importer implements the chunked import pipeline execution.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/skuline/product-import/internal/catalog"
	"github.com/skuline/product-import/internal/metrics"
	"github.com/skuline/product-import/internal/progress"
	"github.com/skuline/product-import/internal/queue"
)

// Config controls Runner behavior.
type Config struct {
	// ChunkSize is the fixed number of source rows per upsert batch.
	ChunkSize int
}

const defaultChunkSize = 1000

// Runner owns one import job at a time from parsing through its terminal
// state. The queue layer guarantees no two workers run the same job id.
type Runner struct {
	jobs     catalog.JobStore
	products catalog.ProductStore
	source   catalog.SourceOpener
	tracker  *progress.Tracker
	tasks    catalog.Queue
	clock    catalog.Clock
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Runner.
func New(
	jobs catalog.JobStore,
	products catalog.ProductStore,
	source catalog.SourceOpener,
	tracker *progress.Tracker,
	tasks catalog.Queue,
	clock catalog.Clock,
	cfg Config,
	logger *zap.Logger,
) *Runner {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		jobs:     jobs,
		products: products,
		source:   source,
		tracker:  tracker,
		tasks:    tasks,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// RunImport executes one import job end to end. Any failure marks the job
// failed with the error text and is returned to the queue layer, whose
// retry policy decides whether to re-attempt; a retry restarts parsing from
// scratch since no checkpoint is kept.
func (r *Runner) RunImport(ctx context.Context, jobID string) error {
	r.logger.Info("starting import job", zap.String("job_id", jobID))

	job, err := r.jobs.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}

	if job.FileKey == "" {
		err := errors.New("import job has no file_key set")
		r.failJob(ctx, jobID, err)
		return err
	}

	if err := r.runPipeline(ctx, job); err != nil {
		r.failJob(ctx, jobID, err)
		return err
	}
	return nil
}

func (r *Runner) runPipeline(ctx context.Context, job catalog.ImportJob) error {
	if err := r.jobs.UpdateJobStatus(ctx, job.ID, catalog.JobStatusParsing, ""); err != nil {
		return fmt.Errorf("enter parsing: %w", err)
	}

	total, err := r.countRows(ctx, job.FileKey)
	if err != nil {
		return err
	}
	if err := r.jobs.SetTotalRows(ctx, job.ID, total); err != nil {
		return fmt.Errorf("record total rows: %w", err)
	}
	r.logger.Info("source parsed",
		zap.String("job_id", job.ID),
		zap.Int64("total_rows", total),
	)

	if total == 0 {
		return r.complete(ctx, job, total, 0)
	}

	if err := r.jobs.UpdateJobStatus(ctx, job.ID, catalog.JobStatusImporting, ""); err != nil {
		return fmt.Errorf("enter importing: %w", err)
	}
	r.tracker.Reset(job.ID)
	if err := r.tracker.Record(ctx, job.ID, 0, true); err != nil {
		return err
	}
	r.tracker.Reset(job.ID)

	processed, err := r.importRows(ctx, job.ID, job.FileKey)
	if err != nil {
		return err
	}
	return r.complete(ctx, job, total, processed)
}

// countRows streams the source once, counting data rows without
// materializing them. One full read is deliberately spent here so the
// importing pass can report progress against a known total.
func (r *Runner) countRows(ctx context.Context, fileKey string) (int64, error) {
	rc, err := r.source.Open(ctx, fileKey)
	if err != nil {
		return 0, fmt.Errorf("open source for counting: %w", err)
	}
	defer r.closeSource(rc)

	reader := csv.NewReader(rc)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	var lines int64 = -1 // header does not count
	for {
		if _, err := reader.Read(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, fmt.Errorf("count rows: %w", err)
		}
		lines++
	}
	if lines < 0 {
		lines = 0
	}
	return lines, nil
}

// importRows streams the source a second time, grouping rows into
// fixed-size chunks. Within a chunk, rows sharing a normalized SKU collapse
// to the last occurrence; processed counts reflect rows consumed, not rows
// written, so dedup losers and skipped rows still advance progress.
func (r *Runner) importRows(ctx context.Context, jobID, fileKey string) (int64, error) {
	rc, err := r.source.Open(ctx, fileKey)
	if err != nil {
		return 0, fmt.Errorf("open source for import: %w", err)
	}
	defer r.closeSource(rc)

	reader := csv.NewReader(rc)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, fmt.Errorf("read header: %w", err)
	}

	var processed int64
	chunk := make(map[string]catalog.Product, r.cfg.ChunkSize)
	chunkRows := 0

	flush := func() error {
		start := r.clock.Now()
		if err := r.products.UpsertBatch(ctx, chunk); err != nil {
			return fmt.Errorf("upsert chunk: %w", err)
		}
		processed += int64(chunkRows)
		metrics.ObserveChunk(len(chunk), r.clock.Now().Sub(start))
		metrics.ObserveRowsProcessed(chunkRows)
		if err := r.tracker.Record(ctx, jobID, processed, false); err != nil {
			return err
		}
		r.logger.Debug("chunk applied",
			zap.String("job_id", jobID),
			zap.Int("rows", chunkRows),
			zap.Int64("processed", processed),
		)
		chunk = make(map[string]catalog.Product, r.cfg.ChunkSize)
		chunkRows = 0
		return nil
	}

	for {
		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return processed, fmt.Errorf("read row: %w", err)
		}

		chunkRows++
		if product, ok := catalog.NormalizeRow(rowToMap(header, record)); ok {
			chunk[product.SKUNorm] = product
		}

		if chunkRows >= r.cfg.ChunkSize {
			if err := flush(); err != nil {
				return processed, err
			}
		}
	}

	// Final partial chunk is flushed the same way after the stream ends.
	if chunkRows > 0 {
		if err := flush(); err != nil {
			return processed, err
		}
	}
	return processed, nil
}

func (r *Runner) complete(ctx context.Context, job catalog.ImportJob, total, processed int64) error {
	// The final durable count lands before the terminal transition: a
	// failed write here still marks the job failed and restartable, and a
	// completed job is never observable with a stale durable counter.
	if err := r.tracker.Finish(ctx, job.ID, processed); err != nil {
		return err
	}
	if err := r.jobs.UpdateJobStatus(ctx, job.ID, catalog.JobStatusCompleted, ""); err != nil {
		return fmt.Errorf("enter completed: %w", err)
	}
	metrics.ObserveJob(string(catalog.JobStatusCompleted))
	r.logger.Info("import job completed",
		zap.String("job_id", job.ID),
		zap.Int64("total_rows", total),
		zap.Int64("processed_rows", processed),
	)

	r.enqueueCompletionEvent(ctx, job, total, processed)
	return nil
}

// enqueueCompletionEvent hands the webhook fan-out to a separate unit of
// work; delivery outcomes never affect the completed job.
func (r *Runner) enqueueCompletionEvent(ctx context.Context, job catalog.ImportJob, total, processed int64) {
	payload := map[string]any{
		"type":             string(catalog.EventImportCompleted),
		"job_id":           job.ID,
		"source_reference": job.FileKey,
		"total_rows":       total,
		"processed_rows":   processed,
		"status":           string(catalog.JobStatusCompleted),
		"timestamp":        r.clock.Now().UTC().Format(time.RFC3339),
	}
	task := queue.NewWebhookTask(catalog.EventImportCompleted, payload, r.clock.Now())
	if err := r.tasks.Enqueue(ctx, task); err != nil {
		r.logger.Warn("enqueue completion event failed",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
	}
}

func (r *Runner) failJob(ctx context.Context, jobID string, cause error) {
	metrics.ObserveJob(string(catalog.JobStatusFailed))
	if err := r.jobs.UpdateJobStatus(ctx, jobID, catalog.JobStatusFailed, cause.Error()); err != nil {
		r.logger.Error("fail job status update",
			zap.String("job_id", jobID),
			zap.Error(err),
		)
	}
	r.tracker.Reset(jobID)
	r.logger.Error("import job failed", zap.String("job_id", jobID), zap.Error(cause))
}

func (r *Runner) closeSource(rc io.ReadCloser) {
	if err := rc.Close(); err != nil {
		r.logger.Warn("close source stream failed", zap.Error(err))
	}
}

// rowToMap pairs record fields with their header columns. Column names are
// case-folded so "SKU" and "sku" headers address the same field; short rows
// degrade to empty values.
func rowToMap(header, record []string) map[string]string {
	row := make(map[string]string, len(header))
	for i, col := range header {
		name := strings.ToLower(strings.TrimSpace(col))
		if i < len(record) {
			row[name] = record[i]
		} else {
			row[name] = ""
		}
	}
	return row
}
