// Package progress implements dual-tier import progress tracking: an
// ephemeral cache written at every chunk boundary and the durable job store
// written on a coarser cadence to bound write amplification.
package progress

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/skuline/product-import/internal/catalog"
)

// Source identifies which tier served a progress read.
type Source string

// Progress read sources.
const (
	SourceCache   Source = "cache"
	SourceDurable Source = "durable"
)

// Snapshot is the result of one progress read.
type Snapshot struct {
	JobID      string
	Processed  int64
	Source     Source
	ObservedAt time.Time
}

// Config tunes write cadence and terminal retention.
type Config struct {
	// DurableEvery writes the durable tier on every Nth record call.
	DurableEvery int
	// TerminalTTL bounds how long the cache entry outlives a terminal job.
	TerminalTTL time.Duration
}

const (
	defaultDurableEvery = 5
	defaultTerminalTTL  = time.Hour
)

// Tracker is the single source of truth for job progress reads. Writers are
// serialized per job by the queue layer; readers may poll concurrently.
type Tracker struct {
	cache  catalog.ProgressCache
	jobs   catalog.JobStore
	clock  catalog.Clock
	cfg    Config
	logger *zap.Logger

	mu     sync.Mutex
	writes map[string]int
}

// NewTracker constructs a Tracker over the two tiers.
func NewTracker(
	cache catalog.ProgressCache,
	jobs catalog.JobStore,
	clock catalog.Clock,
	cfg Config,
	logger *zap.Logger,
) *Tracker {
	if cfg.DurableEvery <= 0 {
		cfg.DurableEvery = defaultDurableEvery
	}
	if cfg.TerminalTTL <= 0 {
		cfg.TerminalTTL = defaultTerminalTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		cache:  cache,
		jobs:   jobs,
		clock:  clock,
		cfg:    cfg,
		logger: logger,
		writes: make(map[string]int),
	}
}

// Record notes the running processed count at a chunk boundary. The cache is
// written every call; the durable store every Nth call and always when final
// is set. Cache failures are logged and swallowed so the ephemeral tier can
// never fail an import; durable failures propagate.
func (t *Tracker) Record(ctx context.Context, jobID string, processed int64, final bool) error {
	if err := t.cache.SetProgress(ctx, jobID, processed); err != nil {
		t.logger.Warn("progress cache write failed",
			zap.String("job_id", jobID),
			zap.Error(err),
		)
	}

	t.mu.Lock()
	t.writes[jobID]++
	n := t.writes[jobID]
	t.mu.Unlock()

	if !final && n%t.cfg.DurableEvery != 0 {
		return nil
	}
	if err := t.jobs.SetProcessedRows(ctx, jobID, processed); err != nil {
		return fmt.Errorf("record durable progress: %w", err)
	}
	return nil
}

// Read returns the freshest processed count, preferring the cache value when
// present (including zero) and falling back to the durable store otherwise.
func (t *Tracker) Read(ctx context.Context, jobID string) (Snapshot, error) {
	now := t.clock.Now()
	processed, err := t.cache.GetProgress(ctx, jobID)
	if err == nil {
		return Snapshot{JobID: jobID, Processed: processed, Source: SourceCache, ObservedAt: now}, nil
	}
	if !errors.Is(err, catalog.ErrNotFound) {
		t.logger.Warn("progress cache read failed",
			zap.String("job_id", jobID),
			zap.Error(err),
		)
	}

	job, err := t.jobs.GetJob(ctx, jobID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read durable progress: %w", err)
	}
	return Snapshot{JobID: jobID, Processed: job.ProcessedRows, Source: SourceDurable, ObservedAt: now}, nil
}

// Finish records the terminal count in both tiers and puts the cache entry
// on a bounded grace window for trailing status polls.
func (t *Tracker) Finish(ctx context.Context, jobID string, processed int64) error {
	if err := t.Record(ctx, jobID, processed, true); err != nil {
		return err
	}
	if err := t.cache.ExpireProgress(ctx, jobID, t.cfg.TerminalTTL); err != nil {
		t.logger.Warn("progress cache expire failed",
			zap.String("job_id", jobID),
			zap.Error(err),
		)
	}
	t.mu.Lock()
	delete(t.writes, jobID)
	t.mu.Unlock()
	return nil
}

// Reset clears the per-job write cadence counter; callers invoke it when a
// job restarts so the durable cadence starts from the first chunk again.
func (t *Tracker) Reset(jobID string) {
	t.mu.Lock()
	delete(t.writes, jobID)
	t.mu.Unlock()
}
