package importer

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	cacheMemory "github.com/skuline/product-import/internal/cache/memory"
	"github.com/skuline/product-import/internal/catalog"
	"github.com/skuline/product-import/internal/progress"
	queueMemory "github.com/skuline/product-import/internal/queue/memory"
	storageMemory "github.com/skuline/product-import/internal/storage/memory"
)

type fakeSource struct {
	mu    sync.Mutex
	files map[string]string
	opens int
}

func (f *fakeSource) Open(_ context.Context, fileKey string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	data, ok := f.files[fileKey]
	if !ok {
		return nil, fmt.Errorf("no such object %q", fileKey)
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

func (f *fakeSource) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

type failingProductStore struct {
	catalog.ProductStore
}

func (failingProductStore) UpsertBatch(context.Context, map[string]catalog.Product) error {
	return fmt.Errorf("connection reset")
}

type finalWriteFailingJobStore struct {
	*storageMemory.JobStore
}

func (s finalWriteFailingJobStore) SetProcessedRows(ctx context.Context, jobID string, processed int64) error {
	if processed > 0 {
		return fmt.Errorf("connection reset")
	}
	return s.JobStore.SetProcessedRows(ctx, jobID, processed)
}

type recordingCache struct {
	*cacheMemory.ProgressCache
	mu     sync.Mutex
	values []int64
}

func (c *recordingCache) SetProgress(ctx context.Context, jobID string, processed int64) error {
	c.mu.Lock()
	c.values = append(c.values, processed)
	c.mu.Unlock()
	return c.ProgressCache.SetProgress(ctx, jobID, processed)
}

func (c *recordingCache) seen() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int64, len(c.values))
	copy(out, c.values)
	return out
}

type runnerHarness struct {
	jobs     *storageMemory.JobStore
	products *storageMemory.ProductStore
	source   *fakeSource
	cache    *cacheMemory.ProgressCache
	tracker  *progress.Tracker
	tasks    *queueMemory.Queue
	clock    *fakeClock
}

func newRunnerHarness(t *testing.T, chunkSize int) (*Runner, *runnerHarness) {
	t.Helper()
	h := &runnerHarness{
		jobs:     storageMemory.NewJobStore(),
		products: storageMemory.NewProductStore(),
		source:   &fakeSource{files: make(map[string]string)},
		cache:    cacheMemory.NewProgressCache(),
		tasks:    queueMemory.NewQueue(8),
		clock:    &fakeClock{now: time.Unix(1700000000, 0)},
	}
	h.tracker = progress.NewTracker(h.cache, h.jobs, h.clock, progress.Config{}, nil)
	r := New(h.jobs, h.products, h.source, h.tracker, h.tasks, h.clock, Config{ChunkSize: chunkSize}, nil)
	return r, h
}

func (h *runnerHarness) createJob(t *testing.T, jobID, fileKey string) {
	t.Helper()
	err := h.jobs.CreateJob(context.Background(), catalog.ImportJob{
		ID:      jobID,
		FileKey: fileKey,
		Status:  catalog.JobStatusQueued,
	})
	require.NoError(t, err)
}

func buildCSV(rows int) string {
	var b strings.Builder
	b.WriteString("sku,name,description\n")
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&b, "SKU-%04d,Product %d,Desc %d\n", i, i, i)
	}
	return b.String()
}

func TestRunner_RunImport_ChunkedToCompletion(t *testing.T) {
	t.Parallel()

	runner, h := newRunnerHarness(t, 1000)
	h.source.files["imports/job-1.csv"] = buildCSV(2500)
	h.createJob(t, "job-1", "imports/job-1.csv")

	require.NoError(t, runner.RunImport(context.Background(), "job-1"))

	job, err := h.jobs.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, catalog.JobStatusCompleted, job.Status)
	require.NotNil(t, job.TotalRows)
	require.Equal(t, int64(2500), *job.TotalRows)
	require.Equal(t, int64(2500), job.ProcessedRows)
	require.Empty(t, job.ErrorDetail)

	require.Equal(t, 2500, h.products.Count())

	snap, err := h.tracker.Read(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, int64(2500), snap.Processed)
	require.Equal(t, progress.SourceCache, snap.Source)

	task, err := h.tasks.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, catalog.TaskDispatchWebhooks, task.Kind)
	require.Equal(t, catalog.EventImportCompleted, task.EventType)
	require.Equal(t, "job-1", task.Payload["job_id"])
	require.Equal(t, int64(2500), task.Payload["total_rows"])
	require.Equal(t, int64(2500), task.Payload["processed_rows"])
}

func TestRunner_RunImport_EmptySourceCompletes(t *testing.T) {
	t.Parallel()

	runner, h := newRunnerHarness(t, 1000)
	h.source.files["imports/job-empty.csv"] = "sku,name,description\n"
	h.createJob(t, "job-empty", "imports/job-empty.csv")

	require.NoError(t, runner.RunImport(context.Background(), "job-empty"))

	job, err := h.jobs.GetJob(context.Background(), "job-empty")
	require.NoError(t, err)
	require.Equal(t, catalog.JobStatusCompleted, job.Status)
	require.NotNil(t, job.TotalRows)
	require.Zero(t, *job.TotalRows)
	require.Zero(t, job.ProcessedRows)
	require.Zero(t, h.products.Count())

	task, err := h.tasks.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, catalog.EventImportCompleted, task.EventType)
	require.Equal(t, int64(0), task.Payload["total_rows"])
}

func TestRunner_RunImport_MissingFileKeyFails(t *testing.T) {
	t.Parallel()

	runner, h := newRunnerHarness(t, 1000)
	h.createJob(t, "job-nokey", "")

	err := runner.RunImport(context.Background(), "job-nokey")
	require.Error(t, err)
	require.Contains(t, err.Error(), "file_key")

	job, getErr := h.jobs.GetJob(context.Background(), "job-nokey")
	require.NoError(t, getErr)
	require.Equal(t, catalog.JobStatusFailed, job.Status)
	require.Contains(t, job.ErrorDetail, "file_key")
	require.Zero(t, h.source.openCount(), "source must not be opened without a file key")
}

func TestRunner_RunImport_DeduplicatesWithinChunk(t *testing.T) {
	t.Parallel()

	runner, h := newRunnerHarness(t, 1000)
	h.source.files["imports/job-dup.csv"] = strings.Join([]string{
		"sku,name,description",
		"ABC,First,one",
		"abc,Second,two",
		" ABC ,Third,three",
		"",
	}, "\n")
	h.createJob(t, "job-dup", "imports/job-dup.csv")

	require.NoError(t, runner.RunImport(context.Background(), "job-dup"))

	job, err := h.jobs.GetJob(context.Background(), "job-dup")
	require.NoError(t, err)
	require.Equal(t, catalog.JobStatusCompleted, job.Status)
	require.Equal(t, int64(3), job.ProcessedRows, "dedup losers still count as processed")

	require.Equal(t, 1, h.products.Count())
	p, err := h.products.GetBySKUNorm(context.Background(), "abc")
	require.NoError(t, err)
	require.Equal(t, "Third", p.Name, "last occurrence wins")
	require.Equal(t, "ABC", p.SKU)
}

func TestRunner_RunImport_SkipsRowsWithoutSKU(t *testing.T) {
	t.Parallel()

	runner, h := newRunnerHarness(t, 1000)
	h.source.files["imports/job-skip.csv"] = strings.Join([]string{
		"sku,name,description",
		"A-1,Alpha,first",
		",Nameless,skipped",
		"   ,Blank,skipped",
		"B-2,Beta,second",
		"",
	}, "\n")
	h.createJob(t, "job-skip", "imports/job-skip.csv")

	require.NoError(t, runner.RunImport(context.Background(), "job-skip"))

	job, err := h.jobs.GetJob(context.Background(), "job-skip")
	require.NoError(t, err)
	require.Equal(t, catalog.JobStatusCompleted, job.Status)
	require.Equal(t, int64(4), job.ProcessedRows, "skipped rows still advance progress")
	require.Equal(t, 2, h.products.Count())
}

func TestRunner_RunImport_CaseInsensitiveHeader(t *testing.T) {
	t.Parallel()

	runner, h := newRunnerHarness(t, 1000)
	h.source.files["imports/job-hdr.csv"] = "SKU,Name,Description\nX-1,Widget,big\n"
	h.createJob(t, "job-hdr", "imports/job-hdr.csv")

	require.NoError(t, runner.RunImport(context.Background(), "job-hdr"))

	p, err := h.products.GetBySKUNorm(context.Background(), "x-1")
	require.NoError(t, err)
	require.Equal(t, "Widget", p.Name)
}

func TestRunner_RunImport_UpsertFailureMarksJobFailed(t *testing.T) {
	t.Parallel()

	_, h := newRunnerHarness(t, 1000)
	h.source.files["imports/job-dberr.csv"] = buildCSV(5)
	h.createJob(t, "job-dberr", "imports/job-dberr.csv")

	failing := New(
		h.jobs,
		failingProductStore{h.products},
		h.source,
		h.tracker,
		h.tasks,
		h.clock,
		Config{ChunkSize: 1000},
		nil,
	)

	err := failing.RunImport(context.Background(), "job-dberr")
	require.Error(t, err)
	require.Contains(t, err.Error(), "upsert chunk")

	job, getErr := h.jobs.GetJob(context.Background(), "job-dberr")
	require.NoError(t, getErr)
	require.Equal(t, catalog.JobStatusFailed, job.Status)
	require.Contains(t, job.ErrorDetail, "connection reset")
}

func TestRunner_RunImport_FinalProgressWriteFailureKeepsJobRestartable(t *testing.T) {
	t.Parallel()

	_, h := newRunnerHarness(t, 1000)
	h.source.files["imports/job-final.csv"] = buildCSV(3)
	h.createJob(t, "job-final", "imports/job-final.csv")

	jobs := finalWriteFailingJobStore{h.jobs}
	tracker := progress.NewTracker(h.cache, jobs, h.clock, progress.Config{}, nil)
	runner := New(jobs, h.products, h.source, tracker, h.tasks, h.clock, Config{ChunkSize: 1000}, nil)

	err := runner.RunImport(context.Background(), "job-final")
	require.Error(t, err)
	require.Contains(t, err.Error(), "record durable progress")

	job, getErr := h.jobs.GetJob(context.Background(), "job-final")
	require.NoError(t, getErr)
	require.Equal(t, catalog.JobStatusFailed, job.Status,
		"the terminal transition must not precede the final durable write")

	// failed -> queued stays legal so the job can be restarted.
	require.NoError(t, h.jobs.UpdateJobStatus(context.Background(), "job-final", catalog.JobStatusQueued, ""))

	h.tasks.Close()
	_, err = h.tasks.Dequeue(context.Background())
	require.Error(t, err, "no completion event may fire")
}

func TestRunner_RunImport_CacheSeesEveryChunkBoundary(t *testing.T) {
	t.Parallel()

	_, h := newRunnerHarness(t, 1000)
	h.source.files["imports/job-bounds.csv"] = buildCSV(2500)
	h.createJob(t, "job-bounds", "imports/job-bounds.csv")

	cache := &recordingCache{ProgressCache: h.cache}
	tracker := progress.NewTracker(cache, h.jobs, h.clock, progress.Config{}, nil)
	runner := New(h.jobs, h.products, h.source, tracker, h.tasks, h.clock, Config{ChunkSize: 1000}, nil)

	require.NoError(t, runner.RunImport(context.Background(), "job-bounds"))

	// Zero on entering importing, one value per chunk boundary, and the
	// terminal write from Finish.
	require.Equal(t, []int64{0, 1000, 2000, 2500, 2500}, cache.seen())
}

func TestRunner_RunImport_ProgressCadence(t *testing.T) {
	t.Parallel()

	// Small chunks force several tracker writes; the cache sees every chunk
	// boundary while the durable tier lags until the final write.
	runner, h := newRunnerHarness(t, 10)
	h.source.files["imports/job-cadence.csv"] = buildCSV(35)
	h.createJob(t, "job-cadence", "imports/job-cadence.csv")

	require.NoError(t, runner.RunImport(context.Background(), "job-cadence"))

	job, err := h.jobs.GetJob(context.Background(), "job-cadence")
	require.NoError(t, err)
	require.Equal(t, catalog.JobStatusCompleted, job.Status)
	require.Equal(t, int64(35), job.ProcessedRows)

	snap, err := h.tracker.Read(context.Background(), "job-cadence")
	require.NoError(t, err)
	require.Equal(t, int64(35), snap.Processed)
}
