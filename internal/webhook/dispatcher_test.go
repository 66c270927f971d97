package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skuline/product-import/internal/catalog"
	storageMemory "github.com/skuline/product-import/internal/storage/memory"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func newDispatcherHarness(t *testing.T, cfg Config) (*Dispatcher, *storageMemory.SubscriptionStore) {
	t.Helper()
	subs := storageMemory.NewSubscriptionStore()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	return New(subs, nil, clock, cfg, nil), subs
}

func createSub(t *testing.T, subs *storageMemory.SubscriptionStore, id, url string, event catalog.EventType, enabled bool) {
	t.Helper()
	err := subs.CreateSubscription(context.Background(), catalog.Subscription{
		ID:        id,
		Name:      "sub " + id,
		TargetURL: url,
		EventType: event,
		Enabled:   enabled,
		CreatedAt: time.Unix(1700000000, 0),
	})
	require.NoError(t, err)
}

func TestDispatcher_Dispatch_RecordsSuccess(t *testing.T) {
	t.Parallel()

	var gotBody atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		gotBody.Store(payload)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d, subs := newDispatcherHarness(t, Config{})
	createSub(t, subs, "sub-1", srv.URL, catalog.EventImportCompleted, true)

	payload := map[string]any{"type": "import.completed", "job_id": "job-1"}
	require.NoError(t, d.Dispatch(context.Background(), catalog.EventImportCompleted, payload))

	sub, err := subs.GetSubscription(context.Background(), "sub-1")
	require.NoError(t, err)
	require.NotNil(t, sub.LastStatusCode)
	require.Equal(t, http.StatusNoContent, *sub.LastStatusCode)
	require.Empty(t, sub.LastError)
	require.NotNil(t, sub.LastTriggeredAt)

	delivered, ok := gotBody.Load().(map[string]any)
	require.True(t, ok)
	require.Equal(t, "job-1", delivered["job_id"])
}

func TestDispatcher_Dispatch_ErrorStatusIsDeliveredNotRetried(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d, subs := newDispatcherHarness(t, Config{MaxAttempts: 3, RetryDelay: time.Millisecond})
	createSub(t, subs, "sub-1", srv.URL, catalog.EventImportCompleted, true)

	require.NoError(t, d.Dispatch(context.Background(), catalog.EventImportCompleted, map[string]any{}))

	require.Equal(t, int32(1), hits.Load(), "an HTTP response of any status ends the attempt chain")
	sub, err := subs.GetSubscription(context.Background(), "sub-1")
	require.NoError(t, err)
	require.NotNil(t, sub.LastStatusCode)
	require.Equal(t, http.StatusInternalServerError, *sub.LastStatusCode)
	require.Empty(t, sub.LastError)
}

func TestDispatcher_Dispatch_TransportFailureRetriesThenRecords(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	target := srv.URL
	srv.Close() // connections now refused

	d, subs := newDispatcherHarness(t, Config{MaxAttempts: 3, RetryDelay: time.Millisecond})
	createSub(t, subs, "sub-1", target, catalog.EventImportCompleted, true)

	require.NoError(t, d.Dispatch(context.Background(), catalog.EventImportCompleted, map[string]any{}),
		"delivery failure must not fail the dispatch")

	sub, err := subs.GetSubscription(context.Background(), "sub-1")
	require.NoError(t, err)
	require.Nil(t, sub.LastStatusCode)
	require.NotEmpty(t, sub.LastError)
	require.NotNil(t, sub.LastTriggeredAt)
}

func TestDispatcher_Dispatch_RecoveringEndpointSucceedsWithinRetries(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			// Drop the connection to simulate a transport failure.
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			require.NoError(t, conn.Close())
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d, subs := newDispatcherHarness(t, Config{MaxAttempts: 3, RetryDelay: time.Millisecond})
	createSub(t, subs, "sub-1", srv.URL, catalog.EventImportCompleted, true)

	require.NoError(t, d.Dispatch(context.Background(), catalog.EventImportCompleted, map[string]any{}))

	sub, err := subs.GetSubscription(context.Background(), "sub-1")
	require.NoError(t, err)
	require.NotNil(t, sub.LastStatusCode)
	require.Equal(t, http.StatusOK, *sub.LastStatusCode)
	require.Empty(t, sub.LastError)
}

func TestDispatcher_Dispatch_SkipsDisabledAndOtherEvents(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d, subs := newDispatcherHarness(t, Config{})
	createSub(t, subs, "sub-disabled", srv.URL, catalog.EventImportCompleted, false)
	createSub(t, subs, "sub-other", srv.URL, catalog.EventProductCreated, true)

	require.NoError(t, d.Dispatch(context.Background(), catalog.EventImportCompleted, map[string]any{}))
	require.Zero(t, hits.Load())
}

func TestDispatcher_Dispatch_EachSubscriptionIndependent(t *testing.T) {
	t.Parallel()

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	badURL := bad.URL
	bad.Close()

	d, subs := newDispatcherHarness(t, Config{MaxAttempts: 2, RetryDelay: time.Millisecond})
	createSub(t, subs, "sub-bad", badURL, catalog.EventImportCompleted, true)
	createSub(t, subs, "sub-good", good.URL, catalog.EventImportCompleted, true)

	require.NoError(t, d.Dispatch(context.Background(), catalog.EventImportCompleted, map[string]any{}))

	goodSub, err := subs.GetSubscription(context.Background(), "sub-good")
	require.NoError(t, err)
	require.NotNil(t, goodSub.LastStatusCode)
	require.Equal(t, http.StatusOK, *goodSub.LastStatusCode)

	badSub, err := subs.GetSubscription(context.Background(), "sub-bad")
	require.NoError(t, err)
	require.Nil(t, badSub.LastStatusCode)
	require.NotEmpty(t, badSub.LastError)
}

func TestDispatcher_Test_DeliversToSingleSubscription(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d, subs := newDispatcherHarness(t, Config{})
	createSub(t, subs, "sub-1", srv.URL, catalog.EventProductUpdated, true)

	sub, err := subs.GetSubscription(context.Background(), "sub-1")
	require.NoError(t, err)

	outcome, err := d.Test(context.Background(), sub, map[string]any{"test": true})
	require.NoError(t, err)
	require.NotNil(t, outcome.StatusCode)
	require.Equal(t, http.StatusAccepted, *outcome.StatusCode)

	stored, err := subs.GetSubscription(context.Background(), "sub-1")
	require.NoError(t, err)
	require.NotNil(t, stored.LastStatusCode)
	require.Equal(t, http.StatusAccepted, *stored.LastStatusCode)
}

func TestRetryPolicy_Bounds(t *testing.T) {
	t.Parallel()

	p := newRetryPolicy(3, time.Millisecond)
	err := context.DeadlineExceeded

	require.True(t, p.ShouldRetry(err, 1))
	require.True(t, p.ShouldRetry(err, 2))
	require.False(t, p.ShouldRetry(err, 3), "attempts are capped")
	require.False(t, p.ShouldRetry(nil, 1))
	require.False(t, p.ShouldRetry(context.Canceled, 1))
}
