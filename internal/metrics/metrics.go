// Package metrics exposes Prometheus collectors for the import service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	importJobsTotal          *prometheus.CounterVec
	importRowsProcessedTotal prometheus.Counter
	importChunkBatchSize     prometheus.Histogram
	importChunkDuration      prometheus.Histogram
	webhookDeliveriesTotal   *prometheus.CounterVec
	httpRequestsTotal        *prometheus.CounterVec
	httpRequestDuration      *prometheus.HistogramVec
	activeWorkers            prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		importJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "import_jobs_total",
				Help: "Total number of import jobs reaching a terminal state, labeled by status.",
			},
			[]string{"status"},
		)

		importRowsProcessedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "import_rows_processed_total",
				Help: "Total number of source rows consumed by the import pipeline.",
			},
		)

		importChunkBatchSize = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "import_chunk_batch_size",
				Help:    "Deduplicated batch sizes handed to the product upserter.",
				Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500},
			},
		)

		importChunkDuration = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "import_chunk_duration_seconds",
				Help:    "Histogram of per-chunk upsert latencies.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		)

		webhookDeliveriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_deliveries_total",
				Help: "Total webhook delivery attempts, labeled by event type and outcome.",
			},
			[]string{"event_type", "outcome"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "import_active_workers",
				Help: "Number of workers currently executing a task.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob increments the terminal job counter for the given status.
func ObserveJob(status string) {
	if importJobsTotal == nil {
		return
	}
	importJobsTotal.WithLabelValues(status).Inc()
}

// ObserveRowsProcessed adds consumed rows to the pipeline counter.
func ObserveRowsProcessed(rows int) {
	if importRowsProcessedTotal == nil || rows <= 0 {
		return
	}
	importRowsProcessedTotal.Add(float64(rows))
}

// ObserveChunk records one applied chunk's batch size and latency.
func ObserveChunk(batchSize int, duration time.Duration) {
	if importChunkBatchSize == nil {
		return
	}
	importChunkBatchSize.Observe(float64(batchSize))
	importChunkDuration.Observe(duration.Seconds())
}

// ObserveWebhookDelivery increments the delivery counter.
func ObserveWebhookDelivery(eventType, outcome string) {
	if webhookDeliveriesTotal == nil {
		return
	}
	webhookDeliveriesTotal.WithLabelValues(eventType, outcome).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if activeWorkers != nil {
		activeWorkers.Inc()
	}
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if activeWorkers != nil {
		activeWorkers.Dec()
	}
}
