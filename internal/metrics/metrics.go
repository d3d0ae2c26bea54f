// Package metrics provides Prometheus metrics for the shipment sync
// pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	ShipmentsProcessed *prometheus.CounterVec
	ShipmentsSkipped   *prometheus.CounterVec
	RowsWritten        *prometheus.CounterVec
	BatchesWritten     *prometheus.CounterVec
	BatchFallbacks     prometheus.Counter
	PlaceholdersSwept  prometheus.Counter

	APIRetries prometheus.Counter
	APIErrors  *prometheus.CounterVec

	LockContention prometheus.Counter
	RunsDegraded   prometheus.Counter

	RunDuration   *prometheus.HistogramVec
	BatchDuration prometheus.Histogram

	CheckpointCursor prometheus.Gauge
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool
	Address string
}

var defaultMetrics *Metrics

// Init initializes the global metrics. Call once at startup.
func Init(namespace string) *Metrics {
	if namespace == "" {
		namespace = "shipsync"
	}

	m := &Metrics{
		ShipmentsProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "shipments_processed_total",
				Help:      "Total number of shipments transformed into export rows",
			},
			[]string{"mode"},
		),
		ShipmentsSkipped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "shipments_skipped_total",
				Help:      "Total number of shipments skipped (already seen in lookback window)",
			},
			[]string{"mode"},
		),
		RowsWritten: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_written_total",
				Help:      "Total number of export rows durably written",
			},
			[]string{"mode"},
		),
		BatchesWritten: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_written_total",
				Help:      "Total number of batch writes",
			},
			[]string{"mode"},
		),
		BatchFallbacks: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_fallbacks_total",
				Help:      "Total number of bulk writes that fell back to per-row appends",
			},
		),
		PlaceholdersSwept: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "placeholder_rows_swept_total",
				Help:      "Total number of placeholder rows removed before a write",
			},
		),
		APIRetries: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_retries_total",
				Help:      "Total number of API retry attempts",
			},
		),
		APIErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_errors_total",
				Help:      "Total number of terminal API errors",
			},
			[]string{"kind"}, // "transient_exhausted" | "permanent"
		),
		LockContention: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lock_contention_total",
				Help:      "Total number of runs abandoned because the lock was held",
			},
		),
		RunsDegraded: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_degraded_total",
				Help:      "Total number of runs that completed with skipped pages",
			},
		),
		RunDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall-clock duration of a pipeline run",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17m
			},
			[]string{"mode", "outcome"},
		),
		BatchDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_write_duration_seconds",
				Help:      "Time to durably write one batch",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		CheckpointCursor: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "backfill_checkpoint_unix_seconds",
				Help:      "Unix timestamp of the persisted backfill cursor",
			},
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the global metrics instance, or nil before Init.
func Get() *Metrics {
	return defaultMetrics
}

// StartServer starts an HTTP server for Prometheus scraping. Returns
// immediately when disabled; otherwise blocks until the server exits.
func StartServer(cfg Config) error {
	if !cfg.Enabled {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return http.ListenAndServe(cfg.Address, mux)
}

// IncAPIRetries increments the API retry counter.
func (m *Metrics) IncAPIRetries() {
	m.APIRetries.Inc()
}

// IncAPIErrors increments the terminal API error counter.
func (m *Metrics) IncAPIErrors(kind string) {
	m.APIErrors.WithLabelValues(kind).Inc()
}

// AddShipmentsProcessed adds to the processed counter.
func (m *Metrics) AddShipmentsProcessed(mode string, n float64) {
	m.ShipmentsProcessed.WithLabelValues(mode).Add(n)
}

// AddShipmentsSkipped adds to the duplicate-skip counter.
func (m *Metrics) AddShipmentsSkipped(mode string, n float64) {
	m.ShipmentsSkipped.WithLabelValues(mode).Add(n)
}

// AddRowsWritten adds to the rows-written counter.
func (m *Metrics) AddRowsWritten(mode string, n float64) {
	m.RowsWritten.WithLabelValues(mode).Add(n)
}

// IncBatchesWritten increments the batch counter.
func (m *Metrics) IncBatchesWritten(mode string) {
	m.BatchesWritten.WithLabelValues(mode).Inc()
}

// ObserveRunDuration records the duration of one run.
func (m *Metrics) ObserveRunDuration(mode, outcome string, seconds float64) {
	m.RunDuration.WithLabelValues(mode, outcome).Observe(seconds)
}

// SetCheckpointCursor records the backfill cursor position.
func (m *Metrics) SetCheckpointCursor(unixSeconds float64) {
	m.CheckpointCursor.Set(unixSeconds)
}
