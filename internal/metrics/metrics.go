// Package metrics defines the Prometheus collectors for ingest runs, the
// HTTP API and the LLM client. Collectors register with the default
// registry and are served by Handler.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Pipeline
	PipelineBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopsight_pipeline_batches_total",
			Help: "Transaction batches read, by pass",
		},
		[]string{"pass"},
	)

	PipelineRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopsight_pipeline_rows_total",
			Help: "Transaction rows read, by pass and disposition (kept, filtered, skipped)",
		},
		[]string{"pass", "disposition"},
	)

	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopsight_pipeline_runs_total",
			Help: "Completed ingest runs by provenance method or failure",
		},
		[]string{"method"},
	)

	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shopsight_pipeline_duration_seconds",
			Help:    "Wall time of ingest runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	PersistedRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shopsight_persisted_rows",
			Help: "Rows in the most recently persisted table generation",
		},
		[]string{"table"},
	)

	SourceDownloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopsight_source_downloads_total",
			Help: "Raw dataset object downloads by outcome",
		},
		[]string{"outcome"},
	)

	SourceDownloadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shopsight_source_download_bytes_total",
			Help: "Bytes downloaded from the object store",
		},
	)

	// API
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shopsight_api_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	SnapshotReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopsight_snapshot_reloads_total",
			Help: "Query snapshot reloads by outcome",
		},
		[]string{"outcome"},
	)

	// LLM
	LLMCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopsight_llm_calls_total",
			Help: "Language model calls by operation and outcome (ok, error, fallback, breaker_open)",
		},
		[]string{"operation", "outcome"},
	)

	LLMBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shopsight_llm_breaker_state",
			Help: "LLM circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)
)

// RecordBatch counts one batch of a pass.
func RecordBatch(pass string, kept, filtered, skipped int) {
	PipelineBatches.WithLabelValues(pass).Inc()
	PipelineRows.WithLabelValues(pass, "kept").Add(float64(kept))
	PipelineRows.WithLabelValues(pass, "filtered").Add(float64(filtered))
	PipelineRows.WithLabelValues(pass, "skipped").Add(float64(skipped))
}

// RecordRun records a finished ingest run. method is "failed" on error.
func RecordRun(method string, d time.Duration) {
	PipelineRuns.WithLabelValues(method).Inc()
	PipelineDuration.Observe(d.Seconds())
}

// RecordPersisted sets the row gauges after a successful save.
func RecordPersisted(products, sales int) {
	PersistedRows.WithLabelValues("products").Set(float64(products))
	PersistedRows.WithLabelValues("sales").Set(float64(sales))
}

// RecordDownload counts one object download.
func RecordDownload(bytes int64, err error) {
	if err != nil {
		SourceDownloads.WithLabelValues("error").Inc()
		return
	}
	SourceDownloads.WithLabelValues("ok").Inc()
	SourceDownloadBytes.Add(float64(bytes))
}

// RecordAPIRequest observes one HTTP request.
func RecordAPIRequest(method, route string, status int, d time.Duration) {
	APIRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// RecordReload counts a snapshot reload.
func RecordReload(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	SnapshotReloads.WithLabelValues(outcome).Inc()
}

// RecordLLMCall counts one language model operation.
func RecordLLMCall(operation, outcome string) {
	LLMCalls.WithLabelValues(operation, outcome).Inc()
}

// SetBreakerState publishes the LLM breaker state.
func SetBreakerState(state int) {
	LLMBreakerState.Set(float64(state))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
