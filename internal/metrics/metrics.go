// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the pipeline:
// - OpenProject API client traffic, retries, and rate limiter waits
// - Collector page counts per entity
// - Extractor and converter row throughput
// - Pipeline stage durations and outcomes
// - DuckDB statement performance
// - Ops API latency and throughput

var (
	// OpenProject Client Metrics
	OpenProjectRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openproject_requests_total",
			Help: "Total number of requests sent to the OpenProject API",
		},
		[]string{"endpoint", "status"},
	)

	OpenProjectRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "openproject_request_duration_seconds",
			Help:    "Duration of OpenProject API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	OpenProjectRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openproject_retries_total",
			Help: "Total number of OpenProject API retry attempts",
		},
		[]string{"endpoint", "reason"}, // "timeout", "server_error", "rate_limited"
	)

	RateLimitWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "openproject_rate_limit_wait_seconds",
			Help:    "Time spent waiting on the local rate limiter before a request",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Collector Metrics
	CollectorPages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_pages_total",
			Help: "Total number of API response pages persisted to the raw layer",
		},
		[]string{"entity", "outcome"}, // outcome: "success", "failure"
	)

	// Extractor Metrics
	ExtractorRowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractor_rows_written_total",
			Help: "Total number of rows written to the tool layer",
		},
		[]string{"entity"},
	)

	ExtractorRowsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractor_rows_skipped_total",
			Help: "Total number of raw records dropped during extraction",
		},
		[]string{"entity", "reason"}, // "decode_failed", "missing_id", "parse_failed"
	)

	ExtractorDuplicates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractor_duplicates_total",
			Help: "Total number of entities skipped as already seen in the same run",
		},
		[]string{"entity"},
	)

	ExtractorBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "extractor_batch_size",
			Help:    "Number of raw rows read per extraction batch",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000},
		},
	)

	// Converter Metrics
	ConverterRowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "converter_rows_written_total",
			Help: "Total number of rows upserted into domain tables",
		},
		[]string{"kind"},
	)

	ConverterRowsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "converter_rows_skipped_total",
			Help: "Total number of tool rows dropped during conversion",
		},
		[]string{"kind", "reason"},
	)

	ConverterRowsDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "converter_rows_deleted_total",
			Help: "Total number of stale domain rows removed before upsert",
		},
		[]string{"table"},
	)

	// Pipeline Stage Metrics
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"stage"}, // "collect", "extract", "convert"
	)

	StageRecordsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stage_records_total",
			Help: "Total number of records processed per pipeline stage",
		},
		[]string{"stage"},
	)

	StageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stage_errors_total",
			Help: "Total number of pipeline stage failures",
		},
		[]string{"stage", "error_type"}, // "openproject", "database", "validation", "other"
	)

	StageLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pipeline_last_success_timestamp",
			Help: "Unix timestamp of the last successful run of each stage",
		},
		[]string{"stage"},
	)

	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Total number of completed pipeline runs",
		},
		[]string{"mode", "status"},
	)

	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB statements and batches in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB statement errors",
		},
		[]string{"operation", "table", "error_type"},
	)

	// Ops API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordOpenProjectRequest records one request against the OpenProject API.
// The status label carries the HTTP status code, or "error" when the request
// never produced a response.
func RecordOpenProjectRequest(endpoint, status string, duration time.Duration) {
	OpenProjectRequests.WithLabelValues(endpoint, status).Inc()
	OpenProjectRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordOpenProjectRetry records a retry attempt and its cause.
func RecordOpenProjectRetry(endpoint, reason string) {
	OpenProjectRetries.WithLabelValues(endpoint, reason).Inc()
}

// RecordRateLimitWait records time spent blocked on the local rate limiter.
func RecordRateLimitWait(duration time.Duration) {
	RateLimitWaitDuration.Observe(duration.Seconds())
}

// RecordPage records a collected API page landing in the raw layer.
func RecordPage(entity string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	CollectorPages.WithLabelValues(entity, outcome).Inc()
}

// RecordDBQuery records a database statement or batch metric
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		errorType := err.Error()
		// Truncate long error messages
		if len(errorType) > 50 {
			errorType = errorType[:50]
		}
		DBQueryErrors.WithLabelValues(operation, table, errorType).Inc()
	}
}

// RecordStage records the outcome of one pipeline stage: wall time, record
// throughput, and either a categorized error or a fresh last-success stamp.
func RecordStage(stage string, duration time.Duration, records int64, err error) {
	StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	StageRecordsProcessed.WithLabelValues(stage).Add(float64(records))
	if err != nil {
		StageErrors.WithLabelValues(stage, categorizeError(err)).Inc()
		return
	}
	StageLastSuccess.WithLabelValues(stage).Set(float64(time.Now().Unix()))
}

// RecordRun records a finished pipeline run by mode and final status.
func RecordRun(mode, status string) {
	PipelineRuns.WithLabelValues(mode, status).Inc()
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// categorizeError maps an error message onto a small fixed label set.
func categorizeError(err error) string {
	msg := err.Error()
	switch {
	case msg == "":
		return "unknown"
	case strings.Contains(msg, "openproject"):
		return "openproject"
	case strings.Contains(msg, "database"), strings.Contains(msg, "duckdb"):
		return "database"
	case strings.Contains(msg, "validation"), strings.Contains(msg, "domain table"):
		return "validation"
	default:
		return "other"
	}
}
