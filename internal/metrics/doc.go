// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

/*
Package metrics provides Prometheus metrics collection and export for observability.

This package instruments the three pipeline stages and the supporting
infrastructure using the Prometheus client library. Metrics are registered
on the default registry via promauto and exposed at the /metrics endpoint
of the ops server in Prometheus text format:

	curl http://localhost:8484/metrics

# Available Metrics

OpenProject client:
  - openproject_requests_total: Requests sent to the OpenProject API (counter)
    Labels: endpoint, status (HTTP status code, or "error" for transport failures)
  - openproject_request_duration_seconds: Request latency (histogram)
    Labels: endpoint
  - openproject_retries_total: Retry attempts by cause (counter)
    Labels: endpoint, reason (timeout, connection, server_error, rate_limited)
  - openproject_rate_limit_wait_seconds: Time spent waiting on the local
    rate limiter before a request is released (histogram)

Circuit breaker:
  - circuit_breaker_state: Current state (gauge)
    Labels: name
    Values: 0=closed, 1=half-open, 2=open
  - circuit_breaker_requests_total: Requests through the breaker (counter)
    Labels: name, result (success, failure, rejected)
  - circuit_breaker_consecutive_failures: Current failure streak (gauge)
    Labels: name
  - circuit_breaker_state_transitions_total: State changes (counter)
    Labels: name, from_state, to_state

Collector:
  - collector_pages_total: API pages persisted to the raw layer (counter)
    Labels: entity, outcome (success, failure)

Extractor:
  - extractor_rows_written_total: Rows written to the tool layer (counter)
    Labels: entity
  - extractor_rows_skipped_total: Raw records dropped during extraction (counter)
    Labels: entity, reason
  - extractor_duplicates_total: Entities already seen in the same run (counter)
    Labels: entity
  - extractor_batch_size: Raw rows read per batch (histogram)

Converter:
  - converter_rows_written_total: Rows upserted into domain tables (counter)
    Labels: kind
  - converter_rows_skipped_total: Tool rows dropped during conversion (counter)
    Labels: kind, reason
  - converter_rows_deleted_total: Stale domain rows removed before upsert (counter)
    Labels: table

Pipeline:
  - pipeline_stage_duration_seconds: Stage wall time (histogram)
    Labels: stage (collect, extract, convert)
    Buckets: 1, 5, 10, 30, 60, 120, 300, 600
  - pipeline_stage_records_total: Records processed per stage (counter)
    Labels: stage
  - pipeline_stage_errors_total: Stage failures by category (counter)
    Labels: stage, error_type (openproject, database, validation, other)
  - pipeline_last_success_timestamp: Unix time of last successful stage (gauge)
    Labels: stage
  - pipeline_runs_total: Completed pipeline runs (counter)
    Labels: mode, status

Database:
  - duckdb_query_duration_seconds: Statement or batch execution time (histogram)
    Labels: operation, table
  - duckdb_query_errors_total: Failed statements (counter)
    Labels: operation, table, error_type

Ops API:
  - api_requests_total: HTTP requests served (counter)
    Labels: method, endpoint, status_code
  - api_request_duration_seconds: Request latency (histogram)
    Labels: method, endpoint
  - api_active_requests: In-flight requests (gauge)
  - api_rate_limit_hits_total: Rate limit rejections (counter)
    Labels: endpoint

System:
  - app_info: Version and build information (gauge)
    Labels: version, go_version
  - app_uptime_seconds: Seconds since process start (gauge)

# Usage

	import "github.com/tomtom215/worklake/internal/metrics"

	start := time.Now()
	resp, err := client.FetchPage(ctx, endpoint, page)
	metrics.RecordOpenProjectRequest(endpoint, status(resp, err), time.Since(start))

All recording functions are safe for concurrent use; synchronization is
handled by the Prometheus client library.

# Cardinality

Labels are restricted to small fixed sets: entity names come from the nine
collected entity types, endpoint labels are the API path templates (never
expanded URLs or query strings), and error types are mapped to a handful of
categories before labeling. No per-connection or per-record labels exist.
*/
package metrics
