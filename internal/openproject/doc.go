// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

/*
Package openproject implements the HTTP client for the OpenProject API v3.

The client wraps every outgoing request in pacing, retry, and circuit
breaker machinery and hands back result values the collector can persist
whether the request worked or not.

Key Components:

  - Client: paced, retrying HTTP client with typed endpoint helpers
  - RequestResult: outcome value for one logical request (success payload or
    failure description, last status code, URL and query parameters)
  - pacer: sliding-window request budget plus even inter-request spacing

Request Cycle:

One call to a Fetch* helper is one logical request. The pacer admits the
cycle once, then up to retry_attempts HTTP attempts run against the same
URL:

  - Timeouts, transport errors, and 5xx: exponential backoff (1s, 2s, 4s, …)
  - 429: sleeps the server's Retry-After (default 60s) without advancing the
    backoff exponent
  - Other 4xx: terminal, no retry
  - Exhausted attempts: failure result, never an error

Endpoints:

Work packages, projects, users, time entries, and versions are paginated via
pageSize plus the API's offset parameter, which carries a 1-based page
number despite its name. Statuses, types, and priorities are single
requests. Activities are probed at two candidate paths because the endpoint
moved between OpenProject versions.

Usage Example:

	client := openproject.New(&cfg.OpenProject)

	result, err := client.FetchWorkPackages(ctx, 100, 1, nil)
	if err != nil {
	    return err // cancelled or circuit open
	}
	if !result.Success {
	    logging.Error().Str("detail", result.Err).Msg("Page fetch failed")
	}

Thread Safety:

All methods are safe for concurrent use, though the pipeline itself issues
requests strictly sequentially.
*/
package openproject
