// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

/*
client.go - Core OpenProject API Client

This file provides the Client struct and the HTTP request cycle shared by
every endpoint helper.

Client Features:
  - HTTP Basic authentication (username "apikey", key as password)
  - Request pacing: sliding-window budget plus even inter-request spacing
  - Retry with exponential backoff for timeouts and 5xx responses
  - Server-directed Retry-After handling for 429 responses
  - Optional circuit breaker around full request cycles
  - Context support for cancellation during every sleep

Result Contract:
Ordinary HTTP failures never surface as Go errors. One logical request (a
full retry cycle) returns a RequestResult carrying either the payload or a
failure description, so the collector can persist the outcome either way.
The only error-typed returns are context cancellation and an open circuit
breaker.

Related Files:
  - ratelimit.go: request pacing
  - endpoints.go: typed endpoint helpers and pagination parameters
*/

//nolint:staticcheck // File documentation, not package doc
package openproject

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/worklake/internal/config"
	"github.com/tomtom215/worklake/internal/logging"
	"github.com/tomtom215/worklake/internal/metrics"
)

const userAgent = "worklake/1.0"

// maxErrorBodySize limits the maximum amount of response body read for error reporting
// This prevents unbounded memory allocation when reading large error responses
const maxErrorBodySize = 64 * 1024 // 64KB

// defaultRetryAfter is slept on a 429 response without a usable Retry-After header.
const defaultRetryAfter = 60 * time.Second

// errRequestFailed marks an exhausted request cycle inside the circuit
// breaker so the breaker counts it; Do converts it back into a result value.
var errRequestFailed = errors.New("request failed")

// versionsPathPattern collapses per-project versions paths into one metrics label.
var versionsPathPattern = regexp.MustCompile(`^/api/v3/projects/\d+/versions$`)

// RequestResult is the outcome of one logical API request: a full retry
// cycle against a single URL. Either Payload (Success) or Err (failure) is
// set; StatusCode is the last HTTP status seen, 0 when no response arrived.
// URL and Params are kept for raw-layer persistence.
type RequestResult struct {
	Success    bool
	Payload    []byte
	StatusCode int
	URL        string
	Params     string
	Err        string
}

// Client is an OpenProject API v3 client.
//
// Thread Safety: safe for concurrent use; each request creates its own HTTP
// request and the pacer serializes admission internally.
type Client struct {
	baseURL       string
	apiKey        string
	httpClient    *http.Client
	retryAttempts int
	backoffBase   time.Duration // doubles per backoff step, shrunk by tests
	pacer         *pacer
	cb            *gobreaker.CircuitBreaker[*RequestResult]
	cbName        string
}

// New creates an OpenProject client from the connection configuration.
// A breaker_threshold of 0 leaves the circuit breaker disabled.
func New(cfg *config.OpenProjectConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	rpm := cfg.RateLimitRPM
	if rpm <= 0 {
		rpm = 100
	}

	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}

	c := &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		httpClient:    &http.Client{Timeout: timeout},
		retryAttempts: attempts,
		backoffBase:   time.Second,
		pacer:         newPacer(rpm),
	}

	if cfg.BreakerThreshold > 0 {
		c.cbName = "openproject-api"
		c.cb = newBreaker(c.cbName, cfg.BreakerThreshold)
	}

	return c
}

// Do performs one logical request against endpoint with the given query
// parameters. HTTP failures, including an exhausted retry budget, come back
// as a failure-valued RequestResult; the returned error is non-nil only for
// context cancellation or an open circuit breaker.
func (c *Client) Do(ctx context.Context, endpoint string, params url.Values) (*RequestResult, error) {
	if c.cb == nil {
		return c.fetch(ctx, endpoint, params)
	}

	result, err := c.cb.Execute(func() (*RequestResult, error) {
		res, err := c.fetch(ctx, endpoint, params)
		if err != nil {
			return nil, err
		}
		if !res.Success {
			return res, errRequestFailed
		}
		return res, nil
	})

	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(c.cbName, "success").Inc()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(c.cbName).Set(0)
		return result, nil

	case errors.Is(err, errRequestFailed):
		metrics.CircuitBreakerRequests.WithLabelValues(c.cbName, "failure").Inc()
		counts := c.cb.Counts()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(c.cbName).Set(float64(counts.ConsecutiveFailures))
		return result, nil

	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(c.cbName, "rejected").Inc()
		logging.Warn().Str("endpoint", endpoint).Err(err).Msg("Request rejected by circuit breaker")
		return nil, fmt.Errorf("openproject circuit breaker: %w", err)

	default:
		return nil, err
	}
}

// fetch runs the retry cycle for a single URL. The pacer admits the cycle
// once; retry spacing comes from the backoff sleeps. Timeouts, transport
// errors, and 5xx responses back off exponentially; 429 sleeps the
// server-directed delay without advancing the backoff exponent; other 4xx
// are terminal.
func (c *Client) fetch(ctx context.Context, endpoint string, params url.Values) (*RequestResult, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL := c.baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	result := &RequestResult{
		URL:    reqURL,
		Params: encodeParams(params),
	}
	label := endpointLabel(endpoint)

	backoffExp := 0
	for attempt := 1; attempt <= c.retryAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		logging.Debug().Str("url", reqURL).Int("attempt", attempt).Msg("Making request")

		start := time.Now()
		resp, err := c.doHTTP(ctx, reqURL)
		duration := time.Since(start)

		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			metrics.RecordOpenProjectRequest(label, "error", duration)

			reason := "connection"
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				reason = "timeout"
			}
			logging.Warn().Str("url", reqURL).Int("attempt", attempt).Str("reason", reason).Err(err).Msg("Request failed")

			if attempt == c.retryAttempts {
				break
			}
			metrics.RecordOpenProjectRetry(label, reason)
			if err := c.sleep(ctx, c.backoff(backoffExp)); err != nil {
				return nil, err
			}
			backoffExp++
			continue
		}

		result.StatusCode = resp.StatusCode
		metrics.RecordOpenProjectRequest(label, strconv.Itoa(resp.StatusCode), duration)

		if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining != "" {
			logging.Debug().Str("remaining", remaining).Msg("Rate limit remaining")
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			payload, readErr := io.ReadAll(resp.Body)
			closeBody(resp)
			if readErr != nil {
				logging.Warn().Str("url", reqURL).Int("attempt", attempt).Err(readErr).Msg("Failed to read response body")
				if attempt == c.retryAttempts {
					break
				}
				metrics.RecordOpenProjectRetry(label, "connection")
				if err := c.sleep(ctx, c.backoff(backoffExp)); err != nil {
					return nil, err
				}
				backoffExp++
				continue
			}
			result.Success = true
			result.Payload = payload
			return result, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			delay := parseRetryAfter(resp.Header.Get("Retry-After"))
			closeBody(resp)
			logging.Warn().Str("url", reqURL).Dur("retry_after", delay).Msg("Rate limited by server")

			if attempt == c.retryAttempts {
				break
			}
			metrics.RecordOpenProjectRetry(label, "rate_limited")
			// Server-directed delay; the backoff exponent stays where it is.
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode >= 500 {
			body := readBodyForError(resp.Body)
			closeBody(resp)
			logging.Warn().Str("url", reqURL).Int("status", resp.StatusCode).Int("attempt", attempt).Msg("Server error")

			if attempt == c.retryAttempts {
				result.Err = fmt.Sprintf("status %d: %s", resp.StatusCode, string(body))
				break
			}
			metrics.RecordOpenProjectRetry(label, "server_error")
			if err := c.sleep(ctx, c.backoff(backoffExp)); err != nil {
				return nil, err
			}
			backoffExp++
			continue
		}

		// Remaining 4xx are terminal: retrying cannot change the outcome.
		body := readBodyForError(resp.Body)
		closeBody(resp)
		result.Err = fmt.Sprintf("status %d: %s", resp.StatusCode, string(body))
		logging.Error().Str("url", reqURL).Int("status", resp.StatusCode).Msg("Request failed with client error")
		return result, nil
	}

	if result.Err == "" {
		result.Err = fmt.Sprintf("failed after %d attempts", c.retryAttempts)
	}
	result.Success = false
	return result, nil
}

// doHTTP issues a single GET with authentication headers.
func (c *Client) doHTTP(ctx context.Context, reqURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.SetBasicAuth("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	return c.httpClient.Do(req)
}

// backoff returns the exponential delay for the given step: base, 2x base,
// 4x base, and so on.
func (c *Client) backoff(exp int) time.Duration {
	return c.backoffBase * time.Duration(1<<uint(exp))
}

// sleep waits for d or until the context is cancelled.
func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return defaultRetryAfter
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || seconds < 0 {
		return defaultRetryAfter
	}
	return time.Duration(seconds) * time.Second
}

// encodeParams serializes query parameters for raw-layer persistence.
func encodeParams(params url.Values) string {
	m := make(map[string]string, len(params))
	for k := range params {
		m[k] = params.Get(k)
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// endpointLabel normalizes a request path into a bounded metrics label.
func endpointLabel(endpoint string) string {
	if versionsPathPattern.MatchString(endpoint) {
		return "/api/v3/projects/{id}/versions"
	}
	return endpoint
}

// readBodyForError reads the response body for error reporting (max 64KB)
// Returns the body content or a placeholder message if reading fails
// Uses io.LimitReader to prevent unbounded memory allocation
func readBodyForError(r io.Reader) []byte {
	limitedReader := io.LimitReader(r, maxErrorBodySize)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("\n... (truncated)")...)
	}
	return body
}

func closeBody(resp *http.Response) {
	_ = resp.Body.Close()
}

// newBreaker builds the circuit breaker protecting full request cycles.
// It opens after threshold consecutive exhausted cycles and probes again
// after the timeout.
func newBreaker(name string, threshold uint32) *gobreaker.CircuitBreaker[*RequestResult] {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0) // 0 = closed
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[*RequestResult](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)

			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("Circuit breaker state transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()

			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},
	})
}

// stateToFloat converts circuit breaker state to numeric value for metrics
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// stateToString converts circuit breaker state to string for logging
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
