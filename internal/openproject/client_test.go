// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package openproject

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/worklake/internal/config"
)

// testClient builds a client against a test server with fast retry timing.
func testClient(serverURL string, attempts int) *Client {
	c := New(&config.OpenProjectConfig{
		BaseURL:       serverURL,
		APIKey:        "test-key",
		RetryAttempts: attempts,
		RateLimitRPM:  6000,
		Timeout:       5 * time.Second,
	})
	c.backoffBase = time.Millisecond
	return c
}

func TestDoSuccessFirstTry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"_type":"Collection","total":3}`))
	}))
	defer server.Close()

	client := testClient(server.URL, 3)

	result, err := client.Do(context.Background(), "/api/v3/projects", nil)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("Success = false, want true (err: %s)", result.Err)
	}
	if result.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", result.StatusCode, http.StatusOK)
	}
	if !strings.Contains(string(result.Payload), `"total":3`) {
		t.Errorf("Payload = %s, want collection body", result.Payload)
	}
	if result.URL != server.URL+"/api/v3/projects" {
		t.Errorf("URL = %s, want %s", result.URL, server.URL+"/api/v3/projects")
	}
	if result.Params != "{}" {
		t.Errorf("Params = %s, want {}", result.Params)
	}
}

func TestDoSendsAuthHeaders(t *testing.T) {
	var gotAuth, gotAccept, gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := testClient(server.URL, 1)
	client.apiKey = "secret-key"

	if _, err := client.Do(context.Background(), "/api/v3/projects", nil); err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("apikey:secret-key"))
	if gotAuth != wantAuth {
		t.Errorf("Authorization = %q, want %q", gotAuth, wantAuth)
	}
	if gotAccept != "application/json" {
		t.Errorf("Accept = %q, want application/json", gotAccept)
	}
	if gotUA != userAgent {
		t.Errorf("User-Agent = %q, want %q", gotUA, userAgent)
	}
}

// TestDoRetriesTimeoutsWithBackoff simulates three request timeouts followed
// by a success: with four attempts the client must come back successful
// after sleeping the exponential ladder (base, 2x, 4x).
func TestDoRetriesTimeoutsWithBackoff(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 3 {
			time.Sleep(300 * time.Millisecond) // outlives the client timeout
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := testClient(server.URL, 4)
	client.httpClient.Timeout = 50 * time.Millisecond
	client.backoffBase = 20 * time.Millisecond

	start := time.Now()
	result, err := client.Do(context.Background(), "/api/v3/work_packages", nil)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("Success = false, want true (err: %s)", result.Err)
	}
	if got := attempts.Load(); got != 4 {
		t.Errorf("attempts = %d, want 4", got)
	}
	// Three timeouts (~50ms each) plus backoff sleeps 20+40+80ms.
	if elapsed < 280*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 280ms of timeouts and backoff", elapsed)
	}
	if elapsed > 2*time.Second {
		t.Errorf("elapsed = %v, want well under 2s", elapsed)
	}
}

// TestDoHonorsRetryAfter verifies a 429 sleeps the server-directed delay
// instead of the exponential backoff: the base delay is set absurdly high,
// so only the Retry-After path can finish inside the deadline.
func TestDoHonorsRetryAfter(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := testClient(server.URL, 3)
	client.backoffBase = 10 * time.Second

	start := time.Now()
	result, err := client.Do(context.Background(), "/api/v3/projects", nil)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("Success = false, want true (err: %s)", result.Err)
	}
	if got := attempts.Load(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
	if elapsed < time.Second {
		t.Errorf("elapsed = %v, want >= 1s Retry-After pause", elapsed)
	}
	if elapsed > 2500*time.Millisecond {
		t.Errorf("elapsed = %v, want ~1s (exponential backoff must not apply)", elapsed)
	}
}

// TestDo429KeepsBackoffExponent verifies the exponent is untouched by a 429:
// the 5xx retry after it must sleep the base delay, not the doubled one.
func TestDo429KeepsBackoffExponent(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch attempts.Add(1) {
		case 1:
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{}`))
		}
	}))
	defer server.Close()

	client := testClient(server.URL, 4)
	client.backoffBase = 100 * time.Millisecond

	start := time.Now()
	result, err := client.Do(context.Background(), "/api/v3/projects", nil)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("Success = false, want true (err: %s)", result.Err)
	}
	if elapsed < 100*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 100ms base backoff", elapsed)
	}
	if elapsed > 190*time.Millisecond {
		t.Errorf("elapsed = %v, want < 190ms (429 must not advance the exponent)", elapsed)
	}
}

func TestDoTerminalClientError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("forbidden"))
	}))
	defer server.Close()

	client := testClient(server.URL, 4)

	result, err := client.Do(context.Background(), "/api/v3/users", nil)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if result.Success {
		t.Fatal("Success = true, want failure result")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (4xx is terminal)", attempts)
	}
	if result.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want 403", result.StatusCode)
	}
	if !strings.Contains(result.Err, "status 403") || !strings.Contains(result.Err, "forbidden") {
		t.Errorf("Err = %q, want status and body", result.Err)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))
	defer server.Close()

	client := testClient(server.URL, 3)

	result, err := client.Do(context.Background(), "/api/v3/projects", nil)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if result.Success {
		t.Fatal("Success = true, want failure result")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if result.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d, want 502", result.StatusCode)
	}
	if !strings.Contains(result.Err, "status 502") {
		t.Errorf("Err = %q, want last status", result.Err)
	}
}

func TestDoContextCancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := testClient(server.URL, 5)
	client.backoffBase = 10 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	_, err := client.Do(ctx, "/api/v3/projects", nil)
	elapsed := time.Since(start)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() error = %v, want context.Canceled", err)
	}
	if elapsed > time.Second {
		t.Errorf("elapsed = %v, want prompt cancellation", elapsed)
	}
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(&config.OpenProjectConfig{
		BaseURL:          server.URL,
		APIKey:           "test-key",
		RetryAttempts:    1,
		RateLimitRPM:     6000,
		Timeout:          5 * time.Second,
		BreakerThreshold: 2,
	})
	client.backoffBase = time.Millisecond

	for i := 0; i < 2; i++ {
		result, err := client.Do(context.Background(), "/api/v3/projects", nil)
		if err != nil {
			t.Fatalf("Do() #%d error = %v, want failure result", i+1, err)
		}
		if result.Success {
			t.Fatalf("Do() #%d Success = true, want failure", i+1)
		}
	}

	_, err := client.Do(context.Background(), "/api/v3/projects", nil)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("Do() after threshold error = %v, want ErrOpenState", err)
	}
	if attempts != 2 {
		t.Errorf("server attempts = %d, want 2 (open circuit must not reach the server)", attempts)
	}
}

func TestNewDefaults(t *testing.T) {
	client := New(&config.OpenProjectConfig{
		BaseURL: "https://openproject.example.com/",
		APIKey:  "k",
	})

	if client.baseURL != "https://openproject.example.com" {
		t.Errorf("baseURL = %q, want trailing slash trimmed", client.baseURL)
	}
	if client.retryAttempts != 3 {
		t.Errorf("retryAttempts = %d, want default 3", client.retryAttempts)
	}
	if client.httpClient.Timeout != 30*time.Second {
		t.Errorf("timeout = %v, want default 30s", client.httpClient.Timeout)
	}
	if client.cb != nil {
		t.Error("circuit breaker enabled, want disabled at threshold 0")
	}

	withBreaker := New(&config.OpenProjectConfig{
		BaseURL:          "https://openproject.example.com",
		APIKey:           "k",
		BreakerThreshold: 5,
	})
	if withBreaker.cb == nil {
		t.Error("circuit breaker nil, want enabled at threshold 5")
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   time.Duration
	}{
		{"absent header defaults", "", defaultRetryAfter},
		{"integer seconds", "5", 5 * time.Second},
		{"zero", "0", 0},
		{"padded", " 10 ", 10 * time.Second},
		{"negative defaults", "-1", defaultRetryAfter},
		{"garbage defaults", "soon", defaultRetryAfter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseRetryAfter(tt.header); got != tt.want {
				t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.header, got, tt.want)
			}
		})
	}
}

func TestEncodeParams(t *testing.T) {
	if got := encodeParams(nil); got != "{}" {
		t.Errorf("encodeParams(nil) = %q, want {}", got)
	}

	params := url.Values{}
	params.Set("pageSize", "100")
	params.Set("offset", "2")

	got := encodeParams(params)
	want := `{"offset":"2","pageSize":"100"}`
	if got != want {
		t.Errorf("encodeParams() = %q, want %q", got, want)
	}
}

func TestEndpointLabel(t *testing.T) {
	tests := []struct {
		endpoint string
		want     string
	}{
		{"/api/v3/work_packages", "/api/v3/work_packages"},
		{"/api/v3/projects/42/versions", "/api/v3/projects/{id}/versions"},
		{"/api/v3/projects/1234567/versions", "/api/v3/projects/{id}/versions"},
		{"/api/v3/versions", "/api/v3/versions"},
	}

	for _, tt := range tests {
		if got := endpointLabel(tt.endpoint); got != tt.want {
			t.Errorf("endpointLabel(%q) = %q, want %q", tt.endpoint, got, tt.want)
		}
	}
}

func TestReadBodyForError(t *testing.T) {
	t.Run("short body passes through", func(t *testing.T) {
		got := readBodyForError(strings.NewReader("not found"))
		if string(got) != "not found" {
			t.Errorf("readBodyForError() = %q, want %q", got, "not found")
		}
	})

	t.Run("oversized body is truncated", func(t *testing.T) {
		got := readBodyForError(strings.NewReader(strings.Repeat("a", maxErrorBodySize+100)))
		if !strings.HasSuffix(string(got), "... (truncated)") {
			t.Error("oversized body missing truncation marker")
		}
	})
}
