// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

/*
fakeserver.go - In-process fake OpenProject API

FakeOpenProject serves fixture elements through the same HAL collection
envelope and pageSize/offset pagination the real v3 API uses, enforces the
client's basic-auth scheme, and records every request for assertions.
Failure injection covers the retry paths: a configurable number of requests
answer with a chosen status before the fixtures come back.
*/

//nolint:staticcheck // File documentation, not package doc
package testinfra

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/worklake/internal/config"
)

// FakeAPIKey authenticates requests against the fake server.
const FakeAPIKey = "worklake-test-key"

// CapturedRequest is one request the fake server answered.
type CapturedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Status int
}

// FakeOpenProject is an httptest-backed OpenProject v3 stand-in. Fixture
// elements are registered per endpoint path and served paginated. Safe for
// concurrent use.
type FakeOpenProject struct {
	server *httptest.Server

	mu            sync.Mutex
	fixtures      map[string][]string
	requests      []CapturedRequest
	failRemaining int
	failStatus    int
}

// NewFakeOpenProject starts the fake server. Callers own Close.
func NewFakeOpenProject() *FakeOpenProject {
	f := &FakeOpenProject{fixtures: make(map[string][]string)}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

// BaseURL returns the server's address for client configuration.
func (f *FakeOpenProject) BaseURL() string {
	return f.server.URL
}

// Close shuts the server down.
func (f *FakeOpenProject) Close() {
	f.server.Close()
}

// SetElements replaces the fixture elements served for one endpoint path,
// e.g. SetElements("/api/v3/projects", `{"id":3,...}`, `{"id":4,...}`).
// Each element is one raw JSON object; filters on the request are ignored,
// so scoped fetches see the same list as global ones.
func (f *FakeOpenProject) SetElements(path string, elements ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fixtures[path] = elements
}

// FailNext makes the next n requests answer with status before fixtures
// resume. A 429 carries "Retry-After: 0" so retry tests run without real
// sleeps.
func (f *FakeOpenProject) FailNext(n, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failRemaining = n
	f.failStatus = status
}

// Requests returns a copy of every request answered so far.
func (f *FakeOpenProject) Requests() []CapturedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]CapturedRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// RequestCount counts answered requests for one endpoint path.
func (f *FakeOpenProject) RequestCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.Path == path {
			n++
		}
	}
	return n
}

// ClientConfig returns a connection configuration pointing at the fake. The
// page size stays small so multi-page fixtures actually paginate, and the
// request budget is high enough that the pacer never slows a test down.
func (f *FakeOpenProject) ClientConfig() *config.OpenProjectConfig {
	return &config.OpenProjectConfig{
		BaseURL:       f.server.URL,
		APIKey:        FakeAPIKey,
		ConnectionID:  1,
		PageSize:      2,
		RateLimitRPM:  6000,
		RetryAttempts: 3,
		Timeout:       5 * time.Second,
		MaxPages:      50,
	}
}

func (f *FakeOpenProject) handle(w http.ResponseWriter, r *http.Request) {
	status := f.serve(w, r)

	f.mu.Lock()
	f.requests = append(f.requests, CapturedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Status: status,
	})
	f.mu.Unlock()
}

func (f *FakeOpenProject) serve(w http.ResponseWriter, r *http.Request) int {
	if user, key, ok := r.BasicAuth(); !ok || user != "apikey" || key != FakeAPIKey {
		return writeAPIError(w, http.StatusUnauthorized,
			"urn:openproject-org:api:v3:errors:Unauthenticated",
			"You need to be authenticated to access this resource.")
	}

	f.mu.Lock()
	inject := f.failRemaining > 0
	status := f.failStatus
	if inject {
		f.failRemaining--
	}
	elements, known := f.fixtures[r.URL.Path]
	f.mu.Unlock()

	if inject {
		if status == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", "0")
		}
		w.WriteHeader(status)
		return status
	}

	if !known {
		return writeAPIError(w, http.StatusNotFound,
			"urn:openproject-org:api:v3:errors:NotFound",
			"The requested resource could not be found.")
	}

	// The offset query parameter carries a 1-based page number. Dictionary
	// endpoints send no pagination parameters and get the whole list.
	query := r.URL.Query()
	pageSize := queryInt(query, "pageSize", len(elements))
	page := queryInt(query, "offset", 1)

	start := (page - 1) * pageSize
	if start > len(elements) {
		start = len(elements)
	}
	end := start + pageSize
	if end > len(elements) {
		end = len(elements)
	}
	slice := elements[start:end]

	body := fmt.Sprintf(
		`{"_type":"Collection","total":%d,"count":%d,"pageSize":%d,"offset":%d,"_embedded":{"elements":[%s]}}`,
		len(elements), len(slice), pageSize, page, strings.Join(slice, ","),
	)

	w.Header().Set("Content-Type", "application/hal+json; charset=utf-8")
	if _, err := w.Write([]byte(body)); err != nil {
		return http.StatusInternalServerError
	}
	return http.StatusOK
}

func queryInt(query url.Values, key string, fallback int) int {
	raw := query.Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func writeAPIError(w http.ResponseWriter, status int, identifier, message string) int {
	w.Header().Set("Content-Type", "application/hal+json; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"_type":"Error","errorIdentifier":%q,"message":%q}`, identifier, message)
	return status
}
