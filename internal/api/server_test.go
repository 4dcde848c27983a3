// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package api

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/worklake/internal/config"
	"github.com/tomtom215/worklake/internal/models"
	"github.com/tomtom215/worklake/internal/pipeline"
)

// fakeStore is an in-memory Store for handler tests.
type fakeStore struct {
	pingErr     error
	lastSync    map[models.RawEntity]*time.Time
	lastSyncErr error
	toolRows    map[string]int
	active      *models.PipelineRun
	activeErr   error
	runs        []models.PipelineRun
	runByID     map[uuid.UUID]*models.PipelineRun
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		lastSync: make(map[models.RawEntity]*time.Time),
		toolRows: make(map[string]int),
		runByID:  make(map[uuid.UUID]*models.PipelineRun),
	}
}

func (s *fakeStore) Ping(context.Context) error { return s.pingErr }

func (s *fakeStore) LastSuccessfulSync(_ context.Context, entity models.RawEntity, _ int64) (*time.Time, error) {
	if s.lastSyncErr != nil {
		return nil, s.lastSyncErr
	}
	return s.lastSync[entity], nil
}

func (s *fakeStore) CountToolRows(_ context.Context, table string, _ int64) (int, error) {
	return s.toolRows[table], nil
}

func (s *fakeStore) ActivePipelineRun(context.Context, int64) (*models.PipelineRun, error) {
	if s.activeErr != nil {
		return nil, s.activeErr
	}
	return s.active, nil
}

func (s *fakeStore) GetPipelineRun(_ context.Context, id uuid.UUID) (*models.PipelineRun, error) {
	if run, ok := s.runByID[id]; ok {
		return run, nil
	}
	return nil, fmt.Errorf("pipeline run %s: %w", id, sql.ErrNoRows)
}

func (s *fakeStore) ListPipelineRuns(context.Context, int64, int) ([]models.PipelineRun, error) {
	return s.runs, nil
}

// fakeTrigger records the options it was asked to run with.
type fakeTrigger struct {
	run     *models.PipelineRun
	err     error
	gotOpts *pipeline.Options
}

func (t *fakeTrigger) Trigger(_ context.Context, opts pipeline.Options) (*models.PipelineRun, error) {
	t.gotOpts = &opts
	if t.err != nil {
		return nil, t.err
	}
	return t.run, nil
}

// testServerConfig returns a permissive config suitable for handler tests.
func testServerConfig() *config.ServerConfig {
	return &config.ServerConfig{
		Host:          "127.0.0.1",
		Port:          8484,
		ReadTimeout:   5 * time.Second,
		WriteTimeout:  5 * time.Second,
		TriggerPerMin: 100,
	}
}

func newTestRouter(store *fakeStore, trigger *fakeTrigger, cfg *config.ServerConfig) http.Handler {
	if cfg == nil {
		cfg = testServerConfig()
	}
	return NewHandler(store, trigger, 3).Routes(cfg)
}

// envelope mirrors APIResponse with raw data for per-test decoding.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

func doRequest(t *testing.T, h http.Handler, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode response envelope: %v (body: %s)", err, rec.Body.String())
	}
	return env
}

func TestHealthzHealthy(t *testing.T) {
	t.Parallel()

	h := newTestRouter(newFakeStore(), &fakeTrigger{}, nil)
	rec := doRequest(t, h, http.MethodGet, "/healthz", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	env := decodeEnvelope(t, rec)
	var health HealthStatus
	if err := json.Unmarshal(env.Data, &health); err != nil {
		t.Fatalf("failed to decode health payload: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("status = %q, want healthy", health.Status)
	}
	if !health.DatabaseConnected {
		t.Error("expected database_connected true")
	}
}

func TestHealthzDegradedWhenPingFails(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.pingErr = fmt.Errorf("connection refused")
	h := newTestRouter(store, &fakeTrigger{}, nil)

	rec := doRequest(t, h, http.MethodGet, "/healthz", nil)

	// Liveness stays 200; the body reports the degradation.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	env := decodeEnvelope(t, rec)
	var health HealthStatus
	if err := json.Unmarshal(env.Data, &health); err != nil {
		t.Fatalf("failed to decode health payload: %v", err)
	}
	if health.Status != "degraded" {
		t.Errorf("status = %q, want degraded", health.Status)
	}
	if health.DatabaseConnected {
		t.Error("expected database_connected false")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	h := newTestRouter(newFakeStore(), &fakeTrigger{}, nil)
	rec := doRequest(t, h, http.MethodGet, "/metrics", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "# HELP") {
		t.Error("expected Prometheus exposition format output")
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	t.Parallel()

	h := newTestRouter(newFakeStore(), &fakeTrigger{}, nil)
	rec := doRequest(t, h, http.MethodGet, "/api/v1/nope", nil)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	t.Parallel()

	h := newTestRouter(newFakeStore(), &fakeTrigger{}, nil)

	rec := doRequest(t, h, http.MethodGet, "/healthz", nil)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated X-Request-ID header")
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "client-supplied-1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "client-supplied-1" {
		t.Errorf("X-Request-ID = %q, want client-supplied-1", got)
	}

	env := decodeEnvelope(t, rec)
	if env.Meta == nil || env.Meta.RequestID != "client-supplied-1" {
		t.Errorf("envelope meta request id not propagated: %+v", env.Meta)
	}
}

func TestCORSPreflightAllowed(t *testing.T) {
	t.Parallel()

	h := newTestRouter(newFakeStore(), &fakeTrigger{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/status", nil)
	req.Header.Set("Origin", "https://scheduler.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Error("expected Access-Control-Allow-Origin on preflight with wildcard default")
	}
}
