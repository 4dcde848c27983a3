// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

/* server.go - Ops HTTP surface

Package api exposes the small operational surface `worklake serve` offers to
external schedulers and monitors: liveness, Prometheus metrics, warehouse
status, and a pipeline trigger. It deliberately serves no warehouse data;
analytics tools read the DuckDB file directly.

Routes:

	GET  /healthz                 liveness plus database ping
	GET  /metrics                 Prometheus registry
	GET  /api/v1/status           watermarks, tool row counts, recent runs
	POST /api/v1/pipelines        trigger a run (409 while one is queued or running)
	GET  /api/v1/pipelines/{id}   one run report by id

The trigger endpoint optionally requires a static bearer token and is rate
limited per client IP. Everything else is open read-only.
*/

//nolint:staticcheck // File documentation, not package doc
package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/worklake/internal/config"
	"github.com/tomtom215/worklake/internal/models"
	"github.com/tomtom215/worklake/internal/pipeline"
)

// Store is the warehouse surface the handlers read. *database.DB satisfies it.
type Store interface {
	Ping(ctx context.Context) error
	LastSuccessfulSync(ctx context.Context, entity models.RawEntity, connectionID int64) (*time.Time, error)
	CountToolRows(ctx context.Context, table string, connectionID int64) (int, error)
	ActivePipelineRun(ctx context.Context, connectionID int64) (*models.PipelineRun, error)
	GetPipelineRun(ctx context.Context, id uuid.UUID) (*models.PipelineRun, error)
	ListPipelineRuns(ctx context.Context, connectionID int64, limit int) ([]models.PipelineRun, error)
}

// PipelineTrigger starts pipeline runs. *pipeline.Worker satisfies it.
type PipelineTrigger interface {
	Trigger(ctx context.Context, opts pipeline.Options) (*models.PipelineRun, error)
}

// Handler carries the dependencies shared by all endpoint handlers.
type Handler struct {
	store        Store
	trigger      PipelineTrigger
	connectionID int64
	started      time.Time
}

// NewHandler creates the endpoint handler set for one connection.
func NewHandler(store Store, trigger PipelineTrigger, connectionID int64) *Handler {
	return &Handler{
		store:        store,
		trigger:      trigger,
		connectionID: connectionID,
		started:      time.Now(),
	}
}

// Routes builds the chi router for the ops surface.
//
// Health and metrics sit outside /api/v1 so probes keep working while the
// API group's middleware (metrics instrumentation, auth on the trigger)
// stays out of their path.
func (h *Handler) Routes(cfg *config.ServerConfig) http.Handler {
	m := newMiddleware(cfg)

	r := chi.NewRouter()
	r.Use(RequestID())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(m.CORS())

	r.Get("/healthz", h.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(measureRequests)

		r.Get("/status", h.Status)
		r.Get("/pipelines/{id}", h.GetPipelineRun)
		r.With(m.TriggerRateLimit(), bearerAuth(cfg.AuthToken)).
			Post("/pipelines", h.TriggerPipeline)
	})

	return r
}

// NewServer wires the router into an http.Server ready for the supervisor's
// HTTP service wrapper.
func NewServer(cfg *config.ServerConfig, h *Handler) *http.Server {
	return &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:      h.Routes(cfg),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}
