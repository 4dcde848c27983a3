// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package api

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/tomtom215/worklake/internal/config"
	"github.com/tomtom215/worklake/internal/logging"
	"github.com/tomtom215/worklake/internal/metrics"
)

// middleware bundles the production middleware built from server config.
type middleware struct {
	cors          func(http.Handler) http.Handler
	triggerPerMin int
}

// newMiddleware builds the CORS and rate-limit middleware from config.
// An empty origin list falls back to the wildcard: the ops surface carries
// no credentials, so the permissive default is safe and keeps curl and
// dashboard probes working out of the box.
func newMiddleware(cfg *config.ServerConfig) *middleware {
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           86400,
	})

	perMin := cfg.TriggerPerMin
	if perMin <= 0 {
		perMin = 6
	}

	return &middleware{
		cors:          corsHandler,
		triggerPerMin: perMin,
	}
}

// CORS returns the go-chi/cors middleware. Global so OPTIONS preflight
// requests are answered on every route.
func (m *middleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// TriggerRateLimit limits pipeline trigger requests per client IP. A full
// collection cycle takes minutes; anything past a handful of triggers per
// minute is a misconfigured scheduler, not a workload.
func (m *middleware) TriggerRateLimit() func(http.Handler) http.Handler {
	return httprate.Limit(
		m.triggerPerMin,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			metrics.APIRateLimitHits.WithLabelValues(r.URL.Path).Inc()
			NewResponseWriter(w, r).TooManyRequests("Trigger rate limit exceeded")
		}),
	)
}

// RequestID assigns each request an X-Request-ID (honoring one supplied by
// the client) and installs it in the logging context, so handler logs and
// response envelopes carry the same id.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		chiRequestID := chimiddleware.RequestID(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = logging.GenerateRequestID()
				r.Header.Set("X-Request-ID", id)
			}
			w.Header().Set("X-Request-ID", id)

			ctx := logging.ContextWithRequestID(r.Context(), id)
			chiRequestID.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerAuth requires `Authorization: Bearer <token>` when a token is
// configured. An empty token disables auth, which is only sensible on a
// private network; config documents that tradeoff.
func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			supplied, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(supplied), []byte(token)) != 1 {
				NewResponseWriter(w, r).Unauthorized("Missing or invalid bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// measureRequests records Prometheus counters and latency for the API group.
// The endpoint label uses the chi route pattern, not the raw path, so run ids
// never explode the label space.
func measureRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		metrics.TrackActiveRequest(true)
		defer metrics.TrackActiveRequest(false)

		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// The route pattern is only final after the handler ran.
		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				endpoint = pattern
			}
		}
		metrics.RecordAPIRequest(r.Method, endpoint, strconv.Itoa(ww.Status()), time.Since(start))
	})
}
