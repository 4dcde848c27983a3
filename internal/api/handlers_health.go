// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/worklake/internal/metrics"
)

// HealthStatus is the GET /healthz payload.
type HealthStatus struct {
	Status            string  `json:"status"`
	DatabaseConnected bool    `json:"database_connected"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// Health reports process liveness and database connectivity. It always
// answers 200 while the process is up; a lost database shows as "degraded"
// in the body so orchestrators keep the process alive while monitors alert.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	dbConnected := h.store != nil && h.store.Ping(r.Context()) == nil

	status := "healthy"
	if !dbConnected {
		status = "degraded"
	}

	uptime := time.Since(h.started).Seconds()
	metrics.AppUptime.Set(uptime)

	NewResponseWriter(w, r).Success(HealthStatus{
		Status:            status,
		DatabaseConnected: dbConnected,
		UptimeSeconds:     uptime,
	})
}
