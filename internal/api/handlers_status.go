// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/worklake/internal/database"
	"github.com/tomtom215/worklake/internal/models"
)

// statusRunHistory caps how many recent runs the status payload carries.
const statusRunHistory = 10

// StatusResponse is the GET /api/v1/status payload. LastSuccessfulSync maps
// each collected entity to its raw-layer watermark; a null value means the
// entity has never been collected.
type StatusResponse struct {
	ConnectionID       int64                 `json:"connection_id"`
	LastSuccessfulSync map[string]*time.Time `json:"last_successful_sync"`
	ToolRows           map[string]int        `json:"tool_rows"`
	ActiveRun          *models.PipelineRun   `json:"active_run,omitempty"`
	RecentRuns         []models.PipelineRun  `json:"recent_runs"`
}

// toolRowTables names the tool tables the status payload counts.
var toolRowTables = map[string]string{
	"work_packages": database.ToolWorkPackagesTable,
	"projects":      database.ToolProjectsTable,
	"users":         database.ToolUsersTable,
	"time_entries":  database.ToolTimeEntriesTable,
	"versions":      database.ToolVersionsTable,
}

// Status reports the pipeline's state for one connection: per-entity
// collection watermarks, tool-layer row counts, and recent run history.
// External schedulers poll this to decide whether a trigger is due.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ctx := r.Context()

	lastSync := make(map[string]*time.Time, len(models.AllRawEntities))
	for _, entity := range models.AllRawEntities {
		ts, err := h.store.LastSuccessfulSync(ctx, entity, h.connectionID)
		if err != nil {
			rw.DatabaseError(err)
			return
		}
		lastSync[string(entity)] = ts
	}

	toolRows := make(map[string]int, len(toolRowTables))
	for name, table := range toolRowTables {
		count, err := h.store.CountToolRows(ctx, table, h.connectionID)
		if err != nil {
			rw.DatabaseError(err)
			return
		}
		toolRows[name] = count
	}

	active, err := h.store.ActivePipelineRun(ctx, h.connectionID)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	runs, err := h.store.ListPipelineRuns(ctx, h.connectionID, statusRunHistory)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	rw.Success(StatusResponse{
		ConnectionID:       h.connectionID,
		LastSuccessfulSync: lastSync,
		ToolRows:           toolRows,
		ActiveRun:          active,
		RecentRuns:         runs,
	})
}
