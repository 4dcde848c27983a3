// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package api

import (
	"database/sql"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/worklake/internal/logging"
	"github.com/tomtom215/worklake/internal/pipeline"
	"github.com/tomtom215/worklake/internal/validation"
)

// TriggerRequest is the optional POST /api/v1/pipelines body. An empty body
// triggers a plain incremental run.
type TriggerRequest struct {
	Mode           string  `json:"mode" validate:"omitempty,oneof=full incremental"`
	ProjectIDs     []int64 `json:"project_ids" validate:"omitempty,dive,min=1"`
	SkipCollection bool    `json:"skip_collection"`
	SkipExtraction bool    `json:"skip_extraction"`
}

// options maps the request onto pipeline options.
func (req *TriggerRequest) options() pipeline.Options {
	return pipeline.Options{
		Full:           req.Mode == "full",
		ProjectIDs:     req.ProjectIDs,
		SkipCollection: req.SkipCollection,
		SkipExtraction: req.SkipExtraction,
	}
}

// TriggerPipeline queues a pipeline run. Answers 202 with the queued run,
// 409 while another run is queued or running, and 503 when the worker's
// queue is full (the active-run check races a trigger that just queued).
func (h *Handler) TriggerPipeline(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ctx := r.Context()

	var req TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		rw.BadRequest("Request body is not valid JSON")
		return
	}

	if err := validation.ValidateStruct(&req); err != nil {
		var se *validation.StructError
		if errors.As(err, &se) {
			details := make([]string, 0, len(se.Fields))
			for _, f := range se.Fields {
				details = append(details, f.Error())
			}
			rw.ValidationError("Trigger request failed validation", details)
			return
		}
		rw.BadRequest(err.Error())
		return
	}

	active, err := h.store.ActivePipelineRun(ctx, h.connectionID)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if active != nil {
		rw.ConflictWithDetails("A pipeline run is already in progress", map[string]interface{}{
			"run_id": active.ID,
			"status": active.Status,
		})
		return
	}

	run, err := h.trigger.Trigger(ctx, req.options())
	if err != nil {
		if errors.Is(err, pipeline.ErrQueueFull) {
			rw.ServiceUnavailable("Pipeline trigger queue is full, retry later")
			return
		}
		logger := logging.Ctx(ctx)
		logger.Error().Err(err).Msg("Failed to queue pipeline run")
		rw.InternalError("Failed to queue pipeline run")
		return
	}

	logger := logging.Ctx(ctx)
	logger.Info().
		Str("run_id", run.ID.String()).
		Str("mode", run.Mode).
		Msg("Pipeline run triggered")

	rw.Accepted(run)
}

// GetPipelineRun returns one run report by id.
func (h *Handler) GetPipelineRun(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		rw.BadRequest("Run id must be a UUID")
		return
	}

	run, err := h.store.GetPipelineRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			rw.NotFound("No pipeline run with that id")
			return
		}
		rw.DatabaseError(err)
		return
	}

	rw.Success(run)
}
