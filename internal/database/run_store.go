// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/worklake/internal/models"
)

const pipelineRunColumns = `id, connection_id, mode, status, started_at, finished_at, error, collected, extracted, converted`

// InsertPipelineRun records the start of a pipeline invocation. Missing id,
// start time, and status are filled in so callers only set what they know.
func (db *DB) InsertPipelineRun(ctx context.Context, run *models.PipelineRun) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = models.RunStatusRunning
	}

	query := `INSERT INTO _worklake_pipeline_runs (
		id, connection_id, mode, status, started_at, error, collected, extracted, converted
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.conn.ExecContext(ctx, query,
		run.ID, run.ConnectionID, run.Mode, run.Status, run.StartedAt,
		run.Error, run.Collected, run.Extracted, run.Converted)
	if err != nil {
		return fmt.Errorf("failed to insert pipeline run: %w", err)
	}
	return nil
}

// UpdatePipelineRunStats stores the latest per-stage counters for an active
// run so the status endpoint can report progress mid-run.
func (db *DB) UpdatePipelineRunStats(ctx context.Context, run *models.PipelineRun) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `UPDATE _worklake_pipeline_runs
		SET collected = ?, extracted = ?, converted = ?
		WHERE id = ?`

	_, err := db.conn.ExecContext(ctx, query,
		run.Collected, run.Extracted, run.Converted, run.ID)
	if err != nil {
		return fmt.Errorf("failed to update pipeline run stats: %w", err)
	}
	return nil
}

// MarkPipelineRunStarted flips a queued run to running once the worker picks
// it up, restamping started_at so queue wait time never counts as run time.
func (db *DB) MarkPipelineRunStarted(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `UPDATE _worklake_pipeline_runs
		SET status = ?, started_at = ?
		WHERE id = ?`

	_, err := db.conn.ExecContext(ctx, query, models.RunStatusRunning, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark pipeline run started: %w", err)
	}
	return nil
}

// FinishPipelineRun records the terminal state of a run. FinishedAt defaults
// to now when the caller left it unset.
func (db *DB) FinishPipelineRun(ctx context.Context, run *models.PipelineRun) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}

	query := `UPDATE _worklake_pipeline_runs
		SET status = ?, finished_at = ?, error = ?, collected = ?, extracted = ?, converted = ?
		WHERE id = ?`

	_, err := db.conn.ExecContext(ctx, query,
		run.Status, run.FinishedAt, run.Error,
		run.Collected, run.Extracted, run.Converted, run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish pipeline run: %w", err)
	}
	return nil
}

// FailInterruptedRuns marks every queued or running run for the connection
// as failed. Serve mode calls this once at startup, when any such row is a
// leftover from a process that died mid-run and would otherwise hold the
// single-run slot forever.
func (db *DB) FailInterruptedRuns(ctx context.Context, connectionID int64) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `UPDATE _worklake_pipeline_runs
		SET status = ?, finished_at = ?, error = ?
		WHERE connection_id = ? AND status IN (?, ?)`

	result, err := db.conn.ExecContext(ctx, query,
		models.RunStatusFailed, time.Now().UTC(), "interrupted by restart",
		connectionID, models.RunStatusQueued, models.RunStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to fail interrupted runs: %w", err)
	}

	failed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count interrupted runs: %w", err)
	}
	return failed, nil
}

// GetPipelineRun returns one run by id. Missing ids surface sql.ErrNoRows so
// the API layer can map them to 404.
func (db *DB) GetPipelineRun(ctx context.Context, id uuid.UUID) (*models.PipelineRun, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT ` + pipelineRunColumns + `
		FROM _worklake_pipeline_runs WHERE id = ?`

	run, err := scanPipelineRun(db.conn.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("pipeline run %s: %w", id, sql.ErrNoRows)
		}
		return nil, fmt.Errorf("failed to get pipeline run %s: %w", id, err)
	}
	return run, nil
}

// LatestPipelineRun returns the most recently started run for the connection,
// or nil when the run log is empty.
func (db *DB) LatestPipelineRun(ctx context.Context, connectionID int64) (*models.PipelineRun, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT ` + pipelineRunColumns + `
		FROM _worklake_pipeline_runs
		WHERE connection_id = ?
		ORDER BY started_at DESC
		LIMIT 1`

	run, err := scanPipelineRun(db.conn.QueryRowContext(ctx, query, connectionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest pipeline run: %w", err)
	}
	return run, nil
}

// ActivePipelineRun returns the queued or running run for the connection, or
// nil when no run is active. The trigger endpoint uses this to reject
// concurrent runs for the same connection.
func (db *DB) ActivePipelineRun(ctx context.Context, connectionID int64) (*models.PipelineRun, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT ` + pipelineRunColumns + `
		FROM _worklake_pipeline_runs
		WHERE connection_id = ? AND status IN (?, ?)
		ORDER BY started_at DESC
		LIMIT 1`

	run, err := scanPipelineRun(db.conn.QueryRowContext(ctx, query,
		connectionID, models.RunStatusQueued, models.RunStatusRunning))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active pipeline run: %w", err)
	}
	return run, nil
}

// ListPipelineRuns returns the most recent runs for the connection, newest
// first.
func (db *DB) ListPipelineRuns(ctx context.Context, connectionID int64, limit int) ([]models.PipelineRun, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT ` + pipelineRunColumns + `
		FROM _worklake_pipeline_runs
		WHERE connection_id = ?
		ORDER BY started_at DESC
		LIMIT ?`

	rows, err := db.conn.QueryContext(ctx, query, connectionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pipeline runs: %w", err)
	}
	defer rows.Close()

	var runs []models.PipelineRun
	for rows.Next() {
		var r models.PipelineRun
		err := rows.Scan(&r.ID, &r.ConnectionID, &r.Mode, &r.Status, &r.StartedAt,
			&r.FinishedAt, &r.Error, &r.Collected, &r.Extracted, &r.Converted)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pipeline run: %w", err)
		}
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pipeline runs: %w", err)
	}
	return runs, nil
}

// scanPipelineRun scans a single-row query result into a run.
func scanPipelineRun(row *sql.Row) (*models.PipelineRun, error) {
	var r models.PipelineRun
	err := row.Scan(&r.ID, &r.ConnectionID, &r.Mode, &r.Status, &r.StartedAt,
		&r.FinishedAt, &r.Error, &r.Collected, &r.Extracted, &r.Converted)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
