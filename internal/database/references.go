// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package database

import (
	"context"
	"fmt"

	"github.com/tomtom215/worklake/internal/logging"
)

// referenceUpdates are the denormalized-column backfills that need a join
// against another tool table. They run after all entity kinds are extracted;
// running them earlier silently matches zero rows, which is why the pipeline
// orders extraction before resolution rather than this code checking.
var referenceUpdates = []struct {
	name  string
	query string
}{
	{
		name: "work_packages.assignee_login",
		query: `UPDATE _tool_openproject_work_packages
			SET assignee_login = u.login
			FROM _tool_openproject_users u
			WHERE _tool_openproject_work_packages.connection_id = ?
			  AND u.connection_id = _tool_openproject_work_packages.connection_id
			  AND _tool_openproject_work_packages.assignee_id = u.id`,
	},
	{
		name: "work_packages.responsible_login",
		query: `UPDATE _tool_openproject_work_packages
			SET responsible_login = u.login
			FROM _tool_openproject_users u
			WHERE _tool_openproject_work_packages.connection_id = ?
			  AND u.connection_id = _tool_openproject_work_packages.connection_id
			  AND _tool_openproject_work_packages.responsible_id = u.id`,
	},
	{
		name: "work_packages.author_login",
		query: `UPDATE _tool_openproject_work_packages
			SET author_login = u.login
			FROM _tool_openproject_users u
			WHERE _tool_openproject_work_packages.connection_id = ?
			  AND u.connection_id = _tool_openproject_work_packages.connection_id
			  AND _tool_openproject_work_packages.author_id = u.id`,
	},
	{
		name: "work_packages.project_identifier",
		query: `UPDATE _tool_openproject_work_packages
			SET project_identifier = p.identifier
			FROM _tool_openproject_projects p
			WHERE _tool_openproject_work_packages.connection_id = ?
			  AND p.connection_id = _tool_openproject_work_packages.connection_id
			  AND _tool_openproject_work_packages.project_id = p.id`,
	},
	{
		name: "work_packages.status_is_closed",
		query: `UPDATE _tool_openproject_work_packages
			SET status_is_closed = s.is_closed
			FROM _tool_openproject_statuses s
			WHERE _tool_openproject_work_packages.connection_id = ?
			  AND s.connection_id = _tool_openproject_work_packages.connection_id
			  AND _tool_openproject_work_packages.status_id = s.id`,
	},
	{
		name: "time_entries.user_login",
		query: `UPDATE _tool_openproject_time_entries
			SET user_login = u.login
			FROM _tool_openproject_users u
			WHERE _tool_openproject_time_entries.connection_id = ?
			  AND u.connection_id = _tool_openproject_time_entries.connection_id
			  AND _tool_openproject_time_entries.user_id = u.id`,
	},
}

// ResolveToolReferences backfills the denormalized reference columns across
// the connection's tool rows in one transaction, returning the total number
// of row updates. A reference that matches no dictionary row stays at its
// extracted default; that is data quality, not an error.
func (db *DB) ResolveToolReferences(ctx context.Context, connectionID int64) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin reference resolution: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	for _, upd := range referenceUpdates {
		result, err := tx.ExecContext(ctx, upd.query, connectionID)
		if err != nil {
			return 0, fmt.Errorf("failed to resolve %s: %w", upd.name, err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to read affected rows for %s: %w", upd.name, err)
		}

		logging.Debug().
			Str("reference", upd.name).
			Int64("rows", affected).
			Msg("Resolved references")
		total += affected
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit reference resolution: %w", err)
	}
	return total, nil
}
