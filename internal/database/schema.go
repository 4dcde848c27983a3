// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

/*
schema.go - Pipeline-Owned Schema Management

This file creates the tables the pipeline owns outright:

  - _raw_openproject_api_*: One append-only table per collected endpoint
    holding verbatim API page payloads. All nine share the same column list,
    so their DDL is generated from one template over models.AllRawEntities.
  - _tool_openproject_*: One typed table per extracted entity kind, keyed by
    (connection_id, id) so several OpenProject instances can share the file.
  - _worklake_pipeline_runs: Run log consumed by the ops API.

The shared domain tables (issues, boards, ...) are NOT created here; see
domain_schema.go for why they are bootstrapped separately.

Schema Strategy:
All columns are defined in the initial CREATE TABLE statements. Versioned
migrations in migrations.go exist for post-release column additions.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/worklake/internal/models"
)

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the pipeline-owned tables
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := getTableCreationQueries()
	queries = append(queries, getIndexCreationQueries()...)

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}

	return nil
}

// getTableCreationQueries returns the table creation SQL statements
func getTableCreationQueries() []string {
	queries := make([]string, 0, len(models.AllRawEntities)+10)

	// Raw layer: identical shape for every endpoint. The payload page lands
	// in data; input records the collection scope (project id, page number)
	// that produced it. No surrogate id: rows are ordered by created_at and
	// never updated.
	for _, entity := range models.AllRawEntities {
		queries = append(queries, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			connection_id BIGINT NOT NULL,
			params TEXT,
			url TEXT,
			input TEXT,
			data TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP
		);`, entity.TableName()))
	}

	queries = append(queries,
		// Tool layer: typed columns per entity kind. The *_login,
		// project_identifier and status_is_closed columns on work packages
		// start NULL/empty and are backfilled by ResolveToolReferences once
		// the dictionary tables are loaded.
		`CREATE TABLE IF NOT EXISTS _tool_openproject_work_packages (
			connection_id BIGINT NOT NULL,
			id BIGINT NOT NULL,
			subject TEXT,
			description TEXT,
			start_date TEXT,
			due_date TEXT,
			created_at TIMESTAMP,
			updated_at TIMESTAMP,
			estimated_hours DOUBLE,
			spent_hours DOUBLE,
			project_id BIGINT,
			project_name TEXT,
			project_identifier TEXT,
			type_id BIGINT,
			type_name TEXT,
			status_id BIGINT,
			status_name TEXT,
			status_is_closed BOOLEAN DEFAULT FALSE,
			priority_id BIGINT,
			priority_name TEXT,
			assignee_id BIGINT,
			assignee_name TEXT,
			assignee_login TEXT,
			responsible_id BIGINT,
			responsible_name TEXT,
			responsible_login TEXT,
			author_id BIGINT,
			author_name TEXT,
			author_login TEXT,
			parent_id BIGINT,
			version_id BIGINT,
			version_name TEXT,
			category_id BIGINT,
			category_name TEXT,
			custom_fields TEXT,
			all_fields TEXT,
			PRIMARY KEY (connection_id, id)
		);`,

		`CREATE TABLE IF NOT EXISTS _tool_openproject_projects (
			connection_id BIGINT NOT NULL,
			id BIGINT NOT NULL,
			identifier TEXT,
			name TEXT,
			description TEXT,
			status TEXT,
			active BOOLEAN DEFAULT TRUE,
			is_public BOOLEAN DEFAULT FALSE,
			parent_id BIGINT,
			parent_name TEXT,
			created_at TIMESTAMP,
			updated_at TIMESTAMP,
			all_fields TEXT,
			PRIMARY KEY (connection_id, id)
		);`,

		`CREATE TABLE IF NOT EXISTS _tool_openproject_users (
			connection_id BIGINT NOT NULL,
			id BIGINT NOT NULL,
			login TEXT,
			first_name TEXT,
			last_name TEXT,
			name TEXT,
			mail TEXT,
			admin BOOLEAN DEFAULT FALSE,
			avatar TEXT,
			status TEXT,
			language TEXT,
			identity_url TEXT,
			created_at TIMESTAMP,
			updated_at TIMESTAMP,
			all_fields TEXT,
			PRIMARY KEY (connection_id, id)
		);`,

		`CREATE TABLE IF NOT EXISTS _tool_openproject_time_entries (
			connection_id BIGINT NOT NULL,
			id BIGINT NOT NULL,
			hours DOUBLE,
			comment TEXT,
			spent_on TEXT,
			work_package_id BIGINT,
			work_package_title TEXT,
			user_id BIGINT,
			user_name TEXT,
			user_login TEXT,
			activity_id BIGINT,
			activity_name TEXT,
			project_id BIGINT,
			project_name TEXT,
			created_at TIMESTAMP,
			updated_at TIMESTAMP,
			all_fields TEXT,
			PRIMARY KEY (connection_id, id)
		);`,

		`CREATE TABLE IF NOT EXISTS _tool_openproject_statuses (
			connection_id BIGINT NOT NULL,
			id BIGINT NOT NULL,
			name TEXT,
			is_closed BOOLEAN DEFAULT FALSE,
			is_default BOOLEAN DEFAULT FALSE,
			position BIGINT,
			default_done_ratio DOUBLE,
			color TEXT,
			all_fields TEXT,
			PRIMARY KEY (connection_id, id)
		);`,

		`CREATE TABLE IF NOT EXISTS _tool_openproject_types (
			connection_id BIGINT NOT NULL,
			id BIGINT NOT NULL,
			name TEXT,
			color TEXT,
			position BIGINT,
			is_default BOOLEAN DEFAULT FALSE,
			is_milestone BOOLEAN DEFAULT FALSE,
			all_fields TEXT,
			PRIMARY KEY (connection_id, id)
		);`,

		`CREATE TABLE IF NOT EXISTS _tool_openproject_priorities (
			connection_id BIGINT NOT NULL,
			id BIGINT NOT NULL,
			name TEXT,
			position BIGINT,
			color TEXT,
			is_default BOOLEAN DEFAULT FALSE,
			is_active BOOLEAN DEFAULT TRUE,
			all_fields TEXT,
			PRIMARY KEY (connection_id, id)
		);`,

		`CREATE TABLE IF NOT EXISTS _tool_openproject_activities (
			connection_id BIGINT NOT NULL,
			id BIGINT NOT NULL,
			name TEXT,
			position BIGINT,
			is_default BOOLEAN DEFAULT FALSE,
			is_active BOOLEAN DEFAULT TRUE,
			all_fields TEXT,
			PRIMARY KEY (connection_id, id)
		);`,

		`CREATE TABLE IF NOT EXISTS _tool_openproject_versions (
			connection_id BIGINT NOT NULL,
			id BIGINT NOT NULL,
			name TEXT,
			description TEXT,
			status TEXT,
			start_date TEXT,
			due_date TEXT,
			sharing TEXT,
			project_id BIGINT,
			project_name TEXT,
			created_at TIMESTAMP,
			updated_at TIMESTAMP,
			all_fields TEXT,
			PRIMARY KEY (connection_id, id)
		);`,

		// Run log: one row per pipeline invocation, updated in place as the
		// run progresses. The ops API serves status straight from this table.
		`CREATE TABLE IF NOT EXISTS _worklake_pipeline_runs (
			id UUID PRIMARY KEY,
			connection_id BIGINT NOT NULL,
			mode TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP,
			error TEXT NOT NULL DEFAULT '',
			collected INTEGER NOT NULL DEFAULT 0,
			extracted INTEGER NOT NULL DEFAULT 0,
			converted INTEGER NOT NULL DEFAULT 0
		);`,
	)

	return queries
}

// getIndexCreationQueries returns the index creation SQL statements
func getIndexCreationQueries() []string {
	queries := make([]string, 0, len(models.AllRawEntities)+4)

	// Raw tables are read two ways: MAX(created_at) for the sync cursor and
	// ordered batches during extraction. Both filter on connection_id first.
	for _, entity := range models.AllRawEntities {
		queries = append(queries, fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS idx_raw_%s_conn_created ON %s(connection_id, created_at);",
			entity, entity.TableName()))
	}

	queries = append(queries,
		`CREATE INDEX IF NOT EXISTS idx_tool_wp_conn_project ON _tool_openproject_work_packages(connection_id, project_id);`,
		`CREATE INDEX IF NOT EXISTS idx_tool_te_conn_wp ON _tool_openproject_time_entries(connection_id, work_package_id);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON _worklake_pipeline_runs(started_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON _worklake_pipeline_runs(status);`,
	)

	return queries
}
