// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

/*
domain_schema.go - Shared Domain Table Bootstrap and Validation

The domain tables (issues, boards, board_issues, issue_worklogs, accounts,
sprints, sprint_issues) are shared with other ingestion tools that write
disjoint id prefixes into the same warehouse. The converter therefore treats
them as someone else's schema: it validates they exist and refuses to run if
they do not, instead of silently creating a private copy that the analytics
layer would never see.

EnsureDomainTables exists for standalone deployments where this pipeline IS
the whole warehouse. It is called only from `worklake migrate --domain`,
never from New().
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"strings"
)

// requiredDomainTables are the tables the converter writes on every run.
// Sprint tables are intentionally absent: installations without version
// tracking never have them and the converter degrades to a warning.
var requiredDomainTables = []string{
	"issues",
	"boards",
	"board_issues",
	"issue_worklogs",
	"accounts",
}

// sprintDomainTables are the optional sprint tables.
var sprintDomainTables = []string{
	"sprints",
	"sprint_issues",
}

// getDomainTableQueries returns the domain table creation SQL statements
func getDomainTableQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS issues (
			id TEXT PRIMARY KEY,
			issue_key TEXT,
			url TEXT,
			title TEXT,
			description TEXT,
			type TEXT,
			original_type TEXT,
			status TEXT,
			original_status TEXT,
			story_point BIGINT,
			original_estimate_minutes BIGINT,
			time_spent_minutes BIGINT,
			time_remaining_minutes BIGINT,
			lead_time_minutes BIGINT,
			resolution_date TIMESTAMP,
			created_date TIMESTAMP,
			updated_date TIMESTAMP,
			parent_issue_id TEXT,
			priority TEXT,
			severity TEXT,
			component TEXT,
			creator_id TEXT,
			creator_name TEXT,
			assignee_id TEXT,
			assignee_name TEXT,
			original_project TEXT,
			icon_url TEXT
		);`,

		`CREATE TABLE IF NOT EXISTS boards (
			id TEXT PRIMARY KEY,
			name TEXT,
			description TEXT,
			url TEXT,
			created_date TIMESTAMP,
			type TEXT
		);`,

		`CREATE TABLE IF NOT EXISTS board_issues (
			board_id TEXT NOT NULL,
			issue_id TEXT NOT NULL,
			PRIMARY KEY (board_id, issue_id)
		);`,

		`CREATE TABLE IF NOT EXISTS issue_worklogs (
			id TEXT PRIMARY KEY,
			author_id TEXT,
			comment TEXT,
			time_spent_minutes BIGINT,
			logged_date TIMESTAMP,
			started_date TEXT,
			issue_id TEXT
		);`,

		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			email TEXT,
			full_name TEXT,
			user_name TEXT,
			avatar_url TEXT,
			status INTEGER
		);`,

		`CREATE TABLE IF NOT EXISTS sprints (
			id TEXT PRIMARY KEY,
			name TEXT,
			url TEXT,
			status TEXT,
			started_date TIMESTAMP,
			ended_date TEXT,
			completed_date TIMESTAMP,
			original_board_id TEXT
		);`,

		`CREATE TABLE IF NOT EXISTS sprint_issues (
			sprint_id TEXT NOT NULL,
			issue_id TEXT NOT NULL,
			PRIMARY KEY (sprint_id, issue_id)
		);`,
	}
}

// EnsureDomainTables creates the full domain schema for standalone
// deployments. Called from `worklake migrate --domain` only.
func (db *DB) EnsureDomainTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range getDomainTableQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}

	return nil
}

// ValidateDomainTables verifies the required domain tables exist, returning
// an error naming every missing table. The converter calls this before
// touching any data so a misconfigured warehouse fails fast and completely.
func (db *DB) ValidateDomainTables(ctx context.Context) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var missing []string
	for _, table := range requiredDomainTables {
		exists, err := db.tableExists(ctx, table)
		if err != nil {
			return err
		}
		if !exists {
			missing = append(missing, table)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("domain tables missing: %s (run `worklake migrate --domain` or point DUCKDB_PATH at the shared warehouse)",
			strings.Join(missing, ", "))
	}
	return nil
}

// HasSprintTables reports whether both optional sprint tables exist.
func (db *DB) HasSprintTables(ctx context.Context) (bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	for _, table := range sprintDomainTables {
		exists, err := db.tableExists(ctx, table)
		if err != nil {
			return false, err
		}
		if !exists {
			return false, nil
		}
	}
	return true, nil
}

// tableExists checks the catalog for a table by name.
func (db *DB) tableExists(ctx context.Context, name string) (bool, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ?`,
		name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", name, err)
	}
	return count > 0, nil
}
