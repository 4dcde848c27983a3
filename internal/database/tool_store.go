// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

/*
tool_store.go - Tool Layer Data Access

Writes follow the extractor's replace-per-connection contract: the caller
clears the connection's rows once, then streams batches through the
InsertTool* methods. Each batch runs in its own transaction so a midway
failure never leaves a half-written batch, and inserts upsert on
(connection_id, id) so a duplicate that slips past the extractor's per-run
dedup set updates in place instead of failing the batch.

Reads serve the domain converter, which consumes whole entity sets per
connection in one pass.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"

	"github.com/tomtom215/worklake/internal/models"
)

// Tool table names. ClearToolTable accepts only these.
const (
	ToolWorkPackagesTable = "_tool_openproject_work_packages"
	ToolProjectsTable     = "_tool_openproject_projects"
	ToolUsersTable        = "_tool_openproject_users"
	ToolTimeEntriesTable  = "_tool_openproject_time_entries"
	ToolStatusesTable     = "_tool_openproject_statuses"
	ToolTypesTable        = "_tool_openproject_types"
	ToolPrioritiesTable   = "_tool_openproject_priorities"
	ToolActivitiesTable   = "_tool_openproject_activities"
	ToolVersionsTable     = "_tool_openproject_versions"
)

// ClearToolTable deletes every row the connection owns in one tool table,
// returning the number of rows removed. This is the first half of the
// extractor's replace-per-connection semantics; stale native ids that no
// longer exist upstream vanish here.
func (db *DB) ClearToolTable(ctx context.Context, table string, connectionID int64) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := fmt.Sprintf("DELETE FROM %s WHERE connection_id = ?", table)
	result, err := db.conn.ExecContext(ctx, query, connectionID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear %s: %w", table, err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read cleared row count for %s: %w", table, err)
	}
	return deleted, nil
}

// InsertToolWorkPackages writes one batch of work packages atomically.
func (db *DB) InsertToolWorkPackages(ctx context.Context, wps []models.ToolWorkPackage) (int, error) {
	if len(wps) == 0 {
		return 0, nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin work package batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO _tool_openproject_work_packages (
		connection_id, id, subject, description, start_date, due_date,
		created_at, updated_at, estimated_hours, spent_hours,
		project_id, project_name, project_identifier,
		type_id, type_name, status_id, status_name, status_is_closed,
		priority_id, priority_name,
		assignee_id, assignee_name, assignee_login,
		responsible_id, responsible_name, responsible_login,
		author_id, author_name, author_login,
		parent_id, version_id, version_name, category_id, category_name,
		custom_fields, all_fields
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (connection_id, id) DO UPDATE SET
		subject = EXCLUDED.subject,
		description = EXCLUDED.description,
		start_date = EXCLUDED.start_date,
		due_date = EXCLUDED.due_date,
		created_at = EXCLUDED.created_at,
		updated_at = EXCLUDED.updated_at,
		estimated_hours = EXCLUDED.estimated_hours,
		spent_hours = EXCLUDED.spent_hours,
		project_id = EXCLUDED.project_id,
		project_name = EXCLUDED.project_name,
		project_identifier = EXCLUDED.project_identifier,
		type_id = EXCLUDED.type_id,
		type_name = EXCLUDED.type_name,
		status_id = EXCLUDED.status_id,
		status_name = EXCLUDED.status_name,
		status_is_closed = EXCLUDED.status_is_closed,
		priority_id = EXCLUDED.priority_id,
		priority_name = EXCLUDED.priority_name,
		assignee_id = EXCLUDED.assignee_id,
		assignee_name = EXCLUDED.assignee_name,
		assignee_login = EXCLUDED.assignee_login,
		responsible_id = EXCLUDED.responsible_id,
		responsible_name = EXCLUDED.responsible_name,
		responsible_login = EXCLUDED.responsible_login,
		author_id = EXCLUDED.author_id,
		author_name = EXCLUDED.author_name,
		author_login = EXCLUDED.author_login,
		parent_id = EXCLUDED.parent_id,
		version_id = EXCLUDED.version_id,
		version_name = EXCLUDED.version_name,
		category_id = EXCLUDED.category_id,
		category_name = EXCLUDED.category_name,
		custom_fields = EXCLUDED.custom_fields,
		all_fields = EXCLUDED.all_fields`

	for i := range wps {
		wp := &wps[i]
		_, err := tx.ExecContext(ctx, query,
			wp.ConnectionID, wp.ID, wp.Subject, wp.Description, wp.StartDate, wp.DueDate,
			wp.CreatedAt, wp.UpdatedAt, wp.EstimatedHours, wp.SpentHours,
			wp.ProjectID, wp.ProjectName, wp.ProjectIdentifier,
			wp.TypeID, wp.TypeName, wp.StatusID, wp.StatusName, wp.StatusIsClosed,
			wp.PriorityID, wp.PriorityName,
			wp.AssigneeID, wp.AssigneeName, wp.AssigneeLogin,
			wp.ResponsibleID, wp.ResponsibleName, wp.ResponsibleLogin,
			wp.AuthorID, wp.AuthorName, wp.AuthorLogin,
			wp.ParentID, wp.VersionID, wp.VersionName, wp.CategoryID, wp.CategoryName,
			wp.CustomFields, wp.AllFields,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert work package %d: %w", wp.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit work package batch: %w", err)
	}
	return len(wps), nil
}

// InsertToolProjects writes one batch of projects atomically.
func (db *DB) InsertToolProjects(ctx context.Context, projects []models.ToolProject) (int, error) {
	if len(projects) == 0 {
		return 0, nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin project batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO _tool_openproject_projects (
		connection_id, id, identifier, name, description, status, active, is_public,
		parent_id, parent_name, created_at, updated_at, all_fields
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (connection_id, id) DO UPDATE SET
		identifier = EXCLUDED.identifier,
		name = EXCLUDED.name,
		description = EXCLUDED.description,
		status = EXCLUDED.status,
		active = EXCLUDED.active,
		is_public = EXCLUDED.is_public,
		parent_id = EXCLUDED.parent_id,
		parent_name = EXCLUDED.parent_name,
		created_at = EXCLUDED.created_at,
		updated_at = EXCLUDED.updated_at,
		all_fields = EXCLUDED.all_fields`

	for i := range projects {
		p := &projects[i]
		_, err := tx.ExecContext(ctx, query,
			p.ConnectionID, p.ID, p.Identifier, p.Name, p.Description, p.Status, p.Active, p.IsPublic,
			p.ParentID, p.ParentName, p.CreatedAt, p.UpdatedAt, p.AllFields,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert project %d: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit project batch: %w", err)
	}
	return len(projects), nil
}

// InsertToolUsers writes one batch of users atomically.
func (db *DB) InsertToolUsers(ctx context.Context, users []models.ToolUser) (int, error) {
	if len(users) == 0 {
		return 0, nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin user batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO _tool_openproject_users (
		connection_id, id, login, first_name, last_name, name, mail, admin,
		avatar, status, language, identity_url, created_at, updated_at, all_fields
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (connection_id, id) DO UPDATE SET
		login = EXCLUDED.login,
		first_name = EXCLUDED.first_name,
		last_name = EXCLUDED.last_name,
		name = EXCLUDED.name,
		mail = EXCLUDED.mail,
		admin = EXCLUDED.admin,
		avatar = EXCLUDED.avatar,
		status = EXCLUDED.status,
		language = EXCLUDED.language,
		identity_url = EXCLUDED.identity_url,
		created_at = EXCLUDED.created_at,
		updated_at = EXCLUDED.updated_at,
		all_fields = EXCLUDED.all_fields`

	for i := range users {
		u := &users[i]
		_, err := tx.ExecContext(ctx, query,
			u.ConnectionID, u.ID, u.Login, u.FirstName, u.LastName, u.Name, u.Mail, u.Admin,
			u.Avatar, u.Status, u.Language, u.IdentityURL, u.CreatedAt, u.UpdatedAt, u.AllFields,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert user %d: %w", u.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit user batch: %w", err)
	}
	return len(users), nil
}

// InsertToolTimeEntries writes one batch of time entries atomically.
func (db *DB) InsertToolTimeEntries(ctx context.Context, entries []models.ToolTimeEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin time entry batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO _tool_openproject_time_entries (
		connection_id, id, hours, comment, spent_on,
		work_package_id, work_package_title, user_id, user_name, user_login,
		activity_id, activity_name, project_id, project_name,
		created_at, updated_at, all_fields
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (connection_id, id) DO UPDATE SET
		hours = EXCLUDED.hours,
		comment = EXCLUDED.comment,
		spent_on = EXCLUDED.spent_on,
		work_package_id = EXCLUDED.work_package_id,
		work_package_title = EXCLUDED.work_package_title,
		user_id = EXCLUDED.user_id,
		user_name = EXCLUDED.user_name,
		user_login = EXCLUDED.user_login,
		activity_id = EXCLUDED.activity_id,
		activity_name = EXCLUDED.activity_name,
		project_id = EXCLUDED.project_id,
		project_name = EXCLUDED.project_name,
		created_at = EXCLUDED.created_at,
		updated_at = EXCLUDED.updated_at,
		all_fields = EXCLUDED.all_fields`

	for i := range entries {
		e := &entries[i]
		_, err := tx.ExecContext(ctx, query,
			e.ConnectionID, e.ID, e.Hours, e.Comment, e.SpentOn,
			e.WorkPackageID, e.WorkPackageTitle, e.UserID, e.UserName, e.UserLogin,
			e.ActivityID, e.ActivityName, e.ProjectID, e.ProjectName,
			e.CreatedAt, e.UpdatedAt, e.AllFields,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert time entry %d: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit time entry batch: %w", err)
	}
	return len(entries), nil
}

// InsertToolStatuses writes one batch of status dictionary rows atomically.
func (db *DB) InsertToolStatuses(ctx context.Context, statuses []models.ToolStatus) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin status batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO _tool_openproject_statuses (
		connection_id, id, name, is_closed, is_default, position,
		default_done_ratio, color, all_fields
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (connection_id, id) DO UPDATE SET
		name = EXCLUDED.name,
		is_closed = EXCLUDED.is_closed,
		is_default = EXCLUDED.is_default,
		position = EXCLUDED.position,
		default_done_ratio = EXCLUDED.default_done_ratio,
		color = EXCLUDED.color,
		all_fields = EXCLUDED.all_fields`

	for i := range statuses {
		s := &statuses[i]
		_, err := tx.ExecContext(ctx, query,
			s.ConnectionID, s.ID, s.Name, s.IsClosed, s.IsDefault, s.Position,
			s.DefaultDoneRatio, s.Color, s.AllFields,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert status %d: %w", s.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit status batch: %w", err)
	}
	return len(statuses), nil
}

// InsertToolTypes writes one batch of type dictionary rows atomically.
func (db *DB) InsertToolTypes(ctx context.Context, types []models.ToolType) (int, error) {
	if len(types) == 0 {
		return 0, nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin type batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO _tool_openproject_types (
		connection_id, id, name, color, position, is_default, is_milestone, all_fields
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (connection_id, id) DO UPDATE SET
		name = EXCLUDED.name,
		color = EXCLUDED.color,
		position = EXCLUDED.position,
		is_default = EXCLUDED.is_default,
		is_milestone = EXCLUDED.is_milestone,
		all_fields = EXCLUDED.all_fields`

	for i := range types {
		t := &types[i]
		_, err := tx.ExecContext(ctx, query,
			t.ConnectionID, t.ID, t.Name, t.Color, t.Position, t.IsDefault, t.IsMilestone, t.AllFields,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert type %d: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit type batch: %w", err)
	}
	return len(types), nil
}

// InsertToolPriorities writes one batch of priority dictionary rows atomically.
func (db *DB) InsertToolPriorities(ctx context.Context, priorities []models.ToolPriority) (int, error) {
	if len(priorities) == 0 {
		return 0, nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin priority batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO _tool_openproject_priorities (
		connection_id, id, name, position, color, is_default, is_active, all_fields
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (connection_id, id) DO UPDATE SET
		name = EXCLUDED.name,
		position = EXCLUDED.position,
		color = EXCLUDED.color,
		is_default = EXCLUDED.is_default,
		is_active = EXCLUDED.is_active,
		all_fields = EXCLUDED.all_fields`

	for i := range priorities {
		p := &priorities[i]
		_, err := tx.ExecContext(ctx, query,
			p.ConnectionID, p.ID, p.Name, p.Position, p.Color, p.IsDefault, p.IsActive, p.AllFields,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert priority %d: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit priority batch: %w", err)
	}
	return len(priorities), nil
}

// InsertToolActivities writes one batch of activity dictionary rows atomically.
func (db *DB) InsertToolActivities(ctx context.Context, activities []models.ToolActivity) (int, error) {
	if len(activities) == 0 {
		return 0, nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin activity batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO _tool_openproject_activities (
		connection_id, id, name, position, is_default, is_active, all_fields
	) VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (connection_id, id) DO UPDATE SET
		name = EXCLUDED.name,
		position = EXCLUDED.position,
		is_default = EXCLUDED.is_default,
		is_active = EXCLUDED.is_active,
		all_fields = EXCLUDED.all_fields`

	for i := range activities {
		a := &activities[i]
		_, err := tx.ExecContext(ctx, query,
			a.ConnectionID, a.ID, a.Name, a.Position, a.IsDefault, a.IsActive, a.AllFields,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert activity %d: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit activity batch: %w", err)
	}
	return len(activities), nil
}

// InsertToolVersions writes one batch of versions atomically.
func (db *DB) InsertToolVersions(ctx context.Context, versions []models.ToolVersion) (int, error) {
	if len(versions) == 0 {
		return 0, nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin version batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO _tool_openproject_versions (
		connection_id, id, name, description, status, start_date, due_date,
		sharing, project_id, project_name, created_at, updated_at, all_fields
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (connection_id, id) DO UPDATE SET
		name = EXCLUDED.name,
		description = EXCLUDED.description,
		status = EXCLUDED.status,
		start_date = EXCLUDED.start_date,
		due_date = EXCLUDED.due_date,
		sharing = EXCLUDED.sharing,
		project_id = EXCLUDED.project_id,
		project_name = EXCLUDED.project_name,
		created_at = EXCLUDED.created_at,
		updated_at = EXCLUDED.updated_at,
		all_fields = EXCLUDED.all_fields`

	for i := range versions {
		v := &versions[i]
		_, err := tx.ExecContext(ctx, query,
			v.ConnectionID, v.ID, v.Name, v.Description, v.Status, v.StartDate, v.DueDate,
			v.Sharing, v.ProjectID, v.ProjectName, v.CreatedAt, v.UpdatedAt, v.AllFields,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert version %d: %w", v.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit version batch: %w", err)
	}
	return len(versions), nil
}
