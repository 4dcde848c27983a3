// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package database

import (
	"context"
	"fmt"

	"github.com/tomtom215/worklake/internal/models"
)

// ListToolWorkPackages returns every work package for the connection,
// ordered by native id.
func (db *DB) ListToolWorkPackages(ctx context.Context, connectionID int64) ([]models.ToolWorkPackage, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT
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
	FROM _tool_openproject_work_packages
	WHERE connection_id = ?
	ORDER BY id`

	rows, err := db.conn.QueryContext(ctx, query, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query work packages: %w", err)
	}
	defer rows.Close()

	var wps []models.ToolWorkPackage
	for rows.Next() {
		var wp models.ToolWorkPackage
		err := rows.Scan(
			&wp.ConnectionID, &wp.ID, &wp.Subject, &wp.Description, &wp.StartDate, &wp.DueDate,
			&wp.CreatedAt, &wp.UpdatedAt, &wp.EstimatedHours, &wp.SpentHours,
			&wp.ProjectID, &wp.ProjectName, &wp.ProjectIdentifier,
			&wp.TypeID, &wp.TypeName, &wp.StatusID, &wp.StatusName, &wp.StatusIsClosed,
			&wp.PriorityID, &wp.PriorityName,
			&wp.AssigneeID, &wp.AssigneeName, &wp.AssigneeLogin,
			&wp.ResponsibleID, &wp.ResponsibleName, &wp.ResponsibleLogin,
			&wp.AuthorID, &wp.AuthorName, &wp.AuthorLogin,
			&wp.ParentID, &wp.VersionID, &wp.VersionName, &wp.CategoryID, &wp.CategoryName,
			&wp.CustomFields, &wp.AllFields,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work package: %w", err)
		}
		wps = append(wps, wp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating work packages: %w", err)
	}
	return wps, nil
}

// ListToolProjects returns every project for the connection, ordered by
// native id.
func (db *DB) ListToolProjects(ctx context.Context, connectionID int64) ([]models.ToolProject, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT
		connection_id, id, identifier, name, description, status, active, is_public,
		parent_id, parent_name, created_at, updated_at, all_fields
	FROM _tool_openproject_projects
	WHERE connection_id = ?
	ORDER BY id`

	rows, err := db.conn.QueryContext(ctx, query, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var projects []models.ToolProject
	for rows.Next() {
		var p models.ToolProject
		err := rows.Scan(
			&p.ConnectionID, &p.ID, &p.Identifier, &p.Name, &p.Description, &p.Status, &p.Active, &p.IsPublic,
			&p.ParentID, &p.ParentName, &p.CreatedAt, &p.UpdatedAt, &p.AllFields,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}
	return projects, nil
}

// ListToolUsers returns every user for the connection, ordered by native id.
func (db *DB) ListToolUsers(ctx context.Context, connectionID int64) ([]models.ToolUser, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT
		connection_id, id, login, first_name, last_name, name, mail, admin,
		avatar, status, language, identity_url, created_at, updated_at, all_fields
	FROM _tool_openproject_users
	WHERE connection_id = ?
	ORDER BY id`

	rows, err := db.conn.QueryContext(ctx, query, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.ToolUser
	for rows.Next() {
		var u models.ToolUser
		err := rows.Scan(
			&u.ConnectionID, &u.ID, &u.Login, &u.FirstName, &u.LastName, &u.Name, &u.Mail, &u.Admin,
			&u.Avatar, &u.Status, &u.Language, &u.IdentityURL, &u.CreatedAt, &u.UpdatedAt, &u.AllFields,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

// ListToolTimeEntries returns every time entry for the connection, ordered by
// native id.
func (db *DB) ListToolTimeEntries(ctx context.Context, connectionID int64) ([]models.ToolTimeEntry, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT
		connection_id, id, hours, comment, spent_on,
		work_package_id, work_package_title, user_id, user_name, user_login,
		activity_id, activity_name, project_id, project_name,
		created_at, updated_at, all_fields
	FROM _tool_openproject_time_entries
	WHERE connection_id = ?
	ORDER BY id`

	rows, err := db.conn.QueryContext(ctx, query, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query time entries: %w", err)
	}
	defer rows.Close()

	var entries []models.ToolTimeEntry
	for rows.Next() {
		var e models.ToolTimeEntry
		err := rows.Scan(
			&e.ConnectionID, &e.ID, &e.Hours, &e.Comment, &e.SpentOn,
			&e.WorkPackageID, &e.WorkPackageTitle, &e.UserID, &e.UserName, &e.UserLogin,
			&e.ActivityID, &e.ActivityName, &e.ProjectID, &e.ProjectName,
			&e.CreatedAt, &e.UpdatedAt, &e.AllFields,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan time entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating time entries: %w", err)
	}
	return entries, nil
}

// ListToolVersions returns every version for the connection, ordered by
// native id.
func (db *DB) ListToolVersions(ctx context.Context, connectionID int64) ([]models.ToolVersion, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT
		connection_id, id, name, description, status, start_date, due_date,
		sharing, project_id, project_name, created_at, updated_at, all_fields
	FROM _tool_openproject_versions
	WHERE connection_id = ?
	ORDER BY id`

	rows, err := db.conn.QueryContext(ctx, query, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}
	defer rows.Close()

	var versions []models.ToolVersion
	for rows.Next() {
		var v models.ToolVersion
		err := rows.Scan(
			&v.ConnectionID, &v.ID, &v.Name, &v.Description, &v.Status, &v.StartDate, &v.DueDate,
			&v.Sharing, &v.ProjectID, &v.ProjectName, &v.CreatedAt, &v.UpdatedAt, &v.AllFields,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating versions: %w", err)
	}
	return versions, nil
}

// ListToolStatuses returns the status dictionary for the connection, ordered
// by native id.
func (db *DB) ListToolStatuses(ctx context.Context, connectionID int64) ([]models.ToolStatus, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT
		connection_id, id, name, is_closed, is_default, position,
		default_done_ratio, color, all_fields
	FROM _tool_openproject_statuses
	WHERE connection_id = ?
	ORDER BY id`

	rows, err := db.conn.QueryContext(ctx, query, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query statuses: %w", err)
	}
	defer rows.Close()

	var statuses []models.ToolStatus
	for rows.Next() {
		var s models.ToolStatus
		err := rows.Scan(
			&s.ConnectionID, &s.ID, &s.Name, &s.IsClosed, &s.IsDefault, &s.Position,
			&s.DefaultDoneRatio, &s.Color, &s.AllFields,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan status: %w", err)
		}
		statuses = append(statuses, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating statuses: %w", err)
	}
	return statuses, nil
}

// ListToolTypes returns the type dictionary for the connection, ordered by
// native id.
func (db *DB) ListToolTypes(ctx context.Context, connectionID int64) ([]models.ToolType, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT
		connection_id, id, name, color, position, is_default, is_milestone, all_fields
	FROM _tool_openproject_types
	WHERE connection_id = ?
	ORDER BY id`

	rows, err := db.conn.QueryContext(ctx, query, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query types: %w", err)
	}
	defer rows.Close()

	var types []models.ToolType
	for rows.Next() {
		var t models.ToolType
		err := rows.Scan(
			&t.ConnectionID, &t.ID, &t.Name, &t.Color, &t.Position, &t.IsDefault, &t.IsMilestone, &t.AllFields,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan type: %w", err)
		}
		types = append(types, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating types: %w", err)
	}
	return types, nil
}

// ListToolPriorities returns the priority dictionary for the connection,
// ordered by native id.
func (db *DB) ListToolPriorities(ctx context.Context, connectionID int64) ([]models.ToolPriority, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT
		connection_id, id, name, position, color, is_default, is_active, all_fields
	FROM _tool_openproject_priorities
	WHERE connection_id = ?
	ORDER BY id`

	rows, err := db.conn.QueryContext(ctx, query, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query priorities: %w", err)
	}
	defer rows.Close()

	var priorities []models.ToolPriority
	for rows.Next() {
		var p models.ToolPriority
		err := rows.Scan(
			&p.ConnectionID, &p.ID, &p.Name, &p.Position, &p.Color, &p.IsDefault, &p.IsActive, &p.AllFields,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan priority: %w", err)
		}
		priorities = append(priorities, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating priorities: %w", err)
	}
	return priorities, nil
}

// ListToolActivities returns the activity dictionary for the connection,
// ordered by native id.
func (db *DB) ListToolActivities(ctx context.Context, connectionID int64) ([]models.ToolActivity, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT
		connection_id, id, name, position, is_default, is_active, all_fields
	FROM _tool_openproject_activities
	WHERE connection_id = ?
	ORDER BY id`

	rows, err := db.conn.QueryContext(ctx, query, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	var activities []models.ToolActivity
	for rows.Next() {
		var a models.ToolActivity
		err := rows.Scan(
			&a.ConnectionID, &a.ID, &a.Name, &a.Position, &a.IsDefault, &a.IsActive, &a.AllFields,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		activities = append(activities, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activities: %w", err)
	}
	return activities, nil
}

// CountToolRows counts the rows the connection owns in one tool table.
func (db *DB) CountToolRows(ctx context.Context, table string, connectionID int64) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE connection_id = ?", table)

	var count int
	if err := db.conn.QueryRowContext(ctx, query, connectionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", table, err)
	}
	return count, nil
}
