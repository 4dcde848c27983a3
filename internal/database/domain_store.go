// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

/*
domain_store.go - Domain Layer Data Access

The converter owns exactly the rows whose id (or link column) carries this
pipeline's prefix, "openproject:<Kind>:<connection>:". Each conversion pass
first deletes by prefix, then upserts the fresh set, so re-running converges
and rows from other tools or connections are never touched.

Upsert-on-conflict is kept on top of the delete because the domain tables are
shared: a concurrent writer racing on the same id should merge, not crash.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"

	"github.com/tomtom215/worklake/internal/models"
)

// DeleteDomainRowsByPrefix removes every row in the table whose key column
// starts with the given id prefix, returning the number of rows removed.
// Relationship tables pass their link column (board_id, sprint_id); entity
// tables pass "id".
func (db *DB) DeleteDomainRowsByPrefix(ctx context.Context, table, column, prefix string) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := fmt.Sprintf("DELETE FROM %s WHERE %s LIKE ?", table, column)
	result, err := db.conn.ExecContext(ctx, query, prefix+"%")
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s rows by prefix: %w", table, err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read deleted row count for %s: %w", table, err)
	}
	return deleted, nil
}

// UpsertIssues writes one batch of issues atomically.
func (db *DB) UpsertIssues(ctx context.Context, issues []models.Issue) (int, error) {
	if len(issues) == 0 {
		return 0, nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin issue batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO issues (
		id, issue_key, url, title, description, type, original_type,
		status, original_status, story_point, original_estimate_minutes,
		time_spent_minutes, time_remaining_minutes, lead_time_minutes,
		resolution_date, created_date, updated_date, parent_issue_id,
		priority, severity, component, creator_id, creator_name,
		assignee_id, assignee_name, original_project, icon_url
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		issue_key = EXCLUDED.issue_key,
		url = EXCLUDED.url,
		title = EXCLUDED.title,
		description = EXCLUDED.description,
		type = EXCLUDED.type,
		original_type = EXCLUDED.original_type,
		status = EXCLUDED.status,
		original_status = EXCLUDED.original_status,
		story_point = EXCLUDED.story_point,
		original_estimate_minutes = EXCLUDED.original_estimate_minutes,
		time_spent_minutes = EXCLUDED.time_spent_minutes,
		time_remaining_minutes = EXCLUDED.time_remaining_minutes,
		lead_time_minutes = EXCLUDED.lead_time_minutes,
		resolution_date = EXCLUDED.resolution_date,
		created_date = EXCLUDED.created_date,
		updated_date = EXCLUDED.updated_date,
		parent_issue_id = EXCLUDED.parent_issue_id,
		priority = EXCLUDED.priority,
		severity = EXCLUDED.severity,
		component = EXCLUDED.component,
		creator_id = EXCLUDED.creator_id,
		creator_name = EXCLUDED.creator_name,
		assignee_id = EXCLUDED.assignee_id,
		assignee_name = EXCLUDED.assignee_name,
		original_project = EXCLUDED.original_project,
		icon_url = EXCLUDED.icon_url`

	for i := range issues {
		issue := &issues[i]
		_, err := tx.ExecContext(ctx, query,
			issue.ID, issue.IssueKey, issue.URL, issue.Title, issue.Description,
			issue.Type, issue.OriginalType, issue.Status, issue.OriginalStatus,
			issue.StoryPoint, issue.OriginalEstimateMinutes,
			issue.TimeSpentMinutes, issue.TimeRemainingMinutes, issue.LeadTimeMinutes,
			issue.ResolutionDate, issue.CreatedDate, issue.UpdatedDate, issue.ParentIssueID,
			issue.Priority, issue.Severity, issue.Component, issue.CreatorID, issue.CreatorName,
			issue.AssigneeID, issue.AssigneeName, issue.OriginalProject, issue.IconURL,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert issue %s: %w", issue.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit issue batch: %w", err)
	}
	return len(issues), nil
}

// UpsertBoards writes one batch of boards atomically.
func (db *DB) UpsertBoards(ctx context.Context, boards []models.Board) (int, error) {
	if len(boards) == 0 {
		return 0, nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin board batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO boards (id, name, description, url, created_date, type)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name,
		description = EXCLUDED.description,
		url = EXCLUDED.url,
		created_date = EXCLUDED.created_date,
		type = EXCLUDED.type`

	for i := range boards {
		b := &boards[i]
		_, err := tx.ExecContext(ctx, query,
			b.ID, b.Name, b.Description, b.URL, b.CreatedDate, b.Type,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert board %s: %w", b.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit board batch: %w", err)
	}
	return len(boards), nil
}

// UpsertBoardIssues writes one batch of board-issue links atomically.
// Links carry no payload, so conflicts are ignored rather than updated.
func (db *DB) UpsertBoardIssues(ctx context.Context, links []models.BoardIssue) (int, error) {
	if len(links) == 0 {
		return 0, nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin board-issue batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO board_issues (board_id, issue_id)
	VALUES (?, ?)
	ON CONFLICT (board_id, issue_id) DO NOTHING`

	for i := range links {
		l := &links[i]
		if _, err := tx.ExecContext(ctx, query, l.BoardID, l.IssueID); err != nil {
			return 0, fmt.Errorf("failed to upsert board-issue %s->%s: %w", l.BoardID, l.IssueID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit board-issue batch: %w", err)
	}
	return len(links), nil
}

// UpsertIssueWorklogs writes one batch of worklogs atomically.
func (db *DB) UpsertIssueWorklogs(ctx context.Context, worklogs []models.IssueWorklog) (int, error) {
	if len(worklogs) == 0 {
		return 0, nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin worklog batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO issue_worklogs (
		id, author_id, comment, time_spent_minutes, logged_date, started_date, issue_id
	) VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		author_id = EXCLUDED.author_id,
		comment = EXCLUDED.comment,
		time_spent_minutes = EXCLUDED.time_spent_minutes,
		logged_date = EXCLUDED.logged_date,
		started_date = EXCLUDED.started_date,
		issue_id = EXCLUDED.issue_id`

	for i := range worklogs {
		w := &worklogs[i]
		_, err := tx.ExecContext(ctx, query,
			w.ID, w.AuthorID, w.Comment, w.TimeSpentMinutes, w.LoggedDate, w.StartedDate, w.IssueID,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert worklog %s: %w", w.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit worklog batch: %w", err)
	}
	return len(worklogs), nil
}

// UpsertAccounts writes one batch of accounts atomically.
func (db *DB) UpsertAccounts(ctx context.Context, accounts []models.Account) (int, error) {
	if len(accounts) == 0 {
		return 0, nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin account batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO accounts (id, email, full_name, user_name, avatar_url, status)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		email = EXCLUDED.email,
		full_name = EXCLUDED.full_name,
		user_name = EXCLUDED.user_name,
		avatar_url = EXCLUDED.avatar_url,
		status = EXCLUDED.status`

	for i := range accounts {
		a := &accounts[i]
		_, err := tx.ExecContext(ctx, query,
			a.ID, a.Email, a.FullName, a.UserName, a.AvatarURL, a.Status,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert account %s: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit account batch: %w", err)
	}
	return len(accounts), nil
}

// UpsertSprints writes one batch of sprints atomically.
func (db *DB) UpsertSprints(ctx context.Context, sprints []models.Sprint) (int, error) {
	if len(sprints) == 0 {
		return 0, nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin sprint batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO sprints (
		id, name, url, status, started_date, ended_date, completed_date, original_board_id
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name,
		url = EXCLUDED.url,
		status = EXCLUDED.status,
		started_date = EXCLUDED.started_date,
		ended_date = EXCLUDED.ended_date,
		completed_date = EXCLUDED.completed_date,
		original_board_id = EXCLUDED.original_board_id`

	for i := range sprints {
		s := &sprints[i]
		_, err := tx.ExecContext(ctx, query,
			s.ID, s.Name, s.URL, s.Status, s.StartedDate, s.EndedDate, s.CompletedDate, s.OriginalBoardID,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert sprint %s: %w", s.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit sprint batch: %w", err)
	}
	return len(sprints), nil
}

// UpsertSprintIssues writes one batch of sprint-issue links atomically.
func (db *DB) UpsertSprintIssues(ctx context.Context, links []models.SprintIssue) (int, error) {
	if len(links) == 0 {
		return 0, nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin sprint-issue batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO sprint_issues (sprint_id, issue_id)
	VALUES (?, ?)
	ON CONFLICT (sprint_id, issue_id) DO NOTHING`

	for i := range links {
		l := &links[i]
		if _, err := tx.ExecContext(ctx, query, l.SprintID, l.IssueID); err != nil {
			return 0, fmt.Errorf("failed to upsert sprint-issue %s->%s: %w", l.SprintID, l.IssueID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit sprint-issue batch: %w", err)
	}
	return len(links), nil
}

// CountDomainRowsByPrefix counts the rows in a domain table whose key column
// carries the given prefix. Used by idempotency checks and tests.
func (db *DB) CountDomainRowsByPrefix(ctx context.Context, table, column, prefix string) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s LIKE ?", table, column)

	var count int
	if err := db.conn.QueryRowContext(ctx, query, prefix+"%").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s rows by prefix: %w", table, err)
	}
	return count, nil
}
