// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package models

import (
	"fmt"
	"time"
)

// DomainSource is the tool prefix used in every synthetic domain id written
// by this pipeline. Other tools write disjoint id ranges into the same
// tables, so rows are multi-tenant by prefix rather than by table.
const DomainSource = "openproject"

// Domain entity kinds as they appear in synthetic ids.
const (
	KindWorkPackages = "WorkPackages"
	KindProjects     = "Projects"
	KindUsers        = "Users"
	KindTimeEntries  = "TimeEntries"
	KindVersions     = "Versions"
)

// DomainID builds the synthetic id "openproject:<kind>:<connection>:<native>".
// The same (kind, connection, native id) always yields the same string, which
// is what makes converter re-runs idempotent.
func DomainID(kind string, connectionID, nativeID int64) string {
	return fmt.Sprintf("%s:%s:%d:%d", DomainSource, kind, connectionID, nativeID)
}

// DomainIDPrefix builds the LIKE prefix matching every id this connection
// owns for the given kind. Used to purge stale rows before upserting.
func DomainIDPrefix(kind string, connectionID int64) string {
	return fmt.Sprintf("%s:%s:%d:", DomainSource, kind, connectionID)
}

// Issue type buckets. Unmapped source types fall into IssueTypeRequirement.
const (
	IssueTypeRequirement = "REQUIREMENT"
	IssueTypeBug         = "BUG"
	IssueTypeIncident    = "INCIDENT"
)

// Issue status buckets. Unmapped source statuses fall into IssueStatusTodo.
const (
	IssueStatusTodo  = "TODO"
	IssueStatusDoing = "DOING"
	IssueStatusDone  = "DONE"
)

// Sprint status values.
const (
	SprintStatusActive = "active"
	SprintStatusClosed = "closed"
)

// Account status values.
const (
	AccountStatusActive   = 1
	AccountStatusInactive = 0
)

// Issue is the domain-layer row for one work item.
//
// Type/Status carry the normalized bucket while OriginalType/OriginalStatus
// preserve the source strings. StoryPoint holds the estimate in minutes,
// mirroring OriginalEstimateMinutes for tools that chart story points.
// TimeRemainingMinutes is derived as max(0, estimate-spent) when both exist.
type Issue struct {
	ID          string `json:"id"`
	IssueKey    string `json:"issue_key"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`

	Type           string `json:"type"`
	OriginalType   string `json:"original_type"`
	Status         string `json:"status"`
	OriginalStatus string `json:"original_status"`

	StoryPoint              *int64     `json:"story_point,omitempty"`
	OriginalEstimateMinutes *int64     `json:"original_estimate_minutes,omitempty"`
	TimeSpentMinutes        *int64     `json:"time_spent_minutes,omitempty"`
	TimeRemainingMinutes    *int64     `json:"time_remaining_minutes,omitempty"`
	LeadTimeMinutes         *int64     `json:"lead_time_minutes,omitempty"`

	ResolutionDate *time.Time `json:"resolution_date,omitempty"`
	CreatedDate    *time.Time `json:"created_date,omitempty"`
	UpdatedDate    *time.Time `json:"updated_date,omitempty"`

	ParentIssueID *string `json:"parent_issue_id,omitempty"`
	Priority      string  `json:"priority"`
	Severity      string  `json:"severity"`
	Component     string  `json:"component"`

	CreatorID    *string `json:"creator_id,omitempty"`
	CreatorName  string  `json:"creator_name"`
	AssigneeID   *string `json:"assignee_id,omitempty"`
	AssigneeName string  `json:"assignee_name"`

	OriginalProject string  `json:"original_project"`
	IconURL         *string `json:"icon_url,omitempty"`
}

// Board is the domain-layer row for one project.
type Board struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	URL         string     `json:"url"`
	CreatedDate *time.Time `json:"created_date,omitempty"`
	Type        string     `json:"type"` // always "openproject" for rows we own
}

// BoardIssue links an issue to the board (project) it belongs to.
type BoardIssue struct {
	BoardID string `json:"board_id"`
	IssueID string `json:"issue_id"`
}

// IssueWorklog is the domain-layer row for one time entry.
type IssueWorklog struct {
	ID               string     `json:"id"`
	AuthorID         *string    `json:"author_id,omitempty"`
	Comment          string     `json:"comment"`
	TimeSpentMinutes *int64     `json:"time_spent_minutes,omitempty"`
	LoggedDate       *time.Time `json:"logged_date,omitempty"`
	StartedDate      *string    `json:"started_date,omitempty"` // YYYY-MM-DD, the spent-on day
	IssueID          *string    `json:"issue_id,omitempty"`
}

// Account is the domain-layer row for one user.
type Account struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	UserName  string `json:"user_name"`
	AvatarURL string `json:"avatar_url"`
	Status    int    `json:"status"` // 1 active, 0 locked/closed/inactive
}

// Sprint is the domain-layer row for one version.
type Sprint struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	URL             string     `json:"url"`
	Status          string     `json:"status"` // active or closed
	StartedDate     *time.Time `json:"started_date,omitempty"`
	EndedDate       *string    `json:"ended_date,omitempty"` // YYYY-MM-DD
	CompletedDate   *time.Time `json:"completed_date,omitempty"`
	OriginalBoardID *string    `json:"original_board_id,omitempty"`
}

// SprintIssue links an issue to the sprint (version) it is scheduled in.
type SprintIssue struct {
	SprintID string `json:"sprint_id"`
	IssueID  string `json:"issue_id"`
}
