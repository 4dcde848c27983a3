// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package models

import (
	"time"
)

// ToolWorkPackage is the normalized tool-layer row for one work package.
//
// The extractor fills the typed fields plus the denormalized reference
// columns it can read straight off the payload's _links section (names and
// titles). The remaining denormalized columns (the *Login fields,
// ProjectIdentifier and StatusIsClosed) start empty and are backfilled by
// the reference resolver from the users, projects and statuses tool tables
// after all entity kinds are extracted.
//
// CustomFields holds only the tool-defined customFieldN keys; AllFields is
// the full element payload. Both are serialized JSON documents since their
// structure varies per installation.
type ToolWorkPackage struct {
	ConnectionID int64      `json:"connection_id"`
	ID           int64      `json:"id"`
	Subject      string     `json:"subject"`
	Description  string     `json:"description"`
	StartDate    *string    `json:"start_date,omitempty"` // YYYY-MM-DD
	DueDate      *string    `json:"due_date,omitempty"`   // YYYY-MM-DD
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`

	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
	SpentHours     *float64 `json:"spent_hours,omitempty"`

	ProjectID         *int64 `json:"project_id,omitempty"`
	ProjectName       string `json:"project_name"`
	ProjectIdentifier string `json:"project_identifier"` // backfilled from projects

	TypeID   *int64 `json:"type_id,omitempty"`
	TypeName string `json:"type_name"`

	StatusID       *int64 `json:"status_id,omitempty"`
	StatusName     string `json:"status_name"`
	StatusIsClosed bool   `json:"status_is_closed"` // backfilled from statuses

	PriorityID   *int64 `json:"priority_id,omitempty"`
	PriorityName string `json:"priority_name"`

	AssigneeID    *int64 `json:"assignee_id,omitempty"`
	AssigneeName  string `json:"assignee_name"`
	AssigneeLogin string `json:"assignee_login"` // backfilled from users

	ResponsibleID    *int64 `json:"responsible_id,omitempty"`
	ResponsibleName  string `json:"responsible_name"`
	ResponsibleLogin string `json:"responsible_login"` // backfilled from users

	AuthorID    *int64 `json:"author_id,omitempty"`
	AuthorName  string `json:"author_name"`
	AuthorLogin string `json:"author_login"` // backfilled from users

	ParentID *int64 `json:"parent_id,omitempty"`

	VersionID   *int64 `json:"version_id,omitempty"`
	VersionName string `json:"version_name"`

	CategoryID   *int64 `json:"category_id,omitempty"`
	CategoryName string `json:"category_name"`

	CustomFields *string `json:"custom_fields,omitempty"` // JSON bag of customFieldN keys
	AllFields    string  `json:"all_fields"`               // full element payload, JSON
}

// ToolProject is the normalized tool-layer row for one project.
type ToolProject struct {
	ConnectionID int64      `json:"connection_id"`
	ID           int64      `json:"id"`
	Identifier   string     `json:"identifier"`
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	Status       string     `json:"status"`
	Active       bool       `json:"active"`
	IsPublic     bool       `json:"is_public"`
	ParentID     *int64     `json:"parent_id,omitempty"`
	ParentName   string     `json:"parent_name"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
	AllFields    string     `json:"all_fields"`
}

// ToolUser is the normalized tool-layer row for one user.
type ToolUser struct {
	ConnectionID int64      `json:"connection_id"`
	ID           int64      `json:"id"`
	Login        string     `json:"login"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Name         string     `json:"name"`
	Mail         string     `json:"mail"`
	Admin        bool       `json:"admin"`
	Avatar       string     `json:"avatar"`
	Status       string     `json:"status"`
	Language     string     `json:"language"`
	IdentityURL  string     `json:"identity_url"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
	AllFields    string     `json:"all_fields"`
}

// ToolTimeEntry is the normalized tool-layer row for one time entry.
// UserLogin is backfilled by the reference resolver.
type ToolTimeEntry struct {
	ConnectionID int64      `json:"connection_id"`
	ID           int64      `json:"id"`
	Hours        *float64   `json:"hours,omitempty"`
	Comment      string     `json:"comment"`
	SpentOn      *string    `json:"spent_on,omitempty"` // YYYY-MM-DD

	WorkPackageID    *int64 `json:"work_package_id,omitempty"`
	WorkPackageTitle string `json:"work_package_title"`

	UserID    *int64 `json:"user_id,omitempty"`
	UserName  string `json:"user_name"`
	UserLogin string `json:"user_login"` // backfilled from users

	ActivityID   *int64 `json:"activity_id,omitempty"`
	ActivityName string `json:"activity_name"`

	ProjectID   *int64 `json:"project_id,omitempty"`
	ProjectName string `json:"project_name"`

	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	AllFields string     `json:"all_fields"`
}

// ToolStatus is one row of the status dictionary.
type ToolStatus struct {
	ConnectionID     int64    `json:"connection_id"`
	ID               int64    `json:"id"`
	Name             string   `json:"name"`
	IsClosed         bool     `json:"is_closed"`
	IsDefault        bool     `json:"is_default"`
	Position         *int64   `json:"position,omitempty"`
	DefaultDoneRatio *float64 `json:"default_done_ratio,omitempty"`
	Color            string   `json:"color"`
	AllFields        string   `json:"all_fields"`
}

// ToolType is one row of the work-package type dictionary.
type ToolType struct {
	ConnectionID int64  `json:"connection_id"`
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Color        string `json:"color"`
	Position     *int64 `json:"position,omitempty"`
	IsDefault    bool   `json:"is_default"`
	IsMilestone  bool   `json:"is_milestone"`
	AllFields    string `json:"all_fields"`
}

// ToolPriority is one row of the priority dictionary.
type ToolPriority struct {
	ConnectionID int64  `json:"connection_id"`
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Position     *int64 `json:"position,omitempty"`
	Color        string `json:"color"`
	IsDefault    bool   `json:"is_default"`
	IsActive     bool   `json:"is_active"`
	AllFields    string `json:"all_fields"`
}

// ToolActivity is one row of the time-entry activity dictionary.
type ToolActivity struct {
	ConnectionID int64  `json:"connection_id"`
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Position     *int64 `json:"position,omitempty"`
	IsDefault    bool   `json:"is_default"`
	IsActive     bool   `json:"is_active"`
	AllFields    string `json:"all_fields"`
}

// ToolVersion is the normalized tool-layer row for one version. Versions are
// the sprint equivalent; installations without backlogs simply have none.
type ToolVersion struct {
	ConnectionID int64      `json:"connection_id"`
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	Status       string     `json:"status"` // open, locked, closed
	StartDate    *string    `json:"start_date,omitempty"` // YYYY-MM-DD
	DueDate      *string    `json:"due_date,omitempty"`   // YYYY-MM-DD, from endDate
	Sharing      string     `json:"sharing"`
	ProjectID    *int64     `json:"project_id,omitempty"`
	ProjectName  string     `json:"project_name"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
	AllFields    string     `json:"all_fields"`
}
