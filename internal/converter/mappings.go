// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package converter

import (
	"strings"

	"github.com/tomtom215/worklake/internal/models"
)

// issueTypeByName buckets the stock OpenProject work-package types into the
// cross-tool type set. Lookups are case-sensitive and installations rename
// types freely, so unmapped names fall back to REQUIREMENT instead of
// failing the row.
var issueTypeByName = map[string]string{
	"Feature":      models.IssueTypeRequirement,
	"Bug":          models.IssueTypeBug,
	"Support":      models.IssueTypeRequirement,
	"Incident":     models.IssueTypeIncident,
	"Task":         models.IssueTypeRequirement,
	"Epic":         models.IssueTypeRequirement,
	"User Story":   models.IssueTypeRequirement,
	"Defect":       models.IssueTypeBug,
	"Enhancement":  models.IssueTypeRequirement,
	"Story":        models.IssueTypeRequirement,
	"Summary task": models.IssueTypeRequirement,
	"Phase":        models.IssueTypeRequirement,
	"Milestone":    models.IssueTypeRequirement,
}

// issueStatusByName buckets status names into TODO/DOING/DONE. The stock
// multi-word statuses appear in both capitalizations seen in the wild,
// since lookups are case-sensitive.
var issueStatusByName = map[string]string{
	"New":            models.IssueStatusTodo,
	"Open":           models.IssueStatusTodo,
	"On hold":        models.IssueStatusTodo,
	"Blocked":        models.IssueStatusTodo,
	"In progress":    models.IssueStatusDoing,
	"In Progress":    models.IssueStatusDoing,
	"In development": models.IssueStatusDoing,
	"In Development": models.IssueStatusDoing,
	"In review":      models.IssueStatusDoing,
	"In Review":      models.IssueStatusDoing,
	"In testing":     models.IssueStatusDoing,
	"In Testing":     models.IssueStatusDoing,
	"Testing":        models.IssueStatusDoing,
	"Closed":         models.IssueStatusDone,
	"Resolved":       models.IssueStatusDone,
	"Done":           models.IssueStatusDone,
	"Completed":      models.IssueStatusDone,
	"Rejected":       models.IssueStatusDone,
	"Cancelled":      models.IssueStatusDone,
}

// mapIssueType returns the bucket for a source type name.
func mapIssueType(name string) string {
	if t, ok := issueTypeByName[name]; ok {
		return t
	}
	return models.IssueTypeRequirement
}

// mapIssueStatus returns the bucket for a source status name. isClosed is
// the workflow flag backfilled from the status dictionary; when set it wins
// over the name, since installations invent closed statuses the name map
// has never heard of.
func mapIssueStatus(name string, isClosed bool) string {
	if isClosed {
		return models.IssueStatusDone
	}
	if s, ok := issueStatusByName[name]; ok {
		return s
	}
	return models.IssueStatusTodo
}

// mapSprintStatus buckets a version status into active/closed. Versions use
// a fixed open/locked/closed enum, so this lookup is case-insensitive.
func mapSprintStatus(status string) string {
	switch strings.ToLower(status) {
	case "locked", "closed":
		return models.SprintStatusClosed
	default:
		return models.SprintStatusActive
	}
}

// mapAccountStatus converts a user status string to the numeric domain
// value. Anything not explicitly disabled counts as active.
func mapAccountStatus(status string) int {
	switch strings.ToLower(status) {
	case "locked", "closed", "inactive":
		return models.AccountStatusInactive
	default:
		return models.AccountStatusActive
	}
}
