// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package openproject

// TimeEntry is one time entry as returned by /api/v3/time_entries.
// Hours is an ISO 8601 duration; SpentOn is the plain date the time was
// booked against.
type TimeEntry struct {
	ID        int64        `json:"id"`
	Comment   *Formattable `json:"comment"`
	SpentOn   *string      `json:"spentOn"`
	Hours     *string      `json:"hours"`
	CreatedAt string       `json:"createdAt"`
	UpdatedAt string       `json:"updatedAt"`

	Links TimeEntryLinks `json:"_links"`
}

// TimeEntryLinks holds the cross-entity references of a time entry.
type TimeEntryLinks struct {
	Self        *Link `json:"self"`
	Project     *Link `json:"project"`
	WorkPackage *Link `json:"workPackage"`
	User        *Link `json:"user"`
	Activity    *Link `json:"activity"`
}
