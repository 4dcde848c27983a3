// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package openproject

// Version is one version as returned by /api/v3/versions or the per-project
// nested endpoint. Versions back the sprint concept; Status is one of
// "open", "locked", "closed".
type Version struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Description *Formattable `json:"description"`
	Status      string       `json:"status"`
	Sharing     string       `json:"sharing"`
	StartDate   *string      `json:"startDate"`
	EndDate     *string      `json:"endDate"`
	CreatedAt   string       `json:"createdAt"`
	UpdatedAt   string       `json:"updatedAt"`

	Links VersionLinks `json:"_links"`
}

// VersionLinks holds the cross-entity references of a version.
type VersionLinks struct {
	Self            *Link `json:"self"`
	DefiningProject *Link `json:"definingProject"`
}
