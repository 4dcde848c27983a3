// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package openproject

// Project is one project as returned by /api/v3/projects.
type Project struct {
	ID          int64        `json:"id"`
	Identifier  string       `json:"identifier"`
	Name        string       `json:"name"`
	Description *Formattable `json:"description"`
	Status      string       `json:"status"`
	Active      bool         `json:"active"`
	Public      bool         `json:"public"`
	CreatedAt   string       `json:"createdAt"`
	UpdatedAt   string       `json:"updatedAt"`

	Links ProjectLinks `json:"_links"`
}

// ProjectLinks holds the cross-entity references of a project.
type ProjectLinks struct {
	Self   *Link `json:"self"`
	Parent *Link `json:"parent"`
}
