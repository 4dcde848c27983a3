// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package openproject

// User is one user as returned by /api/v3/users. Listing users requires an
// admin API key on most installations; the collector treats a 403 here as a
// terminal error for the users entity only.
type User struct {
	ID          int64  `json:"id"`
	Login       string `json:"login"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Admin       bool   `json:"admin"`
	Avatar      string `json:"avatar"`
	Status      string `json:"status"`
	Language    string `json:"language"`
	IdentityURL string `json:"identityUrl"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}
