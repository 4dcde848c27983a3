// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

/*
Package openproject defines wire-format structs for the OpenProject v3 REST
API (HAL+JSON).

Every list endpoint returns a Collection envelope with elements nested under
_embedded.elements and a total count for pagination. Cross-entity references
appear under _links as {href, title} pairs; the numeric id is the trailing
path segment of the href.

Timestamps and dates stay as strings here. The extractor owns parsing them,
because a malformed date must skip one record, not fail a page decode.
*/
package openproject
