// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package openproject

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/tomtom215/worklake/internal/logging"
	opmodels "github.com/tomtom215/worklake/internal/models/openproject"
)

// API v3 endpoint paths.
const (
	endpointWorkPackages = "/api/v3/work_packages"
	endpointProjects     = "/api/v3/projects"
	endpointUsers        = "/api/v3/users"
	endpointTimeEntries  = "/api/v3/time_entries"
	endpointStatuses     = "/api/v3/statuses"
	endpointTypes        = "/api/v3/types"
	endpointPriorities   = "/api/v3/priorities"
	endpointVersions     = "/api/v3/versions"
)

// activityEndpoints are tried in order; the activities path moved between
// OpenProject versions.
var activityEndpoints = []string{
	"/api/v3/time_entries/activities",
	"/api/v3/activities",
}

// pageParams builds the shared pagination parameters. The API's offset
// parameter carries a 1-based page number, not a row offset.
func pageParams(pageSize, page int) url.Values {
	params := url.Values{}
	params.Set("pageSize", strconv.Itoa(pageSize))
	params.Set("offset", strconv.Itoa(page))
	return params
}

// filterCondition is one operator/values pair inside the API's filter DSL.
type filterCondition struct {
	Operator string   `json:"operator"`
	Values   []string `json:"values"`
}

// filterJSON builds the single-field equality filter the list endpoints
// accept, e.g. [{"project":{"operator":"=","values":["15"]}}].
func filterJSON(field string, id int64) string {
	filters := []map[string]filterCondition{
		{field: {Operator: "=", Values: []string{strconv.FormatInt(id, 10)}}},
	}
	b, err := json.Marshal(filters)
	if err != nil {
		return ""
	}
	return string(b)
}

// FetchWorkPackages retrieves one page of work packages, optionally scoped
// to a single project.
func (c *Client) FetchWorkPackages(ctx context.Context, pageSize, page int, projectID *int64) (*RequestResult, error) {
	params := pageParams(pageSize, page)
	if projectID != nil {
		params.Set("filters", filterJSON("project", *projectID))
	}
	return c.Do(ctx, endpointWorkPackages, params)
}

// FetchProjects retrieves one page of projects.
func (c *Client) FetchProjects(ctx context.Context, pageSize, page int) (*RequestResult, error) {
	return c.Do(ctx, endpointProjects, pageParams(pageSize, page))
}

// FetchUsers retrieves one page of users. Most installations require an
// admin key here; a 403 comes back as a terminal failure result.
func (c *Client) FetchUsers(ctx context.Context, pageSize, page int) (*RequestResult, error) {
	return c.Do(ctx, endpointUsers, pageParams(pageSize, page))
}

// FetchTimeEntries retrieves one page of time entries, optionally scoped to
// a single work package.
func (c *Client) FetchTimeEntries(ctx context.Context, pageSize, page int, workPackageID *int64) (*RequestResult, error) {
	params := pageParams(pageSize, page)
	if workPackageID != nil {
		params.Set("filters", filterJSON("workPackage", *workPackageID))
	}
	return c.Do(ctx, endpointTimeEntries, params)
}

// FetchVersions retrieves one page of versions: the project-nested endpoint
// when a project id is given, the global endpoint otherwise.
func (c *Client) FetchVersions(ctx context.Context, pageSize, page int, projectID *int64) (*RequestResult, error) {
	endpoint := endpointVersions
	if projectID != nil {
		endpoint = fmt.Sprintf("/api/v3/projects/%d/versions", *projectID)
	}
	return c.Do(ctx, endpoint, pageParams(pageSize, page))
}

// FetchStatuses retrieves all work-package statuses. Not paginated.
func (c *Client) FetchStatuses(ctx context.Context) (*RequestResult, error) {
	return c.Do(ctx, endpointStatuses, nil)
}

// FetchTypes retrieves all work-package types. Not paginated.
func (c *Client) FetchTypes(ctx context.Context) (*RequestResult, error) {
	return c.Do(ctx, endpointTypes, nil)
}

// FetchPriorities retrieves all priorities. Not paginated.
func (c *Client) FetchPriorities(ctx context.Context) (*RequestResult, error) {
	return c.Do(ctx, endpointPriorities, nil)
}

// FetchActivities tries the candidate activity endpoints in order and
// returns the first success. When no candidate works the last failure
// result is returned; the caller decides whether that matters.
func (c *Client) FetchActivities(ctx context.Context) (*RequestResult, error) {
	var last *RequestResult
	for _, endpoint := range activityEndpoints {
		result, err := c.Do(ctx, endpoint, nil)
		if err != nil {
			return nil, err
		}
		if result.Success {
			return result, nil
		}
		logging.Debug().Str("endpoint", endpoint).Msg("Activities endpoint not available")
		last = result
	}
	return last, nil
}

// TestConnection probes the projects endpoint with the smallest possible
// page and returns the number of projects visible to the configured key.
func (c *Client) TestConnection(ctx context.Context) (int, error) {
	params := url.Values{}
	params.Set("pageSize", "1")

	result, err := c.Do(ctx, endpointProjects, params)
	if err != nil {
		return 0, err
	}
	if !result.Success {
		return 0, fmt.Errorf("connection test failed: %s", result.Err)
	}

	var collection opmodels.Collection
	if err := json.Unmarshal(result.Payload, &collection); err != nil {
		return 0, fmt.Errorf("failed to decode projects response: %w", err)
	}
	return collection.Total, nil
}
