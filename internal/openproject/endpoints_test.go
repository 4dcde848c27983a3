// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package openproject

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func int64Ptr(v int64) *int64 { return &v }

func TestFetchWorkPackagesQuery(t *testing.T) {
	var gotPath, gotFilters, gotPageSize, gotOffset string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotFilters = r.URL.Query().Get("filters")
		gotPageSize = r.URL.Query().Get("pageSize")
		gotOffset = r.URL.Query().Get("offset")
		w.Write([]byte(`{"_type":"Collection","total":0}`))
	}))
	defer server.Close()

	client := testClient(server.URL, 1)

	t.Run("scoped to project", func(t *testing.T) {
		result, err := client.FetchWorkPackages(context.Background(), 100, 2, int64Ptr(7))
		if err != nil || !result.Success {
			t.Fatalf("FetchWorkPackages() = %+v, %v", result, err)
		}
		if gotPath != "/api/v3/work_packages" {
			t.Errorf("path = %q, want /api/v3/work_packages", gotPath)
		}
		want := `[{"project":{"operator":"=","values":["7"]}}]`
		if gotFilters != want {
			t.Errorf("filters = %q, want %q", gotFilters, want)
		}
		if gotPageSize != "100" || gotOffset != "2" {
			t.Errorf("pageSize/offset = %q/%q, want 100/2", gotPageSize, gotOffset)
		}
	})

	t.Run("unscoped", func(t *testing.T) {
		if _, err := client.FetchWorkPackages(context.Background(), 50, 1, nil); err != nil {
			t.Fatalf("FetchWorkPackages() error = %v", err)
		}
		if gotFilters != "" {
			t.Errorf("filters = %q, want none", gotFilters)
		}
	})
}

func TestFetchTimeEntriesFilter(t *testing.T) {
	var gotFilters string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFilters = r.URL.Query().Get("filters")
		w.Write([]byte(`{"_type":"Collection","total":0}`))
	}))
	defer server.Close()

	client := testClient(server.URL, 1)

	if _, err := client.FetchTimeEntries(context.Background(), 100, 1, int64Ptr(12)); err != nil {
		t.Fatalf("FetchTimeEntries() error = %v", err)
	}

	want := `[{"workPackage":{"operator":"=","values":["12"]}}]`
	if gotFilters != want {
		t.Errorf("filters = %q, want %q", gotFilters, want)
	}
}

func TestFetchVersionsEndpointSwitch(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"_type":"Collection","total":0}`))
	}))
	defer server.Close()

	client := testClient(server.URL, 1)

	t.Run("project-nested", func(t *testing.T) {
		if _, err := client.FetchVersions(context.Background(), 100, 1, int64Ptr(42)); err != nil {
			t.Fatalf("FetchVersions() error = %v", err)
		}
		if gotPath != "/api/v3/projects/42/versions" {
			t.Errorf("path = %q, want /api/v3/projects/42/versions", gotPath)
		}
	})

	t.Run("global", func(t *testing.T) {
		if _, err := client.FetchVersions(context.Background(), 100, 1, nil); err != nil {
			t.Fatalf("FetchVersions() error = %v", err)
		}
		if gotPath != "/api/v3/versions" {
			t.Errorf("path = %q, want /api/v3/versions", gotPath)
		}
	})
}

func TestFetchActivitiesFallback(t *testing.T) {
	t.Run("second endpoint succeeds", func(t *testing.T) {
		var paths []string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			paths = append(paths, r.URL.Path)
			if r.URL.Path == "/api/v3/time_entries/activities" {
				http.NotFound(w, r)
				return
			}
			w.Write([]byte(`{"_type":"Collection","total":4}`))
		}))
		defer server.Close()

		client := testClient(server.URL, 1)

		result, err := client.FetchActivities(context.Background())
		if err != nil {
			t.Fatalf("FetchActivities() error = %v", err)
		}
		if !result.Success {
			t.Fatalf("Success = false, want fallback success (err: %s)", result.Err)
		}
		wantPaths := []string{"/api/v3/time_entries/activities", "/api/v3/activities"}
		if len(paths) != 2 || paths[0] != wantPaths[0] || paths[1] != wantPaths[1] {
			t.Errorf("paths = %v, want %v", paths, wantPaths)
		}
	})

	t.Run("no endpoint available", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}))
		defer server.Close()

		client := testClient(server.URL, 1)

		result, err := client.FetchActivities(context.Background())
		if err != nil {
			t.Fatalf("FetchActivities() error = %v", err)
		}
		if result.Success {
			t.Fatal("Success = true, want failure result")
		}
		if !strings.Contains(result.Err, "status 404") {
			t.Errorf("Err = %q, want last 404 failure", result.Err)
		}
	})
}

func TestTestConnection(t *testing.T) {
	t.Run("returns project count", func(t *testing.T) {
		var gotPageSize string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPageSize = r.URL.Query().Get("pageSize")
			w.Write([]byte(`{"_type":"Collection","total":12,"count":1}`))
		}))
		defer server.Close()

		client := testClient(server.URL, 1)

		total, err := client.TestConnection(context.Background())
		if err != nil {
			t.Fatalf("TestConnection() error = %v", err)
		}
		if total != 12 {
			t.Errorf("total = %d, want 12", total)
		}
		if gotPageSize != "1" {
			t.Errorf("pageSize = %q, want 1", gotPageSize)
		}
	})

	t.Run("unauthorized", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("bad key"))
		}))
		defer server.Close()

		client := testClient(server.URL, 1)

		if _, err := client.TestConnection(context.Background()); err == nil {
			t.Fatal("TestConnection() error = nil, want failure")
		} else if !strings.Contains(err.Error(), "connection test failed") {
			t.Errorf("error = %v, want connection test failure", err)
		}
	})
}

func TestPageParams(t *testing.T) {
	params := pageParams(500, 3)

	if got := params.Get("pageSize"); got != "500" {
		t.Errorf("pageSize = %q, want 500", got)
	}
	if got := params.Get("offset"); got != "3" {
		t.Errorf("offset = %q, want 3", got)
	}
}

func TestFilterJSON(t *testing.T) {
	got := filterJSON("project", 15)
	want := `[{"project":{"operator":"=","values":["15"]}}]`
	if got != want {
		t.Errorf("filterJSON() = %q, want %q", got, want)
	}
}
