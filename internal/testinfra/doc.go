// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

// Package testinfra provides shared infrastructure for tests that need an
// OpenProject API on the other side of the wire.
//
// # Fake API Server
//
// FakeOpenProject is an in-process httptest server speaking the v3 wire
// format: HAL collection envelopes, pageSize/offset pagination, basic-auth
// enforcement, and injectable failures. It needs no Docker and backs the
// end-to-end pipeline test in this package:
//
//	fake := testinfra.NewFakeOpenProject()
//	defer fake.Close()
//	fake.SetElements("/api/v3/projects",
//	    `{"id":3,"identifier":"website","name":"Website Relaunch"}`,
//	)
//
//	client := openproject.New(fake.ClientConfig())
//	// Drive the collector against a whole fixture installation.
//
// Unit tests inside the client and collector packages keep faking single
// responses inline; the fake server is for cross-stage tests that need the
// full API surface at once.
//
// # OpenProject Container
//
// Tests tagged `integration` can run against a real OpenProject instead.
// OpenProjectContainer boots the official image via testcontainers-go, seeds
// an admin user, and mints an API token through the rails runner:
//
//	op, err := testinfra.NewOpenProjectContainer(ctx)
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer op.Terminate(ctx)
//
//	client := openproject.New(op.Config())
//	total, err := client.TestConnection(ctx)
//
// First boot migrates and seeds a fresh database, which takes several
// minutes; keep startup timeouts generous. Tests skip gracefully when Docker
// is unavailable.
package testinfra
