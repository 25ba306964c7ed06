// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

// Package testinfra starts throwaway containers for integration tests.
//
// Everything here is behind the integration build tag, so a plain
// `go test ./...` never needs Docker:
//
//	go test -tags integration ./internal/database/...
//
// # PostgreSQL
//
// NewPostgresContainer runs postgres:16-alpine and exposes a DSN. The
// database package uses it to check that the EXCLUDE constraint rejects
// concurrent overlapping bookings the same way the SQLite triggers do.
//
//	func TestPostgresOverlap(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//	    ctx := context.Background()
//	    pg, err := testinfra.NewPostgresContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    defer testinfra.CleanupContainer(t, ctx, pg)
//	    ...
//	}
package testinfra
