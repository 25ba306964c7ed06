// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

// Package database is the source of truth for bookings and channel
// connections, and the sync ledger.
//
// # Drivers
//
//   - postgres (github.com/lib/pq): production. Double bookings are rejected
//     by an EXCLUDE USING gist constraint over daterange(check_in, check_out)
//     restricted to occupying statuses.
//   - sqlite (modernc.org/sqlite, pure Go): single-node deployments and tests.
//     The same rule is enforced by BEFORE INSERT/UPDATE triggers, and the pool
//     is limited to one connection so writes serialize.
//   - duckdb (github.com/duckdb/duckdb-go/v2): optional ledger backend for the
//     sync log, conflict records and review tasks (ledger.driver: duckdb).
//
// # Repositories
//
//   - Bookings: Insert, Update, Get, FindByExternal, RangeAvailable,
//     ListOccupying, OccupiedDays.
//   - Connections: Create, Get, ActiveForProperty, ListActive,
//     FindActiveByListing, UpdateStatus, SoftDelete.
//   - Ledger: Start, MarkRunning, Finish, Logs, Batch, RecordConflict,
//     Conflicts, CreateReviewTask, ReviewTasks.
//
// # Error mapping
//
// Overlap violations become *syncerr.BookingConflictError (HTTP 409).
// Missing rows wrap syncerr.ErrNotFound. Finish or MarkRunning on a
// terminal operation returns ErrOperationFinalized.
//
// # Migrations
//
// Versioned migrations are recorded in schema_migrations and applied once,
// each in its own transaction.
package database
