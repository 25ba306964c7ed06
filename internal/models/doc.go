// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

// Package models defines the data structures shared across channelsync:
// channel connections, bookings, sync operations and batches, domain events,
// import tasks, conflict records and the API response envelope.
//
// Models carry JSON tags for the HTTP surface and the event bus. Database
// mapping is done explicitly in internal/database.
package models
