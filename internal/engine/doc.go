// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

// Package engine orchestrates channel synchronization between the source of
// truth and the connected booking platforms.
//
// # Outbound
//
// HandleEvent fans a domain event out to every active connection of the
// property except the one that originated it (Event.Source). Each push is a
// sync operation recorded in the ledger under the event's batch id. Pushes
// run concurrently up to FanoutConcurrency and are retried with exponential
// backoff; a RetryAfter hint from the platform replaces the computed delay.
// Every adapter call goes through the adapter.Guard, so it consumes a rate
// limit token and is accounted by the connection's circuit breaker.
//
// # Inbound
//
// IngestWebhook claims the platform event id in the key-value store and
// queues an ImportTask. ImportBooking fetches the booking, resolves it
// against the local record with the resolver package and writes it under
// the booking lock. The resulting event carries the connection as Source,
// unless the resolution requires the platform to be corrected, in which
// case every connection is pushed.
//
// # Manual sync and reconciliation
//
// TriggerManualSync records a triggered operation and queues it;
// RunManualSync finishes it. Reconcile compares platform calendars with
// local occupancy and corrects small drift. Reconciler runs it on an
// interval under the supervisor.
//
// # Error handling
//
// Methods used as bus handlers return errors classified by syncerr:
// retryable errors are redelivered, anything else is poisoned. Outbound
// adapter failures are recorded on the sync operation and not returned. A
// transient import failure is returned so the task is fetched again.
package engine
