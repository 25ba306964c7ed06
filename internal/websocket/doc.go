// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

/*
Package websocket streams sync activity to the admin UI.

The Hub is wired into the engine as its Notifier: every sync operation that
reaches a terminal status is broadcast as a "sync_operation" message. The
API upgrades GET /api/v1/ws/sync and registers a Client per connection.

Key Components:

  - Hub: client registry and broadcaster, run as a supervised service
  - Client: one connection with a read pump (pings, watch requests) and a
    write pump
  - Message: {"type": ..., "data": ...}

Message Types:

  - sync_operation: a finished models.SyncOperation
  - reconcile_report: the summary of a reconciliation pass
  - ping / pong: client keepalive
  - watch (client to server): {"type": "watch", "connection_ids": [...]}
    limits sync_operation messages to those connections; an empty list
    clears the filter

Backpressure:

Broadcasting never blocks the engine. When the hub queue is full the message
is dropped with a warning, and a client whose own buffer is full is
disconnected. Clients reload the sync log over HTTP after reconnecting.
*/
package websocket
