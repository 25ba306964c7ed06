// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

/*
Package supervisor runs the long-lived parts of channelsync under a suture v4
supervisor tree.

# Layout

	channelsync
	├── sync-layer
	│   ├── RouterService (watermill router: events, imports, manual syncs)
	│   └── engine.Reconciler (periodic drift detection)
	├── stream-layer
	│   └── WebSocketHubService
	└── api-layer
	    └── HTTPServerService

Each layer counts failures on its own, so a router that keeps crashing on a
broken NATS connection backs off without taking the HTTP listener down.
Webhooks accepted meanwhile are already on the bus and are consumed once
the router is back.

# Failure handling

Failures decay exponentially (FailureDecay seconds). Once the count exceeds
FailureThreshold the layer waits FailureBackoff before the next restart.
A service that returns nil is not restarted; one that returns an error is.

# Shutdown

Cancelling the context passed to Serve stops every layer. Services that miss
ShutdownTimeout are listed by UnstoppedServiceReport.

Storage handles (database pools, Badger, the NATS connection) are not
supervised: they are opened before the tree starts and closed after it stops.
*/
package supervisor
