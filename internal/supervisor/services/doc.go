// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

/*
Package services adapts channelsync components to suture.Service.

  - HTTPServerService: ListenAndServe with graceful Shutdown.
  - RouterService: builds and runs a fresh watermill router on every start.
  - WebSocketHubService: the live sync stream hub.

engine.Reconciler already implements suture.Service and is added directly.

Every wrapper returns ctx.Err() when asked to stop and a non-nil error when
the wrapped component fails, which is what makes suture restart it.
*/
package services
