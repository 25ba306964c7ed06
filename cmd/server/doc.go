// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

/*
Command server runs the channelsync service.

Startup order:

 1. Configuration (koanf: defaults, YAML file, environment)
 2. Logging (zerolog)
 3. Source-of-truth database and sync ledger
 4. Event bus transport (NATS JetStream, embedded or external, or in-process)
 5. Shared KV store (memory, Badger or NATS KV) for rate limits, breakers,
    locks and idempotency keys
 6. Credential store, platform adapters, rate limiter, circuit breakers
 7. Sync engine and the chi HTTP router
 8. Supervisor tree: event router, reconciler, websocket hub, HTTP server

SIGINT and SIGTERM cancel the tree. The HTTP server drains for
server.shutdown_timeout, the router waits for in-flight messages, and stores
are closed last.

Operator tokens are issued with the token command.
*/
package main
