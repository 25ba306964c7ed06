// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

// Package authz authorizes operator API requests using Casbin.
//
// # Architecture
//
//	Request -> auth.Middleware -> authz.Middleware -> Handler
//	               |                    |
//	          Authenticate         Authorize (Casbin)
//	           (internal/auth)      (this package)
//
// # RBAC Model
//
// The embedded model matches the caller's role against path patterns with
// keyMatch2, so policy objects may contain :param segments:
//
//	[matchers]
//	m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && r.act == p.act
//
// # Policy
//
// The embedded policy.csv grants viewers read access to sync logs, batch
// status, breaker state and the live sync stream. Operators inherit those
// permissions and may also trigger syncs, test connections, reset
// breakers and manage connections:
//
//	p, viewer, /api/v1/batches/:id, read
//	p, operator, /api/v1/connections/:id/sync, write
//	g, operator, viewer
//
// Actions are derived from the HTTP method: GET/HEAD/OPTIONS are read,
// POST/PUT/PATCH are write, DELETE is delete.
//
// A deployment may replace the policy with security.authz_policy, a casbin
// CSV file that is re-read every 30 seconds.
//
// # Caching
//
// Decisions are cached per (role, path, action) for five minutes. The cache
// is cleared whenever the policy file is reloaded.
//
// # Metrics
//
// Decisions, latency, cache effectiveness and policy reloads are exported
// under channelsync_authz_*.
package authz
