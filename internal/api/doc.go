// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

/*
Package api exposes the sync engine over HTTP using the chi router.

Route groups:

	GET  /health                              liveness
	GET  /health/ready                        database and KV pings
	GET  /metrics                             Prometheus
	POST /api/v1/webhooks/{platform}          signed platform deliveries
	POST /api/v1/connections                  create a connection
	GET  /api/v1/connections/{id}             read a connection
	DELETE /api/v1/connections/{id}           disconnect
	POST /api/v1/connections/{id}/sync        queue a manual sync
	POST /api/v1/connections/{id}/test        probe platform credentials
	GET  /api/v1/connections/{id}/logs        sync log, newest first
	GET  /api/v1/connections/{id}/breaker     circuit breaker state
	POST /api/v1/connections/{id}/breaker/reset
	GET  /api/v1/batches/{id}                 batch status
	GET  /api/v1/ws/sync                      live operation stream (?connection_id=)

Webhooks are authenticated by their platform signature and rate limited per
client and endpoint. Everything else under /api/v1 requires an operator JWT
when one is configured and passes through the Casbin enforcer.

Engine errors are mapped through syncerr.HTTPStatus: 404 for unknown
entities, 429 with Retry-After when a platform budget is exhausted, 503
while a breaker is open, 502 for platform failures, 409 for booking
conflicts.
*/
package api
