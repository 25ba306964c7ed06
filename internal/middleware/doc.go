// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

/*
Package middleware provides HTTP middleware shared by the API router.

Key Components:

  - RequestID: X-Request-ID propagation plus request and correlation IDs in
    the logging context
  - PrometheusMetrics: request count, latency and in-flight gauge, labelled
    by chi route pattern

Both are http.HandlerFunc decorators; the router adapts them to chi's
func(http.Handler) http.Handler.

Compression and panic recovery come from github.com/go-chi/chi/v5/middleware.

See Also:

  - internal/auth: operator authentication
  - internal/authz: casbin authorization
  - internal/metrics: Prometheus metric definitions
*/
package middleware
