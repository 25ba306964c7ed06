// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/channelsync/internal/auth"
	"github.com/tomtom215/channelsync/internal/authz"
	"github.com/tomtom215/channelsync/internal/middleware"
)

// Router wires handlers and middleware into a chi tree.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
	authn         *auth.Middleware
	authz         *authz.Middleware
}

// NewRouter creates a router. authz may be nil, in which case every
// authenticated caller may use every operator endpoint.
func NewRouter(handler *Handler, chiMw *ChiMiddleware, authn *auth.Middleware, authzMw *authz.Middleware) *Router {
	if chiMw == nil {
		chiMw = NewChiMiddleware(nil)
	}
	if authn == nil {
		authn = auth.NewMiddleware(nil)
	}
	return &Router{
		handler:       handler,
		chiMiddleware: chiMw,
		authn:         authn,
		authz:         authzMw,
	}
}

// chiMiddleware adapts http.HandlerFunc middleware to Chi's func(http.Handler) http.Handler.
func chiMiddleware(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// Global Middleware Stack
	r.Use(chiMiddleware(middleware.RequestID))
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS()) // CORS must be global to handle OPTIONS preflight

	// Probes
	r.Group(func(r chi.Router) {
		r.Use(APISecurityHeaders())
		r.Get("/health", router.handler.Health)
		r.Get("/health/ready", router.handler.Ready)
	})

	r.Handle("/metrics", promhttp.Handler())

	// Platform webhooks authenticate by signature, not by operator token.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitWebhook())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))
		r.Post("/{platform}", router.handler.Webhook)
	})

	// Operator API
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitAPI())
		r.Use(APISecurityHeaders())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))
		r.Use(router.authn.Handler)
		if router.authz != nil {
			r.Use(router.authz.Handler)
		}

		r.Get("/ws/sync", router.handler.SyncStream)
		r.Get("/batches/{id}", router.handler.BatchStatus)

		r.Route("/connections", func(r chi.Router) {
			r.Use(chimiddleware.Compress(5))
			r.Post("/", router.handler.CreateConnection)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", router.handler.GetConnection)
				r.Delete("/", router.handler.DeleteConnection)
				r.Post("/sync", router.handler.TriggerSync)
				r.Post("/test", router.handler.TestConnection)
				r.Get("/logs", router.handler.SyncLogs)
				r.Get("/breaker", router.handler.BreakerState)
				r.Post("/breaker/reset", router.handler.ResetBreaker)
			})
		})
	})

	return r
}
