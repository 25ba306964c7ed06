// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package authz

import (
	"net/http"

	"github.com/tomtom215/channelsync/internal/auth"
	"github.com/tomtom215/channelsync/internal/logging"
)

// Middleware provides authorization middleware using Casbin.
type Middleware struct {
	enforcer *Enforcer
}

// NewMiddleware creates a new authorization middleware.
func NewMiddleware(enforcer *Enforcer) *Middleware {
	return &Middleware{
		enforcer: enforcer,
	}
}

// AuthorizeRequest authorizes the caller's role against the request path,
// with the action derived from the HTTP method. It must run after
// auth.Middleware.
func (m *Middleware) AuthorizeRequest(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := auth.GetClaims(r.Context())
		if claims == nil {
			http.Error(w, "Forbidden: no authentication context", http.StatusForbidden)
			return
		}

		action := methodToAction(r.Method)
		allowed, err := m.enforcer.Enforce(claims.Role, r.URL.Path, action)
		if err != nil {
			logging.Ctx(r.Context()).Error().Err(err).Msg("Authorization error")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		if !allowed {
			logging.Ctx(r.Context()).Info().
				Str("user", claims.Username).
				Str("role", claims.Role).
				Str("path", r.URL.Path).
				Str("action", action).
				Msg("Authorization denied")
			http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
			return
		}

		next(w, r)
	}
}

// Handler adapts AuthorizeRequest for chi's Use.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return m.AuthorizeRequest(next.ServeHTTP)
}

// methodToAction maps HTTP methods to Casbin actions.
func methodToAction(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return "read"
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return "write"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}
