// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tomtom215/channelsync/internal/logging"
)

type contextKey string

const ClaimsContextKey contextKey = "claims"

// anonymousClaims are attached to every request when authentication is
// disabled (no security.jwt_secret).
var anonymousClaims = &Claims{Username: "anonymous", Role: RoleOperator}

// Middleware authenticates operator API requests.
type Middleware struct {
	jwtManager *JWTManager
}

// NewMiddleware creates the authentication middleware. A nil manager
// disables authentication: requests run as an anonymous operator.
func NewMiddleware(jwtManager *JWTManager) *Middleware {
	return &Middleware{jwtManager: jwtManager}
}

// Enabled reports whether bearer tokens are required.
func (m *Middleware) Enabled() bool {
	return m.jwtManager != nil
}

// Authenticate is middleware that enforces authentication
func (m *Middleware) Authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !m.Enabled() {
			next(w, r.WithContext(ContextWithClaims(r.Context(), anonymousClaims)))
			return
		}

		token, err := extractJWTToken(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		claims, err := m.jwtManager.ValidateToken(token)
		if err != nil {
			logging.Ctx(r.Context()).Debug().Err(err).Msg("Token validation failed")
			http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
			return
		}

		next(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
	}
}

// Handler adapts Authenticate to the func(http.Handler) http.Handler shape
// chi's Use expects.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return m.Authenticate(next.ServeHTTP)
}

// extractJWTToken extracts JWT token from Authorization header or cookie.
// Browsers cannot set headers on a websocket upgrade, so the live sync
// stream authenticates with the cookie.
func extractJWTToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		cookie, err := r.Cookie("token")
		if err != nil {
			return "", fmt.Errorf("unauthorized: missing token")
		}
		return cookie.Value, nil
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", fmt.Errorf("unauthorized: invalid authorization header")
	}

	return parts[1], nil
}

// ContextWithClaims returns a copy of ctx carrying the claims.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ClaimsContextKey, claims)
}

// GetClaims retrieves the operator claims from context, or nil.
func GetClaims(ctx context.Context) *Claims {
	claims, ok := ctx.Value(ClaimsContextKey).(*Claims)
	if !ok {
		return nil
	}
	return claims
}
