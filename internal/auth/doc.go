// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

/*
Package auth authenticates operators of the sync API.

Operators present an HS256 bearer token, either in the Authorization header
or in a "token" cookie. Tokens carry a username and one of two roles:

  - operator: may trigger syncs, test connections and reset breakers
  - viewer: read-only access to sync logs, batches and breaker state

What each role may do is decided by the casbin policy in internal/authz;
this package only establishes who is calling.

Usage:

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
	    return err
	}
	authn := auth.NewMiddleware(jwtManager)
	r.Use(authn.Handler)

	// in a handler
	claims := auth.GetClaims(r.Context())

When security.jwt_secret is empty, NewMiddleware(nil) lets every request
through as an anonymous operator. Use this for single-node development
only.

Platform webhooks do not use this package. They are authenticated by the
platform adapter's signature check.
*/
package auth
