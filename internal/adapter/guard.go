// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package adapter

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/channelsync/internal/logging"
	"github.com/tomtom215/channelsync/internal/models"
	"github.com/tomtom215/channelsync/internal/ratelimit"
	"github.com/tomtom215/channelsync/internal/syncerr"
)

// RateLimiter admits or denies one request for a connection.
type RateLimiter interface {
	Acquire(ctx context.Context, platform models.PlatformType, connectionID string) (ratelimit.Decision, error)
}

// Breaker runs fn under the connection's circuit breaker.
type Breaker interface {
	Execute(ctx context.Context, platform models.PlatformType, connectionID string, fn func(context.Context) error) error
}

// Guard wraps every adapter call: rate limiter admission first, then the
// circuit breaker, then the call itself under a per-request timeout. A
// timeout counts as a breaker failure.
type Guard struct {
	limiter  RateLimiter
	breakers Breaker
	timeout  time.Duration
	warn     rate.Sometimes
}

// DefaultRequestTimeout bounds one adapter call when no timeout is given.
const DefaultRequestTimeout = 10 * time.Second

// NewGuard builds a Guard.
func NewGuard(limiter RateLimiter, breakers Breaker, timeout time.Duration) *Guard {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Guard{
		limiter:  limiter,
		breakers: breakers,
		timeout:  timeout,
		warn:     rate.Sometimes{Interval: 10 * time.Second},
	}
}

// Do runs fn for conn. A denied request returns *syncerr.RateLimitError and an
// open breaker returns *syncerr.CircuitOpenError; in both cases fn is not
// called.
func (g *Guard) Do(ctx context.Context, conn *models.ChannelConnection, fn func(context.Context) error) error {
	decision, err := g.limiter.Acquire(ctx, conn.Platform, conn.ID)
	if errors.Is(err, ratelimit.ErrUnknownPlatform) {
		return &syncerr.AdapterValidationError{Op: "rate_limit", Message: err.Error(), Cause: err}
	}
	if !decision.Allowed {
		if err != nil {
			g.warn.Do(func() {
				logging.Warn().Err(err).Str("connection_id", conn.ID).Msg("Denying adapter call, limiter unavailable")
			})
		}
		return &syncerr.RateLimitError{
			Key:        ratelimit.Key(conn.Platform, conn.ID),
			RetryAfter: decision.RetryAfter,
			Cause:      err,
		}
	}

	return g.breakers.Execute(ctx, conn.Platform, conn.ID, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return fn(ctx)
	})
}
