// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

// Package ratelimit implements per-(platform, connection) sliding-window
// admission control over the shared kvstore.
//
// Each key holds the admitted request timestamps inside the current window.
// An admission check atomically prunes timestamps older than the window,
// counts the rest and appends "now" only when the count is below the limit.
// A denied check writes nothing, so denials never consume budget.
//
// When the shared store is unreachable the limiter fails closed: the request
// is denied with a one second retry hint, because overrunning a platform
// quota can get a listing suspended.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/channelsync/internal/kvstore"
	"github.com/tomtom215/channelsync/internal/logging"
	"github.com/tomtom215/channelsync/internal/metrics"
	"github.com/tomtom215/channelsync/internal/models"
)

var (
	// ErrStoreUnavailable wraps shared store failures. The decision is a denial.
	ErrStoreUnavailable = errors.New("ratelimit: shared store unavailable")

	// ErrUnknownPlatform means no limit is configured for the platform.
	ErrUnknownPlatform = errors.New("ratelimit: no limit configured for platform")
)

// FailClosedRetryAfter is the retry hint returned when the store is down.
const FailClosedRetryAfter = time.Second

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter is safe for concurrent use; all coordination happens in the store.
type Limiter struct {
	store  kvstore.Store
	limits map[models.PlatformType]Limit
	now    func() time.Time
	warn   rate.Sometimes
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New builds a limiter over store with per-platform limits.
func New(store kvstore.Store, limits map[models.PlatformType]Limit, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		limits: make(map[models.PlatformType]Limit, len(limits)),
		now:    time.Now,
		warn:   rate.Sometimes{Interval: 10 * time.Second},
	}
	for p, lim := range limits {
		l.limits[p] = lim
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Key returns the store key for a (platform, connection) window.
func Key(platform models.PlatformType, connectionID string) string {
	return "ratelimit:" + string(platform) + ":" + connectionID
}

// Limits returns the normalized limits sorted by platform.
func (l *Limiter) Limits() []PlatformLimit {
	out := make([]PlatformLimit, 0, len(l.limits))
	for p, lim := range l.limits {
		out = append(out, PlatformLimit{Platform: p, Limit: lim})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out
}

// Acquire asks for one request slot.
func (l *Limiter) Acquire(ctx context.Context, platform models.PlatformType, connectionID string) (Decision, error) {
	lim, ok := l.limits[platform]
	if !ok {
		return Decision{}, fmt.Errorf("%w: %s", ErrUnknownPlatform, platform)
	}

	now := l.now()
	var decision Decision
	err := l.store.Update(ctx, Key(platform, connectionID), lim.Window, func(current []byte, exists bool) ([]byte, error) {
		var stamps []int64
		if exists {
			if err := json.Unmarshal(current, &stamps); err != nil {
				// A corrupt window is discarded rather than wedging the connection.
				stamps = nil
			}
		}
		stamps = prune(stamps, now.Add(-lim.Window))

		if len(stamps) >= lim.Limit {
			oldest := time.Unix(0, stamps[0])
			decision = Decision{Allowed: false, RetryAfter: retryAfter(oldest, lim.Window, now)}
			return nil, kvstore.ErrNoChange
		}

		decision = Decision{Allowed: true}
		return json.Marshal(append(stamps, now.UnixNano()))
	})
	if err != nil {
		metrics.RecordRateLimitStoreError()
		metrics.RecordRateLimit(string(platform), false)
		l.warn.Do(func() {
			logging.Warn().Err(err).
				Str("platform", string(platform)).
				Str("connection_id", connectionID).
				Msg("Rate limiter store unavailable, denying requests")
		})
		return Decision{Allowed: false, RetryAfter: FailClosedRetryAfter}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	metrics.RecordRateLimit(string(platform), decision.Allowed)
	return decision, nil
}

// prune drops timestamps at or before cutoff. stamps is kept in ascending order.
func prune(stamps []int64, cutoff time.Time) []int64 {
	c := cutoff.UnixNano()
	i := sort.Search(len(stamps), func(i int) bool { return stamps[i] > c })
	return stamps[i:]
}

func retryAfter(oldest time.Time, window time.Duration, now time.Time) time.Duration {
	d := oldest.Add(window).Sub(now)
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}
