// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

// Package lock provides short-lived exclusive leases on a property's date
// range, held in the shared kvstore.
//
// A lease is a key lock:{property}:{check_in}:{check_out} whose value is the
// holder token, written with SetNX and a TTL. Release deletes the key only if
// the caller still holds it, so a holder whose lease expired can never remove
// a newer holder's lease. A crashed holder's lease lapses after the TTL.
//
// Leases serialize concurrent writers for the same exact range. They are not
// the double-booking guarantee: overlapping but different ranges take
// different keys, and the database overlap constraint is what rejects them.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/channelsync/internal/kvstore"
	"github.com/tomtom215/channelsync/internal/logging"
	"github.com/tomtom215/channelsync/internal/metrics"
	"github.com/tomtom215/channelsync/internal/models"
	"github.com/tomtom215/channelsync/internal/syncerr"
)

// DefaultTTL bounds a crashed holder's lease.
const DefaultTTL = 300 * time.Second

// Manager acquires booking leases.
type Manager struct {
	store kvstore.Store
	ttl   time.Duration
}

// NewManager builds a Manager. ttl <= 0 selects DefaultTTL.
func NewManager(store kvstore.Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: store, ttl: ttl}
}

// Key returns the lease key for a property and range.
func Key(propertyID string, r models.DateRange) string {
	return "lock:" + propertyID + ":" + r.Start() + ":" + r.End()
}

// Lock is a held lease.
type Lock struct {
	store  kvstore.Store
	key    string
	holder string
}

// Key returns the lease key.
func (l *Lock) Key() string { return l.key }

// Holder returns the holder token.
func (l *Lock) Holder() string { return l.holder }

// Acquire takes the lease for holderID. If another holder has it, Acquire
// returns a *syncerr.BookingConflictError naming that holder.
func (m *Manager) Acquire(ctx context.Context, propertyID string, r models.DateRange, holderID string) (*Lock, error) {
	key := Key(propertyID, r)
	ok, err := m.store.SetNX(ctx, key, []byte(holderID), m.ttl)
	if err != nil {
		metrics.RecordLock("error")
		return nil, &syncerr.TransientError{Op: "acquire booking lock", Cause: err}
	}
	if !ok {
		metrics.RecordLock("conflict")
		holder := "unknown"
		if current, err := m.store.Get(ctx, key); err == nil {
			holder = string(current)
		}
		return nil, &syncerr.BookingConflictError{PropertyID: propertyID, Range: r.String(), Holder: holder}
	}
	metrics.RecordLock("acquired")
	return &Lock{store: m.store, key: key, holder: holderID}, nil
}

// Release drops the lease if it is still held by this holder. Releasing a
// lease that already expired is not an error.
func (l *Lock) Release(ctx context.Context) error {
	released, err := l.store.CompareAndDelete(ctx, l.key, []byte(l.holder))
	if err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	if !released {
		logging.Warn().Str("key", l.key).Str("holder", l.holder).
			Msg("Booking lock expired before release")
	}
	return nil
}

// WithBookingLock runs fn while holding the lease. The lease is released
// whatever fn returns, using a context that survives cancellation of ctx.
func (m *Manager) WithBookingLock(ctx context.Context, propertyID string, r models.DateRange, holderID string, fn func(context.Context) error) error {
	l, err := m.Acquire(ctx, propertyID, r, holderID)
	if err != nil {
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := l.Release(releaseCtx); err != nil {
			logging.Error().Err(err).Str("key", l.key).Msg("Failed to release booking lock")
		}
	}()
	return fn(ctx)
}
