// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
)

// ErrMutexHeld is returned by BreakerStore.Lock while another caller holds
// the breaker mutex. gobreaker retries Lock until its own deadline.
var ErrMutexHeld = errors.New("kvstore: breaker mutex held")

// DefaultMutexTTL bounds how long a crashed holder can wedge a breaker.
// Breaker locks are held for a whole adapter call, so config validation
// keeps every request timeout below breaker.mutex_ttl.
const DefaultMutexTTL = 30 * time.Second

const breakerKeyPrefix = "breaker:"

// BreakerStore adapts a Store to gobreaker.SharedDataStore so that every
// engine instance shares one circuit breaker state per connection.
type BreakerStore struct {
	store    Store
	mutexTTL time.Duration
	timeout  time.Duration
	owner    []byte
}

var _ gobreaker.SharedDataStore = (*BreakerStore)(nil)

// NewBreakerStore wraps store. mutexTTL <= 0 selects DefaultMutexTTL.
func NewBreakerStore(store Store, mutexTTL time.Duration) *BreakerStore {
	if mutexTTL <= 0 {
		mutexTTL = DefaultMutexTTL
	}
	return &BreakerStore{
		store:    store,
		mutexTTL: mutexTTL,
		timeout:  5 * time.Second,
		owner:    []byte(uuid.NewString()),
	}
}

func (b *BreakerStore) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), b.timeout)
}

// Lock makes a single attempt to take the mutex.
func (b *BreakerStore) Lock(name string) error {
	ctx, cancel := b.ctx()
	defer cancel()
	ok, err := b.store.SetNX(ctx, breakerKeyPrefix+name, b.owner, b.mutexTTL)
	if err != nil {
		return fmt.Errorf("lock %s: %w", name, err)
	}
	if !ok {
		return ErrMutexHeld
	}
	return nil
}

// Unlock releases the mutex if this process still holds it.
func (b *BreakerStore) Unlock(name string) error {
	ctx, cancel := b.ctx()
	defer cancel()
	if _, err := b.store.CompareAndDelete(ctx, breakerKeyPrefix+name, b.owner); err != nil {
		return fmt.Errorf("unlock %s: %w", name, err)
	}
	return nil
}

// GetData returns nil data for a missing key, which gobreaker treats as
// "no shared state yet".
func (b *BreakerStore) GetData(name string) ([]byte, error) {
	ctx, cancel := b.ctx()
	defer cancel()
	data, err := b.store.Get(ctx, breakerKeyPrefix+name)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return data, err
}

// SetData writes state without a TTL; gobreaker refuses to run without it.
func (b *BreakerStore) SetData(name string, data []byte) error {
	ctx, cancel := b.ctx()
	defer cancel()
	return b.store.Set(ctx, breakerKeyPrefix+name, data, 0)
}
