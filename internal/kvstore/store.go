// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

// Package kvstore is the shared state store behind the rate limiter, circuit
// breaker, booking locks and webhook idempotency cache.
//
// Every engine instance must point at the same store for those guarantees to
// hold across processes. Three backends are provided:
//
//   - MemoryStore: a single process, for tests and local development
//   - BadgerStore: a single node with persistent state and native TTLs
//   - NATSStore: JetStream KeyValue, shared by every instance on the cluster
//
// All mutating operations that the coordination primitives rely on (SetNX,
// CompareAndDelete, Update) are atomic with respect to other callers of the
// same backend.
package kvstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Get for a missing or expired key.
	ErrNotFound = errors.New("kvstore: key not found")

	// ErrNoChange may be returned by an UpdateFunc to leave the key untouched.
	// Update then returns nil.
	ErrNoChange = errors.New("kvstore: no change")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("kvstore: store closed")
)

// UpdateFunc computes a new value from the current one. exists is false when
// the key is missing or expired, in which case current is nil.
type UpdateFunc func(current []byte, exists bool) ([]byte, error)

// Store is a TTL-aware key-value store with the atomic primitives needed for
// cross-process coordination. A ttl of zero means no expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX stores value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// CompareAndDelete removes key only if it currently holds expected.
	CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error)
	Delete(ctx context.Context, key string) error
	// Update runs an atomic read-modify-write. fn may be called more than
	// once when the backend retries on contention, so it must be pure.
	Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error
	Ping(ctx context.Context) error
	Close() error
}

// maxUpdateRetries bounds optimistic-concurrency retries in Update.
const maxUpdateRetries = 16
