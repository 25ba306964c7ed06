// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

// Package breaker keeps one circuit breaker per (platform, connection),
// shared by every engine instance through the kvstore.
//
// Breakers are gobreaker DistributedCircuitBreakers over a
// kvstore.BreakerStore. The state machine is the usual one:
//
//	CLOSED    --failure_threshold consecutive failures--> OPEN
//	OPEN      --timeout elapsed-->                       HALF_OPEN
//	HALF_OPEN --success_threshold successes-->           CLOSED
//	HALF_OPEN --any failure-->                           OPEN
//
// Calls against an open breaker return syncerr.CircuitOpenError without
// invoking the adapter. Context cancellation is excluded from the counts;
// deadline expiry counts as a failure.
//
// gobreaker reads the shared state before it takes its own mutex, so two
// instances can each act on a state the other is about to overwrite. Every
// call therefore runs under an outer lock (gobreaker:outer:{name}) that is
// held from before the state read until after the state write.
//
// DETERMINISM NOTE: gobreaker uses wall-clock time for the open timeout.
// Tests use short timeouts and real waits.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/channelsync/internal/kvstore"
	"github.com/tomtom215/channelsync/internal/logging"
	"github.com/tomtom215/channelsync/internal/metrics"
	"github.com/tomtom215/channelsync/internal/models"
	"github.com/tomtom215/channelsync/internal/syncerr"
)

// gobreaker's key layout inside the SharedDataStore.
const (
	mutexKeyPrefix = "gobreaker:mutex:"
	stateKeyPrefix = "gobreaker:state:"
)

const (
	outerKeyPrefix = "gobreaker:outer:"
	lockPoll       = 25 * time.Millisecond
)

// Settings configures every breaker in a Registry.
type Settings struct {
	FailureThreshold uint32
	SuccessThreshold uint32
	Timeout          time.Duration
	// LockWait caps how long a call queues for the outer lock. It should
	// cover the longest call another instance can hold the lock for.
	LockWait time.Duration
}

// DefaultSettings trips after 5 failures, probes after 60s and closes after
// 2 successful probes.
func DefaultSettings() Settings {
	return Settings{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          60 * time.Second,
		LockWait:         kvstore.DefaultMutexTTL,
	}
}

// Snapshot is the operator view of one breaker.
type Snapshot struct {
	Name                 string
	State                string
	ConsecutiveFailures  uint32
	ConsecutiveSuccesses uint32
	OpenedAt             *time.Time
	Generation           uint64
}

type entry struct {
	// mu serializes in-process callers ahead of the shared mutex, so they
	// queue locally instead of polling the store.
	mu sync.Mutex
	cb *gobreaker.DistributedCircuitBreaker[struct{}]
}

// Registry hands out breakers by (platform, connection).
type Registry struct {
	store    *kvstore.BreakerStore
	settings Settings

	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry builds a Registry over store.
func NewRegistry(store *kvstore.BreakerStore, settings Settings) *Registry {
	d := DefaultSettings()
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = d.FailureThreshold
	}
	if settings.SuccessThreshold == 0 {
		settings.SuccessThreshold = d.SuccessThreshold
	}
	if settings.Timeout <= 0 {
		settings.Timeout = d.Timeout
	}
	if settings.LockWait <= 0 {
		settings.LockWait = d.LockWait
	}
	return &Registry{
		store:    store,
		settings: settings,
		entries:  make(map[string]*entry),
	}
}

// Name returns the breaker name for a connection.
func Name(platform models.PlatformType, connectionID string) string {
	return string(platform) + ":" + connectionID
}

func (r *Registry) gobreakerSettings(name string) gobreaker.Settings {
	threshold := r.settings.FailureThreshold
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: r.settings.SuccessThreshold,
		Timeout:     r.settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: onStateChange,
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
	}
}

func onStateChange(name string, from, to gobreaker.State) {
	fromStr, toStr := stateToString(from), stateToString(to)
	platform, _, _ := strings.Cut(name, ":")

	ev := logging.Info()
	if to == gobreaker.StateOpen {
		ev = logging.Warn()
	}
	ev.Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("Circuit breaker state transition")

	metrics.SetBreakerState(name, stateToInt(to))
	metrics.RecordBreakerTransition(platform, fromStr, toStr)
}

func (r *Registry) get(name string) (*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[name]; ok {
		return e, nil
	}
	cb, err := gobreaker.NewDistributedCircuitBreaker[struct{}](r.store, r.gobreakerSettings(name))
	if err != nil {
		return nil, fmt.Errorf("init breaker %s: %w", name, err)
	}
	e := &entry{cb: cb}
	r.entries[name] = e
	return e, nil
}

// Execute runs fn through the connection's breaker.
func (r *Registry) Execute(ctx context.Context, platform models.PlatformType, connectionID string, fn func(context.Context) error) error {
	name := Name(platform, connectionID)
	e, err := r.get(name)
	if err != nil {
		return &syncerr.TransientError{Op: "breaker", Cause: err}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := r.lockOuter(ctx, name, "breaker lock"); err != nil {
		return err
	}
	defer r.unlockOuter(name)

	_, err = e.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		logging.Debug().Str("breaker", name).Err(err).Msg("Request rejected by circuit breaker")
		return &syncerr.CircuitOpenError{Name: name, Cause: err}
	case errors.Is(err, kvstore.ErrMutexHeld):
		// A crashed holder left gobreaker's own mutex behind; it expires
		// with the mutex TTL.
		return &syncerr.TransientError{Op: "breaker mutex", Cause: err}
	}
	return err
}

// State reads the shared state without taking the breaker mutex. An open
// breaker whose timeout has passed reports half-open, which is what the next
// call will see.
func (r *Registry) State(platform models.PlatformType, connectionID string) (Snapshot, error) {
	name := Name(platform, connectionID)
	shared, ok, err := r.readShared(name)
	if err != nil {
		return Snapshot{}, err
	}
	if !ok {
		return Snapshot{Name: name, State: stateToString(gobreaker.StateClosed)}, nil
	}

	state := shared.State
	if state == gobreaker.StateOpen && shared.Expiry.Before(time.Now()) {
		state = gobreaker.StateHalfOpen
	}
	snap := Snapshot{
		Name:                 name,
		State:                stateToString(state),
		ConsecutiveFailures:  shared.Counts.ConsecutiveFailures,
		ConsecutiveSuccesses: shared.Counts.ConsecutiveSuccesses,
		Generation:           shared.Generation,
	}
	if shared.State == gobreaker.StateOpen {
		opened := shared.Expiry.Add(-r.settings.Timeout)
		snap.OpenedAt = &opened
	}
	return snap, nil
}

// Reset forces the breaker closed under the outer lock, so it cannot
// interleave with a call on another instance.
func (r *Registry) Reset(platform models.PlatformType, connectionID string) error {
	name := Name(platform, connectionID)
	if err := r.lockOuter(context.Background(), name, "breaker reset"); err != nil {
		return err
	}
	defer r.unlockOuter(name)

	prev, _, err := r.readShared(name)
	if err != nil {
		return err
	}
	next := gobreaker.SharedState{
		State:      gobreaker.StateClosed,
		Generation: prev.Generation + 1,
		Buckets:    []gobreaker.Counts{},
		Start:      time.Now(),
	}
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode breaker state: %w", err)
	}
	if err := r.store.SetData(stateKeyPrefix+name, data); err != nil {
		return fmt.Errorf("write breaker state %s: %w", name, err)
	}

	if prev.State != gobreaker.StateClosed {
		onStateChange(name, prev.State, gobreaker.StateClosed)
	}
	logging.Info().Str("breaker", name).Msg("Circuit breaker reset by operator")
	return nil
}

// lockOuter polls for the outer lock until it is taken, ctx ends or
// LockWait passes.
func (r *Registry) lockOuter(ctx context.Context, name, op string) error {
	timer := time.NewTimer(r.settings.LockWait)
	defer timer.Stop()
	ticker := time.NewTicker(lockPoll)
	defer ticker.Stop()

	for {
		err := r.store.Lock(outerKeyPrefix + name)
		if err == nil {
			return nil
		}
		if !errors.Is(err, kvstore.ErrMutexHeld) {
			return &syncerr.TransientError{Op: op, Cause: err}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return &syncerr.TransientError{Op: op, Cause: err}
		case <-ticker.C:
		}
	}
}

func (r *Registry) unlockOuter(name string) {
	if err := r.store.Unlock(outerKeyPrefix + name); err != nil {
		logging.Warn().Err(err).Str("breaker", name).Msg("Failed to release breaker lock")
	}
}

func (r *Registry) readShared(name string) (gobreaker.SharedState, bool, error) {
	var shared gobreaker.SharedState
	data, err := r.store.GetData(stateKeyPrefix + name)
	if err != nil {
		return shared, false, fmt.Errorf("read breaker state %s: %w", name, err)
	}
	if len(data) == 0 {
		return shared, false, nil
	}
	if err := json.Unmarshal(data, &shared); err != nil {
		return shared, false, fmt.Errorf("decode breaker state %s: %w", name, err)
	}
	return shared, true, nil
}

func stateToInt(state gobreaker.State) int {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half_open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
