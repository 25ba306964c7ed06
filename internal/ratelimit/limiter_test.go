// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/channelsync/internal/kvstore"
	"github.com/tomtom215/channelsync/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(limit Limit) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)}
	store := kvstore.NewMemoryStore(kvstore.WithClock(clock.Now))
	l := New(store, map[models.PlatformType]Limit{models.PlatformAirbnb: limit}, WithClock(clock.Now))
	return l, clock
}

func TestAcquireDeniesOverLimitThenRecovers(t *testing.T) {
	l, clock := newTestLimiter(Limit{Limit: 10, Window: time.Second})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		d, err := l.Acquire(ctx, models.PlatformAirbnb, "conn-1")
		if err != nil || !d.Allowed {
			t.Fatalf("request %d: %+v, %v", i+1, d, err)
		}
		clock.Advance(10 * time.Millisecond)
	}

	d, err := l.Acquire(ctx, models.PlatformAirbnb, "conn-1")
	if err != nil {
		t.Fatalf("11th request error: %v", err)
	}
	if d.Allowed {
		t.Fatal("11th request within the window must be denied")
	}
	// Oldest stamp is at t=0, now is t=100ms, so 900ms remain.
	if d.RetryAfter != 900*time.Millisecond {
		t.Errorf("RetryAfter = %v, want 900ms", d.RetryAfter)
	}

	clock.Advance(time.Second)
	d, err = l.Acquire(ctx, models.PlatformAirbnb, "conn-1")
	if err != nil || !d.Allowed {
		t.Errorf("after window: %+v, %v", d, err)
	}
}

func TestDeniedRequestsDoNotConsumeBudget(t *testing.T) {
	l, clock := newTestLimiter(Limit{Limit: 2, Window: time.Second})
	ctx := context.Background()

	_, _ = l.Acquire(ctx, models.PlatformAirbnb, "c")
	clock.Advance(500 * time.Millisecond)
	_, _ = l.Acquire(ctx, models.PlatformAirbnb, "c")

	for i := 0; i < 5; i++ {
		if d, _ := l.Acquire(ctx, models.PlatformAirbnb, "c"); d.Allowed {
			t.Fatal("expected denial while full")
		}
	}

	// The first stamp leaves the window; exactly one slot opens.
	clock.Advance(500 * time.Millisecond)
	if d, _ := l.Acquire(ctx, models.PlatformAirbnb, "c"); !d.Allowed {
		t.Fatal("a slot should have opened")
	}
	if d, _ := l.Acquire(ctx, models.PlatformAirbnb, "c"); d.Allowed {
		t.Error("only one slot should have opened")
	}
}

func TestConnectionsAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(Limit{Limit: 1, Window: time.Minute})
	ctx := context.Background()

	if d, _ := l.Acquire(ctx, models.PlatformAirbnb, "a"); !d.Allowed {
		t.Fatal("a: first request denied")
	}
	if d, _ := l.Acquire(ctx, models.PlatformAirbnb, "b"); !d.Allowed {
		t.Error("b must not share a's window")
	}
}

func TestConcurrentAcquireRespectsLimit(t *testing.T) {
	l, _ := newTestLimiter(Limit{Limit: 5, Window: time.Minute})
	ctx := context.Background()

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d, err := l.Acquire(ctx, models.PlatformAirbnb, "shared"); err == nil && d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	if allowed.Load() != 5 {
		t.Errorf("allowed = %d, want 5", allowed.Load())
	}
}

func TestUnknownPlatform(t *testing.T) {
	l, _ := newTestLimiter(Limit{Limit: 1, Window: time.Second})
	_, err := l.Acquire(context.Background(), models.PlatformVrbo, "c")
	if !errors.Is(err, ErrUnknownPlatform) {
		t.Errorf("error = %v, want ErrUnknownPlatform", err)
	}
}

func TestFailsClosedWhenStoreUnavailable(t *testing.T) {
	store := kvstore.NewMemoryStore()
	_ = store.Close()
	l := New(store, map[models.PlatformType]Limit{models.PlatformAirbnb: {Limit: 10, Window: time.Second}})

	d, err := l.Acquire(context.Background(), models.PlatformAirbnb, "c")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("error = %v, want ErrStoreUnavailable", err)
	}
	if d.Allowed || d.RetryAfter != FailClosedRetryAfter {
		t.Errorf("decision = %+v, want denied with 1s retry", d)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		limit   int
		window  time.Duration
		unit    string
		want    Limit
		wantErr bool
	}{
		{"per second", 10, 0, "second", Limit{10, time.Second}, false},
		{"per minute", 20, 0, "minute", Limit{20, time.Minute}, false},
		{"explicit window", 100, 90 * time.Second, "", Limit{100, 90 * time.Second}, false},
		{"both", 10, time.Second, "second", Limit{}, true},
		{"neither", 10, 0, "", Limit{}, true},
		{"bad unit", 10, 0, "day", Limit{}, true},
		{"zero limit", 0, time.Second, "", Limit{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.limit, tt.window, tt.unit)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Normalize() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Normalize() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLimitsSorted(t *testing.T) {
	l := New(kvstore.NewMemoryStore(), map[models.PlatformType]Limit{
		models.PlatformVrbo:   {60, time.Minute},
		models.PlatformAirbnb: {10, time.Second},
	})
	got := l.Limits()
	if len(got) != 2 || got[0].Platform != models.PlatformAirbnb || got[1].Limit.String() != "60/1m0s" {
		t.Errorf("Limits() = %+v", got)
	}
}
