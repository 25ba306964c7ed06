// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

type mockRouter struct {
	runErr error
	closed atomic.Int32
}

func (m *mockRouter) Run(ctx context.Context) error {
	if m.runErr != nil {
		return m.runErr
	}
	<-ctx.Done()
	return nil
}

func (m *mockRouter) Close() error {
	m.closed.Add(1)
	return nil
}

func TestRouterService_Interface(t *testing.T) {
	var _ suture.Service = (*RouterService)(nil)
}

func TestRouterService_StopsOnCancel(t *testing.T) {
	router := &mockRouter{}
	svc := NewRouterService(func() (MessageRouter, error) { return router, nil })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Serve = %v, want DeadlineExceeded", err)
	}
	if router.closed.Load() != 1 {
		t.Errorf("Close called %d times, want 1", router.closed.Load())
	}
}

func TestRouterService_Errors(t *testing.T) {
	t.Run("build failure", func(t *testing.T) {
		buildErr := errors.New("subscribe: nats: no servers available")
		svc := NewRouterService(func() (MessageRouter, error) { return nil, buildErr })
		if err := svc.Serve(context.Background()); !errors.Is(err, buildErr) {
			t.Errorf("Serve = %v, want %v", err, buildErr)
		}
	})

	t.Run("router failure", func(t *testing.T) {
		runErr := errors.New("router crashed")
		router := &mockRouter{runErr: runErr}
		svc := NewRouterService(func() (MessageRouter, error) { return router, nil })
		if err := svc.Serve(context.Background()); !errors.Is(err, runErr) {
			t.Errorf("Serve = %v, want %v", err, runErr)
		}
		if router.closed.Load() != 1 {
			t.Error("crashed router was not closed")
		}
	})
}

func TestRouterService_RebuildsOnRestart(t *testing.T) {
	var builds atomic.Int32
	svc := NewRouterService(func() (MessageRouter, error) {
		if builds.Add(1) == 1 {
			return &mockRouter{runErr: errors.New("first run fails")}, nil
		}
		return &mockRouter{}, nil
	})

	sup := suture.New("test-sup", suture.Spec{
		FailureThreshold: 5,
		FailureBackoff:   10 * time.Millisecond,
		Timeout:          time.Second,
	})
	sup.Add(svc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := sup.ServeBackground(ctx)

	deadline := time.Now().Add(time.Second)
	for builds.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-errCh

	if builds.Load() < 2 {
		t.Errorf("router built %d times, want a fresh router after the crash", builds.Load())
	}
}
