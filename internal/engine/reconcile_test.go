// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/channelsync/internal/models"
	"github.com/tomtom215/channelsync/internal/syncerr"
)

var _ suture.Service = (*Reconciler)(nil)

func TestReconcileCorrectsSmallDrift(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conn := env.connect(t, "prop-1", models.PlatformAirbnb, "L-A")
	env.directBooking(t, "prop-1", "2026-07-10", "2026-07-13")
	// The platform shows a stale block on a free day.
	env.airbnb.remote = []models.AvailabilityDay{{Date: "2026-07-20", Available: false}}

	report, err := env.engine.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(report.Results) != 1 {
		t.Fatalf("results = %+v", report.Results)
	}
	r := report.Results[0]
	if r.ConnectionID != conn.ID || r.DriftDays != 4 || !r.Corrected || r.Alert {
		t.Errorf("result = %+v", r)
	}

	pushed := env.airbnb.availability
	if len(pushed) != 1 {
		t.Fatalf("availability pushes = %d, want 1", len(pushed))
	}
	want := map[string]bool{"2026-07-10": false, "2026-07-11": false, "2026-07-12": false, "2026-07-20": true}
	for _, d := range pushed[0].Days {
		if avail, ok := want[d.Date]; !ok || avail != d.Available {
			t.Errorf("unexpected fix %+v", d)
		}
	}

	batch, _ := env.engine.BatchStatus(ctx, report.BatchID)
	if batch.Total != 2 || batch.Status != models.SyncSuccess {
		t.Errorf("batch = %+v, want fetch and push", batch)
	}
	if len(env.reviewTasks(t)) != 0 {
		t.Error("small drift opened a review task")
	}
}

func TestReconcileAlertsOnLargeDrift(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conn := env.connect(t, "prop-1", models.PlatformAirbnb, "L-A")
	env.directBooking(t, "prop-1", "2026-07-10", "2026-07-25")

	report, err := env.engine.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	r := report.Results[0]
	if !r.Alert || r.Corrected || r.DriftDays != 15 {
		t.Errorf("result = %+v", r)
	}
	if _, avail, _ := env.airbnb.calls(); avail != 0 {
		t.Errorf("drift above threshold was pushed (%d)", avail)
	}
	tasks := env.reviewTasks(t)
	if len(tasks) != 1 || tasks[0].Kind != models.ReviewDrift || tasks[0].EntityID != conn.ID {
		t.Errorf("review tasks = %+v", tasks)
	}
}

func TestReconcileNoDrift(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t, "prop-1", models.PlatformAirbnb, "L-A")
	env.directBooking(t, "prop-1", "2026-07-10", "2026-07-12")
	env.airbnb.remote = []models.AvailabilityDay{
		{Date: "2026-07-10", Available: false},
		{Date: "2026-07-11", Available: false},
	}

	report, err := env.engine.Reconcile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if r := report.Results[0]; r.DriftDays != 0 || r.Corrected || r.Alert || r.Error != "" {
		t.Errorf("result = %+v", r)
	}
}

func TestReconcileContinuesPastFailingConnection(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t, "prop-1", models.PlatformAirbnb, "L-A")
	env.connect(t, "prop-2", models.PlatformBookingCom, "L-B")
	env.directBooking(t, "prop-2", "2026-07-10", "2026-07-11")
	env.airbnb.failWith(&syncerr.AdapterAuthError{Op: "availability", StatusCode: 401, Message: "expired"})

	report, err := env.engine.Reconcile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Results) != 2 {
		t.Fatalf("results = %+v", report.Results)
	}
	for _, r := range report.Results {
		switch models.PlatformType(r.Platform) {
		case models.PlatformAirbnb:
			if r.Error == "" {
				t.Errorf("airbnb result = %+v, want error", r)
			}
		case models.PlatformBookingCom:
			if !r.Corrected || r.DriftDays != 1 {
				t.Errorf("booking_com result = %+v", r)
			}
		}
	}
}

func TestReconcilerServeStopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t, "prop-1", models.PlatformAirbnb, "L-A")
	// The first pass consumes this error, which tells the test it ran.
	env.airbnb.failWith(&syncerr.AdapterAuthError{Op: "availability", StatusCode: 401})

	r := NewReconciler(env.engine, time.Hour)
	if r.String() != "reconciler" {
		t.Errorf("String() = %q", r.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Serve(ctx) }()

	ran := func() bool {
		env.airbnb.mu.Lock()
		defer env.airbnb.mu.Unlock()
		return len(env.airbnb.errs) == 0
	}
	deadline := time.Now().Add(5 * time.Second)
	for !ran() {
		if time.Now().After(deadline) {
			t.Fatal("first pass did not run")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
