// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

//go:build integration

package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/channelsync/internal/config"
	"github.com/tomtom215/channelsync/internal/models"
	"github.com/tomtom215/channelsync/internal/syncerr"
	"github.com/tomtom215/channelsync/internal/testinfra"
)

func setupPostgres(t *testing.T) *DB {
	t.Helper()
	testinfra.SkipIfNoDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg, err := testinfra.NewPostgresContainer(ctx)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() { testinfra.CleanupContainer(t, context.Background(), pg) })

	db, err := Open(ctx, config.DatabaseConfig{Driver: "postgres", DSN: pg.DSN, MaxOpenConns: 16})
	if err != nil {
		t.Fatalf("Open(postgres): %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPostgresExclusionConstraint(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	repo := db.Bookings()

	if err := repo.Insert(ctx, newBooking("pg-prop", "2026-07-10", "2026-07-14", models.BookingConfirmed)); err != nil {
		t.Fatalf("first Insert: %v", err)
	}

	var conflict *syncerr.BookingConflictError
	if err := repo.Insert(ctx, newBooking("pg-prop", "2026-07-13", "2026-07-15", models.BookingPending)); !errors.As(err, &conflict) {
		t.Errorf("overlapping Insert = %v, want BookingConflictError", err)
	}
	if err := repo.Insert(ctx, newBooking("pg-prop", "2026-07-14", "2026-07-16", models.BookingConfirmed)); err != nil {
		t.Errorf("back-to-back Insert: %v", err)
	}
	if err := repo.Insert(ctx, newBooking("pg-prop", "2026-07-11", "2026-07-12", models.BookingCancelled)); err != nil {
		t.Errorf("cancelled Insert: %v", err)
	}
}

func TestPostgresConcurrentBookingsExactlyOneWins(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	repo := db.Bookings()

	const n = 16
	var wg sync.WaitGroup
	results := make(chan error, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			b := newBooking("pg-race", "2026-09-01", "2026-09-04", models.BookingConfirmed)
			b.ExternalID = fmt.Sprintf("pg-ext-%d", i)
			results <- repo.Insert(ctx, b)
		}(i)
	}
	close(start)
	wg.Wait()
	close(results)

	var ok, conflicts int
	for err := range results {
		var conflict *syncerr.BookingConflictError
		switch {
		case err == nil:
			ok++
		case errors.As(err, &conflict):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflicts != n-1 {
		t.Errorf("successes = %d, conflicts = %d; want 1 and %d", ok, conflicts, n-1)
	}
}

func TestPostgresLedger(t *testing.T) {
	db := setupPostgres(t)
	runLedgerSuite(t, db.Ledger())
}
