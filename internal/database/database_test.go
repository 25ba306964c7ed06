// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/channelsync/internal/config"
	"github.com/tomtom215/channelsync/internal/models"
	"github.com/tomtom215/channelsync/internal/syncerr"
)

// setupTestDB opens a fresh SQLite database in a temp dir.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "channelsync.db"),
	})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newBooking(property, in, out string, status models.BookingStatus) *models.Booking {
	return &models.Booking{
		PropertyID: property,
		Range:      models.MustDateRange(in, out),
		Status:     status,
		Guest:      models.Guest{Name: "Ada Lovelace", Email: "ada@example.com"},
		PriceCents: 45000,
		Currency:   "EUR",
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "again.db")
	for i := 0; i < 2; i++ {
		db, err := Open(context.Background(), config.DatabaseConfig{Driver: "sqlite", DSN: dsn})
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		_ = db.Close()
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), config.DatabaseConfig{Driver: "oracle", DSN: "x"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	pg, _ := dialectFor("postgres")
	if got := pg.rebind("a = ? AND b IN (?, ?)"); got != "a = $1 AND b IN ($2, $3)" {
		t.Errorf("postgres rebind = %q", got)
	}
	lite, _ := dialectFor("sqlite")
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite rebind = %q", got)
	}
}

func TestBookingInsertAndGet(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := db.Bookings()

	phoneAt := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	b := newBooking("prop-1", "2026-07-10", "2026-07-14", models.BookingConfirmed)
	b.Guest.Phone = "+33 1 23 45 67 89"
	b.Guest.PhoneUpdatedAt = &phoneAt
	if err := repo.Insert(ctx, b); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if b.ID == "" || b.Source != models.SourceDirect {
		t.Errorf("Insert did not fill defaults: %+v", b)
	}

	got, err := repo.Get(ctx, b.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Range.Equal(b.Range) || got.Status != models.BookingConfirmed || got.Guest.Email != "ada@example.com" {
		t.Errorf("Get() = %+v", got)
	}
	if got.Guest.PhoneUpdatedAt == nil || !got.Guest.PhoneUpdatedAt.Equal(phoneAt) {
		t.Errorf("phone_updated_at = %v, want %v", got.Guest.PhoneUpdatedAt, phoneAt)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, syncerr.ErrNotFound) {
		t.Errorf("Get(missing) = %v, want ErrNotFound", err)
	}
}

func TestBookingOverlapRejected(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := db.Bookings()

	if err := repo.Insert(ctx, newBooking("prop-1", "2026-07-10", "2026-07-14", models.BookingConfirmed)); err != nil {
		t.Fatalf("first Insert: %v", err)
	}

	tests := []struct {
		name      string
		booking   *models.Booking
		wantClash bool
	}{
		{"overlapping", newBooking("prop-1", "2026-07-12", "2026-07-16", models.BookingPending), true},
		{"enclosing", newBooking("prop-1", "2026-07-01", "2026-07-30", models.BookingConfirmed), true},
		{"back to back", newBooking("prop-1", "2026-07-14", "2026-07-18", models.BookingConfirmed), false},
		{"other property", newBooking("prop-2", "2026-07-10", "2026-07-14", models.BookingConfirmed), false},
		{"non-occupying", newBooking("prop-1", "2026-07-11", "2026-07-13", models.BookingInquiry), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.Insert(ctx, tt.booking)
			var conflict *syncerr.BookingConflictError
			if got := errors.As(err, &conflict); got != tt.wantClash {
				t.Errorf("Insert() err = %v, wantClash %v", err, tt.wantClash)
			}
		})
	}
}

func TestBookingUpdateOverlapRejected(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := db.Bookings()

	a := newBooking("prop-1", "2026-08-01", "2026-08-05", models.BookingConfirmed)
	inquiry := newBooking("prop-1", "2026-08-03", "2026-08-07", models.BookingInquiry)
	for _, b := range []*models.Booking{a, inquiry} {
		if err := repo.Insert(ctx, b); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	// Promoting the inquiry to confirmed would overlap a.
	inquiry.Status = models.BookingConfirmed
	var conflict *syncerr.BookingConflictError
	if err := repo.Update(ctx, inquiry); !errors.As(err, &conflict) {
		t.Fatalf("Update() = %v, want BookingConflictError", err)
	}

	// A booking may be moved within its own dates.
	a.Range = models.MustDateRange("2026-08-02", "2026-08-05")
	if err := repo.Update(ctx, a); err != nil {
		t.Errorf("shrinking own range: %v", err)
	}
}

func TestConcurrentBookingsExactlyOneWins(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := db.Bookings()

	const n = 12
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b := newBooking("prop-race", "2026-09-01", "2026-09-04", models.BookingConfirmed)
			b.ExternalID = fmt.Sprintf("ext-%d", i)
			results <- repo.Insert(ctx, b)
		}(i)
	}
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

func TestBookingExternalLookupAndDuplicate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := db.Bookings()

	b := newBooking("prop-1", "2026-07-10", "2026-07-12", models.BookingConfirmed)
	b.Source = string(models.PlatformAirbnb)
	b.ExternalID = "HM123"
	if err := repo.Insert(ctx, b); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := repo.FindByExternal(ctx, models.PlatformAirbnb, "HM123")
	if err != nil || got.ID != b.ID {
		t.Fatalf("FindByExternal = %v, %v", got, err)
	}
	if _, err := repo.FindByExternal(ctx, models.PlatformVrbo, "HM123"); !errors.Is(err, syncerr.ErrNotFound) {
		t.Errorf("other platform lookup = %v, want ErrNotFound", err)
	}

	dup := newBooking("prop-1", "2026-10-01", "2026-10-02", models.BookingConfirmed)
	dup.Source = string(models.PlatformAirbnb)
	dup.ExternalID = "HM123"
	if err := repo.Insert(ctx, dup); !errors.Is(err, ErrDuplicateExternalBooking) {
		t.Errorf("duplicate import = %v, want ErrDuplicateExternalBooking", err)
	}
}

func TestRangeAvailableAndOccupiedDays(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := db.Bookings()

	b := newBooking("prop-1", "2026-07-10", "2026-07-13", models.BookingConfirmed)
	if err := repo.Insert(ctx, b); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	free, err := repo.RangeAvailable(ctx, "prop-1", models.MustDateRange("2026-07-12", "2026-07-15"), "")
	if err != nil || free {
		t.Errorf("overlapping range available = %v, %v", free, err)
	}
	free, err = repo.RangeAvailable(ctx, "prop-1", models.MustDateRange("2026-07-12", "2026-07-15"), b.ID)
	if err != nil || !free {
		t.Errorf("range excluding own booking available = %v, %v", free, err)
	}

	days, err := repo.OccupiedDays(ctx, "prop-1", models.MustDateRange("2026-07-11", "2026-07-31"))
	if err != nil {
		t.Fatalf("OccupiedDays: %v", err)
	}
	want := []string{"2026-07-11", "2026-07-12"}
	if len(days) != len(want) {
		t.Fatalf("days = %v, want %v", days, want)
	}
	for _, d := range want {
		if !days[d] {
			t.Errorf("missing occupied day %s", d)
		}
	}
}

func TestConnectionsOneActivePerPlatform(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := db.Connections()

	first := &models.ChannelConnection{AgencyID: "ag", PropertyID: "prop-1", Platform: models.PlatformAirbnb,
		PlatformListingID: "L1", Metadata: map[string]string{"region": "eu"}}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create: %v", err)
	}

	second := &models.ChannelConnection{AgencyID: "ag", PropertyID: "prop-1", Platform: models.PlatformAirbnb, PlatformListingID: "L2"}
	if err := repo.Create(ctx, second); !errors.Is(err, ErrActiveConnectionExists) {
		t.Fatalf("second active Create = %v, want ErrActiveConnectionExists", err)
	}

	other := &models.ChannelConnection{AgencyID: "ag", PropertyID: "prop-1", Platform: models.PlatformVrbo, PlatformListingID: "V1"}
	if err := repo.Create(ctx, other); err != nil {
		t.Fatalf("Create vrbo: %v", err)
	}

	active, err := repo.ActiveForProperty(ctx, "prop-1")
	if err != nil || len(active) != 2 {
		t.Fatalf("ActiveForProperty = %d, %v", len(active), err)
	}

	got, err := repo.FindActiveByListing(ctx, models.PlatformAirbnb, "L1")
	if err != nil || got.ID != first.ID || got.Metadata["region"] != "eu" {
		t.Errorf("FindActiveByListing = %+v, %v", got, err)
	}

	// After a soft delete the slot is free again.
	if err := repo.SoftDelete(ctx, first.ID); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if _, err := repo.Get(ctx, first.ID); !errors.Is(err, syncerr.ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
	if err := repo.Create(ctx, second); err != nil {
		t.Errorf("Create after delete: %v", err)
	}
}

func TestConnectionStatusUpdate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := db.Connections()

	c := &models.ChannelConnection{AgencyID: "ag", PropertyID: "p", Platform: models.PlatformExpedia, PlatformListingID: "E1"}
	if err := repo.Create(ctx, c); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.UpdateStatus(ctx, c.ID, models.ConnectionError); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	active, _ := repo.ListActive(ctx)
	if len(active) != 0 {
		t.Errorf("ListActive = %d, want 0 after error status", len(active))
	}
	if err := repo.UpdateStatus(ctx, "nope", models.ConnectionActive); !errors.Is(err, syncerr.ErrNotFound) {
		t.Errorf("UpdateStatus(missing) = %v", err)
	}
}
