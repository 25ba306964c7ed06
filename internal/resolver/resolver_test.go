// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package resolver

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tomtom215/channelsync/internal/models"
	"github.com/tomtom215/channelsync/internal/syncerr"
)

func TestResolveStatus(t *testing.T) {
	tests := []struct {
		name       string
		local      models.BookingStatus
		incoming   models.BookingStatus
		source     string
		wantFinal  models.BookingStatus
		wantAction Action
	}{
		{"direct confirmed vs platform cancelled", models.BookingConfirmed, models.BookingCancelled, models.SourceDirect,
			models.BookingCancelled, ActionApplyLocal},
		{"direct cancelled vs platform confirmed", models.BookingCancelled, models.BookingConfirmed, models.SourceDirect,
			models.BookingCancelled, ActionPushPlatforms},
		{"platform pending to confirmed", models.BookingPending, models.BookingConfirmed, "airbnb",
			models.BookingConfirmed, ActionApplyLocal},
		{"platform cancelled stays cancelled", models.BookingCancelled, models.BookingPending, "vrbo",
			models.BookingCancelled, ActionPushPlatforms},
		{"direct keeps local", models.BookingConfirmed, models.BookingPending, "",
			models.BookingConfirmed, ActionPushPlatforms},
		{"declined counts as cancellation", models.BookingPending, models.BookingDeclined, models.SourceDirect,
			models.BookingDeclined, ActionApplyLocal},
		{"agreement", models.BookingConfirmed, models.BookingConfirmed, "airbnb",
			models.BookingConfirmed, ActionNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveStatus(tt.local, tt.incoming, tt.source)
			if got.Final != tt.wantFinal || got.Action != tt.wantAction {
				t.Errorf("ResolveStatus() = %s/%s, want %s/%s", got.Final, got.Action, tt.wantFinal, tt.wantAction)
			}
			if got.Conflicted() != (tt.local != tt.incoming) {
				t.Errorf("Conflicted() = %v", got.Conflicted())
			}
		})
	}
}

func TestResolveGuest(t *testing.T) {
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-10 * time.Minute)
	old := now.Add(-2 * time.Hour)

	local := models.Guest{
		Name:     "Ada Lovelace",
		Email:    "ada@example.com",
		Phone:    "+44 20 0000",
		Address:  "",
		Language: "en",
	}
	incoming := models.Guest{
		Name:     "A. Lovelace",
		Email:    "other@example.com",
		Phone:    "+44 20 9999",
		Address:  "12 St James's Square",
		Language: "fr",
	}

	t.Run("fresh phone kept", func(t *testing.T) {
		l := local
		l.PhoneUpdatedAt = &recent
		got := ResolveGuest(l, incoming, now)
		if got.Final.Name != l.Name || got.Final.Email != l.Email {
			t.Errorf("identity overwritten: %+v", got.Final)
		}
		if got.Final.Phone != l.Phone {
			t.Errorf("phone = %q, want local kept", got.Final.Phone)
		}
		if got.Final.Address != incoming.Address || got.Final.Language != "fr" {
			t.Errorf("address/language not taken: %+v", got.Final)
		}
		if got.ConflictType != models.ConflictGuestData || got.Action != ActionMerge {
			t.Errorf("resolution = %+v", got)
		}
	})

	t.Run("stale phone replaced", func(t *testing.T) {
		l := local
		l.PhoneUpdatedAt = &old
		got := ResolveGuest(l, incoming, now)
		if got.Final.Phone != incoming.Phone || got.Final.PhoneUpdatedAt == nil || !got.Final.PhoneUpdatedAt.Equal(now) {
			t.Errorf("phone = %q at %v, want replaced", got.Final.Phone, got.Final.PhoneUpdatedAt)
		}
	})

	t.Run("empty incoming phone ignored", func(t *testing.T) {
		in := incoming
		in.Phone = ""
		got := ResolveGuest(local, in, now)
		if got.Final.Phone != local.Phone {
			t.Errorf("phone = %q", got.Final.Phone)
		}
	})

	t.Run("address never overwritten", func(t *testing.T) {
		l := local
		l.Address = "Ockham Park"
		got := ResolveGuest(l, incoming, now)
		if got.Final.Address != "Ockham Park" {
			t.Errorf("address = %q", got.Final.Address)
		}
	})

	t.Run("identical", func(t *testing.T) {
		got := ResolveGuest(local, local, now)
		if got.Conflicted() || got.Action != ActionNone {
			t.Errorf("resolution = %+v", got)
		}
	})
}

func TestResolvePrice(t *testing.T) {
	tests := []struct {
		name       string
		in         PriceInput
		wantFinal  int64
		wantAction Action
		wantReview bool
	}{
		{"new within tolerance", PriceInput{NewBooking: true, LocalCents: 10000, IncomingCents: 10400}, 10400, ActionAccept, false},
		{"new above tolerance", PriceInput{NewBooking: true, LocalCents: 10000, IncomingCents: 11000}, 11000, ActionAccept, true},
		{"new without quote", PriceInput{NewBooking: true, IncomingCents: 9000}, 9000, ActionNone, false},
		{"existing mismatch", PriceInput{LocalCents: 10000, IncomingCents: 10001}, 10000, ActionReview, true},
		{"direct keeps local", PriceInput{Direct: true, LocalCents: 10000, IncomingCents: 8000}, 10000, ActionPushPlatforms, false},
		{"custom tolerance", PriceInput{NewBooking: true, LocalCents: 10000, IncomingCents: 10800, Tolerance: 0.10}, 10800, ActionAccept, false},
		{"equal", PriceInput{LocalCents: 5000, IncomingCents: 5000}, 5000, ActionNone, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolvePrice(tt.in)
			if got.Final != tt.wantFinal || got.Action != tt.wantAction || got.RequiresReview != tt.wantReview {
				t.Errorf("ResolvePrice() = %d/%s/review=%v, want %d/%s/review=%v",
					got.Final, got.Action, got.RequiresReview, tt.wantFinal, tt.wantAction, tt.wantReview)
			}
		})
	}
}

func TestResolveDateChange(t *testing.T) {
	current := models.MustDateRange("2026-07-10", "2026-07-14")
	proposed := models.MustDateRange("2026-07-11", "2026-07-15")

	tests := []struct {
		name       string
		in         DateChangeInput
		wantFinal  models.DateRange
		wantAction Action
		wantReview bool
	}{
		{"platform available", DateChangeInput{current, proposed, true, true}, proposed, ActionApplyLocal, false},
		{"platform unavailable", DateChangeInput{current, proposed, true, false}, current, ActionReject, true},
		{"local change", DateChangeInput{current, proposed, false, false}, proposed, ActionPushAll, false},
		{"no change", DateChangeInput{current, current, true, false}, current, ActionNone, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveDateChange(tt.in)
			if !got.Final.Equal(tt.wantFinal) || got.Action != tt.wantAction || got.RequiresReview != tt.wantReview {
				t.Errorf("ResolveDateChange() = %s/%s/review=%v", got.Final, got.Action, got.RequiresReview)
			}
		})
	}
}

func TestResolveAvailabilityDrift(t *testing.T) {
	window := models.MustDateRange("2026-07-01", "2026-07-08")
	local := map[string]bool{"2026-07-02": true, "2026-07-03": true}

	t.Run("in sync", func(t *testing.T) {
		remote := []models.AvailabilityDay{{Date: "2026-07-02", Available: false}, {Date: "2026-07-03", Available: false}}
		got := ResolveAvailabilityDrift(window, local, remote, 3)
		if got.Conflicted() || len(got.Final) != 0 {
			t.Errorf("resolution = %+v", got)
		}
	})

	t.Run("small drift repushed", func(t *testing.T) {
		remote := []models.AvailabilityDay{
			{Date: "2026-07-02", Available: false},
			{Date: "2026-07-05", Available: false},
		}
		got := ResolveAvailabilityDrift(window, local, remote, 3)
		if got.Action != ActionPushPlatforms || got.RequiresReview {
			t.Fatalf("resolution = %+v", got)
		}
		want := []models.AvailabilityDay{{Date: "2026-07-03", Available: false}, {Date: "2026-07-05", Available: true}}
		if fmt.Sprint(got.Final) != fmt.Sprint(want) {
			t.Errorf("Final = %v, want %v", got.Final, want)
		}
	})

	t.Run("large drift alerts", func(t *testing.T) {
		var remote []models.AvailabilityDay
		for _, d := range window.Days() {
			remote = append(remote, models.AvailabilityDay{Date: d.Format(models.DateLayout), Available: false})
		}
		got := ResolveAvailabilityDrift(window, local, remote, 3)
		if got.Action != ActionAlert || !got.RequiresReview || len(got.Final) != 5 {
			t.Errorf("resolution = %+v", got)
		}
	})
}

func TestClassifyBookingError(t *testing.T) {
	err := fmt.Errorf("insert booking: %w", &syncerr.BookingConflictError{PropertyID: "p1", Range: "2026-07-10..2026-07-14"})
	res, ok := ClassifyBookingError(err)
	if !ok || res.ConflictType != models.ConflictDoubleBooking || res.Action != ActionReject || !res.RequiresReview {
		t.Errorf("ClassifyBookingError() = %+v, %v", res, ok)
	}
	if _, ok := ClassifyBookingError(errors.New("disk full")); ok {
		t.Error("unrelated error classified as conflict")
	}
}

func TestRecord(t *testing.T) {
	at := time.Date(2026, 7, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	res := ResolvePrice(PriceInput{LocalCents: 100, IncomingCents: 120})
	rec := res.Record(models.EntityBooking, "bk-1", "import", at)
	if rec.ID == "" || rec.Resolution != string(ActionReview) || !rec.RequiresReview || rec.ResolvedAt.Location() != time.UTC {
		t.Errorf("Record() = %+v", rec)
	}
}
