// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tomtom215/channelsync/internal/models"
	"github.com/tomtom215/channelsync/internal/resolver"
	"github.com/tomtom215/channelsync/internal/syncerr"
)

// CreateDirectBooking writes a booking made in the source of truth and
// announces it to every connected platform. Overlapping bookings fail with
// *syncerr.BookingConflictError, both when another writer holds the lock and
// when the database constraint rejects the insert.
func (e *Engine) CreateDirectBooking(ctx context.Context, b *models.Booking) error {
	if !b.Status.Valid() {
		return &syncerr.AdapterValidationError{Op: "create booking", Message: fmt.Sprintf("unknown status %q", b.Status)}
	}
	b.Source = models.SourceDirect
	b.ConnectionID, b.ExternalID = "", ""

	holder := uuid.NewString()
	err := e.locks.WithBookingLock(ctx, b.PropertyID, b.Range, holder, func(ctx context.Context) error {
		return e.bookings.Insert(ctx, b)
	})
	if err != nil {
		return err
	}
	return e.announce(ctx, holder, "", b, nil)
}

// ChangeBookingDates moves a booking in the source of truth. A local change
// always wins and is pushed to every platform, the booking's origin
// included.
func (e *Engine) ChangeBookingDates(ctx context.Context, bookingID string, proposed models.DateRange) (*models.Booking, error) {
	if err := proposed.Validate(); err != nil {
		return nil, &syncerr.AdapterValidationError{Op: "change dates", Message: err.Error(), Cause: err}
	}
	b, err := e.bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	res := resolver.ResolveDateChange(resolver.DateChangeInput{Current: b.Range, Proposed: proposed})
	if res.Action == resolver.ActionNone {
		return b, nil
	}

	previous := b.Range
	b.Range = res.Final
	holder := uuid.NewString()
	err = e.locks.WithBookingLock(ctx, b.PropertyID, b.Range, holder, func(ctx context.Context) error {
		return e.bookings.Update(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	recordResolution(ctx, e, res, models.EntityBooking, b.ID, "local", "")
	return b, e.announce(ctx, holder, "", b, &previous)
}
