// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/channelsync/internal/models"
	"github.com/tomtom215/channelsync/internal/syncerr"
)

// Bookings is the booking repository. Overlapping occupying bookings for a
// property are rejected by the database itself: a gist exclusion constraint
// on Postgres, BEFORE triggers on SQLite. Both surface as
// *syncerr.BookingConflictError.
type Bookings struct {
	conn    *sql.DB
	dialect *dialect
}

const bookingColumns = `id, property_id, check_in, check_out, status, source, connection_id, external_id,
	guest_name, guest_email, guest_phone, guest_phone_updated_at, guest_address, guest_language,
	price_cents, currency, created_at, updated_at`

func scanBooking(s rowScanner) (*models.Booking, error) {
	var (
		b              models.Booking
		checkIn, out   dayValue
		phoneUpdatedAt timeValue
		created, upd   timeValue
	)
	err := s.Scan(&b.ID, &b.PropertyID, &checkIn, &out, &b.Status, &b.Source, &b.ConnectionID, &b.ExternalID,
		&b.Guest.Name, &b.Guest.Email, &b.Guest.Phone, &phoneUpdatedAt, &b.Guest.Address, &b.Guest.Language,
		&b.PriceCents, &b.Currency, &created, &upd)
	if err != nil {
		return nil, err
	}
	b.Range = models.DateRange{CheckIn: checkIn.Time, CheckOut: out.Time}
	b.Guest.PhoneUpdatedAt = phoneUpdatedAt.ptr()
	b.CreatedAt = created.Time
	b.UpdatedAt = upd.Time
	return &b, nil
}

func (r *Bookings) conflict(b *models.Booking, err error) error {
	return &syncerr.BookingConflictError{PropertyID: b.PropertyID, Range: b.Range.String(), Cause: err}
}

// Insert stores a new booking. ID, CreatedAt and UpdatedAt are filled when
// empty.
func (r *Bookings) Insert(ctx context.Context, b *models.Booking) (err error) {
	start := time.Now()
	defer func() { observe("insert", "bookings", start, err) }()

	if err := b.Range.Validate(); err != nil {
		return &syncerr.AdapterValidationError{Op: "insert booking", Message: err.Error(), Cause: err}
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Source == "" {
		b.Source = models.SourceDirect
	}
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now

	_, err = r.conn.ExecContext(ctx, r.dialect.rebind(`INSERT INTO bookings (`+bookingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		b.ID, b.PropertyID, b.Range.Start(), b.Range.End(), string(b.Status), b.Source, b.ConnectionID, b.ExternalID,
		b.Guest.Name, b.Guest.Email, b.Guest.Phone, r.dialect.tsPtr(b.Guest.PhoneUpdatedAt), b.Guest.Address, b.Guest.Language,
		b.PriceCents, b.Currency, r.dialect.ts(b.CreatedAt), r.dialect.ts(b.UpdatedAt))
	switch {
	case err == nil:
		return nil
	case isOverlapViolation(err):
		return r.conflict(b, err)
	case isExternalUniqueViolation(err):
		return fmt.Errorf("%w: %s/%s", ErrDuplicateExternalBooking, b.Source, b.ExternalID)
	default:
		return fmt.Errorf("insert booking: %w", err)
	}
}

// Update rewrites a booking's mutable fields.
func (r *Bookings) Update(ctx context.Context, b *models.Booking) (err error) {
	start := time.Now()
	defer func() { observe("update", "bookings", start, err) }()

	if err := b.Range.Validate(); err != nil {
		return &syncerr.AdapterValidationError{Op: "update booking", Message: err.Error(), Cause: err}
	}
	b.UpdatedAt = time.Now().UTC()

	res, err := r.conn.ExecContext(ctx, r.dialect.rebind(`UPDATE bookings SET
		check_in = ?, check_out = ?, status = ?, guest_name = ?, guest_email = ?, guest_phone = ?,
		guest_phone_updated_at = ?, guest_address = ?, guest_language = ?, price_cents = ?, currency = ?,
		updated_at = ?
		WHERE id = ?`),
		b.Range.Start(), b.Range.End(), string(b.Status), b.Guest.Name, b.Guest.Email, b.Guest.Phone,
		r.dialect.tsPtr(b.Guest.PhoneUpdatedAt), b.Guest.Address, b.Guest.Language, b.PriceCents, b.Currency,
		r.dialect.ts(b.UpdatedAt), b.ID)
	if err != nil {
		if isOverlapViolation(err) {
			return r.conflict(b, err)
		}
		return fmt.Errorf("update booking %s: %w", b.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("booking %s: %w", b.ID, syncerr.ErrNotFound)
	}
	return nil
}

// Get loads a booking by id.
func (r *Bookings) Get(ctx context.Context, id string) (_ *models.Booking, err error) {
	start := time.Now()
	defer func() { observe("get", "bookings", start, err) }()

	b, err := scanBooking(r.conn.QueryRowContext(ctx,
		r.dialect.rebind(`SELECT `+bookingColumns+` FROM bookings WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %s: %w", id, syncerr.ErrNotFound)
	}
	return b, err
}

// FindByExternal loads the booking imported from (platform, externalID).
func (r *Bookings) FindByExternal(ctx context.Context, platform models.PlatformType, externalID string) (_ *models.Booking, err error) {
	start := time.Now()
	defer func() { observe("find_external", "bookings", start, err) }()

	b, err := scanBooking(r.conn.QueryRowContext(ctx,
		r.dialect.rebind(`SELECT `+bookingColumns+` FROM bookings WHERE source = ? AND external_id = ?`),
		string(platform), externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %s/%s: %w", platform, externalID, syncerr.ErrNotFound)
	}
	return b, err
}

// RangeAvailable reports whether no occupying booking other than excludeID
// overlaps rng.
func (r *Bookings) RangeAvailable(ctx context.Context, propertyID string, rng models.DateRange, excludeID string) (_ bool, err error) {
	start := time.Now()
	defer func() { observe("range_available", "bookings", start, err) }()

	var n int
	err = r.conn.QueryRowContext(ctx, r.dialect.rebind(`SELECT COUNT(*) FROM bookings
		WHERE property_id = ? AND status IN `+occupyingSQL+`
		  AND check_in < ? AND ? < check_out AND id <> ?`),
		propertyID, rng.End(), rng.Start(), excludeID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check availability: %w", err)
	}
	return n == 0, nil
}

// ListOccupying returns occupying bookings overlapping [from, to).
func (r *Bookings) ListOccupying(ctx context.Context, propertyID string, window models.DateRange) (_ []models.Booking, err error) {
	start := time.Now()
	defer func() { observe("list_occupying", "bookings", start, err) }()

	rows, err := r.conn.QueryContext(ctx, r.dialect.rebind(`SELECT `+bookingColumns+` FROM bookings
		WHERE property_id = ? AND status IN `+occupyingSQL+`
		  AND check_in < ? AND ? < check_out
		ORDER BY check_in`),
		propertyID, window.End(), window.Start())
	if err != nil {
		return nil, fmt.Errorf("list occupying bookings: %w", err)
	}
	defer closeQuietly(rows)

	var out []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// OccupiedDays returns the set of occupied nights (YYYY-MM-DD) within window.
func (r *Bookings) OccupiedDays(ctx context.Context, propertyID string, window models.DateRange) (map[string]bool, error) {
	bookings, err := r.ListOccupying(ctx, propertyID, window)
	if err != nil {
		return nil, err
	}
	days := make(map[string]bool)
	for i := range bookings {
		for _, d := range bookings[i].Range.Days() {
			if d.Before(window.CheckIn) || !d.Before(window.CheckOut) {
				continue
			}
			days[d.Format(models.DateLayout)] = true
		}
	}
	return days, nil
}
