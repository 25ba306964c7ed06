// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// DateLayout is the calendar-day format used in keys, SQL and payloads.
const DateLayout = "2006-01-02"

// BookingStatus is the lifecycle state of a booking in the source of truth.
type BookingStatus string

const (
	BookingInquiry    BookingStatus = "inquiry"
	BookingPending    BookingStatus = "pending"
	BookingConfirmed  BookingStatus = "confirmed"
	BookingCheckedIn  BookingStatus = "checked_in"
	BookingCheckedOut BookingStatus = "checked_out"
	BookingCancelled  BookingStatus = "cancelled"
	BookingDeclined   BookingStatus = "declined"
	BookingNoShow     BookingStatus = "no_show"
)

// OccupyingStatuses hold dates. Only these participate in the overlap guard.
var OccupyingStatuses = []BookingStatus{BookingConfirmed, BookingPending, BookingCheckedIn}

// Occupies reports whether a booking in status s blocks its dates.
func (s BookingStatus) Occupies() bool {
	for _, o := range OccupyingStatuses {
		if s == o {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingInquiry, BookingPending, BookingConfirmed, BookingCheckedIn,
		BookingCheckedOut, BookingCancelled, BookingDeclined, BookingNoShow:
		return true
	}
	return false
}

// SourceDirect marks bookings created in the source of truth itself.
const SourceDirect = "direct"

// DateRange is a half-open range of calendar days [CheckIn, CheckOut).
type DateRange struct {
	CheckIn  time.Time `json:"check_in"`
	CheckOut time.Time `json:"check_out"`
}

// ErrInvalidRange is returned for empty or inverted ranges.
var ErrInvalidRange = errors.New("check_out must be after check_in")

// NewDateRange parses two YYYY-MM-DD dates.
func NewDateRange(checkIn, checkOut string) (DateRange, error) {
	in, err := time.Parse(DateLayout, checkIn)
	if err != nil {
		return DateRange{}, fmt.Errorf("parse check_in: %w", err)
	}
	out, err := time.Parse(DateLayout, checkOut)
	if err != nil {
		return DateRange{}, fmt.Errorf("parse check_out: %w", err)
	}
	r := DateRange{CheckIn: in, CheckOut: out}
	return r, r.Validate()
}

// MustDateRange is NewDateRange for literals in tests and fixtures.
func MustDateRange(checkIn, checkOut string) DateRange {
	r, err := NewDateRange(checkIn, checkOut)
	if err != nil {
		panic(err)
	}
	return r
}

// Validate checks the range is non-empty.
func (r DateRange) Validate() error {
	if !r.CheckOut.After(r.CheckIn) {
		return ErrInvalidRange
	}
	return nil
}

// Overlaps reports whether the two half-open ranges share a night.
func (r DateRange) Overlaps(o DateRange) bool {
	return r.CheckIn.Before(o.CheckOut) && o.CheckIn.Before(r.CheckOut)
}

// Equal compares by calendar day.
func (r DateRange) Equal(o DateRange) bool {
	return r.Start() == o.Start() && r.End() == o.End()
}

// Nights returns the number of nights in the range.
func (r DateRange) Nights() int {
	return int(r.CheckOut.Sub(r.CheckIn).Hours() / 24)
}

// Days returns every night of the range.
func (r DateRange) Days() []time.Time {
	days := make([]time.Time, 0, r.Nights())
	for d := r.CheckIn; d.Before(r.CheckOut); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Start returns CheckIn as YYYY-MM-DD.
func (r DateRange) Start() string { return r.CheckIn.Format(DateLayout) }

// End returns CheckOut as YYYY-MM-DD.
func (r DateRange) End() string { return r.CheckOut.Format(DateLayout) }

// String renders the range for logs and error messages.
func (r DateRange) String() string { return r.Start() + ".." + r.End() }

type dateRangeJSON struct {
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out"`
}

// MarshalJSON encodes the range as calendar dates.
func (r DateRange) MarshalJSON() ([]byte, error) {
	return json.Marshal(dateRangeJSON{CheckIn: r.Start(), CheckOut: r.End()})
}

// UnmarshalJSON decodes calendar dates and validates the range.
func (r *DateRange) UnmarshalJSON(data []byte) error {
	var raw dateRangeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := NewDateRange(raw.CheckIn, raw.CheckOut)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Guest holds the contact data attached to a booking.
type Guest struct {
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	Phone          string     `json:"phone,omitempty"`
	PhoneUpdatedAt *time.Time `json:"phone_updated_at,omitempty"`
	Address        string     `json:"address,omitempty"`
	Language       string     `json:"language,omitempty"`
}

// Booking is a reservation in the source of truth.
type Booking struct {
	ID           string        `json:"id"`
	PropertyID   string        `json:"property_id"`
	Range        DateRange     `json:"range"`
	Status       BookingStatus `json:"status"`
	Source       string        `json:"source"`
	ConnectionID string        `json:"connection_id,omitempty"`
	ExternalID   string        `json:"external_id,omitempty"`
	Guest        Guest         `json:"guest"`
	PriceCents   int64         `json:"price_cents"`
	Currency     string        `json:"currency"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// IsDirect reports whether the booking originated in the source of truth.
func (b *Booking) IsDirect() bool {
	return b.Source == "" || b.Source == SourceDirect
}

// PlatformBooking is the authoritative booking payload fetched from a platform.
type PlatformBooking struct {
	ExternalID string        `json:"external_id"`
	ListingID  string        `json:"listing_id"`
	Range      DateRange     `json:"range"`
	Status     BookingStatus `json:"status"`
	Guest      Guest         `json:"guest"`
	PriceCents int64         `json:"price_cents"`
	Currency   string        `json:"currency"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// ReviewTask is a manual-intervention item for operators.
type ReviewTask struct {
	ID         string    `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Kind       string    `json:"kind"`
	Detail     string    `json:"detail"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// Review task kinds.
const (
	ReviewDateChange    = "date_change_rejected"
	ReviewPrice         = "price_discrepancy"
	ReviewDoubleBooking = "double_booking"
	ReviewDrift         = "availability_drift"
)
