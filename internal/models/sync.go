// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package models

import "time"

// OperationType is the unit of data a SyncOperation moves.
type OperationType string

const (
	OperationAvailability OperationType = "availability"
	OperationPricing      OperationType = "pricing"
	OperationBookings     OperationType = "bookings"
)

// Valid reports whether t is a known operation type.
func (t OperationType) Valid() bool {
	return t == OperationAvailability || t == OperationPricing || t == OperationBookings
}

// Direction is outbound (source of truth to platform) or inbound.
type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

// SyncStatus is the state of a SyncOperation or derived SyncBatch.
type SyncStatus string

const (
	SyncTriggered SyncStatus = "triggered"
	SyncRunning   SyncStatus = "running"
	SyncSuccess   SyncStatus = "success"
	SyncFailed    SyncStatus = "failed"
)

// Terminal reports whether s is final. Terminal operations are never mutated.
func (s SyncStatus) Terminal() bool {
	return s == SyncSuccess || s == SyncFailed
}

// SyncOperation is one attempt to push or pull one unit of data.
type SyncOperation struct {
	ID            string        `json:"id"`
	BatchID       string        `json:"batch_id"`
	ConnectionID  string        `json:"connection_id"`
	Platform      PlatformType  `json:"platform"`
	OperationType OperationType `json:"operation_type"`
	Direction     Direction     `json:"direction"`
	Status        SyncStatus    `json:"status"`
	EntityID      string        `json:"entity_id,omitempty"`
	Error         string        `json:"error,omitempty"`
	Attempts      int           `json:"attempts"`
	StartedAt     time.Time     `json:"started_at"`
	DurationMS    int64         `json:"duration_ms"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
}

// SyncBatch is the read-only aggregate of operations sharing a batch id.
type SyncBatch struct {
	ID         string          `json:"id"`
	Status     SyncStatus      `json:"status"`
	Total      int             `json:"total"`
	Succeeded  int             `json:"succeeded"`
	Failed     int             `json:"failed"`
	InFlight   int             `json:"in_flight"`
	Operations []SyncOperation `json:"operations"`
}

// NewSyncBatch aggregates ops: failed if any failed, else running if any is
// in flight, else success.
func NewSyncBatch(id string, ops []SyncOperation) SyncBatch {
	b := SyncBatch{ID: id, Total: len(ops), Operations: ops}
	for i := range ops {
		switch ops[i].Status {
		case SyncSuccess:
			b.Succeeded++
		case SyncFailed:
			b.Failed++
		default:
			b.InFlight++
		}
	}
	switch {
	case b.Failed > 0:
		b.Status = SyncFailed
	case b.InFlight > 0:
		b.Status = SyncRunning
	default:
		b.Status = SyncSuccess
	}
	return b
}

// AvailabilityDay is one night of a listing calendar.
type AvailabilityDay struct {
	Date      string `json:"date"`
	Available bool   `json:"available"`
}

// AvailabilityUpdate is pushed to a platform listing calendar.
type AvailabilityUpdate struct {
	PropertyID string            `json:"property_id"`
	From       string            `json:"from"`
	To         string            `json:"to"`
	Days       []AvailabilityDay `json:"days"`
}

// PriceUpdate is a nightly rate change for a date span.
type PriceUpdate struct {
	PropertyID  string `json:"property_id"`
	From        string `json:"from"`
	To          string `json:"to"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

// BookingBlock blocks (or releases) a date range on a platform calendar.
// Keyed by BookingID so repeated pushes converge on one block.
type BookingBlock struct {
	BookingID string    `json:"booking_id"`
	Range     DateRange `json:"range"`
	Blocked   bool      `json:"blocked"`
}

// Page is a limit/offset window over a result set.
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Normalize clamps the page into sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Limit > 500 {
		p.Limit = 500
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// SyncLogPage is one page of a connection's sync log.
type SyncLogPage struct {
	Operations []SyncOperation `json:"operations"`
	Limit      int             `json:"limit"`
	Offset     int             `json:"offset"`
	HasMore    bool            `json:"has_more"`
}
