// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package models

import "time"

// ConflictRecord is an append-only audit entry for one resolver decision.
type ConflictRecord struct {
	ID             string    `json:"id"`
	EntityType     string    `json:"entity_type"`
	EntityID       string    `json:"entity_id"`
	ConflictType   string    `json:"conflict_type"`
	Resolution     string    `json:"resolution"`
	Detail         string    `json:"detail"`
	ResolvedBy     string    `json:"resolved_by"`
	RequiresReview bool      `json:"requires_review"`
	ResolvedAt     time.Time `json:"resolved_at"`
}

// Conflict types.
const (
	ConflictDoubleBooking = "double_booking"
	ConflictStatus        = "status"
	ConflictGuestData     = "guest_data"
	ConflictPrice         = "price"
	ConflictDates         = "dates"
	ConflictAvailability  = "availability_drift"
)

// Entity types recorded on conflicts and review tasks.
const (
	EntityBooking    = "booking"
	EntityConnection = "connection"
)
