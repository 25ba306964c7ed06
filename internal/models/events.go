// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package models

import (
	"time"

	"github.com/goccy/go-json"
)

// EventType names an internal domain event.
type EventType string

const (
	EventBookingConfirmed    EventType = "booking.confirmed"
	EventBookingCancelled    EventType = "booking.cancelled"
	EventBookingModified     EventType = "booking.modified"
	EventPricingUpdated      EventType = "pricing.updated"
	EventAvailabilityUpdated EventType = "availability.updated"
)

// OutboundEventTypes are the events the outbound path subscribes to.
var OutboundEventTypes = []EventType{
	EventBookingConfirmed,
	EventBookingCancelled,
	EventBookingModified,
	EventPricingUpdated,
	EventAvailabilityUpdated,
}

// OperationType maps the event to the kind of data it propagates.
func (t EventType) OperationType() OperationType {
	switch t {
	case EventPricingUpdated:
		return OperationPricing
	case EventAvailabilityUpdated:
		return OperationAvailability
	default:
		return OperationBookings
	}
}

// Valid reports whether t is an outbound event type.
func (t EventType) Valid() bool {
	for _, known := range OutboundEventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// BookingEventType returns the event announcing a booking in status s.
func BookingEventType(s BookingStatus) EventType {
	switch s {
	case BookingCancelled, BookingDeclined, BookingNoShow:
		return EventBookingCancelled
	default:
		return EventBookingConfirmed
	}
}

// Event is an internal domain event on the bus.
//
// Source is the connection ID that originated the change, or empty when the
// change came from the source of truth. The outbound path never pushes an
// event back to its source connection.
type Event struct {
	ID         string          `json:"id" validate:"required"`
	Type       EventType       `json:"type" validate:"required"`
	PropertyID string          `json:"property_id" validate:"required"`
	EntityID   string          `json:"entity_id"`
	Timestamp  time.Time       `json:"timestamp"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Source     string          `json:"source,omitempty"`
	BatchID    string          `json:"batch_id,omitempty"`
}

// BookingPayload is the payload of booking.* events.
type BookingPayload struct {
	BookingID string        `json:"booking_id"`
	Range     DateRange     `json:"range"`
	Status    BookingStatus `json:"status"`
	Previous  *DateRange    `json:"previous,omitempty"`
}

// Webhook is a verified platform notification handed to the inbound path.
// Webhooks carry references only; the booking itself is fetched.
type Webhook struct {
	Platform          PlatformType `json:"platform"`
	ExternalEventID   string       `json:"external_event_id"`
	ListingID         string       `json:"listing_id"`
	ExternalBookingID string       `json:"external_booking_id"`
	Kind              string       `json:"kind"`
	ReceivedAt        time.Time    `json:"received_at"`
}

// ImportTask asks a worker to fetch and apply one platform booking.
type ImportTask struct {
	ID                string       `json:"id"`
	Platform          PlatformType `json:"platform"`
	ConnectionID      string       `json:"connection_id"`
	ExternalEventID   string       `json:"external_event_id"`
	ExternalBookingID string       `json:"external_booking_id"`
	Kind              string       `json:"kind"`
	CreatedAt         time.Time    `json:"created_at"`
}

// ManualSyncTask asks a worker to run an operator-triggered sync.
// OperationID is the operation recorded as triggered when the sync was
// requested; the worker finishes it.
type ManualSyncTask struct {
	BatchID      string        `json:"batch_id"`
	OperationID  string        `json:"operation_id"`
	ConnectionID string        `json:"connection_id"`
	SyncType     OperationType `json:"sync_type"`
	RequestedBy  string        `json:"requested_by,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}
