// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package models

import "time"

// PlatformType identifies an external booking platform.
type PlatformType string

const (
	PlatformAirbnb     PlatformType = "airbnb"
	PlatformBookingCom PlatformType = "booking_com"
	PlatformVrbo       PlatformType = "vrbo"
	PlatformExpedia    PlatformType = "expedia"
)

// Platforms lists every supported platform.
var Platforms = []PlatformType{PlatformAirbnb, PlatformBookingCom, PlatformVrbo, PlatformExpedia}

// Valid reports whether p is a supported platform.
func (p PlatformType) Valid() bool {
	for _, known := range Platforms {
		if p == known {
			return true
		}
	}
	return false
}

// ConnectionStatus is the lifecycle state of a ChannelConnection.
type ConnectionStatus string

const (
	ConnectionActive       ConnectionStatus = "active"
	ConnectionPaused       ConnectionStatus = "paused"
	ConnectionError        ConnectionStatus = "error"
	ConnectionDisconnected ConnectionStatus = "disconnected"
)

// ChannelConnection pairs one property with one platform listing.
// At most one active connection exists per (PropertyID, Platform).
type ChannelConnection struct {
	ID                string            `json:"id"`
	AgencyID          string            `json:"agency_id"`
	PropertyID        string            `json:"property_id"`
	Platform          PlatformType      `json:"platform"`
	PlatformListingID string            `json:"platform_listing_id"`
	AccessTokenEnc    string            `json:"-"`
	RefreshTokenEnc   string            `json:"-"`
	Status            ConnectionStatus  `json:"status"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	DeletedAt         *time.Time        `json:"deleted_at,omitempty"`
}

// BreakerName is the shared-state key for the connection's limiter and breaker.
func (c *ChannelConnection) BreakerName() string {
	return string(c.Platform) + ":" + c.ID
}
