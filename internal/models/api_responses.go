// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package models

import "time"

// APIResponse is the envelope for every JSON response.
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data,omitempty"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata accompanies every response.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// APIError describes a failed request.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ManualSyncRequest is the body of POST /connections/{id}/sync.
type ManualSyncRequest struct {
	SyncType string `json:"sync_type" validate:"required,oneof=availability pricing bookings"`
}

// ManualSyncResponse acknowledges a queued manual sync.
type ManualSyncResponse struct {
	BatchID string `json:"batch_id"`
}

// ConnectionTestResponse reports a health probe result.
type ConnectionTestResponse struct {
	ConnectionID string `json:"connection_id"`
	Healthy      bool   `json:"healthy"`
	Error        string `json:"error,omitempty"`
}

// WebhookAck acknowledges a webhook delivery.
type WebhookAck struct {
	Accepted  bool   `json:"accepted"`
	Duplicate bool   `json:"duplicate"`
	TaskID    string `json:"task_id,omitempty"`
}

// BreakerStateResponse exposes a connection's circuit breaker.
type BreakerStateResponse struct {
	Name                 string     `json:"name"`
	State                string     `json:"state"`
	ConsecutiveFailures  uint32     `json:"consecutive_failures"`
	ConsecutiveSuccesses uint32     `json:"consecutive_successes"`
	OpenedAt             *time.Time `json:"opened_at,omitempty"`
}

// CreateConnectionRequest is the body of POST /connections. Tokens are
// encrypted before the connection is stored and never returned.
type CreateConnectionRequest struct {
	AgencyID          string            `json:"agency_id" validate:"required,max=64"`
	PropertyID        string            `json:"property_id" validate:"required,max=64"`
	Platform          string            `json:"platform" validate:"required,platform"`
	PlatformListingID string            `json:"platform_listing_id" validate:"required,max=128"`
	AccessToken       string            `json:"access_token" validate:"required,max=4096"`
	RefreshToken      string            `json:"refresh_token" validate:"omitempty,max=4096"`
	Metadata          map[string]string `json:"metadata" validate:"omitempty,max=32"`
}

// HealthStatus is returned by the health endpoints.
type HealthStatus struct {
	Status   string            `json:"status"`
	Checks   map[string]string `json:"checks,omitempty"`
	Uptime   float64           `json:"uptime_seconds"`
	Version  string            `json:"version,omitempty"`
	Watchers int               `json:"live_stream_clients"`
}
