// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/tomtom215/channelsync/internal/models"
)

// ErrNoAdapter is returned by Registry.Get for a platform nobody registered.
var ErrNoAdapter = errors.New("no adapter registered")

// Adapter translates unified sync operations into one platform's API calls,
// and that platform's webhooks into unified notifications.
//
// Push operations are idempotent: they are keyed by listing and booking id,
// so repeating one converges on the same platform state. Errors are classified
// with the syncerr types (TransientError, AdapterAuthError,
// AdapterValidationError) so the engine can decide whether to retry.
type Adapter interface {
	Platform() models.PlatformType

	PushAvailability(ctx context.Context, conn *models.ChannelConnection, update models.AvailabilityUpdate) error
	PushPricing(ctx context.Context, conn *models.ChannelConnection, update models.PriceUpdate) error
	PushBookingBlock(ctx context.Context, conn *models.ChannelConnection, block models.BookingBlock) error

	FetchBooking(ctx context.Context, conn *models.ChannelConnection, externalID string) (*models.PlatformBooking, error)
	FetchAvailability(ctx context.Context, conn *models.ChannelConnection, window models.DateRange) ([]models.AvailabilityDay, error)

	// VerifyWebhook authenticates and parses a raw webhook delivery. It has
	// no side effects; a rejected payload must not reach the engine.
	VerifyWebhook(header http.Header, body []byte) (*models.Webhook, error)

	// Probe performs a cheap authenticated read to check the connection.
	Probe(ctx context.Context, conn *models.ChannelConnection) error
}

// Registry maps platforms to their adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.PlatformType]Adapter
}

// NewRegistry returns a registry holding the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.PlatformType]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter for a.Platform().
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Platform()] = a
}

// Get returns the adapter for platform.
func (r *Registry) Get(platform models.PlatformType) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoAdapter, platform)
	}
	return a, nil
}

// Platforms lists the registered platforms in sorted order.
func (r *Registry) Platforms() []models.PlatformType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.PlatformType, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
