// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/channelsync/internal/adapter"
	"github.com/tomtom215/channelsync/internal/logging"
	"github.com/tomtom215/channelsync/internal/metrics"
	"github.com/tomtom215/channelsync/internal/models"
	"github.com/tomtom215/channelsync/internal/syncerr"
)

// BatchResult is the outcome of one fan-out.
type BatchResult struct {
	BatchID    string                 `json:"batch_id"`
	Operations []models.SyncOperation `json:"operations"`
}

// Failed counts failed operations.
func (r BatchResult) Failed() int {
	n := 0
	for i := range r.Operations {
		if r.Operations[i].Status == models.SyncFailed {
			n++
		}
	}
	return n
}

// pushFunc performs the outbound requests of one operation on one
// connection, each through Engine.call.
type pushFunc func(ctx context.Context, a adapter.Adapter, conn *models.ChannelConnection) error

// pushPrices sends one guarded request per price update.
func (e *Engine) pushPrices(updates []models.PriceUpdate) pushFunc {
	return func(ctx context.Context, a adapter.Adapter, conn *models.ChannelConnection) error {
		for _, u := range updates {
			if err := e.call(ctx, conn, func(ctx context.Context) error {
				return a.PushPricing(ctx, conn, u)
			}); err != nil {
				return err
			}
		}
		return nil
	}
}

// HandleEvent fans ev out to every active connection of its property except
// the connection that originated it. Each connection gets its own sync
// operation under the event's batch id.
//
// Per-connection failures are recorded and do not fail the batch. An error
// is returned only when the fan-out itself could not run; the bus then
// redelivers, which is safe because every push is idempotent.
func (e *Engine) HandleEvent(ctx context.Context, ev models.Event) (BatchResult, error) {
	batchID := ev.BatchID
	if batchID == "" {
		batchID = ev.ID
	}
	result := BatchResult{BatchID: batchID}
	ctx = withCorrelation(ctx, batchID)

	push, err := e.pushFor(ctx, ev)
	if err != nil {
		return result, err
	}

	conns, err := e.connections.ActiveForProperty(ctx, ev.PropertyID)
	if err != nil {
		return result, &syncerr.TransientError{Op: "list connections", Cause: err}
	}
	targets := conns[:0]
	for _, c := range conns {
		if c.ID != ev.Source {
			targets = append(targets, c)
		}
	}
	metrics.RecordFanout(len(targets))
	if len(targets) == 0 {
		logging.Ctx(ctx).Debug().Str("property_id", ev.PropertyID).Str("event_type", string(ev.Type)).
			Msg("No connections to sync")
		return result, nil
	}

	ops := make([]models.SyncOperation, len(targets))
	errs := make([]error, len(targets))
	sem := make(chan struct{}, e.cfg.FanoutConcurrency)
	var wg sync.WaitGroup
	for i := range targets {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			ops[idx], errs[idx] = e.dispatch(ctx, &targets[idx], ev, batchID, push)
		}(i)
	}
	wg.Wait()

	var infra []error
	for i, op := range ops {
		if op.ID != "" {
			result.Operations = append(result.Operations, op)
		} else if errs[i] != nil {
			infra = append(infra, errs[i])
		}
	}
	if len(infra) > 0 {
		return result, &syncerr.TransientError{Op: "fan-out", Cause: errors.Join(infra...)}
	}

	logging.Ctx(ctx).Info().
		Str("event_id", ev.ID).
		Str("event_type", string(ev.Type)).
		Str("property_id", ev.PropertyID).
		Int("connections", len(targets)).
		Int("failed", result.Failed()).
		Msg("Event fanned out")
	return result, nil
}

// OnEvent adapts HandleEvent to a bus handler.
func (e *Engine) OnEvent(ctx context.Context, ev models.Event) error {
	_, err := e.HandleEvent(ctx, ev)
	return err
}

// dispatch runs push for one connection and records it. The returned
// operation has an empty ID if it could not be recorded.
func (e *Engine) dispatch(ctx context.Context, conn *models.ChannelConnection, ev models.Event, batchID string, push pushFunc) (models.SyncOperation, error) {
	op := models.SyncOperation{
		BatchID:       batchID,
		OperationType: ev.Type.OperationType(),
		Direction:     models.DirectionOutbound,
		EntityID:      ev.EntityID,
	}
	a, err := e.adapters.Get(conn.Platform)
	if err != nil {
		return e.failOperation(ctx, conn, op, &syncerr.AdapterValidationError{Op: "dispatch", Message: err.Error(), Cause: err})
	}
	return e.runOperation(ctx, conn, op, func(ctx context.Context) error {
		return push(ctx, a, conn)
	})
}

// failOperation records an operation that failed before any call was made.
func (e *Engine) failOperation(ctx context.Context, conn *models.ChannelConnection, op models.SyncOperation, cause error) (models.SyncOperation, error) {
	op.ConnectionID = conn.ID
	op.Platform = conn.Platform
	op.StartedAt = e.now().UTC()
	if err := e.log.Start(ctx, &op); err != nil {
		return models.SyncOperation{}, &syncerr.TransientError{Op: "record sync operation", Cause: err}
	}
	e.finishOperation(ctx, &op, cause, 0, 0)
	return op, cause
}

// pushFor translates ev into the adapter call every connection receives.
// A payload that cannot be understood is a permanent failure.
func (e *Engine) pushFor(ctx context.Context, ev models.Event) (pushFunc, error) {
	switch ev.Type {
	case models.EventBookingConfirmed, models.EventBookingModified, models.EventBookingCancelled:
		block, err := e.bookingBlock(ctx, ev)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, a adapter.Adapter, conn *models.ChannelConnection) error {
			return e.call(ctx, conn, func(ctx context.Context) error {
				return a.PushBookingBlock(ctx, conn, block)
			})
		}, nil

	case models.EventPricingUpdated:
		updates, err := e.priceUpdates(ctx, ev)
		if err != nil {
			return nil, err
		}
		return e.pushPrices(updates), nil

	case models.EventAvailabilityUpdated:
		update, err := e.availabilityUpdate(ctx, ev)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, a adapter.Adapter, conn *models.ChannelConnection) error {
			return e.call(ctx, conn, func(ctx context.Context) error {
				return a.PushAvailability(ctx, conn, update)
			})
		}, nil

	default:
		return nil, syncerr.Permanent(fmt.Sprintf("event %s: unsupported type %q", ev.ID, ev.Type), nil)
	}
}

func decodePayload[T any](ev models.Event) (T, bool, error) {
	var v T
	if len(ev.Payload) == 0 || string(ev.Payload) == "null" {
		return v, false, nil
	}
	if err := json.Unmarshal(ev.Payload, &v); err != nil {
		return v, false, syncerr.Permanent(fmt.Sprintf("event %s: decode %s payload", ev.ID, ev.Type), err)
	}
	return v, true, nil
}

func (e *Engine) bookingBlock(ctx context.Context, ev models.Event) (models.BookingBlock, error) {
	p, ok, err := decodePayload[models.BookingPayload](ev)
	if err != nil {
		return models.BookingBlock{}, err
	}
	if !ok {
		b, err := e.bookings.Get(ctx, ev.EntityID)
		if errors.Is(err, syncerr.ErrNotFound) {
			return models.BookingBlock{}, syncerr.Permanent(fmt.Sprintf("event %s: booking %s", ev.ID, ev.EntityID), err)
		}
		if err != nil {
			return models.BookingBlock{}, &syncerr.TransientError{Op: "load booking", Cause: err}
		}
		p = models.BookingPayload{BookingID: b.ID, Range: b.Range, Status: b.Status}
	}
	if p.BookingID == "" {
		p.BookingID = ev.EntityID
	}
	if err := p.Range.Validate(); err != nil {
		return models.BookingBlock{}, syncerr.Permanent(fmt.Sprintf("event %s: booking range", ev.ID), err)
	}
	blocked := ev.Type != models.EventBookingCancelled
	if p.Status != "" && !p.Status.Occupies() {
		blocked = false
	}
	return models.BookingBlock{BookingID: p.BookingID, Range: p.Range, Blocked: blocked}, nil
}

func (e *Engine) priceUpdates(ctx context.Context, ev models.Event) ([]models.PriceUpdate, error) {
	u, ok, err := decodePayload[models.PriceUpdate](ev)
	if err != nil {
		return nil, err
	}
	if ok {
		if u.PropertyID == "" {
			u.PropertyID = ev.PropertyID
		}
		if u.AmountCents <= 0 || u.From == "" || u.To == "" {
			return nil, syncerr.Permanent(fmt.Sprintf("event %s: incomplete price update", ev.ID), nil)
		}
		return []models.PriceUpdate{u}, nil
	}
	if e.prices == nil {
		return nil, syncerr.Permanent(fmt.Sprintf("event %s", ev.ID), ErrNoPriceSource)
	}
	updates, err := e.prices.Prices(ctx, ev.PropertyID, e.window())
	if err != nil {
		return nil, &syncerr.TransientError{Op: "load prices", Cause: err}
	}
	return updates, nil
}

func (e *Engine) availabilityUpdate(ctx context.Context, ev models.Event) (models.AvailabilityUpdate, error) {
	u, _, err := decodePayload[models.AvailabilityUpdate](ev)
	if err != nil {
		return u, err
	}
	u.PropertyID = ev.PropertyID
	if len(u.Days) > 0 {
		return u, nil
	}

	window := e.window()
	if u.From != "" || u.To != "" {
		if window, err = models.NewDateRange(u.From, u.To); err != nil {
			return u, syncerr.Permanent(fmt.Sprintf("event %s: availability range", ev.ID), err)
		}
	}
	return e.localAvailability(ctx, ev.PropertyID, window)
}

// localAvailability reads the source of truth calendar for window.
func (e *Engine) localAvailability(ctx context.Context, propertyID string, window models.DateRange) (models.AvailabilityUpdate, error) {
	occupied, err := e.bookings.OccupiedDays(ctx, propertyID, window)
	if err != nil {
		return models.AvailabilityUpdate{}, &syncerr.TransientError{Op: "load occupancy", Cause: err}
	}
	u := models.AvailabilityUpdate{PropertyID: propertyID, From: window.Start(), To: window.End()}
	for _, day := range window.Days() {
		date := day.Format(models.DateLayout)
		u.Days = append(u.Days, models.AvailabilityDay{Date: date, Available: !occupied[date]})
	}
	return u, nil
}
