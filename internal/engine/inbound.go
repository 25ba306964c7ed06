// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/channelsync/internal/database"
	"github.com/tomtom215/channelsync/internal/logging"
	"github.com/tomtom215/channelsync/internal/metrics"
	"github.com/tomtom215/channelsync/internal/models"
	"github.com/tomtom215/channelsync/internal/resolver"
	"github.com/tomtom215/channelsync/internal/syncerr"
)

// IngestResult is the outcome of accepting a webhook.
type IngestResult struct {
	TaskID       string `json:"task_id,omitempty"`
	ConnectionID string `json:"connection_id"`
	Duplicate    bool   `json:"duplicate"`
}

// WebhookKey is the idempotency key claimed for a platform event.
func WebhookKey(platform models.PlatformType, externalEventID string) string {
	return "webhook:" + string(platform) + ":" + externalEventID
}

// IngestWebhook accepts a verified webhook. The first delivery of an event
// id claims it and queues an import task; later deliveries inside the
// idempotency TTL are acknowledged with Duplicate set and do nothing.
func (e *Engine) IngestWebhook(ctx context.Context, wh models.Webhook) (IngestResult, error) {
	conn, err := e.connections.FindActiveByListing(ctx, wh.Platform, wh.ListingID)
	if err != nil {
		metrics.RecordWebhook(string(wh.Platform), "unknown_listing")
		return IngestResult{}, err
	}
	result := IngestResult{ConnectionID: conn.ID}

	taskID := uuid.NewString()
	key := WebhookKey(wh.Platform, wh.ExternalEventID)
	claimed, err := e.store.SetNX(ctx, key, []byte(taskID), e.cfg.IdempotencyTTL)
	if err != nil {
		metrics.RecordWebhook(string(wh.Platform), "error")
		return result, &syncerr.TransientError{Op: "claim webhook", Cause: err}
	}
	if !claimed {
		metrics.RecordWebhook(string(wh.Platform), "duplicate")
		logging.Ctx(ctx).Debug().Str("platform", string(wh.Platform)).Str("event_id", wh.ExternalEventID).
			Msg("Duplicate webhook ignored")
		result.Duplicate = true
		return result, nil
	}

	task := models.ImportTask{
		ID:                taskID,
		Platform:          wh.Platform,
		ConnectionID:      conn.ID,
		ExternalEventID:   wh.ExternalEventID,
		ExternalBookingID: wh.ExternalBookingID,
		Kind:              wh.Kind,
		CreatedAt:         e.now().UTC(),
	}
	if err := e.bus.PublishImportTask(ctx, task); err != nil {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if _, rerr := e.store.CompareAndDelete(releaseCtx, key, []byte(taskID)); rerr != nil {
			logging.Ctx(ctx).Error().Err(rerr).Str("key", key).Msg("Failed to release webhook claim")
		}
		metrics.RecordWebhook(string(wh.Platform), "error")
		return result, &syncerr.TransientError{Op: "queue import", Cause: err}
	}

	metrics.RecordWebhook(string(wh.Platform), "accepted")
	logging.Ctx(ctx).Info().
		Str("platform", string(wh.Platform)).
		Str("event_id", wh.ExternalEventID).
		Str("booking_ref", wh.ExternalBookingID).
		Str("task_id", taskID).
		Msg("Webhook accepted")
	result.TaskID = taskID
	return result, nil
}

// ImportBooking fetches the platform's booking for task, reconciles it with
// the source of truth and writes the result under the booking lock. The
// change is then announced with Source set to the connection, so the
// outbound path propagates it to the other platforms only.
//
// Transient errors are returned for the bus to retry. Terminal errors are
// recorded on the sync operation and returned as-is; the bus poisons them.
// A double booking is not a failure of the import: it is recorded for
// review and the task is acknowledged.
func (e *Engine) ImportBooking(ctx context.Context, task models.ImportTask) error {
	conn, err := e.connections.Get(ctx, task.ConnectionID)
	if errors.Is(err, syncerr.ErrNotFound) {
		return syncerr.Permanent("import "+task.ID, err)
	}
	if err != nil {
		return &syncerr.TransientError{Op: "load connection", Cause: err}
	}

	op := models.SyncOperation{
		BatchID:       task.ID,
		ConnectionID:  conn.ID,
		Platform:      conn.Platform,
		OperationType: models.OperationBookings,
		Direction:     models.DirectionInbound,
		EntityID:      task.ExternalBookingID,
		StartedAt:     e.now().UTC(),
	}
	a, err := e.adapters.Get(conn.Platform)
	if err != nil {
		_, ferr := e.failOperation(ctx, conn, op, &syncerr.AdapterValidationError{Op: "import", Message: err.Error(), Cause: err})
		return ferr
	}
	if err := e.log.Start(ctx, &op); err != nil {
		return &syncerr.TransientError{Op: "record sync operation", Cause: err}
	}

	start := time.Now()
	var pb *models.PlatformBooking
	attempts, err := e.retry(ctx, conn.Platform, func(ctx context.Context) error {
		return e.call(ctx, conn, func(ctx context.Context) error {
			var ferr error
			pb, ferr = a.FetchBooking(ctx, conn, task.ExternalBookingID)
			return ferr
		})
	})
	if err == nil {
		err = e.applyImport(ctx, conn, task, pb)
	}
	e.finishOperation(ctx, &op, err, attempts, time.Since(start))

	var conflict *syncerr.BookingConflictError
	if errors.As(err, &conflict) && conflict.Holder == "" {
		return nil
	}
	return err
}

// applyImport reconciles pb into the source of truth.
func (e *Engine) applyImport(ctx context.Context, conn *models.ChannelConnection, task models.ImportTask, pb *models.PlatformBooking) error {
	if pb == nil {
		return syncerr.Permanent("platform returned no booking for "+task.ExternalBookingID, nil)
	}
	if pb.ExternalID == "" {
		pb.ExternalID = task.ExternalBookingID
	}

	local, err := e.bookings.FindByExternal(ctx, conn.Platform, pb.ExternalID)
	switch {
	case errors.Is(err, syncerr.ErrNotFound):
		return e.importNew(ctx, conn, task, pb)
	case err != nil:
		return &syncerr.TransientError{Op: "find booking", Cause: err}
	default:
		return e.importExisting(ctx, conn, task, local, pb)
	}
}

func (e *Engine) importNew(ctx context.Context, conn *models.ChannelConnection, task models.ImportTask, pb *models.PlatformBooking) error {
	if !pb.Status.Occupies() {
		logging.Ctx(ctx).Info().Str("booking_ref", pb.ExternalID).Str("status", string(pb.Status)).
			Msg("Ignoring non-occupying booking with no local record")
		return nil
	}

	quote, err := e.quote(ctx, conn.PropertyID, pb.Range)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("property_id", conn.PropertyID).Msg("Price quote unavailable")
	}
	price := resolver.ResolvePrice(resolver.PriceInput{NewBooking: true, LocalCents: quote, IncomingCents: pb.PriceCents})

	b := &models.Booking{
		PropertyID:   conn.PropertyID,
		Range:        pb.Range,
		Status:       pb.Status,
		Source:       string(conn.Platform),
		ConnectionID: conn.ID,
		ExternalID:   pb.ExternalID,
		Guest:        pb.Guest,
		PriceCents:   price.Final,
		Currency:     pb.Currency,
	}
	if b.Guest.Phone != "" && b.Guest.PhoneUpdatedAt == nil {
		at := e.now().UTC()
		b.Guest.PhoneUpdatedAt = &at
	}

	err = e.locks.WithBookingLock(ctx, b.PropertyID, b.Range, task.ID, func(ctx context.Context) error {
		return e.bookings.Insert(ctx, b)
	})
	if err != nil {
		return e.writeFailed(ctx, conn, pb, err)
	}

	recordResolution(ctx, e, price, models.EntityBooking, b.ID, "import", models.ReviewPrice)
	return e.announce(ctx, task.ID, conn.ID, b, nil)
}

func (e *Engine) importExisting(ctx context.Context, conn *models.ChannelConnection, task models.ImportTask, local *models.Booking, pb *models.PlatformBooking) error {
	status := resolver.ResolveStatus(local.Status, pb.Status, local.Source)
	guest := resolver.ResolveGuest(local.Guest, pb.Guest, e.now())
	price := resolver.ResolvePrice(resolver.PriceInput{
		Direct:        local.IsDirect(),
		LocalCents:    local.PriceCents,
		IncomingCents: pb.PriceCents,
	})

	dates := resolver.Resolution[models.DateRange]{Final: local.Range, Action: resolver.ActionNone}
	if status.Final.Occupies() && !pb.Range.Equal(local.Range) {
		available, err := e.bookings.RangeAvailable(ctx, local.PropertyID, pb.Range, local.ID)
		if err != nil {
			return &syncerr.TransientError{Op: "check availability", Cause: err}
		}
		dates = resolver.ResolveDateChange(resolver.DateChangeInput{
			Current:           local.Range,
			Proposed:          pb.Range,
			PlatformInitiated: true,
			Available:         available,
		})
	}

	updated := *local
	updated.Status = status.Final
	updated.Guest = guest.Final
	updated.PriceCents = price.Final
	updated.Range = dates.Final

	if bookingChanged(local, &updated) {
		err := e.locks.WithBookingLock(ctx, updated.PropertyID, updated.Range, task.ID, func(ctx context.Context) error {
			return e.bookings.Update(ctx, &updated)
		})
		if err != nil {
			return e.writeFailed(ctx, conn, pb, err)
		}
	}

	recordResolution(ctx, e, status, models.EntityBooking, local.ID, "import", "")
	recordResolution(ctx, e, guest, models.EntityBooking, local.ID, "import", "")
	recordResolution(ctx, e, price, models.EntityBooking, local.ID, "import", models.ReviewPrice)
	recordResolution(ctx, e, dates, models.EntityBooking, local.ID, "import", models.ReviewDateChange)

	source := conn.ID
	if repushes(status.Action) || repushes(price.Action) || dates.Action == resolver.ActionReject {
		source = ""
	}
	var previous *models.DateRange
	if !updated.Range.Equal(local.Range) {
		previous = &local.Range
	}
	return e.announce(ctx, task.ID, source, &updated, previous)
}

func repushes(a resolver.Action) bool {
	return a == resolver.ActionPushPlatforms || a == resolver.ActionPushAll
}

func bookingChanged(before, after *models.Booking) bool {
	return before.Status != after.Status ||
		!before.Range.Equal(after.Range) ||
		before.PriceCents != after.PriceCents ||
		before.Guest.Phone != after.Guest.Phone ||
		before.Guest.Address != after.Guest.Address ||
		before.Guest.Language != after.Guest.Language
}

// writeFailed classifies a failed booking write. Lock contention is
// transient. A constraint violation is a double booking: it is recorded,
// a review task is opened and the conflict is returned.
func (e *Engine) writeFailed(ctx context.Context, conn *models.ChannelConnection, pb *models.PlatformBooking, err error) error {
	if errors.Is(err, database.ErrDuplicateExternalBooking) {
		return &syncerr.TransientError{Op: "insert booking", Cause: err}
	}
	var conflict *syncerr.BookingConflictError
	if !errors.As(err, &conflict) {
		return err
	}
	if conflict.Holder != "" {
		return &syncerr.TransientError{Op: "acquire booking lock", Cause: err}
	}
	if res, ok := resolver.ClassifyBookingError(err); ok {
		entityID := string(conn.Platform) + ":" + pb.ExternalID
		recordResolution(ctx, e, res, models.EntityBooking, entityID, "import", models.ReviewDoubleBooking)
	}
	logging.Ctx(ctx).Warn().Err(err).
		Str("connection_id", conn.ID).
		Str("booking_ref", pb.ExternalID).
		Msg("Platform booking rejected as double booking")
	return err
}

// announce publishes the booking event for b. The event id is derived from
// the task id so a redelivered task publishes the same message.
func (e *Engine) announce(ctx context.Context, taskID, source string, b *models.Booking, previous *models.DateRange) error {
	evType := models.BookingEventType(b.Status)
	if previous != nil && b.Status.Occupies() {
		evType = models.EventBookingModified
	}
	payload, err := json.Marshal(models.BookingPayload{BookingID: b.ID, Range: b.Range, Status: b.Status, Previous: previous})
	if err != nil {
		return fmt.Errorf("encode booking payload: %w", err)
	}
	ev := models.Event{
		ID:         taskID,
		Type:       evType,
		PropertyID: b.PropertyID,
		EntityID:   b.ID,
		Timestamp:  e.now().UTC(),
		Payload:    payload,
		Source:     source,
	}
	if err := e.bus.PublishEvent(ctx, ev); err != nil {
		return &syncerr.TransientError{Op: "publish booking event", Cause: err}
	}
	return nil
}

// quote prices r from the PriceSource. Zero means no quote.
func (e *Engine) quote(ctx context.Context, propertyID string, r models.DateRange) (int64, error) {
	if e.prices == nil {
		return 0, nil
	}
	updates, err := e.prices.Prices(ctx, propertyID, r)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, day := range r.Days() {
		date := day.Format(models.DateLayout)
		for _, u := range updates {
			if date >= u.From && date < u.To {
				total += u.AmountCents
				break
			}
		}
	}
	return total, nil
}
