// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tomtom215/channelsync/internal/adapter"
	"github.com/tomtom215/channelsync/internal/breaker"
	"github.com/tomtom215/channelsync/internal/database"
	"github.com/tomtom215/channelsync/internal/logging"
	"github.com/tomtom215/channelsync/internal/models"
	"github.com/tomtom215/channelsync/internal/syncerr"
)

// TriggerManualSync records a triggered operation for the connection and
// queues it. The returned batch id can be polled with BatchStatus.
func (e *Engine) TriggerManualSync(ctx context.Context, connectionID string, syncType models.OperationType, requestedBy string) (string, error) {
	if !syncType.Valid() {
		return "", &syncerr.AdapterValidationError{Op: "manual sync", Message: fmt.Sprintf("unknown sync type %q", syncType)}
	}
	if syncType == models.OperationPricing && e.prices == nil {
		return "", &syncerr.AdapterValidationError{Op: "manual sync", Message: ErrNoPriceSource.Error(), Cause: ErrNoPriceSource}
	}
	conn, err := e.connections.Get(ctx, connectionID)
	if err != nil {
		return "", err
	}
	if conn.Status != models.ConnectionActive && conn.Status != models.ConnectionError {
		return "", &syncerr.AdapterValidationError{Op: "manual sync", Message: fmt.Sprintf("connection %s is %s", conn.ID, conn.Status)}
	}

	op := models.SyncOperation{
		BatchID:       uuid.NewString(),
		ConnectionID:  conn.ID,
		Platform:      conn.Platform,
		OperationType: syncType,
		Direction:     models.DirectionOutbound,
		Status:        models.SyncTriggered,
		StartedAt:     e.now().UTC(),
	}
	if err := e.log.Start(ctx, &op); err != nil {
		return "", &syncerr.TransientError{Op: "record sync operation", Cause: err}
	}

	task := models.ManualSyncTask{
		BatchID:      op.BatchID,
		OperationID:  op.ID,
		ConnectionID: conn.ID,
		SyncType:     syncType,
		RequestedBy:  requestedBy,
		CreatedAt:    op.StartedAt,
	}
	if err := e.bus.PublishManualSync(ctx, task); err != nil {
		e.finishOperation(ctx, &op, fmt.Errorf("queue manual sync: %w", err), 0, 0)
		return "", &syncerr.TransientError{Op: "queue manual sync", Cause: err}
	}

	logging.Ctx(ctx).Info().
		Str("batch_id", op.BatchID).
		Str("connection_id", conn.ID).
		Str("sync_type", string(syncType)).
		Str("requested_by", requestedBy).
		Msg("Manual sync triggered")
	return op.BatchID, nil
}

// RunManualSync moves a queued manual sync from triggered to running,
// executes it and finishes its operation. A task whose operation is already
// terminal was delivered twice and is skipped. Adapter failures are recorded
// on the operation, not returned.
func (e *Engine) RunManualSync(ctx context.Context, task models.ManualSyncTask) error {
	ctx = withCorrelation(ctx, task.BatchID)

	rec, err := e.log.Operation(ctx, task.OperationID)
	if errors.Is(err, syncerr.ErrNotFound) {
		return syncerr.Permanent("manual sync "+task.BatchID, err)
	}
	if err != nil {
		return &syncerr.TransientError{Op: "load sync operation", Cause: err}
	}
	if rec.Status.Terminal() {
		logging.Ctx(ctx).Debug().Str("operation_id", rec.ID).Msg("Manual sync already finished")
		return nil
	}
	op := *rec

	conn, err := e.connections.Get(ctx, task.ConnectionID)
	if errors.Is(err, syncerr.ErrNotFound) {
		e.finishOperation(ctx, &op, err, 0, 0)
		return nil
	}
	if err != nil {
		return &syncerr.TransientError{Op: "load connection", Cause: err}
	}

	a, err := e.adapters.Get(conn.Platform)
	if err != nil {
		e.finishOperation(ctx, &op, &syncerr.AdapterValidationError{Op: "manual sync", Message: err.Error(), Cause: err}, 0, 0)
		return nil
	}

	push, err := e.manualPush(ctx, conn, task.SyncType)
	if err != nil {
		if syncerr.IsRetryable(err) {
			return err
		}
		e.finishOperation(ctx, &op, err, 0, 0)
		return nil
	}

	err = e.log.MarkRunning(ctx, op.ID)
	if errors.Is(err, database.ErrOperationFinalized) {
		logging.Ctx(ctx).Debug().Str("operation_id", op.ID).Msg("Manual sync finished elsewhere")
		return nil
	}
	if err != nil {
		return &syncerr.TransientError{Op: "mark sync operation running", Cause: err}
	}
	op.Status = models.SyncRunning

	_, _ = e.execute(ctx, conn, op, func(ctx context.Context) error {
		return push(ctx, a, conn)
	})
	return nil
}

// manualPush reads the local state the sync type covers over the
// reconciliation window.
func (e *Engine) manualPush(ctx context.Context, conn *models.ChannelConnection, syncType models.OperationType) (pushFunc, error) {
	window := e.window()
	switch syncType {
	case models.OperationAvailability:
		update, err := e.localAvailability(ctx, conn.PropertyID, window)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, a adapter.Adapter, conn *models.ChannelConnection) error {
			return e.call(ctx, conn, func(ctx context.Context) error {
				return a.PushAvailability(ctx, conn, update)
			})
		}, nil

	case models.OperationPricing:
		if e.prices == nil {
			return nil, &syncerr.AdapterValidationError{Op: "manual sync", Message: ErrNoPriceSource.Error(), Cause: ErrNoPriceSource}
		}
		updates, err := e.prices.Prices(ctx, conn.PropertyID, window)
		if err != nil {
			return nil, &syncerr.TransientError{Op: "load prices", Cause: err}
		}
		return e.pushPrices(updates), nil

	case models.OperationBookings:
		bookings, err := e.bookings.ListOccupying(ctx, conn.PropertyID, window)
		if err != nil {
			return nil, &syncerr.TransientError{Op: "list bookings", Cause: err}
		}
		return func(ctx context.Context, a adapter.Adapter, conn *models.ChannelConnection) error {
			for _, b := range bookings {
				block := models.BookingBlock{BookingID: b.ID, Range: b.Range, Blocked: true}
				if err := e.call(ctx, conn, func(ctx context.Context) error {
					return a.PushBookingBlock(ctx, conn, block)
				}); err != nil {
					return err
				}
			}
			return nil
		}, nil

	default:
		return nil, &syncerr.AdapterValidationError{Op: "manual sync", Message: fmt.Sprintf("unknown sync type %q", syncType)}
	}
}

// TestConnection probes the platform with the connection's credentials and
// records the result as the connection status. Paused and disconnected
// connections keep their status. A rate-limited probe is returned as an
// error and changes nothing.
func (e *Engine) TestConnection(ctx context.Context, connectionID string) (bool, error) {
	conn, err := e.connections.Get(ctx, connectionID)
	if err != nil {
		return false, err
	}
	a, err := e.adapters.Get(conn.Platform)
	if err != nil {
		return false, &syncerr.AdapterValidationError{Op: "test connection", Message: err.Error(), Cause: err}
	}

	probeErr := e.call(ctx, conn, func(ctx context.Context) error {
		return a.Probe(ctx, conn)
	})
	if syncerr.CategoryOf(probeErr) == syncerr.CategoryRateLimited {
		return false, probeErr
	}

	healthy := probeErr == nil
	status := models.ConnectionActive
	if !healthy {
		status = models.ConnectionError
	}
	if conn.Status != status && (conn.Status == models.ConnectionActive || conn.Status == models.ConnectionError) {
		if err := e.connections.UpdateStatus(ctx, conn.ID, status); err != nil {
			return healthy, fmt.Errorf("update connection status: %w", err)
		}
	}

	event := logging.Ctx(ctx).Info()
	if !healthy {
		event = logging.Ctx(ctx).Warn().Err(probeErr)
	}
	event.Str("connection_id", conn.ID).Str("platform", string(conn.Platform)).Bool("healthy", healthy).
		Msg("Connection tested")
	return healthy, nil
}

// SyncLogs returns one page of a connection's sync operations, newest first.
func (e *Engine) SyncLogs(ctx context.Context, connectionID string, page models.Page) (models.SyncLogPage, error) {
	return e.log.Logs(ctx, connectionID, page.Normalize())
}

// BatchStatus returns the aggregate status of a batch.
func (e *Engine) BatchStatus(ctx context.Context, batchID string) (models.SyncBatch, error) {
	return e.log.Batch(ctx, batchID)
}

// BreakerState returns the circuit breaker snapshot of a connection.
func (e *Engine) BreakerState(ctx context.Context, connectionID string) (breaker.Snapshot, error) {
	conn, err := e.connections.Get(ctx, connectionID)
	if err != nil {
		return breaker.Snapshot{}, err
	}
	return e.breakers.State(conn.Platform, conn.ID)
}

// ResetBreaker forces a connection's breaker closed.
func (e *Engine) ResetBreaker(ctx context.Context, connectionID string) error {
	conn, err := e.connections.Get(ctx, connectionID)
	if err != nil {
		return err
	}
	if err := e.breakers.Reset(conn.Platform, conn.ID); err != nil {
		return err
	}
	logging.Ctx(ctx).Warn().Str("connection_id", conn.ID).Str("platform", string(conn.Platform)).
		Msg("Circuit breaker reset by operator")
	return nil
}
