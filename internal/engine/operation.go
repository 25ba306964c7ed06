// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/channelsync/internal/logging"
	"github.com/tomtom215/channelsync/internal/metrics"
	"github.com/tomtom215/channelsync/internal/models"
	"github.com/tomtom215/channelsync/internal/resolver"
	"github.com/tomtom215/channelsync/internal/syncerr"
)

// backoff returns the wait before attempt n+1 after a failed attempt n
// (1-based). A RetryAfter hint replaces the exponential delay. Both are
// capped at MaxBackoff.
func (e *Engine) backoff(attempt int, err error) time.Duration {
	delay := e.cfg.InitialBackoff << (attempt - 1)
	if hint := syncerr.RetryAfter(err); hint > 0 {
		delay = hint
	}
	if delay <= 0 || delay > e.cfg.MaxBackoff {
		delay = e.cfg.MaxBackoff
	}
	return delay
}

// retry runs fn up to MaxAttempts times. Terminal errors stop at once.
// It returns the number of attempts made and the last error.
func (e *Engine) retry(ctx context.Context, platform models.PlatformType, fn func(context.Context) error) (int, error) {
	var err error
	attempt := 0
	for attempt < e.cfg.MaxAttempts {
		if ctx.Err() != nil {
			return attempt, ctx.Err()
		}
		attempt++

		err = fn(ctx)
		if err == nil || !syncerr.IsRetryable(err) || attempt == e.cfg.MaxAttempts {
			break
		}

		delay := e.backoff(attempt, err)
		metrics.RecordSyncRetry(string(platform))
		logging.Ctx(ctx).Debug().Err(err).
			Str("platform", string(platform)).
			Int("attempt", attempt).
			Int("max_attempts", e.cfg.MaxAttempts).
			Dur("delay", delay).
			Msg("Retrying adapter call")
		if serr := e.sleep(ctx, delay); serr != nil {
			return attempt, fmt.Errorf("%w (last error: %v)", serr, err)
		}
	}
	return attempt, err
}

// call makes one adapter request through the connection's guard. Each
// request takes its own rate limit admission and breaker slot, so a push of
// n items costs n admissions.
func (e *Engine) call(ctx context.Context, conn *models.ChannelConnection, req func(context.Context) error) error {
	return e.guard.Do(ctx, conn, req)
}

// runOperation records op as running, executes fn with retries, and records
// the outcome. fn must route every adapter request through call. The
// returned operation carries the final status.
func (e *Engine) runOperation(ctx context.Context, conn *models.ChannelConnection, op models.SyncOperation, fn func(context.Context) error) (models.SyncOperation, error) {
	op.ConnectionID = conn.ID
	op.Platform = conn.Platform
	op.Status = models.SyncRunning
	op.StartedAt = e.now().UTC()
	if err := e.log.Start(ctx, &op); err != nil {
		return op, &syncerr.TransientError{Op: "record sync operation", Cause: err}
	}
	return e.execute(ctx, conn, op, fn)
}

// execute runs fn for an operation that is already recorded. A retry runs
// fn from the start; pushes are idempotent.
func (e *Engine) execute(ctx context.Context, conn *models.ChannelConnection, op models.SyncOperation, fn func(context.Context) error) (models.SyncOperation, error) {
	start := time.Now()
	attempts, opErr := e.retry(ctx, conn.Platform, fn)
	e.finishOperation(ctx, &op, opErr, attempts, time.Since(start))
	return op, opErr
}

// finishOperation records the terminal state of op. A failure to write the
// ledger is logged, not returned: the adapter call already happened.
func (e *Engine) finishOperation(ctx context.Context, op *models.SyncOperation, opErr error, attempts int, elapsed time.Duration) {
	op.Status = models.SyncSuccess
	if opErr != nil {
		op.Status = models.SyncFailed
		op.Error = opErr.Error()
	}
	op.Attempts = attempts
	op.DurationMS = elapsed.Milliseconds()
	completed := e.now().UTC()
	op.CompletedAt = &completed

	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.log.Finish(finishCtx, op.ID, op.Status, opErr, attempts, elapsed); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("operation_id", op.ID).Msg("Failed to finish sync operation")
	}

	metrics.RecordSyncOperation(string(op.Platform), string(op.OperationType), string(op.Direction), string(op.Status), elapsed)
	event := logging.Ctx(ctx).Info()
	if opErr != nil {
		event = logging.Ctx(ctx).Warn().Err(opErr).Str("category", syncerr.CategoryOf(opErr).String())
	}
	event.Str("operation_id", op.ID).
		Str("batch_id", op.BatchID).
		Str("connection_id", op.ConnectionID).
		Str("platform", string(op.Platform)).
		Str("operation", string(op.OperationType)).
		Str("direction", string(op.Direction)).
		Int("attempts", attempts).
		Dur("duration", elapsed).
		Msg("Sync operation finished")

	if e.notifier != nil {
		e.notifier.OperationFinished(*op)
	}
}

// recordResolution appends the audit record for res and opens a review task
// when it needs one. Errors are logged; audit must not fail a sync.
func recordResolution[T any](ctx context.Context, e *Engine, res resolver.Resolution[T], entityType, entityID, resolvedBy, reviewKind string) {
	if !res.Conflicted() {
		return
	}
	rec := res.Record(entityType, entityID, resolvedBy, e.now())
	metrics.RecordConflict(rec.ConflictType, rec.Resolution)
	if err := e.log.RecordConflict(ctx, &rec); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("entity_id", entityID).Str("conflict_type", rec.ConflictType).
			Msg("Failed to record conflict")
	}
	if !res.RequiresReview || reviewKind == "" {
		return
	}
	task := &models.ReviewTask{
		EntityType: entityType,
		EntityID:   entityID,
		Kind:       reviewKind,
		Detail:     res.Detail,
	}
	if err := e.log.CreateReviewTask(ctx, task); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("entity_id", entityID).Str("kind", reviewKind).
			Msg("Failed to create review task")
	}
}
