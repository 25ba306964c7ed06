// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/channelsync/internal/logging"
	"github.com/tomtom215/channelsync/internal/metrics"
	"github.com/tomtom215/channelsync/internal/models"
	"github.com/tomtom215/channelsync/internal/resolver"
	"github.com/tomtom215/channelsync/internal/syncerr"
)

// DriftResult is the reconciliation outcome for one connection.
type DriftResult struct {
	ConnectionID string `json:"connection_id"`
	Platform     string `json:"platform"`
	DriftDays    int    `json:"drift_days"`
	Corrected    bool   `json:"corrected"`
	Alert        bool   `json:"alert"`
	Error        string `json:"error,omitempty"`
}

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	BatchID string        `json:"batch_id"`
	Results []DriftResult `json:"results"`
}

// Reconcile compares every active connection's platform calendar with local
// occupancy over the reconciliation window. Drift up to the alert threshold
// is corrected by pushing the local value; larger drift raises an alert and
// a review task instead. One failing connection does not stop the pass.
func (e *Engine) Reconcile(ctx context.Context) (ReconcileReport, error) {
	report := ReconcileReport{BatchID: "reconcile-" + uuid.NewString()}
	ctx = withCorrelation(ctx, report.BatchID)

	conns, err := e.connections.ListActive(ctx)
	if err != nil {
		return report, fmt.Errorf("list active connections: %w", err)
	}
	for i := range conns {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Results = append(report.Results, e.reconcileConnection(ctx, &conns[i], report.BatchID))
	}

	alerts := 0
	for _, r := range report.Results {
		if r.Alert {
			alerts++
		}
	}
	logging.Ctx(ctx).Info().Int("connections", len(conns)).Int("alerts", alerts).Msg("Reconciliation finished")
	if rn, ok := e.notifier.(ReconcileNotifier); ok {
		rn.ReconcileFinished(report)
	}
	return report, nil
}

func (e *Engine) reconcileConnection(ctx context.Context, conn *models.ChannelConnection, batchID string) DriftResult {
	result := DriftResult{ConnectionID: conn.ID, Platform: string(conn.Platform)}
	a, err := e.adapters.Get(conn.Platform)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	window := e.window()

	var remote []models.AvailabilityDay
	fetch := models.SyncOperation{
		BatchID:       batchID,
		OperationType: models.OperationAvailability,
		Direction:     models.DirectionInbound,
	}
	if _, err := e.runOperation(ctx, conn, fetch, func(ctx context.Context) error {
		return e.call(ctx, conn, func(ctx context.Context) error {
			var ferr error
			remote, ferr = a.FetchAvailability(ctx, conn, window)
			return ferr
		})
	}); err != nil {
		result.Error = err.Error()
		return result
	}

	occupied, err := e.bookings.OccupiedDays(ctx, conn.PropertyID, window)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	res := resolver.ResolveAvailabilityDrift(window, occupied, remote, e.cfg.AlertThresholdDays)
	result.DriftDays = len(res.Final)
	recordResolution(ctx, e, res, models.EntityConnection, conn.ID, "reconciler", models.ReviewDrift)

	switch res.Action {
	case resolver.ActionNone:
		return result

	case resolver.ActionAlert:
		result.Alert = true
		metrics.RecordDrift(string(conn.Platform), result.DriftDays, true)
		drift := &syncerr.DriftError{ConnectionID: conn.ID, Days: result.DriftDays, Threshold: e.cfg.AlertThresholdDays}
		result.Error = drift.Error()
		logging.Ctx(ctx).Error().Err(drift).
			Str("connection_id", conn.ID).
			Str("platform", string(conn.Platform)).
			Msg("Availability drift above threshold, not correcting")
		return result
	}

	metrics.RecordDrift(string(conn.Platform), result.DriftDays, false)
	update := models.AvailabilityUpdate{
		PropertyID: conn.PropertyID,
		From:       window.Start(),
		To:         window.End(),
		Days:       res.Final,
	}
	push := models.SyncOperation{
		BatchID:       batchID,
		OperationType: models.OperationAvailability,
		Direction:     models.DirectionOutbound,
	}
	if _, err := e.runOperation(ctx, conn, push, func(ctx context.Context) error {
		return e.call(ctx, conn, func(ctx context.Context) error {
			return a.PushAvailability(ctx, conn, update)
		})
	}); err != nil {
		result.Error = err.Error()
		return result
	}
	result.Corrected = true
	return result
}

// Reconciler runs Reconcile on an interval. It implements suture.Service.
type Reconciler struct {
	engine   *Engine
	interval time.Duration
}

// NewReconciler builds a Reconciler. interval <= 0 selects six hours.
func NewReconciler(e *Engine, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &Reconciler{engine: e, interval: interval}
}

// Serve runs a pass immediately and then every interval until ctx ends.
func (r *Reconciler) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.engine.Reconcile(ctx); err != nil && ctx.Err() == nil {
			logging.Error().Err(err).Msg("Reconciliation pass failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Reconciler) String() string {
	return "reconciler"
}
