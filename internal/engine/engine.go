// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package engine

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/channelsync/internal/adapter"
	"github.com/tomtom215/channelsync/internal/breaker"
	"github.com/tomtom215/channelsync/internal/config"
	"github.com/tomtom215/channelsync/internal/kvstore"
	"github.com/tomtom215/channelsync/internal/lock"
	"github.com/tomtom215/channelsync/internal/logging"
	"github.com/tomtom215/channelsync/internal/models"
)

// BookingStore is the source of truth for bookings.
type BookingStore interface {
	Insert(ctx context.Context, b *models.Booking) error
	Update(ctx context.Context, b *models.Booking) error
	Get(ctx context.Context, id string) (*models.Booking, error)
	FindByExternal(ctx context.Context, platform models.PlatformType, externalID string) (*models.Booking, error)
	RangeAvailable(ctx context.Context, propertyID string, rng models.DateRange, excludeID string) (bool, error)
	ListOccupying(ctx context.Context, propertyID string, window models.DateRange) ([]models.Booking, error)
	OccupiedDays(ctx context.Context, propertyID string, window models.DateRange) (map[string]bool, error)
}

// ConnectionStore holds channel connections.
type ConnectionStore interface {
	Get(ctx context.Context, id string) (*models.ChannelConnection, error)
	ActiveForProperty(ctx context.Context, propertyID string) ([]models.ChannelConnection, error)
	ListActive(ctx context.Context) ([]models.ChannelConnection, error)
	FindActiveByListing(ctx context.Context, platform models.PlatformType, listingID string) (*models.ChannelConnection, error)
	UpdateStatus(ctx context.Context, id string, status models.ConnectionStatus) error
}

// SyncLog is the durable record of sync operations, conflicts and review
// tasks.
type SyncLog interface {
	Start(ctx context.Context, op *models.SyncOperation) error
	MarkRunning(ctx context.Context, id string) error
	Finish(ctx context.Context, id string, status models.SyncStatus, opErr error, attempts int, duration time.Duration) error
	Operation(ctx context.Context, id string) (*models.SyncOperation, error)
	Logs(ctx context.Context, connectionID string, page models.Page) (models.SyncLogPage, error)
	Batch(ctx context.Context, batchID string) (models.SyncBatch, error)
	RecordConflict(ctx context.Context, rec *models.ConflictRecord) error
	CreateReviewTask(ctx context.Context, task *models.ReviewTask) error
}

// Publisher puts work on the event bus.
type Publisher interface {
	PublishEvent(ctx context.Context, ev models.Event) error
	PublishImportTask(ctx context.Context, task models.ImportTask) error
	PublishManualSync(ctx context.Context, task models.ManualSyncTask) error
}

// PriceSource supplies nightly rates for a property. Pricing rules live
// outside the engine.
type PriceSource interface {
	Prices(ctx context.Context, propertyID string, window models.DateRange) ([]models.PriceUpdate, error)
}

// Notifier is told about every finished sync operation.
type Notifier interface {
	OperationFinished(op models.SyncOperation)
}

// ReconcileNotifier is an optional Notifier extension told about every
// finished reconciliation pass.
type ReconcileNotifier interface {
	ReconcileFinished(report ReconcileReport)
}

// Breakers exposes the breaker escape hatches.
type Breakers interface {
	State(platform models.PlatformType, connectionID string) (breaker.Snapshot, error)
	Reset(platform models.PlatformType, connectionID string) error
}

// ErrNoPriceSource is returned by a pricing sync when no PriceSource is
// configured.
var ErrNoPriceSource = errors.New("no price source configured")

// Config tunes the engine.
type Config struct {
	MaxAttempts        int
	InitialBackoff     time.Duration
	MaxBackoff         time.Duration
	FanoutConcurrency  int
	IdempotencyTTL     time.Duration
	WindowDays         int
	AlertThresholdDays int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:        3,
		InitialBackoff:     200 * time.Millisecond,
		MaxBackoff:         5 * time.Second,
		FanoutConcurrency:  8,
		IdempotencyTTL:     24 * time.Hour,
		WindowDays:         90,
		AlertThresholdDays: 10,
	}
}

// ConfigFrom maps the sync and reconcile sections onto engine settings.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		MaxAttempts:        cfg.Sync.MaxAttempts,
		InitialBackoff:     cfg.Sync.InitialBackoff,
		MaxBackoff:         cfg.Sync.MaxBackoff,
		FanoutConcurrency:  cfg.Sync.FanoutConcurrency,
		IdempotencyTTL:     cfg.Sync.IdempotencyTTL,
		WindowDays:         cfg.Reconcile.WindowDays,
		AlertThresholdDays: cfg.Reconcile.AlertThresholdDays,
	}
}

// Deps are the engine's collaborators. Prices and Notifier are optional.
type Deps struct {
	Bookings    BookingStore
	Connections ConnectionStore
	Log         SyncLog
	Adapters    *adapter.Registry
	Guard       *adapter.Guard
	Breakers    Breakers
	Locks       *lock.Manager
	Store       kvstore.Store
	Bus         Publisher
	Prices      PriceSource
	Notifier    Notifier
}

// Engine orchestrates outbound fan-out and inbound imports.
type Engine struct {
	cfg         Config
	bookings    BookingStore
	connections ConnectionStore
	log         SyncLog
	adapters    *adapter.Registry
	guard       *adapter.Guard
	breakers    Breakers
	locks       *lock.Manager
	store       kvstore.Store
	bus         Publisher
	prices      PriceSource
	notifier    Notifier

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds an Engine. Zero config values fall back to DefaultConfig.
func New(cfg Config, deps Deps) *Engine {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.FanoutConcurrency <= 0 {
		cfg.FanoutConcurrency = def.FanoutConcurrency
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = def.IdempotencyTTL
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = def.WindowDays
	}
	if cfg.AlertThresholdDays <= 0 {
		cfg.AlertThresholdDays = def.AlertThresholdDays
	}
	return &Engine{
		cfg:         cfg,
		bookings:    deps.Bookings,
		connections: deps.Connections,
		log:         deps.Log,
		adapters:    deps.Adapters,
		guard:       deps.Guard,
		breakers:    deps.Breakers,
		locks:       deps.Locks,
		store:       deps.Store,
		bus:         deps.Bus,
		prices:      deps.Prices,
		notifier:    deps.Notifier,
		now:         time.Now,
		sleep:       sleepContext,
	}
}

// window returns the reconciliation window starting today.
func (e *Engine) window() models.DateRange {
	today := e.now().UTC().Truncate(24 * time.Hour)
	return models.DateRange{CheckIn: today, CheckOut: today.AddDate(0, 0, e.cfg.WindowDays)}
}

// withCorrelation tags ctx with id unless it already carries one.
func withCorrelation(ctx context.Context, id string) context.Context {
	if logging.CorrelationIDFromContext(ctx) != "" {
		return ctx
	}
	return logging.ContextWithCorrelationID(ctx, id)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
