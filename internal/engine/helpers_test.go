// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package engine

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/channelsync/internal/adapter"
	"github.com/tomtom215/channelsync/internal/breaker"
	"github.com/tomtom215/channelsync/internal/config"
	"github.com/tomtom215/channelsync/internal/database"
	"github.com/tomtom215/channelsync/internal/kvstore"
	"github.com/tomtom215/channelsync/internal/lock"
	"github.com/tomtom215/channelsync/internal/models"
	"github.com/tomtom215/channelsync/internal/ratelimit"
)

// fakeAdapter records calls. Each call pops the next queued error; an empty
// queue means success.
type fakeAdapter struct {
	platform models.PlatformType

	mu           sync.Mutex
	errs         []error
	blocks       []models.BookingBlock
	availability []models.AvailabilityUpdate
	prices       []models.PriceUpdate
	fetches      int
	probes       int
	booking      *models.PlatformBooking
	remote       []models.AvailabilityDay

	// onBlock runs before each booking block push, outside mu.
	onBlock func()
}

var _ adapter.Adapter = (*fakeAdapter)(nil)

func newFakeAdapter(p models.PlatformType) *fakeAdapter {
	return &fakeAdapter{platform: p}
}

func (f *fakeAdapter) Platform() models.PlatformType { return f.platform }

func (f *fakeAdapter) failWith(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, errs...)
}

func (f *fakeAdapter) next() error {
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeAdapter) PushAvailability(_ context.Context, _ *models.ChannelConnection, u models.AvailabilityUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.next(); err != nil {
		return err
	}
	f.availability = append(f.availability, u)
	return nil
}

func (f *fakeAdapter) PushPricing(_ context.Context, _ *models.ChannelConnection, u models.PriceUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.next(); err != nil {
		return err
	}
	f.prices = append(f.prices, u)
	return nil
}

func (f *fakeAdapter) PushBookingBlock(_ context.Context, _ *models.ChannelConnection, b models.BookingBlock) error {
	if f.onBlock != nil {
		f.onBlock()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.next(); err != nil {
		return err
	}
	f.blocks = append(f.blocks, b)
	return nil
}

func (f *fakeAdapter) FetchBooking(_ context.Context, _ *models.ChannelConnection, externalID string) (*models.PlatformBooking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if err := f.next(); err != nil {
		return nil, err
	}
	if f.booking == nil {
		return nil, errors.New("no booking configured")
	}
	pb := *f.booking
	pb.ExternalID = externalID
	return &pb, nil
}

func (f *fakeAdapter) FetchAvailability(_ context.Context, _ *models.ChannelConnection, _ models.DateRange) ([]models.AvailabilityDay, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.next(); err != nil {
		return nil, err
	}
	return f.remote, nil
}

func (f *fakeAdapter) VerifyWebhook(http.Header, []byte) (*models.Webhook, error) {
	return nil, errors.New("not used")
}

func (f *fakeAdapter) Probe(context.Context, *models.ChannelConnection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	return f.next()
}

func (f *fakeAdapter) calls() (blocks int, availability int, prices int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.blocks), len(f.availability), len(f.prices)
}

// recordingBus captures everything the engine publishes.
type recordingBus struct {
	mu      sync.Mutex
	fail    error
	events  []models.Event
	imports []models.ImportTask
	manual  []models.ManualSyncTask
}

func (b *recordingBus) take() error {
	err := b.fail
	b.fail = nil
	return err
}

func (b *recordingBus) PublishEvent(_ context.Context, ev models.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.take(); err != nil {
		return err
	}
	b.events = append(b.events, ev)
	return nil
}

func (b *recordingBus) PublishImportTask(_ context.Context, task models.ImportTask) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.take(); err != nil {
		return err
	}
	b.imports = append(b.imports, task)
	return nil
}

func (b *recordingBus) PublishManualSync(_ context.Context, task models.ManualSyncTask) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.take(); err != nil {
		return err
	}
	b.manual = append(b.manual, task)
	return nil
}

func (b *recordingBus) failNext(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail = err
}

type staticPrices struct {
	updates []models.PriceUpdate
}

func (s staticPrices) Prices(context.Context, string, models.DateRange) ([]models.PriceUpdate, error) {
	return s.updates, nil
}

// countingLimiter counts admission requests, granted or not.
type countingLimiter struct {
	mu       sync.Mutex
	inner    adapter.RateLimiter
	acquired atomic.Int64
}

func (c *countingLimiter) Acquire(ctx context.Context, platform models.PlatformType, connectionID string) (ratelimit.Decision, error) {
	c.acquired.Add(1)
	c.mu.Lock()
	inner := c.inner
	c.mu.Unlock()
	return inner.Acquire(ctx, platform, connectionID)
}

var testNow = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

func testLimits(limit int) map[models.PlatformType]ratelimit.Limit {
	return map[models.PlatformType]ratelimit.Limit{
		models.PlatformAirbnb:     {Limit: limit, Window: time.Minute},
		models.PlatformBookingCom: {Limit: limit, Window: time.Minute},
	}
}

type testEnv struct {
	engine  *Engine
	db      *database.DB
	store   *kvstore.MemoryStore
	bus     *recordingBus
	airbnb  *fakeAdapter
	booking *fakeAdapter
	limiter *countingLimiter
	sleeps  []time.Duration
	mu      sync.Mutex
}

type envOption func(*Deps)

func withPrices(p PriceSource) envOption {
	return func(d *Deps) { d.Prices = p }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "engine.db"),
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store := kvstore.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	limiter := &countingLimiter{inner: ratelimit.New(store, testLimits(1000))}
	breakers := breaker.NewRegistry(kvstore.NewBreakerStore(store, 0), breaker.Settings{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          time.Minute,
	})

	env := &testEnv{
		db:      db,
		store:   store,
		bus:     &recordingBus{},
		airbnb:  newFakeAdapter(models.PlatformAirbnb),
		booking: newFakeAdapter(models.PlatformBookingCom),
		limiter: limiter,
	}
	deps := Deps{
		Bookings:    db.Bookings(),
		Connections: db.Connections(),
		Log:         db.Ledger(),
		Adapters:    adapter.NewRegistry(env.airbnb, env.booking),
		Guard:       adapter.NewGuard(limiter, breakers, time.Second),
		Breakers:    breakers,
		Locks:       lock.NewManager(store, time.Minute),
		Store:       store,
		Bus:         env.bus,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	env.engine = New(DefaultConfig(), deps)
	env.engine.now = func() time.Time { return testNow }
	env.engine.sleep = func(_ context.Context, d time.Duration) error {
		env.mu.Lock()
		defer env.mu.Unlock()
		env.sleeps = append(env.sleeps, d)
		return nil
	}
	return env
}

// setLimit replaces every platform's limit with limit requests per minute
// per connection and resets the admission count.
func (env *testEnv) setLimit(limit int) {
	env.limiter.mu.Lock()
	env.limiter.inner = ratelimit.New(env.store, testLimits(limit))
	env.limiter.mu.Unlock()
	env.limiter.acquired.Store(0)
}

func (env *testEnv) admissions() int64 {
	return env.limiter.acquired.Load()
}

func (env *testEnv) connect(t *testing.T, property string, platform models.PlatformType, listing string) *models.ChannelConnection {
	t.Helper()
	c := &models.ChannelConnection{
		AgencyID:          "agency-1",
		PropertyID:        property,
		Platform:          platform,
		PlatformListingID: listing,
	}
	if err := env.db.Connections().Create(context.Background(), c); err != nil {
		t.Fatalf("create connection: %v", err)
	}
	return c
}

func (env *testEnv) directBooking(t *testing.T, property, in, out string) *models.Booking {
	t.Helper()
	b := &models.Booking{
		PropertyID: property,
		Range:      models.MustDateRange(in, out),
		Status:     models.BookingConfirmed,
		Guest:      models.Guest{Name: "Grace Hopper", Email: "grace@example.com"},
		PriceCents: 60000,
		Currency:   "EUR",
	}
	if err := env.db.Bookings().Insert(context.Background(), b); err != nil {
		t.Fatalf("insert booking: %v", err)
	}
	return b
}

func (env *testEnv) reviewTasks(t *testing.T) []models.ReviewTask {
	t.Helper()
	tasks, err := env.db.Ledger().ReviewTasks(context.Background(), database.ReviewOpen, models.Page{})
	if err != nil {
		t.Fatalf("ReviewTasks: %v", err)
	}
	return tasks
}

func (env *testEnv) events() []models.Event {
	env.bus.mu.Lock()
	defer env.bus.mu.Unlock()
	return append([]models.Event(nil), env.bus.events...)
}
