// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package eventbus

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/tomtom215/channelsync/internal/logging"
	"github.com/tomtom215/channelsync/internal/models"
	"github.com/tomtom215/channelsync/internal/syncerr"
)

type harness struct {
	t      *testing.T
	tr     *Transport
	bus    *Bus
	router *Router
	poison <-chan *message.Message
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	tr := NewInProcessTransport(watermill.NopLogger{})
	cfg := DefaultRouterConfig()
	cfg.RetryMaxRetries = 3
	cfg.RetryInitialInterval = time.Millisecond
	cfg.RetryMaxInterval = 5 * time.Millisecond
	cfg.CloseTimeout = time.Second

	r, err := NewRouter(&cfg, tr.Publisher, watermill.NopLogger{})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	poison, err := tr.Subscriber.Subscribe(context.Background(), TopicPoison)
	if err != nil {
		t.Fatalf("subscribe poison: %v", err)
	}
	h := &harness{t: t, tr: tr, bus: NewBus(tr.Publisher), router: r, poison: poison}
	t.Cleanup(func() {
		_ = r.Close()
		_ = tr.Close()
	})
	return h
}

func (h *harness) start() {
	h.t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.t.Cleanup(cancel)
	go func() { _ = h.router.Run(ctx) }()
	select {
	case <-h.router.Running():
	case <-time.After(5 * time.Second):
		h.t.Fatal("router did not start")
	}
}

func (h *harness) expectPoison(wantUUID string) *message.Message {
	h.t.Helper()
	select {
	case msg := <-h.poison:
		msg.Ack()
		if msg.UUID != wantUUID {
			h.t.Errorf("poisoned %s, want %s", msg.UUID, wantUUID)
		}
		return msg
	case <-time.After(5 * time.Second):
		h.t.Fatalf("message %s never reached the poison topic", wantUUID)
		return nil
	}
}

func testEvent(id string) models.Event {
	return models.Event{
		ID:         id,
		Type:       models.EventBookingConfirmed,
		PropertyID: "prop-1",
		EntityID:   "bk-1",
		Timestamp:  time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestHandleEventsDeliversTypedEvent(t *testing.T) {
	h := newHarness(t)
	got := make(chan models.Event, 1)
	var cid string
	h.router.HandleEvents("outbound", h.tr.Subscriber, func(ctx context.Context, ev models.Event) error {
		cid = logging.CorrelationIDFromContext(ctx)
		got <- ev
		return nil
	})
	h.start()

	ctx := logging.ContextWithCorrelationID(context.Background(), "req-42")
	if err := h.bus.PublishEvent(ctx, testEvent("ev-1")); err != nil {
		t.Fatalf("PublishEvent: %v", err)
	}

	select {
	case ev := <-got:
		if ev.ID != "ev-1" || ev.PropertyID != "prop-1" || ev.Type != models.EventBookingConfirmed {
			t.Errorf("event = %+v", ev)
		}
		if cid != "req-42" {
			t.Errorf("correlation id = %q, want req-42", cid)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestPermanentErrorGoesToPoisonWithoutRetry(t *testing.T) {
	h := newHarness(t)
	var calls atomic.Int32
	Handle(h.router, "import", TopicImport, h.tr.Subscriber, func(context.Context, models.ImportTask) error {
		calls.Add(1)
		return &syncerr.AdapterValidationError{Op: "fetch_booking", StatusCode: 422, Message: "unknown listing"}
	})
	h.start()

	if err := h.bus.PublishImportTask(context.Background(), models.ImportTask{ID: "task-1"}); err != nil {
		t.Fatalf("PublishImportTask: %v", err)
	}
	msg := h.expectPoison("task-1")
	if reason := msg.Metadata.Get(middleware.ReasonForPoisonedKey); reason == "" {
		t.Error("poisoned message carries no reason")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("handler called %d times, want 1", n)
	}
}

func TestTransientErrorIsRetried(t *testing.T) {
	h := newHarness(t)
	var calls atomic.Int32
	done := make(chan struct{})
	Handle(h.router, "manual", TopicManual, h.tr.Subscriber, func(context.Context, models.ManualSyncTask) error {
		if calls.Add(1) < 3 {
			return &syncerr.TransientError{Op: "push_availability", StatusCode: 503}
		}
		close(done)
		return nil
	})
	h.start()

	if err := h.bus.PublishManualSync(context.Background(), models.ManualSyncTask{BatchID: "batch-1"}); err != nil {
		t.Fatalf("PublishManualSync: %v", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("handler called %d times, never succeeded", calls.Load())
	}
	select {
	case msg := <-h.poison:
		t.Errorf("transient failure poisoned %s", msg.UUID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPanicGoesToPoison(t *testing.T) {
	h := newHarness(t)
	var calls atomic.Int32
	h.router.HandleEvents("outbound", h.tr.Subscriber, func(context.Context, models.Event) error {
		calls.Add(1)
		panic("nil map")
	})
	h.start()

	if err := h.bus.PublishEvent(context.Background(), testEvent("ev-panic")); err != nil {
		t.Fatalf("PublishEvent: %v", err)
	}
	h.expectPoison("ev-panic")
	if n := calls.Load(); n != 1 {
		t.Errorf("handler called %d times, want 1", n)
	}
}

func TestUndecodablePayloadGoesToPoison(t *testing.T) {
	h := newHarness(t)
	h.router.HandleEvents("outbound", h.tr.Subscriber, func(context.Context, models.Event) error {
		t.Error("handler must not see an undecodable payload")
		return nil
	})
	h.start()

	if err := h.tr.Publisher.Publish(TopicEvents, message.NewMessage("garbage", []byte("{not json"))); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	h.expectPoison("garbage")
}

func TestUnknownEventTypeGoesToPoison(t *testing.T) {
	h := newHarness(t)
	h.router.HandleEvents("outbound", h.tr.Subscriber, func(context.Context, models.Event) error {
		t.Error("handler must not see an unknown event type")
		return nil
	})
	h.start()

	ev := testEvent("ev-odd")
	ev.Type = "booking.teleported"
	if err := h.bus.PublishEvent(context.Background(), ev); err != nil {
		t.Fatalf("PublishEvent: %v", err)
	}
	h.expectPoison("ev-odd")
}

func TestIsPoison(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"permanent", syncerr.Permanent("bad", nil), true},
		{"auth", &syncerr.AdapterAuthError{Op: "push", StatusCode: 401}, true},
		{"panic", middleware.RecoveredPanicError{V: "boom"}, true},
		{"transient", &syncerr.TransientError{Op: "push", StatusCode: 502}, false},
		{"rate limited", &syncerr.RateLimitError{Key: "k", RetryAfter: time.Second}, false},
		{"unknown", errors.New("socket closed"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isPoison(tt.err); got != tt.want {
				t.Errorf("isPoison(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestBusClosed(t *testing.T) {
	tr := NewInProcessTransport(watermill.NopLogger{})
	bus := NewBus(tr.Publisher)
	if err := bus.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	err := bus.PublishEvent(context.Background(), testEvent("ev-late"))
	if !errors.Is(err, ErrClosed) {
		t.Errorf("PublishEvent after Close = %v, want ErrClosed", err)
	}
}

func TestInProcessSubscriberSurvivesRouterRestart(t *testing.T) {
	tr := NewInProcessTransport(watermill.NopLogger{})
	t.Cleanup(func() { _ = tr.Close() })
	bus := NewBus(tr.Publisher)

	run := func(got chan<- models.Event) (stop func()) {
		r, err := NewRouter(nil, nil, watermill.NopLogger{})
		if err != nil {
			t.Fatalf("NewRouter: %v", err)
		}
		sub, err := tr.NewSubscriber()
		if err != nil {
			t.Fatalf("NewSubscriber: %v", err)
		}
		r.HandleEvents("outbound", sub, func(_ context.Context, ev models.Event) error {
			got <- ev
			return nil
		})
		ctx, cancel := context.WithCancel(context.Background())
		go func() { _ = r.Run(ctx) }()
		select {
		case <-r.Running():
		case <-time.After(5 * time.Second):
			t.Fatal("router did not start")
		}
		return func() {
			cancel()
			_ = r.Close()
		}
	}

	first := make(chan models.Event, 1)
	stop := run(first)
	stop()

	second := make(chan models.Event, 1)
	stop = run(second)
	defer stop()

	if err := bus.PublishEvent(context.Background(), testEvent("ev-restart")); err != nil {
		t.Fatalf("PublishEvent after restart: %v", err)
	}
	select {
	case ev := <-second:
		if ev.ID != "ev-restart" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("restarted router did not receive the event")
	}
}
