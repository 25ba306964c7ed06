// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/channelsync/internal/config"
	"github.com/tomtom215/channelsync/internal/models"
)

func TestNATSTransportRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("starts an embedded NATS server")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tr, err := OpenTransport(ctx, config.NATSConfig{
		Enabled:       true,
		Embedded:      true,
		StoreDir:      t.TempDir(),
		StreamName:    "CHANNELSYNC_TEST",
		DurablePrefix: "test",
		QueueGroup:    "workers",
		MaxDeliver:    3,
		AckWait:       5 * time.Second,
	})
	if err != nil {
		t.Fatalf("OpenTransport: %v", err)
	}
	defer tr.Close()

	// Re-running EnsureStream must update in place.
	if _, err := EnsureStream(ctx, tr.JetStream, "CHANNELSYNC_TEST"); err != nil {
		t.Fatalf("EnsureStream twice: %v", err)
	}

	bus := NewBus(tr.Publisher)
	ev := testEvent("ev-nats-1")
	for i := 0; i < 2; i++ {
		if err := bus.PublishEvent(ctx, ev); err != nil {
			t.Fatalf("PublishEvent #%d: %v", i, err)
		}
	}

	stream, err := tr.JetStream.Stream(ctx, "CHANNELSYNC_TEST")
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	info, err := stream.Info(ctx)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.State.Msgs != 1 {
		t.Errorf("stream holds %d messages, want 1 after duplicate publish", info.State.Msgs)
	}

	cfg := RouterConfigFrom(config.NATSConfig{RetryMax: 1, RetryInterval: 10 * time.Millisecond})
	r, err := NewRouter(&cfg, tr.Publisher, nil)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	got := make(chan models.Event, 2)
	r.HandleEvents("outbound", tr.Subscriber, func(_ context.Context, ev models.Event) error {
		got <- ev
		return nil
	})
	go func() { _ = r.Run(ctx) }()
	defer r.Close()

	select {
	case ev := <-got:
		if ev.ID != "ev-nats-1" {
			t.Errorf("received %s", ev.ID)
		}
	case <-ctx.Done():
		t.Fatal("event not delivered over NATS")
	}
}
