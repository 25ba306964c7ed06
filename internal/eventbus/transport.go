// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package eventbus

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/channelsync/internal/config"
	"github.com/tomtom215/channelsync/internal/logging"
)

// Transport bundles the publisher and subscriber the service runs on.
// JetStream is non-nil only for the NATS transport and is shared with the
// NATS key-value store.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	JetStream  jetstream.JetStream

	conn     *natsgo.Conn
	embedded *EmbeddedServer
	subCfg   *config.NATSConfig
	logger   watermill.LoggerAdapter
}

// NewInProcessTransport returns a gochannel transport. Messages are lost on
// restart, so it is meant for tests and development only.
func NewInProcessTransport(logger watermill.LoggerAdapter) *Transport {
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
		Persistent:          false,
	}, logger)
	return &Transport{Publisher: ch, Subscriber: ch, logger: logger}
}

// OpenTransport builds the transport described by cfg. With nats.enabled
// false it falls back to the in-process transport.
func OpenTransport(ctx context.Context, cfg config.NATSConfig) (*Transport, error) {
	logger := logging.NewWatermillLogger("eventbus")
	if !cfg.Enabled {
		logging.Warn().Msg("NATS disabled, using in-process event bus; queued work does not survive restarts")
		return NewInProcessTransport(logger), nil
	}

	t := &Transport{logger: logger}
	url := cfg.URL
	if cfg.Embedded {
		srv, err := NewEmbeddedServer(EmbeddedOptions{Port: -1, StoreDir: cfg.StoreDir, Quiet: true})
		if err != nil {
			return nil, err
		}
		t.embedded = srv
		url = srv.ClientURL()
		logging.Info().Str("url", url).Str("store_dir", cfg.StoreDir).Msg("Embedded NATS server started")
	}

	nc, err := natsgo.Connect(url, natsgo.Name("channelsync-admin"))
	if err != nil {
		t.Close()
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	t.conn = nc

	js, err := jetstream.New(nc)
	if err != nil {
		t.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	t.JetStream = js

	if _, err := EnsureStream(ctx, js, cfg.StreamName); err != nil {
		t.Close()
		return nil, err
	}

	if t.Publisher, err = NewNATSPublisher(url, logger); err != nil {
		t.Close()
		return nil, err
	}
	subCfg := cfg
	subCfg.URL = url
	t.subCfg = &subCfg
	if t.Subscriber, err = NewNATSSubscriber(subCfg, logger); err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}

// NewSubscriber returns a subscriber for one router run. A watermill router
// closes its subscribers when it stops, so a restarted router needs a new
// one. The in-process subscriber is shared and survives the router's Close.
func (t *Transport) NewSubscriber() (message.Subscriber, error) {
	if t.subCfg != nil {
		return NewNATSSubscriber(*t.subCfg, t.logger)
	}
	return keepOpen{t.Subscriber}, nil
}

// keepOpen ignores Close so the gochannel behind it outlives a router.
type keepOpen struct {
	message.Subscriber
}

func (keepOpen) Close() error { return nil }

// Close releases everything the transport opened. The gochannel transport
// shares one value for both sides, so it is closed once.
func (t *Transport) Close() error {
	var errs []error
	if t.Subscriber != nil {
		errs = append(errs, t.Subscriber.Close())
	}
	if t.Publisher != nil && any(t.Publisher) != any(t.Subscriber) {
		errs = append(errs, t.Publisher.Close())
	}
	if t.conn != nil {
		t.conn.Close()
	}
	if t.embedded != nil {
		errs = append(errs, t.embedded.Shutdown(context.Background()))
	}
	return errors.Join(errs...)
}
