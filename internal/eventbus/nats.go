// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package eventbus

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/channelsync/internal/config"
)

func connectOptions(role string, logger watermill.LoggerAdapter) []natsgo.Option {
	return []natsgo.Option{
		natsgo.Name("channelsync-" + role),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, watermill.LogFields{"role": role})
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"role": role, "url": nc.ConnectedUrl()})
		}),
	}
}

// NewNATSPublisher creates a JetStream publisher. The stream must already
// exist (see EnsureStream). Message UUIDs are sent as Nats-Msg-Id so the
// stream drops duplicates inside its duplicate window.
func NewNATSPublisher(url string, logger watermill.LoggerAdapter) (message.Publisher, error) {
	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: connectOptions("publisher", logger),
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create nats publisher: %w", err)
	}
	return pub, nil
}

// NewNATSSubscriber creates a durable queue subscriber bound to the
// configured stream. Acks are synchronous and JetStream redelivers a nacked
// or unacked message up to MaxDeliver times.
func NewNATSSubscriber(cfg config.NATSConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	subOpts := []natsgo.SubOpt{
		natsgo.MaxDeliver(cfg.MaxDeliver),
		natsgo.AckWait(cfg.AckWait),
		natsgo.DeliverAll(),
		natsgo.BindStream(cfg.StreamName),
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.URL,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: 1,
		AckWaitTimeout:   cfg.AckWait,
		CloseTimeout:     30 * time.Second,
		NatsOptions:      connectOptions("subscriber", logger),
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision:    false,
			AckAsync:         false,
			SubscribeOptions: subOpts,
			DurablePrefix:    cfg.DurablePrefix,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create nats subscriber: %w", err)
	}
	return sub, nil
}

// RouterConfigFrom maps the NATS section onto router settings.
func RouterConfigFrom(cfg config.NATSConfig) RouterConfig {
	rc := DefaultRouterConfig()
	rc.RetryMaxRetries = cfg.RetryMax
	if cfg.RetryInterval > 0 {
		rc.RetryInitialInterval = cfg.RetryInterval
	}
	rc.ThrottlePerSecond = cfg.ThrottlePerSecond
	return rc
}
