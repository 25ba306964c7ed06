// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/channelsync/internal/metrics"
	"github.com/tomtom215/channelsync/internal/models"
)

// ErrClosed is returned when publishing on a closed bus.
var ErrClosed = errors.New("event bus closed")

// Bus publishes typed domain messages on a Watermill publisher. The
// publisher is NATS JetStream in production and gochannel in tests.
type Bus struct {
	pub    message.Publisher
	mu     sync.RWMutex
	closed bool
}

// NewBus wraps pub.
func NewBus(pub message.Publisher) *Bus {
	return &Bus{pub: pub}
}

func (b *Bus) publish(topic string, msg *message.Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	if err := b.pub.Publish(topic, msg); err != nil {
		metrics.RecordEventBus(topic, "error")
		return fmt.Errorf("publish %s to %s: %w", msg.UUID, topic, err)
	}
	metrics.RecordEventBus(topic, "published")
	return nil
}

// PublishEvent publishes an internal domain event for the outbound path.
func (b *Bus) PublishEvent(ctx context.Context, ev models.Event) error {
	msg, err := newMessage(ctx, ev.ID, ev)
	if err != nil {
		return err
	}
	msg.Metadata.Set(MetaType, string(ev.Type))
	msg.Metadata.Set(MetaPropertyID, ev.PropertyID)
	return b.publish(TopicEvents, msg)
}

// PublishImportTask queues a platform booking import.
func (b *Bus) PublishImportTask(ctx context.Context, task models.ImportTask) error {
	msg, err := newMessage(ctx, task.ID, task)
	if err != nil {
		return err
	}
	msg.Metadata.Set(MetaConnectionID, task.ConnectionID)
	return b.publish(TopicImport, msg)
}

// PublishManualSync queues an operator-triggered sync.
func (b *Bus) PublishManualSync(ctx context.Context, task models.ManualSyncTask) error {
	msg, err := newMessage(ctx, task.BatchID, task)
	if err != nil {
		return err
	}
	msg.Metadata.Set(MetaConnectionID, task.ConnectionID)
	return b.publish(TopicManual, msg)
}

// Close closes the underlying publisher.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.pub.Close()
}
