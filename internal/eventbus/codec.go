// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package eventbus

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/tomtom215/channelsync/internal/logging"
)

// newMessage encodes v as the payload of a message with the given UUID. The
// UUID doubles as the JetStream Nats-Msg-Id, so republishing the same id
// inside the stream's duplicate window is dropped by the server.
func newMessage(ctx context.Context, id string, v any) (*message.Message, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message %s: %w", id, err)
	}
	msg := message.NewMessage(id, payload)
	if cid := logging.CorrelationIDFromContext(ctx); cid != "" {
		msg.Metadata.Set(MetaCorrelationID, cid)
	}
	return msg, nil
}

// decode unmarshals a message payload.
func decode[T any](msg *message.Message) (T, error) {
	var v T
	if err := json.Unmarshal(msg.Payload, &v); err != nil {
		return v, fmt.Errorf("decode message %s: %w", msg.UUID, err)
	}
	return v, nil
}

// messageContext carries the publisher's correlation id into the handler.
func messageContext(msg *message.Message) context.Context {
	ctx := msg.Context()
	cid := msg.Metadata.Get(MetaCorrelationID)
	if cid == "" {
		cid = msg.UUID
	}
	return logging.ContextWithCorrelationID(ctx, cid)
}
