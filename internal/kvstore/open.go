// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package kvstore

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// Options selects and configures a backend.
type Options struct {
	Backend string // memory, badger or nats
	Path    string // badger directory
	Bucket  string // NATS KV bucket
	NATSURL string // dial this URL when JS is nil
}

// Open builds the configured backend. For the nats backend an existing
// JetStream context is reused when js is non-nil.
func Open(ctx context.Context, opts Options, js jetstream.JetStream) (Store, error) {
	switch opts.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "badger":
		return OpenBadger(opts.Path)
	case "nats":
		if js != nil {
			return NewNATSStore(ctx, js, opts.Bucket)
		}
		return ConnectNATS(ctx, opts.NATSURL, opts.Bucket)
	default:
		return nil, fmt.Errorf("kvstore: unknown backend %q", opts.Backend)
	}
}
