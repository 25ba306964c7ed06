// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

/*
Package eventbus moves sync work between the API and the workers on
Watermill, backed by NATS JetStream in production.

# Topics

  - sync.events: models.Event, consumed by the outbound fan-out
  - sync.import: models.ImportTask, queued by webhook ingress
  - sync.manual: models.ManualSyncTask, queued by the manual sync endpoint
  - channelsync.poison: messages that failed permanently

# Delivery

Delivery is at least once. Message UUIDs are the domain ids (event id,
import task id, batch id) and are sent as Nats-Msg-Id, so the stream drops
republished duplicates inside DuplicateWindow. Handlers must be idempotent
past that window.

A handler error is classified with syncerr. Permanent errors and panics go
to the poison topic and are acked. Everything else is retried in process
with exponential backoff, then nacked so JetStream redelivers up to
nats.max_deliver times.

# Usage

	t, err := eventbus.OpenTransport(ctx, cfg.NATS)
	bus := eventbus.NewBus(t.Publisher)
	rc := eventbus.RouterConfigFrom(cfg.NATS)
	r, err := eventbus.NewRouter(&rc, t.Publisher, nil)
	r.HandleEvents("outbound", t.Subscriber, engine.HandleEvent)
	eventbus.Handle(r, "import", eventbus.TopicImport, t.Subscriber, engine.ImportBooking)
	go r.Run(ctx)
*/
package eventbus
