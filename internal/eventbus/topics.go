// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package eventbus

// Topics. Each is a JetStream subject captured by the sync stream.
const (
	// TopicEvents carries models.Event for the outbound path.
	TopicEvents = "sync.events"
	// TopicImport carries models.ImportTask for the inbound path.
	TopicImport = "sync.import"
	// TopicManual carries models.ManualSyncTask.
	TopicManual = "sync.manual"
	// TopicPoison receives messages that failed permanently.
	TopicPoison = "channelsync.poison"
)

// StreamSubjects are the subjects the JetStream stream must capture.
var StreamSubjects = []string{"sync.>", TopicPoison}

// Metadata keys set on published messages.
const (
	MetaCorrelationID = "correlation_id"
	MetaType          = "type"
	MetaPropertyID    = "property_id"
	MetaConnectionID  = "connection_id"
)
