// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

// Package logging provides the process-wide zerolog logger for channelsync.
//
// Every component logs through this package so that sync dispatches, webhook
// imports and supervisor events share one structured JSON stream.
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//
//	logging.Info().Str("connection_id", id).Msg("Connection tested")
//	logging.Ctx(ctx).Warn().Err(err).Msg("Outbound push failed")
//
// # Correlation
//
// The HTTP layer stores a request ID and the event bus stores a correlation
// ID (the event ID) in the context. Ctx adds both fields when present, so a
// single booking event can be followed from webhook to every platform push.
//
// # Bridges
//
// NewSlogLogger adapts the global logger to log/slog for sutureslog, and
// NewWatermillLogger adapts it to watermill.LoggerAdapter for the event
// router, publisher and subscriber.
package logging
