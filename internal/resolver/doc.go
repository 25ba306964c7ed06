// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

// Package resolver holds the conflict rules applied when a platform and the
// source of truth disagree. Every function is pure: it returns a Resolution
// naming the winning value and the action the engine must take, and the
// engine appends Resolution.Record to the conflict log.
package resolver
