// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

// Package adapter defines the capability interface every booking platform
// implements, and the Guard that every outbound platform call goes through.
//
// New platforms are added by implementing Adapter and registering it, never
// by branching on the platform type. The rest subpackage is the reference
// implementation.
//
// Call path:
//
//	engine -> Guard.Do -> ratelimit.Limiter.Acquire
//	                   -> breaker.Registry.Execute -> Adapter method (with timeout)
package adapter
