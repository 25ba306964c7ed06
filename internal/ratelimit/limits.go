// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package ratelimit

import (
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/channelsync/internal/models"
)

// Limit allows Limit requests per sliding Window.
type Limit struct {
	Limit  int
	Window time.Duration
}

// String renders the limit as "10/1s".
func (l Limit) String() string {
	return fmt.Sprintf("%d/%s", l.Limit, l.Window)
}

// PlatformLimit pairs a platform with its normalized limit.
type PlatformLimit struct {
	Platform models.PlatformType
	Limit    Limit
}

var units = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
}

// Normalize turns a configured limit into a single (limit, window) pair.
// Exactly one of window or unit must be given; platforms document quotas in
// mixed units and guessing between them is how quotas get violated.
func Normalize(limit int, window time.Duration, unit string) (Limit, error) {
	if limit <= 0 {
		return Limit{}, fmt.Errorf("limit must be positive, got %d", limit)
	}
	switch {
	case window > 0 && unit != "":
		return Limit{}, errors.New("set either window or unit, not both")
	case window > 0:
		return Limit{Limit: limit, Window: window}, nil
	case unit != "":
		d, ok := units[unit]
		if !ok {
			return Limit{}, fmt.Errorf("unknown unit %q (want second, minute or hour)", unit)
		}
		return Limit{Limit: limit, Window: d}, nil
	default:
		return Limit{}, errors.New("one of window or unit is required")
	}
}
