// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package authz

import (
	"testing"
	"time"
)

func TestDecisionCache_SetAndGet(t *testing.T) {
	cache := newDecisionCache(time.Minute)
	defer cache.stop()

	if _, ok := cache.get("viewer", "/api/v1/batches/b-1", "read"); ok {
		t.Error("empty cache returned a decision")
	}

	cache.set("viewer", "/api/v1/batches/b-1", "read", true)
	cache.set("viewer", "/api/v1/batches/b-1", "write", false)

	if allowed, ok := cache.get("viewer", "/api/v1/batches/b-1", "read"); !ok || !allowed {
		t.Errorf("read = %v, %v; want allowed", allowed, ok)
	}
	if allowed, ok := cache.get("viewer", "/api/v1/batches/b-1", "write"); !ok || allowed {
		t.Errorf("write = %v, %v; want cached denial", allowed, ok)
	}
	if _, ok := cache.get("operator", "/api/v1/batches/b-1", "read"); ok {
		t.Error("decision leaked across roles")
	}
}

func TestDecisionCache_Expiry(t *testing.T) {
	cache := newDecisionCache(20 * time.Millisecond)
	defer cache.stop()

	cache.set("viewer", "/api/v1/ws/sync", "read", true)
	time.Sleep(30 * time.Millisecond)

	if _, ok := cache.get("viewer", "/api/v1/ws/sync", "read"); ok {
		t.Error("expired decision returned")
	}

	deadline := time.Now().Add(time.Second)
	for cache.len() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := cache.len(); n != 0 {
		t.Errorf("sweeper left %d entries", n)
	}
}

func TestDecisionCache_Clear(t *testing.T) {
	cache := newDecisionCache(time.Minute)
	defer cache.stop()

	cache.set("viewer", "/a", "read", true)
	cache.set("operator", "/b", "write", true)
	cache.clear()
	if n := cache.len(); n != 0 {
		t.Errorf("len after clear = %d", n)
	}
}

func TestDecisionCache_StopIsIdempotent(t *testing.T) {
	cache := newDecisionCache(time.Minute)
	cache.stop()
	cache.stop()
}
