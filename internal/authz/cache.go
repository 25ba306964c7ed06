// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package authz

import (
	"sync"
	"time"
)

// decisionCache memoizes (role, path, action) decisions. Paths carry
// connection and batch ids, so entries expire and a sweeper bounds growth.
type decisionCache struct {
	ttl      time.Duration
	mu       sync.RWMutex
	items    map[string]decision
	stopChan chan struct{}
	stopOnce sync.Once
}

type decision struct {
	allowed   bool
	expiresAt time.Time
}

func newDecisionCache(ttl time.Duration) *decisionCache {
	c := &decisionCache{
		ttl:      ttl,
		items:    make(map[string]decision),
		stopChan: make(chan struct{}),
	}
	go c.sweep()
	return c
}

func decisionKey(role, object, action string) string {
	return role + "|" + action + "|" + object
}

func (c *decisionCache) get(role, object, action string) (allowed, ok bool) {
	c.mu.RLock()
	d, found := c.items[decisionKey(role, object, action)]
	c.mu.RUnlock()

	if !found || time.Now().After(d.expiresAt) {
		RecordAuthzCacheMiss()
		return false, false
	}
	RecordAuthzCacheHit()
	return d.allowed, true
}

func (c *decisionCache) set(role, object, action string, allowed bool) {
	c.mu.Lock()
	c.items[decisionKey(role, object, action)] = decision{allowed: allowed, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *decisionCache) clear() {
	c.mu.Lock()
	c.items = make(map[string]decision)
	c.mu.Unlock()
}

func (c *decisionCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *decisionCache) sweep() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for key, d := range c.items {
				if now.After(d.expiresAt) {
					delete(c.items, key)
				}
			}
			size := len(c.items)
			c.mu.Unlock()
			UpdateAuthzCacheSize(size)
		}
	}
}

// stop is idempotent.
func (c *decisionCache) stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}
