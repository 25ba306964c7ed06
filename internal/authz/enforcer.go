// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package authz

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"

	"github.com/tomtom215/channelsync/internal/logging"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// EnforcerConfig holds configuration for the Casbin enforcer.
type EnforcerConfig struct {
	// PolicyPath is a casbin CSV policy replacing the embedded one.
	// If empty, uses embedded policy.
	PolicyPath string

	// ReloadInterval re-reads PolicyPath periodically. Zero disables it.
	ReloadInterval time.Duration

	// CacheTTL is how long to cache decisions. Zero disables the cache.
	CacheTTL time.Duration
}

// DefaultEnforcerConfig returns default configuration.
func DefaultEnforcerConfig() *EnforcerConfig {
	return &EnforcerConfig{
		ReloadInterval: 30 * time.Second,
		CacheTTL:       5 * time.Minute,
	}
}

// Enforcer wraps the Casbin enforcer with a decision cache.
type Enforcer struct {
	config   *EnforcerConfig
	enforcer *casbin.SyncedEnforcer
	cache    *decisionCache
	done     chan struct{}
	once     sync.Once
}

// NewEnforcer creates the authorization enforcer over the embedded model.
func NewEnforcer(config *EnforcerConfig) (*Enforcer, error) {
	if config == nil {
		config = DefaultEnforcerConfig()
	}

	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	if config.PolicyPath != "" {
		if _, statErr := os.Stat(config.PolicyPath); statErr != nil {
			return nil, fmt.Errorf("authz policy %s: %w", config.PolicyPath, statErr)
		}
		enforcer, err = casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(config.PolicyPath))
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadEmbeddedPolicy(enforcer, embeddedPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	e := &Enforcer{
		config:   config,
		enforcer: enforcer,
		done:     make(chan struct{}),
	}
	if config.CacheTTL > 0 {
		e.cache = newDecisionCache(config.CacheTTL)
	}
	if config.PolicyPath != "" && config.ReloadInterval > 0 {
		go e.reloadLoop(config.ReloadInterval)
	}

	rules, _ := enforcer.GetPolicy()
	grouping, _ := enforcer.GetGroupingPolicy()
	UpdatePolicyStats(len(rules), len(grouping))

	return e, nil
}

// loadEmbeddedPolicy parses and loads the embedded policy CSV.
func loadEmbeddedPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		ptype, rule := parts[0], parts[1:]
		switch {
		case ptype == "p" && len(rule) == 3:
			if _, err := enforcer.AddPolicy(rule[0], rule[1], rule[2]); err != nil {
				return fmt.Errorf("failed to add policy %v: %w", rule, err)
			}
		case ptype == "g" && len(rule) == 2:
			if _, err := enforcer.AddGroupingPolicy(rule[0], rule[1]); err != nil {
				return fmt.Errorf("failed to add grouping policy %v: %w", rule, err)
			}
		default:
			return fmt.Errorf("malformed policy line %q", line)
		}
	}
	return nil
}

// Enforce checks if the role can perform the action on the object.
// Objects are request paths; policy objects may use :param segments.
func (e *Enforcer) Enforce(role, object, action string) (bool, error) {
	start := time.Now()

	if e.cache != nil {
		if allowed, ok := e.cache.get(role, object, action); ok {
			RecordAuthzDecision(role, object, action, allowed, time.Since(start), true)
			return allowed, nil
		}
	}

	allowed, err := e.enforcer.Enforce(role, object, action)
	if err != nil {
		RecordAuthzError("enforce")
		return false, fmt.Errorf("enforcement failed: %w", err)
	}

	if e.cache != nil {
		e.cache.set(role, object, action, allowed)
	}
	RecordAuthzDecision(role, object, action, allowed, time.Since(start), false)

	return allowed, nil
}

// LoadPolicy re-reads the policy file and drops cached decisions.
func (e *Enforcer) LoadPolicy() error {
	if e.config.PolicyPath == "" {
		return nil
	}
	if err := e.enforcer.LoadPolicy(); err != nil {
		RecordPolicyReload(false)
		return fmt.Errorf("reload authz policy: %w", err)
	}
	RecordPolicyReload(true)
	if e.cache != nil {
		e.cache.clear()
	}
	return nil
}

func (e *Enforcer) reloadLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			if err := e.LoadPolicy(); err != nil {
				logging.Warn().Err(err).Str("path", e.config.PolicyPath).Msg("Keeping previous authz policy")
			}
		}
	}
}

// Close stops the policy reloader and cache sweeper.
func (e *Enforcer) Close() {
	e.once.Do(func() {
		close(e.done)
		if e.cache != nil {
			e.cache.stop()
		}
	})
}

// GetPolicy returns all policy rules.
func (e *Enforcer) GetPolicy() [][]string {
	//nolint:errcheck // GetPolicy only fails if enforcer is nil, which is a programming error
	policies, _ := e.enforcer.GetPolicy()
	return policies
}
