// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package config

import (
	"errors"
	"fmt"

	"github.com/tomtom215/channelsync/internal/models"
	"github.com/tomtom215/channelsync/internal/validation"
)

// minJWTSecretLength matches the HS256 key size.
const minJWTSecretLength = 32

// Validate checks struct tags first, then cross-field rules.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}

	if c.Sync.MaxBackoff < c.Sync.InitialBackoff {
		return fmt.Errorf("sync.max_backoff (%s) must be >= sync.initial_backoff (%s)",
			c.Sync.MaxBackoff, c.Sync.InitialBackoff)
	}

	if c.Sync.RequestTimeout >= c.Breaker.MutexTTL {
		return fmt.Errorf("sync.request_timeout (%s) must be shorter than breaker.mutex_ttl (%s)",
			c.Sync.RequestTimeout, c.Breaker.MutexTTL)
	}

	if err := c.validateStores(); err != nil {
		return err
	}
	if err := c.validatePlatforms(); err != nil {
		return err
	}
	return c.validateSecurity()
}

func (c *Config) validateStores() error {
	if c.Ledger.Driver != "" && c.Ledger.DSN == "" {
		return fmt.Errorf("ledger.dsn is required when ledger.driver=%s", c.Ledger.Driver)
	}
	switch c.KV.Backend {
	case "badger":
		if c.KV.Path == "" {
			return errors.New("kv.path is required for the badger backend")
		}
	case "nats":
		if c.KV.NATSURL == "" && !c.NATS.Enabled {
			return errors.New("kv.nats_url is required for the nats backend when nats.enabled=false")
		}
		if c.KV.Bucket == "" {
			return errors.New("kv.bucket is required for the nats backend")
		}
	}
	return nil
}

func (c *Config) validatePlatforms() error {
	for name, p := range c.Platforms {
		if !models.PlatformType(name).Valid() {
			return fmt.Errorf("platforms.%s: unsupported platform", name)
		}
		if verr := validation.ValidateStruct(&p); verr != nil {
			return fmt.Errorf("platforms.%s: %w", name, verr)
		}
		if !p.Enabled {
			continue
		}
		if p.BaseURL == "" {
			return fmt.Errorf("platforms.%s.base_url is required when enabled", name)
		}
		if p.Limit <= 0 {
			return fmt.Errorf("platforms.%s.limit must be positive when enabled", name)
		}
		if (p.Window > 0) == (p.Unit != "") {
			return fmt.Errorf("platforms.%s: set exactly one of window or unit", name)
		}
		if p.Timeout >= c.Breaker.MutexTTL {
			return fmt.Errorf("platforms.%s.timeout (%s) must be shorter than breaker.mutex_ttl (%s)",
				name, p.Timeout, c.Breaker.MutexTTL)
		}
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if s := c.Security.JWTSecret; s != "" && len(s) < minJWTSecretLength {
		return fmt.Errorf("security.jwt_secret must be at least %d characters", minJWTSecretLength)
	}
	if c.Security.JWTSecret != "" && c.Security.TokenTTL <= 0 {
		return errors.New("security.token_ttl must be positive when jwt_secret is set")
	}
	if len(c.EnabledPlatforms()) > 0 && c.Security.CredentialKey == "" {
		return errors.New("security.credential_key is required when any platform is enabled")
	}
	if c.Security.WebhookRateLimit > 0 && c.Security.WebhookRateWindow <= 0 {
		return errors.New("security.webhook_rate_window must be positive when webhook_rate_limit is set")
	}
	return nil
}
