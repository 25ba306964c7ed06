// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/channelsync/internal/models"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig              `koanf:"server"`
	Logging   LoggingConfig             `koanf:"logging"`
	Database  DatabaseConfig            `koanf:"database"`
	Ledger    LedgerConfig              `koanf:"ledger"`
	KV        KVConfig                  `koanf:"kv"`
	NATS      NATSConfig                `koanf:"nats"`
	Sync      SyncConfig                `koanf:"sync"`
	Breaker   BreakerConfig             `koanf:"breaker"`
	Reconcile ReconcileConfig           `koanf:"reconcile"`
	Security  SecurityConfig            `koanf:"security"`
	Platforms map[string]PlatformConfig `koanf:"platforms"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// Addr returns host:port for net.Listen.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// DatabaseConfig selects the source-of-truth database.
type DatabaseConfig struct {
	Driver       string `koanf:"driver" validate:"oneof=postgres sqlite"`
	DSN          string `koanf:"dsn" validate:"required"`
	MaxOpenConns int    `koanf:"max_open_conns" validate:"gte=0"`
}

// LedgerConfig optionally moves the sync log and conflict records to a
// separate analytical store. An empty driver keeps them in the main database.
type LedgerConfig struct {
	Driver string `koanf:"driver" validate:"omitempty,oneof=duckdb"`
	DSN    string `koanf:"dsn"`
}

// KVConfig selects the shared state store used by the rate limiter,
// circuit breaker, lock manager and idempotency cache.
type KVConfig struct {
	Backend string `koanf:"backend" validate:"oneof=memory badger nats"`
	Path    string `koanf:"path"`
	Bucket  string `koanf:"bucket"`
	NATSURL string `koanf:"nats_url"`
}

// NATSConfig holds event bus settings.
type NATSConfig struct {
	Enabled           bool          `koanf:"enabled"`
	URL               string        `koanf:"url"`
	Embedded          bool          `koanf:"embedded"`
	StoreDir          string        `koanf:"store_dir"`
	StreamName        string        `koanf:"stream_name"`
	DurablePrefix     string        `koanf:"durable_prefix"`
	QueueGroup        string        `koanf:"queue_group"`
	MaxDeliver        int           `koanf:"max_deliver" validate:"gte=1"`
	AckWait           time.Duration `koanf:"ack_wait" validate:"gt=0"`
	RetryMax          int           `koanf:"retry_max" validate:"gte=0"`
	RetryInterval     time.Duration `koanf:"retry_interval"`
	ThrottlePerSecond int64         `koanf:"throttle_per_second" validate:"gte=0"`
}

// SyncConfig tunes the sync engine.
type SyncConfig struct {
	MaxAttempts       int           `koanf:"max_attempts" validate:"gte=1,lte=10"`
	InitialBackoff    time.Duration `koanf:"initial_backoff" validate:"gt=0"`
	MaxBackoff        time.Duration `koanf:"max_backoff" validate:"gt=0"`
	RequestTimeout    time.Duration `koanf:"request_timeout" validate:"gt=0"`
	FanoutConcurrency int           `koanf:"fanout_concurrency" validate:"gte=1"`
	LockTTL           time.Duration `koanf:"lock_ttl" validate:"gt=0"`
	IdempotencyTTL    time.Duration `koanf:"idempotency_ttl" validate:"gt=0"`
}

// BreakerConfig tunes the per-connection circuit breaker.
type BreakerConfig struct {
	FailureThreshold uint32        `koanf:"failure_threshold" validate:"gte=1"`
	SuccessThreshold uint32        `koanf:"success_threshold" validate:"gte=1"`
	Timeout          time.Duration `koanf:"timeout" validate:"gt=0"`
	// MutexTTL bounds how long the shared breaker lock outlives a crashed
	// holder. The lock is held for a whole adapter call, so every request
	// timeout must be shorter.
	MutexTTL time.Duration `koanf:"mutex_ttl" validate:"gt=0"`
}

// ReconcileConfig tunes the availability drift job.
type ReconcileConfig struct {
	Enabled            bool          `koanf:"enabled"`
	Interval           time.Duration `koanf:"interval" validate:"gt=0"`
	WindowDays         int           `koanf:"window_days" validate:"gte=1,lte=730"`
	AlertThresholdDays int           `koanf:"alert_threshold_days" validate:"gte=1"`
}

// SecurityConfig holds API and credential settings.
type SecurityConfig struct {
	JWTSecret         string        `koanf:"jwt_secret"`
	TokenTTL          time.Duration `koanf:"token_ttl"`
	AuthzPolicy       string        `koanf:"authz_policy"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	WebhookRateLimit  int           `koanf:"webhook_rate_limit" validate:"gte=0"`
	WebhookRateWindow time.Duration `koanf:"webhook_rate_window"`
	CredentialKey     string        `koanf:"credential_key"`
}

// PlatformConfig configures one booking platform.
//
// Rate limits are written as a limit plus exactly one of Window (any
// duration) or Unit (second, minute, hour).
type PlatformConfig struct {
	Enabled       bool          `koanf:"enabled"`
	BaseURL       string        `koanf:"base_url" validate:"omitempty,url"`
	WebhookSecret string        `koanf:"webhook_secret"`
	Limit         int           `koanf:"limit" validate:"gte=0"`
	Window        time.Duration `koanf:"window"`
	Unit          string        `koanf:"unit" validate:"omitempty,oneof=second minute hour"`
	Timeout       time.Duration `koanf:"timeout"`
}

// EnabledPlatforms returns the enabled platform names in sorted order.
func (c *Config) EnabledPlatforms() []models.PlatformType {
	out := make([]models.PlatformType, 0, len(c.Platforms))
	for name, p := range c.Platforms {
		if p.Enabled {
			out = append(out, models.PlatformType(name))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
