// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/channelsync/internal/models"
)

// DefaultConfigPaths lists the config file locations searched in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/channelsync/config.yaml",
	"/etc/channelsync/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			Driver:       "sqlite",
			DSN:          "/data/channelsync.db",
			MaxOpenConns: 10,
		},
		KV: KVConfig{
			Backend: "badger",
			Path:    "/data/kv",
			Bucket:  "channelsync",
		},
		NATS: NATSConfig{
			Enabled:           true,
			URL:               "nats://127.0.0.1:4222",
			Embedded:          true,
			StoreDir:          "/data/nats/jetstream",
			StreamName:        "CHANNELSYNC",
			DurablePrefix:     "channelsync",
			QueueGroup:        "sync-workers",
			MaxDeliver:        10,
			AckWait:           30 * time.Second,
			RetryMax:          3,
			RetryInterval:     500 * time.Millisecond,
			ThrottlePerSecond: 0,
		},
		Sync: SyncConfig{
			MaxAttempts:       3,
			InitialBackoff:    200 * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			RequestTimeout:    10 * time.Second,
			FanoutConcurrency: 8,
			LockTTL:           300 * time.Second,
			IdempotencyTTL:    24 * time.Hour,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          60 * time.Second,
			MutexTTL:         30 * time.Second,
		},
		Reconcile: ReconcileConfig{
			Enabled:            true,
			Interval:           6 * time.Hour,
			WindowDays:         90,
			AlertThresholdDays: 10,
		},
		Security: SecurityConfig{
			TokenTTL:          24 * time.Hour,
			CORSOrigins:       []string{"*"},
			WebhookRateLimit:  300,
			WebhookRateWindow: time.Minute,
		},
	}
}

// defaultPlatformLimits apply to a platform whose config names no limit.
// They are filled in after unmarshalling so that a file or env var setting
// window never collides with a default unit.
var defaultPlatformLimits = map[models.PlatformType]PlatformConfig{
	models.PlatformAirbnb:     {Limit: 10, Unit: "second"},
	models.PlatformBookingCom: {Limit: 20, Unit: "minute"},
	models.PlatformVrbo:       {Limit: 60, Unit: "minute"},
	models.PlatformExpedia:    {Limit: 5, Unit: "second"},
}

const defaultPlatformTimeout = 10 * time.Second

func applyPlatformDefaults(cfg *Config) {
	if cfg.Platforms == nil {
		cfg.Platforms = make(map[string]PlatformConfig, len(models.Platforms))
	}
	for _, p := range models.Platforms {
		pc := cfg.Platforms[string(p)]
		if pc.Limit == 0 && pc.Window == 0 && pc.Unit == "" {
			def := defaultPlatformLimits[p]
			pc.Limit, pc.Unit = def.Limit, def.Unit
		}
		if pc.Timeout == 0 {
			pc.Timeout = defaultPlatformTimeout
		}
		cfg.Platforms[string(p)] = pc
	}
}

// Load reads configuration from, in increasing priority:
//  1. built-in defaults
//  2. an optional YAML file (CONFIG_PATH or DefaultConfigPaths)
//  3. environment variables
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	applyPlatformDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields splits comma-separated env values for slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"database_driver":         "database.driver",
	"database_dsn":            "database.dsn",
	"database_max_open_conns": "database.max_open_conns",
	"ledger_driver":           "ledger.driver",
	"ledger_dsn":              "ledger.dsn",

	"kv_backend":  "kv.backend",
	"kv_path":     "kv.path",
	"kv_bucket":   "kv.bucket",
	"kv_nats_url": "kv.nats_url",

	"nats_enabled":            "nats.enabled",
	"nats_url":                "nats.url",
	"nats_embedded":           "nats.embedded",
	"nats_store_dir":          "nats.store_dir",
	"nats_stream_name":        "nats.stream_name",
	"nats_durable_prefix":     "nats.durable_prefix",
	"nats_queue_group":        "nats.queue_group",
	"nats_max_deliver":        "nats.max_deliver",
	"nats_ack_wait":           "nats.ack_wait",
	"nats_router_retry_count": "nats.retry_max",
	"nats_router_retry_delay": "nats.retry_interval",
	"nats_router_throttle":    "nats.throttle_per_second",

	"sync_max_attempts":       "sync.max_attempts",
	"sync_initial_backoff":    "sync.initial_backoff",
	"sync_max_backoff":        "sync.max_backoff",
	"sync_request_timeout":    "sync.request_timeout",
	"sync_fanout_concurrency": "sync.fanout_concurrency",
	"sync_lock_ttl":           "sync.lock_ttl",
	"sync_idempotency_ttl":    "sync.idempotency_ttl",

	"breaker_failure_threshold": "breaker.failure_threshold",
	"breaker_success_threshold": "breaker.success_threshold",
	"breaker_timeout":           "breaker.timeout",
	"breaker_mutex_ttl":         "breaker.mutex_ttl",

	"reconcile_enabled":              "reconcile.enabled",
	"reconcile_interval":             "reconcile.interval",
	"reconcile_window_days":          "reconcile.window_days",
	"reconcile_alert_threshold_days": "reconcile.alert_threshold_days",

	"jwt_secret":          "security.jwt_secret",
	"token_ttl":           "security.token_ttl",
	"authz_policy":        "security.authz_policy",
	"cors_origins":        "security.cors_origins",
	"webhook_rate_limit":  "security.webhook_rate_limit",
	"webhook_rate_window": "security.webhook_rate_window",
	"credential_key":      "security.credential_key",
}

// platformEnvKeys are the per-platform settings reachable as
// PLATFORM_<NAME>_<KEY>, e.g. PLATFORM_BOOKING_COM_WEBHOOK_SECRET.
var platformEnvKeys = []string{"enabled", "base_url", "webhook_secret", "limit", "window", "unit", "timeout"}

// envTransformFunc maps environment variable names to koanf paths.
// Unknown variables map to "" and are skipped.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)
	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	if rest, ok := strings.CutPrefix(key, "platform_"); ok {
		for _, p := range models.Platforms {
			suffix, found := strings.CutPrefix(rest, string(p)+"_")
			if !found {
				continue
			}
			for _, field := range platformEnvKeys {
				if suffix == field {
					return "platforms." + string(p) + "." + field
				}
			}
		}
	}
	return ""
}
