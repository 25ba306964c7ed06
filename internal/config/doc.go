// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

/*
Package config loads and validates channelsync configuration.

Configuration is layered with koanf v2, lowest priority first:

 1. Built-in defaults (defaultConfig)
 2. An optional YAML file, from CONFIG_PATH or DefaultConfigPaths
 3. Environment variables, through an explicit name mapping

Per-platform settings use PLATFORM_<NAME>_<KEY>, for example:

	PLATFORM_AIRBNB_ENABLED=true
	PLATFORM_AIRBNB_BASE_URL=https://api.airbnb.example
	PLATFORM_AIRBNB_LIMIT=10
	PLATFORM_AIRBNB_UNIT=second
	PLATFORM_BOOKING_COM_LIMIT=20
	PLATFORM_BOOKING_COM_WINDOW=1m

A platform rate limit is a limit plus exactly one of window or unit.
The rate limiter normalizes both forms to a single (limit, window) pair.

Example YAML:

	database:
	  driver: postgres
	  dsn: postgres://sync:secret@db:5432/channelsync?sslmode=disable
	kv:
	  backend: nats
	  bucket: channelsync
	platforms:
	  vrbo:
	    enabled: true
	    base_url: https://api.vrbo.example
	    limit: 60
	    unit: minute
*/
package config
