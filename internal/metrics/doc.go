// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

/*
Package metrics provides Prometheus metrics for the sync engine.

All collectors are registered on the default registry through promauto and
exposed at /metrics:

	curl http://localhost:8080/metrics

# Sync engine

  - channelsync_sync_operations_total{platform,operation,direction,status}
  - channelsync_sync_operation_duration_seconds{platform,operation}
  - channelsync_sync_retries_total{platform}
  - channelsync_fanout_connections (histogram of targets per event)

# Admission control

  - channelsync_ratelimit_decisions_total{platform,decision}
  - channelsync_ratelimit_store_errors_total
  - channelsync_breaker_state{name} (0=closed, 1=half-open, 2=open)
  - channelsync_breaker_transitions_total{platform,from,to}
  - channelsync_lock_acquisitions_total{result}

# Inbound and reconciliation

  - channelsync_webhooks_total{platform,result}
  - channelsync_conflicts_total{type,resolution}
  - channelsync_drift_mismatches{platform} (mismatched days)
  - channelsync_drift_alerts_total{platform}

# Infrastructure

  - channelsync_db_query_duration_seconds{operation,table}
  - channelsync_http_requests_total{method,endpoint,status}
  - channelsync_eventbus_messages_total{topic,result}
  - channelsync_websocket_connections

Callers use the Record* helpers rather than the collectors directly.
*/
package metrics
