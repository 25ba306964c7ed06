// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "channelsync"

var (
	// Sync engine
	SyncOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_operations_total",
			Help:      "Finished sync operations by outcome",
		},
		[]string{"platform", "operation", "direction", "status"},
	)

	SyncOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_operation_duration_seconds",
			Help:      "Wall time of a sync operation including retries",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"platform", "operation"},
	)

	SyncRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_retries_total",
			Help:      "Adapter call retries within an outbound dispatch",
		},
		[]string{"platform"},
	)

	FanoutConnections = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fanout_connections",
			Help:      "Target connections per outbound event",
			Buckets:   []float64{0, 1, 2, 3, 4, 6, 8},
		},
	)

	// Admission control
	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_decisions_total",
			Help:      "Rate limiter admissions by decision",
		},
		[]string{"platform", "decision"},
	)

	RateLimitStoreErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_store_errors_total",
			Help:      "Admissions denied because the shared store was unreachable",
		},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	BreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions",
		},
		[]string{"platform", "from", "to"},
	)

	LockAcquisitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_acquisitions_total",
			Help:      "Booking lock attempts by result (acquired, conflict, error)",
		},
		[]string{"result"},
	)

	// Inbound and reconciliation
	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_total",
			Help:      "Webhook deliveries by result (accepted, duplicate, rejected)",
		},
		[]string{"platform", "result"},
	)

	ConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_total",
			Help:      "Conflict resolver outcomes",
		},
		[]string{"type", "resolution"},
	)

	DriftDays = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "drift_mismatches",
			Help:      "Mismatched availability days found by the last reconciliation",
		},
		[]string{"platform"},
	)

	DriftAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drift_alerts_total",
			Help:      "Reconciliations whose drift exceeded the alert threshold",
		},
		[]string{"platform"},
	)

	// Infrastructure
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Duration of database queries in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_query_errors_total",
			Help:      "Failed database queries",
		},
		[]string{"operation", "table"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_active_requests",
			Help:      "In-flight HTTP requests",
		},
	)

	EventBusMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "eventbus_messages_total",
			Help:      "Event bus messages by topic and result (published, handled, failed, poisoned)",
		},
		[]string{"topic", "result"},
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections",
			Help:      "Connected sync stream clients",
		},
	)
)

// RecordSyncOperation records a finished operation.
func RecordSyncOperation(platform, operation, direction, status string, duration time.Duration) {
	SyncOperationsTotal.WithLabelValues(platform, operation, direction, status).Inc()
	SyncOperationDuration.WithLabelValues(platform, operation).Observe(duration.Seconds())
}

// RecordSyncRetry counts one retry.
func RecordSyncRetry(platform string) {
	SyncRetries.WithLabelValues(platform).Inc()
}

// RecordFanout observes the number of target connections for one event.
func RecordFanout(n int) {
	FanoutConnections.Observe(float64(n))
}

// RecordRateLimit records an admission decision.
func RecordRateLimit(platform string, allowed bool) {
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	RateLimitDecisions.WithLabelValues(platform, decision).Inc()
}

// RecordRateLimitStoreError counts a fail-closed denial.
func RecordRateLimitStoreError() {
	RateLimitStoreErrors.Inc()
}

// SetBreakerState publishes the state of breaker name (0, 1 or 2).
func SetBreakerState(name string, state int) {
	BreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordBreakerTransition counts a state change.
func RecordBreakerTransition(platform, from, to string) {
	BreakerTransitions.WithLabelValues(platform, from, to).Inc()
}

// RecordLock records a booking lock attempt.
func RecordLock(result string) {
	LockAcquisitions.WithLabelValues(result).Inc()
}

// RecordWebhook records a webhook delivery.
func RecordWebhook(platform, result string) {
	WebhooksTotal.WithLabelValues(platform, result).Inc()
}

// RecordConflict records a resolver outcome.
func RecordConflict(conflictType, resolution string) {
	ConflictsTotal.WithLabelValues(conflictType, resolution).Inc()
}

// RecordDrift publishes reconciliation drift for a platform.
func RecordDrift(platform string, days int, alert bool) {
	DriftDays.WithLabelValues(platform).Set(float64(days))
	if alert {
		DriftAlerts.WithLabelValues(platform).Inc()
	}
}

// RecordDBQuery records query latency and failures.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordAPIRequest records one HTTP request.
func RecordAPIRequest(method, endpoint string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordEventBus records a bus message outcome.
func RecordEventBus(topic, result string) {
	EventBusMessages.WithLabelValues(topic, result).Inc()
}

// TrackWebSocket adjusts the connected client gauge.
func TrackWebSocket(inc bool) {
	if inc {
		WebSocketConnections.Inc()
	} else {
		WebSocketConnections.Dec()
	}
}
