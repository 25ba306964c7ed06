// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package authz

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsSubsystem = "authz"

var (
	// AuthzDecisionsTotal counts operator API decisions per role and route.
	AuthzDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "channelsync",
		Subsystem: metricsSubsystem,
		Name:      "decisions_total",
		Help:      "Operator API authorization decisions",
	}, []string{"role", "route", "action", "decision"})

	// AuthzDecisionDuration is Enforce latency, split by cache use.
	AuthzDecisionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "channelsync",
		Subsystem: metricsSubsystem,
		Name:      "decision_duration_seconds",
		Help:      "Time spent deciding an operator API request",
		Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
	}, []string{"role", "cached"})

	authzCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "channelsync",
		Subsystem: metricsSubsystem,
		Name:      "cache_lookups_total",
		Help:      "Decision cache lookups by result",
	}, []string{"result"})

	authzCacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "channelsync",
		Subsystem: metricsSubsystem,
		Name:      "cache_entries",
		Help:      "Decisions currently cached",
	})

	// AuthzPolicyReloadsTotal counts policy file reloads by result.
	AuthzPolicyReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "channelsync",
		Subsystem: metricsSubsystem,
		Name:      "policy_reloads_total",
		Help:      "Policy reloads by result",
	}, []string{"result"})

	authzPolicyRules = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "channelsync",
		Subsystem: metricsSubsystem,
		Name:      "policy_rules",
		Help:      "Loaded policy rules by kind (p for permissions, g for role grants)",
	}, []string{"kind"})

	authzErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "channelsync",
		Subsystem: metricsSubsystem,
		Name:      "errors_total",
		Help:      "Enforcer failures; denials are not errors",
	}, []string{"stage"})
)

// RecordAuthzDecision counts a decision. Connection and batch ids in the
// path are collapsed so the route label stays bounded.
func RecordAuthzDecision(role, path, action string, allowed bool, took time.Duration, cached bool) {
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	AuthzDecisionsTotal.WithLabelValues(role, routePattern(path), action, decision).Inc()
	AuthzDecisionDuration.WithLabelValues(role, strconv.FormatBool(cached)).Observe(took.Seconds())
}

// routePattern maps a request path onto its route:
//
//	/api/v1/connections/3f2a.../sync -> /api/v1/connections/:id/sync
//	/api/v1/batches/b-42             -> /api/v1/batches/:id
func routePattern(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" || isAPIVersion(part) {
			continue
		}
		if strings.ContainsAny(part, "0123456789") {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}

// isAPIVersion matches v1, v2 and so on.
func isAPIVersion(part string) bool {
	if len(part) < 2 || part[0] != 'v' {
		return false
	}
	_, err := strconv.Atoi(part[1:])
	return err == nil
}

// RecordAuthzCacheHit counts a decision served from the cache.
func RecordAuthzCacheHit() { authzCacheLookups.WithLabelValues("hit").Inc() }

// RecordAuthzCacheMiss counts a decision that went to the enforcer.
func RecordAuthzCacheMiss() { authzCacheLookups.WithLabelValues("miss").Inc() }

// UpdateAuthzCacheSize sets the cached decision gauge.
func UpdateAuthzCacheSize(size int) { authzCacheEntries.Set(float64(size)) }

// RecordPolicyReload counts a policy reload.
func RecordPolicyReload(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	AuthzPolicyReloadsTotal.WithLabelValues(result).Inc()
}

// UpdatePolicyStats sets the loaded rule gauges.
func UpdatePolicyStats(policyRules, groupingRules int) {
	authzPolicyRules.WithLabelValues("p").Set(float64(policyRules))
	authzPolicyRules.WithLabelValues("g").Set(float64(groupingRules))
}

// RecordAuthzError counts an enforcer failure at the given stage.
func RecordAuthzError(stage string) { authzErrors.WithLabelValues(stage).Inc() }
