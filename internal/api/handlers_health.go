// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/tomtom215/channelsync/internal/logging"
	"github.com/tomtom215/channelsync/internal/models"
)

const readinessTimeout = 2 * time.Second

// Health reports liveness. It never touches dependencies.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := models.HealthStatus{
		Status:  "healthy",
		Uptime:  time.Since(h.startTime).Seconds(),
		Version: h.version,
	}
	if h.wsHub != nil {
		status.Watchers = h.wsHub.GetClientCount()
	}
	respondSuccess(w, r, http.StatusOK, status)
}

// Ready pings every registered dependency and answers 503 if any fails.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := models.HealthStatus{
		Status:  "ready",
		Checks:  make(map[string]string, len(names)),
		Uptime:  time.Since(h.startTime).Seconds(),
		Version: h.version,
	}
	code := http.StatusOK
	for _, name := range names {
		if err := h.checks[name].Ping(ctx); err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Str("check", name).Msg("Readiness check failed")
			status.Checks[name] = "unavailable"
			status.Status = "not_ready"
			code = http.StatusServiceUnavailable
			continue
		}
		status.Checks[name] = "ok"
	}
	respondSuccess(w, r, code, status)
}
