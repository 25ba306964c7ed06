// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tomtom215/channelsync/internal/credentials"
	"github.com/tomtom215/channelsync/internal/database"
	"github.com/tomtom215/channelsync/internal/logging"
	"github.com/tomtom215/channelsync/internal/models"
)

// CreateConnection links a property to a platform listing. Tokens are
// sealed before the row is written and never echoed back.
func (h *Handler) CreateConnection(w http.ResponseWriter, r *http.Request) {
	if h.credentials == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Credential store not configured", nil)
		return
	}

	var req models.CreateConnectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidationError(w, apiErr)
		return
	}

	conn := &models.ChannelConnection{
		ID:                uuid.NewString(),
		AgencyID:          req.AgencyID,
		PropertyID:        req.PropertyID,
		Platform:          models.PlatformType(req.Platform),
		PlatformListingID: req.PlatformListingID,
		Status:            models.ConnectionActive,
		Metadata:          req.Metadata,
	}
	// Tokens are bound to the connection id, so it is assigned before sealing.
	if err := h.credentials.Seal(conn, credentials.Tokens{
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
	}); err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to seal credentials", err)
		return
	}

	if err := h.connections.Create(r.Context(), conn); err != nil {
		if errors.Is(err, database.ErrActiveConnectionExists) {
			respondError(w, http.StatusConflict, "CONNECTION_EXISTS", err.Error(), nil)
			return
		}
		respondSyncError(w, r, err)
		return
	}

	logging.Ctx(r.Context()).Info().
		Str("connection_id", conn.ID).
		Str("property_id", conn.PropertyID).
		Str("platform", string(conn.Platform)).
		Str("requested_by", requester(r)).
		Msg("Channel connection created")
	respondSuccess(w, r, http.StatusCreated, conn)
}

// GetConnection returns one connection without its credentials.
func (h *Handler) GetConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.connections.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondSyncError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, conn)
}

// DeleteConnection disconnects a connection. Its sync log is kept.
func (h *Handler) DeleteConnection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.connections.SoftDelete(r.Context(), id); err != nil {
		respondSyncError(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Info().Str("connection_id", id).Str("requested_by", requester(r)).
		Msg("Channel connection disconnected")
	w.WriteHeader(http.StatusNoContent)
}

// TriggerSync queues a manual sync and answers with its batch id.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	var req models.ManualSyncRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidationError(w, apiErr)
		return
	}

	batchID, err := h.engine.TriggerManualSync(r.Context(), chi.URLParam(r, "id"),
		models.OperationType(req.SyncType), requester(r))
	if err != nil {
		respondSyncError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusAccepted, models.ManualSyncResponse{BatchID: batchID})
}

// TestConnection probes the platform with the connection's credentials.
func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	healthy, err := h.engine.TestConnection(r.Context(), id)
	if err != nil {
		respondSyncError(w, r, err)
		return
	}

	resp := models.ConnectionTestResponse{ConnectionID: id, Healthy: healthy}
	if !healthy {
		resp.Error = "platform probe failed"
	}
	respondSuccess(w, r, http.StatusOK, resp)
}

// SyncLogs pages through a connection's sync operations, newest first.
func (h *Handler) SyncLogs(w http.ResponseWriter, r *http.Request) {
	page := models.Page{
		Limit:  getIntParam(r, "limit", 50),
		Offset: getIntParam(r, "offset", 0),
	}
	logs, err := h.engine.SyncLogs(r.Context(), chi.URLParam(r, "id"), page)
	if err != nil {
		respondSyncError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, logs)
}

// BatchStatus aggregates the operations of one batch.
func (h *Handler) BatchStatus(w http.ResponseWriter, r *http.Request) {
	batch, err := h.engine.BatchStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondSyncError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, batch)
}

// BreakerState reports the connection's circuit breaker.
func (h *Handler) BreakerState(w http.ResponseWriter, r *http.Request) {
	snap, err := h.engine.BreakerState(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondSyncError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, models.BreakerStateResponse{
		Name:                 snap.Name,
		State:                snap.State,
		ConsecutiveFailures:  snap.ConsecutiveFailures,
		ConsecutiveSuccesses: snap.ConsecutiveSuccesses,
		OpenedAt:             snap.OpenedAt,
	})
}

// ResetBreaker closes the connection's circuit breaker.
func (h *Handler) ResetBreaker(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.engine.ResetBreaker(r.Context(), id); err != nil {
		respondSyncError(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Info().Str("connection_id", id).Str("requested_by", requester(r)).
		Msg("Circuit breaker reset")
	w.WriteHeader(http.StatusNoContent)
}
