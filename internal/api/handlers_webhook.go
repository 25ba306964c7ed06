// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/channelsync/internal/logging"
	"github.com/tomtom215/channelsync/internal/models"
)

// maxWebhookBytes bounds a single platform delivery.
const maxWebhookBytes = 1 << 20

// Webhook accepts a platform delivery. The signature is checked before
// anything is parsed or stored. A redelivered event answers 200 with
// duplicate set, a newly queued one answers 202.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	platform := models.PlatformType(chi.URLParam(r, "platform"))
	a, err := h.adapters.Get(platform)
	if err != nil {
		respondError(w, http.StatusNotFound, "UNKNOWN_PLATFORM", "Unknown platform", nil)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "INVALID_REQUEST", "Webhook body too large", nil)
		return
	}

	wh, err := a.VerifyWebhook(r.Header, body)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Str("platform", string(platform)).
			Str("remote_addr", sanitizeLogValue(r.RemoteAddr)).Msg("Webhook rejected")
		respondError(w, http.StatusBadRequest, "INVALID_WEBHOOK", "Webhook verification failed", nil)
		return
	}

	res, err := h.engine.IngestWebhook(r.Context(), *wh)
	if err != nil {
		respondSyncError(w, r, err)
		return
	}

	status := http.StatusAccepted
	if res.Duplicate {
		status = http.StatusOK
	}
	respondSuccess(w, r, status, models.WebhookAck{
		Accepted:  !res.Duplicate,
		Duplicate: res.Duplicate,
		TaskID:    res.TaskID,
	})
}
