// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/channelsync/internal/adapter"
	"github.com/tomtom215/channelsync/internal/breaker"
	"github.com/tomtom215/channelsync/internal/credentials"
	"github.com/tomtom215/channelsync/internal/engine"
	"github.com/tomtom215/channelsync/internal/logging"
	"github.com/tomtom215/channelsync/internal/models"
	ws "github.com/tomtom215/channelsync/internal/websocket"
)

// SyncEngine is the part of *engine.Engine the API drives.
type SyncEngine interface {
	IngestWebhook(ctx context.Context, wh models.Webhook) (engine.IngestResult, error)
	TriggerManualSync(ctx context.Context, connectionID string, syncType models.OperationType, requestedBy string) (string, error)
	TestConnection(ctx context.Context, connectionID string) (bool, error)
	SyncLogs(ctx context.Context, connectionID string, page models.Page) (models.SyncLogPage, error)
	BatchStatus(ctx context.Context, batchID string) (models.SyncBatch, error)
	BreakerState(ctx context.Context, connectionID string) (breaker.Snapshot, error)
	ResetBreaker(ctx context.Context, connectionID string) error
}

// ConnectionRepository stores channel connections.
type ConnectionRepository interface {
	Create(ctx context.Context, c *models.ChannelConnection) error
	Get(ctx context.Context, id string) (*models.ChannelConnection, error)
	SoftDelete(ctx context.Context, id string) error
}

// Pinger is checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HandlerDeps are the collaborators of Handler. Hub and Credentials are
// optional: without a hub the live stream answers 503, without credentials
// connections cannot be created.
type HandlerDeps struct {
	Engine      SyncEngine
	Connections ConnectionRepository
	Credentials *credentials.Store
	Adapters    *adapter.Registry
	Hub         *ws.Hub
	Checks      map[string]Pinger
	CORSOrigins []string
	Version     string
}

// Handler contains dependencies for API handlers
//
// Handler methods are split across files:
//   - handlers.go: Handler struct, constructor, websocket upgrade (this file)
//   - handlers_helpers.go: response and request helpers
//   - handlers_health.go: liveness and readiness probes
//   - handlers_connections.go: connection management and manual sync
//   - handlers_webhook.go: platform webhook ingress
type Handler struct {
	engine      SyncEngine
	connections ConnectionRepository
	credentials *credentials.Store
	adapters    *adapter.Registry
	wsHub       *ws.Hub
	checks      map[string]Pinger
	corsOrigins []string
	version     string
	startTime   time.Time
}

// NewHandler creates the API handler.
func NewHandler(deps HandlerDeps) *Handler {
	return &Handler{
		engine:      deps.Engine,
		connections: deps.Connections,
		credentials: deps.Credentials,
		adapters:    deps.Adapters,
		wsHub:       deps.Hub,
		checks:      deps.Checks,
		corsOrigins: deps.CORSOrigins,
		version:     deps.Version,
		startTime:   time.Now(),
	}
}

// getUpgrader creates a WebSocket upgrader with origin checking and a
// handshake timeout against slow clients.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin validates WebSocket connection origins
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	// Browsers always send Origin on a websocket handshake. Without it the
	// CORS policy would be bypassed.
	if origin == "" {
		logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}

	for _, allowedOrigin := range h.corsOrigins {
		if allowedOrigin == "*" || allowedOrigin == origin {
			return true
		}
	}

	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}

// SyncStream upgrades to a websocket that receives finished sync operations
// and reconciliation reports. Repeated connection_id query parameters, or a
// later watch frame, narrow the operations to those connections.
func (h *Handler) SyncStream(w http.ResponseWriter, r *http.Request) {
	if h.wsHub == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Live sync stream unavailable", nil)
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}

	client := ws.NewClient(h.wsHub, conn, requester(r))
	client.Watch(r.URL.Query()["connection_id"]...)
	h.wsHub.Register <- client
	client.Start()
}
