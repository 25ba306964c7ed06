// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package websocket

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/channelsync/internal/logging"
	"github.com/tomtom215/channelsync/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Inbound frames are pings and watch requests only.
	maxMessageSize = 4 * 1024
	sendBuffer     = 256
)

// MessageTypeWatch narrows a client's stream to the listed connections.
// An empty list restores the full stream.
const MessageTypeWatch = "watch"

// inbound is a frame sent by the admin UI.
type inbound struct {
	Type          string   `json:"type"`
	ConnectionIDs []string `json:"connection_ids,omitempty"`
}

var clientIDCounter atomic.Uint64

// Client is one admin UI connection. Subject is the operator it was
// authenticated as.
type Client struct {
	id      uint64
	Subject string
	hub     *Hub
	conn    *websocket.Conn
	send    chan Message

	mu    sync.RWMutex
	watch map[string]bool
}

// NewClient creates a client that receives every sync operation until it
// sends a watch request.
func NewClient(hub *Hub, conn *websocket.Conn, subject string) *Client {
	return &Client{
		id:      clientIDCounter.Add(1),
		Subject: subject,
		hub:     hub,
		conn:    conn,
		send:    make(chan Message, sendBuffer),
	}
}

// ID orders clients for broadcasts.
func (c *Client) ID() uint64 {
	return c.id
}

// Watch limits the stream to operations on the given connections.
func (c *Client) Watch(connectionIDs ...string) {
	var watch map[string]bool
	if len(connectionIDs) > 0 {
		watch = make(map[string]bool, len(connectionIDs))
		for _, id := range connectionIDs {
			watch[id] = true
		}
	}
	c.mu.Lock()
	c.watch = watch
	c.mu.Unlock()
}

// wants reports whether msg passes the client's watch list. Only sync
// operations are filtered.
func (c *Client) wants(msg Message) bool {
	op, ok := msg.Data.(models.SyncOperation)
	if !ok || msg.Type != MessageTypeSyncOperation {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.watch == nil || c.watch[op.ConnectionID]
}

// Start runs the read and write pumps.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

func (c *Client) extendRead() error {
	return c.conn.SetReadDeadline(time.Now().Add(pongWait))
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.extendRead(); err != nil {
		logging.Warn().Err(err).Uint64("client_id", c.id).Msg("websocket read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error { return c.extendRead() })

	for {
		var in inbound
		if err := c.conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Uint64("client_id", c.id).Msg("websocket closed unexpectedly")
			}
			return
		}

		switch in.Type {
		case MessageTypePing:
			select {
			case c.send <- Message{Type: MessageTypePong}:
			default:
			}
		case MessageTypeWatch:
			c.Watch(in.ConnectionIDs...)
			logging.Debug().Uint64("client_id", c.id).Strs("connections", in.ConnectionIDs).Msg("websocket watch updated")
		}
	}
}

// write sends one frame under the write deadline.
func (c *Client) write(fn func() error) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return fn()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		var err error
		select {
		case msg, ok := <-c.send:
			if !ok {
				// The hub dropped this client.
				_ = c.write(func() error { return c.conn.WriteMessage(websocket.CloseMessage, nil) })
				return
			}
			err = c.write(func() error { return c.conn.WriteJSON(msg) })
		case <-ticker.C:
			err = c.write(func() error { return c.conn.WriteMessage(websocket.PingMessage, nil) })
		}
		if err != nil {
			logging.Debug().Err(err).Uint64("client_id", c.id).Msg("websocket write failed")
			return
		}
	}
}
