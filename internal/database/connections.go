// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/channelsync/internal/models"
	"github.com/tomtom215/channelsync/internal/syncerr"
)

// Connections is the channel connection repository. A partial unique index
// allows at most one active, non-deleted connection per (property, platform).
type Connections struct {
	conn    *sql.DB
	dialect *dialect
}

const connectionColumns = `id, agency_id, property_id, platform, platform_listing_id, access_token_enc,
	refresh_token_enc, status, metadata, created_at, updated_at, deleted_at`

func scanConnection(s rowScanner) (*models.ChannelConnection, error) {
	var (
		c                 models.ChannelConnection
		metadata          string
		created, upd, del timeValue
	)
	err := s.Scan(&c.ID, &c.AgencyID, &c.PropertyID, &c.Platform, &c.PlatformListingID, &c.AccessTokenEnc,
		&c.RefreshTokenEnc, &c.Status, &metadata, &created, &upd, &del)
	if err != nil {
		return nil, err
	}
	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &c.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of connection %s: %w", c.ID, err)
		}
	}
	c.CreatedAt = created.Time
	c.UpdatedAt = upd.Time
	c.DeletedAt = del.ptr()
	return &c, nil
}

func (r *Connections) list(ctx context.Context, op, where string, args ...any) (_ []models.ChannelConnection, err error) {
	start := time.Now()
	defer func() { observe(op, "channel_connections", start, err) }()

	rows, err := r.conn.QueryContext(ctx,
		r.dialect.rebind(`SELECT `+connectionColumns+` FROM channel_connections WHERE `+where+` ORDER BY platform, id`),
		args...)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer closeQuietly(rows)

	var out []models.ChannelConnection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *Connections) one(ctx context.Context, op, where string, args ...any) (_ *models.ChannelConnection, err error) {
	start := time.Now()
	defer func() { observe(op, "channel_connections", start, err) }()

	c, err := scanConnection(r.conn.QueryRowContext(ctx,
		r.dialect.rebind(`SELECT `+connectionColumns+` FROM channel_connections WHERE `+where), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, syncerr.ErrNotFound
	}
	return c, err
}

// Create stores a new connection.
func (r *Connections) Create(ctx context.Context, c *models.ChannelConnection) (err error) {
	start := time.Now()
	defer func() { observe("insert", "channel_connections", start, err) }()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = models.ConnectionActive
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	metadata := []byte("{}")
	if len(c.Metadata) > 0 {
		if metadata, err = json.Marshal(c.Metadata); err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
	}

	_, err = r.conn.ExecContext(ctx, r.dialect.rebind(`INSERT INTO channel_connections (`+connectionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		c.ID, c.AgencyID, c.PropertyID, string(c.Platform), c.PlatformListingID, c.AccessTokenEnc,
		c.RefreshTokenEnc, string(c.Status), string(metadata), r.dialect.ts(c.CreatedAt), r.dialect.ts(c.UpdatedAt), nil)
	if isOneActiveViolation(err) {
		return fmt.Errorf("%w: %s on %s", ErrActiveConnectionExists, c.PropertyID, c.Platform)
	}
	if err != nil {
		return fmt.Errorf("insert connection: %w", err)
	}
	return nil
}

// Get loads a non-deleted connection by id.
func (r *Connections) Get(ctx context.Context, id string) (*models.ChannelConnection, error) {
	c, err := r.one(ctx, "get", `id = ? AND deleted_at IS NULL`, id)
	if err != nil {
		return nil, fmt.Errorf("connection %s: %w", id, err)
	}
	return c, nil
}

// ActiveForProperty lists the property's active connections.
func (r *Connections) ActiveForProperty(ctx context.Context, propertyID string) ([]models.ChannelConnection, error) {
	return r.list(ctx, "active_for_property", `property_id = ? AND status = 'active' AND deleted_at IS NULL`, propertyID)
}

// ListActive lists every active connection.
func (r *Connections) ListActive(ctx context.Context) ([]models.ChannelConnection, error) {
	return r.list(ctx, "list_active", `status = 'active' AND deleted_at IS NULL`)
}

// FindActiveByListing resolves a webhook's (platform, listing) to its
// active connection.
func (r *Connections) FindActiveByListing(ctx context.Context, platform models.PlatformType, listingID string) (*models.ChannelConnection, error) {
	c, err := r.one(ctx, "find_by_listing",
		`platform = ? AND platform_listing_id = ? AND status = 'active' AND deleted_at IS NULL`,
		string(platform), listingID)
	if err != nil {
		return nil, fmt.Errorf("active connection for %s listing %s: %w", platform, listingID, err)
	}
	return c, nil
}

// UpdateStatus sets a connection's status.
func (r *Connections) UpdateStatus(ctx context.Context, id string, status models.ConnectionStatus) (err error) {
	start := time.Now()
	defer func() { observe("update_status", "channel_connections", start, err) }()

	res, err := r.conn.ExecContext(ctx,
		r.dialect.rebind(`UPDATE channel_connections SET status = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`),
		string(status), r.dialect.ts(time.Now()), id)
	if isOneActiveViolation(err) {
		return fmt.Errorf("%w: connection %s", ErrActiveConnectionExists, id)
	}
	if err != nil {
		return fmt.Errorf("update connection %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("connection %s: %w", id, syncerr.ErrNotFound)
	}
	return nil
}

// SoftDelete disconnects a connection. The row is kept for the sync log.
func (r *Connections) SoftDelete(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { observe("soft_delete", "channel_connections", start, err) }()

	now := r.dialect.ts(time.Now())
	res, err := r.conn.ExecContext(ctx,
		r.dialect.rebind(`UPDATE channel_connections SET status = ?, deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`),
		string(models.ConnectionDisconnected), now, now, id)
	if err != nil {
		return fmt.Errorf("delete connection %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("connection %s: %w", id, syncerr.ErrNotFound)
	}
	return nil
}
