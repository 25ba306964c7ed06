// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/tomtom215/channelsync/internal/config"
	"github.com/tomtom215/channelsync/internal/logging"
)

// DB is the source-of-truth database: bookings, channel connections and,
// unless a separate ledger is configured, the sync log and conflict records.
type DB struct {
	conn    *sql.DB
	dialect *dialect
}

// Open connects to the configured database and applies pending migrations.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	dsn := cfg.DSN
	if d.name == driverSQLite {
		dsn, err = sqliteDSN(dsn)
		if err != nil {
			return nil, err
		}
	}

	conn, err := sql.Open(d.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", d.name, err)
	}
	configurePool(conn, d, cfg.MaxOpenConns)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to ping %s database: %w", d.name, err)
	}

	db := &DB{conn: conn, dialect: d}
	if err := runMigrations(ctx, conn, d, d.migrations); err != nil {
		closeQuietly(conn)
		return nil, err
	}

	logging.Info().Str("driver", d.name).Msg("Database ready")
	return db, nil
}

// sqliteDSN creates the parent directory of a file database and appends the
// pragmas every connection needs.
func sqliteDSN(dsn string) (string, error) {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path != "" && path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return "", fmt.Errorf("failed to create database directory %s: %w", dir, err)
			}
		}
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", nil
}

// configurePool sizes the connection pool. SQLite has a single writer, so
// one connection serializes writes in-process instead of surfacing
// SQLITE_BUSY.
func configurePool(conn *sql.DB, d *dialect, maxOpen int) {
	if d.name == driverSQLite {
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
		return
	}
	if maxOpen <= 0 {
		maxOpen = 20
	}
	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(maxOpen / 4)
	conn.SetConnMaxLifetime(time.Hour)
	conn.SetConnMaxIdleTime(5 * time.Minute)
}

// Driver returns the dialect name.
func (db *DB) Driver() string { return db.dialect.name }

// Ping checks connectivity.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Bookings returns the booking repository.
func (db *DB) Bookings() *Bookings {
	return &Bookings{conn: db.conn, dialect: db.dialect}
}

// Connections returns the channel connection repository.
func (db *DB) Connections() *Connections {
	return &Connections{conn: db.conn, dialect: db.dialect}
}

// Ledger returns the sync log and conflict ledger stored in this database.
func (db *DB) Ledger() *Ledger {
	return &Ledger{conn: db.conn, dialect: db.dialect}
}
