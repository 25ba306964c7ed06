// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tomtom215/channelsync/internal/logging"
)

// Migration is one versioned schema change. Migrations are append-only:
// never modify or remove one that has shipped.
type Migration struct {
	Version     int
	Name        string
	Description string
	SQL         []string
}

const schemaMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	applied_at TEXT NOT NULL
)`

// ledgerDDL builds the sync log, conflict and review task tables. They are
// shared by every dialect; only the timestamp column type differs.
func ledgerDDL(tsType string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS sync_operations (
	id TEXT PRIMARY KEY,
	batch_id TEXT NOT NULL,
	connection_id TEXT NOT NULL,
	platform TEXT NOT NULL,
	operation_type TEXT NOT NULL,
	direction TEXT NOT NULL,
	status TEXT NOT NULL,
	entity_id TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	attempts INTEGER NOT NULL DEFAULT 0,
	started_at %[1]s NOT NULL,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	completed_at %[1]s
)`, tsType),
		`CREATE INDEX IF NOT EXISTS idx_sync_operations_connection ON sync_operations (connection_id, started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_operations_batch ON sync_operations (batch_id)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS conflict_records (
	id TEXT PRIMARY KEY,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	conflict_type TEXT NOT NULL,
	resolution TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	resolved_by TEXT NOT NULL,
	requires_review BOOLEAN NOT NULL DEFAULT FALSE,
	resolved_at %s NOT NULL
)`, tsType),
		`CREATE INDEX IF NOT EXISTS idx_conflict_records_entity ON conflict_records (entity_type, entity_id)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS review_tasks (
	id TEXT PRIMARY KEY,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	created_at %s NOT NULL
)`, tsType),
		`CREATE INDEX IF NOT EXISTS idx_review_tasks_status ON review_tasks (status, created_at)`,
	}
}

const occupyingSQL = `('confirmed', 'pending', 'checked_in')`

func postgresMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Name:        "source_of_truth",
			Description: "Bookings with a gist exclusion constraint and channel connections",
			SQL: []string{
				`CREATE EXTENSION IF NOT EXISTS btree_gist`,
				`CREATE TABLE IF NOT EXISTS bookings (
	id TEXT PRIMARY KEY,
	property_id TEXT NOT NULL,
	check_in DATE NOT NULL,
	check_out DATE NOT NULL,
	status TEXT NOT NULL,
	source TEXT NOT NULL DEFAULT 'direct',
	connection_id TEXT NOT NULL DEFAULT '',
	external_id TEXT NOT NULL DEFAULT '',
	guest_name TEXT NOT NULL DEFAULT '',
	guest_email TEXT NOT NULL DEFAULT '',
	guest_phone TEXT NOT NULL DEFAULT '',
	guest_phone_updated_at TIMESTAMPTZ,
	guest_address TEXT NOT NULL DEFAULT '',
	guest_language TEXT NOT NULL DEFAULT '',
	price_cents BIGINT NOT NULL DEFAULT 0,
	currency TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT bookings_valid_range CHECK (check_out > check_in),
	CONSTRAINT bookings_no_overlap EXCLUDE USING gist (
		property_id WITH =,
		daterange(check_in, check_out, '[)') WITH &&
	) WHERE (status IN ` + occupyingSQL + `)
)`,
				`CREATE UNIQUE INDEX IF NOT EXISTS bookings_external_unique ON bookings (source, external_id) WHERE external_id <> ''`,
				`CREATE INDEX IF NOT EXISTS idx_bookings_property_dates ON bookings (property_id, check_in)`,
				`CREATE TABLE IF NOT EXISTS channel_connections (
	id TEXT PRIMARY KEY,
	agency_id TEXT NOT NULL,
	property_id TEXT NOT NULL,
	platform TEXT NOT NULL,
	platform_listing_id TEXT NOT NULL,
	access_token_enc TEXT NOT NULL DEFAULT '',
	refresh_token_enc TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	deleted_at TIMESTAMPTZ
)`,
				`CREATE UNIQUE INDEX IF NOT EXISTS connections_one_active ON channel_connections (property_id, platform) WHERE status = 'active' AND deleted_at IS NULL`,
				`CREATE INDEX IF NOT EXISTS idx_connections_listing ON channel_connections (platform, platform_listing_id)`,
			},
		},
		{
			Version:     2,
			Name:        "ledger",
			Description: "Sync operations, conflict records and review tasks",
			SQL:         ledgerDDL("TIMESTAMPTZ"),
		},
	}
}

// sqliteOverlapTrigger rejects an occupying row that overlaps another
// occupying row of the same property. The update variant excludes the row
// itself.
func sqliteOverlapTrigger(event, selfFilter string) string {
	return `CREATE TRIGGER IF NOT EXISTS bookings_no_overlap_` + event + `
BEFORE ` + event + ` ON bookings
WHEN NEW.status IN ` + occupyingSQL + `
BEGIN
	SELECT RAISE(ABORT, 'bookings_no_overlap')
	WHERE EXISTS (
		SELECT 1 FROM bookings b
		WHERE b.property_id = NEW.property_id
		  AND b.status IN ` + occupyingSQL + `
		  AND b.check_in < NEW.check_out
		  AND NEW.check_in < b.check_out` + selfFilter + `
	);
END`
}

func sqliteMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Name:        "source_of_truth",
			Description: "Bookings with overlap triggers and channel connections",
			SQL: []string{
				`CREATE TABLE IF NOT EXISTS bookings (
	id TEXT PRIMARY KEY,
	property_id TEXT NOT NULL,
	check_in TEXT NOT NULL,
	check_out TEXT NOT NULL,
	status TEXT NOT NULL,
	source TEXT NOT NULL DEFAULT 'direct',
	connection_id TEXT NOT NULL DEFAULT '',
	external_id TEXT NOT NULL DEFAULT '',
	guest_name TEXT NOT NULL DEFAULT '',
	guest_email TEXT NOT NULL DEFAULT '',
	guest_phone TEXT NOT NULL DEFAULT '',
	guest_phone_updated_at TEXT,
	guest_address TEXT NOT NULL DEFAULT '',
	guest_language TEXT NOT NULL DEFAULT '',
	price_cents INTEGER NOT NULL DEFAULT 0,
	currency TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	CHECK (check_out > check_in)
)`,
				sqliteOverlapTrigger("INSERT", ""),
				sqliteOverlapTrigger("UPDATE", "\n\t\t  AND b.id <> NEW.id"),
				`CREATE UNIQUE INDEX IF NOT EXISTS bookings_external_unique ON bookings (source, external_id) WHERE external_id <> ''`,
				`CREATE INDEX IF NOT EXISTS idx_bookings_property_dates ON bookings (property_id, check_in)`,
				`CREATE TABLE IF NOT EXISTS channel_connections (
	id TEXT PRIMARY KEY,
	agency_id TEXT NOT NULL,
	property_id TEXT NOT NULL,
	platform TEXT NOT NULL,
	platform_listing_id TEXT NOT NULL,
	access_token_enc TEXT NOT NULL DEFAULT '',
	refresh_token_enc TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	deleted_at TEXT
)`,
				`CREATE UNIQUE INDEX IF NOT EXISTS connections_one_active ON channel_connections (property_id, platform) WHERE status = 'active' AND deleted_at IS NULL`,
				`CREATE INDEX IF NOT EXISTS idx_connections_listing ON channel_connections (platform, platform_listing_id)`,
			},
		},
		{
			Version:     2,
			Name:        "ledger",
			Description: "Sync operations, conflict records and review tasks",
			SQL:         ledgerDDL("TEXT"),
		},
	}
}

// duckdbMigrations only carry the ledger; DuckDB never holds bookings.
func duckdbMigrations() []Migration {
	return []Migration{
		{
			Version:     2,
			Name:        "ledger",
			Description: "Sync operations, conflict records and review tasks",
			SQL:         ledgerDDL("TIMESTAMP"),
		},
	}
}

// runMigrations applies every migration not yet recorded in
// schema_migrations, each in its own transaction.
func runMigrations(ctx context.Context, conn *sql.DB, d *dialect, migrations []Migration) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	if _, err := conn.ExecContext(ctx, schemaMigrationsTable); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, conn)
	if err != nil {
		return err
	}

	newMigrations := 0
	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if err := applyMigration(ctx, conn, d, m); err != nil {
			return err
		}
		newMigrations++
	}

	if newMigrations > 0 {
		logging.Info().Str("driver", d.name).Int("applied", newMigrations).Msg("Applied database migrations")
	}
	return nil
}

func appliedVersions(ctx context.Context, conn *sql.DB) (map[int]bool, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer closeQuietly(rows)

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func applyMigration(ctx context.Context, conn *sql.DB, d *dialect, m Migration) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration v%d: %w", m.Version, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.SQL {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute migration v%d (%s): %w", m.Version, m.Name, err)
		}
	}
	_, err = tx.ExecContext(ctx,
		d.rebind(`INSERT INTO schema_migrations (version, name, description, applied_at) VALUES (?, ?, ?, ?)`),
		m.Version, m.Name, m.Description, time.Now().UTC().Format(tsLayout))
	if err != nil {
		return fmt.Errorf("failed to record migration v%d: %w", m.Version, err)
	}
	return tx.Commit()
}
