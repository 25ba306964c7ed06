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

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"

	"github.com/tomtom215/channelsync/internal/config"
	"github.com/tomtom215/channelsync/internal/logging"
	"github.com/tomtom215/channelsync/internal/models"
	"github.com/tomtom215/channelsync/internal/syncerr"
)

// Ledger holds the sync log (one row per SyncOperation), the append-only
// conflict records and the review task queue. It lives in the main database
// or, when ledger.driver is duckdb, in a separate analytical file.
type Ledger struct {
	conn    *sql.DB
	dialect *dialect
	owned   bool
}

// OpenLedger returns main's ledger unless a separate driver is configured.
func OpenLedger(ctx context.Context, cfg config.LedgerConfig, main *DB) (*Ledger, error) {
	if cfg.Driver == "" {
		return main.Ledger(), nil
	}
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	conn, err := sql.Open(d.driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s ledger: %w", d.name, err)
	}
	// DuckDB allows a single writer process; one connection keeps writes ordered.
	conn.SetMaxOpenConns(1)
	if err := conn.PingContext(ctx); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to ping %s ledger: %w", d.name, err)
	}
	if err := runMigrations(ctx, conn, d, d.migrations); err != nil {
		closeQuietly(conn)
		return nil, err
	}
	logging.Info().Str("driver", d.name).Str("dsn", cfg.DSN).Msg("Sync ledger ready")
	return &Ledger{conn: conn, dialect: d, owned: true}, nil
}

// Close closes a separately opened ledger. A ledger sharing the main
// database leaves it open.
func (l *Ledger) Close() error {
	if !l.owned {
		return nil
	}
	return l.conn.Close()
}

// Ping checks the ledger's connectivity.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.conn.PingContext(ctx)
}

const operationColumns = `id, batch_id, connection_id, platform, operation_type, direction, status,
	entity_id, error, attempts, started_at, duration_ms, completed_at`

func scanOperation(s rowScanner) (*models.SyncOperation, error) {
	var (
		op                 models.SyncOperation
		started, completed timeValue
	)
	err := s.Scan(&op.ID, &op.BatchID, &op.ConnectionID, &op.Platform, &op.OperationType, &op.Direction, &op.Status,
		&op.EntityID, &op.Error, &op.Attempts, &started, &op.DurationMS, &completed)
	if err != nil {
		return nil, err
	}
	op.StartedAt = started.Time
	op.CompletedAt = completed.ptr()
	return &op, nil
}

// Start records an operation as running (or triggered, if op.Status is set
// to that). ID and StartedAt are filled when empty.
func (l *Ledger) Start(ctx context.Context, op *models.SyncOperation) (err error) {
	start := time.Now()
	defer func() { observe("insert", "sync_operations", start, err) }()

	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.Status == "" {
		op.Status = models.SyncRunning
	}
	if op.StartedAt.IsZero() {
		op.StartedAt = time.Now().UTC()
	}

	_, err = l.conn.ExecContext(ctx, l.dialect.rebind(`INSERT INTO sync_operations (`+operationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		op.ID, op.BatchID, op.ConnectionID, string(op.Platform), string(op.OperationType), string(op.Direction),
		string(op.Status), op.EntityID, op.Error, op.Attempts, l.dialect.ts(op.StartedAt), op.DurationMS, nil)
	if err != nil {
		return fmt.Errorf("record sync operation: %w", err)
	}
	return nil
}

// MarkRunning moves a triggered operation to running. An operation that is
// already running is left alone; a terminal one returns
// ErrOperationFinalized.
func (l *Ledger) MarkRunning(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { observe("mark_running", "sync_operations", start, err) }()

	res, err := l.conn.ExecContext(ctx, l.dialect.rebind(`UPDATE sync_operations
		SET status = ?
		WHERE id = ? AND status = ?`),
		string(models.SyncRunning), id, string(models.SyncTriggered))
	if err != nil {
		return fmt.Errorf("mark sync operation %s running: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	op, err := l.Operation(ctx, id)
	if err != nil {
		return err
	}
	if op.Status.Terminal() {
		return fmt.Errorf("sync operation %s: %w", id, ErrOperationFinalized)
	}
	return nil
}

// Finish moves a non-terminal operation to its final status. It returns
// ErrOperationFinalized if the row is already terminal.
func (l *Ledger) Finish(ctx context.Context, id string, status models.SyncStatus, opErr error, attempts int, duration time.Duration) (err error) {
	start := time.Now()
	defer func() { observe("finish", "sync_operations", start, err) }()

	msg := ""
	if opErr != nil {
		msg = opErr.Error()
	}
	res, err := l.conn.ExecContext(ctx, l.dialect.rebind(`UPDATE sync_operations
		SET status = ?, error = ?, attempts = ?, duration_ms = ?, completed_at = ?
		WHERE id = ? AND status NOT IN ('success', 'failed')`),
		string(status), msg, attempts, duration.Milliseconds(), l.dialect.ts(time.Now()), id)
	if err != nil {
		return fmt.Errorf("finish sync operation %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := l.Operation(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("sync operation %s: %w", id, ErrOperationFinalized)
	}
	return nil
}

// Operation loads one operation.
func (l *Ledger) Operation(ctx context.Context, id string) (*models.SyncOperation, error) {
	op, err := scanOperation(l.conn.QueryRowContext(ctx,
		l.dialect.rebind(`SELECT `+operationColumns+` FROM sync_operations WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sync operation %s: %w", id, syncerr.ErrNotFound)
	}
	return op, err
}

func (l *Ledger) queryOperations(ctx context.Context, query string, args ...any) ([]models.SyncOperation, error) {
	rows, err := l.conn.QueryContext(ctx, l.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query sync operations: %w", err)
	}
	defer closeQuietly(rows)

	ops := []models.SyncOperation{}
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sync operation: %w", err)
		}
		ops = append(ops, *op)
	}
	return ops, rows.Err()
}

// Logs returns a connection's operations, newest first.
func (l *Ledger) Logs(ctx context.Context, connectionID string, page models.Page) (_ models.SyncLogPage, err error) {
	start := time.Now()
	defer func() { observe("logs", "sync_operations", start, err) }()

	page = page.Normalize()
	ops, err := l.queryOperations(ctx, `SELECT `+operationColumns+` FROM sync_operations
		WHERE connection_id = ?
		ORDER BY started_at DESC, id
		LIMIT ? OFFSET ?`, connectionID, page.Limit+1, page.Offset)
	if err != nil {
		return models.SyncLogPage{}, err
	}

	result := models.SyncLogPage{Limit: page.Limit, Offset: page.Offset}
	if len(ops) > page.Limit {
		ops = ops[:page.Limit]
		result.HasMore = true
	}
	result.Operations = ops
	return result, nil
}

// Batch derives a batch's status from its operations.
func (l *Ledger) Batch(ctx context.Context, batchID string) (_ models.SyncBatch, err error) {
	start := time.Now()
	defer func() { observe("batch", "sync_operations", start, err) }()

	ops, err := l.queryOperations(ctx, `SELECT `+operationColumns+` FROM sync_operations
		WHERE batch_id = ? ORDER BY started_at, id`, batchID)
	if err != nil {
		return models.SyncBatch{}, err
	}
	if len(ops) == 0 {
		return models.SyncBatch{}, fmt.Errorf("batch %s: %w", batchID, syncerr.ErrNotFound)
	}
	return models.NewSyncBatch(batchID, ops), nil
}

// RecordConflict appends a conflict record.
func (l *Ledger) RecordConflict(ctx context.Context, rec *models.ConflictRecord) (err error) {
	start := time.Now()
	defer func() { observe("insert", "conflict_records", start, err) }()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.ResolvedAt.IsZero() {
		rec.ResolvedAt = time.Now().UTC()
	}
	_, err = l.conn.ExecContext(ctx, l.dialect.rebind(`INSERT INTO conflict_records
		(id, entity_type, entity_id, conflict_type, resolution, detail, resolved_by, requires_review, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.EntityType, rec.EntityID, rec.ConflictType, rec.Resolution, rec.Detail, rec.ResolvedBy,
		rec.RequiresReview, l.dialect.ts(rec.ResolvedAt))
	if err != nil {
		return fmt.Errorf("record conflict: %w", err)
	}
	return nil
}

// Conflicts lists the conflict records of one entity, oldest first.
func (l *Ledger) Conflicts(ctx context.Context, entityType, entityID string) (_ []models.ConflictRecord, err error) {
	start := time.Now()
	defer func() { observe("list", "conflict_records", start, err) }()

	rows, err := l.conn.QueryContext(ctx, l.dialect.rebind(`SELECT id, entity_type, entity_id, conflict_type,
		resolution, detail, resolved_by, requires_review, resolved_at
		FROM conflict_records WHERE entity_type = ? AND entity_id = ? ORDER BY resolved_at, id`),
		entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	defer closeQuietly(rows)

	var out []models.ConflictRecord
	for rows.Next() {
		var (
			rec models.ConflictRecord
			at  timeValue
		)
		if err := rows.Scan(&rec.ID, &rec.EntityType, &rec.EntityID, &rec.ConflictType, &rec.Resolution,
			&rec.Detail, &rec.ResolvedBy, &rec.RequiresReview, &at); err != nil {
			return nil, fmt.Errorf("scan conflict: %w", err)
		}
		rec.ResolvedAt = at.Time
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Review task statuses.
const (
	ReviewOpen     = "open"
	ReviewResolved = "resolved"
)

// CreateReviewTask queues a manual-intervention task.
func (l *Ledger) CreateReviewTask(ctx context.Context, task *models.ReviewTask) (err error) {
	start := time.Now()
	defer func() { observe("insert", "review_tasks", start, err) }()

	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = ReviewOpen
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	_, err = l.conn.ExecContext(ctx, l.dialect.rebind(`INSERT INTO review_tasks
		(id, entity_type, entity_id, kind, detail, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		task.ID, task.EntityType, task.EntityID, task.Kind, task.Detail, task.Status, l.dialect.ts(task.CreatedAt))
	if err != nil {
		return fmt.Errorf("create review task: %w", err)
	}
	return nil
}

// ReviewTasks lists tasks in status, oldest first.
func (l *Ledger) ReviewTasks(ctx context.Context, status string, page models.Page) (_ []models.ReviewTask, err error) {
	start := time.Now()
	defer func() { observe("list", "review_tasks", start, err) }()

	page = page.Normalize()
	rows, err := l.conn.QueryContext(ctx, l.dialect.rebind(`SELECT id, entity_type, entity_id, kind, detail, status, created_at
		FROM review_tasks WHERE status = ? ORDER BY created_at, id LIMIT ? OFFSET ?`),
		status, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("list review tasks: %w", err)
	}
	defer closeQuietly(rows)

	tasks := []models.ReviewTask{}
	for rows.Next() {
		var (
			t  models.ReviewTask
			at timeValue
		)
		if err := rows.Scan(&t.ID, &t.EntityType, &t.EntityID, &t.Kind, &t.Detail, &t.Status, &at); err != nil {
			return nil, fmt.Errorf("scan review task: %w", err)
		}
		t.CreatedAt = at.Time
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
