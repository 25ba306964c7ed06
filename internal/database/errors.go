// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package database

import (
	"errors"
	"io"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/tomtom215/channelsync/internal/metrics"
)

// Constraint names shared by both dialects.
const (
	constraintNoOverlap      = "bookings_no_overlap"
	constraintOneActive      = "connections_one_active"
	constraintExternalUnique = "bookings_external_unique"
)

// ErrOperationFinalized is returned by Finish for a row already in a
// terminal status. Terminal rows are never mutated.
var ErrOperationFinalized = errors.New("sync operation already finalized")

// ErrActiveConnectionExists means the property already has an active
// connection for the platform.
var ErrActiveConnectionExists = errors.New("an active connection already exists for this property and platform")

// ErrDuplicateExternalBooking means the platform booking is already imported.
var ErrDuplicateExternalBooking = errors.New("platform booking already imported")

// violates reports whether err is a constraint violation naming constraint.
// Postgres reports the constraint on pq.Error; SQLite reports it in the
// message (RAISE text, or the columns of a unique index).
func violates(err error, constraint string, sqliteColumns string) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint == constraint
	}
	msg := err.Error()
	if strings.Contains(msg, constraint) {
		return true
	}
	return sqliteColumns != "" && strings.Contains(msg, "UNIQUE constraint failed: "+sqliteColumns)
}

func isOverlapViolation(err error) bool {
	return violates(err, constraintNoOverlap, "")
}

func isOneActiveViolation(err error) bool {
	return violates(err, constraintOneActive, "channel_connections.property_id, channel_connections.platform")
}

func isExternalUniqueViolation(err error) bool {
	return violates(err, constraintExternalUnique, "bookings.source, bookings.external_id")
}

// observe records query latency and errors.
func observe(operation, table string, start time.Time, err error) {
	metrics.RecordDBQuery(operation, table, time.Since(start), err)
}

// closeQuietly closes a resource in a cleanup path where the error is not
// actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}
