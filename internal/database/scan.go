// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package database

import (
	"fmt"
	"time"

	"github.com/tomtom215/channelsync/internal/models"
)

// timeValue scans a timestamp from any supported driver: time.Time from
// lib/pq and duckdb, text from SQLite.
type timeValue struct {
	Time  time.Time
	Valid bool
}

func (v *timeValue) Scan(src any) error {
	switch t := src.(type) {
	case nil:
		v.Time, v.Valid = time.Time{}, false
		return nil
	case time.Time:
		v.Time, v.Valid = t.UTC(), true
		return nil
	case string:
		return v.parse(t)
	case []byte:
		return v.parse(string(t))
	default:
		return fmt.Errorf("cannot scan %T into timestamp", src)
	}
}

func (v *timeValue) parse(s string) error {
	for _, layout := range []string{tsLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			v.Time, v.Valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("cannot parse timestamp %q", s)
}

func (v timeValue) ptr() *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

// dayValue scans a calendar date: time.Time from a Postgres DATE, text from
// SQLite.
type dayValue struct {
	Time time.Time
}

func (v *dayValue) Scan(src any) error {
	switch t := src.(type) {
	case time.Time:
		v.Time = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return nil
	case string:
		return v.parse(t)
	case []byte:
		return v.parse(string(t))
	default:
		return fmt.Errorf("cannot scan %T into date", src)
	}
}

func (v *dayValue) parse(s string) error {
	if len(s) > len(models.DateLayout) {
		s = s[:len(models.DateLayout)]
	}
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		return fmt.Errorf("cannot parse date %q: %w", s, err)
	}
	v.Time = t
	return nil
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}
