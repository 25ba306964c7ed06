// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package database

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite"
	driverDuckDB   = "duckdb"
)

// tsLayout is the fixed-width UTC layout used where timestamps are stored as
// text, so lexical order matches chronological order.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// dialect captures the differences between the supported SQL engines.
type dialect struct {
	name       string
	driverName string
	dollar     bool // $1 placeholders instead of ?
	textTime   bool // timestamps stored as tsLayout text
	migrations []Migration
}

func dialectFor(driver string) (*dialect, error) {
	switch driver {
	case driverPostgres:
		return &dialect{name: driverPostgres, driverName: "postgres", dollar: true, migrations: postgresMigrations()}, nil
	case driverSQLite, "":
		return &dialect{name: driverSQLite, driverName: "sqlite", textTime: true, migrations: sqliteMigrations()}, nil
	case driverDuckDB:
		return &dialect{name: driverDuckDB, driverName: "duckdb", migrations: duckdbMigrations()}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// rebind rewrites ? placeholders for dialects that use $n.
func (d *dialect) rebind(query string) string {
	if !d.dollar {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// ts converts t into the dialect's bind value.
func (d *dialect) ts(t time.Time) any {
	if d.textTime {
		return t.UTC().Format(tsLayout)
	}
	return t.UTC()
}

// tsPtr is ts for nullable columns.
func (d *dialect) tsPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return d.ts(*t)
}
