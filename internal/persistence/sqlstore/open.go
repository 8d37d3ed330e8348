// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package sqlstore persists video records in SQLite or PostgreSQL.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // Pure Go driver
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config defines connection pool parameters.
type Config struct {
	Driver string
	// DSN is a file path for sqlite or a connection URL for postgres.
	DSN          string
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// DefaultConfig returns the recommended configuration for a local SQLite file.
func DefaultConfig(path string) Config {
	return Config{
		Driver:       DriverSQLite,
		DSN:          path,
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 25,
	}
}

// DB wraps *sql.DB with the dialect needed to rewrite placeholders.
type DB struct {
	*sql.DB
	driver string
}

// Driver returns the configured driver name.
func (d *DB) Driver() string { return d.driver }

// Open initializes a connection pool and verifies connectivity.
// SQLite connections get WAL mode and busy_timeout applied through the DSN so
// every pooled connection carries them.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	var (
		driverName string
		dsn        string
	)
	switch cfg.Driver {
	case DriverSQLite, "":
		driverName = DriverSQLite
		// modernc.org/sqlite supports _pragma in the DSN.
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
			cfg.DSN, cfg.BusyTimeout.Milliseconds())
	case DriverPostgres:
		driverName = DriverPostgres
		dsn = cfg.DSN
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", cfg.Driver)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open failed: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: ping failed: %w", err)
	}

	return &DB{DB: db, driver: driverName}, nil
}

// rebind rewrites '?' placeholders to '$n' for postgres.
func (d *DB) rebind(query string) string {
	if d.driver != DriverPostgres {
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

func (d *DB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.ExecContext(ctx, d.rebind(query), args...)
}

func (d *DB) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.QueryContext(ctx, d.rebind(query), args...)
}

func (d *DB) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return d.QueryRowContext(ctx, d.rebind(query), args...)
}
