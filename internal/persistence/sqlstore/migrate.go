// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlstore

import (
	"context"
	"fmt"

	"github.com/ManuGH/vodpipe/internal/log"
)

// migrations are applied in order; index+1 is the schema version.
// The DDL is portable between SQLite and PostgreSQL.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS videos (
		id              TEXT PRIMARY KEY,
		owner_id        TEXT NOT NULL,
		owner_kind      TEXT NOT NULL,
		title           TEXT NOT NULL,
		description     TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL,
		original_key    TEXT NOT NULL,
		manifest_key    TEXT,
		thumbnail_key   TEXT,
		duration_sec    DOUBLE PRECISION NOT NULL DEFAULT 0,
		width           INTEGER NOT NULL DEFAULT 0,
		height          INTEGER NOT NULL DEFAULT 0,
		views           BIGINT NOT NULL DEFAULT 0,
		likes           BIGINT NOT NULL DEFAULT 0,
		comments        BIGINT NOT NULL DEFAULT 0,
		tags            TEXT NOT NULL DEFAULT '[]',
		is_public       BOOLEAN NOT NULL DEFAULT FALSE,
		failure_reason  TEXT,
		created_at      BIGINT NOT NULL,
		updated_at      BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_videos_feed ON videos (status, is_public, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_videos_owner ON videos (owner_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_videos_popular ON videos (status, is_public, views DESC)`,
}

// Migrate brings the schema up to the latest version. It is idempotent.
func Migrate(ctx context.Context, db *DB) (int, error) {
	logger := log.WithComponent("sqlstore")

	if _, err := db.exec(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return 0, fmt.Errorf("create schema_version: %w", err)
	}

	var current int
	if err := db.queryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return current, fmt.Errorf("begin migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			_ = tx.Rollback()
			return current, fmt.Errorf("apply migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, db.rebind(`INSERT INTO schema_version (version) VALUES (?)`), i+1); err != nil {
			_ = tx.Rollback()
			return current, fmt.Errorf("record migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return current, fmt.Errorf("commit migration %d: %w", i+1, err)
		}
		current = i + 1
		logger.Info().Int(log.FieldSchema, current).Msg("schema migration applied")
	}

	return current, nil
}
