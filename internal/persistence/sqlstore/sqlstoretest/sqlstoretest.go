// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package sqlstoretest opens throwaway SQLite repositories for tests.
package sqlstoretest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/vodpipe/internal/domain/video"
	"github.com/ManuGH/vodpipe/internal/persistence/sqlstore"
)

// NewRepo returns a migrated repository in a temp dir, closed on cleanup.
func NewRepo(tb testing.TB) *sqlstore.VideoRepository {
	tb.Helper()

	cfg := sqlstore.DefaultConfig(filepath.Join(tb.TempDir(), "vodpipe.sqlite"))
	cfg.MaxOpenConns = 1
	db, err := sqlstore.Open(context.Background(), cfg)
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	tb.Cleanup(func() { _ = db.Close() })

	if _, err := sqlstore.Migrate(context.Background(), db); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	return sqlstore.NewVideoRepository(db)
}

// Seed inserts a record, filling required fields that are left empty.
func Seed(tb testing.TB, repo video.Repository, rec video.Record) video.Record {
	tb.Helper()

	if rec.OwnerKind == "" {
		rec.OwnerKind = video.OwnerOwner
	}
	if rec.Title == "" {
		rec.Title = "clip " + rec.ID
	}
	if rec.Status == "" {
		rec.Status = video.StatusPending
	}
	if rec.OriginalKey == "" {
		rec.OriginalKey = "videos/raw/" + rec.ID + ".mp4"
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	if err := repo.Create(context.Background(), rec); err != nil {
		tb.Fatalf("seed %s: %v", rec.ID, err)
	}
	return rec
}
