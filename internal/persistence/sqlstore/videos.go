// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"modernc.org/sqlite"

	"github.com/ManuGH/vodpipe/internal/domain/video"
)

const videoColumns = `id, owner_id, owner_kind, title, description, status, original_key,
	manifest_key, thumbnail_key, duration_sec, width, height, views, likes, comments,
	tags, is_public, failure_reason, created_at, updated_at`

// VideoRepository implements video.Repository on top of database/sql.
type VideoRepository struct {
	db  *DB
	now func() time.Time
}

var _ video.Repository = (*VideoRepository)(nil)

// NewVideoRepository binds a repository to an opened, migrated database.
func NewVideoRepository(db *DB) *VideoRepository {
	return &VideoRepository{db: db, now: time.Now}
}

func (r *VideoRepository) Create(ctx context.Context, rec video.Record) error {
	const op = "sqlstore.Create"

	tags, err := json.Marshal(nonNilTags(rec.Tags))
	if err != nil {
		return fmt.Errorf("%s: encode tags: %w", op, err)
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = r.now()
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = created
	}

	_, err = r.db.exec(ctx, `INSERT INTO videos (`+videoColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.OwnerID, string(rec.OwnerKind), rec.Title, rec.Description, string(rec.Status), rec.OriginalKey,
		nullString(rec.ManifestKey), nullString(rec.ThumbnailKey), rec.DurationSec, rec.Width, rec.Height,
		rec.Views, rec.Likes, rec.Comments, string(tags), rec.IsPublic, nullString(rec.FailureReason),
		created.UnixMilli(), updated.UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return video.E(video.KindStateConflict, op, "video already exists", err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *VideoRepository) Get(ctx context.Context, id string) (video.Record, error) {
	row := r.db.queryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = ?`, id)
	rec, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return video.Record{}, video.E(video.KindNotFound, "sqlstore.Get", "video not found", nil)
	}
	if err != nil {
		return video.Record{}, fmt.Errorf("sqlstore.Get: %w", err)
	}
	return rec, nil
}

func (r *VideoRepository) TransitionStatus(ctx context.Context, id string, from, to video.Status) error {
	const op = "sqlstore.TransitionStatus"

	res, err := r.db.exec(ctx, `UPDATE videos SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), r.now().UnixMilli(), id, string(from))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return r.checkAffected(ctx, op, id, res, "video is not "+string(from))
}

func (r *VideoRepository) MarkReady(ctx context.Context, id string, result video.EncodingResult) error {
	const op = "sqlstore.MarkReady"

	res, err := r.db.exec(ctx, `UPDATE videos SET status = ?, manifest_key = ?, thumbnail_key = ?,
		duration_sec = ?, width = ?, height = ?, failure_reason = NULL, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		string(video.StatusReady), result.ManifestKey, nullString(result.ThumbnailKey),
		result.DurationSec, result.Width, result.Height, r.now().UnixMilli(),
		id, string(video.StatusProcessing), string(video.StatusReady))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return r.checkAffected(ctx, op, id, res, "video is not processing")
}

func (r *VideoRepository) MarkFailed(ctx context.Context, id, reason string) error {
	const op = "sqlstore.MarkFailed"

	res, err := r.db.exec(ctx, `UPDATE videos SET status = ?, failure_reason = ?,
		manifest_key = NULL, thumbnail_key = NULL, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		string(video.StatusFailed), reason, r.now().UnixMilli(),
		id, string(video.StatusProcessing), string(video.StatusFailed))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return r.checkAffected(ctx, op, id, res, "video is not processing")
}

func (r *VideoRepository) IncrementViews(ctx context.Context, id string) error {
	const op = "sqlstore.IncrementViews"

	res, err := r.db.exec(ctx, `UPDATE videos SET views = views + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return r.checkAffected(ctx, op, id, res, "")
}

func (r *VideoRepository) SetVisibility(ctx context.Context, id string, public bool) error {
	const op = "sqlstore.SetVisibility"

	res, err := r.db.exec(ctx, `UPDATE videos SET is_public = ?, updated_at = ? WHERE id = ?`,
		public, r.now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return r.checkAffected(ctx, op, id, res, "")
}

func (r *VideoRepository) Delete(ctx context.Context, id string) error {
	const op = "sqlstore.Delete"

	res, err := r.db.exec(ctx, `DELETE FROM videos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return video.E(video.KindNotFound, op, "video not found", nil)
	}
	return nil
}

func (r *VideoRepository) ListPublicReady(ctx context.Context, p video.Page) ([]video.Record, error) {
	rows, err := r.db.query(ctx, `SELECT `+videoColumns+` FROM videos
		WHERE status = ? AND is_public = ?
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		string(video.StatusReady), true, p.Limit, p.Offset())
	if err != nil {
		return nil, fmt.Errorf("sqlstore.ListPublicReady: %w", err)
	}
	return collect(rows)
}

func (r *VideoRepository) ListPopular(ctx context.Context, limit int) ([]video.Record, error) {
	rows, err := r.db.query(ctx, `SELECT `+videoColumns+` FROM videos
		WHERE status = ? AND is_public = ?
		ORDER BY views DESC, created_at DESC LIMIT ?`,
		string(video.StatusReady), true, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlstore.ListPopular: %w", err)
	}
	return collect(rows)
}

func (r *VideoRepository) ListByOwner(ctx context.Context, ownerID string, p video.Page) ([]video.Record, error) {
	rows, err := r.db.query(ctx, `SELECT `+videoColumns+` FROM videos
		WHERE owner_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		ownerID, p.Limit, p.Offset())
	if err != nil {
		return nil, fmt.Errorf("sqlstore.ListByOwner: %w", err)
	}
	return collect(rows)
}

// checkAffected turns a zero-row conditional update into NotFound or
// StateConflict by looking the record up once.
func (r *VideoRepository) checkAffected(ctx context.Context, op, id string, res sql.Result, conflictMsg string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		if errors.Is(err, video.ErrNotFound) {
			return video.E(video.KindNotFound, op, "video not found", nil)
		}
		return err
	}
	return video.E(video.KindStateConflict, op, conflictMsg, nil)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVideo(s scanner) (video.Record, error) {
	var (
		rec                          video.Record
		ownerKind, status, tags      string
		manifest, thumbnail, failure sql.NullString
		createdMs, updatedMs         int64
	)
	err := s.Scan(&rec.ID, &rec.OwnerID, &ownerKind, &rec.Title, &rec.Description, &status, &rec.OriginalKey,
		&manifest, &thumbnail, &rec.DurationSec, &rec.Width, &rec.Height, &rec.Views, &rec.Likes, &rec.Comments,
		&tags, &rec.IsPublic, &failure, &createdMs, &updatedMs)
	if err != nil {
		return video.Record{}, err
	}
	rec.OwnerKind = video.OwnerKind(ownerKind)
	rec.Status = video.Status(status)
	rec.ManifestKey = manifest.String
	rec.ThumbnailKey = thumbnail.String
	rec.FailureReason = failure.String
	rec.CreatedAt = time.UnixMilli(createdMs).UTC()
	rec.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	if err := json.Unmarshal([]byte(tags), &rec.Tags); err != nil {
		return video.Record{}, fmt.Errorf("decode tags of %s: %w", rec.ID, err)
	}
	return rec, nil
}

func collect(rows *sql.Rows) ([]video.Record, error) {
	defer rows.Close()

	out := make([]video.Record, 0)
	for rows.Next() {
		rec, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// isUniqueViolation recognizes primary key collisions from either driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		// SQLITE_CONSTRAINT primary code; extended codes share the low byte.
		return liteErr.Code()&0xff == 19
	}
	return false
}
