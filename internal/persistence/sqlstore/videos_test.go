// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlstore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/vodpipe/internal/domain/video"
)

func openTestRepo(t *testing.T) *VideoRepository {
	t.Helper()

	cfg := DefaultConfig(filepath.Join(t.TempDir(), "videos.sqlite"))
	cfg.MaxOpenConns = 1
	db, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	v, err := Migrate(context.Background(), db)
	require.NoError(t, err)
	require.Equal(t, len(migrations), v)

	return NewVideoRepository(db)
}

func pendingRecord(id, owner string, created time.Time) video.Record {
	return video.Record{
		ID:          id,
		OwnerID:     owner,
		OwnerKind:   video.OwnerBreeder,
		Title:       "Puppy " + id,
		Status:      video.StatusPending,
		OriginalKey: "videos/raw/" + id + ".mp4",
		Tags:        []string{"puppies", "golden"},
		IsPublic:    true,
		CreatedAt:   created,
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	repo := openTestRepo(t)

	v, err := Migrate(context.Background(), repo.db)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)
}

func TestCreateGet_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, pendingRecord("v1", "u1", created)))

	got, err := repo.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, video.StatusPending, got.Status)
	assert.Equal(t, video.OwnerBreeder, got.OwnerKind)
	assert.Equal(t, []string{"puppies", "golden"}, got.Tags)
	assert.True(t, got.IsPublic)
	assert.Empty(t, got.ManifestKey)
	assert.Equal(t, created, got.CreatedAt)
	assert.Equal(t, created, got.UpdatedAt)
}

func TestCreate_DuplicateIsConflict(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	require.NoError(t, repo.Create(ctx, pendingRecord("v1", "u1", time.Now())))
	err := repo.Create(ctx, pendingRecord("v1", "u1", time.Now()))
	assert.ErrorIs(t, err, video.ErrStateConflict)
}

func TestGet_NotFound(t *testing.T) {
	_, err := openTestRepo(t).Get(context.Background(), "missing")
	assert.ErrorIs(t, err, video.ErrNotFound)
}

func TestTransitionStatus(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	require.NoError(t, repo.Create(ctx, pendingRecord("v1", "u1", time.Now())))

	require.NoError(t, repo.TransitionStatus(ctx, "v1", video.StatusPending, video.StatusProcessing))

	err := repo.TransitionStatus(ctx, "v1", video.StatusPending, video.StatusProcessing)
	assert.ErrorIs(t, err, video.ErrStateConflict)

	err = repo.TransitionStatus(ctx, "nope", video.StatusPending, video.StatusProcessing)
	assert.ErrorIs(t, err, video.ErrNotFound)
}

func TestTransitionStatus_ConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	require.NoError(t, repo.Create(ctx, pendingRecord("v1", "u1", time.Now())))

	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.TransitionStatus(ctx, "v1", video.StatusPending, video.StatusProcessing)
			switch {
			case err == nil:
				wins.Add(1)
			case video.KindOf(err) == video.KindStateConflict:
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(7), conflicts.Load())
}

func TestMarkReady(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	require.NoError(t, repo.Create(ctx, pendingRecord("v1", "u1", time.Now())))

	res := video.EncodingResult{
		ManifestKey:  "videos/hls/v1/master.m3u8",
		ThumbnailKey: "videos/thumbnails/v1.jpg",
		DurationSec:  42.5,
		Width:        1920,
		Height:       1080,
	}

	err := repo.MarkReady(ctx, "v1", res)
	assert.ErrorIs(t, err, video.ErrStateConflict, "pending videos cannot be completed")

	require.NoError(t, repo.TransitionStatus(ctx, "v1", video.StatusPending, video.StatusProcessing))
	require.NoError(t, repo.MarkReady(ctx, "v1", res))

	got, err := repo.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, video.StatusReady, got.Status)
	assert.Equal(t, res.ManifestKey, got.ManifestKey)
	assert.Equal(t, res.ThumbnailKey, got.ThumbnailKey)
	assert.InDelta(t, 42.5, got.DurationSec, 0.001)
	assert.Equal(t, 1920, got.Width)

	// Worker retries overwrite unconditionally.
	require.NoError(t, repo.MarkReady(ctx, "v1", res))

	err = repo.MarkReady(ctx, "nope", res)
	assert.ErrorIs(t, err, video.ErrNotFound)
}

func TestTerminalStatusIsFinal(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	ready := video.EncodingResult{ManifestKey: "videos/hls/v1/master.m3u8", ThumbnailKey: "videos/thumbs/v1.jpg"}

	require.NoError(t, repo.Create(ctx, pendingRecord("v1", "u1", time.Now())))
	require.NoError(t, repo.TransitionStatus(ctx, "v1", video.StatusPending, video.StatusProcessing))
	require.NoError(t, repo.MarkReady(ctx, "v1", ready))

	err := repo.MarkFailed(ctx, "v1", "late failure from an earlier attempt")
	assert.ErrorIs(t, err, video.ErrStateConflict)

	got, err := repo.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, video.StatusReady, got.Status)
	assert.Equal(t, ready.ManifestKey, got.ManifestKey)
	assert.Equal(t, ready.ThumbnailKey, got.ThumbnailKey)
	assert.Empty(t, got.FailureReason)

	require.NoError(t, repo.Create(ctx, pendingRecord("v2", "u1", time.Now())))
	require.NoError(t, repo.TransitionStatus(ctx, "v2", video.StatusPending, video.StatusProcessing))
	require.NoError(t, repo.MarkFailed(ctx, "v2", "ffmpeg exited 1"))

	// Redelivery of the same outcome stays idempotent.
	require.NoError(t, repo.MarkFailed(ctx, "v2", "ffmpeg exited 1"))

	err = repo.MarkReady(ctx, "v2", video.EncodingResult{ManifestKey: "videos/hls/v2/master.m3u8"})
	assert.ErrorIs(t, err, video.ErrStateConflict)

	got, err = repo.Get(ctx, "v2")
	require.NoError(t, err)
	assert.Equal(t, video.StatusFailed, got.Status)
	assert.Equal(t, "ffmpeg exited 1", got.FailureReason)
	assert.Empty(t, got.ManifestKey)
}

func TestIncrementViews_Concurrent(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	require.NoError(t, repo.Create(ctx, pendingRecord("v1", "u1", time.Now())))

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.IncrementViews(ctx, "v1"))
		}()
	}
	wg.Wait()

	got, err := repo.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, int64(25), got.Views)

	assert.ErrorIs(t, repo.IncrementViews(ctx, "nope"), video.ErrNotFound)
}

func TestSetVisibilityAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	require.NoError(t, repo.Create(ctx, pendingRecord("v1", "u1", time.Now())))

	require.NoError(t, repo.SetVisibility(ctx, "v1", false))
	got, err := repo.Get(ctx, "v1")
	require.NoError(t, err)
	assert.False(t, got.IsPublic)

	require.NoError(t, repo.Delete(ctx, "v1"))
	assert.ErrorIs(t, repo.Delete(ctx, "v1"), video.ErrNotFound)
	assert.ErrorIs(t, repo.SetVisibility(ctx, "v1", true), video.ErrNotFound)
}

func seedReady(t *testing.T, repo *VideoRepository, id, owner string, created time.Time, public bool, views int64) {
	t.Helper()
	rec := pendingRecord(id, owner, created)
	rec.Status = video.StatusReady
	rec.ManifestKey = "videos/hls/" + id + "/master.m3u8"
	rec.IsPublic = public
	rec.Views = views
	require.NoError(t, repo.Create(context.Background(), rec))
}

func TestListings(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		seedReady(t, repo, fmt.Sprintf("r%d", i), "u1", base.Add(time.Duration(i)*time.Hour), true, int64(10-i))
	}
	seedReady(t, repo, "private", "u1", base.Add(10*time.Hour), false, 100)
	require.NoError(t, repo.Create(ctx, pendingRecord("pending", "u1", base.Add(11*time.Hour))))
	require.NoError(t, repo.Create(ctx, pendingRecord("other", "u2", base)))

	feed, err := repo.ListPublicReady(ctx, video.Page{Page: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, feed, 2)
	assert.Equal(t, "r4", feed[0].ID)
	assert.Equal(t, "r3", feed[1].ID)

	page3, err := repo.ListPublicReady(ctx, video.Page{Page: 3, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, "r0", page3[0].ID)

	empty, err := repo.ListPublicReady(ctx, video.Page{Page: 9, Limit: 2})
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	popular, err := repo.ListPopular(ctx, 3)
	require.NoError(t, err)
	require.Len(t, popular, 3)
	assert.Equal(t, []string{"r0", "r1", "r2"}, []string{popular[0].ID, popular[1].ID, popular[2].ID})

	mine, err := repo.ListByOwner(ctx, "u1", video.Page{Page: 1, Limit: 50})
	require.NoError(t, err)
	assert.Len(t, mine, 7)
	assert.Equal(t, "pending", mine[0].ID)
}

func TestRebind(t *testing.T) {
	pg := &DB{driver: DriverPostgres}
	assert.Equal(t, "UPDATE v SET a = $1 WHERE id = $2", pg.rebind("UPDATE v SET a = ? WHERE id = ?"))

	lite := &DB{driver: DriverSQLite}
	assert.Equal(t, "SELECT ?", lite.rebind("SELECT ?"))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle"})
	assert.Error(t, err)
}
