package playback

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/vodpipe/internal/cache"
	"github.com/ManuGH/vodpipe/internal/domain/video"
	"github.com/ManuGH/vodpipe/internal/hls"
	"github.com/ManuGH/vodpipe/internal/objectstore"
)

func newManager(f *fixture, purge bool) *Manager {
	return NewManager(ManagerDeps{
		Videos:   f.repo,
		Objects:  f.objects,
		Store:    f.store,
		Metadata: f.meta,
		Feeds:    f.feeds,
		Logger:   zerolog.Nop(),
	}, purge, hls.DefaultResolutions)
}

func seedObjects(f *fixture, rec video.Record) {
	f.objects.Seed(rec.OriginalKey, []byte("raw"))
	f.objects.Seed(rec.ThumbnailKey, []byte("jpg"))
	f.objects.Seed(objectstore.HLSKey(rec.ID, "master.m3u8"), []byte("#EXTM3U"))
	f.objects.Seed(objectstore.HLSKey(rec.ID, "720p_000.ts"), []byte("ts"))
}

func TestDeleteVideo_Owner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.seedReady(t, "owner-1")
	seedObjects(f, rec)

	_, err := f.meta.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.NoError(t, f.store.Set(ctx, hls.CacheKey(rec.ID, "master.m3u8"), "eA==", time.Hour))
	require.NoError(t, f.store.Set(ctx, hls.CacheKey(rec.ID, "720p.m3u8"), "eA==", time.Hour))

	m := newManager(f, true)
	require.NoError(t, m.DeleteVideo(ctx, rec.ID, "owner-1"))

	assert.Empty(t, f.objects.Keys())
	_, err = f.repo.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, video.ErrNotFound)

	for _, k := range []string{
		MetaKey(rec.ID),
		SignedKey(rec.ManifestKey),
		SignedKey(rec.ThumbnailKey),
		hls.CacheKey(rec.ID, "master.m3u8"),
		hls.CacheKey(rec.ID, "720p.m3u8"),
	} {
		ok, err := f.store.Exists(ctx, k)
		require.NoError(t, err)
		assert.False(t, ok, k)
	}
	assert.Equal(t, 1, f.feeds.count())
}

func TestDeleteVideo_EvictsCachedSegments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.seedReady(t, "owner-1")
	seedObjects(f, rec)

	stored := "#EXTM3U\n#EXT-X-TARGETDURATION:4\n#EXTINF:4,\n720p_000.ts\n#EXTINF:4,\n720p_001.ts\n#EXT-X-ENDLIST\n"
	f.objects.Seed(objectstore.HLSKey(rec.ID, "720p.m3u8"), []byte(stored))
	cached := "#EXTM3U\n#EXT-X-TARGETDURATION:4\n#EXTINF:4,\n1080p_000.ts\n#EXT-X-ENDLIST\n"
	require.NoError(t, f.store.Set(ctx, hls.CacheKey(rec.ID, "1080p.m3u8"), cache.EncodeBytes([]byte(cached)), time.Hour))

	other := uuid.NewString()
	segments := []string{
		hls.CacheKey(rec.ID, "720p_000.ts"),
		hls.CacheKey(rec.ID, "720p_001.ts"),
		hls.CacheKey(rec.ID, "1080p_000.ts"),
	}
	for _, k := range append(segments, hls.CacheKey(other, "720p_000.ts")) {
		require.NoError(t, f.store.Set(ctx, k, "dHM=", time.Hour))
	}

	require.NoError(t, newManager(f, true).DeleteVideo(ctx, rec.ID, "owner-1"))

	for _, k := range segments {
		ok, err := f.store.Exists(ctx, k)
		require.NoError(t, err)
		assert.False(t, ok, k)
	}
	ok, err := f.store.Exists(ctx, hls.CacheKey(other, "720p_000.ts"))
	require.NoError(t, err)
	assert.True(t, ok, "other videos keep their segments")
}

func TestDeleteVideo_KeepsRenditionsWithoutPurge(t *testing.T) {
	f := newFixture(t)
	rec := f.seedReady(t, "owner-1")
	seedObjects(f, rec)

	require.NoError(t, newManager(f, false).DeleteVideo(context.Background(), rec.ID, "owner-1"))

	assert.ElementsMatch(t, []string{rec.OriginalKey, rec.ThumbnailKey}, f.objects.Deleted())
	assert.True(t, f.objects.Has(objectstore.HLSKey(rec.ID, "720p_000.ts")))
}

func TestDeleteVideo_Forbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.seedReady(t, "owner-1")
	seedObjects(f, rec)
	m := newManager(f, true)

	for _, caller := range []string{"someone-else", ""} {
		err := m.DeleteVideo(ctx, rec.ID, caller)
		assert.ErrorIs(t, err, video.ErrForbidden)
	}
	assert.Empty(t, f.objects.Deleted())
	_, err := f.repo.Get(ctx, rec.ID)
	assert.NoError(t, err)
	assert.Zero(t, f.feeds.count())
}

func TestDeleteVideo_Unknown(t *testing.T) {
	f := newFixture(t)
	err := newManager(f, true).DeleteVideo(context.Background(), uuid.NewString(), "owner-1")
	assert.ErrorIs(t, err, video.ErrNotFound)
}

func TestSetVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.seedReady(t, "owner-1")
	m := newManager(f, true)

	_, err := f.meta.Get(ctx, rec.ID)
	require.NoError(t, err)

	require.NoError(t, m.SetVisibility(ctx, rec.ID, "owner-1", false))

	got, err := f.repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, got.IsPublic)

	ok, _ := f.store.Exists(ctx, MetaKey(rec.ID))
	assert.False(t, ok)
	assert.Equal(t, 1, f.feeds.count())

	meta, err := f.meta.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, meta.IsPublic)
	assert.False(t, *meta.IsPublic)
}

func TestSetVisibility_Forbidden(t *testing.T) {
	f := newFixture(t)
	rec := f.seedReady(t, "owner-1")

	err := newManager(f, true).SetVisibility(context.Background(), rec.ID, "intruder", false)
	assert.ErrorIs(t, err, video.ErrForbidden)

	got, err := f.repo.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPublic)
}
