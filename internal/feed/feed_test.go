package feed

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/vodpipe/internal/cache"
	"github.com/ManuGH/vodpipe/internal/domain/video"
	"github.com/ManuGH/vodpipe/internal/persistence/sqlstore"
	"github.com/ManuGH/vodpipe/internal/persistence/sqlstore/sqlstoretest"
)

type fakeThumbs struct{ fail map[string]bool }

func (f fakeThumbs) Resolve(_ context.Context, key string) (string, error) {
	if f.fail[key] {
		return "", errors.New("signer down")
	}
	return "https://cdn.test/" + key, nil
}

type env struct {
	mr    *miniredis.Miniredis
	repo  *sqlstore.VideoRepository
	feeds *Cache
}

func newEnv(t *testing.T, thumbs ThumbnailResolver) *env {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := sqlstoretest.NewRepo(t)
	return &env{
		mr:    mr,
		repo:  repo,
		feeds: New(cache.NewRedisStore(client, zerolog.Nop()), repo, thumbs, TTLs{}, zerolog.Nop()),
	}
}

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func (e *env) seed(t *testing.T, owner string, status video.Status, public bool, age time.Duration, views int64) video.Record {
	t.Helper()
	id := uuid.NewString()
	rec := video.Record{
		ID:        id,
		OwnerID:   owner,
		Status:    status,
		IsPublic:  public,
		Views:     views,
		CreatedAt: base.Add(-age),
	}
	if status == video.StatusReady {
		rec.ManifestKey = "videos/hls/" + id + "/master.m3u8"
		rec.ThumbnailKey = "videos/thumbnails/" + id + ".jpg"
	}
	return sqlstoretest.Seed(t, e.repo, rec)
}

func (e *env) gen(t *testing.T) string {
	t.Helper()
	gen, err := e.mr.Get(GenKey)
	require.NoError(t, err)
	require.NotEmpty(t, gen)
	return gen
}

func ids(l Listing) []string {
	out := make([]string, 0, len(l.Items))
	for _, it := range l.Items {
		out = append(out, it.ID)
	}
	return out
}

func TestGetFeed_PublicReadyNewestFirst(t *testing.T) {
	e := newEnv(t, fakeThumbs{})
	ctx := context.Background()
	older := e.seed(t, "a", video.StatusReady, true, 2*time.Hour, 0)
	newer := e.seed(t, "b", video.StatusReady, true, time.Hour, 0)
	e.seed(t, "a", video.StatusReady, false, 0, 0)
	e.seed(t, "a", video.StatusProcessing, true, 0, 0)

	l, err := e.feeds.GetFeed(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{newer.ID, older.ID}, ids(l))
	assert.Equal(t, 1, l.Page)
	assert.Equal(t, video.DefaultPageLimit, l.Limit)
	assert.Equal(t, "https://cdn.test/"+newer.ThumbnailKey, l.Items[0].ThumbnailURL)

	gen := e.gen(t)
	key := fmt.Sprintf("feed:%s:page:1:limit:20", gen)
	assert.True(t, e.mr.Exists(key))
	assert.Equal(t, DefaultFeedTTL, e.mr.TTL(key))
}

func TestGetFeed_ServedFromCacheUntilInvalidated(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	first := e.seed(t, "a", video.StatusReady, true, time.Hour, 0)

	before, err := e.feeds.GetFeed(ctx, 1, 10)
	require.NoError(t, err)

	second := e.seed(t, "a", video.StatusReady, true, 0, 0)
	cached, err := e.feeds.GetFeed(ctx, 1, 10)
	require.NoError(t, err)
	if diff := cmp.Diff(before, cached); diff != "" {
		t.Fatalf("cached listing changed (-before +cached):\n%s", diff)
	}

	require.NoError(t, e.feeds.Invalidate(ctx))
	after, err := e.feeds.GetFeed(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID, first.ID}, ids(after))
}

func TestGetFeed_Pagination(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	var want []string
	for i := 0; i < 5; i++ {
		want = append(want, e.seed(t, "a", video.StatusReady, true, time.Duration(i)*time.Minute, 0).ID)
	}

	p1, err := e.feeds.GetFeed(ctx, 1, 2)
	require.NoError(t, err)
	p3, err := e.feeds.GetFeed(ctx, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, want[:2], ids(p1))
	assert.Equal(t, want[4:], ids(p3))

	big, err := e.feeds.GetFeed(ctx, 1, 500)
	require.NoError(t, err)
	assert.Equal(t, video.MaxPageLimit, big.Limit)
}

func TestGetPopular(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	low := e.seed(t, "a", video.StatusReady, true, 0, 3)
	high := e.seed(t, "b", video.StatusReady, true, time.Hour, 90)
	e.seed(t, "b", video.StatusReady, false, 0, 1000)

	l, err := e.feeds.GetPopular(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{high.ID, low.ID}, ids(l))

	key := fmt.Sprintf("feed:%s:popular:limit:10", e.gen(t))
	assert.Equal(t, DefaultPopularTTL, e.mr.TTL(key))
}

func TestGetMine_AnyStatusAndVisibility(t *testing.T) {
	e := newEnv(t, fakeThumbs{})
	ctx := context.Background()
	pending := e.seed(t, "me", video.StatusPending, true, 0, 0)
	private := e.seed(t, "me", video.StatusReady, false, time.Hour, 0)
	e.seed(t, "other", video.StatusReady, true, 0, 0)

	l, err := e.feeds.GetMine(ctx, "me", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, []string{pending.ID, private.ID}, ids(l))
	assert.Empty(t, l.Items[0].ThumbnailURL)
	assert.Equal(t, []string{}, l.Items[0].Tags)

	key := fmt.Sprintf("feed:%s:mine:me:page:1:limit:20", e.gen(t))
	assert.Equal(t, DefaultMineTTL, e.mr.TTL(key))

	_, err = e.feeds.GetMine(ctx, "", 1, 20)
	assert.ErrorIs(t, err, video.ErrValidation)
}

func TestListing_ThumbnailIsBestEffort(t *testing.T) {
	rec := video.Record{ID: uuid.NewString(), ThumbnailKey: "videos/thumbnails/x.jpg"}
	c := New(cache.NewMemoryStore(0), nil, fakeThumbs{fail: map[string]bool{rec.ThumbnailKey: true}}, TTLs{}, zerolog.Nop())

	it := c.item(context.Background(), rec)
	assert.Equal(t, rec.ID, it.ID)
	assert.Empty(t, it.ThumbnailURL)
}

func TestListing_StoreDownServesUncached(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	rec := e.seed(t, "a", video.StatusReady, true, 0, 0)
	e.mr.SetError("LOADING")

	l, err := e.feeds.GetFeed(ctx, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, []string{rec.ID}, ids(l))
}
