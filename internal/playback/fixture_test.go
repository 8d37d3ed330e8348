// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/vodpipe/internal/cache"
	"github.com/ManuGH/vodpipe/internal/detach"
	"github.com/ManuGH/vodpipe/internal/domain/video"
	"github.com/ManuGH/vodpipe/internal/objectstore"
	"github.com/ManuGH/vodpipe/internal/objectstore/objectstoretest"
	"github.com/ManuGH/vodpipe/internal/persistence/sqlstore"
	"github.com/ManuGH/vodpipe/internal/persistence/sqlstore/sqlstoretest"
)

type recordingPreloader struct {
	mu  sync.Mutex
	ids []string
}

func (p *recordingPreloader) PreloadVideo(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, id)
	return nil
}

func (p *recordingPreloader) calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ids...)
}

type countingFeeds struct {
	mu sync.Mutex
	n  int
}

func (f *countingFeeds) Invalidate(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	return nil
}

func (f *countingFeeds) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

type fixture struct {
	repo      *sqlstore.VideoRepository
	store     *cache.MemoryStore
	objects   *objectstoretest.Memory
	runner    *detach.Runner
	urls      *SignedURLCache
	preloader *recordingPreloader
	meta      *MetadataCache
	feeds     *countingFeeds
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:      sqlstoretest.NewRepo(t),
		store:     cache.NewMemoryStore(0),
		objects:   objectstoretest.New(),
		runner:    detach.New(5*time.Second, zerolog.Nop()),
		preloader: &recordingPreloader{},
		feeds:     &countingFeeds{},
	}
	t.Cleanup(f.runner.Wait)
	f.urls = NewSignedURLCache(f.store, f.objects, DefaultURLTTL, DefaultSignedCacheTTL, zerolog.Nop())
	f.meta = NewMetadataCache(MetadataDeps{
		Store:     f.store,
		Videos:    f.repo,
		URLs:      f.urls,
		Runner:    f.runner,
		Preloader: f.preloader,
		Logger:    zerolog.Nop(),

		ViewEvictDelay: 10 * time.Millisecond,
	}, 0, "/api/v1/videos")
	return f
}

func (f *fixture) seedReady(t *testing.T, owner string) video.Record {
	t.Helper()
	id := uuid.NewString()
	return sqlstoretest.Seed(t, f.repo, video.Record{
		ID:           id,
		OwnerID:      owner,
		Title:        "Golden retriever litter",
		Status:       video.StatusReady,
		OriginalKey:  objectstore.RawKey(id),
		ManifestKey:  objectstore.HLSKey(id, "master.m3u8"),
		ThumbnailKey: objectstore.ThumbnailPrefix + id + ".jpg",
		DurationSec:  42.5,
		Width:        1280,
		Height:       720,
		Tags:         []string{"puppies"},
		IsPublic:     true,
	})
}
