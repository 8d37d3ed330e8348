// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playback

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ManuGH/vodpipe/internal/cache"
	"github.com/ManuGH/vodpipe/internal/detach"
	"github.com/ManuGH/vodpipe/internal/domain/video"
	"github.com/ManuGH/vodpipe/internal/log"
	"github.com/ManuGH/vodpipe/internal/metrics"
)

// DefaultMetadataTTL is how long a ready projection stays cached.
const DefaultMetadataTTL = 5 * time.Minute

// DefaultViewEvictDelay is the pause before the second eviction after a view
// increment.
const DefaultViewEvictDelay = time.Second

// Meta is the client-facing projection of a video. Videos that are not
// ready only carry ID, Status and FailureReason.
type Meta struct {
	ID            string          `json:"id"`
	Status        video.Status    `json:"status"`
	FailureReason string          `json:"failureReason,omitempty"`
	OwnerID       string          `json:"ownerId,omitempty"`
	OwnerKind     video.OwnerKind `json:"ownerKind,omitempty"`
	Title         string          `json:"title,omitempty"`
	Description   string          `json:"description,omitempty"`
	PlayURL       string          `json:"playUrl,omitempty"`
	StreamURL     string          `json:"streamUrl,omitempty"`
	ThumbnailURL  string          `json:"thumbnailUrl,omitempty"`
	DurationSec   float64         `json:"duration,omitempty"`
	Width         int             `json:"width,omitempty"`
	Height        int             `json:"height,omitempty"`
	Views         int64           `json:"views,omitempty"`
	Likes         int64           `json:"likes,omitempty"`
	Comments      int64           `json:"comments,omitempty"`
	Tags          []string        `json:"tags,omitempty"`
	IsPublic      *bool           `json:"isPublic,omitempty"`
	CreatedAt     *time.Time      `json:"createdAt,omitempty"`
}

// Preloader warms the first segments of a freshly cached ready video.
type Preloader interface {
	PreloadVideo(ctx context.Context, videoID string) error
}

// MetadataDeps are the collaborators of a MetadataCache. Preloader is optional.
type MetadataDeps struct {
	Store     cache.Store
	Videos    video.Repository
	URLs      *SignedURLCache
	Runner    *detach.Runner
	Preloader Preloader
	Logger    zerolog.Logger
	// ViewEvictDelay defaults to DefaultViewEvictDelay; negative disables
	// the second eviction.
	ViewEvictDelay time.Duration
}

// MetadataCache is the cache-aside layer over video records, keyed
// "video:meta:<id>".
type MetadataCache struct {
	store      cache.Store
	videos     video.Repository
	urls       *SignedURLCache
	runner     *detach.Runner
	preloader  Preloader
	ttl        time.Duration
	streamBase string
	evictDelay time.Duration
	group      singleflight.Group
	logger     zerolog.Logger
}

// NewMetadataCache creates the cache. streamBase prefixes the proxy
// playlist path, e.g. "/api/v1/videos".
func NewMetadataCache(deps MetadataDeps, ttl time.Duration, streamBase string) *MetadataCache {
	if ttl <= 0 {
		ttl = DefaultMetadataTTL
	}
	evictDelay := deps.ViewEvictDelay
	if evictDelay == 0 {
		evictDelay = DefaultViewEvictDelay
	}
	return &MetadataCache{
		store:      deps.Store,
		videos:     deps.Videos,
		urls:       deps.URLs,
		runner:     deps.Runner,
		preloader:  deps.Preloader,
		ttl:        ttl,
		streamBase: streamBase,
		evictDelay: evictDelay,
		logger:     deps.Logger,
	}
}

// MetaKey is the cache key of a video's projection.
func MetaKey(id string) string { return "video:meta:" + id }

// Get returns the projection of id. Only ready projections are cached.
func (m *MetadataCache) Get(ctx context.Context, id string) (Meta, error) {
	const op = "playback.GetVideoMeta"
	if id == "" {
		return Meta{}, video.E(video.KindNotFound, op, "video not found", nil)
	}
	key := MetaKey(id)
	logger := log.WithContext(ctx, m.logger)

	cached, ok, err := cache.GetJSON[Meta](ctx, m.store, key)
	switch {
	case err != nil:
		metrics.RecordCacheLookup(metrics.LayerMetadata, metrics.ResultError)
		logger.Warn().Err(err).Str(log.FieldCacheKey, key).Msg("metadata cache read failed")
	case ok:
		metrics.RecordCacheLookup(metrics.LayerMetadata, metrics.ResultHit)
		return cached, nil
	default:
		metrics.RecordCacheLookup(metrics.LayerMetadata, metrics.ResultMiss)
	}

	meta, _, err := cache.Collapse(ctx, &m.group, key, 15*time.Second, func(ctx context.Context) (Meta, error) {
		return m.load(ctx, op, id)
	})
	return meta, err
}

func (m *MetadataCache) load(ctx context.Context, op, id string) (Meta, error) {
	rec, err := m.videos.Get(ctx, id)
	if err != nil {
		return Meta{}, err
	}
	if rec.Status != video.StatusReady {
		return Meta{ID: rec.ID, Status: rec.Status, FailureReason: rec.FailureReason}, nil
	}

	logger := log.WithContext(ctx, m.logger).With().Str(log.FieldVideoID, id).Logger()

	playURL, err := m.urls.Resolve(ctx, rec.ManifestKey)
	if err != nil {
		logger.Error().Err(err).Str(log.FieldObjectKey, rec.ManifestKey).Msg("manifest url resolution failed")
		return Meta{}, video.E(video.KindUnavailable, op, "content unavailable", err)
	}
	var thumbURL string
	if rec.ThumbnailKey != "" {
		thumbURL, err = m.urls.Resolve(ctx, rec.ThumbnailKey)
		if err != nil {
			logger.Error().Err(err).Str(log.FieldObjectKey, rec.ThumbnailKey).Msg("thumbnail url resolution failed")
			return Meta{}, video.E(video.KindUnavailable, op, "content unavailable", err)
		}
	}

	meta := project(rec)
	meta.PlayURL = playURL
	meta.ThumbnailURL = thumbURL
	if m.streamBase != "" {
		meta.StreamURL = m.streamBase + "/" + rec.ID + "/hls/master.m3u8"
	}

	key := MetaKey(id)
	if err := cache.SetJSON(ctx, m.store, key, meta, m.ttl); err != nil {
		logger.Warn().Err(err).Str(log.FieldCacheKey, key).Msg("metadata cache write failed")
	} else {
		metrics.RecordCacheFill(metrics.LayerMetadata)
	}

	if m.preloader != nil && m.runner != nil {
		_ = m.runner.Go(ctx, "preload", func(ctx context.Context) error {
			return m.preloader.PreloadVideo(ctx, id)
		})
	}
	return meta, nil
}

func project(rec video.Record) Meta {
	public := rec.IsPublic
	created := rec.CreatedAt
	return Meta{
		ID:          rec.ID,
		Status:      rec.Status,
		OwnerID:     rec.OwnerID,
		OwnerKind:   rec.OwnerKind,
		Title:       rec.Title,
		Description: rec.Description,
		DurationSec: rec.DurationSec,
		Width:       rec.Width,
		Height:      rec.Height,
		Views:       rec.Views,
		Likes:       rec.Likes,
		Comments:    rec.Comments,
		Tags:        rec.Tags,
		IsPublic:    &public,
		CreatedAt:   &created,
	}
}

// Evict drops the cached projection of id.
func (m *MetadataCache) Evict(ctx context.Context, id string) error {
	return m.store.Delete(ctx, MetaKey(id))
}

// IncrementViewCount adds one view in the background and evicts the cached
// projection afterwards. It returns without waiting for the store.
//
// A concurrent miss that loaded the record before the increment committed
// can write its projection after the first eviction, so the key is evicted
// once more after a short delay.
func (m *MetadataCache) IncrementViewCount(ctx context.Context, id string) error {
	if id == "" {
		return video.E(video.KindNotFound, "playback.IncrementViewCount", "video not found", nil)
	}
	return m.runner.Go(ctx, "view_count", func(ctx context.Context) error {
		if err := m.videos.IncrementViews(ctx, id); err != nil {
			if errors.Is(err, video.ErrNotFound) {
				return nil
			}
			return err
		}
		if err := m.Evict(ctx, id); err != nil {
			return err
		}
		if m.evictDelay < 0 {
			return nil
		}
		select {
		case <-time.After(m.evictDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
		return m.Evict(ctx, id)
	})
}
