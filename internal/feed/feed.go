// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package feed caches the public, popular and per-owner video listings.
//
// Every listing key embeds a generation token stored under GenKey.
// Invalidate rotates the token, which makes all listing keys unreachable at
// once; the orphaned entries expire on their own TTL.
package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ManuGH/vodpipe/internal/cache"
	"github.com/ManuGH/vodpipe/internal/domain/video"
	"github.com/ManuGH/vodpipe/internal/log"
	"github.com/ManuGH/vodpipe/internal/metrics"
)

// GenKey holds the current listing generation.
const GenKey = "feed:gen"

// Listing TTLs.
const (
	DefaultFeedTTL    = 60 * time.Second
	DefaultPopularTTL = 5 * time.Minute
	DefaultMineTTL    = 30 * time.Second
)

const loadTimeout = 15 * time.Second

// TTLs configures how long each listing stays cached.
type TTLs struct {
	Feed    time.Duration
	Popular time.Duration
	Mine    time.Duration
}

func (t TTLs) withDefaults() TTLs {
	if t.Feed <= 0 {
		t.Feed = DefaultFeedTTL
	}
	if t.Popular <= 0 {
		t.Popular = DefaultPopularTTL
	}
	if t.Mine <= 0 {
		t.Mine = DefaultMineTTL
	}
	return t
}

// ThumbnailResolver turns a thumbnail object key into a playable URL.
type ThumbnailResolver interface {
	Resolve(ctx context.Context, objectKey string) (string, error)
}

// Item is one entry of a listing.
type Item struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"ownerId"`
	OwnerKind     video.OwnerKind `json:"ownerKind"`
	Title         string          `json:"title"`
	Description   string          `json:"description,omitempty"`
	Status        video.Status    `json:"status"`
	FailureReason string          `json:"failureReason,omitempty"`
	ThumbnailURL  string          `json:"thumbnailUrl,omitempty"`
	DurationSec   float64         `json:"duration,omitempty"`
	Width         int             `json:"width,omitempty"`
	Height        int             `json:"height,omitempty"`
	Views         int64           `json:"views"`
	Likes         int64           `json:"likes"`
	Comments      int64           `json:"comments"`
	Tags          []string        `json:"tags"`
	IsPublic      bool            `json:"isPublic"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Listing is one page of items.
type Listing struct {
	Items []Item `json:"items"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
}

// Cache serves listings from the shared cache, loading from the repository
// on a miss.
type Cache struct {
	store  cache.Store
	videos video.Repository
	thumbs ThumbnailResolver
	ttls   TTLs
	group  singleflight.Group
	logger zerolog.Logger
}

// New creates a listing cache. thumbs may be nil, in which case items carry
// no thumbnail URL.
func New(store cache.Store, videos video.Repository, thumbs ThumbnailResolver, ttls TTLs, logger zerolog.Logger) *Cache {
	return &Cache{
		store:  store,
		videos: videos,
		thumbs: thumbs,
		ttls:   ttls.withDefaults(),
		logger: logger,
	}
}

// GetFeed returns public ready videos, newest first.
func (c *Cache) GetFeed(ctx context.Context, page, limit int) (Listing, error) {
	p := video.NormalizePage(page, limit)
	return c.listing(ctx, fmt.Sprintf("page:%d:limit:%d", p.Page, p.Limit), c.ttls.Feed, p,
		func(ctx context.Context) ([]video.Record, error) {
			return c.videos.ListPublicReady(ctx, p)
		})
}

// GetPopular returns public ready videos by view count.
func (c *Cache) GetPopular(ctx context.Context, limit int) (Listing, error) {
	p := video.NormalizePage(1, limit)
	return c.listing(ctx, fmt.Sprintf("popular:limit:%d", p.Limit), c.ttls.Popular, p,
		func(ctx context.Context) ([]video.Record, error) {
			return c.videos.ListPopular(ctx, p.Limit)
		})
}

// GetMine returns every video of ownerID regardless of status or visibility.
func (c *Cache) GetMine(ctx context.Context, ownerID string, page, limit int) (Listing, error) {
	if ownerID == "" {
		return Listing{}, video.E(video.KindValidation, "feed.GetMine", "owner id is required", nil)
	}
	p := video.NormalizePage(page, limit)
	return c.listing(ctx, fmt.Sprintf("mine:%s:page:%d:limit:%d", ownerID, p.Page, p.Limit), c.ttls.Mine, p,
		func(ctx context.Context) ([]video.Record, error) {
			return c.videos.ListByOwner(ctx, ownerID, p)
		})
}

// Invalidate makes every cached listing stale.
func (c *Cache) Invalidate(ctx context.Context) error {
	if err := c.store.Set(ctx, GenKey, uuid.NewString(), 0); err != nil {
		return fmt.Errorf("rotate feed generation: %w", err)
	}
	logger := log.WithContext(ctx, c.logger)
	logger.Debug().Msg("feed generation rotated")
	return nil
}

func (c *Cache) generation(ctx context.Context) (string, error) {
	gen, ok, err := c.store.Get(ctx, GenKey)
	if err != nil {
		return "", err
	}
	if ok {
		return gen, nil
	}
	gen = uuid.NewString()
	if err := c.store.Set(ctx, GenKey, gen, 0); err != nil {
		return "", err
	}
	return gen, nil
}

func (c *Cache) listing(ctx context.Context, suffix string, ttl time.Duration, p video.Page,
	load func(ctx context.Context) ([]video.Record, error)) (Listing, error) {
	logger := log.WithContext(ctx, c.logger)

	gen, err := c.generation(ctx)
	if err != nil {
		// Without a generation nothing can be cached safely.
		metrics.RecordCacheLookup(metrics.LayerFeed, metrics.ResultError)
		logger.Warn().Err(err).Msg("feed generation unavailable, serving uncached")
		recs, err := load(ctx)
		if err != nil {
			return Listing{}, err
		}
		return c.build(ctx, recs, p), nil
	}

	key := "feed:" + gen + ":" + suffix
	cached, ok, err := cache.GetJSON[Listing](ctx, c.store, key)
	switch {
	case err != nil:
		metrics.RecordCacheLookup(metrics.LayerFeed, metrics.ResultError)
		logger.Warn().Err(err).Str(log.FieldCacheKey, key).Msg("feed cache read failed")
	case ok:
		metrics.RecordCacheLookup(metrics.LayerFeed, metrics.ResultHit)
		return cached, nil
	default:
		metrics.RecordCacheLookup(metrics.LayerFeed, metrics.ResultMiss)
	}

	out, _, err := cache.Collapse(ctx, &c.group, key, loadTimeout, func(ctx context.Context) (Listing, error) {
		recs, err := load(ctx)
		if err != nil {
			return Listing{}, err
		}
		l := c.build(ctx, recs, p)
		if err := cache.SetJSON(ctx, c.store, key, l, ttl); err != nil {
			logger.Warn().Err(err).Str(log.FieldCacheKey, key).Msg("feed cache write failed")
		} else {
			metrics.RecordCacheFill(metrics.LayerFeed)
		}
		return l, nil
	})
	return out, err
}

func (c *Cache) build(ctx context.Context, recs []video.Record, p video.Page) Listing {
	items := make([]Item, 0, len(recs))
	for _, r := range recs {
		items = append(items, c.item(ctx, r))
	}
	return Listing{Items: items, Page: p.Page, Limit: p.Limit}
}

func (c *Cache) item(ctx context.Context, r video.Record) Item {
	it := Item{
		ID:            r.ID,
		OwnerID:       r.OwnerID,
		OwnerKind:     r.OwnerKind,
		Title:         r.Title,
		Description:   r.Description,
		Status:        r.Status,
		FailureReason: r.FailureReason,
		DurationSec:   r.DurationSec,
		Width:         r.Width,
		Height:        r.Height,
		Views:         r.Views,
		Likes:         r.Likes,
		Comments:      r.Comments,
		Tags:          r.Tags,
		IsPublic:      r.IsPublic,
		CreatedAt:     r.CreatedAt,
	}
	if it.Tags == nil {
		it.Tags = []string{}
	}
	if c.thumbs != nil && r.ThumbnailKey != "" {
		url, err := c.thumbs.Resolve(ctx, r.ThumbnailKey)
		if err != nil {
			logger := log.WithContext(ctx, c.logger)
			logger.Debug().Err(err).
				Str(log.FieldVideoID, r.ID).
				Msg("thumbnail url unavailable for listing")
		} else {
			it.ThumbnailURL = url
		}
	}
	return it
}
