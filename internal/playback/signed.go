// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package playback serves video metadata and time-limited playback URLs
// through cache-aside layers.
package playback

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ManuGH/vodpipe/internal/cache"
	"github.com/ManuGH/vodpipe/internal/log"
	"github.com/ManuGH/vodpipe/internal/metrics"
)

// Signed URL defaults: URLs live 60m and are cached for 50m.
const (
	DefaultURLTTL         = 60 * time.Minute
	DefaultSignedCacheTTL = 50 * time.Minute
)

// Presigner issues time-limited read URLs.
type Presigner interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// ClampCacheTTL keeps a cached URL from outliving the URL itself. A cacheTTL
// that is unset or not below urlTTL becomes urlTTL-10m, or urlTTL/2 when
// urlTTL is shorter than 20m.
func ClampCacheTTL(urlTTL, cacheTTL time.Duration) time.Duration {
	if cacheTTL > 0 && cacheTTL < urlTTL {
		return cacheTTL
	}
	if urlTTL < 20*time.Minute {
		return urlTTL / 2
	}
	return urlTTL - 10*time.Minute
}

// SignedURLCache memoizes presigned read URLs under "signed:<objectKey>".
type SignedURLCache struct {
	store    cache.Store
	signer   Presigner
	urlTTL   time.Duration
	cacheTTL time.Duration
	group    singleflight.Group
	logger   zerolog.Logger
}

// NewSignedURLCache clamps cacheTTL below urlTTL.
func NewSignedURLCache(store cache.Store, signer Presigner, urlTTL, cacheTTL time.Duration, logger zerolog.Logger) *SignedURLCache {
	if urlTTL <= 0 {
		urlTTL = DefaultURLTTL
	}
	return &SignedURLCache{
		store:    store,
		signer:   signer,
		urlTTL:   urlTTL,
		cacheTTL: ClampCacheTTL(urlTTL, cacheTTL),
		logger:   logger,
	}
}

// CacheTTL returns the effective cache TTL.
func (c *SignedURLCache) CacheTTL() time.Duration { return c.cacheTTL }

// SignedKey is the cache key of objectKey's URL.
func SignedKey(objectKey string) string { return "signed:" + objectKey }

// Resolve returns a cached URL or signs a fresh one.
func (c *SignedURLCache) Resolve(ctx context.Context, objectKey string) (string, error) {
	key := SignedKey(objectKey)

	url, ok, err := c.store.Get(ctx, key)
	switch {
	case err != nil:
		metrics.RecordCacheLookup(metrics.LayerSignedURL, metrics.ResultError)
		logger := log.WithContext(ctx, c.logger)
		logger.Warn().Err(err).Str(log.FieldCacheKey, key).Msg("signed url cache read failed")
	case ok:
		metrics.RecordCacheLookup(metrics.LayerSignedURL, metrics.ResultHit)
		return url, nil
	default:
		metrics.RecordCacheLookup(metrics.LayerSignedURL, metrics.ResultMiss)
	}

	url, _, err = cache.Collapse(ctx, &c.group, key, 10*time.Second, func(ctx context.Context) (string, error) {
		u, err := c.signer.PresignGet(ctx, objectKey, c.urlTTL)
		if err != nil {
			return "", err
		}
		if err := c.store.Set(ctx, key, u, c.cacheTTL); err != nil {
			logger := log.WithContext(ctx, c.logger)
			logger.Warn().Err(err).Str(log.FieldCacheKey, key).Msg("signed url cache write failed")
		} else {
			metrics.RecordCacheFill(metrics.LayerSignedURL)
		}
		return u, nil
	})
	return url, err
}
