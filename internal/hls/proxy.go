// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package hls proxies HLS playlists and segments from the object store
// through the shared cache and warms segments ahead of playback.
package hls

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ManuGH/vodpipe/internal/cache"
	"github.com/ManuGH/vodpipe/internal/domain/video"
	"github.com/ManuGH/vodpipe/internal/log"
	"github.com/ManuGH/vodpipe/internal/metrics"
	"github.com/ManuGH/vodpipe/internal/objectstore"
	"github.com/ManuGH/vodpipe/internal/telemetry"
)

// Proxy defaults.
const (
	DefaultSegmentTTL        = time.Hour
	DefaultManifestTTL       = 30 * time.Minute
	DefaultMaxCacheableBytes = 16 << 20
	DefaultFetchTimeout      = 30 * time.Second
)

// CacheStatus is reported to clients in the X-Cache header.
type CacheStatus string

const (
	CacheHit    CacheStatus = "HIT"
	CacheMiss   CacheStatus = "MISS"
	CacheBypass CacheStatus = "BYPASS"
)

// Result is a servable HLS file. Exactly one of Body or Stream is set; a
// Stream must be closed by the caller.
type Result struct {
	Body        []byte
	Stream      io.ReadCloser
	Size        int64
	ContentType string
	CacheStatus CacheStatus
}

// ProxyConfig tunes TTLs and the buffering bound.
type ProxyConfig struct {
	SegmentTTL        time.Duration
	ManifestTTL       time.Duration
	MaxCacheableBytes int64
	FetchTimeout      time.Duration
}

func (c ProxyConfig) withDefaults() ProxyConfig {
	if c.SegmentTTL <= 0 {
		c.SegmentTTL = DefaultSegmentTTL
	}
	if c.ManifestTTL <= 0 {
		c.ManifestTTL = DefaultManifestTTL
	}
	if c.MaxCacheableBytes <= 0 {
		c.MaxCacheableBytes = DefaultMaxCacheableBytes
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	return c
}

// SegmentHook is told about every served segment.
type SegmentHook func(ctx context.Context, videoID string, index int)

// ProxyOption configures a Proxy.
type ProxyOption func(*Proxy)

// WithSegmentHook registers a callback run after a segment is served.
func WithSegmentHook(h SegmentHook) ProxyOption {
	return func(p *Proxy) { p.onSegment = h }
}

// Proxy serves HLS files from cache, falling back to the object store.
type Proxy struct {
	store     cache.Store
	objects   objectstore.Store
	cfg       ProxyConfig
	group     singleflight.Group
	onSegment SegmentHook
	logger    zerolog.Logger
}

// NewProxy creates a proxy.
func NewProxy(store cache.Store, objects objectstore.Store, cfg ProxyConfig, logger zerolog.Logger, opts ...ProxyOption) *Proxy {
	p := &Proxy{
		store:   store,
		objects: objects,
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// errTooLarge tells collapsed callers to stream the object themselves.
var errTooLarge = errors.New("hls: object exceeds cacheable size")

func (p *Proxy) ttlFor(contentType string) (time.Duration, string) {
	if contentType == ContentTypePlaylist {
		return p.cfg.ManifestTTL, metrics.LayerManifest
	}
	return p.cfg.SegmentTTL, metrics.LayerSegment
}

// Fetch returns one HLS file of a video. Invalid names are rejected before
// any storage access.
func (p *Proxy) Fetch(ctx context.Context, videoID, filename string) (res *Result, err error) {
	const op = "hls.Fetch"

	if !ValidVideoID(videoID) {
		return nil, video.E(video.KindValidation, op, "invalid video id", nil)
	}
	contentType, err := ValidateFilename(filename)
	if err != nil {
		return nil, video.E(video.KindValidation, op, "invalid filename", err)
	}

	ctx, span := telemetry.Tracer("vodpipe/hls").Start(ctx, "hls.Fetch")
	defer func() {
		if res != nil {
			span.SetAttributes(telemetry.SegmentAttributes(videoID, filename, string(res.CacheStatus))...)
		} else {
			span.SetAttributes(telemetry.SegmentAttributes(videoID, filename, "")...)
		}
		telemetry.RecordError(span, err, video.KindOf(err).String())
		span.End()
	}()

	ttl, layer := p.ttlFor(contentType)
	key := CacheKey(videoID, filename)
	logger := log.WithContext(ctx, p.logger).With().Str(log.FieldVideoID, videoID).Str(log.FieldFilename, filename).Logger()

	if body, ok := p.lookup(ctx, logger, key, layer); ok {
		p.served(ctx, videoID, filename)
		return &Result{Body: body, Size: int64(len(body)), ContentType: contentType, CacheStatus: CacheHit}, nil
	}

	objectKey := objectstore.HLSKey(videoID, filename)
	body, _, err := cache.Collapse(ctx, &p.group, key, p.cfg.FetchTimeout, func(ctx context.Context) ([]byte, error) {
		return p.fill(ctx, logger, key, objectKey, layer, ttl)
	})
	switch {
	case err == nil:
		p.served(ctx, videoID, filename)
		return &Result{Body: body, Size: int64(len(body)), ContentType: contentType, CacheStatus: CacheMiss}, nil
	case errors.Is(err, errTooLarge):
		res, err = p.stream(ctx, objectKey, contentType)
		if err != nil {
			return nil, p.translate(op, logger, err)
		}
		metrics.RecordCacheBypass(layer)
		p.served(ctx, videoID, filename)
		return res, nil
	default:
		return nil, p.translate(op, logger, err)
	}
}

func (p *Proxy) lookup(ctx context.Context, logger zerolog.Logger, key, layer string) ([]byte, bool) {
	raw, ok, err := p.store.Get(ctx, key)
	switch {
	case err != nil:
		metrics.RecordCacheLookup(layer, metrics.ResultError)
		logger.Warn().Err(err).Str(log.FieldCacheKey, key).Msg("segment cache read failed")
		return nil, false
	case !ok:
		metrics.RecordCacheLookup(layer, metrics.ResultMiss)
		return nil, false
	}

	body, err := cache.DecodeBytes(raw)
	if err != nil {
		metrics.RecordCacheLookup(layer, metrics.ResultError)
		logger.Warn().Err(err).Str(log.FieldCacheKey, key).Msg("dropping undecodable cache entry")
		_ = p.store.Delete(ctx, key)
		return nil, false
	}
	metrics.RecordCacheLookup(layer, metrics.ResultHit)
	return body, true
}

// fill reads the object fully when it fits the buffering bound and writes
// it to the cache.
func (p *Proxy) fill(ctx context.Context, logger zerolog.Logger, key, objectKey, layer string, ttl time.Duration) ([]byte, error) {
	obj, err := p.objects.Get(ctx, objectKey)
	if err != nil {
		return nil, err
	}
	defer obj.Body.Close()

	limit := p.cfg.MaxCacheableBytes
	if obj.Size > limit {
		return nil, errTooLarge
	}
	body, err := io.ReadAll(io.LimitReader(obj.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", objectKey, err)
	}
	if int64(len(body)) > limit {
		return nil, errTooLarge
	}

	if err := p.store.Set(ctx, key, cache.EncodeBytes(body), ttl); err != nil {
		logger.Warn().Err(err).Str(log.FieldCacheKey, key).Msg("segment cache write failed")
	} else {
		metrics.RecordCacheFill(layer)
	}
	logger.Debug().Int(log.FieldBytes, len(body)).Msg("segment fetched from origin")
	return body, nil
}

func (p *Proxy) stream(ctx context.Context, objectKey, contentType string) (*Result, error) {
	obj, err := p.objects.Get(ctx, objectKey)
	if err != nil {
		return nil, err
	}
	return &Result{Stream: obj.Body, Size: obj.Size, ContentType: contentType, CacheStatus: CacheBypass}, nil
}

func (p *Proxy) translate(op string, logger zerolog.Logger, err error) error {
	if errors.Is(err, objectstore.ErrNotFound) {
		return video.E(video.KindNotFound, op, "segment not found", nil)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	logger.Error().Err(err).Msg("origin fetch failed")
	return video.E(video.KindUnavailable, op, "content unavailable", err)
}

func (p *Proxy) served(ctx context.Context, videoID, filename string) {
	if p.onSegment == nil {
		return
	}
	if _, idx, ok := ParseSegmentName(filename); ok {
		p.onSegment(ctx, videoID, idx)
	}
}
