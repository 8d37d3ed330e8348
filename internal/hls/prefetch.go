// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/ManuGH/vodpipe/internal/cache"
	"github.com/ManuGH/vodpipe/internal/log"
	"github.com/ManuGH/vodpipe/internal/metrics"
	"github.com/ManuGH/vodpipe/internal/objectstore"
	"github.com/ManuGH/vodpipe/internal/telemetry"
)

// Prefetch defaults.
const (
	DefaultPreloadSegments = 3
	DefaultAheadCount      = 3
	DefaultConcurrency     = 8
)

// DefaultResolutions are the renditions produced by the transcoder.
var DefaultResolutions = []string{"360", "720", "1080"}

// Prefetch modes used in metrics and spans.
const (
	ModePreload = "preload"
	ModeAhead   = "ahead"
)

// PrefetchConfig bounds prefetch work.
type PrefetchConfig struct {
	PreloadSegments int
	AheadCount      int
	Concurrency     int
	// RatePerSecond caps origin fetches; 0 disables the limit.
	RatePerSecond float64
	Burst         int
	Resolutions   []string
}

func (c PrefetchConfig) withDefaults() PrefetchConfig {
	if c.PreloadSegments <= 0 {
		c.PreloadSegments = DefaultPreloadSegments
	}
	if c.AheadCount <= 0 {
		c.AheadCount = DefaultAheadCount
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Burst <= 0 {
		c.Burst = c.Concurrency
	}
	if len(c.Resolutions) == 0 {
		c.Resolutions = DefaultResolutions
	}
	return c
}

// BatchReport summarizes one prefetch batch.
type BatchReport struct {
	Attempted int
	Warmed    int
	Skipped   int
	Missing   int
	Failed    int
}

// Prefetcher warms segment cache entries so quality switches hit the cache.
// It shares the proxy's single-flight group, so a prefetch and a playback
// request for the same segment reach the origin once.
type Prefetcher struct {
	proxy   *Proxy
	cfg     PrefetchConfig
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewPrefetcher creates a prefetcher on top of proxy.
func NewPrefetcher(proxy *Proxy, cfg PrefetchConfig, logger zerolog.Logger) *Prefetcher {
	cfg = cfg.withDefaults()
	p := &Prefetcher{
		proxy:  proxy,
		cfg:    cfg,
		sem:    semaphore.NewWeighted(int64(cfg.Concurrency)),
		logger: logger,
	}
	if cfg.RatePerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst)
	}
	return p
}

// Resolutions returns the configured tiers.
func (p *Prefetcher) Resolutions() []string { return p.cfg.Resolutions }

// AheadCount returns how many segments PrefetchAhead warms by default.
func (p *Prefetcher) AheadCount() int { return p.cfg.AheadCount }

// Preload warms the first segments of every tier.
func (p *Prefetcher) Preload(ctx context.Context, videoID string, resolutions []string) BatchReport {
	return p.run(ctx, ModePreload, videoID, resolutions, 0, p.cfg.PreloadSegments)
}

// PreloadVideo preloads the configured tiers and reports failed fetches.
func (p *Prefetcher) PreloadVideo(ctx context.Context, videoID string) error {
	rep := p.Preload(ctx, videoID, p.cfg.Resolutions)
	if rep.Failed > 0 {
		return fmt.Errorf("preload %s: %d of %d segments failed", videoID, rep.Failed, rep.Attempted)
	}
	return nil
}

// PrefetchAhead warms segments current+1..current+count of every tier.
func (p *Prefetcher) PrefetchAhead(ctx context.Context, videoID string, current, count int, resolutions []string) BatchReport {
	if count <= 0 {
		count = p.cfg.AheadCount
	}
	return p.run(ctx, ModeAhead, videoID, resolutions, current+1, count)
}

// run warms segments from..from+count-1 of each tier. Indices past the end
// of a complete rendition playlist are not attempted.
func (p *Prefetcher) run(ctx context.Context, mode, videoID string, resolutions []string, from, count int) BatchReport {
	ctx, span := telemetry.Tracer("vodpipe/hls").Start(ctx, "hls.Prefetch")
	defer span.End()
	span.SetAttributes(telemetry.PrefetchAttributes(videoID, mode, len(resolutions), count)...)

	logger := log.WithContext(ctx, p.logger).With().
		Str(log.FieldVideoID, videoID).
		Str("mode", mode).
		Logger()

	var (
		mu  sync.Mutex
		rep BatchReport
		wg  sync.WaitGroup
	)
	if !ValidVideoID(videoID) {
		return rep
	}

	names := make([]string, 0, len(resolutions)*count)
	for _, r := range resolutions {
		end := from + count
		if n, ok := p.segmentCount(ctx, logger, videoID, r); ok && n < end {
			end = n
		}
		for i := max(from, 0); i < end; i++ {
			names = append(names, SegmentName(r, i))
		}
	}

	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			outcome := p.warm(ctx, logger, videoID, name)
			metrics.RecordPrefetch(mode, outcome)

			mu.Lock()
			defer mu.Unlock()
			rep.Attempted++
			switch outcome {
			case metrics.PrefetchWarmed:
				rep.Warmed++
			case metrics.PrefetchSkipped:
				rep.Skipped++
			case metrics.PrefetchMissing:
				rep.Missing++
			default:
				rep.Failed++
			}
		}(name)
	}
	wg.Wait()

	logger.Debug().
		Int("attempted", rep.Attempted).
		Int("warmed", rep.Warmed).
		Int("skipped", rep.Skipped).
		Int("missing", rep.Missing).
		Int("failed", rep.Failed).
		Msg("prefetch batch finished")
	return rep
}

// segmentCount returns the number of segments of a tier when its playlist
// is complete. The playlist goes through the manifest cache like a client
// request, without firing the segment hook.
func (p *Prefetcher) segmentCount(ctx context.Context, logger zerolog.Logger, videoID, resolution string) (int, bool) {
	name := PlaylistName(resolution)
	key := CacheKey(videoID, name)
	ttl, layer := p.proxy.ttlFor(ContentTypePlaylist)

	body, ok := p.proxy.lookup(ctx, logger, key, layer)
	if !ok {
		var err error
		body, _, err = cache.Collapse(ctx, &p.proxy.group, key, p.proxy.cfg.FetchTimeout, func(ctx context.Context) ([]byte, error) {
			return p.proxy.fill(ctx, logger, key, objectstore.HLSKey(videoID, name), layer, ttl)
		})
		if err != nil {
			return 0, false
		}
	}

	pl, err := ParseMediaPlaylist(body)
	if err != nil {
		logger.Debug().Err(err).Str(log.FieldFilename, name).Msg("unusable rendition playlist")
		return 0, false
	}
	if !pl.Complete {
		return 0, false
	}
	return len(pl.Segments), true
}

func (p *Prefetcher) warm(ctx context.Context, logger zerolog.Logger, videoID, filename string) string {
	key := CacheKey(videoID, filename)

	if ok, err := p.proxy.store.Exists(ctx, key); err == nil && ok {
		return metrics.PrefetchSkipped
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return metrics.PrefetchFailed
	}
	defer p.sem.Release(1)

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return metrics.PrefetchFailed
		}
	}

	ttl, layer := p.proxy.ttlFor(ContentTypeSegment)
	_, _, err := cache.Collapse(ctx, &p.proxy.group, key, p.proxy.cfg.FetchTimeout, func(ctx context.Context) ([]byte, error) {
		return p.proxy.fill(ctx, logger, key, objectstore.HLSKey(videoID, filename), layer, ttl)
	})
	switch {
	case err == nil:
		return metrics.PrefetchWarmed
	case errors.Is(err, objectstore.ErrNotFound):
		return metrics.PrefetchMissing
	case errors.Is(err, errTooLarge):
		return metrics.PrefetchSkipped
	default:
		logger.Warn().Err(err).Str(log.FieldFilename, filename).Msg("prefetch failed")
		return metrics.PrefetchFailed
	}
}
