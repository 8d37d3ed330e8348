// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/vodpipe/internal/validate"
)

// Validate checks the merged configuration and reports every problem at once.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.ListenAddr("server.listen_addr", cfg.Server.ListenAddr)
	v.URL("server.public_url", cfg.Server.PublicURL, []string{"http", "https"})
	v.PositiveDuration("server.read_timeout", cfg.Server.ReadTimeout)
	v.PositiveDuration("server.write_timeout", cfg.Server.WriteTimeout)
	v.PositiveDuration("server.shutdown_timeout", cfg.Server.ShutdownTimeout)
	v.NonNegative("server.upload_rate_per_minute", cfg.Server.UploadRatePerMinute)

	if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil || cfg.Log.Level == "" {
		v.AddError("log.level", "unknown log level", cfg.Log.Level)
	}

	v.OneOf("database.driver", cfg.Database.Driver, []string{"sqlite", "postgres"})
	v.NotEmpty("database.dsn", cfg.Database.DSN)
	v.NonNegative("database.max_open_conns", cfg.Database.MaxOpenConns)

	v.Range("redis.db", cfg.Redis.DB, 0, 15)

	v.OneOf("storage.driver", cfg.Storage.Driver, []string{StorageFS, StorageS3})
	switch cfg.Storage.Driver {
	case StorageS3:
		v.NotEmpty("storage.bucket", cfg.Storage.Bucket)
		v.NotEmpty("storage.region", cfg.Storage.Region)
		if cfg.Storage.Endpoint != "" {
			v.URL("storage.endpoint", cfg.Storage.Endpoint, []string{"http", "https"})
		}
	case StorageFS:
		v.NotEmpty("storage.fs_root", cfg.Storage.FSRoot)
		if s := cfg.Storage.SigningSecret; s != "" && len(s) < 16 {
			v.AddError("storage.signing_secret", "must be at least 16 characters", masked)
		}
	}
	v.PositiveDuration("storage.upload_url_ttl", cfg.Storage.UploadURLTTL)
	v.PositiveDuration("storage.playback_url_ttl", cfg.Storage.PlaybackURLTTL)
	v.Positive("storage.breaker_threshold", cfg.Storage.BreakerThreshold)
	v.PositiveDuration("storage.breaker_reset", cfg.Storage.BreakerReset)

	v.OneOf("queue.driver", cfg.Queue.Driver, []string{QueueRedis, QueueSQS})
	v.NotEmpty("queue.name", cfg.Queue.Name)
	switch cfg.Queue.Driver {
	case QueueRedis:
		if cfg.Redis.Addr == "" {
			v.AddError("redis.addr", "required when queue.driver is redis", cfg.Redis.Addr)
		}
	case QueueSQS:
		v.URL("queue.sqs_url", cfg.Queue.SQSURL, []string{"https", "http"})
	}

	v.OneOf("cache.driver", cfg.Cache.Driver, []string{CacheAuto, CacheRedis, CacheMemory, CacheBadger})
	switch cfg.Cache.Driver {
	case CacheRedis:
		if cfg.Redis.Addr == "" {
			v.AddError("redis.addr", "required when cache.driver is redis", cfg.Redis.Addr)
		}
	case CacheBadger:
		v.NotEmpty("cache.dir", cfg.Cache.Dir)
	}
	v.PositiveDuration("cache.metadata_ttl", cfg.Cache.MetadataTTL)
	v.PositiveDuration("cache.signed_url_ttl", cfg.Cache.SignedURLTTL)
	v.DurationBelow("cache.signed_url_ttl", cfg.Cache.SignedURLTTL, "storage.playback_url_ttl", cfg.Storage.PlaybackURLTTL)
	v.PositiveDuration("cache.feed_ttl", cfg.Cache.FeedTTL)
	v.PositiveDuration("cache.popular_ttl", cfg.Cache.PopularTTL)
	v.PositiveDuration("cache.mine_ttl", cfg.Cache.MineTTL)

	// Projections embed URLs taken from the signed URL cache, so a URL can be
	// served for signed_url_ttl plus the longest projection TTL.
	projectionField, projectionTTL := "cache.metadata_ttl", cfg.Cache.MetadataTTL
	for _, p := range []struct {
		field string
		ttl   time.Duration
	}{
		{"cache.feed_ttl", cfg.Cache.FeedTTL},
		{"cache.popular_ttl", cfg.Cache.PopularTTL},
		{"cache.mine_ttl", cfg.Cache.MineTTL},
	} {
		if p.ttl > projectionTTL {
			projectionField, projectionTTL = p.field, p.ttl
		}
	}
	v.DurationBelow("cache.signed_url_ttl+"+projectionField, cfg.Cache.SignedURLTTL+projectionTTL,
		"storage.playback_url_ttl", cfg.Storage.PlaybackURLTTL)

	v.PositiveDuration("hls.segment_ttl", cfg.HLS.SegmentTTL)
	v.PositiveDuration("hls.manifest_ttl", cfg.HLS.ManifestTTL)
	if cfg.HLS.MaxCacheableBytes <= 0 {
		v.AddError("hls.max_cacheable_bytes", "must be positive", cfg.HLS.MaxCacheableBytes)
	}
	v.PositiveDuration("hls.fetch_timeout", cfg.HLS.FetchTimeout)
	if len(cfg.HLS.Resolutions) == 0 {
		v.AddError("hls.resolutions", "at least one resolution is required", cfg.HLS.Resolutions)
	}
	for i, r := range cfg.HLS.Resolutions {
		if n, err := strconv.Atoi(r); err != nil || n < 100 || n > 9999 {
			v.AddError(fmt.Sprintf("hls.resolutions[%d]", i), "must be a line count such as 720", r)
		}
	}
	v.Range("hls.preload_segments", cfg.HLS.PreloadSegments, 0, 20)
	v.Range("hls.prefetch_count", cfg.HLS.PrefetchCount, 1, 20)
	v.Range("hls.prefetch_concurrency", cfg.HLS.PrefetchConcurrency, 1, 256)
	v.FloatRange("hls.prefetch_rate", cfg.HLS.PrefetchRate, 0, 10000)

	v.PositiveDuration("detach.task_timeout", cfg.Detach.TaskTimeout)

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
	}
	v.FloatRange("telemetry.sampling_rate", cfg.Telemetry.SamplingRate, 0, 1)

	return v.Err()
}
