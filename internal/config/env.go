// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "VODPIPE_"

// envReader resolves overrides through a lookup function so tests can avoid
// touching the process environment.
type envReader struct {
	lookup func(string) (string, bool)
	logger zerolog.Logger
	// consumed records every key that was consulted.
	consumed map[string]struct{}
}

func newEnvReader(lookup func(string) (string, bool), logger zerolog.Logger) *envReader {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &envReader{lookup: lookup, logger: logger, consumed: map[string]struct{}{}}
}

func isSensitive(key string) bool {
	k := strings.ToLower(key)
	for _, w := range []string{"token", "password", "secret"} {
		if strings.Contains(k, w) {
			return true
		}
	}
	return false
}

func (e *envReader) raw(key string) (string, bool) {
	e.consumed[key] = struct{}{}
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return "", false
	}
	ev := e.logger.Debug().Str("key", key).Str("source", "environment")
	if isSensitive(key) {
		ev = ev.Bool("sensitive", true)
	} else {
		ev = ev.Str("value", v)
	}
	ev.Msg("using environment variable")
	return v, true
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.raw(key); ok {
		*dst = v
	}
}

func (e *envReader) list(key string, dst *[]string) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	out := []string{}
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

func (e *envReader) integer(key string, dst *int) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.logger.Warn().Str("key", key).Str("value", v).Msg("invalid integer in environment variable, keeping previous value")
		return
	}
	*dst = i
}

func (e *envReader) int64(key string, dst *int64) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		e.logger.Warn().Str("key", key).Str("value", v).Msg("invalid integer in environment variable, keeping previous value")
		return
	}
	*dst = i
}

func (e *envReader) float(key string, dst *float64) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.logger.Warn().Str("key", key).Str("value", v).Msg("invalid float in environment variable, keeping previous value")
		return
	}
	*dst = f
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.logger.Warn().Str("key", key).Str("value", v).Msg("invalid duration in environment variable, keeping previous value")
		return
	}
	*dst = d
}

// boolean accepts "true", "false", "1", "0", "yes", "no" (case-insensitive).
func (e *envReader) boolean(key string, dst *bool) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		*dst = true
	case "false", "0", "no":
		*dst = false
	default:
		e.logger.Warn().Str("key", key).Str("value", v).Msg("invalid boolean in environment variable, keeping previous value")
	}
}

// apply overlays VODPIPE_* variables onto cfg.
func (e *envReader) apply(cfg *AppConfig) {
	p := EnvPrefix

	e.str(p+"LISTEN_ADDR", &cfg.Server.ListenAddr)
	e.str(p+"PUBLIC_URL", &cfg.Server.PublicURL)
	e.duration(p+"READ_TIMEOUT", &cfg.Server.ReadTimeout)
	e.duration(p+"WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	e.duration(p+"IDLE_TIMEOUT", &cfg.Server.IdleTimeout)
	e.duration(p+"SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	e.integer(p+"UPLOAD_RATE_PER_MINUTE", &cfg.Server.UploadRatePerMinute)
	e.list(p+"CORS_ORIGINS", &cfg.Server.CORSOrigins)
	e.str(p+"WORKER_TOKEN", &cfg.Server.WorkerToken)

	e.str(p+"LOG_LEVEL", &cfg.Log.Level)

	e.str(p+"DB_DRIVER", &cfg.Database.Driver)
	e.str(p+"DB_DSN", &cfg.Database.DSN)
	e.duration(p+"DB_BUSY_TIMEOUT", &cfg.Database.BusyTimeout)
	e.integer(p+"DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns)

	e.str(p+"REDIS_ADDR", &cfg.Redis.Addr)
	e.str(p+"REDIS_PASSWORD", &cfg.Redis.Password)
	e.integer(p+"REDIS_DB", &cfg.Redis.DB)

	e.str(p+"STORAGE_DRIVER", &cfg.Storage.Driver)
	e.str(p+"S3_BUCKET", &cfg.Storage.Bucket)
	e.str(p+"S3_REGION", &cfg.Storage.Region)
	e.str(p+"S3_ENDPOINT", &cfg.Storage.Endpoint)
	e.boolean(p+"S3_USE_PATH_STYLE", &cfg.Storage.UsePathStyle)
	e.str(p+"S3_ACCESS_KEY_ID", &cfg.Storage.AccessKeyID)
	e.str(p+"S3_SECRET_ACCESS_KEY", &cfg.Storage.SecretAccessKey)
	e.str(p+"STORAGE_FS_ROOT", &cfg.Storage.FSRoot)
	e.str(p+"STORAGE_SIGNING_SECRET", &cfg.Storage.SigningSecret)
	e.int64(p+"STORAGE_MAX_UPLOAD_BYTES", &cfg.Storage.MaxUploadBytes)
	e.duration(p+"UPLOAD_URL_TTL", &cfg.Storage.UploadURLTTL)
	e.duration(p+"PLAYBACK_URL_TTL", &cfg.Storage.PlaybackURLTTL)
	e.boolean(p+"PURGE_HLS_ON_DELETE", &cfg.Storage.PurgeHLSOnDelete)
	e.integer(p+"STORAGE_BREAKER_THRESHOLD", &cfg.Storage.BreakerThreshold)
	e.duration(p+"STORAGE_BREAKER_RESET", &cfg.Storage.BreakerReset)

	e.str(p+"QUEUE_DRIVER", &cfg.Queue.Driver)
	e.str(p+"QUEUE_NAME", &cfg.Queue.Name)
	e.str(p+"QUEUE_PREFIX", &cfg.Queue.Prefix)
	e.str(p+"SQS_QUEUE_URL", &cfg.Queue.SQSURL)
	e.str(p+"SQS_REGION", &cfg.Queue.SQSRegion)

	e.str(p+"CACHE_DRIVER", &cfg.Cache.Driver)
	e.str(p+"CACHE_DIR", &cfg.Cache.Dir)
	e.duration(p+"CACHE_METADATA_TTL", &cfg.Cache.MetadataTTL)
	e.duration(p+"CACHE_SIGNED_URL_TTL", &cfg.Cache.SignedURLTTL)
	e.duration(p+"CACHE_FEED_TTL", &cfg.Cache.FeedTTL)
	e.duration(p+"CACHE_POPULAR_TTL", &cfg.Cache.PopularTTL)
	e.duration(p+"CACHE_MINE_TTL", &cfg.Cache.MineTTL)
	e.duration(p+"CACHE_JANITOR_INTERVAL", &cfg.Cache.JanitorInterval)

	e.duration(p+"HLS_SEGMENT_TTL", &cfg.HLS.SegmentTTL)
	e.duration(p+"HLS_MANIFEST_TTL", &cfg.HLS.ManifestTTL)
	e.int64(p+"HLS_MAX_CACHEABLE_BYTES", &cfg.HLS.MaxCacheableBytes)
	e.duration(p+"HLS_FETCH_TIMEOUT", &cfg.HLS.FetchTimeout)
	e.list(p+"HLS_RESOLUTIONS", &cfg.HLS.Resolutions)
	e.integer(p+"HLS_PRELOAD_SEGMENTS", &cfg.HLS.PreloadSegments)
	e.integer(p+"HLS_PREFETCH_COUNT", &cfg.HLS.PrefetchCount)
	e.integer(p+"HLS_PREFETCH_CONCURRENCY", &cfg.HLS.PrefetchConcurrency)
	e.float(p+"HLS_PREFETCH_RATE", &cfg.HLS.PrefetchRate)

	e.duration(p+"DETACH_TASK_TIMEOUT", &cfg.Detach.TaskTimeout)

	e.boolean(p+"TELEMETRY_ENABLED", &cfg.Telemetry.Enabled)
	e.str(p+"TELEMETRY_EXPORTER", &cfg.Telemetry.Exporter)
	e.str(p+"TELEMETRY_ENDPOINT", &cfg.Telemetry.Endpoint)
	e.str(p+"TELEMETRY_ENVIRONMENT", &cfg.Telemetry.Environment)
	e.float(p+"TELEMETRY_SAMPLING_RATE", &cfg.Telemetry.SamplingRate)
}
