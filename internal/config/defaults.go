// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			ListenAddr:          ":8080",
			PublicURL:           "http://localhost:8080",
			ReadTimeout:         30 * time.Second,
			WriteTimeout:        2 * time.Minute,
			IdleTimeout:         2 * time.Minute,
			ShutdownTimeout:     15 * time.Second,
			UploadRatePerMinute: 30,
			CORSOrigins:         []string{"*"},
		},
		Log:   LogConfig{Level: "info"},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Database: DatabaseConfig{
			Driver:       "sqlite",
			DSN:          "data/vodpipe.sqlite",
			BusyTimeout:  5 * time.Second,
			MaxOpenConns: 25,
		},
		Storage: StorageConfig{
			Driver:           StorageFS,
			Region:           "us-east-1",
			FSRoot:           "data/objects",
			MaxUploadBytes:   2 << 30,
			UploadURLTTL:     10 * time.Minute,
			PlaybackURLTTL:   60 * time.Minute,
			PurgeHLSOnDelete: true,
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		Queue: QueueConfig{
			Driver: QueueRedis,
			Name:   "video-processing",
			Prefix: "vodpipe",
		},
		Cache: CacheConfig{
			Driver:          CacheAuto,
			MetadataTTL:     5 * time.Minute,
			SignedURLTTL:    50 * time.Minute,
			FeedTTL:         60 * time.Second,
			PopularTTL:      5 * time.Minute,
			MineTTL:         30 * time.Second,
			JanitorInterval: time.Minute,
		},
		HLS: HLSConfig{
			SegmentTTL:          time.Hour,
			ManifestTTL:         30 * time.Minute,
			MaxCacheableBytes:   16 << 20,
			FetchTimeout:        30 * time.Second,
			Resolutions:         []string{"360", "720", "1080"},
			PreloadSegments:     3,
			PrefetchCount:       3,
			PrefetchConcurrency: 8,
		},
		Detach: DetachConfig{TaskTimeout: 30 * time.Second},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			Environment:  "development",
			SamplingRate: 1.0,
		},
	}
}
