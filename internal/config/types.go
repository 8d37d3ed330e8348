// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the service configuration.
//
// Precedence is defaults, then the YAML file (strict: unknown keys are
// fatal), then VODPIPE_* environment variables. The merged result is
// validated as a whole before it is used.
package config

import "time"

// AppConfig is the complete service configuration.
type AppConfig struct {
	// Version is injected from the binary, never read from the file.
	Version string `yaml:"-"`

	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Storage   StorageConfig   `yaml:"storage"`
	Queue     QueueConfig     `yaml:"queue"`
	Cache     CacheConfig     `yaml:"cache"`
	HLS       HLSConfig       `yaml:"hls"`
	Detach    DetachConfig    `yaml:"detach"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	// PublicURL is the externally reachable origin, used for locally
	// signed object URLs.
	PublicURL       string        `yaml:"public_url"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// UploadRatePerMinute limits upload-url requests per client IP.
	UploadRatePerMinute int      `yaml:"upload_rate_per_minute"`
	CORSOrigins         []string `yaml:"cors_origins"`
	// WorkerToken authenticates transcoding worker callbacks.
	WorkerToken string `yaml:"worker_token"`
}

// LogConfig configures zerolog. Level is hot-reloadable.
type LogConfig struct {
	Level string `yaml:"level"`
}

// DatabaseConfig selects the record store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	// DSN is a file path for sqlite or a connection URL for postgres.
	DSN          string        `yaml:"dsn"`
	BusyTimeout  time.Duration `yaml:"busy_timeout"`
	MaxOpenConns int           `yaml:"max_open_conns"`
}

// RedisConfig configures the shared cache and the Redis job queue. An empty
// Addr selects the in-process cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StorageConfig selects and tunes the object store.
type StorageConfig struct {
	Driver string `yaml:"driver"`

	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	UsePathStyle    bool   `yaml:"use_path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`

	FSRoot         string `yaml:"fs_root"`
	SigningSecret  string `yaml:"signing_secret"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`

	UploadURLTTL     time.Duration `yaml:"upload_url_ttl"`
	PlaybackURLTTL   time.Duration `yaml:"playback_url_ttl"`
	PurgeHLSOnDelete bool          `yaml:"purge_hls_on_delete"`

	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerReset     time.Duration `yaml:"breaker_reset"`
}

// QueueConfig selects the encode job producer.
type QueueConfig struct {
	Driver    string `yaml:"driver"`
	Name      string `yaml:"name"`
	Prefix    string `yaml:"prefix"`
	SQSURL    string `yaml:"sqs_url"`
	SQSRegion string `yaml:"sqs_region"`
}

// CacheConfig selects the cache backend and holds the cache-aside TTLs.
type CacheConfig struct {
	// Driver is auto, redis, memory or badger. auto uses Redis when
	// redis.addr is set and memory otherwise.
	Driver string `yaml:"driver"`
	// Dir is the badger data directory.
	Dir string `yaml:"dir"`

	MetadataTTL     time.Duration `yaml:"metadata_ttl"`
	SignedURLTTL    time.Duration `yaml:"signed_url_ttl"`
	FeedTTL         time.Duration `yaml:"feed_ttl"`
	PopularTTL      time.Duration `yaml:"popular_ttl"`
	MineTTL         time.Duration `yaml:"mine_ttl"`
	JanitorInterval time.Duration `yaml:"janitor_interval"`
}

// HLSConfig tunes the segment proxy and the prefetcher.
type HLSConfig struct {
	SegmentTTL          time.Duration `yaml:"segment_ttl"`
	ManifestTTL         time.Duration `yaml:"manifest_ttl"`
	MaxCacheableBytes   int64         `yaml:"max_cacheable_bytes"`
	FetchTimeout        time.Duration `yaml:"fetch_timeout"`
	Resolutions         []string      `yaml:"resolutions"`
	PreloadSegments     int           `yaml:"preload_segments"`
	PrefetchCount       int           `yaml:"prefetch_count"`
	PrefetchConcurrency int           `yaml:"prefetch_concurrency"`
	// PrefetchRate caps origin fetches per second; 0 disables the limit.
	PrefetchRate float64 `yaml:"prefetch_rate"`
}

// DetachConfig bounds fire-and-forget tasks.
type DetachConfig struct {
	TaskTimeout time.Duration `yaml:"task_timeout"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	Environment  string  `yaml:"environment"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// Drivers.
const (
	StorageFS  = "fs"
	StorageS3  = "s3"
	QueueRedis = "redis"
	QueueSQS   = "sqs"

	CacheAuto   = "auto"
	CacheRedis  = "redis"
	CacheMemory = "memory"
	CacheBadger = "badger"
)
