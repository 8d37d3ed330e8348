// SPDX-License-Identifier: MIT

// Package daemon builds the service from configuration and runs it until
// shutdown.
package daemon

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ManuGH/vodpipe/internal/api"
	"github.com/ManuGH/vodpipe/internal/cache"
	"github.com/ManuGH/vodpipe/internal/config"
	"github.com/ManuGH/vodpipe/internal/detach"
	"github.com/ManuGH/vodpipe/internal/encode"
	"github.com/ManuGH/vodpipe/internal/feed"
	"github.com/ManuGH/vodpipe/internal/health"
	"github.com/ManuGH/vodpipe/internal/hls"
	"github.com/ManuGH/vodpipe/internal/log"
	"github.com/ManuGH/vodpipe/internal/objectstore"
	"github.com/ManuGH/vodpipe/internal/persistence/sqlstore"
	"github.com/ManuGH/vodpipe/internal/playback"
	"github.com/ManuGH/vodpipe/internal/queue"
	"github.com/ManuGH/vodpipe/internal/telemetry"
	"github.com/ManuGH/vodpipe/internal/upload"
)

// ServiceName names the service in logs and traces.
const ServiceName = "vodpipe"

// StreamBase is the route prefix of the per-video endpoints.
const StreamBase = "/api/v1/videos"

// Runtime is a fully wired service. Close releases everything Build opened,
// most recently opened first.
type Runtime struct {
	Config  config.AppConfig
	Handler http.Handler
	Health  *health.Manager
	Runner  *detach.Runner

	closers []namedHook
	logger  zerolog.Logger
}

func (rt *Runtime) onClose(name string, fn ShutdownHook) {
	rt.closers = append(rt.closers, namedHook{name: name, hook: fn})
}

// RegisterShutdownHooks hands every closer to m in construction order, so
// the manager's LIFO run releases them in reverse.
func (rt *Runtime) RegisterShutdownHooks(m Manager) {
	for _, c := range rt.closers {
		m.RegisterShutdownHook(c.name, c.hook)
	}
	rt.closers = nil
}

// Close runs the remaining closers in reverse order.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		c := rt.closers[i]
		if err := c.hook(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// Build wires every component from cfg. On error, whatever was opened is
// closed again.
func Build(ctx context.Context, cfg config.AppConfig) (rt *Runtime, err error) {
	rt = &Runtime{Config: cfg, logger: log.WithComponent("daemon")}
	defer func() {
		if err != nil {
			_ = rt.Close(context.WithoutCancel(ctx))
			rt = nil
		}
	}()

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    ServiceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	rt.onClose("telemetry", tp.Shutdown)

	db, err := OpenDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	rt.onClose("database", func(context.Context) error { return db.Close() })
	videos := sqlstore.NewVideoRepository(db)

	rt.Health = health.NewManager(cfg.Version)
	rt.Health.RegisterChecker(health.NewPingChecker("database", true, db.PingContext))

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		rt.onClose("redis", func(context.Context) error { return redisClient.Close() })
		rt.Health.RegisterChecker(health.NewPingChecker("redis", true, func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}))
	}

	store, cacheDriver, err := rt.openCache(cfg.Cache, redisClient)
	if err != nil {
		return nil, err
	}

	objects, objectsHandler, err := openObjectStore(ctx, cfg, rt.logger)
	if err != nil {
		return nil, err
	}
	rt.Health.RegisterChecker(health.NewPingChecker("object_store", false, objects.Ping))

	producer, err := openProducer(ctx, cfg.Queue, redisClient)
	if err != nil {
		return nil, err
	}

	runner := detach.New(cfg.Detach.TaskTimeout, log.WithComponent("detach"))
	rt.Runner = runner
	rt.onClose("detached_tasks", runner.Shutdown)

	urls := playback.NewSignedURLCache(store, objects, cfg.Storage.PlaybackURLTTL, cfg.Cache.SignedURLTTL, log.WithComponent("signed_urls"))

	// The proxy reports served segments to the prefetcher built on top of it.
	var prefetcher *hls.Prefetcher
	proxy := hls.NewProxy(store, objects, hls.ProxyConfig{
		SegmentTTL:        cfg.HLS.SegmentTTL,
		ManifestTTL:       cfg.HLS.ManifestTTL,
		MaxCacheableBytes: cfg.HLS.MaxCacheableBytes,
		FetchTimeout:      cfg.HLS.FetchTimeout,
	}, log.WithComponent("hls"), hls.WithSegmentHook(func(ctx context.Context, videoID string, index int) {
		_ = runner.Go(ctx, "prefetch_ahead", func(ctx context.Context) error {
			rep := prefetcher.PrefetchAhead(ctx, videoID, index, prefetcher.AheadCount(), prefetcher.Resolutions())
			if rep.Failed > 0 {
				return fmt.Errorf("prefetch ahead of %d: %d of %d segments failed", index, rep.Failed, rep.Attempted)
			}
			return nil
		})
	}))
	prefetcher = hls.NewPrefetcher(proxy, hls.PrefetchConfig{
		PreloadSegments: cfg.HLS.PreloadSegments,
		AheadCount:      cfg.HLS.PrefetchCount,
		Concurrency:     cfg.HLS.PrefetchConcurrency,
		RatePerSecond:   cfg.HLS.PrefetchRate,
		Resolutions:     cfg.HLS.Resolutions,
	}, log.WithComponent("prefetch"))

	metadata := playback.NewMetadataCache(playback.MetadataDeps{
		Store:     store,
		Videos:    videos,
		URLs:      urls,
		Runner:    runner,
		Preloader: prefetcher,
		Logger:    log.WithComponent("metadata"),
	}, cfg.Cache.MetadataTTL, StreamBase)

	feeds := feed.New(store, videos, urls, feed.TTLs{
		Feed:    cfg.Cache.FeedTTL,
		Popular: cfg.Cache.PopularTTL,
		Mine:    cfg.Cache.MineTTL,
	}, log.WithComponent("feed"))

	dispatcher := encode.NewDispatcher(encode.Deps{
		Producer: producer,
		Videos:   videos,
		Metadata: metadata,
		Feeds:    feeds,
		Logger:   log.WithComponent("encode"),
	}, encode.DefaultJobOptions())

	tracing := ""
	if cfg.Telemetry.Enabled {
		tracing = ServiceName
	}
	server := api.New(api.Config{
		CORSOrigins:         cfg.Server.CORSOrigins,
		UploadRatePerMinute: cfg.Server.UploadRatePerMinute,
		WorkerToken:         cfg.Server.WorkerToken,
		TracingService:      tracing,
		SegmentMaxAge:       int(cfg.HLS.SegmentTTL.Seconds()),
		ManifestMaxAge:      int(cfg.HLS.ManifestTTL.Seconds()),
	}, api.Deps{
		Uploads:   upload.NewCoordinator(videos, objects, dispatcher, cfg.Storage.UploadURLTTL, log.WithComponent("upload")),
		Encodings: dispatcher,
		Metadata:  metadata,
		Listings:  feeds,
		Videos: playback.NewManager(playback.ManagerDeps{
			Videos:   videos,
			Objects:  objects,
			Store:    store,
			Metadata: metadata,
			Feeds:    feeds,
			Logger:   log.WithComponent("videos"),
		}, cfg.Storage.PurgeHLSOnDelete, cfg.HLS.Resolutions),
		Segments:   proxy,
		Prefetcher: prefetcher,
		Runner:     runner,
		Health:     rt.Health,
		Objects:    objectsHandler,
		Logger:     log.WithComponent("api"),
	})
	rt.Handler = server.Handler()

	if cfg.Server.WorkerToken == "" {
		rt.logger.Warn().Msg("server.worker_token is empty, encoding callbacks will be rejected")
	}
	rt.logger.Info().
		Str("storage", cfg.Storage.Driver).
		Str("queue", cfg.Queue.Driver).
		Str("database", db.Driver()).
		Str("cache", cacheDriver).
		Msg("service wired")
	return rt, nil
}

// OpenDatabase opens the configured database and applies pending migrations.
func OpenDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sqlstore.DB, error) {
	if cfg.Driver == sqlstore.DriverSQLite || cfg.Driver == "" {
		if dir := filepath.Dir(cfg.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("database: create directory: %w", err)
			}
		}
	}
	db, err := sqlstore.Open(ctx, sqlstore.Config{
		Driver:       cfg.Driver,
		DSN:          cfg.DSN,
		BusyTimeout:  cfg.BusyTimeout,
		MaxOpenConns: cfg.MaxOpenConns,
	})
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if _, err := sqlstore.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database: %w", err)
	}
	return db, nil
}

// openCache resolves cache.driver. auto picks Redis when a client exists.
func (rt *Runtime) openCache(cfg config.CacheConfig, client *redis.Client) (cache.Store, string, error) {
	driver := cfg.Driver
	if driver == config.CacheAuto || driver == "" {
		driver = config.CacheMemory
		if client != nil {
			driver = config.CacheRedis
		}
	}

	switch driver {
	case config.CacheRedis:
		if client == nil {
			return nil, "", errors.New("cache: the redis driver requires redis.addr")
		}
		return cache.NewRedisStore(client, log.WithComponent("cache")), driver, nil
	case config.CacheBadger:
		bs, err := cache.OpenBadgerStore(cfg.Dir, 0, log.WithComponent("cache"))
		if err != nil {
			return nil, "", fmt.Errorf("cache: %w", err)
		}
		rt.onClose("badger_cache", func(context.Context) error { return bs.Close() })
		rt.Health.RegisterChecker(health.NewPingChecker("cache", true, bs.HealthCheck))
		rt.logger.Warn().Str("dir", cfg.Dir).Msg("using the on-disk cache; replicas will not share entries")
		return bs, driver, nil
	case config.CacheMemory:
		rt.logger.Warn().Msg("using the in-process cache; replicas will not share entries")
		mem := cache.NewMemoryStore(cfg.JanitorInterval)
		rt.onClose("memory_cache", func(context.Context) error { mem.Stop(); return nil })
		return mem, driver, nil
	default:
		return nil, "", fmt.Errorf("cache: unsupported driver %q", cfg.Driver)
	}
}

// openObjectStore returns the breaker-guarded store and, for the filesystem
// driver, the handler serving its signed URLs.
func openObjectStore(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (objectstore.Store, http.Handler, error) {
	var (
		inner   objectstore.Store
		handler http.Handler
	)
	switch cfg.Storage.Driver {
	case config.StorageS3:
		s3Store, err := objectstore.NewS3Store(ctx, objectstore.S3Config{
			Bucket:          cfg.Storage.Bucket,
			Region:          cfg.Storage.Region,
			Endpoint:        cfg.Storage.Endpoint,
			UsePathStyle:    cfg.Storage.UsePathStyle,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("object store: %w", err)
		}
		inner = s3Store
	case config.StorageFS, "":
		secret := cfg.Storage.SigningSecret
		if secret == "" {
			generated, err := randomSecret()
			if err != nil {
				return nil, nil, fmt.Errorf("object store: %w", err)
			}
			secret = generated
			logger.Warn().Msg("storage.signing_secret is empty, generated an ephemeral one; signed URLs will not survive a restart")
		}
		fsStore, err := objectstore.NewFSStore(objectstore.FSConfig{
			Root:           cfg.Storage.FSRoot,
			BaseURL:        cfg.Server.PublicURL,
			Secret:         secret,
			MaxUploadBytes: cfg.Storage.MaxUploadBytes,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("object store: %w", err)
		}
		inner, handler = fsStore, fsStore.Handler()
	default:
		return nil, nil, fmt.Errorf("object store: unsupported driver %q", cfg.Storage.Driver)
	}
	return objectstore.NewGuarded(inner, cfg.Storage.BreakerThreshold, cfg.Storage.BreakerReset), handler, nil
}

func openProducer(ctx context.Context, cfg config.QueueConfig, client *redis.Client) (queue.Producer, error) {
	switch cfg.Driver {
	case config.QueueSQS:
		p, err := queue.NewSQSProducerFromEnv(ctx, cfg.SQSRegion, cfg.SQSURL, cfg.Name)
		if err != nil {
			return nil, fmt.Errorf("job queue: %w", err)
		}
		return p, nil
	case config.QueueRedis, "":
		if client == nil {
			return nil, errors.New("job queue: the redis queue requires redis.addr")
		}
		return queue.NewRedisQueue(client, cfg.Prefix, cfg.Name), nil
	default:
		return nil, fmt.Errorf("job queue: unsupported driver %q", cfg.Driver)
	}
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate signing secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
