// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes the delivery pipeline over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/vodpipe/internal/api/middleware"
	"github.com/ManuGH/vodpipe/internal/detach"
	"github.com/ManuGH/vodpipe/internal/domain/video"
	"github.com/ManuGH/vodpipe/internal/feed"
	"github.com/ManuGH/vodpipe/internal/health"
	"github.com/ManuGH/vodpipe/internal/hls"
	"github.com/ManuGH/vodpipe/internal/objectstore"
	"github.com/ManuGH/vodpipe/internal/playback"
	"github.com/ManuGH/vodpipe/internal/upload"
)

// Header names.
const (
	HeaderUserID      = "X-User-ID"
	HeaderWorkerToken = "X-Worker-Token"
	HeaderCache       = "X-Cache"
)

// Uploads is the upload lifecycle.
type Uploads interface {
	RequestUpload(ctx context.Context, req upload.UploadRequest) (upload.UploadTarget, error)
	CompleteUpload(ctx context.Context, videoID, callerID string) (video.Status, error)
}

// Encodings receives worker callbacks.
type Encodings interface {
	CompleteEncoding(ctx context.Context, videoID string, res video.EncodingResult) error
	FailEncoding(ctx context.Context, videoID, reason string) error
}

// Metadata serves the per-video projection.
type Metadata interface {
	Get(ctx context.Context, id string) (playback.Meta, error)
	IncrementViewCount(ctx context.Context, id string) error
}

// Listings serves the cached feeds.
type Listings interface {
	GetFeed(ctx context.Context, page, limit int) (feed.Listing, error)
	GetPopular(ctx context.Context, limit int) (feed.Listing, error)
	GetMine(ctx context.Context, ownerID string, page, limit int) (feed.Listing, error)
}

// Videos applies owner actions.
type Videos interface {
	DeleteVideo(ctx context.Context, id, callerID string) error
	SetVisibility(ctx context.Context, id, callerID string, public bool) error
}

// Segments serves HLS files.
type Segments interface {
	Fetch(ctx context.Context, videoID, filename string) (*hls.Result, error)
}

// Prefetcher warms segments ahead of a player.
type Prefetcher interface {
	PrefetchAhead(ctx context.Context, videoID string, current, count int, resolutions []string) hls.BatchReport
	AheadCount() int
	Resolutions() []string
}

// Config holds the HTTP surface settings.
type Config struct {
	CORSOrigins         []string
	UploadRatePerMinute int
	// WorkerToken authenticates worker callbacks; empty denies them all.
	WorkerToken    string
	TracingService string
	// SegmentMaxAge and ManifestMaxAge feed the Cache-Control header.
	SegmentMaxAge  int
	ManifestMaxAge int
}

// Deps are the services behind the routes. Objects is only set for the
// filesystem object store.
type Deps struct {
	Uploads    Uploads
	Encodings  Encodings
	Metadata   Metadata
	Listings   Listings
	Videos     Videos
	Segments   Segments
	Prefetcher Prefetcher
	Runner     *detach.Runner
	Health     *health.Manager
	Objects    http.Handler
	Logger     zerolog.Logger
}

// Server owns the router.
type Server struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger
	router http.Handler
}

// New builds the server and its routes.
func New(cfg Config, deps Deps) *Server {
	s := &Server{cfg: cfg, deps: deps, logger: deps.Logger}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		AllowedOrigins:        s.cfg.CORSOrigins,
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		TracingService:        s.cfg.TracingService,
		EnableLogging:         true,
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "")
	})

	if s.deps.Health != nil {
		r.Get("/healthz", s.deps.Health.ServeHealth)
		r.Get("/readyz", s.deps.Health.ServeReady)
	}
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/feed", s.handleFeed)
		r.Route("/videos", func(r chi.Router) {
			r.With(middleware.UploadRateLimit(s.cfg.UploadRatePerMinute)).Post("/upload-url", s.handleUploadURL)
			r.Get("/popular", s.handlePopular)
			r.Get("/mine", s.handleMine)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetVideo)
				r.Delete("/", s.handleDeleteVideo)
				r.Post("/complete", s.handleComplete)
				r.Post("/views", s.handleView)
				r.Patch("/visibility", s.handleVisibility)
				r.Post("/hls/prefetch", s.handlePrefetch)
				r.Get("/hls/{filename}", s.handleHLS)
				r.Head("/hls/{filename}", s.handleHLS)
			})
		})
	})

	r.Route("/internal/v1", func(r chi.Router) {
		r.Use(s.workerAuth)
		r.Post("/encode/{id}/complete", s.handleEncodeComplete)
		r.Post("/encode/{id}/fail", s.handleEncodeFail)
	})

	if s.deps.Objects != nil {
		r.Handle(objectstore.ObjectsPath+"*", s.deps.Objects)
	}

	return r
}
