// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/vodpipe/internal/domain/video"
	"github.com/ManuGH/vodpipe/internal/hls"
	"github.com/ManuGH/vodpipe/internal/log"
)

// MaxPrefetchCount bounds a client-requested prefetch window.
const MaxPrefetchCount = 10

type prefetchRequest struct {
	Segment *int `json:"segment"`
	Count   int  `json:"count"`
}

func (s *Server) cacheControl(contentType string) string {
	maxAge := s.cfg.SegmentMaxAge
	if contentType == hls.ContentTypePlaylist {
		maxAge = s.cfg.ManifestMaxAge
	}
	if maxAge <= 0 {
		return "no-cache"
	}
	return fmt.Sprintf("public, max-age=%d", maxAge)
}

func (s *Server) handleHLS(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Segments.Fetch(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "filename"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if res.Stream != nil {
		defer res.Stream.Close()
	}

	h := w.Header()
	// Players load segments cross-origin regardless of the API origin list.
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Content-Type", res.ContentType)
	h.Set("Cache-Control", s.cacheControl(res.ContentType))
	h.Set(HeaderCache, string(res.CacheStatus))
	if res.Size > 0 {
		h.Set("Content-Length", strconv.FormatInt(res.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}

	if res.Stream == nil {
		_, _ = w.Write(res.Body)
		return
	}
	if n, err := io.Copy(w, res.Stream); err != nil {
		logger := log.WithComponentFromContext(r.Context(), "hls")
		logger.Warn().
			Err(err).
			Str(log.FieldVideoID, chi.URLParam(r, "id")).
			Str(log.FieldFilename, chi.URLParam(r, "filename")).
			Int64(log.FieldBytes, n).
			Msg("stream copy aborted")
	}
}

func (s *Server) handlePrefetch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !hls.ValidVideoID(id) {
		writeError(w, r, video.E(video.KindValidation, "api.prefetch", "invalid video id", nil))
		return
	}

	var body prefetchRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	switch {
	case body.Segment == nil:
		writeError(w, r, video.E(video.KindValidation, "api.prefetch", "segment is required", nil))
		return
	case *body.Segment < 0:
		writeError(w, r, video.E(video.KindValidation, "api.prefetch", "segment must not be negative", nil))
		return
	case body.Count < 0 || body.Count > MaxPrefetchCount:
		writeError(w, r, video.E(video.KindValidation, "api.prefetch",
			fmt.Sprintf("count must be between 0 and %d", MaxPrefetchCount), nil))
		return
	}

	count := body.Count
	if count == 0 {
		count = s.deps.Prefetcher.AheadCount()
	}
	current := *body.Segment
	resolutions := s.deps.Prefetcher.Resolutions()

	err := s.deps.Runner.Go(r.Context(), "prefetch_ahead", func(ctx context.Context) error {
		report := s.deps.Prefetcher.PrefetchAhead(ctx, id, current, count, resolutions)
		if report.Failed > 0 {
			return fmt.Errorf("prefetch: %d of %d segments failed", report.Failed, report.Attempted)
		}
		return nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"videoId": id, "segment": current, "count": count})
}
