// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/vodpipe/internal/auth"
	"github.com/ManuGH/vodpipe/internal/domain/video"
	"github.com/ManuGH/vodpipe/internal/log"
)

type failRequest struct {
	Reason string `json:"reason"`
}

// workerAuth admits requests carrying the shared worker token, either as a
// bearer token or in X-Worker-Token. With no token configured every callback
// is denied.
func (s *Server) workerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := log.WithComponentFromContext(r.Context(), "worker-auth")

		if s.cfg.WorkerToken == "" {
			logger.Error().Str(log.FieldEvent, "auth.fail_closed").Msg("worker token not configured, denying callback")
			writeProblem(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "worker callbacks are disabled")
			return
		}

		got := auth.ExtractToken(r, HeaderWorkerToken)
		if got == "" {
			logger.Warn().Str(log.FieldEvent, "auth.missing_header").Msg("worker token missing")
			writeProblem(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "worker token required")
			return
		}
		if !auth.AuthorizeToken(got, s.cfg.WorkerToken) {
			logger.Warn().Str(log.FieldEvent, "auth.invalid_token").Msg("invalid worker token")
			writeProblem(w, r, http.StatusForbidden, "FORBIDDEN", "invalid worker token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleEncodeComplete(w http.ResponseWriter, r *http.Request) {
	var res video.EncodingResult
	if err := decodeJSON(w, r, &res); err != nil {
		writeError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.deps.Encodings.CompleteEncoding(r.Context(), id, res); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]video.Status{"status": video.StatusReady})
}

func (s *Server) handleEncodeFail(w http.ResponseWriter, r *http.Request) {
	var body failRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.deps.Encodings.FailEncoding(r.Context(), id, body.Reason); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]video.Status{"status": video.StatusFailed})
}
