// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/vodpipe/internal/api/middleware"
	"github.com/ManuGH/vodpipe/internal/detach"
	"github.com/ManuGH/vodpipe/internal/domain/video"
	"github.com/ManuGH/vodpipe/internal/log"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeProblem writes an RFC 7807 problem details response.
//
//   - code: stable machine-readable short code (e.g. "NOT_FOUND").
//   - detail: client-safe explanation; never a wrapped cause.
func writeProblem(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	reqID := log.RequestIDFromContext(r.Context())
	if reqID == "" {
		reqID = w.Header().Get(middleware.HeaderRequestID)
	}

	res := map[string]any{
		"type":      "about:blank",
		"title":     http.StatusText(status),
		"status":    status,
		"code":      code,
		"instance":  r.URL.EscapedPath(),
		"requestId": reqID,
	}
	if detail != "" {
		res["detail"] = detail
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		log.L().Error().Err(err).Int("status", status).Msg("failed to encode problem response")
	}
}

// statusFor maps a domain error kind onto its HTTP status and problem code.
func statusFor(kind video.Kind) (int, string) {
	switch kind {
	case video.KindValidation:
		return http.StatusBadRequest, "VALIDATION"
	case video.KindForbidden:
		return http.StatusForbidden, "FORBIDDEN"
	case video.KindNotFound:
		return http.StatusNotFound, "NOT_FOUND"
	case video.KindStateConflict:
		return http.StatusConflict, "STATE_CONFLICT"
	case video.KindUpstream:
		return http.StatusBadGateway, "UPSTREAM"
	case video.KindUnavailable:
		return http.StatusServiceUnavailable, "UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

// writeError renders err as a problem. Internal and upstream causes are
// logged here and hidden from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, detach.ErrClosed) {
		err = video.E(video.KindUnavailable, "", "server is shutting down", err)
	}
	kind := video.KindOf(err)
	status, code := statusFor(kind)

	detail := video.MessageOf(err)
	if status >= http.StatusInternalServerError {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().
			Err(err).
			Str(log.FieldEvent, "request.failed").
			Str(log.FieldPath, r.URL.Path).
			Int(log.FieldStatus, status).
			Msg("request failed")
		if kind == video.KindInternal {
			detail = "internal error"
		}
	}
	writeProblem(w, r, status, code, detail)
}
