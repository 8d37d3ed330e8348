// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/vodpipe/internal/domain/video"
	"github.com/ManuGH/vodpipe/internal/upload"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 64 << 10

type uploadURLRequest struct {
	OwnerID     string   `json:"ownerId"`
	OwnerKind   string   `json:"ownerKind"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

type visibilityRequest struct {
	IsPublic *bool `json:"isPublic"`
}

// decodeJSON reads a single JSON object, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var mbe *http.MaxBytesError
		switch {
		case errors.As(err, &mbe):
			return video.E(video.KindValidation, "api.decode", "request body too large", err)
		case errors.Is(err, io.EOF):
			return video.E(video.KindValidation, "api.decode", "request body is required", err)
		default:
			return video.E(video.KindValidation, "api.decode", "malformed JSON body", err)
		}
	}
	if dec.More() {
		return video.E(video.KindValidation, "api.decode", "request body must hold a single JSON object", nil)
	}
	return nil
}

// queryInt parses an optional integer query parameter; absent yields 0.
func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, video.E(video.KindValidation, "api.query", fmt.Sprintf("%s must be an integer", name), err)
	}
	return n, nil
}

func callerID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(HeaderUserID))
}

func (s *Server) handleUploadURL(w http.ResponseWriter, r *http.Request) {
	var body uploadURLRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	target, err := s.deps.Uploads.RequestUpload(r.Context(), upload.UploadRequest{
		OwnerID:     body.OwnerID,
		OwnerKind:   body.OwnerKind,
		Title:       body.Title,
		Description: body.Description,
		Tags:        body.Tags,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, target)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	status, err := s.deps.Uploads.CompleteUpload(r.Context(), chi.URLParam(r, "id"), callerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]video.Status{"status": status})
}

func (s *Server) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	meta, err := s.deps.Metadata.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Metadata.IncrementViewCount(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleDeleteVideo(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Videos.DeleteVideo(r.Context(), chi.URLParam(r, "id"), callerID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	var body visibilityRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if body.IsPublic == nil {
		writeError(w, r, video.E(video.KindValidation, "api.visibility", "isPublic is required", nil))
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.deps.Videos.SetVisibility(r.Context(), id, callerID(r), *body.IsPublic); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "isPublic": *body.IsPublic})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	page, limit, err := pageParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	listing, err := s.deps.Listings.GetFeed(r.Context(), page, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handlePopular(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	listing, err := s.deps.Listings.GetPopular(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handleMine(w http.ResponseWriter, r *http.Request) {
	page, limit, err := pageParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	listing, err := s.deps.Listings.GetMine(r.Context(), callerID(r), page, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func pageParams(r *http.Request) (page, limit int, err error) {
	if page, err = queryInt(r, "page"); err != nil {
		return 0, 0, err
	}
	if limit, err = queryInt(r, "limit"); err != nil {
		return 0, 0, err
	}
	return page, limit, nil
}
