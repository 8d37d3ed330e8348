// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package upload issues direct-to-storage upload targets and hands
// confirmed uploads to the encode dispatcher.
package upload

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/vodpipe/internal/domain/video"
	"github.com/ManuGH/vodpipe/internal/log"
	"github.com/ManuGH/vodpipe/internal/metrics"
	"github.com/ManuGH/vodpipe/internal/objectstore"
	"github.com/ManuGH/vodpipe/internal/queue"
)

// Input limits.
const (
	DefaultURLTTL  = 10 * time.Minute
	MaxTitleLen    = 200
	MaxTags        = 20
	MaxTagLen      = 50
	MaxDescription = 5000
)

// uploadContentType is the content type the presigned PUT is bound to.
const uploadContentType = "video/mp4"

// Presigner issues time-limited write URLs.
type Presigner interface {
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
}

// Dispatcher enqueues the transcode job of a confirmed upload.
type Dispatcher interface {
	Dispatch(ctx context.Context, videoID, originalKey string) (queue.Ack, error)
}

// UploadRequest describes the video a client is about to upload.
type UploadRequest struct {
	OwnerID     string
	OwnerKind   string
	Title       string
	Description string
	Tags        []string
}

// UploadTarget is where the client PUTs the raw file.
type UploadTarget struct {
	VideoID   string `json:"videoId"`
	UploadURL string `json:"uploadUrl"`
	ObjectKey string `json:"objectKey"`
}

// Coordinator implements the two-step upload protocol.
type Coordinator struct {
	videos     video.Repository
	presigner  Presigner
	dispatcher Dispatcher
	urlTTL     time.Duration
	now        func() time.Time
	newID      func() string
	logger     zerolog.Logger
}

// NewCoordinator creates a coordinator. A zero urlTTL uses DefaultURLTTL.
func NewCoordinator(videos video.Repository, presigner Presigner, dispatcher Dispatcher, urlTTL time.Duration, logger zerolog.Logger) *Coordinator {
	if urlTTL <= 0 {
		urlTTL = DefaultURLTTL
	}
	return &Coordinator{
		videos:     videos,
		presigner:  presigner,
		dispatcher: dispatcher,
		urlTTL:     urlTTL,
		now:        time.Now,
		newID:      uuid.NewString,
		logger:     logger,
	}
}

func (r *UploadRequest) normalize() error {
	const op = "upload.RequestUpload"
	invalid := func(msg string) error { return video.E(video.KindValidation, op, msg, nil) }

	r.OwnerID = strings.TrimSpace(r.OwnerID)
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)

	if r.OwnerID == "" {
		return invalid("ownerId is required")
	}
	if _, err := video.ParseOwnerKind(r.OwnerKind); err != nil {
		return invalid("ownerKind must be Breeder or Owner")
	}
	if r.Title == "" {
		return invalid("title is required")
	}
	if utf8.RuneCountInString(r.Title) > MaxTitleLen {
		return invalid("title must be at most 200 characters")
	}
	if utf8.RuneCountInString(r.Description) > MaxDescription {
		return invalid("description must be at most 5000 characters")
	}
	if len(r.Tags) > MaxTags {
		return invalid("at most 20 tags are allowed")
	}

	tags := make([]string, 0, len(r.Tags))
	seen := make(map[string]struct{}, len(r.Tags))
	for _, t := range r.Tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if utf8.RuneCountInString(t) > MaxTagLen {
			return invalid("tags must be at most 50 characters")
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		tags = append(tags, t)
	}
	r.Tags = tags
	return nil
}

// RequestUpload validates req, issues a presigned PUT and records a pending
// video. The URL is issued first so a signing failure leaves no record.
func (c *Coordinator) RequestUpload(ctx context.Context, req UploadRequest) (UploadTarget, error) {
	const op = "upload.RequestUpload"

	if err := req.normalize(); err != nil {
		return UploadTarget{}, err
	}

	id := c.newID()
	key := objectstore.RawKey(id)
	logger := log.WithContext(ctx, c.logger).With().
		Str(log.FieldVideoID, id).
		Str(log.FieldOwnerID, req.OwnerID).
		Logger()

	url, err := c.presigner.PresignPut(ctx, key, uploadContentType, c.urlTTL)
	if err != nil {
		logger.Error().Err(err).Str(log.FieldObjectKey, key).Msg("upload url issuance failed")
		return UploadTarget{}, video.E(video.KindUpstream, op, "could not issue upload url", err)
	}

	now := c.now().UTC()
	rec := video.Record{
		ID:          id,
		OwnerID:     req.OwnerID,
		OwnerKind:   video.OwnerKind(req.OwnerKind),
		Title:       req.Title,
		Description: req.Description,
		Status:      video.StatusPending,
		OriginalKey: key,
		Tags:        req.Tags,
		IsPublic:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := c.videos.Create(ctx, rec); err != nil {
		return UploadTarget{}, err
	}
	metrics.RecordVideoTransition(string(video.StatusPending))

	logger.Info().Str(log.FieldObjectKey, key).Msg("upload target issued")
	return UploadTarget{VideoID: id, UploadURL: url, ObjectKey: key}, nil
}

// CompleteUpload confirms the owner's upload and dispatches encoding. Only
// one of several concurrent confirmations wins the pending->processing
// transition; the others get StateConflict.
func (c *Coordinator) CompleteUpload(ctx context.Context, videoID, callerID string) (video.Status, error) {
	const op = "upload.CompleteUpload"

	rec, err := c.videos.Get(ctx, videoID)
	if err != nil {
		return "", err
	}
	if callerID == "" || rec.OwnerID != callerID {
		return "", video.E(video.KindForbidden, op, "only the owner may complete this upload", nil)
	}
	if rec.Status != video.StatusPending {
		return "", video.E(video.KindStateConflict, op, "video is not pending", nil)
	}

	if err := c.videos.TransitionStatus(ctx, videoID, video.StatusPending, video.StatusProcessing); err != nil {
		return "", err
	}
	metrics.RecordVideoTransition(string(video.StatusProcessing))

	logger := log.WithContext(ctx, c.logger).With().Str(log.FieldVideoID, videoID).Logger()
	logger.Info().
		Str(log.FieldOldState, string(video.StatusPending)).
		Str(log.FieldNewState, string(video.StatusProcessing)).
		Msg("upload confirmed")

	if _, err := c.dispatcher.Dispatch(ctx, videoID, rec.OriginalKey); err != nil {
		// The record stays processing; an operator re-dispatch recovers it.
		var de *video.Error
		if errors.As(err, &de) {
			return "", err
		}
		return "", video.E(video.KindUpstream, op, "could not enqueue encode job", err)
	}
	return video.StatusProcessing, nil
}
