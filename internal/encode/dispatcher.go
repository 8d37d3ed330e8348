// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package encode hands confirmed uploads to the transcoding queue and applies
// the worker's completion callbacks to the video record.
package encode

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/ManuGH/vodpipe/internal/domain/video"
	"github.com/ManuGH/vodpipe/internal/log"
	"github.com/ManuGH/vodpipe/internal/metrics"
	"github.com/ManuGH/vodpipe/internal/queue"
	"github.com/ManuGH/vodpipe/internal/telemetry"
)

// JobType is the job type consumed by transcoding workers.
const JobType = "transcode"

// MaxFailureReason caps stored failure reasons, in runes.
const MaxFailureReason = 1000

// Payload is the job body.
type Payload struct {
	VideoID           string `json:"videoId"`
	OriginalObjectKey string `json:"originalObjectKey"`
}

// DefaultJobOptions: highest priority, three attempts, 5s exponential
// backoff, 100 completed and 500 failed jobs retained.
func DefaultJobOptions() queue.Options {
	return queue.Options{
		Priority:      1,
		Attempts:      3,
		Backoff:       5 * time.Second,
		KeepCompleted: 100,
		KeepFailed:    500,
	}
}

// Evictor drops a video's cached metadata projection.
type Evictor interface {
	Evict(ctx context.Context, videoID string) error
}

// FeedInvalidator makes every cached listing stale.
type FeedInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Deps are the collaborators of a Dispatcher. Metadata and Feeds are optional.
type Deps struct {
	Producer queue.Producer
	Videos   video.Repository
	Metadata Evictor
	Feeds    FeedInvalidator
	Logger   zerolog.Logger
}

// Dispatcher implements dispatch and the worker callback operations.
type Dispatcher struct {
	producer queue.Producer
	videos   video.Repository
	metadata Evictor
	feeds    FeedInvalidator
	opts     queue.Options
	logger   zerolog.Logger
}

// NewDispatcher creates a dispatcher using opts for every job.
func NewDispatcher(deps Deps, opts queue.Options) *Dispatcher {
	return &Dispatcher{
		producer: deps.Producer,
		videos:   deps.Videos,
		metadata: deps.Metadata,
		feeds:    deps.Feeds,
		opts:     opts,
		logger:   deps.Logger,
	}
}

// Dispatch enqueues one transcode job. Failures surface as Upstream errors
// and are not retried here.
func (d *Dispatcher) Dispatch(ctx context.Context, videoID, originalKey string) (ack queue.Ack, err error) {
	const op = "encode.Dispatch"

	ctx, span := telemetry.Tracer("vodpipe/encode").Start(ctx, op)
	defer func() {
		span.SetAttributes(telemetry.JobAttributes(ack.Queue, JobType, ack.JobID)...)
		telemetry.RecordError(span, err, video.KindOf(err).String())
		span.End()
	}()

	body, err := json.Marshal(Payload{VideoID: videoID, OriginalObjectKey: originalKey})
	if err != nil {
		return queue.Ack{}, video.E(video.KindInternal, op, "", err)
	}

	ack, err = d.producer.Enqueue(ctx, JobType, body, d.opts)
	if err != nil {
		logger := log.WithContext(ctx, d.logger)
		logger.Error().Err(err).
			Str(log.FieldVideoID, videoID).
			Str(log.FieldObjectKey, originalKey).
			Msg("encode job enqueue failed")
		return queue.Ack{}, video.E(video.KindUpstream, op, "could not enqueue encode job", err)
	}

	logger := log.WithContext(ctx, d.logger)
	logger.Info().
		Str(log.FieldVideoID, videoID).
		Str(log.FieldJobID, ack.JobID).
		Str("queue", ack.Queue).
		Msg("encode job dispatched")
	return ack, nil
}

// CompleteEncoding applies a successful worker result. Redelivered callbacks
// overwrite with identical data.
func (d *Dispatcher) CompleteEncoding(ctx context.Context, videoID string, res video.EncodingResult) error {
	const op = "encode.CompleteEncoding"

	res.ManifestKey = strings.TrimSpace(res.ManifestKey)
	res.ThumbnailKey = strings.TrimSpace(res.ThumbnailKey)
	switch {
	case res.ManifestKey == "":
		return video.E(video.KindValidation, op, "manifestKey is required", nil)
	case !strings.HasSuffix(res.ManifestKey, ".m3u8"):
		return video.E(video.KindValidation, op, "manifestKey must reference an .m3u8 playlist", nil)
	case res.DurationSec < 0 || res.Width < 0 || res.Height < 0:
		return video.E(video.KindValidation, op, "duration and dimensions must not be negative", nil)
	}

	if err := d.videos.MarkReady(ctx, videoID, res); err != nil {
		return err
	}
	metrics.RecordVideoTransition(string(video.StatusReady))

	logger := log.WithContext(ctx, d.logger)
	logger.Info().
		Str(log.FieldVideoID, videoID).
		Str(log.FieldNewState, string(video.StatusReady)).
		Float64("duration_sec", res.DurationSec).
		Msg("encoding completed")

	d.evict(ctx, logger, videoID)
	if d.feeds != nil {
		if err := d.feeds.Invalidate(ctx); err != nil {
			logger.Warn().Err(err).Msg("feed invalidation failed")
		}
	}
	return nil
}

// FailEncoding records a terminal worker failure.
func (d *Dispatcher) FailEncoding(ctx context.Context, videoID, reason string) error {
	const op = "encode.FailEncoding"

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return video.E(video.KindValidation, op, "reason is required", nil)
	}
	if utf8.RuneCountInString(reason) > MaxFailureReason {
		reason = string([]rune(reason)[:MaxFailureReason])
	}

	if err := d.videos.MarkFailed(ctx, videoID, reason); err != nil {
		return err
	}
	metrics.RecordVideoTransition(string(video.StatusFailed))

	logger := log.WithContext(ctx, d.logger)
	logger.Warn().
		Str(log.FieldVideoID, videoID).
		Str(log.FieldNewState, string(video.StatusFailed)).
		Str("reason", reason).
		Msg("encoding failed")

	d.evict(ctx, logger, videoID)
	return nil
}

func (d *Dispatcher) evict(ctx context.Context, logger zerolog.Logger, videoID string) {
	if d.metadata == nil {
		return
	}
	if err := d.metadata.Evict(ctx, videoID); err != nil {
		logger.Warn().Err(err).Str(log.FieldVideoID, videoID).Msg("metadata eviction failed")
	}
}
