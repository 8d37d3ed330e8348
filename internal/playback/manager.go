// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playback

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog"

	"github.com/ManuGH/vodpipe/internal/cache"
	"github.com/ManuGH/vodpipe/internal/domain/video"
	"github.com/ManuGH/vodpipe/internal/hls"
	"github.com/ManuGH/vodpipe/internal/log"
	"github.com/ManuGH/vodpipe/internal/objectstore"
)

// FeedInvalidator makes every cached listing stale.
type FeedInvalidator interface {
	Invalidate(ctx context.Context) error
}

// ManagerDeps are the collaborators of a Manager.
type ManagerDeps struct {
	Videos   video.Repository
	Objects  objectstore.Store
	Store    cache.Store
	Metadata *MetadataCache
	Feeds    FeedInvalidator
	Logger   zerolog.Logger
}

// Manager implements owner actions on existing videos.
type Manager struct {
	videos    video.Repository
	objects   objectstore.Store
	store     cache.Store
	metadata  *MetadataCache
	feeds     FeedInvalidator
	purgeHLS  bool
	playlists []string
	logger    zerolog.Logger
}

// NewManager creates a Manager. When purgeHLS is set, deleting a video also
// removes its HLS renditions; resolutions name the tier playlists whose
// cached copies are evicted.
func NewManager(deps ManagerDeps, purgeHLS bool, resolutions []string) *Manager {
	playlists := []string{"master.m3u8"}
	for _, r := range resolutions {
		playlists = append(playlists, hls.PlaylistName(r))
	}
	return &Manager{
		videos:    deps.Videos,
		objects:   deps.Objects,
		store:     deps.Store,
		metadata:  deps.Metadata,
		feeds:     deps.Feeds,
		purgeHLS:  purgeHLS,
		playlists: playlists,
		logger:    deps.Logger,
	}
}

func (m *Manager) owned(ctx context.Context, op, id, callerID string) (video.Record, error) {
	rec, err := m.videos.Get(ctx, id)
	if err != nil {
		return video.Record{}, err
	}
	if callerID == "" || rec.OwnerID != callerID {
		return video.Record{}, video.E(video.KindForbidden, op, "only the owner may modify this video", nil)
	}
	return rec, nil
}

// DeleteVideo removes a video's objects, its record and its cache entries.
// Object removal runs first so a failure leaves the record for a retry.
func (m *Manager) DeleteVideo(ctx context.Context, id, callerID string) error {
	const op = "playback.DeleteVideo"

	rec, err := m.owned(ctx, op, id, callerID)
	if err != nil {
		return err
	}
	logger := log.WithContext(ctx, m.logger).With().Str(log.FieldVideoID, id).Logger()

	keys := []string{rec.OriginalKey}
	if rec.ThumbnailKey != "" {
		keys = append(keys, rec.ThumbnailKey)
	}
	for _, k := range keys {
		if err := m.objects.Delete(ctx, k); err != nil && !errors.Is(err, objectstore.ErrNotFound) {
			logger.Error().Err(err).Str(log.FieldObjectKey, k).Msg("object delete failed")
			return video.E(video.KindUnavailable, op, "storage unavailable", err)
		}
	}
	// Segment names are only known from the tier playlists, which the purge
	// removes, so collect them first.
	segmentKeys := m.segmentCacheKeys(ctx, logger, id)

	if m.purgeHLS {
		n, err := m.objects.DeletePrefix(ctx, objectstore.HLSDir(id))
		if err != nil {
			logger.Error().Err(err).Msg("hls purge failed")
			return video.E(video.KindUnavailable, op, "storage unavailable", err)
		}
		logger.Debug().Int("objects", n).Msg("hls renditions purged")
	}

	if err := m.videos.Delete(ctx, id); err != nil {
		return err
	}

	cacheKeys := []string{MetaKey(id)}
	for _, k := range keys {
		cacheKeys = append(cacheKeys, SignedKey(k))
	}
	for _, p := range m.playlists {
		cacheKeys = append(cacheKeys, hls.CacheKey(id, p))
	}
	cacheKeys = append(cacheKeys, segmentKeys...)
	if err := m.store.Delete(ctx, cacheKeys...); err != nil {
		logger.Warn().Err(err).Msg("cache eviction after delete failed")
	}
	m.invalidateFeeds(ctx, logger)

	logger.Info().Str(log.FieldOwnerID, callerID).Msg("video deleted")
	return nil
}

// maxPlaylistBytes bounds a tier playlist read while collecting segment names.
const maxPlaylistBytes = 1 << 20

// segmentCacheKeys lists the segment cache keys named by the video's tier
// playlists, read from the cache or else from the object store. Unreadable
// playlists contribute nothing; their segments expire with the segment TTL.
func (m *Manager) segmentCacheKeys(ctx context.Context, logger zerolog.Logger, id string) []string {
	var keys []string
	for _, name := range m.playlists[1:] {
		body, ok := m.cachedPlaylist(ctx, id, name)
		if !ok {
			body, ok = m.storedPlaylist(ctx, id, name)
		}
		if !ok {
			continue
		}
		pl, err := hls.ParseMediaPlaylist(body)
		if err != nil {
			logger.Debug().Err(err).Str(log.FieldFilename, name).Msg("skipping unparsable playlist")
			continue
		}
		for _, seg := range pl.Segments {
			if _, err := hls.ValidateFilename(seg.URI); err == nil {
				keys = append(keys, hls.CacheKey(id, seg.URI))
			}
		}
	}
	return keys
}

func (m *Manager) cachedPlaylist(ctx context.Context, id, name string) ([]byte, bool) {
	raw, ok, err := m.store.Get(ctx, hls.CacheKey(id, name))
	if err != nil || !ok {
		return nil, false
	}
	body, err := cache.DecodeBytes(raw)
	if err != nil {
		return nil, false
	}
	return body, true
}

func (m *Manager) storedPlaylist(ctx context.Context, id, name string) ([]byte, bool) {
	obj, err := m.objects.Get(ctx, objectstore.HLSKey(id, name))
	if err != nil {
		return nil, false
	}
	defer obj.Body.Close()
	body, err := io.ReadAll(io.LimitReader(obj.Body, maxPlaylistBytes))
	if err != nil {
		return nil, false
	}
	return body, true
}

// SetVisibility toggles whether a video appears in public listings.
func (m *Manager) SetVisibility(ctx context.Context, id, callerID string, public bool) error {
	const op = "playback.SetVisibility"

	if _, err := m.owned(ctx, op, id, callerID); err != nil {
		return err
	}
	if err := m.videos.SetVisibility(ctx, id, public); err != nil {
		return err
	}

	logger := log.WithContext(ctx, m.logger).With().Str(log.FieldVideoID, id).Logger()
	if err := m.metadata.Evict(ctx, id); err != nil {
		logger.Warn().Err(err).Msg("metadata eviction failed")
	}
	m.invalidateFeeds(ctx, logger)

	logger.Info().Bool("public", public).Msg("visibility changed")
	return nil
}

func (m *Manager) invalidateFeeds(ctx context.Context, logger zerolog.Logger) {
	if m.feeds == nil {
		return
	}
	if err := m.feeds.Invalidate(ctx); err != nil {
		logger.Warn().Err(err).Msg("feed invalidation failed")
	}
}
