// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package objectstore abstracts the blob store holding raw uploads, HLS
// renditions and thumbnails.
package objectstore

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("objectstore: object not found")

// Object is an open object. Callers must close Body.
type Object struct {
	Body        io.ReadCloser
	Size        int64 // -1 when unknown
	ContentType string
}

// Store is the object store contract used by the pipeline.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (*Object, error)
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every object under prefix and returns the count.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	// PresignPut issues a time-limited URL a client can PUT the object to.
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	// PresignGet issues a time-limited read URL.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}

// Key layout.
const (
	RawPrefix       = "videos/raw/"
	HLSPrefix       = "videos/hls/"
	ThumbnailPrefix = "videos/thumbnails/"
)

// RawKey is the upload location of a new original.
func RawKey(id string) string { return RawPrefix + id + ".mp4" }

// HLSKey is the location of one HLS rendition file.
func HLSKey(videoID, filename string) string { return HLSPrefix + videoID + "/" + filename }

// HLSDir is the prefix holding every rendition of a video.
func HLSDir(videoID string) string { return HLSPrefix + videoID + "/" }

// ContentTypeFor guesses a content type from the key extension.
func ContentTypeFor(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/mp2t"
	case ".mp4":
		return "video/mp4"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

// ValidKey rejects empty keys and keys that could escape a prefix.
func ValidKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.ContainsRune(key, 0) || strings.Contains(key, "\\") {
		return false
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}
