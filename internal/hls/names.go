// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Content types of the two servable extensions.
const (
	ContentTypePlaylist = "application/vnd.apple.mpegurl"
	ContentTypeSegment  = "video/mp2t"
)

var segmentName = regexp.MustCompile(`^(\d{3,4})p_(\d+)\.ts$`)

// CacheKey is the cache key of one HLS file of a video.
func CacheKey(videoID, filename string) string {
	return "hls:" + videoID + ":" + filename
}

// SegmentName formats the n-th segment of a tier, e.g. 720p_004.ts.
func SegmentName(resolution string, n int) string {
	return fmt.Sprintf("%sp_%03d.ts", resolution, n)
}

// PlaylistName is the per-tier playlist, e.g. 720p.m3u8.
func PlaylistName(resolution string) string {
	return resolution + "p.m3u8"
}

// ParseSegmentName extracts tier and index from a segment file name.
func ParseSegmentName(filename string) (resolution string, index int, ok bool) {
	m := segmentName.FindStringSubmatch(filename)
	if m == nil {
		return "", 0, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, false
	}
	return m[1], n, true
}

// ValidVideoID accepts only canonical UUIDs.
func ValidVideoID(id string) bool {
	return len(id) == 36 && uuid.Validate(id) == nil
}

// ValidateFilename enforces a single path element with a .m3u8 or .ts
// extension and returns the content type to serve it with.
func ValidateFilename(filename string) (string, error) {
	if filename == "" || filename == "." || filename == ".." {
		return "", fmt.Errorf("invalid filename %q", filename)
	}
	if strings.ContainsAny(filename, "/\\\x00") || strings.Contains(filename, "..") {
		return "", fmt.Errorf("filename %q must be a single path element", filename)
	}
	switch path.Ext(filename) {
	case ".m3u8":
		return ContentTypePlaylist, nil
	case ".ts":
		return ContentTypeSegment, nil
	default:
		return "", fmt.Errorf("extension of %q is not servable", filename)
	}
}
