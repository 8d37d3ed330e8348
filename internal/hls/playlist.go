// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PlaylistSegment is one media segment of a rendition playlist.
type PlaylistSegment struct {
	URI      string
	Duration time.Duration
}

// MediaPlaylist is the part of a rendition playlist the prefetcher needs.
type MediaPlaylist struct {
	TargetDuration time.Duration
	Segments       []PlaylistSegment
	TotalDuration  time.Duration
	// Complete is set by #EXT-X-ENDLIST or #EXT-X-PLAYLIST-TYPE:VOD; only
	// then is the segment list final.
	Complete bool
}

// ParseMediaPlaylist reads a rendition playlist. Master playlists and
// malformed durations are rejected.
func ParseMediaPlaylist(body []byte) (*MediaPlaylist, error) {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	pl := &MediaPlaylist{}

	var (
		first    = true
		pending  time.Duration
		inflight bool
	)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if first {
			if line != "#EXTM3U" {
				return nil, fmt.Errorf("missing #EXTM3U header")
			}
			first = false
			continue
		}

		switch {
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF"):
			return nil, fmt.Errorf("master playlist is not a media playlist")
		case line == "#EXT-X-ENDLIST", line == "#EXT-X-PLAYLIST-TYPE:VOD":
			pl.Complete = true
		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			secs, err := strconv.Atoi(strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:"))
			if err != nil || secs < 0 {
				return nil, fmt.Errorf("invalid target duration %q", line)
			}
			pl.TargetDuration = time.Duration(secs) * time.Second
		case strings.HasPrefix(line, "#EXTINF:"):
			d, err := parseExtInf(strings.TrimPrefix(line, "#EXTINF:"))
			if err != nil {
				return nil, err
			}
			pending, inflight = d, true
		case strings.HasPrefix(line, "#"):
			// Other tags and comments.
		default:
			if !inflight {
				return nil, fmt.Errorf("segment %q has no #EXTINF", line)
			}
			pl.Segments = append(pl.Segments, PlaylistSegment{URI: line, Duration: pending})
			pl.TotalDuration += pending
			pending, inflight = 0, false
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if first {
		return nil, fmt.Errorf("empty playlist")
	}
	return pl, nil
}

func parseExtInf(v string) (time.Duration, error) {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 {
		return 0, fmt.Errorf("invalid EXTINF duration %q", v)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
