// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package video defines the video record, its lifecycle and the ports that
// storage adapters implement.
package video

import (
	"fmt"
	"time"
)

// Status is the processing state of a video.
// Transitions: pending -> processing -> {ready, failed}. Never back to pending.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is ready or failed.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusReady, StatusFailed:
		return true
	}
	return false
}

// OwnerKind is the uploader role.
type OwnerKind string

const (
	OwnerBreeder OwnerKind = "Breeder"
	OwnerOwner   OwnerKind = "Owner"
)

// ParseOwnerKind accepts the two known uploader roles.
func ParseOwnerKind(s string) (OwnerKind, error) {
	switch OwnerKind(s) {
	case OwnerBreeder, OwnerOwner:
		return OwnerKind(s), nil
	}
	return "", fmt.Errorf("unknown owner kind %q", s)
}

// Record is the persisted video entity.
type Record struct {
	ID          string
	OwnerID     string
	OwnerKind   OwnerKind
	Title       string
	Description string
	Status      Status

	// OriginalKey never changes after creation.
	OriginalKey string
	// ManifestKey and ThumbnailKey are set only once the video is ready.
	ManifestKey  string
	ThumbnailKey string

	DurationSec float64
	Width       int
	Height      int

	Views    int64
	Likes    int64
	Comments int64

	Tags     []string
	IsPublic bool

	// FailureReason is set only when the video failed.
	FailureReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EncodingResult is what the transcoding worker reports on success.
type EncodingResult struct {
	ManifestKey  string  `json:"manifestKey"`
	ThumbnailKey string  `json:"thumbnailKey"`
	DurationSec  float64 `json:"duration"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
}

// Page selects one page of a listing. Page is 1-based.
type Page struct {
	Page  int
	Limit int
}

// Listing bounds.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 50
)

// NormalizePage clamps page/limit into the supported range.
func NormalizePage(page, limit int) Page {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return Page{Page: page, Limit: limit}
}

// Offset returns the row offset of the page.
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}
