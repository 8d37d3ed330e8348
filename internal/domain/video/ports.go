// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package video

import "context"

// Repository persists video records. Implementations return *Error values
// of kind NotFound and StateConflict where documented.
type Repository interface {
	// Create inserts a new record.
	Create(ctx context.Context, rec Record) error

	// Get loads a record or returns NotFound.
	Get(ctx context.Context, id string) (Record, error)

	// TransitionStatus atomically moves a record from one status to another
	// in a single conditional update. It returns StateConflict when the
	// current status is not from, and NotFound when the id is unknown.
	TransitionStatus(ctx context.Context, id string, from, to Status) error

	// MarkReady overwrites the record with a successful encoding result.
	// Only processing or already ready records are accepted; pending and
	// failed records are refused with StateConflict.
	MarkReady(ctx context.Context, id string, res EncodingResult) error

	// MarkFailed overwrites status and failure reason of a processing or
	// already failed record. Anything else is StateConflict.
	MarkFailed(ctx context.Context, id, reason string) error

	// IncrementViews adds one view atomically at the store.
	IncrementViews(ctx context.Context, id string) error

	// SetVisibility updates the public flag.
	SetVisibility(ctx context.Context, id string, public bool) error

	// Delete removes the record.
	Delete(ctx context.Context, id string) error

	// ListPublicReady returns public ready videos, newest first.
	ListPublicReady(ctx context.Context, p Page) ([]Record, error)

	// ListPopular returns public ready videos by view count.
	ListPopular(ctx context.Context, limit int) ([]Record, error)

	// ListByOwner returns every video of an owner regardless of status.
	ListByOwner(ctx context.Context, ownerID string, p Page) ([]Record, error)
}
