// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldVideoID   = "video_id"
	FieldOwnerID   = "owner_id"
	FieldJobID     = "job_id"
	FieldTask      = "task"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldService   = "service"
	FieldVersion   = "version"

	// Storage / cache fields
	FieldObjectKey = "object_key"
	FieldCacheKey  = "cache_key"
	FieldCacheHit  = "cache"
	FieldFilename  = "filename"
	FieldBytes     = "bytes"
	FieldSchema    = "schema_version"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// HTTP fields
	FieldMethod   = "method"
	FieldPath     = "path"
	FieldStatus   = "status"
	FieldDuration = "duration"
	FieldRemote   = "remote_addr"
)
