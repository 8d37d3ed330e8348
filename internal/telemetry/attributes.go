// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"

	// Video attributes
	VideoIDKey     = "video.id"
	VideoStatusKey = "video.status"

	// Delivery attributes
	HLSFilenameKey   = "hls.filename"
	CacheLayerKey    = "cache.layer"
	CacheResultKey   = "cache.result"
	ObjectKeyKey     = "object.key"
	ObjectSizeKey    = "object.size"
	PrefetchModeKey  = "prefetch.mode"
	PrefetchTiersKey = "prefetch.tiers"
	PrefetchCountKey = "prefetch.count"

	// Job attributes
	JobTypeKey  = "job.type"
	JobIDKey    = "job.id"
	JobQueueKey = "job.queue"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// SegmentAttributes describes one proxied HLS object.
func SegmentAttributes(videoID, filename, cacheResult string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(VideoIDKey, videoID),
		attribute.String(HLSFilenameKey, filename),
	}
	if cacheResult != "" {
		attrs = append(attrs, attribute.String(CacheResultKey, cacheResult))
	}
	return attrs
}

// PrefetchAttributes describes a prefetch batch.
func PrefetchAttributes(videoID, mode string, tiers, count int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(VideoIDKey, videoID),
		attribute.String(PrefetchModeKey, mode),
		attribute.Int(PrefetchTiersKey, tiers),
		attribute.Int(PrefetchCountKey, count),
	}
}

// JobAttributes creates job-related span attributes.
func JobAttributes(queue, jobType, jobID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(JobQueueKey, queue),
		attribute.String(JobTypeKey, jobType),
		attribute.String(JobIDKey, jobID),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(err error, errorType string) []attribute.KeyValue {
	if err == nil {
		return nil
	}
	return []attribute.KeyValue{
		attribute.String(ErrorKey, err.Error()),
		attribute.String(ErrorTypeKey, errorType),
	}
}

// RecordError marks the span failed and attaches the error.
func RecordError(span trace.Span, err error, errorType string) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetAttributes(ErrorAttributes(err, errorType)...)
	span.SetStatus(codes.Error, errorType)
}
