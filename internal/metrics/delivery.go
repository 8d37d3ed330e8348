// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics holds the Prometheus collectors for the delivery pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache layers used as label values.
const (
	LayerMetadata  = "metadata"
	LayerSignedURL = "signed_url"
	LayerSegment   = "segment"
	LayerManifest  = "manifest"
	LayerFeed      = "feed"
)

// Cache lookup results used as label values.
const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
)

// Prefetch outcomes used as label values.
const (
	PrefetchWarmed  = "warmed"
	PrefetchSkipped = "skipped"
	PrefetchMissing = "missing"
	PrefetchFailed  = "failed"
)

var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vodpipe_cache_lookups_total",
		Help: "Cache-aside lookups by layer and result (hit|miss|error)",
	}, []string{"layer", "result"})

	cacheFills = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vodpipe_cache_fills_total",
		Help: "Values written to the cache after an origin load, by layer",
	}, []string{"layer"})

	cacheBypass = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vodpipe_cache_bypass_total",
		Help: "Objects served without caching because they exceeded the size guard",
	}, []string{"layer"})

	objectStoreOps = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vodpipe_object_store_op_duration_seconds",
		Help:    "Object store operation latency by operation and outcome",
		Buckets: prometheus.DefBuckets,
	}, []string{"op", "outcome"})

	prefetchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vodpipe_prefetch_segments_total",
		Help: "Prefetch/preload candidate segments by outcome",
	}, []string{"mode", "outcome"})

	detachedTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vodpipe_detached_tasks_total",
		Help: "Detached (fire-and-forget) tasks by name and outcome",
	}, []string{"task", "outcome"})

	detachedInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vodpipe_detached_tasks_in_flight",
		Help: "Detached tasks currently running",
	})

	jobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vodpipe_jobs_enqueued_total",
		Help: "Encode jobs handed to the job queue by backend and outcome",
	}, []string{"backend", "outcome"})

	videoTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vodpipe_video_status_transitions_total",
		Help: "Video status transitions by target status",
	}, []string{"status"})
)

// RecordCacheLookup counts a cache-aside lookup.
func RecordCacheLookup(layer, result string) {
	cacheLookups.WithLabelValues(layer, result).Inc()
}

// RecordCacheFill counts a write-through after an origin load.
func RecordCacheFill(layer string) {
	cacheFills.WithLabelValues(layer).Inc()
}

// RecordCacheBypass counts an oversize object that was streamed uncached.
func RecordCacheBypass(layer string) {
	cacheBypass.WithLabelValues(layer).Inc()
}

// ObserveObjectStoreOp records the latency of one object store call.
func ObserveObjectStoreOp(op, outcome string, d time.Duration) {
	objectStoreOps.WithLabelValues(op, outcome).Observe(d.Seconds())
}

// RecordPrefetch counts one prefetch candidate.
func RecordPrefetch(mode, outcome string) {
	prefetchOutcomes.WithLabelValues(mode, outcome).Inc()
}

// DetachedStarted marks a detached task as running.
func DetachedStarted() { detachedInFlight.Inc() }

// DetachedFinished records a detached task's outcome (ok|error|panic).
func DetachedFinished(task, outcome string) {
	detachedInFlight.Dec()
	detachedTasks.WithLabelValues(task, outcome).Inc()
}

// RecordJobEnqueued counts a job handoff attempt.
func RecordJobEnqueued(backend, outcome string) {
	jobsEnqueued.WithLabelValues(backend, outcome).Inc()
}

// RecordVideoTransition counts a persisted status change.
func RecordVideoTransition(status string) {
	videoTransitions.WithLabelValues(status).Inc()
}

// RecordDetachedRejected counts a task refused because the runner shut down.
func RecordDetachedRejected(task string) {
	detachedTasks.WithLabelValues(task, "rejected").Inc()
}
