// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package queue hands work to external workers. Producers only enqueue;
// delivery is at-least-once.
package queue

import (
	"context"
	"errors"
	"time"
)

// Options controls how a job is scheduled and retained.
type Options struct {
	// Priority orders waiting jobs; lower runs first. 1 is the highest.
	Priority int
	// Attempts is the total number of deliveries before a job is failed.
	Attempts int
	// Backoff is the base delay; retry n waits Backoff * 2^(n-1).
	Backoff time.Duration
	// KeepCompleted and KeepFailed cap the retained job history.
	KeepCompleted int
	KeepFailed    int
}

// Ack identifies an accepted job.
type Ack struct {
	Queue string
	JobID string
}

// Producer enqueues jobs. Once Enqueue returns nil the queue owns the job.
type Producer interface {
	Enqueue(ctx context.Context, jobType string, payload []byte, opts Options) (Ack, error)
}

// Job is a reserved unit of work as seen by a worker.
type Job struct {
	ID            string
	Type          string
	Payload       []byte
	Priority      int
	Attempts      int
	MaxAttempts   int
	Backoff       time.Duration
	KeepCompleted int
	KeepFailed    int
	LastError     string
	EnqueuedAt    time.Time
}

// Counts is a snapshot of queue depth per state.
type Counts struct {
	Waiting   int64
	Delayed   int64
	Active    int64
	Completed int64
	Failed    int64
}

// ErrUnknownJob is returned by Complete/Fail for jobs that are not active.
var ErrUnknownJob = errors.New("queue: job is not active")

func (o Options) withDefaults() Options {
	if o.Priority <= 0 {
		o.Priority = 1
	}
	if o.Attempts <= 0 {
		o.Attempts = 1
	}
	if o.Backoff < 0 {
		o.Backoff = 0
	}
	if o.KeepCompleted < 0 {
		o.KeepCompleted = 0
	}
	if o.KeepFailed < 0 {
		o.KeepFailed = 0
	}
	return o
}
