// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package detach runs fire-and-forget work that must outlive the request
// that triggered it, while staying observable and drainable on shutdown.
package detach

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/vodpipe/internal/log"
	"github.com/ManuGH/vodpipe/internal/metrics"
)

// DefaultTimeout bounds a single detached task.
const DefaultTimeout = 30 * time.Second

// ErrClosed is returned by Go after Shutdown started.
var ErrClosed = errors.New("detach: runner is shut down")

// Task outcomes recorded in metrics.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomePanic   = "panic"
	OutcomeTimeout = "timeout"
)

// Runner tracks detached goroutines.
type Runner struct {
	timeout time.Duration
	logger  zerolog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a runner. A zero timeout uses DefaultTimeout.
func New(timeout time.Duration, logger zerolog.Logger) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{timeout: timeout, logger: logger}
}

// Go runs fn on a context that keeps ctx's values (request id, trace span)
// but not its cancellation, bounded by the runner timeout.
func (r *Runner) Go(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Warn().Str(log.FieldTask, name).Msg("detached task rejected during shutdown")
		metrics.RecordDetachedRejected(name)
		return ErrClosed
	}
	r.wg.Add(1)
	r.mu.Unlock()

	metrics.DetachedStarted()
	detached := context.WithoutCancel(ctx)

	go func() {
		defer r.wg.Done()

		taskCtx, cancel := context.WithTimeout(detached, r.timeout)
		defer cancel()

		outcome := r.run(taskCtx, name, fn)
		metrics.DetachedFinished(name, outcome)
	}()
	return nil
}

func (r *Runner) run(ctx context.Context, name string, fn func(ctx context.Context) error) (outcome string) {
	logger := log.WithContext(ctx, r.logger).With().Str(log.FieldTask, name).Logger()
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			logger.Error().
				Str("panic", fmt.Sprint(p)).
				Bytes("stack", debug.Stack()).
				Msg("detached task panicked")
			outcome = OutcomePanic
		}
	}()

	err := fn(ctx)
	switch {
	case err == nil:
		logger.Debug().Dur(log.FieldDuration, time.Since(start)).Msg("detached task finished")
		return OutcomeOK
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn().Err(err).Dur(log.FieldDuration, time.Since(start)).Msg("detached task timed out")
		return OutcomeTimeout
	default:
		logger.Warn().Err(err).Dur(log.FieldDuration, time.Since(start)).Msg("detached task failed")
		return OutcomeError
	}
}

// Wait blocks until all in-flight tasks finished.
func (r *Runner) Wait() { r.wg.Wait() }

// Shutdown stops accepting tasks and waits for in-flight ones until ctx ends.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("detach: drain interrupted: %w", ctx.Err())
	}
}
