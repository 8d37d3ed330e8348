// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package objectstore

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/ManuGH/vodpipe/internal/metrics"
	"github.com/ManuGH/vodpipe/internal/resilience"
)

// Guarded wraps a Store with a circuit breaker and operation metrics.
// ErrNotFound passes through without counting as a failure.
type Guarded struct {
	inner   Store
	breaker *resilience.CircuitBreaker
}

var _ Store = (*Guarded)(nil)

// NewGuarded builds the decorator. threshold and reset configure the breaker.
func NewGuarded(inner Store, threshold int, reset time.Duration) *Guarded {
	return &Guarded{
		inner: inner,
		breaker: resilience.NewCircuitBreaker("objectstore", threshold, reset,
			resilience.WithFailurePredicate(func(err error) bool {
				return !errors.Is(err, ErrNotFound) && !errors.Is(err, context.Canceled)
			})),
	}
}

// Breaker exposes the breaker state for health reporting.
func (g *Guarded) Breaker() *resilience.CircuitBreaker { return g.breaker }

func (g *Guarded) run(op string, fn func() error) error {
	start := time.Now()
	err := g.breaker.Execute(fn)
	metrics.ObserveObjectStoreOp(op, outcome(err), time.Since(start))
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	default:
		return "error"
	}
}

func (g *Guarded) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	return g.run("put", func() error { return g.inner.Put(ctx, key, body, size, contentType) })
}

func (g *Guarded) Get(ctx context.Context, key string) (*Object, error) {
	var obj *Object
	err := g.run("get", func() error {
		var err error
		obj, err = g.inner.Get(ctx, key)
		return err
	})
	return obj, err
}

func (g *Guarded) Delete(ctx context.Context, key string) error {
	return g.run("delete", func() error { return g.inner.Delete(ctx, key) })
}

func (g *Guarded) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	var n int
	err := g.run("delete_prefix", func() error {
		var err error
		n, err = g.inner.DeletePrefix(ctx, prefix)
		return err
	})
	return n, err
}

// Presigning is a local signing operation and bypasses the breaker.
func (g *Guarded) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	start := time.Now()
	u, err := g.inner.PresignPut(ctx, key, contentType, ttl)
	metrics.ObserveObjectStoreOp("presign_put", outcome(err), time.Since(start))
	return u, err
}

func (g *Guarded) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	start := time.Now()
	u, err := g.inner.PresignGet(ctx, key, ttl)
	metrics.ObserveObjectStoreOp("presign_get", outcome(err), time.Since(start))
	return u, err
}

func (g *Guarded) Ping(ctx context.Context) error {
	return g.run("ping", func() error { return g.inner.Ping(ctx) })
}
