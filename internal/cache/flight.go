// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// Collapse runs fn once for all concurrent callers of key. The shared load
// runs detached from any single caller's cancellation, bounded by timeout,
// so one disconnecting client does not fail the others. Each caller still
// stops waiting when its own ctx ends. shared reports whether the result was
// handed to more than one caller.
func Collapse[T any](ctx context.Context, g *singleflight.Group, key string, timeout time.Duration,
	fn func(ctx context.Context) (T, error)) (v T, shared bool, err error) {
	ch := g.DoChan(key, func() (any, error) {
		loadCtx := context.WithoutCancel(ctx)
		if timeout > 0 {
			var cancel context.CancelFunc
			loadCtx, cancel = context.WithTimeout(loadCtx, timeout)
			defer cancel()
		}
		return fn(loadCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return v, res.Shared, res.Err
		}
		return res.Val.(T), res.Shared, nil
	case <-ctx.Done():
		return v, false, ctx.Err()
	}
}
