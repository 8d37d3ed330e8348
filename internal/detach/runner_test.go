package detach

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/vodpipe/internal/log"
)

func TestGo_OutlivesRequestContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := New(time.Second, zerolog.Nop())
	reqCtx, cancel := context.WithCancel(log.ContextWithRequestID(context.Background(), "req-1"))

	release := make(chan struct{})
	var sawErr atomic.Value
	var sawRID atomic.Value
	require.NoError(t, r.Go(reqCtx, "view_count", func(ctx context.Context) error {
		<-release
		sawErr.Store(ctx.Err() == nil)
		sawRID.Store(log.RequestIDFromContext(ctx))
		return nil
	}))

	cancel()
	close(release)
	r.Wait()

	assert.Equal(t, true, sawErr.Load(), "request cancellation does not reach detached work")
	assert.Equal(t, "req-1", sawRID.Load())
}

func TestGo_TimeoutAndErrorsAreContained(t *testing.T) {
	defer goleak.VerifyNone(t)

	var buf bytes.Buffer
	r := New(20*time.Millisecond, zerolog.New(&buf))

	require.NoError(t, r.Go(context.Background(), "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	require.NoError(t, r.Go(context.Background(), "broken", func(context.Context) error {
		return errors.New("boom")
	}))
	r.Wait()

	out := buf.String()
	assert.Contains(t, out, "detached task timed out")
	assert.Contains(t, out, "detached task failed")
	assert.Contains(t, out, `"task":"broken"`)
}

func TestGo_RecoversPanics(t *testing.T) {
	defer goleak.VerifyNone(t)

	var buf bytes.Buffer
	r := New(time.Second, zerolog.New(&buf))
	require.NoError(t, r.Go(context.Background(), "prefetch", func(context.Context) error {
		panic("nil segment")
	}))
	r.Wait()

	assert.Contains(t, buf.String(), "detached task panicked")
	assert.Contains(t, buf.String(), "nil segment")
}

func TestShutdown_DrainsAndRejects(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := New(time.Second, zerolog.Nop())
	var done atomic.Bool
	require.NoError(t, r.Go(context.Background(), "drain", func(context.Context) error {
		time.Sleep(20 * time.Millisecond)
		done.Store(true)
		return nil
	}))

	require.NoError(t, r.Shutdown(context.Background()))
	assert.True(t, done.Load())

	err := r.Go(context.Background(), "late", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestShutdown_DeadlineExceeded(t *testing.T) {
	r := New(time.Second, zerolog.Nop())
	release := make(chan struct{})
	require.NoError(t, r.Go(context.Background(), "stuck", func(context.Context) error {
		<-release
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Shutdown(ctx), context.DeadlineExceeded)

	close(release)
	r.Wait()
}
