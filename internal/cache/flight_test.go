package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/singleflight"
)

func TestCollapse_SingleLoadForConcurrentCallers(t *testing.T) {
	var g singleflight.Group
	var loads atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	results := make([]string, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, err := Collapse(context.Background(), &g, "k", time.Second, func(context.Context) (string, error) {
				loads.Add(1)
				<-release
				return "value", nil
			})
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	// Let every caller join the in-flight call before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
	for _, v := range results {
		assert.Equal(t, "value", v)
	}
}

func TestCollapse_CallerCancellationDoesNotAbortLoad(t *testing.T) {
	var g singleflight.Group
	started := make(chan struct{})
	release := make(chan struct{})
	var loadErr atomic.Value

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := Collapse(ctx, &g, "k", time.Second, func(loadCtx context.Context) (int, error) {
			close(started)
			<-release
			loadErr.Store(loadCtx.Err() == nil)
			return 1, nil
		})
		done <- err
	}()

	<-started
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	second := make(chan int, 1)
	go func() {
		v, _, err := Collapse(context.Background(), &g, "k", time.Second, func(context.Context) (int, error) {
			return 2, nil
		})
		assert.NoError(t, err)
		second <- v
	}()

	time.Sleep(50 * time.Millisecond)
	close(release)
	assert.Equal(t, 1, <-second, "second caller joins the in-flight load")
	assert.Equal(t, true, loadErr.Load())
}

func TestCollapse_PropagatesErrors(t *testing.T) {
	var g singleflight.Group
	boom := errors.New("boom")
	_, _, err := Collapse(context.Background(), &g, "k", 0, func(context.Context) (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, err, boom)
}
