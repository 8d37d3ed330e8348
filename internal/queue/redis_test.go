// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestQueue(t *testing.T) (*miniredis.Miniredis, *RedisQueue, *testClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := &testClock{t: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
	q := NewRedisQueue(client, "test", "video-processing")
	q.now = clock.now
	return mr, q, clock
}

var transcodeOpts = Options{Priority: 1, Attempts: 3, Backoff: 5 * time.Second, KeepCompleted: 100, KeepFailed: 500}

func TestEnqueueReserve_PriorityThenFIFO(t *testing.T) {
	ctx := context.Background()
	_, q, _ := newTestQueue(t)

	low, err := q.Enqueue(ctx, "thumbnail", []byte(`{"n":1}`), Options{Priority: 5})
	require.NoError(t, err)
	first, err := q.Enqueue(ctx, "transcode", []byte(`{"n":2}`), transcodeOpts)
	require.NoError(t, err)
	second, err := q.Enqueue(ctx, "transcode", []byte(`{"n":3}`), transcodeOpts)
	require.NoError(t, err)
	assert.Equal(t, "video-processing", first.Queue)

	var order []string
	for i := 0; i < 3; i++ {
		job, err := q.Reserve(ctx)
		require.NoError(t, err)
		require.NotNil(t, job)
		order = append(order, job.ID)
	}
	assert.Equal(t, []string{first.JobID, second.JobID, low.JobID}, order)

	job, err := q.Reserve(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestReserve_LoadsJob(t *testing.T) {
	ctx := context.Background()
	_, q, clock := newTestQueue(t)

	ack, err := q.Enqueue(ctx, "transcode", []byte(`{"videoId":"v1"}`), transcodeOpts)
	require.NoError(t, err)

	job, err := q.Reserve(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, ack.JobID, job.ID)
	assert.Equal(t, "transcode", job.Type)
	assert.JSONEq(t, `{"videoId":"v1"}`, string(job.Payload))
	assert.Equal(t, 1, job.Priority)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, 3, job.MaxAttempts)
	assert.Equal(t, 5*time.Second, job.Backoff)
	assert.Equal(t, clock.t, job.EnqueuedAt)

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counts{Active: 1}, counts)
}

func TestFail_RetriesWithExponentialBackoff(t *testing.T) {
	ctx := context.Background()
	mr, q, clock := newTestQueue(t)

	_, err := q.Enqueue(ctx, "transcode", []byte(`{}`), transcodeOpts)
	require.NoError(t, err)

	// Attempt 1 fails: retry after 5s.
	job, err := q.Reserve(ctx)
	require.NoError(t, err)
	retried, err := q.Fail(ctx, job.ID, errors.New("ffmpeg crashed"))
	require.NoError(t, err)
	assert.True(t, retried)

	score, err := mr.ZScore("test:video-processing:delayed", job.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(clock.t.Add(5*time.Second).UnixMilli()), score)

	clock.advance(4 * time.Second)
	none, err := q.Reserve(ctx)
	require.NoError(t, err)
	assert.Nil(t, none, "not due yet")

	clock.advance(time.Second)
	job, err = q.Reserve(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 2, job.Attempts)
	assert.Equal(t, "ffmpeg crashed", job.LastError)

	// Attempt 2 fails: retry after 10s.
	retried, err = q.Fail(ctx, job.ID, errors.New("again"))
	require.NoError(t, err)
	assert.True(t, retried)
	score, err = mr.ZScore("test:video-processing:delayed", job.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(clock.t.Add(10*time.Second).UnixMilli()), score)

	clock.advance(10 * time.Second)
	job, err = q.Reserve(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 3, job.Attempts)

	// Attempt 3 fails: exhausted.
	retried, err = q.Fail(ctx, job.ID, errors.New("final"))
	require.NoError(t, err)
	assert.False(t, retried)

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counts{Failed: 1}, counts)
}

func TestComplete(t *testing.T) {
	ctx := context.Background()
	_, q, _ := newTestQueue(t)

	_, err := q.Enqueue(ctx, "transcode", []byte(`{}`), transcodeOpts)
	require.NoError(t, err)
	job, err := q.Reserve(ctx)
	require.NoError(t, err)

	require.NoError(t, q.Complete(ctx, job.ID))
	assert.ErrorIs(t, q.Complete(ctx, job.ID), ErrUnknownJob, "a job completes once")

	_, err = q.Fail(ctx, "999", nil)
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestHistoryIsCapped(t *testing.T) {
	ctx := context.Background()
	mr, q, _ := newTestQueue(t)
	opts := Options{Priority: 1, Attempts: 1, KeepCompleted: 2}

	var ids []string
	for i := 0; i < 4; i++ {
		_, err := q.Enqueue(ctx, "transcode", []byte(fmt.Sprintf(`{"n":%d}`, i)), opts)
		require.NoError(t, err)
		job, err := q.Reserve(ctx)
		require.NoError(t, err)
		require.NoError(t, q.Complete(ctx, job.ID))
		ids = append(ids, job.ID)
	}

	list, err := mr.List("test:video-processing:completed")
	require.NoError(t, err)
	assert.Equal(t, []string{ids[3], ids[2]}, list)

	assert.False(t, mr.Exists("test:video-processing:job:"+ids[0]), "trimmed job hashes are deleted")
	assert.True(t, mr.Exists("test:video-processing:job:"+ids[3]))
}

func TestEnqueue_RedisDown(t *testing.T) {
	mr, q, _ := newTestQueue(t)
	mr.Close()

	_, err := q.Enqueue(context.Background(), "transcode", []byte(`{}`), transcodeOpts)
	assert.Error(t, err)
}
