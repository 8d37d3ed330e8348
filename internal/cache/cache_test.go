// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestMemoryStore() (*MemoryStore, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := NewMemoryStore(0)
	s.now = clock.Now
	return s, clock
}

func TestMemoryStore_GetSet(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestMemoryStore()

	require.NoError(t, s.Set(ctx, "key1", "value1", 5*time.Minute))

	val, ok, err := s.Get(ctx, "key1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "value1", val)

	_, ok, err = s.Get(ctx, "nonexistent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestMemoryStore()

	require.NoError(t, s.Set(ctx, "short", "v", time.Second))
	require.NoError(t, s.Set(ctx, "forever", "v", 0))

	clock.Advance(2 * time.Second)

	ok, err := s.Exists(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok, "expired entry must not be reported")

	ok, err = s.Exists(ctx, "forever")
	require.NoError(t, err)
	assert.True(t, ok, "ttl <= 0 never expires")

	assert.Equal(t, 1, s.deleteExpired())
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestMemoryStore()

	require.NoError(t, s.Set(ctx, "a", "1", time.Minute))
	require.NoError(t, s.Set(ctx, "b", "2", time.Minute))
	require.NoError(t, s.Delete(ctx, "a", "b", "missing"))
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_JanitorStops(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := NewMemoryStore(5 * time.Millisecond)
	require.NoError(t, s.Set(context.Background(), "k", "v", time.Millisecond))

	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop() // idempotent
}

func TestCodec_BytesRoundTripBinary(t *testing.T) {
	payload := []byte{0x47, 0x00, 0xff, 0x10, 0x00}
	decoded, err := DecodeBytes(EncodeBytes(payload))
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)

	_, err = DecodeBytes("not base64!")
	assert.Error(t, err)
}

func TestCodec_JSONHelpers(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestMemoryStore()

	type meta struct {
		ID    string `json:"id"`
		Views int64  `json:"views"`
	}

	require.NoError(t, SetJSON(ctx, s, "video:meta:1", meta{ID: "1", Views: 3}, time.Minute))
	got, ok, err := GetJSON[meta](ctx, s, "video:meta:1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, meta{ID: "1", Views: 3}, got)

	require.NoError(t, s.Set(ctx, "video:meta:2", "{broken", time.Minute))
	_, ok, err = GetJSON[meta](ctx, s, "video:meta:2")
	require.NoError(t, err)
	assert.False(t, ok, "undecodable value is a miss")
}
