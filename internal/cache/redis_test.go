// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupMiniRedis creates a test Redis server using miniredis.
func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, NewRedisStore(client, zerolog.Nop())
}

func TestRedisStore_SetGet(t *testing.T) {
	ctx := context.Background()
	_, store := setupMiniRedis(t)

	require.NoError(t, store.Set(ctx, "test-key", "test-value", 5*time.Minute))

	val, ok, err := store.Get(ctx, "test-key")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "test-value", val)
}

func TestRedisStore_GetMissing(t *testing.T) {
	_, store := setupMiniRedis(t)

	val, ok, err := store.Get(context.Background(), "nonexistent")
	require.NoError(t, err, "a miss is not an error")
	assert.False(t, ok)
	assert.Empty(t, val)
}

func TestRedisStore_TTL(t *testing.T) {
	ctx := context.Background()
	mr, store := setupMiniRedis(t)

	require.NoError(t, store.Set(ctx, "ttl-key", "v", time.Second))
	assert.Equal(t, time.Second, mr.TTL("ttl-key"))

	mr.FastForward(2 * time.Second)

	ok, err := store.Exists(ctx, "ttl-key")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_NoExpiry(t *testing.T) {
	ctx := context.Background()
	mr, store := setupMiniRedis(t)

	require.NoError(t, store.Set(ctx, "feed:gen", "g1", 0))
	assert.Equal(t, time.Duration(0), mr.TTL("feed:gen"))
}

func TestRedisStore_Delete(t *testing.T) {
	ctx := context.Background()
	mr, store := setupMiniRedis(t)

	require.NoError(t, store.Set(ctx, "a", "1", time.Minute))
	require.NoError(t, store.Set(ctx, "b", "2", time.Minute))
	require.NoError(t, store.Delete(ctx, "a", "b"))
	require.NoError(t, store.Delete(ctx))

	assert.False(t, mr.Exists("a"))
	assert.False(t, mr.Exists("b"))
}

func TestRedisStore_BinaryPayload(t *testing.T) {
	ctx := context.Background()
	_, store := setupMiniRedis(t)

	segment := make([]byte, 188*4)
	for i := range segment {
		segment[i] = byte(i % 256)
	}
	require.NoError(t, store.Set(ctx, "hls:v:360p_000.ts", EncodeBytes(segment), time.Hour))

	raw, ok, err := store.Get(ctx, "hls:v:360p_000.ts")
	require.NoError(t, err)
	require.True(t, ok)
	decoded, err := DecodeBytes(raw)
	require.NoError(t, err)
	assert.Equal(t, segment, decoded)
}

func TestRedisStore_ErrorsSurface(t *testing.T) {
	ctx := context.Background()
	mr, store := setupMiniRedis(t)
	mr.SetError("READONLY injected")

	_, _, err := store.Get(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, store.Set(ctx, "k", "v", time.Minute))
	_, err = store.Exists(ctx, "k")
	assert.Error(t, err)

	mr.SetError("")
	assert.NoError(t, store.HealthCheck(ctx))
}

func TestRedisStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	_, store := setupMiniRedis(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i)
			assert.NoError(t, store.Set(ctx, key, key, time.Minute))
			v, ok, err := store.Get(ctx, key)
			assert.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, key, v)
		}(i)
	}
	wg.Wait()
}
