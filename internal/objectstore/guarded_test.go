package objectstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/vodpipe/internal/objectstore"
	"github.com/ManuGH/vodpipe/internal/objectstore/objectstoretest"
	"github.com/ManuGH/vodpipe/internal/resilience"
)

func TestGuarded_NotFoundDoesNotTrip(t *testing.T) {
	ctx := context.Background()
	g := objectstore.NewGuarded(objectstoretest.New(), 2, time.Minute)

	for i := 0; i < 5; i++ {
		_, err := g.Get(ctx, "videos/hls/v/missing.ts")
		require.ErrorIs(t, err, objectstore.ErrNotFound)
	}
	assert.Equal(t, resilience.StateClosed, g.Breaker().State())
}

func TestGuarded_OpensOnBackendErrors(t *testing.T) {
	ctx := context.Background()
	mem := objectstoretest.New()
	mem.GetErr = errors.New("503 slow down")
	g := objectstore.NewGuarded(mem, 2, time.Minute)

	for i := 0; i < 2; i++ {
		_, err := g.Get(ctx, "k")
		require.Error(t, err)
	}
	assert.Equal(t, resilience.StateOpen, g.Breaker().State())

	_, err := g.Get(ctx, "k")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 2, mem.Gets("k"), "open breaker short-circuits the backend")
}

func TestGuarded_PassesThrough(t *testing.T) {
	ctx := context.Background()
	mem := objectstoretest.New()
	mem.Seed("a/b.ts", []byte("x"))
	g := objectstore.NewGuarded(mem, 3, time.Minute)

	obj, err := g.Get(ctx, "a/b.ts")
	require.NoError(t, err)
	_ = obj.Body.Close()

	u, err := g.PresignGet(ctx, "a/b.ts", time.Hour)
	require.NoError(t, err)
	assert.Contains(t, u, "ttl=3600")

	n, err := g.DeletePrefix(ctx, "a/")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, g.Ping(ctx))
}
