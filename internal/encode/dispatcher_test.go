package encode

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/vodpipe/internal/domain/video"
	"github.com/ManuGH/vodpipe/internal/persistence/sqlstore/sqlstoretest"
	"github.com/ManuGH/vodpipe/internal/queue"
)

type recorder struct {
	mu          sync.Mutex
	evicted     []string
	invalidated int
}

func (r *recorder) Evict(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evicted = append(r.evicted, id)
	return nil
}

func (r *recorder) Invalidate(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidated++
	return nil
}

type failingProducer struct{}

func (failingProducer) Enqueue(context.Context, string, []byte, queue.Options) (queue.Ack, error) {
	return queue.Ack{}, errors.New("connection refused")
}

func newDispatcher(t *testing.T, producer queue.Producer) (*Dispatcher, video.Repository, *recorder) {
	t.Helper()
	repo := sqlstoretest.NewRepo(t)
	rec := &recorder{}
	d := NewDispatcher(Deps{
		Producer: producer,
		Videos:   repo,
		Metadata: rec,
		Feeds:    rec,
		Logger:   zerolog.Nop(),
	}, DefaultJobOptions())
	return d, repo, rec
}

func TestDispatch_EnqueuesTranscodeJob(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	q := queue.NewRedisQueue(client, "test", "video-processing")

	d, _, _ := newDispatcher(t, q)
	ack, err := d.Dispatch(ctx, "v1", "videos/raw/v1.mp4")
	require.NoError(t, err)
	assert.Equal(t, "video-processing", ack.Queue)

	job, err := q.Reserve(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, JobType, job.Type)
	assert.Equal(t, 1, job.Priority)
	assert.Equal(t, 3, job.MaxAttempts)

	var p Payload
	require.NoError(t, json.Unmarshal(job.Payload, &p))
	assert.Equal(t, Payload{VideoID: "v1", OriginalObjectKey: "videos/raw/v1.mp4"}, p)
}

func TestDispatch_FailureIsUpstream(t *testing.T) {
	d, _, _ := newDispatcher(t, failingProducer{})

	_, err := d.Dispatch(context.Background(), "v1", "videos/raw/v1.mp4")
	assert.ErrorIs(t, err, video.ErrUpstream)
}

func TestCompleteEncoding(t *testing.T) {
	ctx := context.Background()
	d, repo, rec := newDispatcher(t, failingProducer{})
	sqlstoretest.Seed(t, repo, video.Record{ID: "v1", OwnerID: "u1", Status: video.StatusProcessing})

	res := video.EncodingResult{
		ManifestKey:  "videos/hls/v1/master.m3u8",
		ThumbnailKey: "videos/thumbnails/v1.jpg",
		DurationSec:  12.5,
		Width:        1280,
		Height:       720,
	}
	require.NoError(t, d.CompleteEncoding(ctx, "v1", res))
	require.NoError(t, d.CompleteEncoding(ctx, "v1", res), "duplicate callbacks are harmless")

	got, err := repo.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, video.StatusReady, got.Status)
	assert.Equal(t, res.ManifestKey, got.ManifestKey)
	assert.Equal(t, []string{"v1", "v1"}, rec.evicted)
	assert.Equal(t, 2, rec.invalidated)
}

func TestCompleteEncoding_Validation(t *testing.T) {
	ctx := context.Background()
	d, repo, rec := newDispatcher(t, failingProducer{})
	sqlstoretest.Seed(t, repo, video.Record{ID: "v1", OwnerID: "u1", Status: video.StatusProcessing})

	for _, res := range []video.EncodingResult{
		{},
		{ManifestKey: "videos/hls/v1/master.mpd"},
		{ManifestKey: "videos/hls/v1/master.m3u8", DurationSec: -1},
	} {
		err := d.CompleteEncoding(ctx, "v1", res)
		assert.ErrorIs(t, err, video.ErrValidation, res.ManifestKey)
	}
	assert.Empty(t, rec.evicted)
}

func TestCompleteEncoding_StateErrors(t *testing.T) {
	ctx := context.Background()
	d, repo, _ := newDispatcher(t, failingProducer{})
	sqlstoretest.Seed(t, repo, video.Record{ID: "pending", OwnerID: "u1"})

	res := video.EncodingResult{ManifestKey: "videos/hls/x/master.m3u8"}
	assert.ErrorIs(t, d.CompleteEncoding(ctx, "pending", res), video.ErrStateConflict)
	assert.ErrorIs(t, d.CompleteEncoding(ctx, "missing", res), video.ErrNotFound)
}

func TestFailEncoding_AfterReadyIsConflict(t *testing.T) {
	ctx := context.Background()
	d, repo, rec := newDispatcher(t, failingProducer{})
	sqlstoretest.Seed(t, repo, video.Record{ID: "v1", OwnerID: "u1", Status: video.StatusProcessing})

	res := video.EncodingResult{ManifestKey: "videos/hls/v1/master.m3u8"}
	require.NoError(t, d.CompleteEncoding(ctx, "v1", res))
	require.NoError(t, d.CompleteEncoding(ctx, "v1", res))

	assert.ErrorIs(t, d.FailEncoding(ctx, "v1", "stale attempt"), video.ErrStateConflict)

	got, err := repo.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, video.StatusReady, got.Status)
	assert.Equal(t, res.ManifestKey, got.ManifestKey)
	assert.Equal(t, []string{"v1", "v1"}, rec.evicted)
}

func TestFailEncoding(t *testing.T) {
	ctx := context.Background()
	d, repo, rec := newDispatcher(t, failingProducer{})
	sqlstoretest.Seed(t, repo, video.Record{ID: "v1", OwnerID: "u1", Status: video.StatusProcessing})

	long := strings.Repeat("é", MaxFailureReason+50)
	require.NoError(t, d.FailEncoding(ctx, "v1", "  "+long+"  "))

	got, err := repo.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, video.StatusFailed, got.Status)
	assert.Equal(t, MaxFailureReason, utf8.RuneCountInString(got.FailureReason))
	assert.Equal(t, []string{"v1"}, rec.evicted)
	assert.Zero(t, rec.invalidated)

	assert.ErrorIs(t, d.FailEncoding(ctx, "v1", "   "), video.ErrValidation)
}
