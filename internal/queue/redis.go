// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ManuGH/vodpipe/internal/log"
	"github.com/ManuGH/vodpipe/internal/metrics"
)

// Waiting jobs are scored priority*seqSpan + sequence, so equal priorities
// run in enqueue order.
const seqSpan = 1_000_000_000_000

var enqueueScript = redis.NewScript(`
local id = redis.call('INCR', KEYS[1])
local jobKey = ARGV[1] .. id
redis.call('HSET', jobKey,
  'type', ARGV[2], 'payload', ARGV[3], 'priority', ARGV[4],
  'max_attempts', ARGV[5], 'backoff_ms', ARGV[6],
  'keep_completed', ARGV[7], 'keep_failed', ARGV[8],
  'enqueued_at', ARGV[9], 'attempts', 0, 'state', 'waiting')
redis.call('ZADD', KEYS[2], tonumber(ARGV[4]) * tonumber(ARGV[10]) + id, id)
return id
`)

var reserveScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1])
for _, id in ipairs(due) do
  redis.call('ZREM', KEYS[2], id)
  local prio = tonumber(redis.call('HGET', ARGV[2] .. id, 'priority'))
  redis.call('ZADD', KEYS[1], prio * tonumber(ARGV[3]) + tonumber(id), id)
  redis.call('HSET', ARGV[2] .. id, 'state', 'waiting')
end
local popped = redis.call('ZPOPMIN', KEYS[1])
if #popped == 0 then
  return false
end
local id = popped[1]
redis.call('SADD', KEYS[3], id)
redis.call('HINCRBY', ARGV[2] .. id, 'attempts', 1)
redis.call('HSET', ARGV[2] .. id, 'state', 'active')
return id
`)

// trimHistory is shared by complete and fail: push id onto a capped list and
// drop the hashes of jobs that fell off the end.
const trimHistory = `
local function pushCapped(list, prefix, id, keep)
  if keep <= 0 then
    redis.call('DEL', prefix .. id)
    return
  end
  redis.call('LPUSH', list, id)
  local dropped = redis.call('LRANGE', list, keep, -1)
  for _, old in ipairs(dropped) do
    redis.call('DEL', prefix .. old)
  end
  redis.call('LTRIM', list, 0, keep - 1)
end
`

var completeScript = redis.NewScript(trimHistory + `
if redis.call('SREM', KEYS[1], ARGV[1]) == 0 then
  return 0
end
local jobKey = ARGV[2] .. ARGV[1]
redis.call('HSET', jobKey, 'state', 'completed', 'finished_at', ARGV[3])
local keep = tonumber(redis.call('HGET', jobKey, 'keep_completed'))
pushCapped(KEYS[2], ARGV[2], ARGV[1], keep)
return 1
`)

var failScript = redis.NewScript(trimHistory + `
if redis.call('SREM', KEYS[1], ARGV[1]) == 0 then
  return -1
end
local jobKey = ARGV[2] .. ARGV[1]
local attempts = tonumber(redis.call('HGET', jobKey, 'attempts'))
local maxAttempts = tonumber(redis.call('HGET', jobKey, 'max_attempts'))
redis.call('HSET', jobKey, 'last_error', ARGV[3])
if attempts < maxAttempts then
  local backoff = tonumber(redis.call('HGET', jobKey, 'backoff_ms'))
  local delay = backoff * (2 ^ (attempts - 1))
  redis.call('ZADD', KEYS[2], tonumber(ARGV[4]) + delay, ARGV[1])
  redis.call('HSET', jobKey, 'state', 'delayed')
  return 1
end
redis.call('HSET', jobKey, 'state', 'failed', 'finished_at', ARGV[4])
local keep = tonumber(redis.call('HGET', jobKey, 'keep_failed'))
pushCapped(KEYS[3], ARGV[2], ARGV[1], keep)
return 0
`)

// RedisQueue is a priority job queue with retries, exponential backoff and
// bounded history, stored under "<prefix>:<name>:".
type RedisQueue struct {
	client redis.UniversalClient
	name   string
	base   string
	logger zerolog.Logger
	now    func() time.Time
}

var _ Producer = (*RedisQueue)(nil)

// NewRedisQueue binds a queue name to a client.
func NewRedisQueue(client redis.UniversalClient, prefix, name string) *RedisQueue {
	if prefix == "" {
		prefix = "vodpipe"
	}
	return &RedisQueue{
		client: client,
		name:   name,
		base:   prefix + ":" + name + ":",
		logger: log.WithComponent("queue"),
		now:    time.Now,
	}
}

// Name returns the queue name.
func (q *RedisQueue) Name() string { return q.name }

func (q *RedisQueue) key(suffix string) string { return q.base + suffix }

func (q *RedisQueue) jobPrefix() string { return q.base + "job:" }

// Enqueue stores the job hash and adds it to the wait set atomically.
func (q *RedisQueue) Enqueue(ctx context.Context, jobType string, payload []byte, opts Options) (Ack, error) {
	opts = opts.withDefaults()

	id, err := enqueueScript.Run(ctx, q.client,
		[]string{q.key("id"), q.key("wait")},
		q.jobPrefix(), jobType, payload, opts.Priority, opts.Attempts,
		opts.Backoff.Milliseconds(), opts.KeepCompleted, opts.KeepFailed,
		q.now().UnixMilli(), seqSpan,
	).Int64()
	if err != nil {
		metrics.RecordJobEnqueued("redis", "error")
		return Ack{}, fmt.Errorf("queue: enqueue %s: %w", jobType, err)
	}

	metrics.RecordJobEnqueued("redis", "ok")
	jobID := strconv.FormatInt(id, 10)
	q.logger.Debug().
		Str(log.FieldJobID, jobID).
		Str("queue", q.name).
		Str("job_type", jobType).
		Int("priority", opts.Priority).
		Msg("job enqueued")
	return Ack{Queue: q.name, JobID: jobID}, nil
}

// Reserve promotes due delayed jobs and pops the highest-priority waiting
// job. It returns (nil, nil) when nothing is ready.
func (q *RedisQueue) Reserve(ctx context.Context) (*Job, error) {
	id, err := reserveScript.Run(ctx, q.client,
		[]string{q.key("wait"), q.key("delayed"), q.key("active")},
		q.now().UnixMilli(), q.jobPrefix(), seqSpan,
	).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: reserve: %w", err)
	}
	return q.Get(ctx, id)
}

// Complete moves an active job into the completed history.
func (q *RedisQueue) Complete(ctx context.Context, jobID string) error {
	n, err := completeScript.Run(ctx, q.client,
		[]string{q.key("active"), q.key("completed")},
		jobID, q.jobPrefix(), q.now().UnixMilli(),
	).Int()
	if err != nil {
		return fmt.Errorf("queue: complete %s: %w", jobID, err)
	}
	if n == 0 {
		return ErrUnknownJob
	}
	return nil
}

// Fail records a failed attempt. It reports whether the job was scheduled
// for another attempt; otherwise it moved to the failed history.
func (q *RedisQueue) Fail(ctx context.Context, jobID string, cause error) (bool, error) {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	n, err := failScript.Run(ctx, q.client,
		[]string{q.key("active"), q.key("delayed"), q.key("failed")},
		jobID, q.jobPrefix(), reason, q.now().UnixMilli(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("queue: fail %s: %w", jobID, err)
	}
	switch n {
	case -1:
		return false, ErrUnknownJob
	case 1:
		q.logger.Info().Str(log.FieldJobID, jobID).Str("queue", q.name).Str("reason", reason).Msg("job scheduled for retry")
		return true, nil
	default:
		q.logger.Warn().Str(log.FieldJobID, jobID).Str("queue", q.name).Str("reason", reason).Msg("job exhausted its attempts")
		return false, nil
	}
}

// Get loads a job hash by id.
func (q *RedisQueue) Get(ctx context.Context, jobID string) (*Job, error) {
	fields, err := q.client.HGetAll(ctx, q.jobPrefix()+jobID).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: load job %s: %w", jobID, err)
	}
	if len(fields) == 0 {
		return nil, ErrUnknownJob
	}

	atoi := func(k string) int {
		v, _ := strconv.Atoi(fields[k])
		return v
	}
	enqueued, _ := strconv.ParseInt(fields["enqueued_at"], 10, 64)
	backoff, _ := strconv.ParseInt(fields["backoff_ms"], 10, 64)

	return &Job{
		ID:            jobID,
		Type:          fields["type"],
		Payload:       []byte(fields["payload"]),
		Priority:      atoi("priority"),
		Attempts:      atoi("attempts"),
		MaxAttempts:   atoi("max_attempts"),
		Backoff:       time.Duration(backoff) * time.Millisecond,
		KeepCompleted: atoi("keep_completed"),
		KeepFailed:    atoi("keep_failed"),
		LastError:     fields["last_error"],
		EnqueuedAt:    time.UnixMilli(enqueued).UTC(),
	}, nil
}

// Counts returns queue depth per state.
func (q *RedisQueue) Counts(ctx context.Context) (Counts, error) {
	pipe := q.client.Pipeline()
	wait := pipe.ZCard(ctx, q.key("wait"))
	delayed := pipe.ZCard(ctx, q.key("delayed"))
	active := pipe.SCard(ctx, q.key("active"))
	completed := pipe.LLen(ctx, q.key("completed"))
	failed := pipe.LLen(ctx, q.key("failed"))
	if _, err := pipe.Exec(ctx); err != nil {
		return Counts{}, fmt.Errorf("queue: counts: %w", err)
	}
	return Counts{
		Waiting:   wait.Val(),
		Delayed:   delayed.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
	}, nil
}
