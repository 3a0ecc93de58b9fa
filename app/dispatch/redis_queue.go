package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/utils"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const promoteBatch = 100

// promoteScript moves due members of the delayed zset onto the wait list in one step
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, m in ipairs(due) do
	redis.call('ZREM', KEYS[1], m)
	redis.call('LPUSH', KEYS[2], m)
end
return #due
`)

// reapScript puts jobs whose lease expired back at the head of the wait list.
// An active job without a lease (the worker died right after claiming it) gets
// one lease period of grace before it is reaped.
var reapScript = redis.NewScript(`
local items = redis.call('LRANGE', KEYS[1], 0, -1)
local n = 0
for _, m in ipairs(items) do
	local lease = redis.call('ZSCORE', KEYS[2], m)
	if not lease then
		redis.call('ZADD', KEYS[2], ARGV[2], m)
	elseif tonumber(lease) <= tonumber(ARGV[1]) then
		redis.call('LREM', KEYS[1], 1, m)
		redis.call('ZREM', KEYS[2], m)
		redis.call('RPUSH', KEYS[3], m)
		n = n + 1
	end
end
return n
`)

// RedisQueue keeps each channel's jobs in Redis:
//
//	<prefix>queue:<channel>:wait     list, LPUSH in, BLMOVE out
//	<prefix>queue:<channel>:active   list of claimed jobs
//	<prefix>queue:<channel>:leases   zset of active jobs scored by lease expiry millis
//	<prefix>queue:<channel>:delayed  zset scored by due unix millis
//	<prefix>queue:<channel>:dead     list, newest first
//
// A claimed job stays in the active list until its attempt is settled, so a
// worker that dies mid-send leaves it for the reaper to requeue.
type RedisQueue struct {
	client *redis.Client
	prefix string
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewRedisQueue creates a Redis-backed queue
func NewRedisQueue(client *redis.Client, prefix string, opts Options, logger *slog.Logger) *RedisQueue {
	return &RedisQueue{
		client: client,
		prefix: prefix,
		opts:   opts.withDefaults(),
		logger: logger,
		now:    utils.UTCNow,
	}
}

func (q *RedisQueue) key(channel models.MessageChannel, list string) string {
	return fmt.Sprintf("%squeue:%s:%s", q.prefix, channel, list)
}

// Enqueue pushes a job onto its channel's wait list
func (q *RedisQueue) Enqueue(ctx context.Context, job MessageJob, opts EnqueueOptions) (string, error) {
	env, err := NewEnvelope(job, opts, q.now())
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to encode envelope: %w", err)
	}
	if err := q.client.LPush(ctx, q.key(env.Channel, "wait"), raw).Err(); err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}
	recordEnqueued(env.Channel)
	return env.ID, nil
}

// Run starts a maintenance loop and Concurrency workers per channel. It blocks
// until ctx is cancelled or a worker hits an unrecoverable error.
func (q *RedisQueue) Run(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.New("dispatch handler is required")
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, channel := range models.AllMessageChannels {
		g.Go(func() error { return q.maintain(gctx, channel) })
		for i := 0; i < q.opts.Concurrency; i++ {
			g.Go(func() error { return q.worker(gctx, channel, handler) })
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// maintain promotes due retries and requeues abandoned jobs on every tick
func (q *RedisQueue) maintain(ctx context.Context, channel models.MessageChannel) error {
	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if _, err := q.PromoteDue(ctx, channel); err != nil {
			if fatalRedisError(ctx, err) {
				return fmt.Errorf("promote %s: %w", channel, err)
			}
			if ctx.Err() == nil {
				q.logger.Error("Failed to promote delayed jobs", "channel", channel, "error", err)
			}
		}
		if n, err := q.Reap(ctx, channel); err != nil {
			if fatalRedisError(ctx, err) {
				return fmt.Errorf("reap %s: %w", channel, err)
			}
			if ctx.Err() == nil {
				q.logger.Error("Failed to requeue abandoned jobs", "channel", channel, "error", err)
			}
		} else if n > 0 {
			q.logger.Warn("Requeued jobs with expired leases", "channel", channel, "count", n)
		}
	}
}

// PromoteDue moves delayed jobs whose time has come onto the wait list
func (q *RedisQueue) PromoteDue(ctx context.Context, channel models.MessageChannel) (int, error) {
	keys := []string{q.key(channel, "delayed"), q.key(channel, "wait")}
	return promoteScript.Run(ctx, q.client, keys, q.now().UnixMilli(), promoteBatch).Int()
}

// Reap requeues active jobs whose lease has expired
func (q *RedisQueue) Reap(ctx context.Context, channel models.MessageChannel) (int, error) {
	now := q.now()
	keys := []string{q.key(channel, "active"), q.key(channel, "leases"), q.key(channel, "wait")}
	return reapScript.Run(ctx, q.client, keys, now.UnixMilli(), q.leaseUntil(now)).Int()
}

func (q *RedisQueue) leaseUntil(now time.Time) int64 {
	return now.Add(q.opts.VisibilityTimeout).UnixMilli()
}

func (q *RedisQueue) worker(ctx context.Context, channel models.MessageChannel, handler Handler) error {
	wait, active, leases := q.key(channel, "wait"), q.key(channel, "active"), q.key(channel, "leases")
	for {
		if ctx.Err() != nil {
			return nil
		}
		raw, err := q.client.BLMove(ctx, wait, active, "RIGHT", "LEFT", q.opts.PollInterval).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			if fatalRedisError(ctx, err) {
				return fmt.Errorf("claim %s job: %w", channel, err)
			}
			q.logger.Error("Failed to claim job", "channel", channel, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(q.opts.PollInterval):
			}
			continue
		}

		if err := q.client.ZAdd(ctx, leases, redis.Z{Score: float64(q.leaseUntil(q.now())), Member: raw}).Err(); err != nil {
			q.logger.Warn("Failed to lease job", "channel", channel, "error", err)
		}

		var env Envelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			q.logger.Error("Dropping undecodable job", "channel", channel, "error", err)
			if ackErr := q.settle(ctx, channel, raw, nil); ackErr != nil {
				q.logger.Error("Failed to drop undecodable job", "channel", channel, "error", ackErr)
			}
			continue
		}
		q.process(ctx, channel, raw, &env, handler)
	}
}

func (q *RedisQueue) process(ctx context.Context, channel models.MessageChannel, raw string, env *Envelope, handler Handler) {
	result, delay, err := attempt(ctx, env, handler, q.opts.RetryPermanentErrors)

	var next func(context.Context, redis.Pipeliner) error
	switch result {
	case outcomeRetry:
		q.logger.Warn("Dispatch attempt failed, retrying",
			"job_id", env.ID, "channel", env.Channel, "attempt", env.Attempt, "delay", delay, "error", err)
		next = func(ctx context.Context, pipe redis.Pipeliner) error { return q.delayIn(ctx, pipe, env, delay) }
	case outcomeDead:
		q.logger.Error("Dispatch job moved to dead letters",
			"job_id", env.ID, "channel", env.Channel, "attempt", env.Attempt, "error", err)
		next = func(ctx context.Context, pipe redis.Pipeliner) error { return q.buryIn(ctx, pipe, env, err) }
	}

	if settleErr := q.settle(ctx, channel, raw, next); settleErr != nil {
		q.logger.Error("Failed to settle job, it will be requeued when its lease expires",
			"job_id", env.ID, "channel", channel, "error", settleErr)
		return
	}
	if result == outcomeDead {
		recordDeadLetter(env.Channel)
	}
}

// settle removes the claimed job from the active set and applies next in the
// same transaction. Settling outlives ctx so a shutdown mid-attempt still records the outcome.
func (q *RedisQueue) settle(ctx context.Context, channel models.MessageChannel, raw string, next func(context.Context, redis.Pipeliner) error) error {
	ctx = context.WithoutCancel(ctx)
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.key(channel, "active"), 1, raw)
	pipe.ZRem(ctx, q.key(channel, "leases"), raw)
	if next != nil {
		if err := next(ctx, pipe); err != nil {
			return err
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RedisQueue) delayIn(ctx context.Context, pipe redis.Pipeliner, env *Envelope, d time.Duration) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	due := q.now().Add(d).UnixMilli()
	pipe.ZAdd(ctx, q.key(env.Channel, "delayed"), redis.Z{Score: float64(due), Member: raw})
	return nil
}

func (q *RedisQueue) buryIn(ctx context.Context, pipe redis.Pipeliner, env *Envelope, cause error) error {
	raw, err := json.Marshal(DeadLetter{Envelope: env, Error: cause.Error(), FailedAt: q.now()})
	if err != nil {
		return err
	}
	dead := q.key(env.Channel, "dead")
	pipe.LPush(ctx, dead, raw)
	pipe.LTrim(ctx, dead, 0, int64(q.opts.DeadLetterLimit-1))
	return nil
}

// delay schedules an envelope on the delayed set outside of any claim
func (q *RedisQueue) delay(ctx context.Context, env *Envelope, d time.Duration) error {
	pipe := q.client.TxPipeline()
	if err := q.delayIn(ctx, pipe, env, d); err != nil {
		return err
	}
	_, err := pipe.Exec(ctx)
	return err
}

// DeadLetters returns up to limit dead jobs for a channel, newest first
func (q *RedisQueue) DeadLetters(ctx context.Context, channel models.MessageChannel, limit int) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = q.opts.DeadLetterLimit
	}
	raws, err := q.client.LRange(ctx, q.key(channel, "dead"), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read dead letters: %w", err)
	}
	out := make([]DeadLetter, 0, len(raws))
	for _, raw := range raws {
		var dl DeadLetter
		if err := json.Unmarshal([]byte(raw), &dl); err != nil {
			continue
		}
		out = append(out, dl)
	}
	return out, nil
}

// Close is a no-op; the Redis client is owned by the caller
func (q *RedisQueue) Close() error { return nil }

// fatalRedisError reports errors no retry loop can recover from
func fatalRedisError(ctx context.Context, err error) bool {
	return ctx.Err() == nil && errors.Is(err, redis.ErrClosed)
}
