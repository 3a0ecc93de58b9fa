package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/utils"
	"golang.org/x/sync/errgroup"
)

const memoryQueueBuffer = 1024

// MemoryQueue is an in-process Queue with one buffered channel per message channel.
// Pending jobs are lost on restart; use RedisQueue where that matters.
type MemoryQueue struct {
	opts   Options
	logger *slog.Logger

	queues map[models.MessageChannel]chan *Envelope
	done   chan struct{}
	once   sync.Once

	mu   sync.Mutex
	dead map[models.MessageChannel][]DeadLetter
}

// NewMemoryQueue creates an in-process queue
func NewMemoryQueue(opts Options, logger *slog.Logger) *MemoryQueue {
	q := &MemoryQueue{
		opts:   opts.withDefaults(),
		logger: logger,
		queues: make(map[models.MessageChannel]chan *Envelope, len(models.AllMessageChannels)),
		done:   make(chan struct{}),
		dead:   make(map[models.MessageChannel][]DeadLetter),
	}
	for _, ch := range models.AllMessageChannels {
		q.queues[ch] = make(chan *Envelope, memoryQueueBuffer)
	}
	return q
}

// Enqueue adds a job to its channel's queue
func (q *MemoryQueue) Enqueue(ctx context.Context, job MessageJob, opts EnqueueOptions) (string, error) {
	env, err := NewEnvelope(job, opts, utils.UTCNow())
	if err != nil {
		return "", err
	}
	if err := q.push(ctx, env); err != nil {
		return "", err
	}
	recordEnqueued(env.Channel)
	return env.ID, nil
}

func (q *MemoryQueue) push(ctx context.Context, env *Envelope) error {
	ch, ok := q.queues[env.Channel]
	if !ok {
		return ErrQueueClosed
	}
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case ch <- env:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts Concurrency workers per channel and blocks until ctx is cancelled or the queue is closed
func (q *MemoryQueue) Run(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.New("dispatch handler is required")
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, ch := range q.queues {
		for i := 0; i < q.opts.Concurrency; i++ {
			g.Go(func() error { return q.worker(gctx, ch, handler) })
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (q *MemoryQueue) worker(ctx context.Context, ch chan *Envelope, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-q.done:
			return nil
		case env := <-ch:
			q.process(ctx, env, handler)
		}
	}
}

func (q *MemoryQueue) process(ctx context.Context, env *Envelope, handler Handler) {
	result, delay, err := attempt(ctx, env, handler, q.opts.RetryPermanentErrors)
	switch result {
	case outcomeRetry:
		q.logger.Warn("Dispatch attempt failed, retrying",
			"job_id", env.ID, "channel", env.Channel, "attempt", env.Attempt, "delay", delay, "error", err)
		time.AfterFunc(delay, func() {
			if pushErr := q.push(context.Background(), env); pushErr != nil {
				q.logger.Error("Failed to requeue job", "job_id", env.ID, "error", pushErr)
			}
		})
	case outcomeDead:
		q.logger.Error("Dispatch job moved to dead letters",
			"job_id", env.ID, "channel", env.Channel, "attempt", env.Attempt, "error", err)
		q.bury(env, err)
	}
}

func (q *MemoryQueue) bury(env *Envelope, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	list := append(q.dead[env.Channel], DeadLetter{Envelope: env, Error: err.Error(), FailedAt: utils.UTCNow()})
	if over := len(list) - q.opts.DeadLetterLimit; over > 0 {
		list = list[over:]
	}
	q.dead[env.Channel] = list
	recordDeadLetter(env.Channel)
}

// DeadLetters returns up to limit dead jobs for a channel, newest first
func (q *MemoryQueue) DeadLetters(_ context.Context, channel models.MessageChannel, limit int) ([]DeadLetter, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	list := q.dead[channel]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]DeadLetter, 0, limit)
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, list[i])
	}
	return out, nil
}

// Close stops workers and rejects further jobs
func (q *MemoryQueue) Close() error {
	q.once.Do(func() { close(q.done) })
	return nil
}
