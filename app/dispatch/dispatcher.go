package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/config"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
	"github.com/redis/go-redis/v9"
)

// Dispatcher enqueues stored message logs for delivery
type Dispatcher interface {
	Dispatch(ctx context.Context, msg *models.MessageLog) (string, error)
	DeadLetters(ctx context.Context, channel models.MessageChannel, limit int) ([]DeadLetter, error)
}

// QueueDispatcher is a Dispatcher over a Queue with a fixed delivery policy
type QueueDispatcher struct {
	queue Queue
	opts  EnqueueOptions
}

// NewDispatcher creates a Dispatcher
func NewDispatcher(queue Queue, opts EnqueueOptions) *QueueDispatcher {
	return &QueueDispatcher{queue: queue, opts: opts.withDefaults()}
}

// Dispatch builds the channel job for msg and enqueues it
func (d *QueueDispatcher) Dispatch(ctx context.Context, msg *models.MessageLog) (string, error) {
	job, err := JobFromMessageLog(msg)
	if err != nil {
		return "", err
	}
	return d.queue.Enqueue(ctx, job, d.opts)
}

// DeadLetters returns the channel's dead jobs, newest first
func (d *QueueDispatcher) DeadLetters(ctx context.Context, channel models.MessageChannel, limit int) ([]DeadLetter, error) {
	return d.queue.DeadLetters(ctx, channel, limit)
}

// NewQueue builds the configured queue backend; client may be nil for the memory backend
func NewQueue(cfg config.QueueConfig, client *redis.Client, prefix string, logger *slog.Logger) (Queue, error) {
	opts := Options{
		Concurrency:          cfg.Concurrency,
		PollInterval:         cfg.PollInterval,
		RetryPermanentErrors: cfg.RetryPermanentErrors,
		DeadLetterLimit:      cfg.DeadLetterLimit,
		VisibilityTimeout:    cfg.VisibilityTimeout,
	}
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryQueue(opts, logger), nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("redis queue backend requires a redis client")
		}
		return NewRedisQueue(client, prefix, opts, logger), nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}
}

// OptionsFromConfig returns the per-job policy from configuration
func OptionsFromConfig(cfg config.QueueConfig) EnqueueOptions {
	return EnqueueOptions{Attempts: cfg.Attempts, BackoffBase: cfg.BackoffBase}.withDefaults()
}
