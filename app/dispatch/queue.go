package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/services"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/utils"
)

// ErrQueueClosed is returned when enqueueing after shutdown
var ErrQueueClosed = errors.New("dispatch queue is closed")

// EnqueueOptions is the per-job delivery policy
type EnqueueOptions struct {
	Attempts    int
	BackoffBase time.Duration
}

// DefaultEnqueueOptions is three attempts with exponential backoff from one second
func DefaultEnqueueOptions() EnqueueOptions {
	return EnqueueOptions{Attempts: utils.DefaultQueueAttempts, BackoffBase: utils.DefaultQueueBackoffBase}
}

func (o EnqueueOptions) withDefaults() EnqueueOptions {
	if o.Attempts <= 0 {
		o.Attempts = utils.DefaultQueueAttempts
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = utils.DefaultQueueBackoffBase
	}
	return o
}

// Backoff is the delay before the retry that follows the given failed attempt (1-based):
// base, 2*base, 4*base, ...
func Backoff(base time.Duration, failedAttempt int) time.Duration {
	if failedAttempt < 1 {
		failedAttempt = 1
	}
	return base << (failedAttempt - 1)
}

// Handler processes one job attempt; a non-nil error fails the attempt
type Handler func(ctx context.Context, job MessageJob, attempt int) error

// DeadLetter is a job that exhausted its attempts or failed permanently
type DeadLetter struct {
	Envelope *Envelope `json:"envelope"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failedAt"`
}

// Queue is a set of per-channel work queues with retry and dead-letter bookkeeping
type Queue interface {
	Enqueue(ctx context.Context, job MessageJob, opts EnqueueOptions) (string, error)
	// Run consumes all channel queues until ctx is cancelled
	Run(ctx context.Context, handler Handler) error
	DeadLetters(ctx context.Context, channel models.MessageChannel, limit int) ([]DeadLetter, error)
	Close() error
}

// Options configures queue workers
type Options struct {
	Concurrency          int
	PollInterval         time.Duration
	RetryPermanentErrors bool
	DeadLetterLimit      int
	// VisibilityTimeout is how long a claimed Redis job may run before it is requeued
	VisibilityTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.DeadLetterLimit <= 0 {
		o.DeadLetterLimit = 1000
	}
	if o.VisibilityTimeout <= 0 {
		o.VisibilityTimeout = utils.DefaultQueueVisibilityTimeout
	}
	return o
}

type outcome int

const (
	outcomeDone outcome = iota
	outcomeRetry
	outcomeDead
)

// attempt runs the handler for the envelope's next attempt and decides what happens next.
// Permanent delivery errors skip remaining attempts unless retryPermanent is set.
func attempt(ctx context.Context, env *Envelope, handler Handler, retryPermanent bool) (outcome, time.Duration, error) {
	env.Attempt++
	job, err := env.Job()
	if err != nil {
		return outcomeDead, 0, err
	}

	start := time.Now()
	err = handler(ctx, job, env.Attempt)
	observeDuration(env.Channel, time.Since(start))
	if err == nil {
		recordProcessed(env.Channel, "sent")
		return outcomeDone, 0, nil
	}

	env.LastError = err.Error()
	if services.IsPermanentDeliveryError(err) && !retryPermanent {
		recordProcessed(env.Channel, "permanent_failure")
		return outcomeDead, 0, err
	}
	if env.Attempt >= env.MaxAttempts {
		recordProcessed(env.Channel, "exhausted")
		return outcomeDead, 0, err
	}
	recordProcessed(env.Channel, "retry")
	return outcomeRetry, Backoff(env.BackoffBase, env.Attempt), err
}
