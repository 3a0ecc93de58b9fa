package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/logging"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/services"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Second, Backoff(time.Second, 1))
	assert.Equal(t, 2*time.Second, Backoff(time.Second, 2))
	assert.Equal(t, 4*time.Second, Backoff(time.Second, 3))
	assert.Equal(t, time.Second, Backoff(time.Second, 0))
}

func TestEnvelope_DecodesConcreteJob(t *testing.T) {
	tests := []struct {
		name string
		job  MessageJob
	}{
		{name: "email", job: EmailJob{MessageLogID: 1, TenantID: 2, RecipientEmail: "a@x.io", Subject: "Hi", Body: "Hello"}},
		{name: "sms", job: SMSJob{MessageLogID: 3, TenantID: 2, RecipientPhone: "+15551234567", Body: "Hello"}},
		{name: "whatsapp", job: WhatsAppJob{MessageLogID: 4, TenantID: 2, RecipientPhone: "+15551234567", Body: "Hello"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := NewEnvelope(tt.job, EnqueueOptions{}, utils.UTCNow())
			require.NoError(t, err)
			assert.Equal(t, tt.job.Channel(), env.Channel)
			assert.Equal(t, utils.DefaultQueueAttempts, env.MaxAttempts)
			assert.Equal(t, utils.DefaultQueueBackoffBase, env.BackoffBase)

			got, err := env.Job()
			require.NoError(t, err)
			assert.Equal(t, tt.job, got)
		})
	}

	t.Run("unknown channel", func(t *testing.T) {
		env := &Envelope{Channel: "PIGEON", Payload: []byte(`{}`)}
		_, err := env.Job()
		assert.Error(t, err)
	})
}

func TestJobFromMessageLog(t *testing.T) {
	msg := &models.MessageLog{
		ID:             9,
		TenantID:       1,
		Channel:        models.MessageChannelEmail,
		RecipientEmail: utils.ToPtr("a@x.io"),
		Subject:        utils.ToPtr("Subject"),
		Body:           "Body",
	}
	job, err := JobFromMessageLog(msg)
	require.NoError(t, err)
	email, ok := job.(EmailJob)
	require.True(t, ok)
	assert.Equal(t, "a@x.io", email.RecipientEmail)
	assert.Equal(t, "Subject", email.Subject)

	msg.Channel = models.MessageChannelWhatsApp
	msg.RecipientPhone = utils.ToPtr("+15551234567")
	job, err = JobFromMessageLog(msg)
	require.NoError(t, err)
	wa, ok := job.(WhatsAppJob)
	require.True(t, ok)
	assert.Equal(t, "+15551234567", wa.RecipientPhone)
}

type attemptRecorder struct {
	mu       sync.Mutex
	attempts []int
	results  []error
}

func (r *attemptRecorder) handler(_ context.Context, _ MessageJob, attempt int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, attempt)
	if len(r.results) == 0 {
		return nil
	}
	err := r.results[0]
	r.results = r.results[1:]
	return err
}

func (r *attemptRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.attempts)
}

func runQueue(t *testing.T, q Queue, h Handler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = q.Run(ctx, h)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestMemoryQueue(t *testing.T) {
	fast := EnqueueOptions{Attempts: 3, BackoffBase: 5 * time.Millisecond}
	job := SMSJob{MessageLogID: 1, TenantID: 1, RecipientPhone: "+15551234567", Body: "hi"}

	t.Run("delivers once on success", func(t *testing.T) {
		q := NewMemoryQueue(Options{}, logging.Discard())
		rec := &attemptRecorder{}
		runQueue(t, q, rec.handler)

		_, err := q.Enqueue(context.Background(), job, fast)
		require.NoError(t, err)
		assert.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	})

	t.Run("retries transient failures then succeeds", func(t *testing.T) {
		q := NewMemoryQueue(Options{}, logging.Discard())
		rec := &attemptRecorder{results: []error{errors.New("timeout"), errors.New("timeout")}}
		runQueue(t, q, rec.handler)

		_, err := q.Enqueue(context.Background(), job, fast)
		require.NoError(t, err)
		assert.Eventually(t, func() bool { return rec.count() == 3 }, time.Second, 5*time.Millisecond)

		dead, err := q.DeadLetters(context.Background(), models.MessageChannelSMS, 10)
		require.NoError(t, err)
		assert.Empty(t, dead)
	})

	t.Run("dead letters after attempts are exhausted", func(t *testing.T) {
		q := NewMemoryQueue(Options{}, logging.Discard())
		boom := errors.New("provider down")
		rec := &attemptRecorder{results: []error{boom, boom, boom, boom}}
		runQueue(t, q, rec.handler)

		_, err := q.Enqueue(context.Background(), job, fast)
		require.NoError(t, err)
		assert.Eventually(t, func() bool {
			dead, _ := q.DeadLetters(context.Background(), models.MessageChannelSMS, 10)
			return len(dead) == 1
		}, time.Second, 5*time.Millisecond)

		assert.Equal(t, 3, rec.count())
		dead, _ := q.DeadLetters(context.Background(), models.MessageChannelSMS, 10)
		assert.Equal(t, 3, dead[0].Envelope.Attempt)
		assert.Contains(t, dead[0].Error, "provider down")
	})

	t.Run("permanent failures are not retried", func(t *testing.T) {
		q := NewMemoryQueue(Options{}, logging.Discard())
		rec := &attemptRecorder{results: []error{services.Permanent(errors.New("invalid number"))}}
		runQueue(t, q, rec.handler)

		_, err := q.Enqueue(context.Background(), job, fast)
		require.NoError(t, err)
		assert.Eventually(t, func() bool {
			dead, _ := q.DeadLetters(context.Background(), models.MessageChannelSMS, 10)
			return len(dead) == 1
		}, time.Second, 5*time.Millisecond)
		time.Sleep(30 * time.Millisecond)
		assert.Equal(t, 1, rec.count())
	})

	t.Run("permanent failures retried when configured", func(t *testing.T) {
		q := NewMemoryQueue(Options{RetryPermanentErrors: true}, logging.Discard())
		rec := &attemptRecorder{results: []error{services.Permanent(errors.New("invalid number"))}}
		runQueue(t, q, rec.handler)

		_, err := q.Enqueue(context.Background(), job, fast)
		require.NoError(t, err)
		assert.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, 5*time.Millisecond)
	})

	t.Run("channels are independent", func(t *testing.T) {
		q := NewMemoryQueue(Options{}, logging.Discard())
		var email, sms atomic.Int32
		runQueue(t, q, func(_ context.Context, j MessageJob, _ int) error {
			switch j.(type) {
			case EmailJob:
				email.Add(1)
			case SMSJob:
				sms.Add(1)
			}
			return nil
		})

		_, err := q.Enqueue(context.Background(), EmailJob{MessageLogID: 1, RecipientEmail: "a@x.io"}, fast)
		require.NoError(t, err)
		_, err = q.Enqueue(context.Background(), job, fast)
		require.NoError(t, err)
		assert.Eventually(t, func() bool { return email.Load() == 1 && sms.Load() == 1 }, time.Second, 5*time.Millisecond)
	})

	t.Run("closed queue rejects jobs", func(t *testing.T) {
		q := NewMemoryQueue(Options{}, logging.Discard())
		require.NoError(t, q.Close())
		_, err := q.Enqueue(context.Background(), job, fast)
		assert.ErrorIs(t, err, ErrQueueClosed)
	})
}

func TestMemoryQueue_Run(t *testing.T) {
	t.Run("requires a handler", func(t *testing.T) {
		q := NewMemoryQueue(Options{}, logging.Discard())
		assert.Error(t, q.Run(context.Background(), nil))
	})

	t.Run("returns the cancellation cause", func(t *testing.T) {
		q := NewMemoryQueue(Options{Concurrency: 2}, logging.Discard())
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- q.Run(ctx, (&attemptRecorder{}).handler) }()

		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(5 * time.Second):
			t.Fatal("Run did not stop")
		}
	})

	t.Run("close stops workers cleanly", func(t *testing.T) {
		q := NewMemoryQueue(Options{}, logging.Discard())
		done := make(chan error, 1)
		go func() { done <- q.Run(context.Background(), (&attemptRecorder{}).handler) }()

		require.NoError(t, q.Close())
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("Run did not stop")
		}
	})
}
