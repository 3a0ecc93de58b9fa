package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/logging"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisQueue(t *testing.T, opts Options) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisQueue(client, "test:", opts, logging.Discard()), mr
}

func TestRedisQueue_EnqueueUsesChannelList(t *testing.T) {
	q, mr := newTestRedisQueue(t, Options{})

	_, err := q.Enqueue(context.Background(), WhatsAppJob{MessageLogID: 1, RecipientPhone: "+15551234567", Body: "hi"}, EnqueueOptions{})
	require.NoError(t, err)

	items, err := mr.List("test:queue:WHATSAPP:wait")
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.False(t, mr.Exists("test:queue:EMAIL:wait"))
}

func TestRedisQueue_PromoteDue(t *testing.T) {
	q, mr := newTestRedisQueue(t, Options{})
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	env, err := NewEnvelope(SMSJob{MessageLogID: 1, RecipientPhone: "+15551234567"}, EnqueueOptions{}, now)
	require.NoError(t, err)
	require.NoError(t, q.delay(context.Background(), env, 2*time.Second))

	moved, err := q.PromoteDue(context.Background(), models.MessageChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, 0, moved)

	now = now.Add(2 * time.Second)
	moved, err = q.PromoteDue(context.Background(), models.MessageChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	items, err := mr.List("test:queue:SMS:wait")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestRedisQueue_Run(t *testing.T) {
	q, _ := newTestRedisQueue(t, Options{PollInterval: 10 * time.Millisecond})
	fast := EnqueueOptions{Attempts: 2, BackoffBase: time.Millisecond}
	boom := errors.New("provider down")
	rec := &attemptRecorder{results: []error{boom, boom}}
	runQueue(t, q, rec.handler)

	_, err := q.Enqueue(context.Background(), EmailJob{MessageLogID: 5, RecipientEmail: "a@x.io", Body: "b"}, fast)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		dead, err := q.DeadLetters(context.Background(), models.MessageChannelEmail, 10)
		return err == nil && len(dead) == 1
	}, 5*time.Second, 20*time.Millisecond)

	dead, err := q.DeadLetters(context.Background(), models.MessageChannelEmail, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, dead[0].Envelope.Attempt)
	job, err := dead[0].Envelope.Job()
	require.NoError(t, err)
	assert.Equal(t, uint(5), job.LogID())
	assert.Equal(t, 2, rec.count())
}

func TestRedisQueue_ClaimedJobStaysInRedisUntilSettled(t *testing.T) {
	q, mr := newTestRedisQueue(t, Options{PollInterval: 10 * time.Millisecond})
	started := make(chan struct{})
	release := make(chan struct{})
	runQueue(t, q, func(ctx context.Context, _ MessageJob, _ int) error {
		close(started)
		<-release
		return nil
	})

	_, err := q.Enqueue(context.Background(), SMSJob{MessageLogID: 3, RecipientPhone: "+15551234567", Body: "hi"}, EnqueueOptions{})
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job was never claimed")
	}

	active, err := mr.List("test:queue:SMS:active")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.False(t, mr.Exists("test:queue:SMS:wait"))
	assert.Eventually(t, func() bool {
		leased, err := mr.ZMembers("test:queue:SMS:leases")
		return err == nil && len(leased) == 1
	}, time.Second, 10*time.Millisecond)

	close(release)
	assert.Eventually(t, func() bool {
		return !mr.Exists("test:queue:SMS:active") && !mr.Exists("test:queue:SMS:leases")
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRedisQueue_Reap(t *testing.T) {
	ctx := context.Background()
	q, mr := newTestRedisQueue(t, Options{VisibilityTimeout: time.Minute})
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	expired, err := NewEnvelope(SMSJob{MessageLogID: 1, RecipientPhone: "+15551234567"}, EnqueueOptions{}, now)
	require.NoError(t, err)
	unleased, err := NewEnvelope(SMSJob{MessageLogID: 2, RecipientPhone: "+15551234567"}, EnqueueOptions{}, now)
	require.NoError(t, err)
	expiredRaw, err := json.Marshal(expired)
	require.NoError(t, err)
	unleasedRaw, err := json.Marshal(unleased)
	require.NoError(t, err)

	_, err = mr.Lpush("test:queue:SMS:active", string(expiredRaw))
	require.NoError(t, err)
	_, err = mr.Lpush("test:queue:SMS:active", string(unleasedRaw))
	require.NoError(t, err)
	_, err = mr.ZAdd("test:queue:SMS:leases", float64(now.Add(-time.Second).UnixMilli()), string(expiredRaw))
	require.NoError(t, err)

	n, err := q.Reap(ctx, models.MessageChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	wait, err := mr.List("test:queue:SMS:wait")
	require.NoError(t, err)
	assert.Equal(t, []string{string(expiredRaw)}, wait)
	active, err := mr.List("test:queue:SMS:active")
	require.NoError(t, err)
	assert.Equal(t, []string{string(unleasedRaw)}, active)

	// the job claimed without a lease gets one grace period
	n, err = q.Reap(ctx, models.MessageChannelSMS)
	require.NoError(t, err)
	assert.Zero(t, n)

	now = now.Add(2 * time.Minute)
	n, err = q.Reap(ctx, models.MessageChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, mr.Exists("test:queue:SMS:active"))
	assert.False(t, mr.Exists("test:queue:SMS:leases"))
}

func TestRedisQueue_RunReturnsFatalErrors(t *testing.T) {
	q, _ := newTestRedisQueue(t, Options{PollInterval: 10 * time.Millisecond})
	require.NoError(t, q.client.Close())

	done := make(chan error, 1)
	go func() { done <- q.Run(context.Background(), (&attemptRecorder{}).handler) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, redis.ErrClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the client closed")
	}
}

func TestRedisQueue_RunStopsOnCancel(t *testing.T) {
	q, _ := newTestRedisQueue(t, Options{PollInterval: 10 * time.Millisecond})
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
}
