package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRateLimiter_Ceiling(t *testing.T) {
	l := NewMemoryRateLimiter()
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		ok, err := l.Allow(ctx, ScheduleTenantKey(1), 20, time.Hour)
		require.NoError(t, err)
		require.True(t, ok, "call %d should pass", i+1)
	}
	ok, err := l.Allow(ctx, ScheduleTenantKey(1), 20, time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "21st call must be rejected")

	ok, err = l.Allow(ctx, ScheduleTenantKey(2), 20, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "other tenants are unaffected")
}

func TestMemoryRateLimiter_WindowReset(t *testing.T) {
	l := NewMemoryRateLimiter()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	key := RetryMessageKey(1, 9)
	for i := 0; i < 5; i++ {
		ok, _ := l.Allow(ctx, key, 5, time.Hour)
		require.True(t, ok)
	}
	ok, _ := l.Allow(ctx, key, 5, time.Hour)
	require.False(t, ok)

	now = now.Add(time.Hour)
	ok, _ = l.Allow(ctx, key, 5, time.Hour)
	assert.True(t, ok, "an expired window starts over")
}

func TestMemoryRateLimiter_Sweep(t *testing.T) {
	l := NewMemoryRateLimiter()
	l.gcPercent = 0
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = l.Allow(ctx, "a", 1, time.Minute)
	_, _ = l.Allow(ctx, "b", 1, time.Hour)
	require.Equal(t, 2, l.Size())

	now = now.Add(2 * time.Minute)
	l.Sweep()
	assert.Equal(t, 1, l.Size())
}

func TestRedisRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisRateLimiter(client, "test:")
	ctx := context.Background()
	key := RetryTenantKey(3)

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, key, 3, time.Hour)
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := l.Allow(ctx, key, 3, time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, mr.Exists("test:ratelimit:"+key))
	assert.Greater(t, mr.TTL("test:ratelimit:"+key), time.Duration(0))

	mr.FastForward(time.Hour + time.Second)
	ok, err = l.Allow(ctx, key, 3, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisRateLimiter_RepairsCounterWithoutExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisRateLimiter(client, "test:")
	key := ScheduleTenantKey(9)
	fullKey := "test:ratelimit:" + key

	// a counter written without a TTL must not block the tenant forever
	require.NoError(t, mr.Set(fullKey, "20"))
	assert.Zero(t, mr.TTL(fullKey))

	ok, err := l.Allow(context.Background(), key, 20, time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
	ttl := mr.TTL(fullKey)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Hour)

	mr.FastForward(time.Hour + time.Second)
	ok, err = l.Allow(context.Background(), key, 20, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimitKeys(t *testing.T) {
	assert.Equal(t, "msg:4:17", RetryMessageKey(4, 17))
	assert.Equal(t, "tenant:4", RetryTenantKey(4))
	assert.Equal(t, "schedule:4", ScheduleTenantKey(4))
}
