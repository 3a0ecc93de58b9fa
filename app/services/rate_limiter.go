package services

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter counts events per key inside a window and reports whether one more is allowed
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RetryMessageKey scopes retry counting to one message
func RetryMessageKey(tenantID, messageID uint) string {
	return fmt.Sprintf("msg:%d:%d", tenantID, messageID)
}

// RetryTenantKey scopes retry counting to a tenant
func RetryTenantKey(tenantID uint) string {
	return fmt.Sprintf("tenant:%d", tenantID)
}

// ScheduleTenantKey scopes schedule counting to a tenant
func ScheduleTenantKey(tenantID uint) string {
	return fmt.Sprintf("schedule:%d", tenantID)
}

type rateWindow struct {
	count   int
	resetAt time.Time
}

// MemoryRateLimiter keeps fixed windows in process memory. Counts are not shared
// between instances, so multi-instance deployments should use RedisRateLimiter.
type MemoryRateLimiter struct {
	mu        sync.Mutex
	windows   map[string]*rateWindow
	now       func() time.Time
	gcPercent float64
}

// NewMemoryRateLimiter creates an in-process limiter
func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{
		windows:   make(map[string]*rateWindow),
		now:       time.Now,
		gcPercent: 0.1,
	}
}

// Allow starts a fresh window with count 1 when the previous one expired;
// otherwise it rejects once the ceiling is reached and counts the call if not.
func (l *MemoryRateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if rand.Float64() < l.gcPercent {
		l.sweepLocked(now)
	}

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		l.windows[key] = &rateWindow{count: 1, resetAt: now.Add(window)}
		return limit > 0, nil
	}
	if w.count >= limit {
		return false, nil
	}
	w.count++
	return true, nil
}

// Size returns how many keys are tracked
func (l *MemoryRateLimiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Sweep drops expired windows
func (l *MemoryRateLimiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepLocked(l.now())
}

func (l *MemoryRateLimiter) sweepLocked(now time.Time) {
	for k, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, k)
		}
	}
}

// incrWindowScript increments a counter and gives it an expiry in the same step.
// A counter left without a TTL is repaired on its next hit.
var incrWindowScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 or redis.call('PTTL', KEYS[1]) < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// RedisRateLimiter shares fixed-window counters through redis INCR with an expiry
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisRateLimiter creates a limiter backed by redis
func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, prefix: prefix + "ratelimit:"}
}

// Allow increments the window counter, setting its expiry atomically on first use
func (l *RedisRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	fullKey := l.prefix + key

	count, err := incrWindowScript.Run(ctx, l.client, []string{fullKey}, window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limiter redis error: %w", err)
	}
	return count <= int64(limit), nil
}
