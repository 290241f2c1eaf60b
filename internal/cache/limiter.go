// internal/cache/limiter.go
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter answers whether another attempt is allowed for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// counterStore is the subset of the redis client the limiter needs.
type counterStore interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisLimiter is a fixed-window counter shared by every API instance.
type RedisLimiter struct {
	store  counterStore
	scope  string
	limit  int64
	window time.Duration
	now    func() time.Time
}

func NewRedisLimiter(store counterStore, scope string, limit int, window time.Duration) *RedisLimiter {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &RedisLimiter{store: store, scope: scope, limit: int64(limit), window: window, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	windowStart := l.now().Truncate(l.window).Unix()
	redisKey := buildKey("rl", l.scope, key, time.Unix(windowStart, 0).UTC().Format("20060102T150405"))

	count, err := l.store.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := l.store.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return count <= l.limit, err
		}
	}
	return count <= l.limit, nil
}

// LocalLimiter is the single-instance fallback used when Redis is not configured.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*localEntry
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time
}

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalLimiter allows limit attempts per window and key. Non-positive
// values are raised to one attempt per second.
func NewLocalLimiter(limit int, window time.Duration) *LocalLimiter {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &LocalLimiter{
		limiters: make(map[string]*localEntry),
		limit:    rate.Every(window / time.Duration(limit)),
		burst:    limit,
		ttl:      window * 3,
		now:      time.Now,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for k, e := range l.limiters {
		if now.Sub(e.lastSeen) > l.ttl {
			delete(l.limiters, k)
		}
	}

	entry, ok := l.limiters[key]
	if !ok {
		entry = &localEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1), nil
}
