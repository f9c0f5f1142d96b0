// Package ratelimit is the RateLimit phase of the pipeline: a fixed
// window counter in Redis, shared across every gateway instance. When
// Redis cannot be reached the limiter fails open: every request is
// admitted with Remaining 0, and a per-process token bucket only
// observes the degraded traffic; it never denies a request.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed   bool
	Remaining int
	RetryIn   time.Duration
	// Degraded is true when Redis was unreachable and the request was
	// admitted without being counted.
	Degraded bool
}

// Limiter is the RateLimit phase's single entry point.
type Limiter struct {
	client   *redis.Client
	fallback *LocalLimiter
	log      *zap.Logger
}

func NewLimiter(client *redis.Client, log *zap.Logger) *Limiter {
	return &Limiter{
		client:   client,
		fallback: NewLocalLimiter(),
		log:      log,
	}
}

// Allow checks whether one more request fits within limit per window for
// key. If Redis errors it fails open: the request is allowed with
// Remaining 0 and Degraded set.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	windowKey := windowedKey(key, window)

	count, err := l.client.Incr(ctx, windowKey).Result()
	if err != nil {
		l.log.Warn("rate limit store unreachable, failing open",
			zap.String("key", key), zap.Error(err))
		l.fallback.Observe(key, limit, window)
		return Decision{Allowed: true, Remaining: 0, Degraded: true}, nil
	}
	if count == 1 {
		l.client.Expire(ctx, windowKey, window)
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	if count > int64(limit) {
		ttl, _ := l.client.TTL(ctx, windowKey).Result()
		return Decision{Allowed: false, Remaining: 0, RetryIn: ttl}, nil
	}
	return Decision{Allowed: true, Remaining: remaining}, nil
}

func (l *Limiter) Reset(ctx context.Context, key string, window time.Duration) error {
	return l.client.Del(ctx, windowedKey(key, window)).Err()
}

func windowedKey(key string, window time.Duration) string {
	return fmt.Sprintf("ratelimit:%s:%d", key, int64(window.Seconds()))
}

// LocalLimiter tracks per-key request rate during a Redis outage purely
// for observability; it never denies. Limiter unavailability fails open
// per spec, so the local x/time/rate limiter here only feeds a signal
// an operator could alert on, not an enforcement decision.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{limiters: make(map[string]*rate.Limiter)}
}

// Observe records one request against key's local rate tracker. The
// returned value is discarded by the caller by design: it exists so a
// future metrics hook can surface how far degraded traffic exceeds the
// configured limit, without ever turning into a 429.
func (l *LocalLimiter) Observe(key string, limit int, window time.Duration) bool {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		perSecond := float64(limit) / window.Seconds()
		lim = rate.NewLimiter(rate.Limit(perSecond), limit)
		l.limiters[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
