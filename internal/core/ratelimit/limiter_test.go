package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return client, mr
}

func TestLimiterAllowsWithinWindow(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	l := NewLimiter(client, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, err := l.Allow(ctx, "agent-1", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	d, err := l.Allow(ctx, "agent-1", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
}

func TestLimiterIsolatesKeys(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	l := NewLimiter(client, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "agent-a", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	d, err := l.Allow(ctx, "agent-b", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, d.Allowed, "a different key must have its own window")
}

func TestLimiterDegradesWhenRedisUnreachable(t *testing.T) {
	client, mr := setupTestRedis(t)
	mr.Close() // Redis is gone before any call is made.
	defer client.Close()

	l := NewLimiter(client, zap.NewNop())
	ctx := context.Background()

	d, err := l.Allow(ctx, "agent-1", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, d.Allowed, "limiter unavailability must fail open")
	assert.True(t, d.Degraded)
	assert.Equal(t, 0, d.Remaining)
}

func TestLocalLimiterObservationNeverBlocksCaller(t *testing.T) {
	l := NewLocalLimiter()

	for i := 0; i < 10; i++ {
		l.Observe("agent-1", 3, time.Second)
	}
}
