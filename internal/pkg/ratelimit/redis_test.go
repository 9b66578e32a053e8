package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRedisLimiterFallsBackWhenUnavailable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	clock := newFakeClock()
	fallback := NewLimiter(WithClock(clock.Now))
	lim := NewRedisLimiter(rdb, zap.NewNop(), WithFallback(fallback))
	ctx := context.Background()

	require.True(t, lim.Check(ctx, "cancel_1.2.3.4", 1, time.Hour).Allowed)
	d := lim.Check(ctx, "cancel_1.2.3.4", 1, time.Hour)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Hour, d.ResetIn)
	assert.Equal(t, 1, fallback.Len())
}

func TestRedisLimiterUnlimitedSkipsRedis(t *testing.T) {
	lim := NewRedisLimiter(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), zap.NewNop())
	assert.True(t, lim.Check(context.Background(), "k", 0, time.Minute).Allowed)
}

func TestNewRedisClientRejectsBadURL(t *testing.T) {
	_, err := NewRedisClient("not a url")
	assert.Error(t, err)
}

func TestRedisLimiterFixedWindow(t *testing.T) {
	url := os.Getenv("POPLIFT_TEST_REDIS_URL")
	if url == "" {
		t.Skip("POPLIFT_TEST_REDIS_URL not set")
	}

	rdb, err := NewRedisClient(url)
	require.NoError(t, err)
	defer rdb.Close()

	lim := NewRedisLimiter(rdb, zap.NewNop(), WithKeyPrefix("poplift:test:"+uuid.NewString()))
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		d := lim.Check(ctx, "track_10.0.0.1", 3, time.Minute)
		require.True(t, d.Allowed)
		assert.Equal(t, 3-i, d.Remaining)
		assert.LessOrEqual(t, d.ResetIn, time.Minute)
	}

	d := lim.Check(ctx, "track_10.0.0.1", 3, time.Minute)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.ResetIn, time.Duration(0))

	assert.True(t, lim.Check(ctx, "track_10.0.0.2", 3, time.Minute).Allowed)
}
