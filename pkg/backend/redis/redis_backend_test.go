package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erain9/arbsignal/pkg/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// setupTestRedis returns a client for the test Redis, skipping the test
// when none is running. Flushes the DB before returning the client.
func setupTestRedis(t *testing.T) *redis.Client {
	addr := testutil.RedisAddr()
	testutil.SkipIfRedisUnavailable(t, addr)

	client := NewClient(RedisOptions{Addr: addr})
	require.NoError(t, client.FlushDB(context.Background()).Err(), "Failed to flush Redis DB")
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewRedisBackend(t *testing.T) {
	client := NewClient(RedisOptions{Addr: "localhost:0"})
	defer client.Close()

	backend := NewRedisBackend(client, "test:new", nil)

	assert.NotNil(t, backend)
	assert.Equal(t, client, backend.client)
	assert.NotNil(t, backend.logger)
	assert.Equal(t, "test:new:seen:abc", backend.key("abc"))
}

func TestRedisBackend_SeenWithoutServer(t *testing.T) {
	client := NewClient(RedisOptions{Addr: "127.0.0.1:1"})
	defer client.Close()
	backend := NewRedisBackend(client, "test:down", zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	seen, err := backend.Seen(ctx, "k", time.Second)

	require.Error(t, err)
	assert.False(t, seen)
}

func TestRedisBackend_Seen(t *testing.T) {
	client := setupTestRedis(t)
	backend := NewRedisBackend(client, "test:dedupe", zap.NewNop())
	ctx := context.Background()

	seen, err := backend.Seen(ctx, "KrakenUSD:GdaxUSD", time.Minute)
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = backend.Seen(ctx, "KrakenUSD:GdaxUSD", time.Minute)
	require.NoError(t, err)
	assert.True(t, seen)

	ttl, err := client.PTTL(ctx, backend.key("KrakenUSD:GdaxUSD")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestRedisBackend_Forget(t *testing.T) {
	client := setupTestRedis(t)
	backend := NewRedisBackend(client, "test:forget", zap.NewNop())
	ctx := context.Background()

	seen, err := backend.Seen(ctx, "KrakenUSD:GdaxUSD", time.Minute)
	require.NoError(t, err)
	require.False(t, seen)

	require.NoError(t, backend.Forget(ctx, "KrakenUSD:GdaxUSD"))

	seen, err = backend.Seen(ctx, "KrakenUSD:GdaxUSD", time.Minute)
	require.NoError(t, err)
	assert.False(t, seen)
	require.NoError(t, backend.Forget(ctx, "KrakenUSD:GdaxUSD"))
}

func TestRedisBackend_SeenExpires(t *testing.T) {
	client := setupTestRedis(t)
	backend := NewRedisBackend(client, "test:expiry", zap.NewNop())
	ctx := context.Background()

	seen, err := backend.Seen(ctx, "short", 50*time.Millisecond)
	require.NoError(t, err)
	require.False(t, seen)

	require.Eventually(t, func() bool {
		err := client.Get(ctx, backend.key("short")).Err()
		return errors.Is(err, redis.Nil)
	}, 2*time.Second, 20*time.Millisecond)

	seen, err = backend.Seen(ctx, "short", time.Minute)
	require.NoError(t, err)
	assert.False(t, seen)
}
