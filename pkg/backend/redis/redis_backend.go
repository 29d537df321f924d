// Package redis holds backends that share state through Redis, so several
// publisher processes can cooperate.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/erain9/arbsignal/pkg/core"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisOptions represents configuration options for Redis connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewClient creates a Redis client from options.
func NewClient(options RedisOptions) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     options.Addr,
		Password: options.Password,
		DB:       options.DB,
	})
}

// RedisBackend is a core.Deduper that records keys with SET NX PX.
type RedisBackend struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisBackend creates a new instance of RedisBackend
func NewRedisBackend(client *redis.Client, keyPrefix string, logger *zap.Logger) *RedisBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBackend{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger,
	}
}

func (b *RedisBackend) key(key string) string {
	return fmt.Sprintf("%s:seen:%s", b.keyPrefix, key)
}

// Seen records key for ttl and reports whether it was already recorded.
// Recording and checking is one atomic command, so concurrent publishers
// agree on which of them saw a signal first.
func (b *RedisBackend) Seen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	created, err := b.client.SetNX(ctx, b.key(key), time.Now().UnixMilli(), ttl).Result()
	if err != nil {
		b.logger.Error("Failed to record signal",
			zap.String("key", key),
			zap.Error(err))
		return false, fmt.Errorf("redis SETNX %s: %w", key, err)
	}
	if !created {
		b.logger.Debug("Signal already recorded", zap.String("key", key))
	}
	return !created, nil
}

// Forget deletes the record for key.
func (b *RedisBackend) Forget(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, b.key(key)).Err(); err != nil {
		b.logger.Error("Failed to forget signal",
			zap.String("key", key),
			zap.Error(err))
		return fmt.Errorf("redis DEL %s: %w", key, err)
	}
	return nil
}

// Ping checks the connection.
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}

// Ensure RedisBackend implements core.Deduper
var _ core.Deduper = (*RedisBackend)(nil)
