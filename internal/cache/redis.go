// Package cache provides read-through caches of persisted symptom logs.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/symptom-ledger-server/internal/domain"
)

const (
	defaultKeyPrefix = "symptom-ledger:"
	defaultTTL       = 15 * time.Minute
)

// RedisCache stores symptom logs in Redis under {prefix}log:{user_id}
type RedisCache struct {
	redis  *redis.Client
	prefix string
	ttl    time.Duration
	log    *logrus.Logger
}

// NewRedisCache connects to the Redis instance named by config.RedisURL
func NewRedisCache(ctx context.Context, config domain.CacheConfig, logger *logrus.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRedisCache(client, config, logger), nil
}

func newRedisCache(client *redis.Client, config domain.CacheConfig, logger *logrus.Logger) *RedisCache {
	prefix := config.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	ttl := config.DefaultTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisCache{
		redis:  client,
		prefix: prefix,
		ttl:    ttl,
		log:    logger,
	}
}

func (c *RedisCache) key(userID string) string {
	return c.prefix + "log:" + userID
}

// Get returns the cached log of userID. Entries that no longer decode cleanly
// are deleted and reported as a miss.
func (c *RedisCache) Get(ctx context.Context, userID string) (*domain.SymptomLog, bool, error) {
	key := c.key(userID)

	val, err := c.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cached symptom log: %w", err)
	}

	log, warnings := domain.DecodeLog(userID, val)
	if len(warnings) > 0 {
		c.log.WithFields(logrus.Fields{
			"user_id":  userID,
			"warnings": warnings,
		}).Warn("Dropping corrupted cache entry")
		c.redis.Del(ctx, key)
		return nil, false, nil
	}
	return log, true, nil
}

// Set caches log for the configured TTL
func (c *RedisCache) Set(ctx context.Context, log *domain.SymptomLog) error {
	data, err := domain.EncodeLog(log.Clone())
	if err != nil {
		return fmt.Errorf("failed to marshal symptom log: %w", err)
	}
	return c.redis.Set(ctx, c.key(log.UserID), data, c.ttl).Err()
}

// Invalidate removes the cached log of userID
func (c *RedisCache) Invalidate(ctx context.Context, userID string) error {
	return c.redis.Del(ctx, c.key(userID)).Err()
}

// Health pings Redis
func (c *RedisCache) Health(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis client
func (c *RedisCache) Close() error {
	return c.redis.Close()
}
