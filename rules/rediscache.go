package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/liamcoop/offerrules/internal/logger"
)

// DefaultSnapshotKey is the Redis key the snapshot is stored under
const DefaultSnapshotKey = "offerrules:snapshot"

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string // Redis server address (host:port)
	Password string // Redis password (optional)
	DB       int    // Redis database number
	Key      string // Snapshot key, DefaultSnapshotKey when empty
}

// RedisSnapshotCache is a Redis-backed implementation of SnapshotCache.
// It lets several server replicas share one snapshot; a mutation on any
// replica invalidates it for all of them.
type RedisSnapshotCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisSnapshotCache connects to Redis and returns a cache storing the snapshot as JSON
func NewRedisSnapshotCache(config RedisConfig, cacheConfig CacheConfig) (*RedisSnapshotCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info("connected to Redis snapshot cache", "addr", config.Addr, "db", config.DB)

	return newRedisSnapshotCache(client, config.Key, cacheConfig), nil
}

func newRedisSnapshotCache(client *redis.Client, key string, cacheConfig CacheConfig) *RedisSnapshotCache {
	if key == "" {
		key = DefaultSnapshotKey
	}
	return &RedisSnapshotCache{
		client: client,
		key:    key,
		ttl:    cacheConfig.TTL,
	}
}

// Get retrieves the snapshot from Redis. Any failure is treated as a miss.
func (c *RedisSnapshotCache) Get() *Snapshot {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	val, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		logger.Warn("redis get failed", "key", c.key, "error", err)
		return nil
	}

	var snapshot Snapshot
	if err := json.Unmarshal(val, &snapshot); err != nil {
		logger.Warn("snapshot unmarshal failed", "key", c.key, "error", err)
		return nil
	}
	return &snapshot
}

// Set stores the snapshot in Redis with the configured TTL (0 means no expiry)
func (c *RedisSnapshotCache) Set(snapshot *Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	data, err := json.Marshal(snapshot)
	if err != nil {
		logger.Warn("snapshot marshal failed", "key", c.key, "error", err)
		return
	}

	if err := c.client.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		logger.Warn("redis set failed", "key", c.key, "error", err)
	}
}

// Invalidate deletes the snapshot key
func (c *RedisSnapshotCache) Invalidate() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		logger.Warn("redis delete failed", "key", c.key, "error", err)
	}
}

// IsValid reports whether the snapshot key exists
func (c *RedisSnapshotCache) IsValid() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	n, err := c.client.Exists(ctx, c.key).Result()
	if err != nil {
		logger.Warn("redis exists failed", "key", c.key, "error", err)
		return false
	}
	return n == 1
}

// HealthCheck checks if Redis is available
func (c *RedisSnapshotCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisSnapshotCache) Close() error {
	return c.client.Close()
}
