package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisOpTimeout bounds each command; the Cache interface has no ctx.
const redisOpTimeout = 2 * time.Second

// RedisCache stores JSON-marshalled values under string keys with a TTL.
// Command failures degrade to cache misses, never errors.
type RedisCache[T any] struct {
	client *redis.Client
	ttl    time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedisCache wraps an already-connected client. Use Connect to build
// and ping one.
func NewRedisCache[T any](client *redis.Client, ttl time.Duration) *RedisCache[T] {
	return &RedisCache[T]{client: client, ttl: ttl}
}

// Connect builds a Redis client and verifies it with a ping.
func Connect(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func (c *RedisCache[T]) Get(key string) (T, bool) {
	var zero T
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	raw, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			slog.Debug("Redis get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return zero, false
	}

	var data T
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		slog.Warn("Redis cache entry undecodable, dropping", "key", key, "error", err)
		c.Delete(key)
		c.misses.Add(1)
		return zero, false
	}
	c.hits.Add(1)
	return data, true
}

func (c *RedisCache[T]) Set(key string, data T) {
	raw, err := json.Marshal(data)
	if err != nil {
		slog.Warn("Redis cache encode failed", "key", key, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := c.client.SetEx(ctx, key, raw, c.ttl).Err(); err != nil {
		slog.Debug("Redis set failed", "key", key, "error", err)
	}
}

func (c *RedisCache[T]) Delete(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := c.client.Del(ctx, key).Err(); err != nil {
		slog.Debug("Redis delete failed", "key", key, "error", err)
	}
}

// DeletePrefix walks the keyspace with SCAN and deletes matches.
func (c *RedisCache[T]) DeletePrefix(prefix string) int {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	removed := 0
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			slog.Debug("Redis scan failed", "prefix", prefix, "error", err)
			return removed
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				slog.Debug("Redis delete failed", "prefix", prefix, "error", err)
				return removed
			}
			removed += len(keys)
		}
		cursor = next
		if cursor == 0 {
			return removed
		}
	}
}

// Size reports the whole DB size; trend keys share the database.
func (c *RedisCache[T]) Size() int {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	n, err := c.client.DBSize(ctx).Result()
	if err != nil {
		return 0
	}
	return int(n)
}

// Stats returns hit/miss counters. Redis handles its own eviction.
func (c *RedisCache[T]) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}
