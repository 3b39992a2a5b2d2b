package cache

import (
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Backend names accepted by the factory.
const (
	BackendLRU   = "lru"
	BackendRedis = "redis"
)

// Config selects and sizes a cache backend.
type Config struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
	MaxEntries    int
}

// StatsProvider is implemented by backends that track hit/miss counters.
type StatsProvider interface {
	Stats() Stats
}

// ConnectOrFallback pings Redis when that backend is configured and
// returns the shared client, or nil after a logged warning when the
// server is unreachable. New treats a nil client as "use the LRU", so
// a missing Redis degrades to in-process caching instead of failing
// startup.
func ConnectOrFallback(cfg Config) *redis.Client {
	if cfg.Backend != BackendRedis {
		return nil
	}
	client, err := Connect(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		slog.Warn("Redis unavailable, falling back to in-process LRU cache",
			"addr", cfg.RedisAddr,
			"error", err)
		return nil
	}
	return client
}

// New builds a cache for one value type. The redis client is shared
// across instantiations; pass nil to force the LRU.
func New[T any](cfg Config, client *redis.Client) Cache[T] {
	if cfg.Backend == BackendRedis && client != nil {
		return NewRedisCache[T](client, cfg.TTL)
	}
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return NewLRUCache[T](maxEntries, cfg.TTL)
}
