package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix is prepended to every cache entry key.
const DefaultRedisPrefix = "flavorwise:cache:"

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379" or "redis://:password@host:6379/0")
	URL string

	// Prefix is prepended to entry keys (defaults to "flavorwise:cache:")
	Prefix string
}

// RedisStore implements Store using Redis for deployments that share one cache.
// Keys carry no expiry: freshness is decided by the Cache TTL, not by Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}

	slog.Info("redis cache store connected", "prefix", prefix)

	return NewRedisStoreFromClient(client, prefix), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Get retrieves the entry for key.
func (s *RedisStore) Get(ctx context.Context, key CallKey) (*Entry, error) {
	data, err := s.client.Get(ctx, s.prefix+key.ID()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cache entry from redis: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to parse cache entry from redis: %w", err)
	}
	return &entry, nil
}

// Put upserts the entry for key.
func (s *RedisStore) Put(ctx context.Context, key CallKey, result []byte) error {
	data, err := json.Marshal(newEntry(key, result, time.Now()))
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+key.ID(), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set cache entry in redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
