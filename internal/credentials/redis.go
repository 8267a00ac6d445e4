package credentials

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix is prepended to credential paths.
const DefaultRedisPrefix = "flavorwise:credentials:"

// RedisSource reads each bundle from a Redis hash named prefix+path.
type RedisSource struct {
	client *redis.Client
	prefix string
}

// NewRedisSource connects to Redis and verifies the connection.
func NewRedisSource(url, prefix string) (*RedisSource, error) {
	opts, err := redis.ParseURL(url)
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

	return NewRedisSourceFromClient(client, prefix), nil
}

// NewRedisSourceFromClient wraps an existing client.
func NewRedisSourceFromClient(client *redis.Client, prefix string) *RedisSource {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisSource{client: client, prefix: prefix}
}

// Read returns the hash stored at path.
func (s *RedisSource) Read(ctx context.Context, path string) (Bundle, error) {
	fields, err := s.client.HGetAll(ctx, s.prefix+path).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials %s from redis: %w", path, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return Bundle(fields), nil
}

// Close closes the Redis client.
func (s *RedisSource) Close() error {
	return s.client.Close()
}
