package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisTier stores entries in Redis under a common key prefix
type RedisTier struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisTier connects to the Redis server at url (redis://host:port/db)
func NewRedisTier(ctx context.Context, url, prefix string) (*RedisTier, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisTierFromClient(client, prefix), nil
}

// NewRedisTierFromClient wraps an existing client
func NewRedisTierFromClient(client redis.UniversalClient, prefix string) *RedisTier {
	return &RedisTier{client: client, prefix: prefix}
}

func (r *RedisTier) key(k string) string {
	return r.prefix + k
}

// Get reads a key. A missing key is not an error.
func (r *RedisTier) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Set writes a key without expiry; the tier is a full mirror
func (r *RedisTier) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, r.key(key), value, 0).Err()
}

func (r *RedisTier) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = r.key(k)
	}
	return r.client.Del(ctx, prefixed...).Err()
}

// Close closes the underlying client
func (r *RedisTier) Close() error {
	return r.client.Close()
}
