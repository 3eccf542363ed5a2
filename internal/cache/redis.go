package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisOpTimeout = 2 * time.Second

// RedisCache stores JSON-encoded values under a namespace in Redis, so
// several server instances share one cache. Redis handles expiry.
type RedisCache[T any] struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// NewRedisClient parses url (with or without the redis:// scheme) and checks
// the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if !strings.Contains(url, "://") {
		url = "redis://" + url
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// NewRedisCache returns a cache whose keys live under namespace + ":".
func NewRedisCache[T any](client *redis.Client, namespace string, ttl time.Duration) *RedisCache[T] {
	return &RedisCache[T]{client: client, namespace: namespace, ttl: ttl}
}

func (c *RedisCache[T]) key(k string) string { return c.namespace + ":" + k }

func opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), redisOpTimeout)
}

// Get retrieves a value. Redis errors count as a miss.
func (c *RedisCache[T]) Get(key string) (T, bool) {
	var zero T
	ctx, cancel := opContext()
	defer cancel()

	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("Redis get failed", "component", "cache", "key", key, "error", err)
		}
		return zero, false
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		slog.Warn("Discarding undecodable cache entry", "component", "cache", "key", key, "error", err)
		return zero, false
	}
	return v, true
}

// Set stores a value with the cache TTL.
func (c *RedisCache[T]) Set(key string, data T) {
	raw, err := json.Marshal(data)
	if err != nil {
		slog.Warn("Cache value not encodable", "component", "cache", "key", key, "error", err)
		return
	}

	ctx, cancel := opContext()
	defer cancel()
	if err := c.client.Set(ctx, c.key(key), raw, c.ttl).Err(); err != nil {
		slog.Warn("Redis set failed", "component", "cache", "key", key, "error", err)
	}
}

// Delete removes a key.
func (c *RedisCache[T]) Delete(key string) {
	ctx, cancel := opContext()
	defer cancel()
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		slog.Warn("Redis delete failed", "component", "cache", "key", key, "error", err)
	}
}

// Keys scans the namespace for keys starting with prefix.
func (c *RedisCache[T]) Keys(prefix string) []string {
	ctx, cancel := opContext()
	defer cancel()

	var keys []string
	iter := c.client.Scan(ctx, 0, c.key(prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), c.namespace+":"))
	}
	if err := iter.Err(); err != nil {
		slog.Warn("Redis scan failed", "component", "cache", "prefix", prefix, "error", err)
	}
	sort.Strings(keys)
	return keys
}

// Size counts the keys in the namespace.
func (c *RedisCache[T]) Size() int {
	return len(c.Keys(""))
}

var _ Cache[int] = (*RedisCache[int])(nil)
