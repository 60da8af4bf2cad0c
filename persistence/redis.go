package persistence

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

func init() {
	Register("redis", func(dsn string) (Backend, error) {
		opts, err := redis.ParseURL(dsn)
		if err != nil {
			return nil, fmt.Errorf("persistence: redis dsn: %w", err)
		}
		return NewRedisBackend(redis.NewClient(opts), ""), nil
	})
}

// RedisBackend stores entries as plain string keys under a prefix.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend creates a Redis backend. An empty prefix defaults to
// "portal:".
func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "portal:"
	}
	return &RedisBackend{client: client, prefix: prefix}
}

func (r *RedisBackend) key(k string) string { return r.prefix + k }

func (r *RedisBackend) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	if len(keys) == 0 {
		return map[string]string{}, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	vals, err := r.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis session: get failed: %w", err)
	}
	out := make(map[string]string, len(keys))
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[keys[i]] = s
		}
	}
	return out, nil
}

func (r *RedisBackend) Put(ctx context.Context, entries map[string]string) error {
	pipe := r.client.TxPipeline()
	for k, v := range entries {
		pipe.Set(ctx, r.key(k), v, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis session: put failed: %w", err)
	}
	return nil
}

func (r *RedisBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	// DEL of several keys is atomic.
	if err := r.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis session: delete failed: %w", err)
	}
	return nil
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
