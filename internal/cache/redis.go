package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hivefetch/hivefetch/internal/fetch"
)

// DefaultRedisPrefix namespaces cache keys in a shared Redis instance.
const DefaultRedisPrefix = "hivefetch:cache:"

// Redis stores entries in an external key-value server, delegating TTL
// handling to Redis itself.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps an existing client. An empty prefix uses
// DefaultRedisPrefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

type redisRecord struct {
	Body        []byte `json:"body"`
	ContentType string `json:"content_type"`
}

// Get fetches and decodes the record for key.
func (r *Redis) Get(ctx context.Context, key string) (fetch.Result, bool, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return fetch.Result{}, false, nil
	}
	if err != nil {
		return fetch.Result{}, false, r.wrap("get", err)
	}
	var record redisRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return fetch.Result{}, false, r.wrap("get", fmt.Errorf("decode record: %w", err))
	}
	return fetch.Result{Body: record.Body, ContentType: record.ContentType}, true, nil
}

// Set stores the record for key. A zero ttl stores without expiry.
func (r *Redis) Set(ctx context.Context, key string, value fetch.Result, ttl time.Duration) error {
	data, err := json.Marshal(redisRecord{Body: value.Body, ContentType: value.ContentType})
	if err != nil {
		return r.wrap("set", fmt.Errorf("encode record: %w", err))
	}
	if err := r.client.Set(ctx, r.prefix+key, data, ttl).Err(); err != nil {
		return r.wrap("set", err)
	}
	return nil
}

// Delete removes the record for key.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return r.wrap("delete", err)
	}
	return nil
}

// Clear removes every record under the prefix.
func (r *Redis) Clear(ctx context.Context) error {
	keys, err := r.client.Keys(ctx, r.prefix+"*").Result()
	if err != nil {
		return r.wrap("clear", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return r.wrap("clear", err)
	}
	return nil
}

// Contains reports whether key exists.
func (r *Redis) Contains(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+key).Result()
	if err != nil {
		return false, r.wrap("contains", err)
	}
	return n > 0, nil
}

// Size counts records under the prefix.
func (r *Redis) Size(ctx context.Context) (int, error) {
	keys, err := r.client.Keys(ctx, r.prefix+"*").Result()
	if err != nil {
		return 0, r.wrap("size", err)
	}
	return len(keys), nil
}

func (r *Redis) wrap(op string, err error) error {
	return &fetch.CacheError{Backend: "redis", Op: op, Err: err}
}
