package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by a Redis-compatible key-value server.
// Keys are prefixed with "<namespace>:" so multiple pipelines and test runs
// can share one backend without collisions.
type RedisStore struct {
	url       string
	namespace string
	client    *redis.Client
}

// NewRedisStore creates a Redis-backed store. Initialize must be called
// before use.
func NewRedisStore(url, namespace string) *RedisStore {
	return &RedisStore{url: url, namespace: namespace}
}

// NewRedisStoreWithClient wraps an existing client, used by tests that run
// against miniredis.
func NewRedisStoreWithClient(client *redis.Client, namespace string) *RedisStore {
	return &RedisStore{client: client, namespace: namespace}
}

func (r *RedisStore) key(key string) string {
	return r.namespace + ":" + key
}

func (r *RedisStore) Initialize(ctx context.Context) error {
	if r.client == nil {
		opts, err := redis.ParseURL(r.url)
		if err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
		r.client = redis.NewClient(opts)
	}
	if err := r.client.Ping(ctx).Err(); err != nil {
		return &StateError{Op: "initialize", Err: err}
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &StateError{Op: "get", Key: key, Err: err}
	}
	return data, true, nil
}

func (r *RedisStore) Save(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return &StateError{Op: "save", Key: key, Err: err}
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return &StateError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

func (r *RedisStore) DeleteAll(ctx context.Context) error {
	keys, err := r.client.Keys(ctx, r.namespace+":*").Result()
	if err != nil {
		return &StateError{Op: "deleteall", Err: err}
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return &StateError{Op: "deleteall", Err: err}
	}
	return nil
}

func (r *RedisStore) Done() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
