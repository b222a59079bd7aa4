// redis.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ CiphertextStore = (*RedisStore)(nil)

const DefaultKeyPrefix = "secret:"

// RedisStore keeps ciphertext in Redis and lets Redis enforce the expiry.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(options *redis.Options, prefix string) (*RedisStore, error) {
	client := redis.NewClient(options)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", options.Addr, err)
	}

	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (r *RedisStore) Put(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("put ciphertext %q: ttl must be positive", key)
	}

	ok, err := r.client.SetNX(ctx, r.key(key), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("put ciphertext %q: %w", key, err)
	}
	if !ok {
		return ErrExists
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get ciphertext %q: %w", key, err)
	}
	return data, nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("delete ciphertext %q: %w", key, err)
	}
	return nil
}

func (r *RedisStore) TimeToLive(ctx context.Context, key string) (time.Duration, error) {
	// TTL rounds to whole seconds, which would report a live key as 0.
	ttl, err := r.client.PTTL(ctx, r.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("ttl ciphertext %q: %w", key, err)
	}
	// -2 means the key is gone; -1 (no expiry) never happens for keys we wrote.
	if ttl == -2 {
		return 0, ErrNotFound
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) key(slug string) string {
	return r.prefix + slug
}
