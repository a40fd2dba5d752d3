package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "vigil:cache:"

// RedisStore persists cache entries as Redis hashes holding the value and
// its stored-at timestamp.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, time.Time, error) {
	fields, err := s.client.HGetAll(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("store: redis get %q: %w", key, err)
	}
	raw, ok := fields["value"]
	if !ok {
		return nil, time.Time{}, ErrNotFound
	}

	storedAt, err := time.Parse(time.RFC3339Nano, fields["stored_at"])
	if err != nil {
		// A half-written entry is treated the same as a missing one.
		return nil, time.Time{}, ErrNotFound
	}
	return []byte(raw), storedAt, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, storedAt time.Time) error {
	err := s.client.HSet(ctx, redisKeyPrefix+key,
		"value", value,
		"stored_at", storedAt.UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("store: redis set %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("store: redis remove %q: %w", key, err)
	}
	return nil
}
