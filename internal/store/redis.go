package store

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisStateStore StateStore over redis strings, key <prefix><namespace>:<key>
type RedisStateStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStateStore(client *redis.Client, prefix string) *RedisStateStore {
	return &RedisStateStore{client: client, prefix: prefix}
}

func (s *RedisStateStore) key(namespace, key string) string {
	return s.prefix + namespace + ":" + key
}

func (s *RedisStateStore) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, s.key(namespace, key)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get state %s: %w", s.key(namespace, key), err)
	}
	return val, true, nil
}

func (s *RedisStateStore) Set(ctx context.Context, namespace, key, value string) error {
	if err := s.client.Set(ctx, s.key(namespace, key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set state %s: %w", s.key(namespace, key), err)
	}
	return nil
}
