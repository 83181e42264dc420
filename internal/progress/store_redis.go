package progress

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/p-n-ai/pai-course/internal/platform/cache"
)

// RedisStore keeps each encoded record under its own key. SET replaces the
// value in one operation.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis/Dragonfly-backed progress store.
func NewRedisStore(client *redis.Client) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) key(learnerID, moduleID string) string {
	return cache.KeyPrefix + Key(moduleID, learnerID)
}

func (s *RedisStore) Load(ctx context.Context, learnerID, moduleID string) (*Record, error) {
	data, err := s.client.Get(ctx, s.key(learnerID, moduleID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	rec, _ := Decode(data)
	return &rec, nil
}

func (s *RedisStore) Save(ctx context.Context, learnerID, moduleID string, rec Record) error {
	data, err := Encode(rec)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	if err := s.client.Set(ctx, s.key(learnerID, moduleID), data, 0).Err(); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}
