package mastery

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/p-n-ai/pai-course/internal/platform/cache"
)

// RedisStore keeps concept scores in two hashes per learner, one for correct
// counts and one for attempts, both keyed by concept.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis/Dragonfly-backed concept score store.
func NewRedisStore(client *redis.Client) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) correctKey(learnerID string) string {
	return cache.Key("mastery", learnerID, "correct")
}

func (s *RedisStore) attemptsKey(learnerID string) string {
	return cache.Key("mastery", learnerID, "attempts")
}

func (s *RedisStore) Increment(ctx context.Context, learnerID string, deltas map[string]Score) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for concept, d := range deltas {
			pipe.HIncrBy(ctx, s.correctKey(learnerID), concept, int64(d.Correct))
			pipe.HIncrBy(ctx, s.attemptsKey(learnerID), concept, int64(d.Attempts))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("increment concept scores: %w", err)
	}
	return nil
}

func (s *RedisStore) Scores(ctx context.Context, learnerID string) (map[string]Score, error) {
	correct, err := s.client.HGetAll(ctx, s.correctKey(learnerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read correct counts: %w", err)
	}
	attempts, err := s.client.HGetAll(ctx, s.attemptsKey(learnerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read attempt counts: %w", err)
	}

	out := make(map[string]Score, len(attempts))
	for concept, raw := range attempts {
		n, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		c, _ := strconv.Atoi(correct[concept])
		out[concept] = Score{Correct: c, Attempts: n}
	}
	return out, nil
}
