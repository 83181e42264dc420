package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/p-n-ai/pai-course/internal/platform/cache"
)

// BudgetChecker checks and records token usage against per-learner budgets.
// A limit of zero means unlimited.
type BudgetChecker interface {
	// Check returns true if the learner has budget remaining.
	Check(ctx context.Context, learnerID string) (bool, error)
	// Record adds token usage for a learner.
	Record(ctx context.Context, learnerID string, tokens int) error
	// Usage returns tokens used and the learner's limit.
	Usage(ctx context.Context, learnerID string) (used int64, limit int64, err error)
}

// InMemoryBudget is a process-local budget tracker for development and tests.
type InMemoryBudget struct {
	mu        sync.RWMutex
	limit     int64            // default for learners without an override
	overrides map[string]int64 // learner -> limit
	usage     map[string]int64 // learner -> tokens used
}

// NewInMemoryBudget creates a tracker where every learner gets limit tokens.
func NewInMemoryBudget(limit int64) *InMemoryBudget {
	return &InMemoryBudget{
		limit:     limit,
		overrides: make(map[string]int64),
		usage:     make(map[string]int64),
	}
}

// SetLimit overrides the token limit for one learner.
func (b *InMemoryBudget) SetLimit(learnerID string, tokens int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.overrides[learnerID] = tokens
}

func (b *InMemoryBudget) limitFor(learnerID string) int64 {
	if l, ok := b.overrides[learnerID]; ok {
		return l
	}
	return b.limit
}

func (b *InMemoryBudget) Check(_ context.Context, learnerID string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	limit := b.limitFor(learnerID)
	if limit <= 0 {
		return true, nil
	}
	return b.usage[learnerID] < limit, nil
}

func (b *InMemoryBudget) Record(_ context.Context, learnerID string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.usage[learnerID] += int64(tokens)
	return nil
}

func (b *InMemoryBudget) Usage(_ context.Context, learnerID string) (int64, int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.usage[learnerID], b.limitFor(learnerID), nil
}

// RedisBudget keeps usage counters in Redis/Dragonfly so every server
// instance draws from the same budget.
type RedisBudget struct {
	client redis.UniversalClient
	limit  int64
}

// NewRedisBudget creates a shared budget tracker with a per-learner limit.
func NewRedisBudget(client redis.UniversalClient, limit int64) (*RedisBudget, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	return &RedisBudget{client: client, limit: limit}, nil
}

func (b *RedisBudget) Check(ctx context.Context, learnerID string) (bool, error) {
	if b.limit <= 0 {
		return true, nil
	}
	used, _, err := b.Usage(ctx, learnerID)
	if err != nil {
		return false, err
	}
	return used < b.limit, nil
}

func (b *RedisBudget) Record(ctx context.Context, learnerID string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}
	if err := b.client.IncrBy(ctx, cache.Key("ai_tokens", learnerID), int64(tokens)).Err(); err != nil {
		return fmt.Errorf("record token usage: %w", err)
	}
	return nil
}

func (b *RedisBudget) Usage(ctx context.Context, learnerID string) (int64, int64, error) {
	used, err := b.client.Get(ctx, cache.Key("ai_tokens", learnerID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, b.limit, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("read token usage: %w", err)
	}
	return used, b.limit, nil
}
