package mastery

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStore keeps concept scores in the concept_scores table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed concept score store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Increment(ctx context.Context, learnerID string, deltas map[string]Score) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for concept, d := range deltas {
		if _, err := tx.Exec(ctx,
			`INSERT INTO concept_scores (learner_id, concept, correct, attempts, updated_at)
			 VALUES ($1, $2, $3, $4, NOW())
			 ON CONFLICT (learner_id, concept) DO UPDATE SET
			   correct = concept_scores.correct + EXCLUDED.correct,
			   attempts = concept_scores.attempts + EXCLUDED.attempts,
			   updated_at = NOW()`,
			learnerID,
			concept,
			d.Correct,
			d.Attempts,
		); err != nil {
			return fmt.Errorf("upsert concept score: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit concept scores: %w", err)
	}
	return nil
}

func (s *PostgresStore) Scores(ctx context.Context, learnerID string) (map[string]Score, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT concept, correct, attempts
		 FROM concept_scores
		 WHERE learner_id = $1`,
		learnerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query concept scores: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Score)
	for rows.Next() {
		var concept string
		var sc Score
		if err := rows.Scan(&concept, &sc.Correct, &sc.Attempts); err != nil {
			return nil, fmt.Errorf("scan concept score: %w", err)
		}
		out[concept] = sc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate concept scores: %w", err)
	}
	return out, nil
}
