package mastery

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteStore keeps concept scores in a local SQLite database opened by
// platform/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed concept score store.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Increment(ctx context.Context, learnerID string, deltas map[string]Score) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().Unix()
	for concept, d := range deltas {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO concept_scores (learner_id, concept, correct, attempts, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (learner_id, concept) DO UPDATE SET
			   correct = concept_scores.correct + excluded.correct,
			   attempts = concept_scores.attempts + excluded.attempts,
			   updated_at = excluded.updated_at`,
			learnerID, concept, d.Correct, d.Attempts, now,
		); err != nil {
			return fmt.Errorf("upsert concept score: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit concept scores: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Scores(ctx context.Context, learnerID string) (map[string]Score, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT concept, correct, attempts FROM concept_scores WHERE learner_id = ?`,
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
