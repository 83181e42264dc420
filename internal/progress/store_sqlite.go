package progress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteStore keeps records in the module_progress table of the local
// SQLite database. It is the default durable store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed progress store.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context, learnerID, moduleID string) (*Record, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM module_progress WHERE module_id = ? AND learner_id = ?`,
		moduleID, learnerID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	rec, _ := Decode([]byte(data))
	return &rec, nil
}

func (s *SQLiteStore) Save(ctx context.Context, learnerID, moduleID string, rec Record) error {
	data, err := Encode(rec)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO module_progress (module_id, learner_id, record, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (module_id, learner_id) DO UPDATE SET
		   record = excluded.record,
		   updated_at = excluded.updated_at`,
		moduleID, learnerID, string(data), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}
