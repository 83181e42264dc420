package database

import (
	"context"
	"fmt"
)

// EnsureSchema creates the course tables if they do not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS module_progress (
  module_id  TEXT NOT NULL,
  learner_id TEXT NOT NULL,
  record     JSONB NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  PRIMARY KEY (module_id, learner_id)
);

CREATE TABLE IF NOT EXISTS concept_scores (
  learner_id TEXT NOT NULL,
  concept    TEXT NOT NULL,
  correct    INTEGER NOT NULL DEFAULT 0,
  attempts   INTEGER NOT NULL DEFAULT 0,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  PRIMARY KEY (learner_id, concept)
);

CREATE TABLE IF NOT EXISTS course_events (
  id         BIGSERIAL PRIMARY KEY,
  learner_id TEXT NOT NULL,
  module_id  TEXT NOT NULL DEFAULT '',
  event_type TEXT NOT NULL,
  data       JSONB NOT NULL DEFAULT '{}'::jsonb,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS course_events_learner_idx ON course_events (learner_id, created_at);

CREATE TABLE IF NOT EXISTS remediation_conversations (
  id           UUID PRIMARY KEY,
  learner_id   TEXT NOT NULL,
  module_id    TEXT NOT NULL DEFAULT '',
  quiz_id      TEXT NOT NULL DEFAULT '',
  system       TEXT NOT NULL,
  summary      TEXT NOT NULL DEFAULT '',
  compacted_at INTEGER NOT NULL DEFAULT 0,
  started_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  ended_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS remediation_messages (
  id              BIGSERIAL PRIMARY KEY,
  conversation_id UUID NOT NULL REFERENCES remediation_conversations(id) ON DELETE CASCADE,
  role            TEXT NOT NULL,
  content         TEXT NOT NULL,
  model           TEXT,
  input_tokens    INTEGER,
  output_tokens   INTEGER,
  created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
