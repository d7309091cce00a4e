package postgres

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id             TEXT PRIMARY KEY,
	url            TEXT NOT NULL,
	content_source TEXT NOT NULL DEFAULT 'cleaned_html',
	provider       TEXT NOT NULL,
	modes          JSONB NOT NULL DEFAULT '[]',
	status         TEXT NOT NULL,
	error          TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL,
	finished_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS artifacts (
	id         TEXT PRIMARY KEY,
	task_id    TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	mode       TEXT NOT NULL,
	provider   TEXT NOT NULL,
	status     TEXT NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	blob_path  TEXT NOT NULL DEFAULT '',
	blob_uri   TEXT NOT NULL DEFAULT '',
	attempts   INT NOT NULL DEFAULT 0,
	latency_ms BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks (created_at DESC);
CREATE INDEX IF NOT EXISTS idx_artifacts_task_id ON artifacts (task_id);
`

// EnsureSchema creates the tables and indexes if they do not exist.
func (s *TaskStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
