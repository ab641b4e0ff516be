package tasks

import (
	"context"
	"fmt"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS tasks (
    id                   TEXT PRIMARY KEY,
    video_path           TEXT NOT NULL,
    status               TEXT NOT NULL,
    target_languages     TEXT NOT NULL,
    subtitle_format      TEXT NOT NULL,
    progress_percent     REAL NOT NULL DEFAULT 0,
    progress_message     TEXT,
    result_json          TEXT,
    language_errors_json TEXT,
    error_message        TEXT,
    cancel_requested     INTEGER NOT NULL DEFAULT 0,
    created_at           TEXT NOT NULL,
    updated_at           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_status_created ON tasks (status, created_at);
`

func (s *Store) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
