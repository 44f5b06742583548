package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS task_results (
		task_id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		success INTEGER NOT NULL,
		result TEXT,
		error TEXT,
		error_kind TEXT NOT NULL DEFAULT '',
		duration_ns INTEGER NOT NULL,
		worker_id INTEGER NOT NULL,
		retries INTEGER NOT NULL,
		completed_at_ns INTEGER NOT NULL,
		archived_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_task_results_completed ON task_results(completed_at_ns);
	CREATE INDEX IF NOT EXISTS idx_task_results_type ON task_results(type, completed_at_ns);

	CREATE TABLE IF NOT EXISTS task_result_tags (
		task_id TEXT NOT NULL,
		tag TEXT NOT NULL,
		PRIMARY KEY (task_id, tag),
		FOREIGN KEY (task_id) REFERENCES task_results(task_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_task_result_tags_tag ON task_result_tags(tag);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
