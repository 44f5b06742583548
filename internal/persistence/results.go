package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hasangilak/taskengine/internal/scheduler"
)

const resultColumns = `task_id, type, success, result, error, error_kind, duration_ns, worker_id, retries, completed_at_ns`

// SaveResult archives a terminal result and its tags.
// Uses ON CONFLICT to make saves idempotent.
func (s *SQLiteStore) SaveResult(ctx context.Context, res scheduler.TaskResult) error {
	payload, err := encodeResult(res.Result)
	if err != nil {
		return fmt.Errorf("failed to encode result of task %s: %w", res.TaskID, err)
	}

	// Begin transaction with serializable isolation (BEGIN IMMEDIATE)
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO task_results (`+resultColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			type = excluded.type,
			success = excluded.success,
			result = excluded.result,
			error = excluded.error,
			error_kind = excluded.error_kind,
			duration_ns = excluded.duration_ns,
			worker_id = excluded.worker_id,
			retries = excluded.retries,
			completed_at_ns = excluded.completed_at_ns,
			archived_at = CURRENT_TIMESTAMP
	`, res.TaskID, res.Type, res.Success, payload, res.Error, string(res.ErrorKind),
		int64(res.Duration), res.WorkerID, res.Retries, res.CompletedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to upsert result: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_result_tags WHERE task_id = ?`, res.TaskID); err != nil {
		return fmt.Errorf("failed to delete old tags: %w", err)
	}
	for _, tag := range res.Tags {
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO task_result_tags (task_id, tag)
			VALUES (?, ?)
		`, res.TaskID, tag)
		if err != nil {
			return fmt.Errorf("failed to insert tag %q for %s: %w", tag, res.TaskID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetResult retrieves an archived result by task ID. Returns an error wrapping
// ErrNotFound if the task was never archived.
func (s *SQLiteStore) GetResult(ctx context.Context, taskID string) (*scheduler.TaskResult, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM task_results WHERE task_id = ?`, taskID)

	res, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query result: %w", err)
	}

	tags, err := s.loadTags(ctx, []string{taskID})
	if err != nil {
		return nil, err
	}
	res.Tags = tags[taskID]
	return &res, nil
}

// ListResults returns archived results matching filter, oldest first. With a
// Limit it returns the most recent Limit results, still oldest first.
func (s *SQLiteStore) ListResults(ctx context.Context, filter ListFilter) ([]scheduler.TaskResult, error) {
	var (
		where []string
		args  []any
	)
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, filter.Type)
	}
	switch filter.Status {
	case "":
	case scheduler.TaskCompleted:
		where = append(where, "success = 1")
	case scheduler.TaskFailed:
		where = append(where, "success = 0")
	default:
		return nil, fmt.Errorf("cannot list archived results with status %q", filter.Status)
	}
	if filter.Tag != "" {
		where = append(where, "task_id IN (SELECT task_id FROM task_result_tags WHERE tag = ?)")
		args = append(args, filter.Tag)
	}
	if !filter.Since.IsZero() {
		where = append(where, "completed_at_ns >= ?")
		args = append(args, filter.Since.UnixNano())
	}

	query := `SELECT ` + resultColumns + ` FROM task_results`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY completed_at_ns DESC, task_id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []scheduler.TaskResult
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}
	rows.Close()

	// Newest-first for LIMIT, returned oldest-first
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}

	ids := make([]string, len(results))
	for i := range results {
		ids[i] = results[i].TaskID
	}
	tags, err := s.loadTags(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range results {
		results[i].Tags = tags[results[i].TaskID]
	}
	return results, nil
}

// DeleteBefore prunes results completed before the cutoff and returns how many
// were removed.
func (s *SQLiteStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	cutoff := before.UnixNano()
	_, err = tx.ExecContext(ctx, `
		DELETE FROM task_result_tags
		WHERE task_id IN (SELECT task_id FROM task_results WHERE completed_at_ns < ?)
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete tags: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM task_results WHERE completed_at_ns < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete results: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return n, nil
}

// loadTags fetches the tags of the given tasks in one query.
func (s *SQLiteStore) loadTags(ctx context.Context, taskIDs []string) (map[string][]string, error) {
	tags := make(map[string][]string, len(taskIDs))
	if len(taskIDs) == 0 {
		return tags, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(taskIDs)), ",")
	args := make([]any, len(taskIDs))
	for i, id := range taskIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, tag
		FROM task_result_tags
		WHERE task_id IN (`+placeholders+`)
		ORDER BY task_id, tag
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var taskID, tag string
		if err := rows.Scan(&taskID, &tag); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags[taskID] = append(tags[taskID], tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tags: %w", err)
	}
	return tags, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResult(row scanner) (scheduler.TaskResult, error) {
	var (
		res         scheduler.TaskResult
		payload     sql.NullString
		errorStr    sql.NullString
		kind        string
		durationNs  int64
		completedNs int64
	)
	err := row.Scan(&res.TaskID, &res.Type, &res.Success, &payload, &errorStr, &kind,
		&durationNs, &res.WorkerID, &res.Retries, &completedNs)
	if err != nil {
		return res, err
	}

	res.Error = errorStr.String
	res.ErrorKind = scheduler.ErrorKind(kind)
	res.Duration = time.Duration(durationNs)
	res.CompletedAt = time.Unix(0, completedNs)
	if payload.Valid && payload.String != "" {
		// Archived results come back as decoded JSON values
		if err := json.Unmarshal([]byte(payload.String), &res.Result); err != nil {
			return res, fmt.Errorf("decoding result of %s: %w", res.TaskID, err)
		}
	}
	return res, nil
}

// encodeResult stores handler output as JSON. Values JSON cannot represent are
// archived in their fmt form.
func encodeResult(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		var unsupported *json.UnsupportedTypeError
		var unsupportedValue *json.UnsupportedValueError
		if !errors.As(err, &unsupported) && !errors.As(err, &unsupportedValue) {
			return sql.NullString{}, err
		}
		if data, err = json.Marshal(fmt.Sprintf("%v", v)); err != nil {
			return sql.NullString{}, err
		}
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
