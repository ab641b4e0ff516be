package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"subtrans/internal/config"
)

// Store manages task state backed by SQLite. It is the single source of truth
// for progress polling: every mutation funnels through here, and reads return
// detached snapshots.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the task database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.LogDir, "tasks.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location for diagnostics.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Create inserts a new queued task and returns its snapshot.
func (s *Store) Create(ctx context.Context, spec Spec) (*Task, error) {
	if spec.VideoPath == "" {
		return nil, errors.New("video path is required")
	}
	if len(spec.TargetLanguages) == 0 {
		return nil, errors.New("target languages are required")
	}

	langsJSON, err := json.Marshal(spec.TargetLanguages)
	if err != nil {
		return nil, fmt.Errorf("marshal target languages: %w", err)
	}

	id := uuid.NewString()
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	_, err = s.execWithRetry(
		ctx,
		`INSERT INTO tasks (
            id, video_path, status, target_languages, subtitle_format,
            progress_percent, progress_message, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		spec.VideoPath,
		StatusQueued,
		string(langsJSON),
		string(spec.SubtitleFormat),
		0.0,
		nil,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a task snapshot by identifier. A missing task yields
// (nil, nil).
func (s *Store) GetByID(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// List returns tasks filtered by status set (or all tasks when no status is
// provided), oldest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Task, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + taskColumns + ` FROM tasks`
	orderClause := ` ORDER BY created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var items []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, task)
	}
	return items, rows.Err()
}

// NextQueued returns the oldest queued task, or nil when the queue is empty.
func (s *Store) NextQueued(ctx context.Context) (*Task, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE status = ? ORDER BY created_at LIMIT 1`,
		StatusQueued,
	)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next queued task: %w", err)
	}
	return task, nil
}

// Claim transitions a queued task into its first processing status. It
// returns false when the task is no longer queued (already claimed, or
// cancelled between poll and claim).
func (s *Store) Claim(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks SET status = ?, progress_message = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusExtractingAudio,
		StatusExtractingAudio.StageLabel()+" started",
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusQueued,
	)
	if err != nil {
		return false, fmt.Errorf("claim task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// UpdateProgress publishes a stage, percent, and message for an in-flight
// task. Updates against terminal tasks are silently ignored so a stage racing
// with cancellation cannot resurrect progress. Percent never decreases.
func (s *Store) UpdateProgress(ctx context.Context, id string, status Status, percent float64, message string) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 1 {
		percent = 1
	}
	err := s.execWithoutResultRetry(
		ctx,
		`UPDATE tasks
         SET status = ?, progress_percent = max(progress_percent, ?), progress_message = ?, updated_at = ?
         WHERE id = ? AND status NOT IN (?, ?, ?)`,
		status,
		percent,
		nullableString(message),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusCompleted,
		StatusFailed,
		StatusCancelled,
	)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// Complete marks a task finished with its per-language result map and any
// advisory language failures. No-op when the task is already terminal.
func (s *Store) Complete(ctx context.Context, id string, result map[string]string, languageErrors map[string]string) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	var langErrsValue any
	if len(languageErrors) > 0 {
		encoded, err := json.Marshal(languageErrors)
		if err != nil {
			return fmt.Errorf("marshal language errors: %w", err)
		}
		langErrsValue = string(encoded)
	}

	err = s.execWithoutResultRetry(
		ctx,
		`UPDATE tasks
         SET status = ?, progress_percent = 1.0, progress_message = ?,
             result_json = ?, language_errors_json = ?, updated_at = ?
         WHERE id = ? AND status NOT IN (?, ?, ?)`,
		StatusCompleted,
		fmt.Sprintf("Completed with %d subtitle file(s)", len(result)),
		string(resultJSON),
		langErrsValue,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusCompleted,
		StatusFailed,
		StatusCancelled,
	)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}

// Fail marks a task failed with the given message and optional per-language
// failure detail. No-op when the task is already terminal.
func (s *Store) Fail(ctx context.Context, id, message string, languageErrors map[string]string) error {
	var langErrsValue any
	if len(languageErrors) > 0 {
		encoded, err := json.Marshal(languageErrors)
		if err != nil {
			return fmt.Errorf("marshal language errors: %w", err)
		}
		langErrsValue = string(encoded)
	}
	err := s.execWithoutResultRetry(
		ctx,
		`UPDATE tasks
         SET status = ?, error_message = ?, progress_message = ?, language_errors_json = ?, updated_at = ?
         WHERE id = ? AND status NOT IN (?, ?, ?)`,
		StatusFailed,
		message,
		message,
		langErrsValue,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusCompleted,
		StatusFailed,
		StatusCancelled,
	)
	if err != nil {
		return fmt.Errorf("fail task: %w", err)
	}
	return nil
}

// MarkCancelled records the terminal cancelled state once a runner has
// observed the cancel request and stopped. No-op when already terminal.
func (s *Store) MarkCancelled(ctx context.Context, id string) error {
	err := s.execWithoutResultRetry(
		ctx,
		`UPDATE tasks
         SET status = ?, progress_message = ?, updated_at = ?
         WHERE id = ? AND status NOT IN (?, ?, ?)`,
		StatusCancelled,
		"Cancelled by request",
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusCompleted,
		StatusFailed,
		StatusCancelled,
	)
	if err != nil {
		return fmt.Errorf("mark cancelled: %w", err)
	}
	return nil
}

// RequestCancel flips the cooperative cancel flag. A still-queued task moves
// straight to cancelled since no runner will ever pick it up. The first
// return reports whether the task exists at all; cancelling an already
// terminal task is acknowledged without effect.
func (s *Store) RequestCancel(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks
         SET cancel_requested = 1,
             status = CASE WHEN status = ? THEN ? ELSE status END,
             progress_message = CASE WHEN status = ? THEN ? ELSE progress_message END,
             updated_at = ?
         WHERE id = ? AND status NOT IN (?, ?, ?)`,
		StatusQueued,
		StatusCancelled,
		StatusQueued,
		"Cancelled before start",
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusCompleted,
		StatusFailed,
		StatusCancelled,
	)
	if err != nil {
		return false, fmt.Errorf("request cancel: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return true, nil
	}

	task, err := s.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return task != nil, nil
}

// CancelRequested reports whether cancellation has been requested for a task.
// Unknown tasks report true so orphaned runners stop doing work.
func (s *Store) CancelRequested(ctx context.Context, id string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT cancel_requested FROM tasks WHERE id = ?`, id)
	var flag int
	if err := row.Scan(&flag); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return true, nil
		}
		return false, fmt.Errorf("cancel requested: %w", err)
	}
	return flag != 0, nil
}

// Delete removes a task record. In-flight tasks are left to their runners:
// only terminal tasks can be deleted.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM tasks WHERE id = ? AND status IN (?, ?, ?)`,
		id,
		StatusCompleted,
		StatusFailed,
		StatusCancelled,
	)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Stats returns task counts grouped into lifecycle buckets.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM tasks GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()

	stats := Stats{}
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, err
		}
		stats.Total += count
		switch status {
		case StatusQueued:
			stats.Queued += count
		case StatusCompleted:
			stats.Completed += count
		case StatusFailed:
			stats.Failed += count
		case StatusCancelled:
			stats.Cancelled += count
		default:
			if IsProcessing(status) {
				stats.Processing += count
			}
		}
	}
	return stats, rows.Err()
}

// ResetStuckProcessing returns tasks stranded in a processing state (for
// example after an unclean shutdown) back to queued so the scheduler retries
// them. Cancel-requested tasks go straight to cancelled instead.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE tasks
         SET status = ?, progress_message = 'Cancelled during restart', updated_at = ?
         WHERE cancel_requested = 1 AND status IN (?, ?, ?, ?)`,
		StatusCancelled,
		timestamp,
		StatusExtractingAudio,
		StatusRecognizing,
		StatusTranslating,
		StatusRendering,
	); err != nil {
		return 0, fmt.Errorf("cancel stuck tasks: %w", err)
	}

	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks
         SET status = ?, progress_percent = 0, progress_message = 'Recovered after restart', updated_at = ?
         WHERE status IN (?, ?, ?, ?)`,
		StatusQueued,
		timestamp,
		StatusExtractingAudio,
		StatusRecognizing,
		StatusTranslating,
		StatusRendering,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck tasks: %w", err)
	}
	return res.RowsAffected()
}

// PruneTerminal removes terminal tasks last updated before the cutoff.
func (s *Store) PruneTerminal(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM tasks WHERE status IN (?, ?, ?) AND updated_at < ?`,
		StatusCompleted,
		StatusFailed,
		StatusCancelled,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("prune terminal tasks: %w", err)
	}
	return res.RowsAffected()
}
