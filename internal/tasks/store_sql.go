package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const taskColumns = `id, video_path, status, target_languages, subtitle_format,
    progress_percent, progress_message, result_json, language_errors_json,
    error_message, cancel_requested, created_at, updated_at`

const (
	busyRetryAttempts = 5
	busyRetryDelay    = 50 * time.Millisecond
)

// isSQLiteBusy detects lock contention that is worth retrying.
func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var (
		res sql.Result
		err error
	)
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		res, err = s.db.ExecContext(ctx, query, args...)
		if err == nil || !isSQLiteBusy(err) {
			return res, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(busyRetryDelay * time.Duration(attempt+1)):
		}
	}
	return res, err
}

func (s *Store) execWithoutResultRetry(ctx context.Context, query string, args ...any) error {
	_, err := s.execWithRetry(ctx, query, args...)
	return err
}

func makePlaceholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		task          Task
		status        string
		langsJSON     string
		format        string
		progressMsg   sql.NullString
		resultJSON    sql.NullString
		langErrsJSON  sql.NullString
		errorMessage  sql.NullString
		cancelFlag    int
		createdAtText string
		updatedAtText string
	)

	err := row.Scan(
		&task.ID,
		&task.VideoPath,
		&status,
		&langsJSON,
		&format,
		&task.ProgressPercent,
		&progressMsg,
		&resultJSON,
		&langErrsJSON,
		&errorMessage,
		&cancelFlag,
		&createdAtText,
		&updatedAtText,
	)
	if err != nil {
		return nil, err
	}

	parsedStatus, ok := ParseStatus(status)
	if !ok {
		return nil, fmt.Errorf("task %s: unknown status %q", task.ID, status)
	}
	task.Status = parsedStatus

	parsedFormat, ok := ParseFormat(format)
	if !ok {
		return nil, fmt.Errorf("task %s: unknown subtitle format %q", task.ID, format)
	}
	task.SubtitleFormat = parsedFormat

	if err := json.Unmarshal([]byte(langsJSON), &task.TargetLanguages); err != nil {
		return nil, fmt.Errorf("task %s: decode target languages: %w", task.ID, err)
	}
	if resultJSON.Valid && resultJSON.String != "" {
		if err := json.Unmarshal([]byte(resultJSON.String), &task.Result); err != nil {
			return nil, fmt.Errorf("task %s: decode result: %w", task.ID, err)
		}
	}
	if langErrsJSON.Valid && langErrsJSON.String != "" {
		if err := json.Unmarshal([]byte(langErrsJSON.String), &task.LanguageErrors); err != nil {
			return nil, fmt.Errorf("task %s: decode language errors: %w", task.ID, err)
		}
	}

	task.ProgressMessage = progressMsg.String
	task.ErrorMessage = errorMessage.String
	task.CancelRequested = cancelFlag != 0
	task.CreatedAt = parseTimeString(createdAtText)
	task.UpdatedAt = parseTimeString(updatedAtText)

	return &task, nil
}

func parseTimeString(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
