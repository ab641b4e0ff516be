package api

import (
	"subtrans/internal/stage"
	"subtrans/internal/tasks"
)

// FromTask converts a stored task into its API representation.
func FromTask(task *tasks.Task) TaskItem {
	item := TaskItem{
		ID:              task.ID,
		VideoPath:       task.VideoPath,
		Status:          string(task.Status),
		TargetLanguages: append([]string(nil), task.TargetLanguages...),
		SubtitleFormat:  string(task.SubtitleFormat),
		Progress: TaskProgress{
			Stage:   task.Status.StageLabel(),
			Percent: task.ProgressPercent,
			Message: task.ProgressMessage,
		},
		ErrorMessage:    task.ErrorMessage,
		CancelRequested: task.CancelRequested,
	}
	if len(task.Result) > 0 {
		item.Result = make(map[string]string, len(task.Result))
		for lang, path := range task.Result {
			item.Result[lang] = path
		}
	}
	if len(task.LanguageErrors) > 0 {
		item.LanguageErrors = make(map[string]string, len(task.LanguageErrors))
		for lang, msg := range task.LanguageErrors {
			item.LanguageErrors[lang] = msg
		}
	}
	if !task.CreatedAt.IsZero() {
		item.CreatedAt = task.CreatedAt.Format(dateTimeFormat)
	}
	if !task.UpdatedAt.IsZero() {
		item.UpdatedAt = task.UpdatedAt.Format(dateTimeFormat)
	}
	return item
}

// FromTasks converts a task slice.
func FromTasks(items []*tasks.Task) []TaskItem {
	out := make([]TaskItem, 0, len(items))
	for _, task := range items {
		out = append(out, FromTask(task))
	}
	return out
}

// FromStats converts queue counters.
func FromStats(stats tasks.Stats) QueueStats {
	return QueueStats{
		Total:      stats.Total,
		Queued:     stats.Queued,
		Processing: stats.Processing,
		Completed:  stats.Completed,
		Failed:     stats.Failed,
		Cancelled:  stats.Cancelled,
	}
}

// FromStageHealth converts adapter health probes.
func FromStageHealth(statuses []stage.HealthStatus) []StageHealth {
	out := make([]StageHealth, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, StageHealth{Name: status.Name, Ready: status.Ready, Detail: status.Detail})
	}
	return out
}
