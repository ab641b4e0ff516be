// Package api defines the JSON payloads shared by the daemon's HTTP surface
// and the CLI client.
package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// TaskItem describes a subtitle task in a transport-friendly format.
type TaskItem struct {
	ID              string            `json:"id"`
	VideoPath       string            `json:"videoPath"`
	Status          string            `json:"status"`
	TargetLanguages []string          `json:"targetLanguages"`
	SubtitleFormat  string            `json:"subtitleFormat"`
	Progress        TaskProgress      `json:"progress"`
	Result          map[string]string `json:"result,omitempty"`
	LanguageErrors  map[string]string `json:"languageErrors,omitempty"`
	ErrorMessage    string            `json:"errorMessage,omitempty"`
	CancelRequested bool              `json:"cancelRequested"`
	CreatedAt       string            `json:"createdAt,omitempty"`
	UpdatedAt       string            `json:"updatedAt,omitempty"`
}

// TaskProgress captures stage progress for a task.
type TaskProgress struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// TaskListResponse wraps task listings.
type TaskListResponse struct {
	Items []TaskItem `json:"items"`
}

// TaskResponse wraps a single task payload.
type TaskResponse struct {
	Item TaskItem `json:"item"`
}

// SubmitResponse acknowledges a new submission.
type SubmitResponse struct {
	Item TaskItem `json:"item"`
}

// LanguageInfo describes one supported language.
type LanguageInfo struct {
	Code        string `json:"code"`
	DisplayName string `json:"display_name"`
}

// LanguagesResponse wraps the supported language catalogue.
type LanguagesResponse struct {
	Languages []LanguageInfo `json:"languages"`
}

// StageHealth mirrors readiness reporting for pipeline adapters.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// QueueStats summarizes task counts by lifecycle bucket.
type QueueStats struct {
	Total      int `json:"total"`
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}

// DaemonStatus is the /api/status payload.
type DaemonStatus struct {
	Running      bool          `json:"running"`
	PID          int           `json:"pid"`
	TaskDBPath   string        `json:"taskDbPath"`
	LockFilePath string        `json:"lockFilePath"`
	Queue        QueueStats    `json:"queue"`
	StageHealth  []StageHealth `json:"stageHealth"`
}
