// Package tasks persists subtitle task state and exposes the queue
// operations the workflow scheduler drives.
package tasks

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a subtitle task.
type Status string

const (
	StatusQueued          Status = "queued"
	StatusExtractingAudio Status = "extracting_audio"
	StatusRecognizing     Status = "recognizing"
	StatusTranslating     Status = "translating"
	StatusRendering       Status = "rendering"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
	StatusCancelled       Status = "cancelled"
)

var allStatuses = []Status{
	StatusQueued,
	StatusExtractingAudio,
	StatusRecognizing,
	StatusTranslating,
	StatusRendering,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusExtractingAudio: {},
	StatusRecognizing:     {},
	StatusTranslating:     {},
	StatusRendering:       {},
}

var terminalStatuses = map[Status]struct{}{
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessing reports whether a status reflects an in-flight pipeline stage.
func IsProcessing(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsTerminal reports whether a status permits no further transitions.
func IsTerminal(status Status) bool {
	_, ok := terminalStatuses[status]
	return ok
}

// StageLabel returns a human-readable label for a status.
func (s Status) StageLabel() string {
	switch s {
	case StatusQueued:
		return "Queued"
	case StatusExtractingAudio:
		return "Extracting audio"
	case StatusRecognizing:
		return "Recognizing speech"
	case StatusTranslating:
		return "Translating"
	case StatusRendering:
		return "Rendering subtitles"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	case StatusCancelled:
		return "Cancelled"
	default:
		return string(s)
	}
}

// Format is the closed enum of subtitle output formats.
type Format string

const (
	FormatSRT Format = "srt"
	FormatVTT Format = "vtt"
)

// ParseFormat converts a string into a known Format.
func ParseFormat(value string) (Format, bool) {
	normalized := Format(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case FormatSRT, FormatVTT:
		return normalized, true
	default:
		return "", false
	}
}

// AllFormats returns the supported subtitle formats.
func AllFormats() []Format {
	return []Format{FormatSRT, FormatVTT}
}

// Task is one end-to-end video-to-subtitles job. Instances returned by the
// store are snapshots: mutating one never affects the stored record.
type Task struct {
	ID              string
	VideoPath       string
	Status          Status
	TargetLanguages []string
	SubtitleFormat  Format
	ProgressPercent float64
	ProgressMessage string
	Result          map[string]string
	LanguageErrors  map[string]string
	ErrorMessage    string
	CancelRequested bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsTerminal reports whether the task has reached a final state.
func (t *Task) IsTerminal() bool {
	return IsTerminal(t.Status)
}

// Spec describes a new task at submission time. Languages and format are
// fixed for the task's lifetime.
type Spec struct {
	VideoPath       string
	TargetLanguages []string
	SubtitleFormat  Format
}

// Stats aggregates task counts per lifecycle bucket.
type Stats struct {
	Total      int
	Queued     int
	Processing int
	Completed  int
	Failed     int
	Cancelled  int
}
