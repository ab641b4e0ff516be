// Package stage defines the adapter seams between the pipeline and the
// external tools it drives. The pipeline depends only on these interfaces;
// concrete adapters live under internal/services.
package stage

import (
	"context"
	"sort"

	"subtrans/internal/media"
)

// AudioExtractor pulls the audio track out of a video file into a mono
// speech-recognition-ready waveform at destPath.
type AudioExtractor interface {
	Extract(ctx context.Context, videoPath, destPath string) error
}

// SpeechRecognizer transcribes an extracted audio file into timed segments
// and reports the detected source language.
type SpeechRecognizer interface {
	Recognize(ctx context.Context, audioPath string) (*media.Transcript, error)
}

// Translator converts transcript text into a target language. Segment
// timings are preserved; only text changes. Implementations translate the
// segments in order and must return one output segment per input segment.
type Translator interface {
	Translate(ctx context.Context, segments []media.Segment, sourceLang, targetLang string) ([]media.Segment, error)
}

// SubtitleRenderer serializes timed segments into a subtitle document.
type SubtitleRenderer interface {
	Render(segments []media.Segment) ([]byte, error)
}

// HealthChecker is implemented by adapters that can verify their external
// dependency before the daemon accepts work.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthStatus describes one adapter dependency probe.
type HealthStatus struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// CheckHealth probes each named checker and collects the results.
func CheckHealth(ctx context.Context, checkers map[string]HealthChecker) []HealthStatus {
	statuses := make([]HealthStatus, 0, len(checkers))
	for name, checker := range checkers {
		status := HealthStatus{Name: name, Ready: true}
		if err := checker.HealthCheck(ctx); err != nil {
			status.Ready = false
			status.Detail = err.Error()
		}
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}
