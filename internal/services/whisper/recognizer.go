// Package whisper adapts a WhisperX-style command line transcriber as the
// pipeline's speech recognition stage.
package whisper

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"subtrans/internal/config"
	"subtrans/internal/media"
	"subtrans/internal/services"
)

// Recognizer transcribes extracted audio into timed segments and detects the
// spoken language.
type Recognizer struct {
	binary        string
	model         string
	device        string
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewRecognizer creates a recognizer from configuration.
func NewRecognizer(cfg config.Whisper) *Recognizer {
	return &Recognizer{
		binary: cfg.Binary,
		model:  cfg.Model,
		device: cfg.Device,
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (r *Recognizer) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	r.commandRunner = runner
}

// Recognize implements stage.SpeechRecognizer. The transcriber writes its
// JSON output next to the audio file; the payload is parsed and removed.
func (r *Recognizer) Recognize(ctx context.Context, audioPath string) (*media.Transcript, error) {
	if audioPath == "" {
		return nil, services.Wrap(services.ErrValidation, "recognize_speech", "whisper", "audio path required", nil)
	}

	outputDir := filepath.Dir(audioPath)
	args := r.buildArgs(audioPath, outputDir)
	if err := r.run(ctx, r.binary, args...); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "recognize_speech", "whisper", "", err)
	}

	jsonPath := transcriptPath(audioPath, outputDir)
	transcript, err := loadTranscript(jsonPath)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "recognize_speech", "whisper", "read transcript", err)
	}
	_ = os.Remove(jsonPath)

	return transcript, nil
}

// HealthCheck implements stage.HealthChecker.
func (r *Recognizer) HealthCheck(_ context.Context) error {
	if _, err := exec.LookPath(r.binary); err != nil {
		return fmt.Errorf("whisper binary %q not found: %w", r.binary, err)
	}
	return nil
}

func (r *Recognizer) buildArgs(audioPath, outputDir string) []string {
	return []string{
		audioPath,
		"--model", r.model,
		"--device", r.device,
		"--output_dir", outputDir,
		"--output_format", "json",
	}
}

func (r *Recognizer) run(ctx context.Context, name string, args ...string) error {
	if r.commandRunner != nil {
		return r.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

func transcriptPath(audioPath, outputDir string) string {
	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	return filepath.Join(outputDir, base+".json")
}

type transcriptPayload struct {
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func loadTranscript(jsonPath string) (*media.Transcript, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, err
	}

	var payload transcriptPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse transcript json: %w", err)
	}

	transcript := &media.Transcript{Language: strings.ToLower(strings.TrimSpace(payload.Language))}
	for _, seg := range payload.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		transcript.Segments = append(transcript.Segments, media.Segment{
			Index: len(transcript.Segments),
			Start: seg.Start,
			End:   seg.End,
			Text:  text,
		})
	}
	return transcript, nil
}
