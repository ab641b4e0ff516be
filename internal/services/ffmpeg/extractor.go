// Package ffmpeg adapts the ffmpeg binary as the pipeline's audio
// extraction stage.
package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"subtrans/internal/config"
	"subtrans/internal/services"
)

// Extractor produces mono 16kHz WAV audio suitable for speech recognition.
type Extractor struct {
	binary        string
	sampleRate    int
	channels      int
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewExtractor creates an extractor from configuration.
func NewExtractor(cfg config.FFmpeg) *Extractor {
	return &Extractor{
		binary:     cfg.Binary,
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (e *Extractor) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	e.commandRunner = runner
}

// Extract implements stage.AudioExtractor.
func (e *Extractor) Extract(ctx context.Context, videoPath, destPath string) error {
	if videoPath == "" {
		return services.Wrap(services.ErrValidation, "extract_audio", "ffmpeg", "source path required", nil)
	}
	if destPath == "" {
		return services.Wrap(services.ErrValidation, "extract_audio", "ffmpeg", "destination path required", nil)
	}

	args := e.buildArgs(videoPath, destPath)
	if err := e.run(ctx, e.binary, args...); err != nil {
		return services.Wrap(services.ErrExternalTool, "extract_audio", "ffmpeg", "", err)
	}
	return nil
}

// HealthCheck implements stage.HealthChecker.
func (e *Extractor) HealthCheck(_ context.Context) error {
	if _, err := exec.LookPath(e.binary); err != nil {
		return fmt.Errorf("ffmpeg binary %q not found: %w", e.binary, err)
	}
	return nil
}

func (e *Extractor) buildArgs(videoPath, destPath string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", videoPath,
		"-vn",
		"-sn",
		"-dn",
		"-ac", strconv.Itoa(e.channels),
		"-ar", strconv.Itoa(e.sampleRate),
		"-c:a", "pcm_s16le",
		destPath,
	}
}

func (e *Extractor) run(ctx context.Context, name string, args ...string) error {
	if e.commandRunner != nil {
		return e.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}
