package whisper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"subtrans/internal/config"
	"subtrans/internal/services"
)

const sampleJSON = `{
  "language": "EN",
  "segments": [
    {"start": 0.0, "end": 2.1, "text": " Hello there. "},
    {"start": 2.1, "end": 4.0, "text": ""},
    {"start": 4.0, "end": 6.5, "text": "Welcome back."}
  ]
}`

func TestRecognizeParsesTranscript(t *testing.T) {
	dir := t.TempDir()
	audioPath := filepath.Join(dir, "task.wav")
	if err := os.WriteFile(audioPath, []byte("wav"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}

	cfg := config.Default()
	recognizer := NewRecognizer(cfg.Whisper)
	recognizer.WithCommandRunner(func(_ context.Context, _ string, _ ...string) error {
		return os.WriteFile(filepath.Join(dir, "task.json"), []byte(sampleJSON), 0o644)
	})

	transcript, err := recognizer.Recognize(context.Background(), audioPath)
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if transcript.Language != "en" {
		t.Fatalf("expected lowercase language, got %q", transcript.Language)
	}
	if len(transcript.Segments) != 2 {
		t.Fatalf("expected empty segments dropped, got %d", len(transcript.Segments))
	}
	if transcript.Segments[0].Text != "Hello there." {
		t.Fatalf("expected trimmed text, got %q", transcript.Segments[0].Text)
	}
	if transcript.Segments[1].Index != 1 {
		t.Fatalf("expected reindexed segments, got %d", transcript.Segments[1].Index)
	}
	if _, err := os.Stat(filepath.Join(dir, "task.json")); !os.IsNotExist(err) {
		t.Fatal("expected transcript json to be cleaned up")
	}
}

func TestRecognizeWrapsToolFailure(t *testing.T) {
	cfg := config.Default()
	recognizer := NewRecognizer(cfg.Whisper)
	recognizer.WithCommandRunner(func(context.Context, string, ...string) error {
		return errors.New("exit status 2")
	})

	_, err := recognizer.Recognize(context.Background(), "/staging/task.wav")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool marker, got %v", err)
	}
}

func TestRecognizeFailsWhenTranscriptMissing(t *testing.T) {
	dir := t.TempDir()
	audioPath := filepath.Join(dir, "task.wav")

	cfg := config.Default()
	recognizer := NewRecognizer(cfg.Whisper)
	recognizer.WithCommandRunner(func(context.Context, string, ...string) error {
		return nil
	})

	if _, err := recognizer.Recognize(context.Background(), audioPath); err == nil {
		t.Fatal("expected error when transcriber produced no output")
	}
}
