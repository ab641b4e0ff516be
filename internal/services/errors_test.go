package services_test

import (
	"errors"
	"fmt"
	"testing"

	"subtrans/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	base := fmt.Errorf("exit status 1")
	err := services.Wrap(services.ErrExternalTool, "recognition", "transcribe", "whisper failed", base)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool classification, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatal("expected wrapped cause to be preserved")
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "translation", "", "provider unreachable", nil)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected default ErrExternalTool, got %v", err)
	}
}

func TestMessageStripsSentinel(t *testing.T) {
	err := services.Wrap(services.ErrValidation, "submit", "", "empty language set", nil)
	got := services.Message(err)
	want := "submit: empty language set"
	if got != want {
		t.Fatalf("Message = %q, want %q", got, want)
	}
}

func TestMessageNilError(t *testing.T) {
	if got := services.Message(nil); got != "" {
		t.Fatalf("Message(nil) = %q, want empty", got)
	}
}
