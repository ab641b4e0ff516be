// Package testsupport provides helpers for wiring tests against temporary
// configuration and task stores.
package testsupport

import (
	"path/filepath"
	"testing"

	"subtrans/internal/config"
	"subtrans/internal/tasks"
)

// NewConfig returns a validated configuration rooted in a per-test temporary
// directory.
func NewConfig(t *testing.T) *config.Config {
	t.Helper()

	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StagingDir = filepath.Join(root, "staging")
	cfg.Paths.OutputDir = filepath.Join(root, "output")
	cfg.Paths.UploadDir = filepath.Join(root, "uploads")
	cfg.Paths.LogDir = filepath.Join(root, "logs")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate config: %v", err)
	}
	return &cfg
}

// MustOpenStore opens a task store for the given configuration and closes it
// when the test finishes.
func MustOpenStore(t *testing.T, cfg *config.Config) *tasks.Store {
	t.Helper()

	store, err := tasks.Open(cfg)
	if err != nil {
		t.Fatalf("open task store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
