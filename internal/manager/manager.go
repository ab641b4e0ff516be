// Package manager owns the task lifecycle: submission validation, the
// scheduler that claims queued tasks, per-run finalization, and queries on
// behalf of the API surfaces.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"subtrans/internal/config"
	"subtrans/internal/language"
	"subtrans/internal/logging"
	"subtrans/internal/pipeline"
	"subtrans/internal/services"
	"subtrans/internal/tasks"
)

const finalizeTimeout = 10 * time.Second

// Manager schedules queued tasks onto pipeline runs, bounded by the
// configured concurrency.
type Manager struct {
	cfg    *config.Config
	store  *tasks.Store
	runner *pipeline.Runner
	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New constructs a manager. The runner is built around the store-backed
// progress reporter so pipeline progress lands in the task records.
func New(cfg *config.Config, store *tasks.Store, adapters pipeline.Adapters, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{cfg: cfg, store: store, logger: logger}
	reporter := &storeReporter{store: store, logger: logger}
	m.runner = pipeline.NewRunner(cfg, adapters, reporter, logger)
	return m
}

// Submit validates a submission and enqueues it. Validation failures carry
// the services.ErrValidation marker.
func (m *Manager) Submit(ctx context.Context, spec tasks.Spec) (*tasks.Task, error) {
	if strings.TrimSpace(spec.VideoPath) == "" {
		return nil, services.Wrap(services.ErrValidation, "submit", "", "video path is required", nil)
	}
	info, err := os.Stat(spec.VideoPath)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "submit", "", fmt.Sprintf("video file not accessible: %v", err), nil)
	}
	if info.IsDir() {
		return nil, services.Wrap(services.ErrValidation, "submit", "", "video path is a directory", nil)
	}

	normalized, err := normalizeLanguages(spec.TargetLanguages)
	if err != nil {
		return nil, err
	}
	spec.TargetLanguages = normalized

	if spec.SubtitleFormat == "" {
		spec.SubtitleFormat = tasks.FormatSRT
	}
	format, ok := tasks.ParseFormat(string(spec.SubtitleFormat))
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "submit", "",
			fmt.Sprintf("unsupported subtitle format %q", spec.SubtitleFormat), nil)
	}
	spec.SubtitleFormat = format

	task, err := m.store.Create(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("enqueue task: %w", err)
	}
	m.logger.Info("task submitted",
		logging.String(logging.FieldTaskID, task.ID),
		logging.String("video", task.VideoPath),
		logging.Int("languages", len(task.TargetLanguages)))
	return task, nil
}

// normalizeLanguages canonicalizes codes, rejects unknown ones, and removes
// duplicates while preserving submission order.
func normalizeLanguages(codes []string) ([]string, error) {
	if len(codes) == 0 {
		return nil, services.Wrap(services.ErrValidation, "submit", "", "at least one target language is required", nil)
	}
	seen := make(map[string]struct{}, len(codes))
	normalized := make([]string, 0, len(codes))
	for _, code := range codes {
		canonical, ok := language.Normalize(code)
		if !ok {
			return nil, services.Wrap(services.ErrValidation, "submit", "",
				fmt.Sprintf("unsupported language %q", code), nil)
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		normalized = append(normalized, canonical)
	}
	return normalized, nil
}

// Get returns a task snapshot or services.ErrNotFound.
func (m *Manager) Get(ctx context.Context, id string) (*tasks.Task, error) {
	task, err := m.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, services.Wrap(services.ErrNotFound, "query", "", fmt.Sprintf("task %s", id), nil)
	}
	return task, nil
}

// List returns tasks filtered by the optional status set.
func (m *Manager) List(ctx context.Context, statuses ...tasks.Status) ([]*tasks.Task, error) {
	return m.store.List(ctx, statuses...)
}

// Stats returns queue counters.
func (m *Manager) Stats(ctx context.Context) (tasks.Stats, error) {
	return m.store.Stats(ctx)
}

// Cancel requests cooperative cancellation of a task.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	found, err := m.store.RequestCancel(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return services.Wrap(services.ErrNotFound, "cancel", "", fmt.Sprintf("task %s", id), nil)
	}
	m.logger.Info("cancel requested", logging.String(logging.FieldTaskID, id))
	return nil
}

// Delete removes a terminal task record along with its output files.
func (m *Manager) Delete(ctx context.Context, id string) error {
	task, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	deleted, err := m.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return services.Wrap(services.ErrValidation, "delete", "",
			fmt.Sprintf("task %s is %s; cancel it first", id, task.Status), nil)
	}
	outputDir := filepath.Join(m.cfg.Paths.OutputDir, id)
	if err := os.RemoveAll(outputDir); err != nil {
		m.logger.Warn("output cleanup failed",
			logging.String(logging.FieldTaskID, id), logging.Error(err))
	}
	return nil
}

// SubtitlePath resolves the rendered subtitle file for a completed task and
// language.
func (m *Manager) SubtitlePath(ctx context.Context, id, lang string) (string, error) {
	task, err := m.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if task.Status != tasks.StatusCompleted {
		return "", services.Wrap(services.ErrValidation, "fetch", "",
			fmt.Sprintf("task %s is %s, not completed", id, task.Status), nil)
	}
	canonical, ok := language.Normalize(lang)
	if !ok {
		return "", services.Wrap(services.ErrValidation, "fetch", "",
			fmt.Sprintf("unsupported language %q", lang), nil)
	}
	path, ok := task.Result[canonical]
	if !ok {
		return "", services.Wrap(services.ErrNotFound, "fetch", "",
			fmt.Sprintf("no %s subtitles for task %s", canonical, id), nil)
	}
	return path, nil
}

// Start recovers interrupted work and launches the scheduler goroutine.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("manager already started")
	}

	recovered, err := m.store.ResetStuckProcessing(ctx)
	if err != nil {
		return fmt.Errorf("recover interrupted tasks: %w", err)
	}
	if recovered > 0 {
		m.logger.Info("requeued interrupted tasks", logging.Int64("count", recovered))
	}
	if m.cfg.Workflow.PruneTerminalOnStart {
		cutoff := time.Now().Add(-m.cfg.Workflow.PruneCutoff())
		pruned, err := m.store.PruneTerminal(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("prune terminal tasks: %w", err)
		}
		if pruned > 0 {
			m.logger.Info("pruned old terminal tasks", logging.Int64("count", pruned))
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	go m.schedule(runCtx)
	return nil
}

// Stop halts the scheduler and waits for in-flight runs to settle.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("manager stopped")
}

// schedule polls the queue and dispatches claimed tasks onto workers until
// the context ends. The semaphore bounds concurrent pipeline runs.
func (m *Manager) schedule(ctx context.Context) {
	defer m.wg.Done()

	sem := make(chan struct{}, m.cfg.Workflow.MaxConcurrentTasks)
	ticker := time.NewTicker(m.cfg.Workflow.PollInterval())
	defer ticker.Stop()

	for {
		if err := m.dispatch(ctx, sem); err != nil {
			// A wedged store gets the longer retry interval instead of the
			// poll cadence.
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.cfg.Workflow.RetryInterval()):
			}
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Manager) dispatch(ctx context.Context, sem chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case sem <- struct{}{}:
		default:
			return nil
		}

		task, err := m.claimNext(ctx)
		if err != nil {
			<-sem
			if ctx.Err() != nil {
				return nil
			}
			m.logger.Error("queue poll failed", logging.Error(err))
			return err
		}
		if task == nil {
			<-sem
			return nil
		}

		m.wg.Add(1)
		go func(task *tasks.Task) {
			defer m.wg.Done()
			defer func() { <-sem }()
			m.runTask(ctx, task)
		}(task)
	}
}

// claimNext pops the oldest queued task, skipping entries another path
// transitioned between poll and claim.
func (m *Manager) claimNext(ctx context.Context) (*tasks.Task, error) {
	for {
		task, err := m.store.NextQueued(ctx)
		if err != nil || task == nil {
			return nil, err
		}
		claimed, err := m.store.Claim(ctx, task.ID)
		if err != nil {
			return nil, err
		}
		if claimed {
			return m.store.GetByID(ctx, task.ID)
		}
	}
}

func (m *Manager) runTask(ctx context.Context, task *tasks.Task) {
	log := m.logger.With(logging.String(logging.FieldTaskID, task.ID))
	log.Info("task started", logging.String("video", task.VideoPath))

	outcome, err := m.runner.Run(ctx, task)

	// Finalization must outlive the scheduler context so a shutdown racing a
	// finished run still records the outcome.
	finalizeCtx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	switch {
	case err == nil:
		if storeErr := m.store.Complete(finalizeCtx, task.ID, outcome.Result, outcome.LanguageErrors); storeErr != nil {
			log.Error("record completion failed", logging.Error(storeErr))
		}
		log.Info("task completed",
			logging.Int("subtitles", len(outcome.Result)),
			logging.Int("language_errors", len(outcome.LanguageErrors)))
	case errors.Is(err, pipeline.ErrCancelled):
		if storeErr := m.store.MarkCancelled(finalizeCtx, task.ID); storeErr != nil {
			log.Error("record cancellation failed", logging.Error(storeErr))
		}
		log.Info("task cancelled")
	case ctx.Err() != nil:
		// Shutdown interrupted the run. The task stays in its processing
		// status and is requeued by the next Start.
		log.Info("task interrupted by shutdown")
	default:
		var langErrs map[string]string
		if outcome != nil {
			langErrs = outcome.LanguageErrors
		}
		if storeErr := m.store.Fail(finalizeCtx, task.ID, services.Message(err), langErrs); storeErr != nil {
			log.Error("record failure failed", logging.Error(storeErr))
		}
		log.Error("task failed", logging.Error(err))
	}
}

// storeReporter persists pipeline progress into task records.
type storeReporter struct {
	store  *tasks.Store
	logger *slog.Logger
}

func (r *storeReporter) Progress(ctx context.Context, taskID string, status tasks.Status, percent float64, message string) {
	if err := r.store.UpdateProgress(ctx, taskID, status, percent, message); err != nil && ctx.Err() == nil {
		r.logger.Warn("progress update failed",
			logging.String(logging.FieldTaskID, taskID), logging.Error(err))
	}
}

func (r *storeReporter) CancelRequested(ctx context.Context, taskID string) bool {
	requested, err := r.store.CancelRequested(ctx, taskID)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn("cancel poll failed",
				logging.String(logging.FieldTaskID, taskID), logging.Error(err))
		}
		return false
	}
	return requested
}
