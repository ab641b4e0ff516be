// Package daemon hosts the long-running subtrans process: the single
// instance lock, the task manager, the pipeline adapters, and the HTTP API.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"subtrans/internal/api"
	"subtrans/internal/config"
	"subtrans/internal/logging"
	"subtrans/internal/manager"
	"subtrans/internal/pipeline"
	"subtrans/internal/services/ffmpeg"
	"subtrans/internal/services/translate"
	"subtrans/internal/services/whisper"
	"subtrans/internal/stage"
	"subtrans/internal/tasks"
)

// Daemon coordinates background processing and enforces single-instance
// execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *tasks.Store
	manager *manager.Manager
	health  map[string]stage.HealthChecker

	lockPath string
	lock     *flock.Flock

	apiSrv *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon and wires the pipeline adapters from
// configuration.
func New(cfg *config.Config, store *tasks.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	extractor := ffmpeg.NewExtractor(cfg.FFmpeg)
	recognizer := whisper.NewRecognizer(cfg.Whisper)
	translator := translate.NewClient(cfg.Translator.APIKey,
		translate.WithBaseURL(cfg.Translator.BaseURL),
		translate.WithTimeout(cfg.Translator.Timeout()))

	adapters := pipeline.Adapters{
		Extractor:  extractor,
		Recognizer: recognizer,
		Translator: translator,
	}
	mgr := manager.New(cfg, store, adapters, logger)

	lockPath := filepath.Join(cfg.Paths.LogDir, "subtransd.lock")
	d := &Daemon{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		manager: mgr,
		health: map[string]stage.HealthChecker{
			"audio-extraction":   extractor,
			"speech-recognition": recognizer,
			"translation":        translator,
		},
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.apiSrv = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, begins scheduling, and exposes the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another subtrans daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.manager.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("start manager: %w", err)
	}
	if err := d.apiSrv.start(runCtx); err != nil {
		d.manager.Stop()
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return err
	}

	d.running.Store(true)
	d.logger.Info("subtrans daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts scheduling, shuts down the API server, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.apiSrv.stop()
	d.manager.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("subtrans daemon stopped")
}

// Close releases all daemon resources.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Manager exposes the task manager for the API layer.
func (d *Daemon) Manager() *manager.Manager {
	return d.manager
}

// APIAddr returns the bound API address, empty until Start succeeds.
func (d *Daemon) APIAddr() string {
	return d.apiSrv.addr()
}

// Status reports daemon runtime information.
func (d *Daemon) Status(ctx context.Context) (api.DaemonStatus, error) {
	stats, err := d.manager.Stats(ctx)
	if err != nil {
		return api.DaemonStatus{}, err
	}
	return api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		TaskDBPath:   d.store.Path(),
		LockFilePath: d.lockPath,
		Queue:        api.FromStats(stats),
		StageHealth:  api.FromStageHealth(stage.CheckHealth(ctx, d.health)),
	}, nil
}
