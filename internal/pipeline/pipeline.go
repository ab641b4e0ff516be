// Package pipeline executes one subtitle task end to end: audio extraction,
// speech recognition, per-language translation fan-out, and subtitle
// rendering. The runner owns staging-space hygiene and progress math; task
// state persistence stays behind the Reporter seam.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"subtrans/internal/config"
	"subtrans/internal/language"
	"subtrans/internal/logging"
	"subtrans/internal/media"
	"subtrans/internal/services"
	"subtrans/internal/stage"
	"subtrans/internal/subtitles"
	"subtrans/internal/tasks"
)

// ErrCancelled reports that a user cancel request stopped the run. It is
// distinct from context cancellation, which signals daemon shutdown and
// leaves the task eligible for recovery.
var ErrCancelled = services.ErrCancelled

// Progress band boundaries. Extraction owns 0 to 0.10, recognition up to
// 0.40, translation up to 0.70, rendering the rest.
const (
	bandExtractEnd   = 0.10
	bandRecognizeEnd = 0.40
	bandTranslateEnd = 0.70
)

// Reporter receives progress snapshots and answers cancel polls. The store
// keeps percent monotonic, so the runner only reports its best estimate.
type Reporter interface {
	Progress(ctx context.Context, taskID string, status tasks.Status, percent float64, message string)
	CancelRequested(ctx context.Context, taskID string) bool
}

// Adapters bundles the external-tool seams a runner drives.
type Adapters struct {
	Extractor  stage.AudioExtractor
	Recognizer stage.SpeechRecognizer
	Translator stage.Translator
}

// Outcome is the successful (possibly partial) result of a run.
type Outcome struct {
	// Result maps language code to the written subtitle file path.
	Result map[string]string
	// LanguageErrors maps language code to the failure that kept it out of
	// Result.
	LanguageErrors map[string]string
	// DetectedLanguage is the source language reported by recognition.
	DetectedLanguage string
}

// Runner drives a single task through all pipeline stages.
type Runner struct {
	cfg      *config.Config
	adapters Adapters
	reporter Reporter
	logger   *slog.Logger
}

// NewRunner constructs a runner. A nil logger becomes a no-op logger.
func NewRunner(cfg *config.Config, adapters Adapters, reporter Reporter, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{cfg: cfg, adapters: adapters, reporter: reporter, logger: logger}
}

// Run executes the pipeline for one claimed task. On success it returns the
// outcome; a user cancel returns ErrCancelled, daemon shutdown returns the
// context error, and anything else is a task failure.
func (r *Runner) Run(ctx context.Context, task *tasks.Task) (*Outcome, error) {
	log := r.logger.With(logging.String(logging.FieldTaskID, task.ID))

	if r.cancelRequested(ctx, task.ID) {
		return nil, ErrCancelled
	}

	stagingDir := filepath.Join(r.cfg.Paths.StagingDir, task.ID)
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(stagingDir); err != nil {
			log.Warn("staging cleanup failed", logging.Error(err))
		}
	}()

	audioPath, err := r.extractAudio(ctx, task, stagingDir, log)
	if err != nil {
		return nil, err
	}
	if r.cancelRequested(ctx, task.ID) {
		return nil, ErrCancelled
	}

	transcript, err := r.recognizeSpeech(ctx, task, audioPath, log)
	if err != nil {
		return nil, err
	}
	if r.cancelRequested(ctx, task.ID) {
		return nil, ErrCancelled
	}

	// On failure the outcome still carries any per-language errors collected
	// before the run gave up, so the task record keeps the advisory detail.
	outcome, err := r.produceSubtitles(ctx, task, transcript, log)
	if err != nil {
		return outcome, err
	}
	outcome.DetectedLanguage = transcript.Language
	return outcome, nil
}

func (r *Runner) extractAudio(ctx context.Context, task *tasks.Task, stagingDir string, log *slog.Logger) (string, error) {
	r.reporter.Progress(ctx, task.ID, tasks.StatusExtractingAudio, 0.01, "Extracting audio track")
	log.Info("extracting audio",
		logging.String(logging.FieldStage, string(tasks.StatusExtractingAudio)),
		logging.String("video", task.VideoPath))

	stageCtx, cancel := context.WithTimeout(ctx, r.cfg.Workflow.ExtractTimeoutDuration())
	defer cancel()

	audioPath := filepath.Join(stagingDir, "audio.wav")
	if err := r.adapters.Extractor.Extract(stageCtx, task.VideoPath, audioPath); err != nil {
		return "", r.stageError(ctx, stageCtx, err)
	}

	r.reporter.Progress(ctx, task.ID, tasks.StatusExtractingAudio, bandExtractEnd, "Audio extracted")
	return audioPath, nil
}

func (r *Runner) recognizeSpeech(ctx context.Context, task *tasks.Task, audioPath string, log *slog.Logger) (*media.Transcript, error) {
	r.reporter.Progress(ctx, task.ID, tasks.StatusRecognizing, bandExtractEnd, "Recognizing speech")
	log.Info("recognizing speech", logging.String(logging.FieldStage, string(tasks.StatusRecognizing)))

	stageCtx, cancel := context.WithTimeout(ctx, r.cfg.Workflow.TranscribeTimeoutDuration())
	defer cancel()

	transcript, err := r.adapters.Recognizer.Recognize(stageCtx, audioPath)
	if err != nil {
		return nil, r.stageError(ctx, stageCtx, err)
	}
	if transcript.Empty() {
		return nil, services.Wrap(services.ErrExternalTool, "recognize_speech", "", "no speech detected in audio", nil)
	}

	r.reporter.Progress(ctx, task.ID, tasks.StatusRecognizing, bandRecognizeEnd,
		fmt.Sprintf("Recognized %d segments (%s)", len(transcript.Segments), transcript.Language))
	return transcript, nil
}

// produceSubtitles fans out translation across target languages, waits for
// every unit to resolve, then fans out rendering over the translated set. The
// two phases never overlap so the reported status only moves forward.
// Languages fail independently; the run fails only when every language fails
// or strict mode is enabled.
func (r *Runner) produceSubtitles(ctx context.Context, task *tasks.Task, transcript *media.Transcript, log *slog.Logger) (*Outcome, error) {
	renderer, err := subtitles.ForFormat(string(task.SubtitleFormat))
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "render_subtitles", "", err.Error(), nil)
	}

	outputDir := filepath.Join(r.cfg.Paths.OutputDir, task.ID)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	var (
		mu             sync.Mutex
		wg             sync.WaitGroup
		translated     = make(map[string][]media.Segment)
		result         = make(map[string]string)
		languageErrors = make(map[string]string)
		translatedN    int
		renderedN      int
		userCancelled  bool
	)
	total := len(task.TargetLanguages)
	sem := make(chan struct{}, r.cfg.Workflow.LanguageWorkers)

	noteCancel := func() {
		mu.Lock()
		userCancelled = true
		mu.Unlock()
		stop()
	}
	cancelled := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return userCancelled
	}

	r.reporter.Progress(ctx, task.ID, tasks.StatusTranslating, bandRecognizeEnd,
		fmt.Sprintf("Translating into %d language(s)", total))

	for _, lang := range task.TargetLanguages {
		wg.Add(1)
		go func(lang string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-runCtx.Done():
				return
			}
			if runCtx.Err() != nil {
				return
			}
			if r.cancelRequested(ctx, task.ID) {
				noteCancel()
				return
			}

			segments, err := r.translateLanguage(runCtx, transcript, lang)
			if err != nil {
				if runCtx.Err() != nil {
					return
				}
				mu.Lock()
				languageErrors[lang] = services.Message(err)
				mu.Unlock()
				log.Warn("language translation failed",
					logging.String(logging.FieldLanguage, lang), logging.Error(err))
				return
			}

			mu.Lock()
			translated[lang] = segments
			translatedN++
			percent := bandRecognizeEnd + (bandTranslateEnd-bandRecognizeEnd)*float64(translatedN)/float64(total)
			mu.Unlock()
			r.reporter.Progress(ctx, task.ID, tasks.StatusTranslating, percent,
				fmt.Sprintf("Translated %s", language.Display(lang)))
		}(lang)
	}
	wg.Wait()

	if cancelled() || r.cancelRequested(ctx, task.ID) {
		_ = os.RemoveAll(outputDir)
		return nil, ErrCancelled
	}
	if ctx.Err() != nil {
		_ = os.RemoveAll(outputDir)
		return nil, ctx.Err()
	}
	if len(translated) == 0 {
		_ = os.RemoveAll(outputDir)
		return &Outcome{LanguageErrors: languageErrors}, services.Wrap(services.ErrExternalTool, "translate", "",
			fmt.Sprintf("all %d target language(s) failed", total), nil)
	}

	r.reporter.Progress(ctx, task.ID, tasks.StatusRendering, bandTranslateEnd,
		fmt.Sprintf("Rendering %d subtitle file(s)", len(translated)))

	for _, lang := range task.TargetLanguages {
		segments, ok := translated[lang]
		if !ok {
			continue
		}
		wg.Add(1)
		go func(lang string, segments []media.Segment) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-runCtx.Done():
				return
			}
			if r.cancelRequested(ctx, task.ID) {
				noteCancel()
				return
			}

			path, err := r.renderLanguage(task, renderer, outputDir, lang, segments)
			if err != nil {
				mu.Lock()
				languageErrors[lang] = services.Message(err)
				mu.Unlock()
				log.Warn("language rendering failed",
					logging.String(logging.FieldLanguage, lang), logging.Error(err))
				return
			}

			mu.Lock()
			result[lang] = path
			renderedN++
			percent := bandTranslateEnd + (1-bandTranslateEnd)*float64(renderedN)/float64(total)
			mu.Unlock()
			r.reporter.Progress(ctx, task.ID, tasks.StatusRendering, percent,
				fmt.Sprintf("Rendered %s subtitles", language.Display(lang)))
		}(lang, segments)
	}
	wg.Wait()

	if cancelled() || r.cancelRequested(ctx, task.ID) {
		removeOutputs(result, outputDir)
		return nil, ErrCancelled
	}
	if ctx.Err() != nil {
		removeOutputs(result, outputDir)
		return nil, ctx.Err()
	}
	if len(result) == 0 {
		_ = os.RemoveAll(outputDir)
		return &Outcome{LanguageErrors: languageErrors}, services.Wrap(services.ErrExternalTool, "render_subtitles", "",
			fmt.Sprintf("all %d target language(s) failed", total), nil)
	}
	if r.cfg.Workflow.StrictLanguages && len(languageErrors) > 0 {
		removeOutputs(result, outputDir)
		return &Outcome{LanguageErrors: languageErrors}, services.Wrap(services.ErrExternalTool, "translate", "",
			fmt.Sprintf("%d of %d language(s) failed", len(languageErrors), total), nil)
	}

	return &Outcome{Result: result, LanguageErrors: languageErrors}, nil
}

// translateLanguage skips the translation service when the target matches
// the detected source language; recognized text passes through unchanged.
func (r *Runner) translateLanguage(ctx context.Context, transcript *media.Transcript, lang string) ([]media.Segment, error) {
	if language.MatchesSource(lang, transcript.Language) {
		return media.CloneSegments(transcript.Segments), nil
	}
	return r.adapters.Translator.Translate(ctx, transcript.Segments, transcript.Language, lang)
}

func (r *Runner) renderLanguage(task *tasks.Task, renderer stage.SubtitleRenderer, outputDir, lang string, segments []media.Segment) (string, error) {
	rendered, err := renderer.Render(segments)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "render_subtitles", lang, "", err)
	}

	stem := strings.TrimSuffix(filepath.Base(task.VideoPath), filepath.Ext(task.VideoPath))
	name := fmt.Sprintf("%s_%s.%s", stem, lang, subtitles.Extension(string(task.SubtitleFormat)))
	path := filepath.Join(outputDir, name)
	if err := os.WriteFile(path, rendered, 0o644); err != nil {
		return "", fmt.Errorf("write subtitle file: %w", err)
	}
	return path, nil
}

// stageError maps a per-stage timeout onto the timeout marker and lets
// parent-context cancellation pass through untouched.
func (r *Runner) stageError(ctx, stageCtx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "", "", "stage timed out", err)
	}
	return err
}

func (r *Runner) cancelRequested(ctx context.Context, taskID string) bool {
	return r.reporter.CancelRequested(ctx, taskID)
}

// removeOutputs deletes partially written subtitle files after a cancelled
// or strict-mode-failed run, and the task output dir when it empties.
func removeOutputs(result map[string]string, outputDir string) {
	for _, path := range result {
		_ = os.Remove(path)
	}
	if entries, err := os.ReadDir(outputDir); err == nil && len(entries) == 0 {
		_ = os.RemoveAll(outputDir)
	}
}
