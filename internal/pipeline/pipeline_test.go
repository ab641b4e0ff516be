package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"subtrans/internal/config"
	"subtrans/internal/media"
	"subtrans/internal/pipeline"
	"subtrans/internal/tasks"
	"subtrans/internal/testsupport"
)

type fakeExtractor struct {
	err error
}

func (f *fakeExtractor) Extract(_ context.Context, _, destPath string) error {
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(destPath, []byte("wav"), 0o644)
}

type fakeRecognizer struct {
	transcript *media.Transcript
	err        error
}

func (f *fakeRecognizer) Recognize(context.Context, string) (*media.Transcript, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.transcript, nil
}

type fakeTranslator struct {
	mu      sync.Mutex
	calls   []string
	failFor map[string]error
	before  func(lang string)
}

func (f *fakeTranslator) Translate(ctx context.Context, segments []media.Segment, _, targetLang string) ([]media.Segment, error) {
	if f.before != nil {
		f.before(targetLang)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.calls = append(f.calls, targetLang)
	f.mu.Unlock()
	if err := f.failFor[targetLang]; err != nil {
		return nil, err
	}
	out := media.CloneSegments(segments)
	for i := range out {
		out[i].Text = "[" + targetLang + "] " + out[i].Text
	}
	return out, nil
}

func (f *fakeTranslator) called(lang string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, call := range f.calls {
		if call == lang {
			return true
		}
	}
	return false
}

type progressCall struct {
	status  tasks.Status
	percent float64
}

type fakeReporter struct {
	mu            sync.Mutex
	calls         []progressCall
	cancelAfter   int
	cancelNow     bool
	renderingSeen chan struct{}
	renderingOnce sync.Once
}

func (f *fakeReporter) Progress(_ context.Context, _ string, status tasks.Status, percent float64, _ string) {
	f.mu.Lock()
	f.calls = append(f.calls, progressCall{status: status, percent: percent})
	f.mu.Unlock()
	if status == tasks.StatusRendering && f.renderingSeen != nil {
		f.renderingOnce.Do(func() { close(f.renderingSeen) })
	}
}

func (f *fakeReporter) CancelRequested(context.Context, string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelNow {
		return true
	}
	if f.cancelAfter > 0 && len(f.calls) >= f.cancelAfter {
		return true
	}
	return false
}

func (f *fakeReporter) statuses() []tasks.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]tasks.Status, len(f.calls))
	for i, call := range f.calls {
		out[i] = call.status
	}
	return out
}

func (f *fakeReporter) maxPercent() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	max := 0.0
	for _, call := range f.calls {
		if call.percent > max {
			max = call.percent
		}
	}
	return max
}

func sampleTranscript() *media.Transcript {
	return &media.Transcript{
		Language: "en",
		Segments: []media.Segment{
			{Index: 0, Start: 0, End: 2, Text: "Hello."},
			{Index: 1, Start: 2, End: 4, Text: "Goodbye."},
		},
	}
}

func newTask(cfg *config.Config, langs ...string) *tasks.Task {
	videoPath := filepath.Join(cfg.Paths.UploadDir, "talk.mp4")
	return &tasks.Task{
		ID:              "task-1",
		VideoPath:       videoPath,
		Status:          tasks.StatusExtractingAudio,
		TargetLanguages: langs,
		SubtitleFormat:  tasks.FormatSRT,
	}
}

func newRunner(cfg *config.Config, translator *fakeTranslator, reporter *fakeReporter) *pipeline.Runner {
	adapters := pipeline.Adapters{
		Extractor:  &fakeExtractor{},
		Recognizer: &fakeRecognizer{transcript: sampleTranscript()},
		Translator: translator,
	}
	return pipeline.NewRunner(cfg, adapters, reporter, nil)
}

func TestRunProducesSubtitlesForAllLanguages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	translator := &fakeTranslator{}
	reporter := &fakeReporter{}
	runner := newRunner(cfg, translator, reporter)
	task := newTask(cfg, "fr", "ja")

	outcome, err := runner.Run(context.Background(), task)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(outcome.Result) != 2 {
		t.Fatalf("expected 2 subtitle files, got %v", outcome.Result)
	}
	if outcome.DetectedLanguage != "en" {
		t.Fatalf("expected detected language en, got %q", outcome.DetectedLanguage)
	}

	frPath := outcome.Result["fr"]
	if !strings.HasSuffix(frPath, "talk_fr.srt") {
		t.Fatalf("unexpected output name: %s", frPath)
	}
	data, err := os.ReadFile(frPath)
	if err != nil {
		t.Fatalf("read subtitle: %v", err)
	}
	if !strings.Contains(string(data), "[fr] Hello.") {
		t.Fatalf("expected translated text in output:\n%s", data)
	}

	stagingDir := filepath.Join(cfg.Paths.StagingDir, task.ID)
	if _, err := os.Stat(stagingDir); !os.IsNotExist(err) {
		t.Fatal("expected staging dir to be cleaned up")
	}
	if reporter.maxPercent() != 1.0 {
		t.Fatalf("expected progress to reach 1.0, got %f", reporter.maxPercent())
	}
}

func TestRunRendersOnlyAfterAllTranslationsResolve(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.LanguageWorkers = 2
	reporter := &fakeReporter{renderingSeen: make(chan struct{})}
	translator := &fakeTranslator{before: func(lang string) {
		// Hold the ja translation back so fr resolves first. Rendering must
		// not start while ja is still translating, so this times out rather
		// than observing a rendering update.
		if lang != "ja" {
			return
		}
		select {
		case <-reporter.renderingSeen:
		case <-time.After(100 * time.Millisecond):
		}
	}}
	runner := newRunner(cfg, translator, reporter)

	outcome, err := runner.Run(context.Background(), newTask(cfg, "fr", "ja"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(outcome.Result) != 2 {
		t.Fatalf("expected 2 subtitle files, got %v", outcome.Result)
	}

	seenRendering := false
	for _, status := range reporter.statuses() {
		if status == tasks.StatusRendering {
			seenRendering = true
		}
		if seenRendering && status == tasks.StatusTranslating {
			t.Fatalf("translating reported after rendering: %v", reporter.statuses())
		}
	}
	if !seenRendering {
		t.Fatal("expected a rendering progress update")
	}
}

func TestRunSkipsTranslationForSourceLanguage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	translator := &fakeTranslator{}
	runner := newRunner(cfg, translator, &fakeReporter{})
	task := newTask(cfg, "en", "fr")

	outcome, err := runner.Run(context.Background(), task)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if translator.called("en") {
		t.Fatal("expected source language to bypass the translator")
	}
	if !translator.called("fr") {
		t.Fatal("expected non-source language to be translated")
	}

	data, err := os.ReadFile(outcome.Result["en"])
	if err != nil {
		t.Fatalf("read subtitle: %v", err)
	}
	if !strings.Contains(string(data), "Hello.") || strings.Contains(string(data), "[en]") {
		t.Fatalf("expected untranslated passthrough text:\n%s", data)
	}
}

func TestRunToleratesPartialLanguageFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	translator := &fakeTranslator{failFor: map[string]error{"de": errors.New("translation service 502")}}
	runner := newRunner(cfg, translator, &fakeReporter{})
	task := newTask(cfg, "fr", "de")

	outcome, err := runner.Run(context.Background(), task)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, ok := outcome.Result["fr"]; !ok {
		t.Fatal("expected fr to succeed")
	}
	if _, ok := outcome.Result["de"]; ok {
		t.Fatal("expected de to be absent from results")
	}
	if outcome.LanguageErrors["de"] == "" {
		t.Fatal("expected de failure to be recorded")
	}
}

func TestRunFailsWhenAllLanguagesFail(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	translator := &fakeTranslator{failFor: map[string]error{
		"fr": errors.New("boom"),
		"de": errors.New("boom"),
	}}
	runner := newRunner(cfg, translator, &fakeReporter{})

	_, err := runner.Run(context.Background(), newTask(cfg, "fr", "de"))
	if err == nil {
		t.Fatal("expected run to fail when no language succeeds")
	}
}

func TestRunStrictModeFailsOnAnyLanguageError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.StrictLanguages = true
	translator := &fakeTranslator{failFor: map[string]error{"de": errors.New("boom")}}
	runner := newRunner(cfg, translator, &fakeReporter{})
	task := newTask(cfg, "fr", "de")

	outcome, err := runner.Run(context.Background(), task)
	if err == nil {
		t.Fatal("expected strict mode to fail the run")
	}
	if outcome == nil || outcome.LanguageErrors["de"] == "" {
		t.Fatalf("expected the de failure detail on the outcome, got %+v", outcome)
	}

	outputDir := filepath.Join(cfg.Paths.OutputDir, task.ID)
	entries, err := os.ReadDir(outputDir)
	if err == nil && len(entries) > 0 {
		t.Fatal("expected partial outputs to be removed in strict mode")
	}
}

func TestRunCancelBeforeStart(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	runner := newRunner(cfg, &fakeTranslator{}, &fakeReporter{cancelNow: true})

	_, err := runner.Run(context.Background(), newTask(cfg, "fr"))
	if !errors.Is(err, pipeline.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}

func TestRunCancelMidPipeline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	reporter := &fakeReporter{cancelAfter: 3}
	runner := newRunner(cfg, &fakeTranslator{}, reporter)
	task := newTask(cfg, "fr", "ja")

	_, err := runner.Run(context.Background(), task)
	if !errors.Is(err, pipeline.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}

	stagingDir := filepath.Join(cfg.Paths.StagingDir, task.ID)
	if _, statErr := os.Stat(stagingDir); !os.IsNotExist(statErr) {
		t.Fatal("expected staging cleanup after cancel")
	}
}

func TestRunShutdownReturnsContextError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	runner := newRunner(cfg, &fakeTranslator{}, &fakeReporter{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runner.Run(ctx, newTask(cfg, "fr"))
	if errors.Is(err, pipeline.ErrCancelled) {
		t.Fatal("shutdown must not report user cancellation")
	}
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestRunFailsOnEmptyTranscript(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	adapters := pipeline.Adapters{
		Extractor:  &fakeExtractor{},
		Recognizer: &fakeRecognizer{transcript: &media.Transcript{Language: "en"}},
		Translator: &fakeTranslator{},
	}
	runner := pipeline.NewRunner(cfg, adapters, &fakeReporter{}, nil)

	if _, err := runner.Run(context.Background(), newTask(cfg, "fr")); err == nil {
		t.Fatal("expected failure for empty transcript")
	}
}
