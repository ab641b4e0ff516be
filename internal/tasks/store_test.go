package tasks_test

import (
	"context"
	"testing"
	"time"

	"subtrans/internal/tasks"
	"subtrans/internal/testsupport"
)

func newStore(t *testing.T) *tasks.Store {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	return testsupport.MustOpenStore(t, cfg)
}

func mustCreate(t *testing.T, store *tasks.Store, langs ...string) *tasks.Task {
	t.Helper()
	task, err := store.Create(context.Background(), tasks.Spec{
		VideoPath:       "/videos/talk.mp4",
		TargetLanguages: langs,
		SubtitleFormat:  tasks.FormatSRT,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	created := mustCreate(t, store, "fr", "ja")
	if created.ID == "" {
		t.Fatal("expected generated task id")
	}
	if created.Status != tasks.StatusQueued {
		t.Fatalf("expected queued status, got %s", created.Status)
	}
	if created.ProgressPercent != 0 {
		t.Fatalf("expected zero progress, got %f", created.ProgressPercent)
	}

	fetched, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if fetched == nil {
		t.Fatal("expected task to exist")
	}
	if len(fetched.TargetLanguages) != 2 || fetched.TargetLanguages[0] != "fr" || fetched.TargetLanguages[1] != "ja" {
		t.Fatalf("unexpected target languages: %v", fetched.TargetLanguages)
	}
	if fetched.SubtitleFormat != tasks.FormatSRT {
		t.Fatalf("unexpected format: %s", fetched.SubtitleFormat)
	}
	if fetched.CreatedAt.IsZero() || fetched.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps to be set")
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	store := newStore(t)

	task, err := store.GetByID(context.Background(), "no-such-task")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if task != nil {
		t.Fatalf("expected nil for missing task, got %+v", task)
	}
}

func TestClaimIsExclusive(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	task := mustCreate(t, store, "de")

	claimed, err := store.Claim(ctx, task.ID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !claimed {
		t.Fatal("expected first claim to succeed")
	}

	claimed, err = store.Claim(ctx, task.ID)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if claimed {
		t.Fatal("expected second claim to fail")
	}

	current, err := store.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if current.Status != tasks.StatusExtractingAudio {
		t.Fatalf("expected extracting_audio after claim, got %s", current.Status)
	}
}

func TestProgressNeverDecreases(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	task := mustCreate(t, store, "ko")

	if err := store.UpdateProgress(ctx, task.ID, tasks.StatusRecognizing, 0.35, "Recognizing speech"); err != nil {
		t.Fatalf("update progress: %v", err)
	}
	if err := store.UpdateProgress(ctx, task.ID, tasks.StatusRecognizing, 0.20, "Stale report"); err != nil {
		t.Fatalf("update progress: %v", err)
	}

	current, err := store.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if current.ProgressPercent != 0.35 {
		t.Fatalf("expected progress to hold at 0.35, got %f", current.ProgressPercent)
	}
	if current.ProgressMessage != "Stale report" {
		t.Fatalf("expected latest message, got %q", current.ProgressMessage)
	}
}

func TestProgressIgnoredAfterTerminal(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	task := mustCreate(t, store, "es")

	if err := store.Fail(ctx, task.ID, "ffmpeg exited with status 1", nil); err != nil {
		t.Fatalf("fail task: %v", err)
	}
	if err := store.UpdateProgress(ctx, task.ID, tasks.StatusTranslating, 0.5, "Racing update"); err != nil {
		t.Fatalf("update progress: %v", err)
	}

	current, err := store.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if current.Status != tasks.StatusFailed {
		t.Fatalf("expected failed status to stick, got %s", current.Status)
	}
	if current.ErrorMessage != "ffmpeg exited with status 1" {
		t.Fatalf("unexpected error message: %q", current.ErrorMessage)
	}
}

func TestRequestCancelOnQueuedTask(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	task := mustCreate(t, store, "ru")

	found, err := store.RequestCancel(ctx, task.ID)
	if err != nil {
		t.Fatalf("request cancel: %v", err)
	}
	if !found {
		t.Fatal("expected task to be found")
	}

	current, err := store.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if current.Status != tasks.StatusCancelled {
		t.Fatalf("expected queued task to cancel immediately, got %s", current.Status)
	}
	if !current.CancelRequested {
		t.Fatal("expected cancel flag to be set")
	}
}

func TestRequestCancelOnProcessingTaskSetsFlagOnly(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	task := mustCreate(t, store, "it")

	if _, err := store.Claim(ctx, task.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	found, err := store.RequestCancel(ctx, task.ID)
	if err != nil {
		t.Fatalf("request cancel: %v", err)
	}
	if !found {
		t.Fatal("expected task to be found")
	}

	current, err := store.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if current.Status != tasks.StatusExtractingAudio {
		t.Fatalf("expected processing status to stay, got %s", current.Status)
	}
	requested, err := store.CancelRequested(ctx, task.ID)
	if err != nil {
		t.Fatalf("cancel requested: %v", err)
	}
	if !requested {
		t.Fatal("expected cancel flag to be visible")
	}
}

func TestRequestCancelMissingTask(t *testing.T) {
	store := newStore(t)

	found, err := store.RequestCancel(context.Background(), "no-such-task")
	if err != nil {
		t.Fatalf("request cancel: %v", err)
	}
	if found {
		t.Fatal("expected missing task to report not found")
	}
}

func TestCompleteRecordsResultAndLanguageErrors(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	task := mustCreate(t, store, "fr", "de")

	result := map[string]string{"fr": "/out/talk_fr.srt"}
	langErrs := map[string]string{"de": "translation service timeout"}
	if err := store.Complete(ctx, task.ID, result, langErrs); err != nil {
		t.Fatalf("complete: %v", err)
	}

	current, err := store.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if current.Status != tasks.StatusCompleted {
		t.Fatalf("expected completed, got %s", current.Status)
	}
	if current.ProgressPercent != 1.0 {
		t.Fatalf("expected progress 1.0, got %f", current.ProgressPercent)
	}
	if current.Result["fr"] != "/out/talk_fr.srt" {
		t.Fatalf("unexpected result map: %v", current.Result)
	}
	if current.LanguageErrors["de"] != "translation service timeout" {
		t.Fatalf("unexpected language errors: %v", current.LanguageErrors)
	}
}

func TestDeleteOnlyTerminalTasks(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	queued := mustCreate(t, store, "th")
	deleted, err := store.Delete(ctx, queued.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted {
		t.Fatal("expected queued task to be protected from deletion")
	}

	if err := store.Fail(ctx, queued.ID, "boom", nil); err != nil {
		t.Fatalf("fail: %v", err)
	}
	deleted, err = store.Delete(ctx, queued.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !deleted {
		t.Fatal("expected failed task to be deletable")
	}
}

func TestNextQueuedOrderAndStats(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	first := mustCreate(t, store, "vi")
	time.Sleep(5 * time.Millisecond)
	second := mustCreate(t, store, "hi")

	next, err := store.NextQueued(ctx)
	if err != nil {
		t.Fatalf("next queued: %v", err)
	}
	if next == nil || next.ID != first.ID {
		t.Fatalf("expected oldest task first, got %+v", next)
	}

	if _, err := store.Claim(ctx, first.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.Complete(ctx, second.ID, map[string]string{"hi": "/out/a.srt"}, nil); err != nil {
		t.Fatalf("complete: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 2 || stats.Processing != 1 || stats.Completed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestResetStuckProcessing(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	running := mustCreate(t, store, "ar")
	cancelled := mustCreate(t, store, "pt")
	for _, task := range []*tasks.Task{running, cancelled} {
		if _, err := store.Claim(ctx, task.ID); err != nil {
			t.Fatalf("claim: %v", err)
		}
	}
	if _, err := store.RequestCancel(ctx, cancelled.ID); err != nil {
		t.Fatalf("request cancel: %v", err)
	}

	reset, err := store.ResetStuckProcessing(ctx)
	if err != nil {
		t.Fatalf("reset stuck: %v", err)
	}
	if reset != 1 {
		t.Fatalf("expected one task requeued, got %d", reset)
	}

	requeued, err := store.GetByID(ctx, running.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if requeued.Status != tasks.StatusQueued || requeued.ProgressPercent != 0 {
		t.Fatalf("expected requeued task, got %s at %f", requeued.Status, requeued.ProgressPercent)
	}

	gone, err := store.GetByID(ctx, cancelled.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if gone.Status != tasks.StatusCancelled {
		t.Fatalf("expected cancel-requested task to cancel, got %s", gone.Status)
	}
}

func TestPruneTerminal(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	done := mustCreate(t, store, "ja")
	active := mustCreate(t, store, "fr")
	if err := store.Complete(ctx, done.ID, map[string]string{"ja": "/out/a.srt"}, nil); err != nil {
		t.Fatalf("complete: %v", err)
	}

	pruned, err := store.PruneTerminal(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected one pruned task, got %d", pruned)
	}

	remaining, err := store.GetByID(ctx, active.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if remaining == nil {
		t.Fatal("expected queued task to survive pruning")
	}
}
