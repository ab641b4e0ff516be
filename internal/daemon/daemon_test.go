package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"subtrans/internal/api"
	"subtrans/internal/tasks"
	"subtrans/internal/testsupport"
)

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = "127.0.0.1:0"
	store := testsupport.MustOpenStore(t, cfg)

	d, err := New(cfg, store, nil)
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	return d
}

// newTestServer exposes the daemon's handlers without starting the
// scheduler, so submitted tasks stay queued and assertions are
// deterministic.
func newTestServer(t *testing.T) (*Daemon, *httptest.Server) {
	t.Helper()
	d := newTestDaemon(t)
	server := httptest.NewServer(d.apiSrv.server.Handler)
	t.Cleanup(server.Close)
	return d, server
}

func postVideo(t *testing.T, serverURL, languages, format string) *http.Response {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("video", "talk.mp4")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("fake video bytes")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if languages != "" {
		_ = writer.WriteField("languages", languages)
	}
	if format != "" {
		_ = writer.WriteField("format", format)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	resp, err := http.Post(serverURL+"/api/tasks", writer.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("post video: %v", err)
	}
	return resp
}

func decodeTask(t *testing.T, resp *http.Response) api.TaskItem {
	t.Helper()
	defer resp.Body.Close()
	var payload api.TaskResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	return payload.Item
}

func TestDaemonStartStopAndLock(t *testing.T) {
	d := newTestDaemon(t)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Stop()

	if d.APIAddr() == "" {
		t.Fatal("expected api address after start")
	}

	second, err := New(d.cfg, d.store, nil)
	if err != nil {
		t.Fatalf("new second daemon: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("expected second instance to be rejected by the lock")
	}
}

func TestSubmitAndLifecycleOverHTTP(t *testing.T) {
	_, server := newTestServer(t)

	resp := postVideo(t, server.URL, "fr, ja", "vtt")
	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 202, got %d: %s", resp.StatusCode, body)
	}
	item := decodeTask(t, resp)
	if item.Status != string(tasks.StatusQueued) {
		t.Fatalf("expected queued, got %s", item.Status)
	}
	if len(item.TargetLanguages) != 2 || item.SubtitleFormat != "vtt" {
		t.Fatalf("unexpected task payload: %+v", item)
	}

	resp, err := http.Get(server.URL + "/api/tasks/" + item.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	fetched := decodeTask(t, resp)
	if fetched.ID != item.ID {
		t.Fatalf("expected same task back, got %s", fetched.ID)
	}

	resp, err = http.Post(server.URL+"/api/tasks/"+item.ID+"/cancel", "", nil)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	cancelled := decodeTask(t, resp)
	if cancelled.Status != string(tasks.StatusCancelled) {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/api/tasks/"+item.ID, nil)
	if err != nil {
		t.Fatalf("build delete: %v", err)
	}
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/api/tasks/" + item.ID)
	if err != nil {
		t.Fatalf("get deleted task: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestSubmitValidationOverHTTP(t *testing.T) {
	_, server := newTestServer(t)

	resp := postVideo(t, server.URL, "", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing languages, got %d", resp.StatusCode)
	}

	resp = postVideo(t, server.URL, "klingon", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown language, got %d", resp.StatusCode)
	}

	resp, err := http.Post(server.URL+"/api/tasks", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("post json: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-multipart body, got %d", resp.StatusCode)
	}
}

func TestLanguagesEndpoint(t *testing.T) {
	_, server := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/languages")
	if err != nil {
		t.Fatalf("get languages: %v", err)
	}
	defer resp.Body.Close()

	var payload api.LanguagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Languages) != 15 {
		t.Fatalf("expected 15 languages, got %d", len(payload.Languages))
	}
	codes := make(map[string]bool, len(payload.Languages))
	for _, info := range payload.Languages {
		codes[info.Code] = true
	}
	for _, want := range []string{"en", "zh-CN", "zh-TW", "ja"} {
		if !codes[want] {
			t.Fatalf("expected %s in catalogue", want)
		}
	}
}

func TestStatusEndpoint(t *testing.T) {
	_, server := newTestServer(t)

	resp := postVideo(t, server.URL, "fr", "")
	resp.Body.Close()

	resp, err := http.Get(server.URL + "/api/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	defer resp.Body.Close()

	var status api.DaemonStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Queue.Total != 1 || status.Queue.Queued != 1 {
		t.Fatalf("unexpected queue stats: %+v", status.Queue)
	}
	if len(status.StageHealth) != 3 {
		t.Fatalf("expected 3 stage health entries, got %+v", status.StageHealth)
	}
}

func TestListFilterRejectsUnknownStatus(t *testing.T) {
	_, server := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/tasks?status=bogus")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestDownloadRequiresCompletedTask(t *testing.T) {
	_, server := newTestServer(t)

	resp := postVideo(t, server.URL, "fr", "")
	item := decodeTask(t, resp)

	resp, err := http.Get(fmt.Sprintf("%s/api/tasks/%s/subtitles/fr", server.URL, item.ID))
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for incomplete task, got %d", resp.StatusCode)
	}
}
