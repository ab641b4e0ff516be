package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"subtrans/internal/api"
)

func TestSubmitSendsMultipartUpload(t *testing.T) {
	dir := t.TempDir()
	videoPath := filepath.Join(dir, "talk.mp4")
	if err := os.WriteFile(videoPath, []byte("video"), 0o644); err != nil {
		t.Fatalf("write video: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tasks" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("languages"); got != "fr,ja" {
			t.Errorf("unexpected languages field: %q", got)
		}
		if got := r.FormValue("format"); got != "vtt" {
			t.Errorf("unexpected format field: %q", got)
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(api.SubmitResponse{Item: api.TaskItem{ID: "abc", Status: "queued"}})
	}))
	defer server.Close()

	c := New(server.URL)
	item, err := c.Submit(context.Background(), videoPath, []string{"fr", "ja"}, "vtt")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if item.ID != "abc" {
		t.Fatalf("unexpected item: %+v", item)
	}
}

func TestGetSurfacesDaemonError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "task missing"})
	}))
	defer server.Close()

	_, err := New(server.URL).Get(context.Background(), "missing")
	if err == nil || !strings.Contains(err.Error(), "task missing") {
		t.Fatalf("expected daemon error message, got %v", err)
	}
}

func TestDownloadWritesNamedFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="talk_fr.srt"`)
		_, _ = w.Write([]byte("1\n00:00:00,000 --> 00:00:01,000\nBonjour.\n\n"))
	}))
	defer server.Close()

	destDir := t.TempDir()
	path, err := New(server.URL).Download(context.Background(), "abc", "fr", destDir)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if filepath.Base(path) != "talk_fr.srt" {
		t.Fatalf("expected name from content disposition, got %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if !strings.Contains(string(data), "Bonjour.") {
		t.Fatalf("unexpected file contents: %s", data)
	}
}

func TestNewNormalizesBareAddress(t *testing.T) {
	c := New("127.0.0.1:7519")
	if c.baseURL != "http://127.0.0.1:7519" {
		t.Fatalf("unexpected base url: %s", c.baseURL)
	}
}
