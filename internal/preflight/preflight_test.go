package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
)

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected temp dir to pass: %+v", result)
	}

	result = CheckDirectoryAccess("missing", filepath.Join(dir, "nope"))
	if result.Passed {
		t.Fatalf("expected missing dir to fail: %+v", result)
	}
}

func TestCheckTranslator(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	result := CheckTranslator(context.Background(), server.URL)
	if !result.Passed {
		t.Fatalf("expected healthy service to pass: %+v", result)
	}

	result = CheckTranslator(context.Background(), "http://127.0.0.1:1")
	if result.Passed {
		t.Fatal("expected unreachable service to fail")
	}

	result = CheckTranslator(context.Background(), "")
	if result.Passed {
		t.Fatal("expected unconfigured service to fail")
	}
}
