// Package preflight verifies the runtime environment before the daemon
// accepts work: external binaries, service reachability, and directory
// permissions.
package preflight

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"subtrans/internal/config"
	"subtrans/internal/deps"
)

// Result captures a single preflight check outcome.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every preflight check for the given configuration.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	results := []Result{
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckDirectoryAccess("Upload directory", cfg.Paths.UploadDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	for _, status := range CheckSystemDeps(cfg) {
		result := Result{Name: status.Name, Passed: status.Available}
		if status.Available {
			result.Detail = fmt.Sprintf("%s (found)", status.Command)
		} else {
			result.Detail = status.Detail
		}
		results = append(results, result)
	}
	results = append(results, CheckTranslator(ctx, cfg.Translator.BaseURL))
	return results
}

// CheckSystemDeps evaluates the external binaries the pipeline shells out
// to. Both the daemon startup path and the CLI status command use this.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return deps.CheckBinaries([]deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.FFmpeg.Binary,
			Description: "Required for audio extraction",
		},
		{
			Name:        "Whisper",
			Command:     cfg.Whisper.Binary,
			Description: "Required for speech recognition",
		},
	})
}

// CheckDirectoryAccess verifies that the directory exists and is
// readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckTranslator probes the translation service health endpoint.
func CheckTranslator(ctx context.Context, baseURL string) Result {
	name := "Translation service"
	if baseURL == "" {
		return Result{Name: name, Detail: "base URL not configured"}
	}
	endpoint, err := url.JoinPath(baseURL, "/health")
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("invalid base URL: %v", err)}
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("build request: %v", err)}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (unreachable: %v)", baseURL, err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{Name: name, Detail: fmt.Sprintf("%s (http %d)", baseURL, resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: baseURL}
}
