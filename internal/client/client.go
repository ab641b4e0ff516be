// Package client is the HTTP client the CLI uses to talk to a running
// subtrans daemon.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"subtrans/internal/api"
)

const defaultTimeout = 30 * time.Second

// Client talks to the daemon API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// New constructs a client for the given daemon address. Bare host:port
// addresses get an http scheme.
func New(address string, opts ...Option) *Client {
	address = strings.TrimSpace(address)
	if address != "" && !strings.Contains(address, "://") {
		address = "http://" + address
	}
	c := &Client{
		baseURL:    strings.TrimRight(address, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit uploads a video and enqueues a subtitle task.
func (c *Client) Submit(ctx context.Context, videoPath string, languages []string, format string) (api.TaskItem, error) {
	var empty api.TaskItem

	file, err := os.Open(videoPath)
	if err != nil {
		return empty, fmt.Errorf("open video: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("video", filepath.Base(videoPath))
	if err != nil {
		return empty, fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return empty, fmt.Errorf("read video: %w", err)
	}
	if err := writer.WriteField("languages", strings.Join(languages, ",")); err != nil {
		return empty, fmt.Errorf("build upload: %w", err)
	}
	if format != "" {
		if err := writer.WriteField("format", format); err != nil {
			return empty, fmt.Errorf("build upload: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return empty, fmt.Errorf("build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/tasks", &body)
	if err != nil {
		return empty, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	// Uploads can be large; do not cap them with the default timeout.
	uploadClient := *c.httpClient
	uploadClient.Timeout = 0

	resp, err := uploadClient.Do(req)
	if err != nil {
		return empty, fmt.Errorf("submit: %w", err)
	}
	defer resp.Body.Close()

	var payload api.SubmitResponse
	if err := decodeResponse(resp, http.StatusAccepted, &payload); err != nil {
		return empty, err
	}
	return payload.Item, nil
}

// List fetches tasks, optionally filtered by a comma-separated status set.
func (c *Client) List(ctx context.Context, statusFilter string) ([]api.TaskItem, error) {
	endpoint := c.baseURL + "/api/tasks"
	if statusFilter != "" {
		endpoint += "?status=" + url.QueryEscape(statusFilter)
	}
	var payload api.TaskListResponse
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	return payload.Items, nil
}

// Get fetches one task.
func (c *Client) Get(ctx context.Context, id string) (api.TaskItem, error) {
	var payload api.TaskResponse
	if err := c.getJSON(ctx, c.baseURL+"/api/tasks/"+url.PathEscape(id), &payload); err != nil {
		return api.TaskItem{}, err
	}
	return payload.Item, nil
}

// Cancel requests cancellation and returns the updated task.
func (c *Client) Cancel(ctx context.Context, id string) (api.TaskItem, error) {
	var empty api.TaskItem
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/tasks/"+url.PathEscape(id)+"/cancel", nil)
	if err != nil {
		return empty, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return empty, fmt.Errorf("cancel: %w", err)
	}
	defer resp.Body.Close()

	var payload api.TaskResponse
	if err := decodeResponse(resp, http.StatusOK, &payload); err != nil {
		return empty, err
	}
	return payload.Item, nil
}

// Delete removes a terminal task and its outputs.
func (c *Client) Delete(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.baseURL+"/api/tasks/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, http.StatusNoContent, nil)
}

// Download saves the rendered subtitle file for a language into destDir and
// returns the written path.
func (c *Client) Download(ctx context.Context, id, lang, destDir string) (string, error) {
	endpoint := c.baseURL + "/api/tasks/" + url.PathEscape(id) + "/subtitles/" + url.PathEscape(lang)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", responseError(resp)
	}

	name := fmt.Sprintf("%s_%s.srt", id, lang)
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		if filename := filepath.Base(params["filename"]); filename != "" && filename != "." {
			name = filename
		}
	}
	path := filepath.Join(destDir, name)

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create subtitle file: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write subtitle file: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close subtitle file: %w", err)
	}
	return path, nil
}

// Languages fetches the supported language catalogue.
func (c *Client) Languages(ctx context.Context) ([]api.LanguageInfo, error) {
	var payload api.LanguagesResponse
	if err := c.getJSON(ctx, c.baseURL+"/api/languages", &payload); err != nil {
		return nil, err
	}
	return payload.Languages, nil
}

// Status fetches daemon runtime information.
func (c *Client) Status(ctx context.Context) (api.DaemonStatus, error) {
	var payload api.DaemonStatus
	if err := c.getJSON(ctx, c.baseURL+"/api/status", &payload); err != nil {
		return api.DaemonStatus{}, err
	}
	return payload, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, http.StatusOK, out)
}

func decodeResponse(resp *http.Response, wantStatus int, out any) error {
	if resp.StatusCode != wantStatus {
		return responseError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return fmt.Errorf("daemon: %s (http %d)", payload.Error, resp.StatusCode)
	}
	return fmt.Errorf("daemon: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
