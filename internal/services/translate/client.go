// Package translate adapts an HTTP machine-translation service as the
// pipeline's translation stage.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"subtrans/internal/media"
	"subtrans/internal/services"
)

const (
	defaultBaseURL     = "http://127.0.0.1:5000"
	defaultHTTPTimeout = 60 * time.Second
)

// Client calls a batch translation endpoint. One request translates all
// segments of a transcript for a single target language.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option customizes the translation client.
type Option func(*Client)

// WithBaseURL overrides the default service base URL.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		base = strings.TrimSpace(base)
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// NewClient constructs a translation client.
func NewClient(apiKey string, opts ...Option) *Client {
	client := &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return client
}

type translateRequest struct {
	Texts      []string `json:"texts"`
	SourceLang string   `json:"source_lang"`
	TargetLang string   `json:"target_lang"`
}

type translateResponse struct {
	Translations []string `json:"translations"`
	Error        string   `json:"error,omitempty"`
}

// Translate implements stage.Translator. Timings carry over unchanged; only
// segment text is replaced.
func (c *Client) Translate(ctx context.Context, segments []media.Segment, sourceLang, targetLang string) ([]media.Segment, error) {
	if targetLang == "" {
		return nil, services.Wrap(services.ErrValidation, "translate", "translate", "target language required", nil)
	}
	if len(segments) == 0 {
		return nil, nil
	}

	texts := make([]string, len(segments))
	for i, segment := range segments {
		texts[i] = segment.Text
	}

	payload := translateRequest{Texts: texts, SourceLang: sourceLang, TargetLang: targetLang}
	response, err := c.post(ctx, "/translate", payload)
	if err != nil {
		return nil, err
	}
	if response.Error != "" {
		return nil, services.Wrap(services.ErrExternalTool, "translate", targetLang, response.Error, nil)
	}
	if len(response.Translations) != len(segments) {
		return nil, services.Wrap(services.ErrExternalTool, "translate", targetLang,
			fmt.Sprintf("segment count mismatch: sent %d, got %d", len(segments), len(response.Translations)), nil)
	}

	translated := media.CloneSegments(segments)
	for i := range translated {
		translated[i].Text = strings.TrimSpace(response.Translations[i])
	}
	return translated, nil
}

// HealthCheck implements stage.HealthChecker via the service's health
// endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	endpoint, err := url.JoinPath(c.baseURL, "/health")
	if err != nil {
		return fmt.Errorf("translate health: build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("translate health: request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("translate health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("translate health: http %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload translateRequest) (*translateResponse, error) {
	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "translate", payload.TargetLang, "build url", err)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "translate", payload.TargetLang, "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "translate", payload.TargetLang, "request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		marker := services.ErrExternalTool
		if errors.Is(err, context.DeadlineExceeded) {
			marker = services.ErrTimeout
		}
		return nil, services.Wrap(marker, "translate", payload.TargetLang, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "translate", payload.TargetLang, "read body", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, services.Wrap(services.ErrExternalTool, "translate", payload.TargetLang,
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var decoded translateResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "translate", payload.TargetLang, "decode response", err)
	}
	return &decoded, nil
}
