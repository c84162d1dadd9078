// Package llm is a small client for OpenAI-compatible chat completion APIs
// that return JSON objects.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/exhibitions-crawler/internal/crawler"
)

// ErrUnauthorized is returned when the provider rejects the API key.
var ErrUnauthorized = errors.New("llm: unauthorized")

// DefaultMaxResponseBytes caps a response body when Config leaves it unset.
const DefaultMaxResponseBytes = 4 << 20

// Config configures the client. A nil Temperature leaves the field out of
// the request so the model default applies.
type Config struct {
	BaseURL          string
	APIKey           string
	Timeout          time.Duration
	Temperature      *float64
	MaxResponseBytes int64
}

// RetryPolicy decides whether a failed call should be attempted again.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Wait(ctx context.Context, attempt int) error
}

// StatusError is a non-200 response from the provider.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm: status %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps throttling and server errors onto crawler.ErrTransient so
// retry policies treat them like network hiccups.
func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500:
		return crawler.ErrTransient
	default:
		return nil
	}
}

// Client sends chat completion requests.
type Client struct {
	cfg        Config
	httpClient *http.Client
	retry      RetryPolicy
	logger     *zap.Logger
}

// New builds a Client. A nil httpClient gets one with cfg.Timeout; a nil
// retry policy means a single attempt.
func New(cfg Config, httpClient *http.Client, retry RetryPolicy, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = DefaultMaxResponseBytes
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, httpClient: httpClient, retry: retry, logger: logger}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type chatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// CompleteJSON sends prompt as a single user message and returns the
// model's reply, which must be a JSON object.
func (c *Client) CompleteJSON(ctx context.Context, model, prompt string) (json.RawMessage, error) {
	body, err := json.Marshal(chatRequest{
		Model:          model,
		Messages:       []chatMessage{{Role: "user", Content: prompt}},
		Temperature:    c.cfg.Temperature,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	for attempt := 1; ; attempt++ {
		raw, err := c.do(ctx, body)
		if err == nil {
			return raw, nil
		}
		if c.retry == nil || !c.retry.ShouldRetry(err, attempt) {
			return nil, err
		}
		c.logger.Debug("retrying llm call", zap.String("model", model), zap.Int("attempt", attempt), zap.Error(err))
		if werr := c.retry.Wait(ctx, attempt); werr != nil {
			return nil, errors.Join(err, werr)
		}
	}
}

func (c *Client) do(ctx context.Context, body []byte) (json.RawMessage, error) {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("llm request: %w", ctx.Err())
		}
		return nil, fmt.Errorf("llm request: %w: %w", crawler.ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read llm response: %w: %w", crawler.ErrTransient, err)
	}
	if int64(len(respBody)) > c.cfg.MaxResponseBytes {
		return nil, fmt.Errorf("llm response exceeds %d bytes: %w", c.cfg.MaxResponseBytes, crawler.ErrExtractionInvalid)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, respBody)
	}

	var chat chatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return nil, fmt.Errorf("decode llm response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("llm returned no choices: %w", crawler.ErrExtractionInvalid)
	}
	content := strings.TrimSpace(chat.Choices[0].Message.Content)
	content = stripFences(content)
	if !json.Valid([]byte(content)) {
		return nil, fmt.Errorf("llm returned invalid json: %w", crawler.ErrExtractionInvalid)
	}
	c.logger.Debug("llm call complete",
		zap.Int("prompt_tokens", chat.Usage.PromptTokens),
		zap.Int("completion_tokens", chat.Usage.CompletionTokens),
	)
	return json.RawMessage(content), nil
}

func statusError(code int, body []byte) *StatusError {
	msg := http.StatusText(code)
	var parsed chatErrorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		msg = parsed.Error.Message
	}
	return &StatusError{StatusCode: code, Message: msg}
}

// stripFences removes a ```json fence some models wrap around the object.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
