package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the OpenAI API base URL.
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultModel is the model used when Config.Model is empty.
	DefaultModel = "gpt-4o-mini"
	// DefaultMaxTokens is the completion token budget used when a request
	// does not set one.
	DefaultMaxTokens = 2048

	defaultHTTPTimeout = 60 * time.Second
)

// Config holds client configuration. Credentials are injected explicitly so
// the client can be pointed at a fake provider endpoint in tests.
type Config struct {
	// APIKey is the provider API key (required).
	APIKey string

	// BaseURL overrides the provider base URL (default: DefaultBaseURL).
	BaseURL string

	// Model is the fixed model identifier (default: DefaultModel).
	Model string

	// HTTPClient is an optional HTTP client. If nil, a client with a 60s
	// timeout is used.
	HTTPClient *http.Client

	// Retry is the retry policy for transient failures.
	// Zero value means DefaultRetryPolicy.
	Retry RetryPolicy
}

// Client implements Completer against a chat-completions endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	retry      RetryPolicy
}

// NewClient creates a new completion client.
func NewClient(config Config) (*Client, error) {
	apiKey := strings.TrimSpace(config.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	model := config.Model
	if model == "" {
		model = DefaultModel
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	retry := config.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryPolicy()
	}

	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		retry:      retry,
	}, nil
}

// Model returns the fixed model identifier this client sends.
func (c *Client) Model() string {
	return c.model
}

// Wire types for the chat-completions endpoint.

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete implements Completer. Transient failures (network, 5xx) are
// retried per the configured policy; 4xx failures return immediately.
func (c *Client) Complete(ctx context.Context, req *CompletionRequest) (*Completion, error) {
	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("prompt is required")
	}

	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: req.Prompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if body.MaxTokens == 0 {
		body.MaxTokens = DefaultMaxTokens
	}
	if req.JSONResponse {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var completion *Completion
	err = c.retry.Do(ctx, func() error {
		var attemptErr error
		completion, attemptErr = c.attempt(ctx, payload)
		return attemptErr
	})
	if err != nil {
		return nil, err
	}
	return completion, nil
}

// attempt performs one HTTP round trip. Failures are always reported as
// *ProviderError so the retry policy can classify them.
func (c *Client) attempt(ctx context.Context, payload []byte) (*Completion, error) {
	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ProviderError{StatusCode: 0, Message: err.Error()}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &ProviderError{StatusCode: 0, Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{
			StatusCode: resp.StatusCode,
			Message:    providerMessage(respBody),
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &ProviderError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("invalid response body: %v", err),
		}
	}
	if len(parsed.Choices) == 0 {
		return nil, &ProviderError{
			StatusCode: resp.StatusCode,
			Message:    "no choices in response",
		}
	}

	return &Completion{
		Text:  parsed.Choices[0].Message.Content,
		Model: parsed.Model,
		Usage: TokenUsage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
	}, nil
}

// providerMessage extracts the provider-reported error message from an error
// body, falling back to the raw body.
func providerMessage(body []byte) string {
	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	if msg == "" {
		msg = "empty error body"
	}
	return msg
}
