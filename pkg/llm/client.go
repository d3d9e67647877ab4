package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/airside-ops/apron/pkg/config"
)

// Message roles on the chat-completions wire.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrEmptyResponse indicates the provider returned no choices.
var ErrEmptyResponse = errors.New("llm returned no choices")

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a chat-completions request. An empty Model uses the client's
// configured default.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Response is the assistant's reply.
type Response struct {
	Content      string
	Model        string
	FinishReason string
	Usage        Usage
}

// Usage reports token consumption for a single call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Client is the minimal surface the engine needs from a language model.
type Client interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// APIError is a non-2xx reply from the provider.
type APIError struct {
	StatusCode int
	Body       string
}

// Error returns formatted error message
func (e *APIError) Error() string {
	return fmt.Sprintf("llm api error: status %d: %s", e.StatusCode, truncate(e.Body, 200))
}

// NewFromConfig assembles the production client chain: an OpenAI-compatible
// HTTP client wrapped with retries and, when configured, model fallback.
func NewFromConfig(cfg *config.LLMConfig) Client {
	var c Client = NewOpenAIClient(cfg)
	c = NewRetryClient(c, RetryConfig{MaxAttempts: cfg.MaxRetries})
	if cfg.FallbackModel != "" {
		c = NewFallbackClient(c, cfg.FallbackModel)
	}
	return c
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
