package llm

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// RetryConfig configures retry behavior for transient LLM failures.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryConfig provides the engine defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     10 * time.Second,
	}
}

// RetryClient decorates a Client with exponential backoff on transient
// failures (timeouts, 429, 5xx). Non-retryable errors are returned as-is.
type RetryClient struct {
	inner  Client
	config RetryConfig
	logger *slog.Logger
}

// NewRetryClient wraps inner with retry behavior. Zero config fields take
// the engine defaults.
func NewRetryClient(inner Client, cfg RetryConfig) *RetryClient {
	defaults := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = defaults.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaults.MaxDelay
	}
	return &RetryClient{
		inner:  inner,
		config: cfg,
		logger: slog.With("component", "llm_retry"),
	}
}

// Generate calls the inner client, retrying transient failures.
func (c *RetryClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	var lastErr error
	delay := c.config.InitialDelay

	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		resp, err := c.inner.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt == c.config.MaxAttempts {
			break
		}

		c.logger.Warn("LLM call failed, retrying",
			"attempt", attempt,
			"max_attempts", c.config.MaxAttempts,
			"delay", delay,
			"error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > c.config.MaxDelay {
			delay = c.config.MaxDelay
		}
	}

	return nil, lastErr
}

// IsRetryable classifies transient LLM transport failures: rate limiting,
// server-side failures, and network timeouts qualify.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// http.Client deadline exhaustion surfaces as a wrapped DeadlineExceeded.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	return false
}
