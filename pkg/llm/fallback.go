package llm

import (
	"context"
	"log/slog"
)

// FallbackClient retries a failed call once with the fallback model.
// It sits outside the retry decorator, so the fallback fires only after
// the primary model's retries are exhausted.
type FallbackClient struct {
	inner         Client
	fallbackModel string
	logger        *slog.Logger
}

// NewFallbackClient wraps inner with a model fallback.
func NewFallbackClient(inner Client, fallbackModel string) *FallbackClient {
	return &FallbackClient{
		inner:         inner,
		fallbackModel: fallbackModel,
		logger:        slog.With("component", "llm_fallback"),
	}
}

// Generate calls the inner client and, on failure, re-issues the request
// against the fallback model.
func (c *FallbackClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	resp, err := c.inner.Generate(ctx, req)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil || c.fallbackModel == "" || req.Model == c.fallbackModel {
		return nil, err
	}

	c.logger.Warn("Primary model failed, switching to fallback",
		"fallback_model", c.fallbackModel,
		"error", err)

	fbReq := *req
	fbReq.Model = c.fallbackModel
	return c.inner.Generate(ctx, &fbReq)
}
