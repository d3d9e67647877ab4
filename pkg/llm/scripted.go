package llm

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedClient replays canned responses in order. Tests use it to drive
// the agent loop deterministically without a live model.
type ScriptedClient struct {
	mu        sync.Mutex
	responses []string
	calls     []*Request

	// Responder, when set, overrides the canned list entirely. It receives
	// the request and the zero-based call index.
	Responder func(req *Request, call int) (string, error)
}

// NewScriptedClient returns a client that replies with the given responses
// in order and errors once they are exhausted.
func NewScriptedClient(responses ...string) *ScriptedClient {
	return &ScriptedClient{responses: responses}
}

// Generate returns the next scripted response.
func (c *ScriptedClient) Generate(_ context.Context, req *Request) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	call := len(c.calls)
	reqCopy := *req
	c.calls = append(c.calls, &reqCopy)

	if c.Responder != nil {
		content, err := c.Responder(req, call)
		if err != nil {
			return nil, err
		}
		return &Response{Content: content, Model: "scripted"}, nil
	}

	if call >= len(c.responses) {
		return nil, fmt.Errorf("scripted client exhausted after %d responses", len(c.responses))
	}
	return &Response{Content: c.responses[call], Model: "scripted"}, nil
}

// Calls returns a copy of all requests seen so far.
func (c *ScriptedClient) Calls() []*Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Request, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallCount returns how many times Generate was invoked.
func (c *ScriptedClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}
