// Package e2e exercises the whole response engine in process: real
// scenario descriptors, topology, reference data, tools, session store,
// and worker pool, with only the language model scripted.
package e2e

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/airside-ops/apron/pkg/agent"
	"github.com/airside-ops/apron/pkg/config"
	"github.com/airside-ops/apron/pkg/llm"
	"github.com/airside-ops/apron/pkg/models"
	"github.com/airside-ops/apron/pkg/parser"
	"github.com/airside-ops/apron/pkg/queue"
	"github.com/airside-ops/apron/pkg/refdata"
	"github.com/airside-ops/apron/pkg/scenario"
	"github.com/airside-ops/apron/pkg/services"
	"github.com/airside-ops/apron/pkg/session"
	"github.com/airside-ops/apron/pkg/tools"
	"github.com/airside-ops/apron/pkg/topology"
)

// TestApp is a complete in-process engine for end-to-end tests.
type TestApp struct {
	LLM       *llm.ScriptedClient
	Store     session.Store
	Pool      *queue.Pool
	Scenarios *scenario.Registry
	Service   *services.EventService
}

// testAppConfig holds options accumulated before creating the TestApp.
type testAppConfig struct {
	llmClient      *llm.ScriptedClient
	recursionLimit int
	workerCount    int
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithLLMClient sets a pre-scripted model client.
func WithLLMClient(client *llm.ScriptedClient) TestAppOption {
	return func(c *testAppConfig) { c.llmClient = client }
}

// WithRecursionLimit overrides the per-turn node execution budget.
func WithRecursionLimit(n int) TestAppOption {
	return func(c *testAppConfig) { c.recursionLimit = n }
}

// WithWorkerCount sets the number of turn workers.
func WithWorkerCount(n int) TestAppOption {
	return func(c *testAppConfig) { c.workerCount = n }
}

// NewTestApp assembles the full engine on the embedded datasets and a
// memory session store. Shutdown is registered via t.Cleanup.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	tc := &testAppConfig{
		recursionLimit: config.DefaultEngineConfig().RecursionLimit,
		workerCount:    2,
	}
	for _, opt := range opts {
		opt(tc)
	}
	if tc.llmClient == nil {
		tc.llmClient = llm.NewScriptedClient()
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	scenarios, err := scenario.LoadDefault()
	require.NoError(t, err)
	graph, err := topology.LoadDefault(logger)
	require.NoError(t, err)
	ref, err := refdata.LoadDefault()
	require.NoError(t, err)

	engineCfg := config.DefaultEngineConfig()
	engineCfg.RecursionLimit = tc.recursionLimit

	registry, err := tools.NewRegistry(tools.Deps{
		Scenarios: scenarios,
		Graph:     graph,
		Ref:       ref,
		LLM:       tc.llmClient,
		Logger:    logger,
	})
	require.NoError(t, err)

	msgParser := parser.New(scenarios, graph, ref, tc.llmClient, engineCfg, logger)

	engine, err := agent.New(agent.Config{
		Parser:    msgParser,
		Tools:     registry,
		Scenarios: scenarios,
		LLM:       tc.llmClient,
		Engine:    engineCfg,
		Logger:    logger,
	})
	require.NoError(t, err)

	store := session.NewMemoryStore(config.DefaultSessionConfig(), logger)

	queueCfg := config.DefaultQueueConfig()
	queueCfg.WorkerCount = tc.workerCount
	pool := queue.NewPool(queueCfg, logger)

	service := services.NewEventService(store, pool, engine, msgParser, scenarios, nil, logger)
	t.Cleanup(func() { _ = service.Close() })

	return &TestApp{
		LLM:       tc.llmClient,
		Store:     store,
		Pool:      pool,
		Scenarios: scenarios,
		Service:   service,
	}
}

// Start opens a session with an initial report and runs the first turn.
// An empty scenarioType exercises keyword identification.
func (app *TestApp) Start(t *testing.T, message, scenarioType string) *models.EventResponse {
	t.Helper()
	resp, err := app.Service.Start(context.Background(), &models.StartEventRequest{
		Message:      message,
		ScenarioType: scenarioType,
	})
	require.NoError(t, err)
	return resp
}

// Chat continues the session with a follow-up report.
func (app *TestApp) Chat(t *testing.T, sessionID, message string) *models.EventResponse {
	t.Helper()
	resp, err := app.Service.Chat(context.Background(), &models.ChatRequest{
		SessionID: sessionID,
		Message:   message,
	})
	require.NoError(t, err)
	return resp
}

// State loads the persisted session state.
func (app *TestApp) State(t *testing.T, sessionID string) *models.State {
	t.Helper()
	state, err := app.Store.Get(context.Background(), sessionID)
	require.NoError(t, err)
	return state
}

// Scenario fetches a loaded descriptor by id.
func (app *TestApp) Scenario(t *testing.T, id string) *models.Scenario {
	t.Helper()
	sc, err := app.Scenarios.Get(id)
	require.NoError(t, err)
	return sc
}

// Pending runs a compliance pass over the session and returns the due
// mandatory actions in priority order.
func (app *TestApp) Pending(t *testing.T, sessionID string) []agent.PendingAction {
	t.Helper()
	state := app.State(t, sessionID)
	return agent.ValidateFSM(app.Scenario(t, state.ScenarioType), state).PendingActions
}

const (
	normalizeMarker = "陆空通话转写助手"
	semanticMarker  = "信息抽取器"
)

// answerParseStages handles the two parse-stage model calls: the deep
// normalisation pass echoes its input back unchanged and semantic
// extraction abstains, so every extracted field comes from the
// deterministic extractors. The second return reports whether the
// request was a parse-stage call.
func answerParseStages(req *llm.Request) (string, bool) {
	if len(req.Messages) == 0 {
		return "", false
	}
	switch system := req.Messages[0].Content; {
	case strings.Contains(system, normalizeMarker):
		return req.Messages[len(req.Messages)-1].Content, true
	case strings.Contains(system, semanticMarker):
		return "[]", true
	}
	return "", false
}

// scriptTurns builds a Responder that answers parse-stage calls
// mechanically and replays the given replies, in order, for reasoning
// calls. An exhausted script returns an error, which the engine turns
// into its deterministic fallback; scripts therefore end with a step
// that yields the turn.
func scriptTurns(replies ...string) func(*llm.Request, int) (string, error) {
	next := 0
	return func(req *llm.Request, _ int) (string, error) {
		if text, ok := answerParseStages(req); ok {
			return text, nil
		}
		if next >= len(replies) {
			return "", errors.New("reasoning script exhausted")
		}
		reply := replies[next]
		next++
		return reply, nil
	}
}

// reactAction renders a scripted tool step in the reply format the
// reasoning node parses.
func reactAction(thought, tool, input string) string {
	return fmt.Sprintf("Thought: %s\nAction: %s\nAction Input: %s", thought, tool, input)
}

// reactFinal renders a scripted closing reply.
func reactFinal(thought, answer string) string {
	return fmt.Sprintf("Thought: %s\nFinal Answer: %s", thought, answer)
}
