// Package agent drives the response graph: parse the controller's message,
// reason with the model in ReAct form, execute tools, validate procedure
// compliance after critical steps, and generate the final report. One
// RunTurn call processes one user message and yields when the session needs
// the controller again or the procedure completes.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/airside-ops/apron/pkg/agent/prompt"
	"github.com/airside-ops/apron/pkg/config"
	"github.com/airside-ops/apron/pkg/events"
	"github.com/airside-ops/apron/pkg/llm"
	"github.com/airside-ops/apron/pkg/models"
	"github.com/airside-ops/apron/pkg/parser"
	"github.com/airside-ops/apron/pkg/playbook"
	"github.com/airside-ops/apron/pkg/scenario"
	"github.com/airside-ops/apron/pkg/tools"
)

// ErrRecursionLimit reports that a turn used up its node execution budget
// without yielding. The session stays resumable.
var ErrRecursionLimit = errors.New("agent: node execution limit reached")

// abortAnswer is stored as the final answer when a turn is cut off.
const abortAnswer = "处置流程中断，请人工介入"

// EmitFunc receives one delta frame per node execution. Implementations
// must not block; the engine calls it synchronously.
type EmitFunc func(*events.NodeUpdate)

// Config carries the engine dependencies. Playbooks may be nil; the
// agent then reasons without disposal-plan reference material.
type Config struct {
	Parser    *parser.Parser
	Tools     *tools.Registry
	Scenarios *scenario.Registry
	LLM       llm.Client
	Playbooks *playbook.Service
	Engine    *config.EngineConfig
	Logger    *slog.Logger
}

// Engine executes the response graph. Stateless across turns; all session
// state lives in models.State.
type Engine struct {
	parser    *parser.Parser
	tools     *tools.Registry
	scenarios *scenario.Registry
	llm       llm.Client
	playbooks *playbook.Service
	prompts   *prompt.Builder
	cfg       *config.EngineConfig
	logger    *slog.Logger

	now func() time.Time
}

// New validates the dependency set and assembles an engine.
func New(cfg Config) (*Engine, error) {
	switch {
	case cfg.Parser == nil:
		return nil, errors.New("agent: parser is required")
	case cfg.Tools == nil:
		return nil, errors.New("agent: tool registry is required")
	case cfg.Scenarios == nil:
		return nil, errors.New("agent: scenario registry is required")
	case cfg.LLM == nil:
		return nil, errors.New("agent: llm client is required")
	}
	engineCfg := cfg.Engine
	if engineCfg == nil {
		engineCfg = config.DefaultEngineConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		parser:    cfg.Parser,
		tools:     cfg.Tools,
		scenarios: cfg.Scenarios,
		llm:       cfg.LLM,
		playbooks: cfg.Playbooks,
		prompts:   prompt.NewBuilder(),
		cfg:       engineCfg,
		logger:    logger.With("component", "agent"),
		now:       time.Now,
	}, nil
}

// RunTurn processes one controller message. It mutates state in place and
// emits a delta frame per node execution; the caller persists the state and
// closes the frame stream afterwards. The returned error is terminal for
// the turn, never for the session.
func (e *Engine) RunTurn(ctx context.Context, state *models.State, message string, emit EmitFunc) error {
	if emit == nil {
		emit = func(*events.NodeUpdate) {}
	}
	state.AwaitingUser = false
	state.NextQuestion = ""

	executions := 0
	node := events.NodeInputParser
	var sc *models.Scenario
	for node != "" {
		if err := ctx.Err(); err != nil {
			state.AwaitingUser = true
			state.ClearIterationScratch()
			return err
		}
		if executions >= e.cfg.RecursionLimit {
			e.logger.Error("Node execution budget exhausted",
				"session_id", state.SessionID,
				"limit", e.cfg.RecursionLimit,
				"fsm_state", state.FSMState)
			state.FinalAnswer = abortAnswer
			state.AwaitingUser = true
			state.ClearIterationScratch()
			return ErrRecursionLimit
		}
		executions++

		switch node {
		case events.NodeInputParser:
			node = e.runInputParser(ctx, state, message, emit)
			var err error
			sc, err = e.scenarios.Get(state.ScenarioType)
			if err != nil {
				state.AwaitingUser = true
				state.ClearIterationScratch()
				return fmt.Errorf("resolve scenario %q: %w", state.ScenarioType, err)
			}
		case events.NodeReasoning:
			node = e.runReasoning(ctx, sc, state, emit)
		case events.NodeToolExecutor:
			node = e.runToolExecutor(ctx, sc, state, emit)
		case events.NodeFSMValidator:
			node = e.runFSMValidator(sc, state, emit)
		case events.NodeOutputGenerator:
			node = e.runOutputGenerator(ctx, sc, state, emit)
		default:
			state.ClearIterationScratch()
			return fmt.Errorf("unknown graph node %q", node)
		}

		if state.AwaitingUser {
			break
		}
	}

	state.ClearIterationScratch()
	return nil
}

// runInputParser folds the message into incident state and reports the
// refreshed checklist and any enrichment the parse produced.
func (e *Engine) runInputParser(ctx context.Context, state *models.State, message string, emit EmitFunc) string {
	e.parser.Parse(ctx, state, message)

	u := events.NewNodeUpdate(events.NodeInputParser, state.SessionID)
	u.FSMState = state.FSMState
	u.Checklist = state.Checklist
	u.SpatialAnalysis = state.SpatialAnalysis
	u.FlightImpactPrediction = state.FlightImpactPrediction
	emit(u)

	return events.NodeReasoning
}
