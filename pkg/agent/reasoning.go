package agent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/airside-ops/apron/pkg/events"
	"github.com/airside-ops/apron/pkg/llm"
	"github.com/airside-ops/apron/pkg/models"
)

// reasoningTemperature keeps the decision head near-deterministic.
const reasoningTemperature = 0.1

// runReasoning asks the model for the next step in ReAct form. A malformed
// reply gets one retry carrying format feedback; a second failure falls
// back to a deterministic rule so the turn always makes progress.
func (e *Engine) runReasoning(ctx context.Context, sc *models.Scenario, state *models.State, emit EmitFunc) string {
	if state.IsComplete {
		u := events.NewNodeUpdate(events.NodeReasoning, state.SessionID)
		u.IsComplete = true
		emit(u)
		return events.NodeOutputGenerator
	}

	toolset := e.tools.ForScenario(sc.ID)
	planDoc := e.playbooks.ForScenario(ctx, sc.ID)
	base := e.prompts.BuildReasoningMessages(sc, state, toolset, planDoc)
	// The prompt consumed the queued observations.
	state.PendingObservations = nil

	p := e.decideNext(ctx, sc, state, base)
	state.IterationCount++

	if p.IsFinal {
		state.CurrentThought = p.Thought
		state.IsComplete = true
		state.FinalAnswer = p.FinalAnswer
		if p.Thought != "" {
			state.AppendReasoningStep(models.ReasoningStep{Thought: p.Thought})
		}
		u := events.NewNodeUpdate(events.NodeReasoning, state.SessionID)
		u.CurrentThought = p.Thought
		u.IsComplete = true
		u.FinalAnswer = p.FinalAnswer
		emit(u)
		return events.NodeOutputGenerator
	}

	state.CurrentThought = p.Thought
	state.CurrentAction = p.Action
	state.CurrentActionInput = decodeActionInput(p.ActionInput)
	step := models.ReasoningStep{
		Thought:     p.Thought,
		Action:      state.CurrentAction,
		ActionInput: state.CurrentActionInput,
	}
	state.AppendReasoningStep(step)

	u := events.NewNodeUpdate(events.NodeReasoning, state.SessionID)
	u.CurrentThought = state.CurrentThought
	u.CurrentAction = state.CurrentAction
	u.CurrentActionInput = state.CurrentActionInput
	u.ReasoningSteps = []models.ReasoningStep{step}
	emit(u)
	return events.NodeToolExecutor
}

// decideNext runs the prompt, at most one feedback retry, and the
// deterministic fallback. The returned reply always carries either an
// action or a final answer.
func (e *Engine) decideNext(ctx context.Context, sc *models.Scenario, state *models.State, base []llm.Message) *parsedReply {
	reply, err := e.generate(ctx, base)
	if err != nil {
		state.AppendWarning("reasoning", shortReason(err))
		e.logger.Warn("Model call failed, using deterministic fallback",
			"session_id", state.SessionID, "error", err)
		return e.fallbackReply(sc, state)
	}

	p := parseReply(reply)
	if !p.Malformed {
		return p
	}

	e.logger.Warn("Unparseable model reply, retrying with format feedback",
		"session_id", state.SessionID, "iteration", state.IterationCount)
	retry := e.prompts.BuildRetryMessages(base, reply, replyFeedback(p))
	reply, err = e.generate(ctx, retry)
	if err != nil {
		state.AppendWarning("reasoning", shortReason(err))
		return e.fallbackReply(sc, state)
	}

	p = parseReply(reply)
	if !p.Malformed {
		return p
	}

	state.AppendWarning("reasoning", "model reply unparseable after retry")
	e.logger.Warn("Model reply unparseable after retry, using deterministic fallback",
		"session_id", state.SessionID)
	return e.fallbackReply(sc, state)
}

func (e *Engine) generate(ctx context.Context, messages []llm.Message) (string, error) {
	resp, err := e.llm.Generate(ctx, &llm.Request{
		Messages:    messages,
		Temperature: reasoningTemperature,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (e *Engine) fallbackReply(sc *models.Scenario, state *models.State) *parsedReply {
	action, input := fallbackAction(sc, state)
	raw, _ := json.Marshal(input)
	return &parsedReply{
		Thought:     "模型回复无法解析，按处置规程确定下一步。",
		HasAction:   true,
		Action:      action,
		ActionInput: string(raw),
	}
}

// fallbackAction picks the next procedural step without the model: ask for
// the first missing required field, discharge the highest-priority pending
// obligation, generate the report once the risk work is done, or ask the
// controller how to proceed.
func fallbackAction(sc *models.Scenario, state *models.State) (string, map[string]any) {
	for _, key := range sc.RequiredP1Keys() {
		if !state.Checklist[key] {
			return "smart_ask", map[string]any{"question": sc.AskPromptFor(key)}
		}
	}
	if pending := pendingTriggers(sc, state); len(pending) > 0 {
		first := pending[0]
		input := make(map[string]any, len(first.Params))
		for k, v := range first.Params {
			input[k] = v
		}
		return first.Action, input
	}
	if state.MandatoryActionsDone["risk_assessed"] && !state.MandatoryActionsDone["report_generated"] {
		return "generate_report", map[string]any{}
	}
	return "smart_ask", map[string]any{"question": "请提供当前处置的最新进展，或说明需要补充的信息。"}
}

func shortReason(err error) string {
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	const maxLen = 160
	if len(msg) > maxLen {
		msg = msg[:maxLen] + "..."
	}
	return msg
}
