package agent

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airside-ops/apron/pkg/config"
	"github.com/airside-ops/apron/pkg/events"
	"github.com/airside-ops/apron/pkg/llm"
	"github.com/airside-ops/apron/pkg/models"
	"github.com/airside-ops/apron/pkg/parser"
	"github.com/airside-ops/apron/pkg/refdata"
	"github.com/airside-ops/apron/pkg/scenario"
	"github.com/airside-ops/apron/pkg/tools"
	"github.com/airside-ops/apron/pkg/topology"
)

func newTestEngine(t *testing.T, client llm.Client, engCfg *config.EngineConfig) *Engine {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	scenarios, err := scenario.LoadDefault()
	require.NoError(t, err)
	graph, err := topology.LoadDefault(logger)
	require.NoError(t, err)
	ref, err := refdata.LoadDefault()
	require.NoError(t, err)
	reg, err := tools.NewRegistry(tools.Deps{
		Scenarios: scenarios,
		Graph:     graph,
		Ref:       ref,
		Logger:    logger,
	})
	require.NoError(t, err)

	eng, err := New(Config{
		Parser:    parser.New(scenarios, graph, ref, nil, engCfg, logger),
		Tools:     reg,
		Scenarios: scenarios,
		LLM:       client,
		Engine:    engCfg,
		Logger:    logger,
	})
	require.NoError(t, err)
	return eng
}

// collectFrames returns an EmitFunc that appends every frame to the given
// slice.
func collectFrames(frames *[]*events.NodeUpdate) EmitFunc {
	return func(u *events.NodeUpdate) { *frames = append(*frames, u) }
}

func frameNodes(frames []*events.NodeUpdate) []string {
	nodes := make([]string, len(frames))
	for i, f := range frames {
		nodes[i] = f.Node
	}
	return nodes
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parser is required")
}

func TestRunTurnYieldsOnQuestion(t *testing.T) {
	client := llm.NewScriptedClient(
		"Thought: 缺少航班号等必填信息，需要追问。\nAction: smart_ask\nAction Input: {}",
	)
	eng := newTestEngine(t, client, nil)
	state := models.NewState("s-ask", "")

	var frames []*events.NodeUpdate
	err := eng.RunTurn(context.Background(), state, "塔台，217机位有飞机漏油", collectFrames(&frames))
	require.NoError(t, err)

	assert.Equal(t, []string{
		events.NodeInputParser,
		events.NodeReasoning,
		events.NodeToolExecutor,
	}, frameNodes(frames))

	sc := loadScenario(t, "oil_spill")
	assert.Equal(t, "oil_spill", state.ScenarioType)
	assert.True(t, state.AwaitingUser)
	assert.False(t, state.IsComplete)
	assert.Equal(t, sc.AskPromptFor("flight_no"), state.NextQuestion)
	assert.Equal(t, 1, state.IterationCount)
	assert.Equal(t, 1, client.CallCount())

	// Scratch is wiped when the turn yields.
	assert.Empty(t, state.CurrentAction)
	assert.Empty(t, state.CurrentObservation)

	assert.Equal(t, "smart_ask", frames[1].CurrentAction)
	assert.Equal(t, state.NextQuestion, frames[2].NextQuestion)
}

func TestRunTurnCompletesProcedure(t *testing.T) {
	client := llm.NewScriptedClient(
		"Thought: 必填信息已齐备，先进行风险评估。\nAction: assess_risk\nAction Input: {}",
		"Thought: 风险可控，处置到此结束。Final Answer: 已完成风险评估，等级较低，安排例行清理即可。",
	)
	eng := newTestEngine(t, client, nil)

	state := models.NewState("s-low", "oil_spill")
	state.Incident["flight_no"] = "MU2392"
	state.Incident["position"] = "217"
	state.Incident["fluid_type"] = "OIL"
	state.Incident["continuous"] = false
	state.Incident["engine_status"] = "STOPPED"

	var frames []*events.NodeUpdate
	err := eng.RunTurn(context.Background(), state, "补充情况已核实。", collectFrames(&frames))
	require.NoError(t, err)

	assert.Equal(t, []string{
		events.NodeInputParser,
		events.NodeReasoning,
		events.NodeToolExecutor,
		events.NodeFSMValidator,
		events.NodeReasoning,
		events.NodeOutputGenerator,
	}, frameNodes(frames))

	require.NotNil(t, state.RiskAssessment)
	assert.Equal(t, "LOW", state.RiskAssessment.Level)
	assert.Equal(t, 20, state.RiskAssessment.Score)

	assert.Equal(t, "P2_IMMEDIATE_CONTROL", state.FSMState)
	assert.True(t, state.IsComplete)
	assert.True(t, state.AwaitingUser)
	require.NotNil(t, state.FinalReport)
	// Materialised by the output generator, not the report tool.
	assert.False(t, state.MandatoryActionsDone["report_generated"])

	assert.Contains(t, state.FinalAnswer, "已完成风险评估")
	assert.Contains(t, state.FinalAnswer, "处置流程已完成。")
	assert.Equal(t, 2, client.CallCount())

	// The compliance pass queued the cleanup obligation for the model.
	fsmFrame := frames[3]
	assert.Equal(t, "P2_IMMEDIATE_CONTROL", fsmFrame.FSMState)
	assert.Contains(t, fsmFrame.CurrentObservation, "mandatory action pending: notify_department")
	assert.Contains(t, fsmFrame.CurrentObservation, "maintenance")

	// And the next prompt carried it.
	calls := client.Calls()
	require.Len(t, calls, 2)
	secondPrompt := calls[1].Messages[len(calls[1].Messages)-1].Content
	assert.Contains(t, secondPrompt, "mandatory action pending")
}

func TestRunTurnRecursionLimit(t *testing.T) {
	client := llm.NewScriptedClient()
	client.Responder = func(*llm.Request, int) (string, error) {
		return "Thought: 继续查询机位信息。\nAction: query_stand_location\nAction Input: {\"position\": \"217\"}", nil
	}
	engCfg := config.DefaultEngineConfig()
	engCfg.RecursionLimit = 6
	eng := newTestEngine(t, client, engCfg)

	state := models.NewState("s-loop", "oil_spill")
	state.Incident["position"] = "217"

	var frames []*events.NodeUpdate
	err := eng.RunTurn(context.Background(), state, "217机位情况复杂。", collectFrames(&frames))
	require.ErrorIs(t, err, ErrRecursionLimit)

	assert.Len(t, frames, 6)
	assert.Equal(t, "处置流程中断，请人工介入", state.FinalAnswer)
	assert.True(t, state.AwaitingUser)
	assert.False(t, state.IsComplete)
	assert.Nil(t, state.FinalReport)
	assert.Empty(t, state.CurrentAction)
	assert.Empty(t, state.PendingObservations)
}

func TestRunTurnFallbackAfterUnparseableReplies(t *testing.T) {
	client := llm.NewScriptedClient(
		"大概需要先看看情况吧。",
		"我也不确定下一步该做什么。",
	)
	eng := newTestEngine(t, client, nil)
	state := models.NewState("s-fallback", "")

	var frames []*events.NodeUpdate
	err := eng.RunTurn(context.Background(), state, "塔台，有飞机漏油", collectFrames(&frames))
	require.NoError(t, err)

	assert.Equal(t, []string{
		events.NodeInputParser,
		events.NodeReasoning,
		events.NodeToolExecutor,
	}, frameNodes(frames))

	// Retry carried the format feedback as a conversation continuation.
	require.Equal(t, 2, client.CallCount())
	calls := client.Calls()
	assert.Len(t, calls[0].Messages, 2)
	require.Len(t, calls[1].Messages, 4)
	assert.Equal(t, llm.RoleAssistant, calls[1].Messages[2].Role)
	assert.Contains(t, calls[1].Messages[3].Content, "不符合要求的推理格式")

	// Deterministic fallback asked for the first missing required field.
	sc := loadScenario(t, "oil_spill")
	assert.True(t, state.AwaitingUser)
	assert.Equal(t, sc.AskPromptFor("flight_no"), state.NextQuestion)

	warned := false
	for _, m := range state.Messages {
		if m.Role == models.RoleSystem && strings.Contains(m.Content, "unparseable after retry") {
			warned = true
		}
	}
	assert.True(t, warned, "expected a reasoning warning message")
}

func TestRunTurnCompletedSessionShortCircuits(t *testing.T) {
	client := llm.NewScriptedClient()
	eng := newTestEngine(t, client, nil)

	state := models.NewState("s-done", "oil_spill")
	state.Incident["flight_no"] = "MU2392"
	state.Incident["position"] = "217"
	state.Incident["fluid_type"] = "OIL"
	state.Incident["continuous"] = false
	state.Incident["engine_status"] = "STOPPED"
	state.Checklist["p1_complete"] = true
	state.MandatoryActionsDone["risk_assessed"] = true
	state.MandatoryActionsDone["impact_assessed"] = true
	state.MandatoryActionsDone["report_generated"] = true
	state.IsComplete = true
	state.FinalReport = &models.FinalReport{SessionID: "s-done", ScenarioType: "oil_spill"}

	var frames []*events.NodeUpdate
	err := eng.RunTurn(context.Background(), state, "收到，谢谢。", collectFrames(&frames))
	require.NoError(t, err)

	assert.Equal(t, []string{
		events.NodeInputParser,
		events.NodeReasoning,
		events.NodeOutputGenerator,
	}, frameNodes(frames))

	// No model calls; the completed session replays its closing state.
	assert.Equal(t, 0, client.CallCount())
	assert.Equal(t, models.FSMStateCompleted, state.FSMState)
	assert.True(t, state.IsComplete)
	assert.Contains(t, state.FinalAnswer, "处置流程已完成。")
}

func TestRunTurnUnknownToolBecomesObservation(t *testing.T) {
	client := llm.NewScriptedClient(
		"Thought: 调用一个不存在的工具。\nAction: fly_away\nAction Input: {}",
		"Thought: 工具不可用，改为向报告人追问。\nAction: smart_ask\nAction Input: {}",
	)
	eng := newTestEngine(t, client, nil)
	state := models.NewState("s-unknown", "oil_spill")

	var frames []*events.NodeUpdate
	err := eng.RunTurn(context.Background(), state, "217机位有漏油。", collectFrames(&frames))
	require.NoError(t, err)

	assert.Equal(t, []string{
		events.NodeInputParser,
		events.NodeReasoning,
		events.NodeToolExecutor,
		events.NodeReasoning,
		events.NodeToolExecutor,
	}, frameNodes(frames))

	require.NotEmpty(t, state.ActionsTaken)
	failed := state.ActionsTaken[0]
	assert.Equal(t, "fly_away", failed.Action)
	assert.False(t, failed.Success)
	assert.Contains(t, failed.Observation, "不存在或当前场景不可用")
	assert.Contains(t, failed.Observation, "assess_risk")

	// The observation is attached to the step that chose the action.
	require.NotEmpty(t, state.ReasoningSteps)
	assert.Equal(t, failed.Observation, state.ReasoningSteps[0].Observation)
	assert.True(t, state.AwaitingUser)
}
