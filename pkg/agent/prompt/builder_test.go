package prompt

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airside-ops/apron/pkg/llm"
	"github.com/airside-ops/apron/pkg/models"
	"github.com/airside-ops/apron/pkg/refdata"
	"github.com/airside-ops/apron/pkg/scenario"
	"github.com/airside-ops/apron/pkg/tools"
	"github.com/airside-ops/apron/pkg/topology"
)

func newTestToolset(t *testing.T) []*tools.Tool {
	t.Helper()
	scenarios, err := scenario.LoadDefault()
	require.NoError(t, err)
	graph, err := topology.LoadDefault(nil)
	require.NoError(t, err)
	ref, err := refdata.LoadDefault()
	require.NoError(t, err)
	reg, err := tools.NewRegistry(tools.Deps{
		Scenarios: scenarios,
		Graph:     graph,
		Ref:       ref,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return reg.ForScenario("oil_spill")
}

func newOilScenario(t *testing.T) *models.Scenario {
	t.Helper()
	scenarios, err := scenario.LoadDefault()
	require.NoError(t, err)
	sc, err := scenarios.Get("oil_spill")
	require.NoError(t, err)
	return sc
}

func newOilState() *models.State {
	state := models.NewState("sess-1", "oil_spill")
	state.Incident["flight_no"] = "MU2392"
	state.Incident["position"] = "217"
	state.Checklist["flight_no"] = true
	state.Checklist["position"] = true
	return state
}

func TestBuildReasoningMessages(t *testing.T) {
	b := NewBuilder()
	messages := b.BuildReasoningMessages(newOilScenario(t), newOilState(), newTestToolset(t), "")

	require.Len(t, messages, 2)
	assert.Equal(t, llm.RoleSystem, messages[0].Role)
	assert.Equal(t, llm.RoleUser, messages[1].Role)
}

func TestBuildReasoningMessagesSystemContent(t *testing.T) {
	b := NewBuilder()
	messages := b.BuildReasoningMessages(newOilScenario(t), newOilState(), newTestToolset(t), "")
	system := messages[0].Content

	assert.Contains(t, system, "机坪油液泄漏应急处置助手")
	assert.Contains(t, system, "REQUIRED FORMAT")
	assert.Contains(t, system, "Thought:")
	assert.Contains(t, system, "Action Input:")
	assert.Contains(t, system, "Final Answer:")
}

func TestBuildReasoningMessagesUserContent(t *testing.T) {
	b := NewBuilder()
	messages := b.BuildReasoningMessages(newOilScenario(t), newOilState(), newTestToolset(t), "")
	user := messages[1].Content

	assert.Contains(t, user, "可用工具")
	assert.Contains(t, user, "assess_risk")
	assert.Contains(t, user, "当前事件状态")
	assert.Contains(t, user, "信息清单")
	assert.Contains(t, user, "你的任务")
}

func TestBuildReasoningMessagesIncludesPlanReference(t *testing.T) {
	b := NewBuilder()
	plan := "# 油液泄漏处置预案\n\n1. 隔离泄漏区域\n2. 通知消防到场"

	messages := b.BuildReasoningMessages(newOilScenario(t), newOilState(), newTestToolset(t), plan)
	user := messages[1].Content

	assert.Contains(t, user, "处置预案参考")
	assert.Contains(t, user, "隔离泄漏区域")

	// Without a document the section is omitted entirely.
	messages = b.BuildReasoningMessages(newOilScenario(t), newOilState(), newTestToolset(t), "")
	assert.NotContains(t, messages[1].Content, "处置预案参考")
}

func TestBuildReasoningMessagesIncludesHistoryAndScratchpad(t *testing.T) {
	state := newOilState()
	state.AppendMessage(models.RoleUser, "217机位有飞机漏油")
	state.AppendReasoningStep(models.ReasoningStep{
		Thought:     "需要确认油液类型",
		Action:      "ask_user",
		ActionInput: map[string]any{"question": "请确认泄漏的油液类型"},
		Observation: "已向报告人提问",
	})
	state.PendingObservations = []string{"mandatory action pending: notify_department({\"department\":\"fire\"})"}

	b := NewBuilder()
	messages := b.BuildReasoningMessages(newOilScenario(t), state, newTestToolset(t), "")
	user := messages[1].Content

	assert.Contains(t, user, "对话记录")
	assert.Contains(t, user, "报告人：217机位有飞机漏油")
	assert.Contains(t, user, "此前的推理过程")
	assert.Contains(t, user, "Thought: 需要确认油液类型")
	assert.Contains(t, user, "Action: ask_user")
	assert.Contains(t, user, "Observation: mandatory action pending")
}

func TestBuildRetryMessages(t *testing.T) {
	b := NewBuilder()
	base := b.BuildReasoningMessages(newOilScenario(t), newOilState(), newTestToolset(t), "")

	out := b.BuildRetryMessages(base, "我觉得应该先评估风险。", "缺少 Action 或 Final Answer。")
	require.Len(t, out, 4)
	assert.Equal(t, llm.RoleAssistant, out[2].Role)
	assert.Equal(t, "我觉得应该先评估风险。", out[2].Content)
	assert.Equal(t, llm.RoleUser, out[3].Role)
	assert.Contains(t, out[3].Content, "不符合要求的推理格式")
	assert.Contains(t, out[3].Content, "缺少 Action 或 Final Answer。")
	assert.Contains(t, out[3].Content, "你的任务")

	// The base conversation is not mutated.
	require.Len(t, base, 2)
}
