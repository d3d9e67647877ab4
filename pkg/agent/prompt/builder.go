// Package prompt assembles the conversations sent to the language model
// during a reasoning pass. The builder composes the scenario system prompt,
// format instructions, tool catalog, state summary, and scratchpad.
// Stateless — all state comes from parameters. Thread-safe — no mutable
// state.
package prompt

import (
	"strings"

	"github.com/airside-ops/apron/pkg/llm"
	"github.com/airside-ops/apron/pkg/models"
	"github.com/airside-ops/apron/pkg/tools"
)

// maxHistoryMessages bounds how much raw conversation is replayed; the
// state summary carries everything older history established.
const maxHistoryMessages = 12

// Builder builds all prompt text for the reasoning node.
type Builder struct{}

// NewBuilder creates a Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// BuildReasoningMessages builds the conversation for one reasoning pass.
// planDoc is the scenario's disposal-plan text, "" when none is available.
func (b *Builder) BuildReasoningMessages(sc *models.Scenario, state *models.State, toolset []*tools.Tool, planDoc string) []llm.Message {
	system := sc.SystemPrompt + "\n\n" + reactFormatInstructions
	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: b.buildUserMessage(sc, state, toolset, planDoc)},
	}
}

// BuildRetryMessages continues the conversation after an unparseable reply:
// the bad reply becomes the assistant turn and the format feedback the next
// user turn.
func (b *Builder) BuildRetryMessages(base []llm.Message, badReply, feedback string) []llm.Message {
	out := make([]llm.Message, 0, len(base)+2)
	out = append(out, base...)
	out = append(out, llm.Message{Role: llm.RoleAssistant, Content: badReply})
	out = append(out, llm.Message{
		Role:    llm.RoleUser,
		Content: retryPreamble + "\n" + feedback + "\n\n" + taskInstruction,
	})
	return out
}

func (b *Builder) buildUserMessage(sc *models.Scenario, state *models.State, toolset []*tools.Tool, planDoc string) string {
	var sb strings.Builder

	sb.WriteString(FormatToolCatalog(toolset))
	sb.WriteString("\n")

	sb.WriteString(FormatStateSummary(sc, state))
	sb.WriteString("\n")

	if p := FormatPlanReference(planDoc); p != "" {
		sb.WriteString(p)
		sb.WriteString("\n")
	}

	if h := FormatHistory(state.Messages, maxHistoryMessages); h != "" {
		sb.WriteString(h)
		sb.WriteString("\n")
	}

	if s := FormatScratchpad(state.ReasoningSteps, state.PendingObservations); s != "" {
		sb.WriteString(s)
		sb.WriteString("\n")
	}

	sb.WriteString(taskInstruction)
	return sb.String()
}
