package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/airside-ops/apron/pkg/events"
	"github.com/airside-ops/apron/pkg/models"
	"github.com/airside-ops/apron/pkg/tools"
)

// runToolExecutor consumes the scratch action and executes it. An unknown
// or invisible tool becomes a failed observation naming the available
// tools, so the model can self-correct on the next reasoning pass.
func (e *Engine) runToolExecutor(ctx context.Context, sc *models.Scenario, state *models.State, emit EmitFunc) string {
	action := state.CurrentAction
	input := state.CurrentActionInput
	state.CurrentAction = ""
	state.CurrentActionInput = nil

	var res tools.Result
	critical := false
	tool, err := e.tools.Get(action, sc.ID)
	if err != nil {
		res = tools.Result{
			Observation: fmt.Sprintf("工具 %s 不存在或当前场景不可用。可用工具：%s",
				action, strings.Join(e.toolNames(sc.ID), "、")),
		}
		e.logger.Warn("Unknown tool requested",
			"session_id", state.SessionID, "tool", action, "error", err)
	} else {
		critical = tool.Critical
		res = tool.Execute(ctx, state, input)
	}

	rec := models.ActionRecord{
		Action:      action,
		Timestamp:   e.now().UTC(),
		Inputs:      input,
		Observation: res.Observation,
		Success:     res.Success,
	}
	state.AppendAction(rec)
	state.CurrentObservation = res.Observation

	// Fill in the observation on the reasoning step that chose this action.
	if n := len(state.ReasoningSteps); n > 0 && state.ReasoningSteps[n-1].Action == action {
		state.ReasoningSteps[n-1].Observation = res.Observation
	}

	e.logger.Info("Tool executed",
		"session_id", state.SessionID,
		"tool", action,
		"success", res.Success,
		"critical", critical)

	u := events.NewNodeUpdate(events.NodeToolExecutor, state.SessionID)
	u.CurrentObservation = res.Observation
	u.ToolCalls = []models.ActionRecord{rec}
	u.Checklist = state.Checklist
	u.RiskAssessment = state.RiskAssessment
	u.SpatialAnalysis = state.SpatialAnalysis
	u.FlightImpactPrediction = state.FlightImpactPrediction
	u.NextQuestion = state.NextQuestion
	emit(u)

	if critical {
		return events.NodeFSMValidator
	}
	return events.NodeReasoning
}

func (e *Engine) toolNames(scenarioID string) []string {
	toolset := e.tools.ForScenario(scenarioID)
	names := make([]string, len(toolset))
	for i, t := range toolset {
		names[i] = t.Name
	}
	return names
}
