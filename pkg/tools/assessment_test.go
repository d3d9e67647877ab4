package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airside-ops/apron/pkg/llm"
	"github.com/airside-ops/apron/pkg/models"
)

func TestAssessRiskOilSpill(t *testing.T) {
	reg := newTestRegistry(t, nil)
	tool := mustGet(t, reg, "assess_risk", "oil_spill")
	state := oilState()

	res := tool.Execute(context.Background(), state, nil)
	require.True(t, res.Success, res.Observation)

	require.NotNil(t, state.RiskAssessment)
	assert.Equal(t, "HIGH", state.RiskAssessment.Level)
	assert.Equal(t, 95, state.RiskAssessment.Score)
	assert.Equal(t, []string{"fuel_continuous_engine_running"}, state.RiskAssessment.RulesTriggered)
	assert.True(t, state.MandatoryActionsDone["risk_assessed"])
	assert.Contains(t, res.Observation, "HIGH (score 95)")
}

func TestAssessRiskRefusesIncompleteChecklist(t *testing.T) {
	reg := newTestRegistry(t, nil)
	tool := mustGet(t, reg, "assess_risk", "oil_spill")

	state := oilState()
	state.Checklist["fluid_type"] = false
	state.Checklist["p1_complete"] = false

	res := tool.Execute(context.Background(), state, nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Observation, "cannot assess risk")
	assert.Contains(t, res.Observation, "fluid_type")
	assert.Nil(t, state.RiskAssessment)
	assert.False(t, state.MandatoryActionsDone["risk_assessed"])
}

func TestAssessRiskBirdStrikeWeighted(t *testing.T) {
	reg := newTestRegistry(t, nil)
	tool := mustGet(t, reg, "assess_risk", "bird_strike")
	state := birdState()

	res := tool.Execute(context.Background(), state, nil)
	require.True(t, res.Success, res.Observation)

	ra := state.RiskAssessment
	require.NotNil(t, ra)
	assert.Equal(t, "R5", ra.Level)
	assert.Equal(t, 95, ra.Score)
	assert.Equal(t, "R4", ra.RiskFloorApplied)
	assert.Contains(t, ra.RulesTriggered, "rto_mandatory_floor")
	assert.Contains(t, ra.RulesTriggered, "engine_flock_boost")
	assert.Contains(t, ra.ImmediateActions, "NOTIFY_ATC_IMMEDIATE")
	require.NotNil(t, ra.Guardrails)
	assert.True(t, ra.Guardrails.RequiresHumanApproval)
	assert.Contains(t, res.Observation, "requires human approval")
}

func TestAssessRiskOverwritesPreviousResult(t *testing.T) {
	reg := newTestRegistry(t, nil)
	tool := mustGet(t, reg, "assess_risk", "oil_spill")

	state := oilState()
	require.True(t, tool.Execute(context.Background(), state, nil).Success)
	first := state.RiskAssessment

	state.Incident["continuous"] = false
	state.Incident["engine_status"] = "STOPPED"
	require.True(t, tool.Execute(context.Background(), state, nil).Success)

	assert.NotSame(t, first, state.RiskAssessment)
	assert.Equal(t, "MEDIUM_HIGH", state.RiskAssessment.Level)
	assert.Equal(t, []string{"fuel_any"}, state.RiskAssessment.RulesTriggered)
}

func TestEstimateCleanupTime(t *testing.T) {
	reg := newTestRegistry(t, nil)
	tool := mustGet(t, reg, "estimate_cleanup_time", "oil_spill")

	state := oilState()
	state.Incident["leak_size"] = "LARGE"

	res := tool.Execute(context.Background(), state, nil)
	require.True(t, res.Success)
	assert.Contains(t, res.Observation, "FUEL LARGE on stand")
	assert.Contains(t, res.Observation, "base 60 min, adjusted 60 min")

	res = tool.Execute(context.Background(), state, map[string]any{
		"fluid_type": "HYDRAULIC",
		"leak_size":  "SMALL",
		"facility":   "runway",
	})
	require.True(t, res.Success)
	assert.Contains(t, res.Observation, "HYDRAULIC SMALL on runway")
	assert.Contains(t, res.Observation, "base 50 min")
}

func TestAssessWeatherImpact(t *testing.T) {
	reg := newTestRegistry(t, nil)
	tool := mustGet(t, reg, "assess_weather_impact", "oil_spill")
	state := models.NewState("s", "oil_spill")

	res := tool.Execute(context.Background(), state, nil)
	require.True(t, res.Success)
	assert.Contains(t, res.Observation, "wind 4.2 m/s from 210°")
	assert.Contains(t, res.Observation, "total factor 1.00")
	require.NotNil(t, state.WeatherImpact)
}

func TestComprehensiveAnalysis(t *testing.T) {
	reg := newTestRegistry(t, nil)
	tool := mustGet(t, reg, "comprehensive_analysis", "oil_spill")
	state := oilState()

	res := tool.Execute(context.Background(), state, nil)
	require.True(t, res.Success, res.Observation)

	require.NotNil(t, state.RiskAssessment)
	assert.Equal(t, "HIGH", state.RiskAssessment.Level)
	require.NotNil(t, state.SpatialAnalysis)
	assert.Equal(t, []string{"02L"}, state.SpatialAnalysis.AffectedRunways)
	require.NotNil(t, state.FlightImpactPrediction)
	assert.True(t, state.MandatoryActionsDone["risk_assessed"])
	assert.True(t, state.MandatoryActionsDone["impact_assessed"])

	assert.Contains(t, res.Observation, "risk: ")
	assert.Contains(t, res.Observation, "spatial: ")
	assert.Contains(t, res.Observation, "flights: ")
}

func TestComprehensiveAnalysisWithoutPosition(t *testing.T) {
	reg := newTestRegistry(t, nil)
	tool := mustGet(t, reg, "comprehensive_analysis", "bird_strike")

	state := birdState()
	delete(state.Incident, "position")

	res := tool.Execute(context.Background(), state, nil)
	require.True(t, res.Success, res.Observation)
	assert.NotNil(t, state.RiskAssessment)
	assert.Nil(t, state.SpatialAnalysis)
	assert.Contains(t, res.Observation, "spatial: skipped")
}

func TestComprehensiveAnalysisRequiresChecklist(t *testing.T) {
	reg := newTestRegistry(t, nil)
	tool := mustGet(t, reg, "comprehensive_analysis", "oil_spill")

	state := oilState()
	state.Checklist["p1_complete"] = false
	state.Checklist["engine_status"] = false

	res := tool.Execute(context.Background(), state, nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Observation, "cannot assess risk")
	assert.Nil(t, state.SpatialAnalysis)
}

func TestCrossValidateAgrees(t *testing.T) {
	client := llm.NewScriptedClient(`{"level": "HIGH", "rationale": "评定恰当"}`)
	reg := newTestRegistry(t, client)
	tool := mustGet(t, reg, "cross_validate_risk", "oil_spill")

	state := oilState()
	state.RiskAssessment = &models.RiskAssessment{Level: "HIGH", Score: 95, RulesTriggered: []string{"fuel_continuous_engine_running"}}

	res := tool.Execute(context.Background(), state, nil)
	require.True(t, res.Success, res.Observation)
	assert.Contains(t, res.Observation, "agrees: HIGH")
	assert.Equal(t, "HIGH", state.RiskAssessment.Level)
	assert.NotContains(t, state.RiskAssessment.RulesTriggered, "cross_validation")
}

func TestCrossValidateAdoptsStricterLevel(t *testing.T) {
	client := llm.NewScriptedClient(`{"level": "CRITICAL", "rationale": "持续燃油泄漏且发动机运转"}`)
	reg := newTestRegistry(t, client)
	tool := mustGet(t, reg, "cross_validate_risk", "oil_spill")

	state := oilState()
	state.RiskAssessment = &models.RiskAssessment{Level: "HIGH", Score: 95, Rationale: "rule match"}

	res := tool.Execute(context.Background(), state, nil)
	require.True(t, res.Success, res.Observation)
	assert.Contains(t, res.Observation, "adopting stricter level CRITICAL")
	assert.Equal(t, "CRITICAL", state.RiskAssessment.Level)
	assert.Equal(t, 95, state.RiskAssessment.Score)
	assert.Contains(t, state.RiskAssessment.RulesTriggered, "cross_validation")
	assert.Contains(t, state.RiskAssessment.Rationale, "cross-validation:")
}

func TestCrossValidateKeepsStricterCurrent(t *testing.T) {
	client := llm.NewScriptedClient(`{"level": "LOW", "rationale": "影响有限"}`)
	reg := newTestRegistry(t, client)
	tool := mustGet(t, reg, "cross_validate_risk", "oil_spill")

	state := oilState()
	state.RiskAssessment = &models.RiskAssessment{Level: "HIGH", Score: 95}

	res := tool.Execute(context.Background(), state, nil)
	require.True(t, res.Success, res.Observation)
	assert.Contains(t, res.Observation, "keeping stricter HIGH")
	assert.Equal(t, "HIGH", state.RiskAssessment.Level)
	assert.NotContains(t, state.RiskAssessment.RulesTriggered, "cross_validation")
}

func TestCrossValidateFencedReply(t *testing.T) {
	client := llm.NewScriptedClient("```json\n{\"level\": \"HIGH\", \"rationale\": \"ok\"}\n```")
	reg := newTestRegistry(t, client)
	tool := mustGet(t, reg, "cross_validate_risk", "oil_spill")

	state := oilState()
	state.RiskAssessment = &models.RiskAssessment{Level: "HIGH", Score: 95}

	res := tool.Execute(context.Background(), state, nil)
	require.True(t, res.Success, res.Observation)
	assert.Contains(t, res.Observation, "agrees")
}

func TestCrossValidateRequiresAssessment(t *testing.T) {
	client := llm.NewScriptedClient()
	reg := newTestRegistry(t, client)
	tool := mustGet(t, reg, "cross_validate_risk", "oil_spill")

	res := tool.Execute(context.Background(), oilState(), nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Observation, "run assess_risk first")
	assert.Zero(t, client.CallCount())
}

func TestCrossValidateUnusableReply(t *testing.T) {
	state := oilState()
	state.RiskAssessment = &models.RiskAssessment{Level: "HIGH", Score: 95}

	client := llm.NewScriptedClient("完全同意这个评定。")
	reg := newTestRegistry(t, client)
	tool := mustGet(t, reg, "cross_validate_risk", "oil_spill")

	res := tool.Execute(context.Background(), state, nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Observation, "reply unusable")
	assert.Equal(t, "HIGH", state.RiskAssessment.Level)
}

func TestCrossValidateUnknownLevel(t *testing.T) {
	state := oilState()
	state.RiskAssessment = &models.RiskAssessment{Level: "HIGH", Score: 95}

	client := llm.NewScriptedClient(`{"level": "EXTREME", "rationale": "x"}`)
	reg := newTestRegistry(t, client)
	tool := mustGet(t, reg, "cross_validate_risk", "oil_spill")

	res := tool.Execute(context.Background(), state, nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Observation, "unknown level")
	assert.Equal(t, "HIGH", state.RiskAssessment.Level)
}

func TestCrossValidateLLMFailure(t *testing.T) {
	state := oilState()
	state.RiskAssessment = &models.RiskAssessment{Level: "HIGH", Score: 95}

	client := llm.NewScriptedClient() // exhausted immediately
	reg := newTestRegistry(t, client)
	tool := mustGet(t, reg, "cross_validate_risk", "oil_spill")

	res := tool.Execute(context.Background(), state, nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Observation, "cross-validation unavailable")
}
