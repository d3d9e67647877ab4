package e2e

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airside-ops/apron/pkg/llm"
	"github.com/airside-ops/apron/pkg/models"
)

// ────────────────────────────────────────────────────────────
// Scenario 1: fuel spill, engine running, stand 217
// ────────────────────────────────────────────────────────────

func TestE2E_FuelSpillEngineRunning(t *testing.T) {
	client := llm.NewScriptedClient()
	client.Responder = scriptTurns(
		reactAction("P1清单已齐全，先评估风险。", "assess_risk", "{}"),
		reactAction("风险已定级，继续补充次要信息。", "smart_ask", "{}"),
	)
	app := NewTestApp(t, WithLLMClient(client))

	resp := app.Start(t, "东航2392报告紧急情况，右侧发动机燃油持续泄漏，发动机仍在运转，目前在机位217", "")

	assert.Equal(t, models.StatusProcessing, resp.Status)
	assert.Equal(t, "oil_spill", resp.ScenarioType)
	assert.Equal(t, "P2_IMMEDIATE_CONTROL", resp.FSMState)
	assert.Equal(t, "HIGH", resp.RiskLevel)
	assert.NotEmpty(t, resp.NextQuestion)

	state := app.State(t, resp.SessionID)
	assert.Equal(t, "MU2392", state.Incident["flight_no"])
	assert.Equal(t, "东航2392", state.Incident["flight_no_display"])
	assert.Equal(t, "FUEL", state.Incident["fluid_type"])
	assert.Equal(t, true, state.Incident["continuous"])
	assert.Equal(t, "RUNNING", state.Incident["engine_status"])
	assert.Equal(t, "217", state.Incident["position"])
	assert.True(t, state.Checklist["p1_complete"])

	require.NotNil(t, state.RiskAssessment)
	assert.Equal(t, "HIGH", state.RiskAssessment.Level)
	assert.Equal(t, 95, state.RiskAssessment.Score)
	assert.Contains(t, state.RiskAssessment.RulesTriggered, "fuel_continuous_engine_running")

	// The fire call is due and outranks the cleanup obligation.
	pending := app.Pending(t, resp.SessionID)
	require.NotEmpty(t, pending)
	assert.Equal(t, "fire_on_fuel_hazard", pending[0].TriggerID)
	assert.Equal(t, "notify_department", pending[0].Action)
	assert.Equal(t, "fire", pending[0].Params["department"])
	assert.Equal(t, "immediate", pending[0].Params["priority"])
}

// ────────────────────────────────────────────────────────────
// Scenario 2: metal debris on runway 27L
// ────────────────────────────────────────────────────────────

func TestE2E_RunwayFOD(t *testing.T) {
	client := llm.NewScriptedClient()
	client.Responder = scriptTurns(
		reactAction("位置、类型、在位状态已明确，评估风险。", "assess_risk", "{}"),
		reactAction("等级R4，需要补充航班信息。", "ask_user", `{"question":"请提供受影响的航班号。"}`),
	)
	app := NewTestApp(t, WithLLMClient(client))

	resp := app.Start(t, "跑道27L发现螺母，仍在道面，14:30报告，大约3厘米", "")

	assert.Equal(t, "fod", resp.ScenarioType)

	state := app.State(t, resp.SessionID)
	assert.Equal(t, "RUNWAY", state.Incident["location_area"])
	assert.Equal(t, "27L", state.Incident["position"])
	assert.Equal(t, "METAL", state.Incident["fod_type"])
	assert.Equal(t, "ON_SURFACE", state.Incident["presence"])
	assert.Equal(t, "SMALL", state.Incident["fod_size"])
	assert.Equal(t, "14:30", state.Incident["incident_time"])

	require.NotNil(t, state.RiskAssessment)
	assert.Equal(t, "R4", state.RiskAssessment.Level)
	assert.Equal(t, 87, state.RiskAssessment.Score)
	assert.Contains(t, state.RiskAssessment.RulesTriggered, "runway_on_surface_floor")

	pending := app.Pending(t, resp.SessionID)
	require.NotEmpty(t, pending)
	assert.Equal(t, "atc_on_runway_fod", pending[0].TriggerID)
	assert.Equal(t, "atc", pending[0].Params["department"])
	assert.Equal(t, "immediate", pending[0].Params["priority"])
}

// ────────────────────────────────────────────────────────────
// Scenario 3: bird strike on takeoff roll, rejected takeoff
// ────────────────────────────────────────────────────────────

func TestE2E_BirdStrikeRejectedTakeoff(t *testing.T) {
	client := llm.NewScriptedClient()
	client.Responder = scriptTurns(
		reactAction("P1要素完整，立即定级。", "assess_risk", "{}"),
		reactAction("R5事件，等待现场补充。", "ask_user", `{"question":"请报告发动机外观检查结果。"}`),
	)
	app := NewTestApp(t, WithLLMClient(client))

	resp := app.Start(t, "川航3U3177报告起飞滑跑时左发疑似鸟击，有异响和振动，中断起飞，跑道02L，鸟群", "")

	assert.Equal(t, "bird_strike", resp.ScenarioType)

	state := app.State(t, resp.SessionID)
	assert.Equal(t, "3U3177", state.Incident["flight_no"])
	assert.Equal(t, "TAKEOFF_ROLL", state.Incident["phase"])
	assert.Equal(t, "ENGINE", state.Incident["impact_area"])
	assert.Equal(t, "ABNORMAL_NOISE_VIBRATION", state.Incident["evidence"])
	assert.Equal(t, "FLOCK", state.Incident["bird_info"])
	assert.Equal(t, "RTO_OR_RTB", state.Incident["ops_impact"])

	ra := state.RiskAssessment
	require.NotNil(t, ra)
	assert.Equal(t, "R5", ra.Level)
	assert.Equal(t, 95, ra.Score)
	assert.Contains(t, ra.RulesTriggered, "rto_mandatory_floor")
	assert.Contains(t, ra.RulesTriggered, "engine_flock_boost")
	assert.Equal(t, "R4", ra.RiskFloorApplied)

	require.NotNil(t, ra.Guardrails)
	assert.True(t, ra.Guardrails.RequiresHumanApproval)
	assert.Contains(t, ra.Guardrails.ForbiddenActions, "AUTO_RELEASE_TO_DEPARTURE")

	pending := app.Pending(t, resp.SessionID)
	require.NotEmpty(t, pending)
	assert.Equal(t, "atc_on_rto", pending[0].TriggerID)
	assert.Equal(t, "atc", pending[0].Params["department"])
}

// ────────────────────────────────────────────────────────────
// Scenario 4: engine oil seep, engine shut down, leak stopped
// ────────────────────────────────────────────────────────────

func TestE2E_OilSeepEngineOff(t *testing.T) {
	client := llm.NewScriptedClient()
	client.Responder = scriptTurns(
		reactAction("信息完整，评估风险。", "assess_risk", "{}"),
		reactAction("低风险，确认清理安排。", "ask_user", `{"question":"机务预计何时到场清理？"}`),
	)
	app := NewTestApp(t, WithLLMClient(client))

	resp := app.Start(t, "CA1234在502机位发现少量滑油，发动机已关车，已停止滴漏", "")

	assert.Equal(t, "oil_spill", resp.ScenarioType)

	state := app.State(t, resp.SessionID)
	assert.Equal(t, "CA1234", state.Incident["flight_no"])
	assert.Equal(t, "502", state.Incident["position"])
	assert.Equal(t, "OIL", state.Incident["fluid_type"])
	assert.Equal(t, false, state.Incident["continuous"])
	assert.Equal(t, "STOPPED", state.Incident["engine_status"])
	assert.Equal(t, "SMALL", state.Incident["leak_size"])

	require.NotNil(t, state.RiskAssessment)
	assert.Equal(t, "LOW", state.RiskAssessment.Level)
	assert.Equal(t, 20, state.RiskAssessment.Score)
	assert.Contains(t, state.RiskAssessment.RulesTriggered, "oil_stopped_engine_off")

	// Auto-enrichment mapped the stand; a stopped oil seep never reaches
	// a runway.
	require.NotNil(t, state.SpatialAnalysis)
	assert.Empty(t, state.SpatialAnalysis.AffectedRunways)

	for _, p := range app.Pending(t, resp.SessionID) {
		assert.NotEqual(t, "fire", p.Params["department"], "trigger %s", p.TriggerID)
	}
}

// ────────────────────────────────────────────────────────────
// Scenario 5: flight-impact window anchored to the reference flight
// ────────────────────────────────────────────────────────────

func TestE2E_FlightImpactWindow(t *testing.T) {
	client := llm.NewScriptedClient()
	client.Responder = scriptTurns(
		reactAction("先定级。", "assess_risk", "{}"),
		reactAction("高风险燃油泄漏，计算影响区域。", "calculate_impact_zone", "{}"),
		reactAction("区域已定，预测受影响航班。", "predict_flight_impact", "{}"),
		reactAction("等待现场进展。", "ask_user", `{"question":"清理工作是否已经开始？"}`),
	)
	app := NewTestApp(t, WithLLMClient(client))

	resp := app.Start(t, "CES2876在机位501发生燃油泄漏，大量持续泄漏，发动机仍在运转", "")

	assert.Equal(t, "oil_spill", resp.ScenarioType)
	assert.Equal(t, "P3_IMPACT_EVAL", resp.FSMState)

	state := app.State(t, resp.SessionID)
	assert.Equal(t, "LARGE", state.Incident["leak_size"])

	// The flight plan pins CES2876 off stand 501 at 08:35; with a 60
	// minute fuel cleanup plus the fixed padding the window closes at
	// 10:05.
	require.NotNil(t, state.ReferenceFlight)
	assert.Equal(t, "CES2876", state.ReferenceFlight.FlightNo)
	assert.Equal(t, "08:35", state.ReferenceFlight.ReferenceTime.Format("15:04"))

	prediction := state.FlightImpactPrediction
	require.NotNil(t, prediction)
	assert.Equal(t, "08:35", prediction.TimeWindow.Start.Format("15:04"))
	assert.Equal(t, "10:05", prediction.TimeWindow.End.Format("15:04"))

	assert.GreaterOrEqual(t, prediction.Statistics.Total, 1)
	assert.Greater(t, prediction.Statistics.TotalDelayMinutes, 0)

	var flights []string
	for _, f := range prediction.AffectedFlights {
		flights = append(flights, f.FlightNo)
	}
	assert.Contains(t, flights, "CES2876")

	require.NotNil(t, state.SpatialAnalysis)
	assert.NotEmpty(t, state.SpatialAnalysis.AffectedRunways)
}

// ────────────────────────────────────────────────────────────
// Scenario 6: node budget exhaustion and resume
// ────────────────────────────────────────────────────────────

func TestE2E_RecursionBoundAndResume(t *testing.T) {
	client := llm.NewScriptedClient()
	finalize := false
	client.Responder = func(req *llm.Request, _ int) (string, error) {
		if text, ok := answerParseStages(req); ok {
			return text, nil
		}
		if finalize {
			return reactFinal("信息有限，先行收尾。", "已记录事件，保持现场警戒。"), nil
		}
		return reactAction("再核对一次天气。", "get_weather", "{}"), nil
	}
	app := NewTestApp(t, WithLLMClient(client))

	resp := app.Start(t, "机位217发动机滑油滴漏", "oil_spill")

	assert.Equal(t, models.StatusError, resp.Status)
	assert.Equal(t, "处置流程中断，请人工介入", resp.Message)

	state := app.State(t, resp.SessionID)
	assert.True(t, state.AwaitingUser)
	assert.False(t, state.IsComplete)
	assert.Nil(t, state.FinalReport)

	weatherCalls := 0
	for _, a := range state.ActionsTaken {
		if a.Action == "get_weather" {
			weatherCalls++
		}
	}
	assert.Greater(t, weatherCalls, 10, "the loop should have burned the node budget on weather calls")

	// The turn was persisted, so the session resumes normally once the
	// model behaves.
	finalize = true
	resumed := app.Chat(t, resp.SessionID, "收到，请按规程收尾。")
	assert.Equal(t, models.StatusCompleted, resumed.Status)

	state = app.State(t, resp.SessionID)
	assert.True(t, state.IsComplete)
	assert.NotNil(t, state.FinalReport)
}
