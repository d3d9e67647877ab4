package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airside-ops/apron/pkg/models"
	"github.com/airside-ops/apron/pkg/scenario"
)

func loadScenario(t *testing.T, id string) *models.Scenario {
	t.Helper()
	reg, err := scenario.LoadDefault()
	require.NoError(t, err)
	sc, err := reg.Get(id)
	require.NoError(t, err)
	return sc
}

func TestValidateFSMInfersForward(t *testing.T) {
	sc := loadScenario(t, "oil_spill")
	state := models.NewState("s-fsm", "oil_spill")

	res := ValidateFSM(sc, state)
	assert.True(t, res.IsValid)
	assert.Equal(t, "INIT", res.CurrentState)
	assert.Equal(t, "P1_INFO_COLLECT", res.InferredState)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.PendingActions)

	state.FSMState = res.InferredState
	state.Checklist["p1_complete"] = true
	res = ValidateFSM(sc, state)
	assert.True(t, res.IsValid)
	assert.Equal(t, "P1_RISK_ASSESS", res.InferredState)

	state.FSMState = res.InferredState
	state.MandatoryActionsDone["risk_assessed"] = true
	res = ValidateFSM(sc, state)
	assert.True(t, res.IsValid)
	assert.Equal(t, "P2_IMMEDIATE_CONTROL", res.InferredState)
}

func TestValidateFSMInfersAcrossMultiplePhases(t *testing.T) {
	sc := loadScenario(t, "oil_spill")
	state := models.NewState("s-fsm", "oil_spill")
	state.FSMState = "P2_IMMEDIATE_CONTROL"
	state.Checklist["p1_complete"] = true
	state.MandatoryActionsDone["risk_assessed"] = true
	state.MandatoryActionsDone["impact_assessed"] = true
	state.MandatoryActionsDone["report_generated"] = true
	state.MandatoryActionsDone["fire_dept_notified"] = true
	state.MandatoryActionsDone["maintenance_notified"] = true
	state.IsComplete = true

	res := ValidateFSM(sc, state)
	assert.True(t, res.IsValid)
	assert.Equal(t, models.FSMStateCompleted, res.InferredState)
	assert.Empty(t, res.PendingActions)
}

func TestValidateFSMOutOfBandState(t *testing.T) {
	sc := loadScenario(t, "oil_spill")
	state := models.NewState("s-fsm", "oil_spill")
	state.FSMState = "P2_IMMEDIATE_CONTROL"

	res := ValidateFSM(sc, state)
	assert.False(t, res.IsValid)
	require.Len(t, res.Errors, 1)
	assert.Equal(t,
		"entering P2_IMMEDIATE_CONTROL requires mandatory_actions_done.risk_assessed=true",
		res.Errors[0])
	assert.Equal(t, "P2_IMMEDIATE_CONTROL", res.InferredState)
}

func TestValidateFSMUnknownState(t *testing.T) {
	sc := loadScenario(t, "oil_spill")
	state := models.NewState("s-fsm", "oil_spill")
	state.FSMState = "P9_UNKNOWN"

	res := ValidateFSM(sc, state)
	assert.False(t, res.IsValid)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "unknown response phase")
	assert.Equal(t, "P9_UNKNOWN", res.InferredState)
}

func TestPendingTriggersDeduplicated(t *testing.T) {
	sc := loadScenario(t, "oil_spill")
	state := models.NewState("s-fsm", "oil_spill")
	state.Incident["fluid_type"] = "FUEL"
	state.Incident["continuous"] = true
	state.RiskAssessment = &models.RiskAssessment{Level: "HIGH", Score: 95}

	// Both fire triggers hold, demanding the same call; one obligation.
	res := ValidateFSM(sc, state)
	require.Len(t, res.PendingActions, 1)
	p := res.PendingActions[0]
	assert.Equal(t, "fire_on_fuel_hazard", p.TriggerID)
	assert.Equal(t, "notify_department", p.Action)
	assert.Equal(t, "fire", p.Params["department"])
	assert.Equal(t, "immediate", p.Params["priority"])

	state.MandatoryActionsDone["fire_dept_notified"] = true
	res = ValidateFSM(sc, state)
	assert.Empty(t, res.PendingActions)
}

func TestPendingTriggersPriorityOrder(t *testing.T) {
	sc := loadScenario(t, "oil_spill")
	state := models.NewState("s-fsm", "oil_spill")
	state.RiskAssessment = &models.RiskAssessment{Level: "CRITICAL", Score: 99}
	state.MandatoryActionsDone["risk_assessed"] = true
	state.SpatialAnalysis = &models.SpatialAnalysis{AffectedRunways: []string{"02L"}}

	res := ValidateFSM(sc, state)
	ids := make([]string, 0, len(res.PendingActions))
	for _, p := range res.PendingActions {
		ids = append(ids, p.TriggerID)
	}
	assert.Equal(t, []string{"fire_on_high_risk", "cleanup_after_assessment", "atc_on_runway_impact"}, ids)
}

func TestPreconditionErrorMembership(t *testing.T) {
	p := &models.Precondition{Path: "risk_assessment.level", In: []any{"HIGH", "CRITICAL"}}
	assert.Equal(t,
		"entering P2_IMMEDIATE_CONTROL requires risk_assessment.level in [HIGH, CRITICAL]",
		preconditionError("P2_IMMEDIATE_CONTROL", p))
}

func TestPendingObservationFormat(t *testing.T) {
	p := PendingAction{
		TriggerID: "fire_on_high_risk",
		Action:    "notify_department",
		Params:    map[string]any{"department": "fire", "priority": "immediate"},
	}
	assert.Equal(t,
		`mandatory action pending: notify_department({"department":"fire","priority":"immediate"})`,
		pendingObservation(p))

	assert.Equal(t, "mandatory action pending: assess_risk({})",
		pendingObservation(PendingAction{Action: "assess_risk"}))
}
