package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airside-ops/apron/pkg/models"
)

func TestQueryStandLocation(t *testing.T) {
	reg := newTestRegistry(t, nil)
	tool := mustGet(t, reg, "query_stand_location", "oil_spill")

	res := tool.Execute(context.Background(), models.NewState("s", "oil_spill"), map[string]any{"position": "217"})
	require.True(t, res.Success)
	assert.Contains(t, res.Observation, "217 is a stand")
	assert.Contains(t, res.Observation, "[B1]")
}

func TestQueryStandLocationResolvesSpokenPrefix(t *testing.T) {
	reg := newTestRegistry(t, nil)
	tool := mustGet(t, reg, "query_stand_location", "oil_spill")

	res := tool.Execute(context.Background(), models.NewState("s", "oil_spill"), map[string]any{"position": "机位217"})
	require.True(t, res.Success)
	assert.Contains(t, res.Observation, "217 is a stand")
}

func TestQueryStandLocationDefaultsToIncident(t *testing.T) {
	reg := newTestRegistry(t, nil)
	tool := mustGet(t, reg, "query_stand_location", "oil_spill")

	res := tool.Execute(context.Background(), oilState(), nil)
	require.True(t, res.Success)
	assert.Contains(t, res.Observation, "217 is a stand")
}

func TestQueryStandLocationUnknownPosition(t *testing.T) {
	reg := newTestRegistry(t, nil)
	tool := mustGet(t, reg, "query_stand_location", "oil_spill")

	res := tool.Execute(context.Background(), models.NewState("s", "oil_spill"), map[string]any{"position": "999"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Observation, "not on airport topology")

	res = tool.Execute(context.Background(), models.NewState("s2", "oil_spill"), nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Observation, "position unknown")
}

func TestCalculateImpactZoneHighRiskFuel(t *testing.T) {
	reg := newTestRegistry(t, nil)
	tool := mustGet(t, reg, "calculate_impact_zone", "oil_spill")

	state := oilState()
	state.RiskAssessment = &models.RiskAssessment{Level: "HIGH", Score: 95}

	res := tool.Execute(context.Background(), state, nil)
	require.True(t, res.Success, res.Observation)

	require.NotNil(t, state.SpatialAnalysis)
	sa := state.SpatialAnalysis
	assert.Equal(t, 3, sa.RadiusHops)
	assert.Equal(t, []string{"217", "218", "219"}, sa.AffectedStands)
	assert.Equal(t, []string{"A3", "B1", "B2", "B3"}, sa.AffectedTaxiways)
	// FUEL+HIGH forces runway impact; 02L is the nearest runway to 217.
	assert.Equal(t, []string{"02L"}, sa.AffectedRunways)
	assert.Equal(t, []string{"217", "B1"}, sa.IsolatedNodes)

	assert.True(t, state.MandatoryActionsDone["impact_assessed"])
	assert.Contains(t, res.Observation, "impact zone from 217")
	assert.Contains(t, res.Observation, "02L")
}

func TestCalculateImpactZoneMinorLeak(t *testing.T) {
	reg := newTestRegistry(t, nil)
	tool := mustGet(t, reg, "calculate_impact_zone", "oil_spill")

	state := models.NewState("s", "oil_spill")
	state.Incident["position"] = "502"
	state.Incident["fluid_type"] = "OIL"
	state.RiskAssessment = &models.RiskAssessment{Level: "LOW", Score: 20}

	res := tool.Execute(context.Background(), state, nil)
	require.True(t, res.Success, res.Observation)

	require.NotNil(t, state.SpatialAnalysis)
	assert.Equal(t, 1, state.SpatialAnalysis.RadiusHops)
	assert.Equal(t, []string{"502"}, state.SpatialAnalysis.AffectedStands)
	assert.Equal(t, []string{"C1"}, state.SpatialAnalysis.AffectedTaxiways)
	assert.Empty(t, state.SpatialAnalysis.AffectedRunways)
}

func TestCalculateImpactZoneExplicitInputsWin(t *testing.T) {
	reg := newTestRegistry(t, nil)
	tool := mustGet(t, reg, "calculate_impact_zone", "oil_spill")

	state := oilState()
	res := tool.Execute(context.Background(), state, map[string]any{
		"position":   "502",
		"fluid_type": "OIL",
		"risk_level": "LOW",
	})
	require.True(t, res.Success, res.Observation)
	assert.Equal(t, []string{"502"}, state.SpatialAnalysis.AffectedStands)
	assert.Equal(t, 1, state.SpatialAnalysis.RadiusHops)
}

func TestCalculateImpactZoneNoPosition(t *testing.T) {
	reg := newTestRegistry(t, nil)
	tool := mustGet(t, reg, "calculate_impact_zone", "oil_spill")

	res := tool.Execute(context.Background(), models.NewState("s", "oil_spill"), nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Observation, "position unknown")
}

func TestAnalyzePositionImpact(t *testing.T) {
	reg := newTestRegistry(t, nil)
	tool := mustGet(t, reg, "analyze_position_impact", "oil_spill")

	res := tool.Execute(context.Background(), models.NewState("s", "oil_spill"), map[string]any{"position": "217"})
	require.True(t, res.Success)
	assert.Contains(t, res.Observation, "position 217 is a stand")
	assert.Contains(t, res.Observation, "1 adjacent nodes")
	assert.Contains(t, res.Observation, "nearest runway 02L at 4 hops")
	assert.Contains(t, res.Observation, "1 flights planned at this stand today")
}

func TestAnalyzePositionImpactOnRunway(t *testing.T) {
	reg := newTestRegistry(t, nil)
	tool := mustGet(t, reg, "analyze_position_impact", "fod")

	res := tool.Execute(context.Background(), models.NewState("s", "fod"), map[string]any{"position": "27L"})
	require.True(t, res.Success)
	assert.Contains(t, res.Observation, "position 27L is a runway")
	assert.Contains(t, res.Observation, "nearest runway 27L at 0 hops")
	assert.NotContains(t, res.Observation, "planned at this stand")
}

func TestPredictFlightImpact(t *testing.T) {
	reg := newTestRegistry(t, nil)
	tool := mustGet(t, reg, "predict_flight_impact", "oil_spill")

	state := models.NewState("s", "oil_spill")
	state.Incident["position"] = "501"
	state.Incident["fluid_type"] = "FUEL"
	state.Incident["leak_size"] = "LARGE"
	state.Incident["incident_time"] = "08:35"
	state.SpatialAnalysis = &models.SpatialAnalysis{
		AffectedStands:   []string{"501"},
		AffectedTaxiways: []string{"C1"},
		AffectedRunways:  []string{},
		RadiusHops:       1,
	}

	res := tool.Execute(context.Background(), state, nil)
	require.True(t, res.Success, res.Observation)

	require.NotNil(t, state.FlightImpactPrediction)
	fp := state.FlightImpactPrediction
	// FUEL+LARGE on a stand is 60 min base with neutral weather, plus the
	// 30 min window padding.
	assert.Equal(t, "08:35", fp.TimeWindow.Start.Format("15:04"))
	assert.Equal(t, "10:05", fp.TimeWindow.End.Format("15:04"))

	require.Len(t, fp.AffectedFlights, 1)
	assert.Equal(t, "CES2876", fp.AffectedFlights[0].FlightNo)
	assert.Equal(t, "taxiway", fp.AffectedFlights[0].FacilityType)
	assert.Equal(t, 1, fp.Statistics.Total)
	assert.Contains(t, res.Observation, "impact window 08:35-10:05")
	assert.Contains(t, res.Observation, "1 flights affected")
}

func TestPredictFlightImpactRequiresZone(t *testing.T) {
	reg := newTestRegistry(t, nil)
	tool := mustGet(t, reg, "predict_flight_impact", "oil_spill")

	res := tool.Execute(context.Background(), models.NewState("s", "oil_spill"), nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Observation, "run calculate_impact_zone first")
}
