package assessment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airside-ops/apron/pkg/models"
)

var cst = time.FixedZone("CST", 8*3600)

func planEntryAt(no string, hour, minute int, stand, taxiway, runway string) models.FlightPlanEntry {
	return models.FlightPlanEntry{
		FlightNo:      no,
		ScheduledTime: time.Date(2025, 3, 15, hour, minute, 0, 0, cst),
		Movement:      "DEPARTURE",
		Stand:         stand,
		Taxiway:       taxiway,
		Runway:        runway,
	}
}

func TestResolveReferenceTime(t *testing.T) {
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, cst)

	t.Run("reference flight wins", func(t *testing.T) {
		state := models.NewState("s1", "oil_spill")
		state.ReferenceFlight = &models.ReferenceFlight{
			FlightNo:      "CES2876",
			ReferenceTime: time.Date(2025, 3, 15, 8, 35, 0, 0, cst),
		}
		state.Incident["incident_time"] = "09:00"
		got := ResolveReferenceTime(state, now)
		assert.Equal(t, 8, got.Hour())
		assert.Equal(t, 35, got.Minute())
	})

	t.Run("clock-only incident time inherits today", func(t *testing.T) {
		state := models.NewState("s1", "oil_spill")
		state.Incident["incident_time"] = "14:30"
		got := ResolveReferenceTime(state, now)
		assert.Equal(t, now.Day(), got.Day())
		assert.Equal(t, 14, got.Hour())
		assert.Equal(t, 30, got.Minute())
	})

	t.Run("fallback to now", func(t *testing.T) {
		state := models.NewState("s1", "oil_spill")
		assert.Equal(t, now, ResolveReferenceTime(state, now))
	})
}

func TestPredictFlightImpact(t *testing.T) {
	ref := time.Date(2025, 3, 15, 8, 35, 0, 0, cst)
	plan := []models.FlightPlanEntry{
		planEntryAt("CES2876", 8, 35, "501", "C1", "27L"),
		planEntryAt("MF8632", 9, 40, "503", "C2", "27L"),
		planEntryAt("CES5401", 10, 20, "501", "C1", "27L"), // past window end 10:05
		planEntryAt("CSN3302", 6, 55, "218", "B1", "02L"),  // before window
		planEntryAt("CZ6543", 8, 50, "102", "A1", "27L"),   // no facility overlap
	}
	spatial := &models.SpatialAnalysis{
		AffectedStands:   []string{"501", "502"},
		AffectedTaxiways: []string{"C1", "C2"},
		AffectedRunways:  []string{},
	}

	got := PredictFlightImpact(plan, spatial, ref, 60, "HIGH")

	assert.Equal(t, ref, got.TimeWindow.Start)
	assert.Equal(t, ref.Add(90*time.Minute), got.TimeWindow.End)

	require.Len(t, got.AffectedFlights, 2)
	assert.Equal(t, "CES2876", got.AffectedFlights[0].FlightNo)
	assert.Equal(t, "MF8632", got.AffectedFlights[1].FlightNo)

	// Stand overlap for CES2876, taxiway overlap for MF8632; HIGH ranks 4.
	assert.Equal(t, "stand", got.AffectedFlights[0].FacilityType)
	assert.Equal(t, 30, got.AffectedFlights[0].DelayMinutes)
	assert.Equal(t, "taxiway", got.AffectedFlights[1].FacilityType)
	assert.Equal(t, 45, got.AffectedFlights[1].DelayMinutes)

	assert.Equal(t, 2, got.Statistics.Total)
	assert.Equal(t, 75, got.Statistics.TotalDelayMinutes)
	assert.Equal(t, 2, got.Statistics.SeverityDistribution[SeverityMedium])
	assert.Greater(t, got.Statistics.TotalDelayMinutes, 0)
}

func TestPredictFlightImpactFacilityPrecedence(t *testing.T) {
	ref := time.Date(2025, 3, 15, 9, 0, 0, 0, cst)
	plan := []models.FlightPlanEntry{planEntryAt("MU2392", 9, 10, "217", "B1", "02L")}
	spatial := &models.SpatialAnalysis{
		AffectedStands:   []string{"217"},
		AffectedTaxiways: []string{"B1"},
		AffectedRunways:  []string{"02L"},
	}

	got := PredictFlightImpact(plan, spatial, ref, 30, "CRITICAL")
	require.Len(t, got.AffectedFlights, 1)
	// Runway beats taxiway beats stand; CRITICAL ranks 5.
	assert.Equal(t, "runway", got.AffectedFlights[0].FacilityType)
	assert.Equal(t, 90, got.AffectedFlights[0].DelayMinutes)
	assert.Equal(t, SeverityHigh, got.AffectedFlights[0].Severity)
}

func TestPredictFlightImpactNilSpatial(t *testing.T) {
	got := PredictFlightImpact(nil, nil, time.Now(), 60, "LOW")
	assert.Empty(t, got.AffectedFlights)
	assert.Equal(t, 0, got.Statistics.Total)
}

func TestSeverityFor(t *testing.T) {
	assert.Equal(t, SeverityLow, SeverityFor(19))
	assert.Equal(t, SeverityMedium, SeverityFor(20))
	assert.Equal(t, SeverityMedium, SeverityFor(59))
	assert.Equal(t, SeverityHigh, SeverityFor(60))
}

func TestDelayFor(t *testing.T) {
	assert.Equal(t, 10, DelayFor("stand", "LOW"))
	assert.Equal(t, 30, DelayFor("stand", "HIGH"))
	assert.Equal(t, 90, DelayFor("runway", "R5"))
	assert.Equal(t, 10, DelayFor("elsewhere", "bogus"), "unknowns rate minimal")
}
