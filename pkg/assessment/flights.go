package assessment

import (
	"sort"
	"time"

	"github.com/airside-ops/apron/pkg/models"
	"github.com/airside-ops/apron/pkg/rules"
)

// windowPaddingMinutes extends the impact window past the cleanup estimate.
const windowPaddingMinutes = 30

// Severity buckets by delay minutes.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// delayMinutes is keyed by facility type then risk rank (1..5).
var delayMinutes = map[string][5]int{
	"stand":   {10, 15, 20, 30, 45},
	"taxiway": {15, 20, 30, 45, 60},
	"runway":  {20, 30, 45, 60, 90},
}

// DelayFor returns the deterministic delay for a facility type and risk
// level. Unknown levels rate as rank 1.
func DelayFor(facilityType, level string) int {
	row, ok := delayMinutes[facilityType]
	if !ok {
		row = delayMinutes["stand"]
	}
	rank := rules.Rank(level)
	if rank < 1 {
		rank = 1
	}
	if rank > 5 {
		rank = 5
	}
	return row[rank-1]
}

// SeverityFor buckets delay minutes: high >= 60, medium 20..59, low < 20.
func SeverityFor(delay int) string {
	switch {
	case delay >= 60:
		return SeverityHigh
	case delay >= 20:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// ResolveReferenceTime picks the anchor for the impact window in priority
// order: reference flight, incident time, caller-provided now.
func ResolveReferenceTime(state *models.State, now time.Time) time.Time {
	if state.ReferenceFlight != nil && !state.ReferenceFlight.ReferenceTime.IsZero() {
		return state.ReferenceFlight.ReferenceTime
	}
	if raw := state.IncidentString("incident_time"); raw != "" {
		for _, layout := range []string{time.RFC3339, "15:04", "2006-01-02 15:04"} {
			if ts, err := time.Parse(layout, raw); err == nil {
				if layout == "15:04" {
					// Clock-only reports inherit the date of "now".
					ts = time.Date(now.Year(), now.Month(), now.Day(),
						ts.Hour(), ts.Minute(), 0, 0, now.Location())
				}
				return ts
			}
		}
	}
	return now
}

// PredictFlightImpact selects flights inside the dynamic window whose
// facilities intersect the spatial impact set and assigns deterministic
// delays.
func PredictFlightImpact(
	plan []models.FlightPlanEntry,
	spatial *models.SpatialAnalysis,
	ref time.Time,
	cleanupMinutes int,
	riskLevel string,
) *models.FlightImpactPrediction {
	window := models.TimeWindow{
		Start: ref,
		End:   ref.Add(time.Duration(cleanupMinutes+windowPaddingMinutes) * time.Minute),
	}

	prediction := &models.FlightImpactPrediction{
		TimeWindow:      window,
		AffectedFlights: []models.AffectedFlight{},
		Statistics: models.ImpactStatistics{
			SeverityDistribution: map[string]int{
				SeverityHigh: 0, SeverityMedium: 0, SeverityLow: 0,
			},
		},
	}
	if spatial == nil {
		return prediction
	}

	stands := toSet(spatial.AffectedStands)
	taxiways := toSet(spatial.AffectedTaxiways)
	runways := toSet(spatial.AffectedRunways)

	for _, f := range plan {
		if f.ScheduledTime.Before(window.Start) || f.ScheduledTime.After(window.End) {
			continue
		}
		facility, facilityType := intersectFacility(f, stands, taxiways, runways)
		if facility == "" {
			continue
		}
		delay := DelayFor(facilityType, riskLevel)
		prediction.AffectedFlights = append(prediction.AffectedFlights, models.AffectedFlight{
			FlightNo:      f.FlightNo,
			ScheduledTime: f.ScheduledTime,
			Facility:      facility,
			FacilityType:  facilityType,
			DelayMinutes:  delay,
			Severity:      SeverityFor(delay),
		})
	}

	sort.SliceStable(prediction.AffectedFlights, func(i, j int) bool {
		a, b := prediction.AffectedFlights[i], prediction.AffectedFlights[j]
		if !a.ScheduledTime.Equal(b.ScheduledTime) {
			return a.ScheduledTime.Before(b.ScheduledTime)
		}
		return a.FlightNo < b.FlightNo
	})

	for _, af := range prediction.AffectedFlights {
		prediction.Statistics.Total++
		prediction.Statistics.TotalDelayMinutes += af.DelayMinutes
		prediction.Statistics.SeverityDistribution[af.Severity]++
	}
	return prediction
}

// intersectFacility returns the most constraining facility the flight shares
// with the impact zone: runway beats taxiway beats stand.
func intersectFacility(f models.FlightPlanEntry, stands, taxiways, runways map[string]bool) (string, string) {
	if f.Runway != "" && runways[f.Runway] {
		return f.Runway, "runway"
	}
	if f.Taxiway != "" && taxiways[f.Taxiway] {
		return f.Taxiway, "taxiway"
	}
	if f.Stand != "" && stands[f.Stand] {
		return f.Stand, "stand"
	}
	return "", ""
}

func toSet(list []string) map[string]bool {
	set := make(map[string]bool, len(list))
	for _, v := range list {
		set[v] = true
	}
	return set
}
