package models

import "strings"

// PathValue resolves a dotted state path like "incident.fluid_type",
// "checklist.p1_complete", "mandatory_actions_done.risk_assessed", or
// "risk_assessment.level". The second return reports whether the path is
// known and populated.
func (s *State) PathValue(path string) (any, bool) {
	head, rest, _ := strings.Cut(path, ".")
	switch head {
	case "incident":
		v, ok := s.Incident[rest]
		return v, ok
	case "checklist":
		v, ok := s.Checklist[rest]
		return v, ok
	case "mandatory_actions_done":
		v, ok := s.MandatoryActionsDone[rest]
		return v, ok
	case "risk_assessment":
		if s.RiskAssessment == nil {
			return nil, false
		}
		switch rest {
		case "level":
			return s.RiskAssessment.Level, true
		case "score":
			return s.RiskAssessment.Score, true
		case "risk_floor_applied":
			return s.RiskAssessment.RiskFloorApplied, true
		}
		return nil, false
	case "spatial_analysis":
		if s.SpatialAnalysis == nil {
			return nil, false
		}
		switch rest {
		case "affected_runways":
			return s.SpatialAnalysis.AffectedRunways, true
		case "affected_stands":
			return s.SpatialAnalysis.AffectedStands, true
		case "affected_taxiways":
			return s.SpatialAnalysis.AffectedTaxiways, true
		case "radius_hops":
			return s.SpatialAnalysis.RadiusHops, true
		}
		return nil, false
	case "weather_impact":
		if s.WeatherImpact == nil {
			return nil, false
		}
		switch rest {
		case "total_factor":
			return s.WeatherImpact.TotalFactor, true
		case "wind_speed":
			return s.WeatherImpact.WindImpact.Speed, true
		}
		return nil, false
	case "fsm_state":
		return s.FSMState, true
	case "scenario_type":
		return s.ScenarioType, true
	case "is_complete":
		return s.IsComplete, true
	case "awaiting_user":
		return s.AwaitingUser, true
	case "iteration_count":
		return s.IterationCount, true
	case "notifications_count":
		return len(s.NotificationsSent), true
	}
	return nil, false
}
