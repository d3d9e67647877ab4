package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/airside-ops/apron/pkg/assessment"
	"github.com/airside-ops/apron/pkg/models"
	"github.com/airside-ops/apron/pkg/topology"
)

// nearestRunwaySearchHops bounds the outward search of
// analyze_position_impact.
const nearestRunwaySearchHops = 6

// resolvePosition maps an explicit or incident position onto a graph node.
func (b *builder) resolvePosition(state *models.State, explicit string) (topology.Node, error) {
	if b.deps.Graph == nil {
		return topology.Node{}, errors.New("airport topology not available")
	}
	pos := explicit
	if pos == "" {
		pos = state.IncidentString("position")
	}
	if pos == "" {
		return topology.Node{}, errors.New("position unknown: provide position or report it first")
	}
	id, ok := b.deps.Graph.ResolveNodeID(pos)
	if !ok {
		return topology.Node{}, fmt.Errorf("position %q not on airport topology", pos)
	}
	node, _ := b.deps.Graph.Node(id)
	return node, nil
}

// ensureWeather lazily computes the weather impact from the latest
// observation. Reports whether any weather impact is on the state after the
// call.
func (b *builder) ensureWeather(state *models.State) bool {
	if state.WeatherImpact != nil {
		return true
	}
	if b.deps.Ref == nil || b.deps.Ref.Weather == nil {
		return false
	}
	obs, ok := b.deps.Ref.Weather.Current()
	if !ok {
		return false
	}
	state.WeatherImpact = assessment.ComputeWeatherImpact(assessment.Observation{
		WindSpeedMS:   obs.WindSpeedMS,
		WindDirection: obs.WindDirection,
		TemperatureC:  obs.TemperatureC,
		VisibilityKM:  obs.VisibilityKM,
	})
	return true
}

func windOf(state *models.State) *topology.Wind {
	if state.WeatherImpact == nil {
		return nil
	}
	return &topology.Wind{
		SpeedMS:   state.WeatherImpact.WindImpact.Speed,
		Direction: state.WeatherImpact.WindImpact.Direction,
	}
}

const queryStandLocationSchema = `{
  "type": "object",
  "properties": {
    "position": {"type": "string", "minLength": 1, "maxLength": 20}
  },
  "additionalProperties": false
}`

// queryStandLocation locates a reported position on the airport surface.
func (b *builder) queryStandLocation() *Tool {
	return &Tool{
		Name:        "query_stand_location",
		Description: "定位机位/滑行道/跑道在场面图上的位置及相邻节点。缺省使用事件位置。",
		Scenarios:   []string{"common"},
		BareKey:     "position",
		schemaRaw:   queryStandLocationSchema,
		run: func(ctx context.Context, state *models.State, input map[string]any) Result {
			node, err := b.resolvePosition(state, inputString(input, "position"))
			if err != nil {
				return failure("%s", err)
			}
			return success("%s is a %s at (%.4f, %.4f); adjacent nodes: %v",
				node.ID, node.Type, node.Lat, node.Lon, b.deps.Graph.Neighbors(node.ID))
		},
	}
}

const calculateImpactZoneSchema = `{
  "type": "object",
  "properties": {
    "position":   {"type": "string", "minLength": 1, "maxLength": 20},
    "fluid_type": {"type": "string", "enum": ["FUEL", "HYDRAULIC", "OIL"]},
    "risk_level": {"type": "string", "minLength": 1, "maxLength": 20}
  },
  "additionalProperties": false
}`

// calculateImpactZone runs the bounded diffusion and records the spatial
// analysis. Critical: the compliance validator runs right after it.
func (b *builder) calculateImpactZone() *Tool {
	return &Tool{
		Name:        "calculate_impact_zone",
		Description: "计算事件影响区域：受影响机位、滑行道、跑道。缺省使用事件位置、泄漏介质与当前风险等级。",
		Scenarios:   []string{"common"},
		Critical:    true,
		BareKey:     "position",
		schemaRaw:   calculateImpactZoneSchema,
		run: func(ctx context.Context, state *models.State, input map[string]any) Result {
			obs, err := b.zoneCore(state,
				inputString(input, "position"),
				inputString(input, "fluid_type"),
				inputString(input, "risk_level"))
			if err != nil {
				return failure("%s", err)
			}
			return success("%s", obs)
		},
	}
}

// zoneCore is the shared body of calculate_impact_zone and the
// comprehensive analysis. It overwrites spatial_analysis and marks
// impact_assessed.
func (b *builder) zoneCore(state *models.State, position, fluid, level string) (string, error) {
	node, err := b.resolvePosition(state, position)
	if err != nil {
		return "", err
	}
	if fluid == "" {
		fluid = state.IncidentString("fluid_type")
	}
	if level == "" && state.RiskAssessment != nil {
		level = state.RiskAssessment.Level
	}
	b.ensureWeather(state)

	rule := b.deps.Propagation.Rule(fluid, level)
	analysis := b.deps.Graph.ImpactZone(node.ID, rule, windOf(state))
	state.SpatialAnalysis = analysis
	state.MandatoryActionsDone["impact_assessed"] = true

	return fmt.Sprintf("impact zone from %s (radius %d hops): stands %v, taxiways %v, runways %v",
		node.ID, analysis.RadiusHops,
		analysis.AffectedStands, analysis.AffectedTaxiways, analysis.AffectedRunways), nil
}

const analyzePositionImpactSchema = `{
  "type": "object",
  "properties": {
    "position": {"type": "string", "minLength": 1, "maxLength": 20}
  },
  "additionalProperties": false
}`

// analyzePositionImpact characterises a position: node class, connectivity,
// distance to the nearest runway, and planned traffic at the stand.
func (b *builder) analyzePositionImpact() *Tool {
	return &Tool{
		Name:        "analyze_position_impact",
		Description: "分析位置的运行影响：节点类型、连通度、最近跑道距离、该机位今日计划航班。",
		Scenarios:   []string{"common"},
		BareKey:     "position",
		schemaRaw:   analyzePositionImpactSchema,
		run: func(ctx context.Context, state *models.State, input map[string]any) Result {
			node, err := b.resolvePosition(state, inputString(input, "position"))
			if err != nil {
				return failure("%s", err)
			}
			obs := fmt.Sprintf("position %s is a %s with %d adjacent nodes",
				node.ID, node.Type, len(b.deps.Graph.Neighbors(node.ID)))

			if runway, hops := b.nearestRunway(node); runway != "" {
				obs += fmt.Sprintf("; nearest runway %s at %d hops", runway, hops)
			} else {
				obs += fmt.Sprintf("; no runway within %d hops", nearestRunwaySearchHops)
			}
			if node.Type == topology.NodeStand && b.deps.Ref != nil {
				flights := b.deps.Ref.FlightPlan.AtStand(node.ID, b.deps.Now())
				obs += fmt.Sprintf("; %d flights planned at this stand today", len(flights))
			}
			return success("%s", obs)
		},
	}
}

// nearestRunway searches outward for the closest runway node, ties broken
// lexicographically.
func (b *builder) nearestRunway(from topology.Node) (string, int) {
	if from.Type == topology.NodeRunway {
		return from.ID, 0
	}
	depth := b.deps.Graph.BFS(from.ID, nearestRunwaySearchHops, nil)
	best, bestHops := "", -1
	for id, d := range depth {
		node, ok := b.deps.Graph.Node(id)
		if !ok || node.Type != topology.NodeRunway {
			continue
		}
		if bestHops == -1 || d < bestHops || (d == bestHops && id < best) {
			best, bestHops = id, d
		}
	}
	return best, bestHops
}

// predictFlightImpact projects the spatial impact onto the daily flight
// plan inside the dynamic time window.
func (b *builder) predictFlightImpact() *Tool {
	return &Tool{
		Name:        "predict_flight_impact",
		Description: "预测受影响航班：基于影响区域、清理时长与基准时刻筛选时间窗内的航班并给出延误。",
		Scenarios:   []string{"common"},
		run: func(ctx context.Context, state *models.State, input map[string]any) Result {
			obs, err := b.predictCore(state)
			if err != nil {
				return failure("%s", err)
			}
			return success("%s", obs)
		},
	}
}

// predictCore is the shared body of predict_flight_impact and the
// comprehensive analysis.
func (b *builder) predictCore(state *models.State) (string, error) {
	if state.SpatialAnalysis == nil {
		return "", errors.New("no spatial analysis yet: run calculate_impact_zone first")
	}
	if b.deps.Ref == nil {
		return "", errors.New("flight plan data not available")
	}
	now := b.deps.Now()
	if len(state.FlightPlanTable) == 0 {
		state.FlightPlanTable = b.deps.Ref.FlightPlan.Entries(now)
	}
	ref := assessment.ResolveReferenceTime(state, now)
	est := b.cleanupEstimate(state, "", "", "")
	level := ""
	if state.RiskAssessment != nil {
		level = state.RiskAssessment.Level
	}

	prediction := assessment.PredictFlightImpact(
		state.FlightPlanTable, state.SpatialAnalysis, ref, est.AdjustedTimeMinutes, level)
	state.FlightImpactPrediction = prediction

	stats := prediction.Statistics
	return fmt.Sprintf("impact window %s-%s: %d flights affected, total delay %d min (high %d, medium %d, low %d)",
		prediction.TimeWindow.Start.Format("15:04"), prediction.TimeWindow.End.Format("15:04"),
		stats.Total, stats.TotalDelayMinutes,
		stats.SeverityDistribution[assessment.SeverityHigh],
		stats.SeverityDistribution[assessment.SeverityMedium],
		stats.SeverityDistribution[assessment.SeverityLow]), nil
}
