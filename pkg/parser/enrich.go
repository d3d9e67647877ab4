package parser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/airside-ops/apron/pkg/assessment"
	"github.com/airside-ops/apron/pkg/models"
	"github.com/airside-ops/apron/pkg/topology"
)

// enrichedPrefix marks the system message summarising an enrichment pass.
const enrichedPrefix = "[enriched] "

// enrichOutcome collects phase-1 lookup results. Each task writes only its
// own fields, so the fan-out needs no locking.
type enrichOutcome struct {
	refFlight *models.ReferenceFlight
	plan      []models.FlightPlanEntry
	nodeID    string
	nodeType  topology.NodeType
	standWarn string
}

// enrich runs the two-phase auto-enrichment. Phase 1 fans out the
// independent lookups; phase 2 derives the impact structures and only runs
// when its prerequisites resolved. Failures never abort the turn.
func (p *Parser) enrich(ctx context.Context, state *models.State) {
	if p.ref == nil && p.graph == nil {
		return
	}
	now := p.now()

	var out enrichOutcome
	g := new(errgroup.Group)
	workers := p.cfg.MaxEnrichmentWorkers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)

	flightNo := state.IncidentString("flight_no")
	position := state.IncidentString("position")

	if p.ref != nil && flightNo != "" {
		g.Go(p.bounded(ctx, func(lctx context.Context) {
			if lctx.Err() != nil {
				return
			}
			if f, ok := p.ref.FlightPlan.Find(flightNo, now); ok {
				out.refFlight = &models.ReferenceFlight{
					FlightNo:      f.FlightNo,
					ReferenceTime: f.ScheduledTime,
				}
			}
		}))
	}
	if p.ref != nil {
		g.Go(p.bounded(ctx, func(lctx context.Context) {
			if lctx.Err() != nil {
				return
			}
			out.plan = p.ref.FlightPlan.Entries(now)
		}))
	}
	if p.graph != nil && position != "" {
		g.Go(p.bounded(ctx, func(lctx context.Context) {
			if lctx.Err() != nil {
				return
			}
			id, ok := p.graph.ResolveNodeID(position)
			if !ok {
				out.standWarn = fmt.Sprintf("position %q not on airport topology", position)
				return
			}
			node, _ := p.graph.Node(id)
			out.nodeID, out.nodeType = id, node.Type
		}))
	}
	_ = g.Wait() // tasks report through their outcome slots, never as errors

	if out.refFlight != nil {
		state.ReferenceFlight = out.refFlight
	}
	if out.plan != nil {
		state.FlightPlanTable = out.plan
	}
	if out.standWarn != "" {
		state.AppendWarning("enrich.stand_location", out.standWarn)
	}

	if out.nodeID != "" {
		p.enrichImpact(ctx, state, &out, now)
	}

	if record := enrichmentRecord(state, &out); record != "" {
		state.AppendMessage(models.RoleSystem, record)
	}
}

// bounded wraps a lookup with the per-future enrichment timeout. Lookups
// signal failure through their outcome slot; returning an error would
// cancel the sibling futures.
func (p *Parser) bounded(ctx context.Context, fn func(context.Context)) func() error {
	return func() error {
		lctx := ctx
		if p.cfg.EnrichmentTimeout > 0 {
			var cancel context.CancelFunc
			lctx, cancel = context.WithTimeout(ctx, p.cfg.EnrichmentTimeout)
			defer cancel()
		}
		fn(lctx)
		return nil
	}
}

// enrichImpact is phase 2: weather impact, diffusion over the topology from
// the resolved node, and the flight-impact prediction derived from both.
func (p *Parser) enrichImpact(ctx context.Context, state *models.State, out *enrichOutcome, now time.Time) {
	if err := ctx.Err(); err != nil {
		state.AppendWarning("enrich.impact_zone", shortReason(err))
		return
	}

	var wind *topology.Wind
	if p.ref != nil {
		if obs, ok := p.ref.Weather.Current(); ok {
			state.WeatherImpact = assessment.ComputeWeatherImpact(assessment.Observation{
				WindSpeedMS:   obs.WindSpeedMS,
				WindDirection: obs.WindDirection,
				TemperatureC:  obs.TemperatureC,
				VisibilityKM:  obs.VisibilityKM,
			})
			wind = &topology.Wind{SpeedMS: obs.WindSpeedMS, Direction: obs.WindDirection}
		}
	}

	fluid := state.IncidentString("fluid_type")
	level := ""
	if state.RiskAssessment != nil {
		level = state.RiskAssessment.Level
	}
	state.SpatialAnalysis = p.graph.ImpactZone(out.nodeID, p.propagation.Rule(fluid, level), wind)

	cleanup := assessment.EstimateCleanup(
		fluid,
		state.IncidentString("leak_size"),
		string(out.nodeType),
		assessment.WindFactorOf(state.WeatherImpact),
		assessment.TemperatureFactorOf(state.WeatherImpact),
		assessment.VisibilityFactorOf(state.WeatherImpact),
	)
	ref := assessment.ResolveReferenceTime(state, now)
	state.FlightImpactPrediction = assessment.PredictFlightImpact(
		state.FlightPlanTable, state.SpatialAnalysis, ref, cleanup.AdjustedTimeMinutes, level)
}

// enrichmentRecord summarises what this enrichment pass populated.
func enrichmentRecord(state *models.State, out *enrichOutcome) string {
	var parts []string
	if out.refFlight != nil {
		parts = append(parts, fmt.Sprintf("flight=%s@%s",
			out.refFlight.FlightNo, out.refFlight.ReferenceTime.Format("15:04")))
	}
	if out.plan != nil {
		parts = append(parts, fmt.Sprintf("plan_rows=%d", len(out.plan)))
	}
	if out.nodeID != "" {
		parts = append(parts, fmt.Sprintf("node=%s(%s)", out.nodeID, out.nodeType))
	}
	if state.SpatialAnalysis != nil && out.nodeID != "" {
		parts = append(parts, fmt.Sprintf("spatial stands=%d taxiways=%d runways=%d",
			len(state.SpatialAnalysis.AffectedStands),
			len(state.SpatialAnalysis.AffectedTaxiways),
			len(state.SpatialAnalysis.AffectedRunways)))
	}
	if state.FlightImpactPrediction != nil && out.nodeID != "" {
		parts = append(parts, fmt.Sprintf("impacted_flights=%d", state.FlightImpactPrediction.Statistics.Total))
	}
	if len(parts) == 0 {
		return ""
	}
	return enrichedPrefix + strings.Join(parts, " ")
}
