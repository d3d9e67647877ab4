package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/airside-ops/apron/pkg/config"
	"github.com/airside-ops/apron/pkg/llm"
	"github.com/airside-ops/apron/pkg/models"
	"github.com/airside-ops/apron/pkg/refdata"
	"github.com/airside-ops/apron/pkg/scenario"
	"github.com/airside-ops/apron/pkg/topology"
)

// triggerFields are the incident keys whose change re-runs auto-enrichment.
var triggerFields = []string{"flight_no", "flight_no_display", "position"}

// Parser converts controller messages into incident state. It never fails a
// turn: every recoverable sub-step failure becomes a system-message warning.
type Parser struct {
	registry    *scenario.Registry
	graph       *topology.Graph
	ref         *refdata.Store
	llm         llm.Client
	cfg         *config.EngineConfig
	norm        *Normalizer
	propagation topology.PropagationTable
	logger      *slog.Logger

	now func() time.Time
}

// New assembles a parser. client may be nil, which disables the deep
// normalisation and semantic extraction passes; graph and ref may be nil,
// which disables enrichment.
func New(reg *scenario.Registry, graph *topology.Graph, ref *refdata.Store, client llm.Client, cfg *config.EngineConfig, logger *slog.Logger) *Parser {
	if cfg == nil {
		cfg = config.DefaultEngineConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "parser")
	return &Parser{
		registry:    reg,
		graph:       graph,
		ref:         ref,
		llm:         client,
		cfg:         cfg,
		norm:        NewNormalizer(client, cfg.NormalizeTimeout, logger),
		propagation: topology.DefaultPropagationTable(),
		logger:      logger,
		now:         time.Now,
	}
}

// Parse updates state from one user message: scenario identification on the
// first message, normalisation, extraction, field filtering, checklist
// update, and auto-enrichment when a trigger field changed.
func (p *Parser) Parse(ctx context.Context, state *models.State, message string) {
	sc := p.resolveScenario(state, message)
	if sc == nil {
		return
	}

	text, err := p.norm.Normalize(ctx, message)
	if err != nil {
		state.AppendWarning("normalize", shortReason(err))
	}

	entities := ExtractFields(sc, text)

	if sem, err := p.extractSemantic(ctx, sc, text); err != nil {
		state.AppendWarning("semantic_extract", shortReason(err))
	} else {
		// Deterministic extraction wins over the model's reading.
		for k, v := range sem {
			if _, taken := entities[k]; !taken {
				entities[k] = v
			}
		}
	}

	for k := range entities {
		if !sc.AllowedField(k) {
			p.logger.Debug("Dropped field outside scenario schema", "scenario", sc.ID, "field", k)
			delete(entities, k)
		}
	}

	before := p.triggerSnapshot(state)
	for k, v := range entities {
		state.Incident[k] = v
	}
	p.updateChecklist(sc, state)
	state.AppendMessage(models.RoleSystem, extractionRecord(entities))

	if p.triggerSnapshot(state) != before {
		p.enrich(ctx, state)
	}
}

// resolveScenario pins the session's scenario on the first message and
// returns its descriptor. An unknown pinned type falls back to the default
// scenario with a warning rather than failing the turn.
func (p *Parser) resolveScenario(state *models.State, message string) *models.Scenario {
	if state.ScenarioType == "" {
		state.ScenarioType = p.registry.Identify(message)
		p.logger.Info("Scenario identified", "session_id", state.SessionID, "scenario", state.ScenarioType)
	}
	sc, err := p.registry.Get(state.ScenarioType)
	if err != nil {
		if !errors.Is(err, scenario.ErrUnknownScenario) {
			state.AppendWarning("scenario", shortReason(err))
			return nil
		}
		state.AppendWarning("scenario", fmt.Sprintf("unknown type %q, using %s", state.ScenarioType, scenario.DefaultScenarioID))
		state.ScenarioType = scenario.DefaultScenarioID
		sc, err = p.registry.Get(state.ScenarioType)
		if err != nil {
			state.AppendWarning("scenario", shortReason(err))
			return nil
		}
	}
	return sc
}

// updateChecklist marks declared fields whose value (or display form) is
// present and maintains the derived p1_complete entry. Collected marks are
// monotone: a field never reverts to missing.
func (p *Parser) updateChecklist(sc *models.Scenario, state *models.State) {
	for _, key := range sc.FieldOrder {
		if incidentPresent(state, key) {
			state.Checklist[key] = true
		}
	}

	p1 := true
	for _, key := range sc.RequiredP1Keys() {
		if !state.Checklist[key] {
			p1 = false
			break
		}
	}
	if p1 {
		state.Checklist["p1_complete"] = true
	}
}

// incidentPresent reports whether key or its display form carries a value.
// Booleans count either way: continuous=false is a collected answer.
func incidentPresent(state *models.State, key string) bool {
	for _, k := range []string{key, key + "_display"} {
		v, ok := state.Incident[k]
		if !ok {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		if v == nil {
			continue
		}
		return true
	}
	return false
}

// triggerSnapshot joins the enrichment trigger fields into a comparable key.
func (p *Parser) triggerSnapshot(state *models.State) string {
	parts := make([]string, len(triggerFields))
	for i, k := range triggerFields {
		parts[i] = state.IncidentString(k)
	}
	return strings.Join(parts, "\x1f")
}

// extractionRecord renders the system message documenting this parse.
func extractionRecord(entities map[string]any) string {
	if len(entities) == 0 {
		return "[extracted] none"
	}
	keys := make([]string, 0, len(entities))
	for k := range entities {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = fmt.Sprintf("%s=%v", k, entities[k])
	}
	return "[extracted] " + strings.Join(pairs, " ")
}

// EnrichmentObservation returns the summary line recorded by the most
// recent enrichment pass, or "" when no pass produced data.
func EnrichmentObservation(state *models.State) string {
	for i := len(state.Messages) - 1; i >= 0; i-- {
		m := state.Messages[i]
		if m.Role == models.RoleSystem && strings.HasPrefix(m.Content, enrichedPrefix) {
			return strings.TrimPrefix(m.Content, enrichedPrefix)
		}
	}
	return ""
}

// shortReason trims an error to a single readable line for warnings.
func shortReason(err error) string {
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	const maxLen = 160
	if len(msg) > maxLen {
		msg = msg[:maxLen] + "..."
	}
	return msg
}
