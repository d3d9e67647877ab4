package rules

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/airside-ops/apron/pkg/models"
)

// Dimension is one weighted scoring axis backed by a points lookup table.
type Dimension struct {
	Name        string  `json:"name"`
	Weight      float64 `json:"weight"`
	PointsTable string  `json:"points_table"`
}

// ScoringModel declares the weighted-sum computation.
type ScoringModel struct {
	MaxScore   int         `json:"max_score"`
	Dimensions []Dimension `json:"dimensions"`
}

// RuleEffect is the `then` part of a weighted rule.
type RuleEffect struct {
	RiskFloor string `json:"risk_floor,omitempty"`
	RiskBoost int    `json:"risk_boost,omitempty"`
	Action    string `json:"action,omitempty"`
}

// WeightedRule contributes floors, boosts, or actions when its condition
// matches.
type WeightedRule struct {
	ID       string      `json:"id"`
	Priority int         `json:"priority"`
	When     models.Expr `json:"when"`
	Then     RuleEffect  `json:"then"`
}

// ScoreBand maps a closed score interval to a risk level.
type ScoreBand struct {
	Min   int    `json:"min"`
	Max   int    `json:"max"`
	Level string `json:"level"`
}

// RiskMapping converts a score to a level.
type RiskMapping struct {
	ByScore []ScoreBand `json:"by_score"`
}

// GuardrailSpec constrains operator actions at a risk level.
type GuardrailSpec struct {
	RequiresHumanApproval bool     `json:"requires_human_approval"`
	AllowedActions        []string `json:"allowed_actions,omitempty"`
	ForbiddenActions      []string `json:"forbidden_actions,omitempty"`
}

// RuleSet is a parsed weighted-JSON rule document (bird strike, FOD).
type RuleSet struct {
	RuleSetID    string                    `json:"rule_set_id"`
	Version      string                    `json:"version"`
	InputSchema  json.RawMessage           `json:"input_schema,omitempty"`
	ScoringModel ScoringModel              `json:"scoring_model"`
	LookupTables map[string]map[string]int `json:"lookup_tables"`
	Rules        []WeightedRule            `json:"rules"`
	RiskMapping  RiskMapping               `json:"risk_mapping"`
	Guardrails   map[string]GuardrailSpec  `json:"guardrails"`
	OutputSchema json.RawMessage           `json:"output_schema,omitempty"`

	inputSchema *jsonschema.Schema
}

// ParseRuleSet parses and validates a weighted rule document. Validation
// failures are configuration errors and fatal at startup.
func ParseRuleSet(raw []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := json.Unmarshal(raw, &rs); err != nil {
		return nil, fmt.Errorf("parse rule set: %w", err)
	}
	if rs.RuleSetID == "" {
		return nil, fmt.Errorf("parse rule set: missing rule_set_id")
	}
	if rs.ScoringModel.MaxScore == 0 {
		rs.ScoringModel.MaxScore = 100
	}
	if len(rs.ScoringModel.Dimensions) == 0 {
		return nil, fmt.Errorf("rule set %s: no scoring dimensions", rs.RuleSetID)
	}
	for _, d := range rs.ScoringModel.Dimensions {
		if d.Weight <= 0 {
			return nil, fmt.Errorf("rule set %s: dimension %s has non-positive weight", rs.RuleSetID, d.Name)
		}
		table, ok := rs.LookupTables[d.PointsTable]
		if !ok {
			return nil, fmt.Errorf("rule set %s: dimension %s references missing table %q", rs.RuleSetID, d.Name, d.PointsTable)
		}
		if _, ok := table["UNKNOWN"]; !ok {
			return nil, fmt.Errorf("rule set %s: table %s has no UNKNOWN row", rs.RuleSetID, d.PointsTable)
		}
	}
	for i := range rs.Rules {
		r := &rs.Rules[i]
		if r.ID == "" {
			return nil, fmt.Errorf("rule set %s: rule without id", rs.RuleSetID)
		}
		if err := ValidateExpr(&r.When); err != nil {
			return nil, fmt.Errorf("rule set %s: rule %s: %w", rs.RuleSetID, r.ID, err)
		}
		if r.Then.RiskFloor != "" && !KnownLevel(r.Then.RiskFloor) {
			return nil, fmt.Errorf("rule set %s: rule %s has unknown risk_floor %q", rs.RuleSetID, r.ID, r.Then.RiskFloor)
		}
	}
	if len(rs.RiskMapping.ByScore) == 0 {
		return nil, fmt.Errorf("rule set %s: empty risk_mapping", rs.RuleSetID)
	}
	bands := rs.RiskMapping.ByScore
	sort.Slice(bands, func(i, j int) bool { return bands[i].Min < bands[j].Min })
	for i, b := range bands {
		if !KnownLevel(b.Level) {
			return nil, fmt.Errorf("rule set %s: band %d has unknown level %q", rs.RuleSetID, i, b.Level)
		}
		if b.Max < b.Min {
			return nil, fmt.Errorf("rule set %s: band %d has max < min", rs.RuleSetID, i)
		}
		if i > 0 && b.Min != bands[i-1].Max+1 {
			return nil, fmt.Errorf("rule set %s: score bands not contiguous at %d", rs.RuleSetID, b.Min)
		}
	}
	if bands[0].Min != 0 || bands[len(bands)-1].Max < rs.ScoringModel.MaxScore {
		return nil, fmt.Errorf("rule set %s: score bands do not cover [0,%d]", rs.RuleSetID, rs.ScoringModel.MaxScore)
	}
	for level := range rs.Guardrails {
		if !KnownLevel(level) {
			return nil, fmt.Errorf("rule set %s: guardrails for unknown level %q", rs.RuleSetID, level)
		}
	}

	if len(rs.InputSchema) > 0 {
		schema, err := compileSchema(rs.RuleSetID+"/input_schema.json", rs.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("rule set %s: %w", rs.RuleSetID, err)
		}
		rs.inputSchema = schema
	}
	return &rs, nil
}

// compileSchema compiles a JSON Schema document.
func compileSchema(name string, raw []byte) (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// ValidateInput checks the incident facts against the rule set's declared
// input schema. Violations are reported, not fatal: scoring proceeds with
// UNKNOWN rows for anything malformed.
func (rs *RuleSet) ValidateInput(incident map[string]any) error {
	if rs.inputSchema == nil {
		return nil
	}
	normalised, err := normaliseJSON(incident)
	if err != nil {
		return fmt.Errorf("normalise input: %w", err)
	}
	if err := rs.inputSchema.Validate(normalised); err != nil {
		return err
	}
	return nil
}

// Evaluate computes the weighted score, applies floors and boosts from the
// matched rules, maps the score to a level, and attaches guardrails.
func (rs *RuleSet) Evaluate(incident map[string]any) *models.RiskAssessment {
	var score float64
	factors := make([]string, 0, len(rs.ScoringModel.Dimensions))
	for _, d := range rs.ScoringModel.Dimensions {
		table := rs.LookupTables[d.PointsTable]
		value := "UNKNOWN"
		if v, ok := incident[d.Name]; ok && normString(v) != "" {
			value = normString(v)
		}
		points, ok := table[value]
		if !ok {
			points = table["UNKNOWN"]
			value = "UNKNOWN"
		}
		score += d.Weight * float64(points)
		factors = append(factors, fmt.Sprintf("%s=%s (%d)", d.Name, value, points))
	}

	ordered := make([]WeightedRule, len(rs.Rules))
	copy(ordered, rs.Rules)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

	lookup := MapLookup(incident)
	var floor string
	var boost int
	var triggered []string
	var actions []string
	for i := range ordered {
		if !Eval(&ordered[i].When, lookup) {
			continue
		}
		triggered = append(triggered, ordered[i].ID)
		effect := ordered[i].Then
		if effect.RiskFloor != "" {
			floor = Stricter(floor, effect.RiskFloor)
		}
		boost += effect.RiskBoost
		if effect.Action != "" {
			actions = append(actions, effect.Action)
		}
	}

	final := int(math.Round(score)) + boost
	if final > rs.ScoringModel.MaxScore {
		final = rs.ScoringModel.MaxScore
	}
	if final < 0 {
		final = 0
	}

	// The strictest requested floor is always recorded; it changes the
	// level only when the mapped level sits below it.
	level := rs.levelForScore(final)
	if floor != "" {
		level = Stricter(level, floor)
	}

	assessment := &models.RiskAssessment{
		Level:            level,
		Score:            final,
		Factors:          factors,
		Rationale:        fmt.Sprintf("weighted score %d under rule set %s", final, rs.RuleSetID),
		RulesTriggered:   triggered,
		ImmediateActions: actions,
		RiskFloorApplied: floor,
	}
	if g, ok := rs.Guardrails[level]; ok {
		assessment.Guardrails = &models.Guardrails{
			AllowedActions:        append([]string(nil), g.AllowedActions...),
			ForbiddenActions:      append([]string(nil), g.ForbiddenActions...),
			RequiresHumanApproval: g.RequiresHumanApproval,
		}
	}
	return assessment
}

func (rs *RuleSet) levelForScore(score int) string {
	for _, b := range rs.RiskMapping.ByScore {
		if score >= b.Min && score <= b.Max {
			return b.Level
		}
	}
	last := rs.RiskMapping.ByScore[len(rs.RiskMapping.ByScore)-1]
	return last.Level
}

// normaliseJSON round-trips a value through encoding/json so the schema
// validator sees plain decoded JSON types.
func normaliseJSON(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
