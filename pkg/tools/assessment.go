package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/airside-ops/apron/pkg/assessment"
	"github.com/airside-ops/apron/pkg/llm"
	"github.com/airside-ops/apron/pkg/models"
	"github.com/airside-ops/apron/pkg/rules"
)

// assessRisk runs the scenario's rule evaluator. Critical: the compliance
// validator runs right after it.
func (b *builder) assessRisk() *Tool {
	return &Tool{
		Name:        "assess_risk",
		Description: "基于规则引擎评估事件风险等级。要求P1清单已收集完整。",
		Scenarios:   []string{"common"},
		Critical:    true,
		run: func(ctx context.Context, state *models.State, input map[string]any) Result {
			obs, err := b.riskCore(state)
			if err != nil {
				return failure("%s", err)
			}
			return success("%s", obs)
		},
	}
}

// riskCore refuses until the P1 checklist is complete, then overwrites
// risk_assessment and marks risk_assessed.
func (b *builder) riskCore(state *models.State) (string, error) {
	sc, err := b.scenarioFor(state)
	if err != nil {
		return "", fmt.Errorf("unknown scenario %q", state.ScenarioType)
	}
	if !state.Checklist["p1_complete"] {
		return "", fmt.Errorf("cannot assess risk: checklist incomplete, missing %s",
			strings.Join(b.missingRequired(sc, state), ", "))
	}

	var ra *models.RiskAssessment
	if len(sc.OilRules) > 0 {
		ra = rules.EvaluateOilRules(sc.OilRules, state.Incident)
	} else {
		rs := b.deps.Scenarios.RuleSet(sc.ID)
		if rs == nil {
			return "", fmt.Errorf("no rule set configured for scenario %q", sc.ID)
		}
		if err := rs.ValidateInput(state.Incident); err != nil {
			b.deps.Logger.Warn("Rule set input validation failed, scoring with UNKNOWN rows",
				"scenario", sc.ID, "error", err)
		}
		ra = rs.Evaluate(state.Incident)
	}
	state.RiskAssessment = ra
	state.MandatoryActionsDone["risk_assessed"] = true
	return describeRisk(ra), nil
}

// missingRequired lists the required P1 keys still unchecked.
func (b *builder) missingRequired(sc *models.Scenario, state *models.State) []string {
	var missing []string
	for _, key := range sc.RequiredP1Keys() {
		if !state.Checklist[key] {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		missing = []string{"p1_complete"}
	}
	return missing
}

func describeRisk(ra *models.RiskAssessment) string {
	obs := fmt.Sprintf("risk level %s (score %d)", ra.Level, ra.Score)
	if len(ra.RulesTriggered) > 0 {
		obs += fmt.Sprintf(", rules %v", ra.RulesTriggered)
	}
	if ra.RiskFloorApplied != "" {
		obs += ", floor " + ra.RiskFloorApplied
	}
	if len(ra.ImmediateActions) > 0 {
		obs += "; immediate actions: " + strings.Join(ra.ImmediateActions, "; ")
	}
	if ra.Guardrails != nil && ra.Guardrails.RequiresHumanApproval {
		obs += "; requires human approval"
	}
	return obs
}

const estimateCleanupTimeSchema = `{
  "type": "object",
  "properties": {
    "fluid_type": {"type": "string", "enum": ["FUEL", "HYDRAULIC", "OIL"]},
    "leak_size":  {"type": "string", "enum": ["SMALL", "MEDIUM", "LARGE"]},
    "facility":   {"type": "string", "enum": ["stand", "taxiway", "runway"]}
  },
  "additionalProperties": false
}`

// estimateCleanupTime reports the weather-adjusted cleanup duration.
// Observation only; the estimate feeds the flight-impact window when that
// tool runs.
func (b *builder) estimateCleanupTime() *Tool {
	return &Tool{
		Name:        "estimate_cleanup_time",
		Description: "估算清理时长：介质×泄漏量×场地基准时间，按风、温度、能见度修正。缺省使用事件数据。",
		Scenarios:   []string{"oil_spill"},
		BareKey:     "fluid_type",
		schemaRaw:   estimateCleanupTimeSchema,
		run: func(ctx context.Context, state *models.State, input map[string]any) Result {
			fluid := stringOr(input, "fluid_type", state.IncidentString("fluid_type"))
			if fluid == "" {
				fluid = "OIL"
			}
			leak := stringOr(input, "leak_size", state.IncidentString("leak_size"))
			if leak == "" {
				leak = "MEDIUM"
			}
			facility := stringOr(input, "facility", b.facilityClass(state))
			est := b.cleanupEstimate(state, fluid, leak, facility)
			return success("cleanup estimate for %s %s on %s: %s", fluid, leak, facility, est.Describe())
		},
	}
}

// facilityClass resolves the facility class of the incident position,
// defaulting to stand.
func (b *builder) facilityClass(state *models.State) string {
	if b.deps.Graph != nil {
		if id, ok := b.deps.Graph.ResolveNodeID(state.IncidentString("position")); ok {
			if node, ok := b.deps.Graph.Node(id); ok {
				return string(node.Type)
			}
		}
	}
	return "stand"
}

// cleanupEstimate fills unset axes from incident state and applies the
// stored weather factors, neutral when no weather was looked up.
func (b *builder) cleanupEstimate(state *models.State, fluid, leak, facility string) assessment.CleanupEstimate {
	if fluid == "" {
		fluid = state.IncidentString("fluid_type")
	}
	if leak == "" {
		leak = state.IncidentString("leak_size")
	}
	if facility == "" {
		facility = b.facilityClass(state)
	}
	return assessment.EstimateCleanup(fluid, leak, facility,
		assessment.WindFactorOf(state.WeatherImpact),
		assessment.TemperatureFactorOf(state.WeatherImpact),
		assessment.VisibilityFactorOf(state.WeatherImpact))
}

// assessWeatherImpact reports the adjustment factors derived from the
// latest observation, computing them on first use.
func (b *builder) assessWeatherImpact() *Tool {
	return &Tool{
		Name:        "assess_weather_impact",
		Description: "评估天气对处置的影响：风、温度、能见度修正系数及扩散半径调整。",
		Scenarios:   []string{"common"},
		run: func(ctx context.Context, state *models.State, input map[string]any) Result {
			if !b.ensureWeather(state) {
				return failure("weather data not available")
			}
			wi := state.WeatherImpact
			return success("wind %.1f m/s from %.0f° (radius adjustment +%d), temperature factor %.2f, visibility factor %.2f, total factor %.2f",
				wi.WindImpact.Speed, wi.WindImpact.Direction, wi.WindImpact.RadiusAdjustment,
				wi.TemperatureImpact.Factor, wi.VisibilityImpact.Factor, wi.TotalFactor)
		},
	}
}

// comprehensiveAnalysis chains risk assessment, impact zone, and flight
// impact in one call. Risk failure fails the call; the spatial stages
// degrade to notes when their inputs are missing.
func (b *builder) comprehensiveAnalysis() *Tool {
	return &Tool{
		Name:        "comprehensive_analysis",
		Description: "一次完成风险评估、影响区域计算与受影响航班预测。要求P1清单已收集完整。",
		Scenarios:   []string{"common"},
		Critical:    true,
		run: func(ctx context.Context, state *models.State, input map[string]any) Result {
			riskObs, err := b.riskCore(state)
			if err != nil {
				return failure("%s", err)
			}
			parts := []string{"risk: " + riskObs}
			if zoneObs, err := b.zoneCore(state, "", "", ""); err != nil {
				parts = append(parts, "spatial: skipped ("+err.Error()+")")
			} else {
				parts = append(parts, "spatial: "+zoneObs)
				if predObs, err := b.predictCore(state); err != nil {
					parts = append(parts, "flights: skipped ("+err.Error()+")")
				} else {
					parts = append(parts, "flights: "+predObs)
				}
			}
			return success("%s", strings.Join(parts, "\n"))
		},
	}
}

const crossValidateSystemPrompt = `你是机场安全风险复核专家。给定事件信息与规则引擎的风险评定，请独立复核该评定是否恰当。
只输出一个JSON对象：{"level": "等级", "rationale": "一句话理由"}。
等级必须取自该场景使用的等级体系（LOW/MEDIUM/MEDIUM_HIGH/HIGH/CRITICAL 或 R1-R5）。`

// crossValidateRisk asks the model to second-guess the rule result. On
// disagreement the stricter level wins; the rule score is kept.
func (b *builder) crossValidateRisk() *Tool {
	return &Tool{
		Name:        "cross_validate_risk",
		Description: "用大模型复核规则引擎的风险评定，不一致时采用更严格的等级。",
		Scenarios:   []string{"common"},
		Critical:    true,
		run: func(ctx context.Context, state *models.State, input map[string]any) Result {
			if state.RiskAssessment == nil {
				return failure("no risk assessment to validate: run assess_risk first")
			}
			if b.deps.LLM == nil {
				return failure("language model not available")
			}
			current := state.RiskAssessment
			user := fmt.Sprintf("事件信息:\n%s\n\n规则引擎评定: %s (score %d)\n触发规则: %s",
				incidentSummary(state), current.Level, current.Score,
				strings.Join(current.RulesTriggered, ", "))

			resp, err := b.deps.LLM.Generate(ctx, &llm.Request{
				Messages: []llm.Message{
					{Role: llm.RoleSystem, Content: crossValidateSystemPrompt},
					{Role: llm.RoleUser, Content: user},
				},
				Temperature: 0.1,
			})
			if err != nil {
				return failure("cross-validation unavailable: %v", err)
			}
			v, err := parseVerdict(resp.Content)
			if err != nil {
				return failure("cross-validation reply unusable: %v", err)
			}
			if !rules.KnownLevel(v.Level) {
				return failure("cross-validation returned unknown level %q", v.Level)
			}

			if v.Level == current.Level {
				return success("cross-validation agrees: %s", current.Level)
			}
			stricter := rules.Stricter(current.Level, v.Level)
			if stricter == current.Level {
				return success("cross-validation suggests %s; keeping stricter %s", v.Level, current.Level)
			}
			current.Level = stricter
			current.RulesTriggered = append(current.RulesTriggered, "cross_validation")
			if v.Rationale != "" {
				if current.Rationale != "" {
					current.Rationale += "; "
				}
				current.Rationale += "cross-validation: " + v.Rationale
			}
			return success("cross-validation disagrees, adopting stricter level %s (%s)", stricter, v.Rationale)
		},
	}
}

// incidentSummary renders the incident facts sorted by key for the
// cross-validation prompt.
func incidentSummary(state *models.State) string {
	keys := make([]string, 0, len(state.Incident))
	for k := range state.Incident {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s=%v", k, state.Incident[k]))
	}
	if len(lines) == 0 {
		return "(无)"
	}
	return strings.Join(lines, "\n")
}

type verdict struct {
	Level     string `json:"level"`
	Rationale string `json:"rationale"`
}

func parseVerdict(reply string) (verdict, error) {
	text := stripFence(reply)
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return verdict{}, errors.New("no JSON object in reply")
	}
	var v verdict
	if err := json.Unmarshal([]byte(text[start:end+1]), &v); err != nil {
		return verdict{}, err
	}
	v.Level = strings.ToUpper(strings.TrimSpace(v.Level))
	if v.Level == "" {
		return verdict{}, errors.New("reply has no level")
	}
	return v, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
