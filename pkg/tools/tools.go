// Package tools implements the deterministic tool set the reasoning loop
// can invoke: information lookups, spatial analysis, risk assessment, and
// the mandated actions. Tools never raise out of Execute; domain failures
// come back as unsuccessful results whose observation tells the model what
// went wrong.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/airside-ops/apron/pkg/llm"
	"github.com/airside-ops/apron/pkg/models"
	"github.com/airside-ops/apron/pkg/refdata"
	"github.com/airside-ops/apron/pkg/scenario"
	"github.com/airside-ops/apron/pkg/topology"
)

// Registry lookup errors.
var (
	ErrUnknownTool = errors.New("unknown tool")
	ErrNotVisible  = errors.New("tool not available for scenario")
)

// Result is what a tool execution hands back to the loop. The observation
// is shown to the model on the next reasoning pass.
type Result struct {
	Success     bool   `json:"success"`
	Observation string `json:"observation"`
}

func success(format string, args ...any) Result {
	return Result{Success: true, Observation: fmt.Sprintf(format, args...)}
}

func failure(format string, args ...any) Result {
	return Result{Success: false, Observation: fmt.Sprintf(format, args...)}
}

// RunFunc is the tool body, called only after input validation.
type RunFunc func(ctx context.Context, state *models.State, input map[string]any) Result

// Tool is one registered capability.
type Tool struct {
	Name        string
	Description string
	// Scenarios lists the scenario ids the tool serves; "common" makes it
	// visible everywhere.
	Scenarios []string
	// Critical tools demand an FSM validation pass right after execution.
	Critical bool
	// BareKey names the property a bare-string action input maps onto.
	BareKey string

	schemaRaw string
	schema    *jsonschema.Schema
	noArgs    bool
	run       RunFunc
}

// Execute validates the input against the tool's schema and runs the body.
// Validation failures never mutate state.
func (t *Tool) Execute(ctx context.Context, state *models.State, input map[string]any) Result {
	input = t.remapBare(input)
	if err := t.validateInput(input); err != nil {
		return failure("invalid input: %s", err)
	}
	return t.run(ctx, state, input)
}

// remapBare folds the {"value": s} form produced for trivial string action
// inputs onto the tool's designated property, or discards it for tools
// that take no arguments.
func (t *Tool) remapBare(input map[string]any) map[string]any {
	if len(input) != 1 {
		return input
	}
	v, ok := input["value"]
	if !ok {
		return input
	}
	if t.BareKey != "" {
		return map[string]any{t.BareKey: v}
	}
	if t.noArgs {
		return map[string]any{}
	}
	return input
}

func (t *Tool) validateInput(input map[string]any) error {
	if t.schema == nil {
		return nil
	}
	if input == nil {
		input = map[string]any{}
	}
	doc, err := normaliseJSON(input)
	if err != nil {
		return err
	}
	return t.schema.Validate(doc)
}

// SchemaSummary renders a one-line property overview for the reasoning
// prompt, e.g. {department: string [fire|atc] (required), priority: string}.
func (t *Tool) SchemaSummary() string {
	var doc struct {
		Properties map[string]struct {
			Type string   `json:"type"`
			Enum []string `json:"enum"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal([]byte(t.schemaRaw), &doc); err != nil || len(doc.Properties) == 0 {
		return "{}"
	}
	required := make(map[string]bool, len(doc.Required))
	for _, r := range doc.Required {
		required[r] = true
	}
	keys := make([]string, 0, len(doc.Properties))
	for k := range doc.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		p := doc.Properties[k]
		s := k + ": " + p.Type
		if len(p.Enum) > 0 {
			s += " [" + strings.Join(p.Enum, "|") + "]"
		}
		if required[k] {
			s += " (required)"
		}
		parts = append(parts, s)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Deps carries the shared read-only services the tool bodies close over.
type Deps struct {
	Scenarios   *scenario.Registry
	Graph       *topology.Graph
	Ref         *refdata.Store
	LLM         llm.Client
	Propagation topology.PropagationTable
	Logger      *slog.Logger
	Now         func() time.Time
}

// Registry holds the process-wide tool set, shared read-only by all
// sessions.
type Registry struct {
	tools map[string]*Tool
	order []string
}

// NewRegistry builds and validates the full tool set.
func NewRegistry(deps Deps) (*Registry, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Propagation == nil {
		deps.Propagation = topology.DefaultPropagationTable()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Logger = deps.Logger.With("component", "tools")

	b := &builder{deps: deps}
	reg := &Registry{tools: make(map[string]*Tool)}
	for _, t := range []*Tool{
		b.askUser(),
		b.smartAsk(),
		b.queryFlightPlan(),
		b.getWeather(),
		b.queryAircraftInfo(),
		b.normalizeRadiotelephony(),
		b.queryStandLocation(),
		b.calculateImpactZone(),
		b.analyzePositionImpact(),
		b.predictFlightImpact(),
		b.assessRisk(),
		b.estimateCleanupTime(),
		b.assessWeatherImpact(),
		b.comprehensiveAnalysis(),
		b.crossValidateRisk(),
		b.notifyDepartment(),
		b.generateReport(),
	} {
		if err := reg.add(t); err != nil {
			return nil, err
		}
	}
	deps.Logger.Info("Tool registry built", "tools", len(reg.tools))
	return reg, nil
}

func (r *Registry) add(t *Tool) error {
	if t.Name == "" {
		return errors.New("tool with empty name")
	}
	if _, dup := r.tools[t.Name]; dup {
		return fmt.Errorf("duplicate tool name %q", t.Name)
	}
	if len(t.Scenarios) == 0 {
		return fmt.Errorf("tool %q: empty scenario list", t.Name)
	}
	if t.run == nil {
		return fmt.Errorf("tool %q: nil body", t.Name)
	}
	if t.schemaRaw == "" {
		t.noArgs = true
	} else {
		schema, err := compileSchema(t.Name+".json", []byte(t.schemaRaw))
		if err != nil {
			return fmt.Errorf("tool %q: %w", t.Name, err)
		}
		t.schema = schema
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// Get resolves a tool by name for a scenario, enforcing visibility.
func (r *Registry) Get(name, scenarioID string) (*Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	if !t.visibleTo(scenarioID) {
		return nil, fmt.Errorf("%w: %q for %q", ErrNotVisible, name, scenarioID)
	}
	return t, nil
}

// ForScenario returns the visible tools in registration order.
func (r *Registry) ForScenario(scenarioID string) []*Tool {
	out := make([]*Tool, 0, len(r.order))
	for _, name := range r.order {
		if t := r.tools[name]; t.visibleTo(scenarioID) {
			out = append(out, t)
		}
	}
	return out
}

// Len reports the number of registered tools.
func (r *Registry) Len() int { return len(r.tools) }

func (t *Tool) visibleTo(scenarioID string) bool {
	return slices.Contains(t.Scenarios, "common") || slices.Contains(t.Scenarios, scenarioID)
}

// builder constructs the individual tools over the shared dependencies.
type builder struct {
	deps Deps
}

// scenarioFor resolves the descriptor for the session's pinned scenario.
func (b *builder) scenarioFor(state *models.State) (*models.Scenario, error) {
	if b.deps.Scenarios == nil {
		return nil, errors.New("scenario registry not configured")
	}
	return b.deps.Scenarios.Get(state.ScenarioType)
}

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

// normaliseJSON round-trips a value through JSON so schema validation sees
// the canonical types.
func normaliseJSON(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal input: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal input: %w", err)
	}
	return doc, nil
}

// inputString reads a trimmed string property, empty when absent or not a
// string.
func inputString(input map[string]any, key string) string {
	v, ok := input[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// stringOr falls back when the input does not carry the property.
func stringOr(input map[string]any, key, fallback string) string {
	if s := inputString(input, key); s != "" {
		return s
	}
	return fallback
}
