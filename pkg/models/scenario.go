package models

// Manifest identifies a scenario and the keywords that select it.
type Manifest struct {
	ID       string   `yaml:"id" json:"id"`
	Keywords []string `yaml:"keywords" json:"keywords"`
	Version  string   `yaml:"version" json:"version"`
}

// ChecklistField declares one collectable incident field.
type ChecklistField struct {
	Key       string   `yaml:"key" json:"key"`
	Type      string   `yaml:"type" json:"type"`
	Options   []string `yaml:"options,omitempty" json:"options,omitempty"`
	Required  bool     `yaml:"required" json:"required"`
	AskPrompt string   `yaml:"ask_prompt" json:"ask_prompt"`
}

// Precondition is a predicate over a state path: equality against Value or
// membership in In.
type Precondition struct {
	Path  string `yaml:"path" json:"path"`
	Value any    `yaml:"value,omitempty" json:"value,omitempty"`
	In    []any  `yaml:"in,omitempty" json:"in,omitempty"`
}

// FSMStateDef is one phase of the scenario's response procedure.
type FSMStateDef struct {
	ID            string         `yaml:"id" json:"id"`
	Order         int            `yaml:"order" json:"order"`
	Name          string         `yaml:"name" json:"name"`
	Preconditions []Precondition `yaml:"preconditions,omitempty" json:"preconditions,omitempty"`
	NextStates    []string       `yaml:"next_states,omitempty" json:"next_states,omitempty"`
}

// MandatoryTrigger is a declarative obligation: when Condition holds and
// CheckField is not yet true, Action must be performed with Params.
type MandatoryTrigger struct {
	ID         string         `yaml:"id" json:"id"`
	Condition  Expr           `yaml:"condition" json:"condition"`
	Action     string         `yaml:"action" json:"action"`
	Params     map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
	CheckField string         `yaml:"check_field" json:"check_field"`
	Priority   int            `yaml:"priority" json:"priority"`
}

// OilRiskRule is one row of the priority-ordered oil-spill rule table.
type OilRiskRule struct {
	ID               string            `yaml:"id" json:"id"`
	Priority         int               `yaml:"priority" json:"priority"`
	Conditions       map[string]any    `yaml:"conditions" json:"conditions"`
	Level            string            `yaml:"level" json:"level"`
	Score            int               `yaml:"score" json:"score"`
	ImmediateActions []string          `yaml:"immediate_actions,omitempty" json:"immediate_actions,omitempty"`
	Rationale        string            `yaml:"rationale,omitempty" json:"rationale,omitempty"`
	Labels           map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// Scenario is the immutable, process-scoped descriptor assembled from one
// scenario directory.
type Scenario struct {
	ID       string
	Keywords []string
	Version  string

	SystemPrompt string
	FieldOrder   []string
	FieldNames   map[string]string
	AskPrompts   map[string]string

	P1Fields []ChecklistField
	P2Fields []ChecklistField

	FSMStates         []FSMStateDef
	MandatoryTriggers []MandatoryTrigger

	// Exactly one of the two rule forms is set.
	OilRules    []OilRiskRule
	RuleSetJSON []byte
}

// AllowedField reports whether key may be written to incident state under
// this scenario.
func (sc *Scenario) AllowedField(key string) bool {
	if CommonIncidentFields[key] {
		return true
	}
	for _, f := range sc.FieldOrder {
		if f == key {
			return true
		}
	}
	return false
}

// RequiredP1Keys returns the keys of required P1 fields in declared order.
func (sc *Scenario) RequiredP1Keys() []string {
	keys := make([]string, 0, len(sc.P1Fields))
	for _, f := range sc.P1Fields {
		if f.Required {
			keys = append(keys, f.Key)
		}
	}
	return keys
}

// FSMStateByID returns the state definition, or nil.
func (sc *Scenario) FSMStateByID(id string) *FSMStateDef {
	for i := range sc.FSMStates {
		if sc.FSMStates[i].ID == id {
			return &sc.FSMStates[i]
		}
	}
	return nil
}

// AskPromptFor returns the configured question for a field, falling back to
// a generic one built from the field's display name.
func (sc *Scenario) AskPromptFor(key string) string {
	if p, ok := sc.AskPrompts[key]; ok && p != "" {
		return p
	}
	name := key
	if n, ok := sc.FieldNames[key]; ok && n != "" {
		name = n
	}
	return "请提供" + name
}
