package scenario

import (
	"fmt"

	"github.com/airside-ops/apron/pkg/models"
	"github.com/airside-ops/apron/pkg/rules"
)

// FSM boundary states every scenario must declare.
const (
	FSMStateInit      = "INIT"
	FSMStateCompleted = "COMPLETED"
)

var knownFieldTypes = map[string]bool{
	"string": true,
	"enum":   true,
	"bool":   true,
	"number": true,
	"time":   true,
}

// validateScenario checks one assembled descriptor. Any failure here is a
// configuration error and fatal at startup.
func validateScenario(dir string, sc *models.Scenario) error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("scenario %s: %s", dir, fmt.Sprintf(format, args...))
	}

	if sc.ID == "" {
		return fail("manifest has no id")
	}
	if sc.ID != dir {
		return fail("manifest id %q does not match directory name", sc.ID)
	}
	if sc.Version == "" {
		return fail("manifest has no version")
	}
	if len(sc.Keywords) == 0 {
		return fail("manifest has no keywords")
	}
	seenKw := make(map[string]bool, len(sc.Keywords))
	for _, kw := range sc.Keywords {
		if kw == "" {
			return fail("manifest has an empty keyword")
		}
		if seenKw[kw] {
			return fail("duplicate keyword %q", kw)
		}
		seenKw[kw] = true
	}

	if sc.SystemPrompt == "" {
		return fail("prompt has no system_prompt")
	}
	if len(sc.FieldOrder) == 0 {
		return fail("prompt has no field_order")
	}
	order := make(map[string]bool, len(sc.FieldOrder))
	for _, key := range sc.FieldOrder {
		if key == "" {
			return fail("field_order has an empty key")
		}
		if order[key] {
			return fail("duplicate field_order key %q", key)
		}
		order[key] = true
	}

	if len(sc.P1Fields) == 0 {
		return fail("checklist has no p1_fields")
	}
	seenField := make(map[string]bool)
	for _, group := range [][]models.ChecklistField{sc.P1Fields, sc.P2Fields} {
		for _, f := range group {
			if f.Key == "" {
				return fail("checklist field without key")
			}
			if seenField[f.Key] {
				return fail("checklist field %q declared twice", f.Key)
			}
			seenField[f.Key] = true
			if !order[f.Key] {
				return fail("checklist field %q missing from field_order", f.Key)
			}
			if !knownFieldTypes[f.Type] {
				return fail("checklist field %q has unknown type %q", f.Key, f.Type)
			}
			if f.Type == "enum" && len(f.Options) == 0 {
				return fail("enum field %q has no options", f.Key)
			}
		}
	}

	if err := validateFSM(sc); err != nil {
		return fail("%v", err)
	}

	seenTrigger := make(map[string]bool, len(sc.MandatoryTriggers))
	for i := range sc.MandatoryTriggers {
		tr := &sc.MandatoryTriggers[i]
		if tr.ID == "" {
			return fail("mandatory trigger without id")
		}
		if seenTrigger[tr.ID] {
			return fail("duplicate trigger id %q", tr.ID)
		}
		seenTrigger[tr.ID] = true
		if tr.Action == "" {
			return fail("trigger %s has no action", tr.ID)
		}
		if tr.CheckField == "" {
			return fail("trigger %s has no check_field", tr.ID)
		}
		if err := rules.ValidateExpr(&tr.Condition); err != nil {
			return fail("trigger %s: %v", tr.ID, err)
		}
	}

	if len(sc.OilRules) == 0 && len(sc.RuleSetJSON) == 0 {
		return fail("config declares neither risk_rules nor risk_rules_file")
	}
	return nil
}

// validateFSM checks the state machine: INIT and COMPLETED present,
// contiguous unique orders, no dangling or backward transitions, and every
// precondition well-formed. Forward-only transitions make the machine
// acyclic by construction.
func validateFSM(sc *models.Scenario) error {
	if len(sc.FSMStates) < 2 {
		return fmt.Errorf("fsm needs at least INIT and COMPLETED")
	}
	byID := make(map[string]*models.FSMStateDef, len(sc.FSMStates))
	byOrder := make(map[int]string, len(sc.FSMStates))
	for i := range sc.FSMStates {
		st := &sc.FSMStates[i]
		if st.ID == "" {
			return fmt.Errorf("fsm state without id")
		}
		if _, dup := byID[st.ID]; dup {
			return fmt.Errorf("duplicate fsm state %q", st.ID)
		}
		byID[st.ID] = st
		if other, dup := byOrder[st.Order]; dup {
			return fmt.Errorf("fsm states %s and %s share order %d", other, st.ID, st.Order)
		}
		byOrder[st.Order] = st.ID
	}

	initState, ok := byID[FSMStateInit]
	if !ok {
		return fmt.Errorf("fsm has no %s state", FSMStateInit)
	}
	if initState.Order != 0 {
		return fmt.Errorf("%s must have order 0", FSMStateInit)
	}
	if len(initState.Preconditions) > 0 {
		return fmt.Errorf("%s must have no preconditions", FSMStateInit)
	}
	completed, ok := byID[FSMStateCompleted]
	if !ok {
		return fmt.Errorf("fsm has no %s state", FSMStateCompleted)
	}
	if len(completed.NextStates) != 0 {
		return fmt.Errorf("%s must be terminal", FSMStateCompleted)
	}

	for i := range sc.FSMStates {
		st := &sc.FSMStates[i]
		if st.ID != FSMStateCompleted && len(st.NextStates) == 0 {
			return fmt.Errorf("fsm state %s has no next_states", st.ID)
		}
		for _, next := range st.NextStates {
			target, ok := byID[next]
			if !ok {
				return fmt.Errorf("fsm state %s references unknown state %q", st.ID, next)
			}
			if target.Order <= st.Order {
				return fmt.Errorf("fsm transition %s -> %s does not move forward", st.ID, next)
			}
		}
		for _, pre := range st.Preconditions {
			if pre.Path == "" {
				return fmt.Errorf("fsm state %s has a precondition without path", st.ID)
			}
			if pre.Value == nil && len(pre.In) == 0 {
				return fmt.Errorf("fsm state %s precondition %s sets neither value nor in", st.ID, pre.Path)
			}
			if pre.Value != nil && len(pre.In) > 0 {
				return fmt.Errorf("fsm state %s precondition %s sets both value and in", st.ID, pre.Path)
			}
		}
	}
	return nil
}
