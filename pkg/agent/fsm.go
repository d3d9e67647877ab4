package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/airside-ops/apron/pkg/events"
	"github.com/airside-ops/apron/pkg/models"
	"github.com/airside-ops/apron/pkg/rules"
)

// PendingAction is a mandatory obligation whose trigger condition holds but
// whose completion flag is not yet set.
type PendingAction struct {
	TriggerID string         `json:"trigger_id"`
	Action    string         `json:"action"`
	Params    map[string]any `json:"params,omitempty"`
}

// ValidationResult is the outcome of one compliance pass over the session.
type ValidationResult struct {
	IsValid        bool            `json:"is_valid"`
	CurrentState   string          `json:"current_state"`
	InferredState  string          `json:"inferred_state"`
	Errors         []string        `json:"errors,omitempty"`
	PendingActions []PendingAction `json:"pending_actions,omitempty"`
}

// ValidateFSM runs the declarative compliance check: it infers how far the
// response procedure has progressed, verifies the occupied phase is
// legitimate, and collects the mandatory actions that are due. Pure; the
// caller applies the inferred state.
func ValidateFSM(sc *models.Scenario, state *models.State) *ValidationResult {
	res := &ValidationResult{CurrentState: state.FSMState}

	current := sc.FSMStateByID(state.FSMState)
	if current == nil {
		res.InferredState = state.FSMState
		res.Errors = append(res.Errors, fmt.Sprintf("unknown response phase %q", state.FSMState))
		res.PendingActions = pendingTriggers(sc, state)
		return res
	}

	lookup := rules.StateLookup(state)

	// Advance along the declared transitions while the next phase's entry
	// preconditions hold. Transitions only move forward.
	for {
		advanced := false
		for _, nextID := range current.NextStates {
			next := sc.FSMStateByID(nextID)
			if next == nil {
				continue
			}
			if preconditionsHold(next.Preconditions, lookup) {
				current = next
				advanced = true
				break
			}
		}
		if !advanced {
			break
		}
	}
	res.InferredState = current.ID

	// Entry conditions of the occupied phase. These only fail when the
	// phase was written out of band, since inference never enters a phase
	// whose preconditions do not hold.
	for i := range current.Preconditions {
		p := &current.Preconditions[i]
		if !preconditionHolds(p, lookup) {
			res.Errors = append(res.Errors, preconditionError(current.ID, p))
		}
	}

	res.PendingActions = pendingTriggers(sc, state)
	res.IsValid = len(res.Errors) == 0
	return res
}

func preconditionsHold(preconditions []models.Precondition, lookup rules.Lookup) bool {
	for i := range preconditions {
		if !preconditionHolds(&preconditions[i], lookup) {
			return false
		}
	}
	return true
}

func preconditionHolds(p *models.Precondition, lookup rules.Lookup) bool {
	e := preconditionExpr(p)
	return rules.Eval(&e, lookup)
}

// preconditionExpr lowers a precondition onto the shared condition
// language: membership when In is declared, equality otherwise.
func preconditionExpr(p *models.Precondition) models.Expr {
	if len(p.In) > 0 {
		return models.Expr{Field: p.Path, Op: rules.OpIn, Value: p.In}
	}
	return models.Expr{Field: p.Path, Op: rules.OpEq, Value: p.Value}
}

func preconditionError(stateID string, p *models.Precondition) string {
	if len(p.In) > 0 {
		vals := make([]string, 0, len(p.In))
		for _, v := range p.In {
			vals = append(vals, fmt.Sprintf("%v", v))
		}
		return fmt.Sprintf("entering %s requires %s in [%s]", stateID, p.Path, strings.Join(vals, ", "))
	}
	return fmt.Sprintf("entering %s requires %s=%v", stateID, p.Path, p.Value)
}

// pendingTriggers evaluates the mandatory triggers in priority order and
// returns the due ones, deduplicated by (action, params): two triggers
// demanding the same call yield one obligation.
func pendingTriggers(sc *models.Scenario, state *models.State) []PendingAction {
	if len(sc.MandatoryTriggers) == 0 {
		return nil
	}
	triggers := make([]models.MandatoryTrigger, len(sc.MandatoryTriggers))
	copy(triggers, sc.MandatoryTriggers)
	sort.SliceStable(triggers, func(i, j int) bool {
		return triggers[i].Priority < triggers[j].Priority
	})

	lookup := rules.StateLookup(state)
	var out []PendingAction
	seen := map[string]bool{}
	for i := range triggers {
		t := &triggers[i]
		if !rules.Eval(&t.Condition, lookup) {
			continue
		}
		if done, ok := state.PathValue(t.CheckField); ok && done == true {
			continue
		}
		key := t.Action + "|" + paramsKey(t.Params)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, PendingAction{TriggerID: t.ID, Action: t.Action, Params: t.Params})
	}
	return out
}

// paramsKey is a canonical textual form of trigger params; JSON object keys
// marshal sorted, so equal maps produce equal keys.
func paramsKey(params map[string]any) string {
	if len(params) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%v", params)
	}
	return string(raw)
}

func pendingObservation(p PendingAction) string {
	return fmt.Sprintf("mandatory action pending: %s(%s)", p.Action, paramsKey(p.Params))
}

// runFSMValidator applies a compliance pass after a critical tool: the
// session adopts the inferred phase, violations and due obligations are
// queued as observations for the next reasoning pass, and a completed
// procedure routes to the output generator.
func (e *Engine) runFSMValidator(sc *models.Scenario, state *models.State, emit EmitFunc) string {
	res := ValidateFSM(sc, state)

	if res.InferredState != state.FSMState {
		e.logger.Info("Response phase advanced",
			"session_id", state.SessionID,
			"from", state.FSMState,
			"to", res.InferredState)
		state.FSMState = res.InferredState
	}

	var added []string
	for _, errText := range res.Errors {
		added = append(added, "compliance: "+errText)
	}
	for _, p := range res.PendingActions {
		added = append(added, pendingObservation(p))
	}
	state.PendingObservations = append(state.PendingObservations, added...)

	u := events.NewNodeUpdate(events.NodeFSMValidator, state.SessionID)
	u.FSMState = state.FSMState
	if len(added) > 0 {
		u.CurrentObservation = strings.Join(added, "\n")
	}
	emit(u)

	if !res.IsValid {
		return events.NodeReasoning
	}
	if res.InferredState == models.FSMStateCompleted {
		return events.NodeOutputGenerator
	}
	return events.NodeReasoning
}
