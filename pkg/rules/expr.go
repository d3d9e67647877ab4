// Package rules implements the two risk evaluators: the priority-ordered
// oil-spill rule table and the weighted JSON rule sets used for bird-strike
// and FOD scenarios, plus the condition language shared with mandatory
// triggers.
package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/airside-ops/apron/pkg/models"
)

// Condition operators.
const (
	OpEq                = "eq"
	OpNe                = "ne"
	OpGt                = "gt"
	OpLt                = "lt"
	OpGte               = "gte"
	OpLte               = "lte"
	OpIn                = "in"
	OpNotIn             = "not_in"
	OpContains          = "contains"
	OpMissingOrEmpty    = "missing_or_empty"
	OpNotMissingOrEmpty = "not_missing_or_empty"
)

var knownOps = map[string]bool{
	OpEq: true, OpNe: true, OpGt: true, OpLt: true, OpGte: true, OpLte: true,
	OpIn: true, OpNotIn: true, OpContains: true,
	OpMissingOrEmpty: true, OpNotMissingOrEmpty: true,
}

// Lookup resolves a condition field to its value. The boolean reports
// whether the field is present.
type Lookup func(field string) (any, bool)

// MapLookup adapts a plain fact map.
func MapLookup(facts map[string]any) Lookup {
	return func(field string) (any, bool) {
		v, ok := facts[field]
		return v, ok
	}
}

// StateLookup adapts state-path resolution for trigger conditions.
func StateLookup(state *models.State) Lookup {
	return state.PathValue
}

// ValidateExpr checks an expression tree structurally: combinators must not
// be mixed with leaves, and leaf operators must be known. Configuration with
// an invalid expression fails process start.
func ValidateExpr(e *models.Expr) error {
	if e == nil || e.IsZero() {
		return fmt.Errorf("empty condition")
	}
	combinators := 0
	if len(e.All) > 0 {
		combinators++
	}
	if len(e.Any) > 0 {
		combinators++
	}
	if e.Not != nil {
		combinators++
	}
	if combinators > 1 {
		return fmt.Errorf("condition mixes combinators")
	}
	if combinators == 1 {
		if e.Field != "" || e.Op != "" {
			return fmt.Errorf("condition mixes combinator and leaf")
		}
		for i := range e.All {
			if err := ValidateExpr(&e.All[i]); err != nil {
				return err
			}
		}
		for i := range e.Any {
			if err := ValidateExpr(&e.Any[i]); err != nil {
				return err
			}
		}
		if e.Not != nil {
			return ValidateExpr(e.Not)
		}
		return nil
	}
	if e.Field == "" {
		return fmt.Errorf("condition leaf missing field")
	}
	if !knownOps[e.Op] {
		return fmt.Errorf("unknown operator %q on field %q", e.Op, e.Field)
	}
	return nil
}

// Eval evaluates a condition tree against the lookup. An empty `all` is
// true, an empty `any` is false, matching conventional semantics.
func Eval(e *models.Expr, lookup Lookup) bool {
	switch {
	case len(e.All) > 0:
		for i := range e.All {
			if !Eval(&e.All[i], lookup) {
				return false
			}
		}
		return true
	case len(e.Any) > 0:
		for i := range e.Any {
			if Eval(&e.Any[i], lookup) {
				return true
			}
		}
		return false
	case e.Not != nil:
		return !Eval(e.Not, lookup)
	}
	return evalLeaf(e, lookup)
}

func evalLeaf(e *models.Expr, lookup Lookup) bool {
	v, present := lookup(e.Field)

	switch e.Op {
	case OpMissingOrEmpty:
		return !present || isEmpty(v)
	case OpNotMissingOrEmpty:
		return present && !isEmpty(v)
	}
	if !present {
		return false
	}

	switch e.Op {
	case OpEq:
		return looseEqual(v, e.Value)
	case OpNe:
		return !looseEqual(v, e.Value)
	case OpGt, OpLt, OpGte, OpLte:
		a, okA := toFloat(v)
		b, okB := toFloat(e.Value)
		if !okA || !okB {
			return false
		}
		switch e.Op {
		case OpGt:
			return a > b
		case OpLt:
			return a < b
		case OpGte:
			return a >= b
		default:
			return a <= b
		}
	case OpIn:
		return containsValue(e.Value, v)
	case OpNotIn:
		return !containsValue(e.Value, v)
	case OpContains:
		return contains(v, e.Value)
	}
	return false
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

// looseEqual compares scalars the way declarative rules expect: numbers by
// value regardless of concrete type, booleans against the strings
// "true"/"false" that YAML sometimes yields, everything else by normalised
// string form.
func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	if fa, okA := toFloat(a); okA {
		if fb, okB := toFloat(b); okB {
			return fa == fb
		}
	}
	return normString(a) == normString(b)
}

func normString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

// containsValue reports whether list (a slice value from YAML/JSON) contains
// needle under loose equality.
func containsValue(list, needle any) bool {
	switch t := list.(type) {
	case []any:
		for _, item := range t {
			if looseEqual(item, needle) {
				return true
			}
		}
	case []string:
		for _, item := range t {
			if looseEqual(item, needle) {
				return true
			}
		}
	}
	return false
}

// contains implements the `contains` operator: substring for strings,
// membership when the field value is itself a list.
func contains(fieldValue, needle any) bool {
	switch t := fieldValue.(type) {
	case string:
		return strings.Contains(t, normString(needle))
	case []any, []string:
		return containsValue(fieldValue, needle)
	}
	return false
}
