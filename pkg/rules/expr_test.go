package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airside-ops/apron/pkg/models"
)

func leaf(field, op string, value any) models.Expr {
	return models.Expr{Field: field, Op: op, Value: value}
}

func TestValidateExpr(t *testing.T) {
	tests := []struct {
		name    string
		expr    models.Expr
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid leaf",
			expr: leaf("fluid_type", OpEq, "FUEL"),
		},
		{
			name: "valid nested combinators",
			expr: models.Expr{All: []models.Expr{
				leaf("fluid_type", OpEq, "FUEL"),
				{Any: []models.Expr{
					leaf("engine_status", OpEq, "RUNNING"),
					leaf("continuous", OpEq, true),
				}},
			}},
		},
		{
			name: "valid not",
			expr: models.Expr{Not: &models.Expr{Field: "leak_size", Op: OpMissingOrEmpty}},
		},
		{
			name:    "empty",
			expr:    models.Expr{},
			wantErr: true,
			errMsg:  "empty condition",
		},
		{
			name:    "unknown operator",
			expr:    leaf("fluid_type", "matches", "FUEL"),
			wantErr: true,
			errMsg:  "unknown operator",
		},
		{
			name:    "missing field",
			expr:    models.Expr{Op: OpEq, Value: "FUEL"},
			wantErr: true,
			errMsg:  "missing field",
		},
		{
			name: "mixed combinators",
			expr: models.Expr{
				All: []models.Expr{leaf("a", OpEq, 1)},
				Any: []models.Expr{leaf("b", OpEq, 2)},
			},
			wantErr: true,
			errMsg:  "mixes combinators",
		},
		{
			name: "combinator with leaf fields",
			expr: models.Expr{
				All:   []models.Expr{leaf("a", OpEq, 1)},
				Field: "b",
				Op:    OpEq,
			},
			wantErr: true,
			errMsg:  "mixes combinator and leaf",
		},
		{
			name: "invalid nested",
			expr: models.Expr{All: []models.Expr{
				leaf("a", OpEq, 1),
				leaf("b", "regex", "x"),
			}},
			wantErr: true,
			errMsg:  "unknown operator",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateExpr(&tt.expr)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestEvalOperators(t *testing.T) {
	facts := map[string]any{
		"fluid_type":    "FUEL",
		"engine_status": "RUNNING",
		"continuous":    true,
		"fod_size_cm":   3.0,
		"phase":         "TAKEOFF_ROLL",
		"remarks":       "异响和振动",
		"tags":          []any{"engine", "left"},
		"empty_field":   "",
	}
	lookup := MapLookup(facts)

	tests := []struct {
		name string
		expr models.Expr
		want bool
	}{
		{name: "eq match", expr: leaf("fluid_type", OpEq, "FUEL"), want: true},
		{name: "eq miss", expr: leaf("fluid_type", OpEq, "OIL"), want: false},
		{name: "eq bool against string form", expr: leaf("continuous", OpEq, "true"), want: true},
		{name: "ne", expr: leaf("fluid_type", OpNe, "OIL"), want: true},
		{name: "gt", expr: leaf("fod_size_cm", OpGt, 2), want: true},
		{name: "gt equal is false", expr: leaf("fod_size_cm", OpGt, 3), want: false},
		{name: "gte equal", expr: leaf("fod_size_cm", OpGte, 3), want: true},
		{name: "lt", expr: leaf("fod_size_cm", OpLt, 5), want: true},
		{name: "lte", expr: leaf("fod_size_cm", OpLte, 3), want: true},
		{name: "numeric string compares numerically", expr: leaf("fod_size_cm", OpEq, "3"), want: true},
		{name: "in", expr: leaf("phase", OpIn, []any{"TAKEOFF_ROLL", "CLIMB"}), want: true},
		{name: "in miss", expr: leaf("phase", OpIn, []any{"LANDING"}), want: false},
		{name: "not_in", expr: leaf("phase", OpNotIn, []any{"LANDING"}), want: true},
		{name: "contains substring", expr: leaf("remarks", OpContains, "振动"), want: true},
		{name: "contains list member", expr: leaf("tags", OpContains, "engine"), want: true},
		{name: "missing_or_empty on absent", expr: leaf("nope", OpMissingOrEmpty, nil), want: true},
		{name: "missing_or_empty on empty string", expr: leaf("empty_field", OpMissingOrEmpty, nil), want: true},
		{name: "missing_or_empty on present", expr: leaf("fluid_type", OpMissingOrEmpty, nil), want: false},
		{name: "not_missing_or_empty", expr: leaf("fluid_type", OpNotMissingOrEmpty, nil), want: true},
		{name: "absent field fails comparisons", expr: leaf("nope", OpEq, "x"), want: false},
		{
			name: "all",
			expr: models.Expr{All: []models.Expr{
				leaf("fluid_type", OpEq, "FUEL"),
				leaf("engine_status", OpEq, "RUNNING"),
			}},
			want: true,
		},
		{
			name: "all short-circuits false",
			expr: models.Expr{All: []models.Expr{
				leaf("fluid_type", OpEq, "OIL"),
				leaf("engine_status", OpEq, "RUNNING"),
			}},
			want: false,
		},
		{
			name: "any",
			expr: models.Expr{Any: []models.Expr{
				leaf("fluid_type", OpEq, "OIL"),
				leaf("engine_status", OpEq, "RUNNING"),
			}},
			want: true,
		},
		{
			name: "not",
			expr: models.Expr{Not: &models.Expr{Field: "fluid_type", Op: OpEq, Value: "OIL"}},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Eval(&tt.expr, lookup))
		})
	}
}

func TestStateLookup(t *testing.T) {
	state := models.NewState("s1", "oil_spill")
	state.Incident["fluid_type"] = "FUEL"
	state.Checklist["p1_complete"] = true
	state.MandatoryActionsDone["risk_assessed"] = true
	state.RiskAssessment = &models.RiskAssessment{Level: "HIGH", Score: 95}

	lookup := StateLookup(state)

	expr := models.Expr{All: []models.Expr{
		leaf("incident.fluid_type", OpEq, "FUEL"),
		leaf("checklist.p1_complete", OpEq, true),
		leaf("risk_assessment.level", OpIn, []any{"HIGH", "CRITICAL"}),
	}}
	assert.True(t, Eval(&expr, lookup))

	missing := leaf("incident.leak_size", OpNotMissingOrEmpty, nil)
	assert.False(t, Eval(&missing, lookup))
}

func TestStricter(t *testing.T) {
	assert.Equal(t, "HIGH", Stricter("MEDIUM", "HIGH"))
	assert.Equal(t, "HIGH", Stricter("HIGH", "MEDIUM"))
	assert.Equal(t, "R4", Stricter("R2", "R4"))
	assert.Equal(t, "CRITICAL", Stricter("CRITICAL", "CRITICAL"))
	assert.Equal(t, "LOW", Stricter("LOW", ""))
}
