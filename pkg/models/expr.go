package models

// Expr is a boolean condition tree used by weighted risk rules and
// mandatory triggers. Exactly one of All, Any, Not, or the leaf triple
// (Field, Op, Value) is populated.
type Expr struct {
	All []Expr `yaml:"all,omitempty" json:"all,omitempty"`
	Any []Expr `yaml:"any,omitempty" json:"any,omitempty"`
	Not *Expr  `yaml:"not,omitempty" json:"not,omitempty"`

	Field string `yaml:"field,omitempty" json:"field,omitempty"`
	Op    string `yaml:"op,omitempty" json:"op,omitempty"`
	Value any    `yaml:"value,omitempty" json:"value,omitempty"`
}

// IsLeaf reports whether the expression is a field comparison rather than a
// combinator.
func (e *Expr) IsLeaf() bool {
	return len(e.All) == 0 && len(e.Any) == 0 && e.Not == nil
}

// IsZero reports whether the expression is entirely empty.
func (e *Expr) IsZero() bool {
	return e.IsLeaf() && e.Field == "" && e.Op == "" && e.Value == nil
}
