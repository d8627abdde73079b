package sql

import (
	"github.com/JayabrataBasu/veridicalql/pkg/catalog"
)

// Subquery is a nested plan used as a scalar value: the first column of the
// first row. Without rows it is NoValue.
type Subquery struct {
	Plan *Plan
}

func (s *Subquery) Eval(env *Env) (catalog.Value, error) {
	rows, err := env.sandbox.runNested(env, env, s.Plan, false)
	if err != nil {
		return catalog.Value{}, err
	}
	if len(rows) == 0 {
		return catalog.NoValue(), nil
	}
	return rows[0].Get(s.Plan.Columns[0].Key), nil
}

// column returns the first column of every row.
func (s *Subquery) column(env *Env) ([]catalog.Value, error) {
	rows, err := env.sandbox.runNested(env, env, s.Plan, false)
	if err != nil {
		return nil, err
	}
	key := s.Plan.Columns[0].Key
	out := make([]catalog.Value, len(rows))
	for i, row := range rows {
		out[i] = row.Get(key)
	}
	return out, nil
}

func (s *Subquery) Type() catalog.DataType {
	return s.Plan.Columns[0].Type
}

func (s *Subquery) Equals(other Expr) bool {
	o, ok := other.(*Subquery)
	return ok && o.Plan == s.Plan
}

func (s *Subquery) String() string {
	return "(SELECT ...)"
}

// Exists tests whether a nested plan yields at least one row. The nested
// plan stops at its first row.
type Exists struct {
	Plan *Plan
	Not  bool
}

func (e *Exists) Eval(env *Env) (catalog.Value, error) {
	rows, err := env.sandbox.runNested(env, env, e.Plan, true)
	if err != nil {
		return catalog.Value{}, err
	}
	return catalog.NewBool((len(rows) > 0) != e.Not), nil
}

func (e *Exists) Type() catalog.DataType { return catalog.TypeBoolean }

func (e *Exists) Equals(other Expr) bool {
	o, ok := other.(*Exists)
	return ok && o.Plan == e.Plan && o.Not == e.Not
}

func (e *Exists) String() string {
	if e.Not {
		return "NOT EXISTS (SELECT ...)"
	}
	return "EXISTS (SELECT ...)"
}
