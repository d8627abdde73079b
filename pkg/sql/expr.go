package sql

import (
	"context"
	"strings"

	"github.com/JayabrataBasu/veridicalql/pkg/catalog"
	"github.com/JayabrataBasu/veridicalql/pkg/cursor"
	"github.com/JayabrataBasu/veridicalql/pkg/errs"
)

// Expr is a compiled expression.
type Expr interface {
	Eval(env *Env) (catalog.Value, error)
	Type() catalog.DataType
	// Equals reports structural equality.
	Equals(other Expr) bool
	String() string
}

// Env is the evaluation context of one row. Outer points at the env of the
// enclosing query when evaluating a nested plan.
type Env struct {
	ctx      context.Context
	sandbox  *Sandbox
	bindings *Bindings
	record   cursor.Record
	group    []cursor.Record // set while evaluating a grouped row
	outer    *Env
}

// Context returns the execution context.
func (e *Env) Context() context.Context {
	return e.ctx
}

// withRecord returns a copy of e positioned on rec.
func (e *Env) withRecord(rec cursor.Record) *Env {
	cp := *e
	cp.record = rec
	cp.group = nil
	return &cp
}

// withGroup returns a copy of e positioned on a group of records.
func (e *Env) withGroup(group []cursor.Record) *Env {
	cp := *e
	cp.group = group
	cp.record = nil
	if len(group) > 0 {
		cp.record = group[0]
	}
	return &cp
}

func (e *Env) up(depth int) *Env {
	env := e
	for i := 0; i < depth && env != nil; i++ {
		env = env.outer
	}
	return env
}

// truthy evaluates a predicate. NoValue counts as false.
func truthy(expr Expr, env *Env) (bool, error) {
	v, err := expr.Eval(env)
	if err != nil {
		return false, err
	}
	return v.IsTrue(), nil
}

func exprsEqual(a, b []Expr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !equalOrNil(a[i], b[i]) {
			return false
		}
	}
	return true
}

func equalOrNil(a, b Expr) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equals(b)
}

func joinExprs(exprs []Expr, sep string) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, sep)
}

// ColumnRef reads a column of a source bound at compile time. Depth counts
// how many query levels up the source lives.
type ColumnRef struct {
	Source    string // source key
	Column    string // column key
	Depth     int
	Qualifier string // alias the reference was resolved against
	Name      string
	DataType  catalog.DataType
}

func (c *ColumnRef) Eval(env *Env) (catalog.Value, error) {
	target := env.up(c.Depth)
	if target == nil {
		return catalog.Value{}, errs.NotFound("outer row for column", c.String())
	}
	if target.record == nil {
		return catalog.NoValue(), nil
	}
	return target.record.Get(c.Source, c.Column)
}

func (c *ColumnRef) Type() catalog.DataType { return c.DataType }

func (c *ColumnRef) Equals(other Expr) bool {
	o, ok := other.(*ColumnRef)
	return ok && o.Source == c.Source && o.Column == c.Column && o.Depth == c.Depth
}

func (c *ColumnRef) String() string {
	if c.Qualifier == "" {
		return c.Name
	}
	return c.Qualifier + "." + c.Name
}

// Literal is a constant value.
type Literal struct {
	Value catalog.Value
}

func (l *Literal) Eval(*Env) (catalog.Value, error) { return l.Value, nil }
func (l *Literal) Type() catalog.DataType           { return l.Value.Type }

func (l *Literal) Equals(other Expr) bool {
	o, ok := other.(*Literal)
	return ok && o.Value.IsNull == l.Value.IsNull && catalog.Equal(o.Value, l.Value)
}

func (l *Literal) String() string {
	if l.Value.Type == catalog.TypeString && !l.Value.IsNull {
		return "'" + strings.ReplaceAll(l.Value.Text, "'", "''") + "'"
	}
	return l.Value.String()
}

// SlotRef reads an unknown or named parameter from the execution bindings.
type SlotRef struct {
	Index int
	Name  string // empty for positional unknowns
	Types []catalog.DataType
}

func (s *SlotRef) Eval(env *Env) (catalog.Value, error) {
	if env.bindings == nil {
		return catalog.NoValue(), nil
	}
	return env.bindings.Get(s.Index), nil
}

func (s *SlotRef) Type() catalog.DataType {
	if len(s.Types) == 1 {
		return s.Types[0]
	}
	return catalog.TypeAny
}

func (s *SlotRef) Equals(other Expr) bool {
	o, ok := other.(*SlotRef)
	return ok && o.Index == s.Index
}

func (s *SlotRef) String() string {
	if s.Name != "" {
		return ":" + s.Name
	}
	return "?"
}
