package sql

import (
	"regexp"
	"strings"

	"github.com/JayabrataBasu/veridicalql/pkg/catalog"
	"github.com/JayabrataBasu/veridicalql/pkg/errs"
)

// compareValues applies a comparison operator. Any NoValue operand makes the
// comparison false; values of different types are never equal or ordered.
func compareValues(op string, left, right catalog.Value) (bool, error) {
	if left.IsNull || right.IsNull {
		return false, nil
	}
	if left.Type != right.Type {
		return op == "<>" || op == "!=", nil
	}
	cmp := catalog.Compare(left, right)
	switch op {
	case "=", "==":
		return cmp == 0, nil
	case "<>", "!=":
		return cmp != 0, nil
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	case ">=":
		return cmp >= 0, nil
	default:
		return false, errs.Syntax("unknown comparison operator %q", op)
	}
}

// Compare is a binary comparison.
type Compare struct {
	Op          string
	Left, Right Expr
}

func (c *Compare) Eval(env *Env) (catalog.Value, error) {
	left, err := c.Left.Eval(env)
	if err != nil {
		return catalog.Value{}, err
	}
	right, err := c.Right.Eval(env)
	if err != nil {
		return catalog.Value{}, err
	}
	ok, err := compareValues(c.Op, left, right)
	if err != nil {
		return catalog.Value{}, err
	}
	return catalog.NewBool(ok), nil
}

func (c *Compare) Type() catalog.DataType { return catalog.TypeBoolean }

func (c *Compare) Equals(other Expr) bool {
	o, ok := other.(*Compare)
	return ok && o.Op == c.Op && c.Left.Equals(o.Left) && c.Right.Equals(o.Right)
}

func (c *Compare) String() string {
	return "(" + c.Left.String() + " " + c.Op + " " + c.Right.String() + ")"
}

// Between tests Start <= Left <= End.
type Between struct {
	Left, Start, End Expr
	Not              bool
}

func (b *Between) Eval(env *Env) (catalog.Value, error) {
	left, err := b.Left.Eval(env)
	if err != nil {
		return catalog.Value{}, err
	}
	start, err := b.Start.Eval(env)
	if err != nil {
		return catalog.Value{}, err
	}
	end, err := b.End.Eval(env)
	if err != nil {
		return catalog.Value{}, err
	}
	if left.IsNull || start.IsNull || end.IsNull {
		return catalog.NewBool(false), nil
	}
	lower, _ := compareValues("<=", start, left)
	upper, _ := compareValues("<=", left, end)
	return catalog.NewBool((lower && upper) != b.Not), nil
}

func (b *Between) Type() catalog.DataType { return catalog.TypeBoolean }

func (b *Between) Equals(other Expr) bool {
	o, ok := other.(*Between)
	return ok && o.Not == b.Not && b.Left.Equals(o.Left) && b.Start.Equals(o.Start) && b.End.Equals(o.End)
}

func (b *Between) String() string {
	not := ""
	if b.Not {
		not = "NOT "
	}
	return "(" + b.Left.String() + " " + not + "BETWEEN " + b.Start.String() + " AND " + b.End.String() + ")"
}

// Like matches a string against a LIKE pattern. The pattern is compiled once
// when it is a literal.
type Like struct {
	Left, Right     Expr
	Not             bool
	CaseInsensitive bool
	compiled        *regexp.Regexp
}

// likeRegexp translates a LIKE pattern: % matches any run, _ one character.
func likeRegexp(pattern string, caseInsensitive bool) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("(?s)")
	if caseInsensitive {
		b.WriteString("(?i)")
	}
	b.WriteByte('^')
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteByte('.')
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, errs.Syntax("malformed LIKE pattern %q: %v", pattern, err)
	}
	return re, nil
}

func (l *Like) Eval(env *Env) (catalog.Value, error) {
	left, err := l.Left.Eval(env)
	if err != nil {
		return catalog.Value{}, err
	}
	if left.IsNull || left.Type != catalog.TypeString {
		return catalog.NewBool(false), nil
	}
	re := l.compiled
	if re == nil {
		pattern, err := l.Right.Eval(env)
		if err != nil {
			return catalog.Value{}, err
		}
		if pattern.IsNull || pattern.Type != catalog.TypeString {
			return catalog.NewBool(false), nil
		}
		if re, err = likeRegexp(pattern.Text, l.CaseInsensitive); err != nil {
			return catalog.Value{}, err
		}
	}
	return catalog.NewBool(re.MatchString(left.Text) != l.Not), nil
}

func (l *Like) Type() catalog.DataType { return catalog.TypeBoolean }

func (l *Like) Equals(other Expr) bool {
	o, ok := other.(*Like)
	return ok && o.Not == l.Not && o.CaseInsensitive == l.CaseInsensitive &&
		l.Left.Equals(o.Left) && l.Right.Equals(o.Right)
}

func (l *Like) String() string {
	op := "LIKE"
	if l.CaseInsensitive {
		op = "ILIKE"
	}
	if l.Not {
		op = "NOT " + op
	}
	return "(" + l.Left.String() + " " + op + " " + l.Right.String() + ")"
}

// In tests membership. Exactly one of Values, Right and Query is set.
type In struct {
	Left   Expr
	Values []Expr
	Right  Expr      // must evaluate to an Array, or a single value
	Query  *Subquery // first column of every row
	Not    bool
}

func (in *In) Eval(env *Env) (catalog.Value, error) {
	left, err := in.Left.Eval(env)
	if err != nil {
		return catalog.Value{}, err
	}
	if left.IsNull {
		return catalog.NewBool(false), nil
	}
	candidates, err := in.candidates(env)
	if err != nil {
		return catalog.Value{}, err
	}
	found := false
	for _, c := range candidates {
		if eq, _ := compareValues("=", left, c); eq {
			found = true
			break
		}
	}
	return catalog.NewBool(found != in.Not), nil
}

func (in *In) candidates(env *Env) ([]catalog.Value, error) {
	switch {
	case in.Query != nil:
		return in.Query.column(env)
	case in.Right != nil:
		v, err := in.Right.Eval(env)
		if err != nil {
			return nil, err
		}
		if v.Type == catalog.TypeArray && !v.IsNull {
			return v.Items, nil
		}
		return []catalog.Value{v}, nil
	default:
		out := make([]catalog.Value, 0, len(in.Values))
		for _, e := range in.Values {
			v, err := e.Eval(env)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
}

func (in *In) Type() catalog.DataType { return catalog.TypeBoolean }

func (in *In) Equals(other Expr) bool {
	o, ok := other.(*In)
	if !ok || o.Not != in.Not || !in.Left.Equals(o.Left) || !exprsEqual(in.Values, o.Values) || !equalOrNil(in.Right, o.Right) {
		return false
	}
	if in.Query == nil || o.Query == nil {
		return in.Query == nil && o.Query == nil
	}
	return in.Query.Equals(o.Query)
}

func (in *In) String() string {
	op := " IN "
	if in.Not {
		op = " NOT IN "
	}
	switch {
	case in.Query != nil:
		return "(" + in.Left.String() + op + in.Query.String() + ")"
	case in.Right != nil:
		return "(" + in.Left.String() + op + in.Right.String() + ")"
	default:
		return "(" + in.Left.String() + op + "(" + joinExprs(in.Values, ", ") + "))"
	}
}

// IsNull tests for NoValue.
type IsNull struct {
	Left Expr
	Not  bool
}

func (n *IsNull) Eval(env *Env) (catalog.Value, error) {
	v, err := n.Left.Eval(env)
	if err != nil {
		return catalog.Value{}, err
	}
	return catalog.NewBool(v.IsNull != n.Not), nil
}

func (n *IsNull) Type() catalog.DataType { return catalog.TypeBoolean }

func (n *IsNull) Equals(other Expr) bool {
	o, ok := other.(*IsNull)
	return ok && o.Not == n.Not && n.Left.Equals(o.Left)
}

func (n *IsNull) String() string {
	if n.Not {
		return "(" + n.Left.String() + " IS NOT NULL)"
	}
	return "(" + n.Left.String() + " IS NULL)"
}

// Not negates a predicate.
type Not struct {
	Expr Expr
}

func (n *Not) Eval(env *Env) (catalog.Value, error) {
	ok, err := truthy(n.Expr, env)
	if err != nil {
		return catalog.Value{}, err
	}
	return catalog.NewBool(!ok), nil
}

func (n *Not) Type() catalog.DataType { return catalog.TypeBoolean }

func (n *Not) Equals(other Expr) bool {
	o, ok := other.(*Not)
	return ok && n.Expr.Equals(o.Expr)
}

func (n *Not) String() string { return "NOT " + n.Expr.String() }

// Grouped combines predicates with AND or OR, short-circuiting.
type Grouped struct {
	Or    bool
	Exprs []Expr
}

func (g *Grouped) Eval(env *Env) (catalog.Value, error) {
	for _, e := range g.Exprs {
		ok, err := truthy(e, env)
		if err != nil {
			return catalog.Value{}, err
		}
		if ok == g.Or {
			return catalog.NewBool(ok), nil
		}
	}
	return catalog.NewBool(!g.Or), nil
}

func (g *Grouped) Type() catalog.DataType { return catalog.TypeBoolean }

func (g *Grouped) Equals(other Expr) bool {
	o, ok := other.(*Grouped)
	return ok && o.Or == g.Or && exprsEqual(g.Exprs, o.Exprs)
}

func (g *Grouped) String() string {
	if g.Or {
		return "(" + joinExprs(g.Exprs, " OR ") + ")"
	}
	return "(" + joinExprs(g.Exprs, " AND ") + ")"
}

// When is one arm of a Case.
type When struct {
	Cond, Result Expr
}

// Case picks the result of the first matching arm. With an Operand, arms
// match by equality with it; otherwise each Cond is a predicate.
type Case struct {
	Operand Expr
	Whens   []When
	Else    Expr
}

func (c *Case) Eval(env *Env) (catalog.Value, error) {
	var operand catalog.Value
	if c.Operand != nil {
		v, err := c.Operand.Eval(env)
		if err != nil {
			return catalog.Value{}, err
		}
		operand = v
	}
	for _, w := range c.Whens {
		var matched bool
		if c.Operand != nil {
			v, err := w.Cond.Eval(env)
			if err != nil {
				return catalog.Value{}, err
			}
			matched, _ = compareValues("=", operand, v)
		} else {
			ok, err := truthy(w.Cond, env)
			if err != nil {
				return catalog.Value{}, err
			}
			matched = ok
		}
		if matched {
			return w.Result.Eval(env)
		}
	}
	if c.Else != nil {
		return c.Else.Eval(env)
	}
	return catalog.NoValue(), nil
}

func (c *Case) Type() catalog.DataType {
	if len(c.Whens) > 0 {
		return c.Whens[0].Result.Type()
	}
	return catalog.TypeAny
}

func (c *Case) Equals(other Expr) bool {
	o, ok := other.(*Case)
	if !ok || len(o.Whens) != len(c.Whens) || !equalOrNil(c.Operand, o.Operand) || !equalOrNil(c.Else, o.Else) {
		return false
	}
	for i := range c.Whens {
		if !c.Whens[i].Cond.Equals(o.Whens[i].Cond) || !c.Whens[i].Result.Equals(o.Whens[i].Result) {
			return false
		}
	}
	return true
}

func (c *Case) String() string {
	var b strings.Builder
	b.WriteString("CASE")
	if c.Operand != nil {
		b.WriteString(" " + c.Operand.String())
	}
	for _, w := range c.Whens {
		b.WriteString(" WHEN " + w.Cond.String() + " THEN " + w.Result.String())
	}
	if c.Else != nil {
		b.WriteString(" ELSE " + c.Else.String())
	}
	b.WriteString(" END")
	return b.String()
}
