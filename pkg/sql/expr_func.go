package sql

import (
	"math"
	"strings"

	"github.com/JayabrataBasu/veridicalql/pkg/catalog"
	"github.com/JayabrataBasu/veridicalql/pkg/errs"
	"github.com/JayabrataBasu/veridicalql/pkg/function"
)

// Math is an arithmetic expression. A nil Left with Op "-" negates Right.
type Math struct {
	Op          string
	Left, Right Expr
}

func (m *Math) Eval(env *Env) (catalog.Value, error) {
	right, err := m.Right.Eval(env)
	if err != nil {
		return catalog.Value{}, err
	}
	if m.Left == nil {
		if right.IsNull {
			return catalog.NoValue(), nil
		}
		if right.Type != catalog.TypeNumber {
			return catalog.Value{}, errs.TypeMismatch("operand of unary -", "number", right.Type.String())
		}
		return catalog.NewNumber(-right.Num), nil
	}
	left, err := m.Left.Eval(env)
	if err != nil {
		return catalog.Value{}, err
	}
	if left.IsNull || right.IsNull {
		return catalog.NoValue(), nil
	}
	if m.Op == "+" && left.Type == catalog.TypeString && right.Type == catalog.TypeString {
		return catalog.NewString(left.Text + right.Text), nil
	}
	if left.Type != catalog.TypeNumber || right.Type != catalog.TypeNumber {
		return catalog.Value{}, errs.TypeMismatch("operands of "+m.Op, "number", left.Type.String()+" and "+right.Type.String())
	}

	a, b := left.Num, right.Num
	switch m.Op {
	case "+":
		return catalog.NewNumber(a + b), nil
	case "-":
		return catalog.NewNumber(a - b), nil
	case "*":
		return catalog.NewNumber(a * b), nil
	case "/":
		if b == 0 {
			return catalog.NoValue(), nil
		}
		return catalog.NewNumber(a / b), nil
	case "%":
		if b == 0 {
			return catalog.NoValue(), nil
		}
		return catalog.NewNumber(math.Mod(a, b)), nil
	default:
		return catalog.Value{}, errs.Syntax("unknown arithmetic operator %q", m.Op)
	}
}

func (m *Math) Type() catalog.DataType {
	if m.Left != nil && m.Op == "+" && m.Left.Type() == catalog.TypeString && m.Right.Type() == catalog.TypeString {
		return catalog.TypeString
	}
	return catalog.TypeNumber
}

func (m *Math) Equals(other Expr) bool {
	o, ok := other.(*Math)
	return ok && o.Op == m.Op && equalOrNil(m.Left, o.Left) && m.Right.Equals(o.Right)
}

func (m *Math) String() string {
	if m.Left == nil {
		return "-" + m.Right.String()
	}
	return "(" + m.Left.String() + " " + m.Op + " " + m.Right.String() + ")"
}

// Func calls a registered function. Aggregates evaluate their parameter over
// every record of the current group.
type Func struct {
	Fn     function.Function
	Params []Expr
}

func (f *Func) Eval(env *Env) (catalog.Value, error) {
	if f.Fn.Aggregate() {
		return f.evalAggregate(env)
	}
	args := make([]catalog.Value, len(f.Params))
	for i, p := range f.Params {
		v, err := p.Eval(env)
		if err != nil {
			return catalog.Value{}, err
		}
		args[i] = v
	}
	return f.Fn.Run(args...)
}

func (f *Func) evalAggregate(env *Env) (catalog.Value, error) {
	if env.group == nil && env.record != nil {
		return catalog.Value{}, errs.Syntax("aggregate %s evaluated outside a group", f.Fn.Name())
	}
	values := make([]catalog.Value, 0, len(env.group))
	for _, rec := range env.group {
		v, err := f.Params[0].Eval(env.withRecord(rec))
		if err != nil {
			return catalog.Value{}, err
		}
		values = append(values, v)
	}
	return f.Fn.Run(values...)
}

func (f *Func) Type() catalog.DataType {
	types := make([]catalog.DataType, len(f.Params))
	for i, p := range f.Params {
		types[i] = p.Type()
	}
	return f.Fn.ReturnType(types)
}

func (f *Func) Equals(other Expr) bool {
	o, ok := other.(*Func)
	return ok && strings.EqualFold(o.Fn.Name(), f.Fn.Name()) && exprsEqual(f.Params, o.Params)
}

func (f *Func) String() string {
	return f.Fn.Name() + "(" + joinExprs(f.Params, ", ") + ")"
}
