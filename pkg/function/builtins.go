package function

import (
	"math"
	"strings"
	"time"

	"github.com/JayabrataBasu/veridicalql/pkg/ast"
	"github.com/JayabrataBasu/veridicalql/pkg/catalog"
	"github.com/JayabrataBasu/veridicalql/pkg/errs"
)

// builtin is a table-driven Function. maxArgs < 0 means variadic.
type builtin struct {
	name       string
	aggregate  bool
	minArgs    int
	maxArgs    int
	run        func(args []catalog.Value) (catalog.Value, error)
	returns    func(argTypes []catalog.DataType) catalog.DataType
	preprocess func(params []ast.Expression) []ast.Expression
}

func (b *builtin) Name() string    { return b.name }
func (b *builtin) Aggregate() bool { return b.aggregate }

func (b *builtin) Preprocess(params []ast.Expression) ([]ast.Expression, error) {
	if len(params) < b.minArgs || (b.maxArgs >= 0 && len(params) > b.maxArgs) {
		return nil, errs.Syntax("%s expects %s, got %d", b.name, b.arity(), len(params))
	}
	if b.preprocess != nil {
		params = b.preprocess(params)
	}
	return params, nil
}

func (b *builtin) arity() string {
	switch {
	case b.maxArgs < 0:
		return plural(b.minArgs) + " or more"
	case b.minArgs == b.maxArgs:
		return plural(b.minArgs)
	default:
		return plural(b.minArgs) + " to " + plural(b.maxArgs)
	}
}

func plural(n int) string {
	switch n {
	case 0:
		return "no arguments"
	case 1:
		return "1 argument"
	case 2:
		return "2 arguments"
	default:
		return "3 arguments"
	}
}

func (b *builtin) Run(args ...catalog.Value) (catalog.Value, error) {
	return b.run(args)
}

func (b *builtin) ReturnType(argTypes []catalog.DataType) catalog.DataType {
	return b.returns(argTypes)
}

func returns(t catalog.DataType) func([]catalog.DataType) catalog.DataType {
	return func([]catalog.DataType) catalog.DataType { return t }
}

func firstArgType(argTypes []catalog.DataType) catalog.DataType {
	if len(argTypes) == 0 {
		return catalog.TypeAny
	}
	return argTypes[0]
}

func builtins() []*builtin {
	return []*builtin{
		// Aggregates
		{name: "COUNT", aggregate: true, minArgs: 1, maxArgs: 1, run: count, returns: returns(catalog.TypeNumber), preprocess: countStar},
		{name: "SUM", aggregate: true, minArgs: 1, maxArgs: 1, run: sum, returns: returns(catalog.TypeNumber)},
		{name: "AVG", aggregate: true, minArgs: 1, maxArgs: 1, run: avg, returns: returns(catalog.TypeNumber)},
		{name: "MIN", aggregate: true, minArgs: 1, maxArgs: 1, run: extreme(-1), returns: firstArgType},
		{name: "MAX", aggregate: true, minArgs: 1, maxArgs: 1, run: extreme(1), returns: firstArgType},

		// Scalars
		{name: "ABS", minArgs: 1, maxArgs: 1, run: abs, returns: returns(catalog.TypeNumber)},
		{name: "ROUND", minArgs: 1, maxArgs: 2, run: round, returns: returns(catalog.TypeNumber)},
		{name: "UPPER", minArgs: 1, maxArgs: 1, run: mapString("UPPER", strings.ToUpper), returns: returns(catalog.TypeString)},
		{name: "LOWER", minArgs: 1, maxArgs: 1, run: mapString("LOWER", strings.ToLower), returns: returns(catalog.TypeString)},
		{name: "LENGTH", minArgs: 1, maxArgs: 1, run: length, returns: returns(catalog.TypeNumber)},
		{name: "CONCAT", minArgs: 1, maxArgs: -1, run: concat, returns: returns(catalog.TypeString)},
		{name: "COALESCE", minArgs: 1, maxArgs: -1, run: coalesce, returns: firstArgType},
		{name: "SUBSTR", minArgs: 2, maxArgs: 3, run: substr, returns: returns(catalog.TypeString)},
		{name: "NOW", minArgs: 0, maxArgs: 0, run: now, returns: returns(catalog.TypeDate)},
	}
}

// countStar rewrites COUNT(*) into COUNT(1) so every record counts.
func countStar(params []ast.Expression) []ast.Expression {
	if c, ok := params[0].(*ast.Column); ok && c.Wildcard {
		return []ast.Expression{&ast.Value{Value: float64(1)}}
	}
	return params
}

func count(args []catalog.Value) (catalog.Value, error) {
	n := 0
	for _, v := range args {
		if !v.IsNull {
			n++
		}
	}
	return catalog.NewInt(int64(n)), nil
}

// sum treats NoValue and non-numeric values as 0.
func sum(args []catalog.Value) (catalog.Value, error) {
	total := 0.0
	for _, v := range args {
		if !v.IsNull && v.Type == catalog.TypeNumber {
			total += v.Num
		}
	}
	return catalog.NewNumber(total), nil
}

func avg(args []catalog.Value) (catalog.Value, error) {
	total, n := 0.0, 0
	for _, v := range args {
		if !v.IsNull && v.Type == catalog.TypeNumber {
			total += v.Num
			n++
		}
	}
	if n == 0 {
		return catalog.NoValue(), nil
	}
	return catalog.NewNumber(total / float64(n)), nil
}

func extreme(sign int) func([]catalog.Value) (catalog.Value, error) {
	return func(args []catalog.Value) (catalog.Value, error) {
		best := catalog.NoValue()
		for _, v := range args {
			if v.IsNull {
				continue
			}
			if best.IsNull || catalog.Compare(v, best)*sign > 0 {
				best = v
			}
		}
		return best, nil
	}
}

func number(fn string, v catalog.Value) (float64, error) {
	if v.Type != catalog.TypeNumber {
		return 0, errs.TypeMismatch(fn+" argument", "number", v.Type.String())
	}
	return v.Num, nil
}

func abs(args []catalog.Value) (catalog.Value, error) {
	if args[0].IsNull {
		return catalog.NoValue(), nil
	}
	n, err := number("ABS", args[0])
	if err != nil {
		return catalog.Value{}, err
	}
	return catalog.NewNumber(math.Abs(n)), nil
}

func round(args []catalog.Value) (catalog.Value, error) {
	if args[0].IsNull {
		return catalog.NoValue(), nil
	}
	n, err := number("ROUND", args[0])
	if err != nil {
		return catalog.Value{}, err
	}
	digits := 0.0
	if len(args) == 2 && !args[1].IsNull {
		if digits, err = number("ROUND", args[1]); err != nil {
			return catalog.Value{}, err
		}
	}
	scale := math.Pow(10, math.Trunc(digits))
	return catalog.NewNumber(math.Round(n*scale) / scale), nil
}

func mapString(fn string, f func(string) string) func([]catalog.Value) (catalog.Value, error) {
	return func(args []catalog.Value) (catalog.Value, error) {
		if args[0].IsNull {
			return catalog.NoValue(), nil
		}
		if args[0].Type != catalog.TypeString {
			return catalog.Value{}, errs.TypeMismatch(fn+" argument", "string", args[0].Type.String())
		}
		return catalog.NewString(f(args[0].Text)), nil
	}
}

func length(args []catalog.Value) (catalog.Value, error) {
	v := args[0]
	switch {
	case v.IsNull:
		return catalog.NoValue(), nil
	case v.Type == catalog.TypeString:
		return catalog.NewInt(int64(len([]rune(v.Text)))), nil
	case v.Type == catalog.TypeArray:
		return catalog.NewInt(int64(len(v.Items))), nil
	default:
		return catalog.Value{}, errs.TypeMismatch("LENGTH argument", "string or Array", v.Type.String())
	}
}

// concat skips NoValue arguments and renders non-strings in display form.
func concat(args []catalog.Value) (catalog.Value, error) {
	var b strings.Builder
	for _, v := range args {
		if v.IsNull {
			continue
		}
		b.WriteString(v.String())
	}
	return catalog.NewString(b.String()), nil
}

func coalesce(args []catalog.Value) (catalog.Value, error) {
	for _, v := range args {
		if !v.IsNull {
			return v, nil
		}
	}
	return catalog.NoValue(), nil
}

// substr uses 1-based rune positions.
func substr(args []catalog.Value) (catalog.Value, error) {
	if args[0].IsNull || args[1].IsNull {
		return catalog.NoValue(), nil
	}
	if args[0].Type != catalog.TypeString {
		return catalog.Value{}, errs.TypeMismatch("SUBSTR argument", "string", args[0].Type.String())
	}
	start, err := number("SUBSTR", args[1])
	if err != nil {
		return catalog.Value{}, err
	}
	runes := []rune(args[0].Text)

	// Bounds are clamped as floats so huge or NaN arguments never reach int.
	from := 0
	if start >= 1 {
		if start-1 >= float64(len(runes)) {
			return catalog.NewString(""), nil
		}
		from = int(start) - 1
	}
	to := len(runes)
	if len(args) == 3 && !args[2].IsNull {
		n, err := number("SUBSTR", args[2])
		if err != nil {
			return catalog.Value{}, err
		}
		switch {
		case !(n > 0):
			to = from
		case n < float64(to-from):
			to = from + int(n)
		}
	}
	return catalog.NewString(string(runes[from:to])), nil
}

func now([]catalog.Value) (catalog.Value, error) {
	return catalog.NewDate(time.Now().UTC()), nil
}
