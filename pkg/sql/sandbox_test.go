package sql

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/JayabrataBasu/veridicalql/pkg/ast"
	"github.com/JayabrataBasu/veridicalql/pkg/catalog"
	"github.com/JayabrataBasu/veridicalql/pkg/cursor"
	"github.com/JayabrataBasu/veridicalql/pkg/errs"
)

func TestLeftJoinKeepsStudentsWithoutWarnings(t *testing.T) {
	f := newFixture(t)
	q := sel(field(col("s", "name")), field(col("w", "reason")))
	q.From = []ast.FromItem{
		table("Student", "s", join(ast.JoinLeft, table("Warning", "w"), bin("=", col("s", "id"), col("w", "studentId")))),
	}

	res := f.run(t, q)
	got := res.Native()
	want := []map[string]interface{}{
		{"name": "Alice", "reason": "late"},
		{"name": "Alice", "reason": "noise"},
		{"name": "Bob", "reason": nil},
		{"name": "Carol", "reason": "late"},
		{"name": "Dan", "reason": nil},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestJoinTypes(t *testing.T) {
	tests := []struct {
		typ  ast.JoinType
		want int
	}{
		{ast.JoinInner, 3},
		{ast.JoinLeft, 5},
		{ast.JoinRight, 4},
		{ast.JoinFull, 6},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			f := newFixture(t)
			q := sel(field(col("s", "name")), field(col("w", "reason")))
			q.From = []ast.FromItem{
				table("Student", "s", join(tt.typ, table("Warning", "w"), bin("=", col("s", "id"), col("w", "studentId")))),
			}
			if got := len(f.run(t, q).Rows); got != tt.want {
				t.Errorf("%s join: got %d rows, want %d", tt.typ, got, tt.want)
			}
		})
	}
}

func TestCrossProductOfFromItems(t *testing.T) {
	f := newFixture(t)
	q := sel(field(col("s", "name")), as(col("t", "name"), "teacher"))
	q.From = []ast.FromItem{table("Student", "s"), table("Teacher", "t")}

	res := f.run(t, q)
	if len(res.Rows) != 8 {
		t.Fatalf("got %d rows, want 8", len(res.Rows))
	}
	first := res.Native()[0]
	if first["name"] != "Alice" || first["teacher"] != "Mr. Smith" {
		t.Errorf("unexpected first row %v", first)
	}
}

func TestGroupByWithCount(t *testing.T) {
	f := newFixture(t)
	q := sel(field(col("", "gender")), as(fn("COUNT", star()), "n"))
	q.From = []ast.FromItem{table("Student", "")}
	q.Group = &ast.Group{Exprs: []ast.Expression{col("", "gender")}}
	q.Order = []*ast.Order{{Expr: col("", "gender")}}

	res := f.run(t, q)
	if got, want := column(res, "gender"), []interface{}{"F", "M", nil}; !reflect.DeepEqual(got, want) {
		t.Errorf("gender: got %v, want %v", got, want)
	}
	if got, want := column(res, "n"), []interface{}{int64(2), int64(1), int64(1)}; !reflect.DeepEqual(got, want) {
		t.Errorf("count: got %v, want %v", got, want)
	}
}

func TestAggregateOverEmptyInput(t *testing.T) {
	f := newFixture(t)

	q := sel(as(fn("COUNT", star()), "n"), as(fn("SUM", col("", "id")), "total"))
	q.From = []ast.FromItem{table("Student", "")}
	q.Where = bin(">", col("", "id"), val(100))
	res := f.run(t, q)
	if len(res.Rows) != 1 {
		t.Fatalf("got %d rows, want one summary row", len(res.Rows))
	}
	if got := res.Native()[0]["n"]; got != int64(0) {
		t.Errorf("COUNT over nothing: got %v", got)
	}

	grouped := sel(field(col("", "gender")), as(fn("COUNT", star()), "n"))
	grouped.From = []ast.FromItem{table("Student", "")}
	grouped.Where = bin(">", col("", "id"), val(100))
	grouped.Group = &ast.Group{Exprs: []ast.Expression{col("", "gender")}}
	if res := f.run(t, grouped); len(res.Rows) != 0 {
		t.Errorf("GROUP BY over nothing: got %d rows, want 0", len(res.Rows))
	}
}

func TestHavingUsesSelectAlias(t *testing.T) {
	f := newFixture(t)
	q := sel(field(col("", "studentId")), as(fn("COUNT", star()), "n"))
	q.From = []ast.FromItem{table("Warning", "")}
	q.Group = &ast.Group{
		Exprs:  []ast.Expression{col("", "studentId")},
		Having: bin(">", col("", "n"), val(1)),
	}

	res := f.run(t, q)
	want := []map[string]interface{}{{"studentId": int64(1), "n": int64(2)}}
	if got := res.Native(); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDistinct(t *testing.T) {
	f := newFixture(t)
	q := sel(field(col("", "reason")))
	q.Distinct = true
	q.From = []ast.FromItem{table("Warning", "")}

	res := f.run(t, q)
	if got, want := column(res, "reason"), []interface{}{"late", "noise", "orphan"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestOrderLimitOffset(t *testing.T) {
	tests := []struct {
		name   string
		desc   bool
		limit  interface{}
		offset interface{}
		want   []interface{}
	}{
		{"all ascending", false, nil, nil, []interface{}{"Alice", "Bob", "Carol", "Dan"}},
		{"descending window", true, 2, 1, []interface{}{"Carol", "Bob"}},
		{"offset past end", false, 2, 10, []interface{}{}},
		{"limit zero", false, 0, nil, []interface{}{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			q := sel(field(col("", "name")))
			q.From = []ast.FromItem{table("Student", "")}
			q.Order = []*ast.Order{{Expr: col("", "name"), Desc: tt.desc}}
			if tt.limit != nil || tt.offset != nil {
				q.Limit = &ast.Limit{}
				if tt.limit != nil {
					q.Limit.Count = val(tt.limit)
				}
				if tt.offset != nil {
					q.Limit.Offset = val(tt.offset)
				}
			}
			if got := column(f.run(t, q), "name"); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOrderIsStableAndNoValueLast(t *testing.T) {
	f := newFixture(t)
	q := sel(field(col("", "name")), field(col("", "gender")))
	q.From = []ast.FromItem{table("Student", "")}
	q.Order = []*ast.Order{{Expr: val(2)}}

	got := column(f.run(t, q), "name")
	want := []interface{}{"Alice", "Carol", "Bob", "Dan"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSimpleScan(t *testing.T) {
	f := newFixture(t)
	q := sel(field(col("", "name")))
	q.From = []ast.FromItem{table("Student", "")}
	q.Limit = &ast.Limit{Count: val(2), Offset: val(1)}

	plan := f.compile(t, q)
	if !plan.SimpleScan {
		t.Fatal("expected a simple scan plan")
	}
	res, err := NewSandbox(f.store, nil).Run(context.Background(), plan, RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, want := column(res, "name"), []interface{}{"Bob", "Carol"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestInSubquery(t *testing.T) {
	f := newFixture(t)
	inner := sel(field(col("", "studentId")))
	inner.From = []ast.FromItem{table("Warning", "")}

	q := sel(field(col("", "name")))
	q.From = []ast.FromItem{table("Student", "")}
	q.Where = &ast.In{Left: col("", "id"), Right: &ast.Query{Query: inner}}

	if got, want := column(f.run(t, q), "name"), []interface{}{"Alice", "Carol"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestCorrelatedNotExists(t *testing.T) {
	f := newFixture(t)
	inner := sel(field(val(1)))
	inner.From = []ast.FromItem{table("Warning", "w")}
	inner.Where = bin("=", col("w", "studentId"), col("s", "id"))

	q := sel(field(col("s", "name")))
	q.From = []ast.FromItem{table("Student", "s")}
	q.Where = &ast.Exists{Query: inner, Not: true}

	plan := f.compile(t, q)
	if plan.Correlated {
		t.Error("outer query must not be correlated")
	}
	if got, want := column(f.run(t, q), "name"), []interface{}{"Bob", "Dan"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestCorrelatedScalarSubquery(t *testing.T) {
	f := newFixture(t)
	count := sel(field(fn("COUNT", star())))
	count.From = []ast.FromItem{table("Warning", "w")}
	count.Where = bin("=", col("w", "studentId"), col("s", "id"))

	first := sel(field(col("w", "reason")))
	first.From = []ast.FromItem{table("Warning", "w")}
	first.Where = bin("=", col("w", "studentId"), col("s", "id"))
	first.Limit = &ast.Limit{Count: val(1)}

	q := sel(
		field(col("s", "name")),
		as(&ast.Query{Query: count}, "warnings"),
		as(&ast.Query{Query: first}, "first"),
	)
	q.From = []ast.FromItem{table("Student", "s")}
	q.Order = []*ast.Order{{Expr: col("s", "id")}}

	res := f.run(t, q)
	if got, want := column(res, "warnings"), []interface{}{int64(2), int64(0), int64(1), int64(0)}; !reflect.DeepEqual(got, want) {
		t.Errorf("warnings: got %v, want %v", got, want)
	}
	if got, want := column(res, "first"), []interface{}{"late", nil, "late", nil}; !reflect.DeepEqual(got, want) {
		t.Errorf("first: got %v, want %v", got, want)
	}
}

func TestDerivedTable(t *testing.T) {
	f := newFixture(t)
	inner := sel(field(col("", "name")), field(col("", "id")))
	inner.From = []ast.FromItem{table("Student", "")}
	inner.Where = bin("=", col("", "gender"), val("F"))

	q := sel(field(col("g", "name")))
	q.From = []ast.FromItem{&ast.SubqueryRef{Query: inner, As: "g"}}
	q.Order = []*ast.Order{{Expr: col("g", "id"), Desc: true}}

	plan := f.compile(t, q)
	if !plan.NeedsTempTables {
		t.Error("expected NeedsTempTables")
	}
	sb := NewSandbox(f.store, nil)
	res, err := sb.Run(context.Background(), plan, RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, want := column(res, "name"), []interface{}{"Carol", "Alice"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if n := sb.TempTables(); n != 0 {
		t.Errorf("%d temp tables left after the run", n)
	}
}

func TestRemoteSource(t *testing.T) {
	f := newFixture(t)
	q := sel(field(col("s", "name")), field(col("b", "code")))
	q.From = []ast.FromItem{
		table("Student", "s", join(ast.JoinInner, &ast.RemoteRef{Source: "badges", As: "b"}, bin("=", col("b", "studentId"), col("s", "id")))),
	}

	res := f.run(t, q)
	want := []map[string]interface{}{
		{"name": "Alice", "code": "A1"},
		{"name": "Bob", "code": "B2"},
	}
	if got := res.Native(); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if f.remotes.fetches != 1 {
		t.Errorf("remote fetched %d times, want once", f.remotes.fetches)
	}
}

func TestBindingsAreFreshPerRun(t *testing.T) {
	f := newFixture(t)
	q := sel(field(col("", "name")))
	q.From = []ast.FromItem{table("Student", "")}
	q.Where = bin("=", col("", "id"), &ast.Unknown{Types: []string{"number"}})

	plan := f.compile(t, q)
	if len(plan.Unknowns) != 1 {
		t.Fatalf("got %d unknowns, want 1", len(plan.Unknowns))
	}
	sb := NewSandbox(f.store, nil)

	b := plan.NewBindings()
	if err := b.Set(0, catalog.NewString("two")); !errors.Is(err, errs.ErrTypeMismatch) {
		t.Errorf("expected TypeMismatch binding a string, got %v", err)
	}
	if err := b.Bind(2); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	res, err := sb.Run(context.Background(), plan, RunOptions{Bindings: b})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, want := column(res, "name"), []interface{}{"Bob"}; !reflect.DeepEqual(got, want) {
		t.Errorf("bound run: got %v, want %v", got, want)
	}

	res, err = sb.Run(context.Background(), plan, RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Rows) != 0 {
		t.Errorf("unbound run: got %d rows, want 0", len(res.Rows))
	}
}

func TestExistsOption(t *testing.T) {
	f := newFixture(t)
	q := sel(field(col("", "name")))
	q.From = []ast.FromItem{table("Student", "")}
	q.Where = bin("<>", col("", "name"), val("Alice"))

	res, err := NewSandbox(f.store, nil).Run(context.Background(), f.compile(t, q), RunOptions{Exists: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, want := column(res, "name"), []interface{}{"Bob"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestRunErrors(t *testing.T) {
	f := newFixture(t)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	negative := sel(field(col("", "name")))
	negative.From = []ast.FromItem{table("Student", "")}
	negative.Limit = &ast.Limit{Count: val(-1)}

	textual := sel(field(col("", "name")))
	textual.From = []ast.FromItem{table("Student", "")}
	textual.Limit = &ast.Limit{Count: val("ten")}

	mismatch := sel(as(&ast.Math{Op: "*", Left: col("", "name"), Right: val(2)}, "x"))
	mismatch.From = []ast.FromItem{table("Student", "")}

	tests := []struct {
		name string
		ctx  context.Context
		q    *ast.Select
		want error
	}{
		{"canceled", canceled, sel(field(val(1))), errs.ErrCanceled},
		{"negative limit", context.Background(), negative, errs.ErrSyntax},
		{"non-numeric limit", context.Background(), textual, errs.ErrTypeMismatch},
		{"arithmetic on strings", context.Background(), mismatch, errs.ErrTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSandbox(f.store, nil).Run(tt.ctx, f.compile(t, tt.q), RunOptions{})
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDivisionByZeroYieldsNoValue(t *testing.T) {
	f := newFixture(t)
	q := sel(as(&ast.Math{Op: "/", Left: col("", "id"), Right: val(0)}, "x"))
	q.From = []ast.FromItem{table("Teacher", "")}

	if got, want := column(f.run(t, q), "x"), []interface{}{nil, nil}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSelectWithoutFrom(t *testing.T) {
	f := newFixture(t)
	q := sel(as(&ast.Math{Op: "+", Left: val(1), Right: val(2)}, "three"), as(fn("upper", val("x")), "u"))

	want := []map[string]interface{}{{"three": int64(3), "u": "X"}}
	if got := f.run(t, q).Native(); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestEmptyScalarSubqueryIsNoValue(t *testing.T) {
	f := newFixture(t)
	none := func() *ast.Query {
		q := sel(field(col("w", "reason")))
		q.From = []ast.FromItem{table("Warning", "w")}
		q.Where = bin("=", col("w", "studentId"), val(42))
		return &ast.Query{Query: q}
	}

	q := sel(field(col("s", "name")))
	q.From = []ast.FromItem{table("Student", "s")}
	q.Where = &ast.IsNull{Left: none()}
	if got := column(f.run(t, q), "name"); len(got) != 4 {
		t.Errorf("IS NULL over an empty subquery: got %v", got)
	}

	q = sel(field(col("s", "name")))
	q.From = []ast.FromItem{table("Student", "s")}
	q.Where = &ast.IsNull{Left: none(), Not: true}
	if got := column(f.run(t, q), "name"); len(got) != 0 {
		t.Errorf("IS NOT NULL over an empty subquery: got %v", got)
	}

	res := f.run(t, sel(as(fn("COALESCE", none(), val("dflt")), "c")))
	if got, want := column(res, "c"), []interface{}{"dflt"}; !reflect.DeepEqual(got, want) {
		t.Errorf("COALESCE: got %v, want %v", got, want)
	}
}

func TestMaterializedSourcesReplayAsRowArrays(t *testing.T) {
	f := newFixture(t)
	q := sel(field(col("b", "code")), field(col("s", "name")))
	q.From = []ast.FromItem{
		&ast.RemoteRef{Source: "badges", As: "b"},
		table("Student", "s"),
	}
	q.Where = bin("=", col("b", "studentId"), col("s", "id"))
	q.Order = []*ast.Order{{Expr: col("b", "code"), Desc: true}}

	plan := f.compile(t, q)
	sources := map[*Source]cursor.RowSource{
		plan.Sources[0]: cursor.Rows(nil),
		plan.Sources[1]: cursor.Rows(nil),
	}
	sb := NewSandbox(f.store, f.remotes)
	c, ok := sb.buildCursor(nil, plan, sources).(*cursor.Cursors)
	if !ok {
		t.Fatal("two FROM items should combine into a product")
	}
	if _, ok := c.Children()[0].(*cursor.RowArray); !ok {
		t.Errorf("remote source: got %T, want *cursor.RowArray", c.Children()[0])
	}
	if _, ok := c.Children()[1].(*cursor.Table); !ok {
		t.Errorf("base table: got %T, want *cursor.Table", c.Children()[1])
	}

	want := []map[string]interface{}{
		{"code": "B2", "name": "Bob"},
		{"code": "A1", "name": "Alice"},
	}
	if got := f.run(t, q).Native(); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
