package sql

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/JayabrataBasu/veridicalql/pkg/ast"
	"github.com/JayabrataBasu/veridicalql/pkg/catalog"
	"github.com/JayabrataBasu/veridicalql/pkg/errs"
	"github.com/JayabrataBasu/veridicalql/pkg/function"
)

func TestCompileErrors(t *testing.T) {
	from := func(q *ast.Select, items ...ast.FromItem) *ast.Select {
		q.From = items
		return q
	}
	where := func(q *ast.Select, e ast.Expression) *ast.Select {
		q.Where = e
		return q
	}

	tests := []struct {
		name string
		q    *ast.Select
		want error
	}{
		{"nil query", nil, errs.ErrSyntax},
		{"unknown table", from(sel(field(col("", "x"))), table("Nope", "")), errs.ErrNotFound},
		{"unknown column", from(sel(field(col("", "age"))), table("Student", "")), errs.ErrNotFound},
		{"unknown alias", from(sel(field(col("x", "name"))), table("Student", "s")), errs.ErrNotFound},
		{"ambiguous column", from(sel(field(col("", "name"))), table("Student", ""), table("Teacher", "")), errs.ErrAmbiguous},
		{"duplicate alias", from(sel(field(col("a", "name"))), table("Student", "a"), table("Teacher", "a")), errs.ErrAmbiguous},
		{"unknown function", sel(field(fn("NOPE"))), errs.ErrNotFound},
		{"wrong arity", sel(field(fn("ABS", val(1), val(2)))), errs.ErrSyntax},
		{"aggregate in WHERE", where(from(sel(field(col("", "name"))), table("Student", "")), bin(">", fn("COUNT", star()), val(1))), errs.ErrSyntax},
		{"nested aggregate", from(sel(field(fn("SUM", fn("COUNT", star())))), table("Student", "")), errs.ErrSyntax},
		{"wildcard in expression", from(sel(field(fn("ABS", star()))), table("Student", "")), errs.ErrSyntax},
		{"bad operator", sel(field(bin("~", val(1), val(2)))), errs.ErrSyntax},
		{"order position out of range", func() *ast.Select {
			q := from(sel(field(col("", "name"))), table("Student", ""))
			q.Order = []*ast.Order{{Expr: val(3)}}
			return q
		}(), errs.ErrSyntax},
		{"typed literal mismatch", sel(field(&ast.Value{Value: "x", Type: "number"})), errs.ErrTypeMismatch},
		{"unknown remote", from(sel(field(col("", "code"))), &ast.RemoteRef{Source: "nope"}), errs.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.compiler.Compile(tt.q)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCompileRequiresDatabase(t *testing.T) {
	f := newFixture(t)
	f.compiler.DefaultDatabase = ""

	q := sel(field(col("", "name")))
	q.From = []ast.FromItem{table("Student", "")}
	if _, err := f.compiler.Compile(q); !errors.Is(err, errs.ErrNoDatabaseSelected) {
		t.Fatalf("got %v, want ErrNoDatabaseSelected", err)
	}

	q.From = []ast.FromItem{&ast.TableRef{Database: "school", Table: "Student"}}
	if _, err := f.compiler.Compile(q); err != nil {
		t.Fatalf("explicit database: %v", err)
	}
}

func TestCompileBindsKeys(t *testing.T) {
	f := newFixture(t)
	student, err := f.schema.GetTable("school", "Student")
	if err != nil {
		t.Fatal(err)
	}
	nameCol, _ := student.Column("name")

	q := sel(field(col("S", "NAME")), field(col("s", "name")))
	q.From = []ast.FromItem{table("Student", "s")}
	plan := f.compile(t, q)

	ref, ok := plan.Columns[0].Expr.(*ColumnRef)
	if !ok {
		t.Fatalf("expected a column reference, got %T", plan.Columns[0].Expr)
	}
	if ref.Source != "s" || ref.Column != nameCol.Key || ref.Depth != 0 {
		t.Errorf("unexpected binding %+v", ref)
	}
	if plan.Columns[0].Key != nameCol.Key {
		t.Errorf("first output key: got %s, want the column key", plan.Columns[0].Key)
	}
	if plan.Columns[1].Key == nameCol.Key {
		t.Error("second output column reused a taken key")
	}
	if plan.Columns[0].Name != "NAME" || plan.Columns[1].Name != "name" {
		t.Errorf("names: %q, %q", plan.Columns[0].Name, plan.Columns[1].Name)
	}
	if len(plan.Tables) != 1 || plan.Tables[0].Table != student.Key {
		t.Errorf("tables: %+v", plan.Tables)
	}
	if len(plan.Referenced) != 1 || plan.Referenced[0].Column != nameCol.Key {
		t.Errorf("referenced: %+v", plan.Referenced)
	}
}

func TestCompileWildcard(t *testing.T) {
	f := newFixture(t)
	q := sel(field(star()))
	q.From = []ast.FromItem{table("Student", "s", join(ast.JoinInner, table("Warning", "w"), nil))}
	plan := f.compile(t, q)

	var names []string
	for _, c := range plan.Columns {
		names = append(names, c.Name)
	}
	want := []string{"id", "name", "gender", "studentId", "reason"}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("column %d: got %s, want %s", i, names[i], want[i])
		}
	}

	qualified := sel(&ast.Field{Expr: &ast.Column{Table: "w", Wildcard: true}})
	qualified.From = q.From
	if got := len(f.compile(t, qualified).Columns); got != 2 {
		t.Errorf("w.*: got %d columns, want 2", got)
	}
}

func TestCompileFlags(t *testing.T) {
	f := newFixture(t)

	simple := sel(field(col("", "name")))
	simple.From = []ast.FromItem{table("Student", "")}

	filtered := sel(field(col("", "name")))
	filtered.From = []ast.FromItem{table("Student", "")}
	filtered.Where = bin("=", col("", "id"), val(1))

	grouped := sel(field(col("", "gender")))
	grouped.From = []ast.FromItem{table("Student", "")}
	grouped.Group = &ast.Group{Exprs: []ast.Expression{col("", "gender")}}

	aggregated := sel(field(fn("MAX", col("", "id"))))
	aggregated.From = []ast.FromItem{table("Student", "")}

	derived := sel(field(col("d", "name")))
	derived.From = []ast.FromItem{&ast.SubqueryRef{Query: simple, As: "d"}}

	remote := sel(field(col("", "code")))
	remote.From = []ast.FromItem{&ast.RemoteRef{Source: "badges"}}

	tests := []struct {
		name      string
		q         *ast.Select
		simple    bool
		temps     bool
		aggregate bool
	}{
		{"plain scan", simple, true, false, false},
		{"filtered", filtered, false, false, false},
		{"grouped", grouped, false, false, true},
		{"aggregate without group", aggregated, false, false, true},
		{"derived table", derived, false, true, false},
		{"remote", remote, false, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := f.compile(t, tt.q)
			if plan.SimpleScan != tt.simple {
				t.Errorf("SimpleScan = %v", plan.SimpleScan)
			}
			if plan.NeedsTempTables != tt.temps {
				t.Errorf("NeedsTempTables = %v", plan.NeedsTempTables)
			}
			if plan.NeedsAggregate != tt.aggregate {
				t.Errorf("NeedsAggregate = %v", plan.NeedsAggregate)
			}
		})
	}
}

func TestCompileCorrelation(t *testing.T) {
	f := newFixture(t)

	inner := sel(field(col("w", "reason")))
	inner.From = []ast.FromItem{table("Warning", "w")}
	inner.Where = bin("=", col("w", "studentId"), col("s", "id"))

	q := sel(field(col("s", "name")), as(&ast.Query{Query: inner}, "reason"))
	q.From = []ast.FromItem{table("Student", "s")}
	plan := f.compile(t, q)

	sub, ok := plan.Columns[1].Expr.(*Subquery)
	if !ok {
		t.Fatalf("expected a subquery, got %T", plan.Columns[1].Expr)
	}
	if !sub.Plan.Correlated {
		t.Error("subquery reading s.id must be correlated")
	}
	if plan.Correlated {
		t.Error("root plan must not be correlated")
	}
	cmp := sub.Plan.Where.(*Compare)
	if ref := cmp.Right.(*ColumnRef); ref.Depth != 1 || ref.Source != "s" {
		t.Errorf("outer reference bound to %+v", ref)
	}

	// The root plan lists the tables of nested plans too.
	if len(plan.Tables) != 2 {
		t.Errorf("tables: got %d, want 2", len(plan.Tables))
	}
}

func TestCompileSlots(t *testing.T) {
	f := newFixture(t)
	q := sel(field(col("", "name")))
	q.From = []ast.FromItem{table("Student", "")}
	q.Where = &ast.Grouped{Op: "OR", Exprs: []ast.Expression{
		bin("=", col("", "id"), &ast.Parameter{Name: "id", Types: []string{"number"}}),
		bin("=", col("", "name"), &ast.Unknown{}),
		bin("<", col("", "id"), &ast.Parameter{Name: "ID"}),
	}}
	plan := f.compile(t, q)

	if len(plan.Unknowns) != 2 {
		t.Fatalf("got %d slots, want 2 (named parameters are shared)", len(plan.Unknowns))
	}
	if plan.Unknowns[0].Name != "id" || len(plan.Unknowns[0].Types) != 1 || plan.Unknowns[0].Types[0] != catalog.TypeNumber {
		t.Errorf("slot 0: %+v", plan.Unknowns[0])
	}

	b := plan.NewBindings()
	if err := b.SetNamed("Id", catalog.NewNumber(3)); err != nil {
		t.Fatalf("SetNamed: %v", err)
	}
	if err := b.SetNamed("missing", catalog.NewNumber(3)); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
	if err := b.Set(5, catalog.NewNumber(1)); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("expected NotFound for slot 5, got %v", err)
	}
	if err := b.Bind(1, "a", 3); !errors.Is(err, errs.ErrSyntax) {
		t.Errorf("expected Syntax for too many arguments, got %v", err)
	}
}

func TestCompileOrderTerms(t *testing.T) {
	f := newFixture(t)
	q := sel(as(col("", "name"), "who"), field(col("", "id")))
	q.From = []ast.FromItem{table("Student", "")}
	q.Order = []*ast.Order{
		{Expr: col("", "who")},
		{Expr: val(2), Desc: true},
		{Expr: col("", "id")},
		{Expr: col("", "gender")},
	}
	plan := f.compile(t, q)

	want := []int{0, 1, 1, -1}
	for i, term := range plan.OrderBy {
		if term.Column != want[i] {
			t.Errorf("term %d: column %d, want %d", i, term.Column, want[i])
		}
	}
	if !plan.OrderBy[1].Desc {
		t.Error("term 1 should be descending")
	}
}

func TestValidateAfterSchemaChange(t *testing.T) {
	f := newFixture(t)
	q := sel(field(col("", "reason")))
	q.From = []ast.FromItem{table("Warning", "")}
	plan := f.compile(t, q)

	if err := plan.Validate(f.schema); err != nil {
		t.Fatalf("fresh plan: %v", err)
	}

	// Renames keep keys, so the plan survives.
	if err := f.schema.RenameTable("school", "Warning", "Notice"); err != nil {
		t.Fatal(err)
	}
	if err := plan.Validate(f.schema); err != nil {
		t.Errorf("after rename: %v", err)
	}

	if _, err := f.schema.DropTable("school", "Notice"); err != nil {
		t.Fatal(err)
	}
	if err := plan.Validate(f.schema); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("after drop: got %v, want ErrNotFound", err)
	}
}

func TestJoinOnSeesOnlyItsChain(t *testing.T) {
	f := newFixture(t)

	// t is a later FROM item, not part of the s/w chain
	q := sel(field(col("s", "name")))
	q.From = []ast.FromItem{
		table("Student", "s", join(ast.JoinInner, table("Warning", "w"), bin("=", col("w", "studentId"), col("t", "id")))),
		table("Teacher", "t"),
	}
	_, err := f.compiler.Compile(q)
	if !errors.Is(err, errs.ErrNotFound) || !strings.Contains(err.Error(), "t.id") {
		t.Fatalf("got %v, want a not-found error naming t.id", err)
	}

	// Teacher.name is out of reach, so an unqualified name is not ambiguous
	q.From[0] = table("Student", "s", join(ast.JoinInner, table("Warning", "w"), bin("=", col("", "name"), val("Alice"))))
	if _, err := f.compiler.Compile(q); err != nil {
		t.Fatalf("unqualified column of the chain: %v", err)
	}

	// a later join in the chain sees every earlier participant
	q.From = []ast.FromItem{
		table("Student", "s",
			join(ast.JoinInner, table("Warning", "w"), bin("=", col("w", "studentId"), col("s", "id"))),
			join(ast.JoinInner, table("Teacher", "t"), bin("=", col("t", "id"), col("s", "id")))),
	}
	if _, err := f.compiler.Compile(q); err != nil {
		t.Fatalf("ON over earlier participants: %v", err)
	}
	res := f.run(t, q)
	if got, want := column(res, "name"), []interface{}{"Alice", "Alice"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

// looseAggregate is an aggregate that accepts any number of parameters.
type looseAggregate struct{}

func (looseAggregate) Name() string    { return "LOOSE" }
func (looseAggregate) Aggregate() bool { return true }
func (looseAggregate) Preprocess(params []ast.Expression) ([]ast.Expression, error) {
	return params, nil
}
func (looseAggregate) Run(args ...catalog.Value) (catalog.Value, error) {
	return catalog.NewNumber(float64(len(args))), nil
}
func (looseAggregate) ReturnType([]catalog.DataType) catalog.DataType { return catalog.TypeNumber }

func TestAggregateTakesOneParameter(t *testing.T) {
	f := newFixture(t)
	reg := function.NewRegistry()
	if err := reg.Register("LOOSE", func() function.Function { return looseAggregate{} }, true); err != nil {
		t.Fatalf("Register: %v", err)
	}
	f.compiler.Functions = reg

	tests := []struct {
		name    string
		params  []ast.Expression
		wantErr error
	}{
		{"none", nil, errs.ErrSyntax},
		{"two", []ast.Expression{col("", "id"), col("", "name")}, errs.ErrSyntax},
		{"one", []ast.Expression{col("", "id")}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := sel(as(fn("LOOSE", tt.params...), "n"))
			q.From = []ast.FromItem{table("Student", "")}
			_, err := f.compiler.Compile(q)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Compile: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}
