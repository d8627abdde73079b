package sql

import (
	"context"
	"testing"

	"github.com/JayabrataBasu/veridicalql/pkg/ast"
	"github.com/JayabrataBasu/veridicalql/pkg/catalog"
	"github.com/JayabrataBasu/veridicalql/pkg/errs"
	"github.com/JayabrataBasu/veridicalql/pkg/function"
	"github.com/JayabrataBasu/veridicalql/pkg/storage"
)

// fixture is the school database used across the package tests:
//
//	Student(id, name, gender)   4 rows, Dan has no gender
//	Warning(studentId, reason)  4 rows, one orphan
//	Teacher(id, name)           2 rows
type fixture struct {
	schema   *catalog.Schema
	store    *storage.Memory
	compiler *Compiler
	remotes  *fakeRemotes
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	schema := catalog.NewSchema()
	store := storage.NewMemory()
	if _, err := schema.CreateDatabase("school", false); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}

	create := func(name string, cols []catalog.Column, rows [][]interface{}) {
		tbl, err := schema.CreateTable("school", name, cols, false)
		if err != nil {
			t.Fatalf("CreateTable %s: %v", name, err)
		}
		if err := store.CreateTable(tbl.Database, tbl.Key); err != nil {
			t.Fatalf("store.CreateTable %s: %v", name, err)
		}
		columns := tbl.Columns()
		var batch []catalog.Row
		for _, raw := range rows {
			row := catalog.Row{}
			for i, x := range raw {
				v, err := catalog.FromGo(x)
				if err != nil {
					t.Fatalf("FromGo: %v", err)
				}
				row[columns[i].Key] = v
			}
			batch = append(batch, row)
		}
		if _, err := store.Insert(ctx, tbl, batch); err != nil {
			t.Fatalf("Insert %s: %v", name, err)
		}
	}

	create("Student", []catalog.Column{
		{Name: "id", Type: catalog.TypeNumber},
		{Name: "name", Type: catalog.TypeString},
		{Name: "gender", Type: catalog.TypeString, Nullable: true},
	}, [][]interface{}{
		{1, "Alice", "F"},
		{2, "Bob", "M"},
		{3, "Carol", "F"},
		{4, "Dan", nil},
	})
	create("Warning", []catalog.Column{
		{Name: "studentId", Type: catalog.TypeNumber},
		{Name: "reason", Type: catalog.TypeString},
	}, [][]interface{}{
		{1, "late"},
		{1, "noise"},
		{3, "late"},
		{9, "orphan"},
	})
	create("Teacher", []catalog.Column{
		{Name: "id", Type: catalog.TypeNumber},
		{Name: "name", Type: catalog.TypeString},
	}, [][]interface{}{
		{1, "Mr. Smith"},
		{2, "Ms. Jones"},
	})

	remotes := &fakeRemotes{
		columns: []catalog.Column{
			{Name: "code", Type: catalog.TypeString},
			{Name: "studentId", Type: catalog.TypeNumber},
		},
		rows: []catalog.Row{
			{"code": catalog.NewString("A1"), "studentId": catalog.NewNumber(1)},
			{"code": catalog.NewString("B2"), "studentId": catalog.NewNumber(2)},
		},
	}

	return &fixture{
		schema:  schema,
		store:   store,
		remotes: remotes,
		compiler: &Compiler{
			Schema:          schema,
			Functions:       function.NewRegistry(),
			Remotes:         remotes,
			DefaultDatabase: "school",
		},
	}
}

// fakeRemotes serves a single remote source named "badges".
type fakeRemotes struct {
	columns []catalog.Column
	rows    []catalog.Row
	fetches int
}

func (f *fakeRemotes) Columns(name string) ([]catalog.Column, error) {
	if name != "badges" {
		return nil, errs.NotFound("remote source", name)
	}
	return f.columns, nil
}

func (f *fakeRemotes) Fetch(ctx context.Context, name string) ([]catalog.Row, error) {
	if name != "badges" {
		return nil, errs.NotFound("remote source", name)
	}
	f.fetches++
	return f.rows, nil
}

func (f *fixture) compile(t *testing.T, q *ast.Select) *Plan {
	t.Helper()
	plan, err := f.compiler.Compile(q)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return plan
}

func (f *fixture) run(t *testing.T, q *ast.Select, args ...interface{}) *Result {
	t.Helper()
	plan := f.compile(t, q)
	bindings := plan.NewBindings()
	if err := bindings.Bind(args...); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	sb := NewSandbox(f.store, f.remotes)
	defer sb.Release()
	res, err := sb.Run(context.Background(), plan, RunOptions{Bindings: bindings})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

// column returns the named output column as native Go values.
func column(res *Result, name string) []interface{} {
	out := make([]interface{}, 0, len(res.Rows))
	for _, row := range res.Native() {
		out = append(out, row[name])
	}
	return out
}

// AST builders.

func sel(fields ...*ast.Field) *ast.Select { return &ast.Select{Fields: fields} }

func field(e ast.Expression) *ast.Field { return &ast.Field{Expr: e} }

func as(e ast.Expression, alias string) *ast.Field { return &ast.Field{Expr: e, Alias: alias} }

func col(table, name string) *ast.Column { return &ast.Column{Table: table, Name: name} }

func star() *ast.Column { return &ast.Column{Wildcard: true} }

func val(x interface{}) *ast.Value { return &ast.Value{Value: x} }

func bin(op string, l, r ast.Expression) *ast.Binary { return &ast.Binary{Op: op, Left: l, Right: r} }

func fn(name string, params ...ast.Expression) *ast.Function {
	return &ast.Function{Name: name, Params: params}
}

func table(name, alias string, joins ...*ast.Join) *ast.TableRef {
	return &ast.TableRef{Table: name, As: alias, Joins: joins}
}

func join(typ ast.JoinType, item ast.FromItem, on ast.Expression) *ast.Join {
	return &ast.Join{Type: typ, Table: item, On: on}
}
