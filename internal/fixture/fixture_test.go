package fixture

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JayabrataBasu/veridicalql/pkg/ast"
	"github.com/JayabrataBasu/veridicalql/pkg/catalog"
	"github.com/JayabrataBasu/veridicalql/pkg/engine"
)

const school = `
databases:
  - name: school
    tables:
      - name: Student
        columns:
          - {name: id, type: number}
          - {name: name, type: string}
          - {name: gender, type: string, nullable: true}
          - {name: enrolled, type: Date, default: "2024-09-01"}
        rows:
          - {id: 1, name: Ann, gender: F}
          - {id: 2, name: Bob, gender: M, enrolled: "2023-09-01T00:00:00Z"}
      - name: Warning
        columns:
          - {name: studentId, type: number}
remotes:
  - name: badges
    driver: sqlite
    dsn: badges.db
    table: badges
    columns:
      - {name: code, type: string}
      - {name: studentId, type: number}
  - name: houses
    columns:
      - {name: house, type: string}
    rows:
      - {house: red}
      - {house: blue}
`

func writeBadges(t *testing.T, dir string) {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(dir, "badges.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()
	for _, s := range []string{
		`CREATE TABLE badges (code TEXT, studentId INTEGER)`,
		`INSERT INTO badges VALUES ('A1', 1), ('B2', 2), ('C3', 2)`,
	} {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("%s: %v", s, err)
		}
	}
}

func load(t *testing.T) (*Fixture, *engine.Engine) {
	t.Helper()
	dir := t.TempDir()
	writeBadges(t, dir)
	path := filepath.Join(dir, "school.yaml")
	if err := os.WriteFile(path, []byte(school), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })

	e := engine.New(engine.Options{DefaultDatabase: "school"})
	t.Cleanup(func() { _ = e.Close() })
	if err := f.Apply(context.Background(), e); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	return f, e
}

func query(t *testing.T, e *engine.Engine, src string) []map[string]interface{} {
	t.Helper()
	q, err := ast.DecodeSelect([]byte(src))
	if err != nil {
		t.Fatalf("DecodeSelect: %v", err)
	}
	res, err := e.Query(context.Background(), q)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	return res.Native()
}

func TestApply(t *testing.T) {
	_, e := load(t)

	rows := query(t, e, `{"classname": "Select",
	  "fields": [{"classname": "Field", "expr": {"classname": "Column", "wildcard": true}}],
	  "from": [{"classname": "TableRef", "table": "Student"}]}`)
	if len(rows) != 2 {
		t.Fatalf("students %v", rows)
	}
	want := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	if got, ok := rows[0]["enrolled"].(time.Time); !ok || !got.Equal(want) {
		t.Errorf("default date: %v", rows[0]["enrolled"])
	}
	if rows[1]["gender"] != "M" {
		t.Errorf("row %v", rows[1])
	}

	st := e.Status()
	if st.Databases != 1 || st.Tables != 2 || len(st.Remotes) != 2 {
		t.Errorf("status %+v", st)
	}
}

func TestApplySQLiteRemote(t *testing.T) {
	_, e := load(t)
	rows := query(t, e, `{"classname": "Select",
	  "fields": [
	    {"classname": "Field", "expr": {"classname": "Column", "table": "s", "name": "name"}},
	    {"classname": "Field", "expr": {"classname": "Column", "table": "b", "name": "code"}}],
	  "from": [{"classname": "TableRef", "table": "Student", "as": "s", "joins": [
	    {"classname": "Join", "type": "INNER", "table": {"classname": "RemoteRef", "source": "badges", "as": "b"},
	     "on": {"classname": "Binary", "op": "=",
	       "left": {"classname": "Column", "table": "s", "name": "id"},
	       "right": {"classname": "Column", "table": "b", "name": "studentId"}}}]}],
	  "order": [{"classname": "Order", "expr": {"classname": "Column", "name": "code"}}]}`)

	var got []string
	for _, r := range rows {
		got = append(got, r["name"].(string)+":"+r["code"].(string))
	}
	if strings.Join(got, ",") != "Ann:A1,Bob:B2,Bob:C3" {
		t.Errorf("got %v", got)
	}
}

func TestApplyIsRepeatable(t *testing.T) {
	f, e := load(t)
	if err := f.Apply(context.Background(), e); err == nil {
		t.Fatal("registering the same remotes twice should fail")
	}
	// tables were reused, so the rows are now doubled
	rows := query(t, e, `{"classname": "Select",
	  "fields": [{"classname": "Field", "expr": {"classname": "Function", "name": "COUNT",
	    "params": [{"classname": "Column", "wildcard": true}]}}],
	  "from": [{"classname": "TableRef", "table": "Student"}]}`)
	if rows[0]["count"] != int64(4) {
		t.Errorf("count %v", rows[0]["count"])
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		ext     string
		wantErr string
	}{
		{"json", `{"databases": [{"name": "d", "tables": [{"name": "t", "columns": [{"name": "c", "type": "boolean"}]}]}]}`, ".json", ""},
		{"yaml fallback", "databases:\n  - name: d\n", ".txt", ""},
		{"unknown type", "databases:\n  - name: d\n    tables:\n      - name: t\n        columns:\n          - {name: c, type: blob}\n", ".yaml", "not found"},
		{"bad default", "databases:\n  - name: d\n    tables:\n      - name: t\n        columns:\n          - {name: c, type: Date, default: soon}\n", ".yaml", "invalid date"},
		{"remote without target", "remotes:\n  - name: r\n    driver: sqlite\n", ".yml", "needs a table or a query"},
		{"garbage", "{[", ".json", "JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), tt.ext)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Parse: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("got %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestCoerce(t *testing.T) {
	v, err := coerce(map[interface{}]interface{}{"a": []interface{}{1, "x"}}, catalog.TypeObject)
	if err != nil {
		t.Fatalf("coerce: %v", err)
	}
	if v.Type != catalog.TypeObject || v.Fields["a"].Type != catalog.TypeArray {
		t.Errorf("got %v", v)
	}
}

func TestSample(t *testing.T) {
	f, err := Parse([]byte(Sample), ".yaml")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	e := engine.New(engine.Options{DefaultDatabase: "school"})
	defer e.Close()
	if err := f.Apply(context.Background(), e); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	rows := query(t, e, SampleQuery)
	if len(rows) != 3 {
		t.Fatalf("rows %v", rows)
	}
	if rows[0]["name"] != "Bob" || rows[0]["warnings"] != int64(2) {
		t.Errorf("first row %v", rows[0])
	}
	if rows[1]["warnings"] != int64(0) || rows[2]["warnings"] != int64(0) {
		t.Errorf("students without warnings %v", rows[1:])
	}
}
