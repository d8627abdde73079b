// Package fixture loads datasets (databases, tables, rows and remote
// sources) from YAML or JSON files into an engine.
package fixture

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/JayabrataBasu/veridicalql/pkg/catalog"
	"github.com/JayabrataBasu/veridicalql/pkg/engine"
	"github.com/JayabrataBasu/veridicalql/pkg/remote"
)

// Fixture is a dataset description.
type Fixture struct {
	Databases []Database `yaml:"databases" json:"databases"`
	Remotes   []Remote   `yaml:"remotes" json:"remotes"`

	dir string
	dbs []*sql.DB
}

// Database holds the tables of one database.
type Database struct {
	Name   string  `yaml:"name" json:"name"`
	Tables []Table `yaml:"tables" json:"tables"`
}

// Table is a table definition and its rows, keyed by column name.
type Table struct {
	Name    string                   `yaml:"name" json:"name"`
	Columns []Column                 `yaml:"columns" json:"columns"`
	Rows    []map[string]interface{} `yaml:"rows" json:"rows"`
}

// Column describes one column.
type Column struct {
	Name     string      `yaml:"name" json:"name"`
	Type     string      `yaml:"type" json:"type"`
	Nullable bool        `yaml:"nullable" json:"nullable"`
	Default  interface{} `yaml:"default" json:"default"`
}

// Remote is a remote source. With a driver it reads from a database/sql
// handle (Table or Query); without one it serves Rows.
type Remote struct {
	Name    string                   `yaml:"name" json:"name"`
	Driver  string                   `yaml:"driver" json:"driver"`
	DSN     string                   `yaml:"dsn" json:"dsn"`
	Table   string                   `yaml:"table" json:"table"`
	Query   string                   `yaml:"query" json:"query"`
	Columns []Column                 `yaml:"columns" json:"columns"`
	Rows    []map[string]interface{} `yaml:"rows" json:"rows"`
}

// Load reads a fixture file. The format follows the extension; files with
// another extension are tried as YAML, then JSON.
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	f, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	f.dir = filepath.Dir(path)
	return f, nil
}

// Parse decodes a fixture. ext selects the format (".yaml", ".yml",
// ".json"); anything else is tried as YAML, then JSON.
func Parse(data []byte, ext string) (*Fixture, error) {
	f := &Fixture{}
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, f); err != nil {
			return nil, fmt.Errorf("failed to parse YAML fixture: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, f); err != nil {
			return nil, fmt.Errorf("failed to parse JSON fixture: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, f); err != nil {
			if err := json.Unmarshal(data, f); err != nil {
				return nil, fmt.Errorf("failed to parse fixture (tried YAML and JSON): %w", err)
			}
		}
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fixture: %w", err)
	}
	return f, nil
}

// Validate checks names and column types.
func (f *Fixture) Validate() error {
	for _, db := range f.Databases {
		if db.Name == "" {
			return fmt.Errorf("database without a name")
		}
		for _, t := range db.Tables {
			if t.Name == "" {
				return fmt.Errorf("table without a name in database %s", db.Name)
			}
			if _, err := columns(t.Columns); err != nil {
				return fmt.Errorf("table %s: %w", t.Name, err)
			}
		}
	}
	for _, r := range f.Remotes {
		if r.Name == "" {
			return fmt.Errorf("remote source without a name")
		}
		if r.Driver != "" && r.Table == "" && r.Query == "" {
			return fmt.Errorf("remote source %s needs a table or a query", r.Name)
		}
		if _, err := columns(r.Columns); err != nil {
			return fmt.Errorf("remote source %s: %w", r.Name, err)
		}
	}
	return nil
}

func columns(in []Column) ([]catalog.Column, error) {
	out := make([]catalog.Column, 0, len(in))
	for _, c := range in {
		if c.Name == "" {
			return nil, fmt.Errorf("column without a name")
		}
		typ, err := catalog.ParseDataType(c.Type)
		if err != nil {
			return nil, err
		}
		col := catalog.Column{Name: c.Name, Type: typ, Nullable: c.Nullable}
		if c.Default != nil {
			v, err := coerce(c.Default, typ)
			if err != nil {
				return nil, fmt.Errorf("default of column %s: %w", c.Name, err)
			}
			col.Default = &v
		}
		out = append(out, col)
	}
	return out, nil
}

// coerce converts a decoded value to a catalog value. Dates may be written
// as RFC 3339 or YYYY-MM-DD strings.
func coerce(x interface{}, typ catalog.DataType) (catalog.Value, error) {
	if s, ok := x.(string); ok && typ == catalog.TypeDate {
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return catalog.NewDate(t), nil
			}
		}
		return catalog.Value{}, fmt.Errorf("invalid date %q", s)
	}
	return catalog.FromGo(normalize(x))
}

// normalize turns YAML maps into the string-keyed maps FromGo accepts.
func normalize(x interface{}) interface{} {
	switch t := x.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, v := range t {
			out[k] = normalize(v)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, v := range t {
			out[fmt.Sprint(k)] = normalize(v)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, v := range t {
			out[i] = normalize(v)
		}
		return out
	}
	return x
}

func rows(in []map[string]interface{}, cols []catalog.Column) ([]map[string]interface{}, error) {
	types := make(map[string]catalog.DataType, len(cols))
	for _, c := range cols {
		types[strings.ToLower(c.Name)] = c.Type
	}
	out := make([]map[string]interface{}, 0, len(in))
	for i, raw := range in {
		row := make(map[string]interface{}, len(raw))
		for name, x := range raw {
			v, err := coerce(x, types[strings.ToLower(name)])
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", i, name, err)
			}
			row[name] = v
		}
		out = append(out, row)
	}
	return out, nil
}

// Apply creates the fixture's databases and tables in e, inserts the rows
// and registers the remote sources. Existing databases and tables are
// reused.
func (f *Fixture) Apply(ctx context.Context, e *engine.Engine) error {
	for _, db := range f.Databases {
		if _, err := e.CreateDatabase(ctx, db.Name, true); err != nil {
			return err
		}
		for _, t := range db.Tables {
			cols, err := columns(t.Columns)
			if err != nil {
				return err
			}
			if _, err := e.CreateTable(ctx, db.Name, t.Name, cols, true); err != nil {
				return err
			}
			batch, err := rows(t.Rows, cols)
			if err != nil {
				return fmt.Errorf("table %s: %w", t.Name, err)
			}
			if len(batch) == 0 {
				continue
			}
			if _, err := e.Insert(ctx, db.Name, t.Name, batch); err != nil {
				return fmt.Errorf("table %s: %w", t.Name, err)
			}
		}
	}
	for _, r := range f.Remotes {
		src, err := f.source(r)
		if err != nil {
			return err
		}
		if err := e.RegisterRemote(r.Name, src); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fixture) source(r Remote) (remote.Source, error) {
	cols, err := columns(r.Columns)
	if err != nil {
		return nil, err
	}
	if r.Driver == "" {
		batch, err := rows(r.Rows, cols)
		if err != nil {
			return nil, fmt.Errorf("remote source %s: %w", r.Name, err)
		}
		out := make([]catalog.Row, len(batch))
		for i, row := range batch {
			out[i] = make(catalog.Row, len(row))
			for k, v := range row {
				out[i][k] = v.(catalog.Value)
			}
		}
		return remote.NewStatic(cols, out), nil
	}

	dsn := r.DSN
	if r.Driver == "sqlite" && dsn != ":memory:" && !filepath.IsAbs(dsn) && f.dir != "" {
		dsn = filepath.Join(f.dir, dsn)
	}
	db, err := sql.Open(r.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("remote source %s: %w", r.Name, err)
	}
	f.dbs = append(f.dbs, db)
	if r.Query != "" {
		return remote.NewSQL(db, r.Query, cols), nil
	}
	return remote.NewSQLTable(db, r.Table, cols), nil
}

// Close closes the database handles opened for remote sources.
func (f *Fixture) Close() error {
	var first error
	for _, db := range f.dbs {
		if err := db.Close(); err != nil && first == nil {
			first = err
		}
	}
	f.dbs = nil
	return first
}
