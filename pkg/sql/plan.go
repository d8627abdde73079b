package sql

import (
	"github.com/JayabrataBasu/veridicalql/pkg/ast"
	"github.com/JayabrataBasu/veridicalql/pkg/catalog"
	"github.com/JayabrataBasu/veridicalql/pkg/cursor"
)

// SourceKind identifies where the rows of a FROM item come from.
type SourceKind int

const (
	// SourceBase reads a table from the row store.
	SourceBase SourceKind = iota
	// SourceTemp reads the rows a nested plan produced in the sandbox.
	SourceTemp
	// SourceRemote reads rows fetched from a registered remote source.
	SourceRemote
)

func (k SourceKind) String() string {
	switch k {
	case SourceBase:
		return "base"
	case SourceTemp:
		return "temp"
	case SourceRemote:
		return "remote"
	default:
		return "?"
	}
}

// SourceColumn is a column visible through a source.
type SourceColumn struct {
	Key  string
	Name string
	Type catalog.DataType
}

// Source is a bound FROM item or join participant.
type Source struct {
	Key     string // record key, unique within its plan
	Alias   string
	Kind    SourceKind
	Table   *catalog.Table // SourceBase
	Nested  *Plan          // SourceTemp
	Remote  string         // SourceRemote
	Columns []SourceColumn
	Joins   []*JoinClause
}

// column finds a visible column by case-insensitive name.
func (s *Source) column(name string) (SourceColumn, int) {
	found, n := SourceColumn{}, 0
	for _, c := range s.Columns {
		if equalFold(c.Name, name) {
			if n == 0 {
				found = c
			}
			n++
		}
	}
	return found, n
}

// JoinClause attaches a source to a FROM item.
type JoinClause struct {
	Type   cursor.JoinType
	Source *Source
	On     Expr
}

// OutputColumn is one column of the result.
type OutputColumn struct {
	Key  string
	Name string
	Expr Expr
	Type catalog.DataType
}

// OrderTerm is a bound ORDER BY term. Column is the index of the output
// column it sorts by, or -1 when Expr is evaluated per row.
type OrderTerm struct {
	Expr   Expr
	Desc   bool
	Column int
}

// TableRef identifies a base table by keys.
type TableRef struct {
	Database string
	Table    string
}

// ColumnID identifies a column of a base table by keys.
type ColumnID struct {
	Database string
	Table    string
	Column   string
}

// Plan is a compiled query. It is immutable once built and may be executed
// any number of times with fresh Bindings.
type Plan struct {
	Query    *ast.Select
	Distinct bool
	Columns  []*OutputColumn
	Sources  []*Source
	Where    Expr
	GroupBy  []Expr
	Having   Expr
	OrderBy  []*OrderTerm
	Limit    Expr
	Offset   Expr

	SimpleScan      bool // single base table, plain columns, nothing else
	NeedsTempTables bool // some source is a nested plan or a remote
	NeedsAggregate  bool // GROUP BY or aggregate functions present
	Correlated      bool // reads columns of an enclosing query

	// Side tables. Unknowns, Referenced and Tables cover nested plans too
	// and are only filled on the root plan.
	Unknowns   []Slot
	Referenced []ColumnID
	Aggregates []*Func
	Tables     []TableRef

	SchemaVersion uint64
}

// Nested reports every plan nested under p in FROM items and join
// participants, depth first.
func (p *Plan) Nested() []*Plan {
	var out []*Plan
	var walkSources func(srcs []*Source)
	walkSources = func(srcs []*Source) {
		for _, s := range srcs {
			if s.Nested != nil {
				out = append(out, s.Nested)
				out = append(out, s.Nested.Nested()...)
			}
			for _, j := range s.Joins {
				walkSources([]*Source{j.Source})
			}
		}
	}
	walkSources(p.Sources)
	return out
}

// ResultColumns describes the output columns.
func (p *Plan) ResultColumns() []ResultColumn {
	out := make([]ResultColumn, len(p.Columns))
	for i, c := range p.Columns {
		out[i] = ResultColumn{Key: c.Key, Name: c.Name, Type: c.Type}
	}
	return out
}

// Validate re-checks every bound database, table and column key when the
// schema changed since the plan was compiled.
func (p *Plan) Validate(schema *catalog.Schema) error {
	if schema.Version() == p.SchemaVersion {
		return nil
	}
	tables := make(map[TableRef]*catalog.Table, len(p.Tables))
	for _, ref := range p.Tables {
		t, err := schema.GetTable(ref.Database, ref.Table)
		if err != nil {
			return err
		}
		tables[ref] = t
	}
	for _, col := range p.Referenced {
		t, ok := tables[TableRef{Database: col.Database, Table: col.Table}]
		if !ok {
			var err error
			if t, err = schema.GetTable(col.Database, col.Table); err != nil {
				return err
			}
		}
		if _, err := schema.GetColumn(t, col.Column); err != nil {
			return err
		}
	}
	return nil
}
