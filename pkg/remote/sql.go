package remote

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/JayabrataBasu/veridicalql/pkg/catalog"
)

// SQL reads the result of a query against any database/sql handle. Columns
// are matched to result columns by name.
type SQL struct {
	db      *sql.DB
	query   string
	args    []interface{}
	columns []catalog.Column
}

// NewSQL creates a source running query on db.
func NewSQL(db *sql.DB, query string, columns []catalog.Column, args ...interface{}) *SQL {
	return &SQL{db: db, query: query, args: args, columns: columns}
}

// NewSQLTable creates a source reading every row of table.
func NewSQLTable(db *sql.DB, table string, columns []catalog.Column) *SQL {
	return NewSQL(db, fmt.Sprintf("SELECT * FROM %s", quoteIdent(table)), columns)
}

func (s *SQL) Columns() []catalog.Column { return s.columns }

func (s *SQL) Fetch(ctx context.Context) ([]catalog.Row, error) {
	rows, err := s.db.QueryContext(ctx, s.query, s.args...)
	if err != nil {
		return nil, errors.Wrap(err, "remote query")
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "remote columns")
	}
	types := make(map[string]catalog.DataType, len(s.columns))
	for _, c := range s.columns {
		types[c.Name] = c.Type
	}

	var out []catalog.Row
	for rows.Next() {
		vals := make([]interface{}, len(names))
		ptrs := make([]interface{}, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, "remote scan")
		}
		row := make(catalog.Row, len(names))
		for i, name := range names {
			t, ok := types[name]
			if !ok {
				continue
			}
			v, err := convert(vals[i], t)
			if err != nil {
				return nil, errors.Wrapf(err, "remote column %s", name)
			}
			row[name] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "remote rows")
	}
	return out, nil
}

// convert maps a driver value to a catalog value of the declared type.
// SQLite stores booleans as integers and dates as text.
func convert(x interface{}, t catalog.DataType) (catalog.Value, error) {
	switch v := x.(type) {
	case int64:
		if t == catalog.TypeBoolean {
			return catalog.NewBool(v != 0), nil
		}
	case []byte:
		x = string(v)
	}
	if s, ok := x.(string); ok && t == catalog.TypeDate {
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return catalog.Value{}, err
		}
		return catalog.NewDate(ts), nil
	}
	return catalog.FromGo(x)
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
