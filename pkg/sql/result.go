package sql

import (
	"time"

	"github.com/JayabrataBasu/veridicalql/pkg/ast"
	"github.com/JayabrataBasu/veridicalql/pkg/catalog"
)

// ResultColumn describes one column of a result.
type ResultColumn struct {
	Key  string
	Name string
	Type catalog.DataType
}

// Result is the shaped output of one execution. Rows are keyed by
// ResultColumn.Key.
type Result struct {
	Rows    []catalog.Row
	Columns []ResultColumn
	Elapsed time.Duration
	Query   *ast.Select
}

// ElapsedMS reports the execution time in milliseconds.
func (r *Result) ElapsedMS() float64 {
	return float64(r.Elapsed) / float64(time.Millisecond)
}

// Named returns the rows keyed by column display name. When two columns share
// a name the later one wins.
func (r *Result) Named() []map[string]catalog.Value {
	out := make([]map[string]catalog.Value, len(r.Rows))
	for i, row := range r.Rows {
		m := make(map[string]catalog.Value, len(r.Columns))
		for _, c := range r.Columns {
			m[c.Name] = row.Get(c.Key)
		}
		out[i] = m
	}
	return out
}

// Values returns the rows as positional value slices in column order.
func (r *Result) Values() [][]catalog.Value {
	out := make([][]catalog.Value, len(r.Rows))
	for i, row := range r.Rows {
		vals := make([]catalog.Value, len(r.Columns))
		for j, c := range r.Columns {
			vals[j] = row.Get(c.Key)
		}
		out[i] = vals
	}
	return out
}

// Native returns the rows as name-keyed native Go values.
func (r *Result) Native() []map[string]interface{} {
	out := make([]map[string]interface{}, len(r.Rows))
	for i, row := range r.Rows {
		m := make(map[string]interface{}, len(r.Columns))
		for _, c := range r.Columns {
			m[c.Name] = row.Get(c.Key).ToGo()
		}
		out[i] = m
	}
	return out
}
