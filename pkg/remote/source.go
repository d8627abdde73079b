// Package remote provides external row sources that queries reference by
// name in their FROM clause. Rows are fetched once per query execution and
// keyed by column name.
package remote

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/JayabrataBasu/veridicalql/pkg/catalog"
	"github.com/JayabrataBasu/veridicalql/pkg/errs"
)

// Source is an external row source.
type Source interface {
	// Columns describes the rows Fetch returns.
	Columns() []catalog.Column
	// Fetch reads every row. Implementations must honor ctx.
	Fetch(ctx context.Context) ([]catalog.Row, error)
}

// Static serves a fixed set of rows.
type Static struct {
	columns []catalog.Column
	rows    []catalog.Row
}

// NewStatic creates a source over rows keyed by column name.
func NewStatic(columns []catalog.Column, rows []catalog.Row) *Static {
	return &Static{columns: columns, rows: rows}
}

func (s *Static) Columns() []catalog.Column { return s.columns }

func (s *Static) Fetch(ctx context.Context) ([]catalog.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.rows, nil
}

// Registry maps names to sources. Names are case-insensitive.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register adds a source under name.
func (r *Registry) Register(name string, src Source, failIfExists bool) error {
	if name == "" || src == nil {
		return errs.Syntax("remote source needs a name and a source")
	}
	key := strings.ToLower(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sources[key]; ok && failIfExists {
		return errs.AlreadyExists("remote source", name)
	}
	r.sources[key] = src
	return nil
}

// Unregister removes a source.
func (r *Registry) Unregister(name string) error {
	key := strings.ToLower(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sources[key]; !ok {
		return errs.NotFound("remote source", name)
	}
	delete(r.sources, key)
	return nil
}

// Get returns the source registered under name.
func (r *Registry) Get(name string) (Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[strings.ToLower(name)]
	if !ok {
		return nil, errs.NotFound("remote source", name)
	}
	return src, nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sources))
	for n := range r.sources {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Columns returns the declared columns of a source.
func (r *Registry) Columns(name string) ([]catalog.Column, error) {
	src, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return src.Columns(), nil
}

// Fetch reads the rows of a source and conforms them to its declared
// columns: a missing column reads as NoValue and a value of the wrong type
// fails with ErrTypeMismatch.
func (r *Registry) Fetch(ctx context.Context, name string) ([]catalog.Row, error) {
	src, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	rows, err := src.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	cols := src.Columns()
	out := make([]catalog.Row, len(rows))
	for i, in := range rows {
		row := make(catalog.Row, len(cols))
		for _, c := range cols {
			v, ok := in[c.Name]
			if !ok {
				v = catalog.NoValue()
			}
			if !v.Conforms(c.Type) {
				return nil, errs.TypeMismatch("column "+c.Name+" of remote source "+name, c.Type.String(), v.Type.String())
			}
			row[c.Name] = v
		}
		out[i] = row
	}
	return out, nil
}
