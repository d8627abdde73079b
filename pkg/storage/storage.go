// Package storage provides the volatile row store the executor reads from.
package storage

import (
	"context"
	"strconv"
	"sync"

	"github.com/JayabrataBasu/veridicalql/pkg/catalog"
	"github.com/JayabrataBasu/veridicalql/pkg/errs"
)

// Store is the row storage interface consumed by the executor.
// Rows returned by a Store must not be modified by callers.
type Store interface {
	CreateTable(db, table string) error
	DropTable(db, table string) error
	RowCount(ctx context.Context, db, table string) (int, error)
	Row(ctx context.Context, db, table string, index int) (catalog.Row, error)
	Rows(ctx context.Context, db, table string) ([]catalog.Row, error)
	Insert(ctx context.Context, t *catalog.Table, rows []catalog.Row) (int, error)
}

type tableID struct {
	db    string
	table string
}

// heap is the row array of one table.
type heap struct {
	rows []catalog.Row
}

// Memory is an in-memory Store. Each table is a row array addressed by
// (database key, table key).
type Memory struct {
	mu     sync.RWMutex // Protects the table map and row slices
	tables map[tableID]*heap
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{tables: make(map[tableID]*heap)}
}

// CreateTable creates an empty row array for the table (if not exists).
func (m *Memory) CreateTable(db, table string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := tableID{db, table}
	if _, ok := m.tables[id]; !ok {
		m.tables[id] = &heap{}
	}
	return nil
}

// DropTable discards the table's rows.
func (m *Memory) DropTable(db, table string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := tableID{db, table}
	if _, ok := m.tables[id]; !ok {
		return errs.NotFound("table", table)
	}
	delete(m.tables, id)
	return nil
}

func (m *Memory) heap(db, table string) (*heap, error) {
	h, ok := m.tables[tableID{db, table}]
	if !ok {
		return nil, errs.NotFound("table", table)
	}
	return h, nil
}

// RowCount returns the number of rows in the table.
func (m *Memory) RowCount(ctx context.Context, db, table string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, err := m.heap(db, table)
	if err != nil {
		return 0, err
	}
	return len(h.rows), nil
}

// Row returns the row at index.
func (m *Memory) Row(ctx context.Context, db, table string, index int) (catalog.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, err := m.heap(db, table)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(h.rows) {
		return nil, errs.NotFoundIn("row", strconv.Itoa(index), "table", table)
	}
	return h.rows[index], nil
}

// Rows returns a snapshot of all rows in physical order.
func (m *Memory) Rows(ctx context.Context, db, table string) ([]catalog.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, err := m.heap(db, table)
	if err != nil {
		return nil, err
	}
	out := make([]catalog.Row, len(h.rows))
	copy(out, h.rows)
	return out, nil
}

// Insert validates and appends rows keyed by column key. Missing columns
// take their default, or NoValue when nullable. Returns the number of rows
// inserted; on a validation error nothing is inserted.
func (m *Memory) Insert(ctx context.Context, t *catalog.Table, rows []catalog.Row) (int, error) {
	cols := t.Columns()
	prepared := make([]catalog.Row, 0, len(rows))
	for _, in := range rows {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		row, err := prepareRow(t, cols, in)
		if err != nil {
			return 0, err
		}
		prepared = append(prepared, row)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := m.heap(t.Database, t.Key)
	if err != nil {
		return 0, err
	}
	h.rows = append(h.rows, prepared...)
	return len(prepared), nil
}

func prepareRow(t *catalog.Table, cols []*catalog.Column, in catalog.Row) (catalog.Row, error) {
	known := make(map[string]bool, len(cols))
	row := make(catalog.Row, len(cols))
	for _, col := range cols {
		known[col.Key] = true
		v, ok := in[col.Key]
		if !ok {
			switch {
			case col.Default != nil:
				v = *col.Default
			default:
				v = catalog.NoValue()
			}
		}
		if v.IsNull && !col.Nullable {
			return nil, errs.TypeMismatch("column "+col.Name+" of table "+t.Name, col.Type.String(), "no value")
		}
		if !v.Conforms(col.Type) {
			return nil, errs.TypeMismatch("column "+col.Name+" of table "+t.Name, col.Type.String(), v.Type.String())
		}
		row[col.Key] = v
	}
	for key := range in {
		if !known[key] {
			return nil, errs.NotFoundIn("column", key, "table", t.Name)
		}
	}
	return row, nil
}
