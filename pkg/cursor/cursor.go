// Package cursor provides position holders over row sources: single arrays,
// join products of a FROM item, and composites of several cursors.
//
// Cursors own no rows. Moving past the last position reports
// errs.ErrCursorExhausted.
package cursor

import (
	"context"

	"github.com/JayabrataBasu/veridicalql/pkg/catalog"
	"github.com/JayabrataBasu/veridicalql/pkg/errs"
)

// Record maps source keys to the row each source contributes at the current
// position. A nil row marks a padded (unmatched) outer-join side.
type Record map[string]catalog.Row

// Get returns the value of column in source. A padded source yields NoValue.
func (r Record) Get(source, column string) (catalog.Value, error) {
	row, ok := r[source]
	if !ok {
		return catalog.Value{}, errs.NotFound("source", source)
	}
	if row == nil {
		return catalog.NoValue(), nil
	}
	return row.Get(column), nil
}

// Merge copies every entry of o into r.
func (r Record) Merge(o Record) {
	for k, v := range o {
		r[k] = v
	}
}

// Cursor iterates over records.
type Cursor interface {
	// MoveToFirst positions the cursor on the first record. It reports
	// ErrCursorExhausted when there is none.
	MoveToFirst(ctx context.Context) error
	// Next advances to the following record, or reports ErrCursorExhausted.
	Next(ctx context.Context) error
	// Record returns the record at the current position.
	Record(ctx context.Context) (Record, error)
	// Get returns a single value at the current position.
	Get(ctx context.Context, source, column string) (catalog.Value, error)
}

// RowSource gives random access to a row array.
type RowSource interface {
	RowCount(ctx context.Context) (int, error)
	Row(ctx context.Context, index int) (catalog.Row, error)
}

// Rows adapts a materialized row slice to RowSource.
type Rows []catalog.Row

func (r Rows) RowCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return len(r), nil
}

func (r Rows) Row(ctx context.Context, index int) (catalog.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if index < 0 || index >= len(r) {
		return nil, errs.ErrCursorExhausted
	}
	return r[index], nil
}

func getFrom(ctx context.Context, c Cursor, source, column string) (catalog.Value, error) {
	rec, err := c.Record(ctx)
	if err != nil {
		return catalog.Value{}, err
	}
	return rec.Get(source, column)
}
