package cursor

import (
	"context"

	"github.com/JayabrataBasu/veridicalql/pkg/catalog"
	"github.com/JayabrataBasu/veridicalql/pkg/errs"
)

// RowArray replays a row source under a single source key.
type RowArray struct {
	source string
	rows   RowSource
	pos    int
	count  int
}

// NewRowArray creates a cursor over rows, exposed as source.
func NewRowArray(source string, rows RowSource) *RowArray {
	return &RowArray{source: source, rows: rows, pos: -1}
}

func (c *RowArray) MoveToFirst(ctx context.Context) error {
	n, err := c.rows.RowCount(ctx)
	if err != nil {
		return err
	}
	c.count = n
	c.pos = 0
	if n == 0 {
		return errs.ErrCursorExhausted
	}
	return nil
}

func (c *RowArray) Next(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.pos < 0 {
		return c.MoveToFirst(ctx)
	}
	c.pos++
	if c.pos >= c.count {
		c.pos = c.count
		return errs.ErrCursorExhausted
	}
	return nil
}

func (c *RowArray) Record(ctx context.Context) (Record, error) {
	if c.pos < 0 || c.pos >= c.count {
		return nil, errs.ErrCursorExhausted
	}
	row, err := c.rows.Row(ctx, c.pos)
	if err != nil {
		return nil, err
	}
	return Record{c.source: row}, nil
}

func (c *RowArray) Get(ctx context.Context, source, column string) (catalog.Value, error) {
	return getFrom(ctx, c, source, column)
}
