package cursor

import (
	"context"

	"github.com/JayabrataBasu/veridicalql/pkg/catalog"
	"github.com/JayabrataBasu/veridicalql/pkg/errs"
)

// Dummy yields exactly one empty record. It drives queries without a FROM
// clause.
type Dummy struct {
	positioned bool
}

// NewDummy creates a dummy cursor.
func NewDummy() *Dummy {
	return &Dummy{}
}

func (c *Dummy) MoveToFirst(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.positioned = true
	return nil
}

func (c *Dummy) Next(ctx context.Context) error {
	c.positioned = false
	return errs.ErrCursorExhausted
}

func (c *Dummy) Record(ctx context.Context) (Record, error) {
	if !c.positioned {
		return nil, errs.ErrCursorExhausted
	}
	return Record{}, nil
}

func (c *Dummy) Get(ctx context.Context, source, column string) (catalog.Value, error) {
	return catalog.Value{}, errs.NotFound("source", source)
}
