package cursor

import (
	"context"
	"errors"

	"github.com/JayabrataBasu/veridicalql/pkg/catalog"
	"github.com/JayabrataBasu/veridicalql/pkg/errs"
)

// Mode selects how a Cursors composite combines its children.
type Mode byte

const (
	// Concat visits the children one after another.
	Concat Mode = '+'
	// Product visits every combination of child positions, rightmost
	// child fastest.
	Product Mode = '*'
)

// Cursors combines several cursors.
type Cursors struct {
	mode     Mode
	children []Cursor
	current  int // Concat: index of the active child
	done     bool
}

// NewCursors creates a composite over children.
func NewCursors(mode Mode, children ...Cursor) *Cursors {
	return &Cursors{mode: mode, children: children}
}

// Children returns the composed cursors.
func (c *Cursors) Children() []Cursor { return c.children }

func exhausted(err error) bool {
	return errors.Is(err, errs.ErrCursorExhausted)
}

func (c *Cursors) MoveToFirst(ctx context.Context) error {
	c.done = false
	if len(c.children) == 0 {
		c.done = true
		return errs.ErrCursorExhausted
	}
	if c.mode == Concat {
		for c.current = 0; c.current < len(c.children); c.current++ {
			err := c.children[c.current].MoveToFirst(ctx)
			if err == nil {
				return nil
			}
			if !exhausted(err) {
				return err
			}
		}
		c.done = true
		return errs.ErrCursorExhausted
	}

	for _, child := range c.children {
		if err := child.MoveToFirst(ctx); err != nil {
			if exhausted(err) {
				c.done = true
			}
			return err
		}
	}
	return nil
}

func (c *Cursors) Next(ctx context.Context) error {
	if c.done {
		return errs.ErrCursorExhausted
	}
	if c.mode == Concat {
		err := c.children[c.current].Next(ctx)
		for exhausted(err) {
			c.current++
			if c.current >= len(c.children) {
				c.done = true
				return errs.ErrCursorExhausted
			}
			err = c.children[c.current].MoveToFirst(ctx)
		}
		return err
	}

	// Odometer: advance the rightmost child, carrying into the left.
	for i := len(c.children) - 1; i >= 0; i-- {
		err := c.children[i].Next(ctx)
		if err == nil {
			return nil
		}
		if !exhausted(err) {
			return err
		}
		if i == 0 {
			c.done = true
			return errs.ErrCursorExhausted
		}
		if err := c.children[i].MoveToFirst(ctx); err != nil {
			return err
		}
	}
	return errs.ErrCursorExhausted
}

func (c *Cursors) Record(ctx context.Context) (Record, error) {
	if c.done || len(c.children) == 0 {
		return nil, errs.ErrCursorExhausted
	}
	if c.mode == Concat {
		return c.children[c.current].Record(ctx)
	}
	rec := make(Record)
	for _, child := range c.children {
		r, err := child.Record(ctx)
		if err != nil {
			return nil, err
		}
		rec.Merge(r)
	}
	return rec, nil
}

func (c *Cursors) Get(ctx context.Context, source, column string) (catalog.Value, error) {
	return getFrom(ctx, c, source, column)
}
