package cursor

import (
	"context"

	"github.com/JayabrataBasu/veridicalql/pkg/catalog"
	"github.com/JayabrataBasu/veridicalql/pkg/errs"
)

// JoinType is the kind of a join clause.
type JoinType int

const (
	JoinCross JoinType = iota
	JoinInner
	JoinLeft
	JoinRight
	JoinFull
)

func (t JoinType) String() string {
	switch t {
	case JoinCross:
		return "CROSS"
	case JoinInner:
		return "INNER"
	case JoinLeft:
		return "LEFT"
	case JoinRight:
		return "RIGHT"
	case JoinFull:
		return "FULL"
	default:
		return "?"
	}
}

// Predicate decides whether a candidate record satisfies a join condition.
type Predicate func(ctx context.Context, rec Record) (bool, error)

// Participant is one row source of a FROM item.
type Participant struct {
	Key    string
	Source RowSource
}

// Join attaches a participant to everything on its left.
type Join struct {
	Type  JoinType
	Right Participant
	On    Predicate // nil accepts every pair
}

// padded marks a participant without a row at a position.
const padded = -1

// Table iterates over the logical join product of a base participant and its
// join clauses. Positions are index vectors, one entry per participant.
type Table struct {
	parts     []Participant
	joins     []Join
	positions [][]int
	built     bool
	pos       int
}

// NewTable creates a cursor over base joined with joins, in order.
func NewTable(base Participant, joins ...Join) *Table {
	parts := make([]Participant, 0, len(joins)+1)
	parts = append(parts, base)
	for _, j := range joins {
		parts = append(parts, j.Right)
	}
	return &Table{parts: parts, joins: joins, pos: -1}
}

// Sources returns the source keys of all participants.
func (c *Table) Sources() []string {
	keys := make([]string, len(c.parts))
	for i, p := range c.parts {
		keys[i] = p.Key
	}
	return keys
}

// Len builds the positions if needed and returns their number.
func (c *Table) Len(ctx context.Context) (int, error) {
	if err := c.build(ctx); err != nil {
		return 0, err
	}
	return len(c.positions), nil
}

func (c *Table) build(ctx context.Context) error {
	if c.built {
		return nil
	}
	n, err := c.parts[0].Source.RowCount(ctx)
	if err != nil {
		return err
	}
	positions := make([][]int, n)
	for i := range positions {
		positions[i] = []int{i}
	}
	for k, j := range c.joins {
		positions, err = c.joinClause(ctx, positions, k+1, j)
		if err != nil {
			return err
		}
	}
	c.positions = positions
	c.built = true
	return nil
}

// joinClause extends every left position with the matching rows of the
// participant at index width (nested-loop, left outer, right inner).
func (c *Table) joinClause(ctx context.Context, left [][]int, width int, j Join) ([][]int, error) {
	m, err := j.Right.Source.RowCount(ctx)
	if err != nil {
		return nil, err
	}
	var next [][]int
	matchedRight := make([]bool, m)

	for _, pos := range left {
		matched := false
		for r := 0; r < m; r++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			candidate := extend(pos, r)
			ok := true
			if j.Type != JoinCross && j.On != nil {
				rec, err := c.recordAt(ctx, candidate)
				if err != nil {
					return nil, err
				}
				if ok, err = j.On(ctx, rec); err != nil {
					return nil, err
				}
			}
			if ok {
				next = append(next, candidate)
				matched = true
				matchedRight[r] = true
			}
		}
		if !matched && (j.Type == JoinLeft || j.Type == JoinFull) {
			next = append(next, extend(pos, padded))
		}
	}

	if j.Type == JoinRight || j.Type == JoinFull {
		for r, ok := range matchedRight {
			if ok {
				continue
			}
			pos := make([]int, width+1)
			for i := 0; i < width; i++ {
				pos[i] = padded
			}
			pos[width] = r
			next = append(next, pos)
		}
	}
	return next, nil
}

func extend(pos []int, r int) []int {
	out := make([]int, len(pos)+1)
	copy(out, pos)
	out[len(pos)] = r
	return out
}

func (c *Table) recordAt(ctx context.Context, pos []int) (Record, error) {
	rec := make(Record, len(pos))
	for i, idx := range pos {
		if idx == padded {
			rec[c.parts[i].Key] = nil
			continue
		}
		row, err := c.parts[i].Source.Row(ctx, idx)
		if err != nil {
			return nil, err
		}
		rec[c.parts[i].Key] = row
	}
	return rec, nil
}

func (c *Table) MoveToFirst(ctx context.Context) error {
	if err := c.build(ctx); err != nil {
		return err
	}
	c.pos = 0
	if len(c.positions) == 0 {
		return errs.ErrCursorExhausted
	}
	return nil
}

func (c *Table) Next(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.pos < 0 {
		return c.MoveToFirst(ctx)
	}
	c.pos++
	if c.pos >= len(c.positions) {
		c.pos = len(c.positions)
		return errs.ErrCursorExhausted
	}
	return nil
}

func (c *Table) Record(ctx context.Context) (Record, error) {
	if c.pos < 0 || c.pos >= len(c.positions) {
		return nil, errs.ErrCursorExhausted
	}
	return c.recordAt(ctx, c.positions[c.pos])
}

func (c *Table) Get(ctx context.Context, source, column string) (catalog.Value, error) {
	return getFrom(ctx, c, source, column)
}
