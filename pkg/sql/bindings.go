package sql

import (
	"strconv"
	"strings"

	"github.com/JayabrataBasu/veridicalql/pkg/catalog"
	"github.com/JayabrataBasu/veridicalql/pkg/errs"
)

// Slot describes one unknown ("?") or named parameter of a plan.
type Slot struct {
	Index int
	Name  string
	Types []catalog.DataType // empty means any type
}

func (s Slot) accepts(v catalog.Value) bool {
	if v.IsNull || len(s.Types) == 0 {
		return true
	}
	for _, t := range s.Types {
		if v.Conforms(t) {
			return true
		}
	}
	return false
}

func (s Slot) label() string {
	if s.Name != "" {
		return "parameter :" + s.Name
	}
	return "unknown #" + strconv.Itoa(s.Index)
}

func typeList(types []catalog.DataType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = t.String()
	}
	return strings.Join(parts, " or ")
}

// Bindings holds the slot values of one execution. Plans stay immutable;
// running a plan again with fresh bindings resets every slot.
type Bindings struct {
	slots  []Slot
	values []catalog.Value
}

// NewBindings creates empty bindings for the plan's slots.
func (p *Plan) NewBindings() *Bindings {
	values := make([]catalog.Value, len(p.Unknowns))
	for i := range values {
		values[i] = catalog.NoValue()
	}
	return &Bindings{slots: p.Unknowns, values: values}
}

// Set assigns slot index, checking the value against the allowed types.
func (b *Bindings) Set(index int, v catalog.Value) error {
	if index < 0 || index >= len(b.slots) {
		return errs.NotFound("unknown", strconv.Itoa(index))
	}
	slot := b.slots[index]
	if !slot.accepts(v) {
		return errs.TypeMismatch(slot.label(), typeList(slot.Types), v.Type.String())
	}
	b.values[index] = v
	return nil
}

// SetNamed assigns the named parameter.
func (b *Bindings) SetNamed(name string, v catalog.Value) error {
	for _, slot := range b.slots {
		if slot.Name != "" && strings.EqualFold(slot.Name, name) {
			return b.Set(slot.Index, v)
		}
	}
	return errs.NotFound("parameter", name)
}

// Bind assigns native Go values to the slots in order.
func (b *Bindings) Bind(args ...interface{}) error {
	if len(args) > len(b.slots) {
		return errs.Syntax("got %d arguments for %d unknowns", len(args), len(b.slots))
	}
	for i, arg := range args {
		v, err := catalog.FromGo(arg)
		if err != nil {
			return err
		}
		if err := b.Set(i, v); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the value of slot index, or NoValue while unbound.
func (b *Bindings) Get(index int) catalog.Value {
	if index < 0 || index >= len(b.values) {
		return catalog.NoValue()
	}
	return b.values[index]
}
