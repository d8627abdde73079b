// Package catalog provides the type system, schema definitions, and catalog management.
package catalog

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/JayabrataBasu/veridicalql/pkg/errs"
)

// DataType represents a semantic column or value type.
type DataType int

const (
	TypeAny DataType = iota
	TypeNumber
	TypeString
	TypeBoolean
	TypeDate
	TypeArray
	TypeObject
)

// String returns the name of the type.
func (t DataType) String() string {
	switch t {
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeBoolean:
		return "boolean"
	case TypeDate:
		return "Date"
	case TypeArray:
		return "Array"
	case TypeObject:
		return "object"
	default:
		return "any"
	}
}

// ParseDataType converts a type name to DataType.
func ParseDataType(s string) (DataType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "number", "int", "integer", "float", "double", "numeric":
		return TypeNumber, nil
	case "string", "text", "varchar":
		return TypeString, nil
	case "boolean", "bool":
		return TypeBoolean, nil
	case "date", "datetime", "timestamp":
		return TypeDate, nil
	case "array":
		return TypeArray, nil
	case "object":
		return TypeObject, nil
	case "any", "":
		return TypeAny, nil
	default:
		return TypeAny, errs.NotFound("type", s)
	}
}

// rank orders values of different types for sorting and grouping.
// NoValue sorts after everything else.
func (t DataType) rank() int {
	switch t {
	case TypeBoolean:
		return 1
	case TypeNumber:
		return 2
	case TypeString:
		return 3
	case TypeDate:
		return 4
	case TypeArray:
		return 5
	case TypeObject:
		return 6
	default:
		return 0
	}
}

// Value represents a typed value. A Value with IsNull set is the
// "no value" sentinel and is distinct from false, 0 and "".
type Value struct {
	Type   DataType
	IsNull bool
	Num    float64
	Text   string
	Bool   bool
	Time   time.Time
	Items  []Value
	Fields map[string]Value
}

// NoValue returns the "no value" sentinel.
func NoValue() Value {
	return Value{IsNull: true}
}

// NewNumber creates a number value.
func NewNumber(v float64) Value {
	return Value{Type: TypeNumber, Num: v}
}

// NewInt creates a number value from an integer.
func NewInt(v int64) Value {
	return Value{Type: TypeNumber, Num: float64(v)}
}

// NewString creates a string value.
func NewString(v string) Value {
	return Value{Type: TypeString, Text: v}
}

// NewBool creates a boolean value.
func NewBool(v bool) Value {
	return Value{Type: TypeBoolean, Bool: v}
}

// NewDate creates a Date value.
func NewDate(v time.Time) Value {
	return Value{Type: TypeDate, Time: v}
}

// NewArray creates an Array value.
func NewArray(items ...Value) Value {
	return Value{Type: TypeArray, Items: items}
}

// NewObject creates an object value.
func NewObject(fields map[string]Value) Value {
	return Value{Type: TypeObject, Fields: fields}
}

// IsTrue reports whether v is the boolean true. Predicates only accept rows
// for which this holds.
func (v Value) IsTrue() bool {
	return !v.IsNull && v.Type == TypeBoolean && v.Bool
}

// Conforms reports whether v may be stored in a slot of type t.
func (v Value) Conforms(t DataType) bool {
	return v.IsNull || t == TypeAny || v.Type == t
}

// String returns a human-readable representation.
func (v Value) String() string {
	if v.IsNull {
		return "NULL"
	}
	switch v.Type {
	case TypeNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case TypeString:
		return v.Text
	case TypeBoolean:
		return strconv.FormatBool(v.Bool)
	case TypeDate:
		return v.Time.Format(time.RFC3339)
	case TypeArray:
		parts := make([]string, len(v.Items))
		for i, item := range v.Items {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case TypeObject:
		keys := v.sortedKeys()
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + v.Fields[k].String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return "?"
	}
}

func (v Value) sortedKeys() []string {
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FromGo converts a native Go value into a Value.
func FromGo(x interface{}) (Value, error) {
	switch t := x.(type) {
	case nil:
		return NoValue(), nil
	case Value:
		return t, nil
	case int:
		return NewInt(int64(t)), nil
	case int32:
		return NewInt(int64(t)), nil
	case int64:
		return NewInt(t), nil
	case uint:
		return NewInt(int64(t)), nil
	case uint64:
		return NewNumber(float64(t)), nil
	case float32:
		return NewNumber(float64(t)), nil
	case float64:
		return NewNumber(t), nil
	case string:
		return NewString(t), nil
	case []byte:
		return NewString(string(t)), nil
	case bool:
		return NewBool(t), nil
	case time.Time:
		return NewDate(t), nil
	case []interface{}:
		items := make([]Value, len(t))
		for i, item := range t {
			v, err := FromGo(item)
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return NewArray(items...), nil
	case map[string]interface{}:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			v, err := FromGo(item)
			if err != nil {
				return Value{}, err
			}
			fields[k] = v
		}
		return NewObject(fields), nil
	default:
		return Value{}, errs.TypeMismatch("value", "number, string, boolean, Date, Array or object", fmt.Sprintf("%T", x))
	}
}

// ToGo converts v to a native Go value. NoValue becomes nil.
func (v Value) ToGo() interface{} {
	if v.IsNull {
		return nil
	}
	switch v.Type {
	case TypeNumber:
		if v.Num == math.Trunc(v.Num) && math.Abs(v.Num) < 1<<53 {
			return int64(v.Num)
		}
		return v.Num
	case TypeString:
		return v.Text
	case TypeBoolean:
		return v.Bool
	case TypeDate:
		return v.Time
	case TypeArray:
		out := make([]interface{}, len(v.Items))
		for i, item := range v.Items {
			out[i] = item.ToGo()
		}
		return out
	case TypeObject:
		out := make(map[string]interface{}, len(v.Fields))
		for k, item := range v.Fields {
			out[k] = item.ToGo()
		}
		return out
	default:
		return nil
	}
}

// Equal reports deep value equality. Two NoValue sentinels are equal here;
// SQL comparison operators handle NoValue before calling Equal.
func Equal(a, b Value) bool {
	return Compare(a, b) == 0
}

// Compare orders two values: -1, 0 or 1. Values of different types are
// ordered by type rank; NoValue sorts last.
func Compare(a, b Value) int {
	switch {
	case a.IsNull && b.IsNull:
		return 0
	case a.IsNull:
		return 1
	case b.IsNull:
		return -1
	}
	if a.Type != b.Type {
		return cmpInt(a.Type.rank(), b.Type.rank())
	}
	switch a.Type {
	case TypeNumber:
		switch {
		case a.Num < b.Num:
			return -1
		case a.Num > b.Num:
			return 1
		}
		return 0
	case TypeString:
		return strings.Compare(a.Text, b.Text)
	case TypeBoolean:
		if a.Bool == b.Bool {
			return 0
		}
		if !a.Bool {
			return -1
		}
		return 1
	case TypeDate:
		return a.Time.Compare(b.Time)
	case TypeArray:
		for i := 0; i < len(a.Items) && i < len(b.Items); i++ {
			if c := Compare(a.Items[i], b.Items[i]); c != 0 {
				return c
			}
		}
		return cmpInt(len(a.Items), len(b.Items))
	case TypeObject:
		ak, bk := a.sortedKeys(), b.sortedKeys()
		for i := 0; i < len(ak) && i < len(bk); i++ {
			if c := strings.Compare(ak[i], bk[i]); c != 0 {
				return c
			}
			if c := Compare(a.Fields[ak[i]], b.Fields[bk[i]]); c != 0 {
				return c
			}
		}
		return cmpInt(len(ak), len(bk))
	}
	return 0
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Key encodes a tuple of values into a string that is equal for two tuples
// exactly when every pair of values is Equal. Each value is written as a type
// tag followed by a length-prefixed payload, so no separator can collide with
// value contents.
func Key(values ...Value) string {
	var b strings.Builder
	for _, v := range values {
		writeKey(&b, v)
	}
	return b.String()
}

func writeKey(b *strings.Builder, v Value) {
	if v.IsNull {
		b.WriteByte('N')
		return
	}
	var payload string
	switch v.Type {
	case TypeNumber:
		b.WriteByte('n')
		// -0 and 0 compare equal, so they share a key
		payload = strconv.FormatFloat(v.Num+0, 'g', -1, 64)
	case TypeString:
		b.WriteByte('s')
		payload = v.Text
	case TypeBoolean:
		b.WriteByte('b')
		payload = strconv.FormatBool(v.Bool)
	case TypeDate:
		b.WriteByte('d')
		payload = strconv.FormatInt(v.Time.UnixNano(), 10)
	case TypeArray:
		b.WriteByte('a')
		payload = Key(v.Items...)
	case TypeObject:
		b.WriteByte('o')
		var inner strings.Builder
		for _, k := range v.sortedKeys() {
			writeKey(&inner, NewString(k))
			writeKey(&inner, v.Fields[k])
		}
		payload = inner.String()
	default:
		b.WriteByte('?')
	}
	b.WriteString(strconv.Itoa(len(payload)))
	b.WriteByte(':')
	b.WriteString(payload)
}

// Row maps column keys (physical rows) or result-column keys (output rows)
// to values.
type Row map[string]Value

// Get returns the value for key, or NoValue when the key is absent.
func (r Row) Get(key string) Value {
	if v, ok := r[key]; ok {
		return v
	}
	return NoValue()
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
