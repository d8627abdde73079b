package ast

import (
	"errors"
	"reflect"
	"testing"

	"github.com/JayabrataBasu/veridicalql/pkg/errs"
)

const studentQuery = `{
  "classname": "Select",
  "fields": [
    {"classname": "Field", "expr": {"classname": "Column", "table": "s", "name": "name"}},
    {"classname": "Field", "expr": {"classname": "Function", "name": "COUNT",
      "params": [{"classname": "Column", "table": "w", "name": "id"}]}, "alias": "warnings"}
  ],
  "from": [
    {"classname": "TableRef", "database": "school", "table": "Student", "as": "s",
     "joins": [{"classname": "Join", "type": "LEFT",
       "table": {"classname": "TableRef", "table": "Warning", "as": "w"},
       "on": {"classname": "Binary", "op": "=",
         "left": {"classname": "Column", "table": "s", "name": "id"},
         "right": {"classname": "Column", "table": "w", "name": "studentId"}}}]}
  ],
  "where": {"classname": "Grouped", "op": "AND", "exprs": [
    {"classname": "Between", "left": {"classname": "Column", "name": "age"},
     "start": {"classname": "Value", "value": 10}, "end": {"classname": "Unknown"}},
    {"classname": "Not", "expr": {"classname": "IsNull", "left": {"classname": "Column", "name": "name"}}}
  ]},
  "group": {"classname": "Group", "exprs": [{"classname": "Column", "table": "s", "name": "name"}]},
  "order": [{"classname": "Order", "expr": {"classname": "Column", "name": "warnings"}, "desc": true}],
  "limit": {"classname": "Limit", "count": {"classname": "Value", "value": 5}}
}`

func TestDecodeSelect(t *testing.T) {
	sel, err := DecodeSelect([]byte(studentQuery))
	if err != nil {
		t.Fatalf("DecodeSelect: %v", err)
	}

	if len(sel.Fields) != 2 || sel.Fields[1].Alias != "warnings" {
		t.Fatalf("unexpected fields: %+v", sel.Fields)
	}
	fn, ok := sel.Fields[1].Expr.(*Function)
	if !ok || fn.Name != "COUNT" || len(fn.Params) != 1 {
		t.Errorf("expected COUNT(w.id), got %#v", sel.Fields[1].Expr)
	}

	ref, ok := sel.From[0].(*TableRef)
	if !ok {
		t.Fatalf("expected TableRef, got %T", sel.From[0])
	}
	if ref.Alias() != "s" || len(ref.JoinList()) != 1 {
		t.Errorf("unexpected table ref: %+v", ref)
	}
	join := ref.Joins[0]
	if join.Type != JoinLeft || join.Table.Alias() != "w" {
		t.Errorf("unexpected join: %+v", join)
	}
	if _, ok := join.On.(*Binary); !ok {
		t.Errorf("expected Binary ON, got %T", join.On)
	}

	where, ok := sel.Where.(*Grouped)
	if !ok || len(where.Exprs) != 2 {
		t.Fatalf("expected 2-term AND, got %#v", sel.Where)
	}
	between := where.Exprs[0].(*Between)
	if v := between.Start.(*Value); v.Value != float64(10) {
		t.Errorf("expected start 10, got %#v", v.Value)
	}
	if _, ok := between.End.(*Unknown); !ok {
		t.Errorf("expected Unknown end, got %T", between.End)
	}

	if sel.Group == nil || len(sel.Group.Exprs) != 1 {
		t.Errorf("unexpected group: %+v", sel.Group)
	}
	if len(sel.Order) != 1 || !sel.Order[0].Desc {
		t.Errorf("unexpected order: %+v", sel.Order)
	}
	if sel.Limit == nil || sel.Limit.Offset != nil {
		t.Errorf("unexpected limit: %+v", sel.Limit)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	sel, err := DecodeSelect([]byte(studentQuery))
	if err != nil {
		t.Fatalf("DecodeSelect: %v", err)
	}
	data, err := Encode(sel)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	again, err := DecodeSelect(data)
	if err != nil {
		t.Fatalf("DecodeSelect(encoded): %v\n%s", err, data)
	}
	if !reflect.DeepEqual(sel, again) {
		t.Errorf("round trip changed the tree:\n%s", data)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unknown classname", `{"classname": "Frobnicate"}`},
		{"missing classname", `{"fields": []}`},
		{"root not select", `{"classname": "Column", "name": "a"}`},
		{"binary missing operand", `{"classname": "Select", "fields": [{"classname": "Field",
			"expr": {"classname": "Binary", "op": "=", "left": {"classname": "Value", "value": 1}}}]}`},
		{"from item is expression", `{"classname": "Select", "fields": [],
			"from": [{"classname": "Column", "name": "a"}]}`},
		{"expression is from item", `{"classname": "Select", "fields": [],
			"where": {"classname": "TableRef", "table": "a"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSelect([]byte(tt.input))
			if !errors.Is(err, errs.ErrSyntax) {
				t.Errorf("expected ErrSyntax, got %v", err)
			}
		})
	}
}

func TestJoinDefaultsToInner(t *testing.T) {
	var j Join
	err := j.UnmarshalJSON([]byte(`{"table": {"classname": "TableRef", "table": "t"}}`))
	if err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if j.Type != JoinInner {
		t.Errorf("expected INNER, got %s", j.Type)
	}
}
