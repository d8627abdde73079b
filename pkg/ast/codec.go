package ast

import (
	"bytes"

	"github.com/goccy/go-json"

	"github.com/JayabrataBasu/veridicalql/pkg/errs"
)

// Decode decodes a node tree. Every object carries a "classname" member
// naming its node type.
func Decode(data []byte) (Node, error) {
	return decodeNode(data)
}

// DecodeSelect decodes a tree whose root must be a Select.
func DecodeSelect(data []byte) (*Select, error) {
	n, err := decodeNode(data)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, errs.Syntax("empty query")
	}
	sel, ok := n.(*Select)
	if !ok {
		return nil, errs.Syntax("expected Select at root, got %s", n.Kind())
	}
	return sel, nil
}

// Encode encodes a node tree in the format read by Decode.
func Encode(n Node) ([]byte, error) {
	return json.Marshal(n)
}

// EncodeIndent is like Encode but indents the output.
func EncodeIndent(n Node) ([]byte, error) {
	return json.MarshalIndent(n, "", "  ")
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func decodeNode(raw json.RawMessage) (Node, error) {
	if isNull(raw) {
		return nil, nil
	}
	var head struct {
		Classname Kind `json:"classname"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, errs.Syntax("decode node: %v", err)
	}

	var n Node
	switch head.Classname {
	case KindSelect:
		n = &Select{}
	case KindField:
		n = &Field{}
	case KindTableRef:
		n = &TableRef{}
	case KindSubqueryRef:
		n = &SubqueryRef{}
	case KindRemoteRef:
		n = &RemoteRef{}
	case KindJoin:
		n = &Join{}
	case KindGroup:
		n = &Group{}
	case KindOrder:
		n = &Order{}
	case KindLimit:
		n = &Limit{}
	case KindColumn:
		n = &Column{}
	case KindBinary:
		n = &Binary{}
	case KindBetween:
		n = &Between{}
	case KindCase:
		n = &Case{}
	case KindWhen:
		n = &When{}
	case KindExists:
		n = &Exists{}
	case KindFunction:
		n = &Function{}
	case KindGrouped:
		n = &Grouped{}
	case KindIn:
		n = &In{}
	case KindIsNull:
		n = &IsNull{}
	case KindLike:
		n = &Like{}
	case KindMath:
		n = &Math{}
	case KindNot:
		n = &Not{}
	case KindParameter:
		n = &Parameter{}
	case KindUnknown:
		n = &Unknown{}
	case KindValue:
		n = &Value{}
	case KindQuery:
		n = &Query{}
	case "":
		return nil, errs.Syntax("node without classname: %s", abbreviate(raw))
	default:
		return nil, errs.Syntax("unknown classname %q", head.Classname)
	}
	if err := json.Unmarshal(raw, n); err != nil {
		return nil, err
	}
	return n, nil
}

func decodeExpr(raw json.RawMessage) (Expression, error) {
	n, err := decodeNode(raw)
	if err != nil || n == nil {
		return nil, err
	}
	e, ok := n.(Expression)
	if !ok {
		return nil, errs.Syntax("%s is not an expression", n.Kind())
	}
	return e, nil
}

func decodeExprs(raws []json.RawMessage) ([]Expression, error) {
	if raws == nil {
		return nil, nil
	}
	out := make([]Expression, 0, len(raws))
	for _, raw := range raws {
		e, err := decodeExpr(raw)
		if err != nil {
			return nil, err
		}
		if e == nil {
			return nil, errs.Syntax("null expression in list")
		}
		out = append(out, e)
	}
	return out, nil
}

func decodeFrom(raw json.RawMessage) (FromItem, error) {
	n, err := decodeNode(raw)
	if err != nil || n == nil {
		return nil, err
	}
	f, ok := n.(FromItem)
	if !ok {
		return nil, errs.Syntax("%s is not a FROM item", n.Kind())
	}
	return f, nil
}

func abbreviate(raw json.RawMessage) string {
	const max = 64
	s := string(bytes.TrimSpace(raw))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

// tagged marshals v and prepends the classname member.
func tagged(kind Kind, v interface{}) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(`{"classname":"`)
	buf.WriteString(string(kind))
	buf.WriteByte('"')
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

func (n *Select) MarshalJSON() ([]byte, error) {
	type plain Select
	return tagged(KindSelect, (*plain)(n))
}

func (n *Select) UnmarshalJSON(data []byte) error {
	var w struct {
		Distinct bool              `json:"distinct"`
		Fields   []*Field          `json:"fields"`
		From     []json.RawMessage `json:"from"`
		Where    json.RawMessage   `json:"where"`
		Group    *Group            `json:"group"`
		Order    []*Order          `json:"order"`
		Limit    *Limit            `json:"limit"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*n = Select{Distinct: w.Distinct, Fields: w.Fields, Group: w.Group, Order: w.Order, Limit: w.Limit}
	for _, raw := range w.From {
		f, err := decodeFrom(raw)
		if err != nil {
			return err
		}
		if f == nil {
			return errs.Syntax("null FROM item")
		}
		n.From = append(n.From, f)
	}
	var err error
	n.Where, err = decodeExpr(w.Where)
	return err
}

func (n *Field) MarshalJSON() ([]byte, error) {
	type plain Field
	return tagged(KindField, (*plain)(n))
}

func (n *Field) UnmarshalJSON(data []byte) error {
	var w struct {
		Expr  json.RawMessage `json:"expr"`
		Alias string          `json:"alias"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	expr, err := decodeExpr(w.Expr)
	if err != nil {
		return err
	}
	if expr == nil {
		return errs.Syntax("field without expression")
	}
	*n = Field{Expr: expr, Alias: w.Alias}
	return nil
}

func (n *TableRef) MarshalJSON() ([]byte, error) {
	type plain TableRef
	return tagged(KindTableRef, (*plain)(n))
}

func (n *SubqueryRef) MarshalJSON() ([]byte, error) {
	type plain SubqueryRef
	return tagged(KindSubqueryRef, (*plain)(n))
}

func (n *RemoteRef) MarshalJSON() ([]byte, error) {
	type plain RemoteRef
	return tagged(KindRemoteRef, (*plain)(n))
}

func (n *Join) MarshalJSON() ([]byte, error) {
	type plain Join
	return tagged(KindJoin, (*plain)(n))
}

func (n *Join) UnmarshalJSON(data []byte) error {
	var w struct {
		Type  JoinType        `json:"type"`
		Table json.RawMessage `json:"table"`
		On    json.RawMessage `json:"on"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	table, err := decodeFrom(w.Table)
	if err != nil {
		return err
	}
	if table == nil {
		return errs.Syntax("join without table")
	}
	on, err := decodeExpr(w.On)
	if err != nil {
		return err
	}
	if w.Type == "" {
		w.Type = JoinInner
	}
	*n = Join{Type: w.Type, Table: table, On: on}
	return nil
}

func (n *Group) MarshalJSON() ([]byte, error) {
	type plain Group
	return tagged(KindGroup, (*plain)(n))
}

func (n *Group) UnmarshalJSON(data []byte) error {
	var w struct {
		Exprs  []json.RawMessage `json:"exprs"`
		Having json.RawMessage   `json:"having"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	exprs, err := decodeExprs(w.Exprs)
	if err != nil {
		return err
	}
	having, err := decodeExpr(w.Having)
	if err != nil {
		return err
	}
	*n = Group{Exprs: exprs, Having: having}
	return nil
}

func (n *Order) MarshalJSON() ([]byte, error) {
	type plain Order
	return tagged(KindOrder, (*plain)(n))
}

func (n *Order) UnmarshalJSON(data []byte) error {
	var w struct {
		Expr json.RawMessage `json:"expr"`
		Desc bool            `json:"desc"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	expr, err := decodeExpr(w.Expr)
	if err != nil {
		return err
	}
	if expr == nil {
		return errs.Syntax("order term without expression")
	}
	*n = Order{Expr: expr, Desc: w.Desc}
	return nil
}

func (n *Limit) MarshalJSON() ([]byte, error) {
	type plain Limit
	return tagged(KindLimit, (*plain)(n))
}

func (n *Limit) UnmarshalJSON(data []byte) error {
	var w struct {
		Count  json.RawMessage `json:"count"`
		Offset json.RawMessage `json:"offset"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	count, err := decodeExpr(w.Count)
	if err != nil {
		return err
	}
	offset, err := decodeExpr(w.Offset)
	if err != nil {
		return err
	}
	*n = Limit{Count: count, Offset: offset}
	return nil
}

func (n *Column) MarshalJSON() ([]byte, error) {
	type plain Column
	return tagged(KindColumn, (*plain)(n))
}

func (n *Binary) MarshalJSON() ([]byte, error) {
	type plain Binary
	return tagged(KindBinary, (*plain)(n))
}

func (n *Binary) UnmarshalJSON(data []byte) error {
	var w struct {
		Op    string          `json:"op"`
		Left  json.RawMessage `json:"left"`
		Right json.RawMessage `json:"right"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	left, right, err := decodePair(w.Left, w.Right, "Binary")
	if err != nil {
		return err
	}
	*n = Binary{Op: w.Op, Left: left, Right: right}
	return nil
}

func decodePair(l, r json.RawMessage, what string) (Expression, Expression, error) {
	left, err := decodeExpr(l)
	if err != nil {
		return nil, nil, err
	}
	right, err := decodeExpr(r)
	if err != nil {
		return nil, nil, err
	}
	if left == nil || right == nil {
		return nil, nil, errs.Syntax("%s requires two operands", what)
	}
	return left, right, nil
}

func (n *Between) MarshalJSON() ([]byte, error) {
	type plain Between
	return tagged(KindBetween, (*plain)(n))
}

func (n *Between) UnmarshalJSON(data []byte) error {
	var w struct {
		Left  json.RawMessage `json:"left"`
		Start json.RawMessage `json:"start"`
		End   json.RawMessage `json:"end"`
		Not   bool            `json:"not"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	left, err := decodeExpr(w.Left)
	if err != nil {
		return err
	}
	start, end, err := decodePair(w.Start, w.End, "Between")
	if err != nil {
		return err
	}
	if left == nil {
		return errs.Syntax("Between requires a left operand")
	}
	*n = Between{Left: left, Start: start, End: end, Not: w.Not}
	return nil
}

func (n *Case) MarshalJSON() ([]byte, error) {
	type plain Case
	return tagged(KindCase, (*plain)(n))
}

func (n *Case) UnmarshalJSON(data []byte) error {
	var w struct {
		Operand json.RawMessage `json:"operand"`
		Whens   []*When         `json:"whens"`
		Else    json.RawMessage `json:"else"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	operand, err := decodeExpr(w.Operand)
	if err != nil {
		return err
	}
	els, err := decodeExpr(w.Else)
	if err != nil {
		return err
	}
	*n = Case{Operand: operand, Whens: w.Whens, Else: els}
	return nil
}

func (n *When) MarshalJSON() ([]byte, error) {
	type plain When
	return tagged(KindWhen, (*plain)(n))
}

func (n *When) UnmarshalJSON(data []byte) error {
	var w struct {
		Cond   json.RawMessage `json:"cond"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	cond, result, err := decodePair(w.Cond, w.Result, "When")
	if err != nil {
		return err
	}
	*n = When{Cond: cond, Result: result}
	return nil
}

func (n *Exists) MarshalJSON() ([]byte, error) {
	type plain Exists
	return tagged(KindExists, (*plain)(n))
}

func (n *Function) MarshalJSON() ([]byte, error) {
	type plain Function
	return tagged(KindFunction, (*plain)(n))
}

func (n *Function) UnmarshalJSON(data []byte) error {
	var w struct {
		Name   string            `json:"name"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	params, err := decodeExprs(w.Params)
	if err != nil {
		return err
	}
	*n = Function{Name: w.Name, Params: params}
	return nil
}

func (n *Grouped) MarshalJSON() ([]byte, error) {
	type plain Grouped
	return tagged(KindGrouped, (*plain)(n))
}

func (n *Grouped) UnmarshalJSON(data []byte) error {
	var w struct {
		Op    string            `json:"op"`
		Exprs []json.RawMessage `json:"exprs"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	exprs, err := decodeExprs(w.Exprs)
	if err != nil {
		return err
	}
	*n = Grouped{Op: w.Op, Exprs: exprs}
	return nil
}

func (n *In) MarshalJSON() ([]byte, error) {
	type plain In
	return tagged(KindIn, (*plain)(n))
}

func (n *In) UnmarshalJSON(data []byte) error {
	var w struct {
		Left   json.RawMessage   `json:"left"`
		Right  json.RawMessage   `json:"right"`
		Values []json.RawMessage `json:"values"`
		Not    bool              `json:"not"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	left, err := decodeExpr(w.Left)
	if err != nil {
		return err
	}
	if left == nil {
		return errs.Syntax("In requires a left operand")
	}
	right, err := decodeExpr(w.Right)
	if err != nil {
		return err
	}
	values, err := decodeExprs(w.Values)
	if err != nil {
		return err
	}
	*n = In{Left: left, Right: right, Values: values, Not: w.Not}
	return nil
}

func (n *IsNull) MarshalJSON() ([]byte, error) {
	type plain IsNull
	return tagged(KindIsNull, (*plain)(n))
}

func (n *IsNull) UnmarshalJSON(data []byte) error {
	var w struct {
		Left json.RawMessage `json:"left"`
		Not  bool            `json:"not"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	left, err := decodeExpr(w.Left)
	if err != nil {
		return err
	}
	if left == nil {
		return errs.Syntax("IsNull requires an operand")
	}
	*n = IsNull{Left: left, Not: w.Not}
	return nil
}

func (n *Like) MarshalJSON() ([]byte, error) {
	type plain Like
	return tagged(KindLike, (*plain)(n))
}

func (n *Like) UnmarshalJSON(data []byte) error {
	var w struct {
		Left            json.RawMessage `json:"left"`
		Right           json.RawMessage `json:"right"`
		Not             bool            `json:"not"`
		CaseInsensitive bool            `json:"caseInsensitive"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	left, right, err := decodePair(w.Left, w.Right, "Like")
	if err != nil {
		return err
	}
	*n = Like{Left: left, Right: right, Not: w.Not, CaseInsensitive: w.CaseInsensitive}
	return nil
}

func (n *Math) MarshalJSON() ([]byte, error) {
	type plain Math
	return tagged(KindMath, (*plain)(n))
}

func (n *Math) UnmarshalJSON(data []byte) error {
	var w struct {
		Op    string          `json:"op"`
		Left  json.RawMessage `json:"left"`
		Right json.RawMessage `json:"right"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	left, err := decodeExpr(w.Left)
	if err != nil {
		return err
	}
	right, err := decodeExpr(w.Right)
	if err != nil {
		return err
	}
	if right == nil {
		return errs.Syntax("Math requires a right operand")
	}
	*n = Math{Op: w.Op, Left: left, Right: right}
	return nil
}

func (n *Not) MarshalJSON() ([]byte, error) {
	type plain Not
	return tagged(KindNot, (*plain)(n))
}

func (n *Not) UnmarshalJSON(data []byte) error {
	var w struct {
		Expr json.RawMessage `json:"expr"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	expr, err := decodeExpr(w.Expr)
	if err != nil {
		return err
	}
	if expr == nil {
		return errs.Syntax("Not requires an operand")
	}
	*n = Not{Expr: expr}
	return nil
}

func (n *Parameter) MarshalJSON() ([]byte, error) {
	type plain Parameter
	return tagged(KindParameter, (*plain)(n))
}

func (n *Unknown) MarshalJSON() ([]byte, error) {
	type plain Unknown
	return tagged(KindUnknown, (*plain)(n))
}

func (n *Value) MarshalJSON() ([]byte, error) {
	type plain Value
	return tagged(KindValue, (*plain)(n))
}

func (n *Query) MarshalJSON() ([]byte, error) {
	type plain Query
	return tagged(KindQuery, (*plain)(n))
}
