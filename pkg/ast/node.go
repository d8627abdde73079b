// Package ast defines the parsed query tree consumed by the compiler.
//
// The tree is produced by an external parser. Every node carries a Kind tag;
// the set of node types is closed, so consumers switch exhaustively over the
// concrete types.
package ast

// Kind is the discriminator tag of a node ("classname" on the wire).
type Kind string

const (
	KindSelect      Kind = "Select"
	KindField       Kind = "Field"
	KindTableRef    Kind = "TableRef"
	KindSubqueryRef Kind = "SubqueryRef"
	KindRemoteRef   Kind = "RemoteRef"
	KindJoin        Kind = "Join"
	KindGroup       Kind = "Group"
	KindOrder       Kind = "Order"
	KindLimit       Kind = "Limit"

	KindColumn    Kind = "Column"
	KindBinary    Kind = "Binary"
	KindBetween   Kind = "Between"
	KindCase      Kind = "Case"
	KindWhen      Kind = "When"
	KindExists    Kind = "Exists"
	KindFunction  Kind = "Function"
	KindGrouped   Kind = "Grouped"
	KindIn        Kind = "In"
	KindIsNull    Kind = "IsNull"
	KindLike      Kind = "Like"
	KindMath      Kind = "Math"
	KindNot       Kind = "Not"
	KindParameter Kind = "Parameter"
	KindUnknown   Kind = "Unknown"
	KindValue     Kind = "Value"
	KindQuery     Kind = "Query"
)

// Node is implemented by every parsed node.
type Node interface {
	Kind() Kind
}

// Expression is implemented by every expression node.
type Expression interface {
	Node
	exprNode()
}

// FromItem is implemented by the nodes allowed in a FROM list.
type FromItem interface {
	Node
	fromNode()
	// Alias returns the name the item is visible under, if any.
	Alias() string
	// JoinList returns the join clauses attached to the item.
	JoinList() []*Join
}

// Select is a complete query.
type Select struct {
	Distinct bool       `json:"distinct,omitempty"`
	Fields   []*Field   `json:"fields"`
	From     []FromItem `json:"from,omitempty"`
	Where    Expression `json:"where,omitempty"`
	Group    *Group     `json:"group,omitempty"`
	Order    []*Order   `json:"order,omitempty"`
	Limit    *Limit     `json:"limit,omitempty"`
}

func (*Select) Kind() Kind { return KindSelect }

// Field is one SELECT item.
type Field struct {
	Expr  Expression `json:"expr"`
	Alias string     `json:"alias,omitempty"`
}

func (*Field) Kind() Kind { return KindField }

// TableRef names a base table, optionally qualified by database.
type TableRef struct {
	Database string  `json:"database,omitempty"`
	Table    string  `json:"table"`
	As       string  `json:"as,omitempty"`
	Joins    []*Join `json:"joins,omitempty"`
}

func (*TableRef) Kind() Kind { return KindTableRef }
func (*TableRef) fromNode()  {}

// Alias returns the alias, or the table name when no alias is set.
func (t *TableRef) Alias() string {
	if t.As != "" {
		return t.As
	}
	return t.Table
}

func (t *TableRef) JoinList() []*Join { return t.Joins }

// SubqueryRef is a nested query used as a FROM item.
type SubqueryRef struct {
	Query *Select `json:"query"`
	As    string  `json:"as,omitempty"`
	Joins []*Join `json:"joins,omitempty"`
}

func (*SubqueryRef) Kind() Kind          { return KindSubqueryRef }
func (*SubqueryRef) fromNode()           {}
func (s *SubqueryRef) Alias() string     { return s.As }
func (s *SubqueryRef) JoinList() []*Join { return s.Joins }

// RemoteRef names a registered external row source.
type RemoteRef struct {
	Source string  `json:"source"`
	As     string  `json:"as,omitempty"`
	Joins  []*Join `json:"joins,omitempty"`
}

func (*RemoteRef) Kind() Kind { return KindRemoteRef }
func (*RemoteRef) fromNode()  {}

// Alias returns the alias, or the source name when no alias is set.
func (r *RemoteRef) Alias() string {
	if r.As != "" {
		return r.As
	}
	return r.Source
}

func (r *RemoteRef) JoinList() []*Join { return r.Joins }

// JoinType is the kind of a join clause.
type JoinType string

const (
	JoinCross JoinType = "CROSS"
	JoinInner JoinType = "INNER"
	JoinLeft  JoinType = "LEFT"
	JoinRight JoinType = "RIGHT"
	JoinFull  JoinType = "FULL"
)

// Join attaches a table (or subquery) to a FROM item.
type Join struct {
	Type  JoinType   `json:"type"`
	Table FromItem   `json:"table"`
	On    Expression `json:"on,omitempty"`
}

func (*Join) Kind() Kind { return KindJoin }

// Group is a GROUP BY clause with an optional HAVING predicate.
type Group struct {
	Exprs  []Expression `json:"exprs"`
	Having Expression   `json:"having,omitempty"`
}

func (*Group) Kind() Kind { return KindGroup }

// Order is one ORDER BY term.
type Order struct {
	Expr Expression `json:"expr"`
	Desc bool       `json:"desc,omitempty"`
}

func (*Order) Kind() Kind { return KindOrder }

// Limit is a LIMIT/OFFSET clause. Either part may be nil.
type Limit struct {
	Count  Expression `json:"count,omitempty"`
	Offset Expression `json:"offset,omitempty"`
}

func (*Limit) Kind() Kind { return KindLimit }

// Column references a column, or all columns when Wildcard is set.
type Column struct {
	Table    string `json:"table,omitempty"`
	Name     string `json:"name,omitempty"`
	Wildcard bool   `json:"wildcard,omitempty"`
}

func (*Column) Kind() Kind { return KindColumn }
func (*Column) exprNode()  {}

// Binary is a comparison: < <= <> = > >=.
type Binary struct {
	Op    string     `json:"op"`
	Left  Expression `json:"left"`
	Right Expression `json:"right"`
}

func (*Binary) Kind() Kind { return KindBinary }
func (*Binary) exprNode()  {}

// Between tests Start <= Left <= End.
type Between struct {
	Left  Expression `json:"left"`
	Start Expression `json:"start"`
	End   Expression `json:"end"`
	Not   bool       `json:"not,omitempty"`
}

func (*Between) Kind() Kind { return KindBetween }
func (*Between) exprNode()  {}

// Case is a CASE expression. With an Operand, each When.Cond is compared
// to the operand; otherwise each When.Cond is a predicate.
type Case struct {
	Operand Expression `json:"operand,omitempty"`
	Whens   []*When    `json:"whens"`
	Else    Expression `json:"else,omitempty"`
}

func (*Case) Kind() Kind { return KindCase }
func (*Case) exprNode()  {}

// When is one WHEN ... THEN ... arm.
type When struct {
	Cond   Expression `json:"cond"`
	Result Expression `json:"result"`
}

func (*When) Kind() Kind { return KindWhen }

// Exists tests whether a nested query yields any row.
type Exists struct {
	Query *Select `json:"query"`
	Not   bool    `json:"not,omitempty"`
}

func (*Exists) Kind() Kind { return KindExists }
func (*Exists) exprNode()  {}

// Function is a scalar or aggregate function call.
type Function struct {
	Name   string       `json:"name"`
	Params []Expression `json:"params,omitempty"`
}

func (*Function) Kind() Kind { return KindFunction }
func (*Function) exprNode()  {}

// Grouped combines predicates with AND or OR.
type Grouped struct {
	Op    string       `json:"op"`
	Exprs []Expression `json:"exprs"`
}

func (*Grouped) Kind() Kind { return KindGrouped }
func (*Grouped) exprNode()  {}

// In tests membership of Left in Right (a sequence-valued expression or a
// Query) or, when Right is nil, in the Values list.
type In struct {
	Left   Expression   `json:"left"`
	Right  Expression   `json:"right,omitempty"`
	Values []Expression `json:"values,omitempty"`
	Not    bool         `json:"not,omitempty"`
}

func (*In) Kind() Kind { return KindIn }
func (*In) exprNode()  {}

// IsNull tests for the "no value" sentinel.
type IsNull struct {
	Left Expression `json:"left"`
	Not  bool       `json:"not,omitempty"`
}

func (*IsNull) Kind() Kind { return KindIsNull }
func (*IsNull) exprNode()  {}

// Like matches Left against a LIKE pattern.
type Like struct {
	Left            Expression `json:"left"`
	Right           Expression `json:"right"`
	Not             bool       `json:"not,omitempty"`
	CaseInsensitive bool       `json:"caseInsensitive,omitempty"`
}

func (*Like) Kind() Kind { return KindLike }
func (*Like) exprNode()  {}

// Math is an arithmetic expression. A nil Left with Op "-" is negation.
type Math struct {
	Op    string     `json:"op"`
	Left  Expression `json:"left,omitempty"`
	Right Expression `json:"right"`
}

func (*Math) Kind() Kind { return KindMath }
func (*Math) exprNode()  {}

// Not negates a predicate.
type Not struct {
	Expr Expression `json:"expr"`
}

func (*Not) Kind() Kind { return KindNot }
func (*Not) exprNode()  {}

// Parameter is a named placeholder bound at execution time.
type Parameter struct {
	Name  string   `json:"name"`
	Types []string `json:"types,omitempty"`
}

func (*Parameter) Kind() Kind { return KindParameter }
func (*Parameter) exprNode()  {}

// Unknown is a positional placeholder ("?") bound at execution time.
// Slots are numbered in order of appearance.
type Unknown struct {
	Types []string `json:"types,omitempty"`
}

func (*Unknown) Kind() Kind { return KindUnknown }
func (*Unknown) exprNode()  {}

// Value is a literal. Type optionally names the semantic type when the raw
// Go value is ambiguous (e.g. "Date" for an RFC 3339 string).
type Value struct {
	Value interface{} `json:"value"`
	Type  string      `json:"type,omitempty"`
}

func (*Value) Kind() Kind { return KindValue }
func (*Value) exprNode()  {}

// Query is a scalar subquery used as an expression, or the right side of IN.
type Query struct {
	Query *Select `json:"query"`
}

func (*Query) Kind() Kind { return KindQuery }
func (*Query) exprNode()  {}
