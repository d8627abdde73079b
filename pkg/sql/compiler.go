// Package sql binds query trees against the schema into immutable plans and
// executes them inside a per-query sandbox.
package sql

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JayabrataBasu/veridicalql/pkg/ast"
	"github.com/JayabrataBasu/veridicalql/pkg/catalog"
	"github.com/JayabrataBasu/veridicalql/pkg/cursor"
	"github.com/JayabrataBasu/veridicalql/pkg/errs"
	"github.com/JayabrataBasu/veridicalql/pkg/function"
)

// RemoteCatalog resolves the columns of registered remote sources.
type RemoteCatalog interface {
	Columns(name string) ([]catalog.Column, error)
}

// Compiler binds parsed queries against a schema and a function registry.
type Compiler struct {
	Schema          *catalog.Schema
	Functions       *function.Registry
	Remotes         RemoteCatalog
	DefaultDatabase string
}

// compileState is shared by a root query and every query nested in it.
type compileState struct {
	unknowns   []Slot
	named      map[string]int
	referenced map[ColumnID]bool
	refOrder   []ColumnID
	tables     map[TableRef]bool
	tableOrder []TableRef
}

func (st *compileState) addTable(db, table string) {
	ref := TableRef{Database: db, Table: table}
	if !st.tables[ref] {
		st.tables[ref] = true
		st.tableOrder = append(st.tableOrder, ref)
	}
}

func (st *compileState) addColumn(db, table, column string) {
	id := ColumnID{Database: db, Table: table, Column: column}
	if !st.referenced[id] {
		st.referenced[id] = true
		st.refOrder = append(st.refOrder, id)
	}
}

// scope holds the sources visible to one query level.
type scope struct {
	parent  *scope
	plan    *Plan
	sources []*Source
}

func (s *scope) lookupAlias(alias string) *Source {
	for _, src := range s.sources {
		if src.Alias != "" && equalFold(src.Alias, alias) {
			return src
		}
	}
	return nil
}

// exprCtx carries clause-specific rules while compiling an expression.
type exprCtx struct {
	clause      string
	aggregates  bool                     // aggregate calls allowed
	inAggregate bool                     // compiling an aggregate's parameter
	aliases     map[string]*OutputColumn // select aliases visible by name
}

func equalFold(a, b string) bool {
	return strings.EqualFold(a, b)
}

// Compile binds a query into an executable plan.
func (c *Compiler) Compile(node *ast.Select) (*Plan, error) {
	if node == nil {
		return nil, errs.Syntax("empty query")
	}
	st := &compileState{
		named:      make(map[string]int),
		referenced: make(map[ColumnID]bool),
		tables:     make(map[TableRef]bool),
	}
	version := c.Schema.Version()

	plan, err := c.compileSelect(node, nil, st)
	if err != nil {
		return nil, err
	}
	plan.Unknowns = st.unknowns
	plan.Referenced = st.refOrder
	plan.Tables = st.tableOrder
	plan.SchemaVersion = version
	return plan, nil
}

func (c *Compiler) compileSelect(node *ast.Select, parent *scope, st *compileState) (*Plan, error) {
	if node == nil {
		return nil, errs.Syntax("empty nested query")
	}
	plan := &Plan{Query: node, Distinct: node.Distinct}
	sc := &scope{parent: parent, plan: plan}

	// FROM items and their joins.
	for _, item := range node.From {
		src, err := c.bindFromItem(item, sc, st)
		if err != nil {
			return nil, err
		}
		plan.Sources = append(plan.Sources, src)
	}

	// SELECT list.
	aliases := make(map[string]*OutputColumn)
	used := make(map[string]bool)
	addOutput := func(name string, e Expr, explicit bool) {
		key := ""
		if ref, ok := e.(*ColumnRef); ok && !used[ref.Column] {
			key = ref.Column
		} else {
			key = uuid.NewString()
		}
		used[key] = true
		oc := &OutputColumn{Key: key, Name: name, Expr: e, Type: e.Type()}
		plan.Columns = append(plan.Columns, oc)
		if explicit {
			aliases[strings.ToLower(name)] = oc
		}
	}
	for _, f := range node.Fields {
		if f == nil || f.Expr == nil {
			return nil, errs.Syntax("empty select field")
		}
		if col, ok := f.Expr.(*ast.Column); ok && col.Wildcard {
			refs, err := c.expandWildcard(col, sc, st)
			if err != nil {
				return nil, err
			}
			for _, ref := range refs {
				addOutput(ref.Name, ref, false)
			}
			continue
		}
		e, err := c.compileExpr(f.Expr, sc, st, exprCtx{clause: "SELECT", aggregates: true})
		if err != nil {
			return nil, err
		}
		if f.Alias != "" {
			addOutput(f.Alias, e, true)
		} else {
			addOutput(defaultName(f.Expr, e), e, false)
		}
	}
	if len(plan.Columns) == 0 {
		return nil, errs.Syntax("query selects no columns")
	}

	// WHERE, GROUP BY, HAVING.
	if node.Where != nil {
		where, err := c.compileExpr(node.Where, sc, st, exprCtx{clause: "WHERE"})
		if err != nil {
			return nil, err
		}
		plan.Where = where
	}
	if node.Group != nil {
		for _, g := range node.Group.Exprs {
			e, err := c.compileExpr(g, sc, st, exprCtx{clause: "GROUP BY"})
			if err != nil {
				return nil, err
			}
			plan.GroupBy = append(plan.GroupBy, e)
		}
		if node.Group.Having != nil {
			having, err := c.compileExpr(node.Group.Having, sc, st, exprCtx{clause: "HAVING", aggregates: true, aliases: aliases})
			if err != nil {
				return nil, err
			}
			plan.Having = having
		}
	}

	// ORDER BY.
	for _, o := range node.Order {
		if o == nil || o.Expr == nil {
			return nil, errs.Syntax("empty order term")
		}
		term, err := c.compileOrder(o, plan, sc, st, aliases)
		if err != nil {
			return nil, err
		}
		plan.OrderBy = append(plan.OrderBy, term)
	}

	// LIMIT / OFFSET.
	if node.Limit != nil {
		var err error
		if node.Limit.Count != nil {
			if plan.Limit, err = c.compileExpr(node.Limit.Count, sc, st, exprCtx{clause: "LIMIT"}); err != nil {
				return nil, err
			}
		}
		if node.Limit.Offset != nil {
			if plan.Offset, err = c.compileExpr(node.Limit.Offset, sc, st, exprCtx{clause: "OFFSET"}); err != nil {
				return nil, err
			}
		}
	}

	deriveFlags(plan)
	return plan, nil
}

// bindFromItem binds a FROM item and its join chain. Each ON condition is
// compiled as soon as its join is bound and sees only the participants
// joined so far, plus the enclosing queries.
func (c *Compiler) bindFromItem(item ast.FromItem, sc *scope, st *compileState) (*Source, error) {
	if item == nil {
		return nil, errs.Syntax("empty FROM item")
	}
	src, err := c.bindSource(item, sc, st)
	if err != nil {
		return nil, err
	}

	key := strings.ToLower(src.Alias)
	if key == "" {
		key = "#" + strconv.Itoa(len(sc.sources))
	} else if sc.lookupAlias(src.Alias) != nil {
		return nil, errs.Ambiguous("alias", src.Alias)
	}
	src.Key = key
	sc.sources = append(sc.sources, src)

	chain := []*Source{src}
	for _, j := range item.JoinList() {
		if j == nil {
			return nil, errs.Syntax("empty join clause")
		}
		typ, err := joinType(j.Type)
		if err != nil {
			return nil, err
		}
		right, err := c.bindFromItem(j.Table, sc, st)
		if err != nil {
			return nil, err
		}
		clause := &JoinClause{Type: typ, Source: right}
		chain = append(chain, right)
		if j.On != nil {
			visible := &scope{parent: sc.parent, plan: sc.plan, sources: chain}
			if clause.On, err = c.compileExpr(j.On, visible, st, exprCtx{clause: "JOIN ON"}); err != nil {
				return nil, err
			}
		}

		// Joins of the participant continue the chain left to right.
		src.Joins = append(src.Joins, clause)
		for _, nested := range right.Joins {
			src.Joins = append(src.Joins, nested)
			chain = append(chain, nested.Source)
		}
		right.Joins = nil
	}
	return src, nil
}

func joinType(t ast.JoinType) (cursor.JoinType, error) {
	switch strings.ToUpper(string(t)) {
	case "CROSS":
		return cursor.JoinCross, nil
	case "INNER", "":
		return cursor.JoinInner, nil
	case "LEFT":
		return cursor.JoinLeft, nil
	case "RIGHT":
		return cursor.JoinRight, nil
	case "FULL":
		return cursor.JoinFull, nil
	default:
		return 0, errs.Syntax("unknown join type %q", t)
	}
}

func (c *Compiler) bindSource(item ast.FromItem, sc *scope, st *compileState) (*Source, error) {
	switch n := item.(type) {
	case *ast.TableRef:
		db := n.Database
		if db == "" {
			db = c.DefaultDatabase
		}
		if db == "" {
			return nil, errs.NoDatabaseSelected(n.Table)
		}
		t, err := c.Schema.GetTable(db, n.Table)
		if err != nil {
			return nil, err
		}
		st.addTable(t.Database, t.Key)
		src := &Source{Alias: n.Alias(), Kind: SourceBase, Table: t}
		for _, col := range t.Columns() {
			src.Columns = append(src.Columns, SourceColumn{Key: col.Key, Name: col.Name, Type: col.Type})
		}
		return src, nil

	case *ast.SubqueryRef:
		// Derived tables see the enclosing query, not their siblings.
		nested, err := c.compileSelect(n.Query, sc.parent, st)
		if err != nil {
			return nil, err
		}
		if nested.Correlated {
			sc.plan.Correlated = true
		}
		src := &Source{Alias: n.As, Kind: SourceTemp, Nested: nested}
		for _, oc := range nested.Columns {
			src.Columns = append(src.Columns, SourceColumn{Key: oc.Key, Name: oc.Name, Type: oc.Type})
		}
		return src, nil

	case *ast.RemoteRef:
		if c.Remotes == nil {
			return nil, errs.NotFound("remote source", n.Source)
		}
		cols, err := c.Remotes.Columns(n.Source)
		if err != nil {
			return nil, err
		}
		src := &Source{Alias: n.Alias(), Kind: SourceRemote, Remote: n.Source}
		for _, col := range cols {
			src.Columns = append(src.Columns, SourceColumn{Key: col.Name, Name: col.Name, Type: col.Type})
		}
		return src, nil

	default:
		return nil, errs.Syntax("unsupported FROM item %s", item.Kind())
	}
}

func (c *Compiler) expandWildcard(col *ast.Column, sc *scope, st *compileState) ([]*ColumnRef, error) {
	sources := sc.sources
	if col.Table != "" {
		src := sc.lookupAlias(col.Table)
		if src == nil {
			return nil, errs.NotFound("table", col.Table)
		}
		sources = []*Source{src}
	}
	if len(sources) == 0 {
		return nil, errs.Syntax("* requires a FROM clause")
	}
	var refs []*ColumnRef
	for _, src := range sources {
		for _, column := range src.Columns {
			refs = append(refs, c.columnRef(src, column, 0, st))
		}
	}
	return refs, nil
}

func (c *Compiler) columnRef(src *Source, col SourceColumn, depth int, st *compileState) *ColumnRef {
	if src.Kind == SourceBase {
		st.addColumn(src.Table.Database, src.Table.Key, col.Key)
	}
	return &ColumnRef{
		Source:    src.Key,
		Column:    col.Key,
		Depth:     depth,
		Qualifier: src.Alias,
		Name:      col.Name,
		DataType:  col.Type,
	}
}

// resolveColumn binds a column reference, searching the current scope first
// and then each enclosing one.
func (c *Compiler) resolveColumn(n *ast.Column, cur *scope, st *compileState, ec exprCtx) (Expr, error) {
	if n.Table == "" && ec.aliases != nil {
		if oc, ok := ec.aliases[strings.ToLower(n.Name)]; ok {
			return oc.Expr, nil
		}
	}

	depth := 0
	for s := cur; s != nil; s = s.parent {
		if n.Table != "" {
			src := s.lookupAlias(n.Table)
			if src != nil {
				col, count := src.column(n.Name)
				switch {
				case count == 0:
					return nil, errs.NotFoundIn("column", n.Name, "table", n.Table)
				case count > 1:
					return nil, errs.Ambiguous("column", n.Table+"."+n.Name)
				}
				markCorrelated(cur, depth)
				return c.columnRef(src, col, depth, st), nil
			}
		} else {
			var (
				found    *Source
				foundCol SourceColumn
				names    []string
			)
			for _, src := range s.sources {
				col, count := src.column(n.Name)
				if count > 1 {
					return nil, errs.Ambiguous("column", n.Name, src.Alias)
				}
				if count == 1 {
					found, foundCol = src, col
					names = append(names, src.Alias)
				}
			}
			if len(names) > 1 {
				return nil, errs.Ambiguous("column", n.Name, names...)
			}
			if found != nil {
				markCorrelated(cur, depth)
				return c.columnRef(found, foundCol, depth, st), nil
			}
		}
		depth++
	}
	if n.Table != "" {
		return nil, errs.NotFoundIn("table", n.Table, "column reference", n.Table+"."+n.Name)
	}
	return nil, errs.NotFound("column", n.Name)
}

// markCorrelated flags every plan between cur and the scope depth levels up.
func markCorrelated(cur *scope, depth int) {
	s := cur
	for i := 0; i < depth && s != nil; i++ {
		s.plan.Correlated = true
		s = s.parent
	}
}

func (c *Compiler) compileOrder(o *ast.Order, plan *Plan, sc *scope, st *compileState, aliases map[string]*OutputColumn) (*OrderTerm, error) {
	term := &OrderTerm{Desc: o.Desc, Column: -1}

	// ORDER BY <position>
	if v, ok := o.Expr.(*ast.Value); ok {
		pos, err := catalog.FromGo(v.Value)
		if err == nil && !pos.IsNull && pos.Type == catalog.TypeNumber && pos.Num == math.Trunc(pos.Num) {
			n := int(pos.Num)
			if n < 1 || n > len(plan.Columns) {
				return nil, errs.Syntax("ORDER BY position %d is out of range", n)
			}
			term.Column = n - 1
			term.Expr = plan.Columns[term.Column].Expr
			return term, nil
		}
	}

	// ORDER BY <alias>
	if col, ok := o.Expr.(*ast.Column); ok && col.Table == "" && !col.Wildcard {
		if oc, ok := aliases[strings.ToLower(col.Name)]; ok {
			for i, out := range plan.Columns {
				if out == oc {
					term.Column = i
				}
			}
			term.Expr = oc.Expr
			return term, nil
		}
	}

	e, err := c.compileExpr(o.Expr, sc, st, exprCtx{clause: "ORDER BY", aggregates: true})
	if err != nil {
		return nil, err
	}
	term.Expr = e
	for i, out := range plan.Columns {
		if out.Expr.Equals(e) {
			term.Column = i
			break
		}
	}
	return term, nil
}

func defaultName(n ast.Expression, e Expr) string {
	switch x := n.(type) {
	case *ast.Column:
		return x.Name
	case *ast.Function:
		return strings.ToLower(x.Name)
	}
	return e.String()
}

func deriveFlags(plan *Plan) {
	plan.NeedsAggregate = len(plan.Aggregates) > 0 || len(plan.GroupBy) > 0 || plan.Having != nil

	var walk func(src *Source)
	walk = func(src *Source) {
		if src.Kind != SourceBase {
			plan.NeedsTempTables = true
		}
		for _, j := range src.Joins {
			walk(j.Source)
		}
	}
	for _, src := range plan.Sources {
		walk(src)
	}

	simple := len(plan.Sources) == 1 &&
		plan.Sources[0].Kind == SourceBase &&
		len(plan.Sources[0].Joins) == 0 &&
		plan.Where == nil &&
		!plan.NeedsAggregate &&
		!plan.Distinct &&
		len(plan.OrderBy) == 0
	if simple {
		for _, oc := range plan.Columns {
			if ref, ok := oc.Expr.(*ColumnRef); !ok || ref.Depth != 0 {
				simple = false
				break
			}
		}
	}
	plan.SimpleScan = simple
}

func (c *Compiler) compileExprs(nodes []ast.Expression, sc *scope, st *compileState, ec exprCtx) ([]Expr, error) {
	out := make([]Expr, 0, len(nodes))
	for _, n := range nodes {
		e, err := c.compileExpr(n, sc, st, ec)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (c *Compiler) compileExpr(node ast.Expression, sc *scope, st *compileState, ec exprCtx) (Expr, error) {
	if node == nil {
		return nil, errs.Syntax("missing expression in %s", ec.clause)
	}
	switch n := node.(type) {
	case *ast.Column:
		if n.Wildcard {
			return nil, errs.Syntax("* is not allowed in %s", ec.clause)
		}
		return c.resolveColumn(n, sc, st, ec)

	case *ast.Binary:
		switch n.Op {
		case "=", "==", "<>", "!=", "<", "<=", ">", ">=":
		default:
			return nil, errs.Syntax("unknown comparison operator %q", n.Op)
		}
		left, right, err := c.compilePair(n.Left, n.Right, sc, st, ec)
		if err != nil {
			return nil, err
		}
		return &Compare{Op: n.Op, Left: left, Right: right}, nil

	case *ast.Between:
		if n.Left == nil || n.Start == nil || n.End == nil {
			return nil, errs.Syntax("BETWEEN requires three operands")
		}
		parts, err := c.compileExprs([]ast.Expression{n.Left, n.Start, n.End}, sc, st, ec)
		if err != nil {
			return nil, err
		}
		return &Between{Left: parts[0], Start: parts[1], End: parts[2], Not: n.Not}, nil

	case *ast.Like:
		left, right, err := c.compilePair(n.Left, n.Right, sc, st, ec)
		if err != nil {
			return nil, err
		}
		like := &Like{Left: left, Right: right, Not: n.Not, CaseInsensitive: n.CaseInsensitive}
		if lit, ok := right.(*Literal); ok && !lit.Value.IsNull {
			if lit.Value.Type != catalog.TypeString {
				return nil, errs.Syntax("LIKE pattern must be a string, got %s", lit.Value.Type)
			}
			if like.compiled, err = likeRegexp(lit.Value.Text, n.CaseInsensitive); err != nil {
				return nil, err
			}
		}
		return like, nil

	case *ast.In:
		left, err := c.compileExpr(n.Left, sc, st, ec)
		if err != nil {
			return nil, err
		}
		in := &In{Left: left, Not: n.Not}
		switch {
		case n.Right != nil:
			if q, ok := n.Right.(*ast.Query); ok {
				sub, err := c.compileSubquery(q.Query, sc, st)
				if err != nil {
					return nil, err
				}
				in.Query = sub
			} else if in.Right, err = c.compileExpr(n.Right, sc, st, ec); err != nil {
				return nil, err
			}
		case n.Values != nil:
			if in.Values, err = c.compileExprs(n.Values, sc, st, ec); err != nil {
				return nil, err
			}
		default:
			return nil, errs.Syntax("IN requires a list or a query")
		}
		return in, nil

	case *ast.IsNull:
		left, err := c.compileExpr(n.Left, sc, st, ec)
		if err != nil {
			return nil, err
		}
		return &IsNull{Left: left, Not: n.Not}, nil

	case *ast.Not:
		e, err := c.compileExpr(n.Expr, sc, st, ec)
		if err != nil {
			return nil, err
		}
		return &Not{Expr: e}, nil

	case *ast.Grouped:
		var or bool
		switch strings.ToUpper(n.Op) {
		case "AND":
		case "OR":
			or = true
		default:
			return nil, errs.Syntax("unknown logical operator %q", n.Op)
		}
		if len(n.Exprs) == 0 {
			return nil, errs.Syntax("%s requires at least one operand", strings.ToUpper(n.Op))
		}
		exprs, err := c.compileExprs(n.Exprs, sc, st, ec)
		if err != nil {
			return nil, err
		}
		return &Grouped{Or: or, Exprs: exprs}, nil

	case *ast.Case:
		if len(n.Whens) == 0 {
			return nil, errs.Syntax("CASE requires at least one WHEN")
		}
		out := &Case{}
		var err error
		if n.Operand != nil {
			if out.Operand, err = c.compileExpr(n.Operand, sc, st, ec); err != nil {
				return nil, err
			}
		}
		for _, w := range n.Whens {
			if w == nil {
				return nil, errs.Syntax("empty WHEN clause")
			}
			cond, result, err := c.compilePair(w.Cond, w.Result, sc, st, ec)
			if err != nil {
				return nil, err
			}
			out.Whens = append(out.Whens, When{Cond: cond, Result: result})
		}
		if n.Else != nil {
			if out.Else, err = c.compileExpr(n.Else, sc, st, ec); err != nil {
				return nil, err
			}
		}
		return out, nil

	case *ast.Exists:
		nested, err := c.compileSelect(n.Query, sc, st)
		if err != nil {
			return nil, err
		}
		return &Exists{Plan: nested, Not: n.Not}, nil

	case *ast.Query:
		return c.compileSubquery(n.Query, sc, st)

	case *ast.Function:
		return c.compileFunction(n, sc, st, ec)

	case *ast.Math:
		switch n.Op {
		case "+", "-", "*", "/", "%":
		default:
			return nil, errs.Syntax("unknown arithmetic operator %q", n.Op)
		}
		right, err := c.compileExpr(n.Right, sc, st, ec)
		if err != nil {
			return nil, err
		}
		if n.Left == nil {
			if n.Op != "-" {
				return nil, errs.Syntax("unary %s is not supported", n.Op)
			}
			return &Math{Op: n.Op, Right: right}, nil
		}
		left, err := c.compileExpr(n.Left, sc, st, ec)
		if err != nil {
			return nil, err
		}
		return &Math{Op: n.Op, Left: left, Right: right}, nil

	case *ast.Value:
		v, err := literalValue(n)
		if err != nil {
			return nil, err
		}
		return &Literal{Value: v}, nil

	case *ast.Unknown:
		types, err := parseTypes(n.Types)
		if err != nil {
			return nil, err
		}
		idx := len(st.unknowns)
		st.unknowns = append(st.unknowns, Slot{Index: idx, Types: types})
		return &SlotRef{Index: idx, Types: types}, nil

	case *ast.Parameter:
		if n.Name == "" {
			return nil, errs.Syntax("parameter without a name")
		}
		types, err := parseTypes(n.Types)
		if err != nil {
			return nil, err
		}
		key := strings.ToLower(n.Name)
		idx, ok := st.named[key]
		if !ok {
			idx = len(st.unknowns)
			st.named[key] = idx
			st.unknowns = append(st.unknowns, Slot{Index: idx, Name: n.Name, Types: types})
		}
		return &SlotRef{Index: idx, Name: n.Name, Types: st.unknowns[idx].Types}, nil

	default:
		return nil, errs.Syntax("unsupported expression %s", node.Kind())
	}
}

func (c *Compiler) compilePair(l, r ast.Expression, sc *scope, st *compileState, ec exprCtx) (Expr, Expr, error) {
	left, err := c.compileExpr(l, sc, st, ec)
	if err != nil {
		return nil, nil, err
	}
	right, err := c.compileExpr(r, sc, st, ec)
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func (c *Compiler) compileSubquery(node *ast.Select, sc *scope, st *compileState) (*Subquery, error) {
	nested, err := c.compileSelect(node, sc, st)
	if err != nil {
		return nil, err
	}
	return &Subquery{Plan: nested}, nil
}

func (c *Compiler) compileFunction(n *ast.Function, sc *scope, st *compileState, ec exprCtx) (Expr, error) {
	if c.Functions == nil {
		return nil, errs.NotFound("function", n.Name)
	}
	fn, err := c.Functions.Resolve(n.Name)
	if err != nil {
		return nil, err
	}
	params, err := fn.Preprocess(n.Params)
	if err != nil {
		return nil, err
	}

	if !fn.Aggregate() {
		args, err := c.compileExprs(params, sc, st, ec)
		if err != nil {
			return nil, err
		}
		return &Func{Fn: fn, Params: args}, nil
	}

	switch {
	case ec.inAggregate:
		return nil, errs.Syntax("aggregate %s cannot be nested in another aggregate", fn.Name())
	case !ec.aggregates:
		return nil, errs.Syntax("aggregate %s is not allowed in %s", fn.Name(), ec.clause)
	case len(params) != 1:
		return nil, errs.Syntax("aggregate %s expects 1 argument, got %d", fn.Name(), len(params))
	}
	inner := exprCtx{clause: ec.clause, inAggregate: true}
	args, err := c.compileExprs(params, sc, st, inner)
	if err != nil {
		return nil, err
	}
	f := &Func{Fn: fn, Params: args}
	sc.plan.Aggregates = append(sc.plan.Aggregates, f)
	return f, nil
}

func parseTypes(names []string) ([]catalog.DataType, error) {
	var out []catalog.DataType
	for _, name := range names {
		t, err := catalog.ParseDataType(name)
		if err != nil {
			return nil, err
		}
		if t == catalog.TypeAny {
			return nil, nil
		}
		out = append(out, t)
	}
	return out, nil
}

func literalValue(n *ast.Value) (catalog.Value, error) {
	if n.Type == "" {
		return catalog.FromGo(n.Value)
	}
	t, err := catalog.ParseDataType(n.Type)
	if err != nil {
		return catalog.Value{}, err
	}
	if n.Value == nil {
		return catalog.NoValue(), nil
	}
	if t == catalog.TypeDate {
		if s, ok := n.Value.(string); ok {
			ts, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return catalog.Value{}, errs.TypeMismatch("date literal", "RFC 3339 timestamp", strconv.Quote(s))
			}
			return catalog.NewDate(ts), nil
		}
	}
	v, err := catalog.FromGo(n.Value)
	if err != nil {
		return catalog.Value{}, err
	}
	if !v.Conforms(t) {
		return catalog.Value{}, errs.TypeMismatch("literal", t.String(), v.Type.String())
	}
	return v, nil
}
