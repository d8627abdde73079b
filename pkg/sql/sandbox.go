package sql

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JayabrataBasu/veridicalql/pkg/catalog"
	"github.com/JayabrataBasu/veridicalql/pkg/cursor"
	"github.com/JayabrataBasu/veridicalql/pkg/errs"
	"github.com/JayabrataBasu/veridicalql/pkg/storage"
)

// RemoteFetcher fetches the rows of a registered remote source, keyed by
// column name.
type RemoteFetcher interface {
	Fetch(ctx context.Context, name string) ([]catalog.Row, error)
}

// RunOptions configures one execution.
type RunOptions struct {
	// Bindings holds the slot values; nil runs with every slot unbound.
	Bindings *Bindings
	// Exists stops the traversal at the first produced row.
	Exists bool
}

// Sandbox is the scope of one execution. It owns the temp tables produced
// by nested plans and the rows fetched from remote sources; both are dropped
// by Release.
type Sandbox struct {
	store   storage.Store
	remotes RemoteFetcher

	mu     sync.Mutex
	temps  map[string]cursor.Rows  // temp key -> materialized rows
	remote map[string]cursor.Rows  // remote name -> fetched rows
	cache  map[*Plan][]catalog.Row // results of non-correlated nested plans
}

// NewSandbox creates a sandbox reading base tables from store.
func NewSandbox(store storage.Store, remotes RemoteFetcher) *Sandbox {
	return &Sandbox{
		store:   store,
		remotes: remotes,
		temps:   make(map[string]cursor.Rows),
		remote:  make(map[string]cursor.Rows),
		cache:   make(map[*Plan][]catalog.Row),
	}
}

// Release drops every temp table, fetched remote and cached result.
func (s *Sandbox) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.temps = make(map[string]cursor.Rows)
	s.remote = make(map[string]cursor.Rows)
	s.cache = make(map[*Plan][]catalog.Row)
}

// TempTables returns the number of live temp tables.
func (s *Sandbox) TempTables() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.temps)
}

// Run executes plan and shapes the result.
func (s *Sandbox) Run(ctx context.Context, plan *Plan, opts RunOptions) (*Result, error) {
	start := time.Now()
	bindings := opts.Bindings
	if bindings == nil {
		bindings = plan.NewBindings()
	}
	env := &Env{ctx: ctx, sandbox: s, bindings: bindings}

	rows, err := s.execute(env, plan, opts.Exists)
	if err != nil {
		return nil, s.publicError(ctx, err)
	}
	return &Result{
		Rows:    rows,
		Columns: plan.ResultColumns(),
		Elapsed: time.Since(start),
		Query:   plan.Query,
	}, nil
}

// publicError keeps the internal sentinels inside the sandbox and reports
// cancellation as ErrCanceled.
func (s *Sandbox) publicError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return errs.Canceled("query execution: " + ctxErr.Error())
	}
	if errs.IsInternal(err) {
		return errors.New("query execution: unexpected " + err.Error())
	}
	return err
}

// runNested runs a plan nested in another one. env supplies the context
// and bindings; outer is the row env the nested plan correlates with.
// Results of non-correlated plans are computed once per sandbox.
func (s *Sandbox) runNested(env *Env, outer *Env, plan *Plan, firstOnly bool) ([]catalog.Row, error) {
	if !plan.Correlated {
		s.mu.Lock()
		rows, ok := s.cache[plan]
		s.mu.Unlock()
		if ok {
			if firstOnly && len(rows) > 1 {
				return rows[:1], nil
			}
			return rows, nil
		}
	}

	nested := &Env{ctx: env.ctx, sandbox: s, bindings: env.bindings, outer: outer}
	rows, err := s.execute(nested, plan, firstOnly)
	if err != nil {
		return nil, err
	}
	if !plan.Correlated && !firstOnly {
		s.mu.Lock()
		s.cache[plan] = rows
		s.mu.Unlock()
	}
	return rows, nil
}

// shapedRow is an output row plus the values it sorts by.
type shapedRow struct {
	row  catalog.Row
	sort []catalog.Value
}

type group struct {
	records []cursor.Record
}

// execute runs the pipeline for one plan: temp tables, traversal, grouping,
// HAVING, DISTINCT, ORDER BY, LIMIT/OFFSET.
func (s *Sandbox) execute(env *Env, plan *Plan, firstOnly bool) ([]catalog.Row, error) {
	ctx := env.ctx
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sources, release, err := s.materialize(env, plan)
	defer release()
	if err != nil {
		return nil, err
	}

	limit, offset, err := s.window(env, plan)
	if err != nil {
		return nil, err
	}

	if plan.SimpleScan {
		return s.simpleScan(ctx, plan, limit, offset, firstOnly)
	}

	// Without reordering or deduplication the traversal can stop once the
	// window is filled.
	budget := -1
	if !plan.Distinct && len(plan.OrderBy) == 0 {
		switch {
		case firstOnly:
			budget = offset + 1
		case limit >= 0:
			budget = offset + limit
		}
	}

	cur := s.buildCursor(env, plan, sources)

	var (
		out    []shapedRow
		groups []*group
		index  = make(map[string]*group)
	)
	for err := cur.MoveToFirst(ctx); ; err = cur.Next(ctx) {
		if errors.Is(err, errs.ErrCursorExhausted) {
			break
		}
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := cur.Record(ctx)
		if err != nil {
			return nil, err
		}
		rowEnv := env.withRecord(rec)

		if plan.Where != nil {
			ok, err := truthy(plan.Where, rowEnv)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}

		if plan.NeedsAggregate {
			key := ""
			if len(plan.GroupBy) > 0 {
				values := make([]catalog.Value, len(plan.GroupBy))
				for i, g := range plan.GroupBy {
					if values[i], err = g.Eval(rowEnv); err != nil {
						return nil, err
					}
				}
				key = catalog.Key(values...)
			}
			g, ok := index[key]
			if !ok {
				g = &group{records: []cursor.Record{}}
				index[key] = g
				groups = append(groups, g)
			}
			g.records = append(g.records, rec)
			continue
		}

		if budget >= 0 && len(out) >= budget {
			break
		}
		shaped, err := s.project(rowEnv, plan)
		if err != nil {
			return nil, err
		}
		out = append(out, shaped)
	}

	if plan.NeedsAggregate {
		if len(groups) == 0 && len(plan.GroupBy) == 0 {
			groups = append(groups, &group{records: []cursor.Record{}})
		}
		for _, g := range groups {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			groupEnv := env.withGroup(g.records)
			if plan.Having != nil {
				ok, err := truthy(plan.Having, groupEnv)
				if err != nil {
					return nil, err
				}
				if !ok {
					continue
				}
			}
			shaped, err := s.project(groupEnv, plan)
			if err != nil {
				return nil, err
			}
			out = append(out, shaped)
			if budget >= 0 && len(out) >= budget {
				break
			}
		}
	}

	if plan.Distinct {
		out = distinct(plan, out)
	}
	if len(plan.OrderBy) > 0 {
		sortRows(plan, out)
	}

	rows := make([]catalog.Row, 0, len(out))
	for _, r := range out {
		rows = append(rows, r.row)
	}
	return applyWindow(rows, limit, offset), nil
}

func (s *Sandbox) project(env *Env, plan *Plan) (shapedRow, error) {
	row := make(catalog.Row, len(plan.Columns))
	for _, oc := range plan.Columns {
		v, err := oc.Expr.Eval(env)
		if err != nil {
			return shapedRow{}, err
		}
		row[oc.Key] = v
	}
	var keys []catalog.Value
	if len(plan.OrderBy) > 0 {
		keys = make([]catalog.Value, len(plan.OrderBy))
		for i, term := range plan.OrderBy {
			if term.Column >= 0 {
				keys[i] = row[plan.Columns[term.Column].Key]
				continue
			}
			v, err := term.Expr.Eval(env)
			if err != nil {
				return shapedRow{}, err
			}
			keys[i] = v
		}
	}
	return shapedRow{row: row, sort: keys}, nil
}

func distinct(plan *Plan, rows []shapedRow) []shapedRow {
	seen := make(map[string]bool, len(rows))
	out := rows[:0]
	values := make([]catalog.Value, len(plan.Columns))
	for _, r := range rows {
		for i, oc := range plan.Columns {
			values[i] = r.row[oc.Key]
		}
		key := catalog.Key(values...)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

// sortRows orders rows by the ORDER BY terms. The sort is stable and NoValue
// sorts after every value in ascending order.
func sortRows(plan *Plan, rows []shapedRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		for k, term := range plan.OrderBy {
			c := catalog.Compare(rows[i].sort[k], rows[j].sort[k])
			if term.Desc {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
}

// window evaluates LIMIT and OFFSET. A missing limit is -1.
func (s *Sandbox) window(env *Env, plan *Plan) (limit, offset int, err error) {
	limit = -1
	if plan.Limit != nil {
		if limit, err = evalCount(plan.Limit, env, "LIMIT"); err != nil {
			return 0, 0, err
		}
	}
	if plan.Offset != nil {
		if offset, err = evalCount(plan.Offset, env, "OFFSET"); err != nil {
			return 0, 0, err
		}
		if offset < 0 {
			offset = 0
		}
	}
	return limit, offset, nil
}

func evalCount(e Expr, env *Env, clause string) (int, error) {
	v, err := e.Eval(env)
	if err != nil {
		return 0, err
	}
	if v.IsNull {
		return -1, nil
	}
	if v.Type != catalog.TypeNumber {
		return 0, errs.TypeMismatch(clause, "number", v.Type.String())
	}
	if v.Num < 0 || v.Num != math.Trunc(v.Num) {
		return 0, errs.Syntax("%s must be a non-negative integer, got %v", clause, v)
	}
	return int(v.Num), nil
}

func applyWindow(rows []catalog.Row, limit, offset int) []catalog.Row {
	if offset > 0 {
		if offset >= len(rows) {
			return rows[:0]
		}
		rows = rows[offset:]
	}
	if limit >= 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

func (s *Sandbox) simpleScan(ctx context.Context, plan *Plan, limit, offset int, firstOnly bool) ([]catalog.Row, error) {
	src := plan.Sources[0]
	rows, err := s.store.Rows(ctx, src.Table.Database, src.Table.Key)
	if err != nil {
		return nil, err
	}
	want := len(rows)
	if limit >= 0 && offset+limit < want {
		want = offset + limit
	}
	if firstOnly && want > offset+1 {
		want = offset + 1
	}
	out := make([]catalog.Row, 0, want)
	for i := 0; i < want; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := make(catalog.Row, len(plan.Columns))
		for _, oc := range plan.Columns {
			row[oc.Key] = rows[i].Get(oc.Expr.(*ColumnRef).Column)
		}
		out = append(out, row)
	}
	return applyWindow(out, -1, offset), nil
}

// tableRows reads a base table from the store on demand.
type tableRows struct {
	store storage.Store
	db    string
	table string
}

func (t tableRows) RowCount(ctx context.Context) (int, error) {
	return t.store.RowCount(ctx, t.db, t.table)
}

func (t tableRows) Row(ctx context.Context, index int) (catalog.Row, error) {
	return t.store.Row(ctx, t.db, t.table, index)
}

func allSources(srcs []*Source) []*Source {
	var out []*Source
	for _, src := range srcs {
		out = append(out, src)
		for _, j := range src.Joins {
			out = append(out, j.Source)
		}
	}
	return out
}

// materialize resolves every source of plan to a row source. Remote sources
// are fetched concurrently; nested plans run one after another. The returned
// release func drops the temp tables created here.
func (s *Sandbox) materialize(env *Env, plan *Plan) (map[*Source]cursor.RowSource, func(), error) {
	var tempKeys []string
	release := func() {
		s.mu.Lock()
		for _, k := range tempKeys {
			delete(s.temps, k)
		}
		s.mu.Unlock()
	}

	srcs := allSources(plan.Sources)
	if err := s.fetchRemotes(env.ctx, srcs); err != nil {
		return nil, release, err
	}

	out := make(map[*Source]cursor.RowSource, len(srcs))
	for _, src := range srcs {
		if err := env.ctx.Err(); err != nil {
			return nil, release, err
		}
		switch src.Kind {
		case SourceBase:
			out[src] = tableRows{store: s.store, db: src.Table.Database, table: src.Table.Key}
		case SourceRemote:
			s.mu.Lock()
			out[src] = s.remote[src.Remote]
			s.mu.Unlock()
		case SourceTemp:
			// Derived tables correlate with the enclosing query's row.
			rows, err := s.runNested(env, env.outer, src.Nested, false)
			if err != nil {
				return nil, release, err
			}
			key := uuid.NewString()
			s.mu.Lock()
			s.temps[key] = cursor.Rows(rows)
			s.mu.Unlock()
			tempKeys = append(tempKeys, key)
			out[src] = cursor.Rows(rows)
		}
	}
	return out, release, nil
}

func (s *Sandbox) fetchRemotes(ctx context.Context, srcs []*Source) error {
	var names []string
	seen := make(map[string]bool)
	s.mu.Lock()
	for _, src := range srcs {
		if src.Kind != SourceRemote || seen[src.Remote] {
			continue
		}
		seen[src.Remote] = true
		if _, ok := s.remote[src.Remote]; !ok {
			names = append(names, src.Remote)
		}
	}
	s.mu.Unlock()
	if len(names) == 0 {
		return nil
	}
	if s.remotes == nil {
		return errs.NotFound("remote source", names[0])
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		g.Go(func() error {
			rows, err := s.remotes.Fetch(gctx, name)
			if err != nil {
				return err
			}
			s.mu.Lock()
			s.remote[name] = cursor.Rows(rows)
			s.mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

func (s *Sandbox) buildCursor(env *Env, plan *Plan, sources map[*Source]cursor.RowSource) cursor.Cursor {
	if len(plan.Sources) == 0 {
		return cursor.NewDummy()
	}
	tables := make([]cursor.Cursor, 0, len(plan.Sources))
	for _, src := range plan.Sources {
		// Materialized sources without joins are replayed as they are.
		if src.Kind != SourceBase && len(src.Joins) == 0 {
			tables = append(tables, cursor.NewRowArray(src.Key, sources[src]))
			continue
		}
		base := cursor.Participant{Key: src.Key, Source: sources[src]}
		joins := make([]cursor.Join, 0, len(src.Joins))
		for _, j := range src.Joins {
			joins = append(joins, cursor.Join{
				Type:  j.Type,
				Right: cursor.Participant{Key: j.Source.Key, Source: sources[j.Source]},
				On:    predicate(env, j.On),
			})
		}
		tables = append(tables, cursor.NewTable(base, joins...))
	}
	if len(tables) == 1 {
		return tables[0]
	}
	return cursor.NewCursors(cursor.Product, tables...)
}

func predicate(env *Env, on Expr) cursor.Predicate {
	if on == nil {
		return nil
	}
	return func(ctx context.Context, rec cursor.Record) (bool, error) {
		return truthy(on, env.withRecord(rec))
	}
}
