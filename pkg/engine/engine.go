// Package engine is the embeddable entry point: it owns the schema, the row
// store, the lock manager and the registries, and runs compiled plans as
// cancellable tasks.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JayabrataBasu/veridicalql/pkg/ast"
	"github.com/JayabrataBasu/veridicalql/pkg/catalog"
	"github.com/JayabrataBasu/veridicalql/pkg/errs"
	"github.com/JayabrataBasu/veridicalql/pkg/function"
	"github.com/JayabrataBasu/veridicalql/pkg/lock"
	"github.com/JayabrataBasu/veridicalql/pkg/observability"
	"github.com/JayabrataBasu/veridicalql/pkg/remote"
	"github.com/JayabrataBasu/veridicalql/pkg/sql"
	"github.com/JayabrataBasu/veridicalql/pkg/storage"
	"github.com/JayabrataBasu/veridicalql/pkg/task"
)

// Logger is the key/value logger the engine reports to.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// Options configures an Engine.
type Options struct {
	// DefaultDatabase is used when Compile is given no database.
	DefaultDatabase string
	// QueryTimeout bounds every query task; 0 disables it.
	QueryTimeout time.Duration
	Lock         lock.Options
	// RemoteRetries wraps registered remote sources in a retrying source
	// when non-zero.
	RemoteRetries uint64
	RemoteBackoff time.Duration
	// SystemSources registers the sys_* remote sources describing the
	// engine itself.
	SystemSources bool

	// Functions defaults to the built-in registry.
	Functions *function.Registry
	// Store defaults to an in-memory store.
	Store  storage.Store
	Logger Logger
}

// Engine runs queries against in-memory tables.
type Engine struct {
	schema    *catalog.Schema
	store     storage.Store
	locks     *lock.Manager
	functions *function.Registry
	remotes   *remote.Registry
	system    *observability.SystemCatalog
	log       Logger
	opts      Options

	mu     sync.RWMutex
	closed bool
	active map[string]*task.Task[*sql.Result]
}

// New creates an engine.
func New(opts Options) *Engine {
	if opts.Functions == nil {
		opts.Functions = function.NewRegistry()
	}
	if opts.Store == nil {
		opts.Store = storage.NewMemory()
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}
	e := &Engine{
		schema:    catalog.NewSchema(),
		store:     opts.Store,
		locks:     lock.NewManagerWithOptions(opts.Lock),
		functions: opts.Functions,
		remotes:   remote.NewRegistry(),
		log:       opts.Logger,
		opts:      opts,
		active:    make(map[string]*task.Task[*sql.Result]),
	}
	e.system = observability.NewSystemCatalog(e.schema, e.locks, nil)
	if opts.SystemSources {
		for name, src := range e.system.Sources() {
			_ = e.remotes.Register(name, src, false)
		}
	}
	return e
}

// Schema returns the engine's schema.
func (e *Engine) Schema() *catalog.Schema { return e.schema }

// System returns the engine's system catalog and statistics.
func (e *Engine) System() *observability.SystemCatalog { return e.system }

// Functions returns the function registry.
func (e *Engine) Functions() *function.Registry { return e.functions }

// Remotes returns the remote source registry.
func (e *Engine) Remotes() *remote.Registry { return e.remotes }

// DefaultDatabase returns the database used when a query names none.
func (e *Engine) DefaultDatabase() string { return e.opts.DefaultDatabase }

func (e *Engine) checkOpen() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return errs.Closed("engine")
	}
	return nil
}

// Compile binds node into a plan. An empty defaultDB falls back to the
// engine's default database.
func (e *Engine) Compile(node *ast.Select, defaultDB string) (*sql.Plan, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if defaultDB == "" {
		defaultDB = e.opts.DefaultDatabase
	}
	c := &sql.Compiler{
		Schema:          e.schema,
		Functions:       e.functions,
		Remotes:         e.remotes,
		DefaultDatabase: defaultDB,
	}
	plan, err := c.Compile(node)
	if err != nil {
		e.log.Debug("compile failed", "error", err)
		return nil, err
	}
	return plan, nil
}

// Query compiles node against the default database, binds args to its
// unknowns in order and runs it.
func (e *Engine) Query(ctx context.Context, node *ast.Select, args ...interface{}) (*sql.Result, error) {
	plan, b, err := e.prepare(node, args)
	if err != nil {
		return nil, err
	}
	return e.Exec(ctx, plan, b)
}

// Exists reports whether node produces at least one row. The traversal stops
// at the first row.
func (e *Engine) Exists(ctx context.Context, node *ast.Select, args ...interface{}) (bool, error) {
	plan, b, err := e.prepare(node, args)
	if err != nil {
		return false, err
	}
	t, err := e.submit(ctx, plan, sql.RunOptions{Bindings: b, Exists: true})
	if err != nil {
		return false, err
	}
	res, err := t.Wait(context.Background())
	if err != nil {
		return false, err
	}
	return len(res.Rows) > 0, nil
}

func (e *Engine) prepare(node *ast.Select, args []interface{}) (*sql.Plan, *sql.Bindings, error) {
	plan, err := e.Compile(node, "")
	if err != nil {
		return nil, nil, err
	}
	b := plan.NewBindings()
	if err := b.Bind(args...); err != nil {
		return nil, nil, err
	}
	return plan, b, nil
}

// Exec runs plan and blocks until it completes. Canceling ctx cancels the
// execution, which then fails with an error wrapping errs.ErrCanceled.
func (e *Engine) Exec(ctx context.Context, plan *sql.Plan, bindings *sql.Bindings) (*sql.Result, error) {
	t, err := e.Submit(ctx, plan, bindings)
	if err != nil {
		return nil, err
	}
	return t.Wait(context.Background())
}

// Submit starts plan as a task and returns immediately.
func (e *Engine) Submit(ctx context.Context, plan *sql.Plan, bindings *sql.Bindings) (*task.Task[*sql.Result], error) {
	return e.submit(ctx, plan, sql.RunOptions{Bindings: bindings})
}

func (e *Engine) submit(ctx context.Context, plan *sql.Plan, opts sql.RunOptions) (*task.Task[*sql.Result], error) {
	if plan == nil {
		return nil, errs.Syntax("nil plan")
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, errs.Closed("engine")
	}

	var cancel context.CancelFunc = func() {}
	if e.opts.QueryTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, e.opts.QueryTimeout)
	}
	t := task.New[*sql.Result](ctx)
	e.active[t.ID] = t
	e.mu.Unlock()

	err := t.Start(func(ctx context.Context, t *task.Task[*sql.Result]) (*sql.Result, error) {
		defer cancel()
		defer e.forget(t.ID)
		res, err := e.run(ctx, t, plan, opts)
		rows := 0
		if res != nil {
			rows = len(res.Rows)
		}
		e.system.Stats().RecordQuery(err, time.Since(t.CreatedAt()), rows)
		return res, err
	})
	if err != nil {
		cancel()
		e.forget(t.ID)
		return nil, err
	}
	return t, nil
}

func (e *Engine) forget(id string) {
	e.mu.Lock()
	delete(e.active, id)
	e.mu.Unlock()
}

// run is the body of a query task: lock every table the plan reads, make
// sure the plan still matches the schema, execute, then release.
func (e *Engine) run(ctx context.Context, t *task.Task[*sql.Result], plan *sql.Plan, opts sql.RunOptions) (*sql.Result, error) {
	log := e.log
	log.Debug("task started", "task", t.ID, "tables", len(plan.Tables))

	if err := t.Advance(task.StatusWaiting); err != nil {
		return nil, err
	}
	set, err := e.locks.AcquireAll(ctx, readRequests(plan))
	if err != nil {
		e.logLockError(t.ID, err)
		return nil, err
	}
	defer func() {
		_ = t.Advance(task.StatusEnding)
		if err := set.Release(); err != nil {
			log.Warn("lock release failed", "task", t.ID, "error", err)
		}
	}()

	if err := plan.Validate(e.schema); err != nil {
		return nil, err
	}
	if err := t.Advance(task.StatusRunning); err != nil {
		return nil, err
	}

	sb := sql.NewSandbox(e.store, e.remotes)
	defer sb.Release()
	res, err := sb.Run(ctx, plan, opts)
	switch {
	case errors.Is(err, errs.ErrCanceled):
		log.Info("task canceled", "task", t.ID)
	case err != nil:
		log.Debug("task failed", "task", t.ID, "error", err)
	default:
		log.Debug("task completed", "task", t.ID, "rows", len(res.Rows), "elapsed_ms", res.ElapsedMS())
	}
	return res, err
}

func (e *Engine) logLockError(id string, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		e.system.Stats().RecordLockTimeout()
		e.log.Warn("lock timeout", "task", id, "error", err)
	case errors.Is(err, errs.ErrCanceled):
		e.log.Info("task canceled while waiting for locks", "task", id)
	}
}

// readRequests returns a shared lock on every database and base table the
// plan reads, nested plans included.
func readRequests(plan *sql.Plan) []lock.Request {
	reqs := []lock.Request{{Resource: lock.SchemaResource(), Mode: lock.ModeShared}}
	for _, ref := range plan.Tables {
		reqs = append(reqs,
			lock.Request{Resource: lock.DatabaseResource(ref.Database), Mode: lock.ModeShared},
			lock.Request{Resource: lock.TableResource(ref.Database, ref.Table), Mode: lock.ModeShared},
		)
	}
	return reqs
}

// Running returns the tasks that have not completed yet.
func (e *Engine) Running() []*task.Task[*sql.Result] {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*task.Task[*sql.Result], 0, len(e.active))
	for _, t := range e.active {
		out = append(out, t)
	}
	return out
}

// Close cancels running tasks and fails every later call with ErrClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	running := make([]*task.Task[*sql.Result], 0, len(e.active))
	for _, t := range e.active {
		running = append(running, t)
	}
	e.mu.Unlock()

	for _, t := range running {
		t.Cancel()
	}
	for _, t := range running {
		<-t.Done()
	}
	return e.locks.Close()
}

// Status is a point-in-time summary of the engine.
type Status struct {
	Databases     int
	Tables        int
	Remotes       []string
	Running       int
	ActiveLocks   int
	WaitingLocks  int
	SchemaVersion uint64
}

// Status reports schema size, running tasks and lock usage.
func (e *Engine) Status() Status {
	st := Status{SchemaVersion: e.schema.Version(), Remotes: e.remotes.Names()}
	for _, db := range e.schema.Databases() {
		st.Databases++
		st.Tables += len(db.Tables())
	}
	st.ActiveLocks, st.WaitingLocks = e.locks.Stats()
	e.mu.RLock()
	st.Running = len(e.active)
	e.mu.RUnlock()
	return st
}
