// Package lock provides a lock manager for concurrency control.
// It supports schema-, database- and table-level resources with shared
// (read) and exclusive (write) modes.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JayabrataBasu/veridicalql/pkg/errs"
)

// Mode represents the lock mode.
type Mode int

const (
	// ModeShared allows multiple readers but blocks writers.
	ModeShared Mode = iota
	// ModeExclusive allows only one holder and blocks all others.
	ModeExclusive
)

func (m Mode) String() string {
	switch m {
	case ModeShared:
		return "S"
	case ModeExclusive:
		return "X"
	default:
		return "?"
	}
}

// Level identifies the granularity of a resource. Locks must be acquired in
// increasing level order and released in reverse.
type Level int

const (
	LevelSchema Level = iota
	LevelDatabase
	LevelTable
)

// ResourceID uniquely identifies a lockable resource.
type ResourceID struct {
	Level    Level
	Database string // database key, for database and table locks
	Table    string // table key, for table locks
}

func (r ResourceID) String() string {
	switch r.Level {
	case LevelSchema:
		return "schema"
	case LevelDatabase:
		return fmt.Sprintf("database:%s", r.Database)
	case LevelTable:
		return fmt.Sprintf("table:%s/%s", r.Database, r.Table)
	default:
		return "unknown"
	}
}

// SchemaResource is the resource guarding the database set.
func SchemaResource() ResourceID {
	return ResourceID{Level: LevelSchema}
}

// DatabaseResource is the resource guarding a database's table set.
func DatabaseResource(db string) ResourceID {
	return ResourceID{Level: LevelDatabase, Database: db}
}

// TableResource is the resource guarding a table's rows.
func TableResource(db, table string) ResourceID {
	return ResourceID{Level: LevelTable, Database: db, Table: table}
}

// less orders resources schema -> database -> table, then by key.
func (r ResourceID) less(o ResourceID) bool {
	if r.Level != o.Level {
		return r.Level < o.Level
	}
	if r.Database != o.Database {
		return r.Database < o.Database
	}
	return r.Table < o.Table
}

// lockEntry holds the state of a single lockable resource.
type lockEntry struct {
	readers        int
	pendingWriters int  // writers admitted by the writer cap (waiting or active)
	writing        bool // a writer section is running
	waiting        int
	changed        chan struct{} // closed and replaced on every state change
}

// Options configures a Manager.
type Options struct {
	// ReaderCap bounds concurrent readers per resource; 0 means unbounded.
	ReaderCap int
	// WriterCap bounds writers admitted to wait for a resource; minimum 1.
	WriterCap int
	// Timeout bounds each wait; 0 disables the timeout.
	Timeout time.Duration
}

// Manager is the central lock manager.
type Manager struct {
	mu       sync.Mutex
	locks    map[ResourceID]*lockEntry
	opts     Options
	closed   bool
	closedCh chan struct{}
}

// NewManager creates a new lock manager with default options.
func NewManager() *Manager {
	return NewManagerWithOptions(Options{
		WriterCap: 1,
		Timeout:   5 * time.Second, // Default lock wait timeout
	})
}

// NewManagerWithOptions creates a lock manager with the given options.
func NewManagerWithOptions(opts Options) *Manager {
	if opts.WriterCap < 1 {
		opts.WriterCap = 1
	}
	return &Manager{
		locks:    make(map[ResourceID]*lockEntry),
		opts:     opts,
		closedCh: make(chan struct{}),
	}
}

// SetTimeout sets the lock acquisition timeout.
func (m *Manager) SetTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts.Timeout = d
}

// Read acquires a shared lock. It waits until no writer is pending or
// active and the reader cap allows entry.
func (m *Manager) Read(ctx context.Context, res ResourceID) error {
	return m.waitFor(ctx, res, func(e *lockEntry) bool {
		if e.pendingWriters > 0 || e.writing {
			return false
		}
		if m.opts.ReaderCap > 0 && e.readers >= m.opts.ReaderCap {
			return false
		}
		e.readers++
		return true
	})
}

// ReadEnd releases a shared lock.
func (m *Manager) ReadEnd(res ResourceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errs.Closed("lock manager")
	}
	e, ok := m.locks[res]
	if !ok || e.readers == 0 {
		return nil // nothing held
	}
	e.readers--
	m.broadcast(res, e)
	return nil
}

// Write acquires an exclusive lock. The writer first waits for the writer
// cap, then marks itself pending (blocking new readers) and waits for the
// readers to drain.
func (m *Manager) Write(ctx context.Context, res ResourceID) error {
	err := m.waitFor(ctx, res, func(e *lockEntry) bool {
		if e.pendingWriters >= m.opts.WriterCap {
			return false
		}
		e.pendingWriters++
		return true
	})
	if err != nil {
		return err
	}

	err = m.waitFor(ctx, res, func(e *lockEntry) bool {
		if e.readers > 0 || e.writing {
			return false
		}
		e.writing = true
		return true
	})
	if err != nil {
		// Withdraw the pending mark so blocked readers can proceed.
		m.mu.Lock()
		if e, ok := m.locks[res]; ok && e.pendingWriters > 0 {
			e.pendingWriters--
			m.broadcast(res, e)
		}
		m.mu.Unlock()
		return err
	}
	return nil
}

// WriteEnd releases an exclusive lock.
func (m *Manager) WriteEnd(res ResourceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errs.Closed("lock manager")
	}
	e, ok := m.locks[res]
	if !ok || !e.writing {
		return nil // nothing held
	}
	e.writing = false
	e.pendingWriters--
	m.broadcast(res, e)
	return nil
}

// Close fails all current and future operations with ErrClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	close(m.closedCh)
	return nil
}

// Stats returns lock manager statistics for monitoring.
func (m *Manager) Stats() (activeLocks, waitingRequests int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, entry := range m.locks {
		activeLocks += entry.readers
		if entry.writing {
			activeLocks++
		}
		waitingRequests += entry.waiting
	}
	return
}

// Info describes the state of one resource.
type Info struct {
	Resource ResourceID
	Readers  int
	Writing  bool
	Waiting  int
}

// Info returns a snapshot of every resource with holders or waiters,
// ordered schema -> database -> table.
func (m *Manager) Info() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Info, 0, len(m.locks))
	for res, e := range m.locks {
		if e.readers == 0 && !e.writing && e.waiting == 0 {
			continue
		}
		out = append(out, Info{Resource: res, Readers: e.readers, Writing: e.writing, Waiting: e.waiting})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Resource.less(out[j].Resource) })
	return out
}

// waitFor blocks until try reports success. try runs with m.mu held and
// must apply the grant itself when it returns true.
func (m *Manager) waitFor(ctx context.Context, res ResourceID, try func(e *lockEntry) bool) error {
	m.mu.Lock()
	timeout := m.opts.Timeout
	m.mu.Unlock()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	m.mu.Lock()
	for {
		if m.closed {
			m.mu.Unlock()
			return errs.Closed("lock manager")
		}
		e := m.getOrCreateEntry(res)
		if try(e) {
			m.mu.Unlock()
			return nil
		}

		ch := e.changed
		e.waiting++
		m.mu.Unlock()

		var waitErr error
		select {
		case <-ch:
		case <-m.closedCh:
		case <-ctx.Done():
			waitErr = ctx.Err()
		}

		m.mu.Lock()
		if cur, ok := m.locks[res]; ok && cur == e {
			e.waiting--
			m.cleanup(res, e)
		}
		if waitErr != nil {
			m.mu.Unlock()
			if errors.Is(waitErr, context.DeadlineExceeded) {
				return fmt.Errorf("lock timeout waiting for %s: %w", res, waitErr)
			}
			return errs.Canceled("waiting for lock " + res.String())
		}
	}
}

// getOrCreateEntry returns the lock entry for a resource, creating if needed.
// Caller must hold m.mu.
func (m *Manager) getOrCreateEntry(res ResourceID) *lockEntry {
	entry, ok := m.locks[res]
	if !ok {
		entry = &lockEntry{changed: make(chan struct{})}
		m.locks[res] = entry
	}
	return entry
}

// broadcast wakes every waiter of the resource so it can re-check its
// condition. Caller must hold m.mu.
func (m *Manager) broadcast(res ResourceID, e *lockEntry) {
	close(e.changed)
	e.changed = make(chan struct{})
	m.cleanup(res, e)
}

// cleanup drops idle entries. Caller must hold m.mu.
func (m *Manager) cleanup(res ResourceID, e *lockEntry) {
	if e.readers == 0 && e.pendingWriters == 0 && !e.writing && e.waiting == 0 {
		delete(m.locks, res)
	}
}

// Request names one resource to lock in a Set.
type Request struct {
	Resource ResourceID
	Mode     Mode
}

// Set is a group of locks acquired in schema -> database -> table order and
// released in reverse. Release is idempotent and safe to call concurrently.
type Set struct {
	m        *Manager
	mu       sync.Mutex
	held     []Request
	released bool
}

// AcquireAll locks every requested resource in level order. Duplicate
// requests collapse to the strongest mode. On failure the locks already
// taken are released before returning.
func (m *Manager) AcquireAll(ctx context.Context, reqs []Request) (*Set, error) {
	merged := make(map[ResourceID]Mode, len(reqs))
	for _, r := range reqs {
		if cur, ok := merged[r.Resource]; !ok || r.Mode > cur {
			merged[r.Resource] = r.Mode
		}
	}
	ordered := make([]Request, 0, len(merged))
	for res, mode := range merged {
		ordered = append(ordered, Request{Resource: res, Mode: mode})
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Resource.less(ordered[j].Resource)
	})

	set := &Set{m: m}
	for _, r := range ordered {
		var err error
		if r.Mode == ModeExclusive {
			err = m.Write(ctx, r.Resource)
		} else {
			err = m.Read(ctx, r.Resource)
		}
		if err != nil {
			_ = set.Release()
			return nil, err
		}
		set.held = append(set.held, r)
	}
	return set, nil
}

// Held returns the requests currently held, in acquisition order.
func (s *Set) Held() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.held))
	copy(out, s.held)
	return out
}

// Release releases all held locks in reverse acquisition order.
func (s *Set) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return nil
	}
	s.released = true

	var errList []error
	for i := len(s.held) - 1; i >= 0; i-- {
		r := s.held[i]
		var err error
		if r.Mode == ModeExclusive {
			err = s.m.WriteEnd(r.Resource)
		} else {
			err = s.m.ReadEnd(r.Resource)
		}
		if err != nil {
			errList = append(errList, err)
		}
	}
	s.held = nil
	return errors.Join(errList...)
}
