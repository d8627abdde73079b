// Package observability provides system tables and query statistics for an
// engine. System tables are exposed as remote sources so queries can join
// them like any other row source.
package observability

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/JayabrataBasu/veridicalql/pkg/catalog"
	"github.com/JayabrataBasu/veridicalql/pkg/errs"
	"github.com/JayabrataBasu/veridicalql/pkg/lock"
	"github.com/JayabrataBasu/veridicalql/pkg/remote"
)

// Names of the system sources.
const (
	SourceTables  = "sys_tables"
	SourceColumns = "sys_columns"
	SourceLocks   = "sys_locks"
	SourceStats   = "sys_stats"
	SourceMemory  = "sys_memory"
)

// SystemCatalog provides access to system tables.
type SystemCatalog struct {
	schema *catalog.Schema
	locks  *lock.Manager
	stats  *Statistics
}

// Statistics tracks query execution metrics.
type Statistics struct {
	mu sync.RWMutex

	// Query statistics
	QueriesExecuted  int64
	QueriesSucceeded int64
	QueriesFailed    int64
	QueriesCanceled  int64
	TotalQueryTimeNs int64
	RowsReturned     int64

	// Write statistics
	RowsInserted int64

	LockTimeouts int64

	StartTime time.Time
}

// NewSystemCatalog creates a system catalog over schema and locks.
func NewSystemCatalog(schema *catalog.Schema, locks *lock.Manager, stats *Statistics) *SystemCatalog {
	if stats == nil {
		stats = NewStatistics()
	}
	return &SystemCatalog{schema: schema, locks: locks, stats: stats}
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime: time.Now(),
	}
}

// RecordQuery records a finished query. A cancellation is counted apart
// from other failures.
func (s *Statistics) RecordQuery(err error, duration time.Duration, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.QueriesExecuted++
	s.TotalQueryTimeNs += duration.Nanoseconds()

	switch {
	case err == nil:
		s.QueriesSucceeded++
		s.RowsReturned += int64(rows)
	case errors.Is(err, errs.ErrCanceled):
		s.QueriesCanceled++
	default:
		s.QueriesFailed++
	}
}

// RecordInsert records inserted rows.
func (s *Statistics) RecordInsert(count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RowsInserted += int64(count)
}

// RecordLockTimeout records a lock wait that timed out.
func (s *Statistics) RecordLockTimeout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LockTimeouts++
}

// Snapshot returns a copy of current statistics.
func (s *Statistics) Snapshot() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Statistics{
		QueriesExecuted:  s.QueriesExecuted,
		QueriesSucceeded: s.QueriesSucceeded,
		QueriesFailed:    s.QueriesFailed,
		QueriesCanceled:  s.QueriesCanceled,
		TotalQueryTimeNs: s.TotalQueryTimeNs,
		RowsReturned:     s.RowsReturned,
		RowsInserted:     s.RowsInserted,
		LockTimeouts:     s.LockTimeouts,
		StartTime:        s.StartTime,
	}
}

// Stats returns the statistics tracker.
func (sc *SystemCatalog) Stats() *Statistics {
	return sc.stats
}

// Tables returns one row per table.
func (sc *SystemCatalog) Tables() []catalog.Row {
	var rows []catalog.Row
	for _, db := range sortedDatabases(sc.schema) {
		for _, t := range sortedTables(db) {
			rows = append(rows, catalog.Row{
				"database":     catalog.NewString(db.Name),
				"table":        catalog.NewString(t.Name),
				"column_count": catalog.NewInt(int64(len(t.Columns()))),
			})
		}
	}
	return rows
}

// Columns returns one row per column, in declaration order.
func (sc *SystemCatalog) Columns() []catalog.Row {
	var rows []catalog.Row
	for _, db := range sortedDatabases(sc.schema) {
		for _, t := range sortedTables(db) {
			for i, c := range t.Columns() {
				def := catalog.NoValue()
				if c.Default != nil {
					def = catalog.NewString(c.Default.String())
				}
				rows = append(rows, catalog.Row{
					"database":  catalog.NewString(db.Name),
					"table":     catalog.NewString(t.Name),
					"column_id": catalog.NewInt(int64(i)),
					"column":    catalog.NewString(c.Name),
					"type":      catalog.NewString(c.Type.String()),
					"nullable":  catalog.NewBool(c.Nullable),
					"default":   def,
				})
			}
		}
	}
	return rows
}

// Locks returns the resources currently held or waited on.
func (sc *SystemCatalog) Locks() []catalog.Row {
	var rows []catalog.Row
	for _, info := range sc.locks.Info() {
		rows = append(rows, catalog.Row{
			"resource": catalog.NewString(info.Resource.String()),
			"readers":  catalog.NewInt(int64(info.Readers)),
			"writing":  catalog.NewBool(info.Writing),
			"waiting":  catalog.NewInt(int64(info.Waiting)),
		})
	}
	return rows
}

// Statistics returns the query metrics as metric/value rows.
func (sc *SystemCatalog) Statistics() []catalog.Row {
	stats := sc.stats.Snapshot()
	uptime := time.Since(stats.StartTime)

	return metricRows([]metric{
		{"uptime_seconds", float64(int64(uptime.Seconds()))},
		{"queries_executed", float64(stats.QueriesExecuted)},
		{"queries_succeeded", float64(stats.QueriesSucceeded)},
		{"queries_failed", float64(stats.QueriesFailed)},
		{"queries_canceled", float64(stats.QueriesCanceled)},
		{"avg_query_time_ms", avgQueryTime(&stats)},
		{"rows_returned", float64(stats.RowsReturned)},
		{"rows_inserted", float64(stats.RowsInserted)},
		{"lock_timeouts", float64(stats.LockTimeouts)},
	})
}

func avgQueryTime(stats *Statistics) float64 {
	if stats.QueriesExecuted == 0 {
		return 0
	}
	return float64(stats.TotalQueryTimeNs) / float64(stats.QueriesExecuted) / 1e6
}

// Memory returns runtime memory metrics.
func (sc *SystemCatalog) Memory() []catalog.Row {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return metricRows([]metric{
		{"heap_alloc_mb", float64(m.HeapAlloc / 1024 / 1024)},
		{"heap_sys_mb", float64(m.HeapSys / 1024 / 1024)},
		{"heap_objects", float64(m.HeapObjects)},
		{"goroutines", float64(runtime.NumGoroutine())},
		{"gc_cycles", float64(m.NumGC)},
	})
}

type metric struct {
	name  string
	value float64
}

func metricRows(ms []metric) []catalog.Row {
	rows := make([]catalog.Row, len(ms))
	for i, m := range ms {
		rows[i] = catalog.Row{"metric": catalog.NewString(m.name), "value": catalog.NewNumber(m.value)}
	}
	return rows
}

// Sources returns the system tables as remote sources keyed by name.
func (sc *SystemCatalog) Sources() map[string]remote.Source {
	str := func(name string) catalog.Column { return catalog.Column{Name: name, Type: catalog.TypeString} }
	num := func(name string) catalog.Column { return catalog.Column{Name: name, Type: catalog.TypeNumber} }
	boolean := func(name string) catalog.Column { return catalog.Column{Name: name, Type: catalog.TypeBoolean} }
	metrics := []catalog.Column{str("metric"), num("value")}

	return map[string]remote.Source{
		SourceTables: &systemSource{
			columns: []catalog.Column{str("database"), str("table"), num("column_count")},
			rows:    sc.Tables,
		},
		SourceColumns: &systemSource{
			columns: []catalog.Column{
				str("database"), str("table"), num("column_id"), str("column"),
				str("type"), boolean("nullable"), {Name: "default", Type: catalog.TypeString, Nullable: true},
			},
			rows: sc.Columns,
		},
		SourceLocks: &systemSource{
			columns: []catalog.Column{str("resource"), num("readers"), boolean("writing"), num("waiting")},
			rows:    sc.Locks,
		},
		SourceStats:  &systemSource{columns: metrics, rows: sc.Statistics},
		SourceMemory: &systemSource{columns: metrics, rows: sc.Memory},
	}
}

// systemSource reads its rows at fetch time.
type systemSource struct {
	columns []catalog.Column
	rows    func() []catalog.Row
}

func (s *systemSource) Columns() []catalog.Column { return s.columns }

func (s *systemSource) Fetch(ctx context.Context) ([]catalog.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.rows(), nil
}

func sortedDatabases(schema *catalog.Schema) []*catalog.Database {
	dbs := schema.Databases()
	sort.Slice(dbs, func(i, j int) bool { return dbs[i].Name < dbs[j].Name })
	return dbs
}

func sortedTables(db *catalog.Database) []*catalog.Table {
	ts := db.Tables()
	sort.Slice(ts, func(i, j int) bool { return ts[i].Name < ts[j].Name })
	return ts
}

// PrometheusMetrics returns metrics in Prometheus text format.
func (sc *SystemCatalog) PrometheusMetrics() string {
	stats := sc.stats.Snapshot()
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return fmt.Sprintf(`# HELP veridicalql_queries_total Total number of queries executed
# TYPE veridicalql_queries_total counter
veridicalql_queries_total{status="success"} %d
veridicalql_queries_total{status="failed"} %d
veridicalql_queries_total{status="canceled"} %d

# HELP veridicalql_rows_total Total number of rows returned or inserted
# TYPE veridicalql_rows_total counter
veridicalql_rows_total{op="return"} %d
veridicalql_rows_total{op="insert"} %d

# HELP veridicalql_lock_timeouts_total Lock waits that timed out
# TYPE veridicalql_lock_timeouts_total counter
veridicalql_lock_timeouts_total %d

# HELP veridicalql_heap_bytes Current heap memory usage in bytes
# TYPE veridicalql_heap_bytes gauge
veridicalql_heap_bytes %d

# HELP veridicalql_goroutines Current number of goroutines
# TYPE veridicalql_goroutines gauge
veridicalql_goroutines %d

# HELP veridicalql_uptime_seconds Engine uptime in seconds
# TYPE veridicalql_uptime_seconds gauge
veridicalql_uptime_seconds %d
`,
		stats.QueriesSucceeded, stats.QueriesFailed, stats.QueriesCanceled,
		stats.RowsReturned, stats.RowsInserted,
		stats.LockTimeouts,
		m.HeapAlloc,
		runtime.NumGoroutine(),
		int64(time.Since(stats.StartTime).Seconds()),
	)
}
