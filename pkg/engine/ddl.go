package engine

import (
	"context"

	"github.com/JayabrataBasu/veridicalql/pkg/catalog"
	"github.com/JayabrataBasu/veridicalql/pkg/errs"
	"github.com/JayabrataBasu/veridicalql/pkg/lock"
	"github.com/JayabrataBasu/veridicalql/pkg/remote"
)

// withLocks runs fn holding reqs.
func (e *Engine) withLocks(ctx context.Context, reqs []lock.Request, fn func() error) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	set, err := e.locks.AcquireAll(ctx, reqs)
	if err != nil {
		e.logLockError("ddl", err)
		return err
	}
	defer func() { _ = set.Release() }()
	return fn()
}

func schemaWrite() []lock.Request {
	return []lock.Request{{Resource: lock.SchemaResource(), Mode: lock.ModeExclusive}}
}

func databaseWrite(db string) []lock.Request {
	return []lock.Request{
		{Resource: lock.SchemaResource(), Mode: lock.ModeShared},
		{Resource: lock.DatabaseResource(db), Mode: lock.ModeExclusive},
	}
}

func tableWrite(db, table string) []lock.Request {
	return []lock.Request{
		{Resource: lock.SchemaResource(), Mode: lock.ModeShared},
		{Resource: lock.DatabaseResource(db), Mode: lock.ModeShared},
		{Resource: lock.TableResource(db, table), Mode: lock.ModeExclusive},
	}
}

// CreateDatabase registers a database.
func (e *Engine) CreateDatabase(ctx context.Context, name string, ifNotExists bool) (*catalog.Database, error) {
	var db *catalog.Database
	err := e.withLocks(ctx, schemaWrite(), func() error {
		var err error
		db, err = e.schema.CreateDatabase(name, ifNotExists)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.log.Debug("database created", "database", name, "key", db.Key)
	return db, nil
}

// DropDatabase removes a database with all its tables and rows.
func (e *Engine) DropDatabase(ctx context.Context, name string) error {
	return e.withLocks(ctx, schemaWrite(), func() error {
		db, err := e.schema.DropDatabase(name)
		if err != nil {
			return err
		}
		for _, t := range db.Tables() {
			if err := e.store.DropTable(db.Key, t.Key); err != nil {
				return err
			}
		}
		e.log.Debug("database dropped", "database", name)
		return nil
	})
}

// resolveDatabase finds db by name or key, falling back to the default
// database when db is empty. table only names the error.
func (e *Engine) resolveDatabase(db, table string) (*catalog.Database, error) {
	if db == "" {
		db = e.opts.DefaultDatabase
	}
	if db == "" {
		return nil, errs.NoDatabaseSelected(table)
	}
	return e.schema.GetDatabase(db)
}

// CreateTable registers a table and allocates its row storage.
func (e *Engine) CreateTable(ctx context.Context, db, name string, cols []catalog.Column, ifNotExists bool) (*catalog.Table, error) {
	d, err := e.resolveDatabase(db, name)
	if err != nil {
		return nil, err
	}
	var t *catalog.Table
	err = e.withLocks(ctx, databaseWrite(d.Key), func() error {
		var err error
		if t, err = e.schema.CreateTable(d.Key, name, cols, ifNotExists); err != nil {
			return err
		}
		return e.store.CreateTable(d.Key, t.Key)
	})
	if err != nil {
		return nil, err
	}
	e.log.Debug("table created", "database", d.Name, "table", name, "key", t.Key)
	return t, nil
}

// RenameTable changes a table's display name. Plans bound to the table keep
// working since they hold its key.
func (e *Engine) RenameTable(ctx context.Context, db, name, newName string) error {
	d, err := e.resolveDatabase(db, name)
	if err != nil {
		return err
	}
	return e.withLocks(ctx, databaseWrite(d.Key), func() error {
		return e.schema.RenameTable(d.Key, name, newName)
	})
}

// DropTable removes a table and its rows.
func (e *Engine) DropTable(ctx context.Context, db, name string) error {
	d, err := e.resolveDatabase(db, name)
	if err != nil {
		return err
	}
	t, err := e.schema.GetTable(d.Key, name)
	if err != nil {
		return err
	}
	reqs := append(databaseWrite(d.Key), lock.Request{Resource: lock.TableResource(d.Key, t.Key), Mode: lock.ModeExclusive})
	return e.withLocks(ctx, reqs, func() error {
		if _, err := e.schema.DropTable(d.Key, t.Key); err != nil {
			return err
		}
		return e.store.DropTable(d.Key, t.Key)
	})
}

// Insert appends rows given as column name -> Go value maps. Every row is
// validated before any is stored.
func (e *Engine) Insert(ctx context.Context, db, table string, rows []map[string]interface{}) (int, error) {
	d, err := e.resolveDatabase(db, table)
	if err != nil {
		return 0, err
	}
	t, err := e.schema.GetTable(d.Key, table)
	if err != nil {
		return 0, err
	}
	keyed := make([]catalog.Row, 0, len(rows))
	for _, in := range rows {
		row := make(catalog.Row, len(in))
		for name, x := range in {
			col, err := t.Column(name)
			if err != nil {
				return 0, err
			}
			v, err := catalog.FromGo(x)
			if err != nil {
				return 0, err
			}
			row[col.Key] = v
		}
		keyed = append(keyed, row)
	}

	var n int
	err = e.withLocks(ctx, tableWrite(d.Key, t.Key), func() error {
		// the table may have been dropped while we waited
		if _, err := e.schema.GetTable(d.Key, t.Key); err != nil {
			return err
		}
		var err error
		n, err = e.store.Insert(ctx, t, keyed)
		return err
	})
	if err == nil {
		e.system.Stats().RecordInsert(n)
	}
	return n, err
}

// RegisterRemote makes src available to queries under name. Sources are
// wrapped in a retrying source when the engine was configured with retries.
func (e *Engine) RegisterRemote(name string, src remote.Source) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	if e.opts.RemoteRetries > 0 {
		src = remote.WithRetry(src, e.opts.RemoteRetries, e.opts.RemoteBackoff)
	}
	return e.remotes.Register(name, src, true)
}

// RowCount returns the number of rows stored in a table.
func (e *Engine) RowCount(ctx context.Context, db, table string) (int, error) {
	d, err := e.resolveDatabase(db, table)
	if err != nil {
		return 0, err
	}
	t, err := e.schema.GetTable(d.Key, table)
	if err != nil {
		return 0, err
	}
	reqs := []lock.Request{
		{Resource: lock.SchemaResource(), Mode: lock.ModeShared},
		{Resource: lock.DatabaseResource(d.Key), Mode: lock.ModeShared},
		{Resource: lock.TableResource(d.Key, t.Key), Mode: lock.ModeShared},
	}
	var n int
	err = e.withLocks(ctx, reqs, func() error {
		var err error
		n, err = e.store.RowCount(ctx, d.Key, t.Key)
		return err
	})
	return n, err
}
