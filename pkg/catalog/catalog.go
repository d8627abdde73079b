package catalog

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/JayabrataBasu/veridicalql/pkg/errs"
)

// Column defines a column in a table. Key is the physical row slot and
// never changes; Name is the display name and may be renamed.
type Column struct {
	Key      string
	Name     string
	Type     DataType
	Nullable bool
	Default  *Value // nil means no default
}

// Table holds the ordered column list of a table.
type Table struct {
	Key      string
	Name     string
	Database string // owning database key

	mu      sync.RWMutex
	columns []*Column
}

// Columns returns a snapshot of the table's columns in declaration order.
func (t *Table) Columns() []*Column {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Column, len(t.columns))
	copy(out, t.columns)
	return out
}

// Column finds a column by key or by name (case-insensitive).
func (t *Table) Column(nameOrKey string) (*Column, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, c := range t.columns {
		if c.Key == nameOrKey {
			return c, nil
		}
	}
	var found *Column
	for _, c := range t.columns {
		if strings.EqualFold(c.Name, nameOrKey) {
			if found != nil {
				return nil, errs.Ambiguous("column", nameOrKey, t.Name)
			}
			found = c
		}
	}
	if found == nil {
		return nil, errs.NotFoundIn("column", nameOrKey, "table", t.Name)
	}
	return found, nil
}

// Database owns a set of tables.
type Database struct {
	Key  string
	Name string

	mu     sync.RWMutex
	tables map[string]*Table
	order  []string
}

// Tables returns the database's tables in creation order.
func (d *Database) Tables() []*Table {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Table, 0, len(d.order))
	for _, k := range d.order {
		out = append(out, d.tables[k])
	}
	return out
}

// Table finds a table by key or by name (case-insensitive).
func (d *Database) Table(nameOrKey string) (*Table, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.tableLocked(nameOrKey)
}

func (d *Database) tableLocked(nameOrKey string) (*Table, error) {
	if t, ok := d.tables[nameOrKey]; ok {
		return t, nil
	}
	for _, k := range d.order {
		if t := d.tables[k]; strings.EqualFold(t.Name, nameOrKey) {
			return t, nil
		}
	}
	return nil, errs.NotFoundIn("table", nameOrKey, "database", d.Name)
}

// Schema is the root catalog: database key -> Database. Every structural
// change bumps Version so compiled plans can detect stale bindings.
type Schema struct {
	mu        sync.RWMutex
	databases map[string]*Database
	order     []string
	version   uint64
}

// NewSchema creates an empty schema.
func NewSchema() *Schema {
	return &Schema{databases: make(map[string]*Database)}
}

// Version returns the structural version of the schema.
func (s *Schema) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Databases returns all databases in creation order.
func (s *Schema) Databases() []*Database {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Database, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.databases[k])
	}
	return out
}

// GetDatabase finds a database by key or by name (case-insensitive).
func (s *Schema) GetDatabase(nameOrKey string) (*Database, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.databaseLocked(nameOrKey)
}

func (s *Schema) databaseLocked(nameOrKey string) (*Database, error) {
	if db, ok := s.databases[nameOrKey]; ok {
		return db, nil
	}
	for _, k := range s.order {
		if db := s.databases[k]; strings.EqualFold(db.Name, nameOrKey) {
			return db, nil
		}
	}
	return nil, errs.NotFound("database", nameOrKey)
}

// GetTable finds a table inside the given database.
func (s *Schema) GetTable(db, nameOrKey string) (*Table, error) {
	d, err := s.GetDatabase(db)
	if err != nil {
		return nil, err
	}
	return d.Table(nameOrKey)
}

// GetColumn finds a column inside the given table.
func (s *Schema) GetColumn(t *Table, nameOrKey string) (*Column, error) {
	return t.Column(nameOrKey)
}

// CreateDatabase registers a new database.
func (s *Schema) CreateDatabase(name string, ifNotExists bool) (*Database, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, err := s.databaseLocked(name); err == nil {
		if ifNotExists {
			return existing, nil
		}
		return nil, errs.AlreadyExists("database", name)
	}
	db := &Database{
		Key:    uuid.NewString(),
		Name:   name,
		tables: make(map[string]*Table),
	}
	s.databases[db.Key] = db
	s.order = append(s.order, db.Key)
	s.version++
	return db, nil
}

// DropDatabase removes a database and all of its tables.
func (s *Schema) DropDatabase(nameOrKey string) (*Database, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.databaseLocked(nameOrKey)
	if err != nil {
		return nil, err
	}
	delete(s.databases, db.Key)
	s.order = removeKey(s.order, db.Key)
	s.version++
	return db, nil
}

// RenameDatabase changes a database's display name; its key is unchanged.
func (s *Schema) RenameDatabase(nameOrKey, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.databaseLocked(nameOrKey)
	if err != nil {
		return err
	}
	if other, err := s.databaseLocked(newName); err == nil && other != db {
		return errs.AlreadyExists("database", newName)
	}
	db.Name = newName
	s.version++
	return nil
}

// CreateTable registers a new table. Columns without a key are assigned one.
func (s *Schema) CreateTable(db, name string, cols []Column, ifNotExists bool) (*Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.databaseLocked(db)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, err := d.tableLocked(name); err == nil {
		if ifNotExists {
			return existing, nil
		}
		return nil, errs.AlreadyExists("table", name)
	}

	t := &Table{Key: uuid.NewString(), Name: name, Database: d.Key}
	seen := make(map[string]bool, len(cols))
	for i := range cols {
		col := cols[i]
		lower := strings.ToLower(col.Name)
		if seen[lower] {
			return nil, errs.AlreadyExists("column", col.Name)
		}
		seen[lower] = true
		if col.Key == "" {
			col.Key = uuid.NewString()
		}
		if col.Default != nil && !col.Default.Conforms(col.Type) {
			return nil, errs.TypeMismatch("default of column "+col.Name, col.Type.String(), col.Default.Type.String())
		}
		t.columns = append(t.columns, &col)
	}
	d.tables[t.Key] = t
	d.order = append(d.order, t.Key)
	s.version++
	return t, nil
}

// DropTable removes a table from its database.
func (s *Schema) DropTable(db, nameOrKey string) (*Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.databaseLocked(db)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	t, err := d.tableLocked(nameOrKey)
	if err != nil {
		return nil, err
	}
	delete(d.tables, t.Key)
	d.order = removeKey(d.order, t.Key)
	s.version++
	return t, nil
}

// RenameTable changes a table's display name; its key is unchanged.
func (s *Schema) RenameTable(db, nameOrKey, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.databaseLocked(db)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	t, err := d.tableLocked(nameOrKey)
	if err != nil {
		return err
	}
	if other, err := d.tableLocked(newName); err == nil && other != t {
		return errs.AlreadyExists("table", newName)
	}
	t.Name = newName
	s.version++
	return nil
}

// RenameColumn changes a column's display name. The column is replaced
// rather than mutated so snapshots held by readers stay consistent.
func (s *Schema) RenameColumn(t *Table, nameOrKey, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := t.Column(nameOrKey)
	if err != nil {
		return err
	}
	if other, err := t.Column(newName); err == nil && other.Key != col.Key {
		return errs.AlreadyExists("column", newName)
	}

	t.mu.Lock()
	for i, c := range t.columns {
		if c.Key == col.Key {
			renamed := *c
			renamed.Name = newName
			t.columns[i] = &renamed
		}
	}
	t.mu.Unlock()
	s.version++
	return nil
}

func removeKey(keys []string, key string) []string {
	for i, k := range keys {
		if k == key {
			return append(keys[:i], keys[i+1:]...)
		}
	}
	return keys
}
