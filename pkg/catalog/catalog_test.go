package catalog

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/JayabrataBasu/veridicalql/pkg/errs"
)

func newTestSchema(t *testing.T) (*Schema, *Table) {
	t.Helper()
	s := NewSchema()
	if _, err := s.CreateDatabase("school", false); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	tbl, err := s.CreateTable("school", "Student", []Column{
		{Name: "id", Type: TypeNumber},
		{Name: "name", Type: TypeString},
		{Name: "gender", Type: TypeString, Nullable: true},
	}, false)
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	return s, tbl
}

func TestSchemaLookup(t *testing.T) {
	s, tbl := newTestSchema(t)

	db, err := s.GetDatabase("SCHOOL")
	if err != nil {
		t.Fatalf("GetDatabase by name: %v", err)
	}
	if byKey, err := s.GetDatabase(db.Key); err != nil || byKey != db {
		t.Fatalf("GetDatabase by key: %v", err)
	}

	got, err := s.GetTable(db.Key, "student")
	if err != nil || got != tbl {
		t.Fatalf("GetTable: %v", err)
	}

	col, err := s.GetColumn(tbl, "Name")
	if err != nil {
		t.Fatalf("GetColumn: %v", err)
	}
	if col.Type != TypeString {
		t.Errorf("expected string column, got %s", col.Type)
	}

	if _, err := s.GetTable("school", "Teacher"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("expected NotFound for missing table, got %v", err)
	}
	if _, err := s.GetDatabase("nope"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("expected NotFound for missing database, got %v", err)
	}
	if _, err := tbl.Column("age"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("expected NotFound for missing column, got %v", err)
	}
}

func TestCreateDuplicates(t *testing.T) {
	s, tbl := newTestSchema(t)

	if _, err := s.CreateDatabase("school", false); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Errorf("expected AlreadyExists for database, got %v", err)
	}
	if db, err := s.CreateDatabase("school", true); err != nil || db == nil {
		t.Errorf("if-not-exists create failed: %v", err)
	}
	if _, err := s.CreateTable("school", "student", nil, false); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Errorf("expected AlreadyExists for table, got %v", err)
	}
	if got, err := s.CreateTable("school", "student", nil, true); err != nil || got != tbl {
		t.Errorf("if-not-exists table create failed: %v", err)
	}
	_, err := s.CreateTable("school", "dup", []Column{{Name: "a"}, {Name: "A"}}, false)
	if !errors.Is(err, errs.ErrAlreadyExists) {
		t.Errorf("expected AlreadyExists for duplicate column, got %v", err)
	}
}

func TestRenameKeepsKeys(t *testing.T) {
	s, tbl := newTestSchema(t)
	col, _ := tbl.Column("name")
	before := s.Version()

	if err := s.RenameTable("school", "Student", "Pupil"); err != nil {
		t.Fatalf("RenameTable: %v", err)
	}
	if err := s.RenameColumn(tbl, "name", "fullName"); err != nil {
		t.Fatalf("RenameColumn: %v", err)
	}
	if s.Version() <= before {
		t.Errorf("version did not advance: %d -> %d", before, s.Version())
	}

	renamed, err := s.GetTable("school", "pupil")
	if err != nil || renamed.Key != tbl.Key {
		t.Fatalf("renamed table lookup failed: %v", err)
	}
	byKey, err := renamed.Column(col.Key)
	if err != nil {
		t.Fatalf("column lookup by key after rename: %v", err)
	}
	if byKey.Name != "fullName" {
		t.Errorf("expected renamed column, got %s", byKey.Name)
	}
	if col.Name != "name" {
		t.Errorf("old snapshot mutated: %s", col.Name)
	}
}

func TestDropTable(t *testing.T) {
	s, tbl := newTestSchema(t)
	dropped, err := s.DropTable("school", "student")
	if err != nil || dropped.Key != tbl.Key {
		t.Fatalf("DropTable: %v", err)
	}
	if _, err := s.GetTable("school", tbl.Key); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("expected NotFound after drop, got %v", err)
	}
}

func TestCompareAndKey(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name string
		a, b Value
		want int
	}{
		{"numbers", NewNumber(1), NewNumber(2), -1},
		{"strings", NewString("b"), NewString("a"), 1},
		{"bools", NewBool(false), NewBool(true), -1},
		{"dates", NewDate(now), NewDate(now), 0},
		{"arrays", NewArray(NewNumber(1), NewNumber(2)), NewArray(NewNumber(1), NewNumber(3)), -1},
		{"objects", NewObject(map[string]Value{"a": NewNumber(1)}), NewObject(map[string]Value{"a": NewNumber(1)}), 0},
		{"novalue last", NoValue(), NewNumber(1), 1},
		{"type rank", NewNumber(100), NewString("1"), -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compare(tt.a, tt.b); got != tt.want {
				t.Errorf("Compare(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
			if (Key(tt.a) == Key(tt.b)) != (tt.want == 0) {
				t.Errorf("Key equality disagrees with Compare for %v, %v", tt.a, tt.b)
			}
		})
	}
}

func TestKeyIsCollisionFree(t *testing.T) {
	// A joined-string key would map both tuples to "a|b|c".
	k1 := Key(NewString("a|b"), NewString("c"))
	k2 := Key(NewString("a"), NewString("b|c"))
	if k1 == k2 {
		t.Fatalf("keys collide: %q", k1)
	}
	if Key(NewNumber(1)) == Key(NewString("1")) {
		t.Fatal("number and string keys collide")
	}

	negZero := NewNumber(math.Copysign(0, -1))
	if !Equal(negZero, NewNumber(0)) {
		t.Fatal("-0 and 0 should be equal")
	}
	if Key(negZero) != Key(NewNumber(0)) {
		t.Errorf("-0 and 0 have different keys: %q, %q", Key(negZero), Key(NewNumber(0)))
	}
}

func TestFromGoRoundTrip(t *testing.T) {
	in := map[string]interface{}{"n": 3, "s": "x", "list": []interface{}{true, nil}}
	v, err := FromGo(in)
	if err != nil {
		t.Fatalf("FromGo: %v", err)
	}
	if v.Type != TypeObject {
		t.Fatalf("expected object, got %s", v.Type)
	}
	if !v.Fields["list"].Items[1].IsNull {
		t.Error("nil did not become NoValue")
	}
	out := v.ToGo().(map[string]interface{})
	if out["n"] != int64(3) {
		t.Errorf("expected int64(3), got %#v", out["n"])
	}
	if _, err := FromGo(struct{}{}); !errors.Is(err, errs.ErrTypeMismatch) {
		t.Errorf("expected TypeMismatch, got %v", err)
	}
}
