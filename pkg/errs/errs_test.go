package errs

import (
	"errors"
	"strings"
	"testing"
)

func TestConstructorsWrapSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		contains string
	}{
		{"not found", NotFound("table", "users"), ErrNotFound, `table "users"`},
		{"not found in", NotFoundIn("column", "age", "table", "users"), ErrNotFound, `column "age" in table "users"`},
		{"already exists", AlreadyExists("database", "main"), ErrAlreadyExists, `database "main"`},
		{"ambiguous", Ambiguous("column", "id", "a", "b"), ErrAmbiguous, "matches a, b"},
		{"no database", NoDatabaseSelected("users"), ErrNoDatabaseSelected, `table "users"`},
		{"syntax", Syntax("BETWEEN expects %d operands, got %d", 3, 2), ErrSyntax, "expects 3 operands, got 2"},
		{"type mismatch", TypeMismatch("unknown #0", "number", "string"), ErrTypeMismatch, "expected number, got string"},
		{"canceled", Canceled("row traversal"), ErrCanceled, "row traversal"},
		{"closed", Closed("lock manager"), ErrClosed, "lock manager"},
		{"transition", IllegalTransition("task 1", "RUNNING", "WAITING"), ErrIllegalStateTransition, "RUNNING -> WAITING"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.sentinel)
			}
			if !strings.Contains(tt.err.Error(), tt.contains) {
				t.Errorf("message %q does not contain %q", tt.err.Error(), tt.contains)
			}
		})
	}
}

func TestIsInternal(t *testing.T) {
	if !IsInternal(ErrCursorExhausted) || !IsInternal(ErrEmptyResultSet) {
		t.Error("internal sentinels not recognised")
	}
	if IsInternal(NotFound("table", "t")) {
		t.Error("NotFound reported as internal")
	}
}
