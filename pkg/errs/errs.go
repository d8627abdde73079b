// Package errs defines the error taxonomy shared by the query engine.
//
// Every user-visible failure wraps one of the exported sentinels, so callers
// classify errors with errors.Is while the message still names the resource
// and the expected vs. actual values.
package errs

import (
	stderrors "errors"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when a database, table, column, function or
	// unknown slot does not exist.
	ErrNotFound = stderrors.New("not found")

	// ErrAlreadyExists is returned when creating a resource that exists.
	ErrAlreadyExists = stderrors.New("already exists")

	// ErrAmbiguous is returned when an unqualified name matches more than one
	// visible table, or an alias is declared twice.
	ErrAmbiguous = stderrors.New("ambiguous")

	// ErrSyntax is returned for malformed expressions: arity mismatches,
	// malformed BETWEEN/LIKE, misplaced aggregates.
	ErrSyntax = stderrors.New("syntax error")

	// ErrNoDatabaseSelected is returned when a table is referenced without a
	// database and no default database is configured.
	ErrNoDatabaseSelected = stderrors.New("no database selected")

	// ErrTypeMismatch is returned when a value does not fit the declared type.
	ErrTypeMismatch = stderrors.New("type mismatch")

	// ErrClosed is returned for operations on a closed lock manager or engine.
	ErrClosed = stderrors.New("closed")

	// ErrCanceled is returned when a task was canceled. It is reported on a
	// separate path from ordinary failures.
	ErrCanceled = stderrors.New("canceled")

	// ErrIllegalStateTransition is returned when a task status moves backwards.
	ErrIllegalStateTransition = stderrors.New("illegal state transition")

	// ErrCursorExhausted signals that a cursor moved past its last row.
	// It never escapes the sandbox.
	ErrCursorExhausted = stderrors.New("cursor exhausted")

	// ErrEmptyResultSet signals that a scalar subquery produced no rows.
	// It never escapes the sandbox.
	ErrEmptyResultSet = stderrors.New("empty result set")
)

// NotFound reports a missing resource of the given kind ("table", "column", ...).
func NotFound(kind, name string) error {
	return errors.Wrapf(ErrNotFound, "%s %q", kind, name)
}

// NotFoundIn reports a missing resource inside a named container.
func NotFoundIn(kind, name, containerKind, container string) error {
	return errors.Wrapf(ErrNotFound, "%s %q in %s %q", kind, name, containerKind, container)
}

// AlreadyExists reports a duplicate resource.
func AlreadyExists(kind, name string) error {
	return errors.Wrapf(ErrAlreadyExists, "%s %q", kind, name)
}

// Ambiguous reports a name that resolved to several candidates.
func Ambiguous(kind, name string, candidates ...string) error {
	if len(candidates) == 0 {
		return errors.Wrapf(ErrAmbiguous, "%s %q", kind, name)
	}
	return errors.Wrapf(ErrAmbiguous, "%s %q matches %s", kind, name, strings.Join(candidates, ", "))
}

// NoDatabaseSelected reports a table referenced without a database while no
// default database is configured.
func NoDatabaseSelected(table string) error {
	return errors.Wrapf(ErrNoDatabaseSelected, "table %q", table)
}

// Syntax reports a malformed expression.
func Syntax(format string, args ...interface{}) error {
	return errors.Wrapf(ErrSyntax, format, args...)
}

// TypeMismatch reports a value whose type is not in the expected set.
func TypeMismatch(what, expected, actual string) error {
	return errors.Wrapf(ErrTypeMismatch, "%s: expected %s, got %s", what, expected, actual)
}

// Canceled wraps ErrCanceled with the operation that observed it.
func Canceled(op string) error {
	return errors.Wrap(ErrCanceled, op)
}

// IllegalTransition reports a status change that moves backwards.
func IllegalTransition(what, from, to string) error {
	return errors.Wrapf(ErrIllegalStateTransition, "%s: %s -> %s", what, from, to)
}

// Closed wraps ErrClosed with the component that was closed.
func Closed(what string) error {
	return errors.Wrap(ErrClosed, what)
}

// IsInternal reports whether err is one of the sentinels that must be
// converted inside the sandbox rather than surfaced to callers.
func IsInternal(err error) bool {
	return stderrors.Is(err, ErrCursorExhausted) || stderrors.Is(err, ErrEmptyResultSet)
}
