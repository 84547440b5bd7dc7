package mapping

import (
	"errors"
	"strings"
)

// Sentinel errors returned by Store methods. Callers compare with
// errors.Is; Store wraps the underlying driver error with %w so the
// original cause survives for logging.
var (
	// ErrNotFound is returned when a lookup by id or key finds no row.
	ErrNotFound = errors.New("mapping: not found")

	// ErrConflict is returned by a unique-constraint violation, e.g.
	// inserting a second IssueMapping for an issue id already claimed by
	// another mapping.
	ErrConflict = errors.New("mapping: conflict")

	// ErrInvalidID is returned when a caller passes a non-positive id to a
	// method that requires one.
	ErrInvalidID = errors.New("mapping: invalid id")
)

// isUniqueConstraintError reports whether err is a genuine SQLite UNIQUE
// constraint violation, as opposed to a transient or context error that
// happens to occur on the same statement. modernc.org/sqlite surfaces
// constraint violations as a plain error whose message SQLite itself
// formats; there is no typed error to check via errors.As, so this matches
// the message the way SQLite emits it.
func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
