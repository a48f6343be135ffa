package repo

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when the requested row does not exist
	// or is not visible to the requesting user.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an insert violates a uniqueness constraint.
	ErrConflict = errors.New("already exists")
)

// isUniqueViolation reports whether err is a PostgreSQL unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
