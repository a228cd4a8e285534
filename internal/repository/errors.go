package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist (or is no longer active for writes).
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a unique constraint rejected the write.
	ErrConflict = errors.New("repository: conflict")
	// ErrStaleStamp indicates a compare-and-swap on the security stamp lost the race.
	ErrStaleStamp = errors.New("repository: stale security stamp")
)

// Fields that can collide on a unique constraint.
const (
	FieldUserName = "user_name"
	FieldEmail    = "email"
	FieldRoleName = "role_name"
)

// ConflictError identifies which unique field a write collided on.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	if e.Field == "" {
		return ErrConflict.Error()
	}
	return ErrConflict.Error() + ": " + e.Field
}

// Unwrap lets errors.Is(err, ErrConflict) match.
func (e *ConflictError) Unwrap() error {
	return ErrConflict
}
