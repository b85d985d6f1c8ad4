package apperrors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel errors for the decision engine. Callers match with errors.Is;
// lower layers wrap these with fmt.Errorf("...: %w", ...) to add context.
var (
	// ErrNotFound - referenced decision/version/share-link does not exist,
	// or a version does not belong to the stated decision.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument - malformed input (diffing a version against
	// itself, empty required field, bad scope, etc.)
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidStateTransition - status change not permitted by the
	// decision state machine.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrConflict - optimistic concurrency violation (version-number
	// assignment or share-link reissue race). Retry the whole operation.
	ErrConflict = errors.New("conflict")

	// ErrStorageUnavailable - durable-storage I/O failure. Always surfaced,
	// never swallowed: a lost audit entry or version is a correctness bug.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// NotFound wraps ErrNotFound with a formatted message.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// InvalidArgument wraps ErrInvalidArgument with a formatted message.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// InvalidStateTransition wraps ErrInvalidStateTransition with a formatted message.
func InvalidStateTransition(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidStateTransition, fmt.Sprintf(format, args...))
}

// Conflict wraps ErrConflict with a formatted message.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Storage wraps a database error as ErrStorageUnavailable, preserving the cause.
func Storage(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, err)
}

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation (SQLSTATE 23505). Used to map insert races to ErrConflict.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
