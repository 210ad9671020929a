package core

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Failure taxonomy. Every error returned by the core wraps exactly one of these,
// so callers branch with errors.Is and adapters map them to status codes.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadySold       = errors.New("unit already sold")
	ErrAlreadyDecided    = errors.New("pending update already decided")
	ErrValidation        = errors.New("validation failed")
	ErrUnitBusy          = errors.New("unit is locked by another writer")
)

// ErrorCode returns the stable machine-readable code for err ("ok" for nil).
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrAlreadySold):
		return "already_sold"
	case errors.Is(err, ErrAlreadyDecided):
		return "already_decided"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrUnitBusy):
		return "busy"
	default:
		return "internal"
	}
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Postgres SQLSTATE codes the stores translate into the taxonomy.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

func pgErrorCode(err error) (string, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}
