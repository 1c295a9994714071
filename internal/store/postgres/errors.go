package postgres

import (
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/msgdeck/msgdeck/internal/apperr"
	"github.com/pkg/errors"
)

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// mapError converts driver errors into apperr kinds. message describes the failed operation.
func mapError(err error, message string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("%s: not found", message)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return &apperr.Error{Kind: apperr.KindConflict, Message: message + ": " + pgErr.ConstraintName, Err: err}
		case codeSerializationFailure, codeDeadlockDetected:
			return &apperr.Error{Kind: apperr.KindConflict, Message: message + ": concurrent update, retry", Err: err}
		}
	}

	return apperr.Internal(errors.Wrap(err, message), message)
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(format, args...)
	}

	return mapError(err, "query failed")
}
