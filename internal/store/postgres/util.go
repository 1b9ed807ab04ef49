package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
)

var ErrConflict = errors.New("conflict")

const (
	codeUniqueViolation = "23505"
	codeInvalidText     = "22P02"
)

// mapErr turns driver errors into the store contract: a missing row, or an id
// that cannot exist, wraps apperrors.ErrNotFound.
func mapErr(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	what := fmt.Sprintf(format, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.Wrapf(apperrors.ErrNotFound, "%s", what)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeInvalidText:
			return apperrors.Wrapf(apperrors.ErrNotFound, "%s", what)
		case codeUniqueViolation:
			return apperrors.Wrapf(ErrConflict, "%s", what)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}
