// README: Postgres error classification helpers.
package infra

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
	pgForeignKeyViolation = "23503"
)

// IsUniqueViolation reports whether err is a unique violation on constraint
// (any constraint when constraint is empty).
func IsUniqueViolation(err error, constraint string) bool {
	return isPgCode(err, pgUniqueViolation, constraint)
}

// IsCheckViolation reports whether err is a check violation on constraint
// (any constraint when constraint is empty).
func IsCheckViolation(err error, constraint string) bool {
	return isPgCode(err, pgCheckViolation, constraint)
}

func isPgCode(err error, code, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != code {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// IsForeignKeyViolation reports whether err is a foreign key violation.
func IsForeignKeyViolation(err error) bool {
	return isPgCode(err, pgForeignKeyViolation, "")
}
