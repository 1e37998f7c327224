package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique-constraint failure.
// When constraint is set (postgres naming, e.g. "components_name_key")
// only that constraint matches. sqlite does not report constraint names,
// so the "<table>.<column>" pair is derived from it instead.
func IsUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code == pgUniqueViolation && (constraint == "" || pgxErr.ConstraintName == constraint)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation && (constraint == "" || pqErr.Constraint == constraint)
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		if liteErr.ExtendedCode != sqlite3.ErrConstraintUnique && liteErr.ExtendedCode != sqlite3.ErrConstraintPrimaryKey {
			return false
		}
		return constraint == "" || strings.Contains(liteErr.Error(), sqliteColumnFor(constraint))
	}

	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	return constraint == "" || strings.Contains(msg, constraint) || strings.Contains(msg, sqliteColumnFor(constraint))
}

func sqliteColumnFor(constraint string) string {
	trimmed := strings.TrimSuffix(constraint, "_key")
	table, column, ok := strings.Cut(trimmed, "_")
	if !ok {
		return constraint
	}
	return table + "." + column
}
