package sqlstore

import (
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"pharmapos/backend/internal/store"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
		return strings.Contains(liteErr.Error(), "UNIQUE constraint failed")
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgForeignKeyViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		if liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
			return true
		}
		return strings.Contains(liteErr.Error(), "FOREIGN KEY constraint failed")
	}
	return false
}

// writeErr classifies a failed INSERT or UPDATE: unique violations are
// conflicts, dangling references mean the referenced row does not exist.
func writeErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return errors.Wrapf(store.ErrConflict, "%s duplicates an existing record", what)
	case isForeignKeyViolation(err):
		return errors.Wrapf(store.ErrNotFound, "%s references a missing record", what)
	default:
		return errors.Wrap(err, what)
	}
}

// deleteErr classifies a failed DELETE: a foreign key violation means the
// row is still referenced.
func deleteErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case isForeignKeyViolation(err):
		return errors.Wrapf(store.ErrConflict, "%s is still referenced", what)
	default:
		return errors.Wrap(err, what)
	}
}
