package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"pharmapos/backend/internal/store"
)

// table maps one entity type onto one table. Column names match the db tags
// of T; key is the primary key column.
type table[T store.Entity] struct {
	db        *sqlx.DB
	name      string
	entity    string
	key       string
	columns   []string
	immutable []string
	orderBy   string
}

func (t *table[T]) selectSQL() string {
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(t.columns, ", "), t.name)
}

func (t *table[T]) Get(ctx context.Context, id string) (*T, error) {
	var row T
	query := t.db.Rebind(t.selectSQL() + " WHERE " + t.key + " = ?")
	if err := t.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(store.ErrNotFound, "%s %s", t.entity, id)
		}
		return nil, errors.Wrapf(err, "get %s", t.entity)
	}
	return &row, nil
}

func (t *table[T]) List(ctx context.Context) ([]T, error) {
	rows := make([]T, 0, 32)
	query := t.selectSQL()
	if t.orderBy != "" {
		query += " ORDER BY " + t.orderBy
	}
	if err := t.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, errors.Wrapf(err, "list %s", t.entity)
	}
	return rows, nil
}

func (t *table[T]) Create(ctx context.Context, entity T) (*T, error) {
	if entity.EntityKey() == "" {
		return nil, errors.Wrapf(store.ErrInvalidInput, "%s without key", t.entity)
	}
	named := make([]string, len(t.columns))
	for i, col := range t.columns {
		named[i] = ":" + col
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.name, strings.Join(t.columns, ", "), strings.Join(named, ", "))
	if _, err := t.db.NamedExecContext(ctx, query, entity); err != nil {
		return nil, writeErr(err, "insert "+t.entity)
	}
	return t.Get(ctx, entity.EntityKey())
}

func (t *table[T]) Update(ctx context.Context, entity T) (*T, error) {
	assignments := make([]string, 0, len(t.columns))
	for _, col := range t.columns {
		if col == t.key || t.isImmutable(col) {
			continue
		}
		assignments = append(assignments, col+" = :"+col)
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = :%s", t.name, strings.Join(assignments, ", "), t.key, t.key)
	res, err := t.db.NamedExecContext(ctx, query, entity)
	if err != nil {
		return nil, writeErr(err, "update "+t.entity)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, errors.Wrapf(store.ErrNotFound, "%s %s", t.entity, entity.EntityKey())
	}
	return t.Get(ctx, entity.EntityKey())
}

func (t *table[T]) Delete(ctx context.Context, id string) error {
	query := t.db.Rebind("DELETE FROM " + t.name + " WHERE " + t.key + " = ?")
	res, err := t.db.ExecContext(ctx, query, id)
	if err != nil {
		return deleteErr(err, "delete "+t.entity)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(store.ErrNotFound, "%s %s", t.entity, id)
	}
	return nil
}

func (t *table[T]) isImmutable(col string) bool {
	for _, c := range t.immutable {
		if c == col {
			return true
		}
	}
	return false
}
