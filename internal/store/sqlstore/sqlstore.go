// Package sqlstore implements store.Repository on PostgreSQL (pgx) or SQLite
// (modernc) through sqlx. Queries are written with ? placeholders and rebound
// for the active driver.
package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

type Store struct {
	db     *sqlx.DB
	driver string

	users      *table[domain.User]
	categories *table[domain.Category]
	suppliers  *table[domain.Supplier]
	customers  *table[domain.Customer]
	drugs      *table[domain.Drug]
	batches    *table[domain.DrugBatch]
	settings   *table[domain.Setting]
}

var _ store.Repository = (*Store)(nil)

// OpenPostgres connects with the pgx stdlib driver.
func OpenPostgres(ctx context.Context, databaseURL string) (*Store, error) {
	return Open(ctx, DriverPostgres, databaseURL)
}

// OpenSQLite opens (creating if needed) a database file with foreign keys on.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite"
	return Open(ctx, DriverSQLite, dsn)
}

func Open(ctx context.Context, driver string, dsn string) (*Store, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", driver)
	}

	if driver == DriverSQLite {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxIdleConns(8)
		db.SetMaxOpenConns(30)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "ping %s", driver)
	}

	return newStore(db, driver), nil
}

func newStore(db *sqlx.DB, driver string) *Store {
	s := &Store{db: db, driver: driver}

	s.users = &table[domain.User]{
		db: db, name: "users", entity: "user", key: "id",
		columns:   []string{"id", "username", "password_hash", "full_name", "role", "active", "created_at", "updated_at"},
		immutable: []string{"username", "created_at"},
		orderBy:   "username",
	}
	s.categories = &table[domain.Category]{
		db: db, name: "categories", entity: "category", key: "id",
		columns:   []string{"id", "name", "description", "created_at", "updated_at"},
		immutable: []string{"created_at"},
		orderBy:   "name",
	}
	s.suppliers = &table[domain.Supplier]{
		db: db, name: "suppliers", entity: "supplier", key: "id",
		columns:   []string{"id", "name", "contact_person", "phone", "email", "address", "created_at", "updated_at"},
		immutable: []string{"created_at"},
		orderBy:   "name",
	}
	s.customers = &table[domain.Customer]{
		db: db, name: "customers", entity: "customer", key: "id",
		columns:   []string{"id", "name", "phone", "email", "address", "created_at", "updated_at"},
		immutable: []string{"created_at"},
		orderBy:   "name",
	}
	s.drugs = &table[domain.Drug]{
		db: db, name: "drugs", entity: "drug", key: "id",
		columns: []string{
			"id", "name", "generic_name", "brand", "barcode", "category_id", "form", "strength",
			"unit", "requires_prescription", "description", "created_at", "updated_at",
		},
		immutable: []string{"created_at"},
		orderBy:   "name",
	}
	s.batches = &table[domain.DrugBatch]{
		db: db, name: "drug_batches", entity: "drug batch", key: "id",
		columns: []string{
			"id", "drug_id", "supplier_id", "batch_number", "expiry_date", "quantity",
			"cost_price", "selling_price", "received_at", "created_at", "updated_at",
		},
		// quantity moves only through sale, refund and receipt statements.
		immutable: []string{"drug_id", "quantity", "received_at", "created_at"},
		orderBy:   batchOrder,
	}
	s.settings = &table[domain.Setting]{
		db: db, name: "settings", entity: "setting", key: "setting_key",
		columns: []string{"setting_key", "value", "updated_at"},
		orderBy: "setting_key",
	}
	return s
}

const batchOrder = "CASE WHEN expiry_date IS NULL THEN 1 ELSE 0 END, expiry_date, batch_number"

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Users() store.Collection[domain.User] {
	return s.users
}

func (s *Store) Categories() store.Collection[domain.Category] {
	return s.categories
}

func (s *Store) Suppliers() store.Collection[domain.Supplier] {
	return s.suppliers
}

func (s *Store) Customers() store.Collection[domain.Customer] {
	return s.customers
}

func (s *Store) Drugs() store.Collection[domain.Drug] {
	return s.drugs
}

func (s *Store) Batches() store.Collection[domain.DrugBatch] {
	return s.batches
}

func (s *Store) Settings() store.Collection[domain.Setting] {
	return s.settings
}

func (s *Store) isPostgres() bool {
	return s.driver == DriverPostgres
}

// inTx runs fn in one transaction, rolling back on any error.
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	var opts *sql.TxOptions
	if s.isPostgres() {
		opts = &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	}
	tx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "commit transaction")
}

func utc(t time.Time) time.Time {
	return t.UTC()
}

func escapeLike(raw string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(raw)
}
