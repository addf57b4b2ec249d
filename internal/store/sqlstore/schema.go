package sqlstore

import (
	"context"

	"github.com/pkg/errors"
)

// schema is valid on both PostgreSQL and SQLite. Ids are generated by the
// application, so no serial/autoincrement columns are needed.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		full_name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL CHECK (role IN ('admin', 'pharmacist', 'cashier')),
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS categories_name_lower_key ON categories (LOWER(name))`,
	`CREATE TABLE IF NOT EXISTS suppliers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		contact_person TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS drugs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		generic_name TEXT NOT NULL DEFAULT '',
		brand TEXT NOT NULL DEFAULT '',
		barcode TEXT NOT NULL DEFAULT '',
		category_id TEXT REFERENCES categories (id),
		form TEXT NOT NULL DEFAULT '',
		strength TEXT NOT NULL DEFAULT '',
		unit TEXT NOT NULL DEFAULT '',
		requires_prescription BOOLEAN NOT NULL DEFAULT FALSE,
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS drugs_barcode_key ON drugs (barcode) WHERE barcode <> ''`,
	`CREATE TABLE IF NOT EXISTS drug_batches (
		id TEXT PRIMARY KEY,
		drug_id TEXT NOT NULL REFERENCES drugs (id),
		supplier_id TEXT REFERENCES suppliers (id),
		batch_number TEXT NOT NULL,
		expiry_date DATE,
		quantity INTEGER NOT NULL CHECK (quantity >= 0),
		cost_price NUMERIC(12, 2) NOT NULL DEFAULT 0,
		selling_price NUMERIC(12, 2) NOT NULL DEFAULT 0,
		received_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS drug_batches_drug_idx ON drug_batches (drug_id)`,
	`CREATE INDEX IF NOT EXISTS drug_batches_expiry_idx ON drug_batches (expiry_date)`,
	`CREATE TABLE IF NOT EXISTS sales (
		id TEXT PRIMARY KEY,
		receipt_number TEXT NOT NULL UNIQUE,
		idempotency_key TEXT UNIQUE,
		user_id TEXT NOT NULL REFERENCES users (id),
		customer_id TEXT REFERENCES customers (id),
		customer_name TEXT NOT NULL DEFAULT '',
		customer_phone TEXT NOT NULL DEFAULT '',
		subtotal NUMERIC(12, 2) NOT NULL,
		tax_amount NUMERIC(12, 2) NOT NULL DEFAULT 0,
		discount_amount NUMERIC(12, 2) NOT NULL DEFAULT 0,
		total_amount NUMERIC(12, 2) NOT NULL,
		amount_received NUMERIC(12, 2) NOT NULL,
		change_due NUMERIC(12, 2) NOT NULL,
		payment_method TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('completed', 'refunded', 'cancelled')),
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS sales_created_at_idx ON sales (created_at)`,
	`CREATE TABLE IF NOT EXISTS sale_items (
		id TEXT PRIMARY KEY,
		sale_id TEXT NOT NULL REFERENCES sales (id),
		drug_batch_id TEXT NOT NULL REFERENCES drug_batches (id),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price NUMERIC(12, 2) NOT NULL,
		total_price NUMERIC(12, 2) NOT NULL,
		position INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS sale_items_sale_idx ON sale_items (sale_id)`,
	`CREATE TABLE IF NOT EXISTS purchases (
		id TEXT PRIMARY KEY,
		supplier_id TEXT NOT NULL REFERENCES suppliers (id),
		invoice_number TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL CHECK (status IN ('ordered', 'received')),
		total_amount NUMERIC(12, 2) NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL REFERENCES users (id),
		received_by TEXT REFERENCES users (id),
		ordered_at TIMESTAMP NOT NULL,
		received_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS purchase_items (
		id TEXT PRIMARY KEY,
		purchase_id TEXT NOT NULL REFERENCES purchases (id) ON DELETE CASCADE,
		drug_id TEXT NOT NULL REFERENCES drugs (id),
		drug_batch_id TEXT REFERENCES drug_batches (id),
		batch_number TEXT NOT NULL DEFAULT '',
		expiry_date DATE,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_cost NUMERIC(12, 2) NOT NULL,
		selling_price NUMERIC(12, 2) NOT NULL,
		total_cost NUMERIC(12, 2) NOT NULL,
		position INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS purchase_items_purchase_idx ON purchase_items (purchase_id)`,
	`CREATE TABLE IF NOT EXISTS settings (
		setting_key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
}

// Migrate creates every table and index that does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "migrate")
		}
	}
	return nil
}
