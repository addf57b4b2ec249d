package sqlstore

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
)

const saleColumns = `id, receipt_number, idempotency_key, user_id, customer_id, customer_name, customer_phone,
	subtotal, tax_amount, discount_amount, total_amount, amount_received, change_due,
	payment_method, status, notes, created_at, updated_at`

const saleItemColumns = `id, sale_id, drug_batch_id, quantity, unit_price, total_price, position`

const insertSale = `INSERT INTO sales (` + saleColumns + `) VALUES (
	:id, :receipt_number, :idempotency_key, :user_id, :customer_id, :customer_name, :customer_phone,
	:subtotal, :tax_amount, :discount_amount, :total_amount, :amount_received, :change_due,
	:payment_method, :status, :notes, :created_at, :updated_at)`

const insertSaleItem = `INSERT INTO sale_items (` + saleItemColumns + `) VALUES (
	:id, :sale_id, :drug_batch_id, :quantity, :unit_price, :total_price, :position)`

// CommitSale writes the header, then each item followed by its conditional
// decrement, in caller order. The decrement only matches while enough
// unexpired stock remains, so concurrent commits cannot drive a batch negative.
func (s *Store) CommitSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, errors.Wrap(store.ErrInvalidInput, "sale without items")
	}

	today := domain.StartOfDay(sale.CreatedAt)
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if s.isPostgres() {
			if err := lockBatches(ctx, tx, sale.Items); err != nil {
				return err
			}
		}

		if _, err := tx.NamedExecContext(ctx, insertSale, sale); err != nil {
			return writeErr(err, "insert sale")
		}

		decrement := tx.Rebind(`
			UPDATE drug_batches
			SET quantity = quantity - ?, updated_at = ?
			WHERE id = ? AND quantity >= ? AND (expiry_date IS NULL OR expiry_date >= ?)`)
		for _, item := range sale.Items {
			if _, err := tx.NamedExecContext(ctx, insertSaleItem, item); err != nil {
				if isForeignKeyViolation(err) {
					return errors.Wrapf(store.ErrNotFound, "drug batch %s", item.DrugBatchID)
				}
				return writeErr(err, "insert sale item")
			}

			res, err := tx.ExecContext(ctx, decrement, item.Quantity, utc(sale.CreatedAt), item.DrugBatchID, item.Quantity, today)
			if err != nil {
				return errors.Wrap(err, "decrement batch")
			}
			n, err := res.RowsAffected()
			if err != nil {
				return errors.Wrap(err, "decrement batch")
			}
			if n == 0 {
				return explainFailedDecrement(ctx, tx, item, today)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := sale
	out.Items = append([]domain.SaleItem(nil), sale.Items...)
	return &out, nil
}

// lockBatches takes row locks in id order so two carts naming the same
// batches in different orders cannot deadlock.
func lockBatches(ctx context.Context, tx *sqlx.Tx, items []domain.SaleItem) error {
	ids := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, ok := seen[item.DrugBatchID]; ok {
			continue
		}
		seen[item.DrugBatchID] = struct{}{}
		ids = append(ids, item.DrugBatchID)
	}
	sort.Strings(ids)

	query, args, err := sqlx.In(`SELECT id FROM drug_batches WHERE id IN (?) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return errors.Wrap(err, "lock batches")
	}
	var locked []string
	if err := tx.SelectContext(ctx, &locked, tx.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "lock batches")
	}
	return nil
}

func explainFailedDecrement(ctx context.Context, tx *sqlx.Tx, item domain.SaleItem, today time.Time) error {
	var batch struct {
		Quantity   int        `db:"quantity"`
		ExpiryDate *time.Time `db:"expiry_date"`
	}
	err := tx.GetContext(ctx, &batch, tx.Rebind(`SELECT quantity, expiry_date FROM drug_batches WHERE id = ?`), item.DrugBatchID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return errors.Wrapf(store.ErrNotFound, "drug batch %s", item.DrugBatchID)
	case err != nil:
		return errors.Wrap(err, "read batch")
	case batch.ExpiryDate != nil && batch.ExpiryDate.Before(today):
		return errors.Wrapf(store.ErrBatchExpired, "drug batch %s", item.DrugBatchID)
	default:
		return errors.Wrapf(store.ErrInsufficientStock, "drug batch %s has %d, requested %d", item.DrugBatchID, batch.Quantity, item.Quantity)
	}
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return s.findSale(ctx, "id", id)
}

func (s *Store) FindSaleByIdempotencyKey(ctx context.Context, key string) (*domain.Sale, error) {
	return s.findSale(ctx, "idempotency_key", key)
}

func (s *Store) findSale(ctx context.Context, column string, value string) (*domain.Sale, error) {
	var sale domain.Sale
	query := s.db.Rebind(`SELECT ` + saleColumns + ` FROM sales WHERE ` + column + ` = ?`)
	if err := s.db.GetContext(ctx, &sale, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrap(store.ErrNotFound, "sale")
		}
		return nil, errors.Wrap(err, "get sale")
	}
	items, err := s.ListSaleItems(ctx, sale.ID)
	if err != nil {
		return nil, err
	}
	sale.Items = items
	return &sale, nil
}

func (s *Store) ListSaleItems(ctx context.Context, saleID string) ([]domain.SaleItem, error) {
	items := make([]domain.SaleItem, 0, 8)
	query := s.db.Rebind(`SELECT ` + saleItemColumns + ` FROM sale_items WHERE sale_id = ? ORDER BY position`)
	if err := s.db.SelectContext(ctx, &items, query, saleID); err != nil {
		return nil, errors.Wrap(err, "list sale items")
	}
	return items, nil
}

func (s *Store) SalesInRange(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	sales := make([]domain.Sale, 0, 32)
	query := s.db.Rebind(`SELECT ` + saleColumns + ` FROM sales WHERE created_at >= ? AND created_at < ? ORDER BY created_at DESC`)
	if err := s.db.SelectContext(ctx, &sales, query, utc(from), utc(to)); err != nil {
		return nil, errors.Wrap(err, "sales in range")
	}
	if len(sales) == 0 {
		return sales, nil
	}

	ids := make([]string, len(sales))
	for i, sale := range sales {
		ids[i] = sale.ID
	}
	itemsQuery, args, err := sqlx.In(`SELECT `+saleItemColumns+` FROM sale_items WHERE sale_id IN (?) ORDER BY sale_id, position`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "sale items")
	}
	var items []domain.SaleItem
	if err := s.db.SelectContext(ctx, &items, s.db.Rebind(itemsQuery), args...); err != nil {
		return nil, errors.Wrap(err, "sale items")
	}
	bySale := make(map[string][]domain.SaleItem, len(sales))
	for _, item := range items {
		bySale[item.SaleID] = append(bySale[item.SaleID], item)
	}
	for i := range sales {
		sales[i].Items = bySale[sales[i].ID]
		if sales[i].Items == nil {
			sales[i].Items = []domain.SaleItem{}
		}
	}
	return sales, nil
}

func (s *Store) SetSaleStatus(ctx context.Context, change store.SaleStatusChange) (*domain.Sale, error) {
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			tx.Rebind(`UPDATE sales SET status = ?, updated_at = ? WHERE id = ? AND status = ?`),
			change.To, utc(change.At), change.SaleID, change.From)
		if err != nil {
			return errors.Wrap(err, "update sale status")
		}
		if n, err := res.RowsAffected(); err != nil {
			return errors.Wrap(err, "update sale status")
		} else if n == 0 {
			var status string
			err := tx.GetContext(ctx, &status, tx.Rebind(`SELECT status FROM sales WHERE id = ?`), change.SaleID)
			if errors.Is(err, sql.ErrNoRows) {
				return errors.Wrapf(store.ErrNotFound, "sale %s", change.SaleID)
			}
			if err != nil {
				return errors.Wrap(err, "read sale status")
			}
			return errors.Wrapf(store.ErrInvalidState, "sale %s is %s", change.SaleID, status)
		}

		if !change.Restock {
			return nil
		}
		var items []domain.SaleItem
		if err := tx.SelectContext(ctx, &items, tx.Rebind(`SELECT `+saleItemColumns+` FROM sale_items WHERE sale_id = ? ORDER BY position`), change.SaleID); err != nil {
			return errors.Wrap(err, "read sale items")
		}
		restock := tx.Rebind(`UPDATE drug_batches SET quantity = quantity + ?, updated_at = ? WHERE id = ?`)
		for _, item := range items {
			res, err := tx.ExecContext(ctx, restock, item.Quantity, utc(change.At), item.DrugBatchID)
			if err != nil {
				return errors.Wrap(err, "restock batch")
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				return errors.Wrapf(store.ErrNotFound, "drug batch %s", item.DrugBatchID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetSale(ctx, change.SaleID)
}
