package sqlstore

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
)

const purchaseColumns = `id, supplier_id, invoice_number, status, total_amount, notes,
	created_by, received_by, ordered_at, received_at`

const purchaseItemColumns = `id, purchase_id, drug_id, drug_batch_id, batch_number, expiry_date,
	quantity, unit_cost, selling_price, total_cost, position`

func (s *Store) CreatePurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	if len(purchase.Items) == 0 {
		return nil, errors.Wrap(store.ErrInvalidInput, "purchase without items")
	}

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO purchases (`+purchaseColumns+`) VALUES (
			:id, :supplier_id, :invoice_number, :status, :total_amount, :notes,
			:created_by, :received_by, :ordered_at, :received_at)`, purchase); err != nil {
			return writeErr(err, "insert purchase")
		}
		for _, item := range purchase.Items {
			if _, err := tx.NamedExecContext(ctx, `INSERT INTO purchase_items (`+purchaseItemColumns+`) VALUES (
				:id, :purchase_id, :drug_id, :drug_batch_id, :batch_number, :expiry_date,
				:quantity, :unit_cost, :selling_price, :total_cost, :position)`, item); err != nil {
				return writeErr(err, "insert purchase item")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetPurchase(ctx, purchase.ID)
}

func (s *Store) GetPurchase(ctx context.Context, id string) (*domain.Purchase, error) {
	var purchase domain.Purchase
	query := s.db.Rebind(`SELECT ` + purchaseColumns + ` FROM purchases WHERE id = ?`)
	if err := s.db.GetContext(ctx, &purchase, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(store.ErrNotFound, "purchase %s", id)
		}
		return nil, errors.Wrap(err, "get purchase")
	}
	items, err := selectPurchaseItems(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	purchase.Items = items
	return &purchase, nil
}

func (s *Store) ListPurchases(ctx context.Context, status string) ([]domain.Purchase, error) {
	purchases := make([]domain.Purchase, 0, 16)
	query := `SELECT ` + purchaseColumns + ` FROM purchases`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY ordered_at DESC`
	if err := s.db.SelectContext(ctx, &purchases, s.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "list purchases")
	}
	if len(purchases) == 0 {
		return purchases, nil
	}

	ids := make([]string, len(purchases))
	for i, p := range purchases {
		ids[i] = p.ID
	}
	itemsQuery, itemArgs, err := sqlx.In(`SELECT `+purchaseItemColumns+` FROM purchase_items WHERE purchase_id IN (?) ORDER BY purchase_id, position`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "purchase items")
	}
	var items []domain.PurchaseItem
	if err := s.db.SelectContext(ctx, &items, s.db.Rebind(itemsQuery), itemArgs...); err != nil {
		return nil, errors.Wrap(err, "purchase items")
	}
	byPurchase := make(map[string][]domain.PurchaseItem, len(purchases))
	for _, item := range items {
		byPurchase[item.PurchaseID] = append(byPurchase[item.PurchaseID], item)
	}
	for i := range purchases {
		purchases[i].Items = byPurchase[purchases[i].ID]
	}
	return purchases, nil
}

// ReceivePurchase tops up existing batches or creates new ones for every
// line, then marks the purchase received, all in one transaction.
func (s *Store) ReceivePurchase(ctx context.Context, receipt store.PurchaseReceipt) (*domain.Purchase, error) {
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			tx.Rebind(`UPDATE purchases SET status = ?, received_by = ?, received_at = ? WHERE id = ? AND status = ?`),
			domain.PurchaseStatusReceived, receipt.ReceivedBy, utc(receipt.At), receipt.PurchaseID, domain.PurchaseStatusOrdered)
		if err != nil {
			return writeErr(err, "receive purchase")
		}
		if n, err := res.RowsAffected(); err != nil {
			return errors.Wrap(err, "receive purchase")
		} else if n == 0 {
			var status string
			err := tx.GetContext(ctx, &status, tx.Rebind(`SELECT status FROM purchases WHERE id = ?`), receipt.PurchaseID)
			if errors.Is(err, sql.ErrNoRows) {
				return errors.Wrapf(store.ErrNotFound, "purchase %s", receipt.PurchaseID)
			}
			if err != nil {
				return errors.Wrap(err, "read purchase status")
			}
			return errors.Wrapf(store.ErrInvalidState, "purchase %s is %s", receipt.PurchaseID, status)
		}

		var supplierID string
		if err := tx.GetContext(ctx, &supplierID, tx.Rebind(`SELECT supplier_id FROM purchases WHERE id = ?`), receipt.PurchaseID); err != nil {
			return errors.Wrap(err, "read purchase supplier")
		}
		items, err := selectPurchaseItems(ctx, tx, receipt.PurchaseID)
		if err != nil {
			return err
		}

		topUp := tx.Rebind(`UPDATE drug_batches SET quantity = quantity + ?, updated_at = ? WHERE id = ? AND drug_id = ?`)
		link := tx.Rebind(`UPDATE purchase_items SET drug_batch_id = ? WHERE id = ?`)
		for _, item := range items {
			if item.DrugBatchID != nil {
				res, err := tx.ExecContext(ctx, topUp, item.Quantity, utc(receipt.At), *item.DrugBatchID, item.DrugID)
				if err != nil {
					return errors.Wrap(err, "top up batch")
				}
				if n, err := res.RowsAffected(); err == nil && n == 0 {
					return errors.Wrapf(store.ErrInvalidInput, "drug batch %s does not belong to drug %s", *item.DrugBatchID, item.DrugID)
				}
				continue
			}

			newID := receipt.NewBatchIDs[item.ID]
			if newID == "" {
				return errors.Wrapf(store.ErrInvalidInput, "no batch id for purchase item %s", item.ID)
			}
			batch := domain.DrugBatch{
				ID:           newID,
				DrugID:       item.DrugID,
				SupplierID:   &supplierID,
				BatchNumber:  item.BatchNumber,
				ExpiryDate:   item.ExpiryDate,
				Quantity:     item.Quantity,
				CostPrice:    item.UnitCost,
				SellingPrice: item.SellingPrice,
				ReceivedAt:   utc(receipt.At),
				CreatedAt:    utc(receipt.At),
				UpdatedAt:    utc(receipt.At),
			}
			if _, err := tx.NamedExecContext(ctx, `INSERT INTO drug_batches (
				id, drug_id, supplier_id, batch_number, expiry_date, quantity,
				cost_price, selling_price, received_at, created_at, updated_at
			) VALUES (
				:id, :drug_id, :supplier_id, :batch_number, :expiry_date, :quantity,
				:cost_price, :selling_price, :received_at, :created_at, :updated_at)`, batch); err != nil {
				return writeErr(err, "insert received batch")
			}
			if _, err := tx.ExecContext(ctx, link, newID, item.ID); err != nil {
				return errors.Wrap(err, "link purchase item")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetPurchase(ctx, receipt.PurchaseID)
}

func (s *Store) DeletePurchase(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		var status string
		err := tx.GetContext(ctx, &status, tx.Rebind(`SELECT status FROM purchases WHERE id = ?`), id)
		if errors.Is(err, sql.ErrNoRows) {
			return errors.Wrapf(store.ErrNotFound, "purchase %s", id)
		}
		if err != nil {
			return errors.Wrap(err, "read purchase status")
		}
		if status != domain.PurchaseStatusOrdered {
			return errors.Wrapf(store.ErrInvalidState, "purchase %s is %s", id, status)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM purchase_items WHERE purchase_id = ?`), id); err != nil {
			return errors.Wrap(err, "delete purchase items")
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM purchases WHERE id = ?`), id); err != nil {
			return deleteErr(err, "delete purchase")
		}
		return nil
	})
}

func selectPurchaseItems(ctx context.Context, q sqlx.QueryerContext, purchaseID string) ([]domain.PurchaseItem, error) {
	items := make([]domain.PurchaseItem, 0, 8)
	query := sqlx.Rebind(sqlx.BindType(driverOf(q)), `SELECT `+purchaseItemColumns+` FROM purchase_items WHERE purchase_id = ? ORDER BY position`)
	if err := sqlx.SelectContext(ctx, q, &items, query, purchaseID); err != nil {
		return nil, errors.Wrap(err, "purchase items")
	}
	return items, nil
}

func driverOf(q sqlx.QueryerContext) string {
	switch v := q.(type) {
	case *sqlx.DB:
		return v.DriverName()
	case *sqlx.Tx:
		return v.DriverName()
	}
	return ""
}
