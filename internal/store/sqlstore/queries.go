package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
)

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	query := s.db.Rebind(s.users.selectSQL() + " WHERE username = ?")
	if err := s.db.GetContext(ctx, &user, query, strings.ToLower(strings.TrimSpace(username))); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(store.ErrNotFound, "user %s", username)
		}
		return nil, errors.Wrap(err, "find user")
	}
	return &user, nil
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM users"); err != nil {
		return 0, errors.Wrap(err, "count users")
	}
	return count, nil
}

func (s *Store) SearchDrugs(ctx context.Context, query string, limit int) ([]domain.Drug, error) {
	if limit < 1 {
		limit = 50
	}
	needle := "%" + escapeLike(strings.ToLower(strings.TrimSpace(query))) + "%"

	drugs := make([]domain.Drug, 0, limit)
	stmt := s.db.Rebind(s.drugs.selectSQL() + `
		WHERE LOWER(name) LIKE ? ESCAPE '\'
		   OR LOWER(generic_name) LIKE ? ESCAPE '\'
		   OR LOWER(brand) LIKE ? ESCAPE '\'
		   OR LOWER(barcode) LIKE ? ESCAPE '\'
		ORDER BY name
		LIMIT ?`)
	if err := s.db.SelectContext(ctx, &drugs, stmt, needle, needle, needle, needle, limit); err != nil {
		return nil, errors.Wrap(err, "search drugs")
	}
	return drugs, nil
}

func (s *Store) BatchesForDrug(ctx context.Context, drugID string) ([]domain.DrugBatch, error) {
	return s.selectBatches(ctx, "drug_id = ?", drugID)
}

func (s *Store) BatchesWithQuantityAtMost(ctx context.Context, threshold int) ([]domain.DrugBatch, error) {
	batches := make([]domain.DrugBatch, 0, 16)
	query := s.db.Rebind(s.batches.selectSQL() + " WHERE quantity <= ? ORDER BY quantity, " + batchOrder)
	if err := s.db.SelectContext(ctx, &batches, query, threshold); err != nil {
		return nil, errors.Wrap(err, "low stock batches")
	}
	return batches, nil
}

func (s *Store) BatchesExpiringBefore(ctx context.Context, cutoff time.Time) ([]domain.DrugBatch, error) {
	return s.selectBatches(ctx, "quantity > 0 AND expiry_date IS NOT NULL AND expiry_date <= ?", utc(cutoff))
}

func (s *Store) selectBatches(ctx context.Context, where string, args ...any) ([]domain.DrugBatch, error) {
	batches := make([]domain.DrugBatch, 0, 16)
	query := s.db.Rebind(s.batches.selectSQL() + " WHERE " + where + " ORDER BY " + batchOrder)
	if err := s.db.SelectContext(ctx, &batches, query, args...); err != nil {
		return nil, errors.Wrap(err, "select batches")
	}
	return batches, nil
}

func (s *Store) DashboardAggregate(ctx context.Context, q store.DashboardQuery) (domain.DashboardStats, error) {
	var sales struct {
		Total decimal.Decimal `db:"total"`
		Count int             `db:"sale_count"`
	}
	salesQuery := s.db.Rebind(`
		SELECT COALESCE(SUM(total_amount), 0) AS total, COUNT(*) AS sale_count
		FROM sales
		WHERE status = ? AND created_at >= ? AND created_at < ?`)
	if err := s.db.GetContext(ctx, &sales, salesQuery, domain.SaleStatusCompleted, utc(q.DayStart), utc(q.DayEnd)); err != nil {
		return domain.DashboardStats{}, errors.Wrap(err, "dashboard sales")
	}

	var stock struct {
		Units    int64 `db:"units"`
		Low      int   `db:"low"`
		Expired  int   `db:"expired"`
		Expiring int   `db:"expiring"`
	}
	stockQuery := s.db.Rebind(`
		SELECT
			COALESCE(SUM(quantity), 0) AS units,
			COALESCE(SUM(CASE WHEN quantity <= ? THEN 1 ELSE 0 END), 0) AS low,
			COALESCE(SUM(CASE WHEN quantity > 0 AND expiry_date IS NOT NULL AND expiry_date < ? THEN 1 ELSE 0 END), 0) AS expired,
			COALESCE(SUM(CASE WHEN quantity > 0 AND expiry_date >= ? AND expiry_date <= ? THEN 1 ELSE 0 END), 0) AS expiring
		FROM drug_batches`)
	if err := s.db.GetContext(ctx, &stock, stockQuery, q.LowStockThreshold, utc(q.Today), utc(q.Today), utc(q.ExpiryCutoff)); err != nil {
		return domain.DashboardStats{}, errors.Wrap(err, "dashboard stock")
	}

	return domain.DashboardStats{
		TodaySalesTotal:   sales.Total.Round(2),
		TodaySalesCount:   sales.Count,
		TotalStockUnits:   stock.Units,
		LowStockCount:     stock.Low,
		ExpiredCount:      stock.Expired,
		ExpiringSoonCount: stock.Expiring,
	}, nil
}
