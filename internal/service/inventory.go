package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/xid"
)

// BatchFilter narrows ListBatches. Zero values disable a filter; a non-nil
// ExpiringWithin of 0 means expired or expiring today.
type BatchFilter struct {
	DrugID         string
	LowStock       bool
	ExpiringWithin *int
}

func (s *Service) ListBatches(ctx context.Context, filter BatchFilter) ([]domain.DrugBatch, error) {
	filter.DrugID = strings.TrimSpace(filter.DrugID)
	expiring := filter.ExpiringWithin != nil
	days := 0
	if expiring {
		days = *filter.ExpiringWithin
		if days < 0 {
			return nil, invalid("expiringWithin", "must not be negative")
		}
	}

	var (
		batches []domain.DrugBatch
		err     error
	)
	threshold := 0
	if filter.LowStock {
		threshold, err = s.intSetting(ctx, domain.SettingLowStockThreshold, defaultLowStockThreshold)
		if err != nil {
			return nil, err
		}
	}
	cutoff := domain.StartOfDay(s.now()).AddDate(0, 0, days)

	switch {
	case filter.DrugID != "":
		batches, err = s.repo.BatchesForDrug(ctx, filter.DrugID)
	case filter.LowStock:
		batches, err = s.repo.BatchesWithQuantityAtMost(ctx, threshold)
	case expiring:
		batches, err = s.repo.BatchesExpiringBefore(ctx, cutoff)
	default:
		batches, err = s.repo.Batches().List(ctx)
	}
	if err != nil {
		return nil, err
	}

	out := batches[:0]
	for _, batch := range batches {
		if filter.DrugID != "" && batch.DrugID != filter.DrugID {
			continue
		}
		if filter.LowStock && batch.Quantity > threshold {
			continue
		}
		if expiring && (batch.Quantity == 0 || batch.ExpiryDate == nil || batch.ExpiryDate.After(cutoff)) {
			continue
		}
		out = append(out, batch)
	}
	return out, nil
}

// LowStockBatches lists batches at or under the configured threshold.
func (s *Service) LowStockBatches(ctx context.Context) ([]domain.DrugBatch, error) {
	return s.ListBatches(ctx, BatchFilter{LowStock: true})
}

// BatchesExpiringWithinDays lists stocked batches whose expiry falls on or
// before today plus days, including those already expired.
func (s *Service) BatchesExpiringWithinDays(ctx context.Context, days int) ([]domain.DrugBatch, error) {
	if days < 0 {
		return nil, invalid("days", "must not be negative")
	}
	return s.ListBatches(ctx, BatchFilter{ExpiringWithin: &days})
}

func (s *Service) GetBatch(ctx context.Context, id string) (domain.DrugBatch, error) {
	batch, err := s.repo.Batches().Get(ctx, id)
	if err != nil {
		return domain.DrugBatch{}, err
	}
	return *batch, nil
}

func (s *Service) CreateBatch(ctx context.Context, req domain.BatchCreateRequest) (domain.DrugBatch, error) {
	if _, err := requireRole(ctx, catalogWriters...); err != nil {
		return domain.DrugBatch{}, err
	}
	req.DrugID = strings.TrimSpace(req.DrugID)
	req.BatchNumber = strings.TrimSpace(req.BatchNumber)
	if err := s.check(req); err != nil {
		return domain.DrugBatch{}, err
	}
	if req.CostPrice.IsNegative() {
		return domain.DrugBatch{}, invalid("costPrice", "must not be negative")
	}
	if req.SellingPrice.IsNegative() {
		return domain.DrugBatch{}, invalid("sellingPrice", "must not be negative")
	}

	now := s.now()
	created, err := s.repo.Batches().Create(ctx, domain.DrugBatch{
		ID:           xid.New("bat"),
		DrugID:       req.DrugID,
		SupplierID:   trimPtr(req.SupplierID),
		BatchNumber:  req.BatchNumber,
		ExpiryDate:   req.ExpiryDate.Ptr(),
		Quantity:     req.Quantity,
		CostPrice:    req.CostPrice.Round(2),
		SellingPrice: req.SellingPrice.Round(2),
		ReceivedAt:   now,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return domain.DrugBatch{}, err
	}
	s.invalidateDashboard(ctx)
	s.audit(ctx, "batch_create", "drug_batch", created.ID,
		zap.String("drug_id", created.DrugID),
		zap.Int("quantity", created.Quantity),
	)
	return *created, nil
}

// UpdateBatch changes descriptive fields and prices. Quantity is not
// editable here.
func (s *Service) UpdateBatch(ctx context.Context, id string, req domain.BatchUpdateRequest) (domain.DrugBatch, error) {
	if _, err := requireRole(ctx, catalogWriters...); err != nil {
		return domain.DrugBatch{}, err
	}
	if err := s.check(req); err != nil {
		return domain.DrugBatch{}, err
	}
	existing, err := s.repo.Batches().Get(ctx, id)
	if err != nil {
		return domain.DrugBatch{}, err
	}

	updated := *existing
	if req.SupplierID != nil {
		updated.SupplierID = trimPtr(req.SupplierID)
	}
	if req.BatchNumber != nil {
		number := strings.TrimSpace(*req.BatchNumber)
		if number == "" {
			return domain.DrugBatch{}, invalid("batchNumber", "must not be blank")
		}
		updated.BatchNumber = number
	}
	if req.ExpiryDate != nil {
		updated.ExpiryDate = req.ExpiryDate.Ptr()
	}
	if req.CostPrice != nil {
		if req.CostPrice.IsNegative() {
			return domain.DrugBatch{}, invalid("costPrice", "must not be negative")
		}
		updated.CostPrice = req.CostPrice.Round(2)
	}
	if req.SellingPrice != nil {
		if req.SellingPrice.IsNegative() {
			return domain.DrugBatch{}, invalid("sellingPrice", "must not be negative")
		}
		updated.SellingPrice = req.SellingPrice.Round(2)
	}
	updated.UpdatedAt = s.now()

	saved, err := s.repo.Batches().Update(ctx, updated)
	if err != nil {
		return domain.DrugBatch{}, err
	}
	s.invalidateDashboard(ctx)
	s.audit(ctx, "batch_update", "drug_batch", saved.ID)
	return *saved, nil
}

func (s *Service) DeleteBatch(ctx context.Context, id string) error {
	if _, err := requireRole(ctx, adminOnly...); err != nil {
		return err
	}
	if err := s.repo.Batches().Delete(ctx, id); err != nil {
		return err
	}
	s.invalidateDashboard(ctx)
	s.audit(ctx, "batch_delete", "drug_batch", id)
	return nil
}
