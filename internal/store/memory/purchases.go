package memory

import (
	"context"
	"fmt"
	"sort"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
)

func (s *Store) CreatePurchase(_ context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	if len(purchase.Items) == 0 {
		return nil, fmt.Errorf("purchase without items: %w", store.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.purchases[purchase.ID]; exists {
		return nil, fmt.Errorf("purchase %s already exists: %w", purchase.ID, store.ErrConflict)
	}
	if !s.suppliers.existsLocked(purchase.SupplierID) {
		return nil, fmt.Errorf("supplier %s: %w", purchase.SupplierID, store.ErrNotFound)
	}
	for _, item := range purchase.Items {
		if !s.drugs.existsLocked(item.DrugID) {
			return nil, fmt.Errorf("drug %s: %w", item.DrugID, store.ErrNotFound)
		}
		if item.DrugBatchID != nil && !s.batches.existsLocked(*item.DrugBatchID) {
			return nil, fmt.Errorf("drug batch %s: %w", *item.DrugBatchID, store.ErrNotFound)
		}
	}

	s.purchases[purchase.ID] = clonePurchase(purchase)
	out := clonePurchase(purchase)
	return &out, nil
}

func (s *Store) GetPurchase(_ context.Context, id string) (*domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	purchase, ok := s.purchases[id]
	if !ok {
		return nil, fmt.Errorf("purchase %s: %w", id, store.ErrNotFound)
	}
	out := clonePurchase(purchase)
	return &out, nil
}

func (s *Store) ListPurchases(_ context.Context, status string) ([]domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Purchase, 0, len(s.purchases))
	for _, purchase := range s.purchases {
		if status != "" && purchase.Status != status {
			continue
		}
		out = append(out, clonePurchase(purchase))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].OrderedAt.After(out[j].OrderedAt)
	})
	return out, nil
}

func (s *Store) ReceivePurchase(_ context.Context, receipt store.PurchaseReceipt) (*domain.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purchase, ok := s.purchases[receipt.PurchaseID]
	if !ok {
		return nil, fmt.Errorf("purchase %s: %w", receipt.PurchaseID, store.ErrNotFound)
	}
	if purchase.Status != domain.PurchaseStatusOrdered {
		return nil, fmt.Errorf("purchase %s is %s: %w", purchase.ID, purchase.Status, store.ErrInvalidState)
	}

	for _, item := range purchase.Items {
		if item.DrugBatchID != nil {
			batch, ok := s.batches.rows[*item.DrugBatchID]
			if !ok {
				return nil, fmt.Errorf("drug batch %s: %w", *item.DrugBatchID, store.ErrNotFound)
			}
			if batch.DrugID != item.DrugID {
				return nil, fmt.Errorf("drug batch %s belongs to another drug: %w", batch.ID, store.ErrInvalidInput)
			}
			continue
		}
		newID := receipt.NewBatchIDs[item.ID]
		if newID == "" || s.batches.existsLocked(newID) {
			return nil, fmt.Errorf("no batch id for purchase item %s: %w", item.ID, store.ErrInvalidInput)
		}
	}

	items := make([]domain.PurchaseItem, len(purchase.Items))
	for i, item := range purchase.Items {
		if item.DrugBatchID != nil {
			batch := s.batches.rows[*item.DrugBatchID]
			batch.Quantity += item.Quantity
			batch.UpdatedAt = receipt.At
			s.batches.rows[batch.ID] = batch
		} else {
			newID := receipt.NewBatchIDs[item.ID]
			supplierID := purchase.SupplierID
			s.batches.rows[newID] = domain.DrugBatch{
				ID:           newID,
				DrugID:       item.DrugID,
				SupplierID:   &supplierID,
				BatchNumber:  item.BatchNumber,
				ExpiryDate:   item.ExpiryDate,
				Quantity:     item.Quantity,
				CostPrice:    item.UnitCost,
				SellingPrice: item.SellingPrice,
				ReceivedAt:   receipt.At,
				CreatedAt:    receipt.At,
				UpdatedAt:    receipt.At,
			}
			item.DrugBatchID = &newID
		}
		items[i] = item
	}

	receivedBy := receipt.ReceivedBy
	receivedAt := receipt.At
	purchase.Items = items
	purchase.Status = domain.PurchaseStatusReceived
	purchase.ReceivedBy = &receivedBy
	purchase.ReceivedAt = &receivedAt
	s.purchases[purchase.ID] = purchase

	out := clonePurchase(purchase)
	return &out, nil
}

func (s *Store) DeletePurchase(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	purchase, ok := s.purchases[id]
	if !ok {
		return fmt.Errorf("purchase %s: %w", id, store.ErrNotFound)
	}
	if purchase.Status != domain.PurchaseStatusOrdered {
		return fmt.Errorf("purchase %s is %s: %w", id, purchase.Status, store.ErrInvalidState)
	}
	delete(s.purchases, id)
	return nil
}

func clonePurchase(src domain.Purchase) domain.Purchase {
	dst := src
	dst.Items = append([]domain.PurchaseItem(nil), src.Items...)
	return dst
}
