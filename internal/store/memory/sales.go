package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
)

func (s *Store) CommitSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, fmt.Errorf("sale without items: %w", store.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sales[sale.ID]; exists {
		return nil, fmt.Errorf("sale %s already exists: %w", sale.ID, store.ErrConflict)
	}
	if _, exists := s.salesByReceipt[sale.ReceiptNumber]; exists {
		return nil, fmt.Errorf("receipt number %s already used: %w", sale.ReceiptNumber, store.ErrConflict)
	}
	if sale.IdempotencyKey != nil {
		if _, exists := s.salesByIdemKey[*sale.IdempotencyKey]; exists {
			return nil, fmt.Errorf("idempotency key already used: %w", store.ErrConflict)
		}
	}
	if !s.users.existsLocked(sale.UserID) {
		return nil, fmt.Errorf("user %s: %w", sale.UserID, store.ErrNotFound)
	}
	if sale.CustomerID != nil && !s.customers.existsLocked(*sale.CustomerID) {
		return nil, fmt.Errorf("customer %s: %w", *sale.CustomerID, store.ErrNotFound)
	}

	// Every line is checked against a working copy before anything changes.
	today := domain.StartOfDay(sale.CreatedAt)
	remaining := make(map[string]int, len(sale.Items))
	for _, item := range sale.Items {
		batch, ok := s.batches.rows[item.DrugBatchID]
		if !ok {
			return nil, fmt.Errorf("drug batch %s: %w", item.DrugBatchID, store.ErrNotFound)
		}
		if batch.ExpiryDate != nil && batch.ExpiryDate.Before(today) {
			return nil, fmt.Errorf("drug batch %s: %w", item.DrugBatchID, store.ErrBatchExpired)
		}
		left, seen := remaining[item.DrugBatchID]
		if !seen {
			left = batch.Quantity
		}
		if item.Quantity < 1 || left < item.Quantity {
			return nil, fmt.Errorf("drug batch %s has %d, requested %d: %w", item.DrugBatchID, left, item.Quantity, store.ErrInsufficientStock)
		}
		remaining[item.DrugBatchID] = left - item.Quantity
	}

	for batchID, qty := range remaining {
		batch := s.batches.rows[batchID]
		batch.Quantity = qty
		batch.UpdatedAt = sale.CreatedAt
		s.batches.rows[batchID] = batch
	}

	stored := cloneSale(sale)
	s.sales[sale.ID] = stored
	s.salesByReceipt[sale.ReceiptNumber] = sale.ID
	if sale.IdempotencyKey != nil {
		s.salesByIdemKey[*sale.IdempotencyKey] = sale.ID
	}

	out := cloneSale(stored)
	return &out, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, fmt.Errorf("sale %s: %w", id, store.ErrNotFound)
	}
	out := cloneSale(sale)
	return &out, nil
}

func (s *Store) FindSaleByIdempotencyKey(_ context.Context, key string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.salesByIdemKey[key]
	if !ok {
		return nil, fmt.Errorf("sale with idempotency key: %w", store.ErrNotFound)
	}
	out := cloneSale(s.sales[id])
	return &out, nil
}

func (s *Store) ListSaleItems(_ context.Context, saleID string) ([]domain.SaleItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[saleID]
	if !ok {
		return nil, fmt.Errorf("sale %s: %w", saleID, store.ErrNotFound)
	}
	return cloneSale(sale).Items, nil
}

func (s *Store) SalesInRange(_ context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Sale, 0, 32)
	for _, sale := range s.sales {
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		out = append(out, cloneSale(sale))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) SetSaleStatus(_ context.Context, change store.SaleStatusChange) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[change.SaleID]
	if !ok {
		return nil, fmt.Errorf("sale %s: %w", change.SaleID, store.ErrNotFound)
	}
	if sale.Status != change.From {
		return nil, fmt.Errorf("sale %s is %s: %w", sale.ID, sale.Status, store.ErrInvalidState)
	}

	if change.Restock {
		for _, item := range sale.Items {
			if !s.batches.existsLocked(item.DrugBatchID) {
				return nil, fmt.Errorf("drug batch %s: %w", item.DrugBatchID, store.ErrNotFound)
			}
		}
		for _, item := range sale.Items {
			batch := s.batches.rows[item.DrugBatchID]
			batch.Quantity += item.Quantity
			batch.UpdatedAt = change.At
			s.batches.rows[item.DrugBatchID] = batch
		}
	}

	sale.Status = change.To
	sale.UpdatedAt = change.At
	s.sales[sale.ID] = sale

	out := cloneSale(sale)
	return &out, nil
}

func cloneSale(src domain.Sale) domain.Sale {
	dst := src
	dst.Items = append([]domain.SaleItem(nil), src.Items...)
	return dst
}
