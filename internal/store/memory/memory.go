package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
)

// Store is an in-process Repository. One lock guards every collection so the
// sale and purchase writes see and change a consistent snapshot.
type Store struct {
	mu sync.RWMutex

	users      *collection[domain.User]
	categories *collection[domain.Category]
	suppliers  *collection[domain.Supplier]
	customers  *collection[domain.Customer]
	drugs      *collection[domain.Drug]
	batches    *collection[domain.DrugBatch]
	settings   *collection[domain.Setting]

	sales          map[string]domain.Sale
	salesByReceipt map[string]string
	salesByIdemKey map[string]string
	purchases      map[string]domain.Purchase
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	s := &Store{
		sales:          make(map[string]domain.Sale),
		salesByReceipt: make(map[string]string),
		salesByIdemKey: make(map[string]string),
		purchases:      make(map[string]domain.Purchase),
	}

	s.users = newCollection(&s.mu, "user", func(a, b domain.User) bool { return a.Username < b.Username })
	s.users.duplicate = func(existing, candidate domain.User) bool {
		return strings.EqualFold(existing.Username, candidate.Username)
	}
	s.users.preserve = func(stored, candidate domain.User) domain.User {
		candidate.Username = stored.Username
		candidate.CreatedAt = stored.CreatedAt
		return candidate
	}
	s.users.inUse = func(id string) bool {
		for _, sale := range s.sales {
			if sale.UserID == id {
				return true
			}
		}
		for _, purchase := range s.purchases {
			if purchase.CreatedBy == id || (purchase.ReceivedBy != nil && *purchase.ReceivedBy == id) {
				return true
			}
		}
		return false
	}

	s.categories = newCollection(&s.mu, "category", func(a, b domain.Category) bool { return a.Name < b.Name })
	s.categories.duplicate = func(existing, candidate domain.Category) bool {
		return strings.EqualFold(existing.Name, candidate.Name)
	}
	s.categories.preserve = keepCreatedAt(func(c domain.Category) time.Time { return c.CreatedAt }, func(c *domain.Category, t time.Time) { c.CreatedAt = t })
	s.categories.inUse = func(id string) bool {
		for _, drug := range s.drugs.rows {
			if drug.CategoryID != nil && *drug.CategoryID == id {
				return true
			}
		}
		return false
	}

	s.suppliers = newCollection(&s.mu, "supplier", func(a, b domain.Supplier) bool { return a.Name < b.Name })
	s.suppliers.preserve = keepCreatedAt(func(v domain.Supplier) time.Time { return v.CreatedAt }, func(v *domain.Supplier, t time.Time) { v.CreatedAt = t })
	s.suppliers.inUse = func(id string) bool {
		for _, batch := range s.batches.rows {
			if batch.SupplierID != nil && *batch.SupplierID == id {
				return true
			}
		}
		for _, purchase := range s.purchases {
			if purchase.SupplierID == id {
				return true
			}
		}
		return false
	}

	s.customers = newCollection(&s.mu, "customer", func(a, b domain.Customer) bool { return a.Name < b.Name })
	s.customers.preserve = keepCreatedAt(func(v domain.Customer) time.Time { return v.CreatedAt }, func(v *domain.Customer, t time.Time) { v.CreatedAt = t })
	s.customers.inUse = func(id string) bool {
		for _, sale := range s.sales {
			if sale.CustomerID != nil && *sale.CustomerID == id {
				return true
			}
		}
		return false
	}

	s.drugs = newCollection(&s.mu, "drug", func(a, b domain.Drug) bool { return a.Name < b.Name })
	s.drugs.references = func(d domain.Drug) bool {
		return d.CategoryID == nil || s.categories.existsLocked(*d.CategoryID)
	}
	s.drugs.duplicate = func(existing, candidate domain.Drug) bool {
		return candidate.Barcode != "" && existing.Barcode == candidate.Barcode
	}
	s.drugs.preserve = keepCreatedAt(func(v domain.Drug) time.Time { return v.CreatedAt }, func(v *domain.Drug, t time.Time) { v.CreatedAt = t })
	s.drugs.inUse = func(id string) bool {
		for _, batch := range s.batches.rows {
			if batch.DrugID == id {
				return true
			}
		}
		for _, purchase := range s.purchases {
			for _, item := range purchase.Items {
				if item.DrugID == id {
					return true
				}
			}
		}
		return false
	}

	s.batches = newCollection(&s.mu, "drug batch", lessBatchByExpiry)
	s.batches.references = func(b domain.DrugBatch) bool {
		if !s.drugs.existsLocked(b.DrugID) {
			return false
		}
		return b.SupplierID == nil || s.suppliers.existsLocked(*b.SupplierID)
	}
	s.batches.preserve = func(stored, candidate domain.DrugBatch) domain.DrugBatch {
		candidate.DrugID = stored.DrugID
		candidate.Quantity = stored.Quantity
		candidate.ReceivedAt = stored.ReceivedAt
		candidate.CreatedAt = stored.CreatedAt
		return candidate
	}
	s.batches.inUse = func(id string) bool {
		for _, sale := range s.sales {
			for _, item := range sale.Items {
				if item.DrugBatchID == id {
					return true
				}
			}
		}
		for _, purchase := range s.purchases {
			for _, item := range purchase.Items {
				if item.DrugBatchID != nil && *item.DrugBatchID == id {
					return true
				}
			}
		}
		return false
	}

	s.settings = newCollection(&s.mu, "setting", func(a, b domain.Setting) bool { return a.Key < b.Key })

	return s
}

func keepCreatedAt[T any](get func(T) time.Time, set func(*T, time.Time)) func(stored, candidate T) T {
	return func(stored, candidate T) T {
		set(&candidate, get(stored))
		return candidate
	}
}

func lessBatchByExpiry(a, b domain.DrugBatch) bool {
	switch {
	case a.ExpiryDate == nil && b.ExpiryDate == nil:
		return a.BatchNumber < b.BatchNumber
	case a.ExpiryDate == nil:
		return false
	case b.ExpiryDate == nil:
		return true
	case a.ExpiryDate.Equal(*b.ExpiryDate):
		return a.BatchNumber < b.BatchNumber
	default:
		return a.ExpiryDate.Before(*b.ExpiryDate)
	}
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

func (s *Store) Close() error { return nil }

func (s *Store) FindUserByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users.rows {
		if strings.EqualFold(user.Username, username) {
			found := user
			return &found, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", username, store.ErrNotFound)
}

func (s *Store) CountUsers(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users.rows), nil
}

func (s *Store) SearchDrugs(_ context.Context, query string, limit int) ([]domain.Drug, error) {
	needle := strings.ToLower(strings.TrimSpace(query))

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.drugs.listLocked(func(d domain.Drug) bool {
		if needle == "" {
			return true
		}
		for _, field := range []string{d.Name, d.GenericName, d.Brand, d.Barcode} {
			if strings.Contains(strings.ToLower(field), needle) {
				return true
			}
		}
		return false
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) BatchesForDrug(_ context.Context, drugID string) ([]domain.DrugBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.batches.listLocked(func(b domain.DrugBatch) bool { return b.DrugID == drugID }), nil
}

func (s *Store) BatchesWithQuantityAtMost(_ context.Context, threshold int) ([]domain.DrugBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.batches.listLocked(func(b domain.DrugBatch) bool { return b.Quantity <= threshold })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Quantity < out[j].Quantity })
	return out, nil
}

func (s *Store) BatchesExpiringBefore(_ context.Context, cutoff time.Time) ([]domain.DrugBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.batches.listLocked(func(b domain.DrugBatch) bool {
		return b.Quantity > 0 && b.ExpiryDate != nil && !b.ExpiryDate.After(cutoff)
	}), nil
}

func (s *Store) DashboardAggregate(_ context.Context, q store.DashboardQuery) (domain.DashboardStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.DashboardStats{TodaySalesTotal: decimal.Zero}
	for _, sale := range s.sales {
		if sale.Status != domain.SaleStatusCompleted {
			continue
		}
		if sale.CreatedAt.Before(q.DayStart) || !sale.CreatedAt.Before(q.DayEnd) {
			continue
		}
		stats.TodaySalesTotal = stats.TodaySalesTotal.Add(sale.TotalAmount)
		stats.TodaySalesCount++
	}
	for _, batch := range s.batches.rows {
		stats.TotalStockUnits += int64(batch.Quantity)
		if batch.Quantity <= q.LowStockThreshold {
			stats.LowStockCount++
		}
		if batch.ExpiryDate == nil || batch.Quantity == 0 {
			continue
		}
		switch {
		case batch.ExpiryDate.Before(q.Today):
			stats.ExpiredCount++
		case !batch.ExpiryDate.After(q.ExpiryCutoff):
			stats.ExpiringSoonCount++
		}
	}
	return stats, nil
}
