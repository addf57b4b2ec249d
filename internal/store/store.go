package store

import (
	"context"
	"errors"
	"time"

	"pharmapos/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrBatchExpired      = errors.New("batch expired")
	ErrInvalidState      = errors.New("invalid state")
)

// Entity is implemented by every record kept in a Collection.
type Entity interface {
	EntityKey() string
}

// Collection is the per-entity get/list/create/update/delete surface.
// Update replaces every mutable column of the stored row; Delete reports
// ErrConflict while other rows still reference the entity.
type Collection[T Entity] interface {
	Get(ctx context.Context, id string) (*T, error)
	List(ctx context.Context) ([]T, error)
	Create(ctx context.Context, entity T) (*T, error)
	Update(ctx context.Context, entity T) (*T, error)
	Delete(ctx context.Context, id string) error
}

type DashboardQuery struct {
	DayStart          time.Time
	DayEnd            time.Time
	LowStockThreshold int
	Today             time.Time
	ExpiryCutoff      time.Time
}

type SaleStatusChange struct {
	SaleID  string
	From    string
	To      string
	Restock bool
	At      time.Time
}

type PurchaseReceipt struct {
	PurchaseID string
	ReceivedBy string
	At         time.Time
	// NewBatchIDs supplies ids for lines that do not top up an existing batch,
	// keyed by purchase item id.
	NewBatchIDs map[string]string
}

type Repository interface {
	Users() Collection[domain.User]
	Categories() Collection[domain.Category]
	Suppliers() Collection[domain.Supplier]
	Customers() Collection[domain.Customer]
	Drugs() Collection[domain.Drug]
	Batches() Collection[domain.DrugBatch]
	Settings() Collection[domain.Setting]

	FindUserByUsername(ctx context.Context, username string) (*domain.User, error)
	CountUsers(ctx context.Context) (int, error)

	SearchDrugs(ctx context.Context, query string, limit int) ([]domain.Drug, error)
	BatchesForDrug(ctx context.Context, drugID string) ([]domain.DrugBatch, error)
	BatchesWithQuantityAtMost(ctx context.Context, threshold int) ([]domain.DrugBatch, error)
	BatchesExpiringBefore(ctx context.Context, cutoff time.Time) ([]domain.DrugBatch, error)

	// CommitSale inserts the sale, its items in order and decrements every
	// referenced batch as one unit. Nothing is persisted when it fails.
	CommitSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	FindSaleByIdempotencyKey(ctx context.Context, key string) (*domain.Sale, error)
	ListSaleItems(ctx context.Context, saleID string) ([]domain.SaleItem, error)
	SalesInRange(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error)
	SetSaleStatus(ctx context.Context, change SaleStatusChange) (*domain.Sale, error)

	CreatePurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error)
	GetPurchase(ctx context.Context, id string) (*domain.Purchase, error)
	ListPurchases(ctx context.Context, status string) ([]domain.Purchase, error)
	ReceivePurchase(ctx context.Context, receipt PurchaseReceipt) (*domain.Purchase, error)
	DeletePurchase(ctx context.Context, id string) error

	DashboardAggregate(ctx context.Context, query DashboardQuery) (domain.DashboardStats, error)

	Close() error
}
