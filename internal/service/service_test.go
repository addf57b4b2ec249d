package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/store/memory"
	"pharmapos/backend/internal/store/storetest"
	"pharmapos/backend/internal/telemetry"
)

const adminID = "usr_boss"

type fixture struct {
	svc     *Service
	repo    *memory.Store
	metrics *telemetry.Metrics
	cache   *recordingCache
}

func newFixture(t *testing.T, tweak ...func(*Options)) fixture {
	t.Helper()
	repo := memory.New()
	storetest.Seed(t, repo)
	_, err := repo.Users().Create(context.Background(), domain.User{
		ID: adminID, Username: "boss", PasswordHash: "x", Role: domain.RoleAdmin, Active: true,
		CreatedAt: storetest.Now, UpdatedAt: storetest.Now,
	})
	require.NoError(t, err)

	f := fixture{repo: repo, metrics: telemetry.NewMetrics(), cache: &recordingCache{}}
	opts := Options{
		Cache:   f.cache,
		Metrics: f.metrics,
		Now:     func() time.Time { return storetest.Now },
	}
	for _, fn := range tweak {
		fn(&opts)
	}
	f.svc = New(repo, opts)
	return f
}

func cashier() context.Context {
	return WithActor(context.Background(), domain.Actor{UserID: storetest.UserID, Username: "counter", Role: domain.RoleCashier})
}

func admin() context.Context {
	return WithActor(context.Background(), domain.Actor{UserID: adminID, Username: "boss", Role: domain.RoleAdmin})
}

func days(n int) *int { return &n }

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

// saleOf builds a balanced request for qty units of batchID at 12.50 each.
func saleOf(batchID string, qty int) domain.SaleRequest {
	total := dec("12.50").Mul(decimal.NewFromInt(int64(qty)))
	return domain.SaleRequest{
		Items:         []domain.SaleLine{{DrugBatchID: batchID, Quantity: qty, UnitPrice: dec("12.50"), TotalPrice: total}},
		Subtotal:      total,
		TaxAmount:     decimal.Zero,
		TotalAmount:   total,
		PaymentMethod: "Cash",
	}
}

func stock(t *testing.T, f fixture, batchID string) int {
	t.Helper()
	batch, err := f.repo.Batches().Get(context.Background(), batchID)
	require.NoError(t, err)
	return batch.Quantity
}

func TestCommitSaleDecrementsStockAndReturnsChange(t *testing.T) {
	f := newFixture(t)
	req := saleOf(storetest.BatchPlenty, 10)
	req.AmountReceived = decPtr("155.00")

	receipt, err := f.svc.CommitSale(cashier(), req)
	require.NoError(t, err)

	assert.False(t, receipt.Duplicate)
	assert.True(t, receipt.Change.Equal(dec("30")), receipt.Change.String())
	assert.True(t, receipt.AmountReceived.Equal(dec("155")))
	assert.Regexp(t, `^RX-2026-\d{13}-[0-9A-Z]{4}$`, receipt.Sale.ReceiptNumber)
	assert.Equal(t, "cash", receipt.Sale.PaymentMethod)
	assert.Equal(t, storetest.UserID, receipt.Sale.UserID)
	assert.Equal(t, domain.SaleStatusCompleted, receipt.Sale.Status)
	assert.True(t, receipt.Sale.DiscountAmount.IsZero())
	require.Len(t, receipt.Sale.Items, 1)
	assert.Equal(t, 90, stock(t, f, storetest.BatchPlenty))

	stored, err := f.svc.GetSale(context.Background(), receipt.Sale.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Items, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SalesCommitted))
	assert.Equal(t, 1, f.cache.invalidations)
}

func TestCommitSaleOversellLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	plenty := saleOf(storetest.BatchPlenty, 2)
	few := saleOf(storetest.BatchFew, 8)
	req := plenty
	req.Items = append(req.Items, few.Items...)
	req.Subtotal = plenty.Subtotal.Add(few.Subtotal)
	req.TotalAmount = req.Subtotal

	_, err := f.svc.CommitSale(cashier(), req)
	require.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.Equal(t, "insufficient_stock", ErrorCode(err))

	assert.Equal(t, 100, stock(t, f, storetest.BatchPlenty))
	assert.Equal(t, 5, stock(t, f, storetest.BatchFew))
	sales, err := f.svc.ListSales(context.Background(), "", "")
	require.NoError(t, err)
	assert.Empty(t, sales)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SaleFailures.WithLabelValues("insufficient_stock")))
}

func TestCommitSaleMissingBatchAbortsEverything(t *testing.T) {
	f := newFixture(t)
	req := saleOf(storetest.BatchPlenty, 3)
	ghost := saleOf("bat_ghost", 1)
	req.Items = append(req.Items, ghost.Items...)
	req.Subtotal = req.Subtotal.Add(ghost.Subtotal)
	req.TotalAmount = req.Subtotal

	_, err := f.svc.CommitSale(cashier(), req)
	require.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 100, stock(t, f, storetest.BatchPlenty))
}

func TestCommitSaleRejectsExpiredBatch(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CommitSale(cashier(), saleOf(storetest.BatchExpired, 1))
	require.ErrorIs(t, err, store.ErrBatchExpired)
	assert.Equal(t, 10, stock(t, f, storetest.BatchExpired))
}

func TestCommitSaleIdempotentReplay(t *testing.T) {
	f := newFixture(t)
	req := saleOf(storetest.BatchPlenty, 4)
	req.IdempotencyKey = "terminal-1-0001"

	first, err := f.svc.CommitSale(cashier(), req)
	require.NoError(t, err)
	second, err := f.svc.CommitSale(cashier(), req)
	require.NoError(t, err)

	assert.False(t, first.Duplicate)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Sale.ID, second.Sale.ID)
	assert.Equal(t, first.Sale.ReceiptNumber, second.Sale.ReceiptNumber)
	assert.Equal(t, 96, stock(t, f, storetest.BatchPlenty))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DuplicateSales))

	found, err := f.svc.LookupSaleByIdempotencyKey(context.Background(), "terminal-1-0001")
	require.NoError(t, err)
	assert.Equal(t, first.Sale.ID, found.ID)

	_, err = f.svc.LookupSaleByIdempotencyKey(context.Background(), "unknown")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCommitSaleConcurrentSameKeyCommitsOnce(t *testing.T) {
	f := newFixture(t)
	req := saleOf(storetest.BatchPlenty, 1)
	req.IdempotencyKey = "double-tap"

	var wg sync.WaitGroup
	receipts := make([]domain.SaleReceipt, 4)
	errs := make([]error, 4)
	for i := range receipts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			receipts[i], errs[i] = f.svc.CommitSale(cashier(), req)
		}(i)
	}
	wg.Wait()

	fresh := 0
	for i := range receipts {
		require.NoError(t, errs[i])
		assert.Equal(t, receipts[0].Sale.ID, receipts[i].Sale.ID)
		if !receipts[i].Duplicate {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)
	assert.Equal(t, 99, stock(t, f, storetest.BatchPlenty))
}

func TestCommitSaleConcurrentNeverOversells(t *testing.T) {
	f := newFixture(t)
	const buyers = 12

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CommitSale(cashier(), saleOf(storetest.BatchFew, 1))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			assert.ErrorIs(t, err, store.ErrInsufficientStock)
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 0, stock(t, f, storetest.BatchFew))
}

func TestCommitSaleValidation(t *testing.T) {
	cases := []struct {
		name  string
		field string
		edit  func(*domain.SaleRequest)
	}{
		{"empty cart", "items", func(r *domain.SaleRequest) { r.Items = nil }},
		{"zero quantity", "items[0].quantity", func(r *domain.SaleRequest) { r.Items[0].Quantity = 0 }},
		{"blank batch", "items[0].drugBatchId", func(r *domain.SaleRequest) { r.Items[0].DrugBatchID = "  " }},
		{"negative price", "items[0].unitPrice", func(r *domain.SaleRequest) { r.Items[0].UnitPrice = dec("-1") }},
		{"line total mismatch", "items[0].totalPrice", func(r *domain.SaleRequest) { r.Items[0].TotalPrice = dec("20") }},
		{"subtotal mismatch", "subtotal", func(r *domain.SaleRequest) { r.Subtotal = dec("24") }},
		{"total mismatch", "totalAmount", func(r *domain.SaleRequest) { r.TaxAmount = dec("1.00") }},
		{"negative discount", "discountAmount", func(r *domain.SaleRequest) { r.DiscountAmount = decPtr("-2") }},
		{"negative tender", "amountReceived", func(r *domain.SaleRequest) { r.AmountReceived = decPtr("-5") }},
		{"missing payment method", "paymentMethod", func(r *domain.SaleRequest) { r.PaymentMethod = " " }},
		{"sub-cent unit price", "items[0].unitPrice", func(r *domain.SaleRequest) {
			r.Items[0] = domain.SaleLine{DrugBatchID: storetest.BatchPlenty, Quantity: 3, UnitPrice: dec("0.335"), TotalPrice: dec("1.01")}
			r.Subtotal, r.TotalAmount = dec("1.01"), dec("1.01")
		}},
		{"sub-cent line total", "items[0].totalPrice", func(r *domain.SaleRequest) {
			r.Items[0] = domain.SaleLine{DrugBatchID: storetest.BatchPlenty, Quantity: 1, UnitPrice: dec("0.5"), TotalPrice: dec("0.505")}
		}},
		{"sub-cent tax", "taxAmount", func(r *domain.SaleRequest) { r.TaxAmount = dec("0.001") }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			req := saleOf(storetest.BatchPlenty, 2)
			tc.edit(&req)

			_, err := f.svc.CommitSale(cashier(), req)
			require.ErrorIs(t, err, store.ErrInvalidInput)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
			assert.Equal(t, 100, stock(t, f, storetest.BatchPlenty))
		})
	}
}

// clashingRepo fails the first clashes sale commits with a uniqueness error.
// With commitFirst set, the first attempt is stored before it reports the
// clash, as when a concurrent request with the same key wins.
type clashingRepo struct {
	store.Repository
	clashes     int
	commitFirst bool
	receipts    []string
}

func (r *clashingRepo) CommitSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	r.receipts = append(r.receipts, sale.ReceiptNumber)
	if len(r.receipts) > r.clashes {
		return r.Repository.CommitSale(ctx, sale)
	}
	if r.commitFirst {
		if _, err := r.Repository.CommitSale(ctx, sale); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("insert sale: %w", store.ErrConflict)
}

func TestCommitSaleRetriesReceiptClash(t *testing.T) {
	f := newFixture(t)
	repo := &clashingRepo{Repository: f.repo, clashes: 1}
	svc := New(repo, Options{Metrics: telemetry.NewMetrics(), Now: func() time.Time { return storetest.Now }})

	receipt, err := svc.CommitSale(cashier(), saleOf(storetest.BatchPlenty, 4))
	require.NoError(t, err)
	require.Len(t, repo.receipts, 2)
	assert.NotEqual(t, repo.receipts[0], repo.receipts[1])
	assert.Equal(t, repo.receipts[1], receipt.Sale.ReceiptNumber)
	assert.False(t, receipt.Duplicate)
	assert.Equal(t, 96, stock(t, f, storetest.BatchPlenty))
}

func TestCommitSaleReceiptClashTwiceFails(t *testing.T) {
	f := newFixture(t)
	repo := &clashingRepo{Repository: f.repo, clashes: 2}
	svc := New(repo, Options{Metrics: telemetry.NewMetrics(), Now: func() time.Time { return storetest.Now }})

	_, err := svc.CommitSale(cashier(), saleOf(storetest.BatchPlenty, 4))
	require.ErrorIs(t, err, store.ErrConflict)
	assert.Equal(t, "conflict", ErrorCode(err))
	assert.Len(t, repo.receipts, 2)
	assert.Equal(t, 100, stock(t, f, storetest.BatchPlenty))
}

func TestCommitSaleClashWithSameKeyReturnsStoredSale(t *testing.T) {
	f := newFixture(t)
	repo := &clashingRepo{Repository: f.repo, clashes: 1, commitFirst: true}
	svc := New(repo, Options{Metrics: telemetry.NewMetrics(), Now: func() time.Time { return storetest.Now }})
	req := saleOf(storetest.BatchPlenty, 4)
	req.IdempotencyKey = "till-1-0042"

	receipt, err := svc.CommitSale(cashier(), req)
	require.NoError(t, err)
	assert.True(t, receipt.Duplicate)
	assert.Len(t, repo.receipts, 1)
	assert.Equal(t, repo.receipts[0], receipt.Sale.ReceiptNumber)
	assert.Equal(t, 96, stock(t, f, storetest.BatchPlenty))
}

func TestCommitSaleWithTaxAndDiscount(t *testing.T) {
	f := newFixture(t)
	req := saleOf(storetest.BatchPlenty, 2)
	req.TaxAmount = dec("2.50")
	req.DiscountAmount = decPtr("1.00")
	req.TotalAmount = dec("26.50")

	receipt, err := f.svc.CommitSale(cashier(), req)
	require.NoError(t, err)
	assert.True(t, receipt.Change.IsZero())
	assert.True(t, receipt.Sale.TotalAmount.Equal(dec("26.50")))
}

func TestCommitSaleUnknownCustomer(t *testing.T) {
	f := newFixture(t)
	req := saleOf(storetest.BatchPlenty, 1)
	ghost := "cus_ghost"
	req.CustomerID = &ghost

	_, err := f.svc.CommitSale(cashier(), req)
	require.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 100, stock(t, f, storetest.BatchPlenty))
}

func TestCommitSaleUnderpayment(t *testing.T) {
	f := newFixture(t)
	req := saleOf(storetest.BatchPlenty, 2)
	req.AmountReceived = decPtr("20.00")

	receipt, err := f.svc.CommitSale(cashier(), req)
	require.NoError(t, err)
	assert.True(t, receipt.Change.Equal(dec("-5")), receipt.Change.String())

	strict := newFixture(t, func(o *Options) { o.RejectUnderpayment = true })
	_, err = strict.svc.CommitSale(cashier(), req)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "amountReceived", verr.Field)
	assert.Equal(t, 100, stock(t, strict, storetest.BatchPlenty))
}

func TestCommitSaleRequiresCaller(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CommitSale(context.Background(), saleOf(storetest.BatchPlenty, 1))
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestRefundAndCancel(t *testing.T) {
	f := newFixture(t)
	receipt, err := f.svc.CommitSale(cashier(), saleOf(storetest.BatchPlenty, 6))
	require.NoError(t, err)
	require.Equal(t, 94, stock(t, f, storetest.BatchPlenty))

	_, err = f.svc.RefundSale(cashier(), receipt.Sale.ID, domain.SaleStatusRequest{})
	require.ErrorIs(t, err, ErrForbidden)

	refunded, err := f.svc.RefundSale(admin(), receipt.Sale.ID, domain.SaleStatusRequest{Reason: "wrong strength"})
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusRefunded, refunded.Status)
	assert.Equal(t, 100, stock(t, f, storetest.BatchPlenty))

	_, err = f.svc.CancelSale(admin(), receipt.Sale.ID, domain.SaleStatusRequest{})
	require.ErrorIs(t, err, store.ErrInvalidState)
	assert.Equal(t, 100, stock(t, f, storetest.BatchPlenty))

	_, err = f.svc.CancelSale(admin(), "sale_ghost", domain.SaleStatusRequest{})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListSalesRange(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CommitSale(cashier(), saleOf(storetest.BatchPlenty, 1))
	require.NoError(t, err)

	sales, err := f.svc.ListSales(context.Background(), "2026-03-14", "2026-03-14")
	require.NoError(t, err)
	assert.Len(t, sales, 1)

	sales, err = f.svc.ListSales(context.Background(), "2026-03-15", "")
	require.NoError(t, err)
	assert.Empty(t, sales)

	_, err = f.svc.ListSales(context.Background(), "2026-03-14", "2026-03-01")
	assert.ErrorIs(t, err, store.ErrInvalidInput)
	_, err = f.svc.ListSales(context.Background(), "14/03/2026", "")
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestPurchaseReceiveIncrementsStock(t *testing.T) {
	f := newFixture(t)
	existing := storetest.BatchFew
	req := domain.PurchaseCreateRequest{
		SupplierID:    storetest.SupplierID,
		InvoiceNumber: "INV-77",
		Items: []domain.PurchaseLine{
			{DrugID: storetest.DrugID, DrugBatchID: &existing, Quantity: 30, UnitCost: dec("8.00"), SellingPrice: dec("12.50")},
			{DrugID: storetest.OtherDrugID, BatchNumber: "C-7", ExpiryDate: &domain.Date{Time: storetest.Now.AddDate(1, 0, 0)}, Quantity: 12, UnitCost: dec("2.10"), SellingPrice: dec("4.00")},
		},
	}

	_, err := f.svc.CreatePurchase(cashier(), req)
	require.ErrorIs(t, err, ErrForbidden)

	purchase, err := f.svc.CreatePurchase(admin(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseStatusOrdered, purchase.Status)
	assert.True(t, purchase.TotalAmount.Equal(dec("265.20")), purchase.TotalAmount.String())
	assert.Equal(t, 5, stock(t, f, storetest.BatchFew))

	received, err := f.svc.ReceivePurchase(admin(), purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseStatusReceived, received.Status)
	assert.Equal(t, 35, stock(t, f, storetest.BatchFew))
	require.NotNil(t, received.Items[1].DrugBatchID)
	assert.Equal(t, 12, stock(t, f, *received.Items[1].DrugBatchID))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PurchasesReceived))

	_, err = f.svc.ReceivePurchase(admin(), purchase.ID)
	assert.ErrorIs(t, err, store.ErrInvalidState)
	assert.ErrorIs(t, f.svc.DeletePurchase(admin(), purchase.ID), store.ErrInvalidState)

	ordered, err := f.svc.ListPurchases(admin(), "ordered")
	require.NoError(t, err)
	assert.Empty(t, ordered)
	_, err = f.svc.ListPurchases(admin(), "lost")
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestPurchaseNewBatchNeedsNumber(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreatePurchase(admin(), domain.PurchaseCreateRequest{
		SupplierID: storetest.SupplierID,
		Items:      []domain.PurchaseLine{{DrugID: storetest.DrugID, Quantity: 1, UnitCost: dec("1")}},
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "items[0].batchNumber", verr.Field)
}

func TestListBatchesFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	low, err := f.svc.ListBatches(ctx, BatchFilter{LowStock: true})
	require.NoError(t, err)
	assert.Len(t, low, 3)

	_, err = f.svc.PutSetting(admin(), domain.SettingLowStockThreshold, domain.SettingRequest{Value: "4"})
	require.NoError(t, err)
	low, err = f.svc.LowStockBatches(ctx)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, storetest.BatchNoExpiry, low[0].ID)

	expiring, err := f.svc.ListBatches(ctx, BatchFilter{ExpiringWithin: days(30), DrugID: storetest.DrugID})
	require.NoError(t, err)
	assert.Len(t, expiring, 2)

	within, err := f.svc.BatchesExpiringWithinDays(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, within, 2, "expired and expiring today")

	today, err := f.svc.ListBatches(ctx, BatchFilter{ExpiringWithin: days(0)})
	require.NoError(t, err)
	ids := make([]string, 0, len(today))
	for _, batch := range today {
		ids = append(ids, batch.ID)
	}
	assert.ElementsMatch(t, []string{storetest.BatchExpired, storetest.BatchOtherDrug}, ids)

	_, err = f.svc.ListBatches(ctx, BatchFilter{ExpiringWithin: days(-1)})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestUpdateBatchNeverTouchesQuantity(t *testing.T) {
	f := newFixture(t)
	price := dec("13.75")
	updated, err := f.svc.UpdateBatch(admin(), storetest.BatchPlenty, domain.BatchUpdateRequest{SellingPrice: &price})
	require.NoError(t, err)
	assert.True(t, updated.SellingPrice.Equal(price))
	assert.Equal(t, 100, updated.Quantity)

	_, err = f.svc.UpdateBatch(cashier(), storetest.BatchPlenty, domain.BatchUpdateRequest{SellingPrice: &price})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCreateBatchChecksReferences(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateBatch(admin(), domain.BatchCreateRequest{DrugID: "drg_ghost", BatchNumber: "X-1", Quantity: 1})
	assert.ErrorIs(t, err, store.ErrNotFound)

	created, err := f.svc.CreateBatch(admin(), domain.BatchCreateRequest{
		DrugID: storetest.DrugID, BatchNumber: "P-9", Quantity: 50,
		ExpiryDate:   &domain.Date{Time: time.Date(2027, 1, 31, 0, 0, 0, 0, time.UTC)},
		SellingPrice: dec("12.50"),
	})
	require.NoError(t, err)
	assert.Equal(t, 50, created.Quantity)
	require.NotNil(t, created.ExpiryDate)
	assert.Equal(t, "2027-01-31", created.ExpiryDate.Format("2006-01-02"))
}

func TestDashboardUsesSettingsAndCache(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CommitSale(cashier(), saleOf(storetest.BatchPlenty, 2))
	require.NoError(t, err)

	stats, err := f.svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.True(t, stats.TodaySalesTotal.Equal(dec("25")))
	assert.Equal(t, 1, stats.TodaySalesCount)
	assert.Equal(t, int64(98+5+10+3+40), stats.TotalStockUnits)
	assert.Equal(t, 3, stats.LowStockCount)
	assert.Equal(t, 1, stats.ExpiredCount)
	assert.Equal(t, 2, stats.ExpiringSoonCount)
	assert.Equal(t, 10, stats.LowStockThreshold)
	assert.Equal(t, 30, stats.ExpiryWindowDays)
	assert.Equal(t, 1, f.cache.sets)

	f.cache.hit = &domain.DashboardStats{TodaySalesCount: 42}
	cached, err := f.svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, cached.TodaySalesCount)
}

// racingRepo runs during before the dashboard aggregate is computed.
type racingRepo struct {
	store.Repository
	during func()
}

func (r *racingRepo) DashboardAggregate(ctx context.Context, q store.DashboardQuery) (domain.DashboardStats, error) {
	if r.during != nil {
		r.during()
		r.during = nil
	}
	return r.Repository.DashboardAggregate(ctx, q)
}

func TestDashboardSkipsCacheAfterConcurrentWrite(t *testing.T) {
	f := newFixture(t)
	repo := &racingRepo{Repository: f.repo}
	svc := New(repo, Options{Cache: f.cache, Metrics: telemetry.NewMetrics(), Now: func() time.Time { return storetest.Now }})
	repo.during = func() {
		_, err := svc.CommitSale(cashier(), saleOf(storetest.BatchPlenty, 1))
		require.NoError(t, err)
	}

	_, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, f.cache.sets, "figures computed across an invalidation are not cached")
	assert.Equal(t, 1, f.cache.invalidations)

	stats, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TodaySalesCount)
	assert.Equal(t, 1, f.cache.sets)
}

func TestPutSettingValidatesKnownKeys(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.PutSetting(admin(), domain.SettingLowStockThreshold, domain.SettingRequest{Value: "-3"})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
	_, err = f.svc.PutSetting(admin(), domain.SettingTaxRate, domain.SettingRequest{Value: "abc"})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
	_, err = f.svc.PutSetting(cashier(), domain.SettingPharmacyName, domain.SettingRequest{Value: "Corner"})
	assert.ErrorIs(t, err, ErrForbidden)

	saved, err := f.svc.PutSetting(admin(), domain.SettingPharmacyName, domain.SettingRequest{Value: " Corner Pharmacy "})
	require.NoError(t, err)
	assert.Equal(t, "Corner Pharmacy", saved.Value)
	saved, err = f.svc.PutSetting(admin(), domain.SettingPharmacyName, domain.SettingRequest{Value: "Main St Pharmacy"})
	require.NoError(t, err)
	assert.Equal(t, "Main St Pharmacy", saved.Value)

	require.NoError(t, f.svc.DeleteSetting(admin(), domain.SettingPharmacyName))
	_, err = f.svc.GetSetting(context.Background(), domain.SettingPharmacyName)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSettingKeysIgnoreCase(t *testing.T) {
	f := newFixture(t)
	saved, err := f.svc.PutSetting(admin(), " Tax_Rate ", domain.SettingRequest{Value: "7.5"})
	require.NoError(t, err)
	assert.Equal(t, domain.SettingTaxRate, saved.Key)

	got, err := f.svc.GetSetting(context.Background(), "Tax_Rate")
	require.NoError(t, err)
	assert.Equal(t, "7.5", got.Value)

	require.NoError(t, f.svc.DeleteSetting(admin(), "TAX_RATE"))
	_, err = f.svc.GetSetting(context.Background(), domain.SettingTaxRate)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUserManagement(t *testing.T) {
	f := newFixture(t)

	created, err := f.svc.CreateUser(admin(), domain.UserCreateRequest{Username: " Night.Shift ", Password: "long-enough-1", Role: "Pharmacist"})
	require.NoError(t, err)
	assert.Equal(t, "night.shift", created.Username)
	assert.Equal(t, domain.RolePharmacist, created.Role)
	assert.NotEqual(t, "long-enough-1", created.PasswordHash)

	_, err = f.svc.CreateUser(admin(), domain.UserCreateRequest{Username: "night.shift", Password: "long-enough-1", Role: "cashier"})
	assert.ErrorIs(t, err, store.ErrConflict)
	_, err = f.svc.CreateUser(admin(), domain.UserCreateRequest{Username: "shorty", Password: "short", Role: "cashier"})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
	_, err = f.svc.CreateUser(admin(), domain.UserCreateRequest{Username: "wizard", Password: "long-enough-1", Role: "wizard"})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
	_, err = f.svc.CreateUser(cashier(), domain.UserCreateRequest{Username: "sneaky", Password: "long-enough-1", Role: "admin"})
	assert.ErrorIs(t, err, ErrForbidden)

	inactive := false
	_, err = f.svc.UpdateUser(admin(), adminID, domain.UserUpdateRequest{Active: &inactive})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
	assert.ErrorIs(t, f.svc.DeleteUser(admin(), adminID), store.ErrInvalidInput)
	require.NoError(t, f.svc.DeleteUser(admin(), created.ID))

	me, err := f.svc.Me(cashier())
	require.NoError(t, err)
	assert.Equal(t, storetest.UserID, me.ID)
}

func TestEnsureAdmin(t *testing.T) {
	svc := New(memory.New(), Options{})
	ctx := context.Background()

	_, err := svc.EnsureAdmin(ctx, "short")
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	created, err := svc.EnsureAdmin(ctx, "bootstrap-pass")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.EnsureAdmin(ctx, "bootstrap-pass")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestCatalogRoles(t *testing.T) {
	f := newFixture(t)
	pharmacist := WithActor(context.Background(), domain.Actor{UserID: "usr_ph", Username: "ph", Role: domain.RolePharmacist})

	category, err := f.svc.CreateCategory(pharmacist, domain.CategoryCreateRequest{Name: "Dermatology"})
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.DeleteCategory(pharmacist, category.ID), ErrForbidden)
	require.NoError(t, f.svc.DeleteCategory(admin(), category.ID))

	_, err = f.svc.CreateDrug(cashier(), domain.DrugCreateRequest{Name: "Aspirin"})
	assert.ErrorIs(t, err, ErrForbidden)

	customer, err := f.svc.CreateCustomer(cashier(), domain.CustomerCreateRequest{Name: "Walk-in", Email: "walkin@example.com"})
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.DeleteCustomer(cashier(), customer.ID), ErrForbidden)

	_, err = f.svc.CreateSupplier(admin(), domain.SupplierCreateRequest{Name: "Bad Mail", Email: "not-an-email"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "email", verr.Field)

	drugs, err := f.svc.SearchDrugs(context.Background(), "PARA", 0)
	require.NoError(t, err)
	require.Len(t, drugs, 1)
	assert.Equal(t, storetest.DrugID, drugs[0].ID)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "invalid_input", ErrorCode(invalid("x", "bad")))
	assert.Equal(t, "forbidden", ErrorCode(ErrForbidden))
	assert.Equal(t, "not_found", ErrorCode(store.ErrNotFound))
	assert.Equal(t, "batch_expired", ErrorCode(store.ErrBatchExpired))
	assert.Equal(t, "invalid_state", ErrorCode(store.ErrInvalidState))
	assert.Equal(t, "conflict", ErrorCode(store.ErrConflict))
	assert.Equal(t, "internal", ErrorCode(context.Canceled))
}

type recordingCache struct {
	mu            sync.Mutex
	hit           *domain.DashboardStats
	sets          int
	invalidations int
}

func (c *recordingCache) Get(_ context.Context, _ string) (*domain.DashboardStats, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hit == nil {
		return nil, false, nil
	}
	return c.hit, true, nil
}

func (c *recordingCache) Set(_ context.Context, _ string, _ *domain.DashboardStats, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	return nil
}

func (c *recordingCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidations++
	return nil
}
