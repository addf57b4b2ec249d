// Package storetest holds behaviour checks shared by every store.Repository
// implementation.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
)

// Factory returns an empty repository. Cleanup is the caller's business.
type Factory func(t *testing.T) store.Repository

// Fixture ids created by Seed.
const (
	UserID         = "usr_counter"
	CategoryID     = "cat_general"
	SupplierID     = "sup_main"
	DrugID         = "drg_paracetamol"
	OtherDrugID    = "drg_cough"
	BatchPlenty    = "bat_plenty"
	BatchFew       = "bat_few"
	BatchExpired   = "bat_expired"
	BatchNoExpiry  = "bat_noexpiry"
	BatchOtherDrug = "bat_cough"
)

// Now is the fixed clock used by the fixtures.
var Now = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func dayOffset(days int) *time.Time {
	d := domain.StartOfDay(Now).AddDate(0, 0, days)
	return &d
}

func str(v string) *string { return &v }

// Seed writes one user, category, supplier, two drugs and five batches.
func Seed(t *testing.T, repo store.Repository) {
	t.Helper()
	ctx := context.Background()

	_, err := repo.Users().Create(ctx, domain.User{
		ID: UserID, Username: "counter", PasswordHash: "x", FullName: "Counter", Role: domain.RoleCashier,
		Active: true, CreatedAt: Now, UpdatedAt: Now,
	})
	require.NoError(t, err)
	_, err = repo.Categories().Create(ctx, domain.Category{ID: CategoryID, Name: "General", CreatedAt: Now, UpdatedAt: Now})
	require.NoError(t, err)
	_, err = repo.Suppliers().Create(ctx, domain.Supplier{ID: SupplierID, Name: "Main Supplier", CreatedAt: Now, UpdatedAt: Now})
	require.NoError(t, err)

	for _, d := range []domain.Drug{
		{ID: DrugID, Name: "Paracetamol 500mg", GenericName: "Paracetamol", Brand: "Panadol", Barcode: "111", CategoryID: str(CategoryID)},
		{ID: OtherDrugID, Name: "Cough Syrup", GenericName: "Dextromethorphan", Brand: "Robitussin", Barcode: "222"},
	} {
		d.CreatedAt, d.UpdatedAt = Now, Now
		_, err := repo.Drugs().Create(ctx, d)
		require.NoError(t, err)
	}

	for _, b := range []domain.DrugBatch{
		{ID: BatchPlenty, DrugID: DrugID, BatchNumber: "P-1", ExpiryDate: dayOffset(365), Quantity: 100, SellingPrice: decimal.RequireFromString("12.50")},
		{ID: BatchFew, DrugID: DrugID, BatchNumber: "P-2", ExpiryDate: dayOffset(20), Quantity: 5, SellingPrice: decimal.RequireFromString("12.50")},
		{ID: BatchExpired, DrugID: DrugID, BatchNumber: "P-0", ExpiryDate: dayOffset(-1), Quantity: 10, SellingPrice: decimal.RequireFromString("12.50")},
		{ID: BatchNoExpiry, DrugID: OtherDrugID, BatchNumber: "C-9", Quantity: 3, SellingPrice: decimal.RequireFromString("4.00")},
		{ID: BatchOtherDrug, DrugID: OtherDrugID, BatchNumber: "C-1", ExpiryDate: dayOffset(0), Quantity: 40, SellingPrice: decimal.RequireFromString("4.00")},
	} {
		b.SupplierID = str(SupplierID)
		b.CostPrice = decimal.RequireFromString("8.00")
		b.ReceivedAt, b.CreatedAt, b.UpdatedAt = Now, Now, Now
		_, err := repo.Batches().Create(ctx, b)
		require.NoError(t, err)
	}
}

// Sale builds a completed sale for the fixture user; lines are batch id and
// quantity pairs priced at 12.50.
func Sale(id string, lines ...any) domain.Sale {
	price := decimal.RequireFromString("12.50")
	sale := domain.Sale{
		ID:            id,
		ReceiptNumber: "RX-" + id,
		UserID:        UserID,
		PaymentMethod: "cash",
		Status:        domain.SaleStatusCompleted,
		CreatedAt:     Now,
		UpdatedAt:     Now,
	}
	subtotal := decimal.Zero
	for i := 0; i+1 < len(lines); i += 2 {
		qty := lines[i+1].(int)
		total := price.Mul(decimal.NewFromInt(int64(qty)))
		sale.Items = append(sale.Items, domain.SaleItem{
			ID:          fmt.Sprintf("%s_item_%d", id, i/2),
			SaleID:      id,
			DrugBatchID: lines[i].(string),
			Quantity:    qty,
			UnitPrice:   price,
			TotalPrice:  total,
			Position:    i / 2,
		})
		subtotal = subtotal.Add(total)
	}
	sale.Subtotal = subtotal
	sale.TotalAmount = subtotal
	sale.AmountReceived = subtotal
	sale.ChangeDue = decimal.Zero
	return sale
}

func quantity(t *testing.T, repo store.Repository, batchID string) int {
	t.Helper()
	batch, err := repo.Batches().Get(context.Background(), batchID)
	require.NoError(t, err)
	return batch.Quantity
}

// Run executes every shared check against fresh repositories from newRepo.
func Run(t *testing.T, newRepo Factory) {
	fresh := func(t *testing.T) store.Repository {
		repo := newRepo(t)
		Seed(t, repo)
		return repo
	}

	t.Run("collection crud", func(t *testing.T) { testCollectionCRUD(t, fresh(t)) })
	t.Run("batch update keeps quantity", func(t *testing.T) { testBatchUpdateKeepsQuantity(t, fresh(t)) })
	t.Run("delete referenced", func(t *testing.T) { testDeleteReferenced(t, fresh(t)) })
	t.Run("find user", func(t *testing.T) { testFindUser(t, fresh(t)) })
	t.Run("search drugs", func(t *testing.T) { testSearchDrugs(t, fresh(t)) })
	t.Run("batch queries", func(t *testing.T) { testBatchQueries(t, fresh(t)) })
	t.Run("commit decrements", func(t *testing.T) { testCommitDecrements(t, fresh(t)) })
	t.Run("commit oversell leaves nothing", func(t *testing.T) { testCommitOversell(t, fresh(t)) })
	t.Run("commit missing batch", func(t *testing.T) { testCommitMissingBatch(t, fresh(t)) })
	t.Run("commit expired batch", func(t *testing.T) { testCommitExpired(t, fresh(t)) })
	t.Run("commit repeated batch", func(t *testing.T) { testCommitRepeatedBatch(t, fresh(t)) })
	t.Run("commit no expiry", func(t *testing.T) { testCommitNoExpiry(t, fresh(t)) })
	t.Run("commit duplicates", func(t *testing.T) { testCommitDuplicates(t, fresh(t)) })
	t.Run("commit concurrent", func(t *testing.T) { testCommitConcurrent(t, fresh(t)) })
	t.Run("sales in range", func(t *testing.T) { testSalesInRange(t, fresh(t)) })
	t.Run("sale status", func(t *testing.T) { testSaleStatus(t, fresh(t)) })
	t.Run("purchase lifecycle", func(t *testing.T) { testPurchaseLifecycle(t, fresh(t)) })
	t.Run("purchase delete", func(t *testing.T) { testPurchaseDelete(t, fresh(t)) })
	t.Run("dashboard", func(t *testing.T) { testDashboard(t, fresh(t)) })
}

func testCollectionCRUD(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	cats := repo.Categories()

	created, err := cats.Create(ctx, domain.Category{ID: "cat_skin", Name: "Skin Care", CreatedAt: Now, UpdatedAt: Now})
	require.NoError(t, err)
	assert.Equal(t, "Skin Care", created.Name)

	_, err = cats.Create(ctx, domain.Category{ID: "cat_skin2", Name: "Skin Care", CreatedAt: Now, UpdatedAt: Now})
	assert.ErrorIs(t, err, store.ErrConflict)
	_, err = cats.Create(ctx, domain.Category{ID: "cat_skin3", Name: "skin care", CreatedAt: Now, UpdatedAt: Now})
	assert.ErrorIs(t, err, store.ErrConflict, "category names are unique regardless of case")

	later := Now.Add(time.Hour)
	updated, err := cats.Update(ctx, domain.Category{ID: "cat_skin", Name: "Dermatology", Description: "creams", CreatedAt: later, UpdatedAt: later})
	require.NoError(t, err)
	assert.Equal(t, "Dermatology", updated.Name)
	assert.True(t, updated.CreatedAt.Equal(Now), "created_at must survive updates")

	all, err := cats.List(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(all))
	for _, c := range all {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Dermatology", "General"}, names)

	require.NoError(t, cats.Delete(ctx, "cat_skin"))
	_, err = cats.Get(ctx, "cat_skin")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, cats.Delete(ctx, "cat_skin"), store.ErrNotFound)

	_, err = cats.Update(ctx, domain.Category{ID: "cat_missing", Name: "x", UpdatedAt: Now})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = repo.Drugs().Create(ctx, domain.Drug{ID: "drg_dup", Name: "Dup", Barcode: "111", CreatedAt: Now, UpdatedAt: Now})
	assert.ErrorIs(t, err, store.ErrConflict, "barcode must be unique")
	_, err = repo.Drugs().Create(ctx, domain.Drug{ID: "drg_nobarcode_a", Name: "A", CreatedAt: Now, UpdatedAt: Now})
	require.NoError(t, err)
	_, err = repo.Drugs().Create(ctx, domain.Drug{ID: "drg_nobarcode_b", Name: "B", CreatedAt: Now, UpdatedAt: Now})
	assert.NoError(t, err, "empty barcodes do not clash")

	_, err = repo.Drugs().Create(ctx, domain.Drug{ID: "drg_orphan", Name: "Orphan", CategoryID: str("cat_nope"), CreatedAt: Now, UpdatedAt: Now})
	assert.ErrorIs(t, err, store.ErrNotFound)

	setting, err := repo.Settings().Create(ctx, domain.Setting{Key: domain.SettingCurrency, Value: "EUR", UpdatedAt: Now})
	require.NoError(t, err)
	assert.Equal(t, "EUR", setting.Value)
}

func testBatchUpdateKeepsQuantity(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	batch, err := repo.Batches().Get(ctx, BatchPlenty)
	require.NoError(t, err)

	batch.Quantity = 999
	batch.DrugID = OtherDrugID
	batch.SellingPrice = decimal.RequireFromString("13.00")
	batch.BatchNumber = "P-1b"
	updated, err := repo.Batches().Update(ctx, *batch)
	require.NoError(t, err)

	assert.Equal(t, 100, updated.Quantity)
	assert.Equal(t, DrugID, updated.DrugID)
	assert.Equal(t, "P-1b", updated.BatchNumber)
	assert.True(t, updated.SellingPrice.Equal(decimal.RequireFromString("13.00")))
}

func testDeleteReferenced(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	assert.ErrorIs(t, repo.Categories().Delete(ctx, CategoryID), store.ErrConflict)
	assert.ErrorIs(t, repo.Drugs().Delete(ctx, DrugID), store.ErrConflict)

	_, err := repo.CommitSale(ctx, Sale("sale_ref", BatchPlenty, 1))
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Batches().Delete(ctx, BatchPlenty), store.ErrConflict)
	assert.ErrorIs(t, repo.Users().Delete(ctx, UserID), store.ErrConflict)
}

func testFindUser(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	user, err := repo.FindUserByUsername(ctx, "Counter")
	require.NoError(t, err)
	assert.Equal(t, UserID, user.ID)

	_, err = repo.FindUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)

	n, err := repo.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testSearchDrugs(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	for _, query := range []string{"para", "PANADOL", "111"} {
		found, err := repo.SearchDrugs(ctx, query, 10)
		require.NoError(t, err)
		require.Len(t, found, 1, query)
		assert.Equal(t, DrugID, found[0].ID)
	}

	found, err := repo.SearchDrugs(ctx, "robi", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, OtherDrugID, found[0].ID)

	found, err = repo.SearchDrugs(ctx, "%", 10)
	require.NoError(t, err)
	assert.Empty(t, found, "wildcards are matched literally")

	found, err = repo.SearchDrugs(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func testBatchQueries(t *testing.T, repo store.Repository) {
	ctx := context.Background()

	batches, err := repo.BatchesForDrug(ctx, DrugID)
	require.NoError(t, err)
	ids := batchIDs(batches)
	assert.Equal(t, []string{BatchExpired, BatchFew, BatchPlenty}, ids, "ordered by expiry")

	batches, err = repo.BatchesForDrug(ctx, OtherDrugID)
	require.NoError(t, err)
	assert.Equal(t, []string{BatchOtherDrug, BatchNoExpiry}, batchIDs(batches), "no expiry sorts last")

	low, err := repo.BatchesWithQuantityAtMost(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{BatchNoExpiry, BatchFew, BatchExpired}, batchIDs(low))

	expiring, err := repo.BatchesExpiringBefore(ctx, *dayOffset(30))
	require.NoError(t, err)
	assert.Equal(t, []string{BatchExpired, BatchOtherDrug, BatchFew}, batchIDs(expiring))
}

func batchIDs(batches []domain.DrugBatch) []string {
	ids := make([]string, 0, len(batches))
	for _, b := range batches {
		ids = append(ids, b.ID)
	}
	return ids
}

func testCommitDecrements(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	sale := Sale("sale_1", BatchPlenty, 10)

	committed, err := repo.CommitSale(ctx, sale)
	require.NoError(t, err)
	assert.Equal(t, "sale_1", committed.ID)
	assert.Equal(t, 90, quantity(t, repo, BatchPlenty))

	got, err := repo.GetSale(ctx, "sale_1")
	require.NoError(t, err)
	assert.Equal(t, sale.ReceiptNumber, got.ReceiptNumber)
	assert.Equal(t, domain.SaleStatusCompleted, got.Status)
	assert.True(t, got.TotalAmount.Equal(decimal.RequireFromString("125.00")))
	require.Len(t, got.Items, 1)
	assert.Equal(t, 10, got.Items[0].Quantity)

	items, err := repo.ListSaleItems(ctx, "sale_1")
	require.NoError(t, err)
	assert.Len(t, items, 1)

	_, err = repo.GetSale(ctx, "sale_nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testCommitOversell(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	_, err := repo.CommitSale(ctx, Sale("sale_over", BatchPlenty, 2, BatchFew, 8))
	assert.ErrorIs(t, err, store.ErrInsufficientStock)

	assert.Equal(t, 100, quantity(t, repo, BatchPlenty), "earlier line must roll back")
	assert.Equal(t, 5, quantity(t, repo, BatchFew))
	_, err = repo.GetSale(ctx, "sale_over")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testCommitMissingBatch(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	_, err := repo.CommitSale(ctx, Sale("sale_missing", BatchPlenty, 1, "bat_ghost", 1))
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 100, quantity(t, repo, BatchPlenty))
	_, err = repo.GetSale(ctx, "sale_missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testCommitExpired(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	_, err := repo.CommitSale(ctx, Sale("sale_exp", BatchExpired, 1))
	assert.ErrorIs(t, err, store.ErrBatchExpired)
	assert.Equal(t, 10, quantity(t, repo, BatchExpired))

	// A batch expiring today can still be sold.
	_, err = repo.CommitSale(ctx, Sale("sale_today", BatchOtherDrug, 1))
	require.NoError(t, err)
	assert.Equal(t, 39, quantity(t, repo, BatchOtherDrug))
}

func testCommitRepeatedBatch(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	_, err := repo.CommitSale(ctx, Sale("sale_rep_bad", BatchFew, 3, BatchFew, 3))
	assert.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.Equal(t, 5, quantity(t, repo, BatchFew))

	_, err = repo.CommitSale(ctx, Sale("sale_rep_ok", BatchFew, 3, BatchFew, 2))
	require.NoError(t, err)
	assert.Equal(t, 0, quantity(t, repo, BatchFew))
}

func testCommitNoExpiry(t *testing.T, repo store.Repository) {
	_, err := repo.CommitSale(context.Background(), Sale("sale_noexp", BatchNoExpiry, 3))
	require.NoError(t, err)
	assert.Equal(t, 0, quantity(t, repo, BatchNoExpiry))
}

func testCommitDuplicates(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	first := Sale("sale_a", BatchPlenty, 1)
	first.IdempotencyKey = str("key-1")
	_, err := repo.CommitSale(ctx, first)
	require.NoError(t, err)

	sameReceipt := Sale("sale_b", BatchPlenty, 1)
	sameReceipt.ReceiptNumber = first.ReceiptNumber
	_, err = repo.CommitSale(ctx, sameReceipt)
	assert.ErrorIs(t, err, store.ErrConflict)

	sameKey := Sale("sale_c", BatchPlenty, 1)
	sameKey.IdempotencyKey = str("key-1")
	_, err = repo.CommitSale(ctx, sameKey)
	assert.ErrorIs(t, err, store.ErrConflict)

	assert.Equal(t, 99, quantity(t, repo, BatchPlenty))

	found, err := repo.FindSaleByIdempotencyKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, "sale_a", found.ID)
	_, err = repo.FindSaleByIdempotencyKey(ctx, "key-2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testCommitConcurrent(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	const workers = 8

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = repo.CommitSale(ctx, Sale(fmt.Sprintf("sale_race_%d", i), BatchFew, 1))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, store.ErrInsufficientStock)
	}
	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 0, quantity(t, repo, BatchFew))
}

func testSalesInRange(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	early := Sale("sale_early", BatchPlenty, 1)
	early.CreatedAt = Now.Add(-2 * time.Hour)
	late := Sale("sale_late", BatchPlenty, 2)
	late.CreatedAt = Now.Add(time.Hour)
	yesterday := Sale("sale_yesterday", BatchPlenty, 1)
	yesterday.CreatedAt = Now.AddDate(0, 0, -1)
	for _, sale := range []domain.Sale{early, late, yesterday} {
		_, err := repo.CommitSale(ctx, sale)
		require.NoError(t, err)
	}

	day := domain.StartOfDay(Now)
	sales, err := repo.SalesInRange(ctx, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.Equal(t, "sale_late", sales[0].ID, "newest first")
	assert.Equal(t, "sale_early", sales[1].ID)
	require.Len(t, sales[0].Items, 1)
	assert.Equal(t, 2, sales[0].Items[0].Quantity)
}

func testSaleStatus(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	_, err := repo.CommitSale(ctx, Sale("sale_r", BatchPlenty, 4, BatchFew, 2))
	require.NoError(t, err)

	refunded, err := repo.SetSaleStatus(ctx, store.SaleStatusChange{
		SaleID: "sale_r", From: domain.SaleStatusCompleted, To: domain.SaleStatusRefunded, Restock: true, At: Now,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusRefunded, refunded.Status)
	assert.Equal(t, 100, quantity(t, repo, BatchPlenty))
	assert.Equal(t, 5, quantity(t, repo, BatchFew))

	_, err = repo.SetSaleStatus(ctx, store.SaleStatusChange{
		SaleID: "sale_r", From: domain.SaleStatusCompleted, To: domain.SaleStatusCancelled, Restock: true, At: Now,
	})
	assert.ErrorIs(t, err, store.ErrInvalidState)
	assert.Equal(t, 100, quantity(t, repo, BatchPlenty), "no second restock")

	_, err = repo.SetSaleStatus(ctx, store.SaleStatusChange{
		SaleID: "sale_ghost", From: domain.SaleStatusCompleted, To: domain.SaleStatusRefunded, At: Now,
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func purchase(id string) domain.Purchase {
	expiry := dayOffset(400)
	return domain.Purchase{
		ID:          id,
		SupplierID:  SupplierID,
		Status:      domain.PurchaseStatusOrdered,
		TotalAmount: decimal.RequireFromString("260.00"),
		CreatedBy:   UserID,
		OrderedAt:   Now,
		Items: []domain.PurchaseItem{
			{
				ID: id + "_1", PurchaseID: id, DrugID: DrugID, DrugBatchID: str(BatchPlenty),
				BatchNumber: "P-1", Quantity: 20,
				UnitCost: decimal.RequireFromString("8.00"), SellingPrice: decimal.RequireFromString("12.50"),
				TotalCost: decimal.RequireFromString("160.00"), Position: 0,
			},
			{
				ID: id + "_2", PurchaseID: id, DrugID: OtherDrugID,
				BatchNumber: "C-2", ExpiryDate: expiry, Quantity: 25,
				UnitCost: decimal.RequireFromString("4.00"), SellingPrice: decimal.RequireFromString("6.00"),
				TotalCost: decimal.RequireFromString("100.00"), Position: 1,
			},
		},
	}
}

func testPurchaseLifecycle(t *testing.T, repo store.Repository) {
	ctx := context.Background()

	created, err := repo.CreatePurchase(ctx, purchase("pur_1"))
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseStatusOrdered, created.Status)
	require.Len(t, created.Items, 2)
	assert.Equal(t, 100, quantity(t, repo, BatchPlenty), "ordering does not touch stock")

	bad := purchase("pur_bad")
	bad.SupplierID = "sup_ghost"
	_, err = repo.CreatePurchase(ctx, bad)
	assert.ErrorIs(t, err, store.ErrNotFound)

	ordered, err := repo.ListPurchases(ctx, domain.PurchaseStatusOrdered)
	require.NoError(t, err)
	require.Len(t, ordered, 1)
	assert.Len(t, ordered[0].Items, 2)

	_, err = repo.ReceivePurchase(ctx, store.PurchaseReceipt{PurchaseID: "pur_1", ReceivedBy: UserID, At: Now})
	assert.ErrorIs(t, err, store.ErrInvalidInput, "new line needs a batch id")
	assert.Equal(t, 100, quantity(t, repo, BatchPlenty), "failed receipt rolls back")

	received, err := repo.ReceivePurchase(ctx, store.PurchaseReceipt{
		PurchaseID:  "pur_1",
		ReceivedBy:  UserID,
		At:          Now,
		NewBatchIDs: map[string]string{"pur_1_2": "bat_new"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseStatusReceived, received.Status)
	require.NotNil(t, received.ReceivedAt)
	require.NotNil(t, received.Items[1].DrugBatchID)
	assert.Equal(t, "bat_new", *received.Items[1].DrugBatchID)

	assert.Equal(t, 120, quantity(t, repo, BatchPlenty))
	fresh, err := repo.Batches().Get(ctx, "bat_new")
	require.NoError(t, err)
	assert.Equal(t, 25, fresh.Quantity)
	assert.Equal(t, OtherDrugID, fresh.DrugID)
	require.NotNil(t, fresh.SupplierID)
	assert.Equal(t, SupplierID, *fresh.SupplierID)
	assert.True(t, fresh.SellingPrice.Equal(decimal.RequireFromString("6.00")))

	_, err = repo.ReceivePurchase(ctx, store.PurchaseReceipt{PurchaseID: "pur_1", ReceivedBy: UserID, At: Now})
	assert.ErrorIs(t, err, store.ErrInvalidState)
	assert.Equal(t, 120, quantity(t, repo, BatchPlenty))

	_, err = repo.ReceivePurchase(ctx, store.PurchaseReceipt{PurchaseID: "pur_ghost", ReceivedBy: UserID, At: Now})
	assert.ErrorIs(t, err, store.ErrNotFound)

	all, err := repo.ListPurchases(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testPurchaseDelete(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	_, err := repo.CreatePurchase(ctx, purchase("pur_del"))
	require.NoError(t, err)
	require.NoError(t, repo.DeletePurchase(ctx, "pur_del"))
	_, err = repo.GetPurchase(ctx, "pur_del")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, repo.DeletePurchase(ctx, "pur_del"), store.ErrNotFound)

	_, err = repo.CreatePurchase(ctx, purchase("pur_keep"))
	require.NoError(t, err)
	_, err = repo.ReceivePurchase(ctx, store.PurchaseReceipt{
		PurchaseID: "pur_keep", ReceivedBy: UserID, At: Now,
		NewBatchIDs: map[string]string{"pur_keep_2": "bat_keep"},
	})
	require.NoError(t, err)
	assert.ErrorIs(t, repo.DeletePurchase(ctx, "pur_keep"), store.ErrInvalidState)
}

func testDashboard(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	_, err := repo.CommitSale(ctx, Sale("sale_d1", BatchPlenty, 2))
	require.NoError(t, err)
	_, err = repo.CommitSale(ctx, Sale("sale_d2", BatchPlenty, 1))
	require.NoError(t, err)
	_, err = repo.SetSaleStatus(ctx, store.SaleStatusChange{
		SaleID: "sale_d2", From: domain.SaleStatusCompleted, To: domain.SaleStatusCancelled, Restock: true, At: Now,
	})
	require.NoError(t, err)

	day := domain.StartOfDay(Now)
	stats, err := repo.DashboardAggregate(ctx, store.DashboardQuery{
		DayStart:          day,
		DayEnd:            day.AddDate(0, 0, 1),
		LowStockThreshold: 10,
		Today:             day,
		ExpiryCutoff:      day.AddDate(0, 0, 30),
	})
	require.NoError(t, err)

	assert.True(t, stats.TodaySalesTotal.Equal(decimal.RequireFromString("25.00")), stats.TodaySalesTotal.String())
	assert.Equal(t, 1, stats.TodaySalesCount)
	assert.Equal(t, int64(98+5+10+3+40), stats.TotalStockUnits)
	assert.Equal(t, 3, stats.LowStockCount)
	assert.Equal(t, 1, stats.ExpiredCount)
	assert.Equal(t, 2, stats.ExpiringSoonCount)
}
