package memory

import (
	"os"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"pharmapos/backend/internal/domain"
)

// Seed passwords used when the matching SEED_* variable is unset.
const (
	DefaultAdminPassword      = "admin12345"
	DefaultPharmacistPassword = "pharma12345"
	DefaultCashierPassword    = "cashier12345"
)

// NewSeeded returns a store holding a small demo pharmacy: one account per
// role, a few categories, drugs and batches, and default settings.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	for _, u := range []struct {
		id, username, fullName, role, envKey, fallback string
	}{
		{"usr_admin", "admin", "Administrator", domain.RoleAdmin, "SEED_ADMIN_PASSWORD", DefaultAdminPassword},
		{"usr_pharmacist", "pharmacist", "Duty Pharmacist", domain.RolePharmacist, "SEED_PHARMACIST_PASSWORD", DefaultPharmacistPassword},
		{"usr_cashier", "cashier", "Front Counter", domain.RoleCashier, "SEED_CASHIER_PASSWORD", DefaultCashierPassword},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(envOr(u.envKey, u.fallback)), bcrypt.DefaultCost)
		if err != nil {
			panic("memory: hash seed password: " + err.Error())
		}
		s.users.rows[u.id] = domain.User{
			ID:           u.id,
			Username:     u.username,
			PasswordHash: string(hash),
			FullName:     u.fullName,
			Role:         u.role,
			Active:       true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}

	categories := []domain.Category{
		{ID: "cat_analgesic", Name: "Analgesics", Description: "Pain and fever relief"},
		{ID: "cat_antibiotic", Name: "Antibiotics", Description: "Prescription antibacterials"},
		{ID: "cat_vitamin", Name: "Vitamins & Supplements"},
	}
	for _, c := range categories {
		c.CreatedAt, c.UpdatedAt = now, now
		s.categories.rows[c.ID] = c
	}

	supplier := domain.Supplier{
		ID:            "sup_medline",
		Name:          "Medline Distributors",
		ContactPerson: "R. Okafor",
		Phone:         "+234-800-555-0101",
		Email:         "orders@medline.example",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.suppliers.rows[supplier.ID] = supplier

	drugs := []domain.Drug{
		{ID: "drg_paracetamol", Name: "Paracetamol 500mg", GenericName: "Paracetamol", Brand: "Panadol", Barcode: "5012345678900", CategoryID: strPtr("cat_analgesic"), Form: "tablet", Strength: "500mg", Unit: "strip"},
		{ID: "drg_ibuprofen", Name: "Ibuprofen 400mg", GenericName: "Ibuprofen", Brand: "Brufen", Barcode: "5012345678917", CategoryID: strPtr("cat_analgesic"), Form: "tablet", Strength: "400mg", Unit: "strip"},
		{ID: "drg_amoxicillin", Name: "Amoxicillin 500mg", GenericName: "Amoxicillin", Brand: "Amoxil", Barcode: "5012345678924", CategoryID: strPtr("cat_antibiotic"), Form: "capsule", Strength: "500mg", Unit: "pack", RequiresPrescription: true},
		{ID: "drg_vitc", Name: "Vitamin C 1000mg", GenericName: "Ascorbic Acid", Brand: "Redoxon", Barcode: "5012345678931", CategoryID: strPtr("cat_vitamin"), Form: "effervescent", Strength: "1000mg", Unit: "tube"},
	}
	for _, d := range drugs {
		d.CreatedAt, d.UpdatedAt = now, now
		s.drugs.rows[d.ID] = d
	}

	today := domain.StartOfDay(now)
	batches := []domain.DrugBatch{
		{ID: "bat_para_a", DrugID: "drg_paracetamol", BatchNumber: "PA-2401", ExpiryDate: timePtr(today.AddDate(1, 0, 0)), Quantity: 240, CostPrice: decimal.RequireFromString("0.80"), SellingPrice: decimal.RequireFromString("1.50")},
		{ID: "bat_ibu_a", DrugID: "drg_ibuprofen", BatchNumber: "IB-2399", ExpiryDate: timePtr(today.AddDate(0, 0, 20)), Quantity: 8, CostPrice: decimal.RequireFromString("1.10"), SellingPrice: decimal.RequireFromString("2.25")},
		{ID: "bat_amox_a", DrugID: "drg_amoxicillin", BatchNumber: "AM-2410", ExpiryDate: timePtr(today.AddDate(0, 8, 0)), Quantity: 60, CostPrice: decimal.RequireFromString("4.00"), SellingPrice: decimal.RequireFromString("7.50")},
		{ID: "bat_vitc_a", DrugID: "drg_vitc", BatchNumber: "VC-2402", ExpiryDate: timePtr(today.AddDate(2, 0, 0)), Quantity: 100, CostPrice: decimal.RequireFromString("2.40"), SellingPrice: decimal.RequireFromString("4.00")},
	}
	for _, b := range batches {
		b.SupplierID = strPtr(supplier.ID)
		b.ReceivedAt, b.CreatedAt, b.UpdatedAt = now, now, now
		s.batches.rows[b.ID] = b
	}

	for key, value := range map[string]string{
		domain.SettingPharmacyName:      "Community Pharmacy",
		domain.SettingCurrency:          "USD",
		domain.SettingTaxRate:           "0",
		domain.SettingLowStockThreshold: "10",
		domain.SettingExpiryWarningDays: "30",
	} {
		s.settings.rows[key] = domain.Setting{Key: key, Value: value, UpdatedAt: now}
	}

	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func strPtr(v string) *string { return &v }

func timePtr(v time.Time) *time.Time { return &v }
