package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Money is exchanged as plain JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

const (
	RoleAdmin      = "admin"
	RolePharmacist = "pharmacist"
	RoleCashier    = "cashier"
)

const (
	SaleStatusCompleted = "completed"
	SaleStatusRefunded  = "refunded"
	SaleStatusCancelled = "cancelled"
)

const (
	PurchaseStatusOrdered  = "ordered"
	PurchaseStatusReceived = "received"
)

const (
	SettingPharmacyName      = "pharmacy_name"
	SettingCurrency          = "currency"
	SettingTaxRate           = "tax_rate"
	SettingLowStockThreshold = "low_stock_threshold"
	SettingExpiryWarningDays = "expiry_warning_days"
)

func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RolePharmacist, RoleCashier:
		return true
	}
	return false
}

type User struct {
	ID           string    `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	FullName     string    `json:"fullName" db:"full_name"`
	Role         string    `json:"role" db:"role"`
	Active       bool      `json:"active" db:"active"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

func (u User) EntityKey() string { return u.ID }

type Category struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

func (c Category) EntityKey() string { return c.ID }

type Supplier struct {
	ID            string    `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	ContactPerson string    `json:"contactPerson" db:"contact_person"`
	Phone         string    `json:"phone" db:"phone"`
	Email         string    `json:"email" db:"email"`
	Address       string    `json:"address" db:"address"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}

func (s Supplier) EntityKey() string { return s.ID }

type Customer struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Phone     string    `json:"phone" db:"phone"`
	Email     string    `json:"email" db:"email"`
	Address   string    `json:"address" db:"address"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

func (c Customer) EntityKey() string { return c.ID }

type Drug struct {
	ID                   string    `json:"id" db:"id"`
	Name                 string    `json:"name" db:"name"`
	GenericName          string    `json:"genericName" db:"generic_name"`
	Brand                string    `json:"brand" db:"brand"`
	Barcode              string    `json:"barcode" db:"barcode"`
	CategoryID           *string   `json:"categoryId,omitempty" db:"category_id"`
	Form                 string    `json:"form" db:"form"`
	Strength             string    `json:"strength" db:"strength"`
	Unit                 string    `json:"unit" db:"unit"`
	RequiresPrescription bool      `json:"requiresPrescription" db:"requires_prescription"`
	Description          string    `json:"description" db:"description"`
	CreatedAt            time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt            time.Time `json:"updatedAt" db:"updated_at"`
}

func (d Drug) EntityKey() string { return d.ID }

// DrugBatch is a dated, priced lot of one drug. Quantity never goes below zero.
type DrugBatch struct {
	ID           string          `json:"id" db:"id"`
	DrugID       string          `json:"drugId" db:"drug_id"`
	SupplierID   *string         `json:"supplierId,omitempty" db:"supplier_id"`
	BatchNumber  string          `json:"batchNumber" db:"batch_number"`
	ExpiryDate   *time.Time      `json:"expiryDate,omitempty" db:"expiry_date"`
	Quantity     int             `json:"quantity" db:"quantity"`
	CostPrice    decimal.Decimal `json:"costPrice" db:"cost_price"`
	SellingPrice decimal.Decimal `json:"sellingPrice" db:"selling_price"`
	ReceivedAt   time.Time       `json:"receivedAt" db:"received_at"`
	CreatedAt    time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time       `json:"updatedAt" db:"updated_at"`
}

func (b DrugBatch) EntityKey() string { return b.ID }

// ExpiredAt reports whether the batch expiry date lies before the day of at.
func (b DrugBatch) ExpiredAt(at time.Time) bool {
	if b.ExpiryDate == nil {
		return false
	}
	return b.ExpiryDate.Before(StartOfDay(at))
}

type Sale struct {
	ID             string          `json:"id" db:"id"`
	ReceiptNumber  string          `json:"receiptNumber" db:"receipt_number"`
	IdempotencyKey *string         `json:"idempotencyKey,omitempty" db:"idempotency_key"`
	UserID         string          `json:"userId" db:"user_id"`
	CustomerID     *string         `json:"customerId,omitempty" db:"customer_id"`
	CustomerName   string          `json:"customerName" db:"customer_name"`
	CustomerPhone  string          `json:"customerPhone" db:"customer_phone"`
	Subtotal       decimal.Decimal `json:"subtotal" db:"subtotal"`
	TaxAmount      decimal.Decimal `json:"taxAmount" db:"tax_amount"`
	DiscountAmount decimal.Decimal `json:"discountAmount" db:"discount_amount"`
	TotalAmount    decimal.Decimal `json:"totalAmount" db:"total_amount"`
	AmountReceived decimal.Decimal `json:"amountReceived" db:"amount_received"`
	ChangeDue      decimal.Decimal `json:"changeDue" db:"change_due"`
	PaymentMethod  string          `json:"paymentMethod" db:"payment_method"`
	Status         string          `json:"status" db:"status"`
	Notes          string          `json:"notes" db:"notes"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time       `json:"updatedAt" db:"updated_at"`
	Items          []SaleItem      `json:"items" db:"-"`
}

type SaleItem struct {
	ID          string          `json:"id" db:"id"`
	SaleID      string          `json:"saleId" db:"sale_id"`
	DrugBatchID string          `json:"drugBatchId" db:"drug_batch_id"`
	Quantity    int             `json:"quantity" db:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice" db:"unit_price"`
	TotalPrice  decimal.Decimal `json:"totalPrice" db:"total_price"`
	Position    int             `json:"position" db:"position"`
}

type Purchase struct {
	ID            string          `json:"id" db:"id"`
	SupplierID    string          `json:"supplierId" db:"supplier_id"`
	InvoiceNumber string          `json:"invoiceNumber" db:"invoice_number"`
	Status        string          `json:"status" db:"status"`
	TotalAmount   decimal.Decimal `json:"totalAmount" db:"total_amount"`
	Notes         string          `json:"notes" db:"notes"`
	CreatedBy     string          `json:"createdBy" db:"created_by"`
	ReceivedBy    *string         `json:"receivedBy,omitempty" db:"received_by"`
	OrderedAt     time.Time       `json:"orderedAt" db:"ordered_at"`
	ReceivedAt    *time.Time      `json:"receivedAt,omitempty" db:"received_at"`
	Items         []PurchaseItem  `json:"items" db:"-"`
}

type PurchaseItem struct {
	ID           string          `json:"id" db:"id"`
	PurchaseID   string          `json:"purchaseId" db:"purchase_id"`
	DrugID       string          `json:"drugId" db:"drug_id"`
	DrugBatchID  *string         `json:"drugBatchId,omitempty" db:"drug_batch_id"`
	BatchNumber  string          `json:"batchNumber" db:"batch_number"`
	ExpiryDate   *time.Time      `json:"expiryDate,omitempty" db:"expiry_date"`
	Quantity     int             `json:"quantity" db:"quantity"`
	UnitCost     decimal.Decimal `json:"unitCost" db:"unit_cost"`
	SellingPrice decimal.Decimal `json:"sellingPrice" db:"selling_price"`
	TotalCost    decimal.Decimal `json:"totalCost" db:"total_cost"`
	Position     int             `json:"position" db:"position"`
}

type Setting struct {
	Key       string    `json:"key" db:"setting_key"`
	Value     string    `json:"value" db:"value"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

func (s Setting) EntityKey() string { return s.Key }

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
