package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Date accepts either a calendar date ("2027-01-31") or an RFC3339 timestamp.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		d.Time = time.Time{}
		return nil
	}
	if parsed, err := time.Parse("2006-01-02", raw); err == nil {
		d.Time = parsed.UTC()
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return fmt.Errorf("invalid date %q", raw)
	}
	d.Time = StartOfDay(parsed)
	return nil
}

// Ptr returns nil for a nil or zero date.
func (d *Date) Ptr() *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := StartOfDay(d.Time)
	return &t
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expiresAt"`
	User        User   `json:"user"`
}

type Actor struct {
	UserID   string
	Username string
	Role     string
}

type UserCreateRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	FullName string `json:"fullName" validate:"max=120"`
	Role     string `json:"role" validate:"required,oneof=admin pharmacist cashier"`
}

type UserUpdateRequest struct {
	FullName *string `json:"fullName,omitempty" validate:"omitempty,max=120"`
	Role     *string `json:"role,omitempty" validate:"omitempty,oneof=admin pharmacist cashier"`
	Active   *bool   `json:"active,omitempty"`
	Password *string `json:"password,omitempty" validate:"omitempty,min=8,max=72"`
}

type CategoryCreateRequest struct {
	Name        string `json:"name" validate:"required,max=120"`
	Description string `json:"description" validate:"max=500"`
}

type CategoryUpdateRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=500"`
}

type SupplierCreateRequest struct {
	Name          string `json:"name" validate:"required,max=160"`
	ContactPerson string `json:"contactPerson" validate:"max=120"`
	Phone         string `json:"phone" validate:"max=40"`
	Email         string `json:"email" validate:"omitempty,email"`
	Address       string `json:"address" validate:"max=300"`
}

type SupplierUpdateRequest struct {
	Name          *string `json:"name,omitempty" validate:"omitempty,min=1,max=160"`
	ContactPerson *string `json:"contactPerson,omitempty" validate:"omitempty,max=120"`
	Phone         *string `json:"phone,omitempty" validate:"omitempty,max=40"`
	Email         *string `json:"email,omitempty" validate:"omitempty,email"`
	Address       *string `json:"address,omitempty" validate:"omitempty,max=300"`
}

type CustomerCreateRequest struct {
	Name    string `json:"name" validate:"required,max=160"`
	Phone   string `json:"phone" validate:"max=40"`
	Email   string `json:"email" validate:"omitempty,email"`
	Address string `json:"address" validate:"max=300"`
}

type CustomerUpdateRequest struct {
	Name    *string `json:"name,omitempty" validate:"omitempty,min=1,max=160"`
	Phone   *string `json:"phone,omitempty" validate:"omitempty,max=40"`
	Email   *string `json:"email,omitempty" validate:"omitempty,email"`
	Address *string `json:"address,omitempty" validate:"omitempty,max=300"`
}

type DrugCreateRequest struct {
	Name                 string  `json:"name" validate:"required,max=160"`
	GenericName          string  `json:"genericName" validate:"max=160"`
	Brand                string  `json:"brand" validate:"max=120"`
	Barcode              string  `json:"barcode" validate:"max=64"`
	CategoryID           *string `json:"categoryId,omitempty"`
	Form                 string  `json:"form" validate:"max=40"`
	Strength             string  `json:"strength" validate:"max=40"`
	Unit                 string  `json:"unit" validate:"max=40"`
	RequiresPrescription bool    `json:"requiresPrescription"`
	Description          string  `json:"description" validate:"max=1000"`
}

type DrugUpdateRequest struct {
	Name                 *string `json:"name,omitempty" validate:"omitempty,min=1,max=160"`
	GenericName          *string `json:"genericName,omitempty" validate:"omitempty,max=160"`
	Brand                *string `json:"brand,omitempty" validate:"omitempty,max=120"`
	Barcode              *string `json:"barcode,omitempty" validate:"omitempty,max=64"`
	CategoryID           *string `json:"categoryId,omitempty"`
	Form                 *string `json:"form,omitempty" validate:"omitempty,max=40"`
	Strength             *string `json:"strength,omitempty" validate:"omitempty,max=40"`
	Unit                 *string `json:"unit,omitempty" validate:"omitempty,max=40"`
	RequiresPrescription *bool   `json:"requiresPrescription,omitempty"`
	Description          *string `json:"description,omitempty" validate:"omitempty,max=1000"`
}

type BatchCreateRequest struct {
	DrugID       string          `json:"drugId" validate:"required"`
	SupplierID   *string         `json:"supplierId,omitempty"`
	BatchNumber  string          `json:"batchNumber" validate:"required,max=64"`
	ExpiryDate   *Date           `json:"expiryDate,omitempty"`
	Quantity     int             `json:"quantity" validate:"min=0"`
	CostPrice    decimal.Decimal `json:"costPrice"`
	SellingPrice decimal.Decimal `json:"sellingPrice"`
}

// BatchUpdateRequest never carries a quantity: stock moves only through
// sales, refunds and purchase receipts.
type BatchUpdateRequest struct {
	SupplierID   *string          `json:"supplierId,omitempty"`
	BatchNumber  *string          `json:"batchNumber,omitempty" validate:"omitempty,min=1,max=64"`
	ExpiryDate   *Date            `json:"expiryDate,omitempty"`
	CostPrice    *decimal.Decimal `json:"costPrice,omitempty"`
	SellingPrice *decimal.Decimal `json:"sellingPrice,omitempty"`
}

type SaleLine struct {
	DrugBatchID string          `json:"drugBatchId" validate:"required"`
	Quantity    int             `json:"quantity" validate:"min=1"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
}

type SaleRequest struct {
	Items          []SaleLine       `json:"items" validate:"required,min=1,dive"`
	Subtotal       decimal.Decimal  `json:"subtotal"`
	TaxAmount      decimal.Decimal  `json:"taxAmount"`
	DiscountAmount *decimal.Decimal `json:"discountAmount,omitempty"`
	TotalAmount    decimal.Decimal  `json:"totalAmount"`
	PaymentMethod  string           `json:"paymentMethod" validate:"required,max=40"`
	AmountReceived *decimal.Decimal `json:"amountReceived,omitempty"`
	CustomerID     *string          `json:"customerId,omitempty"`
	CustomerName   string           `json:"customerName" validate:"max=160"`
	CustomerPhone  string           `json:"customerPhone" validate:"max=40"`
	Notes          string           `json:"notes" validate:"max=500"`
	IdempotencyKey string           `json:"idempotencyKey" validate:"max=128"`
}

// SaleReceipt is the receipt-ready view returned by a sale commit.
type SaleReceipt struct {
	Sale           Sale            `json:"sale"`
	AmountReceived decimal.Decimal `json:"amountReceived"`
	Change         decimal.Decimal `json:"change"`
	Duplicate      bool            `json:"duplicate"`
}

type SaleStatusRequest struct {
	Reason string `json:"reason" validate:"max=300"`
}

type PurchaseLine struct {
	DrugID       string          `json:"drugId" validate:"required"`
	DrugBatchID  *string         `json:"drugBatchId,omitempty"`
	BatchNumber  string          `json:"batchNumber" validate:"max=64"`
	ExpiryDate   *Date           `json:"expiryDate,omitempty"`
	Quantity     int             `json:"quantity" validate:"min=1"`
	UnitCost     decimal.Decimal `json:"unitCost"`
	SellingPrice decimal.Decimal `json:"sellingPrice"`
}

type PurchaseCreateRequest struct {
	SupplierID    string         `json:"supplierId" validate:"required"`
	InvoiceNumber string         `json:"invoiceNumber" validate:"max=64"`
	Notes         string         `json:"notes" validate:"max=500"`
	Items         []PurchaseLine `json:"items" validate:"required,min=1,dive"`
}

type SettingRequest struct {
	Value string `json:"value" validate:"max=1000"`
}

type DashboardStats struct {
	TodaySalesTotal   decimal.Decimal `json:"todaySalesTotal"`
	TodaySalesCount   int             `json:"todaySalesCount"`
	TotalStockUnits   int64           `json:"totalStockUnits"`
	LowStockCount     int             `json:"lowStockCount"`
	ExpiringSoonCount int             `json:"expiringSoonCount"`
	ExpiredCount      int             `json:"expiredCount"`
	LowStockThreshold int             `json:"lowStockThreshold"`
	ExpiryWindowDays  int             `json:"expiryWindowDays"`
	GeneratedAt       time.Time       `json:"generatedAt"`
}
