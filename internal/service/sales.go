package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/xid"
)

// receiptAttempts bounds how often a sale is retried with a fresh receipt
// number after a uniqueness clash.
const receiptAttempts = 2

// CommitSale records a sale and decrements every referenced batch as one
// unit. A repeated idempotency key returns the earlier sale with Duplicate set
// and writes nothing.
func (s *Service) CommitSale(ctx context.Context, req domain.SaleRequest) (domain.SaleReceipt, error) {
	ctx, span := s.tracer.Start(ctx, "sale.commit")
	defer span.End()
	span.SetAttributes(attribute.Int("sale.lines", len(req.Items)))

	receipt, err := s.commitSale(ctx, req)
	if err != nil {
		code := ErrorCode(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, code)
		s.metrics.SaleFailures.WithLabelValues(code).Inc()
		s.logger.Warn("sale rejected", zap.String("code", code), zap.Error(err))
		return domain.SaleReceipt{}, err
	}

	span.SetAttributes(
		attribute.String("sale.id", receipt.Sale.ID),
		attribute.String("sale.receipt_number", receipt.Sale.ReceiptNumber),
		attribute.Bool("sale.duplicate", receipt.Duplicate),
	)
	if receipt.Duplicate {
		s.metrics.DuplicateSales.Inc()
		return receipt, nil
	}

	s.metrics.SalesCommitted.Inc()
	s.invalidateDashboard(ctx)
	s.audit(ctx, "sale_commit", "sale", receipt.Sale.ID,
		zap.String("receipt_number", receipt.Sale.ReceiptNumber),
		zap.String("total", receipt.Sale.TotalAmount.StringFixed(2)),
		zap.String("payment_method", receipt.Sale.PaymentMethod),
		zap.Int("lines", len(receipt.Sale.Items)),
	)
	return receipt, nil
}

func (s *Service) commitSale(ctx context.Context, req domain.SaleRequest) (domain.SaleReceipt, error) {
	actor, err := requireRole(ctx)
	if err != nil {
		return domain.SaleReceipt{}, err
	}

	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	req.CustomerID = trimPtr(req.CustomerID)
	for i := range req.Items {
		req.Items[i].DrugBatchID = strings.TrimSpace(req.Items[i].DrugBatchID)
	}
	if err := s.check(req); err != nil {
		return domain.SaleReceipt{}, err
	}
	if err := checkSaleAmounts(req); err != nil {
		return domain.SaleReceipt{}, err
	}

	if req.IdempotencyKey != "" {
		existing, err := s.repo.FindSaleByIdempotencyKey(ctx, req.IdempotencyKey)
		if err == nil {
			return duplicateReceipt(existing), nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return domain.SaleReceipt{}, err
		}
	}

	if req.CustomerID != nil {
		if _, err := s.repo.Customers().Get(ctx, *req.CustomerID); err != nil {
			return domain.SaleReceipt{}, err
		}
	}

	discount := decimal.Zero
	if req.DiscountAmount != nil {
		discount = *req.DiscountAmount
	}
	amountReceived := req.TotalAmount
	if req.AmountReceived != nil {
		amountReceived = *req.AmountReceived
	}
	change := amountReceived.Sub(req.TotalAmount)
	if s.rejectUnderpayment && change.IsNegative() {
		return domain.SaleReceipt{}, invalid("amountReceived", "must cover totalAmount")
	}

	now := s.now()
	sale := domain.Sale{
		ID:             xid.New("sale"),
		UserID:         actor.UserID,
		CustomerID:     req.CustomerID,
		CustomerName:   strings.TrimSpace(req.CustomerName),
		CustomerPhone:  strings.TrimSpace(req.CustomerPhone),
		Subtotal:       req.Subtotal.Round(2),
		TaxAmount:      req.TaxAmount.Round(2),
		DiscountAmount: discount.Round(2),
		TotalAmount:    req.TotalAmount.Round(2),
		AmountReceived: amountReceived.Round(2),
		ChangeDue:      change.Round(2),
		PaymentMethod:  req.PaymentMethod,
		Status:         domain.SaleStatusCompleted,
		Notes:          strings.TrimSpace(req.Notes),
		CreatedAt:      now,
		UpdatedAt:      now,
		Items:          make([]domain.SaleItem, 0, len(req.Items)),
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		sale.IdempotencyKey = &key
	}
	for i, line := range req.Items {
		sale.Items = append(sale.Items, domain.SaleItem{
			ID:          xid.New("sitem"),
			SaleID:      sale.ID,
			DrugBatchID: line.DrugBatchID,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice.Round(2),
			TotalPrice:  line.TotalPrice.Round(2),
			Position:    i,
		})
	}

	var lastErr error
	for attempt := 0; attempt < receiptAttempts; attempt++ {
		sale.ReceiptNumber = xid.Receipt(now)
		created, err := s.repo.CommitSale(ctx, sale)
		if err == nil {
			return domain.SaleReceipt{
				Sale:           *created,
				AmountReceived: created.AmountReceived,
				Change:         created.ChangeDue,
			}, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return domain.SaleReceipt{}, err
		}
		// A concurrent submit with the same key won the race.
		if sale.IdempotencyKey != nil {
			if existing, findErr := s.repo.FindSaleByIdempotencyKey(ctx, *sale.IdempotencyKey); findErr == nil {
				return duplicateReceipt(existing), nil
			}
		}
		lastErr = err
	}
	return domain.SaleReceipt{}, lastErr
}

func checkSaleAmounts(req domain.SaleRequest) error {
	lineSum := decimal.Zero
	for i, line := range req.Items {
		if err := checkMoney(fmt.Sprintf("items[%d].unitPrice", i), line.UnitPrice); err != nil {
			return err
		}
		if err := checkMoney(fmt.Sprintf("items[%d].totalPrice", i), line.TotalPrice); err != nil {
			return err
		}
		expected := line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		if !line.TotalPrice.Equal(expected) {
			return invalid(fmt.Sprintf("items[%d].totalPrice", i), "must equal quantity times unitPrice")
		}
		lineSum = lineSum.Add(line.TotalPrice)
	}

	for _, amount := range []struct {
		field string
		value decimal.Decimal
	}{
		{"subtotal", req.Subtotal},
		{"taxAmount", req.TaxAmount},
		{"totalAmount", req.TotalAmount},
	} {
		if err := checkMoney(amount.field, amount.value); err != nil {
			return err
		}
	}
	discount := decimal.Zero
	if req.DiscountAmount != nil {
		if err := checkMoney("discountAmount", *req.DiscountAmount); err != nil {
			return err
		}
		discount = *req.DiscountAmount
	}
	if req.AmountReceived != nil {
		if err := checkMoney("amountReceived", *req.AmountReceived); err != nil {
			return err
		}
	}

	if !lineSum.Equal(req.Subtotal) {
		return invalid("subtotal", "must equal the sum of item totals")
	}
	if !req.Subtotal.Add(req.TaxAmount).Sub(discount).Equal(req.TotalAmount) {
		return invalid("totalAmount", "must equal subtotal plus tax minus discount")
	}
	return nil
}

// checkMoney rejects negative amounts and amounts finer than a cent.
func checkMoney(field string, value decimal.Decimal) error {
	if value.IsNegative() {
		return invalid(field, "must not be negative")
	}
	if !value.Equal(value.Round(2)) {
		return invalid(field, "must have at most 2 decimal places")
	}
	return nil
}

func duplicateReceipt(sale *domain.Sale) domain.SaleReceipt {
	return domain.SaleReceipt{
		Sale:           *sale,
		AmountReceived: sale.AmountReceived,
		Change:         sale.ChangeDue,
		Duplicate:      true,
	}
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSaleItems(ctx context.Context, saleID string) ([]domain.SaleItem, error) {
	return s.repo.ListSaleItems(ctx, saleID)
}

// ListSales returns sales created between the from and to calendar days,
// both inclusive. Empty bounds default to today.
func (s *Service) ListSales(ctx context.Context, from string, to string) ([]domain.Sale, error) {
	today := domain.StartOfDay(s.now())
	start, err := parseDay("from", from, today)
	if err != nil {
		return nil, err
	}
	end, err := parseDay("to", to, start)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, invalid("to", "must not be before from")
	}
	return s.repo.SalesInRange(ctx, start, end.AddDate(0, 0, 1))
}

func parseDay(field string, raw string, fallback time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	day, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, invalid(field, "must be a YYYY-MM-DD date")
	}
	return day.UTC(), nil
}

func (s *Service) LookupSaleByIdempotencyKey(ctx context.Context, key string) (domain.Sale, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.Sale{}, invalid("idempotencyKey", "is required")
	}
	sale, err := s.repo.FindSaleByIdempotencyKey(ctx, key)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

// RefundSale marks a completed sale refunded and returns its items to stock.
func (s *Service) RefundSale(ctx context.Context, id string, req domain.SaleStatusRequest) (domain.Sale, error) {
	return s.reverseSale(ctx, id, domain.SaleStatusRefunded, req)
}

// CancelSale marks a completed sale cancelled and returns its items to stock.
func (s *Service) CancelSale(ctx context.Context, id string, req domain.SaleStatusRequest) (domain.Sale, error) {
	return s.reverseSale(ctx, id, domain.SaleStatusCancelled, req)
}

func (s *Service) reverseSale(ctx context.Context, id string, status string, req domain.SaleStatusRequest) (domain.Sale, error) {
	if _, err := requireRole(ctx, adminOnly...); err != nil {
		return domain.Sale{}, err
	}
	if err := s.check(req); err != nil {
		return domain.Sale{}, err
	}

	ctx, span := s.tracer.Start(ctx, "sale."+status)
	defer span.End()
	span.SetAttributes(attribute.String("sale.id", id))

	sale, err := s.repo.SetSaleStatus(ctx, store.SaleStatusChange{
		SaleID:  id,
		From:    domain.SaleStatusCompleted,
		To:      status,
		Restock: true,
		At:      s.now(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, ErrorCode(err))
		return domain.Sale{}, err
	}

	s.invalidateDashboard(ctx)
	s.audit(ctx, "sale_"+status, "sale", sale.ID,
		zap.String("receipt_number", sale.ReceiptNumber),
		zap.String("reason", strings.TrimSpace(req.Reason)),
	)
	return *sale, nil
}
