package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/xid"
)

var purchaseRoles = []string{domain.RoleAdmin, domain.RolePharmacist}

// CreatePurchase records an order with a supplier. Stock is untouched until
// the purchase is received.
func (s *Service) CreatePurchase(ctx context.Context, req domain.PurchaseCreateRequest) (domain.Purchase, error) {
	actor, err := requireRole(ctx, purchaseRoles...)
	if err != nil {
		return domain.Purchase{}, err
	}
	req.SupplierID = strings.TrimSpace(req.SupplierID)
	for i := range req.Items {
		req.Items[i].DrugID = strings.TrimSpace(req.Items[i].DrugID)
		req.Items[i].DrugBatchID = trimPtr(req.Items[i].DrugBatchID)
		req.Items[i].BatchNumber = strings.TrimSpace(req.Items[i].BatchNumber)
	}
	if err := s.check(req); err != nil {
		return domain.Purchase{}, err
	}

	purchaseID := xid.New("pur")
	total := decimal.Zero
	items := make([]domain.PurchaseItem, 0, len(req.Items))
	for i, line := range req.Items {
		if line.UnitCost.IsNegative() {
			return domain.Purchase{}, invalid(fmt.Sprintf("items[%d].unitCost", i), "must not be negative")
		}
		if line.SellingPrice.IsNegative() {
			return domain.Purchase{}, invalid(fmt.Sprintf("items[%d].sellingPrice", i), "must not be negative")
		}
		if line.DrugBatchID == nil && line.BatchNumber == "" {
			return domain.Purchase{}, invalid(fmt.Sprintf("items[%d].batchNumber", i), "is required for a new batch")
		}
		lineTotal := line.UnitCost.Mul(decimal.NewFromInt(int64(line.Quantity))).Round(2)
		total = total.Add(lineTotal)
		items = append(items, domain.PurchaseItem{
			ID:           xid.New("pitem"),
			PurchaseID:   purchaseID,
			DrugID:       line.DrugID,
			DrugBatchID:  line.DrugBatchID,
			BatchNumber:  line.BatchNumber,
			ExpiryDate:   line.ExpiryDate.Ptr(),
			Quantity:     line.Quantity,
			UnitCost:     line.UnitCost.Round(2),
			SellingPrice: line.SellingPrice.Round(2),
			TotalCost:    lineTotal,
			Position:     i,
		})
	}

	created, err := s.repo.CreatePurchase(ctx, domain.Purchase{
		ID:            purchaseID,
		SupplierID:    req.SupplierID,
		InvoiceNumber: strings.TrimSpace(req.InvoiceNumber),
		Status:        domain.PurchaseStatusOrdered,
		TotalAmount:   total,
		Notes:         strings.TrimSpace(req.Notes),
		CreatedBy:     actor.UserID,
		OrderedAt:     s.now(),
		Items:         items,
	})
	if err != nil {
		return domain.Purchase{}, err
	}
	s.audit(ctx, "purchase_create", "purchase", created.ID,
		zap.String("supplier_id", created.SupplierID),
		zap.String("total", created.TotalAmount.StringFixed(2)),
	)
	return *created, nil
}

func (s *Service) ListPurchases(ctx context.Context, status string) ([]domain.Purchase, error) {
	if _, err := requireRole(ctx, purchaseRoles...); err != nil {
		return nil, err
	}
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case "", domain.PurchaseStatusOrdered, domain.PurchaseStatusReceived:
	default:
		return nil, invalid("status", "must be ordered or received")
	}
	return s.repo.ListPurchases(ctx, status)
}

func (s *Service) GetPurchase(ctx context.Context, id string) (domain.Purchase, error) {
	if _, err := requireRole(ctx, purchaseRoles...); err != nil {
		return domain.Purchase{}, err
	}
	purchase, err := s.repo.GetPurchase(ctx, id)
	if err != nil {
		return domain.Purchase{}, err
	}
	return *purchase, nil
}

// ReceivePurchase books the ordered quantities into stock: lines naming a
// batch top it up, the rest become new batches.
func (s *Service) ReceivePurchase(ctx context.Context, id string) (domain.Purchase, error) {
	actor, err := requireRole(ctx, purchaseRoles...)
	if err != nil {
		return domain.Purchase{}, err
	}

	ctx, span := s.tracer.Start(ctx, "purchase.receive")
	defer span.End()
	span.SetAttributes(attribute.String("purchase.id", id))

	pending, err := s.repo.GetPurchase(ctx, id)
	if err != nil {
		span.RecordError(err)
		return domain.Purchase{}, err
	}
	newBatchIDs := make(map[string]string, len(pending.Items))
	for _, item := range pending.Items {
		if item.DrugBatchID == nil {
			newBatchIDs[item.ID] = xid.New("bat")
		}
	}

	received, err := s.repo.ReceivePurchase(ctx, store.PurchaseReceipt{
		PurchaseID:  id,
		ReceivedBy:  actor.UserID,
		At:          s.now(),
		NewBatchIDs: newBatchIDs,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, ErrorCode(err))
		return domain.Purchase{}, err
	}

	s.metrics.PurchasesReceived.Inc()
	s.invalidateDashboard(ctx)
	s.audit(ctx, "purchase_receive", "purchase", received.ID,
		zap.Int("lines", len(received.Items)),
		zap.Int("new_batches", len(newBatchIDs)),
	)
	return *received, nil
}

func (s *Service) DeletePurchase(ctx context.Context, id string) error {
	if _, err := requireRole(ctx, purchaseRoles...); err != nil {
		return err
	}
	if err := s.repo.DeletePurchase(ctx, id); err != nil {
		return err
	}
	s.audit(ctx, "purchase_delete", "purchase", id)
	return nil
}
