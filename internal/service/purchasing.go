package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"stockledger/internal/domain"
	"stockledger/internal/ledger"
)

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	if err := requireManager(ctx); err != nil {
		return domain.Supplier{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	if err := s.check(req); err != nil {
		return domain.Supplier{}, err
	}

	var supplier domain.Supplier
	_, err := s.ledger.Update(ctx, func(tx *ledger.Tx) error {
		supplier = tx.PutSupplier(domain.Supplier{
			Name:        req.Name,
			ContactName: req.ContactName,
			Email:       req.Email,
			Phone:       req.Phone,
		})
		return nil
	})
	return supplier, err
}

func (s *Service) ListSuppliers(_ context.Context) []domain.Supplier {
	return s.ledger.Suppliers()
}

// CreatePurchaseOrder places an order straight into ORDERED. The total is
// fixed here and not recomputed later.
func (s *Service) CreatePurchaseOrder(ctx context.Context, req domain.PurchaseOrderCreateRequest) (domain.PurchaseOrder, error) {
	if err := requireManager(ctx); err != nil {
		return domain.PurchaseOrder{}, err
	}
	if err := s.check(req); err != nil {
		return domain.PurchaseOrder{}, err
	}

	var po domain.PurchaseOrder
	_, err := s.ledger.Update(ctx, func(tx *ledger.Tx) error {
		if _, ok := tx.Supplier(req.SupplierID); !ok {
			return fmt.Errorf("%w: unknown supplier %s", ledger.ErrInvalidRequest, req.SupplierID)
		}
		if req.LocationID != "" {
			if _, err := tx.Location(req.LocationID); err != nil {
				return err
			}
		}
		var total int64
		for _, line := range req.Items {
			if _, err := tx.Item(line.ItemID); err != nil {
				return err
			}
			total += int64(line.Quantity) * line.CostPriceCents
		}
		po = tx.PutPurchaseOrder(domain.PurchaseOrder{
			SupplierID:     req.SupplierID,
			LocationID:     req.LocationID,
			Status:         domain.PurchaseOrderOrdered,
			DateCreated:    tx.Now(),
			Items:          append([]domain.PurchaseOrderItem(nil), req.Items...),
			TotalCostCents: total,
		})
		return nil
	})
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	s.log.Info().Str("po_id", po.ID).Int("lines", len(po.Items)).Int64("total_cents", po.TotalCostCents).Msg("purchase order created")
	return po, nil
}

func (s *Service) ListPurchaseOrders(_ context.Context, status string) ([]domain.PurchaseOrder, error) {
	st := domain.PurchaseOrderStatus(strings.ToUpper(strings.TrimSpace(status)))
	switch st {
	case "", domain.PurchaseOrderDraft, domain.PurchaseOrderOrdered, domain.PurchaseOrderReceived, domain.PurchaseOrderCancelled:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ledger.ErrInvalidRequest, status)
	}
	return s.ledger.PurchaseOrders(st), nil
}

func (s *Service) GetPurchaseOrder(_ context.Context, id string) (domain.PurchaseOrder, error) {
	return s.ledger.PurchaseOrder(id)
}

// ReceivePurchaseOrder books every line into stock exactly once and moves
// each item's cost to the weighted average of on-hand and received units.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, id string, req domain.PurchaseOrderReceiveRequest) (domain.PurchaseOrder, error) {
	if err := requireManager(ctx); err != nil {
		return domain.PurchaseOrder{}, err
	}
	for itemID, batch := range req.Batches {
		if err := s.check(batch); err != nil {
			return domain.PurchaseOrder{}, fmt.Errorf("batch for %s: %w", itemID, err)
		}
	}
	user := actorName(ctx)

	var po domain.PurchaseOrder
	_, err := s.ledger.Update(ctx, func(tx *ledger.Tx) error {
		var err error
		po, err = tx.PurchaseOrder(id)
		if err != nil {
			return err
		}
		switch po.Status {
		case domain.PurchaseOrderOrdered:
		case domain.PurchaseOrderReceived:
			return fmt.Errorf("%w: %s", ledger.ErrPurchaseOrderReceived, id)
		default:
			return fmt.Errorf("%w: cannot receive %s purchase order", ledger.ErrInvalidState, po.Status)
		}

		locationID := req.LocationID
		if locationID == "" {
			locationID = po.LocationID
		}
		if locationID == "" {
			return fmt.Errorf("%w: receiving location is required", ledger.ErrInvalidRequest)
		}
		if _, err := tx.Location(locationID); err != nil {
			return err
		}

		reason := "Received PO " + po.ID
		if inv := strings.TrimSpace(req.InvoiceNumber); inv != "" {
			reason = fmt.Sprintf("Received PO %s (Invoice %s)", po.ID, inv)
		}

		for _, line := range po.Items {
			item, err := tx.Item(line.ItemID)
			if err != nil {
				return err
			}
			cost := weightedCostCents(item.CostPriceCents, item.StockQuantity, line.CostPriceCents, line.Quantity)
			if _, err := tx.UpdateItem(line.ItemID, func(it *domain.InventoryItem) error {
				it.CostPriceCents = cost
				return nil
			}); err != nil {
				return err
			}

			var batch *domain.BatchInfo
			if b, ok := req.Batches[line.ItemID]; ok {
				batch = &b
			}
			if _, err := tx.AdjustStock(ledger.Adjustment{
				ItemID:     line.ItemID,
				LocationID: locationID,
				Delta:      line.Quantity,
				Type:       domain.TransactionRestock,
				Reason:     reason,
				Batch:      batch,
				UserName:   user,
			}); err != nil {
				return err
			}
		}

		now := tx.Now()
		po.Status = domain.PurchaseOrderReceived
		po.LocationID = locationID
		po.InvoiceNumber = strings.TrimSpace(req.InvoiceNumber)
		po.ReceivedAt = &now
		po.ReceivedBy = user
		tx.PutPurchaseOrder(po)
		return nil
	})
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	s.log.Info().Str("po_id", po.ID).Str("location_id", po.LocationID).Str("invoice", po.InvoiceNumber).Msg("purchase order received")
	return po, nil
}

func (s *Service) CancelPurchaseOrder(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	if err := requireManager(ctx); err != nil {
		return domain.PurchaseOrder{}, err
	}
	var po domain.PurchaseOrder
	_, err := s.ledger.Update(ctx, func(tx *ledger.Tx) error {
		var err error
		po, err = tx.PurchaseOrder(id)
		if err != nil {
			return err
		}
		switch po.Status {
		case domain.PurchaseOrderDraft, domain.PurchaseOrderOrdered:
		case domain.PurchaseOrderReceived:
			return fmt.Errorf("%w: %s", ledger.ErrPurchaseOrderReceived, id)
		default:
			return fmt.Errorf("%w: purchase order is already %s", ledger.ErrInvalidState, po.Status)
		}
		po.Status = domain.PurchaseOrderCancelled
		tx.PutPurchaseOrder(po)
		return nil
	})
	return po, err
}

func weightedCostCents(oldCost int64, oldQty int, incomingCost int64, incomingQty int) int64 {
	if incomingQty <= 0 || incomingCost <= 0 {
		return oldCost
	}
	if oldQty <= 0 || oldCost <= 0 {
		return incomingCost
	}
	totalQty := oldQty + incomingQty
	totalValue := oldCost*int64(oldQty) + incomingCost*int64(incomingQty)
	weighted := int64(math.Round(float64(totalValue) / float64(totalQty)))
	if weighted < 1 {
		return 1
	}
	return weighted
}
