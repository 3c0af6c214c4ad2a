package service

import (
	"context"
	"fmt"
	"strings"

	"stockledger/internal/domain"
	"stockledger/internal/ledger"
)

func (s *Service) ListItems(_ context.Context) []domain.InventoryItem {
	return s.ledger.Items()
}

func (s *Service) GetItem(_ context.Context, id string) (domain.InventoryItem, error) {
	return s.ledger.Item(id)
}

func (s *Service) CreateItem(ctx context.Context, req domain.ItemCreateRequest) (domain.InventoryItem, error) {
	if err := requireManager(ctx); err != nil {
		return domain.InventoryItem{}, err
	}
	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if err := s.check(req); err != nil {
		return domain.InventoryItem{}, err
	}
	locationID := req.InitialLocationID
	if locationID == "" {
		locationID = s.ledger.Locations()[0].ID
	}
	if _, err := s.ledger.Location(locationID); err != nil {
		return domain.InventoryItem{}, err
	}
	if err := s.checkPrices(req.LocationPrices); err != nil {
		return domain.InventoryItem{}, err
	}

	item, err := s.ledger.AddItem(ctx, domain.InventoryItem{
		SKU:               req.SKU,
		Barcode:           strings.TrimSpace(req.Barcode),
		Name:              req.Name,
		Category:          req.Category,
		Description:       req.Description,
		Supplier:          req.Supplier,
		CostPriceCents:    req.CostPriceCents,
		SellingPriceCents: req.SellingPriceCents,
		LocationPrices:    req.LocationPrices,
		LowStockThreshold: req.LowStockThreshold,
	}, locationID, req.InitialQuantity, req.Batch, actorName(ctx))
	if err != nil {
		return domain.InventoryItem{}, err
	}
	s.log.Info().Str("item_id", item.ID).Str("sku", item.SKU).Int("initial_qty", req.InitialQuantity).Msg("item created")
	return item, nil
}

func (s *Service) checkPrices(prices map[string]int64) error {
	for loc, price := range prices {
		if _, err := s.ledger.Location(loc); err != nil {
			return err
		}
		if price < 0 {
			return fmt.Errorf("%w: negative price at %s", ledger.ErrInvalidRequest, loc)
		}
	}
	return nil
}

// UpdateItem edits descriptive and pricing fields. When ExpectedVersion is set
// the update only applies to that version of the item.
func (s *Service) UpdateItem(ctx context.Context, id string, req domain.ItemUpdateRequest) (domain.InventoryItem, error) {
	if err := requireManager(ctx); err != nil {
		return domain.InventoryItem{}, err
	}
	if err := s.check(req); err != nil {
		return domain.InventoryItem{}, err
	}
	if err := s.checkPrices(req.LocationPrices); err != nil {
		return domain.InventoryItem{}, err
	}

	return s.ledger.UpdateItem(ctx, id, func(item *domain.InventoryItem) error {
		if req.ExpectedVersion != nil && *req.ExpectedVersion != item.Version {
			return fmt.Errorf("%w: %s is at version %d, expected %d", ledger.ErrVersionConflict, id, item.Version, *req.ExpectedVersion)
		}
		if req.SKU != nil {
			sku := strings.ToUpper(strings.TrimSpace(*req.SKU))
			if sku == "" {
				return fmt.Errorf("%w: sku must not be empty", ledger.ErrInvalidRequest)
			}
			item.SKU = sku
		}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return fmt.Errorf("%w: name must not be empty", ledger.ErrInvalidRequest)
			}
			item.Name = name
		}
		if req.Barcode != nil {
			item.Barcode = strings.TrimSpace(*req.Barcode)
		}
		if req.Category != nil {
			item.Category = strings.TrimSpace(*req.Category)
		}
		if req.Description != nil {
			item.Description = *req.Description
		}
		if req.Supplier != nil {
			item.Supplier = *req.Supplier
		}
		if req.CostPriceCents != nil {
			item.CostPriceCents = *req.CostPriceCents
		}
		if req.SellingPriceCents != nil {
			item.SellingPriceCents = *req.SellingPriceCents
		}
		if req.LowStockThreshold != nil {
			item.LowStockThreshold = *req.LowStockThreshold
		}
		if req.LocationPrices != nil {
			if item.LocationPrices == nil {
				item.LocationPrices = make(map[string]int64, len(req.LocationPrices))
			}
			for loc, price := range req.LocationPrices {
				if price == 0 {
					delete(item.LocationPrices, loc)
					continue
				}
				item.LocationPrices[loc] = price
			}
		}
		return nil
	})
}

func (s *Service) DeleteItem(ctx context.Context, id string) error {
	if err := requireManager(ctx); err != nil {
		return err
	}
	if err := s.ledger.DeleteItem(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("item_id", id).Msg("item deleted")
	return nil
}

func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustRequest) (domain.Transaction, error) {
	if err := s.check(req); err != nil {
		return domain.Transaction{}, err
	}
	return s.ledger.AdjustStock(ctx, ledger.Adjustment{
		ItemID:     req.ItemID,
		LocationID: req.LocationID,
		Delta:      req.Delta,
		Type:       req.Type,
		Reason:     req.Reason,
		Batch:      req.Batch,
		UserName:   actorName(ctx),
	})
}

func (s *Service) BulkAdjust(ctx context.Context, req domain.BulkAdjustRequest) ([]domain.Transaction, error) {
	if err := requireManager(ctx); err != nil {
		return nil, err
	}
	if err := s.check(req); err != nil {
		return nil, err
	}
	return s.ledger.BulkAdjustStock(ctx, req.LocationID, req.Lines, req.Reason, req.Type, actorName(ctx))
}

func (s *Service) Transfer(ctx context.Context, req domain.TransferRequest) ([]domain.Transaction, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	txns, err := s.ledger.TransferStock(ctx, req.ItemID, req.FromLocationID, req.ToLocationID, req.Quantity, actorName(ctx))
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("item_id", req.ItemID).
		Str("from", req.FromLocationID).
		Str("to", req.ToLocationID).
		Int("qty", req.Quantity).
		Msg("stock transferred")
	return txns, nil
}

// CommitAudit books the difference between counted and system quantities.
// Lines without variance are reported but produce no transaction.
func (s *Service) CommitAudit(ctx context.Context, req domain.AuditRequest) (domain.AuditResult, error) {
	if err := requireManager(ctx); err != nil {
		return domain.AuditResult{}, err
	}
	if err := s.check(req); err != nil {
		return domain.AuditResult{}, err
	}
	user := actorName(ctx)

	result := domain.AuditResult{LocationID: req.LocationID}
	_, err := s.ledger.Update(ctx, func(tx *ledger.Tx) error {
		if _, err := tx.Location(req.LocationID); err != nil {
			return err
		}
		result.Adjustments = make([]domain.AuditAdjustment, 0, len(req.Lines))
		result.Applied = 0
		for _, line := range req.Lines {
			item, err := tx.Item(line.ItemID)
			if err != nil {
				return err
			}
			system := item.QuantityAt(req.LocationID)
			if line.SystemQuantity != nil {
				system = *line.SystemQuantity
			}
			adj := domain.AuditAdjustment{
				ItemID:          line.ItemID,
				SystemQuantity:  system,
				CountedQuantity: line.CountedQuantity,
				Variance:        line.CountedQuantity - system,
			}
			if adj.Variance != 0 {
				txn, err := tx.AdjustStock(ledger.Adjustment{
					ItemID:     line.ItemID,
					LocationID: req.LocationID,
					Delta:      adj.Variance,
					Type:       domain.TransactionAudit,
					Reason:     "Audit Correction",
					UserName:   user,
				})
				if err != nil {
					return err
				}
				adj.TransactionID = txn.ID
				result.Applied++
			}
			result.Adjustments = append(result.Adjustments, adj)
		}
		return nil
	})
	if err != nil {
		return domain.AuditResult{}, err
	}
	s.log.Info().Str("location_id", req.LocationID).Int("lines", len(req.Lines)).Int("applied", result.Applied).Msg("audit committed")
	return result, nil
}

func (s *Service) Stats(_ context.Context, locationID string) (domain.InventoryStats, error) {
	return s.ledger.Stats(locationID)
}

func (s *Service) ListTransactions(_ context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown transaction type %q", ledger.ErrInvalidRequest, filter.Type)
	}
	if filter.LocationID != "" {
		if _, err := s.ledger.Location(filter.LocationID); err != nil {
			return nil, err
		}
	}
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 200
	}
	return s.ledger.Transactions(filter), nil
}
