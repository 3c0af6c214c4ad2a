package ledger

import (
	"context"
	"fmt"

	"stockledger/internal/domain"
	"stockledger/internal/store"
)

func (l *Ledger) AdjustStock(ctx context.Context, a Adjustment) (domain.Transaction, error) {
	var out domain.Transaction
	_, err := l.Update(ctx, func(tx *Tx) error {
		t, err := tx.AdjustStock(a)
		out = t
		return err
	})
	return out, err
}

// BulkAdjustStock applies every non-zero line at one location as a single
// commit. Any failing line aborts the whole batch.
func (l *Ledger) BulkAdjustStock(ctx context.Context, locationID string, lines []domain.BulkAdjustLine, reason string, txType domain.TransactionType, user string) ([]domain.Transaction, error) {
	var out []domain.Transaction
	_, err := l.Update(ctx, func(tx *Tx) error {
		out = out[:0]
		for _, line := range lines {
			if line.Delta == 0 {
				continue
			}
			t, err := tx.AdjustStock(Adjustment{
				ItemID:     line.ItemID,
				LocationID: locationID,
				Delta:      line.Delta,
				Type:       txType,
				Reason:     reason,
				UserName:   user,
			})
			if err != nil {
				return fmt.Errorf("line %s: %w", line.ItemID, err)
			}
			out = append(out, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Ledger) TransferStock(ctx context.Context, itemID, fromID, toID string, qty int, user string) ([]domain.Transaction, error) {
	var out []domain.Transaction
	_, err := l.Update(ctx, func(tx *Tx) error {
		t, err := tx.Transfer(itemID, fromID, toID, qty, user)
		out = t
		return err
	})
	return out, err
}

// AddItem creates an item and seeds its stock at one location. A non-zero
// initial quantity is logged as a restock.
func (l *Ledger) AddItem(ctx context.Context, item domain.InventoryItem, locationID string, qty int, batch *domain.BatchInfo, user string) (domain.InventoryItem, error) {
	if qty < 0 {
		return domain.InventoryItem{}, fmt.Errorf("%w: initial quantity must not be negative", ErrInvalidRequest)
	}
	var id string
	cs, err := l.Update(ctx, func(tx *Tx) error {
		created, err := tx.CreateItem(item)
		if err != nil {
			return err
		}
		id = created.ID
		if qty > 0 {
			if _, err := tx.AdjustStock(Adjustment{
				ItemID:     created.ID,
				LocationID: locationID,
				Delta:      qty,
				Type:       domain.TransactionRestock,
				Reason:     "Initial stock",
				Batch:      batch,
				UserName:   user,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.InventoryItem{}, err
	}
	return committedItem(cs, id)
}

func (l *Ledger) UpdateItem(ctx context.Context, id string, mutate func(*domain.InventoryItem) error) (domain.InventoryItem, error) {
	cs, err := l.Update(ctx, func(tx *Tx) error {
		_, err := tx.UpdateItem(id, mutate)
		return err
	})
	if err != nil {
		return domain.InventoryItem{}, err
	}
	return committedItem(cs, id)
}

func committedItem(cs store.ChangeSet, id string) (domain.InventoryItem, error) {
	for _, item := range cs.Inventory {
		if item.ID == id {
			return item, nil
		}
	}
	return domain.InventoryItem{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
}

func (l *Ledger) DeleteItem(ctx context.Context, id string) error {
	_, err := l.Update(ctx, func(tx *Tx) error {
		return tx.DeleteItem(id)
	})
	return err
}
