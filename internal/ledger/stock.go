package ledger

import (
	"sort"
	"strings"

	"stockledger/internal/domain"
)

const auditReason = "Audit Correction"

// ClassifyReason derives a transaction type from a free-text reason. It is
// only consulted when a caller does not name the type explicitly.
func ClassifyReason(reason string, delta int) domain.TransactionType {
	switch {
	case strings.Contains(strings.ToLower(reason), "sale"):
		return domain.TransactionSale
	case reason == auditReason:
		return domain.TransactionAudit
	case delta > 0:
		return domain.TransactionRestock
	default:
		return domain.TransactionAdjustment
	}
}

func sumDistribution(dist map[string]int) int {
	total := 0
	for _, qty := range dist {
		total += qty
	}
	return total
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// compareBatchFEFO orders batches with the earliest expiry first; batches
// without an expiry go last.
func compareBatchFEFO(a, b domain.Batch) int {
	if a.ExpiryDate == nil && b.ExpiryDate != nil {
		return 1
	}
	if a.ExpiryDate != nil && b.ExpiryDate == nil {
		return -1
	}
	if a.ExpiryDate != nil && b.ExpiryDate != nil {
		if a.ExpiryDate.Before(*b.ExpiryDate) {
			return -1
		}
		if a.ExpiryDate.After(*b.ExpiryDate) {
			return 1
		}
	}
	return 0
}

// fefoIndexes returns the positions of batches held at locationID in
// depletion order. Equal expiries keep arrival order.
func fefoIndexes(batches []domain.Batch, locationID string) []int {
	idx := make([]int, 0, len(batches))
	for i, b := range batches {
		if b.LocationID == locationID && b.Quantity > 0 {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return compareBatchFEFO(batches[idx[i]], batches[idx[j]]) < 0
	})
	return idx
}

// takeFEFO removes up to qty units from the batches at locationID and returns
// the portions taken. Emptied batches are dropped.
func takeFEFO(item *domain.InventoryItem, locationID string, qty int) []domain.Batch {
	if qty <= 0 || len(item.Batches) == 0 {
		return nil
	}
	var taken []domain.Batch
	remaining := qty
	for _, i := range fefoIndexes(item.Batches, locationID) {
		if remaining == 0 {
			break
		}
		b := &item.Batches[i]
		n := b.Quantity
		if n > remaining {
			n = remaining
		}
		b.Quantity -= n
		remaining -= n
		portion := *b
		portion.Quantity = n
		taken = append(taken, portion)
	}

	kept := item.Batches[:0]
	for _, b := range item.Batches {
		if b.Quantity > 0 {
			kept = append(kept, b)
		}
	}
	item.Batches = kept
	return taken
}

func sameExpiry(a, b domain.Batch) bool {
	if a.ExpiryDate == nil || b.ExpiryDate == nil {
		return a.ExpiryDate == nil && b.ExpiryDate == nil
	}
	return a.ExpiryDate.Equal(*b.ExpiryDate)
}

// placeBatches adds moved portions at locationID, merging into an existing
// batch with the same number and expiry.
func placeBatches(item *domain.InventoryItem, locationID string, portions []domain.Batch) {
	for _, p := range portions {
		p.LocationID = locationID
		merged := false
		for i := range item.Batches {
			b := &item.Batches[i]
			if b.LocationID == locationID && b.BatchNumber == p.BatchNumber && sameExpiry(*b, p) {
				b.Quantity += p.Quantity
				merged = true
				break
			}
		}
		if !merged {
			item.Batches = append(item.Batches, p)
		}
	}
}
