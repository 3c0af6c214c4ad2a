package domain

import "time"

func (i InventoryItem) Clone() InventoryItem {
	dup := i
	if i.LocationPrices != nil {
		dup.LocationPrices = make(map[string]int64, len(i.LocationPrices))
		for k, v := range i.LocationPrices {
			dup.LocationPrices[k] = v
		}
	}
	dup.StockDistribution = make(map[string]int, len(i.StockDistribution))
	for k, v := range i.StockDistribution {
		dup.StockDistribution[k] = v
	}
	if i.Batches != nil {
		dup.Batches = make([]Batch, len(i.Batches))
		for idx, batch := range i.Batches {
			dup.Batches[idx] = batch.clone()
		}
	}
	return dup
}

func (b Batch) clone() Batch {
	dup := b
	dup.ExpiryDate = cloneTime(b.ExpiryDate)
	return dup
}

func (c Customer) Clone() Customer {
	dup := c
	dup.LastVisit = cloneTime(c.LastVisit)
	return dup
}

func (p PurchaseOrder) Clone() PurchaseOrder {
	dup := p
	dup.Items = make([]PurchaseOrderItem, len(p.Items))
	copy(dup.Items, p.Items)
	dup.ReceivedAt = cloneTime(p.ReceivedAt)
	return dup
}

func (s CashShift) Clone() CashShift {
	dup := s
	dup.EndTime = cloneTime(s.EndTime)
	return dup
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
