package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"stockledger/internal/domain"
	"stockledger/internal/store"
)

// Store keeps every collection in process memory. It is the fallback when no
// durable backend is configured or reachable.
type Store struct {
	mu             sync.RWMutex
	inventory      map[string]domain.InventoryItem
	transactions   map[string]domain.Transaction
	suppliers      map[string]domain.Supplier
	employees      map[string]domain.Employee
	customers      map[string]domain.Customer
	expenses       map[string]domain.Expense
	purchaseOrders map[string]domain.PurchaseOrder
	cashShifts     map[string]domain.CashShift
	applied        int
}

func New() *Store {
	return &Store{
		inventory:      make(map[string]domain.InventoryItem),
		transactions:   make(map[string]domain.Transaction),
		suppliers:      make(map[string]domain.Supplier),
		employees:      make(map[string]domain.Employee),
		customers:      make(map[string]domain.Customer),
		expenses:       make(map[string]domain.Expense),
		purchaseOrders: make(map[string]domain.PurchaseOrder),
		cashShifts:     make(map[string]domain.CashShift),
	}
}

// NewSeeded returns a store holding a small demo catalog spread over the
// given locations, for local development.
func NewSeeded(locations []domain.Location) *Store {
	s := New()
	if len(locations) == 0 {
		return s
	}
	now := time.Now().UTC()
	seed := []struct {
		id, sku, name, category string
		cost, price             int64
		qty                     int
	}{
		{"item-coffee-250", "COF-250", "Ground Coffee 250g", "beverage", 4500, 7900, 40},
		{"item-tea-green", "TEA-GRN", "Green Tea 20 bags", "beverage", 1800, 3500, 25},
		{"item-milk-1l", "MLK-1L", "Fresh Milk 1L", "dairy", 1200, 2200, 30},
		{"item-biscuit", "BSC-CHO", "Chocolate Biscuits", "snack", 900, 1800, 60},
	}
	for _, row := range seed {
		dist := make(map[string]int, len(locations))
		for _, loc := range locations {
			dist[loc.ID] = 0
		}
		dist[locations[0].ID] = row.qty
		s.inventory[row.id] = domain.InventoryItem{
			ID:                row.id,
			SKU:               row.sku,
			Name:              row.name,
			Category:          row.category,
			CostPriceCents:    row.cost,
			SellingPriceCents: row.price,
			StockDistribution: dist,
			StockQuantity:     row.qty,
			LowStockThreshold: 5,
			LastUpdated:       now,
			Version:           1,
		}
	}
	s.suppliers["sup-default"] = domain.Supplier{ID: "sup-default", Name: "Default Wholesale"}
	return s
}

func (s *Store) Health(_ context.Context) error {
	return nil
}

func (s *Store) Load(_ context.Context) (store.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := store.Snapshot{
		Inventory:      make([]domain.InventoryItem, 0, len(s.inventory)),
		Transactions:   make([]domain.Transaction, 0, len(s.transactions)),
		Suppliers:      make([]domain.Supplier, 0, len(s.suppliers)),
		Employees:      make([]domain.Employee, 0, len(s.employees)),
		Customers:      make([]domain.Customer, 0, len(s.customers)),
		Expenses:       make([]domain.Expense, 0, len(s.expenses)),
		PurchaseOrders: make([]domain.PurchaseOrder, 0, len(s.purchaseOrders)),
		CashShifts:     make([]domain.CashShift, 0, len(s.cashShifts)),
	}
	for _, item := range s.inventory {
		snap.Inventory = append(snap.Inventory, item.Clone())
	}
	for _, tx := range s.transactions {
		snap.Transactions = append(snap.Transactions, tx)
	}
	for _, sup := range s.suppliers {
		snap.Suppliers = append(snap.Suppliers, sup)
	}
	for _, emp := range s.employees {
		snap.Employees = append(snap.Employees, emp)
	}
	for _, c := range s.customers {
		snap.Customers = append(snap.Customers, c.Clone())
	}
	for _, e := range s.expenses {
		snap.Expenses = append(snap.Expenses, e)
	}
	for _, po := range s.purchaseOrders {
		snap.PurchaseOrders = append(snap.PurchaseOrders, po.Clone())
	}
	for _, sh := range s.cashShifts {
		snap.CashShifts = append(snap.CashShifts, sh.Clone())
	}

	sort.Slice(snap.Inventory, func(i, j int) bool { return snap.Inventory[i].ID < snap.Inventory[j].ID })
	sort.Slice(snap.Transactions, func(i, j int) bool {
		if snap.Transactions[i].Timestamp.Equal(snap.Transactions[j].Timestamp) {
			return snap.Transactions[i].ID < snap.Transactions[j].ID
		}
		return snap.Transactions[i].Timestamp.Before(snap.Transactions[j].Timestamp)
	})
	return snap, nil
}

// Apply validates the deletes first so a bad change set leaves the store untouched.
func (s *Store) Apply(_ context.Context, changes store.ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, del := range changes.Deletes {
		if !isKnownCollection(del.Collection) {
			return fmt.Errorf("apply change set %s: unknown collection %q", changes.ID, del.Collection)
		}
		if del.Collection == store.CollectionTransactions {
			return fmt.Errorf("apply change set %s: transactions are append-only", changes.ID)
		}
	}

	for _, item := range changes.Inventory {
		s.inventory[item.ID] = item.Clone()
	}
	for _, tx := range changes.Transactions {
		if _, exists := s.transactions[tx.ID]; exists {
			continue
		}
		s.transactions[tx.ID] = tx
	}
	for _, c := range changes.Customers {
		s.customers[c.ID] = c.Clone()
	}
	for _, po := range changes.PurchaseOrders {
		s.purchaseOrders[po.ID] = po.Clone()
	}
	for _, sh := range changes.CashShifts {
		s.cashShifts[sh.ID] = sh.Clone()
	}
	for _, sup := range changes.Suppliers {
		s.suppliers[sup.ID] = sup
	}
	for _, emp := range changes.Employees {
		s.employees[emp.ID] = emp
	}
	for _, e := range changes.Expenses {
		s.expenses[e.ID] = e
	}
	for _, del := range changes.Deletes {
		s.deleteLocked(del)
	}
	s.applied++
	return nil
}

// Applied reports how many change sets have been written.
func (s *Store) Applied() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.applied
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) deleteLocked(del store.Delete) {
	switch del.Collection {
	case store.CollectionInventory:
		delete(s.inventory, del.ID)
	case store.CollectionSuppliers:
		delete(s.suppliers, del.ID)
	case store.CollectionEmployees:
		delete(s.employees, del.ID)
	case store.CollectionCustomers:
		delete(s.customers, del.ID)
	case store.CollectionExpenses:
		delete(s.expenses, del.ID)
	case store.CollectionPurchaseOrders:
		delete(s.purchaseOrders, del.ID)
	case store.CollectionCashShifts:
		delete(s.cashShifts, del.ID)
	}
}

func isKnownCollection(name string) bool {
	for _, c := range store.Collections {
		if c == name {
			return true
		}
	}
	return false
}
