package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/domain"
	"stockledger/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestApplyAndLoadInventoryWithJSONSubfields(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	expiry := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)
	item := domain.InventoryItem{
		ID:                "item-1",
		SKU:               "SKU-1",
		Name:              "Oat Milk",
		Category:          "dairy",
		CostPriceCents:    150,
		SellingPriceCents: 300,
		LocationPrices:    map[string]int64{"store-2": 320},
		StockDistribution: map[string]int{"store-1": 7, "wh-1": 3},
		StockQuantity:     10,
		LowStockThreshold: 2,
		Batches:           []domain.Batch{{BatchNumber: "B1", ExpiryDate: &expiry, Quantity: 7, LocationID: "store-1"}},
		LastUpdated:       time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		Version:           4,
	}
	require.NoError(t, s.Apply(ctx, store.ChangeSet{ID: "cs-1", Inventory: []domain.InventoryItem{item}}))

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Inventory, 1)
	got := snap.Inventory[0]
	assert.Equal(t, item.StockDistribution, got.StockDistribution)
	assert.Equal(t, item.LocationPrices, got.LocationPrices)
	require.Len(t, got.Batches, 1)
	assert.True(t, expiry.Equal(*got.Batches[0].ExpiryDate))
	assert.True(t, item.LastUpdated.Equal(got.LastUpdated))
	assert.Equal(t, int64(4), got.Version)

	item.StockDistribution["store-1"] = 5
	item.StockQuantity = 8
	require.NoError(t, s.Apply(ctx, store.ChangeSet{ID: "cs-2", Inventory: []domain.InventoryItem{item}}))
	snap, err = s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Inventory, 1)
	assert.Equal(t, 8, snap.Inventory[0].StockQuantity)
}

func TestTransactionsAreInsertOnlyAndOrderedByTime(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	later := domain.Transaction{ID: "tx-b", Type: domain.TransactionSale, ItemID: "item-1", Quantity: 1, Timestamp: base.Add(500 * time.Millisecond)}
	earlier := domain.Transaction{ID: "tx-a", Type: domain.TransactionRestock, ItemID: "item-1", Quantity: 5, Timestamp: base}
	require.NoError(t, s.Apply(ctx, store.ChangeSet{Transactions: []domain.Transaction{later, earlier}}))

	changed := earlier
	changed.Quantity = 99
	require.NoError(t, s.Apply(ctx, store.ChangeSet{Transactions: []domain.Transaction{changed}}))

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Transactions, 2)
	assert.Equal(t, "tx-a", snap.Transactions[0].ID)
	assert.Equal(t, 5, snap.Transactions[0].Quantity)
	assert.Equal(t, domain.TransactionSale, snap.Transactions[1].Type)
}

func TestApplyRollsBackWholeChangeSet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.Apply(ctx, store.ChangeSet{
		ID:        "cs-bad",
		Customers: []domain.Customer{{ID: "cust-1", Name: "Ana"}},
		Deletes:   []store.Delete{{Collection: store.CollectionTransactions, ID: "tx-1"}},
	})
	require.Error(t, err)

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Customers)
}

func TestCollectionsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	closed := now.Add(8 * time.Hour)

	require.NoError(t, s.Apply(ctx, store.ChangeSet{
		Suppliers: []domain.Supplier{{ID: "sup-1", Name: "Acme"}},
		Employees: []domain.Employee{{ID: "emp-1", Name: "Rin", Email: "rin@example.com", Role: domain.RoleAdmin, PINHash: "$2a$hash", Active: true}},
		Customers: []domain.Customer{{ID: "cust-1", Name: "Ana", LoyaltyPoints: 12, TotalSpentCents: 4500, LastVisit: &now}},
		Expenses:  []domain.Expense{{ID: "exp-1", LocationID: "store-1", Category: "utilities", AmountCents: 9900, Date: now}},
		PurchaseOrders: []domain.PurchaseOrder{{
			ID: "po-1", SupplierID: "sup-1", Status: domain.PurchaseOrderOrdered, DateCreated: now,
			Items:          []domain.PurchaseOrderItem{{ItemID: "item-1", Quantity: 10, CostPriceCents: 100}},
			TotalCostCents: 1000,
		}},
		CashShifts: []domain.CashShift{{
			ID: "shift-1", LocationID: "store-1", StartTime: now, EndTime: &closed, Status: domain.ShiftClosed,
			StartAmountCents: 10000, CashSalesCents: 25000, EndAmountCents: 34000, ExpectedAmountCents: 35000, VarianceCents: -1000,
		}},
	}))

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Employees, 1)
	assert.True(t, snap.Employees[0].Active)
	assert.Equal(t, "$2a$hash", snap.Employees[0].PINHash)
	require.Len(t, snap.Customers, 1)
	require.NotNil(t, snap.Customers[0].LastVisit)
	require.Len(t, snap.PurchaseOrders, 1)
	assert.Equal(t, 10, snap.PurchaseOrders[0].Items[0].Quantity)
	assert.Nil(t, snap.PurchaseOrders[0].ReceivedAt)
	require.Len(t, snap.CashShifts, 1)
	assert.Equal(t, int64(-1000), snap.CashShifts[0].VarianceCents)
	require.NotNil(t, snap.CashShifts[0].EndTime)
	assert.Len(t, snap.Expenses, 1)
	assert.Len(t, snap.Suppliers, 1)
}

func TestHealth(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Health(context.Background()))
}
