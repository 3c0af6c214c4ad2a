package store

import (
	"context"
	"errors"
	"time"

	"stockledger/internal/domain"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("store unavailable")
)

const (
	CollectionInventory      = "inventory"
	CollectionTransactions   = "transactions"
	CollectionSuppliers      = "suppliers"
	CollectionEmployees      = "employees"
	CollectionCustomers      = "customers"
	CollectionExpenses       = "expenses"
	CollectionPurchaseOrders = "purchase_orders"
	CollectionCashShifts     = "cash_shifts"
)

// Collections lists every collection in load order.
var Collections = []string{
	CollectionInventory,
	CollectionTransactions,
	CollectionSuppliers,
	CollectionEmployees,
	CollectionCustomers,
	CollectionExpenses,
	CollectionPurchaseOrders,
	CollectionCashShifts,
}

type Snapshot struct {
	Inventory      []domain.InventoryItem
	Transactions   []domain.Transaction
	Suppliers      []domain.Supplier
	Employees      []domain.Employee
	Customers      []domain.Customer
	Expenses       []domain.Expense
	PurchaseOrders []domain.PurchaseOrder
	CashShifts     []domain.CashShift
}

type Delete struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
}

// ChangeSet is the unit of persistence produced by one committed ledger
// update. Repositories apply it all-or-nothing.
type ChangeSet struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	// Sale marks a checkout; remote stores route it to the batch sale endpoint.
	Sale           bool                   `json:"sale,omitempty"`
	Inventory      []domain.InventoryItem `json:"inventory,omitempty"`
	Transactions   []domain.Transaction   `json:"transactions,omitempty"`
	Customers      []domain.Customer      `json:"customers,omitempty"`
	PurchaseOrders []domain.PurchaseOrder `json:"purchase_orders,omitempty"`
	CashShifts     []domain.CashShift     `json:"cash_shifts,omitempty"`
	Suppliers      []domain.Supplier      `json:"suppliers,omitempty"`
	Employees      []domain.Employee      `json:"employees,omitempty"`
	Expenses       []domain.Expense       `json:"expenses,omitempty"`
	Deletes        []Delete               `json:"deletes,omitempty"`
}

func (c ChangeSet) Empty() bool {
	return len(c.Inventory) == 0 &&
		len(c.Transactions) == 0 &&
		len(c.Customers) == 0 &&
		len(c.PurchaseOrders) == 0 &&
		len(c.CashShifts) == 0 &&
		len(c.Suppliers) == 0 &&
		len(c.Employees) == 0 &&
		len(c.Expenses) == 0 &&
		len(c.Deletes) == 0
}

type Repository interface {
	Health(ctx context.Context) error
	Load(ctx context.Context) (Snapshot, error)
	Apply(ctx context.Context, changes ChangeSet) error
	Close() error
}
