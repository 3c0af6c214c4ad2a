// Package sqlstore persists ledger collections through database/sql. The
// sqlite and postgres packages open the driver and hand the pool here.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"stockledger/internal/domain"
	"stockledger/internal/store"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Store struct {
	db      *sql.DB
	dialect Dialect
}

func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", s.dialect, err)
		}
	}
	return nil
}

func (s *Store) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Load(ctx context.Context) (store.Snapshot, error) {
	var snap store.Snapshot
	var err error

	if snap.Inventory, err = loadRows(ctx, s.db, inventoryTable, scanItem); err != nil {
		return store.Snapshot{}, err
	}
	if snap.Transactions, err = loadRows(ctx, s.db, transactionsTable, scanTransaction); err != nil {
		return store.Snapshot{}, err
	}
	if snap.Suppliers, err = loadRows(ctx, s.db, suppliersTable, scanSupplier); err != nil {
		return store.Snapshot{}, err
	}
	if snap.Employees, err = loadRows(ctx, s.db, employeesTable, scanEmployee); err != nil {
		return store.Snapshot{}, err
	}
	if snap.Customers, err = loadRows(ctx, s.db, customersTable, scanCustomer); err != nil {
		return store.Snapshot{}, err
	}
	if snap.Expenses, err = loadRows(ctx, s.db, expensesTable, scanExpense); err != nil {
		return store.Snapshot{}, err
	}
	if snap.PurchaseOrders, err = loadRows(ctx, s.db, purchaseOrdersTable, scanPurchaseOrder); err != nil {
		return store.Snapshot{}, err
	}
	if snap.CashShifts, err = loadRows(ctx, s.db, cashShiftsTable, scanCashShift); err != nil {
		return store.Snapshot{}, err
	}
	return snap, nil
}

// Apply writes the change set in one database transaction.
func (s *Store) Apply(ctx context.Context, changes store.ChangeSet) error {
	tx, err := s.db.BeginTx(ctx, s.txOptions())
	if err != nil {
		return fmt.Errorf("begin change set %s: %w", changes.ID, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, item := range changes.Inventory {
		args, err := itemArgs(item)
		if err != nil {
			return err
		}
		if err := s.exec(ctx, tx, inventoryTable.upsertSQL(s.dialect), args); err != nil {
			return fmt.Errorf("upsert inventory %s: %w", item.ID, err)
		}
	}
	for _, t := range changes.Transactions {
		if err := s.exec(ctx, tx, transactionsTable.upsertSQL(s.dialect), transactionArgs(t)); err != nil {
			return fmt.Errorf("insert transaction %s: %w", t.ID, err)
		}
	}
	for _, c := range changes.Customers {
		if err := s.exec(ctx, tx, customersTable.upsertSQL(s.dialect), customerArgs(c)); err != nil {
			return fmt.Errorf("upsert customer %s: %w", c.ID, err)
		}
	}
	for _, po := range changes.PurchaseOrders {
		args, err := purchaseOrderArgs(po)
		if err != nil {
			return err
		}
		if err := s.exec(ctx, tx, purchaseOrdersTable.upsertSQL(s.dialect), args); err != nil {
			return fmt.Errorf("upsert purchase order %s: %w", po.ID, err)
		}
	}
	for _, sh := range changes.CashShifts {
		if err := s.exec(ctx, tx, cashShiftsTable.upsertSQL(s.dialect), cashShiftArgs(sh)); err != nil {
			return fmt.Errorf("upsert cash shift %s: %w", sh.ID, err)
		}
	}
	for _, sup := range changes.Suppliers {
		args := []any{sup.ID, sup.Name, sup.ContactName, sup.Email, sup.Phone}
		if err := s.exec(ctx, tx, suppliersTable.upsertSQL(s.dialect), args); err != nil {
			return fmt.Errorf("upsert supplier %s: %w", sup.ID, err)
		}
	}
	for _, emp := range changes.Employees {
		args := []any{emp.ID, emp.Name, emp.Email, emp.Role, emp.PINHash, emp.Active}
		if err := s.exec(ctx, tx, employeesTable.upsertSQL(s.dialect), args); err != nil {
			return fmt.Errorf("upsert employee %s: %w", emp.ID, err)
		}
	}
	for _, e := range changes.Expenses {
		args := []any{e.ID, e.LocationID, e.Category, e.AmountCents, e.Description, formatTime(e.Date), e.RecordedBy}
		if err := s.exec(ctx, tx, expensesTable.upsertSQL(s.dialect), args); err != nil {
			return fmt.Errorf("upsert expense %s: %w", e.ID, err)
		}
	}
	for _, del := range changes.Deletes {
		t, ok := tablesByCollection[del.Collection]
		if !ok {
			return fmt.Errorf("delete from unknown collection %q", del.Collection)
		}
		if t.appendOnly {
			return fmt.Errorf("delete %s/%s: collection is append-only", del.Collection, del.ID)
		}
		if err := s.exec(ctx, tx, t.deleteSQL(s.dialect), []any{del.ID}); err != nil {
			return fmt.Errorf("delete %s/%s: %w", del.Collection, del.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit change set %s: %w", changes.ID, err)
	}
	return nil
}

func (s *Store) txOptions() *sql.TxOptions {
	if s.dialect == Postgres {
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	return nil
}

func (s *Store) exec(ctx context.Context, tx *sql.Tx, query string, args []any) error {
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func loadRows[T any](ctx context.Context, db *sql.DB, t table, scan func(scanner) (T, error)) ([]T, error) {
	rows, err := db.QueryContext(ctx, t.selectSQL())
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", t.name, err)
	}
	defer rows.Close()

	out := make([]T, 0, 64)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.name, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load %s: %w", t.name, err)
	}
	return out, nil
}

func itemArgs(item domain.InventoryItem) ([]any, error) {
	prices, err := encodeJSON(item.LocationPrices, "{}")
	if err != nil {
		return nil, fmt.Errorf("encode location prices %s: %w", item.ID, err)
	}
	dist, err := encodeJSON(item.StockDistribution, "{}")
	if err != nil {
		return nil, fmt.Errorf("encode stock distribution %s: %w", item.ID, err)
	}
	batches, err := encodeJSON(item.Batches, "[]")
	if err != nil {
		return nil, fmt.Errorf("encode batches %s: %w", item.ID, err)
	}
	return []any{
		item.ID, item.SKU, item.Barcode, item.Name, item.Category, item.Description, item.Supplier,
		item.CostPriceCents, item.SellingPriceCents, prices, dist,
		item.StockQuantity, item.LowStockThreshold, batches, formatTime(item.LastUpdated), item.Version,
	}, nil
}

func scanItem(row scanner) (domain.InventoryItem, error) {
	var item domain.InventoryItem
	var prices, dist, batches, lastUpdated string
	err := row.Scan(
		&item.ID, &item.SKU, &item.Barcode, &item.Name, &item.Category, &item.Description, &item.Supplier,
		&item.CostPriceCents, &item.SellingPriceCents, &prices, &dist,
		&item.StockQuantity, &item.LowStockThreshold, &batches, &lastUpdated, &item.Version,
	)
	if err != nil {
		return item, err
	}
	if err := decodeJSON(prices, &item.LocationPrices); err != nil {
		return item, fmt.Errorf("decode location prices %s: %w", item.ID, err)
	}
	if err := decodeJSON(dist, &item.StockDistribution); err != nil {
		return item, fmt.Errorf("decode stock distribution %s: %w", item.ID, err)
	}
	if item.StockDistribution == nil {
		item.StockDistribution = map[string]int{}
	}
	if err := decodeJSON(batches, &item.Batches); err != nil {
		return item, fmt.Errorf("decode batches %s: %w", item.ID, err)
	}
	if item.LastUpdated, err = parseTime(lastUpdated); err != nil {
		return item, err
	}
	return item, nil
}

func transactionArgs(t domain.Transaction) []any {
	return []any{
		t.ID, t.MasterID, t.OriginalID, string(t.Type), t.ItemID, t.Quantity, t.Reason, formatTime(t.Timestamp),
		t.UserName, t.LocationID, t.ToLocationID, t.CustomerID, string(t.PaymentMethod),
		t.UnitPriceCents, t.AmountCents,
	}
}

func scanTransaction(row scanner) (domain.Transaction, error) {
	var t domain.Transaction
	var txType, method, occurredAt string
	err := row.Scan(
		&t.ID, &t.MasterID, &t.OriginalID, &txType, &t.ItemID, &t.Quantity, &t.Reason, &occurredAt,
		&t.UserName, &t.LocationID, &t.ToLocationID, &t.CustomerID, &method,
		&t.UnitPriceCents, &t.AmountCents,
	)
	if err != nil {
		return t, err
	}
	t.Type = domain.TransactionType(txType)
	t.PaymentMethod = domain.PaymentMethod(method)
	t.Timestamp, err = parseTime(occurredAt)
	return t, err
}

func scanSupplier(row scanner) (domain.Supplier, error) {
	var sup domain.Supplier
	err := row.Scan(&sup.ID, &sup.Name, &sup.ContactName, &sup.Email, &sup.Phone)
	return sup, err
}

func scanEmployee(row scanner) (domain.Employee, error) {
	var emp domain.Employee
	err := row.Scan(&emp.ID, &emp.Name, &emp.Email, &emp.Role, &emp.PINHash, &emp.Active)
	return emp, err
}

func customerArgs(c domain.Customer) []any {
	return []any{c.ID, c.Name, c.Email, c.Phone, c.LoyaltyPoints, c.TotalSpentCents, formatTimePtr(c.LastVisit)}
}

func scanCustomer(row scanner) (domain.Customer, error) {
	var c domain.Customer
	var lastVisit string
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.LoyaltyPoints, &c.TotalSpentCents, &lastVisit); err != nil {
		return c, err
	}
	var err error
	c.LastVisit, err = parseTimePtr(lastVisit)
	return c, err
}

func scanExpense(row scanner) (domain.Expense, error) {
	var e domain.Expense
	var date string
	if err := row.Scan(&e.ID, &e.LocationID, &e.Category, &e.AmountCents, &e.Description, &date, &e.RecordedBy); err != nil {
		return e, err
	}
	var err error
	e.Date, err = parseTime(date)
	return e, err
}

func purchaseOrderArgs(po domain.PurchaseOrder) ([]any, error) {
	items, err := encodeJSON(po.Items, "[]")
	if err != nil {
		return nil, fmt.Errorf("encode purchase order items %s: %w", po.ID, err)
	}
	return []any{
		po.ID, po.SupplierID, po.LocationID, string(po.Status), formatTime(po.DateCreated), items,
		po.TotalCostCents, po.InvoiceNumber, formatTimePtr(po.ReceivedAt), po.ReceivedBy,
	}, nil
}

func scanPurchaseOrder(row scanner) (domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	var status, created, items, receivedAt string
	err := row.Scan(&po.ID, &po.SupplierID, &po.LocationID, &status, &created, &items,
		&po.TotalCostCents, &po.InvoiceNumber, &receivedAt, &po.ReceivedBy)
	if err != nil {
		return po, err
	}
	po.Status = domain.PurchaseOrderStatus(status)
	if err := decodeJSON(items, &po.Items); err != nil {
		return po, fmt.Errorf("decode purchase order items %s: %w", po.ID, err)
	}
	if po.DateCreated, err = parseTime(created); err != nil {
		return po, err
	}
	po.ReceivedAt, err = parseTimePtr(receivedAt)
	return po, err
}

func cashShiftArgs(sh domain.CashShift) []any {
	return []any{
		sh.ID, sh.LocationID, sh.OpenedBy, sh.ClosedBy, formatTime(sh.StartTime), formatTimePtr(sh.EndTime),
		sh.StartAmountCents, sh.CashSalesCents, sh.CardSalesCents, string(sh.Status),
		sh.EndAmountCents, sh.ExpectedAmountCents, sh.VarianceCents, sh.Notes,
	}
}

func scanCashShift(row scanner) (domain.CashShift, error) {
	var sh domain.CashShift
	var start, end, status string
	err := row.Scan(&sh.ID, &sh.LocationID, &sh.OpenedBy, &sh.ClosedBy, &start, &end,
		&sh.StartAmountCents, &sh.CashSalesCents, &sh.CardSalesCents, &status,
		&sh.EndAmountCents, &sh.ExpectedAmountCents, &sh.VarianceCents, &sh.Notes)
	if err != nil {
		return sh, err
	}
	sh.Status = domain.ShiftStatus(status)
	if sh.StartTime, err = parseTime(start); err != nil {
		return sh, err
	}
	sh.EndTime, err = parseTimePtr(end)
	return sh, err
}

func encodeJSON(v any, empty string) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(raw) == "null" {
		return empty, nil
	}
	return string(raw), nil
}

func decodeJSON(raw string, dest any) error {
	if raw == "" || raw == "null" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dest)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", raw, err)
	}
	return t.UTC(), nil
}

func parseTimePtr(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := parseTime(raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
