package sqlstore

import (
	"strconv"
	"strings"
)

type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

// rebind rewrites ? placeholders to $n for postgres.
func (d Dialect) rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Sub-fields (distribution, batches, prices, PO lines) live in TEXT columns as
// JSON. Times are fixed-width UTC text so lexical order matches time order.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS inventory (
		id TEXT PRIMARY KEY,
		sku TEXT NOT NULL,
		barcode TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		supplier TEXT NOT NULL DEFAULT '',
		cost_price_cents BIGINT NOT NULL DEFAULT 0,
		selling_price_cents BIGINT NOT NULL DEFAULT 0,
		location_prices TEXT NOT NULL DEFAULT '{}',
		stock_distribution TEXT NOT NULL DEFAULT '{}',
		stock_quantity BIGINT NOT NULL DEFAULT 0,
		low_stock_threshold BIGINT NOT NULL DEFAULT 0,
		batches TEXT NOT NULL DEFAULT '[]',
		last_updated TEXT NOT NULL DEFAULT '',
		version BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		master_id TEXT NOT NULL DEFAULT '',
		original_id TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL,
		item_id TEXT NOT NULL,
		quantity BIGINT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		occurred_at TEXT NOT NULL,
		user_name TEXT NOT NULL DEFAULT '',
		location_id TEXT NOT NULL DEFAULT '',
		to_location_id TEXT NOT NULL DEFAULT '',
		customer_id TEXT NOT NULL DEFAULT '',
		payment_method TEXT NOT NULL DEFAULT '',
		unit_price_cents BIGINT NOT NULL DEFAULT 0,
		amount_cents BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_item_time ON transactions (item_id, occurred_at)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_master ON transactions (master_id)`,
	`CREATE TABLE IF NOT EXISTS suppliers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		contact_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		role TEXT NOT NULL,
		pin_hash TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		loyalty_points BIGINT NOT NULL DEFAULT 0,
		total_spent_cents BIGINT NOT NULL DEFAULT 0,
		last_visit TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		location_id TEXT NOT NULL,
		category TEXT NOT NULL,
		amount_cents BIGINT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		expense_date TEXT NOT NULL,
		recorded_by TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS purchase_orders (
		id TEXT PRIMARY KEY,
		supplier_id TEXT NOT NULL,
		location_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		date_created TEXT NOT NULL,
		items TEXT NOT NULL DEFAULT '[]',
		total_cost_cents BIGINT NOT NULL DEFAULT 0,
		invoice_number TEXT NOT NULL DEFAULT '',
		received_at TEXT NOT NULL DEFAULT '',
		received_by TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS cash_shifts (
		id TEXT PRIMARY KEY,
		location_id TEXT NOT NULL,
		opened_by TEXT NOT NULL DEFAULT '',
		closed_by TEXT NOT NULL DEFAULT '',
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL DEFAULT '',
		start_amount_cents BIGINT NOT NULL DEFAULT 0,
		cash_sales_cents BIGINT NOT NULL DEFAULT 0,
		card_sales_cents BIGINT NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		end_amount_cents BIGINT NOT NULL DEFAULT 0,
		expected_amount_cents BIGINT NOT NULL DEFAULT 0,
		variance_cents BIGINT NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT ''
	)`,
}

type table struct {
	name       string
	columns    []string
	appendOnly bool
}

var (
	inventoryTable = table{name: "inventory", columns: []string{
		"id", "sku", "barcode", "name", "category", "description", "supplier",
		"cost_price_cents", "selling_price_cents", "location_prices", "stock_distribution",
		"stock_quantity", "low_stock_threshold", "batches", "last_updated", "version",
	}}
	transactionsTable = table{name: "transactions", appendOnly: true, columns: []string{
		"id", "master_id", "original_id", "type", "item_id", "quantity", "reason", "occurred_at",
		"user_name", "location_id", "to_location_id", "customer_id", "payment_method",
		"unit_price_cents", "amount_cents",
	}}
	suppliersTable = table{name: "suppliers", columns: []string{"id", "name", "contact_name", "email", "phone"}}
	employeesTable = table{name: "employees", columns: []string{"id", "name", "email", "role", "pin_hash", "active"}}
	customersTable = table{name: "customers", columns: []string{
		"id", "name", "email", "phone", "loyalty_points", "total_spent_cents", "last_visit",
	}}
	expensesTable = table{name: "expenses", columns: []string{
		"id", "location_id", "category", "amount_cents", "description", "expense_date", "recorded_by",
	}}
	purchaseOrdersTable = table{name: "purchase_orders", columns: []string{
		"id", "supplier_id", "location_id", "status", "date_created", "items", "total_cost_cents",
		"invoice_number", "received_at", "received_by",
	}}
	cashShiftsTable = table{name: "cash_shifts", columns: []string{
		"id", "location_id", "opened_by", "closed_by", "start_time", "end_time", "start_amount_cents",
		"cash_sales_cents", "card_sales_cents", "status", "end_amount_cents", "expected_amount_cents",
		"variance_cents", "notes",
	}}
)

// tablesByCollection maps collection names to their tables; deletes are only
// accepted for names in this map.
var tablesByCollection = map[string]table{
	"inventory":       inventoryTable,
	"transactions":    transactionsTable,
	"suppliers":       suppliersTable,
	"employees":       employeesTable,
	"customers":       customersTable,
	"expenses":        expensesTable,
	"purchase_orders": purchaseOrdersTable,
	"cash_shifts":     cashShiftsTable,
}

func (t table) selectSQL() string {
	q := "SELECT " + strings.Join(t.columns, ", ") + " FROM " + t.name
	if t.appendOnly {
		q += " ORDER BY occurred_at, id"
	} else {
		q += " ORDER BY id"
	}
	return q
}

func (t table) upsertSQL(d Dialect) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(t.columns)), ", ")
	q := "INSERT INTO " + t.name + " (" + strings.Join(t.columns, ", ") + ") VALUES (" + placeholders + ") ON CONFLICT (id) DO "
	if t.appendOnly {
		q += "NOTHING"
		return d.rebind(q)
	}
	sets := make([]string, 0, len(t.columns)-1)
	for _, col := range t.columns[1:] {
		sets = append(sets, col+" = excluded."+col)
	}
	q += "UPDATE SET " + strings.Join(sets, ", ")
	return d.rebind(q)
}

func (t table) deleteSQL(d Dialect) string {
	return d.rebind("DELETE FROM " + t.name + " WHERE id = ?")
}
