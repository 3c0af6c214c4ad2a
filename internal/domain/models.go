package domain

import "time"

type LocationType string

const (
	LocationStore     LocationType = "STORE"
	LocationWarehouse LocationType = "WAREHOUSE"
)

type Location struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Type    LocationType `json:"type"`
	Address string       `json:"address,omitempty"`
}

type Batch struct {
	BatchNumber string     `json:"batch_number"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty"`
	Quantity    int        `json:"quantity"`
	LocationID  string     `json:"location_id"`
}

// BatchInfo describes an incoming batch; the quantity and location come from
// the stock adjustment that carries it.
type BatchInfo struct {
	BatchNumber string     `json:"batch_number" validate:"required"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty"`
}

type InventoryItem struct {
	ID                string           `json:"id"`
	SKU               string           `json:"sku"`
	Barcode           string           `json:"barcode,omitempty"`
	Name              string           `json:"name"`
	Category          string           `json:"category"`
	Description       string           `json:"description,omitempty"`
	Supplier          string           `json:"supplier,omitempty"`
	CostPriceCents    int64            `json:"cost_price_cents"`
	SellingPriceCents int64            `json:"selling_price_cents"`
	LocationPrices    map[string]int64 `json:"location_prices,omitempty"`
	StockDistribution map[string]int   `json:"stock_distribution"`
	StockQuantity     int              `json:"stock_quantity"`
	LowStockThreshold int              `json:"low_stock_threshold"`
	Batches           []Batch          `json:"batches,omitempty"`
	LastUpdated       time.Time        `json:"last_updated"`
	Version           int64            `json:"version"`
}

// PriceAt returns the location override when one is set, else the selling price.
func (i InventoryItem) PriceAt(locationID string) int64 {
	if price, ok := i.LocationPrices[locationID]; ok && price > 0 {
		return price
	}
	return i.SellingPriceCents
}

func (i InventoryItem) QuantityAt(locationID string) int {
	return i.StockDistribution[locationID]
}

type TransactionType string

const (
	TransactionSale       TransactionType = "SALE"
	TransactionRestock    TransactionType = "RESTOCK"
	TransactionAdjustment TransactionType = "ADJUSTMENT"
	TransactionTransfer   TransactionType = "TRANSFER"
	TransactionAudit      TransactionType = "AUDIT"
	TransactionRefund     TransactionType = "REFUND"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionSale, TransactionRestock, TransactionAdjustment, TransactionTransfer, TransactionAudit, TransactionRefund:
		return true
	default:
		return false
	}
}

type PaymentMethod string

const (
	PaymentCash PaymentMethod = "CASH"
	PaymentCard PaymentMethod = "CARD"
)

type Transaction struct {
	ID             string          `json:"id"`
	MasterID       string          `json:"master_id,omitempty"`
	OriginalID     string          `json:"original_id,omitempty"`
	Type           TransactionType `json:"type"`
	ItemID         string          `json:"item_id"`
	Quantity       int             `json:"quantity"`
	Reason         string          `json:"reason"`
	Timestamp      time.Time       `json:"timestamp"`
	UserName       string          `json:"user_name"`
	LocationID     string          `json:"location_id"`
	ToLocationID   string          `json:"to_location_id,omitempty"`
	CustomerID     string          `json:"customer_id,omitempty"`
	PaymentMethod  PaymentMethod   `json:"payment_method,omitempty"`
	UnitPriceCents int64           `json:"unit_price_cents,omitempty"`
	AmountCents    int64           `json:"amount_cents,omitempty"`
}

type Customer struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email,omitempty"`
	Phone           string     `json:"phone,omitempty"`
	LoyaltyPoints   int64      `json:"loyalty_points"`
	TotalSpentCents int64      `json:"total_spent_cents"`
	LastVisit       *time.Time `json:"last_visit,omitempty"`
}

type PurchaseOrderStatus string

const (
	PurchaseOrderDraft     PurchaseOrderStatus = "DRAFT"
	PurchaseOrderOrdered   PurchaseOrderStatus = "ORDERED"
	PurchaseOrderReceived  PurchaseOrderStatus = "RECEIVED"
	PurchaseOrderCancelled PurchaseOrderStatus = "CANCELLED"
)

type PurchaseOrderItem struct {
	ItemID         string `json:"item_id" validate:"required"`
	Quantity       int    `json:"quantity" validate:"gt=0"`
	CostPriceCents int64  `json:"cost_price_cents" validate:"gte=0"`
}

type PurchaseOrder struct {
	ID             string              `json:"id"`
	SupplierID     string              `json:"supplier_id"`
	LocationID     string              `json:"location_id,omitempty"`
	Status         PurchaseOrderStatus `json:"status"`
	DateCreated    time.Time           `json:"date_created"`
	Items          []PurchaseOrderItem `json:"items"`
	TotalCostCents int64               `json:"total_cost_cents"`
	InvoiceNumber  string              `json:"invoice_number,omitempty"`
	ReceivedAt     *time.Time          `json:"received_at,omitempty"`
	ReceivedBy     string              `json:"received_by,omitempty"`
}

type ShiftStatus string

const (
	ShiftOpen   ShiftStatus = "OPEN"
	ShiftClosed ShiftStatus = "CLOSED"
)

type CashShift struct {
	ID                  string      `json:"id"`
	LocationID          string      `json:"location_id"`
	OpenedBy            string      `json:"opened_by"`
	ClosedBy            string      `json:"closed_by,omitempty"`
	StartTime           time.Time   `json:"start_time"`
	EndTime             *time.Time  `json:"end_time,omitempty"`
	StartAmountCents    int64       `json:"start_amount_cents"`
	CashSalesCents      int64       `json:"cash_sales_cents"`
	CardSalesCents      int64       `json:"card_sales_cents"`
	Status              ShiftStatus `json:"status"`
	EndAmountCents      int64       `json:"end_amount_cents"`
	ExpectedAmountCents int64       `json:"expected_amount_cents"`
	VarianceCents       int64       `json:"variance_cents"`
	Notes               string      `json:"notes,omitempty"`
}

type Supplier struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContactName string `json:"contact_name,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleCashier = "cashier"
)

type Employee struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	PINHash string `json:"pin_hash,omitempty"`
	Active  bool   `json:"active"`
}

// Public strips the credential hash before the record leaves the process.
func (e Employee) Public() Employee {
	e.PINHash = ""
	return e
}

type Expense struct {
	ID          string    `json:"id"`
	LocationID  string    `json:"location_id"`
	Category    string    `json:"category"`
	AmountCents int64     `json:"amount_cents"`
	Description string    `json:"description,omitempty"`
	Date        time.Time `json:"date"`
	RecordedBy  string    `json:"recorded_by,omitempty"`
}

type Actor struct {
	Username string
	Role     string
}
