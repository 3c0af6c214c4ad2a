package domain

import "time"

type LoginRequest struct {
	Email string `json:"email" validate:"required,email"`
	PIN   string `json:"pin" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type ItemCreateRequest struct {
	SKU               string           `json:"sku" validate:"required"`
	Barcode           string           `json:"barcode"`
	Name              string           `json:"name" validate:"required"`
	Category          string           `json:"category" validate:"required"`
	Description       string           `json:"description"`
	Supplier          string           `json:"supplier"`
	CostPriceCents    int64            `json:"cost_price_cents" validate:"gte=0"`
	SellingPriceCents int64            `json:"selling_price_cents" validate:"gte=0"`
	LocationPrices    map[string]int64 `json:"location_prices"`
	LowStockThreshold int              `json:"low_stock_threshold" validate:"gte=0"`
	InitialLocationID string           `json:"initial_location_id"`
	InitialQuantity   int              `json:"initial_quantity" validate:"gte=0"`
	Batch             *BatchInfo       `json:"batch,omitempty"`
}

type ItemUpdateRequest struct {
	SKU               *string          `json:"sku,omitempty"`
	Barcode           *string          `json:"barcode,omitempty"`
	Name              *string          `json:"name,omitempty"`
	Category          *string          `json:"category,omitempty"`
	Description       *string          `json:"description,omitempty"`
	Supplier          *string          `json:"supplier,omitempty"`
	CostPriceCents    *int64           `json:"cost_price_cents,omitempty" validate:"omitempty,gte=0"`
	SellingPriceCents *int64           `json:"selling_price_cents,omitempty" validate:"omitempty,gte=0"`
	LocationPrices    map[string]int64 `json:"location_prices,omitempty"`
	LowStockThreshold *int             `json:"low_stock_threshold,omitempty" validate:"omitempty,gte=0"`
	// ExpectedVersion rejects the update when the item changed since it was read.
	ExpectedVersion *int64 `json:"expected_version,omitempty"`
}

type StockAdjustRequest struct {
	ItemID     string          `json:"item_id" validate:"required"`
	LocationID string          `json:"location_id" validate:"required"`
	Delta      int             `json:"delta"`
	Type       TransactionType `json:"type,omitempty"`
	Reason     string          `json:"reason"`
	Batch      *BatchInfo      `json:"batch,omitempty"`
}

type BulkAdjustLine struct {
	ItemID string `json:"item_id" validate:"required"`
	Delta  int    `json:"delta"`
}

type BulkAdjustRequest struct {
	LocationID string           `json:"location_id" validate:"required"`
	Type       TransactionType  `json:"type,omitempty"`
	Reason     string           `json:"reason"`
	Lines      []BulkAdjustLine `json:"lines" validate:"required,min=1,dive"`
}

type TransferRequest struct {
	ItemID         string `json:"item_id" validate:"required"`
	FromLocationID string `json:"from_location_id" validate:"required"`
	ToLocationID   string `json:"to_location_id" validate:"required,nefield=FromLocationID"`
	Quantity       int    `json:"quantity" validate:"gt=0"`
}

type SaleLine struct {
	ItemID   string `json:"item_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

type SaleRequest struct {
	LocationID      string        `json:"location_id" validate:"required"`
	Lines           []SaleLine    `json:"lines" validate:"required,min=1,dive"`
	CustomerID      string        `json:"customer_id,omitempty"`
	DiscountPercent float64       `json:"discount_percent" validate:"gte=0,lte=100"`
	PointsToRedeem  int64         `json:"points_to_redeem" validate:"gte=0"`
	PaymentMethod   PaymentMethod `json:"payment_method" validate:"required,oneof=CASH CARD"`
	Note            string        `json:"note,omitempty"`
}

type ReceiptLine struct {
	TransactionID  string `json:"transaction_id"`
	ItemID         string `json:"item_id"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	AmountCents    int64  `json:"amount_cents"`
}

type SaleReceipt struct {
	MasterID        string        `json:"master_id"`
	LocationID      string        `json:"location_id"`
	PaymentMethod   PaymentMethod `json:"payment_method"`
	CustomerID      string        `json:"customer_id,omitempty"`
	SubtotalCents   int64         `json:"subtotal_cents"`
	DiscountCents   int64         `json:"discount_cents"`
	PointsRedeemed  int64         `json:"points_redeemed"`
	RedemptionCents int64         `json:"redemption_cents"`
	FinalTotalCents int64         `json:"final_total_cents"`
	PointsEarned    int64         `json:"points_earned"`
	CustomerPoints  int64         `json:"customer_points,omitempty"`
	ShiftID         string        `json:"shift_id,omitempty"`
	Lines           []ReceiptLine `json:"lines"`
	Timestamp       time.Time     `json:"timestamp"`
}

type RefundLine struct {
	ItemID   string `json:"item_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

type RefundRequest struct {
	OriginalTransactionID string        `json:"original_transaction_id" validate:"required"`
	LocationID            string        `json:"location_id"`
	Lines                 []RefundLine  `json:"lines" validate:"required,min=1,dive"`
	Restock               bool          `json:"restock"`
	PaymentMethod         PaymentMethod `json:"payment_method,omitempty" validate:"omitempty,oneof=CASH CARD"`
	Reason                string        `json:"reason,omitempty"`
}

type RefundReceipt struct {
	OriginalID       string        `json:"original_id"`
	LocationID       string        `json:"location_id"`
	PaymentMethod    PaymentMethod `json:"payment_method"`
	RefundTotalCents int64         `json:"refund_total_cents"`
	PointsReversed   int64         `json:"points_reversed"`
	CustomerID       string        `json:"customer_id,omitempty"`
	ShiftID          string        `json:"shift_id,omitempty"`
	Restocked        bool          `json:"restocked"`
	Lines            []ReceiptLine `json:"lines"`
	Timestamp        time.Time     `json:"timestamp"`
}

type AuditLine struct {
	ItemID string `json:"item_id" validate:"required"`
	// SystemQuantity is the on-hand figure shown to the counter. When absent
	// the current ledger quantity is used.
	SystemQuantity  *int `json:"system_quantity,omitempty"`
	CountedQuantity int  `json:"counted_quantity" validate:"gte=0"`
}

type AuditRequest struct {
	LocationID string      `json:"location_id" validate:"required"`
	Lines      []AuditLine `json:"lines" validate:"required,min=1,dive"`
}

type AuditAdjustment struct {
	ItemID          string `json:"item_id"`
	SystemQuantity  int    `json:"system_quantity"`
	CountedQuantity int    `json:"counted_quantity"`
	Variance        int    `json:"variance"`
	TransactionID   string `json:"transaction_id,omitempty"`
}

type AuditResult struct {
	LocationID  string            `json:"location_id"`
	Adjustments []AuditAdjustment `json:"adjustments"`
	Applied     int               `json:"applied"`
}

type PurchaseOrderCreateRequest struct {
	SupplierID string              `json:"supplier_id" validate:"required"`
	LocationID string              `json:"location_id"`
	Items      []PurchaseOrderItem `json:"items" validate:"required,min=1,dive"`
}

type PurchaseOrderReceiveRequest struct {
	LocationID    string               `json:"location_id"`
	InvoiceNumber string               `json:"invoice_number"`
	Batches       map[string]BatchInfo `json:"batches,omitempty"`
}

type ShiftOpenRequest struct {
	LocationID       string `json:"location_id" validate:"required"`
	StartAmountCents int64  `json:"start_amount_cents" validate:"gte=0"`
}

type ShiftCloseRequest struct {
	LocationID     string `json:"location_id" validate:"required"`
	EndAmountCents int64  `json:"end_amount_cents" validate:"gte=0"`
	Notes          string `json:"notes"`
}

type CustomerCreateRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone"`
}

type CustomerUpdateRequest struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone *string `json:"phone,omitempty"`
}

type SupplierCreateRequest struct {
	Name        string `json:"name" validate:"required"`
	ContactName string `json:"contact_name"`
	Email       string `json:"email" validate:"omitempty,email"`
	Phone       string `json:"phone"`
}

type ExpenseCreateRequest struct {
	LocationID  string     `json:"location_id" validate:"required"`
	Category    string     `json:"category" validate:"required"`
	AmountCents int64      `json:"amount_cents" validate:"gt=0"`
	Description string     `json:"description"`
	Date        *time.Time `json:"date,omitempty"`
}

type EmployeeCreateRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required,oneof=admin manager cashier"`
	PIN   string `json:"pin" validate:"required,numeric,min=4,max=8"`
}

type TransactionFilter struct {
	ItemID     string
	LocationID string
	Type       TransactionType
	MasterID   string
	From       time.Time
	To         time.Time
	Limit      int
}

type LocationStats struct {
	LocationID       string `json:"location_id"`
	Units            int    `json:"units"`
	CostValueCents   int64  `json:"cost_value_cents"`
	RetailValueCents int64  `json:"retail_value_cents"`
	LowStock         int    `json:"low_stock"`
	OutOfStock       int    `json:"out_of_stock"`
}

type InventoryStats struct {
	TotalItems       int             `json:"total_items"`
	TotalUnits       int             `json:"total_units"`
	CostValueCents   int64           `json:"cost_value_cents"`
	RetailValueCents int64           `json:"retail_value_cents"`
	LowStockCount    int             `json:"low_stock_count"`
	OutOfStockCount  int             `json:"out_of_stock_count"`
	ByLocation       []LocationStats `json:"by_location"`
}

type SalesReportPayment struct {
	PaymentMethod PaymentMethod `json:"payment_method"`
	Sales         int           `json:"sales"`
	TotalCents    int64         `json:"total_cents"`
}

type SalesReportItem struct {
	ItemID      string `json:"item_id"`
	Name        string `json:"name"`
	UnitsSold   int    `json:"units_sold"`
	Refunded    int    `json:"units_refunded"`
	GrossCents  int64  `json:"gross_cents"`
	RefundCents int64  `json:"refund_cents"`
}

type SalesReport struct {
	LocationID       string               `json:"location_id,omitempty"`
	From             time.Time            `json:"from"`
	To               time.Time            `json:"to"`
	Sales            int                  `json:"sales"`
	SaleLines        int                  `json:"sale_lines"`
	Refunds          int                  `json:"refunds"`
	UnitsSold        int                  `json:"units_sold"`
	GrossSalesCents  int64                `json:"gross_sales_cents"`
	RefundTotalCents int64                `json:"refund_total_cents"`
	NetSalesCents    int64                `json:"net_sales_cents"`
	ExpenseCents     int64                `json:"expense_cents"`
	ByPayment        []SalesReportPayment `json:"by_payment"`
	ByItem           []SalesReportItem    `json:"by_item"`
}
