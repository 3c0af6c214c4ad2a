package remote

import (
	"encoding/json"
	"time"

	"stockledger/internal/domain"
)

// embedded carries a sub-document that the collection service stores as a
// JSON-encoded string column. Reads accept either form.
type embedded[T any] struct {
	V T
}

func (e embedded[T]) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(e.V)
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(raw))
}

func (e *embedded[T]) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" || s == "null" {
			return nil
		}
		return json.Unmarshal([]byte(s), &e.V)
	}
	return json.Unmarshal(b, &e.V)
}

type wireBatch struct {
	BatchNumber string `json:"batchNumber"`
	ExpiryDate  string `json:"expiryDate,omitempty"`
	Quantity    int    `json:"quantity"`
	LocationID  string `json:"locationId"`
}

type wireItem struct {
	ID                string                     `json:"id"`
	SKU               string                     `json:"sku"`
	Barcode           string                     `json:"barcode,omitempty"`
	Name              string                     `json:"name"`
	Category          string                     `json:"category"`
	Description       string                     `json:"description,omitempty"`
	Supplier          string                     `json:"supplier,omitempty"`
	CostPriceCents    int64                      `json:"costPriceCents"`
	SellingPriceCents int64                      `json:"sellingPriceCents"`
	LocationPrices    embedded[map[string]int64] `json:"locationPrices"`
	StockDistribution embedded[map[string]int]   `json:"stockDistribution"`
	StockQuantity     int                        `json:"stockQuantity"`
	LowStockThreshold int                        `json:"lowStockThreshold"`
	Batches           embedded[[]wireBatch]      `json:"batches"`
	LastUpdated       string                     `json:"lastUpdated"`
	Version           int64                      `json:"version"`
}

type wireTransaction struct {
	ID             string `json:"id"`
	MasterID       string `json:"masterId,omitempty"`
	OriginalID     string `json:"originalTransactionId,omitempty"`
	Type           string `json:"type"`
	ItemID         string `json:"itemId"`
	Quantity       int    `json:"quantity"`
	Reason         string `json:"reason"`
	Timestamp      string `json:"timestamp"`
	UserName       string `json:"user"`
	LocationID     string `json:"locationId"`
	ToLocationID   string `json:"toLocationId,omitempty"`
	CustomerID     string `json:"customerId,omitempty"`
	PaymentMethod  string `json:"paymentMethod,omitempty"`
	UnitPriceCents int64  `json:"unitPriceCents,omitempty"`
	AmountCents    int64  `json:"amountCents,omitempty"`
}

type wireCustomer struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email,omitempty"`
	Phone           string `json:"phone,omitempty"`
	LoyaltyPoints   int64  `json:"loyaltyPoints"`
	TotalSpentCents int64  `json:"totalSpentCents"`
	LastVisit       string `json:"lastVisit,omitempty"`
}

type wireSupplier struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContactName string `json:"contactName,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

type wireEmployee struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	PINHash string `json:"pinHash,omitempty"`
	Active  bool   `json:"active"`
}

type wireExpense struct {
	ID          string `json:"id"`
	LocationID  string `json:"locationId"`
	Category    string `json:"category"`
	AmountCents int64  `json:"amountCents"`
	Description string `json:"description,omitempty"`
	Date        string `json:"date"`
	RecordedBy  string `json:"recordedBy,omitempty"`
}

type wirePOItem struct {
	ItemID         string `json:"itemId"`
	Quantity       int    `json:"quantity"`
	CostPriceCents int64  `json:"costPriceCents"`
}

type wirePurchaseOrder struct {
	ID             string                 `json:"id"`
	SupplierID     string                 `json:"supplierId"`
	LocationID     string                 `json:"locationId,omitempty"`
	Status         string                 `json:"status"`
	DateCreated    string                 `json:"dateCreated"`
	Items          embedded[[]wirePOItem] `json:"items"`
	TotalCostCents int64                  `json:"totalCostCents"`
	InvoiceNumber  string                 `json:"invoiceNumber,omitempty"`
	ReceivedAt     string                 `json:"receivedAt,omitempty"`
	ReceivedBy     string                 `json:"receivedBy,omitempty"`
}

type wireCashShift struct {
	ID                  string `json:"id"`
	LocationID          string `json:"locationId"`
	OpenedBy            string `json:"openedBy"`
	ClosedBy            string `json:"closedBy,omitempty"`
	StartTime           string `json:"startTime"`
	EndTime             string `json:"endTime,omitempty"`
	StartAmountCents    int64  `json:"startAmountCents"`
	CashSalesCents      int64  `json:"cashSalesCents"`
	CardSalesCents      int64  `json:"cardSalesCents"`
	Status              string `json:"status"`
	EndAmountCents      int64  `json:"endAmountCents"`
	ExpectedAmountCents int64  `json:"expectedAmountCents"`
	VarianceCents       int64  `json:"varianceCents"`
	Notes               string `json:"notes,omitempty"`
}

// saleBatch is the body of POST /sales; the service writes it in one transaction.
type saleBatch struct {
	Transactions     []wireTransaction `json:"transactions"`
	InventoryUpdates []wireItem        `json:"inventoryUpdates"`
	CustomerUpdate   *wireCustomer     `json:"customerUpdate"`
}

func toWireItem(item domain.InventoryItem) wireItem {
	batches := make([]wireBatch, 0, len(item.Batches))
	for _, b := range item.Batches {
		batches = append(batches, wireBatch{
			BatchNumber: b.BatchNumber,
			ExpiryDate:  formatTimePtr(b.ExpiryDate),
			Quantity:    b.Quantity,
			LocationID:  b.LocationID,
		})
	}
	return wireItem{
		ID:                item.ID,
		SKU:               item.SKU,
		Barcode:           item.Barcode,
		Name:              item.Name,
		Category:          item.Category,
		Description:       item.Description,
		Supplier:          item.Supplier,
		CostPriceCents:    item.CostPriceCents,
		SellingPriceCents: item.SellingPriceCents,
		LocationPrices:    embedded[map[string]int64]{V: item.LocationPrices},
		StockDistribution: embedded[map[string]int]{V: item.StockDistribution},
		StockQuantity:     item.StockQuantity,
		LowStockThreshold: item.LowStockThreshold,
		Batches:           embedded[[]wireBatch]{V: batches},
		LastUpdated:       formatTime(item.LastUpdated),
		Version:           item.Version,
	}
}

func (w wireItem) domain() domain.InventoryItem {
	item := domain.InventoryItem{
		ID:                w.ID,
		SKU:               w.SKU,
		Barcode:           w.Barcode,
		Name:              w.Name,
		Category:          w.Category,
		Description:       w.Description,
		Supplier:          w.Supplier,
		CostPriceCents:    w.CostPriceCents,
		SellingPriceCents: w.SellingPriceCents,
		LocationPrices:    w.LocationPrices.V,
		StockDistribution: w.StockDistribution.V,
		StockQuantity:     w.StockQuantity,
		LowStockThreshold: w.LowStockThreshold,
		LastUpdated:       parseTime(w.LastUpdated),
		Version:           w.Version,
	}
	if item.StockDistribution == nil {
		item.StockDistribution = map[string]int{}
	}
	for _, b := range w.Batches.V {
		item.Batches = append(item.Batches, domain.Batch{
			BatchNumber: b.BatchNumber,
			ExpiryDate:  parseTimePtr(b.ExpiryDate),
			Quantity:    b.Quantity,
			LocationID:  b.LocationID,
		})
	}
	return item
}

func toWireTransaction(t domain.Transaction) wireTransaction {
	return wireTransaction{
		ID:             t.ID,
		MasterID:       t.MasterID,
		OriginalID:     t.OriginalID,
		Type:           string(t.Type),
		ItemID:         t.ItemID,
		Quantity:       t.Quantity,
		Reason:         t.Reason,
		Timestamp:      formatTime(t.Timestamp),
		UserName:       t.UserName,
		LocationID:     t.LocationID,
		ToLocationID:   t.ToLocationID,
		CustomerID:     t.CustomerID,
		PaymentMethod:  string(t.PaymentMethod),
		UnitPriceCents: t.UnitPriceCents,
		AmountCents:    t.AmountCents,
	}
}

func (w wireTransaction) domain() domain.Transaction {
	return domain.Transaction{
		ID:             w.ID,
		MasterID:       w.MasterID,
		OriginalID:     w.OriginalID,
		Type:           domain.TransactionType(w.Type),
		ItemID:         w.ItemID,
		Quantity:       w.Quantity,
		Reason:         w.Reason,
		Timestamp:      parseTime(w.Timestamp),
		UserName:       w.UserName,
		LocationID:     w.LocationID,
		ToLocationID:   w.ToLocationID,
		CustomerID:     w.CustomerID,
		PaymentMethod:  domain.PaymentMethod(w.PaymentMethod),
		UnitPriceCents: w.UnitPriceCents,
		AmountCents:    w.AmountCents,
	}
}

func toWireCustomer(c domain.Customer) wireCustomer {
	return wireCustomer{
		ID:              c.ID,
		Name:            c.Name,
		Email:           c.Email,
		Phone:           c.Phone,
		LoyaltyPoints:   c.LoyaltyPoints,
		TotalSpentCents: c.TotalSpentCents,
		LastVisit:       formatTimePtr(c.LastVisit),
	}
}

func (w wireCustomer) domain() domain.Customer {
	return domain.Customer{
		ID:              w.ID,
		Name:            w.Name,
		Email:           w.Email,
		Phone:           w.Phone,
		LoyaltyPoints:   w.LoyaltyPoints,
		TotalSpentCents: w.TotalSpentCents,
		LastVisit:       parseTimePtr(w.LastVisit),
	}
}

func toWireSupplier(s domain.Supplier) wireSupplier {
	return wireSupplier(s)
}

func (w wireSupplier) domain() domain.Supplier {
	return domain.Supplier(w)
}

func toWireEmployee(e domain.Employee) wireEmployee {
	return wireEmployee(e)
}

func (w wireEmployee) domain() domain.Employee {
	return domain.Employee(w)
}

func toWireExpense(e domain.Expense) wireExpense {
	return wireExpense{
		ID:          e.ID,
		LocationID:  e.LocationID,
		Category:    e.Category,
		AmountCents: e.AmountCents,
		Description: e.Description,
		Date:        formatTime(e.Date),
		RecordedBy:  e.RecordedBy,
	}
}

func (w wireExpense) domain() domain.Expense {
	return domain.Expense{
		ID:          w.ID,
		LocationID:  w.LocationID,
		Category:    w.Category,
		AmountCents: w.AmountCents,
		Description: w.Description,
		Date:        parseTime(w.Date),
		RecordedBy:  w.RecordedBy,
	}
}

func toWirePurchaseOrder(po domain.PurchaseOrder) wirePurchaseOrder {
	items := make([]wirePOItem, 0, len(po.Items))
	for _, it := range po.Items {
		items = append(items, wirePOItem(it))
	}
	return wirePurchaseOrder{
		ID:             po.ID,
		SupplierID:     po.SupplierID,
		LocationID:     po.LocationID,
		Status:         string(po.Status),
		DateCreated:    formatTime(po.DateCreated),
		Items:          embedded[[]wirePOItem]{V: items},
		TotalCostCents: po.TotalCostCents,
		InvoiceNumber:  po.InvoiceNumber,
		ReceivedAt:     formatTimePtr(po.ReceivedAt),
		ReceivedBy:     po.ReceivedBy,
	}
}

func (w wirePurchaseOrder) domain() domain.PurchaseOrder {
	po := domain.PurchaseOrder{
		ID:             w.ID,
		SupplierID:     w.SupplierID,
		LocationID:     w.LocationID,
		Status:         domain.PurchaseOrderStatus(w.Status),
		DateCreated:    parseTime(w.DateCreated),
		TotalCostCents: w.TotalCostCents,
		InvoiceNumber:  w.InvoiceNumber,
		ReceivedAt:     parseTimePtr(w.ReceivedAt),
		ReceivedBy:     w.ReceivedBy,
	}
	for _, it := range w.Items.V {
		po.Items = append(po.Items, domain.PurchaseOrderItem(it))
	}
	return po
}

func toWireCashShift(sh domain.CashShift) wireCashShift {
	return wireCashShift{
		ID:                  sh.ID,
		LocationID:          sh.LocationID,
		OpenedBy:            sh.OpenedBy,
		ClosedBy:            sh.ClosedBy,
		StartTime:           formatTime(sh.StartTime),
		EndTime:             formatTimePtr(sh.EndTime),
		StartAmountCents:    sh.StartAmountCents,
		CashSalesCents:      sh.CashSalesCents,
		CardSalesCents:      sh.CardSalesCents,
		Status:              string(sh.Status),
		EndAmountCents:      sh.EndAmountCents,
		ExpectedAmountCents: sh.ExpectedAmountCents,
		VarianceCents:       sh.VarianceCents,
		Notes:               sh.Notes,
	}
}

func (w wireCashShift) domain() domain.CashShift {
	return domain.CashShift{
		ID:                  w.ID,
		LocationID:          w.LocationID,
		OpenedBy:            w.OpenedBy,
		ClosedBy:            w.ClosedBy,
		StartTime:           parseTime(w.StartTime),
		EndTime:             parseTimePtr(w.EndTime),
		StartAmountCents:    w.StartAmountCents,
		CashSalesCents:      w.CashSalesCents,
		CardSalesCents:      w.CardSalesCents,
		Status:              domain.ShiftStatus(w.Status),
		EndAmountCents:      w.EndAmountCents,
		ExpectedAmountCents: w.ExpectedAmountCents,
		VarianceCents:       w.VarianceCents,
		Notes:               w.Notes,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// parseTime accepts RFC 3339 timestamps and bare dates; anything else reads as zero.
func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t
	}
	return time.Time{}
}

func parseTimePtr(raw string) *time.Time {
	t := parseTime(raw)
	if t.IsZero() {
		return nil
	}
	return &t
}
