package ledger

import (
	"fmt"
	"time"

	"stockledger/internal/domain"
	"stockledger/internal/notify"
	"stockledger/internal/xid"
)

// Tx stages changes for one Update. Reads see staged values first. A Tx is
// only valid inside the callback that received it.
type Tx struct {
	l   *Ledger
	now time.Time

	items          map[string]*domain.InventoryItem
	deletedItems   map[string]struct{}
	customers      map[string]*domain.Customer
	purchaseOrders map[string]*domain.PurchaseOrder
	shifts         map[string]*domain.CashShift
	suppliers      map[string]domain.Supplier
	employees      map[string]domain.Employee
	expenses       map[string]domain.Expense
	transactions   []domain.Transaction
	alerts         []notify.LowStockAlert
	sale           bool
}

func newTx(l *Ledger, now time.Time) *Tx {
	return &Tx{
		l:              l,
		now:            now,
		items:          make(map[string]*domain.InventoryItem),
		deletedItems:   make(map[string]struct{}),
		customers:      make(map[string]*domain.Customer),
		purchaseOrders: make(map[string]*domain.PurchaseOrder),
		shifts:         make(map[string]*domain.CashShift),
		suppliers:      make(map[string]domain.Supplier),
		employees:      make(map[string]domain.Employee),
		expenses:       make(map[string]domain.Expense),
	}
}

// Now is the commit timestamp shared by every record in the transaction.
func (tx *Tx) Now() time.Time { return tx.now }

// MarkSale flags the change set as a checkout so stores can commit it through
// their atomic sale path.
func (tx *Tx) MarkSale() { tx.sale = true }

func (tx *Tx) Location(id string) (domain.Location, error) {
	return tx.l.Location(id)
}

func (tx *Tx) stagedItem(id string) (*domain.InventoryItem, error) {
	if _, gone := tx.deletedItems[id]; gone {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	if item, ok := tx.items[id]; ok {
		return item, nil
	}
	current, ok := tx.l.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	dup := current.Clone()
	tx.items[id] = &dup
	return &dup, nil
}

func (tx *Tx) Item(id string) (domain.InventoryItem, error) {
	if _, gone := tx.deletedItems[id]; gone {
		return domain.InventoryItem{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	if item, ok := tx.items[id]; ok {
		return item.Clone(), nil
	}
	current, ok := tx.l.items[id]
	if !ok {
		return domain.InventoryItem{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	return current.Clone(), nil
}

// CreateItem stages a new catalog item with zero stock at every location.
func (tx *Tx) CreateItem(item domain.InventoryItem) (domain.InventoryItem, error) {
	if item.ID == "" {
		item.ID = xid.New("item")
	}
	if _, exists := tx.l.items[item.ID]; exists {
		return domain.InventoryItem{}, fmt.Errorf("%w: item %s", ErrDuplicate, item.ID)
	}
	if _, staged := tx.items[item.ID]; staged {
		return domain.InventoryItem{}, fmt.Errorf("%w: item %s", ErrDuplicate, item.ID)
	}
	if item.SKU != "" && tx.skuTaken(item.SKU, item.ID) {
		return domain.InventoryItem{}, fmt.Errorf("%w: sku %s", ErrDuplicate, item.SKU)
	}
	item.StockDistribution = make(map[string]int, len(tx.l.locations))
	for _, loc := range tx.l.locations {
		item.StockDistribution[loc.ID] = 0
	}
	item.StockQuantity = 0
	item.Batches = nil
	item.Version = 0
	item.LastUpdated = tx.now
	dup := item.Clone()
	tx.items[item.ID] = &dup
	return dup.Clone(), nil
}

// UpdateItem applies mutate to the staged item. Stock fields are restored
// afterwards; stock only moves through AdjustStock and Transfer.
func (tx *Tx) UpdateItem(id string, mutate func(*domain.InventoryItem) error) (domain.InventoryItem, error) {
	item, err := tx.stagedItem(id)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	before := item.Clone()
	if err := mutate(item); err != nil {
		return domain.InventoryItem{}, err
	}
	if item.SKU != before.SKU && item.SKU != "" && tx.skuTaken(item.SKU, id) {
		return domain.InventoryItem{}, fmt.Errorf("%w: sku %s", ErrDuplicate, item.SKU)
	}
	item.ID = before.ID
	item.StockDistribution = before.StockDistribution
	item.StockQuantity = before.StockQuantity
	item.Batches = before.Batches
	item.Version = before.Version
	item.LastUpdated = tx.now
	return item.Clone(), nil
}

// skuTaken reports whether another live item, staged or committed, uses sku.
func (tx *Tx) skuTaken(sku, exceptID string) bool {
	for id, item := range tx.items {
		if id != exceptID && item.SKU == sku {
			return true
		}
	}
	for id, item := range tx.l.items {
		if id == exceptID {
			continue
		}
		if _, gone := tx.deletedItems[id]; gone {
			continue
		}
		if _, staged := tx.items[id]; staged {
			continue
		}
		if item.SKU == sku {
			return true
		}
	}
	return false
}

func (tx *Tx) DeleteItem(id string) error {
	if _, err := tx.stagedItem(id); err != nil {
		return err
	}
	delete(tx.items, id)
	tx.deletedItems[id] = struct{}{}
	return nil
}

// Adjustment describes one signed stock movement at a location.
type Adjustment struct {
	ItemID     string
	LocationID string
	Delta      int
	// Type overrides ClassifyReason when set.
	Type   domain.TransactionType
	Reason string
	Batch  *domain.BatchInfo

	ID             string
	MasterID       string
	OriginalID     string
	UserName       string
	CustomerID     string
	PaymentMethod  domain.PaymentMethod
	UnitPriceCents int64
}

// AdjustStock applies a signed delta with a floor at zero and records one
// transaction. A zero delta changes nothing and returns a zero Transaction.
func (tx *Tx) AdjustStock(a Adjustment) (domain.Transaction, error) {
	if _, err := tx.l.Location(a.LocationID); err != nil {
		return domain.Transaction{}, err
	}
	if a.Type != "" && !a.Type.Valid() {
		return domain.Transaction{}, fmt.Errorf("%w: unknown transaction type %q", ErrInvalidRequest, a.Type)
	}
	if a.Delta == 0 {
		_, err := tx.Item(a.ItemID)
		return domain.Transaction{}, err
	}
	item, err := tx.stagedItem(a.ItemID)
	if err != nil {
		return domain.Transaction{}, err
	}

	before := item.StockQuantity
	current := item.StockDistribution[a.LocationID]
	next := current + a.Delta
	if next < 0 {
		tx.l.log.Warn().
			Str("item_id", item.ID).
			Str("location_id", a.LocationID).
			Int("on_hand", current).
			Int("delta", a.Delta).
			Msg("removal exceeds stock, clamping to zero")
		next = 0
	}
	if item.StockDistribution == nil {
		item.StockDistribution = make(map[string]int)
	}
	item.StockDistribution[a.LocationID] = next
	item.StockQuantity = sumDistribution(item.StockDistribution)

	switch {
	case a.Delta < 0:
		takeFEFO(item, a.LocationID, -a.Delta)
	case a.Batch != nil:
		item.Batches = append(item.Batches, domain.Batch{
			BatchNumber: a.Batch.BatchNumber,
			ExpiryDate:  a.Batch.ExpiryDate,
			Quantity:    a.Delta,
			LocationID:  a.LocationID,
		})
	}
	item.LastUpdated = tx.now

	if a.Delta < 0 && before > item.LowStockThreshold && item.StockQuantity <= item.LowStockThreshold {
		tx.alerts = append(tx.alerts, notify.LowStockAlert{
			ItemID:     item.ID,
			SKU:        item.SKU,
			Name:       item.Name,
			LocationID: a.LocationID,
			Quantity:   item.StockQuantity,
			Threshold:  item.LowStockThreshold,
			At:         tx.now,
		})
	}

	txType := a.Type
	if txType == "" {
		txType = ClassifyReason(a.Reason, a.Delta)
	}
	qty := abs(a.Delta)
	t := domain.Transaction{
		ID:             a.ID,
		MasterID:       a.MasterID,
		OriginalID:     a.OriginalID,
		Type:           txType,
		ItemID:         item.ID,
		Quantity:       qty,
		Reason:         a.Reason,
		Timestamp:      tx.now,
		UserName:       a.UserName,
		LocationID:     a.LocationID,
		CustomerID:     a.CustomerID,
		PaymentMethod:  a.PaymentMethod,
		UnitPriceCents: a.UnitPriceCents,
		AmountCents:    a.UnitPriceCents * int64(qty),
	}
	return tx.Record(t)
}

// Transfer moves qty units and their FEFO batch portions between two
// locations. It never clamps: the source must hold enough stock.
func (tx *Tx) Transfer(itemID, fromID, toID string, qty int, user string) ([]domain.Transaction, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: transfer quantity must be positive", ErrInvalidRequest)
	}
	if fromID == toID {
		return nil, fmt.Errorf("%w: transfer source and destination are the same", ErrInvalidRequest)
	}
	from, err := tx.l.Location(fromID)
	if err != nil {
		return nil, err
	}
	to, err := tx.l.Location(toID)
	if err != nil {
		return nil, err
	}
	item, err := tx.stagedItem(itemID)
	if err != nil {
		return nil, err
	}
	if available := item.StockDistribution[fromID]; available < qty {
		return nil, fmt.Errorf("%w: %s has %d of %s, transfer needs %d", ErrInsufficientStock, fromID, available, itemID, qty)
	}

	item.StockDistribution[fromID] -= qty
	item.StockDistribution[toID] += qty
	item.StockQuantity = sumDistribution(item.StockDistribution)
	placeBatches(item, toID, takeFEFO(item, fromID, qty))
	item.LastUpdated = tx.now

	master := xid.New("trf")
	out, err := tx.Record(domain.Transaction{
		MasterID:     master,
		Type:         domain.TransactionTransfer,
		ItemID:       itemID,
		Quantity:     qty,
		Reason:       "Transfer Out to " + to.Name,
		Timestamp:    tx.now,
		UserName:     user,
		LocationID:   fromID,
		ToLocationID: toID,
	})
	if err != nil {
		return nil, err
	}
	in, err := tx.Record(domain.Transaction{
		MasterID:     master,
		Type:         domain.TransactionTransfer,
		ItemID:       itemID,
		Quantity:     qty,
		Reason:       "Transfer In from " + from.Name,
		Timestamp:    tx.now,
		UserName:     user,
		LocationID:   toID,
		ToLocationID: fromID,
	})
	if err != nil {
		return nil, err
	}
	return []domain.Transaction{out, in}, nil
}

// Record appends a transaction to the history without touching stock.
func (tx *Tx) Record(t domain.Transaction) (domain.Transaction, error) {
	if t.ID == "" {
		t.ID = xid.New("txn")
	}
	if _, dup := tx.l.txnIDs[t.ID]; dup {
		return domain.Transaction{}, fmt.Errorf("%w: transaction %s", ErrDuplicate, t.ID)
	}
	for _, staged := range tx.transactions {
		if staged.ID == t.ID {
			return domain.Transaction{}, fmt.Errorf("%w: transaction %s", ErrDuplicate, t.ID)
		}
	}
	if !t.Type.Valid() {
		return domain.Transaction{}, fmt.Errorf("%w: unknown transaction type %q", ErrInvalidRequest, t.Type)
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = tx.now
	}
	tx.transactions = append(tx.transactions, t)
	return t, nil
}

// FindTransactions scans committed and staged history in append order.
func (tx *Tx) FindTransactions(match func(domain.Transaction) bool) []domain.Transaction {
	var out []domain.Transaction
	for _, t := range tx.l.transactions {
		if match(t) {
			out = append(out, t)
		}
	}
	for _, t := range tx.transactions {
		if match(t) {
			out = append(out, t)
		}
	}
	return out
}

func (tx *Tx) Customer(id string) (domain.Customer, error) {
	if c, ok := tx.customers[id]; ok {
		return c.Clone(), nil
	}
	c, ok := tx.l.customers[id]
	if !ok {
		return domain.Customer{}, fmt.Errorf("%w: %s", ErrCustomerNotFound, id)
	}
	return c.Clone(), nil
}

func (tx *Tx) PutCustomer(c domain.Customer) domain.Customer {
	if c.ID == "" {
		c.ID = xid.New("cust")
	}
	if c.LoyaltyPoints < 0 {
		c.LoyaltyPoints = 0
	}
	if c.TotalSpentCents < 0 {
		c.TotalSpentCents = 0
	}
	dup := c.Clone()
	tx.customers[c.ID] = &dup
	return c
}

func (tx *Tx) PurchaseOrder(id string) (domain.PurchaseOrder, error) {
	if po, ok := tx.purchaseOrders[id]; ok {
		return po.Clone(), nil
	}
	po, ok := tx.l.purchaseOrders[id]
	if !ok {
		return domain.PurchaseOrder{}, fmt.Errorf("%w: %s", ErrPurchaseOrderNotFound, id)
	}
	return po.Clone(), nil
}

func (tx *Tx) PutPurchaseOrder(po domain.PurchaseOrder) domain.PurchaseOrder {
	if po.ID == "" {
		po.ID = xid.New("po")
	}
	dup := po.Clone()
	tx.purchaseOrders[po.ID] = &dup
	return po
}

// OpenShift returns the open shift at a location, staged changes included.
func (tx *Tx) OpenShift(locationID string) (domain.CashShift, bool) {
	for _, sh := range tx.shifts {
		if sh.LocationID == locationID && sh.Status == domain.ShiftOpen {
			return sh.Clone(), true
		}
	}
	sh, ok := tx.l.openShiftLocked(locationID)
	if !ok {
		return domain.CashShift{}, false
	}
	if staged, touched := tx.shifts[sh.ID]; touched && staged.Status != domain.ShiftOpen {
		return domain.CashShift{}, false
	}
	return sh.Clone(), true
}

func (tx *Tx) PutShift(sh domain.CashShift) domain.CashShift {
	if sh.ID == "" {
		sh.ID = xid.New("shift")
	}
	dup := sh.Clone()
	tx.shifts[sh.ID] = &dup
	return sh
}

func (tx *Tx) PutSupplier(s domain.Supplier) domain.Supplier {
	if s.ID == "" {
		s.ID = xid.New("sup")
	}
	tx.suppliers[s.ID] = s
	return s
}

func (tx *Tx) Supplier(id string) (domain.Supplier, bool) {
	if s, ok := tx.suppliers[id]; ok {
		return s, true
	}
	s, ok := tx.l.suppliers[id]
	return s, ok
}

func (tx *Tx) PutEmployee(e domain.Employee) domain.Employee {
	if e.ID == "" {
		e.ID = xid.New("emp")
	}
	tx.employees[e.ID] = e
	return e
}

func (tx *Tx) PutExpense(e domain.Expense) domain.Expense {
	if e.ID == "" {
		e.ID = xid.New("exp")
	}
	tx.expenses[e.ID] = e
	return e
}
