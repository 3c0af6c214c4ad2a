// Package ledger holds the authoritative in-memory stock ledger. Every
// mutation runs inside Update, which applies all staged changes or none and
// hands exactly one change set to the syncer.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"stockledger/internal/domain"
	"stockledger/internal/notify"
	"stockledger/internal/store"
	"stockledger/internal/xid"
)

// Syncer receives committed change sets. Enqueue must not wait on the store.
type Syncer interface {
	Enqueue(ctx context.Context, changes store.ChangeSet) error
}

type Options struct {
	Syncer   Syncer
	Notifier notify.Notifier
	Logger   zerolog.Logger
	Clock    func() time.Time
}

type Ledger struct {
	mu sync.RWMutex

	locations    []domain.Location
	locationByID map[string]domain.Location

	items          map[string]domain.InventoryItem
	transactions   []domain.Transaction
	txnIDs         map[string]struct{}
	customers      map[string]domain.Customer
	suppliers      map[string]domain.Supplier
	employees      map[string]domain.Employee
	expenses       map[string]domain.Expense
	purchaseOrders map[string]domain.PurchaseOrder
	shifts         map[string]domain.CashShift
	revision       uint64

	syncer   Syncer
	notifier notify.Notifier
	log      zerolog.Logger
	clock    func() time.Time
}

func New(locations []domain.Location, opts Options) (*Ledger, error) {
	if len(locations) == 0 {
		return nil, fmt.Errorf("%w: at least one location is required", ErrInvalidRequest)
	}
	byID := make(map[string]domain.Location, len(locations))
	for _, loc := range locations {
		if loc.ID == "" {
			return nil, fmt.Errorf("%w: location without id", ErrInvalidRequest)
		}
		if _, dup := byID[loc.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate location %s", ErrInvalidRequest, loc.ID)
		}
		byID[loc.ID] = loc
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}

	l := &Ledger{
		locations:    append([]domain.Location(nil), locations...),
		locationByID: byID,
		syncer:       opts.Syncer,
		notifier:     opts.Notifier,
		log:          opts.Logger.With().Str("component", "ledger").Logger(),
		clock:        opts.Clock,
	}
	l.reset()
	return l, nil
}

func (l *Ledger) reset() {
	l.items = make(map[string]domain.InventoryItem)
	l.transactions = nil
	l.txnIDs = make(map[string]struct{})
	l.customers = make(map[string]domain.Customer)
	l.suppliers = make(map[string]domain.Supplier)
	l.employees = make(map[string]domain.Employee)
	l.expenses = make(map[string]domain.Expense)
	l.purchaseOrders = make(map[string]domain.PurchaseOrder)
	l.shifts = make(map[string]domain.CashShift)
}

// Load replaces the in-memory state with the repository contents. Items whose
// stored total disagrees with their distribution are repaired and the repair
// is queued back to the store.
func (l *Ledger) Load(ctx context.Context, repo store.Repository) error {
	snap, err := repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}

	l.mu.Lock()
	l.reset()

	var repaired []domain.InventoryItem
	for _, item := range snap.Inventory {
		if item.StockDistribution == nil {
			item.StockDistribution = make(map[string]int)
		}
		for loc, qty := range item.StockDistribution {
			if qty < 0 {
				item.StockDistribution[loc] = 0
			}
		}
		if total := sumDistribution(item.StockDistribution); total != item.StockQuantity {
			l.log.Warn().Str("item_id", item.ID).Int("stored", item.StockQuantity).Int("derived", total).Msg("repairing stock total")
			item.StockQuantity = total
			item.Version++
			repaired = append(repaired, item.Clone())
		}
		l.items[item.ID] = item
	}

	txns := append([]domain.Transaction(nil), snap.Transactions...)
	sort.SliceStable(txns, func(i, j int) bool {
		if !txns[i].Timestamp.Equal(txns[j].Timestamp) {
			return txns[i].Timestamp.Before(txns[j].Timestamp)
		}
		return txns[i].ID < txns[j].ID
	})
	for _, t := range txns {
		if _, dup := l.txnIDs[t.ID]; dup {
			continue
		}
		l.txnIDs[t.ID] = struct{}{}
		l.transactions = append(l.transactions, t)
	}

	for _, c := range snap.Customers {
		l.customers[c.ID] = c
	}
	for _, s := range snap.Suppliers {
		l.suppliers[s.ID] = s
	}
	for _, e := range snap.Employees {
		l.employees[e.ID] = e
	}
	for _, e := range snap.Expenses {
		l.expenses[e.ID] = e
	}
	for _, po := range snap.PurchaseOrders {
		l.purchaseOrders[po.ID] = po
	}
	for _, sh := range snap.CashShifts {
		l.shifts[sh.ID] = sh
	}
	l.revision++
	l.mu.Unlock()

	l.log.Info().
		Int("items", len(snap.Inventory)).
		Int("transactions", len(snap.Transactions)).
		Int("customers", len(snap.Customers)).
		Int("repaired", len(repaired)).
		Msg("ledger loaded")

	if len(repaired) > 0 && l.syncer != nil {
		cs := store.ChangeSet{ID: xid.New("cs"), CreatedAt: l.clock(), Inventory: repaired}
		// The commit already happened; a caller that went away must not drop it.
		if err := l.syncer.Enqueue(context.WithoutCancel(ctx), cs); err != nil {
			l.log.Error().Err(err).Msg("queue stock repairs")
		}
	}
	return nil
}

// Update runs fn against a staging transaction while holding the write lock.
// If fn fails nothing is applied. Otherwise the staged records become
// authoritative, one change set is queued, and low-stock alerts are sent.
func (l *Ledger) Update(ctx context.Context, fn func(*Tx) error) (store.ChangeSet, error) {
	cs, alerts, err := l.commit(ctx, fn)
	if err != nil {
		return store.ChangeSet{}, err
	}
	for _, alert := range alerts {
		if err := l.notifier.LowStock(ctx, alert); err != nil {
			l.log.Warn().Err(err).Str("item_id", alert.ItemID).Msg("low-stock notification failed")
		}
	}
	return cs, nil
}

func (l *Ledger) commit(ctx context.Context, fn func(*Tx) error) (store.ChangeSet, []notify.LowStockAlert, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx := newTx(l, l.clock())
	if err := fn(tx); err != nil {
		return store.ChangeSet{}, nil, err
	}

	cs := store.ChangeSet{ID: xid.New("cs"), CreatedAt: tx.now, Sale: tx.sale}

	for _, id := range sortedKeys(tx.items) {
		item := tx.items[id]
		if prev, ok := l.items[id]; ok {
			item.Version = prev.Version + 1
		} else {
			item.Version = 1
		}
		l.items[id] = *item
		cs.Inventory = append(cs.Inventory, item.Clone())
	}
	for _, id := range sortedKeys(tx.deletedItems) {
		delete(l.items, id)
		cs.Deletes = append(cs.Deletes, store.Delete{Collection: store.CollectionInventory, ID: id})
	}
	for _, t := range tx.transactions {
		l.txnIDs[t.ID] = struct{}{}
		l.transactions = append(l.transactions, t)
		cs.Transactions = append(cs.Transactions, t)
	}
	for _, id := range sortedKeys(tx.customers) {
		c := *tx.customers[id]
		l.customers[id] = c
		cs.Customers = append(cs.Customers, c.Clone())
	}
	for _, id := range sortedKeys(tx.purchaseOrders) {
		po := *tx.purchaseOrders[id]
		l.purchaseOrders[id] = po
		cs.PurchaseOrders = append(cs.PurchaseOrders, po.Clone())
	}
	for _, id := range sortedKeys(tx.shifts) {
		sh := *tx.shifts[id]
		l.shifts[id] = sh
		cs.CashShifts = append(cs.CashShifts, sh.Clone())
	}
	for _, id := range sortedKeys(tx.suppliers) {
		l.suppliers[id] = tx.suppliers[id]
		cs.Suppliers = append(cs.Suppliers, tx.suppliers[id])
	}
	for _, id := range sortedKeys(tx.employees) {
		l.employees[id] = tx.employees[id]
		cs.Employees = append(cs.Employees, tx.employees[id])
	}
	for _, id := range sortedKeys(tx.expenses) {
		l.expenses[id] = tx.expenses[id]
		cs.Expenses = append(cs.Expenses, tx.expenses[id])
	}

	if cs.Empty() {
		return cs, nil, nil
	}
	l.revision++
	if l.syncer != nil {
		if err := l.syncer.Enqueue(ctx, cs); err != nil {
			// Memory stays authoritative; the store catches up on a later write.
			l.log.Error().Err(err).Str("change_set", cs.ID).Msg("queue change set")
		}
	}
	return cs, tx.alerts, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Revision increases with every committed change.
func (l *Ledger) Revision() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.revision
}

func (l *Ledger) Locations() []domain.Location {
	return append([]domain.Location(nil), l.locations...)
}

func (l *Ledger) Location(id string) (domain.Location, error) {
	loc, ok := l.locationByID[id]
	if !ok {
		return domain.Location{}, fmt.Errorf("%w: %s", ErrLocationNotFound, id)
	}
	return loc, nil
}

func (l *Ledger) Items() []domain.InventoryItem {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.InventoryItem, 0, len(l.items))
	for _, item := range l.items {
		out = append(out, item.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (l *Ledger) Item(id string) (domain.InventoryItem, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	item, ok := l.items[id]
	if !ok {
		return domain.InventoryItem{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	return item.Clone(), nil
}

// Transactions returns matching history, newest first.
func (l *Ledger) Transactions(filter domain.TransactionFilter) []domain.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Transaction, 0)
	for i := len(l.transactions) - 1; i >= 0; i-- {
		t := l.transactions[i]
		if !matches(t, filter) {
			continue
		}
		out = append(out, t)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}

func matches(t domain.Transaction, f domain.TransactionFilter) bool {
	if f.ItemID != "" && t.ItemID != f.ItemID {
		return false
	}
	if f.LocationID != "" && t.LocationID != f.LocationID {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.MasterID != "" && t.MasterID != f.MasterID && t.ID != f.MasterID {
		return false
	}
	if !f.From.IsZero() && t.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !t.Timestamp.Before(f.To) {
		return false
	}
	return true
}

func (l *Ledger) Customers() []domain.Customer {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Customer, 0, len(l.customers))
	for _, c := range l.customers {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name || (out[i].Name == out[j].Name && out[i].ID < out[j].ID) })
	return out
}

func (l *Ledger) Customer(id string) (domain.Customer, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.customers[id]
	if !ok {
		return domain.Customer{}, fmt.Errorf("%w: %s", ErrCustomerNotFound, id)
	}
	return c.Clone(), nil
}

func (l *Ledger) Suppliers() []domain.Supplier {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Supplier, 0, len(l.suppliers))
	for _, s := range l.suppliers {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (l *Ledger) Employees() []domain.Employee {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Employee, 0, len(l.employees))
	for _, e := range l.employees {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

func (l *Ledger) EmployeeByEmail(email string) (domain.Employee, bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.employees {
		if strings.ToLower(e.Email) == email {
			return e, true
		}
	}
	return domain.Employee{}, false
}

// Expenses returns expenses for a location (all when empty), newest first.
func (l *Ledger) Expenses(locationID string) []domain.Expense {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Expense, 0)
	for _, e := range l.expenses {
		if locationID == "" || e.LocationID == locationID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

func (l *Ledger) PurchaseOrders(status domain.PurchaseOrderStatus) []domain.PurchaseOrder {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.PurchaseOrder, 0)
	for _, po := range l.purchaseOrders {
		if status == "" || po.Status == status {
			out = append(out, po.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateCreated.After(out[j].DateCreated) })
	return out
}

func (l *Ledger) PurchaseOrder(id string) (domain.PurchaseOrder, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	po, ok := l.purchaseOrders[id]
	if !ok {
		return domain.PurchaseOrder{}, fmt.Errorf("%w: %s", ErrPurchaseOrderNotFound, id)
	}
	return po.Clone(), nil
}

// Shifts returns shift history for a location (all when empty), newest first.
func (l *Ledger) Shifts(locationID string) []domain.CashShift {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.CashShift, 0)
	for _, sh := range l.shifts {
		if locationID == "" || sh.LocationID == locationID {
			out = append(out, sh.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out
}

func (l *Ledger) OpenShift(locationID string) (domain.CashShift, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	sh, ok := l.openShiftLocked(locationID)
	if !ok {
		return domain.CashShift{}, false
	}
	return sh.Clone(), true
}

func (l *Ledger) openShiftLocked(locationID string) (domain.CashShift, bool) {
	var found domain.CashShift
	ok := false
	for _, sh := range l.shifts {
		if sh.LocationID == locationID && sh.Status == domain.ShiftOpen {
			if !ok || sh.StartTime.After(found.StartTime) {
				found = sh
				ok = true
			}
		}
	}
	return found, ok
}

// Stats summarises stock value and health, optionally for one location.
func (l *Ledger) Stats(locationID string) (domain.InventoryStats, error) {
	scope := l.locations
	if locationID != "" {
		loc, err := l.Location(locationID)
		if err != nil {
			return domain.InventoryStats{}, err
		}
		scope = []domain.Location{loc}
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := domain.InventoryStats{ByLocation: make([]domain.LocationStats, 0, len(scope))}
	for _, loc := range scope {
		ls := domain.LocationStats{LocationID: loc.ID}
		for _, item := range l.items {
			qty := item.QuantityAt(loc.ID)
			ls.Units += qty
			ls.CostValueCents += int64(qty) * item.CostPriceCents
			ls.RetailValueCents += int64(qty) * item.PriceAt(loc.ID)
			switch {
			case qty == 0:
				ls.OutOfStock++
			case qty <= item.LowStockThreshold:
				ls.LowStock++
			}
		}
		stats.ByLocation = append(stats.ByLocation, ls)
		stats.TotalUnits += ls.Units
		stats.CostValueCents += ls.CostValueCents
		stats.RetailValueCents += ls.RetailValueCents
	}

	stats.TotalItems = len(l.items)
	for _, item := range l.items {
		qty := item.StockQuantity
		if locationID != "" {
			qty = item.QuantityAt(locationID)
		}
		switch {
		case qty == 0:
			stats.OutOfStockCount++
		case qty <= item.LowStockThreshold:
			stats.LowStockCount++
		}
	}
	return stats, nil
}
