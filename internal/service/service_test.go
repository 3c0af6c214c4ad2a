package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"stockledger/internal/domain"
	"stockledger/internal/ledger"
)

type fixture struct {
	svc   *Service
	ctx   context.Context
	itemA domain.InventoryItem
	itemB domain.InventoryItem
}

func newFixture(t *testing.T, loyalty Loyalty) fixture {
	t.Helper()
	l, err := ledger.New([]domain.Location{
		{ID: "store-1", Name: "Main Store", Type: domain.LocationStore},
		{ID: "wh-1", Name: "Central Warehouse", Type: domain.LocationWarehouse},
	}, ledger.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)

	svc := New(l, Options{Loyalty: loyalty, Logger: zerolog.Nop()})
	ctx := WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})

	a, err := svc.CreateItem(ctx, domain.ItemCreateRequest{
		SKU: "a-1", Name: "Item A", Category: "grocery",
		CostPriceCents: 600, SellingPriceCents: 1000, LowStockThreshold: 2,
		InitialLocationID: "store-1", InitialQuantity: 20,
	})
	require.NoError(t, err)
	b, err := svc.CreateItem(ctx, domain.ItemCreateRequest{
		SKU: "b-1", Name: "Item B", Category: "grocery",
		CostPriceCents: 1200, SellingPriceCents: 2000,
		InitialLocationID: "store-1", InitialQuantity: 10,
	})
	require.NoError(t, err)
	return fixture{svc: svc, ctx: ctx, itemA: a, itemB: b}
}

func (f fixture) customer(t *testing.T, points int64) domain.Customer {
	t.Helper()
	c, err := f.svc.CreateCustomer(f.ctx, domain.CustomerCreateRequest{Name: "Ana", Email: "ana@example.com"})
	require.NoError(t, err)
	if points == 0 {
		return c
	}
	_, err = f.svc.Ledger().Update(f.ctx, func(tx *ledger.Tx) error {
		c.LoyaltyPoints = points
		tx.PutCustomer(c)
		return nil
	})
	require.NoError(t, err)
	return c
}

func TestSaleComposition(t *testing.T) {
	f := newFixture(t, DefaultLoyalty())
	cust := f.customer(t, 0)
	shift, err := f.svc.OpenShift(f.ctx, domain.ShiftOpenRequest{LocationID: "store-1", StartAmountCents: 10000})
	require.NoError(t, err)

	receipt, err := f.svc.Sale(f.ctx, domain.SaleRequest{
		LocationID:      "store-1",
		Lines:           []domain.SaleLine{{ItemID: f.itemA.ID, Quantity: 2}, {ItemID: f.itemB.ID, Quantity: 1}},
		CustomerID:      cust.ID,
		DiscountPercent: 10,
		PaymentMethod:   domain.PaymentCash,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(4000), receipt.SubtotalCents)
	assert.Equal(t, int64(400), receipt.DiscountCents)
	assert.Equal(t, int64(3600), receipt.FinalTotalCents)
	assert.Equal(t, int64(0), receipt.PointsEarned)
	assert.Equal(t, shift.ID, receipt.ShiftID)

	lines := f.svc.Ledger().Transactions(domain.TransactionFilter{MasterID: receipt.MasterID})
	require.Len(t, lines, 2)
	ids := map[string]bool{}
	for _, txn := range lines {
		assert.Equal(t, domain.TransactionSale, txn.Type)
		assert.Equal(t, receipt.MasterID, txn.MasterID)
		assert.Equal(t, cust.ID, txn.CustomerID)
		ids[txn.ID] = true
	}
	assert.True(t, ids[receipt.MasterID+"-1"])
	assert.True(t, ids[receipt.MasterID+"-2"])

	a, _ := f.svc.GetItem(f.ctx, f.itemA.ID)
	assert.Equal(t, 18, a.StockQuantity)

	c, _ := f.svc.GetCustomer(f.ctx, cust.ID)
	assert.Equal(t, int64(3600), c.TotalSpentCents)
	assert.Equal(t, int64(0), c.LoyaltyPoints)
	require.NotNil(t, c.LastVisit)

	active, err := f.svc.ActiveShift(f.ctx, "store-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3600), active.CashSalesCents)
	assert.Zero(t, active.CardSalesCents)
}

func TestSaleEarnsAndRedeemsPoints(t *testing.T) {
	f := newFixture(t, Loyalty{EarnRateCents: 1000, RedeemValueCents: 10})
	cust := f.customer(t, 150)

	receipt, err := f.svc.Sale(f.ctx, domain.SaleRequest{
		LocationID:     "store-1",
		Lines:          []domain.SaleLine{{ItemID: f.itemB.ID, Quantity: 5}, {ItemID: f.itemA.ID, Quantity: 15}},
		CustomerID:     cust.ID,
		PointsToRedeem: 100,
		PaymentMethod:  domain.PaymentCard,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(25000), receipt.SubtotalCents)
	assert.Equal(t, int64(1000), receipt.RedemptionCents)
	assert.Equal(t, int64(24000), receipt.FinalTotalCents)
	assert.Equal(t, int64(24), receipt.PointsEarned)
	assert.Equal(t, int64(74), receipt.CustomerPoints)
}

func TestSaleFinalTotalNeverNegative(t *testing.T) {
	f := newFixture(t, Loyalty{EarnRateCents: 1000, RedeemValueCents: 100})
	cust := f.customer(t, 500)

	receipt, err := f.svc.Sale(f.ctx, domain.SaleRequest{
		LocationID: "store-1", Lines: []domain.SaleLine{{ItemID: f.itemA.ID, Quantity: 1}},
		CustomerID: cust.ID, PointsToRedeem: 50, DiscountPercent: 50, PaymentMethod: domain.PaymentCash,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), receipt.FinalTotalCents)
	assert.Equal(t, int64(450), receipt.CustomerPoints)
}

func TestSaleRejectsInvalidRedemption(t *testing.T) {
	f := newFixture(t, DefaultLoyalty())
	cust := f.customer(t, 5)

	_, err := f.svc.Sale(f.ctx, domain.SaleRequest{
		LocationID: "store-1", Lines: []domain.SaleLine{{ItemID: f.itemA.ID, Quantity: 1}},
		CustomerID: cust.ID, PointsToRedeem: 6, PaymentMethod: domain.PaymentCash,
	})
	assert.ErrorIs(t, err, ledger.ErrInvalidRequest)

	_, err = f.svc.Sale(f.ctx, domain.SaleRequest{
		LocationID: "store-1", Lines: []domain.SaleLine{{ItemID: f.itemA.ID, Quantity: 1}},
		PointsToRedeem: 1, PaymentMethod: domain.PaymentCash,
	})
	assert.ErrorIs(t, err, ledger.ErrInvalidRequest)

	_, err = f.svc.Sale(f.ctx, domain.SaleRequest{
		LocationID: "store-1", Lines: []domain.SaleLine{{ItemID: f.itemA.ID, Quantity: 1}},
		PaymentMethod: "BITCOIN",
	})
	assert.ErrorIs(t, err, ledger.ErrInvalidRequest)
}

func TestSaleIsAtomicWhenALineFails(t *testing.T) {
	f := newFixture(t, DefaultLoyalty())
	before := len(f.svc.Ledger().Transactions(domain.TransactionFilter{}))

	_, err := f.svc.Sale(f.ctx, domain.SaleRequest{
		LocationID:    "store-1",
		Lines:         []domain.SaleLine{{ItemID: f.itemA.ID, Quantity: 2}, {ItemID: "ghost", Quantity: 1}},
		PaymentMethod: domain.PaymentCash,
	})
	require.ErrorIs(t, err, ledger.ErrItemNotFound)

	a, _ := f.svc.GetItem(f.ctx, f.itemA.ID)
	assert.Equal(t, 20, a.StockQuantity)
	assert.Len(t, f.svc.Ledger().Transactions(domain.TransactionFilter{}), before)
}

func TestSaleClampsOversell(t *testing.T) {
	f := newFixture(t, DefaultLoyalty())
	receipt, err := f.svc.Sale(f.ctx, domain.SaleRequest{
		LocationID: "store-1", Lines: []domain.SaleLine{{ItemID: f.itemB.ID, Quantity: 12}}, PaymentMethod: domain.PaymentCash,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(24000), receipt.SubtotalCents)

	b, _ := f.svc.GetItem(f.ctx, f.itemB.ID)
	assert.Equal(t, 0, b.StockQuantity)
	assert.Equal(t, 12, f.svc.Ledger().Transactions(domain.TransactionFilter{MasterID: receipt.MasterID})[0].Quantity)
}

func TestRefundUsesCurrentPriceAndKeepsRedeemedPoints(t *testing.T) {
	f := newFixture(t, Loyalty{EarnRateCents: 1000, RedeemValueCents: 10})
	cust := f.customer(t, 100)

	sale, err := f.svc.Sale(f.ctx, domain.SaleRequest{
		LocationID: "store-1", Lines: []domain.SaleLine{{ItemID: f.itemA.ID, Quantity: 2}},
		CustomerID: cust.ID, PointsToRedeem: 10, PaymentMethod: domain.PaymentCash,
	})
	require.NoError(t, err)
	require.Equal(t, int64(1900), sale.FinalTotalCents)
	require.Equal(t, int64(91), sale.CustomerPoints)

	price := int64(1500)
	_, err = f.svc.UpdateItem(f.ctx, f.itemA.ID, domain.ItemUpdateRequest{SellingPriceCents: &price})
	require.NoError(t, err)

	refund, err := f.svc.Refund(f.ctx, domain.RefundRequest{
		OriginalTransactionID: sale.MasterID,
		Lines:                 []domain.RefundLine{{ItemID: f.itemA.ID, Quantity: 1}},
		Restock:               true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1500), refund.RefundTotalCents)
	assert.Equal(t, int64(1), refund.PointsReversed)
	assert.Equal(t, "store-1", refund.LocationID)
	assert.Equal(t, domain.PaymentCash, refund.PaymentMethod)

	a, _ := f.svc.GetItem(f.ctx, f.itemA.ID)
	assert.Equal(t, 19, a.StockQuantity)

	c, _ := f.svc.GetCustomer(f.ctx, cust.ID)
	assert.Equal(t, int64(400), c.TotalSpentCents)
	assert.Equal(t, int64(90), c.LoyaltyPoints, "redeemed points stay spent")

	refunds := f.svc.Ledger().Transactions(domain.TransactionFilter{Type: domain.TransactionRefund})
	require.Len(t, refunds, 1)
	assert.Equal(t, sale.MasterID, refunds[0].OriginalID)
	assert.NotEqual(t, sale.MasterID, refunds[0].ID)
}

func TestRefundRejectsCumulativeOverRefund(t *testing.T) {
	f := newFixture(t, DefaultLoyalty())
	sale, err := f.svc.Sale(f.ctx, domain.SaleRequest{
		LocationID: "store-1", Lines: []domain.SaleLine{{ItemID: f.itemA.ID, Quantity: 2}}, PaymentMethod: domain.PaymentCash,
	})
	require.NoError(t, err)

	_, err = f.svc.Refund(f.ctx, domain.RefundRequest{
		OriginalTransactionID: sale.MasterID,
		Lines:                 []domain.RefundLine{{ItemID: f.itemA.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = f.svc.Refund(f.ctx, domain.RefundRequest{
		OriginalTransactionID: sale.MasterID,
		Lines:                 []domain.RefundLine{{ItemID: f.itemA.ID, Quantity: 2}},
	})
	if !errors.Is(err, ledger.ErrInvalidRequest) {
		t.Fatalf("expected over-refund to be rejected, got %v", err)
	}

	_, err = f.svc.Refund(f.ctx, domain.RefundRequest{
		OriginalTransactionID: sale.MasterID,
		Lines:                 []domain.RefundLine{{ItemID: f.itemB.ID, Quantity: 1}},
	})
	assert.ErrorIs(t, err, ledger.ErrInvalidRequest, "item not on the sale")

	_, err = f.svc.Refund(f.ctx, domain.RefundRequest{
		OriginalTransactionID: "sale-unknown",
		Lines:                 []domain.RefundLine{{ItemID: f.itemA.ID, Quantity: 1}},
	})
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
}

func TestRefundWithoutRestockAdjustsShiftOnly(t *testing.T) {
	f := newFixture(t, DefaultLoyalty())
	_, err := f.svc.OpenShift(f.ctx, domain.ShiftOpenRequest{LocationID: "store-1"})
	require.NoError(t, err)
	sale, err := f.svc.Sale(f.ctx, domain.SaleRequest{
		LocationID: "store-1", Lines: []domain.SaleLine{{ItemID: f.itemB.ID, Quantity: 2}}, PaymentMethod: domain.PaymentCard,
	})
	require.NoError(t, err)

	refund, err := f.svc.Refund(f.ctx, domain.RefundRequest{
		OriginalTransactionID: sale.Lines[0].TransactionID,
		Lines:                 []domain.RefundLine{{ItemID: f.itemB.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.False(t, refund.Restocked)
	assert.Equal(t, domain.PaymentCard, refund.PaymentMethod)

	b, _ := f.svc.GetItem(f.ctx, f.itemB.ID)
	assert.Equal(t, 8, b.StockQuantity)

	shift, _ := f.svc.ActiveShift(f.ctx, "store-1")
	assert.Equal(t, int64(2000), shift.CardSalesCents)
}

func TestCommitAudit(t *testing.T) {
	f := newFixture(t, DefaultLoyalty())
	before := len(f.svc.Ledger().Transactions(domain.TransactionFilter{}))

	result, err := f.svc.CommitAudit(f.ctx, domain.AuditRequest{
		LocationID: "store-1",
		Lines: []domain.AuditLine{
			{ItemID: f.itemA.ID, CountedQuantity: 20},
			{ItemID: f.itemB.ID, CountedQuantity: 7},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)
	require.Len(t, result.Adjustments, 2)
	assert.Zero(t, result.Adjustments[0].Variance)
	assert.Empty(t, result.Adjustments[0].TransactionID)
	assert.Equal(t, -3, result.Adjustments[1].Variance)

	txns := f.svc.Ledger().Transactions(domain.TransactionFilter{})
	require.Len(t, txns, before+1)
	assert.Equal(t, domain.TransactionAudit, txns[0].Type)
	assert.Equal(t, "Audit Correction", txns[0].Reason)
	assert.Equal(t, 3, txns[0].Quantity)

	b, _ := f.svc.GetItem(f.ctx, f.itemB.ID)
	assert.Equal(t, 7, b.StockQuantity)
}

func TestCommitAuditWithNoVarianceWritesNothing(t *testing.T) {
	f := newFixture(t, DefaultLoyalty())
	revision := f.svc.Ledger().Revision()
	system := 20

	result, err := f.svc.CommitAudit(f.ctx, domain.AuditRequest{
		LocationID: "store-1",
		Lines:      []domain.AuditLine{{ItemID: f.itemA.ID, SystemQuantity: &system, CountedQuantity: 20}},
	})
	require.NoError(t, err)
	assert.Zero(t, result.Applied)
	assert.Equal(t, revision, f.svc.Ledger().Revision())
}

func TestPurchaseOrderLifecycle(t *testing.T) {
	f := newFixture(t, DefaultLoyalty())
	sup, err := f.svc.CreateSupplier(f.ctx, domain.SupplierCreateRequest{Name: "Acme Wholesale"})
	require.NoError(t, err)

	po, err := f.svc.CreatePurchaseOrder(f.ctx, domain.PurchaseOrderCreateRequest{
		SupplierID: sup.ID,
		LocationID: "wh-1",
		Items: []domain.PurchaseOrderItem{
			{ItemID: f.itemA.ID, Quantity: 20, CostPriceCents: 900},
			{ItemID: f.itemB.ID, Quantity: 5, CostPriceCents: 1000},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseOrderOrdered, po.Status)
	assert.Equal(t, int64(20*900+5*1000), po.TotalCostCents)

	expiry := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	received, err := f.svc.ReceivePurchaseOrder(f.ctx, po.ID, domain.PurchaseOrderReceiveRequest{
		InvoiceNumber: "INV-77",
		Batches:       map[string]domain.BatchInfo{f.itemA.ID: {BatchNumber: "LOT-A", ExpiryDate: &expiry}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseOrderReceived, received.Status)
	assert.Equal(t, "INV-77", received.InvoiceNumber)
	require.NotNil(t, received.ReceivedAt)
	assert.Equal(t, "admin", received.ReceivedBy)

	a, _ := f.svc.GetItem(f.ctx, f.itemA.ID)
	assert.Equal(t, 20, a.StockDistribution["wh-1"])
	assert.Equal(t, 40, a.StockQuantity)
	assert.Equal(t, int64(750), a.CostPriceCents, "(600*20 + 900*20) / 40")
	require.Len(t, a.Batches, 1)
	assert.Equal(t, "wh-1", a.Batches[0].LocationID)

	restocks := f.svc.Ledger().Transactions(domain.TransactionFilter{LocationID: "wh-1", Type: domain.TransactionRestock})
	require.Len(t, restocks, 2)
	assert.Equal(t, "Received PO "+po.ID+" (Invoice INV-77)", restocks[0].Reason)

	_, err = f.svc.ReceivePurchaseOrder(f.ctx, po.ID, domain.PurchaseOrderReceiveRequest{InvoiceNumber: "INV-77"})
	assert.ErrorIs(t, err, ledger.ErrPurchaseOrderReceived)
	a, _ = f.svc.GetItem(f.ctx, f.itemA.ID)
	assert.Equal(t, 40, a.StockQuantity, "second receive must not add stock")

	_, err = f.svc.CancelPurchaseOrder(f.ctx, po.ID)
	assert.ErrorIs(t, err, ledger.ErrPurchaseOrderReceived)
}

func TestCancelledPurchaseOrderCannotBeReceived(t *testing.T) {
	f := newFixture(t, DefaultLoyalty())
	sup, err := f.svc.CreateSupplier(f.ctx, domain.SupplierCreateRequest{Name: "Acme"})
	require.NoError(t, err)
	po, err := f.svc.CreatePurchaseOrder(f.ctx, domain.PurchaseOrderCreateRequest{
		SupplierID: sup.ID,
		Items:      []domain.PurchaseOrderItem{{ItemID: f.itemA.ID, Quantity: 1, CostPriceCents: 1}},
	})
	require.NoError(t, err)

	cancelled, err := f.svc.CancelPurchaseOrder(f.ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseOrderCancelled, cancelled.Status)

	_, err = f.svc.ReceivePurchaseOrder(f.ctx, po.ID, domain.PurchaseOrderReceiveRequest{LocationID: "store-1"})
	assert.ErrorIs(t, err, ledger.ErrInvalidState)

	_, err = f.svc.CreatePurchaseOrder(f.ctx, domain.PurchaseOrderCreateRequest{
		SupplierID: "sup-missing",
		Items:      []domain.PurchaseOrderItem{{ItemID: f.itemA.ID, Quantity: 1}},
	})
	assert.ErrorIs(t, err, ledger.ErrInvalidRequest)

	orders, err := f.svc.ListPurchaseOrders(f.ctx, "cancelled")
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestWeightedCostCents(t *testing.T) {
	cases := []struct {
		name                string
		oldCost             int64
		oldQty              int
		inCost              int64
		inQty               int
		want                int64
	}{
		{"no incoming", 500, 10, 0, 5, 500},
		{"empty shelf", 500, 0, 800, 5, 800},
		{"blend", 600, 20, 900, 20, 750},
		{"rounds", 100, 2, 101, 1, 100},
		{"floor of one", 1, 1000, 1, 1, 1},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, weightedCostCents(tc.oldCost, tc.oldQty, tc.inCost, tc.inQty), tc.name)
	}
}

func TestShiftLifecycle(t *testing.T) {
	f := newFixture(t, DefaultLoyalty())

	_, err := f.svc.CloseShift(f.ctx, domain.ShiftCloseRequest{LocationID: "store-1"})
	assert.ErrorIs(t, err, ledger.ErrShiftNotFound)

	opened, err := f.svc.OpenShift(f.ctx, domain.ShiftOpenRequest{LocationID: "store-1", StartAmountCents: 10000})
	require.NoError(t, err)
	assert.Equal(t, "admin", opened.OpenedBy)

	_, err = f.svc.OpenShift(f.ctx, domain.ShiftOpenRequest{LocationID: "store-1", StartAmountCents: 5})
	assert.ErrorIs(t, err, ledger.ErrShiftAlreadyOpen)

	_, err = f.svc.OpenShift(f.ctx, domain.ShiftOpenRequest{LocationID: "wh-1"})
	require.NoError(t, err, "other locations keep their own shift")

	_, err = f.svc.Sale(f.ctx, domain.SaleRequest{
		LocationID: "store-1", Lines: []domain.SaleLine{{ItemID: f.itemA.ID, Quantity: 5}, {ItemID: f.itemB.ID, Quantity: 10}},
		PaymentMethod: domain.PaymentCash,
	})
	require.NoError(t, err)

	closed, err := f.svc.CloseShift(f.ctx, domain.ShiftCloseRequest{LocationID: "store-1", EndAmountCents: 34900, Notes: "short"})
	require.NoError(t, err)
	assert.Equal(t, domain.ShiftClosed, closed.Status)
	assert.Equal(t, int64(35000), closed.ExpectedAmountCents)
	assert.Equal(t, int64(-100), closed.VarianceCents)
	require.NotNil(t, closed.EndTime)

	_, err = f.svc.ActiveShift(f.ctx, "store-1")
	assert.ErrorIs(t, err, ledger.ErrShiftNotFound)

	_, err = f.svc.OpenShift(f.ctx, domain.ShiftOpenRequest{LocationID: "store-1"})
	require.NoError(t, err)
	assert.Len(t, f.svc.ListShifts(f.ctx, "store-1"), 2)
}

func TestPrivilegedOperationsRequireRole(t *testing.T) {
	f := newFixture(t, DefaultLoyalty())
	cashier := WithActor(context.Background(), domain.Actor{Username: "kasir", Role: domain.RoleCashier})

	_, err := f.svc.CreateItem(cashier, domain.ItemCreateRequest{SKU: "X", Name: "X", Category: "x"})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.CommitAudit(context.Background(), domain.AuditRequest{LocationID: "store-1", Lines: []domain.AuditLine{{ItemID: f.itemA.ID}}})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.CreateEmployee(WithActor(context.Background(), domain.Actor{Username: "m", Role: domain.RoleManager}),
		domain.EmployeeCreateRequest{Name: "N", Email: "n@example.com", Role: domain.RoleCashier, PIN: "4821"})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.BulkAdjust(cashier, domain.BulkAdjustRequest{
		LocationID: "store-1", Reason: "Recount", Lines: []domain.BulkAdjustLine{{ItemID: f.itemA.ID, Delta: -5}},
	})
	assert.ErrorIs(t, err, ErrForbidden)
	item, err := f.svc.GetItem(f.ctx, f.itemA.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, item.StockQuantity)

	_, err = f.svc.Sale(cashier, domain.SaleRequest{
		LocationID: "store-1", Lines: []domain.SaleLine{{ItemID: f.itemA.ID, Quantity: 1}}, PaymentMethod: domain.PaymentCash,
	})
	assert.NoError(t, err, "cashiers can sell")
}

func TestCreateItemRejectsDuplicateSKU(t *testing.T) {
	f := newFixture(t, DefaultLoyalty())
	_, err := f.svc.CreateItem(f.ctx, domain.ItemCreateRequest{SKU: " A-1 ", Name: "Again", Category: "grocery"})
	assert.ErrorIs(t, err, ledger.ErrDuplicate)
}

func TestUpdateItemRejectsDuplicateSKU(t *testing.T) {
	f := newFixture(t, DefaultLoyalty())
	taken := "a-1"
	_, err := f.svc.UpdateItem(f.ctx, f.itemB.ID, domain.ItemUpdateRequest{SKU: &taken})
	assert.ErrorIs(t, err, ledger.ErrDuplicate)

	item, err := f.svc.GetItem(f.ctx, f.itemB.ID)
	require.NoError(t, err)
	assert.Equal(t, "B-1", item.SKU)
}

func TestUpdateItemVersionConflict(t *testing.T) {
	f := newFixture(t, DefaultLoyalty())
	stale := f.itemA.Version
	name := "Item A+"

	updated, err := f.svc.UpdateItem(f.ctx, f.itemA.ID, domain.ItemUpdateRequest{Name: &name, ExpectedVersion: &stale})
	require.NoError(t, err)
	assert.Equal(t, stale+1, updated.Version)

	_, err = f.svc.UpdateItem(f.ctx, f.itemA.ID, domain.ItemUpdateRequest{Name: &name, ExpectedVersion: &stale})
	assert.ErrorIs(t, err, ledger.ErrVersionConflict)
}

type countingCache struct {
	store map[string]domain.SalesReport
	hits  int
}

func (c *countingCache) Get(_ context.Context, key string) (*domain.SalesReport, bool, error) {
	r, ok := c.store[key]
	if ok {
		c.hits++
	}
	return &r, ok, nil
}

func (c *countingCache) Set(_ context.Context, key string, value *domain.SalesReport, _ time.Duration) error {
	c.store[key] = *value
	return nil
}

func TestSalesReport(t *testing.T) {
	f := newFixture(t, DefaultLoyalty())
	cache := &countingCache{store: map[string]domain.SalesReport{}}
	f.svc.reports = cache

	sale1, err := f.svc.Sale(f.ctx, domain.SaleRequest{
		LocationID: "store-1", Lines: []domain.SaleLine{{ItemID: f.itemA.ID, Quantity: 2}, {ItemID: f.itemB.ID, Quantity: 1}},
		PaymentMethod: domain.PaymentCash,
	})
	require.NoError(t, err)
	_, err = f.svc.Sale(f.ctx, domain.SaleRequest{
		LocationID: "store-1", Lines: []domain.SaleLine{{ItemID: f.itemB.ID, Quantity: 2}}, PaymentMethod: domain.PaymentCard,
	})
	require.NoError(t, err)
	_, err = f.svc.Refund(f.ctx, domain.RefundRequest{
		OriginalTransactionID: sale1.MasterID, Lines: []domain.RefundLine{{ItemID: f.itemA.ID, Quantity: 1}}, Restock: true,
	})
	require.NoError(t, err)
	_, err = f.svc.RecordExpense(f.ctx, domain.ExpenseCreateRequest{LocationID: "store-1", Category: "utilities", AmountCents: 500})
	require.NoError(t, err)

	from := time.Now().UTC().Add(-time.Hour)
	to := time.Now().UTC().Add(time.Hour)
	report, err := f.svc.SalesReport(f.ctx, "store-1", from, to)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Sales)
	assert.Equal(t, 3, report.SaleLines)
	assert.Equal(t, 5, report.UnitsSold)
	assert.Equal(t, int64(8000), report.GrossSalesCents)
	assert.Equal(t, 1, report.Refunds)
	assert.Equal(t, int64(1000), report.RefundTotalCents)
	assert.Equal(t, int64(7000), report.NetSalesCents)
	assert.Equal(t, int64(500), report.ExpenseCents)
	require.Len(t, report.ByPayment, 2)
	assert.Equal(t, domain.PaymentCard, report.ByPayment[0].PaymentMethod)
	assert.Equal(t, int64(4000), report.ByPayment[0].TotalCents)
	assert.Equal(t, int64(3000), report.ByPayment[1].TotalCents)
	require.Len(t, report.ByItem, 2)
	assert.Equal(t, f.itemB.ID, report.ByItem[0].ItemID)

	_, err = f.svc.SalesReport(f.ctx, "store-1", from, to)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)

	_, err = f.svc.Sale(f.ctx, domain.SaleRequest{
		LocationID: "store-1", Lines: []domain.SaleLine{{ItemID: f.itemA.ID, Quantity: 1}}, PaymentMethod: domain.PaymentCash,
	})
	require.NoError(t, err)
	fresh, err := f.svc.SalesReport(f.ctx, "store-1", from, to)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits, "a new commit must bypass the cached report")
	assert.Equal(t, 3, fresh.Sales)

	_, err = f.svc.SalesReport(f.ctx, "store-1", to, from)
	assert.ErrorIs(t, err, ledger.ErrInvalidRequest)
}

func TestBootstrapAdminOnlyOnEmptyDirectory(t *testing.T) {
	f := newFixture(t, DefaultLoyalty())

	created, err := f.svc.BootstrapAdmin(f.ctx, "Owner@Example.com", "493817")
	require.NoError(t, err)
	assert.True(t, created)

	emp, ok := f.svc.Ledger().EmployeeByEmail("owner@example.com")
	require.True(t, ok)
	assert.Equal(t, domain.RoleAdmin, emp.Role)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(emp.PINHash), []byte("493817")))

	created, err = f.svc.BootstrapAdmin(f.ctx, "other@example.com", "493817")
	require.NoError(t, err)
	assert.False(t, created)

	for _, e := range f.svc.ListEmployees(f.ctx) {
		assert.Empty(t, e.PINHash)
	}

	_, err = f.svc.CreateEmployee(f.ctx, domain.EmployeeCreateRequest{Name: "Dup", Email: "OWNER@example.com", Role: domain.RoleCashier, PIN: "4821"})
	assert.ErrorIs(t, err, ledger.ErrDuplicate)
}

func TestValidationErrorsNameTheField(t *testing.T) {
	f := newFixture(t, DefaultLoyalty())
	_, err := f.svc.Transfer(f.ctx, domain.TransferRequest{ItemID: f.itemA.ID, FromLocationID: "store-1", ToLocationID: "store-1", Quantity: 1})
	require.ErrorIs(t, err, ledger.ErrInvalidRequest)
	assert.True(t, strings.Contains(err.Error(), "ToLocationID"), err.Error())
}

func TestSalesReportOpenWindowReusesCache(t *testing.T) {
	f := newFixture(t, DefaultLoyalty())
	cache := &countingCache{store: map[string]domain.SalesReport{}}
	f.svc.reports = cache
	clock := time.Date(2026, 5, 4, 10, 15, 5, 0, time.UTC)
	f.svc.now = func() time.Time { return clock }

	first, err := f.svc.SalesReport(f.ctx, "", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 4, 10, 16, 0, 0, time.UTC), first.To)

	clock = clock.Add(20 * time.Second)
	_, err = f.svc.SalesReport(f.ctx, "", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
}
