package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"stockledger/internal/domain"
	"stockledger/internal/ledger"
)

// SalesReport aggregates the transaction log over [from, to). Amounts are at
// list price; discounts and redemptions are reflected in shift totals only.
// Results are cached per ledger revision, so a cached report is never stale.
// An open-ended window ends at the next whole minute, which keeps its cache key
// stable between commits.
func (s *Service) SalesReport(ctx context.Context, locationID string, from, to time.Time) (domain.SalesReport, error) {
	if locationID != "" {
		if _, err := s.ledger.Location(locationID); err != nil {
			return domain.SalesReport{}, err
		}
	}
	if to.IsZero() {
		to = s.now().Truncate(time.Minute).Add(time.Minute)
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -1)
	}
	if !from.Before(to) {
		return domain.SalesReport{}, fmt.Errorf("%w: report window is empty", ledger.ErrInvalidRequest)
	}

	key := fmt.Sprintf("%d:%s:%d:%d", s.ledger.Revision(), locationID, from.UnixNano(), to.UnixNano())
	if cached, ok, err := s.reports.Get(ctx, key); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		s.log.Warn().Err(err).Msg("report cache read failed")
	}

	report := s.buildSalesReport(locationID, from, to)
	if err := s.reports.Set(ctx, key, &report, s.reportTTL); err != nil {
		s.log.Warn().Err(err).Msg("report cache write failed")
	}
	return report, nil
}

func (s *Service) buildSalesReport(locationID string, from, to time.Time) domain.SalesReport {
	report := domain.SalesReport{LocationID: locationID, From: from, To: to}

	names := make(map[string]string)
	for _, item := range s.ledger.Items() {
		names[item.ID] = item.Name
	}

	sales := make(map[string]struct{})
	payments := make(map[domain.PaymentMethod]*domain.SalesReportPayment)
	paymentSales := make(map[domain.PaymentMethod]map[string]struct{})
	items := make(map[string]*domain.SalesReportItem)
	itemFor := func(id string) *domain.SalesReportItem {
		if row, ok := items[id]; ok {
			return row
		}
		name, ok := names[id]
		if !ok {
			name = "Unknown item"
		}
		row := &domain.SalesReportItem{ItemID: id, Name: name}
		items[id] = row
		return row
	}
	paymentFor := func(m domain.PaymentMethod) *domain.SalesReportPayment {
		if row, ok := payments[m]; ok {
			return row
		}
		row := &domain.SalesReportPayment{PaymentMethod: m}
		payments[m] = row
		paymentSales[m] = make(map[string]struct{})
		return row
	}

	for _, t := range s.ledger.Transactions(domain.TransactionFilter{LocationID: locationID, From: from, To: to}) {
		switch t.Type {
		case domain.TransactionSale:
			saleID := t.MasterID
			if saleID == "" {
				saleID = t.ID
			}
			sales[saleID] = struct{}{}
			report.SaleLines++
			report.UnitsSold += t.Quantity
			report.GrossSalesCents += t.AmountCents

			pay := paymentFor(t.PaymentMethod)
			pay.TotalCents += t.AmountCents
			paymentSales[t.PaymentMethod][saleID] = struct{}{}

			row := itemFor(t.ItemID)
			row.UnitsSold += t.Quantity
			row.GrossCents += t.AmountCents
		case domain.TransactionRefund:
			report.Refunds++
			report.RefundTotalCents += t.AmountCents
			paymentFor(t.PaymentMethod).TotalCents -= t.AmountCents

			row := itemFor(t.ItemID)
			row.Refunded += t.Quantity
			row.RefundCents += t.AmountCents
		}
	}
	report.Sales = len(sales)
	report.NetSalesCents = report.GrossSalesCents - report.RefundTotalCents

	for _, e := range s.ledger.Expenses(locationID) {
		if !e.Date.Before(from) && e.Date.Before(to) {
			report.ExpenseCents += e.AmountCents
		}
	}

	report.ByPayment = make([]domain.SalesReportPayment, 0, len(payments))
	for method, row := range payments {
		row.Sales = len(paymentSales[method])
		report.ByPayment = append(report.ByPayment, *row)
	}
	sort.Slice(report.ByPayment, func(i, j int) bool { return report.ByPayment[i].PaymentMethod < report.ByPayment[j].PaymentMethod })

	report.ByItem = make([]domain.SalesReportItem, 0, len(items))
	for _, row := range items {
		report.ByItem = append(report.ByItem, *row)
	}
	sort.Slice(report.ByItem, func(i, j int) bool {
		if report.ByItem[i].GrossCents != report.ByItem[j].GrossCents {
			return report.ByItem[i].GrossCents > report.ByItem[j].GrossCents
		}
		return report.ByItem[i].ItemID < report.ByItem[j].ItemID
	})
	return report
}
