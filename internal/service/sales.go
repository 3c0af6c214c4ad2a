package service

import (
	"context"
	"fmt"
	"math"

	"stockledger/internal/domain"
	"stockledger/internal/ledger"
	"stockledger/internal/xid"
)

// Sale checks out a cart in one ledger commit: stock, line transactions, the
// customer's loyalty balance and the open shift move together or not at all.
func (s *Service) Sale(ctx context.Context, req domain.SaleRequest) (domain.SaleReceipt, error) {
	if err := s.check(req); err != nil {
		return domain.SaleReceipt{}, err
	}
	if req.PointsToRedeem > 0 && req.CustomerID == "" {
		return domain.SaleReceipt{}, fmt.Errorf("%w: points can only be redeemed by a customer", ledger.ErrInvalidRequest)
	}
	user := actorName(ctx)
	reason := "POS Sale"
	if req.Note != "" {
		reason = "POS Sale: " + req.Note
	}

	var receipt domain.SaleReceipt
	_, err := s.ledger.Update(ctx, func(tx *ledger.Tx) error {
		if _, err := tx.Location(req.LocationID); err != nil {
			return err
		}
		var customer *domain.Customer
		if req.CustomerID != "" {
			c, err := tx.Customer(req.CustomerID)
			if err != nil {
				return err
			}
			if req.PointsToRedeem > c.LoyaltyPoints {
				return fmt.Errorf("%w: customer has %d points, %d requested", ledger.ErrInvalidRequest, c.LoyaltyPoints, req.PointsToRedeem)
			}
			customer = &c
		}

		master := xid.New("sale")
		receipt = domain.SaleReceipt{
			MasterID:      master,
			LocationID:    req.LocationID,
			PaymentMethod: req.PaymentMethod,
			CustomerID:    req.CustomerID,
			Lines:         make([]domain.ReceiptLine, 0, len(req.Lines)),
			Timestamp:     tx.Now(),
		}

		for i, line := range req.Lines {
			item, err := tx.Item(line.ItemID)
			if err != nil {
				return err
			}
			price := item.PriceAt(req.LocationID)
			txn, err := tx.AdjustStock(ledger.Adjustment{
				ID:             fmt.Sprintf("%s-%d", master, i+1),
				MasterID:       master,
				ItemID:         line.ItemID,
				LocationID:     req.LocationID,
				Delta:          -line.Quantity,
				Type:           domain.TransactionSale,
				Reason:         reason,
				UserName:       user,
				CustomerID:     req.CustomerID,
				PaymentMethod:  req.PaymentMethod,
				UnitPriceCents: price,
			})
			if err != nil {
				return err
			}
			receipt.SubtotalCents += txn.AmountCents
			receipt.Lines = append(receipt.Lines, domain.ReceiptLine{
				TransactionID:  txn.ID,
				ItemID:         item.ID,
				Name:           item.Name,
				Quantity:       line.Quantity,
				UnitPriceCents: price,
				AmountCents:    txn.AmountCents,
			})
		}

		receipt.DiscountCents = int64(math.Round(float64(receipt.SubtotalCents) * req.DiscountPercent / 100))
		receipt.PointsRedeemed = req.PointsToRedeem
		receipt.RedemptionCents = req.PointsToRedeem * s.loyalty.RedeemValueCents
		receipt.FinalTotalCents = max(0, receipt.SubtotalCents-receipt.DiscountCents-receipt.RedemptionCents)

		if customer != nil {
			receipt.PointsEarned = receipt.FinalTotalCents / s.loyalty.EarnRateCents
			customer.TotalSpentCents += receipt.FinalTotalCents
			customer.LoyaltyPoints = max(0, customer.LoyaltyPoints-req.PointsToRedeem+receipt.PointsEarned)
			now := tx.Now()
			customer.LastVisit = &now
			tx.PutCustomer(*customer)
			receipt.CustomerPoints = customer.LoyaltyPoints
		}

		if shift, ok := tx.OpenShift(req.LocationID); ok {
			if req.PaymentMethod == domain.PaymentCash {
				shift.CashSalesCents += receipt.FinalTotalCents
			} else {
				shift.CardSalesCents += receipt.FinalTotalCents
			}
			tx.PutShift(shift)
			receipt.ShiftID = shift.ID
		}

		tx.MarkSale()
		return nil
	})
	if err != nil {
		return domain.SaleReceipt{}, err
	}

	s.log.Info().
		Str("master_id", receipt.MasterID).
		Str("location_id", receipt.LocationID).
		Int("lines", len(receipt.Lines)).
		Int64("final_cents", receipt.FinalTotalCents).
		Msg("sale recorded")
	return receipt, nil
}

// Refund reverses part of an earlier sale. Lines are valued at the item's
// current price. Points redeemed on the original sale are not given back.
func (s *Service) Refund(ctx context.Context, req domain.RefundRequest) (domain.RefundReceipt, error) {
	if err := s.check(req); err != nil {
		return domain.RefundReceipt{}, err
	}
	user := actorName(ctx)

	var receipt domain.RefundReceipt
	_, err := s.ledger.Update(ctx, func(tx *ledger.Tx) error {
		original := tx.FindTransactions(func(t domain.Transaction) bool {
			return t.Type == domain.TransactionSale && (t.MasterID == req.OriginalTransactionID || t.ID == req.OriginalTransactionID)
		})
		if len(original) == 0 {
			return fmt.Errorf("%w: %s", ledger.ErrTransactionNotFound, req.OriginalTransactionID)
		}
		first := original[0]
		originalID := first.MasterID
		if originalID == "" {
			originalID = first.ID
		}

		locationID := req.LocationID
		if locationID == "" {
			locationID = first.LocationID
		}
		method := req.PaymentMethod
		if method == "" {
			method = first.PaymentMethod
		}
		if method == "" {
			method = domain.PaymentCash
		}
		reason := req.Reason
		if reason == "" {
			reason = "Refund of " + originalID
		}

		sold := make(map[string]int)
		unitPrice := make(map[string]int64)
		for _, t := range original {
			sold[t.ItemID] += t.Quantity
			unitPrice[t.ItemID] = t.UnitPriceCents
		}

		receipt = domain.RefundReceipt{
			OriginalID:    originalID,
			LocationID:    locationID,
			PaymentMethod: method,
			CustomerID:    first.CustomerID,
			Restocked:     req.Restock,
			Lines:         make([]domain.ReceiptLine, 0, len(req.Lines)),
			Timestamp:     tx.Now(),
		}

		for _, line := range req.Lines {
			refunded := 0
			for _, t := range tx.FindTransactions(func(t domain.Transaction) bool {
				return t.Type == domain.TransactionRefund && t.OriginalID == originalID && t.ItemID == line.ItemID
			}) {
				refunded += t.Quantity
			}
			if line.Quantity > sold[line.ItemID]-refunded {
				return fmt.Errorf("%w: item %s sold %d, already refunded %d, requested %d",
					ledger.ErrInvalidRequest, line.ItemID, sold[line.ItemID], refunded, line.Quantity)
			}

			name := line.ItemID
			price := unitPrice[line.ItemID]
			if item, err := tx.Item(line.ItemID); err == nil {
				name = item.Name
				price = item.PriceAt(locationID)
			} else if req.Restock {
				return err
			}

			var txn domain.Transaction
			var err error
			if req.Restock {
				txn, err = tx.AdjustStock(ledger.Adjustment{
					ItemID:         line.ItemID,
					LocationID:     locationID,
					Delta:          line.Quantity,
					Type:           domain.TransactionRefund,
					Reason:         reason,
					OriginalID:     originalID,
					UserName:       user,
					CustomerID:     first.CustomerID,
					PaymentMethod:  method,
					UnitPriceCents: price,
				})
			} else {
				txn, err = tx.Record(domain.Transaction{
					OriginalID:     originalID,
					Type:           domain.TransactionRefund,
					ItemID:         line.ItemID,
					Quantity:       line.Quantity,
					Reason:         reason,
					UserName:       user,
					LocationID:     locationID,
					CustomerID:     first.CustomerID,
					PaymentMethod:  method,
					UnitPriceCents: price,
					AmountCents:    price * int64(line.Quantity),
				})
			}
			if err != nil {
				return err
			}
			receipt.RefundTotalCents += txn.AmountCents
			receipt.Lines = append(receipt.Lines, domain.ReceiptLine{
				TransactionID:  txn.ID,
				ItemID:         line.ItemID,
				Name:           name,
				Quantity:       line.Quantity,
				UnitPriceCents: price,
				AmountCents:    txn.AmountCents,
			})
		}

		if shift, ok := tx.OpenShift(locationID); ok {
			if method == domain.PaymentCash {
				shift.CashSalesCents -= receipt.RefundTotalCents
			} else {
				shift.CardSalesCents -= receipt.RefundTotalCents
			}
			tx.PutShift(shift)
			receipt.ShiftID = shift.ID
		}

		if first.CustomerID != "" {
			customer, err := tx.Customer(first.CustomerID)
			if err != nil {
				s.log.Warn().Str("customer_id", first.CustomerID).Msg("refund customer no longer exists")
				return nil
			}
			receipt.PointsReversed = receipt.RefundTotalCents / s.loyalty.EarnRateCents
			customer.TotalSpentCents = max(0, customer.TotalSpentCents-receipt.RefundTotalCents)
			customer.LoyaltyPoints = max(0, customer.LoyaltyPoints-receipt.PointsReversed)
			tx.PutCustomer(customer)
		}
		return nil
	})
	if err != nil {
		return domain.RefundReceipt{}, err
	}

	s.log.Info().
		Str("original_id", receipt.OriginalID).
		Int64("refund_cents", receipt.RefundTotalCents).
		Bool("restocked", receipt.Restocked).
		Msg("refund recorded")
	return receipt, nil
}
