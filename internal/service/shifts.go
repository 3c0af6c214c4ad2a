package service

import (
	"context"
	"fmt"

	"stockledger/internal/domain"
	"stockledger/internal/ledger"
)

// OpenShift starts a cash shift. Each location holds at most one open shift.
func (s *Service) OpenShift(ctx context.Context, req domain.ShiftOpenRequest) (domain.CashShift, error) {
	if err := s.check(req); err != nil {
		return domain.CashShift{}, err
	}
	user := actorName(ctx)

	var shift domain.CashShift
	_, err := s.ledger.Update(ctx, func(tx *ledger.Tx) error {
		if _, err := tx.Location(req.LocationID); err != nil {
			return err
		}
		if open, ok := tx.OpenShift(req.LocationID); ok {
			return fmt.Errorf("%w: %s opened by %s", ledger.ErrShiftAlreadyOpen, open.ID, open.OpenedBy)
		}
		shift = tx.PutShift(domain.CashShift{
			LocationID:       req.LocationID,
			OpenedBy:         user,
			StartTime:        tx.Now(),
			StartAmountCents: req.StartAmountCents,
			Status:           domain.ShiftOpen,
		})
		return nil
	})
	if err != nil {
		return domain.CashShift{}, err
	}
	s.log.Info().Str("shift_id", shift.ID).Str("location_id", shift.LocationID).Str("opened_by", user).Msg("shift opened")
	return shift, nil
}

// CloseShift reconciles the drawer: expected = start + cash sales, and the
// variance is whatever the counted amount differs from that.
func (s *Service) CloseShift(ctx context.Context, req domain.ShiftCloseRequest) (domain.CashShift, error) {
	if err := s.check(req); err != nil {
		return domain.CashShift{}, err
	}
	user := actorName(ctx)

	var shift domain.CashShift
	_, err := s.ledger.Update(ctx, func(tx *ledger.Tx) error {
		open, ok := tx.OpenShift(req.LocationID)
		if !ok {
			return fmt.Errorf("%w: %s", ledger.ErrShiftNotFound, req.LocationID)
		}
		now := tx.Now()
		open.Status = domain.ShiftClosed
		open.EndTime = &now
		open.ClosedBy = user
		open.EndAmountCents = req.EndAmountCents
		open.ExpectedAmountCents = open.StartAmountCents + open.CashSalesCents
		open.VarianceCents = open.EndAmountCents - open.ExpectedAmountCents
		open.Notes = req.Notes
		shift = tx.PutShift(open)
		return nil
	})
	if err != nil {
		return domain.CashShift{}, err
	}

	event := s.log.Info()
	if shift.VarianceCents != 0 {
		event = s.log.Warn()
	}
	event.Str("shift_id", shift.ID).Int64("expected_cents", shift.ExpectedAmountCents).Int64("variance_cents", shift.VarianceCents).Msg("shift closed")
	return shift, nil
}

func (s *Service) ActiveShift(_ context.Context, locationID string) (domain.CashShift, error) {
	if _, err := s.ledger.Location(locationID); err != nil {
		return domain.CashShift{}, err
	}
	shift, ok := s.ledger.OpenShift(locationID)
	if !ok {
		return domain.CashShift{}, fmt.Errorf("%w: %s", ledger.ErrShiftNotFound, locationID)
	}
	return shift, nil
}

func (s *Service) ListShifts(_ context.Context, locationID string) []domain.CashShift {
	return s.ledger.Shifts(locationID)
}
