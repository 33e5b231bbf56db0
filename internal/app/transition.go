package app

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/victor5516/raffles-api-core/internal/domain"
)

// UpdateStatus moves a purchase to status on behalf of actor. Leaving VERIFIED
// requires a super admin; entering VERIFIED assigns random numbers when none
// are held yet.
func (s *PurchaseService) UpdateStatus(ctx context.Context, purchaseID string, status domain.PurchaseStatus, actor domain.Actor) (purchase domain.Purchase, err error) {
	ctx, span := tracer.Start(ctx, "PurchaseService.UpdateStatus",
		trace.WithAttributes(attribute.String("purchase.id", purchaseID), attribute.String("purchase.status", string(status))))
	defer func() { endSpan(span, err) }()

	if !status.Valid() {
		return domain.Purchase{}, domain.ErrInvalidStatus
	}
	if purchaseID == "" {
		return domain.Purchase{}, domain.ErrInvalidID
	}

	current, err := s.repo.GetPurchase(ctx, purchaseID)
	if err != nil {
		return domain.Purchase{}, err
	}

	var (
		result  domain.Purchase
		changed bool
	)
	err = withRaffleLock(ctx, s.repo, current.RaffleID, false, func(txCtx context.Context, raffle domain.Raffle) error {
		locked, err := s.repo.GetPurchaseForUpdate(txCtx, purchaseID)
		if err != nil {
			return err
		}
		next, didChange, err := s.applyTransition(txCtx, raffle, locked, status, actor)
		if err != nil {
			return err
		}
		if didChange {
			if err := s.repo.UpdatePurchase(txCtx, next); err != nil {
				return err
			}
		}
		result, changed = next, didChange
		return nil
	})
	if err != nil {
		return domain.Purchase{}, err
	}

	if changed {
		s.notify(ctx, statusEvent(result, "status_changed", "Purchase status updated", s.clock.Now()))
	}
	return result, nil
}

// applyTransition computes the purchase after moving it to status. It must run
// inside the raffle lock. The returned flag is false for no-op requests; the
// caller persists the result.
func (s *PurchaseService) applyTransition(ctx context.Context, raffle domain.Raffle, p domain.Purchase, status domain.PurchaseStatus, actor domain.Actor) (domain.Purchase, bool, error) {
	if p.Status == status {
		return p, false, nil
	}
	if p.Status == domain.PurchaseStatusVerified && !actor.Privileged() {
		return p, false, domain.ErrRevertForbidden
	}

	next := p
	next.Status = status

	if status.Live() && !p.Status.Live() {
		if err := s.reclaim(ctx, raffle, p); err != nil {
			return p, false, err
		}
	}

	if status == domain.PurchaseStatusVerified {
		if next.VerifiedAt == nil {
			now := s.clock.Now()
			next.VerifiedAt = &now
		}
		if !next.HasNumbers() {
			numbers, err := assignRandom(ctx, s.repo, s.drawer, raffle, next)
			if err != nil {
				return p, false, err
			}
			next.TicketNumbers = numbers
		}
	}
	return next, true, nil
}

// reclaim re-checks a purchase that is coming back from a non-live status.
// Its numbers, or its quantity when it has none, must still fit.
func (s *PurchaseService) reclaim(ctx context.Context, raffle domain.Raffle, p domain.Purchase) error {
	if p.HasNumbers() {
		occupied, err := s.repo.OccupiedNumbers(ctx, raffle.ID, p.ID)
		if err != nil {
			return err
		}
		if taken := intersect(p.TicketNumbers, occupied); len(taken) > 0 {
			return &domain.TicketsTakenError{Numbers: taken}
		}
		return nil
	}
	return checkCapacity(ctx, s.repo, raffle, p.TicketQuantity)
}
