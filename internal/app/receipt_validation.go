package app

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/victor5516/raffles-api-core/internal/domain"
)

const reasonInsufficientData = "insufficient data"

// Decision is the outcome of validating one receipt extraction.
type Decision struct {
	Status domain.PurchaseStatus
	Reason string
}

// Decide evaluates an extraction against the purchase's claimed payment. It is
// pure: identical inputs always produce the same decision.
func Decide(p domain.Purchase, currencySymbol string, ex domain.ReceiptExtraction, duplicate bool) Decision {
	if !ex.Complete() || domain.DigitsOnly(*ex.Reference) == "" {
		return Decision{Status: domain.PurchaseStatusManualReview, Reason: reasonInsufficientData}
	}
	if duplicate {
		return Decision{Status: domain.PurchaseStatusDuplicated, Reason: "bank reference already used by another purchase"}
	}

	var failed []string
	if !amountsMatch(p.TotalAmount, *ex.Amount) {
		failed = append(failed, "amount mismatch")
	}
	if strings.TrimSpace(*ex.Currency) != strings.TrimSpace(currencySymbol) {
		failed = append(failed, "currency mismatch")
	}
	if !referencesMatch(p.BankReference, *ex.Reference) {
		failed = append(failed, "reference mismatch")
	}
	if len(failed) > 0 {
		return Decision{Status: domain.PurchaseStatusManualReview, Reason: strings.Join(failed, ", ")}
	}
	return Decision{Status: domain.PurchaseStatusVerified}
}

// Amounts match when they differ by less than one cent. The difference is
// rounded to millionths first so 50.01-50 counts as a full cent.
const (
	amountScale     = 1e6
	amountTolerance = 0.01 * amountScale
)

// amountsMatch is false for NaN.
func amountsMatch(claimed, extracted float64) bool {
	return math.Round(math.Abs(claimed-extracted)*amountScale) < amountTolerance
}

func referencesMatch(claimed, extracted string) bool {
	c := domain.DigitsOnly(claimed)
	e := domain.DigitsOnly(extracted)
	if c == "" || e == "" {
		return false
	}
	return strings.Contains(c, e) || strings.Contains(e, c)
}

// ProcessReceiptResult records an extraction payload and, for purchases still
// awaiting review, applies the decision it leads to.
func (s *PurchaseService) ProcessReceiptResult(ctx context.Context, purchaseID string, raw json.RawMessage) (purchase domain.Purchase, decision Decision, err error) {
	ctx, span := tracer.Start(ctx, "PurchaseService.ProcessReceiptResult",
		trace.WithAttributes(attribute.String("purchase.id", purchaseID)))
	defer func() {
		span.SetAttributes(attribute.String("decision.status", string(decision.Status)))
		endSpan(span, err)
	}()

	if purchaseID == "" {
		return domain.Purchase{}, Decision{}, domain.ErrInvalidID
	}
	current, err := s.repo.GetPurchase(ctx, purchaseID)
	if err != nil {
		return domain.Purchase{}, Decision{}, err
	}

	var forced *Decision
	for attempt := 0; ; attempt++ {
		purchase, decision, err = s.processReceipt(ctx, current.RaffleID, purchaseID, raw, forced)
		if err == nil {
			break
		}
		if errors.Is(err, domain.ErrDrawCongestion) && attempt < s.drawRetries {
			continue
		}
		if forced == nil && isAllocationConflict(err) {
			// The payment checked out but tickets could not be allocated.
			// Park it for a human and keep the extraction.
			forced = &Decision{Status: domain.PurchaseStatusManualReview, Reason: "verification failed: " + err.Error()}
			continue
		}
		return domain.Purchase{}, Decision{}, err
	}
	return purchase, decision, nil
}

func (s *PurchaseService) processReceipt(ctx context.Context, raffleID, purchaseID string, raw json.RawMessage, forced *Decision) (domain.Purchase, Decision, error) {
	var (
		result   domain.Purchase
		decision Decision
		changed  bool
	)
	err := withRaffleLock(ctx, s.repo, raffleID, false, func(txCtx context.Context, raffle domain.Raffle) error {
		p, err := s.repo.GetPurchaseForUpdate(txCtx, purchaseID)
		if err != nil {
			return err
		}
		p.AIAnalysisResult = cloneRaw(raw)

		if p.Status != domain.PurchaseStatusPending && p.Status != domain.PurchaseStatusManualReview {
			result = p
			decision = Decision{Status: p.Status, Reason: "purchase already " + string(p.Status)}
			return s.repo.UpdatePurchase(txCtx, p)
		}

		if forced != nil {
			decision = *forced
		} else {
			decision, err = s.decide(txCtx, p)
			if err != nil {
				return err
			}
		}

		next, didChange, err := s.applyTransition(txCtx, raffle, p, decision.Status, domain.SystemActor)
		if err != nil {
			return err
		}
		if err := s.repo.UpdatePurchase(txCtx, next); err != nil {
			return err
		}
		result, changed = next, didChange
		return nil
	})
	if err != nil {
		return domain.Purchase{}, Decision{}, err
	}

	if changed {
		s.notify(ctx, statusEvent(result, "status_changed", decisionMessage(decision), s.clock.Now()))
	}
	return result, decision, nil
}

func (s *PurchaseService) decide(ctx context.Context, p domain.Purchase) (Decision, error) {
	ex := domain.ParseReceiptExtraction(p.AIAnalysisResult)
	if !ex.Complete() {
		return Decide(p, "", ex, false), nil
	}
	digits := domain.DigitsOnly(*ex.Reference)
	duplicate := false
	if digits != "" {
		var err error
		duplicate, err = s.repo.ReferenceInUse(ctx, p.ID, digits)
		if err != nil {
			return Decision{}, err
		}
	}
	method, err := s.repo.GetPaymentMethod(ctx, p.PaymentMethodID)
	if err != nil {
		return Decision{}, err
	}
	return Decide(p, method.CurrencySymbol, ex, duplicate), nil
}

func isAllocationConflict(err error) bool {
	return errors.Is(err, domain.ErrInsufficientTickets) ||
		errors.Is(err, domain.ErrDrawCongestion) ||
		errors.Is(err, domain.ErrTicketsTaken)
}

func decisionMessage(d Decision) string {
	if d.Reason == "" {
		return "Receipt validated: " + string(d.Status)
	}
	return "Receipt validated: " + string(d.Status) + " (" + d.Reason + ")"
}
