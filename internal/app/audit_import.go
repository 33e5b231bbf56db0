package app

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/victor5516/raffles-api-core/internal/domain"
)

// ImportPurchaseInput is a purchase recorded by a legacy or audit system.
// Raffles are referenced by id or external id; payment methods by id, external
// id or, as a fallback, name.
type ImportPurchaseInput struct {
	RaffleRef         string
	PaymentMethodRef  string
	PaymentMethodName string
	TicketQuantity    int
	TicketNumbers     []int
	// Status defaults to pending.
	Status        domain.PurchaseStatus
	TotalAmount   float64
	BankReference string
	Customer      CustomerInput
	Screenshot    *Upload
	ScreenshotKey string
	// SubmittedAt defaults to now.
	SubmittedAt *time.Time
}

func (in ImportPurchaseInput) validate() error {
	if in.RaffleRef == "" || (in.PaymentMethodRef == "" && in.PaymentMethodName == "") {
		return domain.ErrInvalidID
	}
	if in.TicketQuantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	if in.TotalAmount < 0 {
		return domain.ErrInvalidAmount
	}
	if strings.TrimSpace(in.BankReference) == "" {
		return domain.ErrBankReferenceRequired
	}
	if in.Status != "" && !in.Status.Valid() {
		return domain.ErrInvalidStatus
	}
	if (in.Screenshot == nil || len(in.Screenshot.Data) == 0) && strings.TrimSpace(in.ScreenshotKey) == "" {
		return domain.ErrScreenshotRequired
	}
	return in.Customer.validate()
}

// ImportPurchase records an externally audited purchase. Closed raffles accept
// imports, but live imports still go through occupancy checks so they never
// share numbers with existing live purchases.
func (s *PurchaseService) ImportPurchase(ctx context.Context, in ImportPurchaseInput) (purchase domain.Purchase, err error) {
	ctx, span := tracer.Start(ctx, "PurchaseService.ImportPurchase",
		trace.WithAttributes(attribute.String("raffle.ref", in.RaffleRef)))
	defer func() { endSpan(span, err) }()

	in.Customer = in.Customer.normalized()
	if err := in.validate(); err != nil {
		return domain.Purchase{}, err
	}
	status := in.Status
	if status == "" {
		status = domain.PurchaseStatusPending
	}

	raffle, err := s.repo.FindRaffle(ctx, strings.TrimSpace(in.RaffleRef))
	if err != nil {
		return domain.Purchase{}, err
	}
	method, err := s.repo.FindPaymentMethod(ctx, strings.TrimSpace(in.PaymentMethodRef), strings.TrimSpace(in.PaymentMethodName))
	if err != nil {
		return domain.Purchase{}, err
	}

	now := s.clock.Now()
	screenshotKey, err := s.storeScreenshot(ctx, raffle.ID, now, in.Screenshot, in.ScreenshotKey)
	if err != nil {
		return domain.Purchase{}, err
	}

	var result domain.Purchase
	err = withRaffleLock(ctx, s.repo, raffle.ID, false, func(txCtx context.Context, raffle domain.Raffle) error {
		p := domain.Purchase{
			ID:              newID(),
			RaffleID:        raffle.ID,
			PaymentMethodID: method.ID,
			TicketQuantity:  in.TicketQuantity,
			Status:          status,
			TotalAmount:     in.TotalAmount,
			BankReference:   strings.TrimSpace(in.BankReference),
			ScreenshotKey:   screenshotKey,
			SubmittedAt:     now,
		}
		if in.SubmittedAt != nil {
			p.SubmittedAt = in.SubmittedAt.UTC()
		}

		if len(in.TicketNumbers) > 0 {
			if len(in.TicketNumbers) != in.TicketQuantity {
				return domain.ErrTicketCountMismatch
			}
			if err := validateNumbers(raffle, in.TicketNumbers); err != nil {
				return err
			}
			p.TicketNumbers = append([]int(nil), in.TicketNumbers...)
		}

		if status.Live() {
			if err := s.reclaim(txCtx, raffle, p); err != nil {
				return err
			}
		}
		if status == domain.PurchaseStatusVerified {
			p.VerifiedAt = &now
			if !p.HasNumbers() {
				numbers, err := assignRandom(txCtx, s.repo, s.drawer, raffle, p)
				if err != nil {
					return err
				}
				p.TicketNumbers = numbers
			}
		}

		customer, err := s.repo.UpsertCustomer(txCtx, domain.Customer{
			ID:         newID(),
			NationalID: in.Customer.NationalID,
			FullName:   in.Customer.FullName,
			Email:      in.Customer.Email,
			Phone:      in.Customer.Phone,
			CreatedAt:  now,
		})
		if err != nil {
			return err
		}
		p.CustomerID = customer.ID

		if err := s.repo.CreatePurchase(txCtx, p); err != nil {
			return err
		}
		result = p
		return nil
	})
	if err != nil {
		return domain.Purchase{}, err
	}

	s.notify(ctx, domain.PurchaseEvent{
		Name:       domain.EventPurchaseCreated,
		Type:       "created_audit",
		Message:    "Purchase imported from audit",
		RaffleID:   result.RaffleID,
		PurchaseID: result.ID,
		Status:     result.Status,
		OccurredAt: now,
	})
	return result, nil
}
