package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/victor5516/raffles-api-core/internal/clock"
	"github.com/victor5516/raffles-api-core/internal/domain"
)

var tracer = otel.Tracer("github.com/victor5516/raffles-api-core/internal/app")

type PurchaseRepository interface {
	RaffleLocker
	OccupancyReader
	FindRaffle(ctx context.Context, ref string) (domain.Raffle, error)
	GetPaymentMethod(ctx context.Context, id string) (domain.PaymentMethod, error)
	FindPaymentMethod(ctx context.Context, ref, name string) (domain.PaymentMethod, error)
	UpsertCustomer(ctx context.Context, customer domain.Customer) (domain.Customer, error)
	CreatePurchase(ctx context.Context, purchase domain.Purchase) error
	GetPurchase(ctx context.Context, id string) (domain.Purchase, error)
	GetPurchaseForUpdate(ctx context.Context, id string) (domain.Purchase, error)
	// UpdatePurchase persists status, ticket numbers, verified_at and the
	// last receipt extraction, keeping the per-ticket index in step.
	UpdatePurchase(ctx context.Context, purchase domain.Purchase) error
	UpdateNotes(ctx context.Context, id, notes string) error
	// ReferenceInUse reports whether a purchase other than purchaseID has a
	// bank reference whose digits contain the given digit string.
	ReferenceInUse(ctx context.Context, purchaseID, digits string) (bool, error)
}

// Notifier delivers purchase events. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, event domain.PurchaseEvent) error
}

// Upload is a payment screenshot as received from the customer.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ScreenshotStore persists screenshot bytes and returns an opaque key.
type ScreenshotStore interface {
	Put(ctx context.Context, prefix string, upload Upload) (string, error)
}

type PurchaseService struct {
	repo          PurchaseRepository
	clock         clock.Clock
	drawer        Drawer
	notifier      Notifier
	screenshots   ScreenshotStore
	log           *logger.Logger
	notifyTimeout time.Duration
	drawRetries   int
}

const (
	defaultNotifyTimeout = 5 * time.Second
	defaultDrawRetries   = 3
)

type PurchaseServiceOption func(*PurchaseService)

// WithDrawer replaces the random source used for ticket assignment.
func WithDrawer(d Drawer) PurchaseServiceOption {
	return func(s *PurchaseService) {
		if d != nil {
			s.drawer = d
		}
	}
}

func WithNotifier(n Notifier) PurchaseServiceOption {
	return func(s *PurchaseService) {
		s.notifier = n
	}
}

func WithScreenshotStore(store ScreenshotStore) PurchaseServiceOption {
	return func(s *PurchaseService) {
		s.screenshots = store
	}
}

func WithLogger(l *logger.Logger) PurchaseServiceOption {
	return func(s *PurchaseService) {
		if l != nil {
			s.log = l
		}
	}
}

// WithNotifyTimeout bounds each post-commit notification.
func WithNotifyTimeout(d time.Duration) PurchaseServiceOption {
	return func(s *PurchaseService) {
		if d > 0 {
			s.notifyTimeout = d
		}
	}
}

// WithDrawRetries sets how many times receipt validation retries a verification
// that failed on draw congestion.
func WithDrawRetries(n int) PurchaseServiceOption {
	return func(s *PurchaseService) {
		if n > 0 {
			s.drawRetries = n
		}
	}
}

func NewPurchaseService(repo PurchaseRepository, clk clock.Clock, opts ...PurchaseServiceOption) *PurchaseService {
	svc := &PurchaseService{
		repo:          repo,
		clock:         clk,
		drawer:        globalDrawer{},
		notifyTimeout: defaultNotifyTimeout,
		drawRetries:   defaultDrawRetries,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.log == nil {
		svc.log = logger.Init("purchases", false, false, io.Discard)
	}
	return svc
}

type CustomerInput struct {
	NationalID string
	FullName   string
	Email      string
	Phone      string
}

func (c CustomerInput) normalized() CustomerInput {
	return CustomerInput{
		NationalID: strings.TrimSpace(c.NationalID),
		FullName:   strings.TrimSpace(c.FullName),
		Email:      strings.ToLower(strings.TrimSpace(c.Email)),
		Phone:      strings.TrimSpace(c.Phone),
	}
}

func (c CustomerInput) validate() error {
	if c.NationalID == "" || c.FullName == "" || c.Email == "" {
		return domain.ErrCustomerDataRequired
	}
	return nil
}

type CreatePurchaseInput struct {
	RaffleID        string
	PaymentMethodID string
	TicketQuantity  int
	// TicketNumbers is required for specific raffles and ignored for random ones.
	TicketNumbers []int
	TotalAmount   float64
	BankReference string
	Customer      CustomerInput
	Screenshot    *Upload
	// ScreenshotKey is used verbatim when no upload is given.
	ScreenshotKey string
}

func (in CreatePurchaseInput) validate() error {
	if in.RaffleID == "" || in.PaymentMethodID == "" {
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
	return in.Customer.validate()
}

// CreatePurchase records a pending purchase. Specific raffles reserve the
// requested numbers now; random raffles only reserve capacity.
func (s *PurchaseService) CreatePurchase(ctx context.Context, in CreatePurchaseInput) (purchase domain.Purchase, err error) {
	ctx, span := tracer.Start(ctx, "PurchaseService.CreatePurchase",
		trace.WithAttributes(attribute.String("raffle.id", in.RaffleID), attribute.Int("ticket.quantity", in.TicketQuantity)))
	defer func() { endSpan(span, err) }()

	in.Customer = in.Customer.normalized()
	if err := in.validate(); err != nil {
		return domain.Purchase{}, err
	}

	now := s.clock.Now()
	screenshotKey, err := s.storeScreenshot(ctx, in.RaffleID, now, in.Screenshot, in.ScreenshotKey)
	if err != nil {
		return domain.Purchase{}, err
	}

	var result domain.Purchase
	err = withRaffleLock(ctx, s.repo, in.RaffleID, true, func(txCtx context.Context, raffle domain.Raffle) error {
		if _, err := s.repo.GetPaymentMethod(txCtx, in.PaymentMethodID); err != nil {
			return err
		}

		var numbers []int
		if raffle.SelectionType == domain.SelectionSpecific {
			numbers, err = reserveSpecific(txCtx, s.repo, raffle, in.TicketQuantity, in.TicketNumbers)
		} else {
			err = checkCapacity(txCtx, s.repo, raffle, in.TicketQuantity)
		}
		if err != nil {
			return err
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

		p := domain.Purchase{
			ID:              newID(),
			RaffleID:        raffle.ID,
			CustomerID:      customer.ID,
			PaymentMethodID: in.PaymentMethodID,
			TicketQuantity:  in.TicketQuantity,
			TicketNumbers:   numbers,
			Status:          domain.PurchaseStatusPending,
			TotalAmount:     in.TotalAmount,
			BankReference:   strings.TrimSpace(in.BankReference),
			ScreenshotKey:   screenshotKey,
			SubmittedAt:     now,
		}
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
		Type:       "created",
		Message:    "New purchase created",
		RaffleID:   result.RaffleID,
		PurchaseID: result.ID,
		Status:     result.Status,
		OccurredAt: now,
	})
	return result, nil
}

// UpdateNotes edits the free-text notes. Notes never affect allocation, so
// the raffle lock is not taken.
func (s *PurchaseService) UpdateNotes(ctx context.Context, purchaseID, notes string) (domain.Purchase, error) {
	if purchaseID == "" {
		return domain.Purchase{}, domain.ErrInvalidID
	}
	if err := s.repo.UpdateNotes(ctx, purchaseID, notes); err != nil {
		return domain.Purchase{}, err
	}
	return s.repo.GetPurchase(ctx, purchaseID)
}

func (s *PurchaseService) storeScreenshot(ctx context.Context, raffleID string, now time.Time, upload *Upload, key string) (string, error) {
	if upload == nil || len(upload.Data) == 0 {
		return strings.TrimSpace(key), nil
	}
	if s.screenshots == nil {
		return "", fmt.Errorf("store screenshot: no screenshot store configured")
	}
	prefix := fmt.Sprintf("purchases/%s/%04d/%02d", raffleID, now.Year(), int(now.Month()))
	stored, err := s.screenshots.Put(ctx, prefix, *upload)
	if err != nil {
		return "", fmt.Errorf("store screenshot: %w", err)
	}
	return stored, nil
}

// notify runs after commit; failures are logged and never surface.
func (s *PurchaseService) notify(ctx context.Context, event domain.PurchaseEvent) {
	if s.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()
	if err := s.notifier.Notify(nctx, event); err != nil {
		s.log.Warningf("notify event=%s purchase=%s status=%s: %v", event.Name, event.PurchaseID, event.Status, err)
	}
}

func statusEvent(p domain.Purchase, typ, msg string, at time.Time) domain.PurchaseEvent {
	return domain.PurchaseEvent{
		Name:       domain.EventPurchaseStatusChanged,
		Type:       typ,
		Message:    msg,
		RaffleID:   p.RaffleID,
		PurchaseID: p.ID,
		Status:     p.Status,
		OccurredAt: at,
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
