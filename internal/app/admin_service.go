package app

import (
	"context"
	"strings"
	"time"

	"github.com/victor5516/raffles-api-core/internal/clock"
	"github.com/victor5516/raffles-api-core/internal/domain"
)

type AdminRepository interface {
	CreateRaffle(ctx context.Context, raffle domain.Raffle) error
	ListRaffles(ctx context.Context) ([]domain.Raffle, error)
	GetRaffle(ctx context.Context, id string) (domain.Raffle, error)
	SetRaffleStatus(ctx context.Context, id string, status domain.RaffleStatus) error
	CreatePaymentMethod(ctx context.Context, method domain.PaymentMethod) error
	ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error)
	OccupiedCount(ctx context.Context, raffleID string) (int, error)
}

type AdminService struct {
	repo  AdminRepository
	clock clock.Clock
}

func NewAdminService(repo AdminRepository, clk clock.Clock) *AdminService {
	return &AdminService{
		repo:  repo,
		clock: clk,
	}
}

type CreateRaffleInput struct {
	Title         string
	TotalTickets  int
	SelectionType domain.SelectionType
	// Status defaults to draft.
	Status      domain.RaffleStatus
	TicketPrice float64
	// Deadline defaults to thirty days from now.
	Deadline   *time.Time
	ExternalID string
}

const defaultRaffleDuration = 30 * 24 * time.Hour

func (s *AdminService) CreateRaffle(ctx context.Context, in CreateRaffleInput) (domain.Raffle, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Raffle{}, domain.ErrTitleRequired
	}
	if in.TotalTickets <= 0 {
		return domain.Raffle{}, domain.ErrInvalidCapacity
	}
	if !in.SelectionType.Valid() {
		return domain.Raffle{}, domain.ErrInvalidSelectionType
	}
	status := in.Status
	if status == "" {
		status = domain.RaffleStatusDraft
	}
	if !status.Valid() {
		return domain.Raffle{}, domain.ErrInvalidRaffleStatus
	}
	if in.TicketPrice < 0 {
		return domain.Raffle{}, domain.ErrInvalidAmount
	}

	now := s.clock.Now()
	deadline := now.Add(defaultRaffleDuration)
	if in.Deadline != nil {
		deadline = in.Deadline.UTC()
	}

	raffle := domain.Raffle{
		ID:            newID(),
		Title:         title,
		TotalTickets:  in.TotalTickets,
		SelectionType: in.SelectionType,
		Status:        status,
		TicketPrice:   in.TicketPrice,
		Deadline:      deadline,
		ExternalID:    strings.TrimSpace(in.ExternalID),
		CreatedAt:     now,
	}

	if err := s.repo.CreateRaffle(ctx, raffle); err != nil {
		return domain.Raffle{}, err
	}
	return raffle, nil
}

func (s *AdminService) ListRaffles(ctx context.Context) ([]domain.Raffle, error) {
	return s.repo.ListRaffles(ctx)
}

func (s *AdminService) SetRaffleStatus(ctx context.Context, id string, status domain.RaffleStatus) (domain.Raffle, error) {
	if id == "" {
		return domain.Raffle{}, domain.ErrInvalidID
	}
	if !status.Valid() {
		return domain.Raffle{}, domain.ErrInvalidRaffleStatus
	}
	if err := s.repo.SetRaffleStatus(ctx, id, status); err != nil {
		return domain.Raffle{}, err
	}
	return s.repo.GetRaffle(ctx, id)
}

// RaffleAvailability is a lock-free snapshot; it may be stale by the time the
// caller acts on it.
func (s *AdminService) RaffleAvailability(ctx context.Context, raffleID string) (domain.Availability, error) {
	if raffleID == "" {
		return domain.Availability{}, domain.ErrInvalidID
	}
	raffle, err := s.repo.GetRaffle(ctx, raffleID)
	if err != nil {
		return domain.Availability{}, err
	}
	occupied, err := s.repo.OccupiedCount(ctx, raffleID)
	if err != nil {
		return domain.Availability{}, err
	}
	available := raffle.TotalTickets - occupied
	if available < 0 {
		available = 0
	}
	return domain.Availability{
		RaffleID:     raffle.ID,
		TotalTickets: raffle.TotalTickets,
		Occupied:     occupied,
		Available:    available,
	}, nil
}

type CreatePaymentMethodInput struct {
	Name           string
	CurrencySymbol string
	ExternalID     string
}

func (s *AdminService) CreatePaymentMethod(ctx context.Context, in CreatePaymentMethodInput) (domain.PaymentMethod, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.PaymentMethod{}, domain.ErrNameRequired
	}
	currency := strings.TrimSpace(in.CurrencySymbol)
	if currency == "" {
		return domain.PaymentMethod{}, domain.ErrCurrencyRequired
	}

	method := domain.PaymentMethod{
		ID:             newID(),
		Name:           name,
		CurrencySymbol: currency,
		ExternalID:     strings.TrimSpace(in.ExternalID),
		CreatedAt:      s.clock.Now(),
	}
	if err := s.repo.CreatePaymentMethod(ctx, method); err != nil {
		return domain.PaymentMethod{}, err
	}
	return method, nil
}

func (s *AdminService) ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	return s.repo.ListPaymentMethods(ctx)
}
