package app

import (
	"context"
	"strings"

	"github.com/victor5516/raffles-api-core/internal/domain"
)

type PurchaseReader interface {
	GetPurchaseDetails(ctx context.Context, id string) (domain.PurchaseDetails, error)
	ListPurchases(ctx context.Context, filter domain.PurchaseFilter) ([]domain.PurchaseDetails, int, error)
	SearchTickets(ctx context.Context, raffleID, nationalID string) ([]domain.TicketClaim, error)
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// MaxListPage keeps (page-1)*limit far from integer overflow.
const MaxListPage = 1_000_000

// PurchaseQueryService serves lock-free reads for admins and customers.
type PurchaseQueryService struct {
	repo PurchaseReader
}

func NewPurchaseQueryService(repo PurchaseReader) *PurchaseQueryService {
	return &PurchaseQueryService{repo: repo}
}

func (s *PurchaseQueryService) GetPurchase(ctx context.Context, id string) (domain.PurchaseDetails, error) {
	if id == "" {
		return domain.PurchaseDetails{}, domain.ErrInvalidID
	}
	return s.repo.GetPurchaseDetails(ctx, id)
}

// PurchasePage is one page of a purchase listing.
type PurchasePage struct {
	Items []domain.PurchaseDetails
	Total int
	Page  int
	Limit int
}

func (s *PurchaseQueryService) ListPurchases(ctx context.Context, filter domain.PurchaseFilter) (PurchasePage, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return PurchasePage{}, domain.ErrInvalidStatus
	}
	if filter.Page > MaxListPage {
		return PurchasePage{}, domain.ErrInvalidPage
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultPageLimit
	case filter.Limit > maxPageLimit:
		filter.Limit = maxPageLimit
	}
	filter.NationalID = strings.TrimSpace(filter.NationalID)

	items, total, err := s.repo.ListPurchases(ctx, filter)
	if err != nil {
		return PurchasePage{}, err
	}
	return PurchasePage{Items: items, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

// SearchTickets lists the live tickets a customer holds in a raffle.
func (s *PurchaseQueryService) SearchTickets(ctx context.Context, raffleID, nationalID string) ([]domain.TicketClaim, error) {
	nationalID = strings.TrimSpace(nationalID)
	if raffleID == "" {
		return nil, domain.ErrInvalidID
	}
	if nationalID == "" {
		return nil, domain.ErrCustomerDataRequired
	}
	return s.repo.SearchTickets(ctx, raffleID, nationalID)
}
