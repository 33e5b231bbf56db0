package app

import (
	"context"
	"math/rand/v2"

	"github.com/victor5516/raffles-api-core/internal/domain"
)

// OccupancyReader derives occupancy from persisted live purchases. Both
// methods must run inside the raffle lock's transaction.
type OccupancyReader interface {
	// OccupiedNumbers returns every number held by a pending or verified
	// purchase of the raffle, skipping excludePurchaseID when non-empty.
	OccupiedNumbers(ctx context.Context, raffleID, excludePurchaseID string) (map[int]struct{}, error)
	// OccupiedCount sums ticket_quantity over live purchases, numbered or not.
	OccupiedCount(ctx context.Context, raffleID string) (int, error)
}

// Drawer yields uniform integers in [0, n).
type Drawer interface {
	IntN(n int) int
}

type globalDrawer struct{}

func (globalDrawer) IntN(n int) int { return rand.IntN(n) }

// drawBudgetFactor bounds random assignment to factor*quantity draws.
const drawBudgetFactor = 10

// reserveSpecific validates customer-chosen numbers against the raffle and
// current occupancy.
func reserveSpecific(ctx context.Context, occ OccupancyReader, raffle domain.Raffle, quantity int, requested []int) ([]int, error) {
	if len(requested) == 0 {
		return nil, domain.ErrTicketNumbersRequired
	}
	if len(requested) != quantity {
		return nil, domain.ErrTicketCountMismatch
	}
	if err := validateNumbers(raffle, requested); err != nil {
		return nil, err
	}

	occupied, err := occ.OccupiedNumbers(ctx, raffle.ID, "")
	if err != nil {
		return nil, err
	}
	if taken := intersect(requested, occupied); len(taken) > 0 {
		return nil, &domain.TicketsTakenError{Numbers: taken}
	}
	return append([]int(nil), requested...), nil
}

func validateNumbers(raffle domain.Raffle, numbers []int) error {
	seen := make(map[int]struct{}, len(numbers))
	var outOfRange []int
	for _, n := range numbers {
		if _, dup := seen[n]; dup {
			return domain.ErrDuplicateTicketNumber
		}
		seen[n] = struct{}{}
		if n < 0 || n >= raffle.TotalTickets {
			outOfRange = append(outOfRange, n)
		}
	}
	if len(outOfRange) > 0 {
		return &domain.OutOfRangeError{Numbers: outOfRange}
	}
	return nil
}

// checkCapacity is the creation-time guard for purchases whose numbers are
// not chosen yet.
func checkCapacity(ctx context.Context, occ OccupancyReader, raffle domain.Raffle, quantity int) error {
	occupied, err := occ.OccupiedCount(ctx, raffle.ID)
	if err != nil {
		return err
	}
	available := raffle.TotalTickets - occupied
	if available < 0 {
		available = 0
	}
	if quantity > available {
		return &domain.InsufficientTicketsError{Available: available}
	}
	return nil
}

// assignRandom draws purchase.TicketQuantity unused numbers by rejection
// sampling. It never mutates the purchase.
func assignRandom(ctx context.Context, occ OccupancyReader, drawer Drawer, raffle domain.Raffle, purchase domain.Purchase) ([]int, error) {
	occupied, err := occ.OccupiedNumbers(ctx, raffle.ID, purchase.ID)
	if err != nil {
		return nil, err
	}

	quantity := purchase.TicketQuantity
	available := raffle.TotalTickets - len(occupied)
	if available < quantity {
		if available < 0 {
			available = 0
		}
		return nil, &domain.InsufficientTicketsError{Available: available}
	}

	drawn := make(map[int]struct{}, quantity)
	numbers := make([]int, 0, quantity)
	budget := drawBudgetFactor * quantity
	for attempts := 0; len(numbers) < quantity && attempts < budget; attempts++ {
		n := drawer.IntN(raffle.TotalTickets)
		if _, taken := occupied[n]; taken {
			continue
		}
		if _, dup := drawn[n]; dup {
			continue
		}
		drawn[n] = struct{}{}
		numbers = append(numbers, n)
	}
	if len(numbers) < quantity {
		return nil, domain.ErrDrawCongestion
	}
	return numbers, nil
}

func intersect(numbers []int, set map[int]struct{}) []int {
	var out []int
	for _, n := range numbers {
		if _, ok := set[n]; ok {
			out = append(out, n)
		}
	}
	return out
}
