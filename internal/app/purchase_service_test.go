package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/victor5516/raffles-api-core/internal/clock"
	"github.com/victor5516/raffles-api-core/internal/domain"
)

var testNow = time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)

func seedRaffle(repo *fakePurchaseRepo, id string, total int, sel domain.SelectionType) domain.Raffle {
	return repo.addRaffle(domain.Raffle{
		ID:            id,
		Title:         "Raffle " + id,
		TotalTickets:  total,
		SelectionType: sel,
		Status:        domain.RaffleStatusActive,
		TicketPrice:   5,
		ExternalID:    "ext-" + id,
	})
}

func seedMethod(repo *fakePurchaseRepo) domain.PaymentMethod {
	return repo.addMethod(domain.PaymentMethod{ID: "pm-usd", Name: "Zelle", CurrencySymbol: "USD", ExternalID: "11"})
}

func purchaseInput(raffleID string, quantity int, numbers []int, customer string) CreatePurchaseInput {
	return CreatePurchaseInput{
		RaffleID:        raffleID,
		PaymentMethodID: "pm-usd",
		TicketQuantity:  quantity,
		TicketNumbers:   numbers,
		TotalAmount:     float64(quantity) * 5,
		BankReference:   "REF-" + customer,
		Customer: CustomerInput{
			NationalID: "V-" + customer,
			FullName:   "Customer " + customer,
			Email:      customer + "@example.com",
		},
	}
}

func TestPurchaseService_CreatePurchase_Specific(t *testing.T) {
	t.Parallel()

	repo := newFakePurchaseRepo()
	seedRaffle(repo, "r1", 10, domain.SelectionSpecific)
	seedMethod(repo)
	notifier := &fakeNotifier{}
	svc := NewPurchaseService(repo, clock.NewFixed(testNow), WithNotifier(notifier))
	ctx := context.Background()

	a, err := svc.CreatePurchase(ctx, purchaseInput("r1", 3, []int{1, 2, 3}, "a"))
	if err != nil {
		t.Fatalf("purchase A: %v", err)
	}
	if a.Status != domain.PurchaseStatusPending {
		t.Fatalf("expected pending, got %s", a.Status)
	}
	if fmt.Sprint(a.TicketNumbers) != "[1 2 3]" {
		t.Fatalf("expected reserved numbers, got %v", a.TicketNumbers)
	}
	if !a.SubmittedAt.Equal(testNow) {
		t.Fatalf("expected submitted_at %v, got %v", testNow, a.SubmittedAt)
	}

	_, err = svc.CreatePurchase(ctx, purchaseInput("r1", 3, []int{3, 4, 5}, "b"))
	var taken *domain.TicketsTakenError
	if !errors.As(err, &taken) {
		t.Fatalf("expected TicketsTakenError, got %v", err)
	}
	if fmt.Sprint(taken.Numbers) != "[3]" {
		t.Fatalf("expected number 3 reported, got %v", taken.Numbers)
	}
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict kind, got %v", err)
	}

	if _, err := svc.CreatePurchase(ctx, purchaseInput("r1", 3, []int{4, 5, 6}, "b")); err != nil {
		t.Fatalf("purchase B retry: %v", err)
	}

	if got := len(repo.allPurchases()); got != 2 {
		t.Fatalf("expected 2 purchases, got %d", got)
	}
	events := notifier.recorded()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Name != domain.EventPurchaseCreated || events[0].PurchaseID != a.ID || events[0].RaffleID != "r1" {
		t.Fatalf("unexpected event: %+v", events[0])
	}
}

func TestPurchaseService_CreatePurchase_Rejections(t *testing.T) {
	t.Parallel()

	repo := newFakePurchaseRepo()
	seedRaffle(repo, "spec", 10, domain.SelectionSpecific)
	seedRaffle(repo, "rand", 5, domain.SelectionRandom)
	draft := seedRaffle(repo, "draft", 10, domain.SelectionRandom)
	draft.Status = domain.RaffleStatusDraft
	repo.addRaffle(draft)
	seedMethod(repo)
	svc := NewPurchaseService(repo, clock.NewFixed(testNow))
	ctx := context.Background()

	if _, err := svc.CreatePurchase(ctx, purchaseInput("rand", 4, nil, "seed")); err != nil {
		t.Fatalf("seed purchase: %v", err)
	}

	cases := []struct {
		name string
		in   func() CreatePurchaseInput
		want error
	}{
		{"missing raffle", func() CreatePurchaseInput { return purchaseInput("nope", 1, nil, "x") }, domain.ErrRaffleNotFound},
		{"raffle not active", func() CreatePurchaseInput { return purchaseInput("draft", 1, nil, "x") }, domain.ErrRaffleNotActive},
		{"zero quantity", func() CreatePurchaseInput { return purchaseInput("rand", 0, nil, "x") }, domain.ErrInvalidQuantity},
		{"missing reference", func() CreatePurchaseInput {
			in := purchaseInput("rand", 1, nil, "x")
			in.BankReference = "  "
			return in
		}, domain.ErrBankReferenceRequired},
		{"missing customer", func() CreatePurchaseInput {
			in := purchaseInput("rand", 1, nil, "x")
			in.Customer.Email = ""
			return in
		}, domain.ErrCustomerDataRequired},
		{"unknown payment method", func() CreatePurchaseInput {
			in := purchaseInput("rand", 1, nil, "x")
			in.PaymentMethodID = "pm-other"
			return in
		}, domain.ErrPaymentMethodNotFound},
		{"numbers required", func() CreatePurchaseInput { return purchaseInput("spec", 2, nil, "x") }, domain.ErrTicketNumbersRequired},
		{"count mismatch", func() CreatePurchaseInput { return purchaseInput("spec", 2, []int{1}, "x") }, domain.ErrTicketCountMismatch},
		{"duplicates", func() CreatePurchaseInput { return purchaseInput("spec", 2, []int{1, 1}, "x") }, domain.ErrDuplicateTicketNumber},
		{"out of range", func() CreatePurchaseInput { return purchaseInput("spec", 2, []int{1, 10}, "x") }, domain.ErrTicketOutOfRange},
		{"negative number", func() CreatePurchaseInput { return purchaseInput("spec", 1, []int{-1}, "x") }, domain.ErrTicketOutOfRange},
		{"random capacity", func() CreatePurchaseInput { return purchaseInput("rand", 2, nil, "x") }, domain.ErrInsufficientTickets},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreatePurchase(ctx, tc.in())
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	_, err := svc.CreatePurchase(ctx, purchaseInput("rand", 2, nil, "y"))
	var insufficient *domain.InsufficientTicketsError
	if !errors.As(err, &insufficient) || insufficient.Available != 1 {
		t.Fatalf("expected 1 ticket available, got %v", err)
	}
	if got := len(repo.allPurchases()); got != 1 {
		t.Fatalf("expected rejected purchases to leave no rows, got %d", got)
	}
}

func TestPurchaseService_CreatePurchase_RandomIgnoresNumbers(t *testing.T) {
	t.Parallel()

	repo := newFakePurchaseRepo()
	seedRaffle(repo, "r1", 10, domain.SelectionRandom)
	seedMethod(repo)
	svc := NewPurchaseService(repo, clock.NewFixed(testNow))

	p, err := svc.CreatePurchase(context.Background(), purchaseInput("r1", 2, []int{7, 8}, "a"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.TicketNumbers != nil {
		t.Fatalf("expected no numbers before verification, got %v", p.TicketNumbers)
	}
}

func TestPurchaseService_CreatePurchase_ConcurrentOverlaps(t *testing.T) {
	t.Parallel()

	const workers = 12
	repo := newFakePurchaseRepo()
	seedRaffle(repo, "r1", 30, domain.SelectionSpecific)
	seedMethod(repo)
	svc := NewPurchaseService(repo, clock.NewFixed(testNow))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Neighbouring workers overlap on one number.
			numbers := []int{i * 2, i*2 + 1, i*2 + 2}
			_, err := svc.CreatePurchase(context.Background(), purchaseInput("r1", 3, numbers, fmt.Sprintf("c%d", i)))
			if err != nil && !errors.Is(err, domain.ErrTicketsTaken) {
				t.Errorf("worker %d: unexpected error %v", i, err)
				return
			}
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[int]string)
	live := 0
	for _, p := range repo.allPurchases() {
		if !p.Status.Live() {
			continue
		}
		live++
		for _, n := range p.TicketNumbers {
			if other, dup := seen[n]; dup {
				t.Fatalf("number %d allocated to %s and %s", n, other, p.ID)
			}
			seen[n] = p.ID
		}
	}
	if live != successes {
		t.Fatalf("expected %d live purchases, got %d", successes, live)
	}
	// Any maximal set of pairwise non-overlapping requests has at least a third of them.
	if successes < workers/3 {
		t.Fatalf("expected at least %d non-overlapping successes, got %d", workers/3, successes)
	}
}

func TestPurchaseService_CreatePurchase_SameNumberRace(t *testing.T) {
	t.Parallel()

	const workers = 8
	repo := newFakePurchaseRepo()
	seedRaffle(repo, "r1", 10, domain.SelectionSpecific)
	seedMethod(repo)
	svc := NewPurchaseService(repo, clock.NewFixed(testNow))

	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.CreatePurchase(context.Background(), purchaseInput("r1", 1, []int{7}, fmt.Sprintf("c%d", i)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrTicketsTaken):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one winner, got %d", ok)
	}
}

func TestPurchaseService_CreatePurchase_UpsertsCustomer(t *testing.T) {
	t.Parallel()

	repo := newFakePurchaseRepo()
	seedRaffle(repo, "r1", 10, domain.SelectionRandom)
	seedMethod(repo)
	svc := NewPurchaseService(repo, clock.NewFixed(testNow))
	ctx := context.Background()

	first, err := svc.CreatePurchase(ctx, purchaseInput("r1", 1, nil, "a"))
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	in := purchaseInput("r1", 1, nil, "a")
	in.Customer.Phone = "+58 414 0000000"
	in.Customer.Email = " A@Example.com "
	second, err := svc.CreatePurchase(ctx, in)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.CustomerID != second.CustomerID {
		t.Fatalf("expected same customer, got %s and %s", first.CustomerID, second.CustomerID)
	}

	clash := purchaseInput("r1", 1, nil, "b")
	clash.Customer.Email = "a@example.com"
	if _, err := svc.CreatePurchase(ctx, clash); !errors.Is(err, domain.ErrCustomerEmailTaken) {
		t.Fatalf("expected ErrCustomerEmailTaken, got %v", err)
	}
}

func TestPurchaseService_CreatePurchase_Screenshot(t *testing.T) {
	t.Parallel()

	repo := newFakePurchaseRepo()
	seedRaffle(repo, "r1", 10, domain.SelectionRandom)
	seedMethod(repo)
	store := &fakeScreenshotStore{}
	svc := NewPurchaseService(repo, clock.NewFixed(testNow), WithScreenshotStore(store))

	in := purchaseInput("r1", 1, nil, "a")
	in.Screenshot = &Upload{Filename: "receipt.png", ContentType: "image/png", Data: []byte{0x89, 0x50}}
	p, err := svc.CreatePurchase(context.Background(), in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if store.prefix != "purchases/r1/2025/03" {
		t.Fatalf("unexpected prefix %q", store.prefix)
	}
	if p.ScreenshotKey != "purchases/r1/2025/03/receipt.png" {
		t.Fatalf("unexpected key %q", p.ScreenshotKey)
	}

	store.err = errFake
	if _, err := svc.CreatePurchase(context.Background(), in); !errors.Is(err, errFake) {
		t.Fatalf("expected upload error, got %v", err)
	}
}

func TestPurchaseService_NotificationFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	repo := newFakePurchaseRepo()
	seedRaffle(repo, "r1", 10, domain.SelectionRandom)
	seedMethod(repo)
	notifier := &fakeNotifier{err: errFake}
	svc := NewPurchaseService(repo, clock.NewFixed(testNow), WithNotifier(notifier))

	p, err := svc.CreatePurchase(context.Background(), purchaseInput("r1", 1, nil, "a"))
	if err != nil {
		t.Fatalf("expected purchase despite notifier failure, got %v", err)
	}
	if repo.purchase(p.ID).ID == "" {
		t.Fatalf("expected purchase to be committed")
	}
	if len(notifier.recorded()) != 1 {
		t.Fatalf("expected one delivery attempt")
	}
}

func TestPurchaseService_UpdateNotes(t *testing.T) {
	t.Parallel()

	repo := newFakePurchaseRepo()
	seedRaffle(repo, "r1", 10, domain.SelectionRandom)
	seedMethod(repo)
	svc := NewPurchaseService(repo, clock.NewFixed(testNow))
	ctx := context.Background()

	p, err := svc.CreatePurchase(ctx, purchaseInput("r1", 1, nil, "a"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := svc.UpdateNotes(ctx, p.ID, "called customer")
	if err != nil {
		t.Fatalf("update notes: %v", err)
	}
	if got.Notes != "called customer" || got.Status != domain.PurchaseStatusPending {
		t.Fatalf("unexpected purchase after notes: %+v", got)
	}
	if _, err := svc.UpdateNotes(ctx, "missing", "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
