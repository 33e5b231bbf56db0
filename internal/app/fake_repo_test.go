package app

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/victor5516/raffles-api-core/internal/domain"
)

// fakePurchaseRepo is an in-memory PurchaseRepository. GetRaffleForUpdate
// takes a per-raffle mutex held until the surrounding WithTx returns, and
// writes made inside a transaction become visible only on commit.
type fakePurchaseRepo struct {
	mu        sync.Mutex
	raffles   map[string]domain.Raffle
	methods   map[string]domain.PaymentMethod
	customers map[string]domain.Customer
	purchases map[string]domain.Purchase

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex

	getRaffleErr error
	commits      int
}

type fakeTx struct {
	purchases map[string]domain.Purchase
	customers map[string]domain.Customer
	held      []*sync.Mutex
}

type fakeTxKey struct{}

func newFakePurchaseRepo() *fakePurchaseRepo {
	return &fakePurchaseRepo{
		raffles:   make(map[string]domain.Raffle),
		methods:   make(map[string]domain.PaymentMethod),
		customers: make(map[string]domain.Customer),
		purchases: make(map[string]domain.Purchase),
		locks:     make(map[string]*sync.Mutex),
	}
}

func (f *fakePurchaseRepo) addRaffle(r domain.Raffle) domain.Raffle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raffles[r.ID] = r
	return r
}

func (f *fakePurchaseRepo) addMethod(m domain.PaymentMethod) domain.PaymentMethod {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.methods[m.ID] = m
	return m
}

func (f *fakePurchaseRepo) addPurchase(p domain.Purchase) domain.Purchase {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purchases[p.ID] = p
	return p
}

func (f *fakePurchaseRepo) purchase(id string) domain.Purchase {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.purchases[id]
}

func (f *fakePurchaseRepo) allPurchases() []domain.Purchase {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Purchase, 0, len(f.purchases))
	for _, p := range f.purchases {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out
}

func (f *fakePurchaseRepo) raffleLock(id string) *sync.Mutex {
	f.lockMu.Lock()
	defer f.lockMu.Unlock()
	l, ok := f.locks[id]
	if !ok {
		l = &sync.Mutex{}
		f.locks[id] = l
	}
	return l
}

func txOf(ctx context.Context) *fakeTx {
	tx, _ := ctx.Value(fakeTxKey{}).(*fakeTx)
	return tx
}

func (f *fakePurchaseRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txOf(ctx) != nil {
		return fn(ctx)
	}
	tx := &fakeTx{
		purchases: make(map[string]domain.Purchase),
		customers: make(map[string]domain.Customer),
	}
	defer func() {
		for i := len(tx.held) - 1; i >= 0; i-- {
			tx.held[i].Unlock()
		}
	}()

	if err := fn(context.WithValue(ctx, fakeTxKey{}, tx)); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for id, c := range tx.customers {
		f.customers[id] = c
	}
	for id, p := range tx.purchases {
		f.purchases[id] = p
	}
	f.commits++
	return nil
}

func (f *fakePurchaseRepo) GetRaffleForUpdate(ctx context.Context, raffleID string) (domain.Raffle, error) {
	if f.getRaffleErr != nil {
		return domain.Raffle{}, f.getRaffleErr
	}
	f.mu.Lock()
	r, ok := f.raffles[raffleID]
	f.mu.Unlock()
	if !ok {
		return domain.Raffle{}, domain.ErrRaffleNotFound
	}
	if tx := txOf(ctx); tx != nil {
		l := f.raffleLock(raffleID)
		l.Lock()
		tx.held = append(tx.held, l)
	}
	return r, nil
}

func (f *fakePurchaseRepo) FindRaffle(_ context.Context, ref string) (domain.Raffle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.raffles {
		if r.ID == ref || (r.ExternalID != "" && r.ExternalID == ref) {
			return r, nil
		}
	}
	return domain.Raffle{}, domain.ErrRaffleNotFound
}

func (f *fakePurchaseRepo) GetPaymentMethod(_ context.Context, id string) (domain.PaymentMethod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.methods[id]
	if !ok {
		return domain.PaymentMethod{}, domain.ErrPaymentMethodNotFound
	}
	return m, nil
}

func (f *fakePurchaseRepo) FindPaymentMethod(_ context.Context, ref, name string) (domain.PaymentMethod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.methods {
		if ref != "" && (m.ID == ref || m.ExternalID == ref) {
			return m, nil
		}
	}
	for _, m := range f.methods {
		if name != "" && strings.EqualFold(m.Name, name) {
			return m, nil
		}
	}
	return domain.PaymentMethod{}, domain.ErrPaymentMethodNotFound
}

// view merges committed rows with the caller's uncommitted writes.
func (f *fakePurchaseRepo) view(ctx context.Context) map[string]domain.Purchase {
	f.mu.Lock()
	out := make(map[string]domain.Purchase, len(f.purchases))
	for id, p := range f.purchases {
		out[id] = p
	}
	f.mu.Unlock()
	if tx := txOf(ctx); tx != nil {
		for id, p := range tx.purchases {
			out[id] = p
		}
	}
	return out
}

func (f *fakePurchaseRepo) UpsertCustomer(ctx context.Context, c domain.Customer) (domain.Customer, error) {
	f.mu.Lock()
	all := make(map[string]domain.Customer, len(f.customers))
	for id, existing := range f.customers {
		all[id] = existing
	}
	f.mu.Unlock()
	tx := txOf(ctx)
	if tx != nil {
		for id, existing := range tx.customers {
			all[id] = existing
		}
	}

	for _, existing := range all {
		if existing.NationalID == c.NationalID {
			continue
		}
		if existing.Email == c.Email {
			return domain.Customer{}, domain.ErrCustomerEmailTaken
		}
	}
	for _, existing := range all {
		if existing.NationalID == c.NationalID {
			existing.FullName, existing.Email, existing.Phone = c.FullName, c.Email, c.Phone
			c = existing
			break
		}
	}
	if tx != nil {
		tx.customers[c.ID] = c
	} else {
		f.mu.Lock()
		f.customers[c.ID] = c
		f.mu.Unlock()
	}
	return c, nil
}

func (f *fakePurchaseRepo) CreatePurchase(ctx context.Context, p domain.Purchase) error {
	return f.write(ctx, p)
}

func (f *fakePurchaseRepo) write(ctx context.Context, p domain.Purchase) error {
	p.TicketNumbers = append([]int(nil), p.TicketNumbers...)
	if len(p.TicketNumbers) == 0 {
		p.TicketNumbers = nil
	}
	if tx := txOf(ctx); tx != nil {
		tx.purchases[p.ID] = p
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purchases[p.ID] = p
	return nil
}

func (f *fakePurchaseRepo) GetPurchase(ctx context.Context, id string) (domain.Purchase, error) {
	p, ok := f.view(ctx)[id]
	if !ok {
		return domain.Purchase{}, domain.ErrPurchaseNotFound
	}
	return p, nil
}

func (f *fakePurchaseRepo) GetPurchaseForUpdate(ctx context.Context, id string) (domain.Purchase, error) {
	return f.GetPurchase(ctx, id)
}

func (f *fakePurchaseRepo) UpdatePurchase(ctx context.Context, p domain.Purchase) error {
	if _, err := f.GetPurchase(ctx, p.ID); err != nil {
		return err
	}
	return f.write(ctx, p)
}

func (f *fakePurchaseRepo) UpdateNotes(ctx context.Context, id, notes string) error {
	p, err := f.GetPurchase(ctx, id)
	if err != nil {
		return err
	}
	p.Notes = notes
	return f.write(ctx, p)
}

func (f *fakePurchaseRepo) ReferenceInUse(ctx context.Context, purchaseID, digits string) (bool, error) {
	for id, p := range f.view(ctx) {
		if id == purchaseID {
			continue
		}
		if strings.Contains(domain.DigitsOnly(p.BankReference), digits) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakePurchaseRepo) OccupiedNumbers(ctx context.Context, raffleID, excludePurchaseID string) (map[int]struct{}, error) {
	out := make(map[int]struct{})
	for id, p := range f.view(ctx) {
		if p.RaffleID != raffleID || !p.Status.Live() || id == excludePurchaseID {
			continue
		}
		for _, n := range p.TicketNumbers {
			out[n] = struct{}{}
		}
	}
	return out, nil
}

func (f *fakePurchaseRepo) OccupiedCount(ctx context.Context, raffleID string) (int, error) {
	total := 0
	for _, p := range f.view(ctx) {
		if p.RaffleID == raffleID && p.Status.Live() {
			total += p.TicketQuantity
		}
	}
	return total, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []domain.PurchaseEvent
	err    error
}

func (n *fakeNotifier) Notify(_ context.Context, event domain.PurchaseEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *fakeNotifier) recorded() []domain.PurchaseEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.PurchaseEvent(nil), n.events...)
}

// seqDrawer returns 0, 1, 2, ... modulo n.
type seqDrawer struct {
	next int
}

func (d *seqDrawer) IntN(n int) int {
	v := d.next % n
	d.next++
	return v
}

// fixedDrawer always returns the same value.
type fixedDrawer int

func (d fixedDrawer) IntN(int) int { return int(d) }

type fakeScreenshotStore struct {
	prefix string
	upload Upload
	err    error
}

func (s *fakeScreenshotStore) Put(_ context.Context, prefix string, upload Upload) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.prefix = prefix
	s.upload = upload
	return prefix + "/" + upload.Filename, nil
}

var errFake = errors.New("fake failure")
