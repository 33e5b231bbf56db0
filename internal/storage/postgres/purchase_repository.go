package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victor5516/raffles-api-core/internal/domain"
)

type PurchaseRepository struct {
	db
	lockTimeout time.Duration
}

type PurchaseRepositoryOption func(*PurchaseRepository)

// WithLockTimeout bounds how long a transaction waits for a raffle lock.
func WithLockTimeout(d time.Duration) PurchaseRepositoryOption {
	return func(r *PurchaseRepository) {
		r.lockTimeout = d
	}
}

func NewPurchaseRepository(pool *pgxpool.Pool, opts ...PurchaseRepositoryOption) *PurchaseRepository {
	r := &PurchaseRepository{db: db{pool: pool}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *PurchaseRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, r.lockTimeout, fn)
}

func (r *PurchaseRepository) GetRaffleForUpdate(ctx context.Context, raffleID string) (domain.Raffle, error) {
	raffle, err := scanRaffle(r.queryRow(ctx, `SELECT `+raffleColumns+` FROM raffles WHERE id = $1 FOR UPDATE`, raffleID))
	if err != nil {
		if isLockTimeout(err) {
			return domain.Raffle{}, domain.ErrLockTimeout
		}
		return domain.Raffle{}, raffleError(err, "lock raffle")
	}
	return raffle, nil
}

// FindRaffle resolves a raffle by id or external id.
func (r *PurchaseRepository) FindRaffle(ctx context.Context, ref string) (domain.Raffle, error) {
	const query = `SELECT ` + raffleColumns + ` FROM raffles WHERE external_id = $1 OR id::text = $1 ORDER BY (id::text = $1) DESC LIMIT 1`
	raffle, err := scanRaffle(r.queryRow(ctx, query, ref))
	if err != nil {
		return domain.Raffle{}, raffleError(err, "find raffle")
	}
	return raffle, nil
}

func (r *PurchaseRepository) OccupiedNumbers(ctx context.Context, raffleID, excludePurchaseID string) (map[int]struct{}, error) {
	const query = `
SELECT DISTINCT unnest(ticket_numbers)
FROM purchases
WHERE raffle_id = $1
  AND status = ANY($2)
  AND ticket_numbers IS NOT NULL
  AND id::text <> $3`
	rows, err := r.query(ctx, query, raffleID, liveStatuses(), excludePurchaseID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("occupied numbers: %w", err)
	}
	defer rows.Close()

	occupied := make(map[int]struct{})
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan occupied number: %w", err)
		}
		occupied[n] = struct{}{}
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate occupied numbers: %w", rows.Err())
	}
	return occupied, nil
}

func (r *PurchaseRepository) OccupiedCount(ctx context.Context, raffleID string) (int, error) {
	return occupiedCount(ctx, r.db, raffleID)
}

func occupiedCount(ctx context.Context, d db, raffleID string) (int, error) {
	const query = `
SELECT COALESCE(SUM(ticket_quantity), 0)
FROM purchases
WHERE raffle_id = $1 AND status = ANY($2)`
	var total int
	if err := d.queryRow(ctx, query, raffleID, liveStatuses()).Scan(&total); err != nil {
		if isInvalidUUID(err) {
			return 0, domain.ErrInvalidID
		}
		return 0, fmt.Errorf("occupied count: %w", err)
	}
	return total, nil
}

func (r *PurchaseRepository) GetPaymentMethod(ctx context.Context, id string) (domain.PaymentMethod, error) {
	method, err := scanPaymentMethod(r.queryRow(ctx, `SELECT `+paymentMethodColumns+` FROM payment_methods WHERE id = $1`, id))
	if err != nil {
		return domain.PaymentMethod{}, paymentMethodError(err, "get payment method")
	}
	return method, nil
}

// FindPaymentMethod resolves by id or external id, then by case-insensitive name.
func (r *PurchaseRepository) FindPaymentMethod(ctx context.Context, ref, name string) (domain.PaymentMethod, error) {
	const query = `
SELECT ` + paymentMethodColumns + `
FROM payment_methods
WHERE ($1 <> '' AND (id::text = $1 OR external_id = $1))
   OR ($2 <> '' AND lower(name) = lower($2))
ORDER BY ($1 <> '' AND (id::text = $1 OR external_id = $1)) DESC
LIMIT 1`
	method, err := scanPaymentMethod(r.queryRow(ctx, query, ref, name))
	if err != nil {
		return domain.PaymentMethod{}, paymentMethodError(err, "find payment method")
	}
	return method, nil
}

// UpsertCustomer inserts the customer or refreshes the contact fields of the
// one holding the same national id.
func (r *PurchaseRepository) UpsertCustomer(ctx context.Context, c domain.Customer) (domain.Customer, error) {
	const stmt = `
INSERT INTO customers (id, national_id, full_name, email, phone, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (national_id) DO UPDATE
SET full_name = EXCLUDED.full_name,
    email = EXCLUDED.email,
    phone = COALESCE(EXCLUDED.phone, customers.phone)
RETURNING id, national_id, full_name, email, phone, created_at`

	var (
		out   domain.Customer
		phone *string
	)
	err := r.queryRow(ctx, stmt, c.ID, c.NationalID, c.FullName, c.Email, nullString(c.Phone), c.CreatedAt).
		Scan(&out.ID, &out.NationalID, &out.FullName, &out.Email, &phone, &out.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Customer{}, domain.ErrCustomerEmailTaken
		}
		return domain.Customer{}, fmt.Errorf("upsert customer: %w", err)
	}
	out.Phone = deref(phone)
	return out, nil
}

func (r *PurchaseRepository) CreatePurchase(ctx context.Context, p domain.Purchase) error {
	const stmt = `
INSERT INTO purchases (
	id, raffle_id, customer_id, payment_method_id, ticket_quantity, ticket_numbers, status,
	total_amount, bank_reference, payment_screenshot_key, notes, ai_analysis_result, submitted_at, verified_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.exec(ctx, stmt,
		p.ID,
		p.RaffleID,
		p.CustomerID,
		p.PaymentMethodID,
		p.TicketQuantity,
		nullNumbers(p.TicketNumbers),
		p.Status,
		p.TotalAmount,
		p.BankReference,
		nullString(p.ScreenshotKey),
		nullString(p.Notes),
		nullJSON(p.AIAnalysisResult),
		p.SubmittedAt,
		p.VerifiedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			return foreignKeyError(err)
		}
		return fmt.Errorf("create purchase: %w", err)
	}
	return r.writeClaims(ctx, p)
}

func (r *PurchaseRepository) GetPurchase(ctx context.Context, id string) (domain.Purchase, error) {
	return r.getPurchase(ctx, id, "")
}

func (r *PurchaseRepository) GetPurchaseForUpdate(ctx context.Context, id string) (domain.Purchase, error) {
	return r.getPurchase(ctx, id, " FOR UPDATE")
}

func (r *PurchaseRepository) getPurchase(ctx context.Context, id, suffix string) (domain.Purchase, error) {
	p, err := scanPurchase(r.queryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases p WHERE p.id = $1`+suffix, id))
	if err != nil {
		if isLockTimeout(err) {
			return domain.Purchase{}, domain.ErrLockTimeout
		}
		if isInvalidUUID(err) || errors.Is(err, pgx.ErrNoRows) {
			return domain.Purchase{}, domain.ErrPurchaseNotFound
		}
		return domain.Purchase{}, fmt.Errorf("get purchase: %w", err)
	}
	return p, nil
}

func (r *PurchaseRepository) UpdatePurchase(ctx context.Context, p domain.Purchase) error {
	const stmt = `
UPDATE purchases
SET status = $2, ticket_numbers = $3, verified_at = $4, ai_analysis_result = $5
WHERE id = $1`
	tag, err := r.exec(ctx, stmt, p.ID, p.Status, nullNumbers(p.TicketNumbers), p.VerifiedAt, nullJSON(p.AIAnalysisResult))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrPurchaseNotFound
		}
		return fmt.Errorf("update purchase: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPurchaseNotFound
	}

	if _, err := r.exec(ctx, `DELETE FROM ticket_claims WHERE purchase_id = $1`, p.ID); err != nil {
		return fmt.Errorf("clear ticket claims: %w", err)
	}
	return r.writeClaims(ctx, p)
}

// writeClaims indexes the numbers of a live purchase. The table's primary key
// rejects a number held by two live purchases.
func (r *PurchaseRepository) writeClaims(ctx context.Context, p domain.Purchase) error {
	if !p.Status.Live() || !p.HasNumbers() {
		return nil
	}
	const stmt = `
INSERT INTO ticket_claims (raffle_id, ticket_number, purchase_id)
SELECT $1, n, $2 FROM unnest($3::int[]) AS n`
	if _, err := r.exec(ctx, stmt, p.RaffleID, p.ID, p.TicketNumbers); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrTicketsTaken
		}
		return fmt.Errorf("write ticket claims: %w", err)
	}
	return nil
}

func (r *PurchaseRepository) UpdateNotes(ctx context.Context, id, notes string) error {
	tag, err := r.exec(ctx, `UPDATE purchases SET notes = $2 WHERE id = $1`, id, nullString(notes))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrPurchaseNotFound
		}
		return fmt.Errorf("update notes: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPurchaseNotFound
	}
	return nil
}

func (r *PurchaseRepository) ReferenceInUse(ctx context.Context, purchaseID, digits string) (bool, error) {
	const query = `
SELECT EXISTS (
	SELECT 1 FROM purchases
	WHERE id::text <> $1
	  AND strpos(regexp_replace(bank_reference, '[^0-9]', '', 'g'), $2) > 0
)`
	var found bool
	if err := r.queryRow(ctx, query, purchaseID, digits).Scan(&found); err != nil {
		return false, fmt.Errorf("check reference: %w", err)
	}
	return found, nil
}

const detailsColumns = purchaseColumns + `,
	c.id, c.national_id, c.full_name, c.email, c.phone, c.created_at,
	r.title,
	m.id, m.name, m.currency_symbol, m.external_id, m.created_at`

const detailsFrom = `
FROM purchases p
JOIN customers c ON c.id = p.customer_id
JOIN raffles r ON r.id = p.raffle_id
JOIN payment_methods m ON m.id = p.payment_method_id`

func (r *PurchaseRepository) GetPurchaseDetails(ctx context.Context, id string) (domain.PurchaseDetails, error) {
	d, err := scanDetails(r.queryRow(ctx, `SELECT `+detailsColumns+detailsFrom+` WHERE p.id = $1`, id))
	if err != nil {
		if isInvalidUUID(err) || errors.Is(err, pgx.ErrNoRows) {
			return domain.PurchaseDetails{}, domain.ErrPurchaseNotFound
		}
		return domain.PurchaseDetails{}, fmt.Errorf("get purchase details: %w", err)
	}
	return d, nil
}

func (r *PurchaseRepository) ListPurchases(ctx context.Context, f domain.PurchaseFilter) ([]domain.PurchaseDetails, int, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.RaffleID != "" {
		where = append(where, "p.raffle_id = "+arg(f.RaffleID))
	}
	if f.Status != "" {
		where = append(where, "p.status = "+arg(f.Status))
	}
	if f.NationalID != "" {
		where = append(where, "c.national_id = "+arg(f.NationalID))
	}
	if f.TicketNumber != nil {
		where = append(where, "p.ticket_numbers @> ARRAY["+arg(*f.TicketNumber)+"::int]")
	}

	query := `SELECT ` + detailsColumns + `, COUNT(*) OVER ()` + detailsFrom
	if len(where) > 0 {
		query += "\nWHERE " + strings.Join(where, " AND ")
	}
	query += "\nORDER BY p.submitted_at DESC, p.id"
	query += "\nLIMIT " + arg(f.Limit) + " OFFSET " + arg((f.Page-1)*f.Limit)

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, 0, domain.ErrInvalidID
		}
		return nil, 0, fmt.Errorf("list purchases: %w", err)
	}
	defer rows.Close()

	var (
		items []domain.PurchaseDetails
		total int
	)
	for rows.Next() {
		d, err := scanDetails(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan purchase: %w", err)
		}
		items = append(items, d)
	}
	if rows.Err() != nil {
		return nil, 0, fmt.Errorf("iterate purchases: %w", rows.Err())
	}
	return items, total, nil
}

func (r *PurchaseRepository) SearchTickets(ctx context.Context, raffleID, nationalID string) ([]domain.TicketClaim, error) {
	const query = `
SELECT t.raffle_id, t.ticket_number, p.id, p.status, c.full_name, c.national_id, p.submitted_at
FROM ticket_claims t
JOIN purchases p ON p.id = t.purchase_id
JOIN customers c ON c.id = p.customer_id
WHERE t.raffle_id = $1 AND c.national_id = $2
ORDER BY t.ticket_number`
	rows, err := r.query(ctx, query, raffleID, nationalID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("search tickets: %w", err)
	}
	defer rows.Close()

	var claims []domain.TicketClaim
	for rows.Next() {
		var c domain.TicketClaim
		if err := rows.Scan(&c.RaffleID, &c.TicketNumber, &c.PurchaseID, &c.PurchaseStatus, &c.CustomerName, &c.NationalID, &c.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan ticket claim: %w", err)
		}
		claims = append(claims, c)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate ticket claims: %w", rows.Err())
	}
	return claims, nil
}

const purchaseColumns = `p.id, p.raffle_id, p.customer_id, p.payment_method_id, p.ticket_quantity, p.ticket_numbers,
	p.status, p.total_amount, p.bank_reference, p.payment_screenshot_key, p.notes, p.ai_analysis_result,
	p.submitted_at, p.verified_at`

type purchaseScan struct {
	p          domain.Purchase
	screenshot *string
	notes      *string
	ai         []byte
}

func (s *purchaseScan) dest() []any {
	return []any{
		&s.p.ID, &s.p.RaffleID, &s.p.CustomerID, &s.p.PaymentMethodID, &s.p.TicketQuantity, &s.p.TicketNumbers,
		&s.p.Status, &s.p.TotalAmount, &s.p.BankReference, &s.screenshot, &s.notes, &s.ai,
		&s.p.SubmittedAt, &s.p.VerifiedAt,
	}
}

func (s *purchaseScan) purchase() domain.Purchase {
	p := s.p
	p.ScreenshotKey = deref(s.screenshot)
	p.Notes = deref(s.notes)
	if len(s.ai) > 0 {
		p.AIAnalysisResult = json.RawMessage(s.ai)
	}
	if len(p.TicketNumbers) == 0 {
		p.TicketNumbers = nil
	}
	return p
}

func scanPurchase(row pgx.Row) (domain.Purchase, error) {
	var s purchaseScan
	if err := row.Scan(s.dest()...); err != nil {
		return domain.Purchase{}, err
	}
	return s.purchase(), nil
}

func scanDetails(row pgx.Row, extra ...any) (domain.PurchaseDetails, error) {
	var (
		s          purchaseScan
		d          domain.PurchaseDetails
		phone      *string
		externalID *string
	)
	dest := append(s.dest(),
		&d.Customer.ID, &d.Customer.NationalID, &d.Customer.FullName, &d.Customer.Email, &phone, &d.Customer.CreatedAt,
		&d.RaffleTitle,
		&d.PaymentMethod.ID, &d.PaymentMethod.Name, &d.PaymentMethod.CurrencySymbol, &externalID, &d.PaymentMethod.CreatedAt,
	)
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return domain.PurchaseDetails{}, err
	}
	d.Purchase = s.purchase()
	d.Customer.Phone = deref(phone)
	d.PaymentMethod.ExternalID = deref(externalID)
	return d, nil
}

func liveStatuses() []string {
	out := make([]string, len(domain.LiveStatuses))
	for i, s := range domain.LiveStatuses {
		out[i] = string(s)
	}
	return out
}

func foreignKeyError(err error) error {
	switch name := constraintName(err); {
	case strings.Contains(name, "raffle"):
		return domain.ErrRaffleNotFound
	case strings.Contains(name, "payment_method"):
		return domain.ErrPaymentMethodNotFound
	case strings.Contains(name, "customer"):
		return domain.ErrCustomerNotFound
	}
	return fmt.Errorf("foreign key violation: %w", err)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullNumbers(numbers []int) any {
	if len(numbers) == 0 {
		return nil
	}
	return numbers
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
