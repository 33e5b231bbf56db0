package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victor5516/raffles-api-core/internal/domain"
)

type AdminRepository struct {
	db
}

func NewAdminRepository(pool *pgxpool.Pool) *AdminRepository {
	return &AdminRepository{db: db{pool: pool}}
}

func (r *AdminRepository) CreateRaffle(ctx context.Context, raffle domain.Raffle) error {
	const stmt = `
INSERT INTO raffles (id, title, total_tickets, selection_type, status, ticket_price, deadline, external_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.exec(ctx, stmt,
		raffle.ID,
		raffle.Title,
		raffle.TotalTickets,
		raffle.SelectionType,
		raffle.Status,
		raffle.TicketPrice,
		raffle.Deadline,
		nullString(raffle.ExternalID),
		raffle.CreatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isUniqueViolation(err) {
			return domain.ErrRaffleExternalIDTaken
		}
		return fmt.Errorf("create raffle: %w", err)
	}
	return nil
}

func (r *AdminRepository) ListRaffles(ctx context.Context) ([]domain.Raffle, error) {
	rows, err := r.query(ctx, `SELECT `+raffleColumns+` FROM raffles ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list raffles: %w", err)
	}
	defer rows.Close()

	var raffles []domain.Raffle
	for rows.Next() {
		raffle, err := scanRaffle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan raffle: %w", err)
		}
		raffles = append(raffles, raffle)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate raffles: %w", rows.Err())
	}
	return raffles, nil
}

func (r *AdminRepository) GetRaffle(ctx context.Context, id string) (domain.Raffle, error) {
	raffle, err := scanRaffle(r.queryRow(ctx, `SELECT `+raffleColumns+` FROM raffles WHERE id = $1`, id))
	if err != nil {
		return domain.Raffle{}, raffleError(err, "get raffle")
	}
	return raffle, nil
}

func (r *AdminRepository) SetRaffleStatus(ctx context.Context, id string, status domain.RaffleStatus) error {
	tag, err := r.exec(ctx, `UPDATE raffles SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrRaffleNotFound
		}
		return fmt.Errorf("set raffle status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRaffleNotFound
	}
	return nil
}

func (r *AdminRepository) OccupiedCount(ctx context.Context, raffleID string) (int, error) {
	return occupiedCount(ctx, r.db, raffleID)
}

func (r *AdminRepository) CreatePaymentMethod(ctx context.Context, method domain.PaymentMethod) error {
	const stmt = `
INSERT INTO payment_methods (id, name, currency_symbol, external_id, created_at)
VALUES ($1, $2, $3, $4, $5)`
	_, err := r.exec(ctx, stmt, method.ID, method.Name, method.CurrencySymbol, nullString(method.ExternalID), method.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isUniqueViolation(err) {
			return domain.ErrPaymentMethodExists
		}
		return fmt.Errorf("create payment method: %w", err)
	}
	return nil
}

func (r *AdminRepository) ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	rows, err := r.query(ctx, `SELECT `+paymentMethodColumns+` FROM payment_methods ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	defer rows.Close()

	var methods []domain.PaymentMethod
	for rows.Next() {
		method, err := scanPaymentMethod(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment method: %w", err)
		}
		methods = append(methods, method)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate payment methods: %w", rows.Err())
	}
	return methods, nil
}

const raffleColumns = `id, title, total_tickets, selection_type, status, ticket_price, deadline, external_id, created_at`

func scanRaffle(row pgx.Row) (domain.Raffle, error) {
	var (
		raffle     domain.Raffle
		externalID *string
	)
	err := row.Scan(&raffle.ID, &raffle.Title, &raffle.TotalTickets, &raffle.SelectionType, &raffle.Status,
		&raffle.TicketPrice, &raffle.Deadline, &externalID, &raffle.CreatedAt)
	if err != nil {
		return domain.Raffle{}, err
	}
	raffle.ExternalID = deref(externalID)
	return raffle, nil
}

// raffleError maps unknown and malformed ids alike to not found.
func raffleError(err error, op string) error {
	if isInvalidUUID(err) || errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrRaffleNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

const paymentMethodColumns = `id, name, currency_symbol, external_id, created_at`

func scanPaymentMethod(row pgx.Row) (domain.PaymentMethod, error) {
	var (
		method     domain.PaymentMethod
		externalID *string
	)
	if err := row.Scan(&method.ID, &method.Name, &method.CurrencySymbol, &externalID, &method.CreatedAt); err != nil {
		return domain.PaymentMethod{}, err
	}
	method.ExternalID = strings.TrimSpace(deref(externalID))
	return method, nil
}

func paymentMethodError(err error, op string) error {
	if isInvalidUUID(err) || errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrPaymentMethodNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
