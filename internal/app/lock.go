package app

import (
	"context"

	"github.com/victor5516/raffles-api-core/internal/domain"
)

// RaffleLocker opens transactions and takes the per-raffle row lock.
// GetRaffleForUpdate blocks until concurrent holders of the same raffle commit
// or roll back, and fails with domain.ErrLockTimeout when the wait exceeds the
// configured lock timeout.
type RaffleLocker interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetRaffleForUpdate(ctx context.Context, raffleID string) (domain.Raffle, error)
}

// withRaffleLock runs fn inside a transaction that holds the raffle's row lock
// until commit. Every read-decide-write over a raffle's tickets goes through here.
func withRaffleLock(ctx context.Context, repo RaffleLocker, raffleID string, requireActive bool, fn func(ctx context.Context, raffle domain.Raffle) error) error {
	return repo.WithTx(ctx, func(txCtx context.Context) error {
		raffle, err := repo.GetRaffleForUpdate(txCtx, raffleID)
		if err != nil {
			return err
		}
		if requireActive && raffle.Status != domain.RaffleStatusActive {
			return domain.ErrRaffleNotActive
		}
		return fn(txCtx, raffle)
	})
}
