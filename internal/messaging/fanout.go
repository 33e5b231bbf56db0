package messaging

import (
	"context"
	"errors"

	"github.com/victor5516/raffles-api-core/internal/domain"
)

type Notifier interface {
	Notify(ctx context.Context, event domain.PurchaseEvent) error
}

// Fanout delivers every event to all sinks; one failing sink does not stop
// the others.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, event domain.PurchaseEvent) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
