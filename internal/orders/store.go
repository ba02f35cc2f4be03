// Package orders persists placed orders and their frozen line snapshots.
package orders

import (
	"context"

	"github.com/joao-fontenele/grocery-fulfillment/internal/domain"
)

// MaxListLimit bounds every history listing.
const MaxListLimit = 50

// Store is the durable record of orders. GetByID returns nil, nil for an
// unknown id. UpdateStatus and Transition report false when nothing was
// written; both advance updated_at on success.
type Store interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	ListByCustomer(ctx context.Context, customerName string, limit int) ([]domain.Order, error)
	ListRecent(ctx context.Context, limit int) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (bool, error)
	// Transition writes to only if the order is currently in from.
	Transition(ctx context.Context, id string, from, to domain.OrderStatus) (bool, error)
	// ListActive returns ids of orders that are not delivered or cancelled,
	// oldest first.
	ListActive(ctx context.Context) ([]string, error)
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
