package store

import (
	"context"
	"errors"

	"github.com/0355290812/petapp-cart/internal/domain"
)

// SnapshotStore is the durable device-local storage for the cart.
// Consumers define this interface, not the Redis implementation.
type SnapshotStore interface {
	LoadCart(ctx context.Context) ([]domain.CartLine, error)
	SaveCart(ctx context.Context, lines []domain.CartLine) error

	// ServerInit is the per-device flag recording that the authoritative
	// server cart has been pulled at least once since the last login.
	ServerInit(ctx context.Context) (bool, error)
	SetServerInit(ctx context.Context) error
	ClearServerInit(ctx context.Context) error
}

var ErrNotFound = errors.New("no cart snapshot stored")
