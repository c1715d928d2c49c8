package port

import (
	"context"
	"time"

	"github.com/timedeal/timesale/internal/core/domain"
)

type UserRepository interface {
	// FindByLoginID resolves a login identifier to a user, or ErrUserNotFound.
	FindByLoginID(ctx context.Context, loginID string) (*domain.User, error)
}

// InventoryRepository holds the per-product stock count and sale window.
// The three reserve variants check, in order: product existence, the sale
// window against now, then stock; all of them return the post-decrement
// snapshot on success.
type InventoryRepository interface {
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)

	// Reserve is a plain check-then-decrement. It is NOT safe against
	// concurrent reservers on its own; only the single-writer strategy may
	// call it, under its process-wide gate.
	Reserve(ctx context.Context, productID string, quantity int, now time.Time) (*domain.Product, error)

	// ReserveExclusive holds an exclusive lock on the product row for the
	// whole check-then-decrement. Concurrent reservers for the same product
	// block until the lock releases.
	ReserveExclusive(ctx context.Context, productID string, quantity int, now time.Time) (*domain.Product, error)

	// CompareAndReserve decrements only if the product's version still
	// equals version; otherwise it returns ErrVersionConflict and the
	// caller must re-read and retry.
	CompareAndReserve(ctx context.Context, productID string, quantity int, version int64, now time.Time) (*domain.Product, error)

	// Credit adds quantity back unconditionally (cancellation, rollback).
	// No sale-window or stock check applies.
	Credit(ctx context.Context, productID string, quantity int) error
}

type OrderRepository interface {
	// Create persists a new order. Returns ErrDuplicatedOrder when an
	// active order for the same (user, product) pair already exists.
	Create(ctx context.Context, order domain.Order) error

	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)

	// ListByUser and ListByProduct return orders newest-first.
	ListByUser(ctx context.Context, userID string, page domain.Page) ([]domain.Order, error)
	ListByProduct(ctx context.Context, productID string, page domain.Page) ([]domain.Order, error)

	// Cancel deletes the order and credits its quantity back to the product
	// as one atomic unit; neither effect may apply without the other.
	// Returns the deleted order, or ErrOrderNotFound.
	Cancel(ctx context.Context, orderID string) (*domain.Order, error)
}
