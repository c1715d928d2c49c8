package port

import (
	"context"

	"github.com/timedeal/timesale/internal/core/domain"
)

// ReservationStrategy decides how concurrent reservations for the same
// product are serialized. All three implementations answer the same
// question (can this request take quantity units right now) and differ
// only in how they make the check-then-decrement atomic.
//
// A strategy that also implements sync.Locker asks the admission
// controller to wrap the entire purchase sequence, duplicate check and
// ledger write included, in that lock (the single-writer strategy).
type ReservationStrategy interface {
	Name() string
	Reserve(ctx context.Context, productID string, quantity int) (*domain.Product, error)
}
