// Package strategy provides the three interchangeable disciplines for
// making the inventory check-then-decrement atomic under contention:
// pessimistic row locking, optimistic version retry, and process-wide
// single-writer serialization.
package strategy

import (
	"context"
	"time"

	"github.com/timedeal/timesale/internal/core/domain"
	"github.com/timedeal/timesale/internal/port"
)

// ExclusiveRow reserves under an exclusive per-product lock (SELECT ...
// FOR UPDATE on MySQL). Contenders for the same product block until the
// holder commits; no work is ever wasted on retries, at the cost of
// serializing all admissions for one product.
type ExclusiveRow struct {
	inventory port.InventoryRepository
	now       func() time.Time
}

func NewExclusiveRow(inventory port.InventoryRepository) *ExclusiveRow {
	return &ExclusiveRow{inventory: inventory, now: time.Now}
}

func (s *ExclusiveRow) Name() string { return "pessimistic" }

func (s *ExclusiveRow) Reserve(ctx context.Context, productID string, quantity int) (*domain.Product, error) {
	return s.inventory.ReserveExclusive(ctx, productID, quantity, s.now())
}
