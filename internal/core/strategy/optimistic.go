package strategy

import (
	"context"
	"errors"
	"time"

	"github.com/timedeal/timesale/internal/core/domain"
	"github.com/timedeal/timesale/internal/pkg/metrics"
	"github.com/timedeal/timesale/internal/port"
)

// DefaultMaxRetries bounds the optimistic read-check-write cycle.
// Unbounded retries risk livelock when every attempt for a hot product
// loses the version race.
const DefaultMaxRetries = 16

// Optimistic reserves without blocking: read the product, then write back
// conditioned on the version being unchanged. A lost race costs one loop
// iteration instead of a lock wait. Terminal business errors (sold out,
// outside the sale window, unknown product) are never retried.
type Optimistic struct {
	inventory  port.InventoryRepository
	maxRetries int
	now        func() time.Time
}

func NewOptimistic(inventory port.InventoryRepository, maxRetries int) *Optimistic {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Optimistic{inventory: inventory, maxRetries: maxRetries, now: time.Now}
}

func (s *Optimistic) Name() string { return "optimistic" }

func (s *Optimistic) Reserve(ctx context.Context, productID string, quantity int) (*domain.Product, error) {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current, err := s.inventory.GetProduct(ctx, productID)
		if err != nil {
			return nil, err
		}

		snapshot, err := s.inventory.CompareAndReserve(ctx, productID, quantity, current.Version, s.now())
		if errors.Is(err, domain.ErrVersionConflict) {
			metrics.OptimisticRetries.Inc()
			continue
		}
		return snapshot, err
	}

	return nil, domain.ErrReserveContention
}
