package strategy

import (
	"context"
	"sync"
	"time"

	"github.com/timedeal/timesale/internal/core/domain"
	"github.com/timedeal/timesale/internal/port"
)

// SingleWriter serializes every admission in the process through one
// mutex: at most one purchase executes at any time, regardless of
// product. Because it implements sync.Locker, the admission controller
// holds the gate across the whole purchase sequence, so the plain
// (unguarded) reserve underneath is safe.
//
// The gate only prevents intra-process races. It does nothing across
// service instances and serializes unrelated products against each
// other; it exists as a correctness baseline for comparison and
// benchmarking, not as a production discipline.
type SingleWriter struct {
	mu        sync.Mutex
	inventory port.InventoryRepository
	now       func() time.Time
}

var _ sync.Locker = (*SingleWriter)(nil)

func NewSingleWriter(inventory port.InventoryRepository) *SingleWriter {
	return &SingleWriter{inventory: inventory, now: time.Now}
}

func (s *SingleWriter) Name() string { return "serialized" }

func (s *SingleWriter) Lock()   { s.mu.Lock() }
func (s *SingleWriter) Unlock() { s.mu.Unlock() }

func (s *SingleWriter) Reserve(ctx context.Context, productID string, quantity int) (*domain.Product, error) {
	return s.inventory.Reserve(ctx, productID, quantity, s.now())
}
