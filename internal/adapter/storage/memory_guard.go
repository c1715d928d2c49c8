package storage

import (
	"context"
	"sync"
)

// MemoryGuard is the in-process duplicate guard: one claim per
// (user, product) pair, taken atomically under the mutex.
type MemoryGuard struct {
	mu     sync.Mutex
	claims map[string]struct{}
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{claims: make(map[string]struct{})}
}

func (g *MemoryGuard) Acquire(ctx context.Context, userID, productID string) (bool, error) {
	_ = ctx

	g.mu.Lock()
	defer g.mu.Unlock()

	key := pairKey(userID, productID)
	if _, held := g.claims[key]; held {
		return false, nil
	}
	g.claims[key] = struct{}{}
	return true, nil
}

func (g *MemoryGuard) Release(ctx context.Context, userID, productID string) error {
	_ = ctx

	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.claims, pairKey(userID, productID))
	return nil
}
