package port

import "context"

// DuplicateGuard enforces at most one active order per (user, product)
// pair. Acquire is an atomic check-and-set: it claims the pair and reports
// whether the claim was free. Two concurrent purchases for the same pair
// therefore cannot both pass the check before either commits. Release
// frees the claim when an admission fails partway or the order is
// cancelled.
type DuplicateGuard interface {
	Acquire(ctx context.Context, userID, productID string) (bool, error)
	Release(ctx context.Context, userID, productID string) error
}

// GateResult is the stock gate's verdict on a debit attempt.
type GateResult int

const (
	// GateUnknown means the gate does not track this product; the caller
	// must fall through to the authoritative store.
	GateUnknown GateResult = iota
	GateDebited
	GateExhausted
)

// StockGate is an optional fast-path stock mirror (Redis) in front of the
// authoritative store. DecrementStock reports GateExhausted when the
// mirror is tracked and empty, and GateUnknown for products that were
// never warmed into it. IncrementStock gives a unit back after a failed
// admission or a cancellation; it is a no-op for untracked products. The
// gate only ever rejects early, the inventory store still has the final
// word.
type StockGate interface {
	DecrementStock(ctx context.Context, productID string, quantity int) (GateResult, error)
	IncrementStock(ctx context.Context, productID string, quantity int) error
}
