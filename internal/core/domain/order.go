package domain

import "time"

// Order is a reservation of stock: one row per admitted purchase. The
// user/product references are immutable once set, and at most one active
// order exists per (user, product) pair. Cancellation hard-deletes the
// order and credits the quantity back to the product.
type Order struct {
	ID        string
	UserID    string
	ProductID string
	Quantity  int
	CreatedAt time.Time
}
