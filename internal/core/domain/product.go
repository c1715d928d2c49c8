package domain

import "time"

// Product holds the authoritative stock count for one sale item. Quantity
// never goes below zero; Version increments on every quantity mutation so
// the optimistic strategy can detect concurrent writers.
type Product struct {
	ID        string
	Name      string
	Quantity  int
	Version   int64
	SaleStart time.Time
	SaleEnd   time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OnSale reports whether now falls inside the sale window. The window is
// inclusive at SaleStart and exclusive at SaleEnd.
func (p *Product) OnSale(now time.Time) bool {
	return !now.Before(p.SaleStart) && now.Before(p.SaleEnd)
}

func (p *Product) HasStock(quantity int) bool {
	return p.Quantity >= quantity
}
