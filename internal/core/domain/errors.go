package domain

import "errors"

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrProductNotFound = errors.New("product not found")
	ErrOrderNotFound   = errors.New("order not found")
	ErrDuplicatedOrder = errors.New("duplicated order")
	ErrSoldOut         = errors.New("product sold out")
	ErrNotSaleTime     = errors.New("not sale time")

	// ErrVersionConflict is returned by CompareAndReserve when the product
	// changed since the caller read it. It never reaches external callers;
	// the optimistic strategy retries and surfaces ErrReserveContention
	// once its retry budget is spent.
	ErrVersionConflict   = errors.New("version conflict")
	ErrReserveContention = errors.New("reservation contention: retries exhausted")
)
