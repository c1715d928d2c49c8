package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/timedeal/timesale/internal/core/domain"
	"github.com/timedeal/timesale/internal/pkg/metrics"
	"github.com/timedeal/timesale/internal/port"
)

// OrderService is the admission controller: it runs the purchase workflow
// (resolve user, claim the duplicate guard, reserve stock through the
// configured strategy, record the order) as one logical unit, unwinding
// every prior effect when a later step fails.
type OrderService struct {
	users     port.UserRepository
	inventory port.InventoryRepository
	orders    port.OrderRepository
	guard     port.DuplicateGuard
	strategy  port.ReservationStrategy
	gate      port.StockGate // optional fast-path, may be nil
	logger    *zap.Logger
}

func NewOrderService(
	users port.UserRepository,
	inventory port.InventoryRepository,
	orders port.OrderRepository,
	guard port.DuplicateGuard,
	strategy port.ReservationStrategy,
	logger *zap.Logger,
) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderService{
		users:     users,
		inventory: inventory,
		orders:    orders,
		guard:     guard,
		strategy:  strategy,
		logger:    logger,
	}
}

// WithStockGate installs a cached-stock fast path in front of the
// strategy. The gate only rejects early; admission still goes through the
// authoritative inventory store.
func (s *OrderService) WithStockGate(gate port.StockGate) *OrderService {
	s.gate = gate
	return s
}

// Purchase admits one unit of productID for the user behind loginID and
// returns the new order id. Callers receive exactly one of the domain
// errors on rejection; nothing is retried here except inside the
// optimistic strategy.
func (s *OrderService) Purchase(ctx context.Context, loginID, productID string) (string, error) {
	// The single-writer strategy exposes itself as a sync.Locker so the
	// whole four-step sequence runs inside its process-wide gate.
	if gate, ok := s.strategy.(sync.Locker); ok {
		gate.Lock()
		defer gate.Unlock()
	}

	start := time.Now()
	orderID, err := s.purchase(ctx, loginID, productID)

	metrics.Admissions.WithLabelValues(s.strategy.Name(), outcomeLabel(err)).Inc()
	metrics.PurchaseDuration.WithLabelValues(s.strategy.Name()).Observe(time.Since(start).Seconds())

	return orderID, err
}

func (s *OrderService) purchase(ctx context.Context, loginID, productID string) (string, error) {
	user, err := s.users.FindByLoginID(ctx, loginID)
	if err != nil {
		return "", err
	}

	acquired, err := s.guard.Acquire(ctx, user.ID, productID)
	if err != nil {
		return "", fmt.Errorf("duplicate guard: %w", err)
	}
	if !acquired {
		return "", domain.ErrDuplicatedOrder
	}

	// Every exit below this point must give the claim back on failure.

	debited := false
	if s.gate != nil {
		result, gateErr := s.gate.DecrementStock(ctx, productID, 1)
		switch {
		case gateErr != nil:
			// The gate is advisory; a broken cache must not block the sale.
			s.logger.Warn("stock gate unavailable",
				zap.String("product_id", productID), zap.Error(gateErr))
		case result == port.GateExhausted:
			s.releaseGuard(ctx, user.ID, productID)
			return "", domain.ErrSoldOut
		case result == port.GateDebited:
			debited = true
		}
		// GateUnknown: the product was never warmed into the gate; the
		// authoritative store decides.
	}

	snapshot, err := s.strategy.Reserve(ctx, productID, 1)
	if err != nil {
		s.creditGate(ctx, productID, debited)
		s.releaseGuard(ctx, user.ID, productID)
		return "", err
	}

	order := domain.Order{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		ProductID: productID,
		Quantity:  1,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.orders.Create(ctx, order); err != nil {
		if creditErr := s.inventory.Credit(ctx, productID, 1); creditErr != nil {
			s.logger.Error("inventory compensation failed",
				zap.String("product_id", productID),
				zap.String("user_id", user.ID),
				zap.Error(creditErr))
		}
		s.creditGate(ctx, productID, debited)
		s.releaseGuard(ctx, user.ID, productID)
		return "", err
	}

	s.logger.Info("order admitted",
		zap.String("order_id", order.ID),
		zap.String("user_id", user.ID),
		zap.String("product_id", productID),
		zap.Int("remaining", snapshot.Quantity),
		zap.String("strategy", s.strategy.Name()))

	return order.ID, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.orders.GetOrder(ctx, orderID)
}

// ListUserOrders resolves the login first so an unknown user surfaces as
// ErrUserNotFound rather than an empty page.
func (s *OrderService) ListUserOrders(ctx context.Context, loginID string, page domain.Page) ([]domain.Order, error) {
	user, err := s.users.FindByLoginID(ctx, loginID)
	if err != nil {
		return nil, err
	}
	return s.orders.ListByUser(ctx, user.ID, page.Normalize())
}

func (s *OrderService) ListProductOrders(ctx context.Context, productID string, page domain.Page) ([]domain.Order, error) {
	if _, err := s.inventory.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.orders.ListByProduct(ctx, productID, page.Normalize())
}

// CancelOrder removes the order and credits its unit back. The ledger
// performs delete+credit atomically; afterwards the duplicate-guard claim
// is freed so the user may buy the product again.
func (s *OrderService) CancelOrder(ctx context.Context, orderID string) error {
	order, err := s.orders.Cancel(ctx, orderID)
	if err != nil {
		return err
	}

	// The gate credit is a no-op for untracked products; for tracked ones
	// any excess only makes the gate fall through to the authoritative
	// store sooner, never oversell.
	s.creditGate(ctx, order.ProductID, s.gate != nil)
	s.releaseGuard(ctx, order.UserID, order.ProductID)

	s.logger.Info("order cancelled",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.String("product_id", order.ProductID))

	return nil
}

func (s *OrderService) releaseGuard(ctx context.Context, userID, productID string) {
	if err := s.guard.Release(ctx, userID, productID); err != nil {
		s.logger.Error("duplicate guard release failed",
			zap.String("user_id", userID),
			zap.String("product_id", productID),
			zap.Error(err))
	}
}

func (s *OrderService) creditGate(ctx context.Context, productID string, debited bool) {
	if !debited || s.gate == nil {
		return
	}
	if err := s.gate.IncrementStock(ctx, productID, 1); err != nil {
		s.logger.Warn("stock gate credit failed",
			zap.String("product_id", productID), zap.Error(err))
	}
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "admitted"
	case errors.Is(err, domain.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, domain.ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, domain.ErrDuplicatedOrder):
		return "duplicated"
	case errors.Is(err, domain.ErrSoldOut):
		return "sold_out"
	case errors.Is(err, domain.ErrNotSaleTime):
		return "not_sale_time"
	case errors.Is(err, domain.ErrReserveContention):
		return "contention"
	default:
		return "error"
	}
}
