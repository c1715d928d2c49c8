package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/timedeal/timesale/internal/adapter/storage"
	"github.com/timedeal/timesale/internal/core/domain"
	"github.com/timedeal/timesale/internal/core/service"
	"github.com/timedeal/timesale/internal/core/strategy"
	"github.com/timedeal/timesale/internal/port"
)

const (
	productID     = "flash-sale-item"
	initialStock  = 20
	totalRequests = 200
)

// Hammers the admission path in-process with each of the three
// reservation strategies and verifies nothing oversells.
func main() {
	for _, name := range []string{"pessimistic", "optimistic", "serialized"} {
		run(name)
	}
}

func run(strategyName string) {
	ctx := context.Background()

	mem := storage.NewMemoryAdapter()
	now := time.Now()
	mem.SeedProduct(domain.Product{
		ID:        productID,
		Name:      productID,
		Quantity:  initialStock,
		SaleStart: now.Add(-time.Minute),
		SaleEnd:   now.Add(time.Hour),
		CreatedAt: now,
		UpdatedAt: now,
	})
	for i := 0; i < totalRequests; i++ {
		mem.SeedUser(domain.User{
			ID:      fmt.Sprintf("user-%03d", i),
			LoginID: fmt.Sprintf("buyer-%03d", i),
		})
	}

	var reserve port.ReservationStrategy
	switch strategyName {
	case "pessimistic":
		reserve = strategy.NewExclusiveRow(mem)
	case "optimistic":
		reserve = strategy.NewOptimistic(mem, 0)
	case "serialized":
		reserve = strategy.NewSingleWriter(mem)
	}

	svc := service.NewOrderService(mem, mem, mem, storage.NewMemoryGuard(), reserve, zap.NewNop())

	var successCount atomic.Int32
	var soldOutCount atomic.Int32
	var otherCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			_, err := svc.Purchase(ctx, fmt.Sprintf("buyer-%03d", i), productID)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrSoldOut), errors.Is(err, domain.ErrReserveContention):
				soldOutCount.Add(1)
			default:
				otherCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	final, err := mem.GetProduct(ctx, productID)
	if err != nil {
		fmt.Printf("FAIL: read back product: %v\n", err)
		return
	}

	success := successCount.Load()
	soldOut := soldOutCount.Load()

	fmt.Printf("========== STRESS RESULTS (%s) ==========\n", strategyName)
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Admitted:         %d\n", success)
	fmt.Printf("Rejected:         %d\n", soldOut)
	fmt.Printf("Errors:           %d\n", otherCount.Load())
	fmt.Printf("Final Stock:      %d\n", final.Quantity)
	fmt.Printf("Duration:         %v\n", elapsed)

	switch {
	case final.Quantity < 0:
		fmt.Println("FAIL: oversold, final stock negative")
	case int(success) != initialStock-final.Quantity:
		fmt.Printf("FAIL: %d admissions but stock dropped by %d\n",
			success, initialStock-final.Quantity)
	case success > initialStock:
		fmt.Printf("FAIL: %d admissions exceed initial stock %d\n", success, initialStock)
	default:
		fmt.Printf("PASS: %d admitted, stock accounted for\n", success)
	}
	fmt.Println("==========================================")
}
