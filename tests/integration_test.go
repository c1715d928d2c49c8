package tests

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"github.com/timedeal/timesale/internal/adapter/storage"
	"github.com/timedeal/timesale/internal/core/domain"
	"github.com/timedeal/timesale/internal/core/service"
	"github.com/timedeal/timesale/internal/core/strategy"
	"github.com/timedeal/timesale/internal/port"
)

type testEnv struct {
	redis   *redis.Client
	mysql   *sql.DB
	db      *storage.MySQLAdapter
	guard   *storage.RedisAdapter
	cleanup func()
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "root:root@tcp(localhost:3306)/timesale?parseTime=true"
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	adapter := storage.NewMySQLAdapter(db)
	if err := adapter.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	return &testEnv{
		redis: rdb,
		mysql: db,
		db:    adapter,
		guard: storage.NewRedisAdapter(rdb),
		cleanup: func() {
			rdb.Close()
			db.Close()
		},
	}
}

func (env *testEnv) resetProduct(t *testing.T, ctx context.Context, productID string, stock int) {
	t.Helper()

	env.mysql.ExecContext(ctx, `DELETE FROM orders WHERE product_id = ?`, productID)

	now := time.Now()
	err := env.db.SeedProduct(ctx, domain.Product{
		ID:        productID,
		Name:      "integration " + productID,
		Quantity:  stock,
		Version:   0,
		SaleStart: now.Add(-time.Hour),
		SaleEnd:   now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
}

func (env *testEnv) seedUsers(t *testing.T, ctx context.Context, productID string, count int) {
	t.Helper()

	for i := 0; i < count; i++ {
		userID := fmt.Sprintf("it-user-%03d", i)
		err := env.db.SeedUser(ctx, domain.User{
			ID:      userID,
			LoginID: fmt.Sprintf("it-buyer-%03d", i),
		})
		if err != nil {
			t.Fatalf("seed user: %v", err)
		}
		env.redis.Del(ctx, "claim:"+userID+":"+productID)
	}
}

func runConcurrentPurchases(t *testing.T, svc *service.OrderService, productID string, requests int) (success, rejected int32) {
	t.Helper()

	var successCount, rejectCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Purchase(context.Background(), fmt.Sprintf("it-buyer-%03d", i), productID)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrSoldOut), errors.Is(err, domain.ErrReserveContention):
				rejectCount.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	return successCount.Load(), rejectCount.Load()
}

func TestIntegration_NoOversell(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	const (
		initialStock  = 10
		totalRequests = 50
	)

	strategies := map[string]func(inv port.InventoryRepository) port.ReservationStrategy{
		"pessimistic": func(inv port.InventoryRepository) port.ReservationStrategy {
			return strategy.NewExclusiveRow(inv)
		},
		"optimistic": func(inv port.InventoryRepository) port.ReservationStrategy {
			return strategy.NewOptimistic(inv, 256)
		},
		"serialized": func(inv port.InventoryRepository) port.ReservationStrategy {
			return strategy.NewSingleWriter(inv)
		},
	}

	for name, build := range strategies {
		t.Run(name, func(t *testing.T) {
			productID := "it-item-" + name
			env.resetProduct(t, ctx, productID, initialStock)
			env.seedUsers(t, ctx, productID, totalRequests)

			svc := service.NewOrderService(env.db, env.db, env.db, env.guard, build(env.db), nil)

			success, _ := runConcurrentPurchases(t, svc, productID, totalRequests)

			final, err := env.db.GetProduct(ctx, productID)
			if err != nil {
				t.Fatalf("read back product: %v", err)
			}
			if final.Quantity < 0 {
				t.Fatalf("oversold: final quantity %d", final.Quantity)
			}
			if int(success) > initialStock {
				t.Fatalf("%d admissions exceed stock %d", success, initialStock)
			}
			if final.Quantity != initialStock-int(success) {
				t.Errorf("final quantity %d does not match %d admissions", final.Quantity, success)
			}

			var orderCount int
			env.mysql.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE product_id = ?`, productID).Scan(&orderCount)
			if orderCount != int(success) {
				t.Errorf("ledger has %d orders for %d admissions", orderCount, success)
			}
		})
	}
}

func TestIntegration_DuplicateUser(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	const productID = "it-item-dup"
	env.resetProduct(t, ctx, productID, 10)
	env.seedUsers(t, ctx, productID, 1)

	svc := service.NewOrderService(env.db, env.db, env.db, env.guard, strategy.NewExclusiveRow(env.db), nil)

	var successCount, dupCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Purchase(ctx, "it-buyer-000", productID)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrDuplicatedOrder):
				dupCount.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != 1 {
		t.Errorf("expected exactly 1 admission, got %d", successCount.Load())
	}
	if dupCount.Load() != 4 {
		t.Errorf("expected 4 duplicate rejections, got %d", dupCount.Load())
	}
}

func TestIntegration_CancelRoundTrip(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	const productID = "it-item-cancel"
	env.resetProduct(t, ctx, productID, 3)
	env.seedUsers(t, ctx, productID, 1)

	svc := service.NewOrderService(env.db, env.db, env.db, env.guard, strategy.NewExclusiveRow(env.db), nil)

	orderID, err := svc.Purchase(ctx, "it-buyer-000", productID)
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}

	if err := svc.CancelOrder(ctx, orderID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	if _, err := svc.GetOrder(ctx, orderID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound after cancel, got: %v", err)
	}

	p, err := env.db.GetProduct(ctx, productID)
	if err != nil {
		t.Fatalf("read back product: %v", err)
	}
	if p.Quantity != 3 {
		t.Errorf("expected quantity restored to 3, got %d", p.Quantity)
	}

	// The pair is free again.
	if _, err := svc.Purchase(ctx, "it-buyer-000", productID); err != nil {
		t.Errorf("repurchase after cancel failed: %v", err)
	}
}
