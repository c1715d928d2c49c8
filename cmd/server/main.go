package main

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/timedeal/timesale/internal/adapter/handler"
	"github.com/timedeal/timesale/internal/adapter/storage"
	"github.com/timedeal/timesale/internal/core/domain"
	"github.com/timedeal/timesale/internal/core/service"
	"github.com/timedeal/timesale/internal/core/strategy"
	"github.com/timedeal/timesale/internal/pkg/logging"
	"github.com/timedeal/timesale/internal/port"
)

type config struct {
	Env               string
	HTTPAddr          string
	GRPCAddr          string
	Backend           string // memory | mysql
	Strategy          string // pessimistic | optimistic | serialized
	MySQLDSN          string
	RedisAddr         string
	OptimisticRetries int

	// Demo product seeded on the memory backend.
	DemoProductID string
	DemoStock     int
}

func loadConfig() config {
	retries, _ := strconv.Atoi(getenv("OPTIMISTIC_RETRIES", "16"))
	stock, _ := strconv.Atoi(getenv("DEMO_STOCK", "100"))
	return config{
		Env:               getenv("ENV", "dev"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		GRPCAddr:          getenv("GRPC_ADDR", ":50051"),
		Backend:           getenv("BACKEND", "memory"),
		Strategy:          getenv("STRATEGY", "pessimistic"),
		MySQLDSN:          getenv("MYSQL_DSN", "root:root@tcp(localhost:3306)/timesale?parseTime=true"),
		RedisAddr:         getenv("REDIS_ADDR", ""),
		OptimisticRetries: retries,
		DemoProductID:     getenv("DEMO_PRODUCT_ID", "iphone-15"),
		DemoStock:         stock,
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	cfg := loadConfig()

	logger := logging.MustNewLogger("timesale", cfg.Env)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		users     port.UserRepository
		inventory port.InventoryRepository
		orders    port.OrderRepository
	)
	var db *sql.DB

	switch cfg.Backend {
	case "mysql":
		var err error
		db, err = sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			logger.Fatal("open mysql", zap.Error(err))
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			logger.Fatal("ping mysql", zap.Error(err))
		}

		adapter := storage.NewMySQLAdapter(db)
		if err := adapter.EnsureSchema(ctx); err != nil {
			logger.Fatal("ensure schema", zap.Error(err))
		}
		users, inventory, orders = adapter, adapter, adapter
		logger.Info("connected to mysql")

	case "memory":
		mem := storage.NewMemoryAdapter()
		now := time.Now()
		mem.SeedProduct(domain.Product{
			ID:        cfg.DemoProductID,
			Name:      cfg.DemoProductID,
			Quantity:  cfg.DemoStock,
			SaleStart: now,
			SaleEnd:   now.Add(24 * time.Hour),
			CreatedAt: now,
			UpdatedAt: now,
		})
		for _, loginID := range []string{"alice", "bob", "carol"} {
			mem.SeedUser(domain.User{ID: "user-" + loginID, LoginID: loginID, CreatedAt: now})
		}
		users, inventory, orders = mem, mem, mem
		logger.Info("using in-memory backend",
			zap.String("demo_product", cfg.DemoProductID),
			zap.Int("demo_stock", cfg.DemoStock))

	default:
		logger.Fatal("unknown backend", zap.String("backend", cfg.Backend))
	}

	var guard port.DuplicateGuard = storage.NewMemoryGuard()
	var gate port.StockGate
	var rdb *redis.Client

	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, PoolSize: 100})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("ping redis", zap.Error(err))
		}
		redisAdapter := storage.NewRedisAdapter(rdb)
		guard = redisAdapter
		gate = redisAdapter

		// Warm the demo product from the authoritative count. Products
		// without a cached counter pass through the gate untouched.
		if p, err := inventory.GetProduct(ctx, cfg.DemoProductID); err == nil {
			if err := redisAdapter.SetStock(ctx, p.ID, p.Quantity); err != nil {
				logger.Fatal("warm stock gate", zap.Error(err))
			}
		}
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	}

	var reserve port.ReservationStrategy
	switch cfg.Strategy {
	case "pessimistic":
		reserve = strategy.NewExclusiveRow(inventory)
	case "optimistic":
		reserve = strategy.NewOptimistic(inventory, cfg.OptimisticRetries)
	case "serialized":
		reserve = strategy.NewSingleWriter(inventory)
	default:
		logger.Fatal("unknown strategy", zap.String("strategy", cfg.Strategy))
	}
	logger.Info("reservation strategy selected", zap.String("strategy", reserve.Name()))

	orderService := service.NewOrderService(users, inventory, orders, guard, reserve, logger)
	if gate != nil {
		orderService.WithStockGate(gate)
	}

	// gRPC server
	grpcServer := handler.NewGRPCServer(handler.NewGRPCHandler(orderService))
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("listen grpc", zap.Error(err))
	}
	go func() {
		logger.Info("grpc server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc server", zap.Error(err))
		}
	}()

	// HTTP server
	mux := http.NewServeMux()
	handler.NewHTTPHandler(orderService).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	logger.Info("http server stopped")

	grpcServer.GracefulStop()
	logger.Info("grpc server stopped")

	if rdb != nil {
		rdb.Close()
	}
	if db != nil {
		db.Close()
	}
	logger.Info("connections closed")
}
