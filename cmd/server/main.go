package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/finbook/accounting-engine/internal/account"
	"github.com/finbook/accounting-engine/internal/api"
	"github.com/finbook/accounting-engine/internal/config"
	"github.com/finbook/accounting-engine/internal/ledger"
	"github.com/finbook/accounting-engine/internal/money"
	"github.com/finbook/accounting-engine/internal/portfolio"
	"github.com/finbook/accounting-engine/internal/pricing"
	"github.com/finbook/accounting-engine/internal/store"
	"github.com/finbook/accounting-engine/internal/trading"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			slog.Info("Redis cache enabled", "ttl", cfg.CacheTTL)
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Core services ---
	rules := money.Rules{
		CashPlaces: cfg.CashDecimalPlaces,
		QtyPlaces:  cfg.QtyDecimalPlaces,
		Rounding:   money.RoundHalfEven,
	}
	lg := ledger.New(rules)
	accounts := account.NewService(rules, lg)

	policy := trading.NoShort()
	if cfg.AllowShort {
		policy = trading.BoundedShort(cfg.ShortFloor, cfg.ShortFloorInclusive)
		slog.Info("short selling enabled", "floor", cfg.ShortFloor.String(), "inclusive", cfg.ShortFloorInclusive)
	}
	engine := trading.NewEngine(accounts, lg, policy)
	portfolios := portfolio.NewService(rules)
	prices := pricing.NewStaticSource()

	// --- WebSocket hub ---
	wsHub := api.NewWSHub()
	go wsHub.Run()

	// --- API service and router ---
	svc := api.NewService(accounts, engine, portfolios, prices, st, wsHub)
	r := api.NewRouter(svc, wsHub)

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("accounting-engine listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down accounting-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("accounting-engine stopped")
}
