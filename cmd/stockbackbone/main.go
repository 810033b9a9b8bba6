package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stockbackbone/stockbackbone/internal/app"
	"github.com/stockbackbone/stockbackbone/internal/ledger"
	"github.com/stockbackbone/stockbackbone/internal/orders"
	"github.com/stockbackbone/stockbackbone/internal/platform/db"
	"github.com/stockbackbone/stockbackbone/internal/reconcile"
	"github.com/stockbackbone/stockbackbone/internal/registry"
	"github.com/stockbackbone/stockbackbone/internal/shared"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.Setup(ctx, pool); err != nil {
		logger.Error("setup schema", slog.Any("error", err))
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	locker := shared.NewLocker(redisClient, cfg.LedgerLockTTL)

	registryRepo := registry.NewRepository(pool)
	registryService := registry.NewService(registryRepo)
	registryHandler := registry.NewHandler(logger, registryService)

	ordersRepo := orders.NewRepository(pool)
	ledgerRepo := ledger.NewRepository(pool)
	ledgerCache := ledger.NewCache(redisClient, cfg.LedgerCacheTTL)
	ledgerHandler := ledger.NewHandler(logger, ledgerRepo, ledgerCache)

	settlementRepo := reconcile.NewRepository(pool)
	reconcileService := reconcile.NewService(ordersRepo, settlementRepo, registryService, registryService,
		auditLogger, idempotencyStore, locker, ledgerCache)
	reconcileHandler := reconcile.NewHandler(logger, reconcileService)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		RegistryHandler:  registryHandler,
		ReconcileHandler: reconcileHandler,
		LedgerHandler:    ledgerHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	}()

	logger.Info("listening", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
}
