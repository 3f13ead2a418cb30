// Package main is the entry point for the coopsync central sync server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"coopsync/internal/config"
	"coopsync/internal/core/lock"
	"coopsync/internal/domain/inventory"
	"coopsync/internal/domain/ledger"
	"coopsync/internal/domain/operations"
	"coopsync/internal/domain/opsync"
	"coopsync/internal/domain/refdata"
	"coopsync/internal/infrastructure/cache"
	v1 "coopsync/internal/infrastructure/http/v1"
	"coopsync/internal/infrastructure/http/v1/handlers"
	"coopsync/internal/infrastructure/mail"
	"coopsync/internal/infrastructure/storage/postgres"
	"coopsync/internal/infrastructure/storage/postgres/catalog_repo"
	"coopsync/internal/infrastructure/storage/postgres/document_repo"
	"coopsync/internal/infrastructure/storage/postgres/inventory_repo"
	"coopsync/internal/infrastructure/storage/postgres/register_repo"
	"coopsync/internal/infrastructure/storage/postgres/sync_repo"
	"coopsync/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ValidateServer(); err != nil {
		fmt.Printf("invalid config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Server.LogLevel,
		Development: !cfg.IsProduction(),
		Service:     "coopsync-server",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx := logger.WithLogger(context.Background(), log)
	log.Info("starting coopsync server")

	// --- Database ---
	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.Database, "coopsync-server"))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	prometheus.MustRegister(postgres.NewPoolCollector(pool))
	log.Info("database connection established")

	if cfg.Database.MigrateOnStart {
		if err := postgres.Migrate(ctx, pool); err != nil {
			log.Fatalw("failed to apply migrations", "error", err)
		}
	}

	txm := postgres.NewTxManager(pool, cfg.Database.StatementTimeout)

	// --- Optional Redis: summary cache and distributed lock ---
	var (
		locker       lock.Locker = lock.NewLocal()
		summaryCache inventory.SummaryCache
		redisHealth  handlers.Pinger
	)
	if cfg.Redis.URL != "" {
		client, err := cache.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			log.Fatalw("failed to connect to redis", "error", err)
		}
		defer client.Close()

		locker = cache.NewLocker(client, cfg.Redis.LockTTL)
		summaryCache = cache.NewSummaryCache(client, cfg.Redis.SummaryCacheTTL)
		redisHealth = cache.Health{Client: client}
		log.Info("redis connection established")
	} else {
		log.Info("redis not configured, using in-process lock and no summary cache")
	}

	// --- Repositories ---
	ledgerRepo := register_repo.NewLedgerRepo(txm)
	salesRepo := document_repo.NewSalesRepo(txm)
	receptionsRepo := document_repo.NewReceptionsRepo(txm)
	catalogRepo := catalog_repo.NewCatalogRepo(txm)
	refDataRepo := catalog_repo.NewRefDataRepo(txm)
	operationsRepo := sync_repo.NewOperationsRepo(txm)
	inventoryRepo := inventory_repo.NewInventoryRepo(txm)

	// --- Services ---
	ledgerService := ledger.NewService(ledgerRepo, txm, locker)
	registry := operations.NewRegistry(cfg.Features, operations.Deps{
		Sales:      salesRepo,
		Receptions: receptionsRepo,
		Catalog:    catalogRepo,
		Ledger:     ledgerService,
	})
	pushService := opsync.NewService(operationsRepo, registry, txm)
	refDataService := refdata.NewService(refDataRepo, txm, locker)

	var inventoryService *inventory.Service
	if cfg.Features.Inventory {
		opts := inventory.Options{
			Cache: summaryCache,
			Queue: postgres.NewOutbox(txm),
		}
		if sender := mail.NewSMTPSender(cfg.SMTP); sender != nil {
			opts.Sender = sender
		} else {
			log.Info("smtp not configured, finalize notifications disabled")
		}
		inventoryService = inventory.NewService(inventoryRepo, ledgerService, txm, opts)
	}

	log.Infow("services initialized",
		"handlers", registry.Types(),
		"inventory", cfg.Features.Inventory,
	)

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Logger:      log,
		DB:          pool,
		Redis:       redisHealth,
		Features:    cfg.Features,
		Push:        pushService,
		RefData:     refDataService,
		Ledger:      ledgerService,
		Inventory:   inventoryService,
		Idempotency: postgres.NewIdempotencyStore(txm, cfg.Worker.IdempotencyTTL),
	})

	// --- HTTP Server ---
	port := strconv.Itoa(cfg.Server.Port)
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", port, "env", cfg.Server.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	pool.LogStats(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
