// Package main seeds opening stock movements for products whose ledger is
// still empty. Safe to run repeatedly.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"coopsync/internal/config"
	"coopsync/internal/core/lock"
	"coopsync/internal/domain/ledger"
	"coopsync/internal/infrastructure/cache"
	"coopsync/internal/infrastructure/storage/postgres"
	"coopsync/internal/infrastructure/storage/postgres/register_repo"
	"coopsync/pkg/logger"
)

func main() {
	timeout := flag.Duration("timeout", 10*time.Minute, "overall timeout")
	flag.Parse()

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
		Service:     "coopsync-backfill",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(logger.WithLogger(context.Background(), log), *timeout)
	defer cancel()

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.Database, "coopsync-backfill"))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	if cfg.Database.MigrateOnStart {
		if err := postgres.Migrate(ctx, pool); err != nil {
			log.Fatalw("failed to apply migrations", "error", err)
		}
	}

	// The server may run a backfill at the same time; share its lock when Redis is there.
	var locker lock.Locker = lock.NewLocal()
	if cfg.Redis.URL != "" {
		client, err := cache.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			log.Fatalw("failed to connect to redis", "error", err)
		}
		defer client.Close()
		locker = cache.NewLocker(client, cfg.Redis.LockTTL)
	}

	txm := postgres.NewTxManager(pool, cfg.Database.StatementTimeout)
	service := ledger.NewService(register_repo.NewLedgerRepo(txm), txm, locker)

	result, err := service.Backfill(ctx)
	if err != nil {
		log.Fatalw("backfill failed", "error", err)
	}

	log.Infow("backfill complete",
		"candidates", result.Candidates,
		"seeded", result.Seeded,
	)
}
