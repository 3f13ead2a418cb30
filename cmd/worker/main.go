// Package main is the entry point for the coopsync background worker: it
// relays queued notifications and prunes expired idempotency keys.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"coopsync/internal/config"
	"coopsync/internal/domain/notify"
	"coopsync/internal/infrastructure/mail"
	"coopsync/internal/infrastructure/storage/postgres"
	"coopsync/pkg/logger"
)

const (
	cleanupInterval  = time.Hour
	publishedRetains = 7 * 24 * time.Hour
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
		Service:     "coopsync-worker",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()

	log.Info("starting coopsync worker")

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.Database, "coopsync-worker"))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txm := postgres.NewTxManager(pool, cfg.Database.StatementTimeout)

	w := &Worker{
		idempotency: postgres.NewIdempotencyStore(txm, cfg.Worker.IdempotencyTTL),
		interval:    cfg.Worker.OutboxInterval,
		log:         log.WithComponent("worker"),
	}
	if sender := mail.NewSMTPSender(cfg.SMTP); sender != nil {
		w.relay = postgres.NewOutboxRelay(txm, cfg.Worker.OutboxBatchSize, notify.NewDispatcher(sender))
	} else {
		log.Warn("smtp not configured, outbox relay disabled")
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

// Worker runs the periodic background jobs.
type Worker struct {
	relay       *postgres.OutboxRelay // nil without SMTP
	idempotency *postgres.IdempotencyStore
	interval    time.Duration
	log         *logger.Logger
}

func (w *Worker) Run(ctx context.Context) {
	interval := w.interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	cleanupTicker := time.NewTicker(cleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processOutbox(ctx)
		case <-cleanupTicker.C:
			w.cleanupOutbox(ctx)
			w.cleanupIdempotency(ctx)
		}
	}
}

func (w *Worker) processOutbox(ctx context.Context) {
	if w.relay == nil {
		return
	}

	count, err := w.relay.ProcessBatch(ctx)
	if err != nil {
		w.log.Errorw("outbox batch failed", "error", err)
		return
	}
	if count > 0 {
		w.log.Debugw("processed outbox batch", "count", count)
	}
	if _, err := w.relay.Pending(ctx); err != nil {
		w.log.Warnw("failed to count pending outbox messages", "error", err)
	}

	parked, err := w.relay.MoveToDLQ(ctx)
	if err != nil {
		w.log.Errorw("failed to move messages to dead letter queue", "error", err)
		return
	}
	if parked > 0 {
		w.log.Warnw("outbox messages moved to dead letter queue", "count", parked)
	}
}

func (w *Worker) cleanupOutbox(ctx context.Context) {
	if w.relay == nil {
		return
	}
	removed, err := w.relay.CleanupPublished(ctx, publishedRetains)
	if err != nil {
		w.log.Errorw("failed to clean up published outbox messages", "error", err)
		return
	}
	if removed > 0 {
		w.log.Infow("cleaned up published outbox messages", "count", removed)
	}
}

func (w *Worker) cleanupIdempotency(ctx context.Context) {
	removed, err := w.idempotency.CleanupExpired(ctx)
	if err != nil {
		w.log.Errorw("failed to clean up idempotency keys", "error", err)
		return
	}
	if removed > 0 {
		w.log.Infow("cleaned up idempotency keys", "count", removed)
	}
}
