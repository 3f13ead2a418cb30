// Package main runs the till-side agent: local operation log, background
// sync with the central server and the local API for the till UI.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"coopsync/internal/config"
	"coopsync/internal/terminal/agent"
	"coopsync/internal/terminal/client"
	"coopsync/internal/terminal/oplog"
	"coopsync/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ValidateTerminal(); err != nil {
		fmt.Printf("invalid config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Server.LogLevel,
		Development: !cfg.IsProduction(),
		Service:     "coopsync-terminal",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()

	opLog, err := oplog.Open(cfg.Terminal.DataDir)
	if err != nil {
		log.Fatalw("failed to open operation log", "dir", cfg.Terminal.DataDir, "error", err)
	}
	defer func() {
		if err := opLog.Close(); err != nil {
			log.Errorw("failed to close operation log", "error", err)
		}
	}()

	a := agent.New(opLog, client.New(cfg.Terminal), cfg.Terminal)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	server := &http.Server{
		Addr:         cfg.Terminal.LocalAddr,
		Handler:      agent.NewRouter(a, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = a.Run(ctx)
	}()

	go func() {
		log.Infow("local api starting", "addr", cfg.Terminal.LocalAddr, "device_id", cfg.Terminal.DeviceID)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("local api failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down terminal...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("local api forced to shutdown", "error", err)
	}

	cancel()
	wg.Wait()
	log.Info("terminal stopped")
}
