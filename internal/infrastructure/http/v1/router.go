// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"coopsync/internal/config"
	"coopsync/internal/domain/inventory"
	"coopsync/internal/domain/ledger"
	"coopsync/internal/domain/opsync"
	"coopsync/internal/domain/refdata"
	"coopsync/internal/infrastructure/http/v1/handlers"
	"coopsync/internal/infrastructure/http/v1/middleware"
	"coopsync/pkg/logger"
)

// RouterConfig holds the services the API is built from.
type RouterConfig struct {
	Logger   *logger.Logger
	DB       handlers.Pinger
	Redis    handlers.Pinger // nil when Redis is not configured
	Features config.Features

	Push      *opsync.Service
	RefData   *refdata.Service
	Ledger    *ledger.Service
	Inventory *inventory.Service // nil when the inventory feature is off

	// Idempotency is optional; nil disables X-Idempotency-Key handling.
	Idempotency middleware.IdempotencyStore
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Device())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis, cfg.Features)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Decompress())
	if cfg.Idempotency != nil {
		v1.Use(middleware.Idempotency(cfg.Idempotency))
	}

	base := handlers.NewBaseHandler()
	registerSyncRoutes(v1, base, cfg)
	registerStockRoutes(v1, base, cfg)
	if cfg.Features.Inventory && cfg.Inventory != nil {
		registerInventoryRoutes(v1, base, cfg)
	}

	return router
}

func registerSyncRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewSyncHandler(base, cfg.Push, cfg.RefData)

	sync := rg.Group("/sync")
	{
		sync.POST("/push", h.Push)
		sync.GET("/refs", h.PullRefs)
		sync.GET("/bootstrap", h.BootstrapStatus)
		sync.POST("/bootstrap", h.Bootstrap)
	}
}

func registerStockRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewStockHandler(base, cfg.Ledger)

	stock := rg.Group("/stock")
	{
		stock.GET("/:productId", h.Get)
		stock.GET("/:productId/movements", h.Movements)
	}
	rg.POST("/admin/backfill", h.Backfill)
}

func registerInventoryRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewInventoryHandler(base, cfg.Inventory)

	sessions := rg.Group("/inventory/sessions")
	{
		sessions.POST("", h.Start)
		sessions.GET("", h.List)
		sessions.GET("/:id", h.Get)
		sessions.POST("/:id/counts", h.Count)
		sessions.GET("/:id/summary", h.Summary)
		sessions.POST("/:id/finalize", h.Finalize)
	}
}
