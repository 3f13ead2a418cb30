package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"coopsync/internal/config"
)

// Pinger is satisfied by *postgres.Pool and cache.Health.
type Pinger interface {
	Ping(ctx context.Context) error
}

const readyCheckTimeout = 2 * time.Second

// HealthHandler serves the probes. Readiness pings every dependency; Redis
// is only checked when the server was started with it.
type HealthHandler struct {
	deps     map[string]Pinger
	order    []string
	features config.Features
}

func NewHealthHandler(db Pinger, redis Pinger, features config.Features) *HealthHandler {
	h := &HealthHandler{deps: map[string]Pinger{}, features: features}
	h.add("database", db)
	h.add("redis", redis)
	return h
}

func (h *HealthHandler) add(name string, p Pinger) {
	if p == nil {
		return
	}
	h.deps[name] = p
	h.order = append(h.order, name)
}

// Live: GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready: GET /health/ready. 503 when any dependency fails its ping.
func (h *HealthHandler) Ready(c *gin.Context) {
	status, code := "ok", http.StatusOK
	checks := make(map[string]string, len(h.order))

	for _, name := range h.order {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readyCheckTimeout)
		err := h.deps[name].Ping(ctx)
		cancel()
		if err != nil {
			checks[name] = "unhealthy: " + err.Error()
			status, code = "error", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "healthy"
	}

	c.JSON(code, gin.H{"status": status, "checks": checks})
}

// Info: GET /health/info, the operation families this server accepts.
func (h *HealthHandler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"app":   "coopsync",
		"redis": h.deps["redis"] != nil,
		"features": gin.H{
			"sales":           h.features.Sales,
			"receptions":      h.features.Receptions,
			"stock_adjust":    h.features.StockAdjust,
			"product_updates": h.features.ProductUpdates,
			"inventory":       h.features.Inventory,
		},
	})
}
