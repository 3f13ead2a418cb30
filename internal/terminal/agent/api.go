package agent

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"coopsync/internal/core/apperror"
	"coopsync/internal/infrastructure/http/v1/middleware"
	"coopsync/pkg/logger"
)

// EnqueueRequest is a UI action to record locally.
type EnqueueRequest struct {
	OpType     string          `json:"op_type" binding:"required"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Payload    json.RawMessage `json:"payload"`
}

type EnqueueResponse struct {
	ID string `json:"id"`
}

// NewRouter builds the local API the till UI talks to.
func NewRouter(a *Agent, log *logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.Trace())
	r.Use(middleware.Logger(log))
	r.Use(middleware.ErrorHandler())

	local := r.Group("/local")
	local.POST("/operations", a.handleEnqueue)
	local.GET("/status", a.handleStatus)
	local.GET("/refs", a.handleRefs)
	local.GET("/inventory/:id/summary", a.handleInventorySummary)

	return r
}

func (a *Agent) handleEnqueue(c *gin.Context) {
	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperror.NewValidation("invalid request body").WithCause(err))
		return
	}

	opID, err := a.Enqueue(c.Request.Context(), req.OpType, req.EntityType, req.EntityID, req.Payload)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, EnqueueResponse{ID: opID})
}

func (a *Agent) handleStatus(c *gin.Context) {
	status, err := a.Status(c.Request.Context())
	if err != nil {
		_ = c.Error(apperror.NewInternal(err))
		return
	}
	c.JSON(http.StatusOK, status)
}

func (a *Agent) handleRefs(c *gin.Context) {
	raw, savedAt, found, err := a.log.LoadRefs(c.Request.Context())
	if err != nil {
		_ = c.Error(apperror.NewInternal(err))
		return
	}
	if !found {
		_ = c.Error(apperror.NewNotFound("reference snapshot", "local"))
		return
	}
	c.Header("X-Refs-Saved-At", savedAt.Format(time.RFC3339))
	c.Data(http.StatusOK, "application/json", raw)
}

// handleInventorySummary proxies the central summary so counters can poll it.
func (a *Agent) handleInventorySummary(c *gin.Context) {
	raw, err := a.central.InventorySummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		if _, ok := apperror.AsAppError(err); ok {
			_ = c.Error(err)
			return
		}
		_ = c.Error(apperror.NewUnavailable("central server", err))
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}
