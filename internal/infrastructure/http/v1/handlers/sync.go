package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"coopsync/internal/core/apperror"
	"coopsync/internal/domain/opsync"
	"coopsync/internal/domain/refdata"
	"coopsync/internal/infrastructure/http/v1/dto"
	"coopsync/pkg/zstdjson"
)

// SyncHandler serves push, pull and bootstrap.
type SyncHandler struct {
	*BaseHandler
	push *opsync.Service
	refs *refdata.Service
}

func NewSyncHandler(base *BaseHandler, push *opsync.Service, refs *refdata.Service) *SyncHandler {
	return &SyncHandler{BaseHandler: base, push: push, refs: refs}
}

// Push applies a batch of operations.
// POST /api/v1/sync/push
func (h *SyncHandler) Push(c *gin.Context) {
	var req dto.PushRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.push.Push(c.Request.Context(), h.DeviceID(c, req.DeviceID), req.ToSubmitted(time.Now().UTC()))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// PullRefs returns every reference collection; zstd when the client accepts it.
// GET /api/v1/sync/refs
func (h *SyncHandler) PullRefs(c *gin.Context) {
	snapshot, err := h.refs.Pull(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}

	if !zstdjson.Accepts(c.GetHeader("Accept-Encoding")) {
		c.JSON(http.StatusOK, snapshot)
		return
	}

	body, err := zstdjson.Marshal(snapshot)
	if err != nil {
		h.Error(c, apperror.NewInternal(err))
		return
	}
	c.Header("Content-Encoding", zstdjson.Encoding)
	c.Header("Vary", "Accept-Encoding")
	c.Data(http.StatusOK, "application/json", body)
}

// BootstrapStatus reports whether the central store is empty.
// GET /api/v1/sync/bootstrap
func (h *SyncHandler) BootstrapStatus(c *gin.Context) {
	needed, err := h.refs.BootstrapNeeded(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.BootstrapStatusResponse{Needed: needed})
}

// Bootstrap seeds the reference collections.
// POST /api/v1/sync/bootstrap
func (h *SyncHandler) Bootstrap(c *gin.Context) {
	var req refdata.Collections
	if !h.BindJSON(c, &req) {
		return
	}

	counts, err := h.refs.Bootstrap(c.Request.Context(), &req)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.BootstrapResponse{Counts: counts})
}
