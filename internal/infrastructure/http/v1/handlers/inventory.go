package handlers

import (
	"github.com/gin-gonic/gin"

	"coopsync/internal/core/apperror"
	"coopsync/internal/domain/inventory"
	"coopsync/internal/infrastructure/http/v1/dto"
)

// InventoryHandler handles HTTP requests for inventory sessions.
type InventoryHandler struct {
	*BaseHandler
	service *inventory.Service
}

func NewInventoryHandler(base *BaseHandler, service *inventory.Service) *InventoryHandler {
	return &InventoryHandler{BaseHandler: base, service: service}
}

// Start opens a session or returns the open one with the same name.
// POST /api/v1/inventory/sessions
func (h *InventoryHandler) Start(c *gin.Context) {
	var req dto.StartSessionRequest
	if !h.BindJSON(c, &req) {
		return
	}

	session, reused, err := h.service.Start(c.Request.Context(), req.Name, h.Operator(c, req.Operator), req.Notes)
	if err != nil {
		h.Error(c, err)
		return
	}

	resp := dto.StartSessionResponse{Session: session, Reused: reused}
	if reused {
		h.OK(c, resp)
		return
	}
	h.Created(c, resp)
}

// List returns sessions, newest first.
// GET /api/v1/inventory/sessions?status=
func (h *InventoryHandler) List(c *gin.Context) {
	var status *inventory.Status
	if raw := c.Query("status"); raw != "" {
		s := inventory.Status(raw)
		if !s.Valid() {
			h.Error(c, apperror.NewValidation("invalid status").WithDetail("status", raw))
			return
		}
		status = &s
	}

	sessions, err := h.service.List(c.Request.Context(), status)
	if err != nil {
		h.Error(c, err)
		return
	}
	if sessions == nil {
		sessions = []inventory.Session{}
	}
	h.OK(c, dto.ListResponse{Items: sessions})
}

// Get returns one session.
// GET /api/v1/inventory/sessions/:id
func (h *InventoryHandler) Get(c *gin.Context) {
	sid, ok := h.SessionID(c)
	if !ok {
		return
	}

	session, err := h.service.Get(c.Request.Context(), sid)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, session)
}

// Count adds a device's count for one product.
// POST /api/v1/inventory/sessions/:id/counts
func (h *InventoryHandler) Count(c *gin.Context) {
	sid, ok := h.SessionID(c)
	if !ok {
		return
	}

	var req dto.CountRequest
	if !h.BindJSON(c, &req) {
		return
	}

	err := h.service.CountAdd(c.Request.Context(), sid, req.ProductID, req.Qty,
		h.DeviceID(c, req.DeviceID), h.Operator(c, req.Operator))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Ack(c)
}

// Summary returns the live summary.
// GET /api/v1/inventory/sessions/:id/summary
func (h *InventoryHandler) Summary(c *gin.Context) {
	sid, ok := h.SessionID(c)
	if !ok {
		return
	}

	summary, err := h.service.Summary(c.Request.Context(), sid)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, summary)
}

// Finalize reconciles the counts into the ledger and closes the session.
// POST /api/v1/inventory/sessions/:id/finalize
func (h *InventoryHandler) Finalize(c *gin.Context) {
	sid, ok := h.SessionID(c)
	if !ok {
		return
	}

	var req dto.FinalizeRequest
	if c.Request.ContentLength != 0 && !h.BindJSON(c, &req) {
		return
	}

	recap, err := h.service.Finalize(c.Request.Context(), sid, h.Operator(c, req.Operator), req.NotifyAddress)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FinalizeResponse{Recap: recap})
}
