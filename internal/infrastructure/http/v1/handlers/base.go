// Package handlers provides HTTP request handlers.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"coopsync/internal/core/apperror"
	appctx "coopsync/internal/core/context"
	"coopsync/internal/core/id"
	"coopsync/internal/infrastructure/http/v1/dto"
	"coopsync/internal/infrastructure/http/v1/middleware"
)

// BaseHandler holds the request helpers every handler embeds. Failures are
// attached with c.Error and rendered by middleware.ErrorHandler.
type BaseHandler struct{}

func NewBaseHandler() *BaseHandler { return &BaseHandler{} }

// BindJSON decodes and validates the body; false means the request is done.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.Error(c, apperror.FromValidator("invalid request body", err))
		return false
	}
	return true
}

// BindQuery is BindJSON for the query string.
func (h *BaseHandler) BindQuery(c *gin.Context, obj any) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		h.Error(c, apperror.FromValidator("invalid query", err))
		return false
	}
	return true
}

func (h *BaseHandler) Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// SessionID parses the :id path parameter.
func (h *BaseHandler) SessionID(c *gin.Context) (id.ID, bool) {
	sid, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid session id").WithDetail("id", c.Param("id")))
		return id.Nil(), false
	}
	return sid, true
}

// ProductID parses the :productId path parameter.
func (h *BaseHandler) ProductID(c *gin.Context) (int64, bool) {
	pid, err := strconv.ParseInt(c.Param("productId"), 10, 64)
	if err != nil || pid <= 0 {
		h.Error(c, apperror.NewValidation("invalid product id").WithDetail("product_id", c.Param("productId")))
		return 0, false
	}
	return pid, true
}

// DeviceID returns the body value, else the X-Device-ID header.
func (h *BaseHandler) DeviceID(c *gin.Context, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return appctx.GetDeviceID(c.Request.Context())
}

// Operator returns the body value, else the X-Operator header.
func (h *BaseHandler) Operator(c *gin.Context, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	if d := appctx.GetDevice(c.Request.Context()); d != nil {
		return d.Operator
	}
	return ""
}

// OK sends 200 response with data.
func (h *BaseHandler) OK(c *gin.Context, data any) {
	middleware.CompleteIdempotency(c, http.StatusOK, "application/json", data)
	c.JSON(http.StatusOK, data)
}

// Created sends 201 response with data.
func (h *BaseHandler) Created(c *gin.Context, data any) {
	middleware.CompleteIdempotency(c, http.StatusCreated, "application/json", data)
	c.JSON(http.StatusCreated, data)
}

// Ack sends {"ok": true}.
func (h *BaseHandler) Ack(c *gin.Context) {
	h.OK(c, dto.OKResponse{OK: true})
}
