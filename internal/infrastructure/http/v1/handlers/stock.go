package handlers

import (
	"github.com/gin-gonic/gin"

	"coopsync/internal/domain/ledger"
	"coopsync/internal/infrastructure/http/v1/dto"
)

// StockHandler exposes the ledger read side and the admin backfill.
type StockHandler struct {
	*BaseHandler
	ledger *ledger.Service
}

func NewStockHandler(base *BaseHandler, ledger *ledger.Service) *StockHandler {
	return &StockHandler{BaseHandler: base, ledger: ledger}
}

// Get returns a product's derived stock.
// GET /api/v1/stock/:productId
func (h *StockHandler) Get(c *gin.Context) {
	pid, ok := h.ProductID(c)
	if !ok {
		return
	}

	stock, err := h.ledger.CurrentStock(c.Request.Context(), pid)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.StockResponse{ProductID: pid, Stock: stock})
}

// Movements returns a product's ledger history.
// GET /api/v1/stock/:productId/movements?source_type=&since=&limit=
func (h *StockHandler) Movements(c *gin.Context) {
	pid, ok := h.ProductID(c)
	if !ok {
		return
	}

	var q dto.MovementsQuery
	if !h.BindQuery(c, &q) {
		return
	}

	items, err := h.ledger.History(c.Request.Context(), pid, q.Filter())
	if err != nil {
		h.Error(c, err)
		return
	}
	if items == nil {
		items = []ledger.Movement{}
	}
	h.OK(c, dto.MovementsResponse{ProductID: pid, Items: items})
}

// Backfill seeds baseline movements for products that have none.
// POST /api/v1/admin/backfill
func (h *StockHandler) Backfill(c *gin.Context) {
	result, err := h.ledger.Backfill(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}
