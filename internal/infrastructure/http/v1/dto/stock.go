package dto

import (
	"time"

	"coopsync/internal/core/types"
	"coopsync/internal/domain/ledger"
)

type StockResponse struct {
	ProductID int64          `json:"product_id"`
	Stock     types.Quantity `json:"stock"`
}

type MovementsResponse struct {
	ProductID int64             `json:"product_id"`
	Items     []ledger.Movement `json:"items"`
}

// MovementsQuery is the query string of GET /stock/:productId/movements.
type MovementsQuery struct {
	SourceType ledger.SourceType `form:"source_type" binding:"omitempty,oneof=sale_line reception_line inventory_adjust stock_set inventory_finalize bootstrap"`
	Since      time.Time         `form:"since" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit      int               `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// Filter applies the default page size.
func (q MovementsQuery) Filter() ledger.MovementFilter {
	f := ledger.MovementFilter{SourceType: q.SourceType, Limit: q.Limit}
	if f.Limit == 0 {
		f.Limit = 100
	}
	if !q.Since.IsZero() {
		since := q.Since
		f.Since = &since
	}
	return f
}
