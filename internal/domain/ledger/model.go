// Package ledger provides the append-only stock ledger.
// Current stock is never stored: it is derived as the sum of a product's
// movements, or the product's static base value while it has none.
package ledger

import (
	"strconv"
	"time"

	"coopsync/internal/core/types"
)

// SourceType identifies what produced a movement.
// Together with SourceID it forms the movement's idempotency key.
type SourceType string

const (
	SourceSaleLine          SourceType = "sale_line"
	SourceReceptionLine     SourceType = "reception_line"
	SourceInventoryAdjust   SourceType = "inventory_adjust"
	SourceStockSet          SourceType = "stock_set"
	SourceInventoryFinalize SourceType = "inventory_finalize"
	SourceBootstrap         SourceType = "bootstrap"
)

// Movement is one signed stock change. Rows are never updated or deleted.
type Movement struct {
	ID         int64          `db:"id" json:"id"`
	ProductID  int64          `db:"product_id" json:"product_id"`
	SourceType SourceType     `db:"source_type" json:"source_type"`
	SourceID   string         `db:"source_id" json:"source_id"`
	QtyChange  types.Quantity `db:"qty_change" json:"qty_change"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// Key returns the movement's idempotency key in "<source_type>:<source_id>" form.
func (m Movement) Key() string {
	return string(m.SourceType) + ":" + m.SourceID
}

// BaselineSourceID is the source id of a product's bootstrap movement.
func BaselineSourceID(productID int64) string {
	return strconv.FormatInt(productID, 10)
}

// StockLevel is a product's derived stock plus what an inventory snapshot needs.
type StockLevel struct {
	ProductID  int64          `db:"product_id" json:"product_id"`
	Name       string         `db:"name" json:"name"`
	UnitCost   types.Money    `db:"unit_cost" json:"unit_cost"`
	Active     bool           `db:"active" json:"active"`
	Stock      types.Quantity `db:"stock" json:"stock"`
	FromLedger bool           `db:"from_ledger" json:"from_ledger"`
}

// ProductBase is a product that has no movement yet, with its static base value.
type ProductBase struct {
	ProductID int64          `db:"product_id"`
	BaseStock types.Quantity `db:"base_stock"`
}

// MovementFilter narrows a movement history query.
type MovementFilter struct {
	SourceType SourceType
	Since      *time.Time
	Limit      int
}

// BackfillResult reports what a backfill run did.
type BackfillResult struct {
	Candidates int `json:"candidates"`
	Seeded     int `json:"seeded"`
}
