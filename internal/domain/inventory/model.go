// Package inventory provides the inventory session state machine:
// start with a stock snapshot, additive counts from many devices, live
// summary, and a one-shot finalize that reconciles counts into the ledger.
package inventory

import (
	"time"

	"coopsync/internal/core/id"
	"coopsync/internal/core/types"
)

// Status is the session lifecycle state: open → finalizing → closed.
type Status string

const (
	StatusOpen       Status = "open"
	StatusFinalizing Status = "finalizing"
	StatusClosed     Status = "closed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusFinalizing, StatusClosed:
		return true
	}
	return false
}

type Session struct {
	ID          id.ID      `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	Status      Status     `db:"status" json:"status"`
	StartedBy   string     `db:"started_by" json:"started_by"`
	FinalizedBy *string    `db:"finalized_by" json:"finalized_by,omitempty"`
	Notes       string     `db:"notes" json:"notes"`
	StartedAt   time.Time  `db:"started_at" json:"started_at"`
	EndedAt     *time.Time `db:"ended_at" json:"ended_at,omitempty"`
}

// Snapshot is a product's derived stock and unit cost frozen at session start.
type Snapshot struct {
	SessionID  id.ID          `db:"session_id"`
	ProductID  int64          `db:"product_id"`
	StockStart types.Quantity `db:"stock_start"`
	UnitCost   types.Money    `db:"unit_cost"`
}

// Count is one device's running total for one product.
type Count struct {
	SessionID id.ID          `db:"session_id"`
	ProductID int64          `db:"product_id"`
	DeviceID  string         `db:"device_id"`
	Operator  string         `db:"operator"`
	Qty       types.Quantity `db:"qty"`
	UpdatedAt time.Time      `db:"updated_at"`
}

// Adjust is the per-product reconciliation written at finalize.
type Adjust struct {
	SessionID    id.ID          `db:"session_id"`
	ProductID    int64          `db:"product_id"`
	StockStart   types.Quantity `db:"stock_start"`
	CountedTotal types.Quantity `db:"counted_total"`
	Delta        types.Quantity `db:"delta"`
	UnitCost     types.Money    `db:"unit_cost"`
	DeltaValue   types.Money    `db:"delta_value"`
	CreatedAt    time.Time      `db:"created_at"`
}

// SummaryRow is a snapshot line joined with its aggregated counts.
type SummaryRow struct {
	ProductID    int64          `db:"product_id" json:"product_id"`
	ProductName  string         `db:"product_name" json:"product_name"`
	StockStart   types.Quantity `db:"stock_start" json:"stock_start"`
	UnitCost     types.Money    `db:"unit_cost" json:"unit_cost"`
	CountedTotal types.Quantity `db:"counted_total" json:"counted_total"`
	Devices      int            `db:"devices" json:"devices"`
	Counted      bool           `db:"counted" json:"counted"`
}

// SummaryLine is a SummaryRow with the delta finalize would apply.
// Uncounted lines count as zero.
type SummaryLine struct {
	SummaryRow
	Delta        types.Quantity `json:"delta"`
	DeltaValue   types.Money    `json:"delta_value"`
	CountedValue types.Money    `json:"counted_value"`
}

type KPIs struct {
	Lines         int            `json:"lines"`
	CountedLines  int            `json:"counted_lines"`
	ZeroLines     int            `json:"zero_lines"`
	NetDeltaQty   types.Quantity `json:"net_delta_qty"`
	GrossDeltaQty types.Quantity `json:"gross_delta_qty"`
	DeltaValue    types.Money    `json:"delta_value"`
	CountedValue  types.Money    `json:"counted_value"`
}

type Summary struct {
	Session *Session      `json:"session"`
	Lines   []SummaryLine `json:"lines"`
	KPIs    KPIs          `json:"kpis"`
}

type RecapStats struct {
	LinesProcessed        int            `json:"lines_processed"`
	NonzeroCountProducts  int            `json:"nonzero_count_products"`
	TotalInventoriedValue types.Money    `json:"total_inventoried_value"`
	AdjustedProducts      int            `json:"adjusted_products"`
	NetDeltaQty           types.Quantity `json:"net_delta_qty"`
	DeltaValue            types.Money    `json:"delta_value"`
}

type Recap struct {
	Session *Session   `json:"session"`
	Stats   RecapStats `json:"stats"`
}
