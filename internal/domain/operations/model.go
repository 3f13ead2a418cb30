package operations

import (
	"time"

	"coopsync/internal/core/types"
)

// Sale is a sale header written by sale.created.
type Sale struct {
	ID            string      `db:"id" json:"id"`
	Total         types.Money `db:"total" json:"total"`
	PaymentModeID *int64      `db:"payment_mode_id" json:"payment_mode_id,omitempty"`
	MemberID      *int64      `db:"member_id" json:"member_id,omitempty"`
	PayerName     string      `db:"payer_name" json:"payer_name"`
	Cashier       string      `db:"cashier" json:"cashier"`
	Note          string      `db:"note" json:"note"`
	DeviceID      string      `db:"device_id" json:"device_id"`
	SoldAt        time.Time   `db:"sold_at" json:"sold_at"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
}

// SaleLine is keyed by its idempotency key: the client line id, or the
// composite sale:product:qty:price when the client sent none.
type SaleLine struct {
	ID            string         `db:"id" json:"id"`
	SaleID        string         `db:"sale_id" json:"sale_id"`
	ProductID     int64          `db:"product_id" json:"product_id"`
	Qty           types.Quantity `db:"qty" json:"qty"`
	Price         types.Money    `db:"price" json:"price"`
	OriginalPrice *types.Money   `db:"original_price" json:"original_price,omitempty"`
	Discount      types.Money    `db:"discount" json:"discount"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}

type Reception struct {
	ID         string    `db:"id" json:"id"`
	SupplierID *int64    `db:"supplier_id" json:"supplier_id,omitempty"`
	DeviceID   string    `db:"device_id" json:"device_id"`
	ReceivedAt time.Time `db:"received_at" json:"received_at"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

type ReceptionLine struct {
	ID             string          `db:"id" json:"id"`
	ReceptionID    string          `db:"reception_id" json:"reception_id"`
	ProductID      int64           `db:"product_id" json:"product_id"`
	Qty            types.Quantity  `db:"qty" json:"qty"`
	PurchasePrice  *types.Money    `db:"purchase_price" json:"purchase_price,omitempty"`
	CorrectedStock *types.Quantity `db:"corrected_stock" json:"corrected_stock,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// ProductPatch carries only the product fields to overwrite; nil means untouched.
type ProductPatch struct {
	Name          *string
	Barcode       *string
	Price         *types.Money
	PurchasePrice *types.Money
	CategoryID    *int64
	UnitID        *int64
	SupplierID    *int64
	Active        *bool
}

func (p ProductPatch) IsEmpty() bool {
	return p.Name == nil && p.Barcode == nil && p.Price == nil && p.PurchasePrice == nil &&
		p.CategoryID == nil && p.UnitID == nil && p.SupplierID == nil && p.Active == nil
}
