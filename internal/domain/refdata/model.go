// Package refdata provides the reference collections terminals mirror:
// first-run bootstrap of the central store and the periodic pull.
package refdata

import (
	"time"

	"coopsync/internal/core/types"
)

type Category struct {
	ID       int64  `db:"id" json:"id" validate:"gt=0"`
	Name     string `db:"name" json:"name" validate:"required,max=200"`
	ParentID *int64 `db:"parent_id" json:"parent_id,omitempty"`
}

type Unit struct {
	ID     int64  `db:"id" json:"id" validate:"gt=0"`
	Name   string `db:"name" json:"name" validate:"required,max=100"`
	Symbol string `db:"symbol" json:"symbol" validate:"max=20"`
}

type Supplier struct {
	ID      int64  `db:"id" json:"id" validate:"gt=0"`
	Name    string `db:"name" json:"name" validate:"required,max=200"`
	Contact string `db:"contact" json:"contact"`
	Phone   string `db:"phone" json:"phone"`
	Email   string `db:"email" json:"email" validate:"omitempty,email"`
}

type PaymentMode struct {
	ID     int64  `db:"id" json:"id" validate:"gt=0"`
	Name   string `db:"name" json:"name" validate:"required,max=100"`
	Active bool   `db:"active" json:"active"`
}

type Member struct {
	ID     int64  `db:"id" json:"id" validate:"gt=0"`
	Name   string `db:"name" json:"name" validate:"required,max=200"`
	Email  string `db:"email" json:"email" validate:"omitempty,email"`
	Active bool   `db:"active" json:"active"`
}

type Product struct {
	ID            int64          `db:"id" json:"id" validate:"gt=0"`
	Name          string         `db:"name" json:"name" validate:"required,max=200"`
	Barcode       *string        `db:"barcode" json:"barcode,omitempty"`
	CategoryID    *int64         `db:"category_id" json:"category_id,omitempty"`
	UnitID        *int64         `db:"unit_id" json:"unit_id,omitempty"`
	SupplierID    *int64         `db:"supplier_id" json:"supplier_id,omitempty"`
	Price         types.Money    `db:"price" json:"price"`
	PurchasePrice types.Money    `db:"purchase_price" json:"purchase_price"`
	BaseStock     types.Quantity `db:"base_stock" json:"base_stock"`
	Active        bool           `db:"active" json:"active"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// ProductWithStock is a product with its ledger-derived stock.
type ProductWithStock struct {
	Product
	Stock types.Quantity `db:"stock" json:"stock"`
}

// Collections is the bootstrap input, in dependency order.
type Collections struct {
	Categories   []Category    `json:"categories" validate:"dive"`
	Units        []Unit        `json:"units" validate:"dive"`
	Suppliers    []Supplier    `json:"suppliers" validate:"dive"`
	PaymentModes []PaymentMode `json:"payment_modes" validate:"dive"`
	Members      []Member      `json:"members" validate:"dive"`
	Products     []Product     `json:"products" validate:"dive"`
}

// Snapshot is the pull response.
type Snapshot struct {
	Categories   []Category         `json:"categories"`
	Units        []Unit             `json:"units"`
	Suppliers    []Supplier         `json:"suppliers"`
	PaymentModes []PaymentMode      `json:"payment_modes"`
	Members      []Member           `json:"members"`
	Products     []ProductWithStock `json:"products"`
	GeneratedAt  time.Time          `json:"generated_at"`
}

// Counts reports rows upserted per collection.
type Counts map[string]int

const (
	CollectionCategories   = "categories"
	CollectionUnits        = "units"
	CollectionSuppliers    = "suppliers"
	CollectionPaymentModes = "payment_modes"
	CollectionMembers      = "members"
	CollectionProducts     = "products"
)
