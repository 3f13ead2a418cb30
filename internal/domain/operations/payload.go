// Package operations decodes pushed operation payloads and applies them to
// sales, receptions, products and the stock ledger.
package operations

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"coopsync/internal/core/types"
)

// OpType names an operation kind.
type OpType string

const (
	OpProductUpdated     OpType = "product.updated"
	OpSaleCreated        OpType = "sale.created"
	OpSaleLineAdded      OpType = "sale.line_added"
	OpReceptionLineAdded OpType = "reception.line_added"
	OpInventoryAdjust    OpType = "inventory.adjust"
	OpStockSet           OpType = "stock.set"
)

// Payload is the decoded, validated body of an operation.
// Each op type has exactly one concrete variant.
type Payload interface {
	OpType() OpType
}

// Ref is a client-supplied identifier that may arrive as a JSON string or number.
type Ref string

func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = Ref(strings.TrimSpace(s))
		return nil
	}
	if _, err := strconv.ParseFloat(string(data), 64); err != nil {
		return fmt.Errorf("reference must be a string or a number, got %s", data)
	}
	*r = Ref(data)
	return nil
}

func (r Ref) String() string { return string(r) }

// SaleCreated opens a sale.
type SaleCreated struct {
	ID            Ref         `json:"id"`
	Total         types.Money `json:"total"`
	PaymentModeID *int64      `json:"modePaiementId"`
	MemberID      *int64      `json:"adherentId"`
	PayerName     string      `json:"nomPayeur" validate:"max=200"`
	Cashier       string      `json:"caissier" validate:"max=100"`
	Note          string      `json:"note" validate:"max=1000"`
	SoldAt        *time.Time  `json:"date"`
}

func (*SaleCreated) OpType() OpType { return OpSaleCreated }

// SaleLineAdded adds one line to a sale. SaleID may be empty when the line
// follows its sale.created in the same batch.
type SaleLineAdded struct {
	ID            Ref            `json:"id"`
	SaleID        Ref            `json:"venteId"`
	ProductID     int64          `json:"produitId" validate:"required,gt=0"`
	Qty           types.Quantity `json:"quantite" validate:"ne=0"`
	Price         types.Money    `json:"prix"`
	OriginalPrice *types.Money   `json:"prixOriginal"`
	Discount      types.Money    `json:"remise"`
}

func (*SaleLineAdded) OpType() OpType { return OpSaleLineAdded }

func (p *SaleLineAdded) Validate() error {
	if p.Price.IsNegative() {
		return fmt.Errorf("prix must not be negative")
	}
	return nil
}

// ReceptionLineAdded records goods received from a supplier.
// When CorrectedStock is set it is the absolute stock after reception.
type ReceptionLineAdded struct {
	ID             Ref             `json:"id" validate:"required"`
	ReceptionID    Ref             `json:"receptionId"`
	SupplierID     *int64          `json:"fournisseurId"`
	ProductID      int64           `json:"produitId" validate:"required,gt=0"`
	Qty            types.Quantity  `json:"quantite"`
	PurchasePrice  *types.Money    `json:"prixAchat"`
	CorrectedStock *types.Quantity `json:"stockCorrige"`
	UpdatePrice    bool            `json:"majPrix"`
	ReceivedAt     *time.Time      `json:"date"`
}

func (*ReceptionLineAdded) OpType() OpType { return OpReceptionLineAdded }

func (p *ReceptionLineAdded) Validate() error {
	if p.Qty == 0 && p.CorrectedStock == nil {
		return fmt.Errorf("quantite or stockCorrige is required")
	}
	if p.UpdatePrice && p.PurchasePrice == nil {
		return fmt.Errorf("majPrix requires prixAchat")
	}
	if p.PurchasePrice != nil && p.PurchasePrice.IsNegative() {
		return fmt.Errorf("prixAchat must not be negative")
	}
	return nil
}

// StockTarget sets a product's stock to an absolute value.
type StockTarget struct {
	ProductID int64          `json:"produitId" validate:"required,gt=0"`
	Stock     types.Quantity `json:"stock"`
	AdjustID  Ref            `json:"adjustId"`
	Reason    string         `json:"motif" validate:"max=500"`
}

// InventoryAdjust is a one-off correction entered on a terminal.
type InventoryAdjust struct {
	StockTarget
}

func (*InventoryAdjust) OpType() OpType { return OpInventoryAdjust }

// StockSet is a direct stock overwrite from product management.
type StockSet struct {
	StockTarget
}

func (*StockSet) OpType() OpType { return OpStockSet }

// ProductUpdated is a sparse product change: absent fields are left untouched.
type ProductUpdated struct {
	ProductID     int64        `json:"produitId" validate:"gte=0"`
	Name          *string      `json:"nom" validate:"omitempty,min=1,max=200"`
	Barcode       *string      `json:"codeBarre" validate:"omitempty,max=64"`
	Price         *types.Money `json:"prix"`
	PurchasePrice *types.Money `json:"prixAchat"`
	CategoryID    *int64       `json:"categorieId" validate:"omitempty,gt=0"`
	UnitID        *int64       `json:"uniteId" validate:"omitempty,gt=0"`
	SupplierID    *int64       `json:"fournisseurId" validate:"omitempty,gt=0"`
	Active        *bool        `json:"actif"`
}

func (*ProductUpdated) OpType() OpType { return OpProductUpdated }

func (p *ProductUpdated) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return fmt.Errorf("nom must not be blank")
	}
	if p.Price != nil && p.Price.IsNegative() {
		return fmt.Errorf("prix must not be negative")
	}
	if p.PurchasePrice != nil && p.PurchasePrice.IsNegative() {
		return fmt.Errorf("prixAchat must not be negative")
	}
	return nil
}

// Patch returns the fields present in the payload.
func (p *ProductUpdated) Patch() ProductPatch {
	return ProductPatch{
		Name:          p.Name,
		Barcode:       p.Barcode,
		Price:         p.Price,
		PurchasePrice: p.PurchasePrice,
		CategoryID:    p.CategoryID,
		UnitID:        p.UnitID,
		SupplierID:    p.SupplierID,
		Active:        p.Active,
	}
}
