package operations

import (
	"context"

	"coopsync/internal/core/types"
	"coopsync/internal/domain/ledger"
)

// SaleRepository stores sales and sale lines.
type SaleRepository interface {
	// CreateSale inserts the sale unless one with the same id exists.
	CreateSale(ctx context.Context, sale *Sale) (bool, error)
	SaleExists(ctx context.Context, id string) (bool, error)
	// UpdateSaleDetails overwrites the secondary fields of an existing sale.
	// Failures must not abort the caller's transaction.
	UpdateSaleDetails(ctx context.Context, id, cashier, note string) error
	// CreateSaleLine inserts the line unless one with the same key exists.
	CreateSaleLine(ctx context.Context, line *SaleLine) (bool, error)
}

// ReceptionRepository stores reception headers and lines.
type ReceptionRepository interface {
	// EnsureReception inserts the header unless it exists.
	EnsureReception(ctx context.Context, r *Reception) error
	// UpsertReceptionLine inserts the line or overwrites it by id.
	UpsertReceptionLine(ctx context.Context, line *ReceptionLine) error
}

// CatalogRepository is the slice of reference data the handlers read and write.
type CatalogRepository interface {
	PaymentModeExists(ctx context.Context, id int64) (bool, error)
	MemberExists(ctx context.Context, id int64) (bool, error)
	SupplierExists(ctx context.Context, id int64) (bool, error)
	// UpdateProduct applies a sparse patch; found is false for unknown products.
	UpdateProduct(ctx context.Context, id int64, patch ProductPatch) (bool, error)
}

// Ledger is the stock ledger as seen by the handlers. Satisfied by *ledger.Service.
type Ledger interface {
	CurrentStock(ctx context.Context, productID int64) (types.Quantity, error)
	InsertMovement(ctx context.Context, productID int64, sourceType ledger.SourceType, sourceID string, qtyChange types.Quantity) (bool, error)
	SetAbsolute(ctx context.Context, productID int64, sourceType ledger.SourceType, sourceID string, target types.Quantity) (types.Quantity, bool, error)
}
