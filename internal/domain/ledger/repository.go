package ledger

import (
	"context"

	"coopsync/internal/core/types"
)

// Repository defines storage operations for the stock ledger.
type Repository interface {
	// InsertMovement appends m unless a movement with the same
	// (source_type, source_id) exists. Never updates. Reports whether a row was written.
	InsertMovement(ctx context.Context, m Movement) (bool, error)

	// InsertMovements is InsertMovement for many rows at once; the result
	// is aligned with ms.
	InsertMovements(ctx context.Context, ms []Movement) ([]bool, error)

	// SumMovements returns Σ qty_change and the number of movements for a product.
	SumMovements(ctx context.Context, productID int64) (types.Quantity, int64, error)

	// BaseStock returns the product's static base value; found is false for unknown products.
	BaseStock(ctx context.Context, productID int64) (types.Quantity, bool, error)

	// StockLevels returns the derived stock of every product.
	StockLevels(ctx context.Context) ([]StockLevel, error)

	// ListMovements returns a product's movements, oldest first.
	ListMovements(ctx context.Context, productID int64, filter MovementFilter) ([]Movement, error)

	// ProductsWithoutMovements lists products whose stock has never been touched.
	ProductsWithoutMovements(ctx context.Context) ([]ProductBase, error)
}
