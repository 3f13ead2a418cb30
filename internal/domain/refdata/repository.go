package refdata

import "context"

// Repository stores the reference collections.
// Upserts insert or overwrite rows by id.
type Repository interface {
	CountProducts(ctx context.Context) (int64, error)

	UpsertCategories(ctx context.Context, rows []Category) (int, error)
	UpsertUnits(ctx context.Context, rows []Unit) (int, error)
	UpsertSuppliers(ctx context.Context, rows []Supplier) (int, error)
	UpsertPaymentModes(ctx context.Context, rows []PaymentMode) (int, error)
	UpsertMembers(ctx context.Context, rows []Member) (int, error)
	UpsertProducts(ctx context.Context, rows []Product) (int, error)

	// RealignSequences moves every id sequence past the highest stored id.
	RealignSequences(ctx context.Context) error

	ListCategories(ctx context.Context) ([]Category, error)
	ListUnits(ctx context.Context) ([]Unit, error)
	ListSuppliers(ctx context.Context) ([]Supplier, error)
	ListPaymentModes(ctx context.Context) ([]PaymentMode, error)
	ListMembers(ctx context.Context) ([]Member, error)
	ListProductsWithStock(ctx context.Context) ([]ProductWithStock, error)
}
