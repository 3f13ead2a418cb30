package catalog_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"coopsync/internal/domain/operations"
	"coopsync/internal/infrastructure/storage/postgres"
)

var _ operations.CatalogRepository = (*CatalogRepo)(nil)

// CatalogRepo implements operations.CatalogRepository.
type CatalogRepo struct {
	baseRepo
}

func NewCatalogRepo(txm *postgres.TxManager) *CatalogRepo {
	return &CatalogRepo{baseRepo: newBaseRepo(txm)}
}

func (r *CatalogRepo) PaymentModeExists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, paymentModesTable, id)
}

func (r *CatalogRepo) MemberExists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, membersTable, id)
}

func (r *CatalogRepo) SupplierExists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, suppliersTable, id)
}

// UpdateProduct writes only the patched columns and bumps updated_at.
func (r *CatalogRepo) UpdateProduct(ctx context.Context, id int64, patch operations.ProductPatch) (bool, error) {
	set := productPatchMap(patch)
	set["updated_at"] = time.Now().UTC()

	sql, args, err := r.builder.Update(productsTable).
		SetMap(set).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("update product: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func productPatchMap(p operations.ProductPatch) map[string]any {
	m := make(map[string]any, 9)
	if p.Name != nil {
		m["name"] = *p.Name
	}
	if p.Barcode != nil {
		m["barcode"] = *p.Barcode
	}
	if p.Price != nil {
		m["price"] = *p.Price
	}
	if p.PurchasePrice != nil {
		m["purchase_price"] = *p.PurchasePrice
	}
	if p.CategoryID != nil {
		m["category_id"] = *p.CategoryID
	}
	if p.UnitID != nil {
		m["unit_id"] = *p.UnitID
	}
	if p.SupplierID != nil {
		m["supplier_id"] = *p.SupplierID
	}
	if p.Active != nil {
		m["active"] = *p.Active
	}
	return m
}
