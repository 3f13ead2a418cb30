package document_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"coopsync/internal/domain/operations"
	"coopsync/internal/infrastructure/storage/postgres"
)

const (
	salesTable     = "sales"
	saleLinesTable = "sale_lines"
)

var _ operations.SaleRepository = (*SalesRepo)(nil)

// SalesRepo implements operations.SaleRepository.
type SalesRepo struct {
	baseRepo
}

func NewSalesRepo(txm *postgres.TxManager) *SalesRepo {
	return &SalesRepo{baseRepo: newBaseRepo(txm)}
}

func (r *SalesRepo) CreateSale(ctx context.Context, sale *operations.Sale) (bool, error) {
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	return r.insert(ctx, salesTable, sale, "ON CONFLICT (id) DO NOTHING")
}

func (r *SalesRepo) SaleExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, salesTable, squirrel.Eq{"id": id})
}

// UpdateSaleDetails runs under a savepoint so a failure leaves the
// surrounding batch usable.
func (r *SalesRepo) UpdateSaleDetails(ctx context.Context, id, cashier, note string) error {
	sql, args, err := r.builder.Update(salesTable).
		Set("cashier", cashier).
		Set("note", note).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	return r.txm.Savepoint(ctx, func(ctx context.Context) error {
		if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("update sale details: %w", err)
		}
		return nil
	})
}

func (r *SalesRepo) CreateSaleLine(ctx context.Context, line *operations.SaleLine) (bool, error) {
	if line.CreatedAt.IsZero() {
		line.CreatedAt = time.Now().UTC()
	}
	return r.insert(ctx, saleLinesTable, line, "ON CONFLICT (id) DO NOTHING")
}
