package catalog_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"coopsync/internal/domain/refdata"
	"coopsync/internal/infrastructure/storage/postgres"
)

const (
	categoriesTable   = "categories"
	unitsTable        = "units"
	suppliersTable    = "suppliers"
	paymentModesTable = "payment_modes"
	membersTable      = "members"
	productsTable     = "products"
)

// sequenced lists the tables whose BIGSERIAL must follow imported ids.
var sequenced = []string{
	categoriesTable, unitsTable, suppliersTable,
	paymentModesTable, membersTable, productsTable,
}

var _ refdata.Repository = (*RefDataRepo)(nil)

// RefDataRepo implements refdata.Repository.
type RefDataRepo struct {
	baseRepo
}

func NewRefDataRepo(txm *postgres.TxManager) *RefDataRepo {
	return &RefDataRepo{baseRepo: newBaseRepo(txm)}
}

func (r *RefDataRepo) CountProducts(ctx context.Context) (int64, error) {
	var n int64
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}

func (r *RefDataRepo) UpsertCategories(ctx context.Context, rows []refdata.Category) (int, error) {
	return upsertRows(ctx, r.baseRepo, categoriesTable, rows)
}

func (r *RefDataRepo) UpsertUnits(ctx context.Context, rows []refdata.Unit) (int, error) {
	return upsertRows(ctx, r.baseRepo, unitsTable, rows)
}

func (r *RefDataRepo) UpsertSuppliers(ctx context.Context, rows []refdata.Supplier) (int, error) {
	return upsertRows(ctx, r.baseRepo, suppliersTable, rows)
}

func (r *RefDataRepo) UpsertPaymentModes(ctx context.Context, rows []refdata.PaymentMode) (int, error) {
	return upsertRows(ctx, r.baseRepo, paymentModesTable, rows)
}

func (r *RefDataRepo) UpsertMembers(ctx context.Context, rows []refdata.Member) (int, error) {
	return upsertRows(ctx, r.baseRepo, membersTable, rows)
}

func (r *RefDataRepo) UpsertProducts(ctx context.Context, rows []refdata.Product) (int, error) {
	now := time.Now().UTC()
	for i := range rows {
		if rows[i].UpdatedAt.IsZero() {
			rows[i].UpdatedAt = now
		}
	}
	return upsertRows(ctx, r.baseRepo, productsTable, rows)
}

// RealignSequences moves every serial past the ids bootstrap inserted, in one round trip.
func (r *RefDataRepo) RealignSequences(ctx context.Context) error {
	stmts := make([]squirrel.Sqlizer, 0, len(sequenced))
	for _, table := range sequenced {
		stmts = append(stmts, realignSequence(table))
	}
	if _, err := postgres.ExecBatch(ctx, r.txm.GetQuerier(ctx), stmts); err != nil {
		return fmt.Errorf("realign sequences: %w", err)
	}
	return nil
}

// realignSequence makes the next id MAX(id)+1, or 1 on an empty table.
func realignSequence(table string) squirrel.Sqlizer {
	return squirrel.Expr(fmt.Sprintf(
		`SELECT setval(pg_get_serial_sequence('%[1]s', 'id'), COALESCE((SELECT MAX(id) FROM %[1]s), 0) + 1, false)`,
		table,
	))
}

func (r *RefDataRepo) ListCategories(ctx context.Context) ([]refdata.Category, error) {
	return listAll[refdata.Category](ctx, r.baseRepo, categoriesTable)
}

func (r *RefDataRepo) ListUnits(ctx context.Context) ([]refdata.Unit, error) {
	return listAll[refdata.Unit](ctx, r.baseRepo, unitsTable)
}

func (r *RefDataRepo) ListSuppliers(ctx context.Context) ([]refdata.Supplier, error) {
	return listAll[refdata.Supplier](ctx, r.baseRepo, suppliersTable)
}

func (r *RefDataRepo) ListPaymentModes(ctx context.Context) ([]refdata.PaymentMode, error) {
	return listAll[refdata.PaymentMode](ctx, r.baseRepo, paymentModesTable)
}

func (r *RefDataRepo) ListMembers(ctx context.Context) ([]refdata.Member, error) {
	return listAll[refdata.Member](ctx, r.baseRepo, membersTable)
}

// ListProductsWithStock returns every product with its ledger-derived stock.
func (r *RefDataRepo) ListProductsWithStock(ctx context.Context) ([]refdata.ProductWithStock, error) {
	var out []refdata.ProductWithStock
	err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, `
		SELECT p.id, p.name, p.barcode, p.category_id, p.unit_id, p.supplier_id,
		       p.price, p.purchase_price, p.base_stock, p.active, p.updated_at,
		       COALESCE(m.total, p.base_stock) AS stock
		FROM products p
		LEFT JOIN (
			SELECT product_id, SUM(qty_change)::BIGINT AS total
			FROM stock_movements
			GROUP BY product_id
		) m ON m.product_id = p.id
		ORDER BY p.id
	`)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	return out, nil
}

func listAll[T any](ctx context.Context, r baseRepo, table string) ([]T, error) {
	sql, args, err := r.builder.Select(postgres.ExtractDBColumns[T]()...).
		From(table).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out []T
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	return out, nil
}
