// Package register_repo provides the PostgreSQL stock ledger.
package register_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"coopsync/internal/core/types"
	"coopsync/internal/domain/ledger"
	"coopsync/internal/infrastructure/storage/postgres"
)

const (
	movementsTable = "stock_movements"
	productsTable  = "products"
)

var _ ledger.Repository = (*LedgerRepo)(nil)

// LedgerRepo implements ledger.Repository.
type LedgerRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewLedgerRepo creates a new ledger repository.
func NewLedgerRepo(txm *postgres.TxManager) *LedgerRepo {
	return &LedgerRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *LedgerRepo) insertQuery(m ledger.Movement) squirrel.InsertBuilder {
	return r.builder.Insert(movementsTable).
		Columns("product_id", "source_type", "source_id", "qty_change", "created_at").
		Values(m.ProductID, m.SourceType, m.SourceID, m.QtyChange, m.CreatedAt).
		Suffix("ON CONFLICT (source_type, source_id) DO NOTHING")
}

// InsertMovement appends a movement; a duplicate source key is a no-op.
func (r *LedgerRepo) InsertMovement(ctx context.Context, m ledger.Movement) (bool, error) {
	sql, args, err := r.insertQuery(m).ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("insert movement: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// InsertMovements appends ms in one round trip, skipping existing source keys.
func (r *LedgerRepo) InsertMovements(ctx context.Context, ms []ledger.Movement) ([]bool, error) {
	stmts := make([]squirrel.Sqlizer, len(ms))
	for i := range ms {
		stmts[i] = r.insertQuery(ms[i])
	}
	affected, err := postgres.ExecBatch(ctx, r.txm.GetQuerier(ctx), stmts)
	if err != nil {
		return nil, fmt.Errorf("insert movements: %w", err)
	}
	inserted := make([]bool, len(ms))
	for i, n := range affected {
		inserted[i] = n == 1
	}
	return inserted, nil
}

func (r *LedgerRepo) SumMovements(ctx context.Context, productID int64) (types.Quantity, int64, error) {
	var (
		sum   types.Quantity
		count int64
	)
	err := r.txm.GetQuerier(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(qty_change), 0)::BIGINT, COUNT(*)
		FROM stock_movements
		WHERE product_id = $1
	`, productID).Scan(&sum, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("sum movements: %w", err)
	}
	return sum, count, nil
}

func (r *LedgerRepo) BaseStock(ctx context.Context, productID int64) (types.Quantity, bool, error) {
	sql, args, err := r.builder.Select("base_stock").
		From(productsTable).
		Where(squirrel.Eq{"id": productID}).
		ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("build query: %w", err)
	}

	var base types.Quantity
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&base); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("get base stock: %w", err)
	}
	return base, true, nil
}

// StockLevels derives every product's stock in one pass over the ledger.
func (r *LedgerRepo) StockLevels(ctx context.Context) ([]ledger.StockLevel, error) {
	var levels []ledger.StockLevel
	err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &levels, `
		SELECT p.id AS product_id,
		       p.name,
		       p.price AS unit_cost,
		       p.active,
		       COALESCE(m.total, p.base_stock) AS stock,
		       m.total IS NOT NULL AS from_ledger
		FROM products p
		LEFT JOIN (
			SELECT product_id, SUM(qty_change)::BIGINT AS total
			FROM stock_movements
			GROUP BY product_id
		) m ON m.product_id = p.id
		ORDER BY p.id
	`)
	if err != nil {
		return nil, fmt.Errorf("select stock levels: %w", err)
	}
	return levels, nil
}

func (r *LedgerRepo) ListMovements(ctx context.Context, productID int64, f ledger.MovementFilter) ([]ledger.Movement, error) {
	q := r.builder.Select("id", "product_id", "source_type", "source_id", "qty_change", "created_at").
		From(movementsTable).
		Where(squirrel.Eq{"product_id": productID}).
		OrderBy("id")

	if f.SourceType != "" {
		q = q.Where(squirrel.Eq{"source_type": f.SourceType})
	}
	if f.Since != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *f.Since})
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []ledger.Movement
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}
	return movements, nil
}

func (r *LedgerRepo) ProductsWithoutMovements(ctx context.Context) ([]ledger.ProductBase, error) {
	var out []ledger.ProductBase
	err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, `
		SELECT p.id AS product_id, p.base_stock
		FROM products p
		WHERE NOT EXISTS (SELECT 1 FROM stock_movements m WHERE m.product_id = p.id)
		ORDER BY p.id
	`)
	if err != nil {
		return nil, fmt.Errorf("select untouched products: %w", err)
	}
	return out, nil
}
