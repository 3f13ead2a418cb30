package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
)

// ErrNoTransaction is returned by helpers that must join a caller's transaction.
var ErrNoTransaction = errors.New("postgres: no transaction in context")

// CopyRows streams rows into table with COPY. COPY has no ON CONFLICT, so it
// is only used for rows that cannot exist yet, inside the caller's transaction.
func CopyRows[T any](ctx context.Context, txm *TxManager, table string, columns []string, rows []T) (int64, error) {
	tx := txm.GetTx(ctx)
	if tx == nil {
		return 0, fmt.Errorf("copy into %s: %w", table, ErrNoTransaction)
	}
	src := pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		return RowValues(rows[i], columns), nil
	})
	return tx.CopyFrom(ctx, pgx.Identifier{table}, columns, src)
}

// ExecBatch sends every statement in one round trip and returns the rows
// affected by each, in order.
func ExecBatch(ctx context.Context, q Querier, stmts []squirrel.Sqlizer) ([]int64, error) {
	if len(stmts) == 0 {
		return nil, nil
	}

	batch := &pgx.Batch{}
	for i, st := range stmts {
		sql, args, err := st.ToSql()
		if err != nil {
			return nil, fmt.Errorf("build batch statement %d: %w", i, err)
		}
		batch.Queue(sql, args...)
	}

	results := q.SendBatch(ctx, batch)
	affected := make([]int64, len(stmts))
	for i := range stmts {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return nil, fmt.Errorf("batch statement %d: %w", i, err)
		}
		affected[i] = tag.RowsAffected()
	}
	return affected, results.Close()
}
