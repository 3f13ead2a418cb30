// Package document_repo provides the PostgreSQL store for sale and reception documents.
package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"

	"coopsync/internal/infrastructure/storage/postgres"
)

type baseRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

func newBaseRepo(txm *postgres.TxManager) baseRepo {
	return baseRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// insert writes every db-tagged field of row; suffix carries the conflict clause.
// Reports whether a row was written.
func (r baseRepo) insert(ctx context.Context, table string, row any, suffix string) (bool, error) {
	data := postgres.StructToMap(row)
	if len(data) == 0 {
		return false, fmt.Errorf("no db tags found in %T", row)
	}

	q := r.builder.Insert(table).SetMap(data)
	if suffix != "" {
		q = q.Suffix(suffix)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("insert %s: %w", table, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r baseRepo) exists(ctx context.Context, table string, where squirrel.Sqlizer) (bool, error) {
	sql, args, err := r.builder.Select("1").From(table).Where(where).Prefix("SELECT EXISTS (").Suffix(")").ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var ok bool
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&ok); err != nil {
		return false, fmt.Errorf("check %s: %w", table, err)
	}
	return ok, nil
}
