// Package catalog_repo provides the PostgreSQL store for reference data.
package catalog_repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"

	"coopsync/internal/infrastructure/storage/postgres"
)

// upsertChunk keeps a statement under the 65535 bind parameter limit.
const upsertChunk = 1000

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

// upsertRows inserts rows by id, overwriting every other db-tagged column
// on conflict. Columns are taken from the struct's db tags.
func upsertRows[T any](ctx context.Context, r baseRepo, table string, rows []T) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	cols := postgres.ExtractDBColumns[T]()
	sets := make([]string, 0, len(cols))
	for _, c := range cols {
		if c != "id" {
			sets = append(sets, c+" = EXCLUDED."+c)
		}
	}
	suffix := "ON CONFLICT (id) DO UPDATE SET " + strings.Join(sets, ", ")

	total := 0
	for start := 0; start < len(rows); start += upsertChunk {
		end := min(start+upsertChunk, len(rows))

		q := r.builder.Insert(table).Columns(cols...).Suffix(suffix)
		for i := start; i < end; i++ {
			q = q.Values(postgres.RowValues(rows[i], cols)...)
		}

		sql, args, err := q.ToSql()
		if err != nil {
			return total, fmt.Errorf("build upsert: %w", err)
		}
		tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
		if err != nil {
			return total, fmt.Errorf("upsert %s: %w", table, err)
		}
		total += int(tag.RowsAffected())
	}
	return total, nil
}

func (r baseRepo) exists(ctx context.Context, table string, id int64) (bool, error) {
	sql, args, err := r.builder.Select("1").From(table).
		Where(squirrel.Eq{"id": id}).
		Prefix("SELECT EXISTS (").Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var ok bool
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&ok); err != nil {
		return false, fmt.Errorf("check %s: %w", table, err)
	}
	return ok, nil
}
