// Package sync_repo provides the PostgreSQL journal of pushed operations.
package sync_repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"coopsync/internal/core/apperror"
	"coopsync/internal/domain/opsync"
	"coopsync/internal/infrastructure/storage/postgres"
)

const operationsTable = "operations"

var operationColumns = postgres.ExtractDBColumns[opsync.Operation]()

var _ opsync.Repository = (*OperationsRepo)(nil)

// OperationsRepo implements opsync.Repository.
type OperationsRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

func NewOperationsRepo(txm *postgres.TxManager) *OperationsRepo {
	return &OperationsRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *OperationsRepo) InsertIfAbsent(ctx context.Context, op *opsync.Operation) error {
	if op.ReceivedAt.IsZero() {
		op.ReceivedAt = time.Now().UTC()
	}

	var payload any
	if len(op.Payload) > 0 {
		payload = string(op.Payload)
	}

	sql, args, err := r.builder.Insert(operationsTable).
		Columns("id", "device_id", "op_type", "entity_type", "entity_id", "payload", "created_at", "received_at").
		Values(op.ID, op.DeviceID, op.OpType, op.EntityType, op.EntityID, squirrel.Expr("?::jsonb", payload), op.CreatedAt, op.ReceivedAt).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert operation: %w", err)
	}
	return nil
}

func (r *OperationsRepo) Get(ctx context.Context, id string) (*opsync.Operation, error) {
	sql, args, err := r.builder.Select(operationColumns...).
		From(operationsTable).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var op opsync.Operation
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &op, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("operation", id)
		}
		return nil, fmt.Errorf("get operation: %w", err)
	}
	return &op, nil
}

func (r *OperationsRepo) MarkApplied(ctx context.Context, id string, at time.Time, resolvedID, rejectedReason *string) error {
	q := r.builder.Update(operationsTable).
		Set("applied_at", at).
		Where(squirrel.Eq{"id": id})
	if resolvedID != nil {
		q = q.Set("resolved_id", *resolvedID)
	}
	if rejectedReason != nil {
		q = q.Set("rejected_reason", *rejectedReason)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("mark applied: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("operation", id)
	}
	return nil
}

// FindResolved matches ref against the operation id first, then against the
// entity_id of the device's own operations.
func (r *OperationsRepo) FindResolved(ctx context.Context, deviceID, opType, ref string) (string, bool, error) {
	var resolved string
	err := r.txm.GetQuerier(ctx).QueryRow(ctx, `
		SELECT resolved_id
		FROM operations
		WHERE op_type = $1
		  AND applied_at IS NOT NULL
		  AND resolved_id IS NOT NULL
		  AND (id = $2 OR (entity_id = $2 AND device_id = $3))
		ORDER BY (id = $2) DESC, applied_at
		LIMIT 1
	`, opType, ref, deviceID).Scan(&resolved)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("find resolved: %w", err)
	}
	return resolved, true, nil
}

func (r *OperationsRepo) LatestResolved(ctx context.Context, deviceID, opType string, before time.Time) (string, bool, error) {
	sql, args, err := r.builder.Select("resolved_id").
		From(operationsTable).
		Where(squirrel.Eq{"device_id": deviceID, "op_type": opType}).
		Where(squirrel.NotEq{"applied_at": nil, "resolved_id": nil}).
		Where(squirrel.LtOrEq{"created_at": before}).
		OrderBy("created_at DESC", "applied_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return "", false, fmt.Errorf("build query: %w", err)
	}

	var resolved string
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&resolved); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("latest resolved: %w", err)
	}
	return resolved, true, nil
}
