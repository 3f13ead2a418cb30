// Package inventory_repo provides the PostgreSQL store for inventory sessions.
package inventory_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"coopsync/internal/core/apperror"
	"coopsync/internal/core/id"
	"coopsync/internal/core/types"
	"coopsync/internal/domain/inventory"
	"coopsync/internal/infrastructure/storage/postgres"
)

const (
	sessionsTable  = "inventory_sessions"
	snapshotsTable = "inventory_snapshots"
	countsTable    = "inventory_counts"
	adjustsTable   = "inventory_adjusts"
)

var (
	sessionColumns  = postgres.ExtractDBColumns[inventory.Session]()
	snapshotColumns = postgres.ExtractDBColumns[inventory.Snapshot]()
)

var _ inventory.Repository = (*InventoryRepo)(nil)

// InventoryRepo implements inventory.Repository.
type InventoryRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

func NewInventoryRepo(txm *postgres.TxManager) *InventoryRepo {
	return &InventoryRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *InventoryRepo) FindOpenByName(ctx context.Context, name string) (*inventory.Session, error) {
	s, err := r.getSession(ctx, squirrel.Eq{"name": name, "status": inventory.StatusOpen}, name, "")
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// CreateSession relies on the partial unique index over open names.
func (r *InventoryRepo) CreateSession(ctx context.Context, s *inventory.Session) (bool, error) {
	sql, args, err := r.builder.Insert(sessionsTable).
		SetMap(postgres.StructToMap(s)).
		Suffix("ON CONFLICT (name) WHERE status = 'open' DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("insert session: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *InventoryRepo) GetSession(ctx context.Context, sessionID id.ID) (*inventory.Session, error) {
	return r.getSession(ctx, squirrel.Eq{"id": sessionID}, sessionID, "")
}

func (r *InventoryRepo) GetSessionForShare(ctx context.Context, sessionID id.ID) (*inventory.Session, error) {
	return r.getSession(ctx, squirrel.Eq{"id": sessionID}, sessionID, "FOR SHARE")
}

func (r *InventoryRepo) GetSessionForUpdate(ctx context.Context, sessionID id.ID) (*inventory.Session, error) {
	return r.getSession(ctx, squirrel.Eq{"id": sessionID}, sessionID, "FOR UPDATE")
}

func (r *InventoryRepo) getSession(ctx context.Context, where squirrel.Sqlizer, key any, lock string) (*inventory.Session, error) {
	q := r.builder.Select(sessionColumns...).From(sessionsTable).Where(where)
	if lock != "" {
		q = q.Suffix(lock)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var s inventory.Session
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &s, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("inventory_session", key)
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

func (r *InventoryRepo) UpdateStatus(ctx context.Context, sessionID id.ID, status inventory.Status, finalizedBy *string, endedAt *time.Time) error {
	q := r.builder.Update(sessionsTable).
		Set("status", status).
		Where(squirrel.Eq{"id": sessionID})
	if finalizedBy != nil {
		q = q.Set("finalized_by", *finalizedBy)
	}
	if endedAt != nil {
		q = q.Set("ended_at", *endedAt)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("inventory_session", sessionID)
	}
	return nil
}

// ListSessions returns newest first.
func (r *InventoryRepo) ListSessions(ctx context.Context, status *inventory.Status) ([]inventory.Session, error) {
	q := r.builder.Select(sessionColumns...).From(sessionsTable).OrderBy("started_at DESC", "id DESC")
	if status != nil {
		q = q.Where(squirrel.Eq{"status": *status})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out []inventory.Session
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("select sessions: %w", err)
	}
	return out, nil
}

// InsertSnapshots copies the whole catalog snapshot in one COPY.
func (r *InventoryRepo) InsertSnapshots(ctx context.Context, rows []inventory.Snapshot) error {
	if len(rows) == 0 {
		return nil
	}

	if _, err := postgres.CopyRows(ctx, r.txm, snapshotsTable, snapshotColumns, rows); err != nil {
		return fmt.Errorf("copy snapshots: %w", err)
	}
	return nil
}

func (r *InventoryRepo) SnapshotExists(ctx context.Context, sessionID id.ID, productID int64) (bool, error) {
	var ok bool
	err := r.txm.GetQuerier(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM inventory_snapshots WHERE session_id = $1 AND product_id = $2)
	`, sessionID, productID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check snapshot: %w", err)
	}
	return ok, nil
}

// AddCount accumulates the device's quantity and returns the new total.
func (r *InventoryRepo) AddCount(ctx context.Context, c inventory.Count) (types.Quantity, error) {
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}

	sql, args, err := r.builder.Insert(countsTable).
		SetMap(postgres.StructToMap(c)).
		Suffix(`ON CONFLICT (session_id, product_id, device_id) DO UPDATE SET
			qty = inventory_counts.qty + EXCLUDED.qty,
			operator = EXCLUDED.operator,
			updated_at = EXCLUDED.updated_at
		RETURNING qty`).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build upsert: %w", err)
	}

	var total types.Quantity
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("add count: %w", err)
	}
	return total, nil
}

func (r *InventoryRepo) SummaryRows(ctx context.Context, sessionID id.ID) ([]inventory.SummaryRow, error) {
	var rows []inventory.SummaryRow
	err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, `
		SELECT s.product_id,
		       COALESCE(p.name, '') AS product_name,
		       s.stock_start,
		       s.unit_cost,
		       COALESCE(c.total, 0)::BIGINT AS counted_total,
		       COALESCE(c.devices, 0)::INT AS devices,
		       COALESCE(c.devices, 0) > 0 AS counted
		FROM inventory_snapshots s
		LEFT JOIN products p ON p.id = s.product_id
		LEFT JOIN (
			SELECT product_id, SUM(qty) AS total, COUNT(*) AS devices
			FROM inventory_counts
			WHERE session_id = $1
			GROUP BY product_id
		) c ON c.product_id = s.product_id
		WHERE s.session_id = $1
		ORDER BY s.product_id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("select summary rows: %w", err)
	}
	return rows, nil
}

func (r *InventoryRepo) InsertAdjust(ctx context.Context, a inventory.Adjust) (bool, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	sql, args, err := r.builder.Insert(adjustsTable).
		SetMap(postgres.StructToMap(a)).
		Suffix("ON CONFLICT (session_id, product_id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("insert adjust: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
