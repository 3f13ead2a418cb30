package postgres

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/goccy/go-json"

	"coopsync/internal/core/apperror"
)

const idempotencyTable = "sys_idempotency"

type IdempotencyStatus string

const (
	IdempotencyStatusPending IdempotencyStatus = "pending"
	IdempotencyStatusSuccess IdempotencyStatus = "success"
	IdempotencyStatusFailed  IdempotencyStatus = "failed"
)

// IdempotencyKey identifies one client request: keys are only unique per device.
type IdempotencyKey struct {
	DeviceID string
	Key      string
}

// IdempotencyRecord is one sys_idempotency row.
type IdempotencyRecord struct {
	DeviceID    string            `db:"device_id"`
	Key         string            `db:"idempotency_key"`
	Operation   string            `db:"operation"`
	Status      IdempotencyStatus `db:"status"`
	RequestHash string            `db:"request_hash"`
	Response    []byte            `db:"response"`
	StatusCode  int               `db:"response_status"`
	ContentType string            `db:"response_content_type"`
	CreatedAt   time.Time         `db:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at"`
	ExpiresAt   time.Time         `db:"expires_at"`
}

// IdempotencyReplay is a stored response to send again.
type IdempotencyReplay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// IdempotencyStore records the first answer to a keyed request (a terminal's
// push batch or finalize) so a retry after a lost response gets it back.
type IdempotencyStore struct {
	txm     *TxManager
	builder squirrel.StatementBuilderType
	ttl     time.Duration
	// staleAfter is how long a pending key may be held before another
	// request with the same key takes it over (the first one crashed).
	staleAfter time.Duration
	now        func() time.Time
}

func NewIdempotencyStore(txm *TxManager, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{
		txm:        txm,
		builder:    squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		ttl:        ttl,
		staleAfter: time.Minute,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// AcquireKey claims k for this request. It returns a replay when the request
// already finished, an IdempotencyConflict while another attempt holds the
// key, and an IdempotencyMismatch when the key is reused for another request.
func (s *IdempotencyStore) AcquireKey(ctx context.Context, k IdempotencyKey, operation, requestHash string) (*IdempotencyReplay, error) {
	now := s.now()

	sql, args, err := s.builder.Insert(idempotencyTable).
		SetMap(map[string]any{
			"device_id":       k.DeviceID,
			"idempotency_key": k.Key,
			"operation":       operation,
			"status":          IdempotencyStatusPending,
			"request_hash":    requestHash,
			"created_at":      now,
			"updated_at":      now,
			"expires_at":      now.Add(s.ttl),
		}).
		Suffix("ON CONFLICT (device_id, idempotency_key) DO UPDATE SET expires_at = GREATEST(sys_idempotency.expires_at, EXCLUDED.expires_at)").
		Suffix("RETURNING *, (xmax = 0) AS inserted").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build acquire: %w", err)
	}

	var row struct {
		IdempotencyRecord
		Inserted bool `db:"inserted"`
	}
	if err := pgxscan.Get(ctx, s.txm.GetQuerier(ctx), &row, sql, args...); err != nil {
		return nil, fmt.Errorf("acquire idempotency key: %w", err)
	}

	// xmax = 0 only on a row version this statement inserted.
	if row.Inserted {
		return nil, nil
	}

	rec := row.IdempotencyRecord
	if rec.Operation != operation || rec.RequestHash != requestHash {
		return nil, apperror.NewIdempotencyMismatch(k.Key).
			WithDetail("device_id", k.DeviceID).
			WithDetail("stored_operation", rec.Operation).
			WithDetail("request_operation", operation)
	}

	switch rec.Status {
	case IdempotencyStatusSuccess, IdempotencyStatusFailed:
		return rec.replay(), nil
	case IdempotencyStatusPending:
		if now.Sub(rec.UpdatedAt) <= s.staleAfter {
			return nil, apperror.NewIdempotencyConflict(k.Key)
		}
		if err := s.touch(ctx, k, now); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (r *IdempotencyRecord) replay() *IdempotencyReplay {
	out := &IdempotencyReplay{StatusCode: r.StatusCode, ContentType: r.ContentType, Body: r.Response}
	if out.StatusCode == 0 {
		out.StatusCode = http.StatusOK
	}
	if out.ContentType == "" {
		out.ContentType = "application/json"
	}
	return out
}

func (s *IdempotencyStore) touch(ctx context.Context, k IdempotencyKey, now time.Time) error {
	sql, args, err := s.builder.Update(idempotencyTable).
		Set("updated_at", now).
		Where(squirrel.Eq{"device_id": k.DeviceID, "idempotency_key": k.Key, "status": IdempotencyStatusPending}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build reclaim: %w", err)
	}
	if _, err := s.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("reclaim stale key: %w", err)
	}
	return nil
}

// CompleteKey stores a successful response.
func (s *IdempotencyStore) CompleteKey(ctx context.Context, k IdempotencyKey, statusCode int, contentType string, response any) error {
	return s.finish(ctx, k, IdempotencyStatusSuccess, statusCode, contentType, response)
}

// FailKey stores a client error for replay. Server errors delete the key so
// the retried batch runs again.
func (s *IdempotencyStore) FailKey(ctx context.Context, k IdempotencyKey, statusCode int, contentType string, response any) error {
	if statusCode >= http.StatusInternalServerError {
		sql, args, err := s.builder.Delete(idempotencyTable).
			Where(squirrel.Eq{"device_id": k.DeviceID, "idempotency_key": k.Key}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build release: %w", err)
		}
		_, err = s.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
		return err
	}
	return s.finish(ctx, k, IdempotencyStatusFailed, statusCode, contentType, response)
}

func (s *IdempotencyStore) finish(ctx context.Context, k IdempotencyKey, status IdempotencyStatus, statusCode int, contentType string, response any) error {
	var body []byte
	if response != nil {
		b, err := json.Marshal(response)
		if err != nil {
			return fmt.Errorf("marshal response: %w", err)
		}
		body = b
	}

	sql, args, err := s.builder.Update(idempotencyTable).
		SetMap(map[string]any{
			"status":                status,
			"response":              body,
			"response_status":       statusCode,
			"response_content_type": contentType,
			"updated_at":            s.now(),
		}).
		Where(squirrel.Eq{"device_id": k.DeviceID, "idempotency_key": k.Key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build finish: %w", err)
	}
	_, err = s.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	return err
}

// cleanupChunk bounds the rows deleted per statement.
const cleanupChunk = 5000

// CleanupExpired deletes expired keys in chunks and returns how many went.
func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	var total int64
	for {
		tag, err := s.txm.GetQuerier(ctx).Exec(ctx, `
			DELETE FROM sys_idempotency
			WHERE ctid IN (SELECT ctid FROM sys_idempotency WHERE expires_at < $1 LIMIT $2)
		`, s.now(), cleanupChunk)
		if err != nil {
			return total, fmt.Errorf("cleanup idempotency keys: %w", err)
		}
		total += tag.RowsAffected()
		if tag.RowsAffected() < cleanupChunk {
			return total, nil
		}
	}
}
