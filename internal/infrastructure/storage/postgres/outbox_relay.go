package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"coopsync/internal/metrics"
	"coopsync/pkg/logger"
)

// MaxOutboxRetries failed deliveries park a message in sys_outbox_dlq.
const MaxOutboxRetries = 5

const maxOutboxBackoff = 30 * time.Minute

// OutboxHandler delivers one event. Satisfied by *notify.Dispatcher.
type OutboxHandler interface {
	Dispatch(ctx context.Context, eventType string, payload []byte) error
}

// OutboxRelay delivers due outbox messages. Several workers may run it at
// once: rows are claimed with FOR UPDATE SKIP LOCKED.
type OutboxRelay struct {
	txm       *TxManager
	builder   squirrel.StatementBuilderType
	batchSize uint64
	handler   OutboxHandler
	now       func() time.Time
}

func NewOutboxRelay(txm *TxManager, batchSize int, handler OutboxHandler) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &OutboxRelay{
		txm:       txm,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		batchSize: uint64(batchSize),
		handler:   handler,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// retryDelay doubles from one minute per failed attempt, capped.
func retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Minute << (attempt - 1)
	if d <= 0 || d > maxOutboxBackoff {
		return maxOutboxBackoff
	}
	return d
}

// ProcessBatch delivers up to batchSize due messages and returns how many
// went out. Rows stay locked until the batch commits.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) (int, error) {
	sql, args, err := r.builder.Select("*").
		From(outboxTable).
		Where(squirrel.Eq{"status": OutboxStatusPending}).
		Where(squirrel.Or{
			squirrel.Eq{"next_retry_at": nil},
			squirrel.LtOrEq{"next_retry_at": r.now()},
		}).
		OrderBy("created_at").
		Limit(r.batchSize).
		Suffix("FOR UPDATE SKIP LOCKED").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build outbox fetch: %w", err)
	}

	delivered := 0
	err = r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		delivered = 0
		var due []*OutboxMessage
		if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &due, sql, args...); err != nil {
			return fmt.Errorf("fetch outbox messages: %w", err)
		}
		for _, msg := range due {
			ok, err := r.deliver(ctx, msg)
			if err != nil {
				return err
			}
			if ok {
				delivered++
			}
		}
		return nil
	})
	return delivered, err
}

// deliver sends msg and records the outcome. Only a failure to record is an error.
func (r *OutboxRelay) deliver(ctx context.Context, msg *OutboxMessage) (bool, error) {
	upd := r.builder.Update(outboxTable).Where(squirrel.Eq{"id": msg.ID})

	sendErr := r.handler.Dispatch(ctx, msg.EventType, msg.Payload)
	if sendErr == nil {
		upd = upd.Set("status", OutboxStatusPublished).Set("published_at", r.now())
	} else {
		attempt := msg.RetryCount + 1
		status := OutboxStatusPending
		if attempt >= MaxOutboxRetries {
			status = OutboxStatusFailed
		}
		upd = upd.SetMap(map[string]any{
			"retry_count":   attempt,
			"last_error":    sendErr.Error(),
			"next_retry_at": r.now().Add(retryDelay(attempt)),
			"status":        status,
		})
	}

	sql, args, err := upd.ToSql()
	if err != nil {
		return false, fmt.Errorf("build outbox update: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return false, fmt.Errorf("record outbox delivery %s: %w", msg.ID, err)
	}

	if sendErr != nil {
		metrics.OutboxRelayedTotal.WithLabelValues("retry").Inc()
		logger.Warn(ctx, "outbox delivery failed",
			"message_id", msg.ID,
			"ref", msg.AggregateID,
			"attempt", msg.RetryCount+1,
			"error", sendErr,
		)
		return false, nil
	}
	metrics.OutboxRelayedTotal.WithLabelValues("published").Inc()
	return true, nil
}

// MoveToDLQ parks messages that used up their retries.
func (r *OutboxRelay) MoveToDLQ(ctx context.Context) (int64, error) {
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, `
		WITH moved AS (
			DELETE FROM `+outboxTable+`
			WHERE status = $1 AND retry_count >= $2
			RETURNING id, aggregate_type, aggregate_id, event_type, payload, retry_count, created_at, last_error
		)
		INSERT INTO `+outboxDLQTable+` (id, aggregate_type, aggregate_id, event_type, payload, retry_count, created_at, failed_at, failure_reason)
		SELECT id, aggregate_type, aggregate_id, event_type, payload, retry_count, created_at, $3, last_error
		FROM moved
	`, OutboxStatusFailed, MaxOutboxRetries, r.now())
	if err != nil {
		return 0, fmt.Errorf("move to dead letter queue: %w", err)
	}
	n := tag.RowsAffected()
	if n > 0 {
		metrics.OutboxRelayedTotal.WithLabelValues("dead_lettered").Add(float64(n))
	}
	return n, nil
}

// Pending counts undelivered messages and publishes the count as a gauge.
func (r *OutboxRelay) Pending(ctx context.Context) (int64, error) {
	sql, args, err := r.builder.Select("COUNT(*)").
		From(outboxTable).
		Where(squirrel.Eq{"status": OutboxStatusPending}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build outbox count: %w", err)
	}
	var n int64
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count outbox messages: %w", err)
	}
	metrics.OutboxPending.Set(float64(n))
	return n, nil
}

// CleanupPublished deletes delivered messages older than retention.
func (r *OutboxRelay) CleanupPublished(ctx context.Context, retention time.Duration) (int64, error) {
	sql, args, err := r.builder.Delete(outboxTable).
		Where(squirrel.Eq{"status": OutboxStatusPublished}).
		Where(squirrel.Lt{"published_at": r.now().Add(-retention)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build outbox cleanup: %w", err)
	}
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("cleanup published: %w", err)
	}
	return tag.RowsAffected(), nil
}
