package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/goccy/go-json"

	"coopsync/internal/core/id"
	"coopsync/internal/domain/notify"
)

const (
	outboxTable    = "sys_outbox"
	outboxDLQTable = "sys_outbox_dlq"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// OutboxMessage is one sys_outbox row.
type OutboxMessage struct {
	ID            id.ID        `db:"id"`
	AggregateType string       `db:"aggregate_type"`
	AggregateID   string       `db:"aggregate_id"`
	EventType     string       `db:"event_type"`
	Payload       []byte       `db:"payload"`
	Status        OutboxStatus `db:"status"`
	RetryCount    int          `db:"retry_count"`
	LastError     *string      `db:"last_error"`
	NextRetryAt   *time.Time   `db:"next_retry_at"`
	CreatedAt     time.Time    `db:"created_at"`
	PublishedAt   *time.Time   `db:"published_at"`
}

var _ notify.Queue = (*Outbox)(nil)

// Outbox parks notifications whose direct send failed; the worker's
// OutboxRelay delivers them later. Writes join the caller's transaction, so a
// finalize that rolls back leaves nothing queued.
type Outbox struct {
	txm     *TxManager
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

func NewOutbox(txm *TxManager) *Outbox {
	return &Outbox{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue stores msg as a notify.mail event about the session msg.Ref.
func (o *Outbox) Enqueue(ctx context.Context, msg notify.Message, cause error) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	row := map[string]any{
		"id":             id.New(),
		"aggregate_type": "inventory_session",
		"aggregate_id":   msg.Ref,
		"event_type":     notify.EventMail,
		"payload":        payload,
		"status":         OutboxStatusPending,
		"created_at":     o.now(),
	}
	if cause != nil {
		row["last_error"] = cause.Error()
	}

	sql, args, err := o.builder.Insert(outboxTable).SetMap(row).ToSql()
	if err != nil {
		return fmt.Errorf("build outbox insert: %w", err)
	}
	if _, err := o.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}
	return nil
}
