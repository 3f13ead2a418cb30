// Package agent runs on a till: it owns the local operation log, pushes it to
// the central server when reachable and mirrors reference data locally.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"coopsync/internal/config"
	appctx "coopsync/internal/core/context"
	"coopsync/internal/domain/opsync"
	"coopsync/internal/metrics"
	"coopsync/internal/terminal/oplog"
	"coopsync/pkg/logger"
)

// Central is the subset of the central API the agent needs.
type Central interface {
	Push(ctx context.Context, entries []oplog.Entry) (*opsync.PushResult, error)
	PullRefs(ctx context.Context) ([]byte, error)
	InventorySummary(ctx context.Context, sessionID string) ([]byte, error)
	State() string
}

// Status is what GET /local/status reports.
type Status struct {
	DeviceID   string     `json:"device_id"`
	Pending    int64      `json:"pending"`
	Applied    int64      `json:"applied"`
	Oldest     *time.Time `json:"oldest_pending_at,omitempty"`
	Breaker    string     `json:"breaker"`
	LastPushAt *time.Time `json:"last_push_at,omitempty"`
	LastPullAt *time.Time `json:"last_pull_at,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}

type Agent struct {
	log     *oplog.Log
	central Central
	cfg     config.TerminalConfig

	syncMu sync.Mutex // one push pass at a time
	kick   chan struct{}

	mu         sync.Mutex
	lastPushAt *time.Time
	lastPullAt *time.Time
	lastErr    string

	now func() time.Time
}

func New(log *oplog.Log, central Central, cfg config.TerminalConfig) *Agent {
	if cfg.PushBatchSize <= 0 {
		cfg.PushBatchSize = 200
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = 15 * time.Second
	}
	if cfg.PullInterval <= 0 {
		cfg.PullInterval = 5 * time.Minute
	}
	return &Agent{
		log:     log,
		central: central,
		cfg:     cfg,
		kick:    make(chan struct{}, 1),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue records a local operation for this device and schedules a push.
func (a *Agent) Enqueue(ctx context.Context, opType, entityType, entityID string, payload []byte) (string, error) {
	opID, err := a.log.Enqueue(ctx, a.cfg.DeviceID, opType, entityType, entityID, payload)
	if err != nil {
		return "", err
	}
	metrics.TerminalPendingOperations.Inc()
	a.Kick()
	return opID, nil
}

// Kick asks the loop to push soon. It never blocks.
func (a *Agent) Kick() {
	select {
	case a.kick <- struct{}{}:
	default:
	}
}

// Run pushes and pulls until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	ctx = logger.WithLogger(ctx, logger.FromContext(ctx).WithComponent("terminal-agent"))

	syncTicker := time.NewTicker(a.cfg.SyncInterval)
	defer syncTicker.Stop()
	pullTicker := time.NewTicker(a.cfg.PullInterval)
	defer pullTicker.Stop()

	logger.Info(ctx, "terminal agent started",
		"device_id", a.cfg.DeviceID,
		"sync_interval", a.cfg.SyncInterval,
		"pull_interval", a.cfg.PullInterval,
		"batch_size", a.cfg.PushBatchSize,
	)

	_ = a.PullOnce(ctx)
	_, _ = a.SyncOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "terminal agent stopped")
			return nil
		case <-syncTicker.C:
			_, _ = a.SyncOnce(ctx)
		case <-a.kick:
			_, _ = a.SyncOnce(ctx)
		case <-pullTicker.C:
			_ = a.PullOnce(ctx)
		}
	}
}

// SyncOnce pushes pending operations batch by batch in creation order and
// returns how many were acknowledged. A failed batch stays pending.
func (a *Agent) SyncOnce(ctx context.Context) (int, error) {
	a.syncMu.Lock()
	defer a.syncMu.Unlock()

	ctx = appctx.WithTrace(ctx, appctx.NewTrace("", ""))

	pushed := 0
	defer a.refreshPendingGauge(ctx)

	for {
		batch, err := a.log.Pending(ctx, a.cfg.PushBatchSize)
		if err != nil {
			return pushed, fmt.Errorf("read pending operations: %w", err)
		}
		if len(batch) == 0 {
			return pushed, nil
		}

		res, err := a.central.Push(ctx, batch)
		if err == nil && !res.OK {
			err = errors.New("central server did not acknowledge the batch")
		}
		metrics.RecordTerminalSync("push", err)
		if err != nil {
			logger.Warn(ctx, "sync pending, will retry",
				"pending_batch", len(batch),
				"first_op", batch[0].ID,
				"error", err,
			)
			a.recordError(err)
			return pushed, err
		}

		ids := make([]string, len(batch))
		for i, e := range batch {
			ids[i] = e.ID
		}
		at := a.now()
		moved, err := a.log.MarkApplied(ctx, ids, at)
		if err != nil {
			return pushed, fmt.Errorf("mark applied: %w", err)
		}
		pushed += moved

		a.mu.Lock()
		a.lastPushAt = &at
		a.lastErr = ""
		a.mu.Unlock()

		logger.Debug(ctx, "batch pushed",
			"applied", res.Applied,
			"skipped", res.Skipped,
			"ignored", res.Ignored,
			"rejected", res.Rejected,
		)

		if len(batch) < a.cfg.PushBatchSize {
			return pushed, nil
		}
	}
}

// PullOnce refreshes the local reference mirror.
func (a *Agent) PullOnce(ctx context.Context) error {
	ctx = appctx.WithTrace(ctx, appctx.NewTrace("", ""))
	raw, err := a.central.PullRefs(ctx)
	if err == nil {
		err = a.log.SaveRefs(ctx, raw)
	}
	metrics.RecordTerminalSync("pull", err)
	if err != nil {
		logger.Warn(ctx, "reference pull failed, keeping local mirror", "error", err)
		a.recordError(err)
		return err
	}

	at := a.now()
	a.mu.Lock()
	a.lastPullAt = &at
	a.mu.Unlock()
	return nil
}

// Status reports local queue and sync health.
func (a *Agent) Status(ctx context.Context) (Status, error) {
	stats, err := a.log.Stats(ctx)
	if err != nil {
		return Status{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return Status{
		DeviceID:   a.cfg.DeviceID,
		Pending:    stats.Pending,
		Applied:    stats.Applied,
		Oldest:     stats.OldestPending,
		Breaker:    a.central.State(),
		LastPushAt: a.lastPushAt,
		LastPullAt: a.lastPullAt,
		LastError:  a.lastErr,
	}, nil
}

func (a *Agent) recordError(err error) {
	a.mu.Lock()
	a.lastErr = err.Error()
	a.mu.Unlock()
}

func (a *Agent) refreshPendingGauge(ctx context.Context) {
	if stats, err := a.log.Stats(ctx); err == nil {
		metrics.TerminalPendingOperations.Set(float64(stats.Pending))
	}
}
