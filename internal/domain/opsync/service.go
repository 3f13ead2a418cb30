package opsync

import (
	"context"
	"fmt"
	"time"

	"coopsync/internal/core/apperror"
	"coopsync/internal/core/tx"
	"coopsync/internal/domain/operations"
	"coopsync/internal/metrics"
	"coopsync/pkg/logger"
)

// MaxBatchSize bounds the number of operations accepted in one push.
const MaxBatchSize = 5000

const (
	resultApplied  = "applied"
	resultSkipped  = "skipped"
	resultIgnored  = "ignored"
	resultRejected = "rejected"
)

// Service applies pushed batches.
type Service struct {
	repo     Repository
	registry *operations.Registry
	txm      tx.Manager
	now      func() time.Time
}

// NewService creates a new push service.
func NewService(repo Repository, registry *operations.Registry, txm tx.Manager) *Service {
	return &Service{
		repo:     repo,
		registry: registry,
		txm:      txm,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type outcome struct {
	opType string
	result string
}

// Push applies a batch inside one transaction. Operations already applied are
// skipped, so resubmitting an identical batch changes nothing. Any handler
// error rolls the whole batch back; the terminal retries it verbatim.
func (s *Service) Push(ctx context.Context, deviceID string, ops []Submitted) (*PushResult, error) {
	if err := validateBatch(deviceID, ops); err != nil {
		metrics.PushBatchesTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	start := time.Now()
	var (
		result   *PushResult
		outcomes []outcome
	)
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		result = &PushResult{OK: true, Resolved: make(map[string]string)}
		outcomes = outcomes[:0]
		res := NewResolver(s.repo, deviceID)

		for _, p := range plan(ops) {
			o, err := s.apply(ctx, deviceID, p, res, result)
			if err != nil {
				return fmt.Errorf("apply operation %s (%s): %w", p.ID, p.OpType, err)
			}
			outcomes = append(outcomes, outcome{opType: p.OpType, result: o})
		}
		return nil
	})
	metrics.RecordPush(time.Since(start), err)
	if err != nil {
		logger.Warn(ctx, "push batch rolled back",
			"device_id", deviceID,
			"operations", len(ops),
			"error", err,
		)
		return nil, err
	}

	for _, o := range outcomes {
		metrics.RecordOperation(o.opType, o.result)
	}
	logger.Info(ctx, "push batch applied",
		"device_id", deviceID,
		"applied", result.Applied,
		"skipped", result.Skipped,
		"ignored", result.Ignored,
		"rejected", result.Rejected,
	)
	return result, nil
}

func (s *Service) apply(ctx context.Context, deviceID string, p planned, res *Resolver, result *PushResult) (string, error) {
	now := s.now()
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	payload := p.Payload
	if len(payload) == 0 {
		payload = []byte("null")
	}

	if err := s.repo.InsertIfAbsent(ctx, &Operation{
		ID:         p.ID,
		DeviceID:   deviceID,
		OpType:     p.OpType,
		EntityType: p.EntityType,
		EntityID:   p.EntityID,
		Payload:    payload,
		CreatedAt:  createdAt.UTC(),
		ReceivedAt: now,
	}); err != nil {
		return "", fmt.Errorf("insert operation: %w", err)
	}

	stored, err := s.repo.Get(ctx, p.ID)
	if err != nil {
		return "", fmt.Errorf("get operation: %w", err)
	}
	if stored.Applied() {
		result.Skipped++
		return resultSkipped, nil
	}

	opType := operations.OpType(stored.OpType)
	handler, ok := s.registry.Lookup(opType)
	if !ok {
		logger.Debug(ctx, "operation ignored", "operation_id", stored.ID, "op_type", stored.OpType)
		if err := s.repo.MarkApplied(ctx, stored.ID, now, nil, nil); err != nil {
			return "", fmt.Errorf("mark ignored operation: %w", err)
		}
		result.Ignored++
		return resultIgnored, nil
	}

	payloadValue, err := operations.Decode(opType, stored.Payload)
	if err != nil {
		reason := apperror.NewInvalidPayload(stored.OpType, err).Error()
		logger.Warn(ctx, "operation payload rejected",
			"operation_id", stored.ID,
			"op_type", stored.OpType,
			"error", err,
		)
		if err := s.repo.MarkApplied(ctx, stored.ID, now, nil, &reason); err != nil {
			return "", fmt.Errorf("mark rejected operation: %w", err)
		}
		result.Rejected++
		return resultRejected, nil
	}

	env := operations.Envelope{
		OperationID: stored.ID,
		DeviceID:    stored.DeviceID,
		OpType:      opType,
		EntityType:  stored.EntityType,
		EntityID:    stored.EntityID,
		CreatedAt:   stored.CreatedAt,
		ParentRef:   p.parentRef,
	}
	out, err := handler.Handle(ctx, env, payloadValue, res)
	if err != nil {
		return "", err
	}

	if out.Rejected != "" {
		if err := s.repo.MarkApplied(ctx, stored.ID, now, nil, &out.Rejected); err != nil {
			return "", fmt.Errorf("mark rejected operation: %w", err)
		}
		result.Rejected++
		return resultRejected, nil
	}

	var resolved *string
	if out.ResolvedID != "" {
		resolved = &out.ResolvedID
		result.Resolved[stored.ID] = out.ResolvedID
	}
	if err := s.repo.MarkApplied(ctx, stored.ID, now, resolved, nil); err != nil {
		return "", fmt.Errorf("mark operation applied: %w", err)
	}
	result.Applied++
	return resultApplied, nil
}

func validateBatch(deviceID string, ops []Submitted) error {
	if deviceID == "" {
		return apperror.NewValidation("device_id is required")
	}
	if len(ops) > MaxBatchSize {
		return apperror.NewValidation("too many operations in batch").
			WithDetail("max", MaxBatchSize).
			WithDetail("got", len(ops))
	}
	for i, op := range ops {
		if op.ID == "" {
			return apperror.NewValidation("operation id is required").WithDetail("index", i)
		}
		if op.OpType == "" {
			return apperror.NewValidation("operation op_type is required").
				WithDetail("index", i).
				WithDetail("id", op.ID)
		}
	}
	return nil
}
