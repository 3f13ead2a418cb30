package memstore

import (
	"context"
	"time"

	"coopsync/internal/core/apperror"
	"coopsync/internal/domain/opsync"
)

type OperationsRepo struct{ s *Store }

func (r *OperationsRepo) InsertIfAbsent(_ context.Context, op *opsync.Operation) error {
	if err := r.s.injected("InsertIfAbsent"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.ops[op.ID]; !ok {
		r.s.st.ops[op.ID] = *op
	}
	return nil
}

func (r *OperationsRepo) Get(_ context.Context, opID string) (*opsync.Operation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	op, ok := r.s.st.ops[opID]
	if !ok {
		return nil, apperror.NewNotFound("operation", opID)
	}
	return &op, nil
}

func (r *OperationsRepo) MarkApplied(_ context.Context, opID string, at time.Time, resolvedID, rejectedReason *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	op, ok := r.s.st.ops[opID]
	if !ok {
		return apperror.NewNotFound("operation", opID)
	}
	op.AppliedAt = &at
	if resolvedID != nil {
		op.ResolvedID = resolvedID
	}
	if rejectedReason != nil {
		op.RejectedReason = rejectedReason
	}
	r.s.st.ops[opID] = op
	return nil
}

func (r *OperationsRepo) FindResolved(_ context.Context, deviceID, opType, ref string) (string, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if op, ok := r.s.st.ops[ref]; ok && op.OpType == opType && op.AppliedAt != nil && op.ResolvedID != nil {
		return *op.ResolvedID, true, nil
	}

	var best *opsync.Operation
	for _, op := range r.s.st.ops {
		if op.OpType != opType || op.DeviceID != deviceID || op.EntityID != ref {
			continue
		}
		if op.AppliedAt == nil || op.ResolvedID == nil {
			continue
		}
		if best == nil || op.AppliedAt.Before(*best.AppliedAt) {
			best = &op
		}
	}
	if best == nil {
		return "", false, nil
	}
	return *best.ResolvedID, true, nil
}

func (r *OperationsRepo) LatestResolved(_ context.Context, deviceID, opType string, before time.Time) (string, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var best *opsync.Operation
	for _, op := range r.s.st.ops {
		if op.OpType != opType || op.DeviceID != deviceID || op.CreatedAt.After(before) {
			continue
		}
		if op.AppliedAt == nil || op.ResolvedID == nil {
			continue
		}
		if best == nil || op.CreatedAt.After(best.CreatedAt) ||
			(op.CreatedAt.Equal(best.CreatedAt) && op.AppliedAt.After(*best.AppliedAt)) {
			best = &op
		}
	}
	if best == nil {
		return "", false, nil
	}
	return *best.ResolvedID, true, nil
}
