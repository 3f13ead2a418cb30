package opsync

import (
	"context"
	"time"
)

// Repository stores pushed operations.
type Repository interface {
	// InsertIfAbsent inserts op unless an operation with the same id exists.
	InsertIfAbsent(ctx context.Context, op *Operation) error

	// Get returns the stored operation; apperror NotFound if absent.
	Get(ctx context.Context, id string) (*Operation, error)

	// MarkApplied stamps applied_at, and resolved_id / rejected_reason when non-nil.
	MarkApplied(ctx context.Context, id string, at time.Time, resolvedID, rejectedReason *string) error

	// FindResolved returns the resolved id of an applied operation of opType
	// known by ref. An operation id matches from any device; an entity_id
	// only among deviceID's operations.
	FindResolved(ctx context.Context, deviceID, opType, ref string) (string, bool, error)

	// LatestResolved returns the resolved id of deviceID's most recent applied
	// operation of opType created at or before the given time.
	LatestResolved(ctx context.Context, deviceID, opType string, before time.Time) (string, bool, error)
}
