package opsync

import (
	"context"
	"fmt"
	"time"

	"coopsync/internal/domain/operations"
)

// Resolver is the per-batch resolution table. Lookups fall back to
// operations the same device applied in earlier batches.
type Resolver struct {
	repo     Repository
	deviceID string
	entries  map[operations.OpType]map[string]string
}

// NewResolver creates an empty resolution table for one batch of deviceID.
func NewResolver(repo Repository, deviceID string) *Resolver {
	return &Resolver{
		repo:     repo,
		deviceID: deviceID,
		entries:  make(map[operations.OpType]map[string]string),
	}
}

func (r *Resolver) Bind(creator operations.OpType, ref, id string) {
	if ref == "" || id == "" {
		return
	}
	m, ok := r.entries[creator]
	if !ok {
		m = make(map[string]string)
		r.entries[creator] = m
	}
	m[ref] = id
}

func (r *Resolver) Lookup(ctx context.Context, creator operations.OpType, ref string) (string, bool, error) {
	if ref == "" {
		return "", false, nil
	}
	if id, ok := r.entries[creator][ref]; ok {
		return id, true, nil
	}

	id, ok, err := r.repo.FindResolved(ctx, r.deviceID, string(creator), ref)
	if err != nil {
		return "", false, fmt.Errorf("find resolved %s %s: %w", creator, ref, err)
	}
	if ok {
		r.Bind(creator, ref, id)
	}
	return id, ok, nil
}

// Latest returns what the device's last creator operation before the given
// time resolved to, among those applied in earlier batches.
func (r *Resolver) Latest(ctx context.Context, creator operations.OpType, before time.Time) (string, bool, error) {
	id, ok, err := r.repo.LatestResolved(ctx, r.deviceID, string(creator), before)
	if err != nil {
		return "", false, fmt.Errorf("latest resolved %s: %w", creator, err)
	}
	return id, ok, nil
}
