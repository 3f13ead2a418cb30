// Package lock defines the mutual exclusion capability used by one-shot admin
// operations (bootstrap, backfill) that must never run twice concurrently.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrNotObtained is returned when the lock is already held elsewhere.
var ErrNotObtained = errors.New("lock not obtained")

// Locker obtains named leases.
type Locker interface {
	Obtain(ctx context.Context, key string) (Lease, error)
}

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

// Local is an in-process Locker used when no Redis is configured.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

func (l *Local) Obtain(_ context.Context, key string) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, ErrNotObtained
	}
	l.held[key] = struct{}{}
	return &localLease{owner: l, key: key}, nil
}

type localLease struct {
	owner *Local
	key   string
	once  sync.Once
}

func (l *localLease) Release(_ context.Context) error {
	l.once.Do(func() {
		l.owner.mu.Lock()
		delete(l.owner.held, l.key)
		l.owner.mu.Unlock()
	})
	return nil
}
