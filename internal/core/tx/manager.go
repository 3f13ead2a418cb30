// Package tx provides transaction management abstractions.
// Domain services (push, finalize, bootstrap) depend on these interfaces;
// the PostgreSQL implementation lives in infrastructure/storage/postgres.
package tx

import (
	"context"
)

// Manager runs a unit of work atomically.
// If fn returns an error the whole unit is rolled back, otherwise it is committed.
// Nested calls reuse the transaction already carried by ctx.
type Manager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager extends Manager with read-only transactions,
// used by pull and summary queries that must see one consistent snapshot.
type ReadOnlyManager interface {
	Manager

	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}
