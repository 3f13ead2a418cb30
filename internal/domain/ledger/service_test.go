package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coopsync/internal/core/apperror"
	"coopsync/internal/core/lock"
	"coopsync/internal/core/types"
	"coopsync/internal/domain/ledger"
	"coopsync/internal/domain/refdata"
	"coopsync/internal/testinfra/memstore"
)

func newLedger(t *testing.T, products ...refdata.Product) (*ledger.Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	for _, p := range products {
		store.AddProduct(p)
	}
	return ledger.NewService(store.Ledger(), store, nil), store
}

func product(id int64, base int64) refdata.Product {
	return refdata.Product{
		ID:        id,
		Name:      "Produit",
		Price:     types.MustMoney("2.50"),
		BaseStock: types.NewQuantity(base),
		Active:    true,
	}
}

func TestCurrentStock_FallsBackToBase(t *testing.T) {
	svc, _ := newLedger(t, product(1, 7))

	stock, err := svc.CurrentStock(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(7), stock)

	_, err = svc.CurrentStock(context.Background(), 99)
	assert.True(t, apperror.IsNotFound(err))
}

func TestInsertMovement_SeedsBaselineFirst(t *testing.T) {
	ctx := context.Background()
	svc, store := newLedger(t, product(1, 10))

	inserted, err := svc.InsertMovement(ctx, 1, ledger.SourceSaleLine, "line-1", types.NewQuantity(-3))
	require.NoError(t, err)
	assert.True(t, inserted)

	movements := store.Movements()
	require.Len(t, movements, 2)
	assert.Equal(t, ledger.SourceBootstrap, movements[0].SourceType)
	assert.Equal(t, "1", movements[0].SourceID)
	assert.Equal(t, types.NewQuantity(10), movements[0].QtyChange)

	stock, err := svc.CurrentStock(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(7), stock)
}

func TestInsertMovement_ZeroBaseHasNoBaseline(t *testing.T) {
	ctx := context.Background()
	svc, store := newLedger(t, product(1, 0))

	_, err := svc.InsertMovement(ctx, 1, ledger.SourceReceptionLine, "r1", types.NewQuantity(5))
	require.NoError(t, err)
	assert.Len(t, store.Movements(), 1)
}

func TestInsertMovement_Idempotent(t *testing.T) {
	ctx := context.Background()
	svc, store := newLedger(t, product(1, 0))

	first, err := svc.InsertMovement(ctx, 1, ledger.SourceSaleLine, "line-1", types.NewQuantity(-2))
	require.NoError(t, err)
	second, err := svc.InsertMovement(ctx, 1, ledger.SourceSaleLine, "line-1", types.NewQuantity(-2))
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
	assert.Len(t, store.Movements(), 1)
}

func TestInsertMovement_Additive(t *testing.T) {
	ctx := context.Background()
	svc, _ := newLedger(t, product(1, 4))

	deltas := []int64{-1, 3, -2, 10, -5}
	want := types.NewQuantity(4)
	for i, d := range deltas {
		_, err := svc.InsertMovement(ctx, 1, ledger.SourceSaleLine, string(rune('a'+i)), types.NewQuantity(d))
		require.NoError(t, err)
		want += types.NewQuantity(d)
	}

	stock, err := svc.CurrentStock(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, want, stock)
}

func TestInsertMovement_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newLedger(t, product(1, 0))

	_, err := svc.InsertMovement(ctx, 0, ledger.SourceSaleLine, "x", 1)
	assert.True(t, apperror.IsValidation(err))

	_, err = svc.InsertMovement(ctx, 1, ledger.SourceSaleLine, "", 1)
	assert.True(t, apperror.IsValidation(err))

	_, err = svc.InsertMovement(ctx, 42, ledger.SourceSaleLine, "x", 1)
	assert.True(t, apperror.IsNotFound(err))
}

func TestSetAbsolute(t *testing.T) {
	ctx := context.Background()
	svc, store := newLedger(t, product(1, 10))

	delta, inserted, err := svc.SetAbsolute(ctx, 1, ledger.SourceStockSet, "adj-1", types.NewQuantity(6))
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, types.NewQuantity(-4), delta)

	stock, err := svc.CurrentStock(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(6), stock)

	// Already at target: nothing written.
	before := len(store.Movements())
	delta, inserted, err = svc.SetAbsolute(ctx, 1, ledger.SourceStockSet, "adj-2", types.NewQuantity(6))
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Zero(t, delta)
	assert.Len(t, store.Movements(), before)
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	svc, _ := newLedger(t, product(1, 3))

	_, err := svc.InsertMovement(ctx, 1, ledger.SourceSaleLine, "l1", types.NewQuantity(-1))
	require.NoError(t, err)
	_, err = svc.InsertMovement(ctx, 1, ledger.SourceReceptionLine, "r1", types.NewQuantity(2))
	require.NoError(t, err)

	all, err := svc.History(ctx, 1, ledger.MovementFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ledger.SourceBootstrap, all[0].SourceType)

	sales, err := svc.History(ctx, 1, ledger.MovementFilter{SourceType: ledger.SourceSaleLine})
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, "l1", sales[0].SourceID)

	_, err = svc.History(ctx, 2, ledger.MovementFilter{})
	assert.True(t, apperror.IsNotFound(err))
}

func TestBackfill(t *testing.T) {
	ctx := context.Background()
	svc, store := newLedger(t, product(1, 5), product(2, 0), product(3, 8))

	_, err := svc.InsertMovement(ctx, 3, ledger.SourceSaleLine, "l1", types.NewQuantity(-1))
	require.NoError(t, err)

	res, err := svc.Backfill(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Candidates)
	assert.Equal(t, 1, res.Seeded)

	stock, err := svc.CurrentStock(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(5), stock)

	again, err := svc.Backfill(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Seeded)
	assert.Len(t, store.Movements(), 3)
}

func TestBackfill_RollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	svc, store := newLedger(t, product(1, 5))
	store.FailOn("InsertMovement", errors.New("disk full"))

	_, err := svc.Backfill(ctx)
	require.ErrorContains(t, err, "disk full")
	assert.Empty(t, store.Movements())
}

func TestBackfill_ConflictWhileRunning(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	store.AddProduct(product(1, 5))
	locker := lock.NewLocal()
	svc := ledger.NewService(store.Ledger(), store, locker)

	lease, err := locker.Obtain(ctx, "coopsync:ledger:backfill")
	require.NoError(t, err)
	defer lease.Release(ctx)

	_, err = svc.Backfill(ctx)
	assert.True(t, apperror.IsConflict(err))
}
