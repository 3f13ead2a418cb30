package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coopsync/internal/config"
	"coopsync/internal/core/types"
	"coopsync/internal/domain/ledger"
	"coopsync/internal/domain/operations"
	"coopsync/internal/domain/opsync"
	"coopsync/internal/domain/refdata"
	"coopsync/internal/terminal/oplog"
	"coopsync/internal/testinfra/memstore"
)

// localCentral applies pushes with the real push service over a memory store.
type localCentral struct {
	fakeCentral
	deviceID string
	push     *opsync.Service
}

func (c *localCentral) Push(ctx context.Context, entries []oplog.Entry) (*opsync.PushResult, error) {
	ops := make([]opsync.Submitted, len(entries))
	for i, e := range entries {
		ops[i] = opsync.Submitted{
			ID:         e.ID,
			OpType:     e.OpType,
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			Payload:    e.Payload,
			CreatedAt:  e.CreatedAt,
		}
	}
	return c.push.Push(ctx, c.deviceID, ops)
}

func TestSyncOnce_SaleLinesInLaterBatch(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	store.AddProduct(refdata.Product{ID: 1, Name: "Pois chiches", Price: types.MustMoney("2.10"), BaseStock: types.NewQuantity(10), Active: true})

	led := ledger.NewService(store.Ledger(), store, nil)
	registry := operations.NewRegistry(config.AllFeatures(), operations.Deps{
		Sales:      store.Sales(),
		Receptions: store.Receptions(),
		Catalog:    store.Catalog(),
		Ledger:     led,
	})
	central := &localCentral{deviceID: "till-1", push: opsync.NewService(store.Operations(), registry, store)}
	a := newTestAgent(t, central, 2)

	_, err := a.Enqueue(ctx, "sale.created", "sale", "", []byte(`{"total":6.3}`))
	require.NoError(t, err)
	for i := range 3 {
		payload := fmt.Sprintf(`{"id":"line-%d","produitId":1,"quantite":1,"prix":2.1}`, i)
		_, err := a.Enqueue(ctx, "sale.line_added", "sale_line", "", []byte(payload))
		require.NoError(t, err)
	}

	pushed, err := a.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, pushed)

	st, err := a.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.Pending)

	sales := store.AllSales()
	require.Len(t, sales, 1)
	lines := store.SaleLines()
	require.Len(t, lines, 3)
	for _, l := range lines {
		assert.Equal(t, sales[0].ID, l.SaleID)
	}

	q, err := led.CurrentStock(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(7), q)
}
