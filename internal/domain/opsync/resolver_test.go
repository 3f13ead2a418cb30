package opsync_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coopsync/internal/domain/operations"
	"coopsync/internal/domain/opsync"
	"coopsync/internal/testinfra/memstore"
)

func TestResolver_BatchTableThenStore(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	repo := store.Operations()

	require.NoError(t, repo.InsertIfAbsent(ctx, &opsync.Operation{ID: "s0", DeviceID: "caisse-1", OpType: "sale.created", EntityID: "local-1"}))
	resolved := "v-0"
	require.NoError(t, repo.MarkApplied(ctx, "s0", time.Now(), &resolved, nil))

	res := opsync.NewResolver(repo, "caisse-1")
	res.Bind(operations.OpSaleCreated, "s1", "v-1")
	res.Bind(operations.OpSaleCreated, "", "ignored")

	id, ok, err := res.Lookup(ctx, operations.OpSaleCreated, "s1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v-1", id)

	id, ok, err = res.Lookup(ctx, operations.OpSaleCreated, "local-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v-0", id)

	_, ok, err = res.Lookup(ctx, operations.OpSaleCreated, "unknown")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, _ = res.Lookup(ctx, operations.OpReceptionLineAdded, "s1")
	assert.False(t, ok)
}
