package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyRows_NeedsTransaction(t *testing.T) {
	txm := NewTxManager(&Pool{}, 0)
	_, err := CopyRows(context.Background(), txm, "inventory_snapshots", []string{"product_id"}, []struct{}{{}})
	require.ErrorIs(t, err, ErrNoTransaction)
	assert.Contains(t, err.Error(), "inventory_snapshots")
}

func TestExecBatch_Empty(t *testing.T) {
	affected, err := ExecBatch(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Nil(t, affected)
}
