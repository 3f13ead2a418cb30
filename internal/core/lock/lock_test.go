package lock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_ObtainRelease(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	lease, err := l.Obtain(ctx, "backfill")
	require.NoError(t, err)

	_, err = l.Obtain(ctx, "backfill")
	assert.ErrorIs(t, err, ErrNotObtained)

	_, err = l.Obtain(ctx, "bootstrap")
	assert.NoError(t, err)

	require.NoError(t, lease.Release(ctx))
	require.NoError(t, lease.Release(ctx))

	_, err = l.Obtain(ctx, "backfill")
	assert.NoError(t, err)
}
