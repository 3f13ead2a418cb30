package oplog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coopsync/internal/core/apperror"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestEnqueue_Validation(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	_, err := l.Enqueue(ctx, "", "sale.created", "", "", nil)
	assert.True(t, apperror.IsValidation(err))

	_, err = l.Enqueue(ctx, "till-1", " ", "", "", nil)
	assert.True(t, apperror.IsValidation(err))

}

func TestEnqueue_KeepsMalformedPayload(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	opID, err := l.Enqueue(ctx, "till-1", "sale.created", "", "", []byte("{not json"))
	require.NoError(t, err)

	pending, err := l.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, opID, pending[0].ID)
	assert.JSONEq(t, `"{not json"`, string(pending[0].Payload))
}

func TestPending_CreationOrderAndLimit(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		opID, err := l.Enqueue(ctx, "till-1", "sale.line_added", "sale_line", "", []byte(`{"quantite":1}`))
		require.NoError(t, err)
		ids = append(ids, opID)
	}

	all, err := l.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, e := range all {
		assert.Equal(t, ids[i], e.ID)
		assert.Equal(t, "till-1", e.DeviceID)
		assert.JSONEq(t, `{"quantite":1}`, string(e.Payload))
		assert.Nil(t, e.AppliedAt)
	}

	firstTwo, err := l.Pending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, firstTwo, 2)
	assert.Equal(t, ids[:2], []string{firstTwo[0].ID, firstTwo[1].ID})
}

func TestEnqueue_EmptyPayloadBecomesObject(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	opID, err := l.Enqueue(ctx, "till-1", "sale.created", "sale", "", nil)
	require.NoError(t, err)

	e, err := l.Get(ctx, opID)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(e.Payload))
}

func TestMarkApplied(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	a, err := l.Enqueue(ctx, "till-1", "sale.created", "sale", "", nil)
	require.NoError(t, err)
	b, err := l.Enqueue(ctx, "till-1", "sale.line_added", "sale_line", "", nil)
	require.NoError(t, err)

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	moved, err := l.MarkApplied(ctx, []string{a, "unknown"}, at)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	pending, err := l.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, b, pending[0].ID)

	e, err := l.Get(ctx, a)
	require.NoError(t, err)
	require.NotNil(t, e.AppliedAt)
	assert.True(t, at.Equal(*e.AppliedAt))

	// Marking again is a no-op.
	moved, err = l.MarkApplied(ctx, []string{a}, at)
	require.NoError(t, err)
	assert.Zero(t, moved)

	stats, err := l.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(1), stats.Applied)
	require.NotNil(t, stats.OldestPending)
	assert.WithinDuration(t, time.Now(), *stats.OldestPending, time.Minute)
}

func TestGet_NotFound(t *testing.T) {
	l := openTestLog(t)
	_, err := l.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReopen_KeepsPending(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	l, err := Open(dir)
	require.NoError(t, err)
	opID, err := l.Enqueue(ctx, "till-1", "reception.line_upserted", "reception_line", "", []byte(`{"produitId":3}`))
	require.NoError(t, err)
	require.NoError(t, l.Close())

	_, err = l.Pending(ctx, 0)
	assert.ErrorIs(t, err, ErrClosed)

	l, err = Open(dir)
	require.NoError(t, err)
	defer l.Close()

	pending, err := l.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, opID, pending[0].ID)
}

func TestRefsMirror(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	_, _, found, err := l.LoadRefs(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	require.Error(t, l.SaveRefs(ctx, []byte("nope")))

	fixed := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	require.NoError(t, l.SaveRefs(ctx, []byte(`{"products":[{"id":1}]}`)))
	require.NoError(t, l.SaveRefs(ctx, []byte(`{"products":[{"id":2}]}`)))

	raw, savedAt, found, err := l.LoadRefs(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"products":[{"id":2}]}`, string(raw))
	assert.True(t, fixed.Equal(savedAt))

	// The mirror does not show up as operations.
	stats, err := l.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
}
