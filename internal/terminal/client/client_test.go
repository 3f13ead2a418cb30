package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coopsync/internal/config"
	"coopsync/internal/core/apperror"
	appctx "coopsync/internal/core/context"
	"coopsync/internal/infrastructure/http/v1/dto"
	"coopsync/internal/terminal/oplog"
	"coopsync/pkg/zstdjson"
)

func newTestClient(url string, failures uint32) *Client {
	return New(config.TerminalConfig{
		CentralURL:      url + "/",
		DeviceID:        "till-1",
		RequestTimeout:  2 * time.Second,
		BreakerFailures: failures,
		BreakerTimeout:  time.Minute,
	})
}

func TestPush_SendsCompressedBatch(t *testing.T) {
	var got dto.PushRequest
	var gotKey string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/sync/push", r.URL.Path)
		assert.Equal(t, "zstd", r.Header.Get("Content-Encoding"))
		assert.Equal(t, "till-1", r.Header.Get("X-Device-ID"))
		assert.Equal(t, "sync-pass-1", r.Header.Get("X-Trace-ID"))
		gotKey = r.Header.Get("X-Idempotency-Key")

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, zstdjson.Unmarshal(raw, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"applied":2,"skipped":0,"ignored":0,"rejected":0}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3)
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	entries := []oplog.Entry{
		{ID: "a", OpType: "sale.created", EntityType: "sale", Payload: json.RawMessage(`{}`), CreatedAt: created},
		{ID: "b", OpType: "sale.line_added", Payload: json.RawMessage(`{"quantite":2}`), CreatedAt: created},
	}

	ctx := appctx.WithTrace(context.Background(), appctx.NewTrace("sync-pass-1", ""))
	res, err := c.Push(ctx, entries)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, 2, res.Applied)

	assert.Equal(t, "till-1", got.DeviceID)
	require.Len(t, got.Operations, 2)
	assert.Equal(t, "sale.line_added", got.Operations[1].OpType)
	assert.JSONEq(t, `{"quantite":2}`, string(got.Operations[1].Payload))
	require.NotNil(t, got.Operations[0].CreatedAt)
	assert.True(t, created.Equal(*got.Operations[0].CreatedAt))
	assert.Equal(t, BatchKey([]string{"a", "b"}), gotKey)
}

func TestBatchKey(t *testing.T) {
	assert.Equal(t, BatchKey([]string{"a", "b"}), BatchKey([]string{"a", "b"}))
	assert.NotEqual(t, BatchKey([]string{"a", "b"}), BatchKey([]string{"a", "b", "c"}))
}

func TestPullRefs_DecompressesZstd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Accept-Encoding"), "zstd")
		body, err := zstdjson.Marshal(map[string]any{"products": []int{1, 2}})
		require.NoError(t, err)
		w.Header().Set("Content-Encoding", "zstd")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	raw, err := newTestClient(srv.URL, 3).PullRefs(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"products":[1,2]}`, string(raw))
}

func TestRemoteErrorsKeepStatusAndCode(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"NOT_FOUND","message":"inventory session not found"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 2)
	for i := 0; i < 3; i++ {
		_, err := c.InventorySummary(context.Background(), "42")
		require.Error(t, err)
		assert.True(t, apperror.IsNotFound(err))
		assert.Equal(t, http.StatusNotFound, apperror.GetHTTPStatus(err))
	}

	// Client errors do not open the breaker.
	assert.Equal(t, "closed", c.State())
	assert.Equal(t, int32(3), calls.Load())
}

func TestBreakerOpensOnServerFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.PullRefs(ctx)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}
	assert.Equal(t, "open", c.State())

	_, err := c.PullRefs(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(2), calls.Load())
}

func TestUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url, 3).PullRefs(context.Background())
	require.Error(t, err)
	assert.False(t, apperror.IsAppError(err))
}
