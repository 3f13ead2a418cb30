package v1_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coopsync/internal/config"
	"coopsync/internal/core/types"
	"coopsync/internal/domain/inventory"
	"coopsync/internal/domain/ledger"
	"coopsync/internal/domain/operations"
	"coopsync/internal/domain/opsync"
	"coopsync/internal/domain/refdata"
	v1 "coopsync/internal/infrastructure/http/v1"
	"coopsync/internal/infrastructure/http/v1/dto"
	"coopsync/internal/infrastructure/storage/postgres"
	"coopsync/internal/testinfra/memstore"
	"coopsync/pkg/logger"
	"coopsync/pkg/zstdjson"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type fakeIdempotency struct {
	mu     sync.Mutex
	done   map[postgres.IdempotencyKey]*postgres.IdempotencyReplay
	hashes map[postgres.IdempotencyKey]string
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{
		done:   map[postgres.IdempotencyKey]*postgres.IdempotencyReplay{},
		hashes: map[postgres.IdempotencyKey]string{},
	}
}

func (f *fakeIdempotency) AcquireKey(_ context.Context, key postgres.IdempotencyKey, _, hash string) (*postgres.IdempotencyReplay, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.done[key]; ok && f.hashes[key] == hash {
		return r, nil
	}
	f.hashes[key] = hash
	return nil, nil
}

func (f *fakeIdempotency) CompleteKey(_ context.Context, key postgres.IdempotencyKey, status int, ct string, resp any) error {
	body, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.done[key] = &postgres.IdempotencyReplay{StatusCode: status, ContentType: ct, Body: body}
	return nil
}

func (f *fakeIdempotency) FailKey(context.Context, postgres.IdempotencyKey, int, string, any) error {
	return nil
}

type env struct {
	router http.Handler
	store  *memstore.Store
}

func newEnv(t *testing.T, features config.Features, db error, idem *fakeIdempotency) *env {
	t.Helper()
	store := memstore.New()
	store.AddProduct(refdata.Product{ID: 1, Name: "Lentilles", Price: types.MustMoney("3.20"), BaseStock: types.NewQuantity(20), Active: true})
	store.AddProduct(refdata.Product{ID: 2, Name: "Savon", Price: types.MustMoney("4.00"), BaseStock: types.NewQuantity(5), Active: true})

	led := ledger.NewService(store.Ledger(), store, nil)
	registry := operations.NewRegistry(features, operations.Deps{
		Sales:      store.Sales(),
		Receptions: store.Receptions(),
		Catalog:    store.Catalog(),
		Ledger:     led,
	})

	cfg := v1.RouterConfig{
		Logger:   logger.Default(),
		DB:       pinger{err: db},
		Features: features,
		Push:     opsync.NewService(store.Operations(), registry, store),
		RefData:  refdata.NewService(store.RefData(), store, nil),
		Ledger:   led,
	}
	if features.Inventory {
		cfg.Inventory = inventory.NewService(store.Inventory(), led, store, inventory.Options{})
	}
	if idem != nil {
		cfg.Idempotency = idem
	}
	return &env{router: v1.NewRouter(cfg), store: store}
}

func (e *env) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case []byte:
		rdr = bytes.NewReader(b)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

const pushBody = `{
	"device_id": "caisse-1",
	"operations": [
		{"id": "s1", "op_type": "sale.created", "payload": {"total": 6.4}},
		{"id": "l1", "op_type": "sale.line_added", "payload": {"id": "l1", "produitId": 1, "quantite": 2, "prix": 3.2}}
	]
}`

func TestHealth(t *testing.T) {
	e := newEnv(t, config.AllFeatures(), nil, nil)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/health/live", nil).Code)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/health/ready", nil).Code)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/metrics", nil).Code)

	down := newEnv(t, config.AllFeatures(), errors.New("connection refused"), nil)
	w := down.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestPush_AppliesAndReplays(t *testing.T) {
	e := newEnv(t, config.AllFeatures(), nil, nil)

	w := e.do(t, http.MethodPost, "/api/v1/sync/push", pushBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[opsync.PushResult](t, w)
	assert.True(t, res.OK)
	assert.Equal(t, 2, res.Applied)
	assert.Contains(t, res.Resolved, "s1")

	w = e.do(t, http.MethodPost, "/api/v1/sync/push", pushBody)
	require.Equal(t, http.StatusOK, w.Code)
	res = decode[opsync.PushResult](t, w)
	assert.Equal(t, 0, res.Applied)
	assert.Equal(t, 2, res.Skipped)

	w = e.do(t, http.MethodGet, "/api/v1/stock/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, types.NewQuantity(18), decode[dto.StockResponse](t, w).Stock)
}

func TestPush_ZstdBody(t *testing.T) {
	e := newEnv(t, config.AllFeatures(), nil, nil)

	body, err := zstdjson.Compress([]byte(pushBody))
	require.NoError(t, err)

	w := e.do(t, http.MethodPost, "/api/v1/sync/push", body, "Content-Encoding", "zstd")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2, decode[opsync.PushResult](t, w).Applied)
}

func TestPush_DeviceFromHeader(t *testing.T) {
	e := newEnv(t, config.AllFeatures(), nil, nil)

	w := e.do(t, http.MethodPost, "/api/v1/sync/push",
		`{"operations":[{"id":"s1","op_type":"sale.created","payload":{"total":1}}]}`,
		"X-Device-ID", "caisse-2")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stored, ok := e.store.Operation("s1")
	require.True(t, ok)
	assert.Equal(t, "caisse-2", stored.DeviceID)
}

func TestPush_ValidationError(t *testing.T) {
	e := newEnv(t, config.AllFeatures(), nil, nil)

	w := e.do(t, http.MethodPost, "/api/v1/sync/push", `{"operations":[{"id":"x","op_type":"sale.created"}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode[dto.ErrorResponse](t, w).Code)

	w = e.do(t, http.MethodPost, "/api/v1/sync/push", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPush_IdempotencyKeyReplays(t *testing.T) {
	idem := newFakeIdempotency()
	e := newEnv(t, config.AllFeatures(), nil, idem)

	first := e.do(t, http.MethodPost, "/api/v1/sync/push", pushBody, "X-Idempotency-Key", "batch-1")
	require.Equal(t, http.StatusOK, first.Code)

	second := e.do(t, http.MethodPost, "/api/v1/sync/push", pushBody, "X-Idempotency-Key", "batch-1")
	require.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("X-Idempotent-Replay"))
	assert.Equal(t, 2, decode[opsync.PushResult](t, second).Applied)
}

func TestPush_IdempotencyKeyScopedPerDevice(t *testing.T) {
	idem := newFakeIdempotency()
	e := newEnv(t, config.AllFeatures(), nil, idem)

	a := e.do(t, http.MethodPost, "/api/v1/sync/push", pushBody, "X-Idempotency-Key", "batch-1", "X-Device-ID", "till-a")
	require.Equal(t, http.StatusOK, a.Code)

	b := e.do(t, http.MethodPost, "/api/v1/sync/push", pushBody, "X-Idempotency-Key", "batch-1", "X-Device-ID", "till-b")
	require.Equal(t, http.StatusOK, b.Code)
	assert.Empty(t, b.Header().Get("X-Idempotent-Replay"))
	assert.Len(t, idem.done, 2)
}

func TestPullRefs(t *testing.T) {
	e := newEnv(t, config.AllFeatures(), nil, nil)

	plain := e.do(t, http.MethodGet, "/api/v1/sync/refs", nil)
	require.Equal(t, http.StatusOK, plain.Code)
	assert.Empty(t, plain.Header().Get("Content-Encoding"))
	assert.Len(t, decode[refdata.Snapshot](t, plain).Products, 2)

	w := e.do(t, http.MethodGet, "/api/v1/sync/refs", nil, "Accept-Encoding", "gzip, zstd")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "zstd", w.Header().Get("Content-Encoding"))

	var snap refdata.Snapshot
	require.NoError(t, zstdjson.Unmarshal(w.Body.Bytes(), &snap))
	require.Len(t, snap.Products, 2)
	assert.Equal(t, types.NewQuantity(20), snap.Products[0].Stock)
}

func TestBootstrap(t *testing.T) {
	e := newEnv(t, config.AllFeatures(), nil, nil)

	w := e.do(t, http.MethodGet, "/api/v1/sync/bootstrap", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[dto.BootstrapStatusResponse](t, w).Needed)

	w = e.do(t, http.MethodPost, "/api/v1/sync/bootstrap",
		`{"categories":[{"id":1,"name":"Epicerie"}],"products":[{"id":3,"name":"Riz","price":"2.10","base_stock":"4","active":true}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	counts := decode[dto.BootstrapResponse](t, w).Counts
	assert.Equal(t, 1, counts[refdata.CollectionCategories])
	assert.Equal(t, 1, counts[refdata.CollectionProducts])
}

func TestStock_Errors(t *testing.T) {
	e := newEnv(t, config.AllFeatures(), nil, nil)

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/v1/stock/abc", nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/v1/stock/99", nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/v1/stock/1/movements?since=yesterday", nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/v1/stock/1/movements?limit=5000", nil).Code)

	w := e.do(t, http.MethodGet, "/api/v1/stock/1/movements?source_type=gift", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[dto.ErrorResponse](t, w).Details["fields"], "MovementsQuery.SourceType")
}

func TestBackfillAndMovements(t *testing.T) {
	e := newEnv(t, config.AllFeatures(), nil, nil)

	w := e.do(t, http.MethodPost, "/api/v1/admin/backfill", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(t, http.MethodGet, "/api/v1/stock/1/movements?source_type=bootstrap", nil)
	require.Equal(t, http.StatusOK, w.Code)
	moves := decode[dto.MovementsResponse](t, w)
	require.Len(t, moves.Items, 1)
	assert.Equal(t, types.NewQuantity(20), moves.Items[0].QtyChange)
}

func TestInventory_Flow(t *testing.T) {
	e := newEnv(t, config.AllFeatures(), nil, nil)

	w := e.do(t, http.MethodPost, "/api/v1/inventory/sessions", `{"name":"Mai 2026","operator":"alice"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	started := decode[dto.StartSessionResponse](t, w)
	require.NotNil(t, started.Session)
	assert.False(t, started.Reused)
	base := "/api/v1/inventory/sessions/" + started.Session.ID.String()

	w = e.do(t, http.MethodPost, "/api/v1/inventory/sessions", `{"name":"Mai 2026"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[dto.StartSessionResponse](t, w).Reused)

	w = e.do(t, http.MethodPost, base+"/counts", `{"product_id":1,"qty":12}`, "X-Device-ID", "tab-1", "X-Operator", "bob")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = e.do(t, http.MethodPost, base+"/counts", `{"product_id":1,"qty":"5","device_id":"tab-2"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(t, http.MethodGet, base+"/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode[inventory.Summary](t, w)
	require.Len(t, summary.Lines, 2)
	assert.Equal(t, types.NewQuantity(17), summary.Lines[0].CountedTotal)
	assert.Equal(t, 2, summary.Lines[0].Devices)

	w = e.do(t, http.MethodPost, base+"/finalize", `{"operator":"alice"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	recap := decode[dto.FinalizeResponse](t, w).Recap
	require.NotNil(t, recap)
	assert.Equal(t, inventory.StatusClosed, recap.Session.Status)
	assert.Equal(t, 2, recap.Stats.LinesProcessed)

	w = e.do(t, http.MethodPost, base+"/finalize", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(t, http.MethodPost, base+"/counts", `{"product_id":1,"qty":1,"device_id":"tab-1"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(t, http.MethodGet, "/api/v1/stock/1", nil)
	assert.Equal(t, types.NewQuantity(17), decode[dto.StockResponse](t, w).Stock)

	w = e.do(t, http.MethodGet, "/api/v1/inventory/sessions?status=closed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), started.Session.ID.String())
}

func TestInventory_Errors(t *testing.T) {
	e := newEnv(t, config.AllFeatures(), nil, nil)

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/v1/inventory/sessions/not-a-uuid", nil).Code)
	assert.Equal(t, http.StatusNotFound,
		e.do(t, http.MethodGet, "/api/v1/inventory/sessions/0190f5a2-7b7e-7c3a-9d8e-123456789abc/summary", nil).Code)
	assert.Equal(t, http.StatusNotFound,
		e.do(t, http.MethodPost, "/api/v1/inventory/sessions/0190f5a2-7b7e-7c3a-9d8e-123456789abc/counts",
			`{"product_id":1,"qty":1,"device_id":"tab-1"}`).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/v1/inventory/sessions?status=pending", nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/api/v1/inventory/sessions", `{}`).Code)
}

func TestInventory_DisabledFeature(t *testing.T) {
	features := config.AllFeatures()
	features.Inventory = false
	e := newEnv(t, features, nil, nil)

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/v1/inventory/sessions", nil).Code)
}
