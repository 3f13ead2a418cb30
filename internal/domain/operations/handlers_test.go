package operations_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coopsync/internal/config"
	"coopsync/internal/core/apperror"
	"coopsync/internal/core/types"
	"coopsync/internal/domain/ledger"
	"coopsync/internal/domain/operations"
	"coopsync/internal/domain/refdata"
	"coopsync/internal/testinfra/memstore"
)

type mapResolver map[string]string

func (m mapResolver) Lookup(_ context.Context, creator operations.OpType, ref string) (string, bool, error) {
	id, ok := m[string(creator)+"|"+ref]
	return id, ok, nil
}

func (m mapResolver) Bind(creator operations.OpType, ref, id string) {
	m[string(creator)+"|"+ref] = id
}

// Latest answers with whatever was bound under the "latest" ref.
func (m mapResolver) Latest(_ context.Context, creator operations.OpType, _ time.Time) (string, bool, error) {
	id, ok := m[string(creator)+"|latest"]
	return id, ok, nil
}

type fixture struct {
	store    *memstore.Store
	ledger   *ledger.Service
	registry *operations.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	store.AddProduct(refdata.Product{ID: 1, Name: "Farine T65", Price: types.MustMoney("2.40"), BaseStock: types.NewQuantity(10), Active: true})
	store.AddProduct(refdata.Product{ID: 2, Name: "Miel", Price: types.MustMoney("8.00"), Active: true})
	store.AddPaymentMode(refdata.PaymentMode{ID: 1, Name: "Espèces", Active: true})
	store.AddSupplier(refdata.Supplier{ID: 3, Name: "Moulin du Pont"})

	led := ledger.NewService(store.Ledger(), store, nil)
	registry := operations.NewRegistry(config.AllFeatures(), operations.Deps{
		Sales:      store.Sales(),
		Receptions: store.Receptions(),
		Catalog:    store.Catalog(),
		Ledger:     led,
	})
	return &fixture{store: store, ledger: led, registry: registry}
}

func (f *fixture) handle(t *testing.T, env operations.Envelope, raw string, res operations.Resolver) (operations.Result, error) {
	t.Helper()
	p, err := operations.Decode(env.OpType, []byte(raw))
	require.NoError(t, err)
	h, ok := f.registry.Lookup(env.OpType)
	require.True(t, ok)
	return h.Handle(context.Background(), env, p, res)
}

func (f *fixture) stock(t *testing.T, productID int64) types.Quantity {
	t.Helper()
	q, err := f.ledger.CurrentStock(context.Background(), productID)
	require.NoError(t, err)
	return q
}

func TestSaleCreated_BindsRefsAndClearsUnknownRefs(t *testing.T) {
	f := newFixture(t)
	res := mapResolver{}

	out, err := f.handle(t, operations.Envelope{
		OperationID: "op-1", OpType: operations.OpSaleCreated, EntityID: "local-5", DeviceID: "caisse-1",
	}, `{"id":"v-100","total":5,"modePaiementId":99,"adherentId":12}`, res)
	require.NoError(t, err)
	assert.Equal(t, "v-100", out.ResolvedID)

	sales := f.store.AllSales()
	require.Len(t, sales, 1)
	assert.Nil(t, sales[0].PaymentModeID)
	assert.Nil(t, sales[0].MemberID)
	assert.Equal(t, "caisse-1", sales[0].DeviceID)

	for _, ref := range []string{"local-5", "v-100", "op-1"} {
		id, ok, _ := res.Lookup(context.Background(), operations.OpSaleCreated, ref)
		assert.True(t, ok, ref)
		assert.Equal(t, "v-100", id)
	}
}

func TestSaleCreated_MintsIDAndKeepsKnownPaymentMode(t *testing.T) {
	f := newFixture(t)

	out, err := f.handle(t, operations.Envelope{OperationID: "op-1", OpType: operations.OpSaleCreated},
		`{"total":"3.00","modePaiementId":1}`, mapResolver{})
	require.NoError(t, err)
	assert.NotEmpty(t, out.ResolvedID)

	sales := f.store.AllSales()
	require.Len(t, sales, 1)
	assert.Equal(t, out.ResolvedID, sales[0].ID)
	require.NotNil(t, sales[0].PaymentModeID)
}

func TestSaleCreated_ReplayUpdatesDetailsBestEffort(t *testing.T) {
	f := newFixture(t)
	env := operations.Envelope{OperationID: "op-1", OpType: operations.OpSaleCreated}

	_, err := f.handle(t, env, `{"id":"v-1","total":1}`, mapResolver{})
	require.NoError(t, err)
	_, err = f.handle(t, env, `{"id":"v-1","total":1,"caissier":"Paul"}`, mapResolver{})
	require.NoError(t, err)
	assert.Equal(t, "Paul", f.store.AllSales()[0].Cashier)

	f.store.FailOn("UpdateSaleDetails", errors.New("deadlock"))
	_, err = f.handle(t, env, `{"id":"v-1","total":1,"note":"x"}`, mapResolver{})
	assert.NoError(t, err)
}

func TestSaleLineAdded_DecrementsStock(t *testing.T) {
	f := newFixture(t)
	res := mapResolver{}
	res.Bind(operations.OpSaleCreated, "op-1", "v-1")

	env := operations.Envelope{OperationID: "op-2", OpType: operations.OpSaleLineAdded, ParentRef: "op-1"}
	_, err := f.handle(t, env, `{"produitId":1,"quantite":3,"prix":2.4}`, res)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(7), f.stock(t, 1))

	lines := f.store.SaleLines()
	require.Len(t, lines, 1)
	assert.Equal(t, "v-1", lines[0].SaleID)
	assert.Equal(t, "v-1:1:3.0000:2.4", lines[0].ID)

	// Same line again: no second movement.
	_, err = f.handle(t, env, `{"produitId":1,"quantite":3,"prix":2.4}`, res)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(7), f.stock(t, 1))
}

func TestSaleLineAdded_ReferencesExistingSale(t *testing.T) {
	f := newFixture(t)
	_, err := f.handle(t, operations.Envelope{OperationID: "op-1", OpType: operations.OpSaleCreated},
		`{"id":"v-9","total":1}`, mapResolver{})
	require.NoError(t, err)

	_, err = f.handle(t, operations.Envelope{OperationID: "op-2", OpType: operations.OpSaleLineAdded},
		`{"id":"l-1","venteId":"v-9","produitId":2,"quantite":1,"prix":8}`, mapResolver{})
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(-1), f.stock(t, 2))
}

func TestSaleLineAdded_UnresolvedSale(t *testing.T) {
	f := newFixture(t)

	_, err := f.handle(t, operations.Envelope{OperationID: "op-2", OpType: operations.OpSaleLineAdded},
		`{"venteId":"missing","produitId":1,"quantite":1,"prix":1}`, mapResolver{})
	assert.True(t, apperror.IsNotFound(err))

	_, err = f.handle(t, operations.Envelope{OperationID: "op-3", OpType: operations.OpSaleLineAdded},
		`{"produitId":1,"quantite":1,"prix":1}`, mapResolver{})
	assert.True(t, apperror.IsNotFound(err))
}

func TestSaleLineAdded_NoReferenceUsesPreviousSale(t *testing.T) {
	f := newFixture(t)
	res := mapResolver{}
	res.Bind(operations.OpSaleCreated, "latest", "v-3")

	_, err := f.handle(t, operations.Envelope{OperationID: "op-4", OpType: operations.OpSaleLineAdded},
		`{"id":"l-4","produitId":1,"quantite":2,"prix":2.4}`, res)
	require.NoError(t, err)

	lines := f.store.SaleLines()
	require.Len(t, lines, 1)
	assert.Equal(t, "v-3", lines[0].SaleID)
	assert.Equal(t, types.NewQuantity(8), f.stock(t, 1))
}

func TestReceptionLineAdded(t *testing.T) {
	f := newFixture(t)
	date := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC).Format(time.RFC3339)

	out, err := f.handle(t, operations.Envelope{OperationID: "op-1", OpType: operations.OpReceptionLineAdded, EntityID: "rec-1"},
		`{"id":"rl-1","fournisseurId":3,"produitId":2,"quantite":12,"prixAchat":5.1,"majPrix":true,"date":"`+date+`"}`, mapResolver{})
	require.NoError(t, err)
	assert.Equal(t, "rec-1", out.ResolvedID)
	assert.Equal(t, types.NewQuantity(12), f.stock(t, 2))

	p, _ := f.store.Product(2)
	assert.True(t, p.PurchasePrice.Equal(types.MustMoney("5.1")))

	lines := f.store.ReceptionLines()
	require.Len(t, lines, 1)
	assert.Equal(t, "rec-1", lines[0].ReceptionID)
}

func TestReceptionLineAdded_CorrectedStock(t *testing.T) {
	f := newFixture(t)

	_, err := f.handle(t, operations.Envelope{OperationID: "op-1", OpType: operations.OpReceptionLineAdded},
		`{"id":"rl-1","produitId":1,"quantite":5,"stockCorrige":14}`, mapResolver{})
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(14), f.stock(t, 1))

	// Corrected stock equal to current stock writes no movement.
	before := len(f.store.Movements())
	_, err = f.handle(t, operations.Envelope{OperationID: "op-2", OpType: operations.OpReceptionLineAdded},
		`{"id":"rl-2","produitId":1,"quantite":5,"stockCorrige":14}`, mapResolver{})
	require.NoError(t, err)
	assert.Len(t, f.store.Movements(), before)
}

func TestReceptionLineAdded_UnknownSupplierCleared(t *testing.T) {
	f := newFixture(t)

	out, err := f.handle(t, operations.Envelope{OperationID: "op-7", OpType: operations.OpReceptionLineAdded},
		`{"id":"rl-1","fournisseurId":404,"produitId":2,"quantite":1}`, mapResolver{})
	require.NoError(t, err)
	assert.Equal(t, "op-7", out.ResolvedID)
}

func TestStockTargets(t *testing.T) {
	f := newFixture(t)

	_, err := f.handle(t, operations.Envelope{OperationID: "op-1", OpType: operations.OpInventoryAdjust},
		`{"produitId":1,"stock":4,"motif":"casse"}`, mapResolver{})
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(4), f.stock(t, 1))

	_, err = f.handle(t, operations.Envelope{OperationID: "op-2", OpType: operations.OpStockSet},
		`{"produitId":1,"stock":9,"adjustId":"set-1"}`, mapResolver{})
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(9), f.stock(t, 1))

	movements := f.store.Movements()
	last := movements[len(movements)-1]
	assert.Equal(t, ledger.SourceStockSet, last.SourceType)
	assert.Equal(t, "set-1", last.SourceID)
	assert.Equal(t, types.NewQuantity(5), last.QtyChange)
}

func TestProductUpdated(t *testing.T) {
	f := newFixture(t)

	_, err := f.handle(t, operations.Envelope{OperationID: "op-1", OpType: operations.OpProductUpdated, EntityID: "2"},
		`{"nom":"Miel de lavande","actif":false}`, mapResolver{})
	require.NoError(t, err)

	p, _ := f.store.Product(2)
	assert.Equal(t, "Miel de lavande", p.Name)
	assert.False(t, p.Active)
	assert.True(t, p.Price.Equal(types.MustMoney("8")))

	out, err := f.handle(t, operations.Envelope{OperationID: "op-2", OpType: operations.OpProductUpdated},
		`{"produitId":77,"prix":1}`, mapResolver{})
	require.NoError(t, err)
	assert.Equal(t, "product 77 not found", out.Rejected)

	out, err = f.handle(t, operations.Envelope{OperationID: "op-3", OpType: operations.OpProductUpdated, EntityID: "abc"},
		`{"prix":1}`, mapResolver{})
	require.NoError(t, err)
	assert.NotEmpty(t, out.Rejected)
}

func TestRegistry_DisabledFeatures(t *testing.T) {
	features := config.AllFeatures()
	features.Receptions = false
	features.ProductUpdates = false

	r := operations.NewRegistry(features, operations.Deps{})
	_, ok := r.Lookup(operations.OpReceptionLineAdded)
	assert.False(t, ok)
	assert.Equal(t, []operations.OpType{
		operations.OpInventoryAdjust,
		operations.OpSaleCreated,
		operations.OpSaleLineAdded,
		operations.OpStockSet,
	}, r.Types())
}
