package operations

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coopsync/internal/core/types"
)

func TestDecode_SaleCreated(t *testing.T) {
	p, err := Decode(OpSaleCreated, []byte(`{
		"id": 1042,
		"total": "12.50",
		"modePaiementId": 2,
		"caissier": "Martine",
		"date": "2026-03-14T10:15:00Z"
	}`))
	require.NoError(t, err)

	sale, ok := p.(*SaleCreated)
	require.True(t, ok)
	assert.Equal(t, Ref("1042"), sale.ID)
	assert.True(t, sale.Total.Equal(types.MustMoney("12.5")))
	require.NotNil(t, sale.PaymentModeID)
	assert.Equal(t, int64(2), *sale.PaymentModeID)
	assert.Equal(t, "Martine", sale.Cashier)
	require.NotNil(t, sale.SoldAt)
	assert.Equal(t, 2026, sale.SoldAt.Year())
}

func TestDecode_SaleLineAdded(t *testing.T) {
	p, err := Decode(OpSaleLineAdded, []byte(`{"venteId":"v-1","produitId":7,"quantite":"1.5","prix":3}`))
	require.NoError(t, err)

	line := p.(*SaleLineAdded)
	assert.Equal(t, Ref("v-1"), line.SaleID)
	assert.Equal(t, int64(7), line.ProductID)
	assert.Equal(t, types.Quantity(15000), line.Qty)
	assert.Equal(t, OpSaleLineAdded, line.OpType())
}

func TestDecode_StockTargets(t *testing.T) {
	p, err := Decode(OpInventoryAdjust, []byte(`{"produitId":3,"stock":12,"adjustId":"adj-9","motif":"casse"}`))
	require.NoError(t, err)
	adj := p.(*InventoryAdjust)
	assert.Equal(t, int64(3), adj.ProductID)
	assert.Equal(t, types.NewQuantity(12), adj.Stock)
	assert.Equal(t, Ref("adj-9"), adj.AdjustID)

	p, err = Decode(OpStockSet, []byte(`{"produitId":3,"stock":0}`))
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(0), p.(*StockSet).Stock)
}

func TestDecode_ProductUpdatedIsSparse(t *testing.T) {
	p, err := Decode(OpProductUpdated, []byte(`{"produitId":5,"prix":"4.20"}`))
	require.NoError(t, err)

	patch := p.(*ProductUpdated).Patch()
	assert.False(t, patch.IsEmpty())
	require.NotNil(t, patch.Price)
	assert.Nil(t, patch.Name)
	assert.Nil(t, patch.Active)
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		opType OpType
		raw    string
	}{
		{"empty payload", OpSaleCreated, ``},
		{"null payload", OpSaleLineAdded, `null`},
		{"not json", OpSaleLineAdded, `{"produitId":`},
		{"missing product", OpSaleLineAdded, `{"quantite":1,"prix":1}`},
		{"zero quantity", OpSaleLineAdded, `{"produitId":1,"quantite":0,"prix":1}`},
		{"negative price", OpSaleLineAdded, `{"produitId":1,"quantite":1,"prix":-1}`},
		{"object as ref", OpSaleLineAdded, `{"venteId":{},"produitId":1,"quantite":1}`},
		{"reception without id", OpReceptionLineAdded, `{"produitId":1,"quantite":2}`},
		{"reception without qty", OpReceptionLineAdded, `{"id":"l1","produitId":1}`},
		{"majPrix without price", OpReceptionLineAdded, `{"id":"l1","produitId":1,"quantite":1,"majPrix":true}`},
		{"stock without product", OpStockSet, `{"stock":4}`},
		{"blank product name", OpProductUpdated, `{"produitId":1,"nom":""}`},
		{"negative product price", OpProductUpdated, `{"produitId":1,"prix":-2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.opType, []byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestDecode_UnknownOpType(t *testing.T) {
	_, err := Decode("loyalty.points", []byte(`{}`))
	assert.True(t, errors.Is(err, ErrUnknownOpType))
	assert.False(t, Known("loyalty.points"))
	assert.True(t, Known(OpStockSet))
}

func TestSaleRefs(t *testing.T) {
	env := Envelope{OperationID: "op-1", EntityID: "local-7"}
	assert.Equal(t, []string{"local-7", "v-1", "op-1"}, SaleRefs(env, &SaleCreated{ID: "v-1"}))
	assert.Equal(t, []string{"op-1"}, SaleRefs(Envelope{OperationID: "op-1"}, &SaleCreated{}))
}
