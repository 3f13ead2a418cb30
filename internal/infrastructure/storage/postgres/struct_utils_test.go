package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"coopsync/internal/core/id"
	"coopsync/internal/core/types"
	"coopsync/internal/domain/inventory"
	"coopsync/internal/domain/refdata"
)

type embeddedRow struct {
	refdata.Product
	Stock   types.Quantity `db:"stock"`
	Ignored string         `db:"-"`
	NoTag   string
}

func TestExtractDBColumns_Embedded(t *testing.T) {
	cols := ExtractDBColumns[embeddedRow]()

	for _, expected := range []string{"id", "name", "barcode", "price", "base_stock", "updated_at", "stock"} {
		assert.Contains(t, cols, expected)
	}
	assert.NotContains(t, cols, "-")
	assert.NotContains(t, cols, "")
}

func TestExtractDBColumns_Order(t *testing.T) {
	assert.Equal(t,
		[]string{"session_id", "product_id", "stock_start", "unit_cost"},
		ExtractDBColumns[inventory.Snapshot]())
}

func TestStructToMap(t *testing.T) {
	now := time.Now().UTC()
	barcode := "3017620422003"
	row := embeddedRow{
		Product: refdata.Product{
			ID:        7,
			Name:      "Hazelnut spread",
			Barcode:   &barcode,
			Price:     types.MustMoney("3.50"),
			BaseStock: types.NewQuantity(12),
			Active:    true,
			UpdatedAt: now,
		},
		Stock: types.NewQuantity(10),
	}

	m := StructToMap(&row)

	assert.Equal(t, int64(7), m["id"])
	assert.Equal(t, "Hazelnut spread", m["name"])
	assert.Equal(t, &barcode, m["barcode"])
	assert.Equal(t, types.NewQuantity(12), m["base_stock"])
	assert.Equal(t, types.NewQuantity(10), m["stock"])
	assert.Equal(t, now, m["updated_at"])
	assert.NotContains(t, m, "Ignored")
	assert.NotContains(t, m, "NoTag")
}

func TestStructToMap_NonStruct(t *testing.T) {
	assert.Nil(t, StructToMap(42))
	assert.Nil(t, StructToMap((*embeddedRow)(nil)))
}

func TestRowValues(t *testing.T) {
	sessionID := id.New()
	snap := inventory.Snapshot{
		SessionID:  sessionID,
		ProductID:  3,
		StockStart: types.NewQuantity(5),
		UnitCost:   types.MustMoney("1.20"),
	}

	vals := RowValues(snap, []string{"product_id", "stock_start", "missing"})
	assert.Equal(t, []any{int64(3), types.NewQuantity(5), nil}, vals)

	all := RowValues(&snap, ExtractDBColumns[inventory.Snapshot]())
	assert.Len(t, all, 4)
	assert.Equal(t, sessionID, all[0])
}

func TestExtractDBColumns_Cached(t *testing.T) {
	first := ExtractDBColumns[embeddedRow]()
	first[0] = "mutated"
	assert.NotEqual(t, "mutated", ExtractDBColumns[embeddedRow]()[0])
}
