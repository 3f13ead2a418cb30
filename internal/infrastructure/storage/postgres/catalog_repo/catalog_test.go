package catalog_repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coopsync/internal/core/types"
	"coopsync/internal/domain/operations"
)

func TestProductPatchMap_OnlySetFields(t *testing.T) {
	name := "Flour T65"
	price := types.MustMoney("2.40")
	active := false

	m := productPatchMap(operations.ProductPatch{Name: &name, Price: &price, Active: &active})

	assert.Len(t, m, 3)
	assert.Equal(t, "Flour T65", m["name"])
	assert.True(t, price.Equal(m["price"].(types.Money)))
	assert.Equal(t, false, m["active"])
	assert.NotContains(t, m, "barcode")
}

func TestProductPatchMap_Empty(t *testing.T) {
	assert.Empty(t, productPatchMap(operations.ProductPatch{}))
}

func TestRealignSequence_NextIDFollowsMax(t *testing.T) {
	sql, args, err := realignSequence(productsTable).ToSql()
	require.NoError(t, err)
	assert.Empty(t, args)
	assert.Equal(t,
		"SELECT setval(pg_get_serial_sequence('products', 'id'), COALESCE((SELECT MAX(id) FROM products), 0) + 1, false)",
		sql,
	)
}
