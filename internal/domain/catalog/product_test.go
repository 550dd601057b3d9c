package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProduct(t *testing.T) {
	t.Run("creates active product", func(t *testing.T) {
		p, err := NewProduct("Alphonso Mango", "Ripe mangoes", decimal.NewFromInt(150), UnitKg, "mango.jpg", "fruits")
		require.NoError(t, err)
		assert.True(t, p.IsActive)
		assert.Equal(t, UnitKg, p.Unit)
		assert.Equal(t, 1, p.Version)
		assert.True(t, p.Stock.Available.IsZero())
	})

	t.Run("rejects empty name", func(t *testing.T) {
		_, err := NewProduct("", "", decimal.NewFromInt(10), UnitKg, "", "")
		assert.Error(t, err)
	})

	t.Run("rejects negative price", func(t *testing.T) {
		_, err := NewProduct("Mango", "", decimal.NewFromInt(-1), UnitKg, "", "")
		assert.Error(t, err)
	})

	t.Run("rejects unknown unit", func(t *testing.T) {
		_, err := NewProduct("Mango", "", decimal.NewFromInt(10), Unit("crate"), "", "")
		assert.Error(t, err)
	})
}

func TestProductStock(t *testing.T) {
	p, err := NewProduct("Mango", "", decimal.NewFromInt(150), UnitKg, "", "fruits")
	require.NoError(t, err)

	require.NoError(t, p.SetStock(decimal.NewFromInt(10), decimal.NewFromInt(2)))
	assert.True(t, p.CanFulfill(decimal.NewFromInt(10)))
	assert.False(t, p.CanFulfill(decimal.NewFromInt(11)))
	assert.False(t, p.Stock.IsLow())

	require.NoError(t, p.SetStock(decimal.NewFromInt(2), decimal.NewFromInt(2)))
	assert.True(t, p.Stock.IsLow())

	assert.Error(t, p.SetStock(decimal.NewFromInt(-1), decimal.Zero))
}

func TestUnitIsValid(t *testing.T) {
	for _, u := range []Unit{UnitKg, UnitPiece, UnitDozen, UnitPack} {
		assert.True(t, u.IsValid())
	}
	assert.False(t, Unit("litre").IsValid())
}
