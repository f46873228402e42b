package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHoldingCurrentValue(t *testing.T) {
	h := Holding{Value: 5000, Quantity: 10, CurrentPrice: 100}
	assert.Equal(t, 5000.0, h.CurrentValue(), "explicit value wins")

	h.Value = 0
	assert.Equal(t, 1000.0, h.CurrentValue(), "falls back to quantity × price")
}

func TestHoldingYearsHeld(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	h := Holding{PurchaseDate: now.AddDate(-2, 0, 0)}
	assert.InDelta(t, 2.0, h.YearsHeld(now), 0.01)

	assert.Equal(t, 0.0, Holding{}.YearsHeld(now), "zero purchase date")
	future := Holding{PurchaseDate: now.AddDate(1, 0, 0)}
	assert.Equal(t, 0.0, future.YearsHeld(now), "future purchase date")
}

func TestHoldingUnrealizedGain(t *testing.T) {
	h := Holding{Quantity: 100, PurchasePrice: 10, CurrentPrice: 12}
	assert.InDelta(t, 200.0, h.UnrealizedGain(), 1e-9)

	h.CurrentPrice = 8
	assert.InDelta(t, -200.0, h.UnrealizedGain(), 1e-9)
}

func TestCurrentAllocation(t *testing.T) {
	holdings := []Holding{
		{AssetClass: "equity", Value: 6000},
		{AssetClass: "equity", Value: 2000},
		{AssetClass: "bond", Value: 2000},
	}

	alloc := CurrentAllocation(holdings)
	require.Len(t, alloc, 2)
	assert.InDelta(t, 80.0, alloc["equity"], 1e-9)
	assert.InDelta(t, 20.0, alloc["bond"], 1e-9)

	assert.Empty(t, CurrentAllocation(nil), "zero-value portfolio yields empty map")
}

func TestAllocationMapKeys(t *testing.T) {
	current := AllocationMap{"equity": 80, "bond": 20}
	target := AllocationMap{"equity": 60, "cash": 10}

	keys := current.Keys(target)
	assert.ElementsMatch(t, []string{"equity", "bond", "cash"}, keys)
}
