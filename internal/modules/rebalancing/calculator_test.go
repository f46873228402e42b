package rebalancing

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/folio/internal/domain"
)

func newTestCalculator() *Calculator {
	return NewCalculator(0, zerolog.Nop())
}

func twoHoldings() []domain.Holding {
	return []domain.Holding{
		{ID: "eq", Name: "Equity Fund", Value: 80000, CurrentPrice: 100},
		{ID: "bd", Name: "Bond Fund", Value: 20000, CurrentPrice: 50},
	}
}

func TestCalculatePlan(t *testing.T) {
	c := newTestCalculator()

	plan, err := c.Calculate(twoHoldings(), []float64{0.6, 0.4}, 0)
	require.NoError(t, err)
	require.Len(t, plan.Actions, 2)

	// Sell £20k equity, buy £20k bonds; sells come first.
	sell, buy := plan.Actions[0], plan.Actions[1]
	assert.Equal(t, domain.Sell, sell.Side)
	assert.Equal(t, "eq", sell.HoldingID)
	assert.InDelta(t, 20000.0, sell.Amount, 1e-6)
	assert.Equal(t, 1, sell.Priority)

	assert.Equal(t, domain.Buy, buy.Side)
	assert.Equal(t, "bd", buy.HoldingID)
	assert.InDelta(t, 20000.0, buy.Amount, 1e-6)

	assert.NotEmpty(t, sell.ID)
	assert.NotEqual(t, sell.ID, buy.ID)
	assert.True(t, plan.Needed, "20% shift is well past the tracking-error threshold")
}

func TestCalculateRejectsInvalidWeights(t *testing.T) {
	c := newTestCalculator()

	_, err := c.Calculate(twoHoldings(), []float64{0.6}, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidWeights)

	_, err = c.Calculate(twoHoldings(), []float64{0.6, 0.6}, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidWeights)

	// The ±0.01 tolerance accepts slightly rounded weights.
	_, err = c.Calculate(twoHoldings(), []float64{0.595, 0.4}, 0)
	assert.NoError(t, err)
}

func TestCalculateSkipsSmallTrades(t *testing.T) {
	c := newTestCalculator()

	// Targets within £100 of current values produce no actions.
	holdings := []domain.Holding{
		{ID: "a", Value: 50040, CurrentPrice: 10},
		{ID: "b", Value: 49960, CurrentPrice: 10},
	}
	plan, err := c.Calculate(holdings, []float64{0.5, 0.5}, 0)
	require.NoError(t, err)
	assert.Empty(t, plan.Actions)
	assert.False(t, plan.Needed)
}

func TestShareRounding(t *testing.T) {
	// 1000.57 / 3 = 333.5233...: sells round down, buys round up.
	assert.InDelta(t, 333.52, roundShares(1000.57, 3, false), 1e-9)
	assert.InDelta(t, 333.53, roundShares(1000.57, 3, true), 1e-9)
	assert.Equal(t, 0.0, roundShares(1000, 0, true), "zero price guards")
}

func TestAmountPriorityBuckets(t *testing.T) {
	assert.Equal(t, 1, amountPriority(15000))
	assert.Equal(t, 2, amountPriority(7500))
	assert.Equal(t, 3, amountPriority(3000))
	assert.Equal(t, 4, amountPriority(1500))
	assert.Equal(t, 5, amountPriority(1000))
	assert.Equal(t, 5, amountPriority(150))
}

func TestActionOrdering(t *testing.T) {
	c := newTestCalculator()

	holdings := []domain.Holding{
		{ID: "a", Value: 40000, CurrentPrice: 10},
		{ID: "b", Value: 30000, CurrentPrice: 10},
		{ID: "c", Value: 20000, CurrentPrice: 10},
		{ID: "d", Value: 10000, CurrentPrice: 10},
	}
	plan, err := c.Calculate(holdings, []float64{0.25, 0.25, 0.25, 0.25}, 0)
	require.NoError(t, err)
	require.Len(t, plan.Actions, 4)

	// Sells first, each group in descending amount.
	assert.Equal(t, domain.Sell, plan.Actions[0].Side)
	assert.Equal(t, "a", plan.Actions[0].HoldingID)
	assert.Equal(t, domain.Sell, plan.Actions[1].Side)
	assert.Equal(t, "b", plan.Actions[1].HoldingID)
	assert.Equal(t, domain.Buy, plan.Actions[2].Side)
	assert.Equal(t, "d", plan.Actions[2].HoldingID)
	assert.Equal(t, domain.Buy, plan.Actions[3].Side)
	assert.Equal(t, "c", plan.Actions[3].HoldingID)
}

func TestAvailableCashExpandsTotal(t *testing.T) {
	c := newTestCalculator()

	holdings := []domain.Holding{
		{ID: "a", Value: 5000, CurrentPrice: 10},
		{ID: "b", Value: 5000, CurrentPrice: 10},
	}
	plan, err := c.Calculate(holdings, []float64{0.5, 0.5}, 2000)
	require.NoError(t, err)
	require.Len(t, plan.Actions, 2)

	// The £2k contribution splits into two £1k buys.
	for _, a := range plan.Actions {
		assert.Equal(t, domain.Buy, a.Side)
		assert.InDelta(t, 1000.0, a.Amount, 1e-6)
	}
}

func TestMinTradeAmountScalesWithPortfolio(t *testing.T) {
	c := newTestCalculator()

	assert.Equal(t, DefaultMinTradeSize, c.MinTradeAmount(50000))
	assert.InDelta(t, 500.0, c.MinTradeAmount(500000), 1e-9)
}
