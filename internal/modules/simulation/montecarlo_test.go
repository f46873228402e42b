package simulation

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSimulator() *Simulator {
	return NewSimulator(42, zerolog.Nop())
}

func TestRunProducesPercentileTable(t *testing.T) {
	s := newTestSimulator()

	result, err := s.Run(Params{
		StartingValue:       10000,
		MonthlyContribution: 100,
		ExpectedReturn:      0.07,
		Volatility:          0.15,
		Years:               10,
		Iterations:          2000,
	})
	require.NoError(t, err)
	require.Len(t, result.Projections, 10)
	assert.Equal(t, 2000, result.Iterations)
	assert.Len(t, result.FinalValues, 2000)

	for _, p := range result.Projections {
		assert.LessOrEqual(t, p.P10, p.P25)
		assert.LessOrEqual(t, p.P25, p.P50)
		assert.LessOrEqual(t, p.P50, p.P75)
		assert.LessOrEqual(t, p.P75, p.P90)
	}
}

func TestRunIsReproducibleForFixedSeed(t *testing.T) {
	params := Params{
		StartingValue:  10000,
		ExpectedReturn: 0.06,
		Volatility:     0.12,
		Years:          5,
		Iterations:     500,
	}

	a, err := NewSimulator(7, zerolog.Nop()).Run(params)
	require.NoError(t, err)
	b, err := NewSimulator(7, zerolog.Nop()).Run(params)
	require.NoError(t, err)

	assert.Equal(t, a.Projections, b.Projections)
}

func TestRunZeroVolatilityIsDeterministicGrowth(t *testing.T) {
	s := newTestSimulator()

	result, err := s.Run(Params{
		StartingValue:  10000,
		ExpectedReturn: 0.05,
		Volatility:     0,
		Years:          3,
		Iterations:     100,
	})
	require.NoError(t, err)

	// Every path compounds identically, so all percentiles agree.
	final := result.Projections[2]
	expected := 10000 * math.Pow(1.05, 3)
	assert.InDelta(t, expected, final.P50, 1.0)
	assert.InDelta(t, final.P10, final.P90, 1e-6)
}

func TestContributionsCompoundWithinYear(t *testing.T) {
	s := newTestSimulator()

	result, err := s.Run(Params{
		StartingValue:       0,
		MonthlyContribution: 100,
		ExpectedReturn:      0.12,
		Volatility:          0,
		Years:               1,
		Iterations:          10,
	})
	require.NoError(t, err)

	// 12 contributions of £100 with intra-year growth land above £1,200.
	assert.Greater(t, result.Projections[0].P50, 1200.0)
}

func TestGoalProbability(t *testing.T) {
	s := newTestSimulator()

	result, err := s.Run(Params{
		StartingValue:  10000,
		ExpectedReturn: 0.07,
		Volatility:     0.15,
		Years:          10,
		Iterations:     2000,
	})
	require.NoError(t, err)

	assert.Equal(t, 1.0, result.GoalProbability(0), "every path meets a zero target")
	assert.Equal(t, 0.0, result.GoalProbability(1e12))

	p := result.GoalProbability(15000)
	assert.Greater(t, p, 0.0)
	assert.Less(t, p, 1.0)

	empty := &Result{}
	assert.Equal(t, 0.0, empty.GoalProbability(100))
}

func TestRunValidation(t *testing.T) {
	s := newTestSimulator()

	_, err := s.Run(Params{Years: 0, Iterations: 100})
	assert.Error(t, err)

	_, err = s.Run(Params{Years: 5, StartingValue: -1})
	assert.Error(t, err)

	_, err = s.Run(Params{Years: 5, Volatility: -0.1})
	assert.Error(t, err)
}

func TestRunDefaultsAndCapsIterations(t *testing.T) {
	s := newTestSimulator()

	result, err := s.Run(Params{StartingValue: 1000, ExpectedReturn: 0.05, Volatility: 0.1, Years: 1})
	require.NoError(t, err)
	assert.Equal(t, DefaultIterations, result.Iterations)

	result, err = s.Run(Params{StartingValue: 1000, ExpectedReturn: 0.05, Volatility: 0.1, Years: 1, Iterations: 50000})
	require.NoError(t, err)
	assert.Equal(t, MaxIterations, result.Iterations)
}
