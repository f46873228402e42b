package optimization

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Two-asset fixture: asset B has a quarter of asset A's variance.
var (
	testMu  = []float64{0.08, 0.04}
	testCov = [][]float64{
		{0.04, 0.0},
		{0.0, 0.01},
	}
)

func newTestOptimizer() *Optimizer {
	return NewOptimizer(DefaultConfig(), zerolog.Nop())
}

func assertValidWeights(t *testing.T, w []float64) {
	t.Helper()
	sum := 0.0
	for _, v := range w {
		assert.GreaterOrEqual(t, v, -1e-9)
		assert.LessOrEqual(t, v, 1.0+1e-9)
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 0.01)
}

func TestMinimumVariance(t *testing.T) {
	opt := newTestOptimizer()

	p, err := opt.MinimumVariance(testMu, testCov)
	require.NoError(t, err)
	require.Len(t, p.Weights, 2)

	assertValidWeights(t, p.Weights)
	assert.Equal(t, TypeMinVariance, p.Type)

	// The low-variance asset dominates, and the combined risk undercuts
	// either asset held alone.
	assert.Greater(t, p.Weights[1], p.Weights[0])
	assert.Less(t, p.ExpectedRisk, math.Sqrt(0.04))
	assert.Less(t, p.ExpectedRisk, math.Sqrt(0.01))
}

func TestMinimumVarianceBeatsEqualWeight(t *testing.T) {
	opt := newTestOptimizer()

	minVar, err := opt.MinimumVariance(testMu, testCov)
	require.NoError(t, err)
	equal, err := opt.EqualWeight(testMu, testCov)
	require.NoError(t, err)

	assert.LessOrEqual(t, minVar.ExpectedRisk, equal.ExpectedRisk)
}

func TestMaximumSharpe(t *testing.T) {
	opt := newTestOptimizer()

	tangency, err := opt.MaximumSharpe(testMu, testCov)
	require.NoError(t, err)
	assertValidWeights(t, tangency.Weights)
	assert.Equal(t, TypeMaxSharpe, tangency.Type)

	// The heuristic ascent is approximate; assert relative quality, not
	// exact optimality.
	equal, err := opt.EqualWeight(testMu, testCov)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, tangency.SharpeRatio, equal.SharpeRatio)
}

func TestTargetReturn(t *testing.T) {
	opt := newTestOptimizer()

	p, err := opt.TargetReturn(testMu, testCov, 0.06)
	require.NoError(t, err)
	assertValidWeights(t, p.Weights)
	assert.InDelta(t, 0.06, p.ExpectedReturn, 0.001)
	assert.Equal(t, TypeTargetReturn, p.Type)
}

func TestTargetReturnUnattainable(t *testing.T) {
	opt := newTestOptimizer()

	// No long-only combination of 8% and 4% assets returns 20%.
	_, err := opt.TargetReturn(testMu, testCov, 0.20)
	assert.Error(t, err)
}

func TestRiskParity(t *testing.T) {
	opt := newTestOptimizer()

	p, err := opt.RiskParity(testMu, testCov)
	require.NoError(t, err)
	assertValidWeights(t, p.Weights)

	// Vols are 0.2 and 0.1, so inverse-vol weights are 1/3 and 2/3.
	assert.InDelta(t, 1.0/3, p.Weights[0], 1e-6)
	assert.InDelta(t, 2.0/3, p.Weights[1], 1e-6)
}

func TestEqualWeight(t *testing.T) {
	opt := newTestOptimizer()

	p, err := opt.EqualWeight(testMu, testCov)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.5}, p.Weights)
	assert.InDelta(t, 0.06, p.ExpectedReturn, 1e-9)
	assert.InDelta(t, math.Sqrt(0.0125), p.ExpectedRisk, 1e-9)
}

func TestWeightBoundsRespected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinWeight = 0.2
	cfg.MaxWeight = 0.8
	opt := NewOptimizer(cfg, zerolog.Nop())

	p, err := opt.MinimumVariance(testMu, testCov)
	require.NoError(t, err)
	for _, w := range p.Weights {
		assert.GreaterOrEqual(t, w, 0.2-1e-9)
		assert.LessOrEqual(t, w, 0.8+1e-9)
	}
}

func TestValidateInputs(t *testing.T) {
	opt := newTestOptimizer()

	_, err := opt.MinimumVariance([]float64{0.08}, [][]float64{{0.04}})
	assert.Error(t, err, "single asset")

	_, err = opt.MinimumVariance(testMu, [][]float64{{0.04, 0.0}})
	assert.Error(t, err, "matrix row count mismatch")

	_, err = opt.MinimumVariance(testMu, [][]float64{{0.04}, {0.01}})
	assert.Error(t, err, "matrix row size mismatch")
}

func TestSharpeZeroAtZeroRisk(t *testing.T) {
	opt := newTestOptimizer()

	riskless := [][]float64{
		{0.0, 0.0},
		{0.0, 0.0},
	}
	p, err := opt.EqualWeight(testMu, riskless)
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.ExpectedRisk)
	assert.Equal(t, 0.0, p.SharpeRatio)
}
