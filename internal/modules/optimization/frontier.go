package optimization

import (
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultFrontierPoints is the number of target-return sweeps between the
// minimum-variance return and the highest single-asset return.
const DefaultFrontierPoints = 20

// frontierWorkers bounds the parallel target-return solves. Each point is
// independent, so ordering between them doesn't matter; results are
// collected by index.
const frontierWorkers = 8

// CALPoint is one sample of the Capital Allocation Line, the line from the
// risk-free rate through the tangency portfolio in risk/return space.
type CALPoint struct {
	Risk           float64 `json:"risk"`
	ExpectedReturn float64 `json:"expected_return"`
}

// Comparison measures how far the caller's current portfolio sits from the
// optimum and recommends what to do about it.
type Comparison struct {
	Current           *Portfolio `json:"current"`
	SharpeImprovement float64    `json:"sharpe_improvement"`
	ReturnImprovement float64    `json:"return_improvement"`
	RiskReduction     float64    `json:"risk_reduction"`
	Recommendation    string     `json:"recommendation"`
}

// Frontier is the full efficient-frontier result: the swept curve, the two
// anchor portfolios, the CAL, and the current-vs-optimal comparison.
// Skipped counts sweep points whose target return was unattainable.
type Frontier struct {
	Points      []*Portfolio `json:"points"`
	MinVariance *Portfolio   `json:"min_variance"`
	Tangency    *Portfolio   `json:"tangency"`
	CAL         []CALPoint   `json:"capital_allocation_line"`
	Comparison  *Comparison  `json:"comparison"`
	Skipped     int          `json:"skipped_points"`
}

// FrontierCalculator orchestrates the optimizer across a return range.
type FrontierCalculator struct {
	opt       *Optimizer
	numPoints int
	log       zerolog.Logger
}

// NewFrontierCalculator creates a frontier calculator over the given
// optimizer. numPoints <= 1 falls back to DefaultFrontierPoints.
func NewFrontierCalculator(opt *Optimizer, numPoints int, log zerolog.Logger) *FrontierCalculator {
	if numPoints <= 1 {
		numPoints = DefaultFrontierPoints
	}
	return &FrontierCalculator{
		opt:       opt,
		numPoints: numPoints,
		log:       log.With().Str("component", "frontier").Logger(),
	}
}

// Calculate builds the efficient frontier for the given inputs.
// currentWeights may be nil, in which case no comparison is produced.
func (f *FrontierCalculator) Calculate(mu []float64, cov [][]float64, currentWeights []float64) (*Frontier, error) {
	minVar, err := f.opt.MinimumVariance(mu, cov)
	if err != nil {
		return nil, fmt.Errorf("frontier anchor failed: %w", err)
	}
	tangency, err := f.opt.MaximumSharpe(mu, cov)
	if err != nil {
		return nil, fmt.Errorf("frontier anchor failed: %w", err)
	}

	points, skipped := f.sweep(mu, cov, minVar.ExpectedReturn)

	frontier := &Frontier{
		Points:      points,
		MinVariance: minVar,
		Tangency:    tangency,
		CAL:         f.capitalAllocationLine(tangency),
		Skipped:     skipped,
	}

	if currentWeights != nil {
		if len(currentWeights) != len(mu) {
			return nil, fmt.Errorf("current weights length %d doesn't match asset count %d", len(currentWeights), len(mu))
		}
		frontier.Comparison = f.compare(currentWeights, mu, cov, minVar, tangency)
	}

	f.log.Info().
		Int("points", len(points)).
		Int("skipped", skipped).
		Float64("tangency_sharpe", tangency.SharpeRatio).
		Msg("Built efficient frontier")

	return frontier, nil
}

// sweep runs the target-return optimizer at numPoints targets spaced
// linearly from the minimum-variance return to the highest single-asset
// return. Targets the solver can't reach are skipped with a warning; the
// remaining points still form a valid curve.
func (f *FrontierCalculator) sweep(mu []float64, cov [][]float64, minReturn float64) ([]*Portfolio, int) {
	maxReturn := mu[0]
	for _, r := range mu[1:] {
		if r > maxReturn {
			maxReturn = r
		}
	}
	if maxReturn <= minReturn {
		return []*Portfolio{}, 0
	}

	step := (maxReturn - minReturn) / float64(f.numPoints-1)
	results := make([]*Portfolio, f.numPoints)

	var mu2 sync.Mutex
	skipped := 0

	var g errgroup.Group
	g.SetLimit(frontierWorkers)
	for i := 0; i < f.numPoints; i++ {
		g.Go(func() error {
			target := minReturn + float64(i)*step
			p, err := f.opt.TargetReturn(mu, cov, target)
			if err != nil {
				f.log.Warn().
					Float64("target_return", target).
					Err(err).
					Msg("Skipping frontier point")
				mu2.Lock()
				skipped++
				mu2.Unlock()
				return nil
			}
			results[i] = p
			return nil
		})
	}
	_ = g.Wait() // workers report failures via skipped, never as errors

	points := make([]*Portfolio, 0, f.numPoints)
	for _, p := range results {
		if p != nil {
			points = append(points, p)
		}
	}
	return points, skipped
}

// capitalAllocationLine samples the CAL from zero risk to twice the
// tangency risk: return = R_f + Sharpe · risk.
func (f *FrontierCalculator) capitalAllocationLine(tangency *Portfolio) []CALPoint {
	maxRisk := 2 * tangency.ExpectedRisk
	if maxRisk <= 0 {
		return []CALPoint{}
	}

	cal := make([]CALPoint, f.numPoints)
	step := maxRisk / float64(f.numPoints-1)
	for i := range cal {
		risk := float64(i) * step
		cal[i] = CALPoint{
			Risk:           risk,
			ExpectedReturn: f.opt.cfg.RiskFreeRate + tangency.SharpeRatio*risk,
		}
	}
	return cal
}

// compare measures the current portfolio against the tangency and
// minimum-variance portfolios and produces a qualitative recommendation
// keyed on the size of the Sharpe gap.
func (f *FrontierCalculator) compare(weights, mu []float64, cov [][]float64, minVar, tangency *Portfolio) *Comparison {
	current := f.opt.portfolio(weights, mu, cov, TypeCurrent)

	sharpeGap := tangency.SharpeRatio - current.SharpeRatio
	riskReduction := current.ExpectedRisk - minVar.ExpectedRisk

	var recommendation string
	switch {
	case sharpeGap > 0.3:
		recommendation = "Significant improvement available: rebalancing toward the tangency portfolio would materially raise risk-adjusted returns."
	case sharpeGap > 0.1:
		recommendation = "Moderate improvement available: consider shifting toward the tangency portfolio."
	case riskReduction > 0.05:
		recommendation = "Risk-adjusted returns are near optimal, but overall risk could be reduced toward the minimum-variance portfolio."
	default:
		recommendation = "Portfolio is well-optimized; no rebalancing indicated."
	}

	return &Comparison{
		Current:           current,
		SharpeImprovement: sharpeGap,
		ReturnImprovement: tangency.ExpectedReturn - current.ExpectedReturn,
		RiskReduction:     math.Max(0, riskReduction),
		Recommendation:    recommendation,
	}
}

// CurrentWeights derives a weight vector from holding values, defaulting to
// an equal split when total value is zero.
func CurrentWeights(values []float64) []float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	if total <= 0 {
		return equalWeights(len(values))
	}
	w := make([]float64, len(values))
	for i, v := range values {
		w[i] = v / total
	}
	return w
}
