package optimization

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/pkg/formulas"
)

// Optimizer solves the mean-variance problems with projected gradient
// iteration. All variants start from equal weighting; each step projects
// weights into [MinWeight, MaxWeight] and renormalizes them to sum to 1.
type Optimizer struct {
	cfg Config
	log zerolog.Logger
}

// NewOptimizer creates an optimizer with the given solver parameters.
func NewOptimizer(cfg Config, log zerolog.Logger) *Optimizer {
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.01
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 1000
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 1e-6
	}
	// The penalty method leaves a residual return error of order 1/λ, so
	// the return tolerance must sit above that scale.
	if cfg.ReturnTolerance <= 0 {
		cfg.ReturnTolerance = 1e-3
	}
	if cfg.PenaltyLambda <= 0 {
		cfg.PenaltyLambda = 1000.0
	}
	if cfg.MaxWeight <= 0 {
		cfg.MaxWeight = 1.0
	}
	return &Optimizer{
		cfg: cfg,
		log: log.With().Str("component", "optimizer").Logger(),
	}
}

// MinimumVariance finds the bounded portfolio minimizing w'Σw by
// descending the gradient 2Σw.
func (o *Optimizer) MinimumVariance(mu []float64, cov [][]float64) (*Portfolio, error) {
	if err := validateInputs(mu, cov); err != nil {
		return nil, err
	}
	n := len(mu)

	w := equalWeights(n)

	// Descent from the equal-weight start reduces variance each step; the
	// final iterate is returned even when the weight change hasn't settled
	// below tolerance within the budget.
	for iter := 0; iter < o.cfg.MaxIterations; iter++ {
		grad := formulas.MatVec(cov, w)

		next := make([]float64, n)
		for i := 0; i < n; i++ {
			next[i] = w[i] - o.cfg.LearningRate*2*grad[i]
		}
		next = o.projectAndNormalize(next)

		if l1Change(w, next) < o.cfg.Tolerance {
			w = next
			break
		}
		w = next
	}

	return o.portfolio(w, mu, cov, TypeMinVariance), nil
}

// MaximumSharpe finds the tangency portfolio by ascending a
// finite-difference approximation of the Sharpe gradient. Ascent is not
// guaranteed monotonic, so the best-Sharpe iterate seen is tracked and
// returned rather than the final one.
func (o *Optimizer) MaximumSharpe(mu []float64, cov [][]float64) (*Portfolio, error) {
	if err := validateInputs(mu, cov); err != nil {
		return nil, err
	}
	n := len(mu)
	const bump = 1e-5

	sharpeOf := func(w []float64) float64 {
		ret := formulas.Dot(mu, w)
		risk := math.Sqrt(formulas.QuadraticForm(w, cov))
		return formulas.SharpeRatio(ret, o.cfg.RiskFreeRate, risk)
	}

	w := equalWeights(n)
	best := w
	bestSharpe := sharpeOf(w)

	iterations := o.cfg.MaxIterations * 2 // Sharpe ascent needs the longer budget

	for iter := 0; iter < iterations; iter++ {
		base := sharpeOf(w)

		grad := make([]float64, n)
		for i := 0; i < n; i++ {
			bumped := make([]float64, n)
			copy(bumped, w)
			bumped[i] += bump
			grad[i] = (sharpeOf(o.projectAndNormalize(bumped)) - base) / bump
		}

		next := make([]float64, n)
		for i := 0; i < n; i++ {
			next[i] = w[i] + o.cfg.LearningRate*grad[i]
		}
		next = o.projectAndNormalize(next)

		if s := sharpeOf(next); s > bestSharpe {
			bestSharpe = s
			best = next
		}

		if l1Change(w, next) < o.cfg.Tolerance {
			break
		}
		w = next
	}

	return o.portfolio(best, mu, cov, TypeMaxSharpe), nil
}

// TargetReturn finds the minimum-variance portfolio achieving the target
// expected return via penalty-method descent on
//
//	w'Σw + λ(w'μ - target)²
//
// Convergence requires both the weight change and the return error to fall
// below their thresholds.
func (o *Optimizer) TargetReturn(mu []float64, cov [][]float64, target float64) (*Portfolio, error) {
	if err := validateInputs(mu, cov); err != nil {
		return nil, err
	}
	n := len(mu)

	w := equalWeights(n)

	for iter := 0; iter < o.cfg.MaxIterations; iter++ {
		sigmaW := formulas.MatVec(cov, w)
		returnErr := formulas.Dot(mu, w) - target

		next := make([]float64, n)
		for i := 0; i < n; i++ {
			grad := 2*sigmaW[i] + 2*o.cfg.PenaltyLambda*returnErr*mu[i]
			next[i] = w[i] - o.cfg.LearningRate*grad
		}
		next = o.projectAndNormalize(next)

		nextErr := math.Abs(formulas.Dot(mu, next) - target)
		if l1Change(w, next) < o.cfg.Tolerance && nextErr < o.cfg.ReturnTolerance {
			w = next
			break
		}
		w = next
	}

	// An unattainable target (outside what the bounded weights can reach)
	// leaves a large residual return error; that counts as non-convergence.
	if math.Abs(formulas.Dot(mu, w)-target) >= o.cfg.ReturnTolerance {
		return nil, fmt.Errorf("target-return optimization did not converge for target %.4f within %d iterations", target, o.cfg.MaxIterations)
	}

	return o.portfolio(w, mu, cov, TypeTargetReturn), nil
}

// RiskParity weights each asset inversely to its individual volatility.
// Closed form, no iteration.
func (o *Optimizer) RiskParity(mu []float64, cov [][]float64) (*Portfolio, error) {
	if err := validateInputs(mu, cov); err != nil {
		return nil, err
	}
	n := len(mu)

	w := make([]float64, n)
	sum := 0.0
	for i := 0; i < n; i++ {
		vol := math.Sqrt(math.Max(cov[i][i], 0))
		// Volatility floor keeps a riskless asset from absorbing the
		// entire portfolio.
		w[i] = 1 / math.Max(vol, 1e-8)
		sum += w[i]
	}
	for i := range w {
		w[i] /= sum
	}

	return o.portfolio(o.projectAndNormalize(w), mu, cov, TypeRiskParity), nil
}

// EqualWeight returns the trivial 1/N portfolio with full metrics, as a
// comparison baseline.
func (o *Optimizer) EqualWeight(mu []float64, cov [][]float64) (*Portfolio, error) {
	if err := validateInputs(mu, cov); err != nil {
		return nil, err
	}
	return o.portfolio(equalWeights(len(mu)), mu, cov, TypeEqualWeight), nil
}

// portfolio assembles a Portfolio with derived metrics. Variance is
// clamped to be non-negative before the square root.
func (o *Optimizer) portfolio(w, mu []float64, cov [][]float64, t Type) *Portfolio {
	ret := formulas.Dot(mu, w)
	risk := math.Sqrt(formulas.QuadraticForm(w, cov))
	return &Portfolio{
		Weights:        w,
		ExpectedReturn: ret,
		ExpectedRisk:   risk,
		SharpeRatio:    formulas.SharpeRatio(ret, o.cfg.RiskFreeRate, risk),
		Type:           t,
	}
}

// projectAndNormalize clamps each weight into [MinWeight, MaxWeight] and
// rescales the vector to sum to 1. A degenerate all-zero vector falls back
// to equal weights.
func (o *Optimizer) projectAndNormalize(w []float64) []float64 {
	proj := make([]float64, len(w))
	sum := 0.0
	for i, v := range w {
		proj[i] = formulas.Clamp(v, o.cfg.MinWeight, o.cfg.MaxWeight)
		sum += proj[i]
	}
	if sum <= 0 {
		return equalWeights(len(w))
	}
	for i := range proj {
		proj[i] /= sum
	}
	return proj
}

func equalWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	return w
}

func l1Change(a, b []float64) float64 {
	change := 0.0
	for i := range a {
		change += math.Abs(a[i] - b[i])
	}
	return change
}

func validateInputs(mu []float64, cov [][]float64) error {
	n := len(mu)
	if n < 2 {
		return fmt.Errorf("optimization requires at least 2 assets, got %d", n)
	}
	if len(cov) != n {
		return fmt.Errorf("covariance matrix size %d doesn't match asset count %d", len(cov), n)
	}
	for i := range cov {
		if len(cov[i]) != n {
			return fmt.Errorf("covariance matrix row %d has size %d, expected %d", i, len(cov[i]), n)
		}
	}
	return nil
}
