// Package optimization implements mean-variance portfolio construction:
// minimum-variance, maximum-Sharpe (tangency), target-return, risk-parity
// and equal-weight portfolios, plus the efficient frontier sweep.
package optimization

// Type identifies which optimizer variant produced a portfolio.
type Type string

const (
	TypeMinVariance  Type = "min_variance"
	TypeMaxSharpe    Type = "max_sharpe"
	TypeTargetReturn Type = "target_return"
	TypeRiskParity   Type = "risk_parity"
	TypeEqualWeight  Type = "equal_weight"

	// TypeCurrent marks a portfolio built from the caller's existing
	// holdings rather than an optimizer run.
	TypeCurrent Type = "current"
)

// Portfolio is a weight vector with its derived metrics. Metrics are never
// stored independently of the weights that produced them.
//
// SharpeRatio is 0 when expected risk is 0 (riskless degenerate case).
type Portfolio struct {
	Weights        []float64 `json:"weights"`
	ExpectedReturn float64   `json:"expected_return"`
	ExpectedRisk   float64   `json:"expected_risk"`
	SharpeRatio    float64   `json:"sharpe_ratio"`
	Type           Type      `json:"optimization_type"`
}

// Config holds the solver parameters shared by the iterative variants.
type Config struct {
	LearningRate    float64 // gradient step size
	MaxIterations   int     // iteration budget per solve
	Tolerance       float64 // L1 weight-change convergence threshold
	ReturnTolerance float64 // additional return-error threshold (target-return variant)
	PenaltyLambda   float64 // penalty weight on the return constraint
	MinWeight       float64 // per-asset lower bound
	MaxWeight       float64 // per-asset upper bound
	RiskFreeRate    float64
}

// DefaultConfig returns the standard solver parameters: no short selling,
// 0.01 learning rate, 1e-6 L1 convergence.
func DefaultConfig() Config {
	return Config{
		LearningRate:    0.01,
		MaxIterations:   1000,
		Tolerance:       1e-6,
		ReturnTolerance: 1e-3,
		PenaltyLambda:   1000.0,
		MinWeight:       0.0,
		MaxWeight:       1.0,
		RiskFreeRate:    0.02,
	}
}
