package risk

import (
	"math"

	"github.com/aristath/folio/pkg/formulas"
)

// PortfolioVolatility computes sqrt(w'Σw), the realized portfolio
// standard deviation under the covariance matrix.
func PortfolioVolatility(weights []float64, cov [][]float64) float64 {
	return math.Sqrt(formulas.QuadraticForm(weights, cov))
}

// DiversificationBenefit scores how much the portfolio's realized
// volatility undercuts the weighted sum of individual volatilities:
//
//	benefit = Σ w_i σ_i / σ_portfolio
//
// A ratio above 1 indicates the holdings diversify each other; exactly 1
// means no benefit (perfect correlation). Returns 0 when portfolio
// volatility is zero.
func DiversificationBenefit(weights []float64, cov [][]float64) float64 {
	portfolioVol := PortfolioVolatility(weights, cov)
	if portfolioVol <= 0 {
		return 0
	}

	weightedIndividual := 0.0
	for i, w := range weights {
		weightedIndividual += w * math.Sqrt(math.Max(0, cov[i][i]))
	}

	return weightedIndividual / portfolioVol
}

// MarginalRiskContributions computes each asset's marginal contribution to
// portfolio risk: (Σw)_i / σ_portfolio. Returns a zero slice when the
// portfolio has no volatility.
func MarginalRiskContributions(weights []float64, cov [][]float64) []float64 {
	contributions := make([]float64, len(weights))
	portfolioVol := PortfolioVolatility(weights, cov)
	if portfolioVol <= 0 {
		return contributions
	}

	sigmaW := formulas.MatVec(cov, weights)
	if sigmaW == nil {
		return contributions
	}

	for i := range contributions {
		contributions[i] = sigmaW[i] / portfolioVol
	}
	return contributions
}
