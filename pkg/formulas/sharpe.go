package formulas

// SharpeRatio calculates the risk-adjusted return of a portfolio.
//
// Sharpe Ratio Formula:
//
//	Sharpe = (Portfolio Return - Risk-free Rate) / Portfolio Standard Deviation
//
// Zero volatility is a degenerate case (a riskless portfolio); the ratio is
// defined as 0 rather than dividing by zero.
func SharpeRatio(portfolioReturn, riskFreeRate, stdDev float64) float64 {
	if stdDev <= 0 {
		return 0
	}
	return (portfolioReturn - riskFreeRate) / stdDev
}
