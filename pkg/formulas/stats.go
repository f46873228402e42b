package formulas

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Variance calculates the variance of a slice of float64 values
func Variance(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Variance(data, nil)
}

// Covariance calculates the sample covariance between two datasets
func Covariance(x, y []float64) float64 {
	if len(x) == 0 || len(y) == 0 || len(x) != len(y) {
		return 0
	}
	return stat.Covariance(x, y, nil)
}

// Correlation calculates the Pearson correlation coefficient between two datasets
func Correlation(x, y []float64) float64 {
	if len(x) == 0 || len(y) == 0 || len(x) != len(y) {
		return 0
	}
	return stat.Correlation(x, y, nil)
}

// Dot calculates the dot product of two equal-length vectors.
// Returns 0 for mismatched or empty inputs.
func Dot(x, y []float64) float64 {
	if len(x) == 0 || len(x) != len(y) {
		return 0
	}
	return mat.Dot(mat.NewVecDense(len(x), x), mat.NewVecDense(len(y), y))
}

// MatVec multiplies an n×n matrix by an n-vector, returning a new slice.
// Returns nil when dimensions don't line up.
func MatVec(m [][]float64, v []float64) []float64 {
	n := len(v)
	if n == 0 || len(m) != n {
		return nil
	}
	flat := make([]float64, 0, n*n)
	for _, row := range m {
		if len(row) != n {
			return nil
		}
		flat = append(flat, row...)
	}

	var out mat.VecDense
	out.MulVec(mat.NewDense(n, n, flat), mat.NewVecDense(n, v))

	result := make([]float64, n)
	for i := 0; i < n; i++ {
		result[i] = out.AtVec(i)
	}
	return result
}

// QuadraticForm computes w'Σw for a weight vector and square matrix,
// clamped to be non-negative. This is the portfolio variance formula.
func QuadraticForm(w []float64, sigma [][]float64) float64 {
	sw := MatVec(sigma, w)
	if sw == nil {
		return 0
	}
	return math.Max(0, Dot(w, sw))
}

// CalculateReturns converts prices to percentage returns
// Returns[i] = (Price[i] - Price[i-1]) / Price[i-1]
func CalculateReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}

	return returns
}

// AnnualizedVolatility calculates annualized volatility from daily returns
// Formula: Std Dev of Daily Returns × sqrt(252 trading days)
func AnnualizedVolatility(dailyReturns []float64) float64 {
	if len(dailyReturns) == 0 {
		return 0
	}
	return StdDev(dailyReturns) * math.Sqrt(252)
}

// Clamp restricts a value to a given range.
func Clamp(value, min, max float64) float64 {
	return math.Max(min, math.Min(max, value))
}
