package risk

import (
	"math"
)

// CorrelationPair flags a notable relationship between two assets.
type CorrelationPair struct {
	AssetID1    string  `json:"asset_id_1"`
	AssetID2    string  `json:"asset_id_2"`
	Correlation float64 `json:"correlation"`
}

// CorrelationMatrix normalizes a covariance matrix into a correlation
// matrix: corr(i,j) = cov(i,j) / (σ_i σ_j). The diagonal is fixed at
// exactly 1.0; pairs involving a zero-variance asset are 0.
func CorrelationMatrix(cov [][]float64) [][]float64 {
	n := len(cov)
	corr := make([][]float64, n)
	for i := range corr {
		corr[i] = make([]float64, n)
		corr[i][i] = 1.0
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			denom := math.Sqrt(cov[i][i] * cov[j][j])
			if denom > 0 {
				c := cov[i][j] / denom
				corr[i][j] = c
				corr[j][i] = c
			}
		}
	}

	return corr
}

// RedundantPairs returns pairs correlated above RedundantThreshold. Such
// pairs contribute overlapping risk and are candidates for consolidation.
func RedundantPairs(m *Matrix) []CorrelationPair {
	return pairsWhere(m, func(c float64) bool { return c > RedundantThreshold })
}

// DiversifyingPairs returns pairs correlated below DiversifyingThreshold
// (including negative correlations), which actively reduce portfolio risk.
func DiversifyingPairs(m *Matrix) []CorrelationPair {
	return pairsWhere(m, func(c float64) bool { return c < DiversifyingThreshold })
}

func pairsWhere(m *Matrix, match func(float64) bool) []CorrelationPair {
	corr := CorrelationMatrix(m.Cov)
	pairs := make([]CorrelationPair, 0)
	for i := 0; i < len(corr); i++ {
		for j := i + 1; j < len(corr); j++ {
			if match(corr[i][j]) {
				pairs = append(pairs, CorrelationPair{
					AssetID1:    m.AssetIDs[i],
					AssetID2:    m.AssetIDs[j],
					Correlation: corr[i][j],
				})
			}
		}
	}
	return pairs
}

// BuildCorrelationMap converts pairs to a map keyed "id1:id2", storing both
// orderings for symmetric lookup.
func BuildCorrelationMap(pairs []CorrelationPair) map[string]float64 {
	correlationMap := make(map[string]float64, len(pairs)*2)
	for _, pair := range pairs {
		correlationMap[pair.AssetID1+":"+pair.AssetID2] = pair.Correlation
		correlationMap[pair.AssetID2+":"+pair.AssetID1] = pair.Correlation
	}
	return correlationMap
}
