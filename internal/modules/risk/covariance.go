// Package risk builds covariance and correlation matrices from historical
// return series and derives portfolio risk diagnostics from them.
package risk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/folio/internal/cache"
	"github.com/aristath/folio/internal/history"
)

// Correlation thresholds for pair flagging.
const (
	RedundantThreshold    = 0.90 // pairs above this add little diversification
	DiversifyingThreshold = 0.30 // pairs below this actively diversify
)

// Matrix is the result of a covariance build. The matrix is square and
// symmetric, indexed by AssetIDs order; diagonal entries are variances.
type Matrix struct {
	AssetIDs []string             `json:"asset_ids" msgpack:"asset_ids"`
	Cov      [][]float64          `json:"cov" msgpack:"cov"`
	Returns  map[string][]float64 `json:"returns" msgpack:"returns"`
}

// Variance returns the diagonal entry for asset i.
func (m *Matrix) Variance(i int) float64 {
	return m.Cov[i][i]
}

// Builder builds covariance matrices from a return series provider.
type Builder struct {
	provider  history.SeriesProvider
	cache     *cache.Cache
	shrinkage bool
	log       zerolog.Logger
}

// NewBuilder creates a covariance builder over the given provider.
func NewBuilder(provider history.SeriesProvider, log zerolog.Logger) *Builder {
	return &Builder{
		provider: provider,
		log:      log.With().Str("component", "risk").Logger(),
	}
}

// SetCache enables caching of covariance builds. Optional; without it
// every build is computed fresh.
func (b *Builder) SetCache(c *cache.Cache) {
	b.cache = c
}

// SetShrinkage toggles Ledoit-Wolf shrinkage toward a constant-correlation
// target. Off by default: the sample matrix keeps exact symmetry and
// variance diagonals; shrinkage trades that for conditioning.
func (b *Builder) SetShrinkage(enabled bool) {
	b.shrinkage = enabled
}

// Build computes the covariance matrix for the given assets.
func (b *Builder) Build(assetIDs []string, lookbackDays int) (*Matrix, error) {
	if len(assetIDs) < 2 {
		return nil, fmt.Errorf("covariance requires at least 2 assets, got %d", len(assetIDs))
	}

	key := hashAssetKey(assetIDs, lookbackDays)
	if b.cache != nil {
		var cached Matrix
		if b.cache.Get("covariance", key, &cached) {
			b.log.Debug().
				Int("num_assets", len(assetIDs)).
				Str("hash", key[:8]).
				Msg("Using cached covariance matrix")
			return &cached, nil
		}
	}

	returns, err := b.provider.AlignedReturns(assetIDs, lookbackDays)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch return series: %w", err)
	}

	cov, err := sampleCovariance(returns, assetIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate covariance: %w", err)
	}

	if b.shrinkage {
		cov = applyShrinkage(cov)
	}

	matrix := &Matrix{AssetIDs: assetIDs, Cov: cov, Returns: returns}

	if b.cache != nil {
		if err := b.cache.Set("covariance", key, matrix, cache.TTLCovariance); err != nil {
			b.log.Warn().Err(err).Msg("Failed to cache covariance matrix")
		}
	}

	b.log.Info().
		Int("matrix_size", len(cov)).
		Bool("shrinkage", b.shrinkage).
		Msg("Built covariance matrix")

	return matrix, nil
}

// hashAssetKey creates a deterministic cache key from sorted asset IDs and
// the lookback window.
func hashAssetKey(assetIDs []string, lookbackDays int) string {
	sorted := make([]string, len(assetIDs))
	copy(sorted, assetIDs)
	sort.Strings(sorted)
	keyData := fmt.Sprintf("%s|%d", strings.Join(sorted, ","), lookbackDays)
	h := sha256.Sum256([]byte(keyData))
	return hex.EncodeToString(h[:16])
}

// sampleCovariance calculates the sample covariance matrix (N-1
// denominator) from aligned return series. The result is symmetric by
// construction: element (j,i) is assigned from (i,j).
func sampleCovariance(returns map[string][]float64, assetIDs []string) ([][]float64, error) {
	var returnLength int
	for _, id := range assetIDs {
		ret, ok := returns[id]
		if !ok {
			return nil, fmt.Errorf("missing returns for asset %s", id)
		}
		if returnLength == 0 {
			returnLength = len(ret)
		}
		if len(ret) != returnLength {
			return nil, fmt.Errorf("inconsistent return lengths: expected %d, got %d for asset %s", returnLength, len(ret), id)
		}
	}

	if returnLength < 2 {
		return nil, fmt.Errorf("insufficient data: need at least 2 observations, got %d", returnLength)
	}

	n := len(assetIDs)
	covMatrix := make([][]float64, n)
	for i := range covMatrix {
		covMatrix[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov := stat.Covariance(returns[assetIDs[i]], returns[assetIDs[j]], nil)
			covMatrix[i][j] = cov
			if i != j {
				covMatrix[j][i] = cov
			}
		}
	}

	return covMatrix, nil
}

// applyShrinkage shrinks the sample covariance toward a constant-correlation
// target. Simplified Ledoit-Wolf: the intensity is estimated from the
// dispersion of sample elements around the target, capped at 0.5.
func applyShrinkage(sampleCov [][]float64) [][]float64 {
	n := len(sampleCov)
	if n == 0 {
		return sampleCov
	}

	var avgVar, avgCov float64
	for i := 0; i < n; i++ {
		avgVar += sampleCov[i][i]
		for j := 0; j < n; j++ {
			if i != j {
				avgCov += sampleCov[i][j]
			}
		}
	}
	avgVar /= float64(n)
	if n > 1 {
		avgCov /= float64(n * (n - 1))
	}

	target := func(i, j int) float64 {
		if i == j {
			return avgVar
		}
		return avgCov
	}

	shrinkageIntensity := 0.2
	if n > 2 && avgVar > 0 {
		var sumSqDiff, sumSq, mean float64
		count := float64(n * n)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				diff := sampleCov[i][j] - target(i, j)
				sumSqDiff += diff * diff
				mean += sampleCov[i][j]
				sumSq += sampleCov[i][j] * sampleCov[i][j]
			}
		}
		meanSqDiff := sumSqDiff / count
		mean /= count
		varSample := sumSq/count - mean*mean
		if varSample > 0 && meanSqDiff > 0 {
			shrinkageIntensity = math.Min(0.5, math.Max(0.0, varSample/(varSample+meanSqDiff)))
		}
	}

	shrunk := make([][]float64, n)
	for i := 0; i < n; i++ {
		shrunk[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			shrunk[i][j] = (1-shrinkageIntensity)*sampleCov[i][j] + shrinkageIntensity*target(i, j)
		}
	}
	return shrunk
}
