package history

import "fmt"

// Layered chains return providers: each asset is served by the first
// provider that has a series for it. Callers use it to prefer
// request-supplied series while falling back to the price store.
type Layered []ReturnsProvider

// ReturnsSeries returns the first provider's series for the asset.
func (l Layered) ReturnsSeries(assetID string) ([]float64, error) {
	for _, p := range l {
		if series, err := p.ReturnsSeries(assetID); err == nil {
			return series, nil
		}
	}
	return nil, fmt.Errorf("no return series for asset %s", assetID)
}

// AlignedReturns resolves each asset through the layer chain, then
// truncates all series to the shortest common length.
func (l Layered) AlignedReturns(assetIDs []string, lookbackDays int) (map[string][]float64, error) {
	merged := make(StaticProvider, len(assetIDs))
	for _, id := range assetIDs {
		series, err := l.ReturnsSeries(id)
		if err != nil {
			return nil, err
		}
		merged[id] = series
	}
	return merged.AlignedReturns(assetIDs, lookbackDays)
}
