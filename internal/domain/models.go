// Package domain contains the core data model shared by all engine modules.
// Types here are pure data: no infrastructure dependencies, immutable
// snapshots for the duration of a computation.
package domain

import (
	"time"
)

// Holding is a snapshot of one position supplied by the caller.
// The engine never mutates a holding; every transform produces new values.
type Holding struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	AccountID         string    `json:"account_id,omitempty"`
	AssetClass        string    `json:"asset_class"`
	Quantity          float64   `json:"quantity"`
	CurrentPrice      float64   `json:"current_price"`
	PurchasePrice     float64   `json:"purchase_price"`
	PurchaseDate      time.Time `json:"purchase_date"`
	Value             float64   `json:"value"`
	HistoricalReturns []float64 `json:"historical_returns,omitempty"`
	OCFRate           float64   `json:"ocf_rate,omitempty"`
	DividendYield     float64   `json:"dividend_yield,omitempty"`
}

// CurrentValue returns the market value of the holding, preferring the
// explicit value and falling back to quantity × current price.
func (h Holding) CurrentValue() float64 {
	if h.Value > 0 {
		return h.Value
	}
	return h.Quantity * h.CurrentPrice
}

// YearsHeld returns the holding period in fractional years as of now.
func (h Holding) YearsHeld(now time.Time) float64 {
	if h.PurchaseDate.IsZero() || now.Before(h.PurchaseDate) {
		return 0
	}
	return now.Sub(h.PurchaseDate).Hours() / (24 * 365.25)
}

// UnrealizedGain returns the gain or loss that would be realized by selling
// the full position at the current price.
func (h Holding) UnrealizedGain() float64 {
	return (h.CurrentPrice - h.PurchasePrice) * h.Quantity
}

// TotalValue sums the current values of a set of holdings.
func TotalValue(holdings []Holding) float64 {
	total := 0.0
	for _, h := range holdings {
		total += h.CurrentValue()
	}
	return total
}

// AllocationMap maps an asset-class label to its percentage of the
// portfolio (0-100). Current and target variants are compared over the
// union of their key sets; a missing class counts as 0.
type AllocationMap map[string]float64

// Keys returns the union of class labels across the given maps.
func (a AllocationMap) Keys(others ...AllocationMap) []string {
	seen := make(map[string]bool)
	keys := make([]string, 0, len(a))
	add := func(m AllocationMap) {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	add(a)
	for _, m := range others {
		add(m)
	}
	return keys
}

// CurrentAllocation computes the asset-class allocation of a set of
// holdings as percentages of total value. A zero-value portfolio yields an
// empty map.
func CurrentAllocation(holdings []Holding) AllocationMap {
	total := TotalValue(holdings)
	if total <= 0 {
		return AllocationMap{}
	}
	alloc := make(AllocationMap)
	for _, h := range holdings {
		alloc[h.AssetClass] += h.CurrentValue() / total * 100
	}
	return alloc
}

// ActionSide is the direction of a rebalancing trade.
type ActionSide string

const (
	Buy  ActionSide = "buy"
	Sell ActionSide = "sell"
)

// RebalancingAction is one proposed trade. Actions are never mutated in
// place; transformations (tax-aware reordering, allowance scaling) produce
// new action lists.
type RebalancingAction struct {
	ID        string     `json:"id"`
	HoldingID string     `json:"holding_id"`
	Name      string     `json:"name"`
	Side      ActionSide `json:"side"`
	Amount    float64    `json:"amount"`
	Shares    float64    `json:"shares"`
	Priority  int        `json:"priority"`
	Rationale string     `json:"rationale"`
}

// TaxLot captures the tax consequences of one sell action at the moment
// CGT is computed. Derived, never persisted.
type TaxLot struct {
	HoldingID     string  `json:"holding_id"`
	CostBasis     float64 `json:"cost_basis"`
	Proceeds      float64 `json:"proceeds"`
	RealizedGain  float64 `json:"realized_gain"`
	HoldingPeriod float64 `json:"holding_period_years"`
}
