package rebalancing

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/domain"
)

// Frequency names a calendar rebalancing cadence.
type Frequency string

const (
	FrequencyQuarterly  Frequency = "quarterly"
	FrequencySemiAnnual Frequency = "semi_annual"
	FrequencyAnnual     Frequency = "annual"
	FrequencyBiennial   Frequency = "biennial"
)

// Days returns the cadence length in days. Unknown frequencies default to
// annual.
func (f Frequency) Days() int {
	switch f {
	case FrequencyQuarterly:
		return 90
	case FrequencySemiAnnual:
		return 182
	case FrequencyBiennial:
		return 730
	default:
		return 365
	}
}

// DefaultDriftThreshold is the single-class drift percentage that triggers
// threshold-based rebalancing.
const DefaultDriftThreshold = 5.0

// OpportunisticFlowThreshold is the minimum cash flow, as a fraction of
// portfolio value, worth deploying against drift.
const OpportunisticFlowThreshold = 0.02

// Breach records one asset class outside its acceptable range.
type Breach struct {
	AssetClass string  `json:"asset_class"`
	CurrentPct float64 `json:"current_pct"`
	TargetPct  float64 `json:"target_pct"`
	Magnitude  float64 `json:"magnitude"`
	Direction  string  `json:"direction"` // "above" or "below"
}

// TriggerResult is one strategy's verdict with supporting detail.
type TriggerResult struct {
	Strategy string   `json:"strategy"`
	Needed   bool     `json:"needs_rebalancing"`
	Reason   string   `json:"reason"`
	Breaches []Breach `json:"breaches,omitempty"`
}

// ClassAdjustment is the amount one class needs to reach target, used by
// the opportunistic trigger to route a cash flow.
type ClassAdjustment struct {
	AssetClass string  `json:"asset_class"`
	CurrentPct float64 `json:"current_pct"`
	TargetPct  float64 `json:"target_pct"`
	Amount     float64 `json:"amount"`
}

// StrategyService evaluates the independent rebalancing triggers.
type StrategyService struct {
	log zerolog.Logger
}

func NewStrategyService(log zerolog.Logger) *StrategyService {
	return &StrategyService{log: log.With().Str("component", "strategy").Logger()}
}

// Threshold triggers when any single class drifts beyond the threshold
// percentage from its target. threshold <= 0 uses the default 5%.
func (s *StrategyService) Threshold(current, target domain.AllocationMap, threshold float64) TriggerResult {
	if threshold <= 0 {
		threshold = DefaultDriftThreshold
	}

	result := TriggerResult{Strategy: "threshold"}
	for _, class := range current.Keys(target) {
		drift := current[class] - target[class]
		if math.Abs(drift) > threshold {
			result.Breaches = append(result.Breaches, newBreach(class, current[class], target[class]))
		}
	}

	result.Needed = len(result.Breaches) > 0
	if result.Needed {
		result.Reason = fmt.Sprintf("%d class(es) drifted more than %.1f%% from target", len(result.Breaches), threshold)
	} else {
		result.Reason = fmt.Sprintf("all classes within %.1f%% of target", threshold)
	}
	return result
}

// ToleranceBand triggers when any class leaves its [target-band, target+band]
// range, recording breach direction and magnitude.
func (s *StrategyService) ToleranceBand(current, target domain.AllocationMap, band float64) TriggerResult {
	if band <= 0 {
		band = DefaultDriftThreshold
	}

	result := TriggerResult{Strategy: "tolerance_band"}
	for _, class := range current.Keys(target) {
		cur, tgt := current[class], target[class]
		if cur > tgt+band || cur < tgt-band {
			result.Breaches = append(result.Breaches, newBreach(class, cur, tgt))
		}
	}

	result.Needed = len(result.Breaches) > 0
	if result.Needed {
		result.Reason = fmt.Sprintf("%d class(es) outside their tolerance band of ±%.1f%%", len(result.Breaches), band)
	} else {
		result.Reason = fmt.Sprintf("all classes within ±%.1f%% tolerance band", band)
	}
	return result
}

// Calendar triggers when the elapsed time since the last rebalance exceeds
// the frequency's cadence.
func (s *StrategyService) Calendar(lastRebalance time.Time, frequency Frequency, now time.Time) TriggerResult {
	elapsed := int(now.Sub(lastRebalance).Hours() / 24)
	due := frequency.Days()

	result := TriggerResult{Strategy: "calendar", Needed: elapsed >= due}
	if result.Needed {
		result.Reason = fmt.Sprintf("%d days since last rebalance, %s cadence is %d days", elapsed, frequency, due)
	} else {
		result.Reason = fmt.Sprintf("%d of %d days elapsed in %s cadence", elapsed, due, frequency)
	}
	return result
}

// Opportunistic evaluates whether a cash flow (positive contribution or
// negative withdrawal) is large enough to deploy against drift, and if so
// computes the per-class amounts that bring the post-flow portfolio to
// target.
func (s *StrategyService) Opportunistic(current, target domain.AllocationMap, portfolioValue, cashFlow float64) (TriggerResult, []ClassAdjustment) {
	result := TriggerResult{Strategy: "opportunistic"}
	if portfolioValue <= 0 {
		result.Reason = "portfolio has no value"
		return result, nil
	}

	flowFraction := math.Abs(cashFlow) / portfolioValue
	if flowFraction < OpportunisticFlowThreshold {
		result.Reason = fmt.Sprintf("cash flow is %.1f%% of portfolio, below the %.0f%% threshold",
			flowFraction*100, OpportunisticFlowThreshold*100)
		return result, nil
	}

	postFlowValue := portfolioValue + cashFlow
	adjustments := make([]ClassAdjustment, 0)
	for _, class := range current.Keys(target) {
		currentAmount := current[class] / 100 * portfolioValue
		targetAmount := target[class] / 100 * postFlowValue
		adjustments = append(adjustments, ClassAdjustment{
			AssetClass: class,
			CurrentPct: current[class],
			TargetPct:  target[class],
			Amount:     targetAmount - currentAmount,
		})
	}

	result.Needed = true
	result.Reason = fmt.Sprintf("cash flow of %.2f is %.1f%% of portfolio, large enough to correct drift",
		cashFlow, flowFraction*100)
	return result, adjustments
}

// Consensus runs the three deterministic strategies and declares
// rebalancing needed when at least two agree.
type Consensus struct {
	Results   []TriggerResult `json:"results"`
	Agreement int             `json:"agreement"`
	Needed    bool            `json:"needs_rebalancing"`
}

// Compare evaluates threshold, tolerance-band and calendar triggers
// together. Consensus requires two of the three to fire.
func (s *StrategyService) Compare(current, target domain.AllocationMap, threshold, band float64, lastRebalance time.Time, frequency Frequency, now time.Time) Consensus {
	results := []TriggerResult{
		s.Threshold(current, target, threshold),
		s.ToleranceBand(current, target, band),
		s.Calendar(lastRebalance, frequency, now),
	}

	agreement := 0
	for _, r := range results {
		if r.Needed {
			agreement++
		}
	}

	consensus := Consensus{Results: results, Agreement: agreement, Needed: agreement >= 2}

	s.log.Debug().
		Int("agreement", agreement).
		Bool("needed", consensus.Needed).
		Msg("Compared rebalancing strategies")

	return consensus
}

// Advice is the recommended rebalancing posture for a portfolio profile.
type Advice struct {
	Frequency      Frequency `json:"frequency"`
	DriftThreshold float64   `json:"drift_threshold"`
	Rationale      string    `json:"rationale"`
}

// Recommend suggests a rebalancing frequency and drift threshold from the
// portfolio profile. Larger and more volatile portfolios score toward
// frequent checks; taxable accounts score toward patience, since every
// rebalance there can realize gains. riskTolerance runs 1 (cautious) to 5
// (aggressive).
func (s *StrategyService) Recommend(portfolioValue, annualVolatility float64, riskTolerance int, taxable bool) Advice {
	score := 0

	switch {
	case portfolioValue > 100000:
		score += 2
	case portfolioValue > 50000:
		score++
	}

	switch {
	case annualVolatility > 0.20:
		score += 2
	case annualVolatility > 0.12:
		score++
	}

	if riskTolerance >= 4 {
		score++
	}
	if taxable {
		score--
	}

	advice := Advice{}
	switch {
	case score >= 4:
		advice.Frequency = FrequencyQuarterly
		advice.DriftThreshold = 3.0
	case score >= 2:
		advice.Frequency = FrequencySemiAnnual
		advice.DriftThreshold = 5.0
	case score >= 1:
		advice.Frequency = FrequencyAnnual
		advice.DriftThreshold = 5.0
	default:
		advice.Frequency = FrequencyBiennial
		advice.DriftThreshold = 7.5
	}

	if taxable {
		advice.Rationale = fmt.Sprintf("%s cadence with a %.1f%% drift threshold balances drift control against realizing taxable gains", advice.Frequency, advice.DriftThreshold)
	} else {
		advice.Rationale = fmt.Sprintf("%s cadence with a %.1f%% drift threshold suits the portfolio's size and volatility", advice.Frequency, advice.DriftThreshold)
	}
	return advice
}

func newBreach(class string, current, target float64) Breach {
	direction := "above"
	if current < target {
		direction = "below"
	}
	return Breach{
		AssetClass: class,
		CurrentPct: current,
		TargetPct:  target,
		Magnitude:  math.Abs(current - target),
		Direction:  direction,
	}
}
