// Package rebalancing converts target weights into concrete monetary
// buy/sell actions and decides when rebalancing is worth triggering.
package rebalancing

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/domain"
)

// DefaultMinTradeSize is the smallest trade worth placing, in account
// currency. Differences below it are left to drift.
const DefaultMinTradeSize = 100.0

// TrackingErrorThreshold is the Euclidean weight-distance above which
// rebalancing is flagged as needed.
const TrackingErrorThreshold = 0.05

// Plan is the output of a rebalancing calculation: the ordered action list
// plus aggregate measures of how far the portfolio sits from target.
type Plan struct {
	Actions       []domain.RebalancingAction `json:"actions"`
	TrackingError float64                    `json:"tracking_error"`
	Needed        bool                       `json:"needed"`
	TotalBuys     float64                    `json:"total_buys"`
	TotalSells    float64                    `json:"total_sells"`
	TotalValue    float64                    `json:"total_value"`
}

// Calculator turns target weights into trade actions.
type Calculator struct {
	minTradeSize float64
	log          zerolog.Logger
}

// NewCalculator creates a calculator with the given minimum trade size;
// zero or negative falls back to DefaultMinTradeSize.
func NewCalculator(minTradeSize float64, log zerolog.Logger) *Calculator {
	if minTradeSize <= 0 {
		minTradeSize = DefaultMinTradeSize
	}
	return &Calculator{
		minTradeSize: minTradeSize,
		log:          log.With().Str("component", "rebalancing").Logger(),
	}
}

// Calculate produces the action list that moves the holdings to the target
// weights. Target weights must supply one weight per holding and sum to
// 1 within a 0.01 tolerance. availableCash is added to the investable
// total, so contributions are deployed as part of the same plan.
func (c *Calculator) Calculate(holdings []domain.Holding, targetWeights []float64, availableCash float64) (*Plan, error) {
	if err := validateWeights(targetWeights, len(holdings)); err != nil {
		return nil, err
	}

	totalValue := domain.TotalValue(holdings) + availableCash
	if totalValue <= 0 {
		return nil, fmt.Errorf("%w: portfolio has no value to rebalance", domain.ErrInsufficientData)
	}

	plan := &Plan{Actions: make([]domain.RebalancingAction, 0, len(holdings)), TotalValue: totalValue}

	sumSqDiff := 0.0
	for i, h := range holdings {
		currentValue := h.CurrentValue()
		targetValue := totalValue * targetWeights[i]
		diff := targetValue - currentValue

		weightDiff := currentValue/totalValue - targetWeights[i]
		sumSqDiff += weightDiff * weightDiff

		if math.Abs(diff) < c.minTradeSize {
			continue
		}

		action := domain.RebalancingAction{
			ID:        uuid.New().String(),
			HoldingID: h.ID,
			Name:      h.Name,
			Amount:    math.Abs(diff),
			Priority:  amountPriority(math.Abs(diff)),
		}

		if diff < 0 {
			action.Side = domain.Sell
			action.Shares = roundShares(action.Amount, h.CurrentPrice, false)
			action.Rationale = fmt.Sprintf("Overweight by %.2f: sell to reach %.1f%% target", -diff, targetWeights[i]*100)
			plan.TotalSells += action.Amount
		} else {
			action.Side = domain.Buy
			action.Shares = roundShares(action.Amount, h.CurrentPrice, true)
			action.Rationale = fmt.Sprintf("Underweight by %.2f: buy to reach %.1f%% target", diff, targetWeights[i]*100)
			plan.TotalBuys += action.Amount
		}

		plan.Actions = append(plan.Actions, action)
	}

	orderActions(plan.Actions)

	plan.TrackingError = math.Sqrt(sumSqDiff)
	plan.Needed = plan.TrackingError > TrackingErrorThreshold

	c.log.Info().
		Int("actions", len(plan.Actions)).
		Float64("tracking_error", plan.TrackingError).
		Bool("needed", plan.Needed).
		Msg("Calculated rebalancing plan")

	return plan, nil
}

// MinTradeAmount scales the minimum trade with portfolio size: 0.1% of the
// total, floored at the configured minimum. Large portfolios shouldn't
// churn on trades that barely move their weights.
func (c *Calculator) MinTradeAmount(totalValue float64) float64 {
	return math.Max(c.minTradeSize, totalValue*0.001)
}

func validateWeights(weights []float64, numHoldings int) error {
	if len(weights) != numHoldings {
		return fmt.Errorf("%w: got %d weights for %d holdings", domain.ErrInvalidWeights, len(weights), numHoldings)
	}
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("%w: weights sum to %.4f, expected 1.0", domain.ErrInvalidWeights, sum)
	}
	return nil
}

// roundShares converts a monetary amount to shares at the given price,
// rounding to 2 decimals. Sells round down so the action never sells more
// shares than the amount covers; buys round up.
func roundShares(amount, price float64, buy bool) float64 {
	if price <= 0 {
		return 0
	}
	shares := amount / price * 100
	if buy {
		return math.Ceil(shares) / 100
	}
	return math.Floor(shares) / 100
}

// amountPriority buckets an absolute trade amount into priority ranks,
// 1 (largest trades) through 5 (smallest).
func amountPriority(amount float64) int {
	switch {
	case amount > 10000:
		return 1
	case amount > 5000:
		return 2
	case amount > 2500:
		return 3
	case amount > 1000:
		return 4
	default:
		return 5
	}
}

// orderActions sorts sells before buys, then by descending trade value.
// Sells free up the cash the buys need.
func orderActions(actions []domain.RebalancingAction) {
	sort.SliceStable(actions, func(i, j int) bool {
		if actions[i].Side != actions[j].Side {
			return actions[i].Side == domain.Sell
		}
		return actions[i].Amount > actions[j].Amount
	})
}
