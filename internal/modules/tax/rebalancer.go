// Package tax reorders and limits sell actions to minimize capital-gains
// tax, using loss offsetting and the annual tax-free allowance.
package tax

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/folio/internal/domain"
)

// Default UK CGT parameters.
const (
	DefaultAnnualAllowance = 12300.0
	DefaultTaxRate         = 0.20
)

// Config holds the CGT parameters. Sourced from configuration, never
// computed here.
type Config struct {
	AnnualAllowance  float64
	TaxRate          float64
	LossCarryForward float64
}

// DefaultConfig returns the standard UK allowance and rate with no loss
// carry-forward.
func DefaultConfig() Config {
	return Config{AnnualAllowance: DefaultAnnualAllowance, TaxRate: DefaultTaxRate}
}

// Summary aggregates the tax consequences of a set of sell actions.
// Monetary fields are rounded to 2 decimals.
type Summary struct {
	TotalGains    float64         `json:"total_gains"`
	TotalLosses   float64         `json:"total_losses"`
	NetGains      float64         `json:"net_gains"`
	AllowanceUsed float64         `json:"allowance_used"`
	TaxableGains  float64         `json:"taxable_gains"`
	CGT           float64         `json:"cgt"`
	Lots          []domain.TaxLot `json:"lots"`
}

// BoundedPlan is the result of restricting a plan to the annual allowance.
// Deferred actions carry gains that would breach it; the breaching action
// itself may appear scaled down in Actions.
type BoundedPlan struct {
	Actions              []domain.RebalancingAction `json:"actions"`
	Deferred             []domain.RebalancingAction `json:"deferred"`
	GainsWithinAllowance float64                    `json:"total_gains_within_allowance"`
	Summary              Summary                    `json:"summary"`
}

// HarvestOpportunity is an unrealized loss worth realizing to offset
// taxable gains elsewhere.
type HarvestOpportunity struct {
	HoldingID      string  `json:"holding_id"`
	Name           string  `json:"name"`
	UnrealizedLoss float64 `json:"unrealized_loss"`
	TaxSaving      float64 `json:"tax_saving"`
}

// Rebalancer applies CGT-aware transformations to action lists. It never
// mutates the input actions; every operation returns new lists.
type Rebalancer struct {
	cfg Config
	now func() time.Time
	log zerolog.Logger
}

// NewRebalancer creates a tax-aware rebalancer. Zero config fields fall
// back to the UK defaults.
func NewRebalancer(cfg Config, log zerolog.Logger) *Rebalancer {
	if cfg.AnnualAllowance <= 0 {
		cfg.AnnualAllowance = DefaultAnnualAllowance
	}
	if cfg.TaxRate <= 0 {
		cfg.TaxRate = DefaultTaxRate
	}
	return &Rebalancer{
		cfg: cfg,
		now: time.Now,
		log: log.With().Str("component", "tax").Logger(),
	}
}

// SetClock overrides the clock used for holding-period calculations.
func (r *Rebalancer) SetClock(now func() time.Time) {
	r.now = now
}

// OrderActions returns a new action list with sells reordered for tax
// efficiency: losses first (largest loss first, maximizing offsetting
// capacity), then gains (smallest first, stretching the allowance), then
// buys in their original order. The summary reflects CGT on the full plan.
func (r *Rebalancer) OrderActions(actions []domain.RebalancingAction, holdings []domain.Holding) ([]domain.RebalancingAction, Summary, error) {
	byID := holdingIndex(holdings)

	sells, buys := splitSides(actions)
	gains := make(map[string]float64, len(sells))
	for _, a := range sells {
		h, ok := byID[a.HoldingID]
		if !ok {
			return nil, Summary{}, fmt.Errorf("sell action references unknown holding %s", a.HoldingID)
		}
		gains[a.ID] = realizedGain(h, a.Shares)
	}

	sort.SliceStable(sells, func(i, j int) bool {
		gi, gj := gains[sells[i].ID], gains[sells[j].ID]
		iLoss, jLoss := gi < 0, gj < 0
		if iLoss != jLoss {
			return iLoss
		}
		if iLoss {
			return gi < gj // largest loss first
		}
		return gi < gj // smallest gain first
	})

	ordered := append(sells, buys...)
	summary := r.summarize(sells, byID)

	r.log.Debug().
		Int("sells", len(sells)).
		Float64("cgt", summary.CGT).
		Msg("Ordered actions for tax efficiency")

	return ordered, summary, nil
}

// ComputeCGT calculates the capital-gains liability of the sell actions in
// a plan, without reordering them.
func (r *Rebalancer) ComputeCGT(actions []domain.RebalancingAction, holdings []domain.Holding) (Summary, error) {
	byID := holdingIndex(holdings)
	sells, _ := splitSides(actions)
	for _, a := range sells {
		if _, ok := byID[a.HoldingID]; !ok {
			return Summary{}, fmt.Errorf("sell action references unknown holding %s", a.HoldingID)
		}
	}
	return r.summarize(sells, byID), nil
}

// RebalanceWithinAllowance restricts a plan so realized gains never exceed
// the annual allowance. Sells are walked in tax-efficient order; the trade
// that would breach the allowance is partially executed by scaling its
// share quantity, and any further gain-bearing sells are deferred.
// Loss-making sells are always fully included, as are buys.
func (r *Rebalancer) RebalanceWithinAllowance(actions []domain.RebalancingAction, holdings []domain.Holding) (*BoundedPlan, error) {
	ordered, _, err := r.OrderActions(actions, holdings)
	if err != nil {
		return nil, err
	}
	byID := holdingIndex(holdings)

	plan := &BoundedPlan{
		Actions:  make([]domain.RebalancingAction, 0, len(ordered)),
		Deferred: make([]domain.RebalancingAction, 0),
	}

	remaining := r.cfg.AnnualAllowance
	for _, a := range ordered {
		if a.Side != domain.Sell {
			plan.Actions = append(plan.Actions, a)
			continue
		}

		gain := realizedGain(byID[a.HoldingID], a.Shares)
		switch {
		case gain <= 0:
			plan.Actions = append(plan.Actions, a)
		case gain <= remaining:
			plan.Actions = append(plan.Actions, a)
			remaining -= gain
		case remaining > 0:
			scaled := scaleAction(a, remaining/gain)
			scaled.Rationale = a.Rationale + " (scaled to stay within CGT allowance)"
			plan.Actions = append(plan.Actions, scaled)
			plan.Deferred = append(plan.Deferred, scaleAction(a, 1-remaining/gain))
			remaining = 0
		default:
			plan.Deferred = append(plan.Deferred, a)
		}
	}

	plan.GainsWithinAllowance = roundMoney(r.cfg.AnnualAllowance - remaining)

	executedSells, _ := splitSides(plan.Actions)
	plan.Summary = r.summarize(executedSells, byID)

	r.log.Info().
		Int("executed", len(plan.Actions)).
		Int("deferred", len(plan.Deferred)).
		Float64("gains_within_allowance", plan.GainsWithinAllowance).
		Msg("Bounded rebalancing plan to CGT allowance")

	return plan, nil
}

// IdentifyLossHarvesting scans all holdings for unrealized losses that
// could offset the given taxable gains. Opportunities are only reported
// when there are gains to offset, and the estimated saving is bounded by
// the gains actually offsettable.
func (r *Rebalancer) IdentifyLossHarvesting(holdings []domain.Holding, taxableGains float64) []HarvestOpportunity {
	if taxableGains <= 0 {
		return nil
	}

	opportunities := make([]HarvestOpportunity, 0)
	remaining := taxableGains
	for _, h := range holdings {
		gain := h.UnrealizedGain()
		if gain >= 0 || remaining <= 0 {
			continue
		}
		loss := -gain
		offset := math.Min(loss, remaining)
		opportunities = append(opportunities, HarvestOpportunity{
			HoldingID:      h.ID,
			Name:           h.Name,
			UnrealizedLoss: roundMoney(loss),
			TaxSaving:      roundMoney(offset * r.cfg.TaxRate),
		})
		remaining -= offset
	}

	sort.SliceStable(opportunities, func(i, j int) bool {
		return opportunities[i].UnrealizedLoss > opportunities[j].UnrealizedLoss
	})
	return opportunities
}

// summarize aggregates sells into a CGT summary: net gains = gains minus
// losses, reduced by loss carry-forward, then by the annual allowance;
// what remains is taxed at the configured rate.
func (r *Rebalancer) summarize(sells []domain.RebalancingAction, byID map[string]domain.Holding) Summary {
	now := r.now()
	summary := Summary{Lots: make([]domain.TaxLot, 0, len(sells))}

	for _, a := range sells {
		h := byID[a.HoldingID]
		lot := domain.TaxLot{
			HoldingID:     h.ID,
			CostBasis:     roundMoney(h.PurchasePrice * a.Shares),
			Proceeds:      roundMoney(h.CurrentPrice * a.Shares),
			RealizedGain:  roundMoney(realizedGain(h, a.Shares)),
			HoldingPeriod: h.YearsHeld(now),
		}
		summary.Lots = append(summary.Lots, lot)

		if lot.RealizedGain >= 0 {
			summary.TotalGains += lot.RealizedGain
		} else {
			summary.TotalLosses += -lot.RealizedGain
		}
	}

	summary.NetGains = summary.TotalGains - summary.TotalLosses
	afterCarryForward := summary.NetGains - r.cfg.LossCarryForward
	summary.TaxableGains = math.Max(0, afterCarryForward-r.cfg.AnnualAllowance)
	summary.AllowanceUsed = math.Min(math.Max(0, afterCarryForward), r.cfg.AnnualAllowance)

	summary.TotalGains = roundMoney(summary.TotalGains)
	summary.TotalLosses = roundMoney(summary.TotalLosses)
	summary.NetGains = roundMoney(summary.NetGains)
	summary.AllowanceUsed = roundMoney(summary.AllowanceUsed)
	summary.TaxableGains = roundMoney(summary.TaxableGains)
	summary.CGT = roundMoney(summary.TaxableGains * r.cfg.TaxRate)

	return summary
}

// realizedGain is the gain or loss from selling the given share quantity
// at the current price.
func realizedGain(h domain.Holding, shares float64) float64 {
	return (h.CurrentPrice - h.PurchasePrice) * shares
}

// scaleAction produces a copy of the action with its monetary amount and
// share quantity scaled by the given factor.
func scaleAction(a domain.RebalancingAction, factor float64) domain.RebalancingAction {
	scaled := a
	scaled.Amount = roundMoney(a.Amount * factor)
	scaled.Shares = math.Floor(a.Shares*factor*100) / 100
	return scaled
}

// holdingIndex indexes holdings by their ID for O(1) lookup.
func holdingIndex(holdings []domain.Holding) map[string]domain.Holding {
	byID := make(map[string]domain.Holding, len(holdings))
	for _, h := range holdings {
		byID[h.ID] = h
	}
	return byID
}

func splitSides(actions []domain.RebalancingAction) (sells, buys []domain.RebalancingAction) {
	sells = make([]domain.RebalancingAction, 0, len(actions))
	buys = make([]domain.RebalancingAction, 0, len(actions))
	for _, a := range actions {
		if a.Side == domain.Sell {
			sells = append(sells, a)
		} else {
			buys = append(buys, a)
		}
	}
	return sells, buys
}

// roundMoney rounds to 2 decimals using decimal arithmetic, avoiding the
// float drift of naive multiply-round-divide on large amounts.
func roundMoney(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
