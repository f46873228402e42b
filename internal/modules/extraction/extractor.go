// Package extraction converts raw holding records into the parallel arrays
// the optimizer consumes: expected returns, current values and labels.
package extraction

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/pkg/formulas"
)

// Expected-return clamps. Anything outside this range is an estimation
// artifact, not a forecast.
const (
	ExpectedReturnMin = -0.50
	ExpectedReturnMax = 1.00

	// Holdings younger than this are not annualized: raising a tiny
	// exponent over a near-zero period explodes the estimate.
	MinAnnualizationYears = 0.1

	DefaultClassReturn = 0.06
)

// ClassReturn is one entry in the asset-class fallback table.
// The table is ordered: more specific labels must come before generic ones
// so partial matching stays deterministic.
type ClassReturn struct {
	Label  string
	Return float64
}

// DefaultClassReturns is the long-run annual return assumption per asset
// class, used when a holding has neither a return series nor a usable
// purchase history.
var DefaultClassReturns = []ClassReturn{
	{"money market", 0.02},
	{"fixed income", 0.04},
	{"real estate", 0.06},
	{"equit", 0.08}, // equity / equities
	{"stock", 0.08},
	{"share", 0.08},
	{"bond", 0.04},
	{"gilt", 0.04},
	{"property", 0.06},
	{"reit", 0.06},
	{"cash", 0.02},
	{"commodit", 0.05},
	{"gold", 0.05},
}

// Inputs holds the parallel arrays derived from a set of holdings.
// Index i across all slices refers to the same holding.
type Inputs struct {
	IDs             []string  `json:"ids"`
	Labels          []string  `json:"labels"`
	AssetClasses    []string  `json:"asset_classes"`
	ExpectedReturns []float64 `json:"expected_returns"`
	Values          []float64 `json:"values"`
	Weights         []float64 `json:"weights"`
	TotalValue      float64   `json:"total_value"`
}

// Extractor derives optimizer inputs from holdings.
type Extractor struct {
	ClassReturns []ClassReturn
	now          func() time.Time
	log          zerolog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithClassReturns overrides the asset-class fallback table.
func WithClassReturns(table []ClassReturn) Option {
	return func(e *Extractor) {
		e.ClassReturns = table
	}
}

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		e.now = now
	}
}

// NewExtractor creates a new extractor.
func NewExtractor(log zerolog.Logger, opts ...Option) *Extractor {
	e := &Extractor{
		ClassReturns: DefaultClassReturns,
		now:          time.Now,
		log:          log.With().Str("component", "extraction").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract builds optimizer inputs from the given holdings, optionally
// filtered to one account. Fails when fewer than 2 holdings remain
// (optimization requires at least 2 assets) or total value is zero.
func (e *Extractor) Extract(holdings []domain.Holding, accountID string) (*Inputs, error) {
	filtered := holdings
	if accountID != "" {
		filtered = make([]domain.Holding, 0, len(holdings))
		for _, h := range holdings {
			if h.AccountID == accountID {
				filtered = append(filtered, h)
			}
		}
	}

	if len(filtered) < 2 {
		return nil, fmt.Errorf("%w: got %d holdings, need at least 2", domain.ErrInsufficientData, len(filtered))
	}

	total := domain.TotalValue(filtered)
	if total <= 0 {
		return nil, fmt.Errorf("%w: total portfolio value is zero", domain.ErrInsufficientData)
	}

	inputs := &Inputs{
		IDs:             make([]string, len(filtered)),
		Labels:          make([]string, len(filtered)),
		AssetClasses:    make([]string, len(filtered)),
		ExpectedReturns: make([]float64, len(filtered)),
		Values:          make([]float64, len(filtered)),
		Weights:         make([]float64, len(filtered)),
		TotalValue:      total,
	}

	for i, h := range filtered {
		value := h.CurrentValue()
		inputs.IDs[i] = h.ID
		inputs.Labels[i] = h.Name
		inputs.AssetClasses[i] = h.AssetClass
		inputs.Values[i] = value
		inputs.Weights[i] = value / total
		inputs.ExpectedReturns[i] = e.EstimateExpectedReturn(h)
	}

	e.log.Debug().
		Int("num_holdings", len(filtered)).
		Float64("total_value", total).
		Msg("Extracted optimizer inputs")

	return inputs, nil
}

// EstimateExpectedReturn estimates an annual expected return for one
// holding. Preference order:
//  1. mean of the historical return series, when present
//  2. annualized return derived from purchase price and holding period
//  3. asset-class average from the fallback table
//
// Dividend yield is added on top; ongoing charges are deducted as drag.
// The result is clamped to [ExpectedReturnMin, ExpectedReturnMax].
func (e *Extractor) EstimateExpectedReturn(h domain.Holding) float64 {
	var estimate float64

	switch {
	case len(h.HistoricalReturns) > 0:
		estimate = formulas.Mean(h.HistoricalReturns)
	case h.PurchasePrice > 0 && h.CurrentPrice > 0:
		estimate = annualizedPriceReturn(h.PurchasePrice, h.CurrentPrice, h.YearsHeld(e.now()))
	default:
		estimate = e.classAverage(h.AssetClass)
	}

	estimate += h.DividendYield
	estimate -= h.OCFRate

	return formulas.Clamp(estimate, ExpectedReturnMin, ExpectedReturnMax)
}

// annualizedPriceReturn computes (current/purchase)^(1/years) - 1, falling
// back to the unannualized total return for very short holding periods.
func annualizedPriceReturn(purchase, current, years float64) float64 {
	totalReturn := current/purchase - 1
	if years < MinAnnualizationYears {
		return totalReturn
	}
	return math.Pow(current/purchase, 1/years) - 1
}

// classAverage looks up the fallback table with partial string matching on
// the asset-class label.
func (e *Extractor) classAverage(assetClass string) float64 {
	label := strings.ToLower(strings.TrimSpace(assetClass))
	if label == "" {
		return DefaultClassReturn
	}
	for _, entry := range e.ClassReturns {
		if strings.Contains(label, entry.Label) {
			return entry.Return
		}
	}
	return DefaultClassReturn
}
