// Package simulation projects portfolio values forward under stochastic
// annual returns and summarizes the outcome distribution per year.
package simulation

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	DefaultIterations = 1000
	MaxIterations     = 10000

	simulationWorkers = 8
)

// Params describes one simulation run. Contributions are added monthly and
// compound within each simulated year.
type Params struct {
	StartingValue       float64 `json:"starting_value"`
	MonthlyContribution float64 `json:"monthly_contribution"`
	ExpectedReturn      float64 `json:"expected_return"`
	Volatility          float64 `json:"volatility"`
	Years               int     `json:"years"`
	Iterations          int     `json:"iterations"`
}

// YearProjection is the value distribution at the end of one simulated
// year, summarized as percentiles of the iteration population.
type YearProjection struct {
	Year int     `json:"year"`
	P10  float64 `json:"p10"`
	P25  float64 `json:"p25"`
	P50  float64 `json:"p50"`
	P75  float64 `json:"p75"`
	P90  float64 `json:"p90"`
}

// Result holds the per-year percentile table and the final-year values for
// goal-probability queries.
type Result struct {
	Projections []YearProjection `json:"projections"`
	FinalValues []float64        `json:"-"`
	Iterations  int              `json:"iterations"`
}

// GoalProbability returns the fraction of simulated paths whose final
// value meets or exceeds the target.
func (r *Result) GoalProbability(target float64) float64 {
	if len(r.FinalValues) == 0 {
		return 0
	}
	met := 0
	for _, v := range r.FinalValues {
		if v >= target {
			met++
		}
	}
	return float64(met) / float64(len(r.FinalValues))
}

// Simulator runs Monte Carlo projections. Paths are independent, so they
// are simulated in parallel; each worker draws from its own seeded source,
// making runs reproducible for a fixed seed.
type Simulator struct {
	seed uint64
	log  zerolog.Logger
}

// NewSimulator creates a simulator with the given base seed.
func NewSimulator(seed uint64, log zerolog.Logger) *Simulator {
	return &Simulator{
		seed: seed,
		log:  log.With().Str("component", "simulation").Logger(),
	}
}

// Run simulates the parameterized portfolio and returns the per-year
// percentile table.
func (s *Simulator) Run(p Params) (*Result, error) {
	if err := validateParams(&p); err != nil {
		return nil, err
	}

	// values[y][i] is the value of path i at the end of year y+1. Workers
	// write disjoint path indices, so no locking is needed.
	values := make([][]float64, p.Years)
	for y := range values {
		values[y] = make([]float64, p.Iterations)
	}

	var g errgroup.Group
	chunk := (p.Iterations + simulationWorkers - 1) / simulationWorkers
	for w := 0; w < simulationWorkers; w++ {
		start := w * chunk
		end := start + chunk
		if end > p.Iterations {
			end = p.Iterations
		}
		if start >= end {
			break
		}

		normal := distuv.Normal{
			Mu:    p.ExpectedReturn,
			Sigma: p.Volatility,
			Src:   rand.NewPCG(s.seed, uint64(w)),
		}

		g.Go(func() error {
			for i := start; i < end; i++ {
				simulatePath(p, normal, values, i)
			}
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	result := &Result{
		Projections: make([]YearProjection, p.Years),
		FinalValues: values[p.Years-1],
		Iterations:  p.Iterations,
	}
	for y := 0; y < p.Years; y++ {
		result.Projections[y] = summarizeYear(y+1, values[y])
	}

	s.log.Info().
		Int("years", p.Years).
		Int("iterations", p.Iterations).
		Float64("median_final", result.Projections[p.Years-1].P50).
		Msg("Completed Monte Carlo simulation")

	return result, nil
}

// simulatePath runs one full path, writing the end-of-year values into
// column i. Each year draws one annual return; contributions are added
// monthly and compound at the equivalent monthly rate.
func simulatePath(p Params, normal distuv.Normal, values [][]float64, i int) {
	value := p.StartingValue
	for y := 0; y < p.Years; y++ {
		annualReturn := normal.Rand()
		// Growth below -100% would take the value negative; a total loss
		// is the floor.
		if annualReturn < -1 {
			annualReturn = -1
		}

		monthlyRate := math.Pow(1+annualReturn, 1.0/12) - 1
		for m := 0; m < 12; m++ {
			value = value*(1+monthlyRate) + p.MonthlyContribution
		}

		values[y][i] = value
	}
}

// summarizeYear computes the percentile summary of one year's population.
// Percentiles are taken from the same sorted slice, so the sequence
// P10..P90 is monotonically non-decreasing by construction.
func summarizeYear(year int, population []float64) YearProjection {
	sorted := make([]float64, len(population))
	copy(sorted, population)
	sort.Float64s(sorted)

	q := func(p float64) float64 {
		return stat.Quantile(p, stat.Empirical, sorted, nil)
	}
	return YearProjection{
		Year: year,
		P10:  q(0.10),
		P25:  q(0.25),
		P50:  q(0.50),
		P75:  q(0.75),
		P90:  q(0.90),
	}
}

func validateParams(p *Params) error {
	if p.Years <= 0 {
		return fmt.Errorf("simulation horizon must be positive, got %d years", p.Years)
	}
	if p.StartingValue < 0 {
		return fmt.Errorf("starting value must be non-negative, got %.2f", p.StartingValue)
	}
	if p.Volatility < 0 {
		return fmt.Errorf("volatility must be non-negative, got %.4f", p.Volatility)
	}
	if p.Iterations <= 0 {
		p.Iterations = DefaultIterations
	}
	if p.Iterations > MaxIterations {
		p.Iterations = MaxIterations
	}
	return nil
}
