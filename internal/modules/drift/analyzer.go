// Package drift compares current against target allocation percentages and
// scores how urgently the divergence needs correcting.
package drift

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/domain"
)

// Urgency labels how badly the portfolio has drifted from target.
type Urgency string

const (
	UrgencyNone   Urgency = "none"
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// ClassDrift describes the divergence of one asset class. Percentages are
// 0-100. Drift is signed (positive means overweight); RelativeDrift is the
// drift as a fraction of the target, 0 when the target is 0.
type ClassDrift struct {
	AssetClass    string  `json:"asset_class"`
	CurrentPct    float64 `json:"current_pct"`
	TargetPct     float64 `json:"target_pct"`
	Drift         float64 `json:"drift"`
	AbsDrift      float64 `json:"abs_drift"`
	RelativeDrift float64 `json:"relative_drift"`
	Priority      int     `json:"priority"`
}

// Report is the full drift analysis: per-class rows plus aggregate metrics.
// Score runs 0-100; higher means further from target.
type Report struct {
	Classes        []ClassDrift `json:"classes"`
	TotalAbsDrift  float64      `json:"total_abs_drift"`
	MeanSquared    float64      `json:"mean_squared_drift"`
	TrackingError  float64      `json:"tracking_error"`
	MaxDrift       float64      `json:"max_drift"`
	MaxDriftClass  string       `json:"max_drift_class"`
	Score          float64      `json:"score"`
	Urgency        Urgency      `json:"urgency"`
	NeedsRebalance bool         `json:"needs_rebalance"`
}

// Analyzer scores allocation drift.
type Analyzer struct {
	log zerolog.Logger
}

func NewAnalyzer(log zerolog.Logger) *Analyzer {
	return &Analyzer{log: log.With().Str("component", "drift").Logger()}
}

// Analyze compares the holdings' current allocation against the target
// map. Classes present in only one of the two maps count with the missing
// side at 0.
func (a *Analyzer) Analyze(holdings []domain.Holding, target domain.AllocationMap) *Report {
	current := domain.CurrentAllocation(holdings)
	return a.AnalyzeAllocations(current, target)
}

// AnalyzeAllocations is the allocation-map form of Analyze, for callers
// that already have percentages rather than holdings.
func (a *Analyzer) AnalyzeAllocations(current, target domain.AllocationMap) *Report {
	classes := current.Keys(target)
	sort.Strings(classes)

	report := &Report{Classes: make([]ClassDrift, 0, len(classes))}

	sumSquared := 0.0
	for _, class := range classes {
		cur := current[class]
		tgt := target[class]
		drift := cur - tgt
		abs := math.Abs(drift)

		relative := 0.0
		if tgt > 0 {
			relative = drift / tgt
		}

		report.Classes = append(report.Classes, ClassDrift{
			AssetClass:    class,
			CurrentPct:    cur,
			TargetPct:     tgt,
			Drift:         drift,
			AbsDrift:      abs,
			RelativeDrift: relative,
			Priority:      classPriority(abs, tgt),
		})

		report.TotalAbsDrift += abs
		sumSquared += drift * drift
		if abs > report.MaxDrift {
			report.MaxDrift = abs
			report.MaxDriftClass = class
		}
	}

	if len(classes) > 0 {
		report.MeanSquared = sumSquared / float64(len(classes))
	}
	report.TrackingError = math.Sqrt(report.MeanSquared)
	report.Score = driftScore(report.TotalAbsDrift, report.MaxDrift, report.TrackingError)
	report.Urgency = urgency(report.Score, report.MaxDrift)
	report.NeedsRebalance = report.Urgency != UrgencyNone

	a.log.Debug().
		Float64("score", report.Score).
		Float64("max_drift", report.MaxDrift).
		Str("urgency", string(report.Urgency)).
		Msg("Analyzed allocation drift")

	return report
}

// driftScore blends three capped signals: total absolute drift (40%),
// doubled max single-class drift (40%) and tracking error scaled by 5
// (20%). Each signal is capped at 100 before weighting.
func driftScore(totalAbs, maxDrift, trackingError float64) float64 {
	return 0.4*math.Min(100, totalAbs) +
		0.4*math.Min(100, maxDrift*2) +
		0.2*math.Min(100, trackingError*5)
}

// urgency maps the score and worst single-class drift to an urgency band.
// Either signal alone can raise the band.
func urgency(score, maxDrift float64) Urgency {
	switch {
	case score >= 40 || maxDrift >= 15:
		return UrgencyHigh
	case score >= 20 || maxDrift >= 10:
		return UrgencyMedium
	case score >= 10 || maxDrift >= 5:
		return UrgencyLow
	default:
		return UrgencyNone
	}
}

// classPriority ranks a class for adjustment, 1 (low) to 5 (urgent). Drift
// magnitude sets the base at 5/10/15 point thresholds; large target
// allocations get a bonus since drift there moves more money.
func classPriority(absDrift, targetPct float64) int {
	priority := 1
	switch {
	case absDrift >= 15:
		priority = 4
	case absDrift >= 10:
		priority = 3
	case absDrift >= 5:
		priority = 2
	}

	switch {
	case targetPct >= 40:
		priority += 2
	case targetPct >= 20:
		priority++
	}

	if priority > 5 {
		priority = 5
	}
	return priority
}
