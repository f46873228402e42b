package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/history"
	"github.com/aristath/folio/internal/modules/extraction"
	"github.com/aristath/folio/internal/modules/optimization"
	"github.com/aristath/folio/internal/modules/rebalancing"
	"github.com/aristath/folio/internal/modules/risk"
	"github.com/aristath/folio/internal/modules/simulation"
)

// portfolioRequest is the shared request shape for optimization endpoints.
type portfolioRequest struct {
	Holdings     []domain.Holding `json:"holdings"`
	AccountID    string           `json:"account_id,omitempty"`
	Type         string           `json:"optimization_type,omitempty"`
	TargetReturn float64          `json:"target_return,omitempty"`
	MinWeight    float64          `json:"min_weight,omitempty"`
	MaxWeight    float64          `json:"max_weight,omitempty"`
	LookbackDays int              `json:"lookback_days,omitempty"`
	NumPoints    int              `json:"num_points,omitempty"`
	Shrinkage    bool             `json:"shrinkage,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// prepare extracts optimizer inputs and builds the covariance matrix for a
// request. Request-supplied return series take precedence over the price
// store.
func (s *Server) prepare(req *portfolioRequest) (*extractionResult, error) {
	inputs, err := s.deps.Extractor.Extract(req.Holdings, req.AccountID)
	if err != nil {
		return nil, err
	}

	static := make(history.StaticProvider)
	for _, h := range req.Holdings {
		if len(h.HistoricalReturns) > 1 {
			static[h.ID] = h.HistoricalReturns
		}
	}

	builder := risk.NewBuilder(history.Layered{static, s.deps.History}, s.log)
	builder.SetCache(s.deps.Cache)
	builder.SetShrinkage(req.Shrinkage)

	matrix, err := builder.Build(inputs.IDs, req.LookbackDays)
	if err != nil {
		return nil, err
	}

	return &extractionResult{inputs: inputs, matrix: matrix}, nil
}

type extractionResult struct {
	inputs *extraction.Inputs
	matrix *risk.Matrix
}

func (s *Server) newOptimizer(req *portfolioRequest) *optimization.Optimizer {
	cfg := optimization.DefaultConfig()
	cfg.RiskFreeRate = s.deps.Config.RiskFreeRate
	if req.MinWeight > 0 {
		cfg.MinWeight = req.MinWeight
	}
	if req.MaxWeight > 0 {
		cfg.MaxWeight = req.MaxWeight
	}
	return optimization.NewOptimizer(cfg, s.log)
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req portfolioRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.prepare(&req)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	opt := s.newOptimizer(&req)
	mu, cov := res.inputs.ExpectedReturns, res.matrix.Cov

	var portfolio *optimization.Portfolio
	switch optimization.Type(req.Type) {
	case optimization.TypeMinVariance:
		portfolio, err = opt.MinimumVariance(mu, cov)
	case optimization.TypeTargetReturn:
		portfolio, err = opt.TargetReturn(mu, cov, req.TargetReturn)
	case optimization.TypeRiskParity:
		portfolio, err = opt.RiskParity(mu, cov)
	case optimization.TypeEqualWeight:
		portfolio, err = opt.EqualWeight(mu, cov)
	case optimization.TypeMaxSharpe, "":
		portfolio, err = opt.MaximumSharpe(mu, cov)
	default:
		s.writeError(w, http.StatusBadRequest, "unknown optimization_type: "+req.Type)
		return
	}
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"portfolio": portfolio,
		"inputs":    res.inputs,
	})
}

func (s *Server) handleFrontier(w http.ResponseWriter, r *http.Request) {
	var req portfolioRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.prepare(&req)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	calc := optimization.NewFrontierCalculator(s.newOptimizer(&req), req.NumPoints, s.log)
	frontier, err := calc.Calculate(res.inputs.ExpectedReturns, res.matrix.Cov, res.inputs.Weights)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, frontier)
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	var req portfolioRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.prepare(&req)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	weights := res.inputs.Weights
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"asset_ids":               res.matrix.AssetIDs,
		"covariance":              res.matrix.Cov,
		"correlation":             risk.CorrelationMatrix(res.matrix.Cov),
		"redundant_pairs":         risk.RedundantPairs(res.matrix),
		"diversifying_pairs":      risk.DiversifyingPairs(res.matrix),
		"portfolio_volatility":    risk.PortfolioVolatility(weights, res.matrix.Cov),
		"diversification_benefit": risk.DiversificationBenefit(weights, res.matrix.Cov),
		"marginal_contributions":  risk.MarginalRiskContributions(weights, res.matrix.Cov),
	})
}

type driftRequest struct {
	Holdings []domain.Holding     `json:"holdings"`
	Target   domain.AllocationMap `json:"target_allocation"`
}

func (s *Server) handleDrift(w http.ResponseWriter, r *http.Request) {
	var req driftRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Target) == 0 {
		s.writeError(w, http.StatusBadRequest, "target_allocation is required")
		return
	}

	report := s.deps.Drift.Analyze(req.Holdings, req.Target)
	s.deps.Snapshot.Update(req.Holdings, req.Target)
	s.writeJSON(w, http.StatusOK, report)
}

type rebalanceRequest struct {
	Holdings      []domain.Holding `json:"holdings"`
	TargetWeights []float64        `json:"target_weights"`
	AvailableCash float64          `json:"available_cash,omitempty"`
}

// targetAllocation converts per-holding target weights into an asset-class
// allocation map for the drift monitor.
func (req *rebalanceRequest) targetAllocation() domain.AllocationMap {
	alloc := make(domain.AllocationMap)
	for i, h := range req.Holdings {
		if i < len(req.TargetWeights) {
			alloc[h.AssetClass] += req.TargetWeights[i] * 100
		}
	}
	return alloc
}

func (s *Server) handleRebalance(w http.ResponseWriter, r *http.Request) {
	var req rebalanceRequest
	if !s.decode(w, r, &req) {
		return
	}

	plan, err := s.deps.Rebalance.Calculate(req.Holdings, req.TargetWeights, req.AvailableCash)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.deps.Snapshot.Update(req.Holdings, req.targetAllocation())
	s.writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handleTaxAwareRebalance(w http.ResponseWriter, r *http.Request) {
	var req rebalanceRequest
	if !s.decode(w, r, &req) {
		return
	}

	plan, err := s.deps.Rebalance.Calculate(req.Holdings, req.TargetWeights, req.AvailableCash)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	ordered, summary, err := s.deps.Tax.OrderActions(plan.Actions, req.Holdings)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	bounded, err := s.deps.Tax.RebalanceWithinAllowance(ordered, req.Holdings)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.deps.Snapshot.Update(req.Holdings, req.targetAllocation())
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"actions":       ordered,
		"summary":       summary,
		"bounded":       bounded,
		"harvesting":    s.deps.Tax.IdentifyLossHarvesting(req.Holdings, summary.TaxableGains),
		"tracking":      plan.TrackingError,
		"needed":        plan.Needed,
		"total_value":   plan.TotalValue,
		"unbounded_cgt": summary.CGT,
	})
}

type simulateRequest struct {
	simulation.Params
	GoalAmount float64 `json:"goal_amount,omitempty"`
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.deps.Simulator.Run(req.Params)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	resp := map[string]interface{}{
		"projections": result.Projections,
		"iterations":  result.Iterations,
	}
	if req.GoalAmount > 0 {
		resp["goal_amount"] = req.GoalAmount
		resp["goal_probability"] = result.GoalProbability(req.GoalAmount)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type strategyCompareRequest struct {
	Current       domain.AllocationMap  `json:"current_allocation"`
	Target        domain.AllocationMap  `json:"target_allocation"`
	Threshold     float64               `json:"threshold,omitempty"`
	Band          float64               `json:"band,omitempty"`
	LastRebalance time.Time             `json:"last_rebalance"`
	Frequency     rebalancing.Frequency `json:"frequency"`
}

func (s *Server) handleStrategyCompare(w http.ResponseWriter, r *http.Request) {
	var req strategyCompareRequest
	if !s.decode(w, r, &req) {
		return
	}

	consensus := s.deps.Strategy.Compare(
		req.Current, req.Target,
		req.Threshold, req.Band,
		req.LastRebalance, req.Frequency,
		time.Now(),
	)
	s.writeJSON(w, http.StatusOK, consensus)
}

type strategyRecommendRequest struct {
	PortfolioValue float64 `json:"portfolio_value"`
	Volatility     float64 `json:"volatility"`
	RiskTolerance  int     `json:"risk_tolerance"`
	Taxable        bool    `json:"taxable"`
}

func (s *Server) handleStrategyRecommend(w http.ResponseWriter, r *http.Request) {
	var req strategyRecommendRequest
	if !s.decode(w, r, &req) {
		return
	}

	advice := s.deps.Strategy.Recommend(req.PortfolioValue, req.Volatility, req.RiskTolerance, req.Taxable)
	s.writeJSON(w, http.StatusOK, advice)
}

type savePricesRequest struct {
	AssetID string               `json:"asset_id"`
	Prices  []history.DailyPrice `json:"prices"`
}

func (s *Server) handleSavePrices(w http.ResponseWriter, r *http.Request) {
	var req savePricesRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.AssetID == "" || len(req.Prices) == 0 {
		s.writeError(w, http.StatusBadRequest, "asset_id and prices are required")
		return
	}

	for _, p := range req.Prices {
		if err := s.deps.History.SavePrice(req.AssetID, p.Date, p.Close); err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"saved": len(req.Prices)})
}

func (s *Server) handleGetPrices(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "assetID")

	prices, err := s.deps.History.DailyPrices(assetID, 0)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"asset_id": assetID,
		"prices":   prices,
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeEngineError maps engine sentinel errors to client status codes.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInsufficientData):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrInvalidWeights):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}
