package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/folio/internal/cache"
	"github.com/aristath/folio/internal/config"
	"github.com/aristath/folio/internal/database"
	"github.com/aristath/folio/internal/history"
	"github.com/aristath/folio/internal/modules/drift"
	"github.com/aristath/folio/internal/modules/extraction"
	"github.com/aristath/folio/internal/modules/rebalancing"
	"github.com/aristath/folio/internal/modules/simulation"
	"github.com/aristath/folio/internal/modules/tax"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	log := zerolog.Nop()
	dir := t.TempDir()

	historyDB, err := database.New(database.Config{Path: filepath.Join(dir, "history.db"), Name: "history"})
	require.NoError(t, err)
	t.Cleanup(func() { historyDB.Close() })
	store := history.NewStore(historyDB, log)
	require.NoError(t, store.Init())

	cacheDB, err := database.New(database.Config{Path: filepath.Join(dir, "cache.db"), Profile: database.ProfileCache, Name: "cache"})
	require.NoError(t, err)
	t.Cleanup(func() { cacheDB.Close() })
	calcCache := cache.New(cacheDB, log)
	require.NoError(t, calcCache.Init())

	return New(Deps{
		Config:    &config.Config{Port: 0, RiskFreeRate: 0.02, MinTradeSize: 100},
		Extractor: extraction.NewExtractor(log),
		History:   store,
		Cache:     calcCache,
		Drift:     drift.NewAnalyzer(log),
		Rebalance: rebalancing.NewCalculator(100, log),
		Strategy:  rebalancing.NewStrategyService(log),
		Tax:       tax.NewRebalancer(tax.DefaultConfig(), log),
		Simulator: simulation.NewSimulator(42, log),
		Snapshot:  NewSnapshotKeeper(),
		Log:       log,
	})
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

// repeat builds a deterministic return series long enough for covariance.
func repeat(pattern []float64, n int) []float64 {
	out := make([]float64, 0, n)
	for len(out) < n {
		out = append(out, pattern...)
	}
	return out[:n]
}

func testHoldings() []map[string]interface{} {
	return []map[string]interface{}{
		{
			"id": "eq", "name": "Equity Fund", "asset_class": "equity",
			"value": 60000.0, "current_price": 100.0,
			"historical_returns": repeat([]float64{0.01, -0.005, 0.02, -0.01}, 40),
		},
		{
			"id": "bd", "name": "Bond Fund", "asset_class": "bond",
			"value": 40000.0, "current_price": 50.0,
			"historical_returns": repeat([]float64{0.002, -0.001, 0.004, 0.001}, 40),
		},
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestOptimizeEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/optimize", map[string]interface{}{
		"holdings":          testHoldings(),
		"optimization_type": "min_variance",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Portfolio struct {
			Weights []float64 `json:"weights"`
			Type    string    `json:"optimization_type"`
		} `json:"portfolio"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Portfolio.Weights, 2)
	assert.Equal(t, "min_variance", resp.Portfolio.Type)

	sum := resp.Portfolio.Weights[0] + resp.Portfolio.Weights[1]
	assert.InDelta(t, 1.0, sum, 0.01)
}

func TestOptimizeRejectsUnknownType(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/optimize", map[string]interface{}{
		"holdings":          testHoldings(),
		"optimization_type": "quantum",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOptimizeInsufficientData(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/optimize", map[string]interface{}{
		"holdings": testHoldings()[:1],
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestFrontierEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/frontier", map[string]interface{}{
		"holdings":   testHoldings(),
		"num_points": 5,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		MinVariance *json.RawMessage `json:"min_variance"`
		Tangency    *json.RawMessage `json:"tangency"`
		Comparison  *json.RawMessage `json:"comparison"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotNil(t, resp.MinVariance)
	assert.NotNil(t, resp.Tangency)
	assert.NotNil(t, resp.Comparison, "current weights come from holding values")
}

func TestRiskEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/risk", map[string]interface{}{
		"holdings": testHoldings(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp, "covariance")
	assert.Contains(t, resp, "correlation")
	assert.Contains(t, resp, "diversification_benefit")
}

func TestDriftEndpointUpdatesSnapshot(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/drift", map[string]interface{}{
		"holdings":          testHoldings(),
		"target_allocation": map[string]float64{"equity": 40, "bond": 60},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Urgency string `json:"urgency"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "high", resp.Urgency, "60/40 current vs 40/60 target is a 20-point drift")

	snapshot := s.deps.Snapshot.Latest()
	require.NotNil(t, snapshot)
	assert.Len(t, snapshot.Holdings, 2)
}

func TestDriftEndpointRequiresTarget(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/drift", map[string]interface{}{
		"holdings": testHoldings(),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRebalanceEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/rebalance", map[string]interface{}{
		"holdings":       testHoldings(),
		"target_weights": []float64{0.4, 0.6},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Actions []struct {
			Side   string  `json:"side"`
			Amount float64 `json:"amount"`
		} `json:"actions"`
		Needed bool `json:"needed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Actions, 2)
	assert.Equal(t, "sell", resp.Actions[0].Side)
	assert.True(t, resp.Needed)
}

func TestRebalanceEndpointInvalidWeights(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/rebalance", map[string]interface{}{
		"holdings":       testHoldings(),
		"target_weights": []float64{0.4},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTaxAwareRebalanceEndpoint(t *testing.T) {
	s := newTestServer(t)

	holdings := testHoldings()
	holdings[0]["quantity"] = 600.0
	holdings[0]["purchase_price"] = 50.0 // £30k unrealized gain
	holdings[1]["quantity"] = 800.0
	holdings[1]["purchase_price"] = 55.0 // £4k unrealized loss

	rec := doJSON(t, s, http.MethodPost, "/api/rebalance/tax-aware", map[string]interface{}{
		"holdings":       holdings,
		"target_weights": []float64{0.4, 0.6},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp, "actions")
	assert.Contains(t, resp, "summary")
	assert.Contains(t, resp, "bounded")
}

func TestSimulateEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/simulate", map[string]interface{}{
		"starting_value":       10000.0,
		"monthly_contribution": 100.0,
		"expected_return":      0.07,
		"volatility":           0.15,
		"years":                5,
		"iterations":           500,
		"goal_amount":          15000.0,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Projections     []map[string]interface{} `json:"projections"`
		GoalProbability *float64                 `json:"goal_probability"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Projections, 5)
	require.NotNil(t, resp.GoalProbability)
	assert.GreaterOrEqual(t, *resp.GoalProbability, 0.0)
	assert.LessOrEqual(t, *resp.GoalProbability, 1.0)
}

func TestStrategyRecommendEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/strategy/recommend", map[string]interface{}{
		"portfolio_value": 250000.0,
		"volatility":      0.25,
		"risk_tolerance":  5,
		"taxable":         false,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "quarterly")
}

func TestPricesRoundTrip(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/prices/", map[string]interface{}{
		"asset_id": "vwrl",
		"prices": []map[string]interface{}{
			{"date": "2026-08-01", "close": 100.0},
			{"date": "2026-08-02", "close": 101.5},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, s, http.MethodGet, "/api/prices/vwrl", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "101.5")
}

func TestInvalidBodyRejected(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/optimize", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
