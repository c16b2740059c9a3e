package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzzdr/portfolio-risk-sim/internal/market"
	"github.com/rzzdr/portfolio-risk-sim/internal/risk"
	"github.com/rzzdr/portfolio-risk-sim/internal/store"
	"github.com/rzzdr/portfolio-risk-sim/pkg/metrics"
	"github.com/rzzdr/portfolio-risk-sim/pkg/models"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/backpressure"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/circuit"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	handler    http.Handler
	portfolios *store.InMemoryPortfolioStore
	results    *store.InMemoryResultStore
	breakers   *circuit.Manager
}

func newTestServer(t *testing.T, opts ...func(*Dependencies)) *testServer {
	t.Helper()
	portfolios := store.NewInMemoryPortfolioStore()
	results := store.NewInMemoryResultStore()
	recorder := metrics.NewRecorder()
	breakers := circuit.NewManager()

	require.NoError(t, portfolios.SavePortfolio(&models.Portfolio{
		ID:          "core",
		Name:        "Core",
		Instruments: []string{"AAPL", "MSFT"},
		Weights:     models.WeightVector{0.6, 0.4},
		Benchmark:   "^GSPC",
	}))

	engine := risk.NewEngine(risk.EngineConfig{
		NumSimulations: 200,
		TimeHorizon:    20,
		Seed:           42,
		HistoricalDays: 252,
	}, portfolios, market.NewInMemoryHistoricalDataStore(),
		risk.WithSinks(results), risk.WithMetrics(recorder))

	deps := Dependencies{
		Runner:     engine,
		Portfolios: portfolios,
		Results:    results,
		Metrics:    recorder,
		Breakers:   breakers,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	srv := NewServer(Config{}, deps)
	return &testServer{handler: srv.Handler(), portfolios: portfolios, results: results, breakers: breakers}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	s.breakers.Get("kafka", circuit.DefaultConfig())

	rec := s.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, Version, body["version"])
	assert.Len(t, body["circuit_breakers"], 1)
}

func TestRunSimulationPersistsRecord(t *testing.T) {
	s := newTestServer(t)

	seed := uint64(7)
	rec := s.do(t, http.MethodPost, "/api/v1/simulations", SimulationRequest{PortfolioID: "core", Seed: &seed, Strategy: "historical"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res risk.RunResult
	decode(t, rec, &res)
	assert.Equal(t, "core", res.Record.PortfolioID)
	assert.Equal(t, uint64(7), res.Record.Seed)
	assert.Equal(t, "historical", res.Record.Strategy)
	assert.Equal(t, 200, res.Record.NumSimulations)
	assert.Len(t, res.Summary.MeanTrajectory, 20)
	assert.Len(t, res.Summary.Benchmark, 20)

	rec = s.do(t, http.MethodGet, "/api/v1/results/"+res.Record.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stored models.RunRecord
	decode(t, rec, &stored)
	assert.Equal(t, res.Record.VaR, stored.VaR)

	rec = s.do(t, http.MethodGet, "/api/v1/results?portfolio_id=core&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Runs  []models.RunRecord `json:"runs"`
		Count int                `json:"count"`
	}
	decode(t, rec, &list)
	assert.Equal(t, 1, list.Count)
}

func TestRunSimulationIsReproducible(t *testing.T) {
	s := newTestServer(t)
	seed := uint64(99)
	req := SimulationRequest{PortfolioID: "core", Seed: &seed}

	var a, b risk.RunResult
	decode(t, s.do(t, http.MethodPost, "/api/v1/simulations", req), &a)
	decode(t, s.do(t, http.MethodPost, "/api/v1/simulations", req), &b)
	assert.Equal(t, a.Report.VaR, b.Report.VaR)
	assert.Equal(t, a.Report.CVaR, b.Report.CVaR)
	assert.NotEqual(t, a.Record.ID, b.Record.ID)
}

func TestInlinePortfolioSimulation(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/simulations", SimulationRequest{
		Portfolio:      &models.Portfolio{ID: "adhoc", Instruments: []string{"SPY", "QQQ"}, Weights: models.WeightVector{0.5, 0.5}},
		NumSimulations: 50,
		TimeHorizon:    5,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res risk.RunResult
	decode(t, rec, &res)
	assert.Equal(t, []string{"SPY", "QQQ"}, res.Instruments)
	assert.Equal(t, 50, res.Record.NumSimulations)
}

func TestSimulationErrorsMapToStatus(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		req    SimulationRequest
		status int
	}{
		{"unknown portfolio", SimulationRequest{PortfolioID: "missing"}, http.StatusNotFound},
		{"bad confidence", SimulationRequest{PortfolioID: "core", ConfidenceLevel: 1.5}, http.StatusBadRequest},
		{"bad strategy", SimulationRequest{PortfolioID: "core", Strategy: "garch"}, http.StatusBadRequest},
		{"no portfolio", SimulationRequest{}, http.StatusBadRequest},
		{"negative simulations", SimulationRequest{PortfolioID: "core", NumSimulations: -1}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/v1/simulations", tt.req)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	rec := s.do(t, http.MethodPost, "/api/v1/simulations", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPortfolioCRUD(t *testing.T) {
	s := newTestServer(t)

	p := models.Portfolio{ID: "growth", Instruments: []string{"GOOGL", "AMZN"}, Weights: models.WeightVector{0.5, 0.5}}
	rec := s.do(t, http.MethodPost, "/api/v1/portfolios", p)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/api/v1/portfolios", p).Code)

	rec = s.do(t, http.MethodGet, "/api/v1/portfolios", nil)
	var list struct {
		Count int `json:"count"`
	}
	decode(t, rec, &list)
	assert.Equal(t, 2, list.Count)

	p.Weights = models.WeightVector{0.7, 0.3}
	rec = s.do(t, http.MethodPut, "/api/v1/portfolios/growth", p)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated models.Portfolio
	decode(t, rec, &updated)
	assert.Equal(t, models.WeightVector{0.7, 0.3}, updated.Weights)

	bad := models.Portfolio{ID: "bad", Instruments: []string{"AAPL"}, Weights: models.WeightVector{0.5, 0.5}}
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/v1/portfolios", bad).Code)

	rec = s.do(t, http.MethodPost, "/api/v1/portfolios/growth/simulate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/v1/portfolios/growth", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/portfolios/growth", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPut, "/api/v1/portfolios/growth", p).Code)
}

func TestChartEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/portfolios/core/charts/trajectory?seed=1&simulations=50&horizon=10", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/v1/portfolios/core/charts/pie", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/v1/portfolios/core/charts/histogram?seed=x", nil).Code)
}

func TestMetricsAndUnknownRoutes(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodGet, "/api/v1/health", nil)

	rec := s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `prs_api_requests_total{method="GET",path="/api/v1/health",status="200"}`)

	rec = s.do(t, http.MethodGet, "/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(errors.DimensionMismatch("3 vs 2")))
	assert.Equal(t, http.StatusBadRequest, statusFor(errors.EmptyInput("none")))
	assert.Equal(t, http.StatusNotFound, statusFor(errors.Wrap(errors.NotFound("x"), "loading")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}

func TestSimulationRateLimit(t *testing.T) {
	s := newTestServer(t, func(d *Dependencies) {
		d.Limiter = backpressure.NewTokenBucketLimiter(0.001, 1)
	})

	rec := s.do(t, http.MethodPost, "/api/v1/portfolios/core/simulate", SimulationRequest{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/v1/simulations", SimulationRequest{PortfolioID: "core"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// reads are not throttled
	rec = s.do(t, http.MethodGet, "/api/v1/portfolios/core", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
