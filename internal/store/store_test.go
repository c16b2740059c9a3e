package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzzdr/portfolio-risk-sim/pkg/models"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
)

func sampleRecord(id, portfolioID string, at time.Time, cvar models.NullableFloat) models.RunRecord {
	return models.RunRecord{
		ID:                  id,
		PortfolioID:         portfolioID,
		Timestamp:           at,
		VaR:                 9123.456789,
		CVaR:                cvar,
		SharpeRatio:         models.Defined(-1.25),
		InitialInvestment:   10000,
		MeanPortfolioReturn: 0.00042,
		NumSimulations:      1000,
		TimeHorizon:         252,
		ConfidenceLevel:     0.95,
		Strategy:            "parametric",
		Seed:                18446744073709551615,
	}
}

// exerciseResultStore runs the contract every ResultStore implementation shares
func exerciseResultStore(t *testing.T, s ResultStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	first := sampleRecord("run-1", "core", base, models.Defined(8800.5))
	second := sampleRecord("run-2", "core", base.Add(time.Hour), models.Undefined())
	other := sampleRecord("run-3", "growth", base.Add(2*time.Hour), models.Defined(7000))

	for _, r := range []models.RunRecord{first, second, other} {
		require.NoError(t, s.SaveRun(ctx, r))
	}

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.True(t, first.Timestamp.Equal(got.Timestamp))
	assert.InDelta(t, first.VaR, got.VaR, 1e-9)
	assert.InDelta(t, 8800.5, got.CVaR.Value, 1e-9)
	assert.True(t, got.CVaR.Valid)
	assert.InDelta(t, -1.25, got.SharpeRatio.Value, 1e-12)
	assert.Equal(t, first.Seed, got.Seed)
	assert.Equal(t, 252, got.TimeHorizon)
	assert.Equal(t, "parametric", got.Strategy)

	undefined, err := s.GetRun(ctx, "run-2")
	require.NoError(t, err)
	assert.False(t, undefined.CVaR.Valid)

	_, err = s.GetRun(ctx, "nope")
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))

	all, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "run-3", all[0].ID)

	core, err := s.ListRuns(ctx, RunFilter{PortfolioID: "core", Limit: 1})
	require.NoError(t, err)
	require.Len(t, core, 1)
	assert.Equal(t, "run-2", core[0].ID)
}

func TestInMemoryResultStore(t *testing.T) {
	exerciseResultStore(t, NewInMemoryResultStore())
}

func TestCSVResultStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results", "runs.csv")
	s, err := NewCSVResultStore(path)
	require.NoError(t, err)

	runs, err := s.ListRuns(context.Background(), RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)

	exerciseResultStore(t, s)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "id,portfolio_id,timestamp,var,cvar,sharpe_ratio")
}

func TestSQLiteResultStore(t *testing.T) {
	s, err := NewSQLiteResultStore(context.Background(), ":memory:")
	require.NoError(t, err)
	defer s.Close()

	exerciseResultStore(t, s)
}

func TestPostgresResultStore(t *testing.T) {
	dsn := os.Getenv("QUANT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("QUANT_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := NewPostgresResultStore(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.pool.Exec(ctx, `TRUNCATE simulation_runs`)
	require.NoError(t, err)
	exerciseResultStore(t, s)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{})
	require.NoError(t, err)
	assert.IsType(t, &InMemoryResultStore{}, s)

	s, err = Open(ctx, Config{Driver: "sqlite", SQLitePath: ":memory:"})
	require.NoError(t, err)
	assert.NoError(t, s.Close())

	_, err = Open(ctx, Config{Driver: "mongo"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidParameter))
}

func TestInMemoryPortfolioStore(t *testing.T) {
	s := NewInMemoryPortfolioStore()

	p := &models.Portfolio{
		ID:          "core",
		Instruments: []string{"AAPL", "MSFT"},
		Weights:     models.WeightVector{0.5, 0.5},
		Benchmark:   "^GSPC",
	}
	require.NoError(t, s.SavePortfolio(p))

	got, err := s.GetPortfolio("core")
	require.NoError(t, err)
	assert.Equal(t, p.Instruments, got.Instruments)
	assert.False(t, got.Created.IsZero())

	// Stored copies are isolated from callers
	got.Weights[0] = 0.9
	again, err := s.GetPortfolio("core")
	require.NoError(t, err)
	assert.Equal(t, 0.5, again.Weights[0])

	assert.Error(t, s.SavePortfolio(&models.Portfolio{ID: "bad", Instruments: []string{"A", "B"}, Weights: models.WeightVector{0.5, 0.2}}))
	assert.Error(t, s.SavePortfolio(nil))

	all, err := s.GetAllPortfolios()
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.DeletePortfolio("core"))
	_, err = s.GetPortfolio("core")
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
	assert.True(t, errors.IsType(s.DeletePortfolio("core"), errors.ErrorTypeNotFound))
}
