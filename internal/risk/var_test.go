package risk

import (
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzzdr/portfolio-risk-sim/pkg/models"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
)

func terminalMatrix(t *testing.T, terminal []float64) *models.SimulatedValueMatrix {
	t.Helper()
	m, err := models.NewSimulatedValueMatrix(1, len(terminal), terminal)
	require.NoError(t, err)
	return m
}

func TestValueAtRiskInterpolates(t *testing.T) {
	m := terminalMatrix(t, []float64{500, 100, 400, 200, 300})

	v, err := ValueAtRisk(m, 0.8)
	require.NoError(t, err)
	assert.InDelta(t, 180.0, v, 1e-9)

	cvar, err := ConditionalValueAtRisk(m, 0.8)
	require.NoError(t, err)
	got, ok := cvar.Float64()
	require.True(t, ok)
	assert.InDelta(t, 100.0, got, 1e-9)
}

func TestTailMetricsOnUniformGrid(t *testing.T) {
	terminal := make([]float64, 1000)
	for i := range terminal {
		terminal[i] = float64(1000 - i)
	}
	m := terminalMatrix(t, terminal)

	v, err := ValueAtRisk(m, 0.95)
	require.NoError(t, err)
	assert.InDelta(t, 50.95, v, 1e-9)

	cvar, err := ConditionalValueAtRisk(m, 0.95)
	require.NoError(t, err)
	assert.True(t, cvar.Valid)
	assert.InDelta(t, 25.5, cvar.Value, 1e-9)
	assert.LessOrEqual(t, cvar.Value, v)
}

func TestSingleSimulationTail(t *testing.T) {
	m := terminalMatrix(t, []float64{1234.5})

	v, err := ValueAtRisk(m, 0.99)
	require.NoError(t, err)
	assert.Equal(t, 1234.5, v)

	cvar, err := ConditionalValueAtRisk(m, 0.99)
	require.NoError(t, err)
	assert.Equal(t, models.Defined(1234.5), cvar)
}

func TestConfidenceValidation(t *testing.T) {
	m := terminalMatrix(t, []float64{1, 2, 3})
	for _, c := range []float64{0, 1, -0.5, 1.5} {
		_, err := ValueAtRisk(m, c)
		assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidParameter), "confidence %v", c)
		_, err = ConditionalValueAtRisk(m, c)
		assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidParameter), "confidence %v", c)
	}

	_, err := ValueAtRisk(nil, 0.95)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidParameter))
	_, err = ConditionalValueAtRisk(nil, 0.95)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidParameter))
}

func TestTailMetricsStayWithinTerminalRange(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for trial := 0; trial < 200; trial++ {
		terminal := make([]float64, 1+rng.IntN(400))
		for i := range terminal {
			terminal[i] = 10000 * math.Exp(rng.NormFloat64()*0.3)
		}
		confidence := 0.5 + 0.49*rng.Float64()
		m := terminalMatrix(t, terminal)

		v, err := ValueAtRisk(m, confidence)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v, slices.Min(terminal), "trial %d", trial)
		assert.LessOrEqual(t, v, slices.Max(terminal), "trial %d", trial)

		cvar, err := ConditionalValueAtRisk(m, confidence)
		require.NoError(t, err)
		require.True(t, cvar.Valid, "trial %d", trial)
		assert.LessOrEqual(t, cvar.Value, v, "trial %d", trial)
	}
}

func TestPercentile(t *testing.T) {
	p, err := Percentile([]float64{4, 1, 3, 2}, 50)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, p, 1e-12)

	p, err = Percentile([]float64{4, 1, 3, 2}, 100)
	require.NoError(t, err)
	assert.Equal(t, 4.0, p)

	_, err = Percentile(nil, 50)
	assert.Error(t, err)
	_, err = Percentile([]float64{1}, 101)
	assert.Error(t, err)
}

func TestSharpeRatio(t *testing.T) {
	s := SharpeRatio([]float64{0.01, 0.02, 0.03}, 0)
	require.True(t, s.Valid)
	assert.InDelta(t, 2.0, s.Value, 1e-9)

	s = SharpeRatio([]float64{0.01, 0.02, 0.03}, DefaultRiskFreeRate)
	require.True(t, s.Valid)
	assert.InDelta(t, -1.5, s.Value, 1e-9)

	assert.False(t, SharpeRatio([]float64{0.01, 0.01, 0.01}, 0).Valid)
	assert.False(t, SharpeRatio([]float64{0.01}, 0).Valid)
	assert.False(t, SharpeRatio(nil, 0).Valid)
}

func TestAggregate(t *testing.T) {
	returns := twoAssetReturns(t)

	pr, err := Aggregate(returns, models.WeightVector{0.25, 0.75})
	require.NoError(t, err)
	require.Equal(t, 3, pr.Len())
	assert.InDelta(t, 0.0025-0.0075, pr.At(0), 1e-15)
	assert.InDelta(t, 0.005, pr.At(1), 1e-15)

	_, err = Aggregate(returns, models.WeightVector{1})
	assert.True(t, errors.IsType(err, errors.ErrorTypeDimensionMismatch))

	_, err = Aggregate(returns, models.WeightVector{0.5, 0.6})
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidParameter))

	_, err = Aggregate(nil, models.WeightVector{1})
	assert.True(t, errors.IsType(err, errors.ErrorTypeEmptyInput))
}
