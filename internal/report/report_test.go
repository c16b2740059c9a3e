package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzzdr/portfolio-risk-sim/internal/risk"
	"github.com/rzzdr/portfolio-risk-sim/pkg/models"
)

func TestFormatCurrency(t *testing.T) {
	assert.Equal(t, "$9,512.35", FormatCurrency(9512.345))
	assert.Equal(t, "$0.00", FormatCurrency(0))
	assert.Equal(t, "$1,234,567.89", FormatCurrency(1234567.891))
	assert.Equal(t, "-$12.50", FormatCurrency(-12.5))
	assert.Equal(t, "$999.00", FormatCurrency(999))
}

func TestFormatRatio(t *testing.T) {
	assert.Equal(t, "0.1235", FormatRatio(models.Defined(0.123456)))
	assert.Equal(t, "-1.5000", FormatRatio(models.Defined(-1.5)))
	assert.Equal(t, "undefined", FormatRatio(models.Undefined()))
	assert.Equal(t, "95.00%", FormatPercent(0.95))
}

func TestWriteText(t *testing.T) {
	res := &risk.RunResult{
		Record: models.RunRecord{
			PortfolioID:       "core",
			Strategy:          "parametric",
			Seed:              42,
			NumSimulations:    1000,
			TimeHorizon:       252,
			InitialInvestment: 10000,
		},
		Report: models.RiskReport{
			ConfidenceLevel: 0.95,
			VaR:             8765.4321,
			CVaR:            models.Undefined(),
			SharpeRatio:     models.Defined(0.0512),
		},
		Instruments: []string{"AAPL", "MSFT"},
		Weights:     models.WeightVector{0.6, 0.4},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, res))
	out := buf.String()
	assert.Contains(t, out, "$8,765.43")
	assert.Contains(t, out, "CVaR (95.00%):        undefined")
	assert.Contains(t, out, "0.0512")
	assert.Contains(t, out, "AAPL     60.00%")
}

func TestCharts(t *testing.T) {
	summary := models.PathSummary{
		MeanTrajectory: []float64{100, 101, 102},
		Bands: models.PercentileBands{
			P5:  []float64{95, 94, 93},
			P95: []float64{105, 108, 111},
		},
		Benchmark: []float64{100, 100.5},
	}

	png, err := TrajectoryChart("Simulated paths", summary)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	hist := models.Histogram{Edges: []float64{90, 100, 110}, Counts: []int{3, 7}}
	png, err = HistogramChart("Terminal values", hist)
	require.NoError(t, err)
	assert.NotEmpty(t, png)

	_, err = TrajectoryChart("empty", models.PathSummary{})
	assert.Error(t, err)
	_, err = HistogramChart("empty", models.Histogram{})
	assert.Error(t, err)
}
