package risk

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/rzzdr/portfolio-risk-sim/pkg/models"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
)

// HistogramBins is the number of buckets in the terminal value histogram
const HistogramBins = 50

// Summarize reduces a simulation to what the charts and reports need: the
// per-day mean and percentile bands, a histogram of terminal values and the
// probability of ending below the initial investment.
func Summarize(m *models.SimulatedValueMatrix, initialInvestment float64) (models.PathSummary, error) {
	if m == nil || m.Horizon() == 0 || m.Simulations() == 0 {
		return models.PathSummary{}, errors.EmptyInput("simulated value matrix is empty")
	}

	horizon := m.Horizon()
	summary := models.PathSummary{
		MeanTrajectory: make([]float64, horizon),
		Bands: models.PercentileBands{
			P5:  make([]float64, horizon),
			P25: make([]float64, horizon),
			P50: make([]float64, horizon),
			P75: make([]float64, horizon),
			P95: make([]float64, horizon),
		},
	}

	sorted := bufferPool.GetN(m.Simulations())
	defer bufferPool.Put(sorted)
	for t := 0; t < horizon; t++ {
		row := m.Row(t)
		summary.MeanTrajectory[t] = stat.Mean(row, nil)

		copy(sorted, row)
		sort.Float64s(sorted)
		summary.Bands.P5[t] = percentileSorted(sorted, 5)
		summary.Bands.P25[t] = percentileSorted(sorted, 25)
		summary.Bands.P50[t] = percentileSorted(sorted, 50)
		summary.Bands.P75[t] = percentileSorted(sorted, 75)
		summary.Bands.P95[t] = percentileSorted(sorted, 95)
	}

	terminal := m.Terminal()
	copy(sorted, terminal)
	sort.Float64s(sorted)
	summary.MeanTerminal = stat.Mean(terminal, nil)
	summary.MedianTerminal = percentileSorted(sorted, 50)
	summary.TerminalHistogram = histogram(sorted, HistogramBins)

	var losses int
	for _, v := range terminal {
		if v < initialInvestment {
			losses++
		}
	}
	summary.ProbabilityOfLoss = float64(losses) / float64(len(terminal))

	return summary, nil
}

// BenchmarkPath compounds the benchmark returns from the initial investment,
// truncated to at most horizon days.
func BenchmarkPath(returns []float64, initialInvestment float64, horizon int) []float64 {
	n := min(len(returns), horizon)
	path := make([]float64, n)
	growth := 1.0
	for i := 0; i < n; i++ {
		growth *= 1 + returns[i]
		path[i] = initialInvestment * growth
	}
	return path
}

// histogram buckets ascending values into equal-width bins over [min, max].
// The last bin is closed on the right. A zero-width range is widened by 0.5
// on each side.
func histogram(sorted []float64, bins int) models.Histogram {
	lo, hi := sorted[0], sorted[len(sorted)-1]
	if lo == hi {
		lo -= 0.5
		hi += 0.5
	}

	edges := make([]float64, bins+1)
	width := (hi - lo) / float64(bins)
	for i := range edges {
		edges[i] = lo + float64(i)*width
	}
	edges[bins] = hi

	counts := make([]int, bins)
	for _, v := range sorted {
		i := int((v - lo) / width)
		if i >= bins {
			i = bins - 1
		}
		if i < 0 {
			i = 0
		}
		counts[i]++
	}

	return models.Histogram{Edges: edges, Counts: counts}
}
