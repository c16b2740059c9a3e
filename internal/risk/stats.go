package risk

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/pools"
)

// meanAndStdDev returns the sample mean and sample (n-1) standard deviation.
// A constant series, or one with fewer than two values, has zero deviation.
func meanAndStdDev(values []float64) (float64, float64) {
	switch len(values) {
	case 0:
		return 0, 0
	case 1:
		return values[0], 0
	}

	if isConstant(values) {
		return values[0], 0
	}

	mean, std := stat.MeanStdDev(values, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return mean, std
}

func isConstant(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}

// percentileSorted interpolates linearly between order statistics, with the
// p-th percentile at rank p/100*(n-1). sorted must be ascending and non-empty.
func percentileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 || p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}

	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// bufferPool recycles per-block and per-row scratch buffers
var bufferPool = pools.NewFloat64SlicePool(DefaultBlockSize)

func sortedCopy(values []float64) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return sorted
}
