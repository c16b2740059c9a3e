package report

import (
	"fmt"
	"math"
	"strconv"

	"github.com/vicanso/go-charts/v2"

	"github.com/rzzdr/portfolio-risk-sim/pkg/models"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
)

const (
	chartWidth  = 1000
	chartHeight = 600
)

// TrajectoryChart renders the mean path with the 5th and 95th percentile
// bands, plus the benchmark when present, as a PNG
func TrajectoryChart(title string, summary models.PathSummary) ([]byte, error) {
	if len(summary.MeanTrajectory) == 0 {
		return nil, errors.EmptyInput("path summary has no trajectory")
	}

	series := [][]float64{summary.Bands.P5, summary.MeanTrajectory, summary.Bands.P95}
	names := []string{"5th percentile", "Mean", "95th percentile"}
	if n := len(summary.Benchmark); n > 0 {
		// Pad a short benchmark with its last value so every series has the same length
		bench := make([]float64, len(summary.MeanTrajectory))
		for i := range bench {
			bench[i] = summary.Benchmark[min(i, n-1)]
		}
		series = append(series, bench)
		names = append(names, "Benchmark")
	}

	yMin, yMax := bounds(series)
	xLabels := make([]string, len(summary.MeanTrajectory))
	for i := range xLabels {
		xLabels[i] = strconv.Itoa(i + 1)
	}

	p, err := charts.LineRender(
		series,
		charts.TitleTextOptionFunc(title),
		charts.XAxisOptionFunc(charts.XAxisOption{
			Data:        xLabels,
			SplitNumber: splitNumber(len(xLabels)),
			BoundaryGap: charts.FalseFlag(),
		}),
		charts.YAxisOptionFunc(charts.YAxisOption{
			Min:         &yMin,
			Max:         &yMax,
			DivideCount: 5,
		}),
		charts.LegendOptionFunc(charts.LegendOption{Data: names}),
		charts.ThemeOptionFunc(charts.ThemeLight),
		charts.WidthOptionFunc(chartWidth),
		charts.HeightOptionFunc(chartHeight),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to render trajectory chart")
	}

	buf, err := p.Bytes()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate chart bytes")
	}
	return buf, nil
}

// HistogramChart renders the terminal value distribution as a bar chart,
// labelling each bar with its lower edge
func HistogramChart(title string, hist models.Histogram) ([]byte, error) {
	if len(hist.Counts) == 0 {
		return nil, errors.EmptyInput("histogram has no bins")
	}

	values := make([]float64, len(hist.Counts))
	labels := make([]string, len(hist.Counts))
	for i, c := range hist.Counts {
		values[i] = float64(c)
		labels[i] = fmt.Sprintf("%.0f", hist.Edges[i])
	}

	p, err := charts.BarRender(
		[][]float64{values},
		charts.TitleTextOptionFunc(title),
		charts.XAxisOptionFunc(charts.XAxisOption{
			Data:        labels,
			SplitNumber: splitNumber(len(labels)),
		}),
		charts.ThemeOptionFunc(charts.ThemeLight),
		charts.WidthOptionFunc(chartWidth),
		charts.HeightOptionFunc(chartHeight),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to render histogram")
	}

	buf, err := p.Bytes()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate chart bytes")
	}
	return buf, nil
}

// bounds returns a padded y-axis range covering every finite value
func bounds(series [][]float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range series {
		for _, v := range s {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if math.IsInf(lo, 1) {
		return 0, 1
	}
	pad := (hi - lo) * 0.05
	if pad == 0 {
		pad = math.Max(math.Abs(hi)*0.05, 1)
	}
	return lo - pad, hi + pad
}

// splitNumber picks how many x-axis labels to show
func splitNumber(points int) int {
	splitNum := 6
	if points <= 30 {
		splitNum = points / 3
		if splitNum < 3 {
			splitNum = 3
		}
	}
	return splitNum
}
