package risk

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/rzzdr/portfolio-risk-sim/pkg/models"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
)

// TradingDaysPerYear annualizes daily means and volatilities
const TradingDaysPerYear = 252

// OptimizationResult describes the best weight vector found by random search
type OptimizationResult struct {
	Weights          models.WeightVector `json:"weights"`
	AnnualReturn     float64             `json:"annual_return"`
	AnnualVolatility float64             `json:"annual_volatility"`
	SharpeProxy      float64             `json:"sharpe_proxy"`
	Trials           int                 `json:"trials"`
}

// Optimize returns the weights with the highest annualized return/volatility
// ratio among trials random draws on the simplex.
func Optimize(returns *models.ReturnSeries, trials int, src *Source) (models.WeightVector, error) {
	res, err := OptimizeSharpe(returns, trials, src)
	if err != nil {
		return nil, err
	}
	return res.Weights, nil
}

// OptimizeSharpe runs the random search and reports the winning trial. Ties
// keep the earliest draw. Trials with zero volatility are skipped.
func OptimizeSharpe(returns *models.ReturnSeries, trials int, src *Source) (*OptimizationResult, error) {
	if trials <= 0 {
		return nil, errors.InvalidParameterf("trials", "must be positive, got %d", trials)
	}
	if src == nil {
		return nil, errors.InvalidParameter("source", "random source is required")
	}
	if returns == nil || returns.Len() == 0 {
		return nil, errors.EmptyInput("return series is empty")
	}
	n := returns.Width()
	if n < 2 {
		return nil, errors.InvalidParameterf("returns", "need at least 2 instruments, got %d", n)
	}
	if returns.Len() < 2 {
		return nil, errors.InvalidParameterf("returns", "need at least 2 observations for a covariance, got %d", returns.Len())
	}

	x := mat.NewDense(returns.Len(), n, nil)
	for i := 0; i < returns.Len(); i++ {
		x.SetRow(i, returns.Row(i))
	}

	means := make([]float64, n)
	for j := 0; j < n; j++ {
		means[j] = stat.Mean(mat.Col(nil, j, x), nil)
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, x, nil)

	rng := src.Stream(optimizerStream)
	annualizer := math.Sqrt(TradingDaysPerYear)

	mu := mat.NewVecDense(n, means)
	draw := make([]float64, n)
	w := mat.NewVecDense(n, draw)

	var best *OptimizationResult
	for trial := 0; trial < trials; trial++ {
		var total float64
		for j := range draw {
			draw[j] = rng.ExpFloat64()
			total += draw[j]
		}
		for j := range draw {
			draw[j] /= total
		}

		ret := mat.Dot(w, mu) * TradingDaysPerYear
		variance := mat.Inner(w, &cov, w)
		if !(variance > 0) {
			continue
		}
		vol := math.Sqrt(variance) * annualizer
		ratio := ret / vol

		if best == nil || ratio > best.SharpeProxy {
			best = &OptimizationResult{
				Weights:          append(models.WeightVector(nil), draw...),
				AnnualReturn:     ret,
				AnnualVolatility: vol,
				SharpeProxy:      ratio,
			}
		}
	}

	if best == nil {
		return nil, errors.InvalidParameter("returns", "return covariance is degenerate for every trial")
	}
	best.Trials = trials
	return best, nil
}
