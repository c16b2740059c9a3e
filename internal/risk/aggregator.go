package risk

import (
	"github.com/rzzdr/portfolio-risk-sim/pkg/models"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
)

// Aggregate combines per-instrument returns into one portfolio return per day:
// the dot product of that day's returns with the weights. No compounding is
// done here.
func Aggregate(returns *models.ReturnSeries, weights models.WeightVector) (models.PortfolioReturnSeries, error) {
	if returns == nil || returns.Len() == 0 || returns.Width() == 0 {
		return models.PortfolioReturnSeries{}, errors.EmptyInput("return series is empty")
	}
	if len(weights) != returns.Width() {
		return models.PortfolioReturnSeries{}, errors.DimensionMismatch(
			"weights has %d entries, return series has %d instruments", len(weights), returns.Width())
	}
	if err := weights.Validate(); err != nil {
		return models.PortfolioReturnSeries{}, err
	}

	values := make([]float64, returns.Len())
	for i := range values {
		var sum float64
		for j, w := range weights {
			sum += w * returns.At(i, j)
		}
		values[i] = sum
	}

	return models.NewPortfolioReturnSeries(returns.Dates(), values), nil
}
