package risk

import (
	"math"

	"github.com/rzzdr/portfolio-risk-sim/pkg/models"
)

// DefaultRiskFreeRate is subtracted from the mean daily portfolio return
const DefaultRiskFreeRate = 0.035

// SharpeRatio returns (mean - riskFreeRate) / std over the historical
// portfolio returns, with the sample (n-1) deviation. The rate is applied to
// daily returns as given, without de-annualizing. Undefined for fewer than
// two observations or zero deviation.
func SharpeRatio(returns []float64, riskFreeRate float64) models.NullableFloat {
	if len(returns) < 2 || math.IsNaN(riskFreeRate) || math.IsInf(riskFreeRate, 0) {
		return models.Undefined()
	}

	mean, std := meanAndStdDev(returns)
	if std == 0 || math.IsNaN(std) {
		return models.Undefined()
	}

	return models.Defined((mean - riskFreeRate) / std)
}
