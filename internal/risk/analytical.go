package risk

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/rzzdr/portfolio-risk-sim/pkg/models"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
)

// AnalyticalVaR approximates the simulated VaR in closed form, treating the
// horizon return as normal with mean T*mu and deviation sigma*sqrt(T):
//
//	initial * (1 + T*mu + z*sigma*sqrt(T)),  z = Phi^-1(1 - c)
//
// It is a cross-check for the parametric strategy, not a replacement.
func AnalyticalVaR(returns models.PortfolioReturnSeries, initialInvestment float64, horizon int, confidence float64) (float64, error) {
	if err := validateConfidence(confidence); err != nil {
		return 0, err
	}
	if returns.Len() == 0 {
		return 0, errors.EmptyInput("portfolio return series is empty")
	}
	if horizon <= 0 {
		return 0, errors.InvalidParameterf("time_horizon", "must be positive, got %d", horizon)
	}

	mean, std := meanAndStdDev(returns.Values())
	t := float64(horizon)
	z := distuv.UnitNormal.Quantile(1 - confidence)

	return initialInvestment * (1 + t*mean + z*std*math.Sqrt(t)), nil
}
