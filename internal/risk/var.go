package risk

import (
	"math"

	"github.com/rzzdr/portfolio-risk-sim/pkg/models"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
)

// ValueAtRisk returns the (1-c) percentile of the terminal values of the
// simulation, interpolated linearly between order statistics. The result is a
// portfolio value, not a loss amount.
func ValueAtRisk(m *models.SimulatedValueMatrix, confidence float64) (float64, error) {
	terminal, err := terminalValues(m, confidence)
	if err != nil {
		return 0, err
	}
	return percentileSorted(sortedCopy(terminal), (1-confidence)*100), nil
}

// ConditionalValueAtRisk returns the mean of terminal values at or below the
// VaR threshold. Undefined only if no terminal value falls in that tail.
func ConditionalValueAtRisk(m *models.SimulatedValueMatrix, confidence float64) (models.NullableFloat, error) {
	terminal, err := terminalValues(m, confidence)
	if err != nil {
		return models.Undefined(), err
	}

	sorted := sortedCopy(terminal)
	threshold := percentileSorted(sorted, (1-confidence)*100)
	return tailMean(sorted, threshold), nil
}

// Percentile returns the p-th percentile (0..100) of values using linear
// interpolation between order statistics.
func Percentile(values []float64, p float64) (float64, error) {
	if len(values) == 0 {
		return 0, errors.EmptyInput("no values to take a percentile of")
	}
	if math.IsNaN(p) || p < 0 || p > 100 {
		return 0, errors.InvalidParameterf("percentile", "must be within [0, 100], got %v", p)
	}
	return percentileSorted(sortedCopy(values), p), nil
}

// tailMean averages the ascending values that are <= threshold
func tailMean(sorted []float64, threshold float64) models.NullableFloat {
	var sum float64
	var count int
	for _, v := range sorted {
		if v > threshold {
			break
		}
		sum += v
		count++
	}
	if count == 0 {
		return models.Undefined()
	}
	return models.Defined(sum / float64(count))
}

func validateConfidence(confidence float64) error {
	if !(confidence > 0 && confidence < 1) {
		return errors.InvalidParameterf("confidence_level", "must be strictly between 0 and 1, got %v", confidence)
	}
	return nil
}

func terminalValues(m *models.SimulatedValueMatrix, confidence float64) ([]float64, error) {
	if err := validateConfidence(confidence); err != nil {
		return nil, err
	}
	if m == nil || m.Simulations() == 0 || m.Horizon() == 0 {
		return nil, errors.InvalidParameter("simulated_values", "terminal row is empty")
	}
	return m.Terminal(), nil
}
