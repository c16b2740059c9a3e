package models

import (
	"encoding/json"

	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
)

// SimulatedValueMatrix is a horizon x simulations grid of portfolio values.
// Row t holds every path's value at day t; the last row is the terminal
// distribution.
type SimulatedValueMatrix struct {
	horizon     int
	simulations int
	values      []float64 // row-major
}

// NewSimulatedValueMatrix copies values, which must be laid out row by row
func NewSimulatedValueMatrix(horizon, simulations int, values []float64) (*SimulatedValueMatrix, error) {
	if horizon <= 0 {
		return nil, errors.InvalidParameter("time_horizon", "must be positive")
	}
	if simulations <= 0 {
		return nil, errors.InvalidParameter("num_simulations", "must be positive")
	}
	if len(values) != horizon*simulations {
		return nil, errors.DimensionMismatch("got %d values for a %dx%d matrix", len(values), horizon, simulations)
	}
	return &SimulatedValueMatrix{
		horizon:     horizon,
		simulations: simulations,
		values:      append([]float64(nil), values...),
	}, nil
}

// Horizon returns the number of simulated days
func (m *SimulatedValueMatrix) Horizon() int {
	return m.horizon
}

// Simulations returns the number of paths
func (m *SimulatedValueMatrix) Simulations() int {
	return m.simulations
}

// At returns the value of path s at day t
func (m *SimulatedValueMatrix) At(t, s int) float64 {
	return m.values[t*m.simulations+s]
}

// Row returns a copy of every path's value at day t
func (m *SimulatedValueMatrix) Row(t int) []float64 {
	start := t * m.simulations
	return append([]float64(nil), m.values[start:start+m.simulations]...)
}

// Terminal returns a copy of the final-day values
func (m *SimulatedValueMatrix) Terminal() []float64 {
	return m.Row(m.horizon - 1)
}

// Path returns a copy of one simulated trajectory
func (m *SimulatedValueMatrix) Path(s int) []float64 {
	path := make([]float64, m.horizon)
	for t := range path {
		path[t] = m.At(t, s)
	}
	return path
}

// Equal reports whether two matrices have the same shape and bit-identical values
func (m *SimulatedValueMatrix) Equal(other *SimulatedValueMatrix) bool {
	if other == nil || m.horizon != other.horizon || m.simulations != other.simulations {
		return false
	}
	for i, v := range m.values {
		if v != other.values[i] {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the matrix as rows of values
func (m *SimulatedValueMatrix) MarshalJSON() ([]byte, error) {
	rows := make([][]float64, m.horizon)
	for t := range rows {
		rows[t] = m.values[t*m.simulations : (t+1)*m.simulations]
	}
	return json.Marshal(struct {
		Horizon     int         `json:"time_horizon"`
		Simulations int         `json:"num_simulations"`
		Values      [][]float64 `json:"values"`
	}{m.horizon, m.simulations, rows})
}

// Percentile bands of simulated value per day
type PercentileBands struct {
	P5  []float64 `json:"p5"`
	P25 []float64 `json:"p25"`
	P50 []float64 `json:"p50"`
	P75 []float64 `json:"p75"`
	P95 []float64 `json:"p95"`
}

// A histogram of terminal values. Edges has one more entry than Counts.
type Histogram struct {
	Edges  []float64 `json:"edges"`
	Counts []int     `json:"counts"`
}

// PathSummary holds the arrays a chart or report needs from one simulation
type PathSummary struct {
	MeanTrajectory    []float64       `json:"mean_trajectory"`
	Bands             PercentileBands `json:"bands"`
	TerminalHistogram Histogram       `json:"terminal_histogram"`
	MeanTerminal      float64         `json:"mean_terminal"`
	MedianTerminal    float64         `json:"median_terminal"`
	ProbabilityOfLoss float64         `json:"probability_of_loss"`
	Benchmark         []float64       `json:"benchmark,omitempty"`
}
