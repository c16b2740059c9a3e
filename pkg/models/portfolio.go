package models

import (
	"math"
	"time"

	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
)

// WeightTolerance is how far a weight vector's sum may drift from 1
const WeightTolerance = 1e-9

// WeightVector holds one weight per instrument, in column order
type WeightVector []float64

// Sum returns the total weight
func (w WeightVector) Sum() float64 {
	var sum float64
	for _, v := range w {
		sum += v
	}
	return sum
}

// Validate checks that every weight is finite and the vector sums to 1
func (w WeightVector) Validate() error {
	if len(w) == 0 {
		return errors.EmptyInput("weight vector is empty")
	}
	for i, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.InvalidParameterf("weights", "weight %d is not a finite number", i)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > WeightTolerance {
		return errors.InvalidParameterf("weights", "weights sum to %g, expected 1", sum)
	}
	return nil
}

// Normalize returns a copy of w scaled to sum to 1
func (w WeightVector) Normalize() (WeightVector, error) {
	sum := w.Sum()
	if len(w) == 0 || sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, errors.InvalidParameterf("weights", "cannot normalize weights summing to %g", sum)
	}
	out := make(WeightVector, len(w))
	for i, v := range w {
		out[i] = v / sum
	}
	return out, nil
}

// EqualWeights returns n weights of 1/n
func EqualWeights(n int) WeightVector {
	w := make(WeightVector, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	return w
}

// Portfolio is a set of weighted instruments plus an optional benchmark
type Portfolio struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Instruments       []Instrument      `json:"instruments"`
	Weights           WeightVector      `json:"weights,omitempty"`
	Benchmark         Instrument        `json:"benchmark,omitempty"`
	Sectors           map[string]string `json:"sectors,omitempty"`
	InitialInvestment float64           `json:"initial_investment"`
	Created           time.Time         `json:"created"`
	Updated           time.Time         `json:"updated"`
}

// Symbols returns the instruments to fetch data for, benchmark included
func (p *Portfolio) Symbols() []Instrument {
	symbols := append([]Instrument(nil), p.Instruments...)
	if p.Benchmark != "" {
		for _, s := range symbols {
			if s == p.Benchmark {
				return symbols
			}
		}
		symbols = append(symbols, p.Benchmark)
	}
	return symbols
}

// Validate checks the portfolio definition. Weights may be empty, in which
// case they are expected to come from the optimizer.
func (p *Portfolio) Validate() error {
	if p.ID == "" {
		return errors.InvalidParameter("id", "portfolio ID cannot be empty")
	}
	if len(p.Instruments) == 0 {
		return errors.EmptyInput("portfolio has no instruments")
	}
	for _, inst := range p.Instruments {
		if inst == p.Benchmark {
			return errors.InvalidParameterf("benchmark", "benchmark %q is also a weighted instrument", inst)
		}
	}
	if len(p.Weights) > 0 && len(p.Weights) != len(p.Instruments) {
		return errors.DimensionMismatch("portfolio has %d weights for %d instruments", len(p.Weights), len(p.Instruments))
	}
	if p.InitialInvestment < 0 {
		return errors.InvalidParameter("initial_investment", "must be positive")
	}
	return nil
}
