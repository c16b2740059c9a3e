package models

import (
	"math"
	"time"

	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
)

// An instrument identifier such as "AAPL" or "^GSPC"
type Instrument = string

// ReturnSeries is an aligned table of daily fractional returns, one column per
// instrument and one row per trading day. It is immutable once constructed.
type ReturnSeries struct {
	dates       []time.Time
	instruments []Instrument
	rows        [][]float64
}

// NewReturnSeries validates and copies the given table. dates may be nil when
// the caller has no calendar for the rows.
func NewReturnSeries(dates []time.Time, instruments []Instrument, rows [][]float64) (*ReturnSeries, error) {
	if len(instruments) == 0 {
		return nil, errors.EmptyInput("return series has no instrument columns")
	}
	if len(rows) == 0 {
		return nil, errors.EmptyInput("return series has no rows")
	}
	if dates != nil && len(dates) != len(rows) {
		return nil, errors.DimensionMismatch("return series has %d dates for %d rows", len(dates), len(rows))
	}

	seen := make(map[Instrument]struct{}, len(instruments))
	for _, inst := range instruments {
		if inst == "" {
			return nil, errors.InvalidParameter("instruments", "instrument identifier cannot be empty")
		}
		if _, dup := seen[inst]; dup {
			return nil, errors.InvalidParameterf("instruments", "duplicate instrument %q", inst)
		}
		seen[inst] = struct{}{}
	}

	copied := make([][]float64, len(rows))
	for i, row := range rows {
		if len(row) != len(instruments) {
			return nil, errors.DimensionMismatch("row %d has %d values, expected %d", i, len(row), len(instruments))
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.InvalidParameterf("returns", "row %d column %s is not a finite number", i, instruments[j])
			}
		}
		copied[i] = append([]float64(nil), row...)
	}

	s := &ReturnSeries{
		instruments: append([]Instrument(nil), instruments...),
		rows:        copied,
	}
	if dates != nil {
		s.dates = append([]time.Time(nil), dates...)
	}
	return s, nil
}

// Len returns the number of trading days
func (s *ReturnSeries) Len() int {
	return len(s.rows)
}

// Width returns the number of instrument columns
func (s *ReturnSeries) Width() int {
	return len(s.instruments)
}

// Instruments returns the column keys in order
func (s *ReturnSeries) Instruments() []Instrument {
	return append([]Instrument(nil), s.instruments...)
}

// Dates returns the row dates, or nil if the series was built without them
func (s *ReturnSeries) Dates() []time.Time {
	if s.dates == nil {
		return nil
	}
	return append([]time.Time(nil), s.dates...)
}

// At returns the return of column j on day i
func (s *ReturnSeries) At(i, j int) float64 {
	return s.rows[i][j]
}

// Row returns a copy of day i across all instruments
func (s *ReturnSeries) Row(i int) []float64 {
	return append([]float64(nil), s.rows[i]...)
}

// Index returns the column position of an instrument
func (s *ReturnSeries) Index(inst Instrument) (int, bool) {
	for j, name := range s.instruments {
		if name == inst {
			return j, true
		}
	}
	return -1, false
}

// Column returns a copy of one instrument's returns
func (s *ReturnSeries) Column(inst Instrument) ([]float64, bool) {
	j, ok := s.Index(inst)
	if !ok {
		return nil, false
	}
	col := make([]float64, len(s.rows))
	for i, row := range s.rows {
		col[i] = row[j]
	}
	return col, true
}

// Select returns a new series restricted to the given instruments, in the given order
func (s *ReturnSeries) Select(instruments []Instrument) (*ReturnSeries, error) {
	idx := make([]int, len(instruments))
	for k, inst := range instruments {
		j, ok := s.Index(inst)
		if !ok {
			return nil, errors.NotFound("instrument not in return series: " + inst)
		}
		idx[k] = j
	}

	rows := make([][]float64, len(s.rows))
	for i, row := range s.rows {
		out := make([]float64, len(idx))
		for k, j := range idx {
			out[k] = row[j]
		}
		rows[i] = out
	}
	return NewReturnSeries(s.dates, instruments, rows)
}

// PortfolioReturnSeries holds one weighted portfolio return per trading day
type PortfolioReturnSeries struct {
	dates  []time.Time
	values []float64
}

// Creates a new PortfolioReturnSeries from a copy of values
func NewPortfolioReturnSeries(dates []time.Time, values []float64) PortfolioReturnSeries {
	p := PortfolioReturnSeries{values: append([]float64(nil), values...)}
	if dates != nil {
		p.dates = append([]time.Time(nil), dates...)
	}
	return p
}

// Len returns the number of trading days
func (p PortfolioReturnSeries) Len() int {
	return len(p.values)
}

// At returns the portfolio return on day i
func (p PortfolioReturnSeries) At(i int) float64 {
	return p.values[i]
}

// Values returns a copy of the daily portfolio returns
func (p PortfolioReturnSeries) Values() []float64 {
	return append([]float64(nil), p.values...)
}

// Dates returns the row dates, if known
func (p PortfolioReturnSeries) Dates() []time.Time {
	if p.dates == nil {
		return nil
	}
	return append([]time.Time(nil), p.dates...)
}
