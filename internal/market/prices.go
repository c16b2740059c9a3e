package market

import (
	"math"
	"time"

	"github.com/rzzdr/portfolio-risk-sim/pkg/models"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
)

// PriceTable holds daily closing prices, one column per symbol. Missing
// prices are NaN.
type PriceTable struct {
	dates   []time.Time
	symbols []string
	rows    [][]float64
}

// NewPriceTable creates a new PriceTable. Inputs are copied.
func NewPriceTable(dates []time.Time, symbols []string, rows [][]float64) (*PriceTable, error) {
	if len(symbols) == 0 {
		return nil, errors.EmptyInput("price table has no symbols")
	}
	if len(dates) != len(rows) {
		return nil, errors.DimensionMismatch("price table has %d dates for %d rows", len(dates), len(rows))
	}

	t := &PriceTable{
		dates:   append([]time.Time(nil), dates...),
		symbols: append([]string(nil), symbols...),
		rows:    make([][]float64, len(rows)),
	}
	for i, row := range rows {
		if len(row) != len(symbols) {
			return nil, errors.DimensionMismatch("price row %d has %d values, expected %d", i, len(row), len(symbols))
		}
		t.rows[i] = append([]float64(nil), row...)
	}
	return t, nil
}

// Len returns the number of dates
func (t *PriceTable) Len() int {
	return len(t.rows)
}

// Symbols returns a copy of the column names
func (t *PriceTable) Symbols() []string {
	return append([]string(nil), t.symbols...)
}

// Dates returns a copy of the row dates
func (t *PriceTable) Dates() []time.Time {
	return append([]time.Time(nil), t.dates...)
}

// Has reports whether the table has a column for symbol
func (t *PriceTable) Has(symbol string) bool {
	return t.index(symbol) >= 0
}

// Select returns a table restricted to symbols, in that order
func (t *PriceTable) Select(symbols []string) (*PriceTable, error) {
	idx := make([]int, len(symbols))
	for k, s := range symbols {
		idx[k] = t.index(s)
		if idx[k] < 0 {
			return nil, errors.NotFound("no prices for symbol " + s)
		}
	}

	rows := make([][]float64, len(t.rows))
	for i, row := range t.rows {
		rows[i] = make([]float64, len(idx))
		for k, j := range idx {
			rows[i][k] = row[j]
		}
	}
	return &PriceTable{dates: t.Dates(), symbols: append([]string(nil), symbols...), rows: rows}, nil
}

// Tail returns the last n rows, or the whole table when it is shorter
func (t *PriceTable) Tail(n int) *PriceTable {
	start := 0
	if n > 0 && n < len(t.rows) {
		start = len(t.rows) - n
	}
	out, _ := NewPriceTable(t.dates[start:], t.symbols, t.rows[start:])
	return out
}

func (t *PriceTable) index(symbol string) int {
	for j, s := range t.symbols {
		if s == symbol {
			return j
		}
	}
	return -1
}

// ReturnsFromPrices drops every date with a missing price, takes the simple
// percentage change between consecutive remaining dates and drops the first
// date, which has no predecessor.
func ReturnsFromPrices(prices *PriceTable) (*models.ReturnSeries, error) {
	if prices == nil {
		return nil, errors.EmptyInput("no price table")
	}

	var dates []time.Time
	var complete [][]float64
	for i, row := range prices.rows {
		if hasMissing(row) {
			continue
		}
		dates = append(dates, prices.dates[i])
		complete = append(complete, row)
	}
	if len(complete) < 2 {
		return nil, errors.EmptyInput("need at least 2 dates with complete prices to compute returns")
	}

	rows := make([][]float64, len(complete)-1)
	for i := 1; i < len(complete); i++ {
		prev, cur := complete[i-1], complete[i]
		rows[i-1] = make([]float64, len(cur))
		for j := range cur {
			if prev[j] == 0 {
				return nil, errors.InvalidParameterf("prices", "zero price for %s on %s", prices.symbols[j], dates[i-1].Format(DateLayout))
			}
			rows[i-1][j] = cur[j]/prev[j] - 1
		}
	}

	return models.NewReturnSeries(dates[1:], prices.symbols, rows)
}

func hasMissing(row []float64) bool {
	for _, v := range row {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
