package market

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
)

// DateLayout is the date format of price files
const DateLayout = "2006-01-02"

// ReadPricesCSV parses a wide price file: a header of "date" followed by one
// column per symbol, then one row per date. Empty cells are missing prices.
func ReadPricesCSV(r io.Reader) (*PriceTable, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.EmptyInput("price file is empty")
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading price header")
	}
	if len(header) < 2 {
		return nil, errors.EmptyInput("price file has no symbol columns")
	}
	symbols := header[1:]

	var dates []time.Time
	var rows [][]float64
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading price row")
		}

		date, err := time.Parse(DateLayout, strings.TrimSpace(record[0]))
		if err != nil {
			return nil, errors.InvalidParameterf("date", "bad date %q on line %d", record[0], len(rows)+2)
		}

		row := make([]float64, len(symbols))
		for j, cell := range record[1:] {
			cell = strings.TrimSpace(cell)
			if cell == "" || strings.EqualFold(cell, "nan") {
				row[j] = math.NaN()
				continue
			}
			if row[j], err = strconv.ParseFloat(cell, 64); err != nil {
				return nil, errors.InvalidParameterf("price", "bad price %q for %s on %s", cell, symbols[j], record[0])
			}
		}
		dates = append(dates, date)
		rows = append(rows, row)
	}

	return NewPriceTable(dates, symbols, rows)
}

// LoadPricesCSV reads a price file from disk
func LoadPricesCSV(path string) (*PriceTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Unavailable("opening price file "+path, err)
	}
	defer f.Close()

	return ReadPricesCSV(f)
}
