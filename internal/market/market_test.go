package market

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
)

const samplePrices = `date,AAPL,MSFT
2024-01-02,100,200
2024-01-03,110,
2024-01-04,121,220
2024-01-05,108.9,231
`

func TestReturnsFromPricesDropsIncompleteRows(t *testing.T) {
	prices, err := ReadPricesCSV(strings.NewReader(samplePrices))
	require.NoError(t, err)
	require.Equal(t, 4, prices.Len())
	assert.Equal(t, []string{"AAPL", "MSFT"}, prices.Symbols())

	returns, err := ReturnsFromPrices(prices)
	require.NoError(t, err)
	require.Equal(t, 2, returns.Len())

	// 2024-01-03 is dropped, so the first return spans two days
	assert.InDelta(t, 0.21, returns.At(0, 0), 1e-12)
	assert.InDelta(t, 0.10, returns.At(0, 1), 1e-12)
	assert.InDelta(t, -0.10, returns.At(1, 0), 1e-12)
	assert.InDelta(t, 0.05, returns.At(1, 1), 1e-12)
	assert.Equal(t, "2024-01-04", returns.Dates()[0].Format(DateLayout))
}

func TestReturnsFromPricesNeedsTwoCompleteRows(t *testing.T) {
	prices, err := NewPriceTable(
		[]time.Time{time.Now(), time.Now()},
		[]string{"A"},
		[][]float64{{100}, {math.NaN()}},
	)
	require.NoError(t, err)

	_, err = ReturnsFromPrices(prices)
	assert.True(t, errors.IsType(err, errors.ErrorTypeEmptyInput))
}

func TestReadPricesCSVErrors(t *testing.T) {
	_, err := ReadPricesCSV(strings.NewReader(""))
	assert.True(t, errors.IsType(err, errors.ErrorTypeEmptyInput))

	_, err = ReadPricesCSV(strings.NewReader("date,A\n01/02/2024,1\n"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidParameter))

	_, err = ReadPricesCSV(strings.NewReader("date,A\n2024-01-02,abc\n"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidParameter))
}

func TestCSVHistoricalStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.csv")
	require.NoError(t, os.WriteFile(path, []byte(samplePrices), 0o644))

	store, err := NewHistoricalDataStoreFromCSV(path)
	require.NoError(t, err)

	returns, err := store.GetReturnSeries(context.Background(), []string{"MSFT"}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"MSFT"}, returns.Instruments())
	assert.Equal(t, 2, returns.Len())

	_, err = store.GetReturnSeries(context.Background(), []string{"NVDA"}, 10)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestSampleStore(t *testing.T) {
	store := NewInMemoryHistoricalDataStore()
	ctx := context.Background()

	returns, err := store.GetReturnSeries(ctx, []string{"AAPL", "MSFT", "^GSPC"}, 252)
	require.NoError(t, err)
	assert.Equal(t, 252, returns.Len())
	assert.Equal(t, 3, returns.Width())

	again, err := store.GetReturnSeries(ctx, []string{"AAPL"}, 252)
	require.NoError(t, err)
	col, _ := returns.Column("AAPL")
	colAgain, _ := again.Column("AAPL")
	assert.Equal(t, col, colAgain)

	// Unknown symbols are synthesized on demand
	extra, err := store.GetReturnSeries(ctx, []string{"NVDA", "AAPL"}, 100)
	require.NoError(t, err)
	assert.Equal(t, 100, extra.Len())

	for _, d := range returns.Dates() {
		assert.NotEqual(t, time.Saturday, d.Weekday())
		assert.NotEqual(t, time.Sunday, d.Weekday())
	}
}
