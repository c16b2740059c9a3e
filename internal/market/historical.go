package market

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rzzdr/portfolio-risk-sim/pkg/models"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/logger"
)

// SampleSymbols are preloaded by NewInMemoryHistoricalDataStore
var SampleSymbols = []string{"AAPL", "MSFT", "GOOGL", "AMZN", "SPY", "QQQ", "^GSPC"}

// sampleDays is five trading years of synthetic history
const sampleDays = 5 * 252

// InMemoryHistoricalDataStore serves return series from a price table held in
// memory. The sample store synthesizes prices for symbols it does not know.
type InMemoryHistoricalDataStore struct {
	prices     *PriceTable
	synthesize bool
	end        time.Time
	mu         sync.RWMutex
	log        *logger.Logger
}

// NewInMemoryHistoricalDataStore creates a store preloaded with synthetic
// prices for SampleSymbols
func NewInMemoryHistoricalDataStore() *InMemoryHistoricalDataStore {
	store := &InMemoryHistoricalDataStore{
		synthesize: true,
		end:        time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC),
		log:        logger.GetLogger("market.historical"),
	}

	// Add some sample data
	store.prices = SyntheticPrices(SampleSymbols, store.end, sampleDays)

	return store
}

// NewHistoricalDataStoreFromCSV creates a store over a price file. Unknown
// symbols are an error.
func NewHistoricalDataStoreFromCSV(path string) (*InMemoryHistoricalDataStore, error) {
	prices, err := LoadPricesCSV(path)
	if err != nil {
		return nil, err
	}
	return NewHistoricalDataStore(prices), nil
}

// NewHistoricalDataStore creates a store over an existing price table
func NewHistoricalDataStore(prices *PriceTable) *InMemoryHistoricalDataStore {
	return &InMemoryHistoricalDataStore{
		prices: prices,
		log:    logger.GetLogger("market.historical"),
	}
}

// GetReturnSeries returns aligned daily returns for symbols over at most the
// last days dates
func (s *InMemoryHistoricalDataStore) GetReturnSeries(ctx context.Context, symbols []string, days int) (*models.ReturnSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(symbols) == 0 {
		return nil, errors.EmptyInput("no symbols requested")
	}

	prices, err := s.GetPrices(symbols, days+1)
	if err != nil {
		return nil, err
	}
	return ReturnsFromPrices(prices)
}

// GetPrices returns the last days rows of prices for symbols
func (s *InMemoryHistoricalDataStore) GetPrices(symbols []string, days int) (*PriceTable, error) {
	if s.synthesize {
		s.ensureSymbols(symbols)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	selected, err := s.prices.Select(symbols)
	if err != nil {
		return nil, err
	}
	return selected.Tail(days), nil
}

// ensureSymbols adds synthetic prices for every symbol without data
func (s *InMemoryHistoricalDataStore) ensureSymbols(symbols []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var missing []string
	for _, symbol := range symbols {
		if !s.prices.Has(symbol) {
			missing = append(missing, symbol)
		}
	}
	if len(missing) == 0 {
		return
	}

	// For symbols we don't have data for, generate synthetic data
	s.log.Infof("Generating synthetic price data for %v", missing)
	extra := SyntheticPrices(missing, s.end, s.prices.Len())

	rows := make([][]float64, s.prices.Len())
	for i := range rows {
		rows[i] = append(append([]float64(nil), s.prices.rows[i]...), extra.rows[i]...)
	}
	merged, err := NewPriceTable(s.prices.dates, append(s.prices.Symbols(), missing...), rows)
	if err != nil {
		s.log.Errorf("Failed to merge synthetic prices: %v", err)
		return
	}
	s.prices = merged
}

// SyntheticPrices generates a geometric random walk per symbol over the days
// weekdays ending at end. The walk is seeded by the symbol name, so a symbol
// always gets the same history.
func SyntheticPrices(symbols []string, end time.Time, days int) *PriceTable {
	dates := make([]time.Time, days)
	d := end
	for i := days - 1; i >= 0; i-- {
		for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			d = d.AddDate(0, 0, -1)
		}
		dates[i] = d
		d = d.AddDate(0, 0, -1)
	}

	rows := make([][]float64, days)
	for i := range rows {
		rows[i] = make([]float64, len(symbols))
	}

	for j, symbol := range symbols {
		h := fnv.New64a()
		h.Write([]byte(symbol))
		rng := rand.New(rand.NewPCG(h.Sum64(), 0))

		// Different base price, drift and volatility per symbol
		price := 100.0 + float64(len(symbol))*10.0
		drift := 0.0002 + 0.0001*float64(len(symbol)%4)
		vol := 0.01 + 0.002*float64(len(symbol)%5)

		for i := 0; i < days; i++ {
			rows[i][j] = price
			price *= math.Exp(drift - vol*vol/2 + vol*rng.NormFloat64())
		}
	}

	table, _ := NewPriceTable(dates, symbols, rows)
	return table
}
