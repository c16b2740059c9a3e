// Package app builds the services described by the configuration. It is
// shared by the long-running service and the one-shot CLI.
package app

import (
	"context"
	"strings"

	"github.com/rzzdr/portfolio-risk-sim/config"
	"github.com/rzzdr/portfolio-risk-sim/internal/market"
	"github.com/rzzdr/portfolio-risk-sim/internal/risk"
	"github.com/rzzdr/portfolio-risk-sim/internal/store"
	"github.com/rzzdr/portfolio-risk-sim/pkg/models"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/circuit"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
)

// EngineConfig maps the risk and optimizer sections onto the engine defaults
func EngineConfig(cfg *config.Config) (risk.EngineConfig, error) {
	strategy, err := risk.ParseStrategy(cfg.Risk.Strategy)
	if err != nil {
		return risk.EngineConfig{}, err
	}

	return risk.EngineConfig{
		ConfidenceLevel:   cfg.Risk.ConfidenceLevel,
		RiskFreeRate:      cfg.Risk.RiskFreeRate,
		NumSimulations:    cfg.Risk.NumSimulations,
		TimeHorizon:       cfg.Risk.TimeHorizon,
		InitialInvestment: cfg.Risk.InitialInvestment,
		Strategy:          strategy,
		Seed:              cfg.Risk.Seed,
		Workers:           cfg.Risk.Workers,
		BlockSize:         cfg.Risk.BlockSize,
		MaxCells:          cfg.Risk.MaxCells,
		HistoricalDays:    cfg.Risk.HistoricalDays,
		OptimizeWeights:   cfg.Optimizer.Enabled,
		OptimizerTrials:   cfg.Optimizer.Trials,
	}, nil
}

// HistoricalStore opens the configured price source
func HistoricalStore(cfg *config.Config) (*market.InMemoryHistoricalDataStore, error) {
	switch strings.ToLower(cfg.Data.Source) {
	case "", "synthetic":
		return market.NewInMemoryHistoricalDataStore(), nil
	case "csv":
		return market.NewHistoricalDataStoreFromCSV(cfg.Data.CSVPath)
	default:
		return nil, errors.InvalidParameterf("data.source", "unknown data source %q", cfg.Data.Source)
	}
}

// ResultStore opens the configured result store
func ResultStore(ctx context.Context, cfg *config.Config) (store.ResultStore, error) {
	return store.Open(ctx, store.Config{
		Driver:      cfg.Database.Driver,
		CSVPath:     cfg.Database.CSVPath,
		SQLitePath:  cfg.Database.SQLitePath,
		PostgresDSN: cfg.Database.PostgresDSN,
	})
}

// DefaultPortfolio builds the portfolio described by the portfolio section
func DefaultPortfolio(cfg *config.Config) *models.Portfolio {
	p := &models.Portfolio{
		ID:                cfg.Portfolio.ID,
		Name:              cfg.Portfolio.Name,
		Instruments:       append([]string(nil), cfg.Portfolio.Instruments...),
		Benchmark:         cfg.Portfolio.Benchmark,
		Sectors:           cfg.Portfolio.SectorMap(),
		InitialInvestment: cfg.Risk.InitialInvestment,
	}
	if len(cfg.Portfolio.Weights) > 0 {
		p.Weights = append(models.WeightVector(nil), cfg.Portfolio.Weights...)
	}
	return p
}

// BreakerConfig maps the circuit section onto breaker settings
func BreakerConfig(cfg *config.Config) circuit.Config {
	return circuit.Config{
		MaxFailures: cfg.Circuit.MaxFailures,
		Timeout:     cfg.Circuit.Timeout,
	}
}
