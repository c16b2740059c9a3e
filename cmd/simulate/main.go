package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rzzdr/portfolio-risk-sim/config"
	"github.com/rzzdr/portfolio-risk-sim/internal/app"
	"github.com/rzzdr/portfolio-risk-sim/internal/report"
	"github.com/rzzdr/portfolio-risk-sim/internal/risk"
	"github.com/rzzdr/portfolio-risk-sim/internal/store"
	"github.com/rzzdr/portfolio-risk-sim/pkg/models"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/logger"
)

type options struct {
	configPath  string
	instruments string
	weights     string
	benchmark   string
	strategy    string
	seed        string
	simulations int
	horizon     int
	confidence  float64
	initial     float64
	optimize    string
	chartDir    string
	jsonOutput  bool
	save        bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", config.GetConfigPath(), "path to the YAML configuration")
	flag.StringVar(&opts.instruments, "instruments", "", "comma separated instruments, overriding the configured portfolio")
	flag.StringVar(&opts.weights, "weights", "", "comma separated weights matching -instruments")
	flag.StringVar(&opts.benchmark, "benchmark", "", "benchmark instrument")
	flag.StringVar(&opts.strategy, "strategy", "", "parametric or historical")
	flag.StringVar(&opts.seed, "seed", "", "random seed")
	flag.IntVar(&opts.simulations, "simulations", 0, "number of simulated paths")
	flag.IntVar(&opts.horizon, "horizon", 0, "time horizon in trading days")
	flag.Float64Var(&opts.confidence, "confidence", 0, "confidence level, e.g. 0.95")
	flag.Float64Var(&opts.initial, "initial", 0, "initial investment")
	flag.StringVar(&opts.optimize, "optimize", "", "true or false, overriding optimizer.enabled")
	flag.StringVar(&opts.chartDir, "charts", "", "directory to write trajectory.png and histogram.png")
	flag.BoolVar(&opts.jsonOutput, "json", false, "print the full result as JSON")
	flag.BoolVar(&opts.save, "save", false, "persist the run record to the configured result store")
	flag.Parse()

	if err := run(context.Background(), opts); err != nil {
		fmt.Fprintf(os.Stderr, "simulate: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.LoadFrom(opts.configPath)
	if err != nil {
		return err
	}
	logger.Init(cfg.App.LogLevel, cfg.App.Environment)
	log := logger.GetLogger("simulate")

	portfolio, err := buildPortfolio(cfg, opts)
	if err != nil {
		return err
	}
	req, err := buildRequest(opts, portfolio)
	if err != nil {
		return err
	}

	history, err := app.HistoricalStore(cfg)
	if err != nil {
		return err
	}
	engineConfig, err := app.EngineConfig(cfg)
	if err != nil {
		return err
	}

	var engineOpts []risk.EngineOption
	if opts.save {
		results, err := app.ResultStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer results.Close()
		engineOpts = append(engineOpts, risk.WithSinks(results))
	}

	engine := risk.NewEngine(engineConfig, store.NewInMemoryPortfolioStore(), history, engineOpts...)
	res, err := engine.Run(ctx, req)
	if err != nil {
		return err
	}

	if opts.chartDir != "" {
		if err := writeCharts(opts.chartDir, res); err != nil {
			return err
		}
		log.Infof("Charts written to %s", opts.chartDir)
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	return report.WriteText(os.Stdout, res)
}

func buildPortfolio(cfg *config.Config, opts options) (*models.Portfolio, error) {
	portfolio := app.DefaultPortfolio(cfg)
	if opts.instruments != "" {
		portfolio.Instruments = splitList(opts.instruments)
		portfolio.Weights = nil
		portfolio.Sectors = nil
		portfolio.ID = "cli"
	}
	if opts.benchmark != "" {
		portfolio.Benchmark = opts.benchmark
	}
	if opts.weights != "" {
		weights, err := parseWeights(opts.weights)
		if err != nil {
			return nil, err
		}
		portfolio.Weights = weights
	}
	return portfolio, nil
}

func buildRequest(opts options, portfolio *models.Portfolio) (risk.RunRequest, error) {
	req := risk.RunRequest{
		Portfolio:         portfolio,
		NumSimulations:    opts.simulations,
		TimeHorizon:       opts.horizon,
		ConfidenceLevel:   opts.confidence,
		InitialInvestment: opts.initial,
	}
	if opts.seed != "" {
		seed, err := strconv.ParseUint(opts.seed, 10, 64)
		if err != nil {
			return req, errors.InvalidParameter("seed", "must be an unsigned integer")
		}
		req.Seed = &seed
	}
	if opts.strategy != "" {
		strategy, err := risk.ParseStrategy(opts.strategy)
		if err != nil {
			return req, err
		}
		req.Strategy = &strategy
	}
	if opts.optimize != "" {
		optimize, err := strconv.ParseBool(opts.optimize)
		if err != nil {
			return req, errors.InvalidParameter("optimize", "must be true or false")
		}
		req.Optimize = &optimize
	}
	return req, nil
}

func writeCharts(dir string, res *risk.RunResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	trajectory, err := report.TrajectoryChart(fmt.Sprintf("%s simulated value", res.Record.PortfolioID), res.Summary)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "trajectory.png"), trajectory, 0o644); err != nil {
		return err
	}
	histogram, err := report.HistogramChart(fmt.Sprintf("%s terminal value", res.Record.PortfolioID), res.Summary.TerminalHistogram)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "histogram.png"), histogram, 0o644)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseWeights(s string) (models.WeightVector, error) {
	parts := splitList(s)
	weights := make(models.WeightVector, len(parts))
	for i, p := range parts {
		w, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, errors.InvalidParameterf("weights", "cannot parse %q", p)
		}
		weights[i] = w
	}
	return weights, nil
}

// exitCode is 2 for bad input and 1 for everything else
func exitCode(err error) int {
	switch errors.TypeOf(err) {
	case errors.ErrorTypeInvalidParameter, errors.ErrorTypeDimensionMismatch, errors.ErrorTypeEmptyInput, errors.ErrorTypeNotFound:
		return 2
	default:
		return 1
	}
}
