package risk

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/rzzdr/portfolio-risk-sim/pkg/models"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/logger"
)

// EngineConfig contains the defaults applied to every run
type EngineConfig struct {
	ConfidenceLevel   float64
	RiskFreeRate      float64
	NumSimulations    int
	TimeHorizon       int
	InitialInvestment float64
	Strategy          Strategy
	// Seed 0 picks a fresh seed per run; the seed used is kept in the RunRecord
	Seed            uint64
	Workers         int
	BlockSize       int
	MaxCells        int
	HistoricalDays  int
	OptimizeWeights bool
	OptimizerTrials int
}

// PortfolioStore defines an interface for storing and retrieving portfolios
type PortfolioStore interface {
	GetPortfolio(id string) (*models.Portfolio, error)
	GetAllPortfolios() ([]*models.Portfolio, error)
	SavePortfolio(portfolio *models.Portfolio) error
	DeletePortfolio(id string) error
}

// HistoricalDataStore provides aligned daily returns for a set of symbols
type HistoricalDataStore interface {
	GetReturnSeries(ctx context.Context, symbols []string, days int) (*models.ReturnSeries, error)
}

// ResultSink receives the record of every completed run
type ResultSink interface {
	SaveRun(ctx context.Context, record models.RunRecord) error
}

// MetricsRecorder observes run outcomes
type MetricsRecorder interface {
	RecordSimulation(portfolioID, strategy string, duration time.Duration, err error)
	RecordRiskReport(portfolioID string, report models.RiskReport)
}

// RunRequest describes one run. Zero-valued fields fall back to the portfolio,
// then to the engine configuration.
type RunRequest struct {
	PortfolioID       string
	Portfolio         *models.Portfolio
	Returns           *models.ReturnSeries
	Seed              *uint64
	Strategy          *Strategy
	Optimize          *bool
	NumSimulations    int
	TimeHorizon       int
	ConfidenceLevel   float64
	InitialInvestment float64
}

// RunResult is everything one run produced
type RunResult struct {
	Record            models.RunRecord             `json:"record"`
	Report            models.RiskReport            `json:"report"`
	Weights           models.WeightVector          `json:"weights"`
	Instruments       []string                     `json:"instruments"`
	Optimization      *OptimizationResult          `json:"optimization,omitempty"`
	AnalyticalVaR     float64                      `json:"analytical_var"`
	Summary           models.PathSummary           `json:"summary"`
	Correlation       *Correlation                 `json:"correlation,omitempty"`
	SectorCorrelation *Correlation                 `json:"sector_correlation,omitempty"`
	PortfolioReturns  models.PortfolioReturnSeries `json:"-"`
	Values            *models.SimulatedValueMatrix `json:"-"`
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithSinks adds result sinks, called in order after every successful run
func WithSinks(sinks ...ResultSink) EngineOption {
	return func(e *Engine) {
		e.sinks = append(e.sinks, sinks...)
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(recorder MetricsRecorder) EngineOption {
	return func(e *Engine) {
		e.metrics = recorder
	}
}

// WithLogger replaces the engine logger
func WithLogger(log *logger.Logger) EngineOption {
	return func(e *Engine) {
		e.log = log
	}
}

// Engine runs the full pipeline for a portfolio: fetch returns, pick weights,
// aggregate, simulate, measure, then hand the record to the sinks.
type Engine struct {
	config     EngineConfig
	portfolios PortfolioStore
	history    HistoricalDataStore
	sinks      []ResultSink
	metrics    MetricsRecorder
	log        *logger.Logger
}

// NewEngine creates a new engine
func NewEngine(config EngineConfig, portfolios PortfolioStore, history HistoricalDataStore, opts ...EngineOption) *Engine {
	// Initialize with default values if not provided
	if config.ConfidenceLevel <= 0 || config.ConfidenceLevel >= 1 {
		config.ConfidenceLevel = 0.95
	}

	if config.NumSimulations <= 0 {
		config.NumSimulations = 1000
	}

	if config.TimeHorizon <= 0 {
		config.TimeHorizon = TradingDaysPerYear
	}

	if config.InitialInvestment <= 0 {
		config.InitialInvestment = 10000
	}

	if config.HistoricalDays <= 0 {
		config.HistoricalDays = 5 * TradingDaysPerYear
	}

	if config.OptimizerTrials <= 0 {
		config.OptimizerTrials = 10000
	}

	if config.BlockSize <= 0 {
		config.BlockSize = DefaultBlockSize
	}

	if config.MaxCells <= 0 {
		config.MaxCells = DefaultMaxCells
	}

	e := &Engine{
		config:     config,
		portfolios: portfolios,
		history:    history,
		log:        logger.GetLogger("risk.engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the engine defaults
func (e *Engine) Config() EngineConfig {
	return e.config
}

// RunPortfolio runs the pipeline for a stored portfolio with default settings
func (e *Engine) RunPortfolio(ctx context.Context, portfolioID string) (*RunResult, error) {
	return e.Run(ctx, RunRequest{PortfolioID: portfolioID})
}

// RunAll runs every stored portfolio. Individual failures are logged and
// skipped; the error is only set when the portfolios cannot be listed.
func (e *Engine) RunAll(ctx context.Context) ([]*RunResult, error) {
	if e.portfolios == nil {
		return nil, errors.Unavailable("no portfolio store configured", nil)
	}
	portfolios, err := e.portfolios.GetAllPortfolios()
	if err != nil {
		return nil, errors.Wrap(err, "listing portfolios")
	}

	results := make([]*RunResult, 0, len(portfolios))
	for _, p := range portfolios {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := e.Run(ctx, RunRequest{Portfolio: p})
		if err != nil {
			e.log.Errorf("Run failed for portfolio %s: %v", p.ID, err)
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

// Run executes one simulation run
func (e *Engine) Run(ctx context.Context, req RunRequest) (res *RunResult, err error) {
	startTime := time.Now()

	portfolio, err := e.resolvePortfolio(req)
	if err != nil {
		return nil, err
	}

	params, confidence, strategy, seed := e.resolveParams(req, portfolio)
	log := e.log.With("portfolio", portfolio.ID, "strategy", strategy.String(), "seed", seed)

	defer func() {
		if e.metrics != nil {
			e.metrics.RecordSimulation(portfolio.ID, strategy.String(), time.Since(startTime), err)
		}
	}()

	if err := params.Validate(); err != nil {
		return nil, err
	}
	if cells := params.Cells(); cells > e.config.MaxCells {
		return nil, errors.InvalidParameterf("num_simulations", "%d paths over %d days is %d values, limit is %d",
			params.NumSimulations, params.TimeHorizon, cells, e.config.MaxCells)
	}
	if err := validateConfidence(confidence); err != nil {
		return nil, err
	}

	log.Infof("Starting simulation: %d paths over %d days", params.NumSimulations, params.TimeHorizon)

	returns := req.Returns
	if returns == nil {
		if e.history == nil {
			return nil, errors.Unavailable("no historical data store configured", nil)
		}
		returns, err = e.history.GetReturnSeries(ctx, portfolio.Symbols(), e.config.HistoricalDays)
		if err != nil {
			log.Errorf("Failed to load returns: %v", err)
			return nil, errors.Wrap(err, "loading historical returns")
		}
	}

	// The benchmark is only used for the comparison series
	weighted, err := returns.Select(portfolio.Instruments)
	if err != nil {
		return nil, err
	}

	src := NewSource(seed)
	res = &RunResult{Instruments: weighted.Instruments()}

	optimize := e.config.OptimizeWeights
	if req.Optimize != nil {
		optimize = *req.Optimize
	}

	switch {
	case optimize && weighted.Width() >= 2:
		opt, err := OptimizeSharpe(weighted, e.config.OptimizerTrials, src)
		if err != nil {
			return nil, err
		}
		res.Optimization = opt
		res.Weights = opt.Weights
		log.Infof("Optimized weights %v (return %.4f, volatility %.4f)", opt.Weights, opt.AnnualReturn, opt.AnnualVolatility)
	case len(portfolio.Weights) > 0:
		res.Weights = append(models.WeightVector(nil), portfolio.Weights...)
	default:
		res.Weights = models.EqualWeights(weighted.Width())
		log.Warnf("No weights configured, using equal weights")
	}

	portfolioReturns, err := Aggregate(weighted, res.Weights)
	if err != nil {
		return nil, err
	}
	res.PortfolioReturns = portfolioReturns

	sim, err := NewSimulator(strategy, src, WithWorkers(e.config.Workers), WithBlockSize(e.config.BlockSize), WithMaxCells(e.config.MaxCells))
	if err != nil {
		return nil, err
	}
	values, err := sim.Simulate(ctx, portfolioReturns, params)
	if err != nil {
		return nil, err
	}
	res.Values = values

	varValue, err := ValueAtRisk(values, confidence)
	if err != nil {
		return nil, err
	}
	cvar, err := ConditionalValueAtRisk(values, confidence)
	if err != nil {
		return nil, err
	}
	res.Report = models.RiskReport{
		ConfidenceLevel: confidence,
		VaR:             varValue,
		CVaR:            cvar,
		SharpeRatio:     SharpeRatio(portfolioReturns.Values(), e.config.RiskFreeRate),
	}

	if res.AnalyticalVaR, err = AnalyticalVaR(portfolioReturns, params.InitialInvestment, params.TimeHorizon, confidence); err != nil {
		return nil, err
	}

	if res.Summary, err = Summarize(values, params.InitialInvestment); err != nil {
		return nil, err
	}
	if portfolio.Benchmark != "" {
		if col, ok := returns.Column(portfolio.Benchmark); ok {
			res.Summary.Benchmark = BenchmarkPath(col, params.InitialInvestment, params.TimeHorizon)
		} else {
			log.Warnf("Benchmark %s missing from return series", portfolio.Benchmark)
		}
	}

	if weighted.Len() >= 2 {
		res.Correlation, _ = CorrelationMatrix(weighted)
		if len(portfolio.Sectors) > 0 {
			res.SectorCorrelation, _ = SectorCorrelation(weighted, portfolio.Sectors)
		}
	}

	res.Record = models.NewRunRecord(uuid.NewString(), portfolio.ID, res.Report, params.InitialInvestment,
		stat.Mean(portfolioReturns.Values(), nil), params.NumSimulations, params.TimeHorizon, strategy.String(), seed)

	if e.metrics != nil {
		e.metrics.RecordRiskReport(portfolio.ID, res.Report)
	}

	e.publish(ctx, log, res.Record)

	log.Infof("Completed simulation in %v: VaR %.2f, CVaR %s, Sharpe %s",
		time.Since(startTime), res.Report.VaR, res.Report.CVaR, res.Report.SharpeRatio)
	return res, nil
}

// publish hands the record to every sink. A failing sink does not fail the run.
func (e *Engine) publish(ctx context.Context, log *logger.Logger, record models.RunRecord) {
	for _, sink := range e.sinks {
		if err := sink.SaveRun(ctx, record); err != nil {
			log.Errorf("Failed to publish run %s: %v", record.ID, err)
		}
	}
}

func (e *Engine) resolvePortfolio(req RunRequest) (*models.Portfolio, error) {
	portfolio := req.Portfolio
	if portfolio == nil {
		if req.PortfolioID == "" {
			return nil, errors.InvalidParameter("portfolio", "a portfolio or portfolio id is required")
		}
		if e.portfolios == nil {
			return nil, errors.Unavailable("no portfolio store configured", nil)
		}
		p, err := e.portfolios.GetPortfolio(req.PortfolioID)
		if err != nil {
			e.log.Errorf("Failed to get portfolio %s: %v", req.PortfolioID, err)
			return nil, err
		}
		portfolio = p
	}

	if err := portfolio.Validate(); err != nil {
		return nil, err
	}
	return portfolio, nil
}

func (e *Engine) resolveParams(req RunRequest, p *models.Portfolio) (SimulationParams, float64, Strategy, uint64) {
	params := SimulationParams{
		InitialInvestment: e.config.InitialInvestment,
		NumSimulations:    e.config.NumSimulations,
		TimeHorizon:       e.config.TimeHorizon,
	}
	if p.InitialInvestment > 0 {
		params.InitialInvestment = p.InitialInvestment
	}
	if req.InitialInvestment != 0 {
		params.InitialInvestment = req.InitialInvestment
	}
	if req.NumSimulations != 0 {
		params.NumSimulations = req.NumSimulations
	}
	if req.TimeHorizon != 0 {
		params.TimeHorizon = req.TimeHorizon
	}

	confidence := e.config.ConfidenceLevel
	if req.ConfidenceLevel != 0 {
		confidence = req.ConfidenceLevel
	}

	strategy := e.config.Strategy
	if req.Strategy != nil {
		strategy = *req.Strategy
	}

	seed := e.config.Seed
	if req.Seed != nil {
		seed = *req.Seed
	} else if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	return params, confidence, strategy, seed
}
