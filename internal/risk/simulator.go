package risk

import (
	"context"
	"math"
	"math/rand/v2"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/rzzdr/portfolio-risk-sim/pkg/models"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
)

// DefaultBlockSize is the number of simulation columns drawn from one stream
const DefaultBlockSize = 256

// DefaultMaxCells bounds horizon x simulations for a single run
const DefaultMaxCells = 50_000_000

// Strategy selects how simulated daily returns are generated
type Strategy int

const (
	// StrategyParametric draws i.i.d. normal returns with the sample mean and
	// standard deviation of the historical portfolio returns
	StrategyParametric Strategy = iota
	// StrategyHistorical resamples historical portfolio returns uniformly with
	// replacement
	StrategyHistorical
)

func (s Strategy) String() string {
	switch s {
	case StrategyParametric:
		return "parametric"
	case StrategyHistorical:
		return "historical"
	default:
		return "unknown"
	}
}

// ParseStrategy maps a configuration name onto a Strategy
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "parametric", "normal":
		return StrategyParametric, nil
	case "historical", "bootstrap":
		return StrategyHistorical, nil
	default:
		return 0, errors.InvalidParameterf("strategy", "unknown simulation strategy %q", name)
	}
}

// SimulationParams are the per-run inputs of a simulation
type SimulationParams struct {
	InitialInvestment float64
	NumSimulations    int
	TimeHorizon       int
}

// Validate checks that all parameters are positive and finite
func (p SimulationParams) Validate() error {
	if !(p.InitialInvestment > 0) || math.IsInf(p.InitialInvestment, 1) {
		return errors.InvalidParameterf("initial_investment", "must be positive and finite, got %v", p.InitialInvestment)
	}
	if p.NumSimulations <= 0 {
		return errors.InvalidParameterf("num_simulations", "must be positive, got %d", p.NumSimulations)
	}
	if p.TimeHorizon <= 0 {
		return errors.InvalidParameterf("time_horizon", "must be positive, got %d", p.TimeHorizon)
	}
	if p.NumSimulations > math.MaxInt/p.TimeHorizon {
		return errors.InvalidParameterf("num_simulations", "%d paths over %d days overflows the value matrix",
			p.NumSimulations, p.TimeHorizon)
	}
	return nil
}

// Cells is the size of the value matrix the parameters describe
func (p SimulationParams) Cells() int {
	return p.NumSimulations * p.TimeHorizon
}

// Simulator produces value trajectories for a portfolio return series
type Simulator interface {
	Strategy() Strategy
	Simulate(ctx context.Context, returns models.PortfolioReturnSeries, params SimulationParams) (*models.SimulatedValueMatrix, error)
}

// SimulatorOption configures a Simulator
type SimulatorOption func(*pathSimulator)

// WithWorkers bounds the number of blocks simulated concurrently.
// Output does not depend on this value.
func WithWorkers(n int) SimulatorOption {
	return func(s *pathSimulator) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithBlockSize sets how many columns share one random stream. Changing it
// changes which draws land in which column.
func WithBlockSize(n int) SimulatorOption {
	return func(s *pathSimulator) {
		if n > 0 {
			s.blockSize = n
		}
	}
}

// WithMaxCells caps horizon x simulations. Non-positive values keep the default.
func WithMaxCells(n int) SimulatorOption {
	return func(s *pathSimulator) {
		if n > 0 {
			s.maxCells = n
		}
	}
}

// returnSampler yields the next simulated daily return from its stream
type returnSampler func() float64

type samplerFactory func(src rand.Source) returnSampler

type pathSimulator struct {
	strategy  Strategy
	source    *Source
	workers   int
	blockSize int
	maxCells  int
}

// Creates a new Simulator for the strategy, drawing from src
func NewSimulator(strategy Strategy, src *Source, opts ...SimulatorOption) (Simulator, error) {
	if strategy != StrategyParametric && strategy != StrategyHistorical {
		return nil, errors.InvalidParameterf("strategy", "unknown simulation strategy %d", int(strategy))
	}
	if src == nil {
		return nil, errors.InvalidParameter("source", "random source is required")
	}

	s := &pathSimulator{
		strategy:  strategy,
		source:    src,
		workers:   runtime.GOMAXPROCS(0),
		blockSize: DefaultBlockSize,
		maxCells:  DefaultMaxCells,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *pathSimulator) Strategy() Strategy {
	return s.strategy
}

// Simulate fills a horizon x simulations matrix of portfolio values. Column s
// is one path: value[t][s] = initial * prod_{k<=t}(1 + r_k). There is no floor
// on wealth; a return at or below -1 keeps compounding from a non-positive value.
func (s *pathSimulator) Simulate(ctx context.Context, returns models.PortfolioReturnSeries, params SimulationParams) (*models.SimulatedValueMatrix, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if cells := params.Cells(); cells > s.maxCells {
		return nil, errors.InvalidParameterf("num_simulations", "%d paths over %d days is %d values, limit is %d",
			params.NumSimulations, params.TimeHorizon, cells, s.maxCells)
	}
	if returns.Len() == 0 {
		return nil, errors.EmptyInput("portfolio return series is empty")
	}

	factory := s.samplerFactory(returns.Values())

	horizon, sims := params.TimeHorizon, params.NumSimulations
	values := make([]float64, horizon*sims)
	blocks := (sims + s.blockSize - 1) / s.blockSize

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for b := 0; b < blocks; b++ {
		block := b
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			lo := block * s.blockSize
			hi := min(lo+s.blockSize, sims)
			s.simulateBlock(factory(s.source.PCG(uint64(block))), values, params, lo, hi)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return models.NewSimulatedValueMatrix(horizon, sims, values)
}

// simulateBlock writes columns [lo, hi) only, drawing in (day, column) order
func (s *pathSimulator) simulateBlock(draw returnSampler, values []float64, params SimulationParams, lo, hi int) {
	sims := params.NumSimulations
	growth := bufferPool.GetN(hi - lo)
	defer bufferPool.Put(growth)
	for i := range growth {
		growth[i] = 1
	}

	for t := 0; t < params.TimeHorizon; t++ {
		row := values[t*sims : (t+1)*sims]
		for c := lo; c < hi; c++ {
			growth[c-lo] *= 1 + draw()
			row[c] = params.InitialInvestment * growth[c-lo]
		}
	}
}

func (s *pathSimulator) samplerFactory(history []float64) samplerFactory {
	switch s.strategy {
	case StrategyHistorical:
		return func(src rand.Source) returnSampler {
			rng := rand.New(src)
			n := len(history)
			return func() float64 {
				return history[rng.IntN(n)]
			}
		}
	default:
		mean, std := meanAndStdDev(history)
		return func(src rand.Source) returnSampler {
			dist := distuv.Normal{Mu: mean, Sigma: std, Src: src}
			return dist.Rand
		}
	}
}
