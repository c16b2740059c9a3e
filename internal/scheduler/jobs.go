package scheduler

import (
	"context"

	"github.com/rzzdr/portfolio-risk-sim/internal/risk"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/logger"
)

// BatchRunner runs every stored portfolio
type BatchRunner interface {
	RunAll(ctx context.Context) ([]*risk.RunResult, error)
}

// RunRecorder counts scheduled batches
type RunRecorder interface {
	RecordScheduledRun(err error)
}

// SimulationJob re-simulates all portfolios
type SimulationJob struct {
	runner  BatchRunner
	metrics RunRecorder
	log     *logger.Logger
}

// NewSimulationJob creates the batch job. metrics may be nil.
func NewSimulationJob(runner BatchRunner, metrics RunRecorder) *SimulationJob {
	return &SimulationJob{
		runner:  runner,
		metrics: metrics,
		log:     logger.GetLogger("scheduler.simulation"),
	}
}

func (j *SimulationJob) Name() string {
	return "portfolio_simulation"
}

func (j *SimulationJob) Run(ctx context.Context) error {
	results, err := j.runner.RunAll(ctx)
	if j.metrics != nil {
		j.metrics.RecordScheduledRun(err)
	}
	if err != nil {
		return err
	}

	for _, res := range results {
		j.log.Infof("Portfolio %s: VaR %.2f, CVaR %s, Sharpe %s",
			res.Record.PortfolioID, res.Report.VaR, res.Report.CVaR, res.Report.SharpeRatio)
	}
	return nil
}
