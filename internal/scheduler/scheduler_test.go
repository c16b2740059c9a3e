package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzzdr/portfolio-risk-sim/internal/risk"
	"github.com/rzzdr/portfolio-risk-sim/pkg/models"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
)

type stubRunner struct {
	calls atomic.Int32
	err   error
}

func (r *stubRunner) RunAll(context.Context) ([]*risk.RunResult, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return []*risk.RunResult{{Record: models.RunRecord{PortfolioID: "core"}}}, nil
}

type batchCounter struct {
	ok, failed int
}

func (b *batchCounter) RecordScheduledRun(err error) {
	if err != nil {
		b.failed++
		return
	}
	b.ok++
}

func TestSimulationJob(t *testing.T) {
	runner := &stubRunner{}
	counter := &batchCounter{}
	job := NewSimulationJob(runner, counter)

	require.NoError(t, job.Run(context.Background()))
	runner.err = errors.Unavailable("portfolio store", nil)
	assert.Error(t, job.Run(context.Background()))

	assert.Equal(t, 1, counter.ok)
	assert.Equal(t, 1, counter.failed)
	assert.Equal(t, "portfolio_simulation", job.Name())
}

func TestSchedulerRunsJobs(t *testing.T) {
	runner := &stubRunner{}
	s := New()
	require.NoError(t, s.AddJob("@every 1s", NewSimulationJob(runner, nil)))
	require.NoError(t, s.AddJob(DefaultSchedule, NewSimulationJob(runner, nil)))
	assert.Equal(t, 2, s.Entries())

	s.Start()
	assert.Eventually(t, func() bool { return runner.calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
	s.Stop()
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	s := New()
	assert.Error(t, s.AddJob("0 9 * *", NewSimulationJob(&stubRunner{}, nil)))
}

func TestRunNow(t *testing.T) {
	runner := &stubRunner{}
	s := New()
	require.NoError(t, s.RunNow(NewSimulationJob(runner, nil)))
	assert.Equal(t, int32(1), runner.calls.Load())
}
