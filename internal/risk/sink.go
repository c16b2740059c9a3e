package risk

import (
	"context"

	"github.com/rzzdr/portfolio-risk-sim/pkg/models"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/circuit"
)

// GuardedSink wraps a sink with a circuit breaker so a dead backend stops
// slowing every run down
type GuardedSink struct {
	sink    ResultSink
	breaker *circuit.Breaker
}

func NewGuardedSink(sink ResultSink, breaker *circuit.Breaker) *GuardedSink {
	return &GuardedSink{sink: sink, breaker: breaker}
}

func (g *GuardedSink) SaveRun(ctx context.Context, record models.RunRecord) error {
	return g.breaker.Do(ctx, func(ctx context.Context) error {
		return g.sink.SaveRun(ctx, record)
	})
}

// ResultSinkFunc adapts a function to ResultSink
type ResultSinkFunc func(ctx context.Context, record models.RunRecord) error

func (f ResultSinkFunc) SaveRun(ctx context.Context, record models.RunRecord) error {
	return f(ctx, record)
}
