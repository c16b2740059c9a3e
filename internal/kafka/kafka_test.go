package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzzdr/portfolio-risk-sim/internal/risk"
	"github.com/rzzdr/portfolio-risk-sim/pkg/models"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/logger"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

// fakeReader hands out queued messages, then blocks until the context ends
type fakeReader struct {
	queue     []kafka.Message
	committed []int64
	mu        sync.Mutex
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type countingRecorder struct {
	counts map[string]int
}

func (c *countingRecorder) RecordKafkaMessage(topic, direction string, err error) {
	key := topic + "/" + direction
	if err != nil {
		key += "/error"
	}
	c.counts[key]++
}

func TestProducerSaveRun(t *testing.T) {
	w := &fakeWriter{}
	rec := &countingRecorder{counts: map[string]int{}}
	p := newProducer(w, "risk.runs", rec, logger.Nop())

	record := models.RunRecord{ID: "run-1", PortfolioID: "core", VaR: 9100, CVaR: models.Defined(8800), SharpeRatio: models.Undefined(), Seed: 42}
	require.NoError(t, p.SaveRun(context.Background(), record))

	require.Len(t, w.messages, 1)
	msg := fromKafkaMessage(w.messages[0])
	assert.Equal(t, "core", string(msg.Key))
	typ, ok := msg.Header(HeaderMessageType)
	assert.True(t, ok)
	assert.Equal(t, "run_record", typ)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "run-1", decoded["id"])
	assert.Nil(t, decoded["sharpe_ratio"])
	assert.Equal(t, 1, rec.counts["risk.runs/out"])

	w.err = errors.New("leader not available")
	assert.Error(t, p.SaveRun(context.Background(), record))
	assert.Equal(t, 1, rec.counts["risk.runs/out/error"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestConsumerCommitsHandledAndDroppedMessages(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{
		{Topic: "portfolios", Offset: 1, Value: []byte("ok")},
		{Topic: "portfolios", Offset: 2, Value: []byte("bad")},
		{Topic: "portfolios", Offset: 3, Value: []byte("ok")},
	}}
	rec := &countingRecorder{counts: map[string]int{}}
	c := newConsumer(r, "portfolios", rec, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	var seen []string
	err := c.Run(ctx, func(_ context.Context, msg *Message) error {
		seen = append(seen, string(msg.Value))
		if len(seen) == 3 {
			cancel()
		}
		if string(msg.Value) == "bad" {
			return errors.New("cannot handle")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"ok", "bad", "ok"}, seen)
	assert.Equal(t, []int64{1, 2, 3}, r.committed)
	assert.Equal(t, 2, rec.counts["portfolios/in"])
	assert.Equal(t, 1, rec.counts["portfolios/in/error"])
}

func TestConsumerRetriesTransientFailures(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{
		{Topic: "portfolios", Offset: 1, Value: []byte("flaky")},
		{Topic: "portfolios", Offset: 2, Value: []byte("malformed")},
		{Topic: "portfolios", Offset: 3, Value: []byte("down")},
	}}
	rec := &countingRecorder{counts: map[string]int{}}
	c := newConsumer(r, "portfolios", rec, logger.Nop())
	c.SetRetry(3, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	attempts := map[string]int{}
	err := c.Run(ctx, func(_ context.Context, msg *Message) error {
		value := string(msg.Value)
		attempts[value]++
		switch value {
		case "flaky":
			if attempts[value] < 2 {
				return errors.Unavailable("store busy", nil)
			}
			return nil
		case "malformed":
			return errors.InvalidParameter("message", "not json")
		default:
			if attempts[value] == 3 {
				defer cancel()
			}
			return errors.Unavailable("store down", nil)
		}
	})

	require.NoError(t, err)
	assert.Equal(t, map[string]int{"flaky": 2, "malformed": 1, "down": 3}, attempts)
	assert.Equal(t, []int64{1, 2}, r.committed)
	assert.Equal(t, 1, rec.counts["portfolios/in"])
	assert.Equal(t, 1, rec.counts["portfolios/in/error"])
}

type memoryStore struct {
	portfolios map[string]*models.Portfolio
}

func (s *memoryStore) GetPortfolio(id string) (*models.Portfolio, error) {
	p, ok := s.portfolios[id]
	if !ok {
		return nil, errors.NotFound("portfolio " + id)
	}
	return p, nil
}

func (s *memoryStore) GetAllPortfolios() ([]*models.Portfolio, error) {
	out := make([]*models.Portfolio, 0, len(s.portfolios))
	for _, p := range s.portfolios {
		out = append(out, p)
	}
	return out, nil
}

func (s *memoryStore) SavePortfolio(p *models.Portfolio) error {
	s.portfolios[p.ID] = p
	return nil
}

func (s *memoryStore) DeletePortfolio(id string) error {
	if _, ok := s.portfolios[id]; !ok {
		return errors.NotFound("portfolio " + id)
	}
	delete(s.portfolios, id)
	return nil
}

type recordingRunner struct {
	requests []risk.RunRequest
}

func (r *recordingRunner) Run(_ context.Context, req risk.RunRequest) (*risk.RunResult, error) {
	r.requests = append(r.requests, req)
	return &risk.RunResult{Record: models.RunRecord{ID: "run", PortfolioID: req.PortfolioID}}, nil
}

func command(t *testing.T, cmd PortfolioCommand) *Message {
	t.Helper()
	data, err := json.Marshal(cmd)
	require.NoError(t, err)
	return &Message{Topic: "portfolios", Value: data}
}

func TestPortfolioHandler(t *testing.T) {
	store := &memoryStore{portfolios: map[string]*models.Portfolio{}}
	runner := &recordingRunner{}
	handle := NewPortfolioHandler(store, runner, true)
	ctx := context.Background()

	p := &models.Portfolio{ID: "core", Instruments: []string{"AAPL", "MSFT"}}
	require.NoError(t, handle(ctx, command(t, PortfolioCommand{Action: ActionUpsert, Portfolio: p})))
	assert.Contains(t, store.portfolios, "core")
	require.Len(t, runner.requests, 1)
	assert.Equal(t, "core", runner.requests[0].PortfolioID)

	seed := uint64(7)
	require.NoError(t, handle(ctx, command(t, PortfolioCommand{Action: ActionRun, PortfolioID: "core", Seed: &seed, NumSimulations: 50})))
	require.Len(t, runner.requests, 2)
	assert.Equal(t, uint64(7), *runner.requests[1].Seed)
	assert.Equal(t, 50, runner.requests[1].NumSimulations)

	require.NoError(t, handle(ctx, command(t, PortfolioCommand{Action: ActionDelete, PortfolioID: "core"})))
	assert.Empty(t, store.portfolios)

	err := handle(ctx, command(t, PortfolioCommand{Action: "rebalance"}))
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidParameter))

	err = handle(ctx, &Message{Value: []byte("{")})
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidParameter))
}

func TestPortfolioHandlerUsesKeyAsID(t *testing.T) {
	runner := &recordingRunner{}
	handle := NewPortfolioHandler(&memoryStore{portfolios: map[string]*models.Portfolio{}}, runner, false)

	msg := command(t, PortfolioCommand{Action: ActionRun})
	msg.Key = []byte("growth")
	require.NoError(t, handle(context.Background(), msg))
	assert.Equal(t, "growth", runner.requests[0].PortfolioID)
}

func TestNewClientRequiresBrokers(t *testing.T) {
	_, err := NewClient(&Config{}, nil)
	assert.Error(t, err)

	c, err := NewClient(nil, nil)
	require.NoError(t, err)
	p := c.NewProducer("risk.runs")
	assert.Equal(t, "risk.runs", p.Topic())
}
