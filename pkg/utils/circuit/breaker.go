package circuit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/logger"
)

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateHalfOpen:
		return "HALF_OPEN"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

var (
	// ErrOpen is returned without calling the guarded function while the breaker is open
	ErrOpen = errors.Unavailable("circuit breaker is open", nil)
	// ErrTooManyRequests is returned when the half-open probe budget is spent
	ErrTooManyRequests = errors.Unavailable("too many requests while half-open", nil)
)

type Config struct {
	MaxFailures   int                               // Consecutive failures before opening
	Timeout       time.Duration                     // Time spent open before probing
	MaxRequests   int                               // Probes allowed while half-open
	IsSuccessful  func(error) bool                  // Whether a result counts as success
	OnStateChange func(name string, from, to State) // Called with the lock held
}

func DefaultConfig() Config {
	return Config{
		MaxFailures: 5,
		Timeout:     60 * time.Second,
		MaxRequests: 1,
	}
}

// Breaker stops calling a failing dependency for a while, then lets a few
// probe calls through to decide whether to close again
type Breaker struct {
	name     string
	config   Config
	state    State
	failures int
	requests int
	total    int
	rejected int
	openedAt time.Time
	now      func() time.Time
	mu       sync.Mutex
	log      *logger.Logger
}

func NewBreaker(name string, config Config) *Breaker {
	defaults := DefaultConfig()
	if config.MaxFailures <= 0 {
		config.MaxFailures = defaults.MaxFailures
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxRequests <= 0 {
		config.MaxRequests = defaults.MaxRequests
	}
	if config.IsSuccessful == nil {
		config.IsSuccessful = func(err error) bool { return err == nil }
	}

	return &Breaker{
		name:   name,
		config: config,
		state:  StateClosed,
		now:    time.Now,
		log:    logger.GetLogger(fmt.Sprintf("circuit.%s", name)),
	}
}

// Do calls fn unless the breaker is open. A panic in fn counts as a failure
// and is re-raised.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if err := b.beforeRequest(); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			b.afterRequest(false)
			panic(r)
		}
	}()

	err = fn(ctx)
	b.afterRequest(b.config.IsSuccessful(err))
	return err
}

func (b *Breaker) beforeRequest() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.config.Timeout {
			b.rejected++
			return ErrOpen
		}
		b.transition(StateHalfOpen)
		fallthrough
	case StateHalfOpen:
		if b.requests >= b.config.MaxRequests {
			b.rejected++
			return ErrTooManyRequests
		}
		b.requests++
	}
	b.total++
	return nil
}

func (b *Breaker) afterRequest(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.failures = 0
		if b.state == StateHalfOpen {
			b.transition(StateClosed)
		}
		return
	}

	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.config.MaxFailures {
		b.openedAt = b.now()
		b.transition(StateOpen)
	}
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.requests = 0
	if to == StateClosed {
		b.failures = 0
	}

	if to == StateOpen {
		b.log.Warnf("Circuit breaker '%s' transitioned from %s to %s", b.name, from, to)
	} else {
		b.log.Infof("Circuit breaker '%s' transitioned from %s to %s", b.name, from, to)
	}
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(b.name, from, to)
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Name() string {
	return b.name
}

// Reset closes the breaker and clears the failure count
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
	b.failures = 0
}

type Stats struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Failures int    `json:"consecutive_failures"`
	Calls    int    `json:"calls"`
	Rejected int    `json:"rejected"`
}

func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{Name: b.name, State: b.state.String(), Failures: b.failures, Calls: b.total, Rejected: b.rejected}
}

// Manager hands out named breakers and reports on all of them
type Manager struct {
	breakers map[string]*Breaker
	mu       sync.Mutex
	log      *logger.Logger
}

func NewManager() *Manager {
	return &Manager{
		breakers: make(map[string]*Breaker),
		log:      logger.GetLogger("circuit.manager"),
	}
}

// Get returns the breaker called name, creating it with config on first use
func (m *Manager) Get(name string, config Config) *Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.breakers[name]; ok {
		return b
	}
	b := NewBreaker(name, config)
	m.breakers[name] = b
	m.log.Infof("Created circuit breaker '%s'", name)
	return b
}

func (m *Manager) Stats() []Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := make([]Stats, 0, len(m.breakers))
	for _, b := range m.breakers {
		stats = append(stats, b.Stats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}
