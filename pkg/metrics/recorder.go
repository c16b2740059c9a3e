package metrics

import (
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rzzdr/portfolio-risk-sim/pkg/models"
)

// Recorder handles metrics recording and exposure. Every metric is registered
// on the recorder's own registry, so tests can build as many as they like.
type Recorder struct {
	registry *prometheus.Registry

	// API metrics
	apiRequestCounter   *prometheus.CounterVec
	apiLatencyHistogram *prometheus.HistogramVec

	// Simulation metrics
	simulationCounter *prometheus.CounterVec
	simulationLatency *prometheus.HistogramVec
	varGauge          *prometheus.GaugeVec
	cvarGauge         *prometheus.GaugeVec
	sharpeGauge       *prometheus.GaugeVec
	scheduledRuns     *prometheus.CounterVec

	// Transport metrics
	kafkaMessageCounter *prometheus.CounterVec
	websocketClients    prometheus.Gauge

	// System metrics
	memoryUsageGauge    prometheus.Gauge
	goroutineCountGauge prometheus.Gauge
}

// NewRecorder creates a new metrics recorder on a fresh registry, with the
// Go runtime and process collectors included
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return NewRecorderWithRegistry(registry)
}

// NewRecorderWithRegistry creates a recorder registering on registry
func NewRecorderWithRegistry(registry *prometheus.Registry) *Recorder {
	factory := promauto.With(registry)

	// Create and register all metrics
	return &Recorder{
		registry: registry,

		// API metrics
		apiRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prs_api_requests_total",
				Help: "The total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		apiLatencyHistogram: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prs_api_latency_seconds",
				Help:    "API request latency distribution",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // From 1ms to ~16s
			},
			[]string{"method", "path"},
		),

		// Simulation metrics
		simulationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prs_simulations_total",
				Help: "The total number of simulation runs",
			},
			[]string{"portfolio_id", "strategy", "status"},
		),
		simulationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prs_simulation_latency_seconds",
				Help:    "Simulation run latency in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // From 10ms to ~40s
			},
			[]string{"strategy"},
		),
		varGauge: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "prs_var_value",
				Help: "Terminal portfolio value at the VaR percentile of the latest run",
			},
			[]string{"portfolio_id", "confidence_level"},
		),
		cvarGauge: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "prs_cvar_value",
				Help: "Mean terminal value in the tail of the latest run",
			},
			[]string{"portfolio_id", "confidence_level"},
		),
		sharpeGauge: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "prs_sharpe_ratio",
				Help: "Sharpe ratio of the historical portfolio returns of the latest run",
			},
			[]string{"portfolio_id"},
		),
		scheduledRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prs_scheduled_runs_total",
				Help: "The total number of scheduled batch runs",
			},
			[]string{"status"},
		),

		// Transport metrics
		kafkaMessageCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prs_kafka_messages_total",
				Help: "Kafka messages produced and consumed",
			},
			[]string{"topic", "direction", "status"},
		),
		websocketClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "prs_websocket_clients",
				Help: "Number of connected websocket clients",
			},
		),

		// System metrics
		memoryUsageGauge: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "prs_memory_usage_bytes",
				Help: "Memory usage of the application in bytes",
			},
		),
		goroutineCountGauge: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "prs_goroutine_count",
				Help: "Number of goroutines",
			},
		),
	}
}

// Registry returns the registry the recorder writes to
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// RecordAPIRequest records metrics for an API request
func (r *Recorder) RecordAPIRequest(method, path string, status int, latency time.Duration) {
	r.apiRequestCounter.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	r.apiLatencyHistogram.WithLabelValues(method, path).Observe(latency.Seconds())
}

// RecordSimulation records a finished simulation run
func (r *Recorder) RecordSimulation(portfolioID, strategy string, latency time.Duration, err error) {
	r.simulationCounter.WithLabelValues(portfolioID, strategy, statusLabel(err)).Inc()
	r.simulationLatency.WithLabelValues(strategy).Observe(latency.Seconds())
}

// RecordRiskReport records the metrics of the latest run. Undefined values
// remove the gauge rather than reporting zero.
func (r *Recorder) RecordRiskReport(portfolioID string, report models.RiskReport) {
	confidence := strconv.FormatFloat(report.ConfidenceLevel, 'f', -1, 64)
	r.varGauge.WithLabelValues(portfolioID, confidence).Set(report.VaR)

	if v, ok := report.CVaR.Float64(); ok {
		r.cvarGauge.WithLabelValues(portfolioID, confidence).Set(v)
	} else {
		r.cvarGauge.DeleteLabelValues(portfolioID, confidence)
	}

	if v, ok := report.SharpeRatio.Float64(); ok {
		r.sharpeGauge.WithLabelValues(portfolioID).Set(v)
	} else {
		r.sharpeGauge.DeleteLabelValues(portfolioID)
	}
}

// RecordScheduledRun records a scheduled batch
func (r *Recorder) RecordScheduledRun(err error) {
	r.scheduledRuns.WithLabelValues(statusLabel(err)).Inc()
}

// RecordKafkaMessage records a produced ("out") or consumed ("in") message
func (r *Recorder) RecordKafkaMessage(topic, direction string, err error) {
	r.kafkaMessageCounter.WithLabelValues(topic, direction, statusLabel(err)).Inc()
}

// SetWebSocketClients records the number of connected websocket clients
func (r *Recorder) SetWebSocketClients(n int) {
	r.websocketClients.Set(float64(n))
}

// UpdateSystemMetrics samples goroutine count and heap usage
func (r *Recorder) UpdateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	r.memoryUsageGauge.Set(float64(m.Alloc))
	r.goroutineCountGauge.Set(float64(runtime.NumGoroutine()))
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
