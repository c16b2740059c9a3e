package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/rzzdr/portfolio-risk-sim/config"
	"github.com/rzzdr/portfolio-risk-sim/internal/app"
	"github.com/rzzdr/portfolio-risk-sim/internal/kafka"
	"github.com/rzzdr/portfolio-risk-sim/internal/risk"
	"github.com/rzzdr/portfolio-risk-sim/internal/scheduler"
	"github.com/rzzdr/portfolio-risk-sim/internal/store"
	"github.com/rzzdr/portfolio-risk-sim/internal/websocket"
	"github.com/rzzdr/portfolio-risk-sim/pkg/api"
	"github.com/rzzdr/portfolio-risk-sim/pkg/metrics"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/backpressure"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/circuit"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/logger"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", config.GetConfigPath(), "path to the YAML configuration")
	runNow := flag.Bool("run-now", false, "simulate every portfolio once at startup")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadFrom(*configPath)
	if err != nil {
		logger.GetLogger("risk-engine.main").Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Init(cfg.App.LogLevel, cfg.App.Environment)
	log := logger.GetLogger("risk-engine.main")
	defer log.Sync()
	log.Info("Starting Portfolio Risk Engine")

	// Create a context that will be canceled on program termination
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *runNow); err != nil {
		log.Fatalf("Risk engine failed: %v", err)
	}
	log.Info("Shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, runNow bool) error {
	log := logger.GetLogger("risk-engine.main")

	// Initialize metrics recorder
	recorder := metrics.NewRecorder()
	breakers := circuit.NewManager()
	breakerConfig := app.BreakerConfig(cfg)

	// Create portfolio store with the configured portfolio
	portfolioStore := store.NewInMemoryPortfolioStore()
	if err := portfolioStore.SavePortfolio(app.DefaultPortfolio(cfg)); err != nil {
		return err
	}

	// Create historical data store
	historicalDataStore, err := app.HistoricalStore(cfg)
	if err != nil {
		return err
	}

	// Open the result store
	results, err := app.ResultStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer results.Close()

	hub := websocket.NewHub(recorder)
	sinks := []risk.ResultSink{
		risk.NewGuardedSink(results, breakers.Get("result-store", breakerConfig)),
		hub,
	}

	// Kafka publishes results and feeds portfolio updates back in
	var kafkaClient *kafka.Client
	if cfg.Kafka.Enabled {
		kafkaClient, err = kafka.NewClient(&kafka.Config{
			Brokers:        cfg.Kafka.Brokers,
			ClientID:       cfg.Kafka.ClientID,
			GroupID:        cfg.Kafka.Consumer.GroupID,
			StartOffset:    cfg.Kafka.Consumer.StartOffset,
			SessionTimeout: cfg.Kafka.Consumer.SessionTimeout,
			BatchTimeout:   cfg.Kafka.Producer.BatchTimeout,
			WriteTimeout:   cfg.Kafka.Producer.WriteTimeout,
			RequiredAcks:   cfg.Kafka.Producer.RequiredAcks,
			MaxAttempts:    cfg.Kafka.Consumer.MaxAttempts,
			RetryBackoff:   cfg.Kafka.Consumer.RetryBackoff,
		}, recorder)
		if err != nil {
			return err
		}

		for _, topic := range []string{cfg.Kafka.Topics.SimulationResults, cfg.Kafka.Topics.PortfolioUpdates} {
			if err := kafkaClient.EnsureTopicExists(ctx, topic, 1, 1); err != nil {
				log.Warnf("Could not ensure topic %s exists: %v", topic, err)
			}
		}

		producer := kafkaClient.NewProducer(cfg.Kafka.Topics.SimulationResults)
		defer producer.Close()
		sinks = append(sinks, risk.NewGuardedSink(producer, breakers.Get("kafka", breakerConfig)))
	}

	engineConfig, err := app.EngineConfig(cfg)
	if err != nil {
		return err
	}
	engine := risk.NewEngine(engineConfig, portfolioStore, historicalDataStore,
		risk.WithSinks(sinks...),
		risk.WithMetrics(recorder),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})

	if kafkaClient != nil {
		consumer := kafkaClient.NewConsumer(cfg.Kafka.Topics.PortfolioUpdates)
		defer consumer.Close()
		handler := kafka.NewPortfolioHandler(portfolioStore, engine, cfg.Kafka.Consumer.RunOnUpdate)
		g.Go(func() error {
			return consumer.Run(ctx, handler)
		})
	}

	// Scheduled re-execution of every portfolio
	job := scheduler.NewSimulationJob(engine, recorder)
	if cfg.Scheduler.Enabled {
		sched := scheduler.New()
		if err := sched.AddJob(cfg.Scheduler.Schedule, job); err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}
	if runNow {
		g.Go(func() error {
			if err := job.Run(ctx); err != nil {
				log.Errorf("Startup run failed: %v", err)
			}
			return nil
		})
	}

	if cfg.API.Enabled {
		var limiter backpressure.RateLimiter
		if cfg.API.RateLimit.Enabled {
			limiter = backpressure.NewTokenBucketLimiter(cfg.API.RateLimit.Rate, cfg.API.RateLimit.Burst)
		}
		server := api.NewServer(api.Config{
			Host:           cfg.API.Host,
			Port:           cfg.API.Port,
			ReadTimeout:    cfg.API.ReadTimeout,
			WriteTimeout:   cfg.API.WriteTimeout,
			AllowedOrigins: cfg.API.CORS.AllowedOrigins,
		}, api.Dependencies{
			Runner:     engine,
			Portfolios: portfolioStore,
			Results:    results,
			Metrics:    recorder,
			Breakers:   breakers,
			WebSocket:  hub.HandleWebSocket,
			Limiter:    limiter,
		})
		g.Go(server.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
			defer cancel()
			return server.Stop(shutdownCtx)
		})
	}

	if cfg.Metrics.Prometheus.Enabled {
		promServer := metrics.NewPrometheusServer(cfg.Metrics.Prometheus.Port, recorder)
		promServer.SetInterval(cfg.Metrics.Interval)
		g.Go(promServer.Start)
		g.Go(func() error {
			promServer.CollectSystemMetrics(ctx)
			return promServer.Stop(context.Background())
		})
	}

	log.Info("Risk engine started")
	return g.Wait()
}
