package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rzzdr/portfolio-risk-sim/internal/risk"
	"github.com/rzzdr/portfolio-risk-sim/internal/store"
	"github.com/rzzdr/portfolio-risk-sim/pkg/metrics"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/backpressure"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/circuit"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/logger"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// Config holds the configuration for the API server
type Config struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

// Runner executes simulation runs
type Runner interface {
	Run(ctx context.Context, req risk.RunRequest) (*risk.RunResult, error)
}

// Dependencies are the services the handlers call. Only Runner and
// Portfolios are required.
type Dependencies struct {
	Runner     Runner
	Portfolios risk.PortfolioStore
	Results    store.ResultStore
	Metrics    *metrics.Recorder
	Breakers   *circuit.Manager
	WebSocket  http.HandlerFunc
	// Limiter throttles the endpoints that start simulations
	Limiter    backpressure.RateLimiter
}

// Server represents the API server
type Server struct {
	config     Config
	router     *gin.Engine
	httpServer *http.Server
	handlers   *Handlers
	deps       Dependencies
	log        *logger.Logger
}

// NewServer creates a new API server
func NewServer(config Config, deps Dependencies) *Server {
	// Apply defaults if needed
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 10 * time.Second
	}

	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 60 * time.Second
	}

	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{"*"}
	}

	router := gin.New()

	server := &Server{
		config:   config,
		router:   router,
		handlers: NewHandlers(deps),
		deps:     deps,
		log:      logger.GetLogger("api.server"),
	}

	// Setup routes
	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:           router,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
	}

	return server
}

// Handler returns the HTTP handler serving every route
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the API server and blocks until it stops
func (s *Server) Start() error {
	s.log.Infof("Starting API server on %s", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop stops the API server gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("Stopping API server")
	return s.httpServer.Shutdown(ctx)
}
