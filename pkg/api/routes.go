package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
)

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	// Apply common middleware
	s.router.Use(ErrorMiddleware())
	s.router.Use(LoggingMiddleware())
	if s.deps.Metrics != nil {
		s.router.Use(MetricsMiddleware(s.deps.Metrics))
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}
	s.router.Use(CORSMiddleware(s.config.AllowedOrigins))

	h := s.handlers

	// API version prefix
	api := s.router.Group("/api/v1")
	api.GET("/health", h.HealthCheckHandler)

	var throttle gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if s.deps.Limiter != nil {
		throttle = RateLimitMiddleware(s.deps.Limiter)
	}

	// Simulation endpoints
	api.POST("/simulations", throttle, h.RunSimulationHandler)
	api.GET("/results", h.ListRunsHandler)
	api.GET("/results/:id", h.GetRunHandler)

	// Portfolio endpoints
	portfolios := api.Group("/portfolios")
	portfolios.GET("", h.ListPortfoliosHandler)
	portfolios.POST("", h.CreatePortfolioHandler)
	portfolios.GET("/:id", h.GetPortfolioHandler)
	portfolios.PUT("/:id", h.UpdatePortfolioHandler)
	portfolios.DELETE("/:id", h.DeletePortfolioHandler)
	portfolios.POST("/:id/simulate", throttle, h.SimulatePortfolioHandler)
	portfolios.GET("/:id/charts/:kind", throttle, h.ChartHandler)

	// Live run stream
	if s.deps.WebSocket != nil {
		s.router.GET("/ws", gin.WrapF(s.deps.WebSocket))
	}

	s.router.NoRoute(func(c *gin.Context) {
		respondError(c, errors.NotFound("no route for "+c.Request.URL.Path))
	})
}

// respondError maps the error type onto an HTTP status
func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{
		"error": err.Error(),
		"type":  errors.TypeOf(err).String(),
	})
}

func statusFor(err error) int {
	switch errors.TypeOf(err) {
	case errors.ErrorTypeInvalidParameter, errors.ErrorTypeDimensionMismatch, errors.ErrorTypeEmptyInput:
		return http.StatusBadRequest
	case errors.ErrorTypeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
