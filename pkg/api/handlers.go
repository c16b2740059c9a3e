package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rzzdr/portfolio-risk-sim/internal/report"
	"github.com/rzzdr/portfolio-risk-sim/internal/risk"
	"github.com/rzzdr/portfolio-risk-sim/internal/store"
	"github.com/rzzdr/portfolio-risk-sim/pkg/models"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/logger"
)

// SimulationRequest is the body of a simulation request. Omitted fields fall
// back to the portfolio, then to the engine configuration.
type SimulationRequest struct {
	PortfolioID       string            `json:"portfolio_id"`
	Portfolio         *models.Portfolio `json:"portfolio"`
	Seed              *uint64           `json:"seed"`
	Strategy          string            `json:"strategy"`
	Optimize          *bool             `json:"optimize"`
	NumSimulations    int               `json:"num_simulations"`
	TimeHorizon       int               `json:"time_horizon"`
	ConfidenceLevel   float64           `json:"confidence_level"`
	InitialInvestment float64           `json:"initial_investment"`
}

func (r SimulationRequest) toRunRequest() (risk.RunRequest, error) {
	req := risk.RunRequest{
		PortfolioID:       r.PortfolioID,
		Portfolio:         r.Portfolio,
		Seed:              r.Seed,
		Optimize:          r.Optimize,
		NumSimulations:    r.NumSimulations,
		TimeHorizon:       r.TimeHorizon,
		ConfidenceLevel:   r.ConfidenceLevel,
		InitialInvestment: r.InitialInvestment,
	}
	if r.Strategy != "" {
		strategy, err := risk.ParseStrategy(r.Strategy)
		if err != nil {
			return req, err
		}
		req.Strategy = &strategy
	}
	return req, nil
}

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	deps    Dependencies
	started time.Time
	log     *logger.Logger
}

// NewHandlers creates new API handlers
func NewHandlers(deps Dependencies) *Handlers {
	return &Handlers{
		deps:    deps,
		started: time.Now(),
		log:     logger.GetLogger("api.handlers"),
	}
}

// HealthCheckHandler handles health check requests
func (h *Handlers) HealthCheckHandler(c *gin.Context) {
	body := gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(h.started).Round(time.Second).String(),
		"version":   Version,
	}
	if h.deps.Breakers != nil {
		stats := h.deps.Breakers.Stats()
		for _, s := range stats {
			if s.State != "CLOSED" {
				body["status"] = "degraded"
			}
		}
		body["circuit_breakers"] = stats
	}
	c.JSON(http.StatusOK, body)
}

// RunSimulationHandler runs a simulation for a stored or inline portfolio
func (h *Handlers) RunSimulationHandler(c *gin.Context) {
	var body SimulationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, errors.InvalidParameterf("body", "invalid simulation request: %v", err))
		return
	}
	h.runSimulation(c, body)
}

// SimulatePortfolioHandler runs a stored portfolio. The body is optional.
func (h *Handlers) SimulatePortfolioHandler(c *gin.Context) {
	var body SimulationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, errors.InvalidParameterf("body", "invalid simulation request: %v", err))
			return
		}
	}
	body.PortfolioID = c.Param("id")
	body.Portfolio = nil
	h.runSimulation(c, body)
}

func (h *Handlers) runSimulation(c *gin.Context, body SimulationRequest) {
	req, err := body.toRunRequest()
	if err != nil {
		respondError(c, err)
		return
	}

	res, err := h.deps.Runner.Run(c.Request.Context(), req)
	if err != nil {
		h.log.Errorf("Simulation failed: %v", err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListRunsHandler lists stored runs, newest first
func (h *Handlers) ListRunsHandler(c *gin.Context) {
	if h.deps.Results == nil {
		respondError(c, errors.Unavailable("no result store configured", nil))
		return
	}

	filter := store.RunFilter{PortfolioID: c.Query("portfolio_id")}
	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			respondError(c, errors.InvalidParameter("limit", "must be a non-negative integer"))
			return
		}
		filter.Limit = n
	}

	runs, err := h.deps.Results.ListRuns(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

// GetRunHandler returns one stored run
func (h *Handlers) GetRunHandler(c *gin.Context) {
	if h.deps.Results == nil {
		respondError(c, errors.Unavailable("no result store configured", nil))
		return
	}

	run, err := h.deps.Results.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// ListPortfoliosHandler returns every stored portfolio
func (h *Handlers) ListPortfoliosHandler(c *gin.Context) {
	portfolios, err := h.deps.Portfolios.GetAllPortfolios()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"portfolios": portfolios, "count": len(portfolios)})
}

// CreatePortfolioHandler stores a new portfolio
func (h *Handlers) CreatePortfolioHandler(c *gin.Context) {
	var p models.Portfolio
	if err := c.ShouldBindJSON(&p); err != nil {
		respondError(c, errors.InvalidParameterf("body", "invalid portfolio: %v", err))
		return
	}
	if _, err := h.deps.Portfolios.GetPortfolio(p.ID); err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("portfolio %s already exists", p.ID)})
		return
	}
	h.savePortfolio(c, &p, http.StatusCreated)
}

// GetPortfolioHandler returns one portfolio
func (h *Handlers) GetPortfolioHandler(c *gin.Context) {
	p, err := h.deps.Portfolios.GetPortfolio(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// UpdatePortfolioHandler replaces an existing portfolio
func (h *Handlers) UpdatePortfolioHandler(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.deps.Portfolios.GetPortfolio(id); err != nil {
		respondError(c, err)
		return
	}

	var p models.Portfolio
	if err := c.ShouldBindJSON(&p); err != nil {
		respondError(c, errors.InvalidParameterf("body", "invalid portfolio: %v", err))
		return
	}
	p.ID = id
	h.savePortfolio(c, &p, http.StatusOK)
}

func (h *Handlers) savePortfolio(c *gin.Context, p *models.Portfolio, status int) {
	if err := h.deps.Portfolios.SavePortfolio(p); err != nil {
		respondError(c, err)
		return
	}
	saved, err := h.deps.Portfolios.GetPortfolio(p.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(status, saved)
}

// DeletePortfolioHandler removes a portfolio
func (h *Handlers) DeletePortfolioHandler(c *gin.Context) {
	if err := h.deps.Portfolios.DeletePortfolio(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ChartHandler runs a portfolio and renders the trajectory or terminal
// histogram chart as PNG. Query parameters seed, simulations and horizon
// override the defaults.
func (h *Handlers) ChartHandler(c *gin.Context) {
	kind := c.Param("kind")
	if kind != "trajectory" && kind != "histogram" {
		respondError(c, errors.InvalidParameterf("kind", "unknown chart %q", kind))
		return
	}

	req := risk.RunRequest{PortfolioID: c.Param("id")}
	if v := c.Query("seed"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			respondError(c, errors.InvalidParameter("seed", "must be an unsigned integer"))
			return
		}
		req.Seed = &seed
	}
	for name, dst := range map[string]*int{"simulations": &req.NumSimulations, "horizon": &req.TimeHorizon} {
		if v := c.Query(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				respondError(c, errors.InvalidParameter(name, "must be an integer"))
				return
			}
			*dst = n
		}
	}

	res, err := h.deps.Runner.Run(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	var png []byte
	if kind == "trajectory" {
		png, err = report.TrajectoryChart(fmt.Sprintf("%s simulated value", req.PortfolioID), res.Summary)
	} else {
		png, err = report.HistogramChart(fmt.Sprintf("%s terminal value", req.PortfolioID), res.Summary.TerminalHistogram)
	}
	if err != nil {
		h.log.Errorf("Failed to render %s chart: %v", kind, err)
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
