package store

import (
	"sort"
	"sync"
	"time"

	"github.com/rzzdr/portfolio-risk-sim/pkg/models"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/logger"
)

// InMemoryPortfolioStore implements an in-memory portfolio storage
type InMemoryPortfolioStore struct {
	portfolios map[string]*models.Portfolio
	mu         sync.RWMutex
	log        *logger.Logger
}

// NewInMemoryPortfolioStore creates a new in-memory portfolio store
func NewInMemoryPortfolioStore() *InMemoryPortfolioStore {
	return &InMemoryPortfolioStore{
		portfolios: make(map[string]*models.Portfolio),
		log:        logger.GetLogger("store.portfolio"),
	}
}

// GetPortfolio retrieves a copy of the portfolio with the given ID
func (s *InMemoryPortfolioStore) GetPortfolio(id string) (*models.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	portfolio, exists := s.portfolios[id]
	if !exists {
		return nil, errors.NotFound("portfolio not found: " + id)
	}

	return clonePortfolio(portfolio), nil
}

// GetAllPortfolios returns all stored portfolios ordered by ID
func (s *InMemoryPortfolioStore) GetAllPortfolios() ([]*models.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	portfolios := make([]*models.Portfolio, 0, len(s.portfolios))
	for _, p := range s.portfolios {
		portfolios = append(portfolios, clonePortfolio(p))
	}
	sort.Slice(portfolios, func(i, j int) bool { return portfolios[i].ID < portfolios[j].ID })

	return portfolios, nil
}

// SavePortfolio validates and saves or updates a portfolio
func (s *InMemoryPortfolioStore) SavePortfolio(portfolio *models.Portfolio) error {
	if portfolio == nil {
		return errors.InvalidParameter("portfolio", "cannot save nil portfolio")
	}
	if err := portfolio.Validate(); err != nil {
		return err
	}
	if len(portfolio.Weights) > 0 {
		if err := portfolio.Weights.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	saved := clonePortfolio(portfolio)
	now := time.Now().UTC()
	if existing, ok := s.portfolios[saved.ID]; ok {
		saved.Created = existing.Created
	} else if saved.Created.IsZero() {
		saved.Created = now
	}
	saved.Updated = now

	s.portfolios[saved.ID] = saved
	s.log.Debugf("Saved portfolio %s", saved.ID)
	return nil
}

// DeletePortfolio removes a portfolio by ID
func (s *InMemoryPortfolioStore) DeletePortfolio(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.portfolios[id]; !exists {
		return errors.NotFound("portfolio not found: " + id)
	}

	delete(s.portfolios, id)
	return nil
}

func clonePortfolio(p *models.Portfolio) *models.Portfolio {
	c := *p
	c.Instruments = append([]string(nil), p.Instruments...)
	if p.Weights != nil {
		c.Weights = append(models.WeightVector(nil), p.Weights...)
	}
	if p.Sectors != nil {
		c.Sectors = make(map[string]string, len(p.Sectors))
		for k, v := range p.Sectors {
			c.Sectors[k] = v
		}
	}
	return &c
}
