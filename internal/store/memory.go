package store

import (
	"context"
	"sync"

	"github.com/rzzdr/portfolio-risk-sim/pkg/models"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
)

// InMemoryResultStore keeps run records in memory, in insertion order
type InMemoryResultStore struct {
	records []models.RunRecord
	mu      sync.RWMutex
}

// NewInMemoryResultStore creates a new in-memory result store
func NewInMemoryResultStore() *InMemoryResultStore {
	return &InMemoryResultStore{}
}

func (s *InMemoryResultStore) SaveRun(_ context.Context, record models.RunRecord) error {
	if record.ID == "" {
		return errors.InvalidParameter("id", "run record ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, record)
	return nil
}

func (s *InMemoryResultStore) GetRun(_ context.Context, id string) (*models.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.records {
		if s.records[i].ID == id {
			r := s.records[i]
			return &r, nil
		}
	}
	return nil, errors.NotFound("run not found: " + id)
}

func (s *InMemoryResultStore) ListRuns(_ context.Context, filter RunFilter) ([]models.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.RunRecord, 0, len(s.records))
	for i := len(s.records) - 1; i >= 0; i-- {
		if filter.PortfolioID != "" && s.records[i].PortfolioID != filter.PortfolioID {
			continue
		}
		out = append(out, s.records[i])
	}
	return applyLimit(out, filter.Limit), nil
}

func (s *InMemoryResultStore) Close() error {
	return nil
}
