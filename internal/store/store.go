package store

import (
	"context"
	"strconv"
	"strings"

	"github.com/rzzdr/portfolio-risk-sim/pkg/models"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
)

// ResultStore persists run records
type ResultStore interface {
	SaveRun(ctx context.Context, record models.RunRecord) error
	GetRun(ctx context.Context, id string) (*models.RunRecord, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]models.RunRecord, error)
	Close() error
}

// RunFilter narrows ListRuns. Results are newest first.
type RunFilter struct {
	PortfolioID string
	Limit       int
}

// Config selects and configures a result store
type Config struct {
	Driver      string
	CSVPath     string
	SQLitePath  string
	PostgresDSN string
}

// Open returns the result store named by cfg.Driver: memory, csv, sqlite or
// postgres
func Open(ctx context.Context, cfg Config) (ResultStore, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		return NewInMemoryResultStore(), nil
	case "csv":
		return NewCSVResultStore(cfg.CSVPath)
	case "sqlite":
		return NewSQLiteResultStore(ctx, cfg.SQLitePath)
	case "postgres", "postgresql":
		return NewPostgresResultStore(ctx, cfg.PostgresDSN)
	default:
		return nil, errors.InvalidParameterf("database.driver", "unknown result store %q", cfg.Driver)
	}
}

func formatSeed(seed uint64) string {
	return strconv.FormatUint(seed, 10)
}

func parseSeed(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

func nullable(v float64, valid bool) models.NullableFloat {
	if !valid {
		return models.Undefined()
	}
	return models.Defined(v)
}

func applyLimit(records []models.RunRecord, limit int) []models.RunRecord {
	if limit > 0 && len(records) > limit {
		return records[:limit]
	}
	return records
}
