package store

import (
	"context"
	"strconv"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rzzdr/portfolio-risk-sim/pkg/models"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/logger"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS simulation_runs (
	id TEXT PRIMARY KEY,
	portfolio_id TEXT NOT NULL,
	run_at TIMESTAMPTZ NOT NULL,
	var NUMERIC NOT NULL,
	cvar NUMERIC,
	sharpe_ratio NUMERIC,
	initial_investment NUMERIC NOT NULL,
	mean_portfolio_return NUMERIC NOT NULL,
	num_simulations INTEGER NOT NULL,
	time_horizon INTEGER NOT NULL,
	confidence_level NUMERIC NOT NULL,
	strategy TEXT NOT NULL,
	seed TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_simulation_runs_portfolio ON simulation_runs (portfolio_id, run_at DESC);
`

// PostgresResultStore persists run records in PostgreSQL. Monetary and ratio
// columns are NUMERIC, exchanged as shopspring decimals.
type PostgresResultStore struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// NewPostgresResultStore connects to dsn, verifies connectivity and applies
// the schema
func NewPostgresResultStore(ctx context.Context, dsn string) (*PostgresResultStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.InvalidParameterf("database.postgres_dsn", "parse config: %v", err)
	}
	// Register shopspring decimal
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, errors.Unavailable("connecting to postgres", err)
	}
	// Ensure the connection is established.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Unavailable("pinging postgres", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, errors.Unavailable("applying postgres schema", err)
	}

	return &PostgresResultStore{pool: pool, log: logger.GetLogger("store.postgres")}, nil
}

func (s *PostgresResultStore) SaveRun(ctx context.Context, r models.RunRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO simulation_runs (`+runColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		r.ID, r.PortfolioID, r.Timestamp, decimal.NewFromFloat(r.VaR),
		nullDecimal(r.CVaR), nullDecimal(r.SharpeRatio),
		decimal.NewFromFloat(r.InitialInvestment), decimal.NewFromFloat(r.MeanPortfolioReturn),
		r.NumSimulations, r.TimeHorizon, decimal.NewFromFloat(r.ConfidenceLevel),
		r.Strategy, formatSeed(r.Seed),
	)
	if err != nil {
		s.log.Errorf("Failed to insert run %s: %v", r.ID, err)
		return errors.Unavailable("inserting run", err)
	}
	return nil
}

func (s *PostgresResultStore) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM simulation_runs WHERE id = $1`, id)
	r, err := scanPostgresRun(row)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("run not found: " + id)
	}
	if err != nil {
		return nil, errors.Unavailable("reading run", err)
	}
	return &r, nil
}

func (s *PostgresResultStore) ListRuns(ctx context.Context, filter RunFilter) ([]models.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM simulation_runs`
	var args []interface{}
	if filter.PortfolioID != "" {
		args = append(args, filter.PortfolioID)
		query += ` WHERE portfolio_id = $1`
	}
	query += ` ORDER BY run_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Unavailable("listing runs", err)
	}
	defer rows.Close()

	out := []models.RunRecord{}
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, errors.Unavailable("reading run", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Unavailable("listing runs", err)
	}
	return out, nil
}

func (s *PostgresResultStore) Close() error {
	s.pool.Close()
	return nil
}

func nullDecimal(n models.NullableFloat) decimal.NullDecimal {
	if !n.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(n.Value))
}

func fromNullDecimal(d decimal.NullDecimal) models.NullableFloat {
	if !d.Valid {
		return models.Undefined()
	}
	return models.Defined(d.Decimal.InexactFloat64())
}

func scanPostgresRun(row pgx.Row) (models.RunRecord, error) {
	var (
		r                                   models.RunRecord
		seed                                string
		varValue, initial, mean, confidence decimal.Decimal
		cvar, sharpe                        decimal.NullDecimal
	)
	err := row.Scan(&r.ID, &r.PortfolioID, &r.Timestamp, &varValue, &cvar, &sharpe, &initial,
		&mean, &r.NumSimulations, &r.TimeHorizon, &confidence, &r.Strategy, &seed)
	if err != nil {
		return r, err
	}

	if r.Seed, err = parseSeed(seed); err != nil {
		return r, err
	}
	r.VaR = varValue.InexactFloat64()
	r.CVaR = fromNullDecimal(cvar)
	r.SharpeRatio = fromNullDecimal(sharpe)
	r.InitialInvestment = initial.InexactFloat64()
	r.MeanPortfolioReturn = mean.InexactFloat64()
	r.ConfidenceLevel = confidence.InexactFloat64()
	return r, nil
}
