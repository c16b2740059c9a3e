package store

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rzzdr/portfolio-risk-sim/pkg/models"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/logger"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS simulation_runs (
	id TEXT PRIMARY KEY,
	portfolio_id TEXT NOT NULL,
	run_at TEXT NOT NULL,
	var REAL NOT NULL,
	cvar REAL,
	sharpe_ratio REAL,
	initial_investment REAL NOT NULL,
	mean_portfolio_return REAL NOT NULL,
	num_simulations INTEGER NOT NULL,
	time_horizon INTEGER NOT NULL,
	confidence_level REAL NOT NULL,
	strategy TEXT NOT NULL,
	seed TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_simulation_runs_portfolio ON simulation_runs(portfolio_id, run_at);
`

// sqliteTimeLayout has a fixed width so text order is time order
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const runColumns = `id, portfolio_id, run_at, var, cvar, sharpe_ratio, initial_investment,
	mean_portfolio_return, num_simulations, time_horizon, confidence_level, strategy, seed`

// SQLiteResultStore persists run records in a SQLite database
type SQLiteResultStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewSQLiteResultStore opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func NewSQLiteResultStore(ctx context.Context, path string) (*SQLiteResultStore, error) {
	if path == "" {
		return nil, errors.InvalidParameter("database.sqlite_path", "SQLite path cannot be empty")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Unavailable("opening sqlite database", err)
	}
	// An in-memory database lives and dies with its single connection
	db.SetMaxOpenConns(1)

	store, err := NewSQLiteResultStoreFromDB(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteResultStoreFromDB wraps an open database handle
func NewSQLiteResultStoreFromDB(ctx context.Context, db *sql.DB) (*SQLiteResultStore, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, errors.Unavailable("applying sqlite schema", err)
	}
	return &SQLiteResultStore{db: db, log: logger.GetLogger("store.sqlite")}, nil
}

func (s *SQLiteResultStore) SaveRun(ctx context.Context, r models.RunRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO simulation_runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.PortfolioID, r.Timestamp.UTC().Format(sqliteTimeLayout), r.VaR,
		sql.NullFloat64{Float64: r.CVaR.Value, Valid: r.CVaR.Valid},
		sql.NullFloat64{Float64: r.SharpeRatio.Value, Valid: r.SharpeRatio.Valid},
		r.InitialInvestment, r.MeanPortfolioReturn, r.NumSimulations, r.TimeHorizon,
		r.ConfidenceLevel, r.Strategy, formatSeed(r.Seed),
	)
	if err != nil {
		s.log.Errorf("Failed to insert run %s: %v", r.ID, err)
		return errors.Unavailable("inserting run", err)
	}
	return nil
}

func (s *SQLiteResultStore) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM simulation_runs WHERE id = ?`, id)
	r, err := scanSQLiteRun(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("run not found: " + id)
	}
	if err != nil {
		return nil, errors.Unavailable("reading run", err)
	}
	return &r, nil
}

func (s *SQLiteResultStore) ListRuns(ctx context.Context, filter RunFilter) ([]models.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM simulation_runs`
	var args []interface{}
	if filter.PortfolioID != "" {
		query += ` WHERE portfolio_id = ?`
		args = append(args, filter.PortfolioID)
	}
	query += ` ORDER BY run_at DESC, rowid DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Unavailable("listing runs", err)
	}
	defer rows.Close()

	out := []models.RunRecord{}
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
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

func (s *SQLiteResultStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLiteRun(row rowScanner) (models.RunRecord, error) {
	var (
		r      models.RunRecord
		runAt  string
		seed   string
		cvar   sql.NullFloat64
		sharpe sql.NullFloat64
	)
	err := row.Scan(&r.ID, &r.PortfolioID, &runAt, &r.VaR, &cvar, &sharpe, &r.InitialInvestment,
		&r.MeanPortfolioReturn, &r.NumSimulations, &r.TimeHorizon, &r.ConfidenceLevel, &r.Strategy, &seed)
	if err != nil {
		return r, err
	}

	if r.Timestamp, err = time.Parse(sqliteTimeLayout, runAt); err != nil {
		return r, err
	}
	if r.Seed, err = parseSeed(seed); err != nil {
		return r, err
	}
	r.CVaR = nullable(cvar.Float64, cvar.Valid)
	r.SharpeRatio = nullable(sharpe.Float64, sharpe.Valid)
	return r, nil
}
