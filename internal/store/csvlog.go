package store

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rzzdr/portfolio-risk-sim/pkg/models"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/logger"
)

var csvHeader = []string{
	"id", "portfolio_id", "timestamp", "var", "cvar", "sharpe_ratio",
	"initial_investment", "mean_portfolio_return", "num_simulations",
	"time_horizon", "confidence_level", "strategy", "seed",
}

// CSVResultStore appends one row per run to a CSV file. The header is written
// when the file is created. Undefined metrics are empty cells.
type CSVResultStore struct {
	path string
	mu   sync.Mutex
	log  *logger.Logger
}

// NewCSVResultStore creates a store appending to path
func NewCSVResultStore(path string) (*CSVResultStore, error) {
	if path == "" {
		return nil, errors.InvalidParameter("database.csv_path", "CSV result path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Unavailable("creating result directory", err)
		}
	}
	return &CSVResultStore{path: path, log: logger.GetLogger("store.csv")}, nil
}

func (s *CSVResultStore) SaveRun(_ context.Context, record models.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Unavailable("opening result log", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return errors.Unavailable("reading result log", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			return errors.Unavailable("writing result log header", err)
		}
	}
	if err := w.Write(encodeCSVRecord(record)); err != nil {
		return errors.Unavailable("writing result log", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Unavailable("writing result log", err)
	}

	s.log.Debugf("Appended run %s to %s", record.ID, s.path)
	return nil
}

func (s *CSVResultStore) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	records, err := s.ListRuns(ctx, RunFilter{})
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].ID == id {
			return &records[i], nil
		}
	}
	return nil, errors.NotFound("run not found: " + id)
}

func (s *CSVResultStore) ListRuns(_ context.Context, filter RunFilter) ([]models.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return []models.RunRecord{}, nil
	}
	if err != nil {
		return nil, errors.Unavailable("opening result log", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	if _, err := r.Read(); err == io.EOF {
		return []models.RunRecord{}, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "reading result log header")
	}

	var all []models.RunRecord
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading result log")
		}
		record, err := decodeCSVRecord(row)
		if err != nil {
			return nil, err
		}
		if filter.PortfolioID != "" && record.PortfolioID != filter.PortfolioID {
			continue
		}
		all = append(all, record)
	}

	out := make([]models.RunRecord, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
	}
	return applyLimit(out, filter.Limit), nil
}

func (s *CSVResultStore) Close() error {
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatNullable(n models.NullableFloat) string {
	if !n.Valid {
		return ""
	}
	return formatFloat(n.Value)
}

func encodeCSVRecord(r models.RunRecord) []string {
	return []string{
		r.ID,
		r.PortfolioID,
		r.Timestamp.UTC().Format(time.RFC3339Nano),
		formatFloat(r.VaR),
		formatNullable(r.CVaR),
		formatNullable(r.SharpeRatio),
		formatFloat(r.InitialInvestment),
		formatFloat(r.MeanPortfolioReturn),
		strconv.Itoa(r.NumSimulations),
		strconv.Itoa(r.TimeHorizon),
		formatFloat(r.ConfidenceLevel),
		r.Strategy,
		formatSeed(r.Seed),
	}
}

func decodeCSVRecord(row []string) (models.RunRecord, error) {
	if len(row) != len(csvHeader) {
		return models.RunRecord{}, errors.DimensionMismatch("result row has %d fields, expected %d", len(row), len(csvHeader))
	}

	var (
		r    models.RunRecord
		errs []error
	)
	float := func(s string) float64 {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	nullableFloat := func(s string) models.NullableFloat {
		if s == "" {
			return models.Undefined()
		}
		return models.Defined(float(s))
	}
	integer := func(s string) int {
		v, err := strconv.Atoi(s)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	r.ID = row[0]
	r.PortfolioID = row[1]
	ts, err := time.Parse(time.RFC3339Nano, row[2])
	if err != nil {
		errs = append(errs, err)
	}
	r.Timestamp = ts
	r.VaR = float(row[3])
	r.CVaR = nullableFloat(row[4])
	r.SharpeRatio = nullableFloat(row[5])
	r.InitialInvestment = float(row[6])
	r.MeanPortfolioReturn = float(row[7])
	r.NumSimulations = integer(row[8])
	r.TimeHorizon = integer(row[9])
	r.ConfidenceLevel = float(row[10])
	r.Strategy = row[11]
	if r.Seed, err = parseSeed(row[12]); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return models.RunRecord{}, errors.Wrapf(errs[0], "decoding result row %s", r.ID)
	}
	return r, nil
}
