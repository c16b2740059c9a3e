package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// NullableFloat is a metric that may be undefined, e.g. CVaR with an empty
// tail or Sharpe with zero variance. An undefined value is distinct from zero.
type NullableFloat struct {
	Value float64
	Valid bool
}

// Defined wraps a computed value
func Defined(v float64) NullableFloat {
	return NullableFloat{Value: v, Valid: true}
}

// Undefined returns the "no value" result
func Undefined() NullableFloat {
	return NullableFloat{}
}

// Float64 returns the value and whether it is defined
func (n NullableFloat) Float64() (float64, bool) {
	return n.Value, n.Valid
}

// String formats the value with full precision, or "undefined"
func (n NullableFloat) String() string {
	if !n.Valid {
		return "undefined"
	}
	return strconv.FormatFloat(n.Value, 'g', -1, 64)
}

// MarshalJSON encodes an undefined value as null
func (n NullableFloat) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// UnmarshalJSON decodes null as undefined
func (n *NullableFloat) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*n = Undefined()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = Defined(v)
	return nil
}

// RiskReport is the scalar result of one simulation run
type RiskReport struct {
	ConfidenceLevel float64       `json:"confidence_level"`
	VaR             float64       `json:"var"`
	CVaR            NullableFloat `json:"cvar"`
	SharpeRatio     NullableFloat `json:"sharpe_ratio"`
}

// RunRecord is the flat row handed to persistence and messaging sinks
type RunRecord struct {
	ID                  string        `json:"id"`
	PortfolioID         string        `json:"portfolio_id"`
	Timestamp           time.Time     `json:"timestamp"`
	VaR                 float64       `json:"var"`
	CVaR                NullableFloat `json:"cvar"`
	SharpeRatio         NullableFloat `json:"sharpe_ratio"`
	InitialInvestment   float64       `json:"initial_investment"`
	MeanPortfolioReturn float64       `json:"mean_portfolio_return"`
	NumSimulations      int           `json:"num_simulations"`
	TimeHorizon         int           `json:"time_horizon"`
	ConfidenceLevel     float64       `json:"confidence_level"`
	Strategy            string        `json:"strategy"`
	Seed                uint64        `json:"seed"`
}

// Creates a new RunRecord from a report and the run parameters
func NewRunRecord(id, portfolioID string, report RiskReport, initialInvestment, meanReturn float64,
	numSimulations, horizon int, strategy string, seed uint64) RunRecord {
	return RunRecord{
		ID:                  id,
		PortfolioID:         portfolioID,
		Timestamp:           time.Now().UTC(),
		VaR:                 report.VaR,
		CVaR:                report.CVaR,
		SharpeRatio:         report.SharpeRatio,
		InitialInvestment:   initialInvestment,
		MeanPortfolioReturn: meanReturn,
		NumSimulations:      numSimulations,
		TimeHorizon:         horizon,
		ConfidenceLevel:     report.ConfidenceLevel,
		Strategy:            strategy,
		Seed:                seed,
	}
}
