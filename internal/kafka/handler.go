package kafka

import (
	"context"
	"encoding/json"

	"github.com/rzzdr/portfolio-risk-sim/internal/risk"
	"github.com/rzzdr/portfolio-risk-sim/pkg/models"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/logger"
)

// Portfolio command actions
const (
	ActionUpsert = "upsert"
	ActionDelete = "delete"
	ActionRun    = "run"
)

// PortfolioCommand is the payload of the portfolio topic
type PortfolioCommand struct {
	Action         string            `json:"action"`
	PortfolioID    string            `json:"portfolio_id,omitempty"`
	Portfolio      *models.Portfolio `json:"portfolio,omitempty"`
	Seed           *uint64           `json:"seed,omitempty"`
	NumSimulations int               `json:"num_simulations,omitempty"`
	TimeHorizon    int               `json:"time_horizon,omitempty"`
}

// Runner executes a simulation run
type Runner interface {
	Run(ctx context.Context, req risk.RunRequest) (*risk.RunResult, error)
}

// NewPortfolioHandler applies portfolio commands to store. Upserted
// portfolios are re-simulated when runOnUpsert is set.
func NewPortfolioHandler(store risk.PortfolioStore, runner Runner, runOnUpsert bool) MessageHandler {
	log := logger.GetLogger("kafka.portfolio")

	return func(ctx context.Context, msg *Message) error {
		var cmd PortfolioCommand
		if err := json.Unmarshal(msg.Value, &cmd); err != nil {
			return errors.InvalidParameterf("message", "malformed portfolio command: %v", err)
		}
		if cmd.PortfolioID == "" && cmd.Portfolio != nil {
			cmd.PortfolioID = cmd.Portfolio.ID
		}
		if cmd.PortfolioID == "" {
			cmd.PortfolioID = string(msg.Key)
		}

		switch cmd.Action {
		case ActionUpsert:
			if cmd.Portfolio == nil {
				return errors.InvalidParameter("portfolio", "upsert requires a portfolio")
			}
			if err := store.SavePortfolio(cmd.Portfolio); err != nil {
				return err
			}
			log.Infof("Saved portfolio %s from topic %s", cmd.Portfolio.ID, msg.Topic)
			if !runOnUpsert {
				return nil
			}
		case ActionDelete:
			if err := store.DeletePortfolio(cmd.PortfolioID); err != nil {
				return err
			}
			log.Infof("Deleted portfolio %s", cmd.PortfolioID)
			return nil
		case ActionRun:
		default:
			return errors.InvalidParameterf("action", "unknown action %q", cmd.Action)
		}

		res, err := runner.Run(ctx, risk.RunRequest{
			PortfolioID:    cmd.PortfolioID,
			Seed:           cmd.Seed,
			NumSimulations: cmd.NumSimulations,
			TimeHorizon:    cmd.TimeHorizon,
		})
		if err != nil {
			return err
		}
		log.Infof("Run %s completed for portfolio %s", res.Record.ID, cmd.PortfolioID)
		return nil
	}
}
