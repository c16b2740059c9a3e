package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rzzdr/portfolio-risk-sim/internal/risk"
	"github.com/rzzdr/portfolio-risk-sim/pkg/models"
)

// FormatCurrency rounds half away from zero to cents and adds thousands
// separators, e.g. 9512.345 -> "$9,512.35"
func FormatCurrency(v float64) string {
	d := decimal.NewFromFloat(v).Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}

	s := d.StringFixed(2)
	whole, frac := s[:len(s)-3], s[len(s)-3:]

	var b strings.Builder
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return sign + "$" + b.String() + frac
}

// FormatRatio prints a ratio to four decimals, or "undefined"
func FormatRatio(n models.NullableFloat) string {
	if !n.Valid {
		return "undefined"
	}
	return decimal.NewFromFloat(n.Value).StringFixed(4)
}

// FormatPercent prints a fraction as a percentage to two decimals
func FormatPercent(v float64) string {
	return decimal.NewFromFloat(v).Shift(2).StringFixed(2) + "%"
}

// FormatNullableCurrency prints a currency value, or "undefined"
func FormatNullableCurrency(n models.NullableFloat) string {
	if !n.Valid {
		return "undefined"
	}
	return FormatCurrency(n.Value)
}

// WriteText writes the human readable report of a run
func WriteText(w io.Writer, res *risk.RunResult) error {
	r := res.Record
	lines := []string{
		fmt.Sprintf("Portfolio:            %s", r.PortfolioID),
		fmt.Sprintf("Strategy:             %s (seed %d)", r.Strategy, r.Seed),
		fmt.Sprintf("Simulations:          %d over %d days", r.NumSimulations, r.TimeHorizon),
		fmt.Sprintf("Initial investment:   %s", FormatCurrency(r.InitialInvestment)),
		"",
	}

	lines = append(lines, "Weights:")
	for i, inst := range res.Instruments {
		if i < len(res.Weights) {
			lines = append(lines, fmt.Sprintf("  %-8s %s", inst, FormatPercent(res.Weights[i])))
		}
	}
	lines = append(lines, "")

	conf := FormatPercent(res.Report.ConfidenceLevel)
	lines = append(lines,
		fmt.Sprintf("VaR (%s):         %s", conf, FormatCurrency(res.Report.VaR)),
		fmt.Sprintf("CVaR (%s):        %s", conf, FormatNullableCurrency(res.Report.CVaR)),
		fmt.Sprintf("Analytical VaR:       %s", FormatCurrency(res.AnalyticalVaR)),
		fmt.Sprintf("Sharpe ratio:         %s", FormatRatio(res.Report.SharpeRatio)),
		fmt.Sprintf("Mean daily return:    %s", FormatPercent(r.MeanPortfolioReturn)),
		fmt.Sprintf("Mean terminal value:  %s", FormatCurrency(res.Summary.MeanTerminal)),
		fmt.Sprintf("Median terminal:      %s", FormatCurrency(res.Summary.MedianTerminal)),
		fmt.Sprintf("Probability of loss:  %s", FormatPercent(res.Summary.ProbabilityOfLoss)),
	)

	if res.Optimization != nil {
		lines = append(lines, "",
			fmt.Sprintf("Optimizer:            %d trials, annual return %s, volatility %s",
				res.Optimization.Trials, FormatPercent(res.Optimization.AnnualReturn), FormatPercent(res.Optimization.AnnualVolatility)),
		)
	}

	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return err
}
