package metrics

import (
	"github.com/shopspring/decimal"

	"github.com/akshitanchan/marketsim/internal/domain"
	"github.com/akshitanchan/marketsim/internal/marketlog"
)

// EquityCurve marks an agent's portfolio to the mid at every snapshot,
// replaying its trades from the given starting cash and inventory. Snapshots
// before the first defined mid are skipped; later empty-book snapshots reuse
// the last mid.
func EquityCurve(history []marketlog.L1Record, trades []domain.Trade, agentID string, cash decimal.Decimal, inventory int64) []float64 {
	var (
		values []float64
		next   int
		mark   decimal.Decimal
		marked bool
	)
	for _, rec := range history {
		for ; next < len(trades) && trades[next].Time <= rec.Time; next++ {
			tr := trades[next]
			notional := decimal.NewFromInt(tr.Price).Mul(decimal.NewFromInt(tr.Qty))
			if tr.BuyAgent == agentID {
				inventory += tr.Qty
				cash = cash.Sub(notional)
			}
			if tr.SellAgent == agentID {
				inventory -= tr.Qty
				cash = cash.Add(notional)
			}
		}
		if rec.Mid != nil {
			mark = decimal.NewFromFloat(*rec.Mid)
			marked = true
		}
		if !marked {
			continue
		}
		value := cash.Add(mark.Mul(decimal.NewFromInt(inventory)))
		values = append(values, value.InexactFloat64())
	}
	return values
}

// SimpleReturns returns v[i]/v[i-1] - 1, skipping non-positive bases.
func SimpleReturns(values []float64) []float64 {
	var out []float64
	for i := 1; i < len(values); i++ {
		if values[i-1] <= 0 {
			continue
		}
		out = append(out, values[i]/values[i-1]-1)
	}
	return out
}

// SharpeRatio is mean/stddev of per-period returns with a zero risk-free
// rate. Zero for empty or constant series.
func SharpeRatio(returns []float64) float64 {
	sd := stddev(returns)
	if len(returns) == 0 || sd == 0 {
		return 0
	}
	return mean(returns) / sd
}

// MaxDrawdown returns the largest peak-to-trough decline as a fraction of
// the peak.
func MaxDrawdown(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	peak := values[0]
	var maxDD float64
	for _, v := range values {
		peak = max(peak, v)
		if peak <= 0 {
			continue
		}
		maxDD = max(maxDD, (peak-v)/peak)
	}
	return maxDD
}

// Performance summarizes one agent's equity curve.
type Performance struct {
	AgentID     string  `json:"agent_id"`
	Points      int     `json:"points"`
	StartValue  float64 `json:"start_value"`
	FinalValue  float64 `json:"final_value"`
	TotalReturn float64 `json:"total_return"`
	Sharpe      float64 `json:"sharpe"`
	MaxDrawdown float64 `json:"max_drawdown"`
}

// ComputePerformance builds the equity curve and its summary statistics.
func ComputePerformance(history []marketlog.L1Record, trades []domain.Trade, agentID string, cash decimal.Decimal, inventory int64) Performance {
	values := EquityCurve(history, trades, agentID, cash, inventory)
	p := Performance{AgentID: agentID, Points: len(values)}
	if len(values) == 0 {
		return p
	}
	p.StartValue = values[0]
	p.FinalValue = values[len(values)-1]
	if p.StartValue > 0 {
		p.TotalReturn = p.FinalValue/p.StartValue - 1
	}
	p.Sharpe = SharpeRatio(SimpleReturns(values))
	p.MaxDrawdown = MaxDrawdown(values)
	return p
}
