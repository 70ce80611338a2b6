// Package metrics computes per-agent execution quality, portfolio
// performance, and stylized facts of the mid-price series from a run's
// trades and log records.
package metrics

import (
	"sort"
	"time"

	"github.com/akshitanchan/marketsim/internal/domain"
	"github.com/akshitanchan/marketsim/internal/marketlog"
)

// AdverseHorizon is how far after a fill the mid is sampled to measure
// adverse selection.
const AdverseHorizon = 5 * time.Second

// AgentMetrics holds execution metrics for a single agent.
type AgentMetrics struct {
	AgentID string `json:"agent_id"`

	Fills      int   `json:"fills"`
	BoughtQty  int64 `json:"bought_qty"`
	SoldQty    int64 `json:"sold_qty"`
	PassiveQty int64 `json:"passive_qty"` // filled while resting
	NetQty     int64 `json:"net_qty"`

	AvgBuyPrice  float64 `json:"avg_buy_price"`
	AvgSellPrice float64 `json:"avg_sell_price"`
	MakerShare   float64 `json:"maker_share"` // passive qty / total filled qty

	AvgSlippage float64 `json:"avg_slippage"` // vs last snapshot mid, positive = worse
	SlippageBps float64 `json:"slippage_bps"`

	AvgPriceMoveAfterFill float64 `json:"avg_price_move_after_fill"` // positive = favorable
	AdverseSelectionBps   float64 `json:"adverse_selection_bps"`
}

// Collector accumulates fills against the snapshot mid history.
type Collector struct {
	agents  map[string]*agentAccum
	history []marketlog.L1Record
}

type agentAccum struct {
	fills []fill
}

type fill struct {
	price   int64
	qty     int64
	time    domain.Time
	side    domain.Side
	passive bool
}

// NewCollector creates a collector over an L1 history in time order.
func NewCollector(history []marketlog.L1Record) *Collector {
	return &Collector{
		agents:  make(map[string]*agentAccum),
		history: history,
	}
}

func (c *Collector) accum(agentID string) *agentAccum {
	if a, ok := c.agents[agentID]; ok {
		return a
	}
	a := &agentAccum{}
	c.agents[agentID] = a
	return a
}

// ProcessTrade records both sides of a trade.
func (c *Collector) ProcessTrade(tr domain.Trade) {
	passiveBuy := tr.PassiveOrderID == tr.BuyOrderID
	c.accum(tr.BuyAgent).fills = append(c.accum(tr.BuyAgent).fills, fill{
		price: tr.Price, qty: tr.Qty, time: tr.Time, side: domain.Buy, passive: passiveBuy,
	})
	c.accum(tr.SellAgent).fills = append(c.accum(tr.SellAgent).fills, fill{
		price: tr.Price, qty: tr.Qty, time: tr.Time, side: domain.Sell, passive: !passiveBuy,
	})
}

// midAt returns the latest defined mid at or before t.
func (c *Collector) midAt(t domain.Time) (float64, bool) {
	idx := sort.Search(len(c.history), func(i int) bool {
		return c.history[i].Time > t
	})
	for i := idx - 1; i >= 0; i-- {
		if m := c.history[i].Mid; m != nil {
			return *m, true
		}
	}
	return 0, false
}

// Compute calculates final metrics for every agent seen.
func (c *Collector) Compute() map[string]*AgentMetrics {
	result := make(map[string]*AgentMetrics, len(c.agents))

	for agentID, a := range c.agents {
		m := &AgentMetrics{AgentID: agentID, Fills: len(a.fills)}

		var buyNotional, sellNotional float64
		var slipTotal, moveTotal, midTotal float64
		var slipQty int64
		var moveCount int

		for _, f := range a.fills {
			price := float64(f.price)
			qty := float64(f.qty)
			if f.side == domain.Buy {
				m.BoughtQty += f.qty
				buyNotional += price * qty
			} else {
				m.SoldQty += f.qty
				sellNotional += price * qty
			}
			if f.passive {
				m.PassiveQty += f.qty
			}

			if mid, ok := c.midAt(f.time); ok {
				slip := price - mid
				if f.side == domain.Sell {
					slip = -slip
				}
				slipTotal += slip * qty
				midTotal += mid * qty
				slipQty += f.qty
			}

			if after, ok := c.midAt(f.time + AdverseHorizon); ok {
				move := after - price
				if f.side == domain.Sell {
					move = -move
				}
				moveTotal += move
				moveCount++
			}
		}

		m.NetQty = m.BoughtQty - m.SoldQty
		if m.BoughtQty > 0 {
			m.AvgBuyPrice = buyNotional / float64(m.BoughtQty)
		}
		if m.SoldQty > 0 {
			m.AvgSellPrice = sellNotional / float64(m.SoldQty)
		}
		if total := m.BoughtQty + m.SoldQty; total > 0 {
			m.MakerShare = float64(m.PassiveQty) / float64(total)
		}
		var avgMid float64
		if slipQty > 0 {
			m.AvgSlippage = slipTotal / float64(slipQty)
			avgMid = midTotal / float64(slipQty)
			if avgMid > 0 {
				m.SlippageBps = m.AvgSlippage / avgMid * 10000
			}
		}
		if moveCount > 0 {
			m.AvgPriceMoveAfterFill = moveTotal / float64(moveCount)
			if avgMid > 0 {
				m.AdverseSelectionBps = m.AvgPriceMoveAfterFill / avgMid * 10000
			}
		}

		result[agentID] = m
	}
	return result
}

// ComputeFromRun computes metrics from a run's trades and L1 stream.
func ComputeFromRun(trades []domain.Trade, history []marketlog.L1Record) map[string]*AgentMetrics {
	c := NewCollector(history)
	for _, tr := range trades {
		c.ProcessTrade(tr)
	}
	return c.Compute()
}

// SortedIDs returns map keys in ascending order for stable output.
func SortedIDs(m map[string]*AgentMetrics) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
