package agent

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/akshitanchan/marketsim/internal/domain"
)

// NoiseParams configures a NoiseTrader.
type NoiseParams struct {
	MaxQty           int64
	MarketProb       float64 // share of market orders; the rest are limits
	LimitBand        int64   // limit prices are fair value +/- LimitBand ticks
	Cash             decimal.Decimal
	InitialInventory int64
}

// DefaultNoiseParams returns the budget-constrained zero-intelligence trader.
func DefaultNoiseParams() NoiseParams {
	return NoiseParams{
		MaxQty:           5,
		MarketProb:       0.7,
		LimitBand:        4,
		Cash:             decimal.NewFromInt(10_000),
		InitialInventory: 10,
	}
}

// NoiseTrader trades random sizes anchored on the fair value, within its
// cash and inventory.
type NoiseTrader struct {
	Base
	Params NoiseParams
}

// NewNoiseTrader creates a noise trader.
func NewNoiseTrader(id string, seed int64, p NoiseParams) *NoiseTrader {
	return &NoiseTrader{
		Base:   NewBase(id, seed, p.Cash, p.InitialInventory),
		Params: p,
	}
}

func (n *NoiseTrader) GetAction(state domain.MarketState) []domain.Action {
	side := n.randomSide()
	qty := 1 + n.rng.Int63n(n.Params.MaxQty)

	var fv float64
	switch {
	case state.FairValue != nil:
		fv = *state.FairValue
	case state.Mid != nil:
		fv = *state.Mid
	default:
		return nil
	}

	if side == domain.Buy && !n.canAfford(fv, qty) {
		return nil
	}
	if side == domain.Sell && n.inventory < qty {
		return nil
	}

	if n.rng.Float64() < n.Params.MarketProb {
		return []domain.Action{domain.PlaceMarket(side, qty)}
	}

	price := int64(math.Round(fv)) + n.rng.Int63n(2*n.Params.LimitBand+1) - n.Params.LimitBand
	if price < 1 {
		return nil
	}
	return []domain.Action{domain.PlaceLimit(side, price, qty)}
}
