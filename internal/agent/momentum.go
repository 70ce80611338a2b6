package agent

import (
	"github.com/shopspring/decimal"

	"github.com/akshitanchan/marketsim/internal/domain"
)

// MomentumParams configures a Momentum trader.
type MomentumParams struct {
	Window int
	MaxQty int64
	Cash   decimal.Decimal
}

// DefaultMomentumParams returns a 50-observation SMA follower.
func DefaultMomentumParams() MomentumParams {
	return MomentumParams{
		Window: 50,
		MaxQty: 5,
		Cash:   decimal.NewFromInt(10_000),
	}
}

// Momentum buys when the mid is above its simple moving average and sells
// when below, always with market orders.
type Momentum struct {
	Base
	Params MomentumParams
	prices *RingBuffer
}

// NewMomentum creates a momentum trader.
func NewMomentum(id string, seed int64, p MomentumParams) *Momentum {
	return &Momentum{
		Base:   NewBase(id, seed, p.Cash, 0),
		Params: p,
		prices: NewRingBuffer(p.Window),
	}
}

func (m *Momentum) GetAction(state domain.MarketState) []domain.Action {
	if state.Mid == nil {
		return nil
	}
	mid := *state.Mid
	m.prices.Push(mid)
	if !m.prices.Full() {
		return nil
	}

	side := domain.Sell
	if mid > m.prices.Mean() {
		side = domain.Buy
	}
	qty := 1 + m.rng.Int63n(m.Params.MaxQty)

	if side == domain.Buy && !m.canAfford(mid, qty) {
		return nil
	}
	if side == domain.Sell && m.inventory < qty {
		return nil
	}
	return []domain.Action{domain.PlaceMarket(side, qty)}
}
